package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/cronos-live/attendance-system/services"
	"github.com/cronos-live/attendance-system/stream"
)

type WebSocketHandler struct {
	hub        *stream.Hub
	catalog    *services.EventCatalog
	aggregator *services.AggregatorService
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

func NewWebSocketHandler(
	hub *stream.Hub,
	catalog *services.EventCatalog,
	aggregator *services.AggregatorService,
	allowedOrigin string,
	logger *slog.Logger,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:        hub,
		catalog:    catalog,
		aggregator: aggregator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Не-браузерные клиенты заголовок Origin не шлют.
				return origin == "" || allowedOrigin == "*" || origin == allowedOrigin
			},
		},
		logger: logger,
	}
}

// ServeWs streams live aggregate counts for one event. The client joins the
// event's room and receives a COUNTS_UPDATED message on every change; the
// current snapshot is pushed immediately after subscribing.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if _, err := h.catalog.GetByID(eventID); err != nil {
		notFoundResponse(w, r)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader сам отправил HTTP-ошибку клиенту.
		h.logger.Debug("websocket upgrade failed",
			slog.String("event_id", eventID), slog.Any("error", err))
		return
	}

	client := &stream.Client{
		Hub:  h.hub,
		Conn: conn,
		Send: make(chan []byte, 256),
		Room: services.EventRoom(eventID),
	}

	// Начальный снимок кладём в очередь клиента напрямую: рассылка через
	// комнату гонялась бы с регистрацией и дублировала снимок остальным.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if counts, err := h.aggregator.Snapshot(ctx, eventID); err == nil {
		if err := client.Enqueue(stream.Message{
			Type: "COUNTS_UPDATED",
			Room: client.Room,
			Payload: map[string]interface{}{
				"event_id": eventID,
				"counts":   counts,
			},
		}); err != nil {
			h.logger.Warn("failed to queue initial snapshot",
				slog.String("event_id", eventID), slog.Any("error", err))
		}
	}

	h.hub.Register(client)
	go client.WritePump()
	go client.ReadPump()
}
