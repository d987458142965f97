package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cronos-live/attendance-system/services"
	"github.com/cronos-live/attendance-system/store"
	"github.com/cronos-live/attendance-system/stream"
)

const wsTestCatalogJSON = `[
  {
    "id": "mex-jpn-2025",
    "title": "México vs Japón",
    "league": "Amistoso Internacional",
    "start_time": "2025-09-06T19:00:00-07:00",
    "venue": {"name": "Oakland Coliseum", "city": "Oakland, CA"},
    "side_labels": {"a": "México", "b": "Japón"}
  }
]`

type wsFixture struct {
	memory *store.MemoryStore
	server *httptest.Server
}

func newWsFixture(t *testing.T, allowedOrigin string) *wsFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	path := filepath.Join(t.TempDir(), "events.json")
	require.NoError(t, os.WriteFile(path, []byte(wsTestCatalogJSON), 0o600))
	catalog, err := services.LoadEventCatalog(path)
	require.NoError(t, err)

	memory := store.NewMemoryStore()
	aggregator := services.NewAggregatorService(memory, logger)

	hub := stream.NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	handler := NewWebSocketHandler(hub, catalog, aggregator, allowedOrigin, logger)
	router := chi.NewRouter()
	router.Get("/ws/events/{eventID}", handler.ServeWs)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &wsFixture{memory: memory, server: server}
}

func (f *wsFixture) wsURL(eventID string) string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/events/" + eventID
}

func readCountsMessage(t *testing.T, conn *websocket.Conn) (string, map[string]int) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type    string `json:"type"`
		Payload struct {
			EventID string         `json:"event_id"`
			Counts  map[string]int `json:"counts"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(raw, &msg))
	require.Equal(t, "COUNTS_UPDATED", msg.Type)
	return msg.Payload.EventID, msg.Payload.Counts
}

func TestServeWsDeliversInitialSnapshot(t *testing.T) {
	f := newWsFixture(t, "*")
	ctx := context.Background()

	collection := services.AttendeesCollection("mex-jpn-2025")
	require.NoError(t, f.memory.Put(ctx, collection, "u1", map[string]interface{}{"side": "A"}, true))
	require.NoError(t, f.memory.Put(ctx, collection, "u2", map[string]interface{}{"side": "B"}, true))

	// Наблюдатель видит текущий снимок сразу после подключения, ещё до
	// какого-либо изменения.
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL("mex-jpn-2025"), nil)
	require.NoError(t, err)
	defer conn.Close()

	eventID, counts := readCountsMessage(t, conn)
	assert.Equal(t, "mex-jpn-2025", eventID)
	assert.Equal(t, 2, counts["total"])
	assert.Equal(t, 1, counts["a_count"])
	assert.Equal(t, 1, counts["b_count"])
}

func TestServeWsRejectsUnknownEvent(t *testing.T) {
	f := newWsFixture(t, "*")

	_, resp, err := websocket.DefaultDialer.Dial(f.wsURL("nope"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeWsOriginPolicy(t *testing.T) {
	f := newWsFixture(t, "https://app.example.com")

	// Чужой Origin отклоняется на рукопожатии.
	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(f.wsURL("mex-jpn-2025"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Настроенный Origin проходит.
	header = http.Header{"Origin": []string{"https://app.example.com"}}
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL("mex-jpn-2025"), header)
	require.NoError(t, err)
	conn.Close()
}
