package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cronos-live/attendance-system/models"
	"github.com/cronos-live/attendance-system/services"
	"github.com/cronos-live/attendance-system/store"
)

const eventAssetsCollection = "event_assets"

type EventHandler struct {
	catalog    *services.EventCatalog
	aggregator *services.AggregatorService
	teams      *services.TeamService
	store      store.DocumentStore
}

func NewEventHandler(
	catalog *services.EventCatalog,
	aggregator *services.AggregatorService,
	teams *services.TeamService,
	documentStore store.DocumentStore,
) *EventHandler {
	return &EventHandler{
		catalog:    catalog,
		aggregator: aggregator,
		teams:      teams,
		store:      documentStore,
	}
}

type eventView struct {
	models.Event
	Counts models.AggregateCounts `json:"counts"`
}

// List returns the catalog with a current counts snapshot per event.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	events := h.catalog.List()
	views := make([]eventView, 0, len(events))
	for _, ev := range events {
		counts, err := h.aggregator.Snapshot(r.Context(), ev.ID)
		if err != nil {
			mapServiceErrorToHTTP(w, r, err)
			return
		}
		views = append(views, eventView{Event: h.withPoster(r, ev), Counts: counts})
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"events": views}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Get returns one event with its current counts snapshot.
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	ev, err := h.catalog.GetByID(chi.URLParam(r, "eventID"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	counts, err := h.aggregator.Snapshot(r.Context(), ev.ID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	view := eventView{Event: h.withPoster(r, ev), Counts: counts}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"event": view}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Counts returns the aggregate snapshot alone.
func (h *EventHandler) Counts(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if _, err := h.catalog.GetByID(eventID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	counts, err := h.aggregator.Snapshot(r.Context(), eventID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"counts": counts}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Teams lists the known favorite-side labels for pickers.
func (h *EventHandler) Teams(w http.ResponseWriter, r *http.Request) {
	names, err := h.teams.List(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"teams": names}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// withPoster overlays the uploaded poster URL, if an admin set one. The
// catalog itself stays immutable.
func (h *EventHandler) withPoster(r *http.Request, ev models.Event) models.Event {
	doc, err := h.store.Get(r.Context(), eventAssetsCollection, ev.ID)
	if err != nil {
		// Постер — косметика, событие отдаём и без него.
		return ev
	}
	if url := doc.String("poster_url"); url != "" {
		ev.PosterURL = url
	}
	return ev
}
