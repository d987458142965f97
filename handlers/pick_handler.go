package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cronos-live/attendance-system/middleware"
	"github.com/cronos-live/attendance-system/services"
)

type PickHandler struct {
	picks *services.PickService
}

func NewPickHandler(picks *services.PickService) *PickHandler {
	return &PickHandler{picks: picks}
}

// Save сохраняет квиниелу вызывающего для события.
func (h *PickHandler) Save(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var input services.PickInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	pick, err := h.picks.Save(r.Context(), identity, chi.URLParam(r, "eventID"), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"pick": pick}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Get returns the caller's pick, or null when none was saved yet.
func (h *PickHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	pick, err := h.picks.Get(r.Context(), identity, chi.URLParam(r, "eventID"))
	if err != nil {
		if errors.Is(err, services.ErrPickNotFound) {
			if writeErr := writeJSON(w, http.StatusOK, jsonResponse{"pick": nil}, nil); writeErr != nil {
				serverErrorResponse(w, r, writeErr)
			}
			return
		}
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"pick": pick}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
