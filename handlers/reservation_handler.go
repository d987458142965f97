package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cronos-live/attendance-system/middleware"
	"github.com/cronos-live/attendance-system/services"
)

type ReservationHandler struct {
	reservations *services.ReservationService
}

func NewReservationHandler(reservations *services.ReservationService) *ReservationHandler {
	return &ReservationHandler{reservations: reservations}
}

// Reserve сохраняет запись посещения и запускает доставку кода. Сессия не
// обязательна: без неё в процессе создаётся анонимная, и токен приходит в
// ответе.
func (h *ReservationHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	var input services.ReservationInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	input.EventID = chi.URLParam(r, "eventID")

	identity, _ := middleware.IdentityFromContext(r.Context())
	result, err := h.reservations.Reserve(r.Context(), identity, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"reservation": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Cancel deletes the caller's own record; cancelling twice is fine.
func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	if err := h.reservations.Cancel(r.Context(), identity, chi.URLParam(r, "eventID")); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// My returns the caller's current reservation for the event.
func (h *ReservationHandler) My(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	record, err := h.reservations.Attendance(r.Context(), identity, chi.URLParam(r, "eventID"))
	if err != nil {
		if errors.Is(err, services.ErrAttendanceNotFound) {
			if writeErr := writeJSON(w, http.StatusOK, jsonResponse{"reservation": nil}, nil); writeErr != nil {
				serverErrorResponse(w, r, writeErr)
			}
			return
		}
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"reservation": record}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
