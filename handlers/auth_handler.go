package handlers

import (
	"errors"
	"net/http"

	"github.com/cronos-live/attendance-system/middleware"
	"github.com/cronos-live/attendance-system/services"
)

type AuthHandler struct {
	identities *services.IdentityService
}

func NewAuthHandler(identities *services.IdentityService) *AuthHandler {
	return &AuthHandler{identities: identities}
}

// SignInAnonymous mints an anonymous identity and returns its bearer token.
func (h *AuthHandler) SignInAnonymous(w http.ResponseWriter, r *http.Request) {
	identity, token, err := h.identities.SignInAnonymous(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	response := jsonResponse{
		"identity": identity,
		"token":    token,
	}
	if err := writeJSON(w, http.StatusCreated, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// BeginPhoneVerification sends an OTP and returns the challenge handle.
func (h *AuthHandler) BeginPhoneVerification(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Phone string `json:"phone"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Phone == "" {
		badRequestResponse(w, r, errors.New("phone is required"))
		return
	}

	handle, err := h.identities.BeginPhoneVerification(r.Context(), input.Phone)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"challenge": handle}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// CompleteVerification exchanges the OTP for a verified identity. When the
// request carries an anonymous session, that identity is promoted and keeps
// its subject id.
func (h *AuthHandler) CompleteVerification(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Challenge string `json:"challenge"`
		Code      string `json:"code"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Challenge == "" || input.Code == "" {
		badRequestResponse(w, r, errors.New("challenge and code are required"))
		return
	}

	existing, _ := middleware.IdentityFromContext(r.Context())
	identity, token, err := h.identities.CompleteVerification(r.Context(), input.Challenge, input.Code, existing)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	response := jsonResponse{
		"identity": identity,
		"token":    token,
	}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
