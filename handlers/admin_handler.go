package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cronos-live/attendance-system/middleware"
	"github.com/cronos-live/attendance-system/services"
	"github.com/cronos-live/attendance-system/storage"
	"github.com/cronos-live/attendance-system/store"
	"github.com/cronos-live/attendance-system/utils"
)

const maxPosterBytes = 5 << 20 // 5MB

// AdminHandler serves the allow-listed admin surface: event poster uploads.
type AdminHandler struct {
	uploader storage.FileUploader
	catalog  *services.EventCatalog
	store    store.DocumentStore
	admins   map[string]bool
}

func NewAdminHandler(
	uploader storage.FileUploader,
	catalog *services.EventCatalog,
	documentStore store.DocumentStore,
	adminSubjects []string,
) *AdminHandler {
	admins := make(map[string]bool, len(adminSubjects))
	for _, subjectID := range adminSubjects {
		admins[subjectID] = true
	}
	return &AdminHandler{
		uploader: uploader,
		catalog:  catalog,
		store:    documentStore,
		admins:   admins,
	}
}

// UploadPoster stores the event poster in R2 and records its public URL.
func (h *AdminHandler) UploadPoster(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok || !h.admins[identity.SubjectID] {
		forbiddenResponse(w, r, "admin access required")
		return
	}

	ev, err := h.catalog.GetByID(chi.URLParam(r, "eventID"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPosterBytes)
	if err := r.ParseMultipartForm(maxPosterBytes); err != nil {
		badRequestResponse(w, r, fmt.Errorf("invalid multipart form: %w", err))
		return
	}
	file, header, err := r.FormFile("poster")
	if err != nil {
		badRequestResponse(w, r, errors.New("poster file is required"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType != "image/jpeg" && contentType != "image/png" && contentType != "image/webp" {
		badRequestResponse(w, r, fmt.Errorf("unsupported poster content type %q", contentType))
		return
	}

	suffix, err := utils.RandomToken(8)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}
	key := fmt.Sprintf("events/%s/poster-%s", ev.ID, suffix)

	result, err := h.uploader.Upload(r.Context(), key, contentType, file)
	if err != nil {
		serverErrorResponse(w, r, fmt.Errorf("poster upload failed: %w", err))
		return
	}

	fields := map[string]interface{}{
		"poster_url":  result.Location,
		"poster_key":  result.Key,
		"uploaded_by": identity.SubjectID,
		"updated_at":  time.Now().UTC().Format(time.RFC3339),
	}
	if err := h.store.Put(r.Context(), eventAssetsCollection, ev.ID, fields, true); err != nil {
		serverErrorResponse(w, r, fmt.Errorf("failed to record poster: %w", err))
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"poster_url": result.Location}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
