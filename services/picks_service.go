package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cronos-live/attendance-system/models"
	"github.com/cronos-live/attendance-system/store"
)

// PickInput — квиниела: три обязательных ответа. Goals через указатель,
// ноль голов — валидный прогноз.
type PickInput struct {
	Winner string `json:"winner"`
	Goals  *int   `json:"goals"`
	Scorer string `json:"scorer"`
}

// PickService stores one prediction per (event, subject). Repeated saves
// merge into the same document, mirroring how attendance records behave.
type PickService struct {
	store   store.DocumentStore // guarded
	catalog *EventCatalog
}

func NewPickService(documentStore store.DocumentStore, catalog *EventCatalog) *PickService {
	return &PickService{store: documentStore, catalog: catalog}
}

// PicksCollection returns the storage collection holding the predictions of
// one event.
func PicksCollection(eventID string) string {
	return fmt.Sprintf("events/%s/picks", eventID)
}

// Save validates and merge-writes the caller's prediction. All three answers
// are required; a partial pick is rejected before any write.
func (s *PickService) Save(ctx context.Context, identity *models.Identity, eventID string, in PickInput) (*models.Pick, error) {
	if identity == nil || identity.SubjectID == "" {
		return nil, ErrAuthenticationRequired
	}
	ev, err := s.catalog.GetByID(eventID)
	if err != nil {
		return nil, err
	}

	winner := strings.TrimSpace(in.Winner)
	scorer := strings.TrimSpace(in.Scorer)
	if winner == "" || scorer == "" || in.Goals == nil || *in.Goals < 0 {
		return nil, ErrPickIncomplete
	}

	now := time.Now().UTC()
	fields := map[string]interface{}{
		"winner":     winner,
		"goals":      *in.Goals,
		"scorer":     scorer,
		"updated_at": now.Format(time.RFC3339),
	}
	if err := s.store.Put(ctx, PicksCollection(ev.ID), identity.SubjectID, fields, true); err != nil {
		return nil, persistenceError("failed to merge pick", err)
	}

	return &models.Pick{
		EventID:   ev.ID,
		SubjectID: identity.SubjectID,
		Winner:    winner,
		Goals:     *in.Goals,
		Scorer:    scorer,
		UpdatedAt: now,
	}, nil
}

// Get returns the caller's prediction for the event, if any.
func (s *PickService) Get(ctx context.Context, identity *models.Identity, eventID string) (*models.Pick, error) {
	if identity == nil || identity.SubjectID == "" {
		return nil, ErrAuthenticationRequired
	}
	if _, err := s.catalog.GetByID(eventID); err != nil {
		return nil, err
	}

	doc, err := s.store.Get(ctx, PicksCollection(eventID), identity.SubjectID)
	if errors.Is(err, store.ErrDocumentNotFound) {
		return nil, ErrPickNotFound
	}
	if err != nil {
		return nil, persistenceError("failed to read pick", err)
	}

	return &models.Pick{
		EventID:   eventID,
		SubjectID: identity.SubjectID,
		Winner:    doc.String("winner"),
		Goals:     doc.Int("goals"),
		Scorer:    doc.String("scorer"),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}
