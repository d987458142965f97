package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cronos-live/attendance-system/models"
	"github.com/cronos-live/attendance-system/store"
)

// EventCatalog holds the static event reference data. Loaded once from a
// JSON file at startup and never mutated afterwards.
type EventCatalog struct {
	events []models.Event
	byID   map[string]models.Event
}

// LoadEventCatalog reads and validates the configured event list.
func LoadEventCatalog(path string) (*EventCatalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read events file %s: %w", path, err)
	}

	var events []models.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("failed to parse events file %s: %w", path, err)
	}

	byID := make(map[string]models.Event, len(events))
	for _, ev := range events {
		if ev.ID == "" || ev.Title == "" {
			return nil, fmt.Errorf("event entry missing id or title in %s", path)
		}
		if ev.SideLabels.A == "" || ev.SideLabels.B == "" {
			return nil, fmt.Errorf("event %s must define both side labels", ev.ID)
		}
		if _, dup := byID[ev.ID]; dup {
			return nil, fmt.Errorf("duplicate event id %s in %s", ev.ID, path)
		}
		byID[ev.ID] = ev
	}

	return &EventCatalog{events: events, byID: byID}, nil
}

func (c *EventCatalog) List() []models.Event {
	out := make([]models.Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *EventCatalog) GetByID(id string) (models.Event, error) {
	ev, ok := c.byID[id]
	if !ok {
		return models.Event{}, ErrEventNotFound
	}
	return ev, nil
}

// AttendeesCollection returns the storage collection holding the attendance
// records of one event.
func AttendeesCollection(eventID string) string {
	return fmt.Sprintf("events/%s/attendees", eventID)
}

// TeamService keeps the freeform favorite-side catalog. Labels are upserted
// on first use so pickers can offer them later.
type TeamService struct {
	store store.DocumentStore
}

func NewTeamService(documentStore store.DocumentStore) *TeamService {
	return &TeamService{store: documentStore}
}

// UpsertIfNew records a favorite-side label. Merge-write keyed by slug, so
// repeated submissions of the same label collapse into one document.
func (s *TeamService) UpsertIfNew(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	fields := map[string]interface{}{
		"name":       name,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.store.Put(ctx, "teams", teamSlug(name), fields, true); err != nil {
		return fmt.Errorf("%w: failed to upsert team %q: %v", ErrPersistenceFailed, name, err)
	}
	return nil
}

func (s *TeamService) List(ctx context.Context) ([]string, error) {
	docs, err := s.store.List(ctx, "teams")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list teams: %v", ErrPersistenceFailed, err)
	}
	names := make([]string, 0, len(docs))
	for _, doc := range docs {
		if name := doc.String("name"); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func teamSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Join(strings.Fields(slug), "-")
	return slug
}
