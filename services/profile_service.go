package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cronos-live/attendance-system/models"
	"github.com/cronos-live/attendance-system/store"
)

// ProfileUpdate carries the fields the owner may edit directly. The contact
// phone is not here: it changes only through reservation or verification.
type ProfileUpdate struct {
	DisplayName  string `json:"display_name"`
	FavoriteSide string `json:"favorite_side"`
}

// ProfileView is the owner's profile plus their reservations across the
// catalog.
type ProfileView struct {
	Profile      models.Profile            `json:"profile"`
	Reservations []models.AttendanceRecord `json:"reservations"`
}

// ProfileService exposes the профиль владельцу: чтение вместе с его
// резервированиями и редактирование имени и любимой команды.
type ProfileService struct {
	store   store.DocumentStore // guarded
	catalog *EventCatalog
	teams   *TeamService
}

func NewProfileService(documentStore store.DocumentStore, catalog *EventCatalog, teams *TeamService) *ProfileService {
	return &ProfileService{store: documentStore, catalog: catalog, teams: teams}
}

// Get returns the caller's profile and every attendance record they hold. A
// subject that never wrote a profile gets an empty one, not an error.
func (s *ProfileService) Get(ctx context.Context, identity *models.Identity) (*ProfileView, error) {
	if identity == nil || identity.SubjectID == "" {
		return nil, ErrAuthenticationRequired
	}

	view := &ProfileView{
		Profile:      models.Profile{SubjectID: identity.SubjectID},
		Reservations: []models.AttendanceRecord{},
	}

	doc, err := s.store.Get(ctx, usersCollection, identity.SubjectID)
	if err != nil && !errors.Is(err, store.ErrDocumentNotFound) {
		return nil, persistenceError("failed to read profile", err)
	}
	if err == nil {
		view.Profile.DisplayName = doc.String("display_name")
		view.Profile.ContactPhone = doc.String("contact_phone")
		view.Profile.FavoriteSide = doc.String("favorite_side")
		view.Profile.UpdatedAt = doc.UpdatedAt
	}

	for _, ev := range s.catalog.List() {
		record, err := s.store.Get(ctx, AttendeesCollection(ev.ID), identity.SubjectID)
		if errors.Is(err, store.ErrDocumentNotFound) {
			continue
		}
		if err != nil {
			return nil, persistenceError("failed to read attendance record", err)
		}
		view.Reservations = append(view.Reservations, models.AttendanceRecord{
			EventID:            ev.ID,
			SubjectID:          identity.SubjectID,
			Side:               models.Side(record.String("side")),
			TeamLabel:          record.String("team_label"),
			DisplayName:        record.String("display_name"),
			ContactPhone:       record.String("contact_phone"),
			ReservationCode:    record.String("reservation_code"),
			CodeDeliveryStatus: models.DeliveryStatus(record.String("code_delivery_status")),
			CreatedAt:          record.CreatedAt,
			UpdatedAt:          record.UpdatedAt,
		})
	}
	return view, nil
}

// Update merge-writes the editable profile fields. Only supplied fields
// change; an update carrying nothing is rejected.
func (s *ProfileService) Update(ctx context.Context, identity *models.Identity, in ProfileUpdate) (*models.Profile, error) {
	if identity == nil || identity.SubjectID == "" {
		return nil, ErrAuthenticationRequired
	}

	displayName := strings.TrimSpace(in.DisplayName)
	favoriteSide := strings.TrimSpace(in.FavoriteSide)
	if displayName == "" && favoriteSide == "" {
		return nil, ErrValidationFailed
	}

	fields := map[string]interface{}{
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}
	if displayName != "" {
		fields["display_name"] = displayName
	}
	if favoriteSide != "" {
		fields["favorite_side"] = favoriteSide
		if err := s.teams.UpsertIfNew(ctx, favoriteSide); err != nil {
			return nil, err
		}
	}
	if err := s.store.Put(ctx, usersCollection, identity.SubjectID, fields, true); err != nil {
		return nil, persistenceError("failed to merge profile", err)
	}

	doc, err := s.store.Get(ctx, usersCollection, identity.SubjectID)
	if err != nil {
		return nil, persistenceError("failed to read profile back", err)
	}
	return &models.Profile{
		SubjectID:    identity.SubjectID,
		DisplayName:  doc.String("display_name"),
		ContactPhone: doc.String("contact_phone"),
		FavoriteSide: doc.String("favorite_side"),
		UpdatedAt:    doc.UpdatedAt,
	}, nil
}
