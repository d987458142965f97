package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cronos-live/attendance-system/models"
	"github.com/cronos-live/attendance-system/store"
	"github.com/cronos-live/attendance-system/utils"
)

// ReservationInput carries the user's choice plus contact snapshot.
type ReservationInput struct {
	EventID      string `json:"event_id"`
	Side         string `json:"side"`
	DisplayName  string `json:"display_name"`
	Phone        string `json:"phone"`
	FavoriteSide string `json:"favorite_side"`
}

// ReservationResult reports what was persisted and whether the code reached
// the phone. Token is set only when a new anonymous identity was minted
// during this call.
type ReservationResult struct {
	EventID            string                `json:"event_id"`
	SubjectID          string                `json:"subject_id"`
	Side               models.Side           `json:"side"`
	TeamLabel          string                `json:"team_label"`
	ReservationCode    string                `json:"reservation_code"`
	CodeDeliveryStatus models.DeliveryStatus `json:"code_delivery_status"`
	Delivered          bool                  `json:"delivered"`
	Token              string                `json:"token,omitempty"`
}

// ReservationService инкапсулирует весь процесс резервирования: профиль,
// запись посещения, код и его доставка.
type ReservationService struct {
	store    store.DocumentStore // guarded: пишет только от имени субъекта
	catalog  *EventCatalog
	teams    *TeamService
	identity *IdentityService
	gateway  NotificationGateway
	logger   *slog.Logger
}

func NewReservationService(
	documentStore store.DocumentStore,
	catalog *EventCatalog,
	teams *TeamService,
	identity *IdentityService,
	gateway NotificationGateway,
	logger *slog.Logger,
) *ReservationService {
	return &ReservationService{
		store:    documentStore,
		catalog:  catalog,
		teams:    teams,
		identity: identity,
		gateway:  gateway,
		logger:   logger,
	}
}

// Reserve persists the attendance record for (event, subject) and drives the
// code delivery. Persistence failure is fatal to the call; delivery failure
// is reported but never rolls the record back. Re-invoking for the same
// identity overwrites side, contact and code — only the latest code is
// valid, and there is never a second record.
func (s *ReservationService) Reserve(ctx context.Context, identity *models.Identity, in ReservationInput) (*ReservationResult, error) {
	side, ok := models.ParseSide(in.Side)
	if !ok {
		return nil, ErrInvalidSide
	}
	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		return nil, ErrDisplayNameRequired
	}
	phone, err := utils.NormalizePhone(in.Phone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPhone, err)
	}
	ev, err := s.catalog.GetByID(in.EventID)
	if err != nil {
		return nil, err
	}

	favoriteSide := strings.TrimSpace(in.FavoriteSide)

	// Координатор никогда не пишет без субъекта: без сессии сперва
	// создаётся анонимная. Любимая команда собирается до создания
	// сессии — хранилище всё равно отклонит запись без аутентификации.
	mintedToken := ""
	if identity == nil || identity.SubjectID == "" {
		if favoriteSide == "" {
			return nil, ErrFavoriteSideRequired
		}
		var token string
		identity, token, err = s.identity.EnsureIdentity(ctx, nil)
		if err != nil {
			return nil, err
		}
		mintedToken = token
		ctx = store.WithActor(ctx, identity.SubjectID)
	}

	if favoriteSide != "" {
		if err := s.teams.UpsertIfNew(ctx, favoriteSide); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)

	// Профиль: merge, незатронутые поля сохраняются.
	profileFields := map[string]interface{}{
		"display_name":  displayName,
		"contact_phone": phone,
		"updated_at":    now,
	}
	if favoriteSide != "" {
		profileFields["favorite_side"] = favoriteSide
	}
	if err := s.store.Put(ctx, usersCollection, identity.SubjectID, profileFields, true); err != nil {
		return nil, persistenceError("failed to merge profile", err)
	}

	code, err := utils.GenerateNumericCode(6)
	if err != nil {
		return nil, err
	}

	recordFields := map[string]interface{}{
		"side":                 string(side),
		"team_label":           ev.SideLabel(side),
		"display_name":         displayName,
		"contact_phone":        phone,
		"reservation_code":     code,
		"code_delivery_status": string(models.DeliveryPending),
		"updated_at":           now,
	}
	collection := AttendeesCollection(ev.ID)
	if err := s.store.Put(ctx, collection, identity.SubjectID, recordFields, true); err != nil {
		return nil, persistenceError("failed to merge attendance record", err)
	}

	// Ровно одна попытка доставки; повтор — только новый вызов Reserve.
	status := models.DeliveryFailed
	delivered := false
	body := fmt.Sprintf("Cronos: tu código de reserva para %q es %s.", ev.Title, code)
	outcome, err := s.gateway.Send(ctx, phone, body)
	if err != nil {
		s.logger.Warn("reservation code delivery failed",
			slog.String("event_id", ev.ID),
			slog.String("subject_id", identity.SubjectID),
			slog.Any("error", err))
	} else if outcome.OK {
		status = models.DeliverySent
		delivered = true
	}

	// Статус доставки — best effort: запись уже существует, код у нас есть.
	statusFields := map[string]interface{}{
		"code_delivery_status": string(status),
	}
	if err := s.store.Put(ctx, collection, identity.SubjectID, statusFields, true); err != nil {
		s.logger.Warn("failed to record delivery status",
			slog.String("event_id", ev.ID), slog.Any("error", err))
	}

	return &ReservationResult{
		EventID:            ev.ID,
		SubjectID:          identity.SubjectID,
		Side:               side,
		TeamLabel:          ev.SideLabel(side),
		ReservationCode:    code,
		CodeDeliveryStatus: status,
		Delivered:          delivered,
		Token:              mintedToken,
	}, nil
}

// Cancel deletes the identity's own attendance record. Cancelling a
// non-existent reservation is a no-op, not an error.
func (s *ReservationService) Cancel(ctx context.Context, identity *models.Identity, eventID string) error {
	if identity == nil || identity.SubjectID == "" {
		return ErrAuthenticationRequired
	}
	if _, err := s.catalog.GetByID(eventID); err != nil {
		return err
	}

	err := s.store.Delete(ctx, AttendeesCollection(eventID), identity.SubjectID)
	if errors.Is(err, store.ErrDocumentNotFound) {
		return nil
	}
	if err != nil {
		return persistenceError("failed to delete attendance record", err)
	}
	return nil
}

// Attendance returns the identity's current record for the event, if any.
func (s *ReservationService) Attendance(ctx context.Context, identity *models.Identity, eventID string) (*models.AttendanceRecord, error) {
	if identity == nil || identity.SubjectID == "" {
		return nil, ErrAuthenticationRequired
	}
	if _, err := s.catalog.GetByID(eventID); err != nil {
		return nil, err
	}

	doc, err := s.store.Get(ctx, AttendeesCollection(eventID), identity.SubjectID)
	if errors.Is(err, store.ErrDocumentNotFound) {
		return nil, ErrAttendanceNotFound
	}
	if err != nil {
		return nil, persistenceError("failed to read attendance record", err)
	}

	return &models.AttendanceRecord{
		EventID:            eventID,
		SubjectID:          identity.SubjectID,
		Side:               models.Side(doc.String("side")),
		TeamLabel:          doc.String("team_label"),
		DisplayName:        doc.String("display_name"),
		ContactPhone:       doc.String("contact_phone"),
		ReservationCode:    doc.String("reservation_code"),
		CodeDeliveryStatus: models.DeliveryStatus(doc.String("code_delivery_status")),
		CreatedAt:          doc.CreatedAt,
		UpdatedAt:          doc.UpdatedAt,
	}, nil
}

// persistenceError separates "you may not write this" from infrastructure
// failure at the store boundary.
func persistenceError(msg string, err error) error {
	if errors.Is(err, store.ErrWriteDenied) {
		return ErrForbiddenOperation
	}
	return fmt.Errorf("%w: %s: %v", ErrPersistenceFailed, msg, err)
}
