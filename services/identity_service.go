package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/cronos-live/attendance-system/models"
	"github.com/cronos-live/attendance-system/store"
	"github.com/cronos-live/attendance-system/utils"
)

const (
	identitiesCollection = "identities"
	usersCollection      = "users"

	subjectIDLength = 28
	challengeTTL    = 5 * time.Minute
	tokenTTL        = 30 * 24 * time.Hour
)

// IdentityService is the identity provider and the bridge between anonymous
// and verified identities. It is constructed once by the composition root —
// there is no process-wide verifier singleton.
//
// It writes through the raw (unguarded) store: the provider itself is the
// authority that mints subjects, everything else goes through the guard.
type IdentityService struct {
	store      store.DocumentStore
	challenges ChallengeStore
	gateway    NotificationGateway
	catalog    *EventCatalog
	jwtSecret  []byte
	logger     *slog.Logger
}

func NewIdentityService(
	documentStore store.DocumentStore,
	challenges ChallengeStore,
	gateway NotificationGateway,
	catalog *EventCatalog,
	jwtSecret string,
	logger *slog.Logger,
) *IdentityService {
	return &IdentityService{
		store:      documentStore,
		challenges: challenges,
		gateway:    gateway,
		catalog:    catalog,
		jwtSecret:  []byte(jwtSecret),
		logger:     logger,
	}
}

// SignInAnonymous mints a fresh anonymous identity and issues its token.
func (s *IdentityService) SignInAnonymous(ctx context.Context) (*models.Identity, string, error) {
	subjectID, err := utils.RandomToken(subjectIDLength)
	if err != nil {
		return nil, "", fmt.Errorf("failed to mint subject id: %w", err)
	}

	identity := &models.Identity{
		SubjectID:         subjectID,
		VerificationState: models.VerificationAnonymous,
	}
	fields := map[string]interface{}{
		"verification_state": string(models.VerificationAnonymous),
	}
	if err := s.store.Put(ctx, identitiesCollection, subjectID, fields, true); err != nil {
		return nil, "", fmt.Errorf("%w: failed to persist anonymous identity: %v", ErrPersistenceFailed, err)
	}

	token, err := s.signToken(identity)
	if err != nil {
		return nil, "", err
	}
	return identity, token, nil
}

// EnsureIdentity returns the caller's identity, minting an anonymous one
// when the caller has none. The returned token is non-empty only when a new
// identity was minted.
func (s *IdentityService) EnsureIdentity(ctx context.Context, existing *models.Identity) (*models.Identity, string, error) {
	if existing != nil && existing.SubjectID != "" {
		return existing, "", nil
	}
	return s.SignInAnonymous(ctx)
}

// BeginPhoneVerification generates an OTP, stores its bcrypt hash under a
// random challenge handle with a TTL, and delivers the code over SMS.
func (s *IdentityService) BeginPhoneVerification(ctx context.Context, phone string) (string, error) {
	normalized, err := utils.NormalizePhone(phone)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPhone, err)
	}

	code, err := utils.GenerateNumericCode(6)
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash verification code: %w", err)
	}
	handle, err := utils.RandomToken(32)
	if err != nil {
		return "", err
	}

	challenge := VerificationChallenge{Phone: normalized, CodeHash: string(hash)}
	if err := s.challenges.Save(ctx, handle, challenge, challengeTTL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	body := fmt.Sprintf("Cronos: tu código de verificación es %s.", code)
	if _, err := s.gateway.Send(ctx, normalized, body); err != nil {
		// Код никуда не ушёл — вызов не удался, вызывающий может повторить.
		if delErr := s.challenges.Delete(ctx, handle); delErr != nil {
			s.logger.Warn("failed to discard undelivered challenge", slog.Any("error", delErr))
		}
		return "", err
	}
	return handle, nil
}

// CompleteVerification exchanges a correct OTP for a verified identity.
//
// When the session already holds an anonymous identity, it is promoted in
// place and keeps its subject id. Without a prior session a fresh verified
// subject is minted, and any profile or attendance stored under another
// subject with the same verified phone is merged forward under the new one.
// Nothing durable changes until the code matches.
func (s *IdentityService) CompleteVerification(ctx context.Context, handle, code string, existing *models.Identity) (*models.Identity, string, error) {
	challenge, err := s.challenges.Get(ctx, handle)
	if err != nil {
		return nil, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(challenge.CodeHash), []byte(code)) != nil {
		// Челлендж не расходуем: у пользователя остаются попытки до TTL.
		return nil, "", ErrVerificationCodeMismatch
	}
	if err := s.challenges.Delete(ctx, handle); err != nil {
		s.logger.Warn("failed to consume verification challenge", slog.Any("error", err))
	}

	if existing != nil && existing.SubjectID != "" && !existing.Verified() {
		return s.promoteInPlace(ctx, existing.SubjectID, challenge.Phone)
	}
	if existing.Verified() {
		// Уже верифицирован — просто фиксируем актуальный телефон.
		return s.promoteInPlace(ctx, existing.SubjectID, challenge.Phone)
	}
	return s.mintVerified(ctx, challenge.Phone)
}

// ParseToken validates a bearer token and reconstructs the acting identity.
func (s *IdentityService) ParseToken(tokenString string) (*models.Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrAuthenticationRequired
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrAuthenticationRequired
	}
	subjectID, _ := claims["sub"].(string)
	if subjectID == "" {
		return nil, ErrAuthenticationRequired
	}

	identity := &models.Identity{
		SubjectID:         subjectID,
		VerificationState: models.VerificationAnonymous,
	}
	if verified, _ := claims["verified"].(bool); verified {
		identity.VerificationState = models.VerificationVerified
		identity.Phone, _ = claims["phone"].(string)
	}
	return identity, nil
}

// promoteInPlace keeps the subject id across promotion: the identity
// document gains the verified state and phone, the profile gains the phone.
func (s *IdentityService) promoteInPlace(ctx context.Context, subjectID, phone string) (*models.Identity, string, error) {
	fields := map[string]interface{}{
		"verification_state": string(models.VerificationVerified),
		"phone":              phone,
	}
	if err := s.store.Put(ctx, identitiesCollection, subjectID, fields, true); err != nil {
		return nil, "", fmt.Errorf("%w: failed to promote identity: %v", ErrPersistenceFailed, err)
	}
	profileFields := map[string]interface{}{
		"contact_phone": phone,
		"updated_at":    time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.store.Put(ctx, usersCollection, subjectID, profileFields, true); err != nil {
		return nil, "", fmt.Errorf("%w: failed to update promoted profile: %v", ErrPersistenceFailed, err)
	}

	identity := &models.Identity{
		SubjectID:         subjectID,
		VerificationState: models.VerificationVerified,
		Phone:             phone,
	}
	token, err := s.signToken(identity)
	if err != nil {
		return nil, "", err
	}
	return identity, token, nil
}

// mintVerified creates a verified identity with a fresh subject id and
// reconciles prior state left under other subjects holding the same phone.
func (s *IdentityService) mintVerified(ctx context.Context, phone string) (*models.Identity, string, error) {
	subjectID, err := utils.RandomToken(subjectIDLength)
	if err != nil {
		return nil, "", fmt.Errorf("failed to mint subject id: %w", err)
	}
	fields := map[string]interface{}{
		"verification_state": string(models.VerificationVerified),
		"phone":              phone,
	}
	if err := s.store.Put(ctx, identitiesCollection, subjectID, fields, true); err != nil {
		return nil, "", fmt.Errorf("%w: failed to persist verified identity: %v", ErrPersistenceFailed, err)
	}

	if err := s.mergeBySharedPhone(ctx, subjectID, phone); err != nil {
		// Слияние не критично для входа: логируем и продолжаем.
		s.logger.Error("failed to merge prior state into verified identity",
			slog.String("subject_id", subjectID), slog.Any("error", err))
	}

	identity := &models.Identity{
		SubjectID:         subjectID,
		VerificationState: models.VerificationVerified,
		Phone:             phone,
	}
	token, err := s.signToken(identity)
	if err != nil {
		return nil, "", err
	}
	return identity, token, nil
}

// mergeBySharedPhone copies profiles and re-keys attendance records from any
// prior subject that holds the same contact phone.
func (s *IdentityService) mergeBySharedPhone(ctx context.Context, newSubjectID, phone string) error {
	profiles, err := s.store.List(ctx, usersCollection)
	if err != nil {
		return fmt.Errorf("failed to scan profiles: %w", err)
	}

	for _, profile := range profiles {
		if profile.Key == newSubjectID || profile.String("contact_phone") != phone {
			continue
		}
		oldSubjectID := profile.Key

		if err := s.store.Put(ctx, usersCollection, newSubjectID, profile.Fields, true); err != nil {
			return fmt.Errorf("failed to copy profile %s: %w", oldSubjectID, err)
		}
		if err := s.store.Put(ctx, identitiesCollection, oldSubjectID,
			map[string]interface{}{"superseded_by": newSubjectID}, true); err != nil {
			return fmt.Errorf("failed to mark identity %s superseded: %w", oldSubjectID, err)
		}

		for _, ev := range s.catalog.List() {
			collection := AttendeesCollection(ev.ID)
			record, err := s.store.Get(ctx, collection, oldSubjectID)
			if errors.Is(err, store.ErrDocumentNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to read attendance of %s for %s: %w", oldSubjectID, ev.ID, err)
			}
			if err := s.store.Put(ctx, collection, newSubjectID, record.Fields, true); err != nil {
				return fmt.Errorf("failed to re-key attendance for %s: %w", ev.ID, err)
			}
			if err := s.store.Delete(ctx, collection, oldSubjectID); err != nil && !errors.Is(err, store.ErrDocumentNotFound) {
				return fmt.Errorf("failed to drop old attendance for %s: %w", ev.ID, err)
			}
		}
	}
	return nil
}

func (s *IdentityService) signToken(identity *models.Identity) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      identity.SubjectID,
		"verified": identity.VerificationState == models.VerificationVerified,
		"iat":      now.Unix(),
		"exp":      now.Add(tokenTTL).Unix(),
	}
	if identity.Phone != "" {
		claims["phone"] = identity.Phone
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
