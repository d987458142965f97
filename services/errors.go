package services

import "errors"

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	// Ошибки валидации — до любой записи, частичного состояния не остаётся
	ErrValidationFailed     = errors.New("validation failed")
	ErrInvalidSide          = errors.New("side must be A or B")
	ErrDisplayNameRequired  = errors.New("display name is required")
	ErrInvalidPhone         = errors.New("phone must be in international format")
	ErrFavoriteSideRequired = errors.New("favorite side is required before a first-time reservation")

	// Ресурсы
	ErrEventNotFound      = errors.New("event not found")
	ErrAttendanceNotFound = errors.New("attendance record not found")
	ErrPickNotFound       = errors.New("pick not found")
	ErrPickIncomplete     = errors.New("winner, goals and scorer are all required")

	// Хранилище: вызов падает целиком, retry на стороне клиента
	ErrPersistenceFailed = errors.New("persistence failed")

	// Доставка кода: запись уже сохранена, отката нет
	ErrDeliveryFailed = errors.New("code delivery failed")

	// Идентификация
	ErrAuthenticationRequired   = errors.New("authentication required")
	ErrChallengeInvalid         = errors.New("verification challenge invalid or expired")
	ErrVerificationCodeMismatch = errors.New("verification code does not match")
	ErrForbiddenOperation       = errors.New("operation not allowed for the current user")
)
