package models

import "time"

// Profile — профиль пользователя, один на subject id.
// Переживает переход anonymous → verified.
type Profile struct {
	SubjectID    string    `json:"subject_id"`
	DisplayName  string    `json:"display_name"`
	ContactPhone string    `json:"contact_phone"`
	FavoriteSide string    `json:"favorite_side,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}
