package models

import "time"

// Pick — квиниела: прогноз одного субъекта на одно событие.
// Адресуется парой (EventID, SubjectID), повторная отправка
// перезаписывает прогноз.
type Pick struct {
	EventID   string    `json:"event_id"`
	SubjectID string    `json:"subject_id"`
	Winner    string    `json:"winner"`
	Goals     int       `json:"goals"`
	Scorer    string    `json:"scorer"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
