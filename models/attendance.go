package models

import "time"

// Side — одна из двух взаимоисключающих групп поддержки события.
type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

// ParseSide validates a raw side value.
func ParseSide(raw string) (Side, bool) {
	switch Side(raw) {
	case SideA:
		return SideA, true
	case SideB:
		return SideB, true
	}
	return "", false
}

// DeliveryStatus tracks whether the reservation code reached the phone.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// AttendanceRecord is the single reservation of one identity for one event.
// The record is addressed by (EventID, SubjectID), so a repeated reservation
// merges into the existing record instead of creating a duplicate.
type AttendanceRecord struct {
	EventID            string         `json:"event_id"`
	SubjectID          string         `json:"subject_id"`
	Side               Side           `json:"side"`
	TeamLabel          string         `json:"team_label"`
	DisplayName        string         `json:"display_name"`
	ContactPhone       string         `json:"contact_phone"`
	ReservationCode    string         `json:"reservation_code"`
	CodeDeliveryStatus DeliveryStatus `json:"code_delivery_status"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// AggregateCounts is derived from the full live record set of an event.
// It is never persisted and never mutated incrementally.
type AggregateCounts struct {
	Total  int `json:"total"`
	ACount int `json:"a_count"`
	BCount int `json:"b_count"`
}
