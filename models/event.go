package models

import "time"

// Venue описывает место проведения события.
type Venue struct {
	Name    string  `json:"name"`
	Address string  `json:"address"`
	City    string  `json:"city"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// SideLabels holds the display names of the two sides of an event,
// e.g. "México" / "Japón".
type SideLabels struct {
	A string `json:"a"`
	B string `json:"b"`
}

// Event is immutable reference data loaded from configuration at startup.
type Event struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	League     string     `json:"league"`
	StartTime  time.Time  `json:"start_time"`
	Venue      Venue      `json:"venue"`
	SideLabels SideLabels `json:"side_labels"`
	PosterURL  string     `json:"poster_url,omitempty"`
}

// SideLabel returns the display label for the given side.
func (e Event) SideLabel(side Side) string {
	if side == SideB {
		return e.SideLabels.B
	}
	return e.SideLabels.A
}
