// Package domain contains the core data types for the trip concierge.
// This package has zero external dependencies beyond uuid and is imported by
// every other internal package (repo, service, handler, pipeline stages).
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ActiveWindow is how long after its end date a trip still counts as active
// for inbound message routing.
const ActiveWindow = 7 * 24 * time.Hour

// Trip represents a travel plan shared by a group of members.
// Trips are created and edited outside this service; the concierge only reads
// them and attaches inbound messages, logistics, events and expenses.
type Trip struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Destination string     `json:"destination"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"` // nil when open-ended
	// TripCode is the short unique alphanumeric code travellers quote in
	// messages ("switch to rome") to pick a trip.
	TripCode string   `json:"trip_code"`
	Keywords []string `json:"keywords,omitempty"`
	// InboundAddress is the legacy per-trip email address, if one was issued.
	InboundAddress string    `json:"inbound_address,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IsActive reports whether the trip is inside the routing window at now:
// either it has no end date or it ended no more than ActiveWindow ago.
func (t Trip) IsActive(now time.Time) bool {
	if t.EndDate == nil {
		return true
	}
	return !t.EndDate.Before(now.Add(-ActiveWindow))
}

// MatchesText reports whether text mentions the trip code or any keyword.
// Matching is a case-insensitive substring search; blank keywords are ignored.
func (t Trip) MatchesText(text string) bool {
	lower := strings.ToLower(text)
	if lower == "" {
		return false
	}
	if code := strings.ToLower(strings.TrimSpace(t.TripCode)); code != "" && strings.Contains(lower, code) {
		return true
	}
	for _, kw := range t.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
