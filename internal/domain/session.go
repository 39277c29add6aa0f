package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConversationSession remembers which trip a phone number last talked about,
// so text channels can omit the trip code on every message.
// Phone is stored digits-only. Sessions are a routing hint, not a lock.
type ConversationSession struct {
	Phone          string
	TripID         uuid.UUID
	LastActivityAt time.Time
}

// Expired reports whether the session is older than ttl at now.
// A non-positive ttl disables expiry.
func (s ConversationSession) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(s.LastActivityAt) > ttl
}
