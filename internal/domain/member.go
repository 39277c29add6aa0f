package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is a member's permission level on a trip.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

// Member is a participant record on a trip.
// UserID is nil for members an owner added by hand; such members can later be
// claimed by a user whose account email matches.
type Member struct {
	ID        uuid.UUID  `json:"id"`
	TripID    uuid.UUID  `json:"trip_id"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	Name      string     `json:"name"`
	Email     string     `json:"email,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Role      Role       `json:"role"`
	StayStart *time.Time `json:"stay_start,omitempty"`
	StayEnd   *time.Time `json:"stay_end,omitempty"`
	Lodging   string     `json:"lodging,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsLinked reports whether the member is tied to a user account.
func (m Member) IsLinked() bool {
	return m.UserID != nil
}

// DisplayName returns the member's name, falling back to the email address.
func (m Member) DisplayName() string {
	if n := strings.TrimSpace(m.Name); n != "" {
		return n
	}
	return strings.TrimSpace(m.Email)
}

// TripMembership pairs a trip with the sender's member record on it.
type TripMembership struct {
	Trip   Trip
	Member Member
}

// DigitsOnly strips every non-digit rune from a phone number so that
// "+1 (555) 010-2030" and "15550102030" compare equal.
func DigitsOnly(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeEmail lowercases and trims an email address for comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
