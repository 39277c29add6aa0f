package domain

import (
	"time"

	"github.com/google/uuid"
)

// LogisticsRecord is a transport or lodging row owned by a linked user.
// Manually-added members have no user and so cannot own logistics rows.
type LogisticsRecord struct {
	ID              uuid.UUID
	TripID          uuid.UUID
	UserID          uuid.UUID
	Type            LogisticsType
	PersonName      string
	Details         map[string]any
	SourceMessageID *uuid.UUID
	CreatedAt       time.Time
}

// EventRecord is a calendar entry with its attendee member ids.
type EventRecord struct {
	ID              uuid.UUID
	TripID          uuid.UUID
	Title           string
	Date            time.Time
	StartTime       string
	EndTime         string
	Location        string
	CreatedBy       *uuid.UUID
	AttendeeIDs     []uuid.UUID
	SourceMessageID *uuid.UUID
	CreatedAt       time.Time
}

// ExpenseRecord is an expense row. SourceMessageID back-references the
// inbound message the expense was extracted from.
type ExpenseRecord struct {
	ID              uuid.UUID
	TripID          uuid.UUID
	PayerMemberID   uuid.UUID
	Amount          float64
	Currency        string
	Category        ExpenseCategory
	Description     string
	SourceMessageID *uuid.UUID
	CreatedAt       time.Time
}
