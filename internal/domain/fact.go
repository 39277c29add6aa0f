package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FactKind tags the five kinds of structured facts extracted from a message.
type FactKind string

const (
	KindMemberUpdate  FactKind = "member_update"
	KindNewTraveler   FactKind = "new_traveler"
	KindLogistics     FactKind = "logistics_item"
	KindCalendarEvent FactKind = "calendar_event"
	KindExpense       FactKind = "expense"
)

// Fact is one structured item extracted from an inbound message.
// The interface is sealed: MemberUpdate, NewTraveler, LogisticsItem,
// CalendarEvent and Expense are its only implementations, so a type switch
// over them is exhaustive.
type Fact interface {
	Kind() FactKind
	// Describe returns a short human-readable line for replies and audit.
	Describe() string
	isFact()
}

// MemberUpdate changes stay dates or lodging on an existing member.
// MatchedExisting is the extractor's claim that MemberName refers to someone
// already on the roster; MemberID is set when it could name the record.
type MemberUpdate struct {
	MemberID        string `json:"member_id,omitempty"`
	MemberName      string `json:"member_name"`
	MatchedExisting bool   `json:"matched_existing"`
	StayStart       string `json:"stay_start,omitempty"`
	StayEnd         string `json:"stay_end,omitempty"`
	Lodging         string `json:"lodging,omitempty"`
}

// NewTraveler is a person mentioned in a message who is not yet a member.
type NewTraveler struct {
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	StayStart string `json:"stay_start,omitempty"`
	StayEnd   string `json:"stay_end,omitempty"`
	Lodging   string `json:"lodging,omitempty"`
}

// LogisticsType classifies a transport or lodging entry.
type LogisticsType string

const (
	LogisticsFlight  LogisticsType = "flight"
	LogisticsTrain   LogisticsType = "train"
	LogisticsBus     LogisticsType = "bus"
	LogisticsCar     LogisticsType = "car"
	LogisticsFerry   LogisticsType = "ferry"
	LogisticsLodging LogisticsType = "lodging"
	LogisticsOther   LogisticsType = "other"
)

// Normalize maps unknown values to LogisticsOther.
func (t LogisticsType) Normalize() LogisticsType {
	switch v := LogisticsType(strings.ToLower(strings.TrimSpace(string(t)))); v {
	case LogisticsFlight, LogisticsTrain, LogisticsBus, LogisticsCar, LogisticsFerry, LogisticsLodging:
		return v
	default:
		return LogisticsOther
	}
}

// LogisticsItem is a transport or lodging entry for one person.
// Details is a free-form bag (flight number, times, confirmation code...).
type LogisticsItem struct {
	Type       LogisticsType  `json:"type"`
	PersonName string         `json:"person_name"`
	Details    map[string]any `json:"details,omitempty"`
}

// CalendarEvent is a dated, optionally timed, group activity.
type CalendarEvent struct {
	Title     string   `json:"title"`
	Date      string   `json:"date"`
	StartTime string   `json:"start_time,omitempty"`
	EndTime   string   `json:"end_time,omitempty"`
	Location  string   `json:"location,omitempty"`
	Attendees []string `json:"attendees,omitempty"`
}

// ExpenseCategory buckets an expense.
type ExpenseCategory string

const (
	CategoryFood       ExpenseCategory = "food"
	CategoryLodging    ExpenseCategory = "lodging"
	CategoryTransport  ExpenseCategory = "transport"
	CategoryActivities ExpenseCategory = "activities"
	CategoryShopping   ExpenseCategory = "shopping"
	CategoryOther      ExpenseCategory = "other"
)

// Normalize maps unknown values to CategoryOther.
func (c ExpenseCategory) Normalize() ExpenseCategory {
	switch v := ExpenseCategory(strings.ToLower(strings.TrimSpace(string(c)))); v {
	case CategoryFood, CategoryLodging, CategoryTransport, CategoryActivities, CategoryShopping:
		return v
	default:
		return CategoryOther
	}
}

// Expense is money spent on behalf of the group.
// Both payer fields empty means the sender paid.
type Expense struct {
	Description   string          `json:"description"`
	Amount        float64         `json:"amount"`
	Currency      string          `json:"currency,omitempty"`
	Category      ExpenseCategory `json:"category,omitempty"`
	PayerName     string          `json:"payer_name,omitempty"`
	PayerMemberID string          `json:"payer_member_id,omitempty"`
}

// HasPayer reports whether the extractor named a payer at all.
func (e Expense) HasPayer() bool {
	return strings.TrimSpace(e.PayerName) != "" || strings.TrimSpace(e.PayerMemberID) != ""
}

func (MemberUpdate) Kind() FactKind  { return KindMemberUpdate }
func (NewTraveler) Kind() FactKind   { return KindNewTraveler }
func (LogisticsItem) Kind() FactKind { return KindLogistics }
func (CalendarEvent) Kind() FactKind { return KindCalendarEvent }
func (Expense) Kind() FactKind       { return KindExpense }

func (MemberUpdate) isFact()  {}
func (NewTraveler) isFact()   {}
func (LogisticsItem) isFact() {}
func (CalendarEvent) isFact() {}
func (Expense) isFact()       {}

func (f MemberUpdate) Describe() string {
	var parts []string
	if f.StayStart != "" || f.StayEnd != "" {
		parts = append(parts, fmt.Sprintf("stay %s to %s", orDash(f.StayStart), orDash(f.StayEnd)))
	}
	if f.Lodging != "" {
		parts = append(parts, "lodging "+f.Lodging)
	}
	if len(parts) == 0 {
		return "update for " + f.MemberName
	}
	return fmt.Sprintf("%s: %s", f.MemberName, strings.Join(parts, ", "))
}

func (f NewTraveler) Describe() string {
	return "new traveler " + f.Name
}

func (f LogisticsItem) Describe() string {
	return fmt.Sprintf("%s for %s", f.Type.Normalize(), orDash(f.PersonName))
}

func (f CalendarEvent) Describe() string {
	if f.StartTime != "" {
		return fmt.Sprintf("%s on %s at %s", f.Title, f.Date, f.StartTime)
	}
	return fmt.Sprintf("%s on %s", f.Title, f.Date)
}

func (f Expense) Describe() string {
	cur := strings.ToUpper(strings.TrimSpace(f.Currency))
	if cur == "" {
		cur = "?"
	}
	return fmt.Sprintf("%s %.2f %s", f.Description, f.Amount, cur)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// Extraction is the JSON contract exchanged with the extraction service:
// one array per fact kind plus free-text notes and a one-line summary.
// It is also the shape persisted in inbound_messages.extracted_data.
type Extraction struct {
	MemberUpdates  []MemberUpdate  `json:"member_updates"`
	NewTravelers   []NewTraveler   `json:"new_travelers"`
	Logistics      []LogisticsItem `json:"logistics"`
	CalendarEvents []CalendarEvent `json:"calendar_events"`
	Expenses       []Expense       `json:"expenses"`
	Notes          string          `json:"notes"`
	Summary        string          `json:"summary"`
}

// Facts flattens the extraction into a single ordered slice:
// member updates, new travelers, logistics, events, expenses.
func (e Extraction) Facts() []Fact {
	facts := make([]Fact, 0, e.Len())
	for _, f := range e.MemberUpdates {
		facts = append(facts, f)
	}
	for _, f := range e.NewTravelers {
		facts = append(facts, f)
	}
	for _, f := range e.Logistics {
		facts = append(facts, f)
	}
	for _, f := range e.CalendarEvents {
		facts = append(facts, f)
	}
	for _, f := range e.Expenses {
		facts = append(facts, f)
	}
	return facts
}

// Len returns the total number of facts across all kinds.
func (e Extraction) Len() int {
	return len(e.MemberUpdates) + len(e.NewTravelers) + len(e.Logistics) +
		len(e.CalendarEvents) + len(e.Expenses)
}

// NewExtraction regroups facts by kind, preserving their relative order.
// Every slice is non-nil so the persisted JSON always carries all five arrays.
func NewExtraction(facts []Fact, notes, summary string) Extraction {
	e := Extraction{
		MemberUpdates:  []MemberUpdate{},
		NewTravelers:   []NewTraveler{},
		Logistics:      []LogisticsItem{},
		CalendarEvents: []CalendarEvent{},
		Expenses:       []Expense{},
		Notes:          notes,
		Summary:        summary,
	}
	for _, f := range facts {
		switch v := f.(type) {
		case MemberUpdate:
			e.MemberUpdates = append(e.MemberUpdates, v)
		case NewTraveler:
			e.NewTravelers = append(e.NewTravelers, v)
		case LogisticsItem:
			e.Logistics = append(e.Logistics, v)
		case CalendarEvent:
			e.CalendarEvents = append(e.CalendarEvents, v)
		case Expense:
			e.Expenses = append(e.Expenses, v)
		}
	}
	return e
}

// AppliedItem is one audit entry recording a fact that reached the data store.
type AppliedItem struct {
	Kind        FactKind   `json:"kind"`
	Description string     `json:"description"`
	RecordID    *uuid.UUID `json:"record_id,omitempty"`
	ActorID     uuid.UUID  `json:"actor_member_id"`
	AppliedAt   time.Time  `json:"applied_at"`
}

// DateLayout is the calendar-date format used throughout the extraction contract.
const DateLayout = "2006-01-02"

// ParseDate parses an optional "YYYY-MM-DD" string.
// An empty string yields nil without error.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", ErrValidation, s)
	}
	return &t, nil
}
