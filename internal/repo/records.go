package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/tripcrew/backend/internal/domain"
)

// RecordRepo inserts the trip records produced by applying extracted facts.
// Each insert stands alone; the apply engine does not need cross-row
// transactions.
type RecordRepo interface {
	// CreateLogistics inserts a logistics row owned by a linked user.
	CreateLogistics(ctx context.Context, rec domain.LogisticsRecord) (domain.LogisticsRecord, error)

	// CreateEvent inserts a calendar event followed by one attendee row per
	// AttendeeIDs entry.
	CreateEvent(ctx context.Context, rec domain.EventRecord) (domain.EventRecord, error)

	// CreateExpense inserts an expense row.
	CreateExpense(ctx context.Context, rec domain.ExpenseRecord) (domain.ExpenseRecord, error)
}

// pgRecordRepo is the Postgres implementation of RecordRepo.
type pgRecordRepo struct {
	db db
}

// NewRecordRepo constructs a RecordRepo backed by the provided db connection.
func NewRecordRepo(db db) RecordRepo {
	return &pgRecordRepo{db: db}
}

// CreateLogistics inserts one logistics row.
func (r *pgRecordRepo) CreateLogistics(ctx context.Context, rec domain.LogisticsRecord) (domain.LogisticsRecord, error) {
	details := rec.Details
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return domain.LogisticsRecord{}, fmt.Errorf("repo.RecordRepo.CreateLogistics: %w", err)
	}

	const q = `
		INSERT INTO logistics (trip_id, user_id, type, person_name, details, source_message_id)
		VALUES (@trip_id, @user_id, @type, @person_name, @details, @source_message_id)
		RETURNING id, created_at`

	var id pgtype.UUID
	err = r.db.QueryRow(ctx, q, pgx.NamedArgs{
		"trip_id":           rec.TripID,
		"user_id":           rec.UserID,
		"type":              string(rec.Type),
		"person_name":       rec.PersonName,
		"details":           raw,
		"source_message_id": rec.SourceMessageID,
	}).Scan(&id, &rec.CreatedAt)
	if err != nil {
		return domain.LogisticsRecord{}, fmt.Errorf("repo.RecordRepo.CreateLogistics: %w", translate(err))
	}
	rec.ID = uuid.UUID(id.Bytes)
	return rec, nil
}

// CreateEvent inserts the event row, then its attendees. An attendee insert
// failure is reported but the event row is kept.
func (r *pgRecordRepo) CreateEvent(ctx context.Context, rec domain.EventRecord) (domain.EventRecord, error) {
	const q = `
		INSERT INTO calendar_events (trip_id, title, event_date, start_time, end_time, location, created_by, source_message_id)
		VALUES (@trip_id, @title, @event_date, @start_time, @end_time, @location, @created_by, @source_message_id)
		RETURNING id, created_at`

	var id pgtype.UUID
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{
		"trip_id":           rec.TripID,
		"title":             rec.Title,
		"event_date":        rec.Date,
		"start_time":        rec.StartTime,
		"end_time":          rec.EndTime,
		"location":          rec.Location,
		"created_by":        rec.CreatedBy,
		"source_message_id": rec.SourceMessageID,
	}).Scan(&id, &rec.CreatedAt)
	if err != nil {
		return domain.EventRecord{}, fmt.Errorf("repo.RecordRepo.CreateEvent: %w", translate(err))
	}
	rec.ID = uuid.UUID(id.Bytes)

	const attendeeQ = `
		INSERT INTO calendar_event_attendees (event_id, member_id)
		VALUES (@event_id, @member_id)
		ON CONFLICT (event_id, member_id) DO NOTHING`
	for _, memberID := range rec.AttendeeIDs {
		if _, err := r.db.Exec(ctx, attendeeQ, pgx.NamedArgs{"event_id": rec.ID, "member_id": memberID}); err != nil {
			return rec, fmt.Errorf("repo.RecordRepo.CreateEvent: attendee %s: %w", memberID, err)
		}
	}
	return rec, nil
}

// CreateExpense inserts one expense row.
func (r *pgRecordRepo) CreateExpense(ctx context.Context, rec domain.ExpenseRecord) (domain.ExpenseRecord, error) {
	const q = `
		INSERT INTO expenses (trip_id, payer_member_id, amount, currency, category, description, source_message_id)
		VALUES (@trip_id, @payer_member_id, @amount, @currency, @category, @description, @source_message_id)
		RETURNING id, created_at`

	var id pgtype.UUID
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{
		"trip_id":           rec.TripID,
		"payer_member_id":   rec.PayerMemberID,
		"amount":            rec.Amount,
		"currency":          rec.Currency,
		"category":          string(rec.Category),
		"description":       rec.Description,
		"source_message_id": rec.SourceMessageID,
	}).Scan(&id, &rec.CreatedAt)
	if err != nil {
		return domain.ExpenseRecord{}, fmt.Errorf("repo.RecordRepo.CreateExpense: %w", translate(err))
	}
	rec.ID = uuid.UUID(id.Bytes)
	return rec, nil
}
