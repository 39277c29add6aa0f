package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/tripcrew/backend/internal/domain"
)

// InboundRepo defines the persistence operations for inbound messages.
type InboundRepo interface {
	// Create inserts a new message and returns the persisted record.
	// Returns domain.ErrConflict if the provider message id was already stored.
	Create(ctx context.Context, msg domain.InboundMessage) (domain.InboundMessage, error)

	// GetByID retrieves a message by primary key.
	GetByID(ctx context.Context, id uuid.UUID) (domain.InboundMessage, error)

	// GetByProviderID retrieves a message by the transport provider's message id.
	// Returns domain.ErrNotFound when the id has never been seen.
	GetByProviderID(ctx context.Context, providerID string) (domain.InboundMessage, error)

	// ListByTrip returns one page of a trip's messages, newest first, optionally
	// filtered by status (empty means all), plus the total matching count.
	ListByTrip(ctx context.Context, tripID uuid.UUID, status domain.MessageStatus, p domain.PaginationParams) ([]domain.InboundMessage, int64, error)

	// SaveExtraction stores the extraction outcome: the structured data (may be
	// nil) and the extraction error text (may be nil).
	SaveExtraction(ctx context.Context, id uuid.UUID, data *domain.Extraction, extractionErr *string) error

	// RecordAutoApply appends applied items to the audit list, replaces
	// extracted_data with remainder, and sets status. It only touches messages
	// that are still pending.
	RecordAutoApply(ctx context.Context, id uuid.UUID, status domain.MessageStatus, remainder *domain.Extraction, applied []domain.AppliedItem) error

	// Transition moves a pending message to a terminal status.
	// Returns domain.ErrConflict if the message is no longer pending.
	Transition(ctx context.Context, id uuid.UUID, to domain.MessageStatus) error

	// AppendApplied adds audit entries for a manual apply without touching status.
	AppendApplied(ctx context.Context, id uuid.UUID, applied []domain.AppliedItem) error

	// MarkReplySent flags that an acknowledgment reached the outbound channel.
	MarkReplySent(ctx context.Context, id uuid.UUID) error
}

// pgInboundRepo is the Postgres implementation of InboundRepo.
type pgInboundRepo struct {
	db db
}

// NewInboundRepo constructs an InboundRepo backed by the provided db connection.
func NewInboundRepo(db db) InboundRepo {
	return &pgInboundRepo{db: db}
}

const inboundColumns = `id, trip_id, channel, provider_message_id, sender, sender_member_id,
		raw_payload, text, extracted_data, extraction_error, status, auto_applied, reply_sent,
		created_at, updated_at`

// Create inserts an inbound message row.
func (r *pgInboundRepo) Create(ctx context.Context, msg domain.InboundMessage) (domain.InboundMessage, error) {
	extracted, err := marshalNullable(msg.Extracted)
	if err != nil {
		return domain.InboundMessage{}, fmt.Errorf("repo.InboundRepo.Create: %w", err)
	}
	applied, err := json.Marshal(nonNilApplied(msg.AutoApplied))
	if err != nil {
		return domain.InboundMessage{}, fmt.Errorf("repo.InboundRepo.Create: %w", err)
	}
	payload := []byte(msg.RawPayload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	status := msg.Status
	if status == "" {
		status = domain.StatusPending
	}

	q := `
		INSERT INTO inbound_messages (trip_id, channel, provider_message_id, sender, sender_member_id,
			raw_payload, text, extracted_data, extraction_error, status, auto_applied, reply_sent)
		VALUES (@trip_id, @channel, @provider_message_id, @sender, @sender_member_id,
			@raw_payload, @text, @extracted_data, @extraction_error, @status, @auto_applied, @reply_sent)
		RETURNING ` + inboundColumns

	args := pgx.NamedArgs{
		"trip_id":             msg.TripID,
		"channel":             string(msg.Channel),
		"provider_message_id": nullableText(msg.ProviderMessageID),
		"sender":              msg.Sender,
		"sender_member_id":    msg.SenderMemberID,
		"raw_payload":         payload,
		"text":                msg.Text,
		"extracted_data":      extracted,
		"extraction_error":    msg.ExtractionError,
		"status":              string(status),
		"auto_applied":        applied,
		"reply_sent":          msg.ReplySent,
	}

	result, err := scanInbound(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.InboundMessage{}, fmt.Errorf("repo.InboundRepo.Create: %w", translate(err))
	}
	return result, nil
}

// GetByID retrieves a message by primary key.
func (r *pgInboundRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.InboundMessage, error) {
	q := `SELECT ` + inboundColumns + ` FROM inbound_messages WHERE id = @id`

	result, err := scanInbound(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.InboundMessage{}, fmt.Errorf("repo.InboundRepo.GetByID: %w", translate(err))
	}
	return result, nil
}

// GetByProviderID is the idempotency lookup.
func (r *pgInboundRepo) GetByProviderID(ctx context.Context, providerID string) (domain.InboundMessage, error) {
	q := `SELECT ` + inboundColumns + ` FROM inbound_messages WHERE provider_message_id = @pid`

	result, err := scanInbound(r.db.QueryRow(ctx, q, pgx.NamedArgs{"pid": providerID}))
	if err != nil {
		return domain.InboundMessage{}, fmt.Errorf("repo.InboundRepo.GetByProviderID: %w", translate(err))
	}
	return result, nil
}

// ListByTrip returns one page of messages and the total count.
func (r *pgInboundRepo) ListByTrip(ctx context.Context, tripID uuid.UUID, status domain.MessageStatus, p domain.PaginationParams) ([]domain.InboundMessage, int64, error) {
	args := pgx.NamedArgs{
		"trip_id": tripID,
		"status":  string(status),
		"limit":   p.Limit,
		"offset":  p.Offset(),
	}

	const countQ = `
		SELECT count(*) FROM inbound_messages
		WHERE trip_id = @trip_id AND (@status = '' OR status = @status)`
	var total int64
	if err := r.db.QueryRow(ctx, countQ, args).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repo.InboundRepo.ListByTrip: count: %w", err)
	}

	q := `SELECT ` + inboundColumns + `
		FROM inbound_messages
		WHERE trip_id = @trip_id AND (@status = '' OR status = @status)
		ORDER BY created_at DESC, id DESC
		LIMIT @limit OFFSET @offset`

	rows, err := r.db.Query(ctx, q, args)
	if err != nil {
		return nil, 0, fmt.Errorf("repo.InboundRepo.ListByTrip: %w", err)
	}
	defer rows.Close()

	msgs := []domain.InboundMessage{}
	for rows.Next() {
		m, err := scanInbound(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("repo.InboundRepo.ListByTrip: scan: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repo.InboundRepo.ListByTrip: rows: %w", err)
	}
	return msgs, total, nil
}

// SaveExtraction stores extracted data and/or the extraction error.
func (r *pgInboundRepo) SaveExtraction(ctx context.Context, id uuid.UUID, data *domain.Extraction, extractionErr *string) error {
	extracted, err := marshalNullable(data)
	if err != nil {
		return fmt.Errorf("repo.InboundRepo.SaveExtraction: %w", err)
	}

	const q = `
		UPDATE inbound_messages
		SET extracted_data = @extracted_data, extraction_error = @extraction_error, updated_at = now()
		WHERE id = @id`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{
		"id":               id,
		"extracted_data":   extracted,
		"extraction_error": extractionErr,
	})
	if err != nil {
		return fmt.Errorf("repo.InboundRepo.SaveExtraction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.InboundRepo.SaveExtraction: %w", domain.ErrNotFound)
	}
	return nil
}

// RecordAutoApply rewrites the review remainder and appends to the audit list
// in a single statement so a reviewer never sees a half-updated row.
func (r *pgInboundRepo) RecordAutoApply(ctx context.Context, id uuid.UUID, status domain.MessageStatus, remainder *domain.Extraction, applied []domain.AppliedItem) error {
	extracted, err := marshalNullable(remainder)
	if err != nil {
		return fmt.Errorf("repo.InboundRepo.RecordAutoApply: %w", err)
	}
	items, err := json.Marshal(nonNilApplied(applied))
	if err != nil {
		return fmt.Errorf("repo.InboundRepo.RecordAutoApply: %w", err)
	}

	const q = `
		UPDATE inbound_messages
		SET status         = @status,
		    extracted_data = @extracted_data,
		    auto_applied   = auto_applied || @applied::jsonb,
		    updated_at     = now()
		WHERE id = @id AND status = 'pending'`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{
		"id":             id,
		"status":         string(status),
		"extracted_data": extracted,
		"applied":        items,
	})
	if err != nil {
		return fmt.Errorf("repo.InboundRepo.RecordAutoApply: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.InboundRepo.RecordAutoApply: %w: message not pending", domain.ErrConflict)
	}
	return nil
}

// Transition is a compare-and-set on status; exactly one caller wins.
func (r *pgInboundRepo) Transition(ctx context.Context, id uuid.UUID, to domain.MessageStatus) error {
	const q = `
		UPDATE inbound_messages
		SET status = @to, updated_at = now()
		WHERE id = @id AND status = 'pending'`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id, "to": string(to)})
	if err != nil {
		return fmt.Errorf("repo.InboundRepo.Transition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.InboundRepo.Transition: %w: message not pending", domain.ErrConflict)
	}
	return nil
}

// AppendApplied appends to the auto_applied audit list.
func (r *pgInboundRepo) AppendApplied(ctx context.Context, id uuid.UUID, applied []domain.AppliedItem) error {
	if len(applied) == 0 {
		return nil
	}
	items, err := json.Marshal(applied)
	if err != nil {
		return fmt.Errorf("repo.InboundRepo.AppendApplied: %w", err)
	}

	const q = `
		UPDATE inbound_messages
		SET auto_applied = auto_applied || @applied::jsonb, updated_at = now()
		WHERE id = @id`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id, "applied": items})
	if err != nil {
		return fmt.Errorf("repo.InboundRepo.AppendApplied: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.InboundRepo.AppendApplied: %w", domain.ErrNotFound)
	}
	return nil
}

// MarkReplySent sets reply_sent.
func (r *pgInboundRepo) MarkReplySent(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE inbound_messages SET reply_sent = true, updated_at = now() WHERE id = @id`

	if _, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id}); err != nil {
		return fmt.Errorf("repo.InboundRepo.MarkReplySent: %w", err)
	}
	return nil
}

// scanInbound maps a single database row into a domain.InboundMessage,
// decoding the JSONB columns.
func scanInbound(s scanner) (domain.InboundMessage, error) {
	var (
		m           domain.InboundMessage
		id          pgtype.UUID
		tripID      pgtype.UUID
		senderID    pgtype.UUID
		providerID  pgtype.Text
		channel     string
		status      string
		payload     []byte
		extracted   []byte
		extractErr  pgtype.Text
		autoApplied []byte
		createdAt   time.Time
		updatedAt   time.Time
	)

	err := s.Scan(&id, &tripID, &channel, &providerID, &m.Sender, &senderID,
		&payload, &m.Text, &extracted, &extractErr, &status, &autoApplied, &m.ReplySent,
		&createdAt, &updatedAt)
	if err != nil {
		return domain.InboundMessage{}, err
	}

	m.ID = uuid.UUID(id.Bytes)
	m.TripID = uuidPtr(tripID)
	m.SenderMemberID = uuidPtr(senderID)
	m.Channel = domain.Channel(channel)
	m.Status = domain.MessageStatus(status)
	m.ProviderMessageID = providerID.String
	m.RawPayload = json.RawMessage(payload)
	m.CreatedAt = createdAt
	m.UpdatedAt = updatedAt
	if extractErr.Valid {
		e := extractErr.String
		m.ExtractionError = &e
	}
	if len(extracted) > 0 {
		var x domain.Extraction
		if err := json.Unmarshal(extracted, &x); err != nil {
			return domain.InboundMessage{}, fmt.Errorf("decode extracted_data: %w", err)
		}
		m.Extracted = &x
	}
	m.AutoApplied = []domain.AppliedItem{}
	if len(autoApplied) > 0 {
		if err := json.Unmarshal(autoApplied, &m.AutoApplied); err != nil {
			return domain.InboundMessage{}, fmt.Errorf("decode auto_applied: %w", err)
		}
	}
	return m, nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows, allowing the scan
// helpers to be reused for both QueryRow and Query calls.
type scanner interface {
	Scan(dest ...any) error
}

// marshalNullable encodes v as JSON, mapping a nil pointer to SQL NULL.
func marshalNullable(v *domain.Extraction) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func nonNilApplied(items []domain.AppliedItem) []domain.AppliedItem {
	if items == nil {
		return []domain.AppliedItem{}
	}
	return items
}

// nullableText maps an empty string to SQL NULL so the UNIQUE constraint on
// provider_message_id ignores channels without a stable id.
func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
