package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/tripcrew/backend/internal/domain"
)

// SessionRepo stores one conversation session per sender phone number.
type SessionRepo interface {
	// Get returns the session for a digits-only phone number.
	// Returns domain.ErrNotFound if the number has no session.
	Get(ctx context.Context, phone string) (domain.ConversationSession, error)

	// Upsert records tripID as the phone's active trip at the given time.
	Upsert(ctx context.Context, s domain.ConversationSession) error

	// DeleteOlderThan purges sessions idle since before cutoff and returns
	// how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// pgSessionRepo is the Postgres implementation of SessionRepo.
type pgSessionRepo struct {
	db db
}

// NewSessionRepo constructs a SessionRepo backed by the provided db connection.
func NewSessionRepo(db db) SessionRepo {
	return &pgSessionRepo{db: db}
}

// Get returns the session row for phone.
func (r *pgSessionRepo) Get(ctx context.Context, phone string) (domain.ConversationSession, error) {
	const q = `SELECT phone, trip_id, last_activity_at FROM conversation_sessions WHERE phone = @phone`

	var (
		s      domain.ConversationSession
		tripID pgtype.UUID
	)
	if err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"phone": phone}).Scan(&s.Phone, &tripID, &s.LastActivityAt); err != nil {
		return domain.ConversationSession{}, fmt.Errorf("repo.SessionRepo.Get: %w", translate(err))
	}
	s.TripID = uuid.UUID(tripID.Bytes)
	return s, nil
}

// Upsert inserts or replaces the session; last write wins.
func (r *pgSessionRepo) Upsert(ctx context.Context, s domain.ConversationSession) error {
	const q = `
		INSERT INTO conversation_sessions (phone, trip_id, last_activity_at)
		VALUES (@phone, @trip_id, @at)
		ON CONFLICT (phone) DO UPDATE
		SET trip_id = EXCLUDED.trip_id, last_activity_at = EXCLUDED.last_activity_at`

	_, err := r.db.Exec(ctx, q, pgx.NamedArgs{"phone": s.Phone, "trip_id": s.TripID, "at": s.LastActivityAt})
	if err != nil {
		return fmt.Errorf("repo.SessionRepo.Upsert: %w", err)
	}
	return nil
}

// DeleteOlderThan removes idle sessions.
func (r *pgSessionRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM conversation_sessions WHERE last_activity_at < @cutoff`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"cutoff": cutoff})
	if err != nil {
		return 0, fmt.Errorf("repo.SessionRepo.DeleteOlderThan: %w", err)
	}
	return tag.RowsAffected(), nil
}
