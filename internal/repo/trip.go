// Package repo contains all database access logic for the trip concierge.
// Each resource has its own file with an interface and a Postgres implementation.
// No business logic lives here, only SQL and type mapping.
package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/tripcrew/backend/internal/domain"
)

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx.
// Accepting this interface instead of *pgxpool.Pool directly allows integration
// tests to pass a transaction that is rolled back after each test, giving free
// per-test isolation without any manual cleanup.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TripRepo defines the read operations the inbound pipeline needs on trips.
// Trips are created and edited elsewhere; this service never deletes them.
type TripRepo interface {
	// GetByID retrieves a single trip by its UUID primary key.
	// Returns domain.ErrNotFound if no trip with that ID exists.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error)

	// GetByCode retrieves a trip by its trip_code, case-insensitively.
	GetByCode(ctx context.Context, code string) (domain.Trip, error)

	// GetByInboundAddress retrieves a trip by its legacy per-trip email address.
	GetByInboundAddress(ctx context.Context, address string) (domain.Trip, error)

	// ListBySender returns every trip on which the sender is a member, matched
	// by lowercased email or by digits-only phone. Either key may be empty.
	// Trips are ordered by start date, most recent first.
	ListBySender(ctx context.Context, email, phoneDigits string) ([]domain.TripMembership, error)
}

// pgTripRepo is the Postgres implementation of TripRepo.
type pgTripRepo struct {
	db db
}

// NewTripRepo constructs a TripRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewTripRepo(db db) TripRepo {
	return &pgTripRepo{db: db}
}

const tripColumns = `t.id, t.name, t.destination, t.start_date, t.end_date, t.trip_code,
		t.keywords, t.inbound_address, t.created_at, t.updated_at`

// GetByID retrieves a trip by primary key.
func (r *pgTripRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	q := `SELECT ` + tripColumns + ` FROM trips t WHERE t.id = @id`

	var row tripRow
	if err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}).Scan(row.dest()...); err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.GetByID: %w", translate(err))
	}
	return row.toDomain(), nil
}

// GetByCode retrieves a trip by trip_code.
func (r *pgTripRepo) GetByCode(ctx context.Context, code string) (domain.Trip, error) {
	q := `SELECT ` + tripColumns + ` FROM trips t WHERE lower(t.trip_code) = @code`

	var row tripRow
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"code": strings.ToLower(strings.TrimSpace(code))}).Scan(row.dest()...)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.GetByCode: %w", translate(err))
	}
	return row.toDomain(), nil
}

// GetByInboundAddress retrieves a trip by its legacy inbound address.
func (r *pgTripRepo) GetByInboundAddress(ctx context.Context, address string) (domain.Trip, error) {
	q := `SELECT ` + tripColumns + ` FROM trips t WHERE lower(t.inbound_address) = @address`

	var row tripRow
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"address": domain.NormalizeEmail(address)}).Scan(row.dest()...)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.GetByInboundAddress: %w", translate(err))
	}
	return row.toDomain(), nil
}

// ListBySender joins members to trips. When the email and the phone match
// different member rows on the same trip, only the first row is kept; the
// ORDER BY puts linked members first.
func (r *pgTripRepo) ListBySender(ctx context.Context, email, phoneDigits string) ([]domain.TripMembership, error) {
	if email == "" && phoneDigits == "" {
		return nil, nil
	}

	q := `
		SELECT ` + tripColumns + `, ` + memberColumns + `
		FROM members m
		JOIN trips t ON t.id = m.trip_id
		WHERE (@email <> '' AND lower(m.email) = @email)
		   OR (@phone <> '' AND regexp_replace(m.phone, '\D', '', 'g') = @phone)
		ORDER BY t.start_date DESC NULLS LAST, t.created_at DESC, t.id,
		         m.user_id IS NULL, m.created_at`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{
		"email": domain.NormalizeEmail(email),
		"phone": phoneDigits,
	})
	if err != nil {
		return nil, fmt.Errorf("repo.TripRepo.ListBySender: %w", err)
	}
	defer rows.Close()

	var out []domain.TripMembership
	seen := make(map[uuid.UUID]bool)
	for rows.Next() {
		var (
			tr tripRow
			mr memberRow
		)
		if err := rows.Scan(append(tr.dest(), mr.dest()...)...); err != nil {
			return nil, fmt.Errorf("repo.TripRepo.ListBySender: scan: %w", err)
		}
		trip := tr.toDomain()
		if seen[trip.ID] {
			continue
		}
		seen[trip.ID] = true
		out = append(out, domain.TripMembership{Trip: trip, Member: mr.toDomain()})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.TripRepo.ListBySender: rows: %w", err)
	}
	return out, nil
}

// tripRow holds the pgtype scan targets for one trips row.
type tripRow struct {
	id             pgtype.UUID
	name           string
	destination    string
	startDate      pgtype.Date
	endDate        pgtype.Date
	tripCode       string
	keywords       []string
	inboundAddress pgtype.Text
	createdAt      time.Time
	updatedAt      time.Time
}

func (r *tripRow) dest() []any {
	return []any{&r.id, &r.name, &r.destination, &r.startDate, &r.endDate, &r.tripCode,
		&r.keywords, &r.inboundAddress, &r.createdAt, &r.updatedAt}
}

func (r *tripRow) toDomain() domain.Trip {
	return domain.Trip{
		ID:             uuid.UUID(r.id.Bytes),
		Name:           r.name,
		Destination:    r.destination,
		StartDate:      datePtr(r.startDate),
		EndDate:        datePtr(r.endDate),
		TripCode:       r.tripCode,
		Keywords:       r.keywords,
		InboundAddress: r.inboundAddress.String,
		CreatedAt:      r.createdAt,
		UpdatedAt:      r.updatedAt,
	}
}

// datePtr converts a nullable DATE column into a *time.Time.
func datePtr(d pgtype.Date) *time.Time {
	if !d.Valid {
		return nil
	}
	t := d.Time
	return &t
}

// uuidPtr converts a nullable UUID column into a *uuid.UUID.
func uuidPtr(u pgtype.UUID) *uuid.UUID {
	if !u.Valid {
		return nil
	}
	id := uuid.UUID(u.Bytes)
	return &id
}

// translate maps driver errors onto domain sentinels:
// no rows becomes ErrNotFound and a unique violation becomes ErrConflict.
func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.ConstraintName)
	}
	return err
}
