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

// StayPatch carries the member fields a member_update fact may change.
// Nil fields are left untouched.
type StayPatch struct {
	StayStart *time.Time
	StayEnd   *time.Time
	Lodging   *string
}

// MemberRepo defines the persistence operations for trip members.
// All operations are scoped by tripID to enforce ownership.
type MemberRepo interface {
	// ListByTrip returns all members of a trip, owners first, then by name.
	ListByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.Member, error)

	// GetByID retrieves a member scoped to the given trip.
	// Returns domain.ErrNotFound if no such member exists on that trip.
	GetByID(ctx context.Context, tripID, memberID uuid.UUID) (domain.Member, error)

	// Create inserts a new member and returns the persisted record.
	// Returns domain.ErrConflict if the linked user already has a member row on the trip.
	Create(ctx context.Context, m domain.Member) (domain.Member, error)

	// UpdateStay applies a StayPatch and returns the updated record.
	UpdateStay(ctx context.Context, tripID, memberID uuid.UUID, patch StayPatch) (domain.Member, error)

	// ClaimByEmail links the manually-added member whose email matches to userID.
	// Returns domain.ErrNotFound if no unclaimed member matches and
	// domain.ErrConflict if the user is already a member of the trip.
	ClaimByEmail(ctx context.Context, tripID, userID uuid.UUID, email string) (domain.Member, error)
}

// pgMemberRepo is the Postgres implementation of MemberRepo.
type pgMemberRepo struct {
	db db
}

// NewMemberRepo constructs a MemberRepo backed by the provided db connection.
func NewMemberRepo(db db) MemberRepo {
	return &pgMemberRepo{db: db}
}

const memberColumns = `m.id, m.trip_id, m.user_id, m.name, m.email, m.phone, m.role,
		m.stay_start, m.stay_end, m.lodging, m.created_at, m.updated_at`

// ListByTrip returns all members of a trip.
func (r *pgMemberRepo) ListByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.Member, error) {
	q := `SELECT ` + memberColumns + `
		FROM members m
		WHERE m.trip_id = @trip_id
		ORDER BY m.role = 'owner' DESC, m.name`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"trip_id": tripID})
	if err != nil {
		return nil, fmt.Errorf("repo.MemberRepo.ListByTrip: %w", err)
	}
	defer rows.Close()

	members := []domain.Member{}
	for rows.Next() {
		var mr memberRow
		if err := rows.Scan(mr.dest()...); err != nil {
			return nil, fmt.Errorf("repo.MemberRepo.ListByTrip: scan: %w", err)
		}
		members = append(members, mr.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.MemberRepo.ListByTrip: rows: %w", err)
	}
	return members, nil
}

// GetByID retrieves one member of a trip.
func (r *pgMemberRepo) GetByID(ctx context.Context, tripID, memberID uuid.UUID) (domain.Member, error) {
	q := `SELECT ` + memberColumns + ` FROM members m WHERE m.trip_id = @trip_id AND m.id = @id`

	var mr memberRow
	if err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"trip_id": tripID, "id": memberID}).Scan(mr.dest()...); err != nil {
		return domain.Member{}, fmt.Errorf("repo.MemberRepo.GetByID: %w", translate(err))
	}
	return mr.toDomain(), nil
}

// Create inserts a member row.
func (r *pgMemberRepo) Create(ctx context.Context, m domain.Member) (domain.Member, error) {
	role := m.Role
	if role == "" {
		role = domain.RoleMember
	}
	q := `
		INSERT INTO members AS m (trip_id, user_id, name, email, phone, role, stay_start, stay_end, lodging)
		VALUES (@trip_id, @user_id, @name, @email, @phone, @role, @stay_start, @stay_end, @lodging)
		RETURNING ` + memberColumns

	args := pgx.NamedArgs{
		"trip_id":    m.TripID,
		"user_id":    m.UserID, // nil becomes NULL
		"name":       m.Name,
		"email":      m.Email,
		"phone":      m.Phone,
		"role":       string(role),
		"stay_start": m.StayStart,
		"stay_end":   m.StayEnd,
		"lodging":    m.Lodging,
	}

	var mr memberRow
	if err := r.db.QueryRow(ctx, q, args).Scan(mr.dest()...); err != nil {
		return domain.Member{}, fmt.Errorf("repo.MemberRepo.Create: %w", translate(err))
	}
	return mr.toDomain(), nil
}

// UpdateStay overwrites only the non-nil fields of the patch.
func (r *pgMemberRepo) UpdateStay(ctx context.Context, tripID, memberID uuid.UUID, patch StayPatch) (domain.Member, error) {
	q := `
		UPDATE members AS m
		SET stay_start = CASE WHEN @set_start THEN @stay_start::date ELSE m.stay_start END,
		    stay_end   = CASE WHEN @set_end THEN @stay_end::date ELSE m.stay_end END,
		    lodging    = COALESCE(@lodging::text, m.lodging),
		    updated_at = now()
		WHERE m.trip_id = @trip_id AND m.id = @id
		RETURNING ` + memberColumns

	args := pgx.NamedArgs{
		"trip_id":    tripID,
		"id":         memberID,
		"set_start":  patch.StayStart != nil,
		"stay_start": patch.StayStart,
		"set_end":    patch.StayEnd != nil,
		"stay_end":   patch.StayEnd,
		"lodging":    patch.Lodging,
	}

	var mr memberRow
	if err := r.db.QueryRow(ctx, q, args).Scan(mr.dest()...); err != nil {
		return domain.Member{}, fmt.Errorf("repo.MemberRepo.UpdateStay: %w", translate(err))
	}
	return mr.toDomain(), nil
}

// ClaimByEmail links an unclaimed member row to a user. The NOT EXISTS guard
// keeps the (trip_id, user_id) invariant without relying on the constraint error.
func (r *pgMemberRepo) ClaimByEmail(ctx context.Context, tripID, userID uuid.UUID, email string) (domain.Member, error) {
	var exists bool
	const check = `SELECT EXISTS (SELECT 1 FROM members WHERE trip_id = @trip_id AND user_id = @user_id)`
	if err := r.db.QueryRow(ctx, check, pgx.NamedArgs{"trip_id": tripID, "user_id": userID}).Scan(&exists); err != nil {
		return domain.Member{}, fmt.Errorf("repo.MemberRepo.ClaimByEmail: %w", err)
	}
	if exists {
		return domain.Member{}, fmt.Errorf("repo.MemberRepo.ClaimByEmail: %w: user already on trip", domain.ErrConflict)
	}

	q := `
		UPDATE members AS m
		SET user_id = @user_id, updated_at = now()
		WHERE m.id = (
			SELECT id FROM members
			WHERE trip_id = @trip_id AND user_id IS NULL AND lower(email) = @email
			ORDER BY created_at
			LIMIT 1
		)
		RETURNING ` + memberColumns

	var mr memberRow
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{
		"trip_id": tripID,
		"user_id": userID,
		"email":   domain.NormalizeEmail(email),
	}).Scan(mr.dest()...)
	if err != nil {
		return domain.Member{}, fmt.Errorf("repo.MemberRepo.ClaimByEmail: %w", translate(err))
	}
	return mr.toDomain(), nil
}

// memberRow holds the pgtype scan targets for one members row.
type memberRow struct {
	id        pgtype.UUID
	tripID    pgtype.UUID
	userID    pgtype.UUID
	name      string
	email     string
	phone     string
	role      string
	stayStart pgtype.Date
	stayEnd   pgtype.Date
	lodging   string
	createdAt time.Time
	updatedAt time.Time
}

func (r *memberRow) dest() []any {
	return []any{&r.id, &r.tripID, &r.userID, &r.name, &r.email, &r.phone, &r.role,
		&r.stayStart, &r.stayEnd, &r.lodging, &r.createdAt, &r.updatedAt}
}

func (r *memberRow) toDomain() domain.Member {
	return domain.Member{
		ID:        uuid.UUID(r.id.Bytes),
		TripID:    uuid.UUID(r.tripID.Bytes),
		UserID:    uuidPtr(r.userID),
		Name:      r.name,
		Email:     r.email,
		Phone:     r.phone,
		Role:      domain.Role(r.role),
		StayStart: datePtr(r.stayStart),
		StayEnd:   datePtr(r.stayEnd),
		Lodging:   r.lodging,
		CreatedAt: r.createdAt,
		UpdatedAt: r.updatedAt,
	}
}
