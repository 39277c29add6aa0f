package repo_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/tripcrew/backend/internal/domain"
	"github.com/pkordes/tripcrew/backend/internal/repo"
)

func TestTripRepo_GetByCode_CaseInsensitive(t *testing.T) {
	tx := newTestTx(t)
	r := repo.NewTripRepo(tx)
	ctx := context.Background()

	code := uniqueCode("rome")
	want := insertTrip(t, tx, code, nil, "colosseum")

	got, err := r.GetByCode(ctx, strings.ToUpper(code))
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, []string{"colosseum"}, got.Keywords)
	assert.Nil(t, got.EndDate)
}

func TestTripRepo_GetByID_NotFound(t *testing.T) {
	tx := newTestTx(t)
	r := repo.NewTripRepo(tx)

	_, err := r.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTripRepo_GetByInboundAddress(t *testing.T) {
	tx := newTestTx(t)
	r := repo.NewTripRepo(tx)
	ctx := context.Background()

	code := uniqueCode("nice")
	trip := insertTrip(t, tx, code, nil)
	addr := "trip-" + code + "@in.example.com"
	_, err := tx.Exec(ctx, `UPDATE trips SET inbound_address = @addr WHERE id = @id`,
		pgx.NamedArgs{"addr": addr, "id": trip.ID})
	require.NoError(t, err)

	got, err := r.GetByInboundAddress(ctx, strings.ToUpper(addr))
	require.NoError(t, err)
	assert.Equal(t, trip.ID, got.ID)
	assert.Equal(t, addr, got.InboundAddress)
}

func TestTripRepo_ListBySender(t *testing.T) {
	tx := newTestTx(t)
	trips := repo.NewTripRepo(tx)
	members := repo.NewMemberRepo(tx)
	ctx := context.Background()

	a := insertTrip(t, tx, uniqueCode("a"), datePtr(2025, 1, 10))
	b := insertTrip(t, tx, uniqueCode("b"), nil)
	other := insertTrip(t, tx, uniqueCode("c"), nil)

	email := "Sender+" + uuid.NewString()[:6] + "@Example.com"
	phone := uniquePhone()
	// Same person twice on trip a: once by email, once by phone.
	_, err := members.Create(ctx, domain.Member{TripID: a.ID, Name: "Sam", Email: email})
	require.NoError(t, err)
	_, err = members.Create(ctx, domain.Member{TripID: a.ID, Name: "Sam phone", Phone: phone})
	require.NoError(t, err)
	_, err = members.Create(ctx, domain.Member{TripID: b.ID, Name: "Sam", Phone: phone})
	require.NoError(t, err)
	_, err = members.Create(ctx, domain.Member{TripID: other.ID, Name: "Someone else", Email: "x" + email})
	require.NoError(t, err)

	t.Run("email and phone together", func(t *testing.T) {
		got, err := trips.ListBySender(ctx, domain.NormalizeEmail(email), domain.DigitsOnly(phone))
		require.NoError(t, err)
		require.Len(t, got, 2, "trip a must appear once")

		ids := []uuid.UUID{got[0].Trip.ID, got[1].Trip.ID}
		assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, ids)
	})

	t.Run("phone only", func(t *testing.T) {
		got, err := trips.ListBySender(ctx, "", domain.DigitsOnly(phone))
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("no keys", func(t *testing.T) {
		got, err := trips.ListBySender(ctx, "", "")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
