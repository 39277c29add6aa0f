package repo_test

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/tripcrew/backend/internal/domain"
	"github.com/pkordes/tripcrew/backend/testutil"
)

// newTestTx opens a transaction against the test database. The transaction is
// rolled back when the test finishes, giving free per-test isolation.
func newTestTx(t *testing.T) pgx.Tx {
	t.Helper()
	pool := testutil.NewPool(t)

	tx, err := pool.Begin(context.Background())
	require.NoError(t, err, "begin transaction")

	t.Cleanup(func() {
		_ = tx.Rollback(context.Background())
	})
	return tx
}

// insertTrip writes a trips row directly; trips are created outside this
// service so TripRepo has no Create.
func insertTrip(t *testing.T, tx pgx.Tx, code string, end *time.Time, keywords ...string) domain.Trip {
	t.Helper()
	if keywords == nil {
		keywords = []string{}
	}
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	var id uuid.UUID
	err := tx.QueryRow(context.Background(), `
		INSERT INTO trips (name, destination, start_date, end_date, trip_code, keywords)
		VALUES (@name, @dest, @start, @end, @code, @keywords)
		RETURNING id`,
		pgx.NamedArgs{
			"name":     "Trip " + code,
			"dest":     "Somewhere",
			"start":    start,
			"end":      end,
			"code":     code,
			"keywords": keywords,
		}).Scan(&id)
	require.NoError(t, err, "insert trip %s", code)

	return domain.Trip{ID: id, Name: "Trip " + code, TripCode: code, EndDate: end, Keywords: keywords}
}

// uniqueCode returns a trip code that will not collide with rows left by
// other packages sharing the test database.
func uniqueCode(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

// uniquePhone returns a formatted phone number with random digits.
func uniquePhone() string {
	return fmt.Sprintf("+1 (555) %07d", rand.IntN(10_000_000))
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}
