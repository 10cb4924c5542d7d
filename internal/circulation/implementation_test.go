// internal/circulation/implementation_test.go
package circulation

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anybook/internal/eventstore"
)

type stubDirectory struct{ missing map[uuid.UUID]bool }

func (d *stubDirectory) MemberExists(_ context.Context, id uuid.UUID) (bool, error) {
	return !d.missing[id], nil
}

type stubCatalog struct{ unavailable map[uuid.UUID]bool }

func (c *stubCatalog) BookAvailable(_ context.Context, id uuid.UUID) (bool, error) {
	return !c.unavailable[id], nil
}

func TestOverdueFine(t *testing.T) {
	due := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		returned time.Time
		want     float64
	}{
		{"on time", due.Add(-time.Hour), 0},
		{"exactly due", due, 0},
		{"hours late charges a day", due.Add(3 * time.Hour), 0.50},
		{"one full day", due.Add(24 * time.Hour), 0.50},
		{"ten days", due.Add(10 * 24 * time.Hour), 5.00},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, overdueFine(due, tc.returned))
		})
	}
}

func TestLoanOverdue(t *testing.T) {
	now := time.Now()
	active := &Loan{DueDate: now.Add(-time.Hour)}
	assert.True(t, active.Overdue(now))

	returned := now
	closed := &Loan{DueDate: now.Add(-time.Hour), ReturnDate: &returned}
	assert.False(t, closed.Overdue(now), "a returned loan is never overdue")

	current := &Loan{DueDate: now.Add(time.Hour)}
	assert.False(t, current.Overdue(now))
}

// setupTestService connects to a local PostgreSQL instance, skipping the
// test when none is reachable.
func setupTestService(t *testing.T) (*service, *sql.DB) {
	t.Helper()

	get := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		get("PGHOST", "localhost"), get("PGPORT", "5432"),
		get("PGUSER", "user"), get("PGPASSWORD", "password"), get("PGDATABASE", "testdb"))

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)

	if err := db.Ping(); err != nil {
		t.Skipf("skipping: could not connect to postgres: %v", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			aggregate_id UUID NOT NULL,
			aggregate_type TEXT NOT NULL,
			event_type TEXT NOT NULL,
			event_data JSONB NOT NULL,
			version INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (aggregate_id, version)
		);
		CREATE TABLE IF NOT EXISTS loans (
			id UUID PRIMARY KEY,
			member_id UUID NOT NULL,
			book_id UUID NOT NULL,
			borrow_date TIMESTAMPTZ NOT NULL,
			due_date TIMESTAMPTZ NOT NULL,
			return_date TIMESTAMPTZ,
			fine NUMERIC NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			version INT NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS loans_active_book
			ON loans (book_id) WHERE status = 'active';
		TRUNCATE loans;
	`)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(eventstore.New(db), db, &stubDirectory{missing: map[uuid.UUID]bool{}},
		&stubCatalog{unavailable: map[uuid.UUID]bool{}}, logger)
	return svc.(*service), db
}

func TestCheckoutAndReturn(t *testing.T) {
	svc, db := setupTestService(t)
	defer db.Close()
	ctx := context.Background()

	memberID := uuid.New()
	bookID := uuid.New()

	loan, err := svc.Checkout(ctx, memberID, bookID)
	require.NoError(t, err)
	assert.Equal(t, "active", loan.Status)
	assert.WithinDuration(t, loan.BorrowDate.Add(loanPeriod), loan.DueDate, time.Second)

	// The same book cannot go out twice.
	_, err = svc.Checkout(ctx, uuid.New(), bookID)
	assert.ErrorIs(t, err, ErrBookUnavailable)

	returned, err := svc.Return(ctx, memberID, bookID)
	require.NoError(t, err)
	assert.Equal(t, "returned", returned.Status)
	assert.NotNil(t, returned.ReturnDate)
	assert.Zero(t, returned.Fine)

	// Once back, the book is borrowable again.
	_, err = svc.Checkout(ctx, uuid.New(), bookID)
	require.NoError(t, err)
}

func TestReturnChargesOverdueFine(t *testing.T) {
	svc, db := setupTestService(t)
	defer db.Close()
	ctx := context.Background()

	memberID := uuid.New()
	bookID := uuid.New()

	borrowTime := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return borrowTime }
	_, err := svc.Checkout(ctx, memberID, bookID)
	require.NoError(t, err)

	// Returned 6 days past the due date.
	svc.now = func() time.Time { return borrowTime.Add(20 * 24 * time.Hour) }
	returned, err := svc.Return(ctx, memberID, bookID)
	require.NoError(t, err)
	assert.InDelta(t, 3.00, returned.Fine, 0.001, "6 days late at 0.50/day")
}

func TestCheckoutRejectsOverdueMember(t *testing.T) {
	svc, db := setupTestService(t)
	defer db.Close()
	ctx := context.Background()

	memberID := uuid.New()
	borrowTime := time.Now().Add(-30 * 24 * time.Hour)
	svc.now = func() time.Time { return borrowTime }
	_, err := svc.Checkout(ctx, memberID, uuid.New())
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.Checkout(ctx, memberID, uuid.New())
	assert.ErrorIs(t, err, ErrMemberIneligible)
}

func TestCheckoutRejectsUnavailableBook(t *testing.T) {
	svc, db := setupTestService(t)
	defer db.Close()

	bookID := uuid.New()
	svc.books.(*stubCatalog).unavailable[bookID] = true

	_, err := svc.Checkout(context.Background(), uuid.New(), bookID)
	assert.ErrorIs(t, err, ErrBookUnavailable)
}

func TestReturnWithoutLoan(t *testing.T) {
	svc, db := setupTestService(t)
	defer db.Close()

	_, err := svc.Return(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrLoanNotFound)
}
