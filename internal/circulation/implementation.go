// internal/circulation/implementation.go
package circulation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"anybook/internal/eventstore"
)

// service implements the Service interface.
type service struct {
	events  *eventstore.Store
	db      *sql.DB
	members MemberDirectory
	books   BookCatalog
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a new circulation service instance.
func NewService(events *eventstore.Store, db *sql.DB, members MemberDirectory, books BookCatalog, logger *slog.Logger) Service {
	return &service{
		events:  events,
		db:      db,
		members: members,
		books:   books,
		logger:  logger,
		now:     time.Now,
	}
}

// Checkout orchestrates the borrow saga: eligibility, availability, loan
// row, event. The loan row is the availability lock; writing it first and
// deleting it on downstream failure keeps the flip compensated.
func (s *service) Checkout(ctx context.Context, memberID, bookID uuid.UUID) (*Loan, error) {
	exists, err := s.members.MemberExists(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to check member: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("member %s not found", memberID)
	}

	overdue, err := s.hasOverdueLoan(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if overdue {
		return nil, ErrMemberIneligible
	}

	available, err := s.books.BookAvailable(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to check book: %w", err)
	}
	if !available {
		return nil, ErrBookUnavailable
	}

	now := s.now()
	loan := &Loan{
		ID:         uuid.New(),
		MemberID:   memberID,
		BookID:     bookID,
		BorrowDate: now,
		DueDate:    now.Add(loanPeriod),
		Status:     "active",
		Version:    1,
	}

	if err := s.insertLoan(ctx, loan); err != nil {
		// The partial unique index on active loans makes a concurrent
		// borrow of the same book a write conflict, not a double loan.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrBookUnavailable
		}
		return nil, fmt.Errorf("failed to insert loan: %w", err)
	}

	if err := s.append(ctx, loan.ID, 0, "BookBorrowed", BookBorrowedEvent{
		LoanID:   loan.ID,
		MemberID: memberID,
		BookID:   bookID,
		DueDate:  loan.DueDate,
	}); err != nil {
		s.compensateLoan(ctx, loan.ID)
		return nil, err
	}

	return loan, nil
}

func (s *service) insertLoan(ctx context.Context, loan *Loan) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO loans (id, member_id, book_id, borrow_date, due_date, fine, status, version)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7)
	`, loan.ID, loan.MemberID, loan.BookID, loan.BorrowDate, loan.DueDate, loan.Status, loan.Version)
	return err
}

// compensateLoan rolls back the availability lock after a downstream
// failure. A failed rollback is logged with enough context to repair by
// hand; it is not swallowed silently.
func (s *service) compensateLoan(ctx context.Context, loanID uuid.UUID) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM loans WHERE id = $1`, loanID); err != nil {
		s.logger.Error("failed to compensate loan after event append failure",
			"loan_id", loanID, "error", err)
	}
}

// Return closes the active loan and charges the overdue fine.
func (s *service) Return(ctx context.Context, memberID, bookID uuid.UUID) (*Loan, error) {
	loan, err := s.getActiveLoan(ctx, memberID, bookID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	fine := overdueFine(loan.DueDate, now)

	if err := s.append(ctx, loan.ID, loan.Version, "BookReturned", BookReturnedEvent{
		LoanID:     loan.ID,
		MemberID:   memberID,
		BookID:     bookID,
		ReturnDate: now,
		Fine:       fine,
	}); err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE loans
		SET status = 'returned', return_date = $1, fine = $2, version = version + 1
		WHERE id = $3
	`, now, fine, loan.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update read model: %w", err)
	}

	loan.ReturnDate = &now
	loan.Fine = fine
	loan.Status = "returned"
	loan.Version++
	return loan, nil
}

// overdueFine charges for every started day past the due date.
func overdueFine(dueDate, returned time.Time) float64 {
	if !returned.After(dueDate) {
		return 0
	}
	days := math.Ceil(returned.Sub(dueDate).Hours() / 24)
	return days * finePerDay
}

func (s *service) hasOverdueLoan(ctx context.Context, memberID uuid.UUID) (bool, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM loans
		WHERE member_id = $1 AND status = 'active' AND due_date < $2
	`, memberID, s.now()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check overdue loans: %w", err)
	}
	return n > 0, nil
}

func (s *service) getActiveLoan(ctx context.Context, memberID, bookID uuid.UUID) (*Loan, error) {
	loan := &Loan{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, member_id, book_id, borrow_date, due_date, fine, status, version
		FROM loans
		WHERE member_id = $1 AND book_id = $2 AND status = 'active'
	`, memberID, bookID).Scan(
		&loan.ID,
		&loan.MemberID,
		&loan.BookID,
		&loan.BorrowDate,
		&loan.DueDate,
		&loan.Fine,
		&loan.Status,
		&loan.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLoanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active loan: %w", err)
	}
	return loan, nil
}

// ListLoans returns a member's loans, most recent first.
func (s *service) ListLoans(ctx context.Context, memberID uuid.UUID) ([]*Loan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, member_id, book_id, borrow_date, due_date, return_date, fine, status, version
		FROM loans
		WHERE member_id = $1
		ORDER BY borrow_date DESC
	`, memberID)
	if err != nil {
		return nil, fmt.Errorf("query loans: %w", err)
	}
	defer rows.Close()

	var loans []*Loan
	for rows.Next() {
		loan := &Loan{}
		var returned sql.NullTime
		if err := rows.Scan(
			&loan.ID,
			&loan.MemberID,
			&loan.BookID,
			&loan.BorrowDate,
			&loan.DueDate,
			&returned,
			&loan.Fine,
			&loan.Status,
			&loan.Version,
		); err != nil {
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		if returned.Valid {
			loan.ReturnDate = &returned.Time
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate loans: %w", err)
	}
	return loans, nil
}

func (s *service) append(ctx context.Context, id uuid.UUID, expectedVersion int, eventType string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	event := eventstore.Event{
		AggregateID:   id,
		AggregateType: "loan",
		EventType:     eventType,
		EventData:     jsonData,
	}
	if err := s.events.Append(ctx, id, "loan", expectedVersion, []eventstore.Event{event}); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}
