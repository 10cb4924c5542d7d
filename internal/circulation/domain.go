// internal/circulation/domain.go
package circulation

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	// loanPeriod is how long a member may keep a book.
	loanPeriod = 14 * 24 * time.Hour

	// finePerDay is charged for every started day past the due date.
	finePerDay = 0.50
)

// Loan records one book borrowed by one member. A loan is active until
// ReturnDate is set; at most one active loan may exist per book.
type Loan struct {
	ID         uuid.UUID  `json:"id"`
	MemberID   uuid.UUID  `json:"memberId"`
	BookID     uuid.UUID  `json:"bookId"`
	BorrowDate time.Time  `json:"borrowDate"`
	DueDate    time.Time  `json:"dueDate"`
	ReturnDate *time.Time `json:"returnDate,omitempty"`
	Fine       float64    `json:"fine"`
	Status     string     `json:"status"`
	Version    int        `json:"version"`
}

// Overdue reports whether the loan is past due at the given instant.
func (l *Loan) Overdue(now time.Time) bool {
	return l.ReturnDate == nil && now.After(l.DueDate)
}

// BookBorrowedEvent is appended when a checkout succeeds.
type BookBorrowedEvent struct {
	LoanID   uuid.UUID `json:"loan_id"`
	MemberID uuid.UUID `json:"member_id"`
	BookID   uuid.UUID `json:"book_id"`
	DueDate  time.Time `json:"due_date"`
}

// BookReturnedEvent is appended when a book comes back, carrying any fine
// charged for the late days.
type BookReturnedEvent struct {
	LoanID     uuid.UUID `json:"loan_id"`
	MemberID   uuid.UUID `json:"member_id"`
	BookID     uuid.UUID `json:"book_id"`
	ReturnDate time.Time `json:"return_date"`
	Fine       float64   `json:"fine"`
}

var (
	// ErrBookUnavailable is returned when the book is inactive or already
	// out on loan.
	ErrBookUnavailable = errors.New("book is not available")

	// ErrMemberIneligible is returned when the member holds an overdue loan.
	ErrMemberIneligible = errors.New("member has an overdue loan")

	// ErrLoanNotFound is returned when no active loan matches.
	ErrLoanNotFound = errors.New("no active loan for this member and book")
)
