// internal/circulation/service.go
package circulation

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the circulation service.
type Service interface {
	Checkout(ctx context.Context, memberID, bookID uuid.UUID) (*Loan, error)
	Return(ctx context.Context, memberID, bookID uuid.UUID) (*Loan, error)
	ListLoans(ctx context.Context, memberID uuid.UUID) ([]*Loan, error)
}

// MemberDirectory is the slice of the identity service circulation needs.
type MemberDirectory interface {
	MemberExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// BookCatalog is the slice of the catalog service circulation needs.
type BookCatalog interface {
	BookAvailable(ctx context.Context, id uuid.UUID) (bool, error)
}
