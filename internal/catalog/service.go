// internal/catalog/service.go
package catalog

import (
	"context"

	"github.com/google/uuid"
)

// BookInput carries the mutable fields of a catalog entry.
type BookInput struct {
	ISBN        string `json:"isbn"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Genre       string `json:"genre"`
	Description string `json:"description"`
	CoverImage  string `json:"coverImage"`
}

// Service defines the interface for the catalog service.
type Service interface {
	AddBook(ctx context.Context, in BookInput) (*Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (*Book, error)
	UpdateBook(ctx context.Context, id uuid.UUID, in BookInput) (*Book, error)
	RetireBook(ctx context.Context, id uuid.UUID) error
	ToggleFavorite(ctx context.Context, id uuid.UUID) (*Book, error)
	ListBooks(ctx context.Context) ([]*Book, error)
	Search(ctx context.Context, query string) ([]*Book, error)
	Stats(ctx context.Context) (*Stats, error)
	CountActive(ctx context.Context) (int64, error)
}
