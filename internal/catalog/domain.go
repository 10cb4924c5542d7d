// internal/catalog/domain.go
package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Book is a catalog entry. Status is "active" or "inactive"; retiring a book
// is a soft delete and inactive books stay out of listings and stats.
type Book struct {
	ID          uuid.UUID `json:"id"`
	ISBN        string    `json:"isbn"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Genre       string    `json:"genre,omitempty"`
	Description string    `json:"description,omitempty"`
	CoverImage  string    `json:"coverImage,omitempty"`
	Status      string    `json:"status"`
	Favorite    bool      `json:"favorite"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Available reports whether the book can be borrowed.
func (b *Book) Available() bool {
	return b.Status == "active"
}

// Stats is the catalog dashboard summary. Only active books count; per-book
// borrowability is the circulation service's concern.
type Stats struct {
	Total           int64 `json:"total"`
	DistinctAuthors int64 `json:"distinctAuthors"`
	DistinctGenres  int64 `json:"distinctGenres"`
}

// BookAddedEvent is appended when a new book enters the catalog.
type BookAddedEvent struct {
	ID          uuid.UUID `json:"id"`
	ISBN        string    `json:"isbn"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Genre       string    `json:"genre,omitempty"`
	Description string    `json:"description,omitempty"`
	CoverImage  string    `json:"coverImage,omitempty"`
}

// BookUpdatedEvent is appended when a book's details change.
type BookUpdatedEvent struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Genre       string    `json:"genre,omitempty"`
	Description string    `json:"description,omitempty"`
	CoverImage  string    `json:"coverImage,omitempty"`
}

// BookRetiredEvent is appended when a book is soft-deleted.
type BookRetiredEvent struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
}

// BookFavoriteToggledEvent is appended when the favorite flag flips.
type BookFavoriteToggledEvent struct {
	ID       uuid.UUID `json:"id"`
	Favorite bool      `json:"favorite"`
}

var (
	// ErrBookNotFound is returned when no book matches the identifier.
	ErrBookNotFound = errors.New("book not found")

	// ErrDuplicateISBN is returned when an active book already carries the
	// ISBN being added.
	ErrDuplicateISBN = errors.New("a book with this ISBN already exists")
)

// ValidationError reports a user-correctable input problem.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
