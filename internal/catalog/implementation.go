// internal/catalog/implementation.go
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"anybook/internal/eventstore"
)

// service implements the Service interface. Writes append to the event
// store first, then project into the books read model.
type service struct {
	events *eventstore.Store
	db     *sql.DB
}

// NewService creates a new catalog service instance.
func NewService(events *eventstore.Store, db *sql.DB) Service {
	return &service{
		events: events,
		db:     db,
	}
}

// AddBook validates the input and creates a new active catalog entry.
func (s *service) AddBook(ctx context.Context, in BookInput) (*Book, error) {
	if err := validateBookInput(&in); err != nil {
		return nil, err
	}

	taken, err := s.activeISBNExists(ctx, in.ISBN)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrDuplicateISBN
	}

	id := uuid.New()
	if err := s.append(ctx, id, 0, "BookAdded", BookAddedEvent{
		ID:          id,
		ISBN:        in.ISBN,
		Title:       in.Title,
		Author:      in.Author,
		Genre:       in.Genre,
		Description: in.Description,
		CoverImage:  in.CoverImage,
	}); err != nil {
		return nil, err
	}

	book := &Book{
		ID:          id,
		ISBN:        in.ISBN,
		Title:       in.Title,
		Author:      in.Author,
		Genre:       in.Genre,
		Description: in.Description,
		CoverImage:  in.CoverImage,
		Status:      "active",
		Version:     1,
	}
	if err := s.insertBook(ctx, book); err != nil {
		return nil, fmt.Errorf("failed to update read model: %w", err)
	}
	return book, nil
}

func (s *service) insertBook(ctx context.Context, b *Book) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO books (id, isbn, title, author, genre, description, cover_image, status, favorite, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
	`, b.ID, b.ISBN, b.Title, b.Author, b.Genre, b.Description, b.CoverImage, b.Status, b.Favorite, b.Version)
	if err != nil {
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

func validateBookInput(in *BookInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.Genre = strings.TrimSpace(in.Genre)
	if in.Title == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if in.Author == "" {
		return &ValidationError{Field: "author", Reason: "must not be empty"}
	}
	isbn := normalizeISBN(in.ISBN)
	if isbn == "" {
		return &ValidationError{Field: "isbn", Reason: "must not be empty"}
	}
	if !validISBN(isbn) {
		return &ValidationError{Field: "isbn", Reason: "must have 10 or 13 digits"}
	}
	in.ISBN = isbn
	return nil
}

func (s *service) activeISBNExists(ctx context.Context, isbn string) (bool, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM books WHERE isbn = $1 AND status = 'active'
	`, isbn).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check isbn uniqueness: %w", err)
	}
	return n > 0, nil
}

// GetBook retrieves a book by its ID, inactive ones included.
func (s *service) GetBook(ctx context.Context, id uuid.UUID) (*Book, error) {
	book := &Book{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, isbn, title, author, genre, description, cover_image, status, favorite, version, created_at, updated_at
		FROM books
		WHERE id = $1
	`, id).Scan(
		&book.ID,
		&book.ISBN,
		&book.Title,
		&book.Author,
		&book.Genre,
		&book.Description,
		&book.CoverImage,
		&book.Status,
		&book.Favorite,
		&book.Version,
		&book.CreatedAt,
		&book.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get book from read model: %w", err)
	}
	return book, nil
}

// UpdateBook changes a book's details. The ISBN is immutable once assigned.
func (s *service) UpdateBook(ctx context.Context, id uuid.UUID, in BookInput) (*Book, error) {
	book, err := s.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}
	in.ISBN = book.ISBN
	if err := validateBookInput(&in); err != nil {
		return nil, err
	}

	if err := s.append(ctx, id, book.Version, "BookUpdated", BookUpdatedEvent{
		ID:          id,
		Title:       in.Title,
		Author:      in.Author,
		Genre:       in.Genre,
		Description: in.Description,
		CoverImage:  in.CoverImage,
	}); err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE books
		SET title = $1, author = $2, genre = $3, description = $4, cover_image = $5,
		    version = version + 1, updated_at = NOW()
		WHERE id = $6 AND version = $7
	`, in.Title, in.Author, in.Genre, in.Description, in.CoverImage, id, book.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to update read model: %w", err)
	}

	book.Title = in.Title
	book.Author = in.Author
	book.Genre = in.Genre
	book.Description = in.Description
	book.CoverImage = in.CoverImage
	book.Version++
	return book, nil
}

// RetireBook soft-deletes a book. Its history stays in the event store and
// the row stays in the read model with status "inactive".
func (s *service) RetireBook(ctx context.Context, id uuid.UUID) error {
	book, err := s.GetBook(ctx, id)
	if err != nil {
		return err
	}

	if err := s.append(ctx, id, book.Version, "BookRetired", BookRetiredEvent{
		ID:     id,
		Status: "inactive",
	}); err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE books
		SET status = 'inactive', version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
	`, id, book.Version)
	if err != nil {
		return fmt.Errorf("failed to update read model: %w", err)
	}
	return nil
}

// ToggleFavorite flips the favorite flag.
func (s *service) ToggleFavorite(ctx context.Context, id uuid.UUID) (*Book, error) {
	book, err := s.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}

	next := !book.Favorite
	if err := s.append(ctx, id, book.Version, "BookFavoriteToggled", BookFavoriteToggledEvent{
		ID:       id,
		Favorite: next,
	}); err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE books
		SET favorite = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3
	`, next, id, book.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to update read model: %w", err)
	}

	book.Favorite = next
	book.Version++
	return book, nil
}

// ListBooks returns the active catalog sorted by title.
func (s *service) ListBooks(ctx context.Context) ([]*Book, error) {
	return s.queryBooks(ctx, `
		SELECT id, isbn, title, author, genre, description, cover_image, status, favorite, version, created_at, updated_at
		FROM books
		WHERE status = 'active'
		ORDER BY title ASC
	`)
}

// Search finds active books by title or author.
func (s *service) Search(ctx context.Context, query string) ([]*Book, error) {
	return s.queryBooks(ctx, `
		SELECT id, isbn, title, author, genre, description, cover_image, status, favorite, version, created_at, updated_at
		FROM books
		WHERE status = 'active'
		AND (title ILIKE '%' || $1 || '%' OR author ILIKE '%' || $1 || '%')
		ORDER BY title ASC
		LIMIT 50
	`, query)
}

func (s *service) queryBooks(ctx context.Context, query string, args ...interface{}) ([]*Book, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query books: %w", err)
	}
	defer rows.Close()

	var books []*Book
	for rows.Next() {
		book := &Book{}
		if err := rows.Scan(
			&book.ID,
			&book.ISBN,
			&book.Title,
			&book.Author,
			&book.Genre,
			&book.Description,
			&book.CoverImage,
			&book.Status,
			&book.Favorite,
			&book.Version,
			&book.CreatedAt,
			&book.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate books: %w", err)
	}
	return books, nil
}

// Stats summarizes the active catalog for the dashboard.
func (s *service) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(DISTINCT author),
		       COUNT(DISTINCT genre) FILTER (WHERE genre <> '')
		FROM books
		WHERE status = 'active'
	`).Scan(&stats.Total, &stats.DistinctAuthors, &stats.DistinctGenres)
	if err != nil {
		return nil, fmt.Errorf("query catalog stats: %w", err)
	}
	return stats, nil
}

// CountActive returns the number of active books.
func (s *service) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM books WHERE status = 'active'
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active books: %w", err)
	}
	return n, nil
}

func (s *service) append(ctx context.Context, id uuid.UUID, expectedVersion int, eventType string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	event := eventstore.Event{
		AggregateID:   id,
		AggregateType: "book",
		EventType:     eventType,
		EventData:     jsonData,
	}
	if err := s.events.Append(ctx, id, "book", expectedVersion, []eventstore.Event{event}); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}
