// internal/identity/service.go
package identity

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the identity service.
type Service interface {
	Provision(ctx context.Context, req ProvisionRequest) (*ProvisionedAccount, error)
	Reconcile(ctx context.Context, seeds []AdminSeed) ([]SeedResult, error)
	Login(ctx context.Context, email, password string) (*Profile, error)
	Logout(ctx context.Context) error
	RequestPasswordReset(ctx context.Context, email string) error
	GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error)
	UpdateSettings(ctx context.Context, id uuid.UUID, settings Settings) error
	UpdateMembership(ctx context.Context, id uuid.UUID, plan, expiryDate string) error
	ListUsers(ctx context.Context, role Role, search string) ([]UserSummary, error)
	Stats(ctx context.Context) (*Stats, error)
}

// Authenticator is the slice of the authentication service this package
// consumes. Implementations return *AuthError for classified failures.
type Authenticator interface {
	CreateCredential(ctx context.Context, email, password string) (uuid.UUID, error)
	SignIn(ctx context.Context, email, password string) (uuid.UUID, error)
	SignOut(ctx context.Context) error
	SendPasswordReset(ctx context.Context, email string) error
	SendEmailVerification(ctx context.Context, id uuid.UUID) error
	ListSignInMethods(ctx context.Context, email string) ([]string, error)
}

// Session is a restorable snapshot of the acting identity. The zero value
// means "no session".
type Session struct {
	ID    uuid.UUID
	Token string
}

// Sessions is the injected accessor for the acting session, replacing any
// ambient global. Snapshot before a flow that signs in as someone else,
// Restore afterwards.
type Sessions interface {
	Current() (uuid.UUID, bool)
	Snapshot() Session
	Restore(s Session) error
}

// ProfileStore is the slice of the document store holding profiles.
type ProfileStore interface {
	Get(ctx context.Context, id uuid.UUID) (*Profile, error)
	// Create fails with ErrDuplicateUserID when the profile's userId is
	// already held, enforcing uniqueness at write time.
	Create(ctx context.Context, p *Profile) error
	Upsert(ctx context.Context, p *Profile) error
	UpdateSettings(ctx context.Context, id uuid.UUID, settings Settings) error
	UpdateMembership(ctx context.Context, id uuid.UUID, plan, expiryDate string) error
	FindByEmail(ctx context.Context, email string) (*Profile, error)
	CountByUserID(ctx context.Context, userID string) (int64, error)
	List(ctx context.Context) ([]*Profile, error)
	Count(ctx context.Context) (int64, error)
}

// BookCounter exposes the catalog count the admin dashboard shows. Nil is
// tolerated by the service and reported as zero books.
type BookCounter interface {
	CountActive(ctx context.Context) (int64, error)
}
