// internal/identity/implementation.go
package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"anybook/internal/notify"
)

const dateLayout = "2006-01-02"

// service implements the Service interface.
type service struct {
	auth         Authenticator
	sessions     Sessions
	profiles     ProfileStore
	books        BookCounter
	notifier     notify.Notifier
	alloc        *Allocator
	loginLimiter *rate.Limiter
	provisions   metric.Int64Counter
	now          func() time.Time
}

// NewService creates a new identity service instance. books and notifier may
// be nil; the corresponding features then degrade to zero counts and no
// credential mail.
func NewService(auth Authenticator, sessions Sessions, profiles ProfileStore, books BookCounter, notifier notify.Notifier) Service {
	meter := otel.Meter("anybook/identity")
	provisions, _ := meter.Int64Counter("identity.provisions",
		metric.WithDescription("Provisioning attempts by outcome"))

	return &service{
		auth:         auth,
		sessions:     sessions,
		profiles:     profiles,
		books:        books,
		notifier:     notifier,
		alloc:        NewAllocator(profiles),
		loginLimiter: rate.NewLimiter(rate.Every(1*time.Minute), 5), // 5 requests per minute
		provisions:   provisions,
		now:          time.Now,
	}
}

// Provision creates a credential and its linked profile document. On the
// admin-initiated path the acting session is snapshotted first and restored
// before returning; when restoration fails the account (already created) is
// returned together with ErrSessionRestoreFailed.
func (s *service) Provision(ctx context.Context, req ProvisionRequest) (*ProvisionedAccount, error) {
	if err := validateProvision(req); err != nil {
		s.countProvision(ctx, "rejected")
		return nil, err
	}

	if !req.SelfRegistered {
		if err := s.requireAdmin(ctx); err != nil {
			s.countProvision(ctx, "forbidden")
			return nil, err
		}
	}

	email := strings.ToLower(strings.TrimSpace(req.LoginEmail))
	if email == "" {
		email = deriveLoginEmail(req.Name)
	}

	password := req.Password
	generated := false
	if password == "" {
		password = GeneratePassword()
		generated = true
	}

	prior := s.sessions.Snapshot()

	userID, err := s.alloc.Allocate(ctx)
	if err != nil {
		s.countProvision(ctx, "exhausted")
		return nil, err
	}

	internalID, err := s.auth.CreateCredential(ctx, email, password)
	if err != nil {
		var aerr *AuthError
		if errors.As(err, &aerr) && aerr.Code == AuthEmailInUse {
			// The credential may be an orphan from a run that died between
			// credential creation and profile write. Adopt it if so.
			id, adopted, rerr := s.adoptOrphanedCredential(ctx, email, password, prior)
			if rerr != nil {
				s.countProvision(ctx, "failed")
				return nil, rerr
			}
			if !adopted {
				s.countProvision(ctx, "failed")
				return nil, err
			}
			internalID = id
		} else {
			s.countProvision(ctx, "failed")
			return nil, err
		}
	}

	profile := &Profile{
		InternalID:     internalID,
		UserID:         userID,
		Name:           strings.TrimSpace(req.Name),
		Role:           req.Role,
		Email:          email,
		DateJoined:     s.now().Format(dateLayout),
		MembershipPlan: "None",
		Settings:       DefaultSettings,
	}
	if req.Role == RoleLibrarian {
		profile.PersonalEmail = req.PersonalEmail
		profile.GovtDocNumber = req.GovtDocNumber
	}

	if err := s.createProfile(ctx, profile); err != nil {
		s.countProvision(ctx, "failed")
		if rerr := s.restoreSession(ctx, prior); rerr != nil {
			return nil, fmt.Errorf("%w: %v (after %v)", ErrSessionRestoreFailed, rerr, err)
		}
		return nil, err
	}

	acct := &ProvisionedAccount{
		UserID:     profile.UserID,
		Name:       profile.Name,
		Role:       profile.Role,
		LoginEmail: profile.Email,
		DateJoined: profile.DateJoined,
	}
	if generated {
		acct.Password = password
	}
	s.countProvision(ctx, "provisioned")

	if req.SelfRegistered {
		// Delivery failure is reported through the result, not dropped.
		acct.VerificationSent = s.auth.SendEmailVerification(ctx, internalID) == nil
		return acct, nil
	}

	// Admin-initiated path: verify the fresh credential works, hand it to
	// the librarian, then put the acting session back.
	if _, err := s.auth.SignIn(ctx, email, password); err != nil {
		if rerr := s.restoreSession(ctx, prior); rerr != nil {
			return acct, fmt.Errorf("%w: %v (after verify failure %v)", ErrSessionRestoreFailed, rerr, err)
		}
		return acct, fmt.Errorf("verification sign-in for %s: %w", email, err)
	}

	if generated && s.notifier != nil && req.PersonalEmail != "" {
		msg := notify.CredentialsMessage(req.PersonalEmail, profile.Name, email, password)
		acct.CredentialsEmailed = s.notifier.Send(ctx, msg) == nil
	}

	if err := s.restoreSession(ctx, prior); err != nil {
		return acct, fmt.Errorf("%w: %v", ErrSessionRestoreFailed, err)
	}
	return acct, nil
}

// adoptOrphanedCredential tries to claim an existing credential that has no
// profile document. It returns adopted=false when the credential belongs to
// a complete account (the email is genuinely taken) or cannot be verified.
func (s *service) adoptOrphanedCredential(ctx context.Context, email, password string, prior Session) (uuid.UUID, bool, error) {
	id, err := s.auth.SignIn(ctx, email, password)
	if err != nil {
		return uuid.Nil, false, nil
	}

	_, err = s.profiles.Get(ctx, id)
	if err == nil || !errors.Is(err, ErrNotFound) {
		// Complete account (or a store failure): nothing to adopt. The
		// verification sign-in changed the session, so undo it first.
		if rerr := s.restoreSession(ctx, prior); rerr != nil {
			return uuid.Nil, false, fmt.Errorf("%w: %v", ErrSessionRestoreFailed, rerr)
		}
		if err == nil {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("check profile for orphaned credential: %w", err)
	}
	return id, true, nil
}

// createProfile writes the profile, retrying with a fresh id when the
// unique-constraint write reports the chosen userId was taken in the window
// between allocation and persistence.
func (s *service) createProfile(ctx context.Context, p *Profile) error {
	for attempt := 0; attempt < allocRetryCap; attempt++ {
		err := s.profiles.Create(ctx, p)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrDuplicateUserID) {
			id, aerr := s.alloc.Allocate(ctx)
			if aerr != nil {
				return aerr
			}
			p.UserID = id
			continue
		}
		return &ProfileWriteError{Err: err}
	}
	return ErrAllocationExhausted
}

// restoreSession reinstates the snapshotted session when the current one
// diverged from it. A zero snapshot means "signed out".
func (s *service) restoreSession(ctx context.Context, prior Session) error {
	cur, ok := s.sessions.Current()
	if prior == (Session{}) {
		if !ok {
			return nil
		}
		return s.auth.SignOut(ctx)
	}
	if ok && cur == prior.ID {
		return nil
	}
	return s.sessions.Restore(prior)
}

// Login authenticates and returns the caller's profile. A missing profile
// after a successful sign-in is a real failure and is propagated.
func (s *service) Login(ctx context.Context, email, password string) (*Profile, error) {
	if !s.loginLimiter.Allow() {
		return nil, fmt.Errorf("rate limit exceeded")
	}

	id, err := s.auth.SignIn(ctx, strings.ToLower(strings.TrimSpace(email)), password)
	if err != nil {
		return nil, err
	}

	profile, err := s.profiles.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch profile after sign-in: %w", err)
	}
	return profile, nil
}

// Logout ends the current session.
func (s *service) Logout(ctx context.Context) error {
	return s.auth.SignOut(ctx)
}

// RequestPasswordReset asks the authentication service to mail a reset link.
func (s *service) RequestPasswordReset(ctx context.Context, email string) error {
	if !emailShapeOK(email) {
		return &ValidationError{Field: "email", Reason: "must contain '@' and '.'"}
	}
	return s.auth.SendPasswordReset(ctx, strings.ToLower(strings.TrimSpace(email)))
}

// GetProfile retrieves a profile by its internal identifier.
func (s *service) GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return s.profiles.Get(ctx, id)
}

// UpdateSettings changes the notification/dark-mode toggles. Owner only.
func (s *service) UpdateSettings(ctx context.Context, id uuid.UUID, settings Settings) error {
	if err := s.requireOwner(id); err != nil {
		return err
	}
	return s.profiles.UpdateSettings(ctx, id, settings)
}

// UpdateMembership changes the plan and expiry date. Owner only.
func (s *service) UpdateMembership(ctx context.Context, id uuid.UUID, plan, expiryDate string) error {
	if err := s.requireOwner(id); err != nil {
		return err
	}
	if expiryDate != "" {
		if _, err := time.Parse(dateLayout, expiryDate); err != nil {
			return &ValidationError{Field: "membershipExpiryDate", Reason: "must be YYYY-MM-DD"}
		}
	}
	return s.profiles.UpdateMembership(ctx, id, plan, expiryDate)
}

func (s *service) requireOwner(id uuid.UUID) error {
	cur, ok := s.sessions.Current()
	if !ok || cur != id {
		return ErrForbidden
	}
	return nil
}

// requireAdmin resolves the acting session to its profile and checks the
// Admin role. Used by operations that mint accounts on another's behalf.
func (s *service) requireAdmin(ctx context.Context) error {
	cur, ok := s.sessions.Current()
	if !ok {
		return ErrForbidden
	}
	p, err := s.profiles.Get(ctx, cur)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrForbidden
		}
		return fmt.Errorf("resolve acting profile: %w", err)
	}
	if p.Role != RoleAdmin {
		return ErrForbidden
	}
	return nil
}

// ListUsers returns the management rows for one role bucket. Admin accounts
// never appear. An empty search matches everything.
func (s *service) ListUsers(ctx context.Context, role Role, search string) ([]UserSummary, error) {
	profiles, err := s.profiles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	needle := strings.ToLower(strings.TrimSpace(search))
	out := make([]UserSummary, 0, len(profiles))
	for _, p := range profiles {
		if p.Role == RoleAdmin {
			continue
		}
		if role == RoleLibrarian && p.Role != RoleLibrarian {
			continue
		}
		if role != RoleLibrarian && p.Role == RoleLibrarian {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(p.Name), needle) {
			continue
		}
		out = append(out, UserSummary{
			UserID:        normalizeUserID(p.UserID),
			Name:          p.Name,
			Role:          p.Role,
			Email:         p.Email,
			PersonalEmail: p.PersonalEmail,
			GovtDocNumber: p.GovtDocNumber,
			DateJoined:    p.DateJoined,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// normalizeUserID clamps a stored id to exactly 6 characters for display:
// over-long values are truncated, short legacy values keep their leading
// digits and are filled with trailing zeros. Allocated ids are always 6
// digits, so only hand-entered legacy rows are ever touched.
func normalizeUserID(id string) string {
	if id == "" {
		return id
	}
	if len(id) > 6 {
		return id[:6]
	}
	for len(id) < 6 {
		id += "0"
	}
	return id
}

// Stats returns the dashboard counters.
func (s *service) Stats(ctx context.Context) (*Stats, error) {
	users, err := s.profiles.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	stats := &Stats{Users: users}
	if s.books != nil {
		books, err := s.books.CountActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("count books: %w", err)
		}
		stats.Books = books
	}
	return stats, nil
}

func (s *service) countProvision(ctx context.Context, outcome string) {
	if s.provisions == nil {
		return
	}
	s.provisions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
