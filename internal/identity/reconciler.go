// internal/identity/reconciler.go
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Reconcile converges the fixed admin seed set: missing credentials are
// created, and every seed's profile document is upserted whether or not the
// credential already existed, repairing profiles lost between runs. One
// seed's failure never blocks the others; each outcome lands in its
// SeedResult. Running it N times converges to the same state as running it
// once. The returned error is non-nil only when the acting session could not
// be restored afterwards.
func (s *service) Reconcile(ctx context.Context, seeds []AdminSeed) ([]SeedResult, error) {
	prior := s.sessions.Snapshot()

	results := make([]SeedResult, 0, len(seeds))
	for _, seed := range seeds {
		results = append(results, s.reconcileSeed(ctx, seed))
	}

	if err := s.restoreSession(ctx, prior); err != nil {
		return results, fmt.Errorf("%w: %v", ErrSessionRestoreFailed, err)
	}
	return results, nil
}

func (s *service) reconcileSeed(ctx context.Context, seed AdminSeed) SeedResult {
	res := SeedResult{Email: seed.Email}

	methods, err := s.auth.ListSignInMethods(ctx, seed.Email)
	if err != nil {
		res.Err = fmt.Errorf("list sign-in methods for %s: %w", seed.Email, err)
		return res
	}

	var internalID uuid.UUID
	if len(methods) == 0 {
		internalID, err = s.auth.CreateCredential(ctx, seed.Email, seed.Password)
		if err != nil {
			res.Err = fmt.Errorf("create credential for %s: %w", seed.Email, err)
			return res
		}
		res.Created = true
	} else {
		internalID, err = s.auth.SignIn(ctx, seed.Email, seed.Password)
		if err != nil {
			res.Err = fmt.Errorf("recover internal id for %s: %w", seed.Email, err)
			return res
		}
	}

	dateJoined := seed.DateJoined
	plan := "None"
	expiry := ""
	settings := DefaultSettings

	// Owner-mutated fields survive the upsert: repeated reconciles converge
	// on the seed identity without resetting join date, settings or
	// membership.
	existing, err := s.profiles.Get(ctx, internalID)
	switch {
	case err == nil:
		if dateJoined == "" {
			dateJoined = existing.DateJoined
		}
		if existing.MembershipPlan != "" {
			plan = existing.MembershipPlan
		}
		expiry = existing.MembershipExpiryDate
		settings = existing.Settings
	case errors.Is(err, ErrNotFound):
	default:
		res.Err = fmt.Errorf("read existing profile for %s: %w", seed.Email, err)
		return res
	}
	if dateJoined == "" {
		dateJoined = s.now().Format(dateLayout)
	}

	profile := &Profile{
		InternalID:           internalID,
		UserID:               seed.UserID,
		Name:                 seed.Name,
		Role:                 RoleAdmin,
		Email:                strings.ToLower(seed.Email),
		DateJoined:           dateJoined,
		MembershipPlan:       plan,
		MembershipExpiryDate: expiry,
		Settings:             settings,
	}
	if err := s.profiles.Upsert(ctx, profile); err != nil {
		res.Err = fmt.Errorf("upsert profile for %s: %w", seed.Email, err)
		return res
	}
	res.Repaired = !res.Created
	return res
}
