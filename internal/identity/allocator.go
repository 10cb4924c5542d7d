// internal/identity/allocator.go
package identity

import (
	"context"
	"fmt"
	"math/rand/v2"
)

const (
	userIDMin = 100000
	userIDMax = 999999

	// allocRetryCap bounds the draw-and-check loop. With 900,000 possible
	// ids a cap this size only trips when the space is nearly full.
	allocRetryCap = 20
)

// Allocator hands out 6-digit numeric user ids that were free at the moment
// of the check. The check-then-write window is closed by the profile store's
// unique-constraint write, not here.
type Allocator struct {
	profiles ProfileStore
}

// NewAllocator creates an allocator backed by the given profile store.
func NewAllocator(profiles ProfileStore) *Allocator {
	return &Allocator{profiles: profiles}
}

// Allocate draws random ids until one is unused, up to allocRetryCap
// attempts, then fails with ErrAllocationExhausted.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < allocRetryCap; attempt++ {
		id := fmt.Sprintf("%06d", rand.IntN(userIDMax-userIDMin+1)+userIDMin)

		n, err := a.profiles.CountByUserID(ctx, id)
		if err != nil {
			return "", fmt.Errorf("check user id %s: %w", id, err)
		}
		if n == 0 {
			return id, nil
		}
	}
	return "", ErrAllocationExhausted
}
