// internal/identity/allocator_test.go
package identity

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestAllocateReturnsSixDigitID(t *testing.T) {
	profiles := newFakeProfiles()
	alloc := NewAllocator(profiles)

	rapid.Check(t, func(t *rapid.T) {
		id, err := alloc.Allocate(context.Background())
		require.NoError(t, err)
		require.Len(t, id, 6)
		for _, c := range id {
			require.True(t, c >= '0' && c <= '9', "non-digit %q in %q", c, id)
		}
		n, err := profiles.CountByUserID(context.Background(), id)
		require.NoError(t, err)
		require.Zero(t, n, "allocated id %q was already taken", id)
	})
}

func TestAllocateSkipsTakenIDs(t *testing.T) {
	profiles := newFakeProfiles()
	// Occupy a slice of the space; allocation must still land on a free id.
	for i := 0; i < 50; i++ {
		p := &Profile{InternalID: uuid.New(), UserID: "10000" + string(rune('0'+i%10)), Role: RoleMember}
		require.NoError(t, profiles.Upsert(context.Background(), p))
	}
	alloc := NewAllocator(profiles)

	for i := 0; i < 100; i++ {
		id, err := alloc.Allocate(context.Background())
		require.NoError(t, err)
		n, err := profiles.CountByUserID(context.Background(), id)
		require.NoError(t, err)
		assert.Zero(t, n)
	}
}

func TestAllocateExhaustsWithinCap(t *testing.T) {
	profiles := &fullProfiles{}
	alloc := NewAllocator(profiles)

	id, err := alloc.Allocate(context.Background())
	assert.ErrorIs(t, err, ErrAllocationExhausted)
	assert.Empty(t, id)
	assert.Equal(t, allocRetryCap, profiles.checks, "must stop at the retry cap, not recurse")
}
