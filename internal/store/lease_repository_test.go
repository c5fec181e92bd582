package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newLeases(t *testing.T) (*leaseRepository, *clock) {
	t.Helper()
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	repo := newLeaseRepository(newTestDB(t).conn)
	repo.now = c.now
	return repo, c
}

func TestLeaseRepository_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	leases, c := newLeases(t)

	l, err := leases.Acquire(ctx, "/repo#main", "run-a", 30*time.Minute)
	require.NoError(t, err)
	require.True(t, c.t.Add(30*time.Minute).Equal(l.ExpiresAt))

	_, err = leases.Acquire(ctx, "/repo#main", "run-b", 30*time.Minute)
	require.ErrorIs(t, err, ErrLeaseHeld)
	var held *LeaseHeldError
	require.ErrorAs(t, err, &held)
	require.Equal(t, "run-a", held.Holder)

	// Other keys are independent.
	_, err = leases.Acquire(ctx, "/repo#dev", "run-b", time.Minute)
	require.NoError(t, err)

	// Re-acquiring our own lease extends it.
	c.t = c.t.Add(time.Minute)
	l, err = leases.Acquire(ctx, "/repo#main", "run-a", 30*time.Minute)
	require.NoError(t, err)
	require.True(t, c.t.Add(30*time.Minute).Equal(l.ExpiresAt))

	// Releasing someone else's lease is a no-op.
	require.NoError(t, leases.Release(ctx, "/repo#main", "run-b"))
	got, err := leases.Get(ctx, "/repo#main")
	require.NoError(t, err)
	require.Equal(t, "run-a", got.Holder)

	require.NoError(t, leases.Release(ctx, "/repo#main", "run-a"))
	got, err = leases.Get(ctx, "/repo#main")
	require.NoError(t, err)
	require.Nil(t, got)

	_, err = leases.Acquire(ctx, "/repo#main", "run-b", time.Minute)
	require.NoError(t, err)
}

func TestLeaseRepository_ExpiredLeaseCanBeTaken(t *testing.T) {
	ctx := context.Background()
	leases, c := newLeases(t)

	_, err := leases.Acquire(ctx, "k", "crashed-run", time.Minute)
	require.NoError(t, err)

	c.t = c.t.Add(59 * time.Second)
	_, err = leases.Acquire(ctx, "k", "next-run", time.Minute)
	require.ErrorIs(t, err, ErrLeaseHeld)

	c.t = c.t.Add(time.Second)
	l, err := leases.Acquire(ctx, "k", "next-run", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "next-run", l.Holder)
}

// TestLeaseRepository_AtMostOneHolder drives random acquire/release/advance
// sequences and checks that no two holders ever own the key at once.
func TestLeaseRepository_AtMostOneHolder(t *testing.T) {
	leases, c := newLeases(t)
	ctx := context.Background()
	step := 0

	rapid.Check(t, func(r *rapid.T) {
		step++
		key := fmt.Sprintf("key-%d", step)
		owner := ""
		var ownerExpires time.Time

		n := rapid.IntRange(1, 30).Draw(r, "ops")
		for range n {
			holder := rapid.SampledFrom([]string{"a", "b", "c"}).Draw(r, "holder")
			switch rapid.IntRange(0, 2).Draw(r, "op") {
			case 0:
				l, err := leases.Acquire(ctx, key, holder, time.Minute)
				free := owner == "" || owner == holder || !c.t.Before(ownerExpires)
				if free {
					if err != nil {
						r.Fatalf("acquire by %s should succeed: %v", holder, err)
					}
					owner, ownerExpires = holder, l.ExpiresAt
				} else if !errors.Is(err, ErrLeaseHeld) {
					r.Fatalf("acquire by %s while %s holds it: got %v", holder, owner, err)
				}
			case 1:
				if err := leases.Release(ctx, key, holder); err != nil {
					r.Fatal(err)
				}
				if holder == owner {
					owner = ""
				}
			case 2:
				c.t = c.t.Add(time.Duration(rapid.IntRange(1, 90).Draw(r, "seconds")) * time.Second)
			}
		}
	})
}
