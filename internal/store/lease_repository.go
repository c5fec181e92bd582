package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrLeaseHeld is returned when another holder owns an unexpired lease.
var ErrLeaseHeld = errors.New("lease held by another run")

// LeaseHeldError describes the current owner of a contended lease.
type LeaseHeldError struct {
	Key       string
	Holder    string
	ExpiresAt time.Time
}

func (e *LeaseHeldError) Error() string {
	return fmt.Sprintf("lease %s held by %s until %s", e.Key, e.Holder, e.ExpiresAt.Format(time.RFC3339))
}

func (e *LeaseHeldError) Is(target error) bool {
	return target == ErrLeaseHeld
}

// LeaseRepository grants exclusive, expiring claims on keys.
type LeaseRepository interface {
	// Acquire claims key for holder until now+ttl. It succeeds when the key
	// is free, expired, or already held by holder. Otherwise it returns a
	// *LeaseHeldError.
	Acquire(ctx context.Context, key, holder string, ttl time.Duration) (*Lease, error)
	// Release drops the lease if holder still owns it.
	Release(ctx context.Context, key, holder string) error
	Get(ctx context.Context, key string) (*Lease, error)
}

type leaseRepository struct {
	db  *sql.DB
	now func() time.Time
}

func newLeaseRepository(db *sql.DB) *leaseRepository {
	return &leaseRepository{db: db, now: time.Now}
}

var _ LeaseRepository = (*leaseRepository)(nil)

func (r *leaseRepository) Acquire(ctx context.Context, key, holder string, ttl time.Duration) (*Lease, error) {
	now := r.now()
	expires := now.Add(ttl)

	// The upsert only overwrites an expired row or our own; otherwise it
	// changes nothing and RowsAffected reports 0.
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO leases (key, holder, acquired_at, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			holder = excluded.holder, acquired_at = excluded.acquired_at, expires_at = excluded.expires_at
		WHERE leases.expires_at <= ? OR leases.holder = excluded.holder`,
		key, holder, now.Unix(), expires.Unix(), now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read lease result: %w", err)
	}
	if n == 0 {
		current, err := r.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, fmt.Errorf("lease %s: contended but no row found", key)
		}
		return nil, &LeaseHeldError{Key: key, Holder: current.Holder, ExpiresAt: current.ExpiresAt}
	}

	return &Lease{
		Key:        key,
		Holder:     holder,
		AcquiredAt: time.Unix(now.Unix(), 0),
		ExpiresAt:  time.Unix(expires.Unix(), 0),
	}, nil
}

func (r *leaseRepository) Release(ctx context.Context, key, holder string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM leases WHERE key = ? AND holder = ?`, key, holder); err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

// Get returns the lease row for key, or nil if there is none.
func (r *leaseRepository) Get(ctx context.Context, key string) (*Lease, error) {
	var (
		l                 Lease
		acquired, expires int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT key, holder, acquired_at, expires_at FROM leases WHERE key = ?`, key,
	).Scan(&l.Key, &l.Holder, &acquired, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lease: %w", err)
	}
	l.AcquiredAt = time.Unix(acquired, 0)
	l.ExpiresAt = time.Unix(expires, 0)
	return &l, nil
}
