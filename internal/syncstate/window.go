// Package syncstate decides what subset of remote history a run must fetch
// and which fetched records are already durably represented and can be
// skipped.
package syncstate

import (
	"context"
	"fmt"
	"time"
)

// DefaultLookbackDays bounds the first-run bootstrap fetch window.
const DefaultLookbackDays = 60

// WindowStore is the slice of the graph store the window tracker needs.
type WindowStore interface {
	RootLastSyncedAt(ctx context.Context, rootID string) (time.Time, bool, error)
	SetRootLastSyncedAt(ctx context.Context, rootID string, ts time.Time) error
}

// WindowTracker maintains per-root (repository or project) last-synced-at
// bookkeeping and computes the fetch window for each run.
type WindowTracker struct {
	store WindowStore
	now   func() time.Time
}

// NewWindowTracker creates a tracker over the given store.
func NewWindowTracker(store WindowStore) *WindowTracker {
	return &WindowTracker{store: store, now: time.Now}
}

// LastSyncedAt returns the stored marker, or found=false when the repository
// was never fully synced.
func (t *WindowTracker) LastSyncedAt(ctx context.Context, repoID string) (time.Time, bool, error) {
	return t.store.RootLastSyncedAt(ctx, repoID)
}

// ComputeFetchSince returns the lower time boundary for this run's fetches:
// the prior marker verbatim when one exists (incremental mode), otherwise
// now minus the bootstrap lookback.
func (t *WindowTracker) ComputeFetchSince(ctx context.Context, repoID string, lookbackDays int) (time.Time, error) {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}

	last, found, err := t.store.RootLastSyncedAt(ctx, repoID)
	if err != nil {
		return time.Time{}, fmt.Errorf("compute fetch window for %s: %w", repoID, err)
	}
	if found {
		return last, nil
	}
	return t.now().UTC().AddDate(0, 0, -lookbackDays), nil
}

// UpdateLastSyncedAt advances the marker to the current UTC instant. Call
// only after the corresponding fetch-and-write pass completed without a fatal
// error; a partial failure must leave the marker untouched so the next run
// re-examines the same window.
func (t *WindowTracker) UpdateLastSyncedAt(ctx context.Context, repoID string) error {
	if err := t.store.SetRootLastSyncedAt(ctx, repoID, t.now().UTC()); err != nil {
		return fmt.Errorf("update last_synced_at for %s: %w", repoID, err)
	}
	return nil
}
