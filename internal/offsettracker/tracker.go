// Package offsettracker is the Offset Tracker: it decides
// where to resume the ledger subscription at startup and tracks the
// highest offset the Batch Writer has actually committed.
package offsettracker

import (
	"context"
	"fmt"
	"sync"

	"ledgersync/internal/graphdb"
)

// Tracker exposes the latest committed offset to the Stream Driver so a
// reconnect resumes with begin_exclusive = committed offset.
type Tracker struct {
	mu      sync.Mutex
	current int64
	known   bool
}

// ResumePoint determines the offset to subscribe from at startup:
//   - fresh: resume from the current ledger end, skipping all history.
//   - otherwise: the highest Transaction.offset in the graph store, or the
//     configured beginOffset if the store has none yet.
func ResumePoint(ctx context.Context, exec graphdb.Executor, fresh bool, beginOffset int64, ledgerEnd func(context.Context) (int64, error)) (int64, error) {
	if fresh {
		end, err := ledgerEnd(ctx)
		if err != nil {
			return 0, fmt.Errorf("resume point (fresh): %w", err)
		}
		return end, nil
	}

	offset, found, err := exec.LastCommittedOffset(ctx)
	if err != nil {
		return 0, fmt.Errorf("resume point: query last committed offset: %w", err)
	}
	if !found {
		return beginOffset, nil
	}
	return offset, nil
}

// New builds a Tracker seeded at the resume point determined by
// ResumePoint.
func New(seed int64) *Tracker {
	return &Tracker{current: seed, known: true}
}

// Advance records offset as committed. It is monotonic: an offset at or
// below the current value is a no-op rather than an error, since batches
// may be retried or replayed.
func (t *Tracker) Advance(offset int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.known || offset > t.current {
		t.current = offset
		t.known = true
	}
}

// Current returns the latest committed offset.
func (t *Tracker) Current() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}
