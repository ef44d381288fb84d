// Package batch is the Batch Writer: it accumulates
// per-update graph mutations and commits them to the graph store in
// single transactions, sized by count or bounded by a timeout, retrying
// transient commit failures before escalating to fatal.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ledgersync/internal/graphdb"
	"ledgersync/internal/syncerr"
)

const (
	defaultMaxUpdates = 100
	defaultMaxDelay   = time.Second
	maxCommitRetries  = 5
	commitBaseDelay   = 200 * time.Millisecond
)

// mutation is one update's worth of graph statements, tagged with the
// ledger offset it came from so a successful flush knows what to report
// to the Offset Tracker.
type mutation struct {
	offset int64
	stmts  graphdb.Batch
}

// Writer is the single consumer of a bounded mutation queue: the Stream
// Driver (producer) calls Submit; Writer's own goroutine, started by Run,
// is the sole writer to the graph store, matching a single-producer,
// single-consumer mutation queue concurrency model.
type Writer struct {
	exec   graphdb.Executor
	logger *zap.Logger

	maxUpdates int
	maxDelay   time.Duration

	queue    chan mutation
	onCommit func(offset int64)
}

// SetThresholds overrides the flush-trigger thresholds. Call before Run.
func (w *Writer) SetThresholds(maxUpdates int, maxDelay time.Duration) {
	if maxUpdates > 0 {
		w.maxUpdates = maxUpdates
	}
	if maxDelay > 0 {
		w.maxDelay = maxDelay
	}
}

// New builds a Writer. onCommit is invoked with the highest offset in
// each successfully committed flush, typically offsettracker.Tracker.Advance.
func New(exec graphdb.Executor, logger *zap.Logger, onCommit func(offset int64)) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		exec:       exec,
		logger:     logger,
		maxUpdates: defaultMaxUpdates,
		maxDelay:   defaultMaxDelay,
		queue:      make(chan mutation, defaultMaxUpdates*2),
		onCommit:   onCommit,
	}
}

// Submit enqueues one update's mutations. It blocks if the queue is full,
// naturally back-pressuring the Stream Driver.
func (w *Writer) Submit(ctx context.Context, offset int64, stmts graphdb.Batch) error {
	select {
	case w.queue <- mutation{offset: offset, stmts: stmts}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue, flushing on size or timeout, until ctx is
// cancelled or a commit fails persistently. A persistent commit failure
// is returned as a *syncerr.Error of KindFatal: the
// caller is expected to tear down the stream.
func (w *Writer) Run(ctx context.Context) error {
	var pending graphdb.Batch
	var lastOffset int64
	var haveOffset bool
	var updatesBuffered int

	timer := time.NewTimer(w.maxDelay)
	defer timer.Stop()

	flush := func() error {
		if len(pending) == 0 && !haveOffset {
			return nil
		}
		// A batch of checkpoint-only updates carries no statements but
		// still reports its offset.
		if len(pending) > 0 {
			if err := w.commitWithRetry(ctx, pending); err != nil {
				return err
			}
		}
		if haveOffset && w.onCommit != nil {
			w.onCommit(lastOffset)
		}
		pending = nil
		haveOffset = false
		updatesBuffered = 0
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			_ = flush() // best-effort final flush; shutdown wins regardless of its outcome
			return ctx.Err()

		case m, ok := <-w.queue:
			if !ok {
				return flush()
			}
			pending = append(pending, m.stmts...)
			lastOffset = m.offset
			haveOffset = true
			updatesBuffered++

			if updatesBuffered >= w.maxUpdates {
				if err := flush(); err != nil {
					return err
				}
				timer.Reset(w.maxDelay)
			}

		case <-timer.C:
			if err := flush(); err != nil {
				return err
			}
			timer.Reset(w.maxDelay)
		}
	}
}

// commitWithRetry retries a single failed commit with exponential backoff
// before escalating to a fatal error, mirroring a withRetry helper
// generalised from a fixed retry count to offset-carrying classification.
func (w *Writer) commitWithRetry(ctx context.Context, stmts graphdb.Batch) error {
	batchID := uuid.New().String()
	delay := commitBaseDelay
	var lastErr error
	for attempt := 0; attempt <= maxCommitRetries; attempt++ {
		err := w.exec.RunWrite(ctx, stmts)
		if err == nil {
			w.logger.Debug("batch committed", zap.String("batch_id", batchID), zap.Int("statements", len(stmts)))
			return nil
		}
		lastErr = err
		w.logger.Warn("batch commit failed", zap.String("batch_id", batchID), zap.Error(err), zap.Int("attempt", attempt))

		if attempt == maxCommitRetries {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return syncerr.New(syncerr.KindFatal, fmt.Errorf("commit failed after %d attempts: %w", maxCommitRetries+1, lastErr))
}
