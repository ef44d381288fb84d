// Package streamdriver is the Stream Driver: it owns the
// update-stream state machine, opening subscriptions with the Token
// Manager's current token, reconnecting with exponential backoff, and
// feeding decoded updates through the Event Projector into the Batch
// Writer.
package streamdriver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"ledgersync/internal/auth"
	"ledgersync/internal/batch"
	"ledgersync/internal/ledger"
	"ledgersync/internal/offsettracker"
	"ledgersync/internal/project"
	"ledgersync/internal/syncerr"
)

// State is one node of the subscription state machine.
type State int

const (
	StateStarting State = iota
	StateConnecting
	StateStreaming
	StateRefreshingAuth
	StateBackoff
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "Starting"
	case StateConnecting:
		return "Connecting"
	case StateStreaming:
		return "Streaming"
	case StateRefreshingAuth:
		return "RefreshingAuth"
	case StateBackoff:
		return "Backoff"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Driver runs the subscription state machine for one set of parties.
type Driver struct {
	client  *ledger.Client
	tokens  *auth.Manager
	writer  *batch.Writer
	tracker *offsettracker.Tracker
	logger  *zap.Logger

	parties      []string
	endInclusive *int64
	needsACSLoad bool

	backoffMin   time.Duration
	backoffMax   time.Duration
	backoffDelay time.Duration
	lastErr      error
}

// New builds a Driver. needsACSLoad should be true only on a true
// first-time setup: the orchestrator decides this by
// checking graphdb.Executor.ACSLoaded combined with --fresh.
func New(client *ledger.Client, tokens *auth.Manager, writer *batch.Writer, tracker *offsettracker.Tracker, parties []string, endInclusive *int64, needsACSLoad bool, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		client:       client,
		tokens:       tokens,
		writer:       writer,
		tracker:      tracker,
		logger:       logger,
		parties:      parties,
		endInclusive: endInclusive,
		needsACSLoad: needsACSLoad,
		backoffMin:   time.Second,
		backoffMax:   60 * time.Second,
		backoffDelay: time.Second,
	}
}

// SetBackoff overrides the reconnect backoff bounds. Call before Run.
func (d *Driver) SetBackoff(min, max time.Duration) {
	if min > 0 {
		d.backoffMin = min
		d.backoffDelay = min
	}
	if max > 0 {
		d.backoffMax = max
	}
}

// Run drives the state machine until it reaches Done (clean end of a
// bounded subscription) or Failed (a fatal error, returned to the
// caller), or ctx is cancelled.
func (d *Driver) Run(ctx context.Context) error {
	state := StateStarting
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		d.logger.Debug("stream driver state", zap.String("state", state.String()))

		switch state {
		case StateStarting:
			if d.needsACSLoad {
				if err := d.loadACS(ctx); err != nil {
					d.lastErr = err
					state = d.stateAfterError(err)
					continue
				}
				d.needsACSLoad = false
			}
			state = StateConnecting

		case StateConnecting:
			state = d.connect(ctx)

		case StateRefreshingAuth:
			if err := d.tokens.RequestRefresh(ctx); err != nil {
				d.lastErr = fmt.Errorf("auth refresh: %w", err)
				return syncerr.AsFatal(d.lastErr)
			}
			state = StateConnecting

		case StateBackoff:
			if err := d.sleepBackoff(ctx); err != nil {
				return err
			}
			state = StateConnecting

		case StateDone:
			return nil

		case StateFailed:
			return syncerr.AsFatal(d.lastErr)
		}
	}
}

// connect opens the subscription and streams updates until the stream
// ends or errors, returning the next state.
func (d *Driver) connect(ctx context.Context) State {
	token, err := d.tokens.CurrentToken(ctx)
	if err != nil {
		d.lastErr = err
		return StateRefreshingAuth
	}

	begin := d.tracker.Current()
	stream, err := d.client.Subscribe(ctx, token, d.parties, begin, d.endInclusive)
	if err != nil {
		d.lastErr = err
		return d.stateAfterError(err)
	}
	d.backoffDelay = d.backoffMin

	for {
		update, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if d.endInclusive != nil {
					return StateDone
				}
				return StateBackoff
			}
			d.lastErr = err
			return d.stateAfterError(err)
		}

		mutations, err := project.Project(update)
		if err != nil {
			d.lastErr = syncerr.New(syncerr.KindProtocolMalformed, err)
			return StateFailed
		}
		if err := d.writer.Submit(ctx, update.Offset(), mutations); err != nil {
			d.lastErr = err
			return d.stateAfterError(err)
		}
	}
}

// loadACS fetches the Active Contract Set as of the current ledger end
// and injects synthesised Created entries into the writer, then seeds the
// tracker at that ledger end so the first subscribe resumes from there.
func (d *Driver) loadACS(ctx context.Context) error {
	token, err := d.tokens.CurrentToken(ctx)
	if err != nil {
		return err
	}

	end, err := d.client.LedgerEnd(ctx, token)
	if err != nil {
		return err
	}

	acs, err := d.client.ActiveContractSet(ctx, token, d.parties, end)
	if err != nil {
		return err
	}

	count := 0
	for {
		ev, err := acs.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		mutations := project.ActiveContract(ev)
		if err := d.writer.Submit(ctx, -1, mutations); err != nil {
			return err
		}
		count++
	}

	d.logger.Info("loaded active contract set", zap.Int("contracts", count), zap.Int64("ledger_end", end))
	d.tracker.Advance(end)
	return nil
}

// stateAfterError classifies err into the next state to transition to.
func (d *Driver) stateAfterError(err error) State {
	switch {
	case syncerr.Is(err, syncerr.KindAuthExpired):
		return StateRefreshingAuth
	case syncerr.Is(err, syncerr.KindAuthDenied):
		return StateFailed
	case syncerr.Is(err, syncerr.KindDataPruned):
		return StateFailed
	case syncerr.Is(err, syncerr.KindProtocolMalformed):
		return StateFailed
	case syncerr.Is(err, syncerr.KindFatal):
		return StateFailed
	default:
		return StateBackoff
	}
}

func (d *Driver) sleepBackoff(ctx context.Context) error {
	d.logger.Warn("reconnecting after backoff", zap.Duration("delay", d.backoffDelay), zap.Error(d.lastErr))
	timer := time.NewTimer(d.backoffDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	d.backoffDelay *= 2
	if d.backoffDelay > d.backoffMax {
		d.backoffDelay = d.backoffMax
	}
	return nil
}
