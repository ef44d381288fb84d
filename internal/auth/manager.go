// Package auth is the Token Manager: it acquires bearer
// credentials from a Source and exposes the current one to the rest of the
// engine, refreshing proactively before expiry and reactively on demand.
package auth

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrAuthUnavailable is returned by CurrentToken when the cached token has
// expired and no refresh has yet succeeded.
var ErrAuthUnavailable = fmt.Errorf("auth: no valid token available")

const refreshSafetyMargin = 60 * time.Second

// Manager is the single logical actor owning the current token. All state
// transitions serialise under mu; CurrentToken reads a lock-free atomic
// snapshot after the first successful fetch.
type Manager struct {
	source Source
	logger *zap.Logger

	minBackoff time.Duration
	maxBackoff time.Duration

	current atomic.Pointer[Token]

	mu          sync.Mutex
	refreshOnce chan struct{} // non-nil while a reactive refresh is in flight
}

// NewManager builds a Manager around source. Call Start to begin proactive
// refresh. CurrentToken does not block: until Start's first fetch has
// succeeded it returns ErrAuthUnavailable.
func NewManager(source Source, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{source: source, logger: logger, minBackoff: time.Second, maxBackoff: 60 * time.Second}
}

// SetBackoff overrides the refresh backoff bounds. Call before Start.
func (m *Manager) SetBackoff(min, max time.Duration) {
	if min > 0 {
		m.minBackoff = min
	}
	if max > 0 {
		m.maxBackoff = max
	}
}

// Start performs the initial fetch and then runs the proactive refresh
// loop until ctx is cancelled. It returns after the first fetch succeeds
// (or ctx is cancelled first), continuing the refresh loop in the
// background.
func (m *Manager) Start(ctx context.Context) error {
	tok, err := m.refreshWithBackoff(ctx)
	if err != nil {
		return err
	}
	m.current.Store(tok)
	go m.refreshLoop(ctx)
	return nil
}

// CurrentToken returns a bearer credential believed to be valid. If the
// cached token has expired and no fresher one has landed yet, it returns
// ErrAuthUnavailable rather than blocking.
func (m *Manager) CurrentToken(context.Context) (string, error) {
	tok := m.current.Load()
	if tok == nil {
		return "", ErrAuthUnavailable
	}
	if tok.expired(nowFunc()) {
		return "", ErrAuthUnavailable
	}
	return tok.Value, nil
}

// RequestRefresh asks for an out-of-band refresh, typically after the
// Stream Driver observes an Unauthenticated error. Concurrent calls
// deduplicate onto a single in-flight fetch. It blocks until that fetch
// completes.
func (m *Manager) RequestRefresh(ctx context.Context) error {
	m.mu.Lock()
	if m.refreshOnce != nil {
		wait := m.refreshOnce
		m.mu.Unlock()
		select {
		case <-wait:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	done := make(chan struct{})
	m.refreshOnce = done
	m.mu.Unlock()

	tok, err := m.source.Fetch(ctx)

	m.mu.Lock()
	m.refreshOnce = nil
	m.mu.Unlock()
	close(done)

	if err != nil {
		m.logger.Warn("reactive token refresh failed", zap.Error(err))
		return err
	}
	m.current.Store(tok)
	m.logger.Info("reactive token refresh succeeded")
	return nil
}

// refreshLoop reschedules itself just before the current token's expiry,
// minus refreshSafetyMargin, forever until ctx is cancelled. A source that
// never expires (StaticSource) ends the loop.
func (m *Manager) refreshLoop(ctx context.Context) {
	for {
		tok := m.current.Load()
		wait := timeUntilRefresh(tok)
		if wait < 0 {
			return // never-expiring token: nothing left to schedule
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		newTok, err := m.refreshWithBackoff(ctx)
		if err != nil {
			// ctx was cancelled mid-backoff; refreshWithBackoff only
			// returns an error in that case.
			return
		}
		m.current.Store(newTok)
		m.logger.Info("proactive token refresh succeeded")
	}
}

func timeUntilRefresh(tok *Token) time.Duration {
	if tok == nil || tok.ExpiresAt.IsZero() {
		return -1
	}
	return time.Until(tok.ExpiresAt.Add(-refreshSafetyMargin))
}

// refreshWithBackoff retries source.Fetch with exponential backoff
// (1s, 2s, 4s, ..., capped at 60s) until it succeeds or ctx is cancelled.
// While retrying, the previously cached token (if still
// unexpired) remains available via CurrentToken.
func (m *Manager) refreshWithBackoff(ctx context.Context) (*Token, error) {
	delay := m.minBackoff
	for {
		tok, err := m.source.Fetch(ctx)
		if err == nil {
			return tok, nil
		}
		m.logger.Warn("token fetch failed, backing off", zap.Error(err), zap.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > m.maxBackoff {
			delay = m.maxBackoff
		}
	}
}
