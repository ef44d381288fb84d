// Package syncengine is the Sync Orchestrator: it wires
// the Token Manager, Stream Driver, Batch Writer, and Offset Tracker
// together, decides fresh-start vs. resume, and owns the progress-report
// goroutine and shutdown coordination.
package syncengine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ledgersync/internal/auth"
	"ledgersync/internal/batch"
	"ledgersync/internal/config"
	"ledgersync/internal/graphdb"
	"ledgersync/internal/ledger"
	"ledgersync/internal/ledgerapi"
	"ledgersync/internal/offsettracker"
	"ledgersync/internal/streamdriver"
	"ledgersync/internal/syncerr"
)

const progressInterval = 30 * time.Second

// Engine owns every component's lifecycle for one run of `sync`.
type Engine struct {
	cfg    config.Config
	logger *zap.Logger
}

// New builds an Engine from a loaded Config.
func New(cfg config.Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, logger: logger}
}

// Run wires the components and blocks until ctx is cancelled or a fatal
// error occurs, returning that error for the caller to map onto an exit
// code: 0 on clean shutdown, 1 on fatal error.
func (e *Engine) Run(ctx context.Context) error {
	exec, err := graphdb.NewNeo4jExecutor(e.cfg.Neo4jURI, e.cfg.Neo4jUser, e.cfg.Neo4jPassword)
	if err != nil {
		return fmt.Errorf("connect graph store: %w", err)
	}
	defer exec.Close(ctx)

	if err := exec.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	if e.cfg.Fresh {
		e.logger.Info("--fresh: clearing sync-managed graph data")
		if err := exec.ClearManagedData(ctx); err != nil {
			return fmt.Errorf("clear managed data: %w", err)
		}
	}

	conn, err := ledgerapi.Dial(ctx, e.cfg.LedgerURL, true)
	if err != nil {
		return fmt.Errorf("dial ledger: %w", err)
	}
	defer conn.Close()
	ledgerClient := ledger.NewClient(conn)

	tokenSource, err := e.buildTokenSource()
	if err != nil {
		return err
	}
	tokenManager := auth.NewManager(tokenSource, e.logger)
	tokenManager.SetBackoff(e.cfg.BackoffInitial, e.cfg.BackoffMax)
	if err := tokenManager.Start(ctx); err != nil {
		return fmt.Errorf("acquire initial token: %w", err)
	}

	acsAlreadyLoaded, err := exec.ACSLoaded(ctx)
	if err != nil {
		return fmt.Errorf("check acs loaded: %w", err)
	}
	needsACSLoad := !e.cfg.Fresh && !acsAlreadyLoaded

	resumeOffset, err := offsettracker.ResumePoint(ctx, exec, e.cfg.Fresh, e.cfg.LedgerBegin, func(ctx context.Context) (int64, error) {
		token, err := tokenManager.CurrentToken(ctx)
		if err != nil {
			return 0, err
		}
		return ledgerClient.LedgerEnd(ctx, token)
	})
	if err != nil {
		return fmt.Errorf("determine resume point: %w", err)
	}
	tracker := offsettracker.New(resumeOffset)
	e.logger.Info("resuming sync", zap.Int64("offset", resumeOffset), zap.Bool("needs_acs_load", needsACSLoad))

	if err := e.checkNotPruned(ctx, ledgerClient, tokenManager, resumeOffset); err != nil {
		return err
	}

	writer := batch.New(exec, e.logger, tracker.Advance)
	writer.SetThresholds(e.cfg.BatchMaxSize, e.cfg.BatchMaxDelay)
	writerErrCh := make(chan error, 1)
	go func() { writerErrCh <- writer.Run(ctx) }()

	driver := streamdriver.New(ledgerClient, tokenManager, writer, tracker, e.cfg.LedgerParties, nil, needsACSLoad, e.logger)
	driver.SetBackoff(e.cfg.BackoffInitial, e.cfg.BackoffMax)

	progressCtx, stopProgress := context.WithCancel(ctx)
	defer stopProgress()
	go e.reportProgress(progressCtx, ledgerClient, tokenManager, tracker)

	driverErrCh := make(chan error, 1)
	go func() { driverErrCh <- driver.Run(ctx) }()

	select {
	case err := <-driverErrCh:
		return err
	case err := <-writerErrCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// checkNotPruned fails fast if the participant has already pruned past
// resumeOffset, rather than discovering that only once the Stream Driver
// opens a subscription and gets a FailedPrecondition back.
func (e *Engine) checkNotPruned(ctx context.Context, client *ledger.Client, tokens *auth.Manager, resumeOffset int64) error {
	token, err := tokens.CurrentToken(ctx)
	if err != nil {
		return fmt.Errorf("acquire token for pruning check: %w", err)
	}
	pruned, err := client.PruningOffset(ctx, token)
	if err != nil {
		return fmt.Errorf("check pruning offset: %w", err)
	}
	if pruned > resumeOffset {
		return syncerr.AtOffset(syncerr.KindDataPruned, pruned,
			fmt.Errorf("resume offset %d has been pruned up to offset %d", resumeOffset, pruned))
	}
	return nil
}

// buildTokenSource selects the Token Manager's source:
// --access-token takes precedence, then --use-keycloak, else the fake
// sandbox source.
func (e *Engine) buildTokenSource() (auth.Source, error) {
	if e.cfg.AccessToken != "" {
		return auth.NewStaticSource(e.cfg.AccessToken), nil
	}
	if e.cfg.UseKeycloak {
		if e.cfg.KeycloakTokenEndpoint == "" {
			return nil, fmt.Errorf("keycloak.token_endpoint is required when --use-keycloak is set")
		}
		return auth.NewOAuth2Source(auth.OAuth2Config{
			ClientID:      e.cfg.KeycloakClientID,
			TokenEndpoint: e.cfg.KeycloakTokenEndpoint,
			GrantType:     auth.GrantType(e.cfg.KeycloakGrantType),
			ClientSecret:  e.cfg.KeycloakClientSecret,
			Username:      e.cfg.KeycloakUsername,
			Password:      e.cfg.KeycloakPassword,
		}), nil
	}
	return auth.NewFakeSource(e.cfg.LedgerFakeUser), nil
}

// reportProgress periodically logs the current offset against the
// ledger's reported end as a low-priority goroutine the orchestrator
// owns, keeping the Stream Driver's state machine free of timer-driven
// side tasks.
func (e *Engine) reportProgress(ctx context.Context, client *ledger.Client, tokens *auth.Manager, tracker *offsettracker.Tracker) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			token, err := tokens.CurrentToken(ctx)
			if err != nil {
				continue
			}
			end, err := client.LedgerEnd(ctx, token)
			if err != nil {
				e.logger.Warn("progress report: ledger end fetch failed", zap.Error(err))
				continue
			}
			current := tracker.Current()
			e.logger.Info("sync progress",
				zap.Int64("current_offset", current),
				zap.Int64("ledger_end", end),
				zap.Int64("remaining", end-current),
			)
		}
	}
}
