package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ledgersync/internal/config"
	"ledgersync/internal/syncengine"
)

func main() {
	root := &cobra.Command{
		Use:          "ledgersync",
		Short:        "Projects a ledger's transaction stream into a graph database",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config-file", "", "alternate configuration file (default ./config/config.toml)")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Run the sync engine indefinitely",
		RunE:  runSync,
	}
	syncCmd.Flags().Bool("use-keycloak", false, "acquire tokens from Keycloak instead of the fake sandbox source")
	syncCmd.Flags().String("access-token", "", "use a static bearer token; disables refresh")
	syncCmd.Flags().Bool("fresh", false, "drop all sync-managed data before starting; resume from the current ledger end")

	root.AddCommand(syncCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config-file")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("ledgersync start",
		zap.String("neo4j_uri", cfg.Neo4jURI),
		zap.String("ledger_url", cfg.LedgerURL),
		zap.Int("parties", len(cfg.LedgerParties)),
		zap.Bool("use_keycloak", cfg.UseKeycloak),
		zap.Bool("fresh", cfg.Fresh),
	)

	engine := syncengine.New(cfg, logger)
	err = engine.Run(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		logger.Info("ledgersync stopped cleanly")
		return nil
	}
	return err
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
