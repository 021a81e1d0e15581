package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"

	"github.com/FranksOps/wisher/internal/config"
	"github.com/FranksOps/wisher/internal/history"
	"github.com/FranksOps/wisher/internal/metrics"
	"github.com/spf13/cobra"
)

var Version = "dev"

// app carries state shared by every subcommand once the root command has
// loaded configuration.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Server

	configPath string
	opener     history.Opener
	// transport overrides the fingerprinted API transport.
	transport http.RoundTripper
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{opener: history.SystemOpener{}})
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "wisher",
		Short: "Gacha history URL extractor",
		Long:  "Wisher finds gacha history URLs in a game's web cache, resolves them to the history API, and stores fetched pulls.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.metrics.Stop(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Config file (yaml, json or toml)")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "pretty", "Log format (pretty, text, json)")
	flags.Int("metrics-port", 0, "Expose Prometheus metrics on this port (0 disables)")
	flags.String("store", "wisher.db", "Pull store: SQLite path, postgres:// DSN, json:<file> or csv:<file>")

	root.AddCommand(
		newHistoryCmd(a),
		newFetchCmd(a),
		newPullsCmd(a),
	)

	root.SilenceUsage = true
	root.Version = Version
	root.SetVersionTemplate(fmt.Sprintf("wisher %s\n", Version))

	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath, cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.logger = logger

	if cfg.MetricsPort > 0 {
		a.metrics = metrics.Start(cfg.MetricsPort, logger)
		logger.Debug("metrics server started", "port", cfg.MetricsPort)
	}
	return nil
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
