// Package cmd defines the kmt-crawler command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/kmt-crawler/internal/config"
	"github.com/JakeFAU/kmt-crawler/internal/logging"
	"github.com/JakeFAU/kmt-crawler/internal/server"
)

// newRootCmd creates the root command. It scrapes the archive once and exits.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "kmt-crawler",
		Short: "Scrapes reaction data from the KMT archive.",
		Long: `kmt-crawler walks the paginated reaction lists of the KMT archive,
follows every detail page to its XML record, and writes the reactions
as JSON and a report-style CSV. Results can also be stored in GCS,
written to Postgres and announced on Pub/Sub.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfgFile)
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	return cmd
}

func run(ctx context.Context, cfgFile string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	app, err := server.Build(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	return app.Run(ctx)
}

// Execute runs the root command with a context cancelled on SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kmt-crawler: %v\n", err)
		os.Exit(1)
	}
}
