package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/DRSN-tech/metric-embedder/internal/app"
	config "github.com/DRSN-tech/metric-embedder/internal/cfg"
	"github.com/DRSN-tech/metric-embedder/pkg/logger"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "metric-embedder",
		Short:         "Periodically captures metrics and stores them as embeddings in Qdrant",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Run(ctx)
			})
		},
	}

	rootCmd.AddCommand(
		tickCmd(),
		migrateCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func tickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run a single capture tick and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res := a.TickOnce(ctx)
				if !res.OK() {
					return fmt.Errorf("tick %s failed at %s: %w", res.TickID, res.FailedStage, res.Err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "tick %s: batch of %d snapshots embedded\n", res.TickID, res.BatchSize())
				return nil
			})
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply buffer schema migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()

			return app.Migrate(cmd.Context(), cfg, log)
		},
	}
}

func withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()

	application, err := app.NewApp(ctx, cfg, log)
	if err != nil {
		log.Errorf(err, "failed to initialize app")
		return err
	}

	return fn(ctx, application)
}

func bootstrap() (*config.Config, logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewZapLogger(cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, log, nil
}
