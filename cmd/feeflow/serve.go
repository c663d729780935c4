package main

import (
	"context"

	"github.com/smallbiznis/feeflow/internal/config"
	"github.com/smallbiznis/feeflow/internal/migration"
	"github.com/smallbiznis/feeflow/internal/observability"
	"github.com/smallbiznis/feeflow/internal/scheduler"
	"github.com/smallbiznis/feeflow/internal/server"
	"github.com/smallbiznis/feeflow/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring the ledger schema up to date",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				config.Module,
				observability.Module,
				db.Module,
				migration.Module,
				fx.NopLogger,
			)
			if err := app.Err(); err != nil {
				return err
			}
			return runUntil(cmd.Context(), app, false)
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the internal HTTP API and run the scheduler loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				pipelineModules(),
				migration.Module,
				server.Module,
				scheduler.LoopModule,
				fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
					return &fxevent.ZapLogger{Logger: log.Named("fx")}
				}),
			)
			if err := app.Err(); err != nil {
				return err
			}
			return runUntil(cmd.Context(), app, true)
		},
	}
}

// runUntil starts app and, when wait is set, blocks until ctx is cancelled or
// the app asks to shut down.
func runUntil(ctx context.Context, app *fx.App, wait bool) error {
	startCtx, cancel := context.WithTimeout(ctx, startStopTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	if wait {
		select {
		case <-ctx.Done():
		case <-app.Done():
		}
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), startStopTimeout)
	defer cancelStop()
	return app.Stop(stopCtx)
}
