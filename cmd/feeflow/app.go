package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/feeflow/internal/clock"
	"github.com/smallbiznis/feeflow/internal/commission"
	"github.com/smallbiznis/feeflow/internal/config"
	"github.com/smallbiznis/feeflow/internal/delivery"
	"github.com/smallbiznis/feeflow/internal/invoice"
	"github.com/smallbiznis/feeflow/internal/ledger"
	"github.com/smallbiznis/feeflow/internal/observability"
	"github.com/smallbiznis/feeflow/internal/overdue"
	"github.com/smallbiznis/feeflow/internal/payment"
	"github.com/smallbiznis/feeflow/internal/paymentplan"
	"github.com/smallbiznis/feeflow/internal/providers"
	"github.com/smallbiznis/feeflow/internal/scheduler"
	"github.com/smallbiznis/feeflow/internal/scheduler/guard"
	"github.com/smallbiznis/feeflow/pkg/db"
	"go.uber.org/fx"
)

const startStopTimeout = 30 * time.Second

// pipelineModules is the dependency graph every command shares.
func pipelineModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		ledger.Module,
		providers.Module,
		invoice.Module,
		delivery.Module,
		paymentplan.Module,
		commission.Module,
		payment.Module,
		overdue.Module,
		guard.Module,
		scheduler.Module,
	)
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

// withApp starts a short-lived app, hands the populated targets to fn and
// stops the app afterwards.
func withApp(ctx context.Context, fn func(context.Context) error, targets ...any) error {
	app := fx.New(
		pipelineModules(),
		fx.NopLogger,
		fx.Populate(targets...),
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, startStopTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	runErr := fn(ctx)

	stopCtx, cancelStop := context.WithTimeout(context.Background(), startStopTimeout)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
