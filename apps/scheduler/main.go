package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/feeflow/internal/clock"
	"github.com/smallbiznis/feeflow/internal/config"
	"github.com/smallbiznis/feeflow/internal/delivery"
	"github.com/smallbiznis/feeflow/internal/invoice"
	"github.com/smallbiznis/feeflow/internal/ledger"
	"github.com/smallbiznis/feeflow/internal/observability"
	"github.com/smallbiznis/feeflow/internal/overdue"
	"github.com/smallbiznis/feeflow/internal/providers"
	"github.com/smallbiznis/feeflow/internal/scheduler"
	"github.com/smallbiznis/feeflow/internal/scheduler/guard"
	"github.com/smallbiznis/feeflow/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services required by scheduler
		ledger.Module,
		providers.Module,
		invoice.Module,
		delivery.Module,
		overdue.Module,

		guard.Module,
		scheduler.Module,
		scheduler.LoopModule,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
