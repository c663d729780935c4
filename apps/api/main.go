package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/feeflow/internal/clock"
	"github.com/smallbiznis/feeflow/internal/commission"
	"github.com/smallbiznis/feeflow/internal/config"
	"github.com/smallbiznis/feeflow/internal/delivery"
	"github.com/smallbiznis/feeflow/internal/invoice"
	"github.com/smallbiznis/feeflow/internal/ledger"
	"github.com/smallbiznis/feeflow/internal/migration"
	"github.com/smallbiznis/feeflow/internal/observability"
	"github.com/smallbiznis/feeflow/internal/overdue"
	"github.com/smallbiznis/feeflow/internal/payment"
	"github.com/smallbiznis/feeflow/internal/paymentplan"
	"github.com/smallbiznis/feeflow/internal/providers"
	"github.com/smallbiznis/feeflow/internal/scheduler"
	"github.com/smallbiznis/feeflow/internal/scheduler/guard"
	"github.com/smallbiznis/feeflow/internal/server"
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
		migration.Module,

		ledger.Module,
		providers.Module,
		invoice.Module,
		delivery.Module,
		paymentplan.Module,
		commission.Module,
		payment.Module,
		overdue.Module,

		// Jobs are triggered over HTTP; the loop runs in apps/scheduler.
		guard.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
