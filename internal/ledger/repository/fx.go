package repository

import "go.uber.org/fx"

var Module = fx.Module("ledger.repository",
	fx.Provide(Provide),
)
