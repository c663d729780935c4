package ledger

import (
	"github.com/smallbiznis/feeflow/internal/ledger/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger",
	repository.Module,
)
