package providers

import (
	"github.com/smallbiznis/feeflow/internal/providers/email"
	"github.com/smallbiznis/feeflow/internal/providers/pdf"
	"github.com/smallbiznis/feeflow/internal/providers/storage"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
	storage.Module,
)
