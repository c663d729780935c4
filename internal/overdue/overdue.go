// Package overdue marks unpaid past-due invoices as OVERDUE in bounded batches.
package overdue

import (
	"context"

	"github.com/smallbiznis/feeflow/internal/clock"
	"github.com/smallbiznis/feeflow/internal/config"
	ledgerdomain "github.com/smallbiznis/feeflow/internal/ledger/domain"
	obslogger "github.com/smallbiznis/feeflow/internal/observability/logger"
	"github.com/smallbiznis/feeflow/internal/observability/metrics"
	"github.com/smallbiznis/feeflow/internal/observability/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("overdue",
	fx.Provide(NewSweeper),
)

type Result struct {
	Marked int64 `json:"marked"`
	Passes int   `json:"passes"`
}

type Params struct {
	fx.In

	Repo     ledgerdomain.Repository
	Pipeline *config.PipelineConfigHolder
	Clock    clock.Clock
	Log      *zap.Logger
	Metrics  *metrics.Metrics `optional:"true"`
}

type Sweeper struct {
	repo     ledgerdomain.Repository
	pipeline *config.PipelineConfigHolder
	clock    clock.Clock
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func NewSweeper(p Params) *Sweeper {
	return &Sweeper{
		repo:     p.Repo,
		pipeline: p.Pipeline,
		clock:    p.Clock,
		log:      p.Log.Named("overdue"),
		metrics:  p.Metrics,
	}
}

// Sweep repeats the bounded update until a pass marks nothing.
func (s *Sweeper) Sweep(ctx context.Context) (result Result, err error) {
	ctx, span := tracing.StartSpan(ctx, "overdue.sweep")
	defer func() {
		span.SetAttributes(attribute.Int64("marked", result.Marked))
		tracing.EndSpan(span, err)
	}()

	today := clock.Today(s.clock)
	limit := s.pipeline.Get().OverdueBatchSize

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		n, err := s.repo.MarkOverdueBatch(ctx, today, limit)
		if err != nil {
			return result, err
		}
		result.Passes++
		if n == 0 {
			break
		}
		result.Marked += n
		s.metrics.RecordOverdueMarked(ctx, n)
	}

	obslogger.WithContext(ctx, s.log).Info("overdue.sweep.completed",
		zap.Int64("marked", result.Marked),
		zap.Int("passes", result.Passes),
	)
	return result, nil
}
