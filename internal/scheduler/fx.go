package scheduler

import (
	"context"

	"github.com/smallbiznis/feeflow/internal/config"
	"go.uber.org/fx"
)

// Module provides the Scheduler without starting its loop.
var Module = fx.Module("scheduler",
	fx.Provide(New),
)

// LoopModule runs the scheduler loop for the lifetime of the app.
var LoopModule = fx.Module("scheduler.loop",
	fx.Invoke(NewScheduler),
)

func NewScheduler(lc fx.Lifecycle, cfg config.Config, sched *Scheduler) {
	if !cfg.SchedulerEnabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
