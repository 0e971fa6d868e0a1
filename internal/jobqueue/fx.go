package jobqueue

import (
	"context"

	"github.com/smallbiznis/invosync/internal/jobqueue/repository"
	"github.com/smallbiznis/invosync/internal/jobqueue/service"
	"github.com/smallbiznis/invosync/internal/jobqueue/worker"
	"go.uber.org/fx"
)

var Module = fx.Module("jobqueue",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)

// WorkerModule additionally runs the pool; only worker processes load it.
var WorkerModule = fx.Module("jobqueue_worker",
	fx.Provide(worker.New),
	fx.Invoke(func(lc fx.Lifecycle, pool *worker.Pool) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				pool.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				pool.Stop()
				return nil
			},
		})
	}),
)
