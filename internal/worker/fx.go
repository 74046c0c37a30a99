package worker

import (
	"context"

	"github.com/openbilling/credits/internal/config"
	"github.com/openbilling/credits/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("worker",
	fx.Provide(NewQueue),
	fx.Provide(providePool),
	fx.Invoke(registerLifecycle),
)

func providePool(queue *Queue, handler Handler, m *metrics.Metrics, cfg config.Config, log *zap.Logger) *Pool {
	return NewPool(queue, handler, m, log.Named("worker.pool"), cfg.Workers, cfg.ShutdownGrace)
}

func registerLifecycle(lc fx.Lifecycle, pool *Pool, queue *Queue, m *metrics.Metrics) {
	m.RegisterQueueDepth(func() int64 { return int64(queue.Len()) })

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			pool.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return pool.Stop(ctx)
		},
	})
}
