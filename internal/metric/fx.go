package metric

import (
	"github.com/openbilling/credits/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("metric.registry",
	fx.Provide(provideRegistry),
)

func provideRegistry(cfg config.Config, log *zap.Logger) (*Registry, error) {
	return Load(cfg.MetricsFile, log.Named("metric.registry"))
}
