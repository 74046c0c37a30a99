package measurement

import (
	"github.com/openbilling/credits/internal/config"
	"github.com/openbilling/credits/internal/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("measurement",
	fx.Provide(provideResolver),
)

func provideResolver(registry *metric.Registry, cfg config.Config, log *zap.Logger) *Resolver {
	return NewResolver(registry, cfg.Allowlist, log.Named("measurement.resolver"))
}
