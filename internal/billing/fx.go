package billing

import (
	"github.com/openbilling/credits/internal/config"
	entitydomain "github.com/openbilling/credits/internal/entity/domain"
	"github.com/openbilling/credits/internal/measurement"
	"github.com/openbilling/credits/internal/notification"
	"github.com/openbilling/credits/internal/observability/metrics"
	tsdomain "github.com/openbilling/credits/internal/timeseries/domain"
	"github.com/openbilling/credits/internal/worker"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("billing.service",
	fx.Provide(provideService),
	fx.Provide(func(s *Service) worker.Handler { return s }),
)

func provideService(
	entities entitydomain.Store,
	points tsdomain.Store,
	resolver *measurement.Resolver,
	notifier *notification.Notifier,
	m *metrics.Metrics,
	cfg config.Config,
	log *zap.Logger,
) *Service {
	return NewService(Params{
		Entities:     entities,
		Points:       points,
		Resolver:     resolver,
		Notifier:     notifier,
		Metrics:      m,
		Log:          log.Named("billing.service"),
		Precision:    cfg.Precision,
		WarnFraction: cfg.WarnThreshold,
	})
}
