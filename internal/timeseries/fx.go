package timeseries

import (
	"github.com/openbilling/credits/internal/timeseries/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("timeseries.store",
	fx.Provide(repository.Provide),
)
