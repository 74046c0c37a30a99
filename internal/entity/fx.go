package entity

import (
	"github.com/openbilling/credits/internal/entity/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("entity.store",
	fx.Provide(repository.Provide),
)
