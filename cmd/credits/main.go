package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/openbilling/credits/internal/billing"
	"github.com/openbilling/credits/internal/config"
	"github.com/openbilling/credits/internal/entity"
	"github.com/openbilling/credits/internal/measurement"
	"github.com/openbilling/credits/internal/metric"
	"github.com/openbilling/credits/internal/migration"
	"github.com/openbilling/credits/internal/notification"
	"github.com/openbilling/credits/internal/observability"
	"github.com/openbilling/credits/internal/ratelimit"
	"github.com/openbilling/credits/internal/server"
	"github.com/openbilling/credits/internal/timeseries"
	"github.com/openbilling/credits/internal/worker"
	"github.com/openbilling/credits/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,

		// billing pipeline
		metric.Module,
		measurement.Module,
		entity.Module,
		timeseries.Module,
		notification.Module,
		billing.Module,
		worker.Module,

		// http surface
		ratelimit.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
