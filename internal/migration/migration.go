package migration

import (
	entitydomain "github.com/openbilling/credits/internal/entity/domain"
	tsdomain "github.com/openbilling/credits/internal/timeseries/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Run creates the service's tables on startup so a fresh checkout is
// usable without a separate migration step.
func Run(db *gorm.DB, log *zap.Logger) error {
	if err := db.AutoMigrate(
		&entitydomain.Entity{},
		&tsdomain.UsagePoint{},
		&tsdomain.HistoryEntry{},
	); err != nil {
		return err
	}
	log.Info("schema migrated")
	return nil
}
