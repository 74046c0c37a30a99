package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openbilling/credits/internal/timeseries/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func Provide(db *gorm.DB, genID *snowflake.Node) domain.Store {
	return &repo{db: db, genID: genID}
}

func (r *repo) AppendPoint(ctx context.Context, p *domain.UsagePoint) error {
	if p.ID == 0 {
		p.ID = r.genID.Generate()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entity"}, {Name: "metric_name"}, {Name: "timestamp"}},
			DoNothing: true,
		}).
		Create(p).Error
}

func (r *repo) QueryRange(ctx context.Context, entity, metricName string, since time.Time) ([]domain.UsagePoint, error) {
	var points []domain.UsagePoint
	err := r.db.WithContext(ctx).
		Where("entity = ? AND metric_name = ? AND timestamp >= ?", entity, metricName, since).
		Order("timestamp ASC").
		Find(&points).Error
	if err != nil {
		return nil, err
	}
	return points, nil
}

func (r *repo) AppendHistory(ctx context.Context, h *domain.HistoryEntry) error {
	if h.ID == 0 {
		h.ID = r.genID.Generate()
	}
	return r.db.WithContext(ctx).Create(h).Error
}

func (r *repo) QueryHistory(ctx context.Context, entity string, start, end time.Time) ([]domain.HistoryEntry, error) {
	q := r.db.WithContext(ctx).Where("entity = ?", entity)
	if !start.IsZero() {
		q = q.Where("timestamp >= ?", start)
	}
	if !end.IsZero() {
		q = q.Where("timestamp <= ?", end)
	}

	var entries []domain.HistoryEntry
	if err := q.Order("timestamp DESC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
