package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// UsagePoint is one stored usage sample. Append-only; duplicate deliveries
// of the same sample collapse on the (entity, metric, timestamp) key.
type UsagePoint struct {
	ID         snowflake.ID    `gorm:"primaryKey" json:"id"`
	Entity     string          `gorm:"uniqueIndex:idx_usage_point,priority:1;not null" json:"entity"`
	MetricName string          `gorm:"uniqueIndex:idx_usage_point,priority:2;not null" json:"metric_name"`
	Timestamp  time.Time       `gorm:"uniqueIndex:idx_usage_point,priority:3;not null" json:"timestamp"`
	Value      decimal.Decimal `gorm:"type:numeric" json:"value"`

	CreatedAt time.Time `json:"created_at"`
}

func (UsagePoint) TableName() string { return "usage_points" }

// HistoryEntry records one applied billing: the balance after the charge
// and the sample that caused it. Written only when the balance changed.
type HistoryEntry struct {
	ID     snowflake.ID `gorm:"primaryKey" json:"id"`
	Entity string       `gorm:"index;not null" json:"entity"`
	// Timestamp is the timestamp of the billed sample, not of the write.
	Timestamp          time.Time       `gorm:"not null" json:"timestamp"`
	Balance            decimal.Decimal `gorm:"type:numeric" json:"balance"`
	MetricName         string          `json:"metric_name"`
	MetricFriendlyName string          `json:"metric_friendly_name"`

	CreatedAt time.Time `json:"created_at"`
}

func (HistoryEntry) TableName() string { return "billing_history" }

// Store persists usage points and billing history.
type Store interface {
	// AppendPoint stores the sample, ignoring duplicates of the same
	// (entity, metric, timestamp).
	AppendPoint(ctx context.Context, p *UsagePoint) error
	// QueryRange returns the entity's points for one metric with
	// timestamp >= since, ascending.
	QueryRange(ctx context.Context, entity, metricName string, since time.Time) ([]UsagePoint, error)
	AppendHistory(ctx context.Context, h *HistoryEntry) error
	// QueryHistory returns the entity's history between start and end
	// inclusive, newest first. Zero bounds are open.
	QueryHistory(ctx context.Context, entity string, start, end time.Time) ([]HistoryEntry, error)
}
