package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// ErrEntityNotFound reports an unknown billed entity.
var ErrEntityNotFound = errors.New("entity not found")

// Entity is a billed project. Attributes are loaded fresh for every
// billing invocation and persisted explicitly with Save.
type Entity struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	Name       string       `gorm:"uniqueIndex;not null" json:"name"`
	LocationID string       `json:"location_id"`

	ContactEmails []string `gorm:"serializer:json" json:"contact_emails"`

	// CreditsGranted is the lifetime credit allowance.
	CreditsGranted decimal.Decimal `gorm:"type:numeric" json:"credits_granted"`
	// CreditsCurrent is the running balance. Null until the first sample
	// for the entity has been processed.
	CreditsCurrent decimal.NullDecimal `gorm:"type:numeric" json:"credits_current"`

	// BilledTimestamps records, per metric name, the timestamp of the
	// last sample billed against the balance.
	BilledTimestamps map[string]time.Time `gorm:"serializer:json" json:"billed_timestamps"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Entity) TableName() string { return "entities" }

// Store resolves and persists billed entities.
type Store interface {
	// Resolve loads the entity by name. Returns ErrEntityNotFound when
	// no such entity exists.
	Resolve(ctx context.Context, name string) (*Entity, error)
	Save(ctx context.Context, e *Entity) error
	Create(ctx context.Context, e *Entity) error
}
