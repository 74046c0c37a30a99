package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openbilling/credits/internal/entity/domain"
	"gorm.io/gorm"
)

type repo struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func Provide(db *gorm.DB, genID *snowflake.Node) domain.Store {
	return &repo{db: db, genID: genID}
}

func (r *repo) Resolve(ctx context.Context, name string) (*domain.Entity, error) {
	var e domain.Entity
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrEntityNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *repo) Save(ctx context.Context, e *domain.Entity) error {
	return r.db.WithContext(ctx).Save(e).Error
}

func (r *repo) Create(ctx context.Context, e *domain.Entity) error {
	if e.ID == 0 {
		e.ID = r.genID.Generate()
	}
	if e.BilledTimestamps == nil {
		e.BilledTimestamps = map[string]time.Time{}
	}
	return r.db.WithContext(ctx).Create(e).Error
}
