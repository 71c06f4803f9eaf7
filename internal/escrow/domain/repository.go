package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, purchase *Purchase) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Purchase, error)
	// CompareAndSetStatus persists p only if the stored status still equals
	// from, returning ErrStaleStatus otherwise.
	CompareAndSetStatus(ctx context.Context, db *gorm.DB, p *Purchase, from PurchaseStatus) error
	List(ctx context.Context, db *gorm.DB, filter ListRequest) ([]Purchase, error)
	// ListReleasable returns shipped purchases whose escrow release time is
	// at or before now, oldest release first.
	ListReleasable(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Purchase, error)
	SumInEscrow(ctx context.Context, db *gorm.DB) (total int64, count int64, err error)

	GetSettings(ctx context.Context, db *gorm.DB) (*Settings, error)
	InsertSettingsIfMissing(ctx context.Context, db *gorm.DB, settings *Settings) error
	UpdateSettings(ctx context.Context, db *gorm.DB, settings *Settings) error
}
