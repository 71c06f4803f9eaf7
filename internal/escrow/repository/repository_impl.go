package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/shoptok/internal/escrow/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, p *domain.Purchase) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO purchases (
			id, product_id, buyer, seller, amount, status, platform_fee, seller_proceeds,
			shipped_at, escrow_release_time, settled_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.ProductID,
		p.Buyer,
		p.Seller,
		p.Amount,
		p.Status,
		p.PlatformFee,
		p.SellerProceeds,
		p.ShippedAt,
		p.EscrowReleaseTime,
		p.SettledAt,
		p.CreatedAt,
		p.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Purchase, error) {
	var p domain.Purchase
	err := db.WithContext(ctx).Raw(
		`SELECT id, product_id, buyer, seller, amount, status, platform_fee, seller_proceeds,
			shipped_at, escrow_release_time, settled_at, created_at, updated_at
		 FROM purchases WHERE id = ?`,
		id,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) CompareAndSetStatus(ctx context.Context, db *gorm.DB, p *domain.Purchase, from domain.PurchaseStatus) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE purchases
		 SET status = ?, platform_fee = ?, seller_proceeds = ?, shipped_at = ?,
			escrow_release_time = ?, settled_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		p.Status,
		p.PlatformFee,
		p.SellerProceeds,
		p.ShippedAt,
		p.EscrowReleaseTime,
		p.SettledAt,
		p.UpdatedAt,
		p.ID,
		from,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrStaleStatus
	}
	return nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListRequest) ([]domain.Purchase, error) {
	var items []domain.Purchase
	page := filter.Page.Normalize()
	stmt := db.WithContext(ctx).Model(&domain.Purchase{})

	if filter.Buyer != "" {
		stmt = stmt.Where("buyer = ?", filter.Buyer)
	}
	if filter.Seller != "" {
		stmt = stmt.Where("seller = ?", filter.Seller)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}

	if err := stmt.Order("id ASC").Limit(page.Limit).Offset(page.Offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListReleasable(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Purchase, error) {
	var items []domain.Purchase
	err := db.WithContext(ctx).
		Where("status = ? AND escrow_release_time IS NOT NULL AND escrow_release_time <= ?", domain.StatusShipped, now).
		Order("escrow_release_time ASC, id ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) SumInEscrow(ctx context.Context, db *gorm.DB) (int64, int64, error) {
	var row struct {
		Total int64
		Count int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count
		 FROM purchases WHERE status IN ?`,
		domain.EscrowStatuses,
	).Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	return row.Total, row.Count, nil
}

func (r *repo) GetSettings(ctx context.Context, db *gorm.DB) (*domain.Settings, error) {
	var s domain.Settings
	err := db.WithContext(ctx).Raw(
		`SELECT id, platform_fee_bps, escrow_period_seconds, fee_recipient, updated_at
		 FROM engine_settings WHERE id = ?`,
		domain.SettingsID,
	).Scan(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	return &s, nil
}

func (r *repo) InsertSettingsIfMissing(ctx context.Context, db *gorm.DB, s *domain.Settings) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(s).Error
}

func (r *repo) UpdateSettings(ctx context.Context, db *gorm.DB, s *domain.Settings) error {
	return db.WithContext(ctx).Exec(
		`UPDATE engine_settings
		 SET platform_fee_bps = ?, escrow_period_seconds = ?, fee_recipient = ?, updated_at = ?
		 WHERE id = ?`,
		s.PlatformFeeBps,
		s.EscrowPeriodSeconds,
		s.FeeRecipient,
		s.UpdatedAt,
		domain.SettingsID,
	).Error
}
