package domain

import (
	"context"

	"gorm.io/gorm"
)

type Service interface {
	Deposit(ctx context.Context, owner string, amount int64) (*Account, error)
	Balance(ctx context.Context, owner string) (int64, error)
	BalanceTx(ctx context.Context, tx *gorm.DB, owner string) (int64, error)
	Transfer(ctx context.Context, tx *gorm.DB, req TransferRequest) error
	Entries(ctx context.Context, sourceType LedgerSourceType, sourceID int64) ([]LedgerEntry, error)
}
