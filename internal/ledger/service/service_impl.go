package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shoptok/internal/clock"
	ledgerdomain "github.com/smallbiznis/shoptok/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/shoptok/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
	}
}

// Deposit credits owner from outside the system.
func (s *Service) Deposit(ctx context.Context, owner string, amount int64) (*ledgerdomain.Account, error) {
	owner = strings.TrimSpace(owner)
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	if ledgerdomain.IsSystemAccount(owner) {
		return nil, ledgerdomain.ErrInvalidOwner
	}
	if amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}

	var account ledgerdomain.Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		if err := s.credit(ctx, tx, owner, amount, now); err != nil {
			return err
		}
		if err := s.writeEntry(ctx, tx, ledgerdomain.ExternalFundingAccount, owner, amount, ledgerdomain.SourceTypeDeposit, 0, now); err != nil {
			return err
		}
		return tx.WithContext(ctx).Where("owner = ?", owner).Take(&account).Error
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordLedgerTransfer(string(ledgerdomain.SourceTypeDeposit))
	s.log.Info("wallet deposit", zap.String("owner", owner), zap.Int64("amount", amount))
	return &account, nil
}

func (s *Service) Balance(ctx context.Context, owner string) (int64, error) {
	return s.BalanceTx(ctx, s.db, owner)
}

// BalanceTx reads the available balance through tx. Unknown owners hold zero.
func (s *Service) BalanceTx(ctx context.Context, tx *gorm.DB, owner string) (int64, error) {
	owner = strings.TrimSpace(owner)
	if err := validateOwner(owner); err != nil {
		return 0, err
	}

	var account ledgerdomain.Account
	err := tx.WithContext(ctx).Where("owner = ?", owner).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return account.Available, nil
}

// Transfer moves funds between two accounts inside the caller's transaction.
// The debit is conditional on the source holding enough, so a concurrent
// spend can never drive a balance negative. A zero amount is a no-op.
func (s *Service) Transfer(ctx context.Context, tx *gorm.DB, req ledgerdomain.TransferRequest) error {
	if tx == nil {
		return errors.New("ledger transfer requires a transaction")
	}
	from := strings.TrimSpace(req.From)
	to := strings.TrimSpace(req.To)
	if err := validateOwner(from); err != nil {
		return err
	}
	if err := validateOwner(to); err != nil {
		return err
	}
	if from == to {
		return ledgerdomain.ErrSameAccount
	}
	if strings.TrimSpace(string(req.SourceType)) == "" {
		return ledgerdomain.ErrInvalidSourceType
	}
	if req.Amount < 0 {
		return ledgerdomain.ErrInvalidAmount
	}
	if req.Amount == 0 {
		return nil
	}

	occurredAt := req.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.clock.Now()
	}
	now := s.clock.Now()

	result := tx.WithContext(ctx).Exec(
		`UPDATE ledger_accounts
		SET available = available - ?, updated_at = ?
		WHERE owner = ? AND available >= ?`,
		req.Amount,
		now,
		from,
		req.Amount,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ledgerdomain.ErrInsufficientFunds
	}

	if err := s.credit(ctx, tx, to, req.Amount, now); err != nil {
		return err
	}
	if err := s.writeEntry(ctx, tx, from, to, req.Amount, req.SourceType, req.SourceID, occurredAt); err != nil {
		return err
	}

	s.obsMetrics.RecordLedgerTransfer(string(req.SourceType))
	return nil
}

// Entries returns the postings recorded for a source, oldest first.
func (s *Service) Entries(ctx context.Context, sourceType ledgerdomain.LedgerSourceType, sourceID int64) ([]ledgerdomain.LedgerEntry, error) {
	var entries []ledgerdomain.LedgerEntry
	err := s.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("source_type = ? AND source_id = ?", sourceType, sourceID).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Service) credit(ctx context.Context, tx *gorm.DB, owner string, amount int64, now time.Time) error {
	if err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&ledgerdomain.Account{Owner: owner, CreatedAt: now, UpdatedAt: now}).Error; err != nil {
		return err
	}
	result := tx.WithContext(ctx).Exec(
		`UPDATE ledger_accounts SET available = available + ?, updated_at = ? WHERE owner = ? AND available <= ?`,
		amount,
		now,
		owner,
		math.MaxInt64-amount,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ledgerdomain.ErrBalanceOverflow
	}
	return nil
}

func (s *Service) writeEntry(
	ctx context.Context,
	tx *gorm.DB,
	from, to string,
	amount int64,
	sourceType ledgerdomain.LedgerSourceType,
	sourceID int64,
	occurredAt time.Time,
) error {
	entryID := s.genID.Generate()
	now := s.clock.Now()
	lines := []ledgerdomain.LedgerEntryLine{
		{ID: s.genID.Generate(), LedgerEntryID: entryID, Owner: from, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: amount, CreatedAt: now},
		{ID: s.genID.Generate(), LedgerEntryID: entryID, Owner: to, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: amount, CreatedAt: now},
	}
	if err := ledgerdomain.ValidateBalanced(lines); err != nil {
		return err
	}

	entry := ledgerdomain.LedgerEntry{
		ID:         entryID,
		SourceType: sourceType,
		SourceID:   sourceID,
		OccurredAt: occurredAt.UTC(),
		CreatedAt:  now,
	}
	if err := tx.WithContext(ctx).Omit("Lines").Create(&entry).Error; err != nil {
		return err
	}
	return tx.WithContext(ctx).Create(&lines).Error
}

func validateOwner(owner string) error {
	if owner == "" || len(owner) > 128 {
		return ledgerdomain.ErrInvalidOwner
	}
	return nil
}
