package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/shoptok/internal/authorization"
	catalogdomain "github.com/smallbiznis/shoptok/internal/catalog/domain"
	"github.com/smallbiznis/shoptok/internal/clock"
	"github.com/smallbiznis/shoptok/internal/config"
	"github.com/smallbiznis/shoptok/internal/escrow/domain"
	"github.com/smallbiznis/shoptok/internal/events"
	ledgerdomain "github.com/smallbiznis/shoptok/internal/ledger/domain"
	"github.com/smallbiznis/shoptok/internal/lock"
	obsmetrics "github.com/smallbiznis/shoptok/internal/observability/metrics"
	"github.com/smallbiznis/shoptok/internal/observability/tracing"
	"github.com/smallbiznis/shoptok/pkg/db"
	"github.com/smallbiznis/shoptok/pkg/db/pagination"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Config     config.Config
	Repo       domain.Repository
	Catalog    catalogdomain.Service
	Ledger     ledgerdomain.Service
	Authz      authorization.Service
	Locker     lock.Locker
	Clock      clock.Clock
	Outbox     *events.Outbox
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	bootstrap  config.SettlementConfig
	repo       domain.Repository
	catalog    catalogdomain.Service
	ledger     ledgerdomain.Service
	authz      authorization.Service
	locker     lock.Locker
	clock      clock.Clock
	outbox     *events.Outbox
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("escrow.service"),
		bootstrap:  p.Config.Settlement,
		repo:       p.Repo,
		catalog:    p.Catalog,
		ledger:     p.Ledger,
		authz:      p.Authz,
		locker:     p.Locker,
		clock:      p.Clock,
		outbox:     p.Outbox,
		obsMetrics: p.ObsMetrics,
	}
}

// PurchaseProduct debits the buyer, credits escrow custody and records a
// pending purchase in one transaction. The amount is the product price at
// this moment; later price edits never touch it.
func (s *Service) PurchaseProduct(ctx context.Context, req domain.PurchaseRequest) (result *domain.Result, err error) {
	ctx, done := s.instrument(ctx, domain.OperationPurchaseProduct)
	defer func() { done(err) }()

	buyer := strings.TrimSpace(req.Buyer)
	if !validIdentity(buyer) {
		return nil, domain.ErrInvalidCaller
	}
	if req.ProductID <= 0 {
		return nil, domain.ErrInvalidID
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		product, err := s.catalog.GetProductTx(ctx, tx, req.ProductID)
		if err != nil {
			if errors.Is(err, catalogdomain.ErrNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		if !product.Active {
			return domain.ErrInactive
		}
		if product.Seller == buyer {
			return domain.ErrSelfPurchase
		}

		id, err := db.NextIDs(ctx, tx, domain.PurchaseSequence, 1)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		purchase := domain.Purchase{
			ID:        id,
			ProductID: product.ID,
			Buyer:     buyer,
			Seller:    product.Seller,
			Amount:    product.Price,
			Status:    domain.StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.Create(ctx, tx, &purchase); err != nil {
			return err
		}

		move := domain.Move{
			From:   buyer,
			To:     ledgerdomain.EscrowCustodyAccount,
			Amount: purchase.Amount,
			Reason: string(ledgerdomain.SourceTypePurchaseEscrow),
		}
		if err := s.ledger.Transfer(ctx, tx, ledgerdomain.TransferRequest{
			From:       move.From,
			To:         move.To,
			Amount:     move.Amount,
			SourceType: ledgerdomain.SourceTypePurchaseEscrow,
			SourceID:   purchase.ID,
			OccurredAt: now,
		}); err != nil {
			return err
		}

		result = &domain.Result{
			Operation:  domain.OperationPurchaseProduct,
			PurchaseID: purchase.ID,
			ProductID:  purchase.ProductID,
			Status:     purchase.Status,
			Moves:      []domain.Move{move},
			Purchase:   purchase,
		}
		return s.publish(ctx, tx, events.EventPurchaseCreated, result)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("purchase created",
		zap.Int64("purchase_id", result.PurchaseID),
		zap.Int64("product_id", result.ProductID),
		zap.String("buyer", buyer),
		zap.Int64("amount", result.Purchase.Amount),
	)
	return result, nil
}

// UpdatePurchaseStatus drives the purchase state machine for buyers,
// sellers and, once the escrow period has elapsed, anyone completing a
// shipped purchase.
func (s *Service) UpdatePurchaseStatus(ctx context.Context, req domain.UpdateStatusRequest) (result *domain.Result, err error) {
	ctx, done := s.instrument(ctx, domain.OperationUpdatePurchase)
	defer func() { done(err) }()

	caller := strings.TrimSpace(req.Caller)
	if caller == "" {
		return nil, domain.ErrInvalidCaller
	}
	if req.PurchaseID <= 0 {
		return nil, domain.ErrInvalidID
	}
	to, err := domain.ParseStatus(string(req.Status))
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, lock.PurchaseKey(req.PurchaseID))
	if err != nil {
		return nil, err
	}
	defer release()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		purchase, err := s.findPurchase(ctx, tx, req.PurchaseID)
		if err != nil {
			return err
		}
		settings, err := s.loadSettings(ctx, tx)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		disbursement, err := domain.Authorize(*purchase, caller, to, now)
		if err != nil {
			return err
		}

		result, err = s.transition(ctx, tx, purchase, to, disbursement, settings, now, domain.OperationUpdatePurchase)
		if err != nil {
			return err
		}
		return s.publish(ctx, tx, statusEvent(to), result)
	})
	if err != nil {
		return nil, err
	}

	s.recordDisbursement(result)
	s.log.Info("purchase status updated",
		zap.Int64("purchase_id", result.PurchaseID),
		zap.String("caller", caller),
		zap.String("from", string(result.PreviousStatus)),
		zap.String("to", string(result.Status)),
	)
	return result, nil
}

// ResolveDispute settles a disputed purchase in favour of the buyer
// (refund) or the seller (completion).
func (s *Service) ResolveDispute(ctx context.Context, req domain.ResolveDisputeRequest) (result *domain.Result, err error) {
	ctx, done := s.instrument(ctx, domain.OperationResolveDispute)
	defer func() { done(err) }()

	if err := s.requireAdmin(ctx, req.Admin, authorization.ObjectDispute, authorization.ActionDisputeResolve); err != nil {
		return nil, err
	}
	if req.PurchaseID <= 0 {
		return nil, domain.ErrInvalidID
	}

	release, err := s.locker.Acquire(ctx, lock.PurchaseKey(req.PurchaseID))
	if err != nil {
		return nil, err
	}
	defer release()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		purchase, err := s.findPurchase(ctx, tx, req.PurchaseID)
		if err != nil {
			return err
		}
		settings, err := s.loadSettings(ctx, tx)
		if err != nil {
			return err
		}

		to, disbursement, err := domain.Resolution(*purchase, req.RefundToBuyer)
		if err != nil {
			return err
		}

		result, err = s.transition(ctx, tx, purchase, to, disbursement, settings, s.clock.Now(), domain.OperationResolveDispute)
		if err != nil {
			return err
		}
		return s.publish(ctx, tx, events.EventPurchaseDisputeResolved, result)
	})
	if err != nil {
		return nil, err
	}

	s.recordDisbursement(result)
	s.log.Info("dispute resolved",
		zap.Int64("purchase_id", result.PurchaseID),
		zap.String("admin", strings.TrimSpace(req.Admin)),
		zap.Bool("refund_to_buyer", req.RefundToBuyer),
		zap.String("status", string(result.Status)),
	)
	return result, nil
}

func (s *Service) UpdatePlatformFee(ctx context.Context, req domain.UpdatePlatformFeeRequest) (result *domain.SettingsResult, err error) {
	ctx, done := s.instrument(ctx, domain.OperationUpdatePlatformFee)
	defer func() { done(err) }()

	if err := s.requireAdmin(ctx, req.Admin, authorization.ObjectSettings, authorization.ActionSettingsUpdate); err != nil {
		return nil, err
	}
	if err := domain.ValidateFeeBps(req.FeeBps); err != nil {
		return nil, err
	}

	result, err = s.updateSettings(ctx, domain.OperationUpdatePlatformFee, events.EventSettingsFeeUpdated, func(settings *domain.Settings) {
		settings.PlatformFeeBps = req.FeeBps
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("platform fee updated", zap.Uint32("platform_fee_bps", req.FeeBps))
	return result, nil
}

func (s *Service) UpdateEscrowPeriod(ctx context.Context, req domain.UpdateEscrowPeriodRequest) (result *domain.SettingsResult, err error) {
	ctx, done := s.instrument(ctx, domain.OperationUpdateEscrowPeriod)
	defer func() { done(err) }()

	if err := s.requireAdmin(ctx, req.Admin, authorization.ObjectSettings, authorization.ActionSettingsUpdate); err != nil {
		return nil, err
	}
	if err := domain.ValidateEscrowPeriod(req.Period); err != nil {
		return nil, err
	}

	seconds := int64(req.Period / time.Second)
	result, err = s.updateSettings(ctx, domain.OperationUpdateEscrowPeriod, events.EventSettingsEscrowPeriodUpdated, func(settings *domain.Settings) {
		settings.EscrowPeriodSeconds = seconds
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("escrow period updated", zap.Duration("escrow_period", time.Duration(seconds)*time.Second))
	return result, nil
}

func (s *Service) GetPurchase(ctx context.Context, id int64) (*domain.Purchase, error) {
	if id <= 0 {
		return nil, domain.ErrInvalidID
	}
	return s.findPurchase(ctx, s.db, id)
}

func (s *Service) ListPurchases(ctx context.Context, req domain.ListRequest) ([]domain.Purchase, error) {
	req.Buyer = strings.TrimSpace(req.Buyer)
	req.Seller = strings.TrimSpace(req.Seller)
	if req.Status != "" {
		status, err := domain.ParseStatus(string(req.Status))
		if err != nil {
			return nil, err
		}
		req.Status = status
	}
	return s.repo.List(ctx, s.db, req)
}

func (s *Service) ListReleasable(ctx context.Context, limit int) ([]domain.Purchase, error) {
	if limit <= 0 {
		limit = pagination.DefaultPageSize
	}
	return s.repo.ListReleasable(ctx, s.db, s.clock.Now(), limit)
}

func (s *Service) GetSettings(ctx context.Context) (*domain.Settings, error) {
	return s.loadSettings(ctx, s.db)
}

func (s *Service) EnsureSettings(ctx context.Context) (*domain.Settings, error) {
	var settings *domain.Settings
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		settings, err = s.loadSettings(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// Summary reports custody against open purchases in one snapshot.
func (s *Service) Summary(ctx context.Context) (*domain.Summary, error) {
	summary := &domain.Summary{CustodyAccount: ledgerdomain.EscrowCustodyAccount}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balance, err := s.ledger.BalanceTx(ctx, tx, ledgerdomain.EscrowCustodyAccount)
		if err != nil {
			return err
		}
		total, count, err := s.repo.SumInEscrow(ctx, tx)
		if err != nil {
			return err
		}
		summary.CustodyBalance = balance
		summary.OutstandingAmount = total
		summary.OpenPurchases = count
		return nil
	})
	if err != nil {
		return nil, err
	}
	summary.Balanced = summary.CustodyBalance == summary.OutstandingAmount
	if !summary.Balanced {
		s.log.Error("escrow custody out of balance",
			zap.Int64("custody_balance", summary.CustodyBalance),
			zap.Int64("outstanding_amount", summary.OutstandingAmount),
		)
	}
	return summary, nil
}

// transition persists the status change with a compare-and-swap on the
// current status and then performs the disbursement, all through tx. The
// swap runs first so a purchase that already left its status can never be
// paid out again.
func (s *Service) transition(
	ctx context.Context,
	tx *gorm.DB,
	purchase *domain.Purchase,
	to domain.PurchaseStatus,
	disbursement domain.Disbursement,
	settings *domain.Settings,
	now time.Time,
	operation string,
) (*domain.Result, error) {
	from := purchase.Status
	next := *purchase
	next.Status = to
	next.UpdatedAt = now

	if to == domain.StatusShipped {
		shippedAt := now
		releaseAt := now.Add(settings.EscrowPeriod())
		next.ShippedAt = &shippedAt
		next.EscrowReleaseTime = &releaseAt
	}

	moves, err := s.planDisbursement(&next, disbursement, settings)
	if err != nil {
		return nil, err
	}
	if disbursement != domain.DisburseNone {
		settledAt := now
		next.SettledAt = &settledAt
	}

	if err := s.repo.CompareAndSetStatus(ctx, tx, &next, from); err != nil {
		if !errors.Is(err, domain.ErrStaleStatus) {
			return nil, err
		}
		current, findErr := s.findPurchase(ctx, tx, purchase.ID)
		if findErr != nil {
			return nil, findErr
		}
		return nil, &domain.TransitionError{From: current.Status, To: to}
	}

	for _, move := range moves {
		if err := s.ledger.Transfer(ctx, tx, ledgerdomain.TransferRequest{
			From:       move.From,
			To:         move.To,
			Amount:     move.Amount,
			SourceType: ledgerdomain.LedgerSourceType(move.Reason),
			SourceID:   next.ID,
			OccurredAt: now,
		}); err != nil {
			return nil, err
		}
	}

	return &domain.Result{
		Operation:      operation,
		PurchaseID:     next.ID,
		ProductID:      next.ProductID,
		PreviousStatus: from,
		Status:         next.Status,
		Moves:          moves,
		Purchase:       next,
	}, nil
}

// planDisbursement computes the custody outflows for a terminal transition
// and stamps fee and proceeds on p.
func (s *Service) planDisbursement(p *domain.Purchase, disbursement domain.Disbursement, settings *domain.Settings) ([]domain.Move, error) {
	switch disbursement {
	case domain.DisburseSeller:
		fee, share, err := domain.SplitFee(p.Amount, settings.PlatformFeeBps)
		if err != nil {
			return nil, err
		}
		p.PlatformFee = fee
		p.SellerProceeds = share

		moves := make([]domain.Move, 0, 2)
		if share > 0 {
			moves = append(moves, domain.Move{
				From:   ledgerdomain.EscrowCustodyAccount,
				To:     p.Seller,
				Amount: share,
				Reason: string(ledgerdomain.SourceTypeEscrowRelease),
			})
		}
		if fee > 0 {
			moves = append(moves, domain.Move{
				From:   ledgerdomain.EscrowCustodyAccount,
				To:     settings.FeeRecipient,
				Amount: fee,
				Reason: string(ledgerdomain.SourceTypePlatformFee),
			})
		}
		return moves, nil

	case domain.DisburseBuyer:
		p.PlatformFee = 0
		p.SellerProceeds = 0
		return []domain.Move{{
			From:   ledgerdomain.EscrowCustodyAccount,
			To:     p.Buyer,
			Amount: p.Amount,
			Reason: string(ledgerdomain.SourceTypeEscrowRefund),
		}}, nil

	default:
		return []domain.Move{}, nil
	}
}

func (s *Service) updateSettings(
	ctx context.Context,
	operation string,
	eventType events.EventType,
	apply func(*domain.Settings),
) (*domain.SettingsResult, error) {
	release, err := s.locker.Acquire(ctx, lock.SettingsKey)
	if err != nil {
		return nil, err
	}
	defer release()

	var result *domain.SettingsResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		settings, err := s.loadSettings(ctx, tx)
		if err != nil {
			return err
		}
		apply(settings)
		settings.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateSettings(ctx, tx, settings); err != nil {
			return err
		}

		result = &domain.SettingsResult{Operation: operation, Settings: *settings}
		if s.outbox == nil {
			return nil
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			Type:          eventType,
			AggregateType: events.AggregateSettings,
			AggregateID:   domain.SettingsID,
			Payload:       result,
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// loadSettings reads the settings row, seeding it from bootstrap config on
// first use.
func (s *Service) loadSettings(ctx context.Context, tx *gorm.DB) (*domain.Settings, error) {
	settings, err := s.repo.GetSettings(ctx, tx)
	if err != nil {
		return nil, err
	}
	if settings != nil {
		return settings, nil
	}

	seed, err := s.seedSettings()
	if err != nil {
		return nil, err
	}
	if err := s.repo.InsertSettingsIfMissing(ctx, tx, seed); err != nil {
		return nil, err
	}
	settings, err = s.repo.GetSettings(ctx, tx)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return nil, errors.New("engine settings missing after seed")
	}
	return settings, nil
}

func (s *Service) seedSettings() (*domain.Settings, error) {
	if err := domain.ValidateFeeBps(s.bootstrap.PlatformFeeBps); err != nil {
		return nil, err
	}
	if err := domain.ValidateEscrowPeriod(s.bootstrap.EscrowPeriod); err != nil {
		return nil, err
	}
	recipient := strings.TrimSpace(s.bootstrap.FeeRecipient)
	if recipient == "" {
		recipient = strings.TrimSpace(s.bootstrap.AdminID)
	}
	if !validIdentity(recipient) {
		return nil, domain.ErrInvalidCaller
	}
	return &domain.Settings{
		ID:                  domain.SettingsID,
		PlatformFeeBps:      s.bootstrap.PlatformFeeBps,
		EscrowPeriodSeconds: int64(s.bootstrap.EscrowPeriod / time.Second),
		FeeRecipient:        recipient,
		UpdatedAt:           s.clock.Now(),
	}, nil
}

func (s *Service) requireAdmin(ctx context.Context, admin, object, action string) error {
	admin = strings.TrimSpace(admin)
	if admin == "" {
		return domain.ErrNotAdmin
	}
	if err := s.authz.Authorize(ctx, admin, object, action); err != nil {
		if errors.Is(err, authorization.ErrForbidden) || errors.Is(err, authorization.ErrInvalidActor) {
			return domain.ErrNotAdmin
		}
		return err
	}
	return nil
}

func (s *Service) findPurchase(ctx context.Context, tx *gorm.DB, id int64) (*domain.Purchase, error) {
	purchase, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if purchase == nil {
		return nil, domain.ErrNotFound
	}
	return purchase, nil
}

func (s *Service) publish(ctx context.Context, tx *gorm.DB, eventType events.EventType, result *domain.Result) error {
	if s.outbox == nil {
		return nil
	}
	return s.outbox.PublishTx(ctx, tx, events.Event{
		Type:          eventType,
		AggregateType: events.AggregatePurchase,
		AggregateID:   result.PurchaseID,
		Payload:       result,
	})
}

func (s *Service) recordDisbursement(result *domain.Result) {
	if result == nil {
		return
	}
	for _, move := range result.Moves {
		switch ledgerdomain.LedgerSourceType(move.Reason) {
		case ledgerdomain.SourceTypeEscrowRelease:
			s.obsMetrics.AddDisbursed("seller", move.Amount)
		case ledgerdomain.SourceTypePlatformFee:
			s.obsMetrics.AddDisbursed("platform", move.Amount)
		case ledgerdomain.SourceTypeEscrowRefund:
			s.obsMetrics.AddDisbursed("buyer", move.Amount)
		}
	}
}

func (s *Service) instrument(ctx context.Context, operation string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "escrow."+operation, attribute.String("operation", operation))
	return ctx, func(err error) {
		tracing.EndSpan(span, err)
		s.obsMetrics.ObserveOperation(operation, err, time.Since(start))
	}
}

func statusEvent(to domain.PurchaseStatus) events.EventType {
	switch to {
	case domain.StatusShipped:
		return events.EventPurchaseShipped
	case domain.StatusCompleted:
		return events.EventPurchaseCompleted
	case domain.StatusRefunded:
		return events.EventPurchaseRefunded
	default:
		return events.EventPurchaseDisputed
	}
}

func validIdentity(id string) bool {
	return id != "" && len(id) <= 128 && !ledgerdomain.IsSystemAccount(id)
}
