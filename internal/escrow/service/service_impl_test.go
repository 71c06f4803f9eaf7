package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/shoptok/internal/authorization"
	catalogdomain "github.com/smallbiznis/shoptok/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/shoptok/internal/catalog/repository"
	catalogservice "github.com/smallbiznis/shoptok/internal/catalog/service"
	"github.com/smallbiznis/shoptok/internal/clock"
	"github.com/smallbiznis/shoptok/internal/config"
	"github.com/smallbiznis/shoptok/internal/escrow/domain"
	"github.com/smallbiznis/shoptok/internal/escrow/repository"
	"github.com/smallbiznis/shoptok/internal/escrow/service"
	"github.com/smallbiznis/shoptok/internal/events"
	ledgerdomain "github.com/smallbiznis/shoptok/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/shoptok/internal/ledger/service"
	"github.com/smallbiznis/shoptok/internal/lock"
	"github.com/smallbiznis/shoptok/internal/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	admin  = "admin"
	seller = "seller-1"
	buyer  = "buyer-1"
)

type harness struct {
	db      *gorm.DB
	clock   *clock.FakeClock
	ledger  ledgerdomain.Service
	catalog catalogdomain.Service
	escrow  domain.Service
	outbox  *events.Outbox
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:escrow_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func setupHarness(t *testing.T, settlement config.SettlementConfig) *harness {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	locker := lock.NewMemoryLocker()
	outbox := events.NewOutbox(events.OutboxParams{GenID: node, Clock: fake})

	cfg := config.Config{Settlement: settlement}
	enforcer, err := authorization.NewEnforcer(cfg)
	if err != nil {
		t.Fatalf("new enforcer: %v", err)
	}
	authz := authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer})

	ledger := ledgerservice.NewService(ledgerservice.Params{DB: db, Log: log, GenID: node, Clock: fake})
	catalog := catalogservice.New(catalogservice.Params{
		DB:     db,
		Log:    log,
		Repo:   catalogrepo.Provide(),
		Clock:  fake,
		Locker: locker,
		Outbox: outbox,
	})
	escrow := service.New(service.Params{
		DB:      db,
		Log:     log,
		Config:  cfg,
		Repo:    repository.Provide(),
		Catalog: catalog,
		Ledger:  ledger,
		Authz:   authz,
		Locker:  locker,
		Clock:   fake,
		Outbox:  outbox,
	})

	return &harness{db: db, clock: fake, ledger: ledger, catalog: catalog, escrow: escrow, outbox: outbox}
}

func defaultSettlement() config.SettlementConfig {
	return config.SettlementConfig{
		AdminID:        admin,
		FeeRecipient:   admin,
		PlatformFeeBps: 250,
		EscrowPeriod:   7 * 24 * time.Hour,
	}
}

func (h *harness) listProduct(t *testing.T, price int64) int64 {
	t.Helper()
	res, err := h.catalog.ListProduct(context.Background(), catalogdomain.ListProductRequest{Seller: seller, Price: price, MetadataRef: "ipfs://item"})
	require.NoError(t, err)
	return res.ProductIDs[0]
}

func (h *harness) deposit(t *testing.T, owner string, amount int64) {
	t.Helper()
	_, err := h.ledger.Deposit(context.Background(), owner, amount)
	require.NoError(t, err)
}

func (h *harness) balance(t *testing.T, owner string) int64 {
	t.Helper()
	b, err := h.ledger.Balance(context.Background(), owner)
	require.NoError(t, err)
	return b
}

func (h *harness) purchase(t *testing.T, productID int64) int64 {
	t.Helper()
	res, err := h.escrow.PurchaseProduct(context.Background(), domain.PurchaseRequest{Buyer: buyer, ProductID: productID})
	require.NoError(t, err)
	return res.PurchaseID
}

func (h *harness) setStatus(caller string, purchaseID int64, status domain.PurchaseStatus) (*domain.Result, error) {
	return h.escrow.UpdatePurchaseStatus(context.Background(), domain.UpdateStatusRequest{Caller: caller, PurchaseID: purchaseID, Status: status})
}

func (h *harness) assertConserved(t *testing.T) {
	t.Helper()
	summary, err := h.escrow.Summary(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Balanced, "custody %d != outstanding %d", summary.CustodyBalance, summary.OutstandingAmount)
}

func TestPurchaseShipCompleteSplitsFee(t *testing.T) {
	h := setupHarness(t, defaultSettlement())
	ctx := context.Background()

	productID := h.listProduct(t, 100)
	h.deposit(t, buyer, 100)

	res, err := h.escrow.PurchaseProduct(ctx, domain.PurchaseRequest{Buyer: buyer, ProductID: productID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.PurchaseID)
	assert.Equal(t, domain.StatusPending, res.Status)
	assert.Equal(t, []domain.Move{{From: buyer, To: ledgerdomain.EscrowCustodyAccount, Amount: 100, Reason: "purchase_escrow"}}, res.Moves)
	assert.Equal(t, int64(0), h.balance(t, buyer))
	assert.Equal(t, int64(100), h.balance(t, ledgerdomain.EscrowCustodyAccount))
	h.assertConserved(t)

	shipped, err := h.setStatus(seller, res.PurchaseID, domain.StatusShipped)
	require.NoError(t, err)
	require.NotNil(t, shipped.Purchase.EscrowReleaseTime)
	assert.Equal(t, h.clock.Now().Add(7*24*time.Hour), shipped.Purchase.EscrowReleaseTime.UTC())
	assert.Empty(t, shipped.Moves)

	completed, err := h.setStatus(buyer, res.PurchaseID, domain.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusShipped, completed.PreviousStatus)
	assert.Equal(t, domain.StatusCompleted, completed.Status)
	assert.Equal(t, int64(2), completed.Purchase.PlatformFee)
	assert.Equal(t, int64(98), completed.Purchase.SellerProceeds)

	assert.Equal(t, int64(98), h.balance(t, seller))
	assert.Equal(t, int64(2), h.balance(t, admin))
	assert.Equal(t, int64(0), h.balance(t, ledgerdomain.EscrowCustodyAccount))
	h.assertConserved(t)

	entries, err := h.ledger.Entries(ctx, ledgerdomain.SourceTypeEscrowRelease, res.PurchaseID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Lines, 2)

	stored, err := h.escrow.GetPurchase(ctx, res.PurchaseID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	assert.NotNil(t, stored.SettledAt)
}

func TestPurchaseSnapshotsPrice(t *testing.T) {
	h := setupHarness(t, defaultSettlement())
	ctx := context.Background()

	productID := h.listProduct(t, 100)
	h.deposit(t, buyer, 100)
	purchaseID := h.purchase(t, productID)

	newPrice := int64(500)
	_, err := h.catalog.UpdateProduct(ctx, catalogdomain.UpdateProductRequest{Caller: seller, ProductID: productID, Price: &newPrice})
	require.NoError(t, err)

	_, err = h.setStatus(seller, purchaseID, domain.StatusRefunded)
	require.NoError(t, err)
	assert.Equal(t, int64(100), h.balance(t, buyer))
	h.assertConserved(t)
}

func TestPurchaseValidation(t *testing.T) {
	h := setupHarness(t, defaultSettlement())
	ctx := context.Background()

	productID := h.listProduct(t, 100)

	_, err := h.escrow.PurchaseProduct(ctx, domain.PurchaseRequest{Buyer: buyer, ProductID: 999})
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.escrow.PurchaseProduct(ctx, domain.PurchaseRequest{Buyer: seller, ProductID: productID})
	require.ErrorIs(t, err, domain.ErrSelfPurchase)

	_, err = h.escrow.PurchaseProduct(ctx, domain.PurchaseRequest{Buyer: "", ProductID: productID})
	require.ErrorIs(t, err, domain.ErrInvalidCaller)

	_, err = h.escrow.PurchaseProduct(ctx, domain.PurchaseRequest{Buyer: ledgerdomain.EscrowCustodyAccount, ProductID: productID})
	require.ErrorIs(t, err, domain.ErrInvalidCaller)

	_, err = h.escrow.PurchaseProduct(ctx, domain.PurchaseRequest{Buyer: buyer, ProductID: productID})
	require.ErrorIs(t, err, ledgerdomain.ErrInsufficientFunds)

	inactive := false
	_, err = h.catalog.UpdateProduct(ctx, catalogdomain.UpdateProductRequest{Caller: seller, ProductID: productID, Active: &inactive})
	require.NoError(t, err)
	h.deposit(t, buyer, 100)

	_, err = h.escrow.PurchaseProduct(ctx, domain.PurchaseRequest{Buyer: buyer, ProductID: productID})
	require.ErrorIs(t, err, domain.ErrInactive)

	purchases, err := h.escrow.ListPurchases(ctx, domain.ListRequest{Buyer: buyer})
	require.NoError(t, err)
	assert.Empty(t, purchases)
	assert.Equal(t, int64(100), h.balance(t, buyer))
}

func TestFailedPurchaseDoesNotConsumeID(t *testing.T) {
	h := setupHarness(t, defaultSettlement())

	productID := h.listProduct(t, 100)
	_, err := h.escrow.PurchaseProduct(context.Background(), domain.PurchaseRequest{Buyer: buyer, ProductID: productID})
	require.ErrorIs(t, err, ledgerdomain.ErrInsufficientFunds)

	h.deposit(t, buyer, 100)
	assert.Equal(t, int64(1), h.purchase(t, productID))
}

func TestDisputeResolvedForBuyerOnlyOnce(t *testing.T) {
	h := setupHarness(t, defaultSettlement())
	ctx := context.Background()

	productID := h.listProduct(t, 100)
	h.deposit(t, buyer, 100)
	purchaseID := h.purchase(t, productID)

	_, err := h.setStatus(seller, purchaseID, domain.StatusShipped)
	require.NoError(t, err)
	_, err = h.setStatus(buyer, purchaseID, domain.StatusDisputed)
	require.NoError(t, err)

	_, err = h.setStatus(buyer, purchaseID, domain.StatusCompleted)
	require.ErrorIs(t, err, domain.ErrIllegalTransition)

	_, err = h.escrow.ResolveDispute(ctx, domain.ResolveDisputeRequest{Admin: seller, PurchaseID: purchaseID, RefundToBuyer: false})
	require.ErrorIs(t, err, domain.ErrNotAdmin)

	res, err := h.escrow.ResolveDispute(ctx, domain.ResolveDisputeRequest{Admin: admin, PurchaseID: purchaseID, RefundToBuyer: true})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, res.Status)
	assert.Equal(t, int64(100), h.balance(t, buyer))
	assert.Equal(t, int64(0), h.balance(t, seller))

	_, err = h.escrow.ResolveDispute(ctx, domain.ResolveDisputeRequest{Admin: admin, PurchaseID: purchaseID, RefundToBuyer: false})
	require.ErrorIs(t, err, domain.ErrIllegalTransition)
	require.ErrorIs(t, err, domain.ErrAlreadyTerminal)
	assert.Equal(t, int64(0), h.balance(t, seller))
	h.assertConserved(t)
}

func TestDisputeResolvedForSellerPaysFee(t *testing.T) {
	h := setupHarness(t, defaultSettlement())
	ctx := context.Background()

	productID := h.listProduct(t, 1_000)
	h.deposit(t, buyer, 1_000)
	purchaseID := h.purchase(t, productID)

	_, err := h.setStatus(buyer, purchaseID, domain.StatusDisputed)
	require.NoError(t, err)

	res, err := h.escrow.ResolveDispute(ctx, domain.ResolveDisputeRequest{Admin: admin, PurchaseID: purchaseID})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Status)
	assert.Equal(t, int64(975), h.balance(t, seller))
	assert.Equal(t, int64(25), h.balance(t, admin))
	h.assertConserved(t)
}

func TestResolveRequiresDispute(t *testing.T) {
	h := setupHarness(t, defaultSettlement())

	productID := h.listProduct(t, 100)
	h.deposit(t, buyer, 100)
	purchaseID := h.purchase(t, productID)

	_, err := h.escrow.ResolveDispute(context.Background(), domain.ResolveDisputeRequest{Admin: admin, PurchaseID: purchaseID, RefundToBuyer: true})
	require.ErrorIs(t, err, domain.ErrIllegalTransition)
	assert.Equal(t, int64(0), h.balance(t, buyer))
}

func TestTerminalPurchaseRejectsFurtherMoves(t *testing.T) {
	h := setupHarness(t, defaultSettlement())

	productID := h.listProduct(t, 100)
	h.deposit(t, buyer, 100)
	purchaseID := h.purchase(t, productID)

	_, err := h.setStatus(seller, purchaseID, domain.StatusRefunded)
	require.NoError(t, err)

	for _, tc := range []struct {
		caller string
		to     domain.PurchaseStatus
	}{
		{seller, domain.StatusRefunded},
		{buyer, domain.StatusDisputed},
		{seller, domain.StatusShipped},
		{buyer, domain.StatusCompleted},
	} {
		_, err := h.setStatus(tc.caller, purchaseID, tc.to)
		require.ErrorIs(t, err, domain.ErrAlreadyTerminal, "%s -> %s", tc.caller, tc.to)
	}
	assert.Equal(t, int64(100), h.balance(t, buyer))
	h.assertConserved(t)
}

func TestRoleChecks(t *testing.T) {
	h := setupHarness(t, defaultSettlement())

	productID := h.listProduct(t, 100)
	h.deposit(t, buyer, 100)
	purchaseID := h.purchase(t, productID)

	_, err := h.setStatus(buyer, purchaseID, domain.StatusShipped)
	require.ErrorIs(t, err, domain.ErrNotSeller)
	_, err = h.setStatus(buyer, purchaseID, domain.StatusRefunded)
	require.ErrorIs(t, err, domain.ErrNotSeller)
	_, err = h.setStatus(seller, purchaseID, domain.StatusDisputed)
	require.ErrorIs(t, err, domain.ErrNotBuyer)
	_, err = h.setStatus(buyer, purchaseID, "lost")
	require.ErrorIs(t, err, domain.ErrInvalidStatus)
	_, err = h.setStatus(buyer, 42, domain.StatusDisputed)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEscrowTimeoutLetsAnyoneComplete(t *testing.T) {
	h := setupHarness(t, defaultSettlement())

	productID := h.listProduct(t, 100)
	h.deposit(t, buyer, 100)
	purchaseID := h.purchase(t, productID)

	_, err := h.setStatus(seller, purchaseID, domain.StatusShipped)
	require.NoError(t, err)

	_, err = h.setStatus(seller, purchaseID, domain.StatusCompleted)
	require.ErrorIs(t, err, domain.ErrEscrowPeriodActive)

	h.clock.Advance(7*24*time.Hour - time.Second)
	_, err = h.setStatus("keeper", purchaseID, domain.StatusCompleted)
	require.ErrorIs(t, err, domain.ErrEscrowPeriodActive)

	h.clock.Advance(time.Second)
	res, err := h.setStatus("keeper", purchaseID, domain.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Status)
	assert.Equal(t, int64(98), h.balance(t, seller))
	assert.Equal(t, int64(0), h.balance(t, "keeper"))
}

func TestEscrowPeriodChangeKeepsExistingReleaseTime(t *testing.T) {
	h := setupHarness(t, defaultSettlement())
	ctx := context.Background()

	productID := h.listProduct(t, 100)
	h.deposit(t, buyer, 100)
	purchaseID := h.purchase(t, productID)
	_, err := h.setStatus(seller, purchaseID, domain.StatusShipped)
	require.NoError(t, err)

	_, err = h.escrow.UpdateEscrowPeriod(ctx, domain.UpdateEscrowPeriodRequest{Admin: admin, Period: time.Hour})
	require.NoError(t, err)

	h.clock.Advance(2 * time.Hour)
	_, err = h.setStatus("keeper", purchaseID, domain.StatusCompleted)
	require.ErrorIs(t, err, domain.ErrEscrowPeriodActive)
}

func TestZeroEscrowPeriodReleasesImmediately(t *testing.T) {
	settlement := defaultSettlement()
	settlement.EscrowPeriod = 0
	h := setupHarness(t, settlement)

	productID := h.listProduct(t, 100)
	h.deposit(t, buyer, 100)
	purchaseID := h.purchase(t, productID)
	_, err := h.setStatus(seller, purchaseID, domain.StatusShipped)
	require.NoError(t, err)

	_, err = h.setStatus(seller, purchaseID, domain.StatusCompleted)
	require.NoError(t, err)
}

func TestFeeChangeAppliesAtSettlement(t *testing.T) {
	h := setupHarness(t, defaultSettlement())
	ctx := context.Background()

	productID := h.listProduct(t, 1_000)
	h.deposit(t, buyer, 1_000)
	purchaseID := h.purchase(t, productID)
	_, err := h.setStatus(seller, purchaseID, domain.StatusShipped)
	require.NoError(t, err)

	res, err := h.escrow.UpdatePlatformFee(ctx, domain.UpdatePlatformFeeRequest{Admin: admin, FeeBps: 1_000})
	require.NoError(t, err)
	assert.Equal(t, uint32(1_000), res.Settings.PlatformFeeBps)

	_, err = h.setStatus(buyer, purchaseID, domain.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, int64(900), h.balance(t, seller))
	assert.Equal(t, int64(100), h.balance(t, admin))
}

func TestZeroFeeSkipsFeeTransfer(t *testing.T) {
	settlement := defaultSettlement()
	settlement.PlatformFeeBps = 0
	h := setupHarness(t, settlement)

	productID := h.listProduct(t, 100)
	h.deposit(t, buyer, 100)
	purchaseID := h.purchase(t, productID)
	_, err := h.setStatus(seller, purchaseID, domain.StatusShipped)
	require.NoError(t, err)

	res, err := h.setStatus(buyer, purchaseID, domain.StatusCompleted)
	require.NoError(t, err)
	require.Len(t, res.Moves, 1)
	assert.Equal(t, int64(100), h.balance(t, seller))

	entries, err := h.ledger.Entries(context.Background(), ledgerdomain.SourceTypePlatformFee, purchaseID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSettingsRequireAdmin(t *testing.T) {
	h := setupHarness(t, defaultSettlement())
	ctx := context.Background()

	_, err := h.escrow.UpdatePlatformFee(ctx, domain.UpdatePlatformFeeRequest{Admin: seller, FeeBps: 100})
	require.ErrorIs(t, err, domain.ErrNotAdmin)

	_, err = h.escrow.UpdatePlatformFee(ctx, domain.UpdatePlatformFeeRequest{Admin: admin, FeeBps: 1_001})
	require.ErrorIs(t, err, domain.ErrFeeTooHigh)

	_, err = h.escrow.UpdateEscrowPeriod(ctx, domain.UpdateEscrowPeriodRequest{Admin: buyer, Period: time.Hour})
	require.ErrorIs(t, err, domain.ErrNotAdmin)

	_, err = h.escrow.UpdateEscrowPeriod(ctx, domain.UpdateEscrowPeriodRequest{Admin: admin, Period: -time.Second})
	require.ErrorIs(t, err, domain.ErrInvalidPeriod)
	_, err = h.escrow.UpdateEscrowPeriod(ctx, domain.UpdateEscrowPeriodRequest{Admin: admin, Period: 1500 * time.Millisecond})
	require.ErrorIs(t, err, domain.ErrInvalidPeriod)
	_, err = h.escrow.UpdateEscrowPeriod(ctx, domain.UpdateEscrowPeriodRequest{Admin: admin, Period: time.Millisecond})
	require.ErrorIs(t, err, domain.ErrInvalidPeriod)

	settings, err := h.escrow.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(250), settings.PlatformFeeBps)
	assert.Equal(t, 7*24*time.Hour, settings.EscrowPeriod())
	assert.Equal(t, admin, settings.FeeRecipient)
}

func TestEnsureSettingsKeepsPersistedValues(t *testing.T) {
	h := setupHarness(t, defaultSettlement())
	ctx := context.Background()

	_, err := h.escrow.UpdatePlatformFee(ctx, domain.UpdatePlatformFeeRequest{Admin: admin, FeeBps: 50})
	require.NoError(t, err)

	settings, err := h.escrow.EnsureSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(50), settings.PlatformFeeBps)
}

func TestConcurrentCompletionPaysOnce(t *testing.T) {
	h := setupHarness(t, defaultSettlement())

	productID := h.listProduct(t, 100)
	h.deposit(t, buyer, 100)
	purchaseID := h.purchase(t, productID)
	_, err := h.setStatus(seller, purchaseID, domain.StatusShipped)
	require.NoError(t, err)
	h.clock.Advance(8 * 24 * time.Hour)

	callers := []string{buyer, seller, "keeper-1", "keeper-2", "keeper-3"}
	errs := make([]error, len(callers))
	var wg sync.WaitGroup
	for i, caller := range callers {
		wg.Add(1)
		go func(i int, caller string) {
			defer wg.Done()
			_, errs[i] = h.setStatus(caller, purchaseID, domain.StatusCompleted)
		}(i, caller)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, domain.ErrAlreadyTerminal)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(98), h.balance(t, seller))
	assert.Equal(t, int64(2), h.balance(t, admin))
	h.assertConserved(t)
}

func TestConcurrentPurchasesCannotOverspend(t *testing.T) {
	h := setupHarness(t, defaultSettlement())

	first := h.listProduct(t, 100)
	second := h.listProduct(t, 100)
	h.deposit(t, buyer, 150)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, productID := range []int64{first, second} {
		wg.Add(1)
		go func(i int, productID int64) {
			defer wg.Done()
			_, errs[i] = h.escrow.PurchaseProduct(context.Background(), domain.PurchaseRequest{Buyer: buyer, ProductID: productID})
		}(i, productID)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, ledgerdomain.ErrInsufficientFunds)
			failed++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, int64(50), h.balance(t, buyer))
	h.assertConserved(t)
}

func TestOperationsWriteOutboxEvents(t *testing.T) {
	h := setupHarness(t, defaultSettlement())
	ctx := context.Background()

	productID := h.listProduct(t, 100)
	h.deposit(t, buyer, 100)
	purchaseID := h.purchase(t, productID)
	_, err := h.setStatus(seller, purchaseID, domain.StatusShipped)
	require.NoError(t, err)
	_, err = h.setStatus(buyer, purchaseID, domain.StatusCompleted)
	require.NoError(t, err)

	_, err = h.setStatus(buyer, purchaseID, domain.StatusCompleted)
	require.Error(t, err)

	records, err := h.outbox.ForAggregate(ctx, h.db, events.AggregatePurchase, purchaseID)
	require.NoError(t, err)
	got := make([]events.EventType, 0, len(records))
	for _, r := range records {
		got = append(got, r.EventType)
	}
	assert.Equal(t, []events.EventType{
		events.EventPurchaseCreated,
		events.EventPurchaseShipped,
		events.EventPurchaseCompleted,
	}, got)
}

func TestListPurchasesFilters(t *testing.T) {
	h := setupHarness(t, defaultSettlement())
	ctx := context.Background()

	productID := h.listProduct(t, 10)
	h.deposit(t, buyer, 30)
	first := h.purchase(t, productID)
	h.purchase(t, productID)
	h.purchase(t, productID)
	_, err := h.setStatus(seller, first, domain.StatusRefunded)
	require.NoError(t, err)

	pending, err := h.escrow.ListPurchases(ctx, domain.ListRequest{Seller: seller, Status: domain.StatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	refunded, err := h.escrow.ListPurchases(ctx, domain.ListRequest{Buyer: buyer, Status: domain.StatusRefunded})
	require.NoError(t, err)
	require.Len(t, refunded, 1)
	assert.Equal(t, first, refunded[0].ID)

	summary, err := h.escrow.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.OpenPurchases)
	assert.Equal(t, int64(20), summary.CustodyBalance)
	assert.True(t, summary.Balanced)
}

func TestListReleasableReturnsElapsedShipments(t *testing.T) {
	h := setupHarness(t, defaultSettlement())
	ctx := context.Background()

	productID := h.listProduct(t, 10)
	h.deposit(t, buyer, 30)
	early := h.purchase(t, productID)
	late := h.purchase(t, productID)
	h.purchase(t, productID)

	_, err := h.setStatus(seller, early, domain.StatusShipped)
	require.NoError(t, err)
	h.clock.Advance(time.Hour)
	_, err = h.setStatus(seller, late, domain.StatusShipped)
	require.NoError(t, err)

	due, err := h.escrow.ListReleasable(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	h.clock.Advance(7 * 24 * time.Hour)
	due, err = h.escrow.ListReleasable(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, early, due[0].ID)
	assert.Equal(t, late, due[1].ID)

	limited, err := h.escrow.ListReleasable(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, early, limited[0].ID)
}
