package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/shoptok/internal/authorization"
	catalogdomain "github.com/smallbiznis/shoptok/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/shoptok/internal/catalog/repository"
	catalogservice "github.com/smallbiznis/shoptok/internal/catalog/service"
	"github.com/smallbiznis/shoptok/internal/clock"
	"github.com/smallbiznis/shoptok/internal/config"
	escrowdomain "github.com/smallbiznis/shoptok/internal/escrow/domain"
	escrowrepo "github.com/smallbiznis/shoptok/internal/escrow/repository"
	escrowservice "github.com/smallbiznis/shoptok/internal/escrow/service"
	"github.com/smallbiznis/shoptok/internal/events"
	ledgerdomain "github.com/smallbiznis/shoptok/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/shoptok/internal/ledger/service"
	"github.com/smallbiznis/shoptok/internal/lock"
	"github.com/smallbiznis/shoptok/internal/migration"
	obsmetrics "github.com/smallbiznis/shoptok/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testAdmin  = "admin"
	testSeller = "seller-1"
	testBuyer  = "buyer-1"
)

type fixture struct {
	clock   *clock.FakeClock
	ledger  ledgerdomain.Service
	catalog catalogdomain.Service
	escrow  escrowdomain.Service
	sched   *Scheduler
	reg     *prometheus.Registry
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:scheduler_%d?mode=memory&cache=shared", time.Now().UnixNano())
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

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	locker := lock.NewMemoryLocker()
	outbox := events.NewOutbox(events.OutboxParams{GenID: node, Clock: fake})

	cfg := config.Config{Settlement: config.SettlementConfig{
		AdminID:        testAdmin,
		FeeRecipient:   testAdmin,
		PlatformFeeBps: 250,
		EscrowPeriod:   7 * 24 * time.Hour,
	}}
	enforcer, err := authorization.NewEnforcer(cfg)
	if err != nil {
		t.Fatalf("new enforcer: %v", err)
	}

	reg := prometheus.NewRegistry()
	metrics, err := obsmetrics.New(obsmetrics.Config{ServiceName: "shoptok", Environment: "test"}, reg)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}

	ledger := ledgerservice.NewService(ledgerservice.Params{DB: db, Log: log, GenID: node, Clock: fake})
	catalog := catalogservice.New(catalogservice.Params{
		DB:     db,
		Log:    log,
		Repo:   catalogrepo.Provide(),
		Clock:  fake,
		Locker: locker,
		Outbox: outbox,
	})
	escrow := escrowservice.New(escrowservice.Params{
		DB:      db,
		Log:     log,
		Config:  cfg,
		Repo:    escrowrepo.Provide(),
		Catalog: catalog,
		Ledger:  ledger,
		Authz:   authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer}),
		Locker:  locker,
		Clock:   fake,
		Outbox:  outbox,
	})

	sched, err := New(Params{
		Log:        log,
		Escrow:     escrow,
		GenID:      node,
		Clock:      fake,
		Config:     Config{BatchSize: 10, KeeperID: "escrow-keeper"},
		ObsMetrics: metrics,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	return &fixture{clock: fake, ledger: ledger, catalog: catalog, escrow: escrow, sched: sched, reg: reg}
}

func (f *fixture) shippedPurchase(t *testing.T, price int64) int64 {
	t.Helper()
	ctx := context.Background()

	listed, err := f.catalog.ListProduct(ctx, catalogdomain.ListProductRequest{Seller: testSeller, Price: price, MetadataRef: "ipfs://item"})
	require.NoError(t, err)
	_, err = f.ledger.Deposit(ctx, testBuyer, price)
	require.NoError(t, err)
	bought, err := f.escrow.PurchaseProduct(ctx, escrowdomain.PurchaseRequest{Buyer: testBuyer, ProductID: listed.ProductIDs[0]})
	require.NoError(t, err)
	_, err = f.escrow.UpdatePurchaseStatus(ctx, escrowdomain.UpdateStatusRequest{
		Caller:     testSeller,
		PurchaseID: bought.PurchaseID,
		Status:     escrowdomain.StatusShipped,
	})
	require.NoError(t, err)
	return bought.PurchaseID
}

func (f *fixture) status(t *testing.T, id int64) escrowdomain.PurchaseStatus {
	t.Helper()
	p, err := f.escrow.GetPurchase(context.Background(), id)
	require.NoError(t, err)
	return p.Status
}

func TestAutoReleaseWaitsForEscrowPeriod(t *testing.T) {
	f := setupFixture(t)
	id := f.shippedPurchase(t, 100)

	f.clock.Advance(7*24*time.Hour - time.Second)
	require.NoError(t, f.sched.RunOnce(context.Background()))

	assert.Equal(t, escrowdomain.StatusShipped, f.status(t, id))
	balance, err := f.ledger.Balance(context.Background(), testSeller)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestAutoReleaseCompletesElapsedPurchases(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	first := f.shippedPurchase(t, 100)
	second := f.shippedPurchase(t, 200)
	disputed := f.shippedPurchase(t, 50)
	_, err := f.escrow.UpdatePurchaseStatus(ctx, escrowdomain.UpdateStatusRequest{
		Caller:     testBuyer,
		PurchaseID: disputed,
		Status:     escrowdomain.StatusDisputed,
	})
	require.NoError(t, err)

	f.clock.Advance(8 * 24 * time.Hour)
	require.NoError(t, f.sched.RunOnce(ctx))

	assert.Equal(t, escrowdomain.StatusCompleted, f.status(t, first))
	assert.Equal(t, escrowdomain.StatusCompleted, f.status(t, second))
	assert.Equal(t, escrowdomain.StatusDisputed, f.status(t, disputed))

	sellerBalance, err := f.ledger.Balance(ctx, testSeller)
	require.NoError(t, err)
	assert.Equal(t, int64(98+195), sellerBalance)
	feeBalance, err := f.ledger.Balance(ctx, testAdmin)
	require.NoError(t, err)
	assert.Equal(t, int64(2+5), feeBalance)
	keeperBalance, err := f.ledger.Balance(ctx, "escrow-keeper")
	require.NoError(t, err)
	assert.Equal(t, int64(0), keeperBalance)

	summary, err := f.escrow.Summary(ctx)
	require.NoError(t, err)
	assert.True(t, summary.Balanced)
	assert.Equal(t, int64(50), summary.CustodyBalance)

	processed := getCounterValue(t, f.reg, "shoptok_scheduler_job_processed_total", map[string]string{
		"service": "shoptok",
		"env":     "test",
		"job":     JobAutoRelease,
	})
	assert.Equal(t, 2.0, processed)

	// a second pass finds nothing left to release
	require.NoError(t, f.sched.RunOnce(ctx))
	sellerBalance, err = f.ledger.Balance(ctx, testSeller)
	require.NoError(t, err)
	assert.Equal(t, int64(98+195), sellerBalance)
}

func TestRunJobTimeoutIsSoft(t *testing.T) {
	f := setupFixture(t)

	err := f.sched.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{
		"service": "shoptok",
		"env":     "test",
		"job":     "timeout_job",
	}
	if got := getCounterValue(t, f.reg, "shoptok_scheduler_job_timeouts_total", labels); got != 1 {
		t.Fatalf("expected timeout count 1, got %v", got)
	}
	errorLabels := map[string]string{
		"service": "shoptok",
		"env":     "test",
		"job":     "timeout_job",
		"result":  obsmetrics.ResultError,
	}
	if got := getCounterValue(t, f.reg, "shoptok_scheduler_job_runs_total", errorLabels); got != 1 {
		t.Fatalf("expected error run count 1, got %v", got)
	}
}

func TestRunJobWrapsFailure(t *testing.T) {
	f := setupFixture(t)
	boom := errors.New("boom")

	err := f.sched.runJob(context.Background(), "failing_job", 0, time.Second, func(context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing_job")
}

func TestRunOnceHonoursEnabledJobs(t *testing.T) {
	f := setupFixture(t)
	id := f.shippedPurchase(t, 100)
	f.sched.cfg.EnabledJobs = []string{JobCustodyReconcile}

	f.clock.Advance(8 * 24 * time.Hour)
	require.NoError(t, f.sched.RunOnce(context.Background()))

	assert.Equal(t, escrowdomain.StatusShipped, f.status(t, id))
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{KeeperID: "  "}.withDefaults()
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.JobTimeout)
	assert.Equal(t, "escrow-keeper", cfg.KeeperID)
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
