package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveOperationSplitsByResult(t *testing.T) {
	m, err := New(Config{ServiceName: "shoptok", Environment: "test"}, prometheus.NewRegistry())
	require.NoError(t, err)

	m.ObserveOperation("purchase_product", nil, 10*time.Millisecond)
	m.ObserveOperation("purchase_product", nil, 10*time.Millisecond)
	m.ObserveOperation("purchase_product", errors.New("boom"), time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("purchase_product", ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("purchase_product", ResultError)))
}

func TestAddDisbursedIgnoresZero(t *testing.T) {
	m, err := New(Config{}, prometheus.NewRegistry())
	require.NoError(t, err)

	m.AddDisbursed("seller", 98)
	m.AddDisbursed("platform", 0)

	assert.Equal(t, 98.0, testutil.ToFloat64(m.disbursed.WithLabelValues("seller")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.disbursed.WithLabelValues("platform")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("noop", nil, 0)
	m.AddDisbursed("seller", 1)
	m.RecordLedgerTransfer("deposit")
	m.RecordOutboxRelay(nil, 1)
	m.RecordHTTPRequest("GET", "/health", "200")
	m.RecordRateLimited("/v1/purchases")
	m.ObserveJob("escrow_auto_release", nil, 0, false)
	m.AddJobProcessed("escrow_auto_release", 1)
}

func TestObserveJobCountsTimeouts(t *testing.T) {
	m, err := New(Config{}, prometheus.NewRegistry())
	require.NoError(t, err)

	m.ObserveJob("escrow_auto_release", nil, time.Millisecond, false)
	m.ObserveJob("escrow_auto_release", errors.New("deadline"), time.Second, true)
	m.AddJobProcessed("escrow_auto_release", 3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("escrow_auto_release", ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("escrow_auto_release", ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobTimeouts.WithLabelValues("escrow_auto_release")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.jobProcessed.WithLabelValues("escrow_auto_release")))
}

func TestNewRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(Config{}, reg)
	require.NoError(t, err)

	_, err = New(Config{}, reg)
	if err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}
