package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config configures metric labels.
type Config struct {
	ServiceName string
	Environment string
}

const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metrics exposes settlement-level instruments.
type Metrics struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	disbursed         *prometheus.CounterVec
	ledgerTransfers   *prometheus.CounterVec
	outboxRelayed     *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpRateLimited   *prometheus.CounterVec
	jobRuns           *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
	jobTimeouts       *prometheus.CounterVec
	jobProcessed      *prometheus.CounterVec
}

// New registers the instruments on registerer. A nil registerer uses the
// default prometheus registry.
func New(cfg Config, registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "shoptok"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "shoptok_escrow_operations_total",
			Help:        "Catalog and escrow operations by outcome.",
			ConstLabels: constLabels,
		}, []string{"operation", "result"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "shoptok_escrow_operation_duration_seconds",
			Help:        "Latency of catalog and escrow operations including the lock wait.",
			Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			ConstLabels: constLabels,
		}, []string{"operation"}),
		disbursed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "shoptok_escrow_disbursed_total",
			Help:        "Smallest currency units released from escrow custody by recipient role.",
			ConstLabels: constLabels,
		}, []string{"recipient"}),
		ledgerTransfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "shoptok_ledger_transfers_total",
			Help:        "Ledger postings by source type.",
			ConstLabels: constLabels,
		}, []string{"source_type"}),
		outboxRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "shoptok_outbox_relayed_total",
			Help:        "Outbox events handed to the publisher by outcome.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "shoptok_http_requests_total",
			Help:        "HTTP requests by route and status code.",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status_code"}),
		httpRateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "shoptok_http_rate_limited_total",
			Help:        "Mutating HTTP requests rejected by the per-actor rate limiter.",
			ConstLabels: constLabels,
		}, []string{"route"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "shoptok_scheduler_job_runs_total",
			Help:        "Scheduler job runs by outcome.",
			ConstLabels: constLabels,
		}, []string{"job", "result"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "shoptok_scheduler_job_duration_seconds",
			Help:        "Scheduler job duration.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "shoptok_scheduler_job_timeouts_total",
			Help:        "Scheduler jobs stopped by their deadline.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "shoptok_scheduler_job_processed_total",
			Help:        "Items settled by scheduler jobs.",
			ConstLabels: constLabels,
		}, []string{"job"}),
	}

	for _, c := range []prometheus.Collector{
		m.operations,
		m.operationDuration,
		m.disbursed,
		m.ledgerTransfers,
		m.outboxRelayed,
		m.httpRequests,
		m.httpRateLimited,
		m.jobRuns,
		m.jobDuration,
		m.jobTimeouts,
		m.jobProcessed,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveOperation records the outcome and latency of one operation.
func (m *Metrics) ObserveOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.operations.WithLabelValues(operation, result).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// AddDisbursed records units released from custody to a recipient role
// (seller, buyer or platform).
func (m *Metrics) AddDisbursed(recipient string, amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.disbursed.WithLabelValues(recipient).Add(float64(amount))
}

// RecordLedgerTransfer increments ledger posting counts.
func (m *Metrics) RecordLedgerTransfer(sourceType string) {
	if m == nil {
		return
	}
	m.ledgerTransfers.WithLabelValues(strings.TrimSpace(sourceType)).Inc()
}

// RecordOutboxRelay increments relayed outbox counts.
func (m *Metrics) RecordOutboxRelay(err error, count int) {
	if m == nil || count <= 0 {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.outboxRelayed.WithLabelValues(result).Add(float64(count))
}

// RecordHTTPRequest increments the HTTP request counter.
func (m *Metrics) RecordHTTPRequest(method, route, statusCode string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, statusCode).Inc()
}

// RecordRateLimited counts a request rejected by the rate limiter.
func (m *Metrics) RecordRateLimited(route string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRateLimited.WithLabelValues(route).Inc()
}

// ObserveJob records one scheduler job run. A timed-out run counts as an
// error and as a timeout.
func (m *Metrics) ObserveJob(job string, err error, duration time.Duration, timedOut bool) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
	if timedOut {
		m.jobTimeouts.WithLabelValues(job).Inc()
	}
}

func (m *Metrics) AddJobProcessed(job string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.jobProcessed.WithLabelValues(job).Add(float64(count))
}
