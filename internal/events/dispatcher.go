package events

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shoptok/internal/clock"
	obsmetrics "github.com/smallbiznis/shoptok/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultRelayInterval = time.Second
	defaultRelayBatch    = 100
)

type DispatcherParams struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Outbox     *Outbox
	Publisher  Publisher
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Dispatcher relays committed outbox rows to the Publisher. It only reads
// and stamps outbox_events, never engine state.
type Dispatcher struct {
	db         *gorm.DB
	log        *zap.Logger
	outbox     *Outbox
	publisher  Publisher
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics

	interval time.Duration
	batch    int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	return &Dispatcher{
		db:         p.DB,
		log:        p.Log.Named("events.dispatcher"),
		outbox:     p.Outbox,
		publisher:  p.Publisher,
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
		interval:   defaultRelayInterval,
		batch:      defaultRelayBatch,
	}
}

// RelayOnce publishes one batch and returns how many rows were delivered.
func (d *Dispatcher) RelayOnce(ctx context.Context) (int, error) {
	records, err := d.outbox.Pending(ctx, d.db, d.batch)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	msgs := make([]Message, 0, len(records))
	ids := make([]snowflake.ID, 0, len(records))
	for _, record := range records {
		msgs = append(msgs, record.Message())
		ids = append(ids, record.ID)
	}

	if err := d.publisher.Publish(ctx, msgs); err != nil {
		d.obsMetrics.RecordOutboxRelay(err, len(msgs))
		if markErr := d.outbox.MarkFailed(ctx, d.db, ids, err); markErr != nil {
			d.log.Warn("failed to record relay failure", zap.Error(markErr))
		}
		return 0, err
	}

	if err := d.outbox.MarkDelivered(ctx, d.db, ids, d.clock.Now()); err != nil {
		return 0, err
	}
	d.obsMetrics.RecordOutboxRelay(nil, len(msgs))
	return len(msgs), nil
}

func (d *Dispatcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx)
	}()
	d.log.Info("outbox dispatcher started", zap.Duration("interval", d.interval))
}

func (d *Dispatcher) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return d.publisher.Close()
}

func (d *Dispatcher) run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				n, err := d.RelayOnce(ctx)
				if err != nil {
					if ctx.Err() == nil {
						d.log.Warn("outbox relay failed", zap.Error(err))
					}
					break
				}
				if n < d.batch {
					break
				}
			}
		}
	}
}
