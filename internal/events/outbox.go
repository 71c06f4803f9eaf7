package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shoptok/internal/clock"
	"go.uber.org/fx"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrInvalidEvent = errors.New("invalid_event")

type OutboxParams struct {
	fx.In

	GenID *snowflake.Node
	Clock clock.Clock
}

// Outbox records events in the same transaction as the state change they
// describe.
type Outbox struct {
	genID *snowflake.Node
	clock clock.Clock
}

func NewOutbox(p OutboxParams) *Outbox {
	return &Outbox{genID: p.GenID, clock: p.Clock}
}

// PublishTx writes evt through tx. The event becomes visible to the
// dispatcher only if tx commits.
func (o *Outbox) PublishTx(ctx context.Context, tx *gorm.DB, evt Event) error {
	if tx == nil {
		return errors.New("outbox publish requires a transaction")
	}
	if evt.Type == "" || evt.AggregateType == "" {
		return ErrInvalidEvent
	}

	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", evt.Type, err)
	}

	record := OutboxRecord{
		ID:            o.genID.Generate(),
		EventType:     evt.Type,
		AggregateType: evt.AggregateType,
		AggregateID:   evt.AggregateID,
		Payload:       datatypes.JSON(payload),
		CreatedAt:     o.clock.Now(),
	}
	return tx.WithContext(ctx).Create(&record).Error
}

// Pending returns undelivered records in write order.
func (o *Outbox) Pending(ctx context.Context, db *gorm.DB, limit int) ([]OutboxRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []OutboxRecord
	err := db.WithContext(ctx).
		Where("delivered_at IS NULL").
		Order("id ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// MarkDelivered stamps the given records as relayed.
func (o *Outbox) MarkDelivered(ctx context.Context, db *gorm.DB, ids []snowflake.ID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`UPDATE outbox_events SET delivered_at = ?, attempts = attempts + 1, last_error = NULL
		WHERE id IN ? AND delivered_at IS NULL`,
		at,
		ids,
	).Error
}

// MarkFailed records a failed relay attempt.
func (o *Outbox) MarkFailed(ctx context.Context, db *gorm.DB, ids []snowflake.ID, cause error) error {
	if len(ids) == 0 || cause == nil {
		return nil
	}
	msg := cause.Error()
	return db.WithContext(ctx).Exec(
		`UPDATE outbox_events SET attempts = attempts + 1, last_error = ?
		WHERE id IN ? AND delivered_at IS NULL`,
		msg,
		ids,
	).Error
}

// ForAggregate lists every event written for one aggregate.
func (o *Outbox) ForAggregate(ctx context.Context, db *gorm.DB, aggregateType AggregateType, id int64) ([]OutboxRecord, error) {
	var records []OutboxRecord
	err := db.WithContext(ctx).
		Where("aggregate_type = ? AND aggregate_id = ?", aggregateType, id).
		Order("id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
