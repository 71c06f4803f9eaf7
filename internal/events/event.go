package events

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type EventType string

const (
	EventProductListed      EventType = "product.listed"
	EventProductBatchListed EventType = "product.batch_listed"
	EventProductUpdated     EventType = "product.updated"

	EventPurchaseCreated         EventType = "purchase.created"
	EventPurchaseShipped         EventType = "purchase.shipped"
	EventPurchaseCompleted       EventType = "purchase.completed"
	EventPurchaseRefunded        EventType = "purchase.refunded"
	EventPurchaseDisputed        EventType = "purchase.disputed"
	EventPurchaseDisputeResolved EventType = "purchase.dispute_resolved"

	EventSettingsFeeUpdated          EventType = "settings.fee_updated"
	EventSettingsEscrowPeriodUpdated EventType = "settings.escrow_period_updated"
)

type AggregateType string

const (
	AggregateProduct  AggregateType = "product"
	AggregatePurchase AggregateType = "purchase"
	AggregateSettings AggregateType = "settings"
)

// Event is what a domain service hands to the outbox.
type Event struct {
	Type          EventType
	AggregateType AggregateType
	AggregateID   int64
	Payload       any
}

// OutboxRecord is a persisted event awaiting relay.
type OutboxRecord struct {
	ID            snowflake.ID   `gorm:"primaryKey;autoIncrement:false" json:"id"`
	EventType     EventType      `gorm:"type:varchar(64);not null" json:"event_type"`
	AggregateType AggregateType  `gorm:"type:varchar(32);not null;index:idx_outbox_aggregate,priority:1" json:"aggregate_type"`
	AggregateID   int64          `gorm:"not null;index:idx_outbox_aggregate,priority:2" json:"aggregate_id"`
	Payload       datatypes.JSON `gorm:"not null" json:"payload"`
	Attempts      int            `gorm:"not null;default:0" json:"attempts"`
	LastError     *string        `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;index" json:"created_at"`
	DeliveredAt   *time.Time     `gorm:"index" json:"delivered_at,omitempty"`
}

// TableName sets the database table name.
func (OutboxRecord) TableName() string { return "outbox_events" }

// Message is the wire form handed to a Publisher.
type Message struct {
	ID            string         `json:"id"`
	Type          EventType      `json:"type"`
	AggregateType AggregateType  `json:"aggregate_type"`
	AggregateID   int64          `json:"aggregate_id"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Payload       datatypes.JSON `json:"payload"`
}

func (r OutboxRecord) Message() Message {
	return Message{
		ID:            r.ID.String(),
		Type:          r.EventType,
		AggregateType: r.AggregateType,
		AggregateID:   r.AggregateID,
		OccurredAt:    r.CreatedAt,
		Payload:       r.Payload,
	}
}
