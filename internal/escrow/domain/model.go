package domain

import (
	"math"
	"strings"
	"time"
)

type PurchaseStatus string

const (
	StatusPending   PurchaseStatus = "pending"
	StatusShipped   PurchaseStatus = "shipped"
	StatusCompleted PurchaseStatus = "completed"
	StatusRefunded  PurchaseStatus = "refunded"
	StatusDisputed  PurchaseStatus = "disputed"
)

// IsTerminal reports whether funds for a purchase in this status have
// already been disbursed.
func (s PurchaseStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRefunded
}

// HoldsEscrow reports whether the purchase amount still sits in custody.
func (s PurchaseStatus) HoldsEscrow() bool {
	return s == StatusPending || s == StatusShipped || s == StatusDisputed
}

func ParseStatus(raw string) (PurchaseStatus, error) {
	switch s := PurchaseStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusPending, StatusShipped, StatusCompleted, StatusRefunded, StatusDisputed:
		return s, nil
	default:
		return "", ErrInvalidStatus
	}
}

// EscrowStatuses lists the statuses whose amount is held in custody.
var EscrowStatuses = []PurchaseStatus{StatusPending, StatusShipped, StatusDisputed}

// Purchase binds a buyer's escrowed payment to a product. Amount is the
// product price captured at purchase time.
type Purchase struct {
	ID                int64          `json:"id" gorm:"primaryKey;autoIncrement:false"`
	ProductID         int64          `json:"product_id" gorm:"not null;index"`
	Buyer             string         `json:"buyer" gorm:"type:varchar(128);not null;index"`
	Seller            string         `json:"seller" gorm:"type:varchar(128);not null;index"`
	Amount            int64          `json:"amount" gorm:"not null"`
	Status            PurchaseStatus `json:"status" gorm:"type:varchar(16);not null;index"`
	PlatformFee       int64          `json:"platform_fee" gorm:"not null;default:0"`
	SellerProceeds    int64          `json:"seller_proceeds" gorm:"not null;default:0"`
	ShippedAt         *time.Time     `json:"shipped_at,omitempty"`
	EscrowReleaseTime *time.Time     `json:"escrow_release_time,omitempty"`
	SettledAt         *time.Time     `json:"settled_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time      `json:"updated_at" gorm:"not null"`
}

func (Purchase) TableName() string { return "purchases" }

// PurchaseSequence names the id_sequences row purchases draw from.
const PurchaseSequence = "purchases"

// SettingsID is the primary key of the single engine_settings row.
const SettingsID = 1

// Settings is the admin-controlled engine configuration read by every
// disbursement.
type Settings struct {
	ID                  int16     `json:"-" gorm:"primaryKey;autoIncrement:false"`
	PlatformFeeBps      uint32    `json:"platform_fee_bps" gorm:"not null"`
	EscrowPeriodSeconds int64     `json:"escrow_period_seconds" gorm:"not null"`
	FeeRecipient        string    `json:"fee_recipient" gorm:"type:varchar(128);not null"`
	UpdatedAt           time.Time `json:"updated_at" gorm:"not null"`
}

func (Settings) TableName() string { return "engine_settings" }

func (s Settings) EscrowPeriod() time.Duration {
	return time.Duration(s.EscrowPeriodSeconds) * time.Second
}

// MaxEscrowPeriodSeconds is the longest whole-second period a time.Duration holds.
const MaxEscrowPeriodSeconds = math.MaxInt64 / int64(time.Second)

// ValidateEscrowPeriod accepts non-negative periods in whole seconds.
func ValidateEscrowPeriod(period time.Duration) error {
	if period < 0 || period%time.Second != 0 {
		return ErrInvalidPeriod
	}
	return nil
}
