package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/shoptok/pkg/db/pagination"
)

type Service interface {
	PurchaseProduct(ctx context.Context, req PurchaseRequest) (*Result, error)
	UpdatePurchaseStatus(ctx context.Context, req UpdateStatusRequest) (*Result, error)
	ResolveDispute(ctx context.Context, req ResolveDisputeRequest) (*Result, error)
	UpdatePlatformFee(ctx context.Context, req UpdatePlatformFeeRequest) (*SettingsResult, error)
	UpdateEscrowPeriod(ctx context.Context, req UpdateEscrowPeriodRequest) (*SettingsResult, error)

	GetPurchase(ctx context.Context, id int64) (*Purchase, error)
	ListPurchases(ctx context.Context, req ListRequest) ([]Purchase, error)
	// ListReleasable returns up to limit shipped purchases whose escrow
	// period has elapsed and that anyone may now complete.
	ListReleasable(ctx context.Context, limit int) ([]Purchase, error)
	GetSettings(ctx context.Context) (*Settings, error)
	Summary(ctx context.Context) (*Summary, error)

	// EnsureSettings seeds the settings row from bootstrap config when absent.
	EnsureSettings(ctx context.Context) (*Settings, error)
}

type PurchaseRequest struct {
	Buyer     string `json:"-"`
	ProductID int64  `json:"product_id"`
}

type UpdateStatusRequest struct {
	Caller     string         `json:"-"`
	PurchaseID int64          `json:"-"`
	Status     PurchaseStatus `json:"status"`
}

type ResolveDisputeRequest struct {
	Admin         string `json:"-"`
	PurchaseID    int64  `json:"-"`
	RefundToBuyer bool   `json:"refund_to_buyer"`
}

type UpdatePlatformFeeRequest struct {
	Admin  string `json:"-"`
	FeeBps uint32 `json:"platform_fee_bps"`
}

type UpdateEscrowPeriodRequest struct {
	Admin  string        `json:"-"`
	Period time.Duration `json:"-"`
}

type ListRequest struct {
	Buyer  string
	Seller string
	Status PurchaseStatus
	pagination.Page
}

const (
	OperationPurchaseProduct    = "purchase_product"
	OperationUpdatePurchase     = "update_purchase_status"
	OperationResolveDispute     = "resolve_dispute"
	OperationUpdatePlatformFee  = "update_platform_fee"
	OperationUpdateEscrowPeriod = "update_escrow_period"
)

// Move is one fund movement performed by an operation.
type Move struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// Result describes a successful purchase mutation with enough detail for a
// receipt or notification consumer to act without re-reading state.
type Result struct {
	Operation      string         `json:"operation"`
	PurchaseID     int64          `json:"purchase_id"`
	ProductID      int64          `json:"product_id"`
	PreviousStatus PurchaseStatus `json:"previous_status,omitempty"`
	Status         PurchaseStatus `json:"status"`
	Moves          []Move         `json:"moves"`
	Purchase       Purchase       `json:"purchase"`
}

type SettingsResult struct {
	Operation string   `json:"operation"`
	Settings  Settings `json:"settings"`
}

// Summary compares the custody balance with the amount owed by open
// purchases. Balanced is false only if conservation has been broken.
type Summary struct {
	CustodyAccount    string `json:"custody_account"`
	CustodyBalance    int64  `json:"custody_balance"`
	OutstandingAmount int64  `json:"outstanding_amount"`
	OpenPurchases     int64  `json:"open_purchases"`
	Balanced          bool   `json:"balanced"`
}
