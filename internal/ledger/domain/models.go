package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// LedgerEntryDirection represents debit or credit postings.
type LedgerEntryDirection string

const (
	LedgerEntryDirectionDebit  LedgerEntryDirection = "debit"
	LedgerEntryDirectionCredit LedgerEntryDirection = "credit"
)

type LedgerSourceType string

const (
	SourceTypeDeposit        LedgerSourceType = "deposit"         // wallet funding
	SourceTypePurchaseEscrow LedgerSourceType = "purchase_escrow" // buyer -> custody
	SourceTypeEscrowRelease  LedgerSourceType = "escrow_release"  // custody -> seller
	SourceTypePlatformFee    LedgerSourceType = "platform_fee"    // custody -> fee recipient
	SourceTypeEscrowRefund   LedgerSourceType = "escrow_refund"   // custody -> buyer
)

const (
	// EscrowCustodyAccount holds every purchase amount that has not been disbursed.
	EscrowCustodyAccount = "escrow:custody"
	// ExternalFundingAccount is the contra side of deposits. It carries no balance.
	ExternalFundingAccount = "external:funding"
)

// Account is a spendable balance keyed by owner identity.
type Account struct {
	Owner     string    `gorm:"primaryKey;type:varchar(128)" json:"owner"`
	Available int64     `gorm:"not null;default:0" json:"available"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "ledger_accounts" }

// LedgerEntry captures the immutable header for a financial event.
type LedgerEntry struct {
	ID         snowflake.ID      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	SourceType LedgerSourceType  `gorm:"type:varchar(32);not null;index:idx_ledger_entries_source,priority:1" json:"source_type"`
	SourceID   int64             `gorm:"not null;index:idx_ledger_entries_source,priority:2" json:"source_id"`
	OccurredAt time.Time         `gorm:"not null" json:"occurred_at"`
	CreatedAt  time.Time         `gorm:"not null" json:"created_at"`
	Lines      []LedgerEntryLine `gorm:"foreignKey:LedgerEntryID" json:"lines"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// LedgerEntryLine is a double-entry posting line.
type LedgerEntryLine struct {
	ID            snowflake.ID         `gorm:"primaryKey;autoIncrement:false" json:"id"`
	LedgerEntryID snowflake.ID         `gorm:"not null;index" json:"ledger_entry_id"`
	Owner         string               `gorm:"type:varchar(128);not null;index" json:"owner"`
	Direction     LedgerEntryDirection `gorm:"type:varchar(8);not null" json:"direction"`
	Amount        int64                `gorm:"not null" json:"amount"`
	CreatedAt     time.Time            `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (LedgerEntryLine) TableName() string { return "ledger_entry_lines" }

// TransferRequest moves Amount from one account to another inside an open
// transaction.
type TransferRequest struct {
	From       string
	To         string
	Amount     int64
	SourceType LedgerSourceType
	SourceID   int64
	OccurredAt time.Time
}

// ValidateBalanced ensures debits equal credits.
func ValidateBalanced(lines []LedgerEntryLine) error {
	var debit, credit int64
	for _, line := range lines {
		switch line.Direction {
		case LedgerEntryDirectionDebit:
			debit += line.Amount
		case LedgerEntryDirectionCredit:
			credit += line.Amount
		default:
			return ErrInvalidLineDirection
		}
	}
	if debit != credit {
		return ErrUnbalancedEntry
	}
	return nil
}

// IsSystemAccount reports whether owner is reserved for engine bookkeeping
// and so cannot act as a buyer, seller or wallet.
func IsSystemAccount(owner string) bool {
	return strings.HasPrefix(owner, "escrow:") || strings.HasPrefix(owner, "external:")
}
