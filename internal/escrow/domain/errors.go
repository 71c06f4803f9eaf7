package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not_found")
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrInvalidCaller      = errors.New("invalid_caller")
	ErrIllegalTransition  = errors.New("illegal_transition")
	ErrAlreadyTerminal    = errors.New("already_terminal")
	ErrNotSeller          = errors.New("not_seller")
	ErrNotBuyer           = errors.New("not_buyer")
	ErrNotAdmin           = errors.New("not_admin")
	ErrSelfPurchase       = errors.New("self_purchase")
	ErrInactive           = errors.New("product_inactive")
	ErrEscrowPeriodActive = errors.New("escrow_period_active")
	ErrFeeTooHigh         = errors.New("fee_too_high")
	ErrInvalidPeriod      = errors.New("invalid_escrow_period")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrStaleStatus        = errors.New("stale_status")
)

// TransitionError reports a state-machine violation. It matches
// ErrIllegalTransition, and also ErrAlreadyTerminal when From is terminal.
type TransitionError struct {
	From PurchaseStatus
	To   PurchaseStatus
}

func (e *TransitionError) Error() string {
	if e.From.IsTerminal() {
		return fmt.Sprintf("already_terminal: purchase is %s, cannot move to %s", e.From, e.To)
	}
	return fmt.Sprintf("illegal_transition: %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	switch target {
	case ErrIllegalTransition:
		return true
	case ErrAlreadyTerminal:
		return e.From.IsTerminal()
	default:
		return false
	}
}
