package domain

import "errors"

var (
	ErrInvalidOwner         = errors.New("invalid_owner")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidSourceType    = errors.New("invalid_source_type")
	ErrInvalidLineDirection = errors.New("invalid_line_direction")
	ErrUnbalancedEntry      = errors.New("unbalanced_entry")
	ErrSameAccount          = errors.New("same_account")
	ErrInsufficientFunds    = errors.New("insufficient_funds")
	ErrBalanceOverflow      = errors.New("balance_overflow")
)
