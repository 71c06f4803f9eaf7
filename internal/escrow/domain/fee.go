package domain

import (
	"github.com/holiman/uint256"
)

const (
	// BasisPointsDenominator is 100%.
	BasisPointsDenominator = 10_000
	// MaxPlatformFeeBps caps the platform fee at 10%.
	MaxPlatformFeeBps = 1_000
)

// SplitFee divides amount into the platform fee, floor(amount*bps/10000),
// and the seller share. fee+sellerShare == amount for every input. The
// product is taken in 256 bits so it cannot overflow.
func SplitFee(amount int64, bps uint32) (fee, sellerShare int64, err error) {
	if amount < 0 {
		return 0, 0, ErrInvalidAmount
	}
	if bps > BasisPointsDenominator {
		return 0, 0, ErrFeeTooHigh
	}

	product := new(uint256.Int).Mul(uint256.NewInt(uint64(amount)), uint256.NewInt(uint64(bps)))
	product.Div(product, uint256.NewInt(BasisPointsDenominator))

	fee = int64(product.Uint64())
	return fee, amount - fee, nil
}

// ValidateFeeBps enforces the admin-settable range [0, MaxPlatformFeeBps].
func ValidateFeeBps(bps uint32) error {
	if bps > MaxPlatformFeeBps {
		return ErrFeeTooHigh
	}
	return nil
}
