package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitFee(t *testing.T) {
	cases := []struct {
		name   string
		amount int64
		bps    uint32
		fee    int64
		share  int64
	}{
		{name: "floors fractional fee", amount: 100, bps: 250, fee: 2, share: 98},
		{name: "zero fee", amount: 100, bps: 0, fee: 0, share: 100},
		{name: "fee rounds to zero", amount: 3, bps: 250, fee: 0, share: 3},
		{name: "max admin fee", amount: 1_000_000, bps: MaxPlatformFeeBps, fee: 100_000, share: 900_000},
		{name: "full amount", amount: 7, bps: BasisPointsDenominator, fee: 7, share: 0},
		{name: "zero amount", amount: 0, bps: 250, fee: 0, share: 0},
		{name: "no overflow at int64 max", amount: math.MaxInt64, bps: 9_999, fee: 9_222_449_699_651_090_329, share: 922_337_203_685_478},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fee, share, err := SplitFee(tc.amount, tc.bps)
			require.NoError(t, err)
			assert.Equal(t, tc.fee, fee)
			assert.Equal(t, tc.share, share)
			assert.Equal(t, tc.amount, fee+share)
		})
	}
}

func TestSplitFeeRejectsInvalidInput(t *testing.T) {
	_, _, err := SplitFee(-1, 250)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, _, err = SplitFee(100, BasisPointsDenominator+1)
	require.ErrorIs(t, err, ErrFeeTooHigh)
}

func TestValidateFeeBps(t *testing.T) {
	require.NoError(t, ValidateFeeBps(0))
	require.NoError(t, ValidateFeeBps(MaxPlatformFeeBps))
	require.ErrorIs(t, ValidateFeeBps(MaxPlatformFeeBps+1), ErrFeeTooHigh)
}
