package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizeTransitions(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	release := now.Add(time.Hour)
	elapsed := now.Add(-time.Second)

	cases := []struct {
		name    string
		status  PurchaseStatus
		release *time.Time
		caller  string
		to      PurchaseStatus
		want    Disbursement
		wantErr error
	}{
		{name: "seller ships", status: StatusPending, caller: "seller", to: StatusShipped, want: DisburseNone},
		{name: "buyer cannot ship", status: StatusPending, caller: "buyer", to: StatusShipped, wantErr: ErrNotSeller},
		{name: "buyer completes early", status: StatusShipped, release: &release, caller: "buyer", to: StatusCompleted, want: DisburseSeller},
		{name: "seller completes early", status: StatusShipped, release: &release, caller: "seller", to: StatusCompleted, wantErr: ErrEscrowPeriodActive},
		{name: "anyone completes after release", status: StatusShipped, release: &elapsed, caller: "stranger", to: StatusCompleted, want: DisburseSeller},
		{name: "completes exactly at release", status: StatusShipped, release: &now, caller: "seller", to: StatusCompleted, want: DisburseSeller},
		{name: "pending cannot complete", status: StatusPending, caller: "buyer", to: StatusCompleted, wantErr: ErrIllegalTransition},
		{name: "seller refunds pending", status: StatusPending, caller: "seller", to: StatusRefunded, want: DisburseBuyer},
		{name: "seller refunds shipped", status: StatusShipped, release: &release, caller: "seller", to: StatusRefunded, want: DisburseBuyer},
		{name: "buyer cannot refund", status: StatusShipped, release: &release, caller: "buyer", to: StatusRefunded, wantErr: ErrNotSeller},
		{name: "buyer disputes pending", status: StatusPending, caller: "buyer", to: StatusDisputed, want: DisburseNone},
		{name: "buyer disputes shipped", status: StatusShipped, release: &release, caller: "buyer", to: StatusDisputed, want: DisburseNone},
		{name: "seller cannot dispute", status: StatusShipped, release: &release, caller: "seller", to: StatusDisputed, wantErr: ErrNotBuyer},
		{name: "disputed needs admin", status: StatusDisputed, caller: "buyer", to: StatusCompleted, wantErr: ErrIllegalTransition},
		{name: "disputed cannot refund via seller", status: StatusDisputed, caller: "seller", to: StatusRefunded, wantErr: ErrIllegalTransition},
		{name: "shipped cannot go back", status: StatusShipped, release: &release, caller: "seller", to: StatusPending, wantErr: ErrIllegalTransition},
		{name: "completed is terminal", status: StatusCompleted, caller: "buyer", to: StatusDisputed, wantErr: ErrAlreadyTerminal},
		{name: "refunded is terminal", status: StatusRefunded, caller: "seller", to: StatusRefunded, wantErr: ErrAlreadyTerminal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Purchase{ID: 1, Buyer: "buyer", Seller: "seller", Amount: 100, Status: tc.status, EscrowReleaseTime: tc.release}
			got, err := Authorize(p, tc.caller, tc.to, now)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTerminalErrorsAlsoMatchIllegalTransition(t *testing.T) {
	_, err := Authorize(Purchase{Status: StatusCompleted, Buyer: "b", Seller: "s"}, "b", StatusRefunded, time.Now())
	require.ErrorIs(t, err, ErrAlreadyTerminal)
	require.ErrorIs(t, err, ErrIllegalTransition)

	_, err = Authorize(Purchase{Status: StatusPending, Buyer: "b", Seller: "s"}, "b", StatusCompleted, time.Now())
	require.ErrorIs(t, err, ErrIllegalTransition)
	assert.NotErrorIs(t, err, ErrAlreadyTerminal)
}

func TestResolution(t *testing.T) {
	to, disbursement, err := Resolution(Purchase{Status: StatusDisputed}, true)
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, to)
	assert.Equal(t, DisburseBuyer, disbursement)

	to, disbursement, err = Resolution(Purchase{Status: StatusDisputed}, false)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, to)
	assert.Equal(t, DisburseSeller, disbursement)

	_, _, err = Resolution(Purchase{Status: StatusShipped}, true)
	require.ErrorIs(t, err, ErrIllegalTransition)

	_, _, err = Resolution(Purchase{Status: StatusRefunded}, false)
	require.ErrorIs(t, err, ErrAlreadyTerminal)
}

func TestParseStatus(t *testing.T) {
	status, err := ParseStatus(" Shipped ")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, status)

	_, err = ParseStatus("lost")
	require.ErrorIs(t, err, ErrInvalidStatus)
}
