package domain

import "time"

// Disbursement is the fund movement a transition triggers.
type Disbursement int

const (
	DisburseNone Disbursement = iota
	// DisburseSeller pays the seller amount minus fee and the fee recipient the fee.
	DisburseSeller
	// DisburseBuyer returns the full amount to the buyer.
	DisburseBuyer
)

// Authorize validates a caller-driven transition of p to `to` at now and
// returns the disbursement it triggers. Legality is checked before the
// caller's role, so an impossible move always reports a TransitionError.
//
//	pending  -> shipped    seller
//	shipped  -> completed  buyer, or anyone once now >= escrowReleaseTime
//	pending  -> refunded   seller
//	shipped  -> refunded   seller
//	pending  -> disputed   buyer
//	shipped  -> disputed   buyer
//
// Disputed purchases leave only through ResolveDispute.
func Authorize(p Purchase, caller string, to PurchaseStatus, now time.Time) (Disbursement, error) {
	from := p.Status
	if from.IsTerminal() {
		return DisburseNone, &TransitionError{From: from, To: to}
	}

	switch {
	case from == StatusPending && to == StatusShipped:
		if caller != p.Seller {
			return DisburseNone, ErrNotSeller
		}
		return DisburseNone, nil

	case from == StatusShipped && to == StatusCompleted:
		if caller == p.Buyer {
			return DisburseSeller, nil
		}
		if p.EscrowReleaseTime != nil && !now.Before(*p.EscrowReleaseTime) {
			return DisburseSeller, nil
		}
		return DisburseNone, ErrEscrowPeriodActive

	case (from == StatusPending || from == StatusShipped) && to == StatusRefunded:
		if caller != p.Seller {
			return DisburseNone, ErrNotSeller
		}
		return DisburseBuyer, nil

	case (from == StatusPending || from == StatusShipped) && to == StatusDisputed:
		if caller != p.Buyer {
			return DisburseNone, ErrNotBuyer
		}
		return DisburseNone, nil
	}

	return DisburseNone, &TransitionError{From: from, To: to}
}

// Resolution returns the terminal status and disbursement for an admin
// ruling on p. Only a disputed purchase can be resolved.
func Resolution(p Purchase, refundToBuyer bool) (PurchaseStatus, Disbursement, error) {
	to, disbursement := StatusCompleted, DisburseSeller
	if refundToBuyer {
		to, disbursement = StatusRefunded, DisburseBuyer
	}
	if p.Status != StatusDisputed {
		return "", DisburseNone, &TransitionError{From: p.Status, To: to}
	}
	return to, disbursement, nil
}
