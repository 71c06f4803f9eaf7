package server

import (
	"time"

	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/shoptok/internal/catalog/domain"
	escrowdomain "github.com/smallbiznis/shoptok/internal/escrow/domain"
)

// formatAmount renders base units in the settlement currency's decimals.
// Amounts stay integers everywhere else.
func formatAmount(amount int64, decimals int32) string {
	return decimal.New(amount, -decimals).StringFixed(decimals)
}

type money struct {
	Amount   int64  `json:"amount"`
	Display  string `json:"display"`
	Currency string `json:"currency"`
}

func (s *Server) money(amount int64) money {
	return money{
		Amount:   amount,
		Display:  formatAmount(amount, s.cfg.Settlement.CurrencyDecimals),
		Currency: s.cfg.Settlement.Currency,
	}
}

type productView struct {
	catalogdomain.Product
	PriceDisplay string `json:"price_display"`
}

func (s *Server) productView(p catalogdomain.Product) productView {
	return productView{Product: p, PriceDisplay: formatAmount(p.Price, s.cfg.Settlement.CurrencyDecimals)}
}

func (s *Server) productViews(items []catalogdomain.Product) []productView {
	out := make([]productView, 0, len(items))
	for _, p := range items {
		out = append(out, s.productView(p))
	}
	return out
}

type purchaseView struct {
	escrowdomain.Purchase
	AmountDisplay    string `json:"amount_display"`
	EscrowReleasesIn *int64 `json:"escrow_releases_in_seconds,omitempty"`
}

func (s *Server) purchaseView(p escrowdomain.Purchase, now time.Time) purchaseView {
	view := purchaseView{Purchase: p, AmountDisplay: formatAmount(p.Amount, s.cfg.Settlement.CurrencyDecimals)}
	if p.Status == escrowdomain.StatusShipped && p.EscrowReleaseTime != nil {
		remaining := int64(p.EscrowReleaseTime.Sub(now) / time.Second)
		if remaining < 0 {
			remaining = 0
		}
		view.EscrowReleasesIn = &remaining
	}
	return view
}

func (s *Server) purchaseViews(items []escrowdomain.Purchase, now time.Time) []purchaseView {
	out := make([]purchaseView, 0, len(items))
	for _, p := range items {
		out = append(out, s.purchaseView(p, now))
	}
	return out
}
