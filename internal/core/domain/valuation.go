package domain

import "github.com/shopspring/decimal"

// ValuationLine is one currency's contribution to a portfolio valuation.
// Rate is null for a zero holding, which is listed but never priced.
type ValuationLine struct {
	Currency CurrencyCode        `json:"currency"`
	Balance  decimal.Decimal     `json:"balance"`
	Rate     decimal.NullDecimal `json:"rate"`
	Value    decimal.Decimal     `json:"value"`
	Stale    bool                `json:"stale"`
}

// Valuation is a wallet's total value in Base with a per-currency breakdown.
type Valuation struct {
	Base  CurrencyCode    `json:"base"`
	Total decimal.Decimal `json:"total"`
	Lines []ValuationLine `json:"lines"`
}

// Stale reports whether any line was priced from a stale rate.
func (v *Valuation) Stale() bool {
	for _, l := range v.Lines {
		if l.Stale {
			return true
		}
	}
	return false
}
