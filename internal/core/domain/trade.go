package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Direction is the side of a trade relative to the base currency.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// ParseDirection accepts "buy" or "sell" in any case.
func ParseDirection(raw string) (Direction, error) {
	switch d := Direction(strings.ToUpper(strings.TrimSpace(raw))); d {
	case DirectionBuy, DirectionSell:
		return d, nil
	}
	return "", fmt.Errorf("unknown trade direction %q", raw)
}

// TradeRequest asks to buy or sell Amount units of Currency. It is never persisted.
type TradeRequest struct {
	Currency  CurrencyCode
	Amount    decimal.Decimal
	Direction Direction
}

// TradeQuote is a validated request priced at a specific rate.
type TradeQuote struct {
	Request TradeRequest
	Rate    Rate
	// Value is Amount × Rate in the wallet's base currency: the cost of a buy or the proceeds of a sell.
	Value decimal.Decimal
}

// TradeOutcome is the typed result of a trade attempt. On failure Wallet is the
// unchanged wallet and ErrorKind names the failure class.
type TradeOutcome struct {
	Success        bool            `json:"success"`
	Wallet         *Wallet         `json:"wallet"`
	CostOrProceeds decimal.Decimal `json:"cost_or_proceeds"`
	Rate           *Rate           `json:"rate,omitempty"`
	ErrorKind      string          `json:"error_kind,omitempty"`
	Err            error           `json:"-"`
}
