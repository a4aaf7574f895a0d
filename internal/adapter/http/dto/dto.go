package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// RegisterRequest is the request body for user registration.
type RegisterRequest struct {
	Username string `json:"username" binding:"required,max=50"`
	Password string `json:"password" binding:"required,max=128" sanitize:"-"`
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required" sanitize:"-"`
}

// RegisterResponse is the response body for successful registration.
type RegisterResponse struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// DepositRequest is the request body for a base cash deposit.
// Amount accepts a JSON number or a decimal string.
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// TradeRequest is the request body for buying or selling a currency.
type TradeRequest struct {
	Currency  string          `json:"currency" binding:"required,currency_code"`
	Amount    decimal.Decimal `json:"amount"`
	Direction string          `json:"direction" binding:"required,trade_direction"`
}

// RatesQuery holds the query parameters of the rate list.
type RatesQuery struct {
	Top  int    `form:"top" binding:"omitempty,min=0,max=1000"`
	Base string `form:"base" binding:"omitempty,currency_code"`
}

// RateQuery holds the query parameters of a single rate lookup.
type RateQuery struct {
	Base string `form:"base" binding:"omitempty,currency_code"`
}

// HistoryQuery holds the query parameters of the rate history.
type HistoryQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// RefreshQuery selects which providers a refresh hits.
type RefreshQuery struct {
	Source string `form:"source" binding:"omitempty,oneof=crypto fiat all CRYPTO FIAT ALL"`
}

// PortfolioQuery holds the query parameters of a portfolio valuation.
type PortfolioQuery struct {
	Base string `form:"base" binding:"omitempty,currency_code"`
}

// RateResponse is a single exchange rate.
type RateResponse struct {
	From        string          `json:"from"`
	To          string          `json:"to"`
	Rate        decimal.Decimal `json:"rate"`
	ReverseRate decimal.Decimal `json:"reverse_rate"`
	Source      string          `json:"source"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Stale       bool            `json:"stale"`
}

// RateHistoryResponse is one rate history record.
type RateHistoryResponse struct {
	ID        string          `json:"id"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Rate      decimal.Decimal `json:"rate"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
}

// CurrencyResponse describes a registered currency.
type CurrencyResponse struct {
	Code           string  `json:"code"`
	Name           string  `json:"name"`
	Kind           string  `json:"kind"`
	IssuingCountry string  `json:"issuing_country,omitempty"`
	Algorithm      string  `json:"algorithm,omitempty"`
	MarketCap      float64 `json:"market_cap,omitempty"`
	Info           string  `json:"info"`
}

// WalletResponse is a user's wallet.
type WalletResponse struct {
	UserID       string                     `json:"user_id"`
	BaseCurrency string                     `json:"base_currency"`
	BaseCash     decimal.Decimal            `json:"base_cash"`
	Holdings     map[string]decimal.Decimal `json:"holdings"`
	UpdatedAt    time.Time                  `json:"updated_at"`
}

// TradeResponse is the result of an executed trade.
type TradeResponse struct {
	Direction      string          `json:"direction"`
	Currency       string          `json:"currency"`
	Amount         decimal.Decimal `json:"amount"`
	Rate           decimal.Decimal `json:"rate"`
	CostOrProceeds decimal.Decimal `json:"cost_or_proceeds"`
	Stale          bool            `json:"stale"`
	Wallet         WalletResponse  `json:"wallet"`
}

// ValuationLineResponse is one currency's share of a portfolio.
type ValuationLineResponse struct {
	Currency string              `json:"currency"`
	Balance  decimal.Decimal     `json:"balance"`
	Rate     decimal.NullDecimal `json:"rate"`
	Value    decimal.Decimal     `json:"value"`
	Stale    bool                `json:"stale"`
}

// PortfolioResponse is a wallet valuation.
type PortfolioResponse struct {
	Base  string                  `json:"base"`
	Total decimal.Decimal         `json:"total"`
	Stale bool                    `json:"stale"`
	Lines []ValuationLineResponse `json:"lines"`
}
