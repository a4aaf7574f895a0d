package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ActionKind is the type of a recorded user action.
type ActionKind string

const (
	ActionRegister ActionKind = "REGISTER"
	ActionLogin    ActionKind = "LOGIN"
	ActionBuy      ActionKind = "BUY"
	ActionSell     ActionKind = "SELL"
	ActionDeposit  ActionKind = "DEPOSIT"
)

// ActionResult is the outcome of a recorded action.
type ActionResult string

const (
	ActionOK    ActionResult = "OK"
	ActionError ActionResult = "ERROR"
)

// ActionPayload carries the per-action details. Fields irrelevant to a kind stay zero.
type ActionPayload struct {
	UserID    *uuid.UUID       `json:"user_id,omitempty"`
	Username  string           `json:"username,omitempty"`
	Currency  CurrencyCode     `json:"currency,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Rate      *decimal.Decimal `json:"rate,omitempty"`
	Base      CurrencyCode     `json:"base,omitempty"`
	Result    ActionResult     `json:"result"`
	ErrorKind string           `json:"error_kind,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// ActionRecord is one persisted action log entry.
type ActionRecord struct {
	ID        uuid.UUID     `json:"id"`
	Kind      ActionKind    `json:"action"`
	Payload   ActionPayload `json:"payload"`
	CreatedAt time.Time     `json:"timestamp"`
}
