package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBaseCurrencyTrade = errors.New("cannot trade the base currency")
	ErrWalletLockTimeout = errors.New("timed out waiting for wallet lock")
)

// Wallet is a user's cash balance in the base currency plus per-currency holdings.
// Balances never go negative; zero holdings are kept.
type Wallet struct {
	UserID       uuid.UUID                        `json:"user_id"`
	BaseCurrency CurrencyCode                     `json:"base_currency"`
	BaseCash     decimal.Decimal                  `json:"base_cash"`
	Holdings     map[CurrencyCode]decimal.Decimal `json:"holdings"`
	CreatedAt    time.Time                        `json:"created_at"`
	UpdatedAt    time.Time                        `json:"updated_at"`
}

// NewWallet returns an empty wallet for userID.
func NewWallet(userID uuid.UUID, base CurrencyCode, now time.Time) *Wallet {
	return &Wallet{
		UserID:       userID,
		BaseCurrency: base,
		BaseCash:     decimal.Zero,
		Holdings:     make(map[CurrencyCode]decimal.Decimal),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Balance returns the holding of code, or zero.
func (w *Wallet) Balance(code CurrencyCode) decimal.Decimal {
	if code == w.BaseCurrency {
		return w.BaseCash
	}
	return w.Holdings[code]
}

// Credit adds amount to the holding of code.
func (w *Wallet) Credit(code CurrencyCode, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	if w.Holdings == nil {
		w.Holdings = make(map[CurrencyCode]decimal.Decimal)
	}
	w.Holdings[code] = w.Holdings[code].Add(amount)
	return nil
}

// Debit subtracts amount from the holding of code.
func (w *Wallet) Debit(code CurrencyCode, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	have := w.Holdings[code]
	if have.LessThan(amount) {
		return fmt.Errorf("%w: %s available %s, required %s", ErrInsufficientFunds, code, have, amount)
	}
	w.Holdings[code] = have.Sub(amount)
	return nil
}

// CreditCash adds amount to the base cash balance.
func (w *Wallet) CreditCash(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	w.BaseCash = w.BaseCash.Add(amount)
	return nil
}

// DebitCash subtracts amount from the base cash balance.
func (w *Wallet) DebitCash(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	if w.BaseCash.LessThan(amount) {
		return fmt.Errorf("%w: %s available %s, required %s", ErrInsufficientFunds, w.BaseCurrency, w.BaseCash, amount)
	}
	w.BaseCash = w.BaseCash.Sub(amount)
	return nil
}

// ApplyTrade applies both legs of a trade: for a buy, cash is debited by value and
// the holding credited by amount; for a sell the reverse. Either both legs are
// applied or the wallet is left unchanged.
func (w *Wallet) ApplyTrade(dir Direction, code CurrencyCode, amount, value decimal.Decimal) error {
	if code == w.BaseCurrency {
		return ErrBaseCurrencyTrade
	}
	if !amount.IsPositive() || !value.IsPositive() {
		return fmt.Errorf("%w: amount %s, value %s", ErrInvalidAmount, amount, value)
	}

	cash := w.BaseCash
	holding, had := w.Holdings[code]

	rollback := func() {
		w.BaseCash = cash
		if had {
			w.Holdings[code] = holding
		} else {
			delete(w.Holdings, code)
		}
	}

	switch dir {
	case DirectionBuy:
		if err := w.DebitCash(value); err != nil {
			return err
		}
		if err := w.Credit(code, amount); err != nil {
			rollback()
			return err
		}
	case DirectionSell:
		if err := w.Debit(code, amount); err != nil {
			return err
		}
		if err := w.CreditCash(value); err != nil {
			rollback()
			return err
		}
	default:
		return fmt.Errorf("unknown trade direction %q", dir)
	}
	return nil
}

// Clone returns a deep copy safe to hand out as a snapshot.
func (w *Wallet) Clone() *Wallet {
	c := *w
	c.Holdings = make(map[CurrencyCode]decimal.Decimal, len(w.Holdings))
	for k, v := range w.Holdings {
		c.Holdings[k] = v
	}
	return &c
}

// HoldingCodes returns the held currency codes in sorted order.
func (w *Wallet) HoldingCodes() []CurrencyCode {
	codes := make([]CurrencyCode, 0, len(w.Holdings))
	for code := range w.Holdings {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}
