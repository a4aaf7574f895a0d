package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SourceKind identifies which provider produced a rate.
type SourceKind string

const (
	SourceCrypto SourceKind = "CRYPTO"
	SourceFiat   SourceKind = "FIAT"
	// SourceIdentity marks the synthetic 1:1 rate of a currency to itself.
	SourceIdentity SourceKind = "IDENTITY"
)

// ParseSourceKind accepts "crypto", "fiat" in any case.
func ParseSourceKind(raw string) (SourceKind, error) {
	switch SourceKind(NormalizeCode(raw)) {
	case SourceCrypto:
		return SourceCrypto, nil
	case SourceFiat:
		return SourceFiat, nil
	}
	return "", fmt.Errorf("unknown rate source %q", raw)
}

var ErrNonPositiveRate = errors.New("rate value must be positive")

// Rate is the price of one unit of From expressed in To.
type Rate struct {
	From      CurrencyCode    `json:"from"`
	To        CurrencyCode    `json:"to"`
	Value     decimal.Decimal `json:"value"`
	FetchedAt time.Time       `json:"fetched_at"`
	Source    SourceKind      `json:"source"`
	Stale     bool            `json:"stale"`
}

// Pair returns the "FROM_TO" key used for snapshots and history.
func (r Rate) Pair() string {
	return PairKey(r.From, r.To)
}

// PairKey formats a rate pair key.
func PairKey(from, to CurrencyCode) string {
	return string(from) + "_" + string(to)
}

// Validate checks that the rate is usable.
func (r Rate) Validate() error {
	if r.From == "" || r.To == "" {
		return ErrEmptyCurrencyCode
	}
	if !r.Value.IsPositive() {
		return fmt.Errorf("%w: %s %s", ErrNonPositiveRate, r.Pair(), r.Value)
	}
	return nil
}

// Inverse returns the reverse rate (To→From).
func (r Rate) Inverse() Rate {
	inv := r
	inv.From, inv.To = r.To, r.From
	inv.Value = decimal.NewFromInt(1).Div(r.Value)
	return inv
}

// IdentityRate is the rate of a currency to itself.
func IdentityRate(code CurrencyCode, now time.Time) Rate {
	return Rate{From: code, To: code, Value: decimal.NewFromInt(1), FetchedAt: now, Source: SourceIdentity}
}

// CrossRate derives from→base from two rates quoted in the same currency.
// The result is stale if either leg is stale and carries the older fetch time.
func CrossRate(from, base Rate) Rate {
	fetched := from.FetchedAt
	if base.FetchedAt.Before(fetched) {
		fetched = base.FetchedAt
	}
	return Rate{
		From:      from.From,
		To:        base.From,
		Value:     from.Value.Div(base.Value),
		FetchedAt: fetched,
		Source:    from.Source,
		Stale:     from.Stale || base.Stale,
	}
}

// IsFresh reports whether rate was fetched less than ttl before now.
func IsFresh(rate Rate, now time.Time, ttl time.Duration) bool {
	return now.Sub(rate.FetchedAt) < ttl
}

// RateHistoryRecord is one append-only observation of a fetched rate.
type RateHistoryRecord struct {
	ID        string          `json:"id"`
	From      CurrencyCode    `json:"from_currency"`
	To        CurrencyCode    `json:"to_currency"`
	Value     decimal.Decimal `json:"rate"`
	Source    SourceKind      `json:"source"`
	FetchedAt time.Time       `json:"timestamp"`
}

// NewRateHistoryRecord builds the history record of r.
func NewRateHistoryRecord(r Rate) RateHistoryRecord {
	ts := r.FetchedAt.UTC()
	return RateHistoryRecord{
		ID:        r.Pair() + "_" + ts.Format(time.RFC3339),
		From:      r.From,
		To:        r.To,
		Value:     r.Value,
		Source:    r.Source,
		FetchedAt: ts,
	}
}
