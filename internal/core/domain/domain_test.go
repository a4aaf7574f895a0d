package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRegistry_Lookup(t *testing.T) {
	reg := MustDefaultRegistry()

	tests := []struct {
		name    string
		raw     string
		want    CurrencyCode
		wantErr error
	}{
		{"exact", "BTC", "BTC", nil},
		{"lower case and spaces", "  eth ", "ETH", nil},
		{"fiat", "eur", "EUR", nil},
		{"empty", "   ", "", ErrEmptyCurrencyCode},
		{"unknown", "DOGE", "", ErrUnknownCurrency},
		{"too long", "BITCOIN", "", ErrInvalidCurrency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := reg.Lookup(tt.raw)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Code)
		})
	}
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(
		Currency{Code: "usd", Kind: CurrencyKindFiat},
		Currency{Code: "USD", Kind: CurrencyKindFiat},
	)
	assert.Error(t, err)
}

func TestRegistry_Codes_Sorted(t *testing.T) {
	codes := MustDefaultRegistry().Codes()
	require.Len(t, codes, 9)
	assert.Equal(t, CurrencyCode("BTC"), codes[0])
	assert.Equal(t, CurrencyCode("USD"), codes[len(codes)-1])
}

func TestCurrency_DisplayInfo(t *testing.T) {
	btc, err := MustDefaultRegistry().Lookup("BTC")
	require.NoError(t, err)
	assert.Equal(t, "[CRYPTO] BTC - Bitcoin (Algo: SHA-256, MCAP: 1.12e+12)", btc.DisplayInfo())

	eur, err := MustDefaultRegistry().Lookup("EUR")
	require.NoError(t, err)
	assert.Equal(t, "[FIAT] EUR - Euro (Issuing: Eurozone)", eur.DisplayInfo())
}

func TestIsFresh(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	ttl := 5 * time.Minute

	tests := []struct {
		name string
		age  time.Duration
		want bool
	}{
		{"just fetched", 0, true},
		{"within ttl", 4 * time.Minute, true},
		{"exactly ttl", 5 * time.Minute, false},
		{"past ttl", 6 * time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Rate{FetchedAt: now.Add(-tt.age)}
			assert.Equal(t, tt.want, IsFresh(r, now, ttl))
		})
	}
}

func TestRate_InverseAndCross(t *testing.T) {
	now := time.Now()
	btc := Rate{From: "BTC", To: "USD", Value: dec("60000"), FetchedAt: now, Source: SourceCrypto}
	eur := Rate{From: "EUR", To: "USD", Value: dec("1.2"), FetchedAt: now.Add(-time.Minute), Source: SourceFiat, Stale: true}

	inv := btc.Inverse()
	assert.Equal(t, CurrencyCode("USD"), inv.From)
	assert.Equal(t, CurrencyCode("BTC"), inv.To)
	assert.True(t, inv.Value.Mul(dec("60000")).Sub(decimal.NewFromInt(1)).Abs().LessThan(dec("0.000001")))

	cross := CrossRate(btc, eur)
	assert.Equal(t, "BTC_EUR", cross.Pair())
	assert.True(t, cross.Value.Equal(dec("50000")))
	assert.True(t, cross.Stale)
	assert.Equal(t, eur.FetchedAt, cross.FetchedAt)
}

func TestRate_Validate(t *testing.T) {
	assert.NoError(t, Rate{From: "BTC", To: "USD", Value: dec("1")}.Validate())
	assert.ErrorIs(t, Rate{From: "BTC", To: "USD", Value: decimal.Zero}.Validate(), ErrNonPositiveRate)
	assert.ErrorIs(t, Rate{From: "", To: "USD", Value: dec("1")}.Validate(), ErrEmptyCurrencyCode)
}

func TestNewRateHistoryRecord(t *testing.T) {
	ts := time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC)
	rec := NewRateHistoryRecord(Rate{From: "BTC", To: "USD", Value: dec("59337.21"), FetchedAt: ts, Source: SourceCrypto})
	assert.Equal(t, "BTC_USD_2025-10-10T12:00:00Z", rec.ID)
	assert.Equal(t, SourceCrypto, rec.Source)
}

func TestWallet_CreditDebit(t *testing.T) {
	w := NewWallet(uuid.New(), "USD", time.Now())

	require.NoError(t, w.Credit("BTC", dec("0.5")))
	require.NoError(t, w.Debit("BTC", dec("0.5")))
	assert.True(t, w.Balance("BTC").IsZero())
	_, kept := w.Holdings["BTC"]
	assert.True(t, kept, "zero holdings stay in the wallet")

	assert.ErrorIs(t, w.Debit("BTC", dec("0.1")), ErrInsufficientFunds)
	assert.ErrorIs(t, w.Credit("BTC", decimal.Zero), ErrInvalidAmount)
	assert.ErrorIs(t, w.DebitCash(dec("1")), ErrInsufficientFunds)
	require.NoError(t, w.CreditCash(dec("10")))
	assert.True(t, w.Balance("USD").Equal(dec("10")))
}

func TestWallet_ApplyTrade(t *testing.T) {
	tests := []struct {
		name        string
		cash        string
		btc         string
		dir         Direction
		amount      string
		value       string
		wantErr     error
		wantCash    string
		wantHolding string
	}{
		{"buy", "1000", "", DirectionBuy, "0.01", "600", nil, "400", "0.01"},
		{"buy exact cash", "600", "", DirectionBuy, "0.01", "600", nil, "0", "0.01"},
		{"buy insufficient", "100", "", DirectionBuy, "0.01", "600", ErrInsufficientFunds, "100", ""},
		{"sell", "0", "0.5", DirectionSell, "0.2", "12000", nil, "12000", "0.3"},
		{"sell insufficient", "0", "0.1", DirectionSell, "0.2", "12000", ErrInsufficientFunds, "0", "0.1"},
		{"non-positive amount", "1000", "", DirectionBuy, "0", "0", ErrInvalidAmount, "1000", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWallet(uuid.New(), "USD", time.Now())
			w.BaseCash = dec(tt.cash)
			if tt.btc != "" {
				w.Holdings["BTC"] = dec(tt.btc)
			}

			err := w.ApplyTrade(tt.dir, "BTC", dec(tt.amount), dec(tt.value))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			assert.True(t, w.BaseCash.Equal(dec(tt.wantCash)), "cash = %s", w.BaseCash)
			h, ok := w.Holdings["BTC"]
			if tt.wantHolding == "" {
				assert.False(t, ok)
			} else {
				assert.True(t, h.Equal(dec(tt.wantHolding)), "holding = %s", h)
			}
		})
	}
}

func TestWallet_ApplyTrade_RejectsBaseCurrency(t *testing.T) {
	w := NewWallet(uuid.New(), "USD", time.Now())
	w.BaseCash = dec("10")
	assert.ErrorIs(t, w.ApplyTrade(DirectionBuy, "USD", dec("1"), dec("1")), ErrBaseCurrencyTrade)
	assert.True(t, w.BaseCash.Equal(dec("10")))
}

func TestWallet_Clone_IsDeep(t *testing.T) {
	w := NewWallet(uuid.New(), "USD", time.Now())
	w.Holdings["ETH"] = dec("2")
	c := w.Clone()
	c.Holdings["ETH"] = dec("3")
	assert.True(t, w.Holdings["ETH"].Equal(dec("2")))
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection(" buy ")
	require.NoError(t, err)
	assert.Equal(t, DirectionBuy, d)

	d, err = ParseDirection("SELL")
	require.NoError(t, err)
	assert.Equal(t, DirectionSell, d)

	_, err = ParseDirection("hold")
	assert.Error(t, err)
}

func TestParseSourceKind(t *testing.T) {
	k, err := ParseSourceKind("crypto")
	require.NoError(t, err)
	assert.Equal(t, SourceCrypto, k)

	_, err = ParseSourceKind("stocks")
	assert.Error(t, err)
}

func TestValuation_Stale(t *testing.T) {
	v := &Valuation{Lines: []ValuationLine{{Currency: "BTC"}, {Currency: "EUR", Stale: true}}}
	assert.True(t, v.Stale())
	v.Lines[1].Stale = false
	assert.False(t, v.Stale())
}
