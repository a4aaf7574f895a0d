package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// CurrencyCode is a normalized (trimmed, upper-case) currency identifier such as "BTC" or "USD".
type CurrencyCode string

// String returns the code as a plain string.
func (c CurrencyCode) String() string {
	return string(c)
}

// NormalizeCode trims and upper-cases a raw code. It does not check the registry.
func NormalizeCode(raw string) CurrencyCode {
	return CurrencyCode(strings.ToUpper(strings.TrimSpace(raw)))
}

// CurrencyKind partitions currencies between the crypto and fiat providers.
type CurrencyKind string

const (
	CurrencyKindFiat   CurrencyKind = "FIAT"
	CurrencyKindCrypto CurrencyKind = "CRYPTO"
)

// Currency describes a tradable currency.
type Currency struct {
	Code           CurrencyCode `json:"code"`
	Name           string       `json:"name"`
	Kind           CurrencyKind `json:"kind"`
	IssuingCountry string       `json:"issuing_country,omitempty"` // fiat only
	Algorithm      string       `json:"algorithm,omitempty"`       // crypto only
	MarketCap      float64      `json:"market_cap,omitempty"`      // crypto only
}

// DisplayInfo returns a one-line human readable description.
func (c Currency) DisplayInfo() string {
	if c.Kind == CurrencyKindCrypto {
		return fmt.Sprintf("[CRYPTO] %s - %s (Algo: %s, MCAP: %.2e)", c.Code, c.Name, c.Algorithm, c.MarketCap)
	}
	return fmt.Sprintf("[FIAT] %s - %s (Issuing: %s)", c.Code, c.Name, c.IssuingCountry)
}

var (
	ErrEmptyCurrencyCode = errors.New("currency code is empty")
	ErrInvalidCurrency   = errors.New("currency code is invalid")
	ErrUnknownCurrency   = errors.New("unknown currency")
)

// Registry is the closed set of currencies known to the system.
type Registry struct {
	byCode map[CurrencyCode]Currency
}

// NewRegistry builds a registry from the given currencies. Duplicate or malformed codes are rejected.
func NewRegistry(currencies ...Currency) (*Registry, error) {
	r := &Registry{byCode: make(map[CurrencyCode]Currency, len(currencies))}
	for _, c := range currencies {
		code := NormalizeCode(string(c.Code))
		if err := validateCodeShape(code); err != nil {
			return nil, fmt.Errorf("register %q: %w", c.Code, err)
		}
		if _, dup := r.byCode[code]; dup {
			return nil, fmt.Errorf("register %q: duplicate code", code)
		}
		c.Code = code
		r.byCode[code] = c
	}
	return r, nil
}

// DefaultCurrencies returns the built-in currency set.
func DefaultCurrencies() []Currency {
	return []Currency{
		{Code: "USD", Name: "US Dollar", Kind: CurrencyKindFiat, IssuingCountry: "United States"},
		{Code: "EUR", Name: "Euro", Kind: CurrencyKindFiat, IssuingCountry: "Eurozone"},
		{Code: "GBP", Name: "British Pound", Kind: CurrencyKindFiat, IssuingCountry: "United Kingdom"},
		{Code: "RUB", Name: "Russian Ruble", Kind: CurrencyKindFiat, IssuingCountry: "Russian Federation"},
		{Code: "JPY", Name: "Japanese Yen", Kind: CurrencyKindFiat, IssuingCountry: "Japan"},
		{Code: "CNY", Name: "Chinese Yuan", Kind: CurrencyKindFiat, IssuingCountry: "China"},
		{Code: "BTC", Name: "Bitcoin", Kind: CurrencyKindCrypto, Algorithm: "SHA-256", MarketCap: 1.12e12},
		{Code: "ETH", Name: "Ethereum", Kind: CurrencyKindCrypto, Algorithm: "Ethash", MarketCap: 4.5e11},
		{Code: "SOL", Name: "Solana", Kind: CurrencyKindCrypto, Algorithm: "Proof of History", MarketCap: 8.0e10},
	}
}

// MustDefaultRegistry returns a registry of DefaultCurrencies.
func MustDefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultCurrencies()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup normalizes raw and returns the registered currency.
func (r *Registry) Lookup(raw string) (Currency, error) {
	code := NormalizeCode(raw)
	if err := validateCodeShape(code); err != nil {
		return Currency{}, err
	}
	c, ok := r.byCode[code]
	if !ok {
		return Currency{}, fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
	}
	return c, nil
}

// Contains reports whether code is registered.
func (r *Registry) Contains(code CurrencyCode) bool {
	_, ok := r.byCode[code]
	return ok
}

// Codes returns all registered codes in sorted order.
func (r *Registry) Codes() []CurrencyCode {
	codes := make([]CurrencyCode, 0, len(r.byCode))
	for code := range r.byCode {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

func validateCodeShape(code CurrencyCode) error {
	if code == "" {
		return ErrEmptyCurrencyCode
	}
	if len(code) < 2 || len(code) > 5 || strings.ContainsAny(string(code), " \t") {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	return nil
}
