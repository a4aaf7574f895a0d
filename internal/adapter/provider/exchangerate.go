package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"valutatrade/internal/core/domain"
	"valutatrade/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ExchangeRate fetches fiat rates from ExchangeRate-API v6.
type ExchangeRate struct {
	fetcher
	base   domain.CurrencyCode
	apiKey string
	codes  []domain.CurrencyCode
}

type exchangeRateResponse struct {
	Result          string                     `json:"result"`
	ErrorType       string                     `json:"error-type"`
	BaseCode        string                     `json:"base_code"`
	ConversionRates map[string]json.RawMessage `json:"conversion_rates"`
}

// NewExchangeRate creates a client for currencies, authenticated with apiKey.
func NewExchangeRate(client HTTPClient, base domain.CurrencyCode, currencies []domain.CurrencyCode, apiKey string, opts Options, log zerolog.Logger) *ExchangeRate {
	e := &ExchangeRate{
		fetcher: newFetcher("exchangerate", client, opts, log),
		base:    base,
		apiKey:  apiKey,
	}
	for _, code := range currencies {
		e.codes = append(e.codes, domain.NormalizeCode(string(code)))
	}
	sort.Slice(e.codes, func(i, j int) bool { return e.codes[i] < e.codes[j] })
	return e
}

func (e *ExchangeRate) Name() string                      { return e.source }
func (e *ExchangeRate) Kind() domain.SourceKind           { return domain.SourceFiat }
func (e *ExchangeRate) Currencies() []domain.CurrencyCode { return append([]domain.CurrencyCode(nil), e.codes...) }

// FetchRate fetches the latest table and picks code from it; the API has no
// cheaper single-currency endpoint.
func (e *ExchangeRate) FetchRate(ctx context.Context, code domain.CurrencyCode) (*domain.Rate, error) {
	code = domain.NormalizeCode(string(code))
	rates, err := e.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rates {
		if rates[i].From == code {
			return &rates[i], nil
		}
	}
	return nil, fmt.Errorf("%s: no rate for %s in response", e.source, code)
}

// FetchAll returns CODE→base rates for every configured currency. The API
// quotes base→CODE, so values are inverted; non-positive values are skipped.
func (e *ExchangeRate) FetchAll(ctx context.Context) ([]domain.Rate, error) {
	if e.apiKey == "" {
		return nil, apperror.ErrProvider(e.source, errors.New("api key is not configured"))
	}

	endpoint := strings.TrimRight(e.opts.URL, "/") + "/" + url.PathEscape(e.apiKey) + "/latest/" + string(e.base)

	var body exchangeRateResponse
	if err := e.getJSON(ctx, endpoint, &body); err != nil {
		return nil, err
	}
	if body.Result != "success" {
		reason := body.ErrorType
		if reason == "" {
			reason = "unknown error"
		}
		return nil, apperror.ErrProvider(e.source, fmt.Errorf("api error: %s", reason))
	}

	one := decimal.NewFromInt(1)
	rates := make([]domain.Rate, 0, len(e.codes))
	for _, code := range e.codes {
		raw, ok := body.ConversionRates[string(code)]
		if !ok {
			e.log.Warn().Str("source", e.source).Str("currency", string(code)).Msg("rate missing from response")
			continue
		}
		value, err := parseValue(raw)
		if err != nil || !value.IsPositive() {
			e.log.Warn().Str("source", e.source).Str("currency", string(code)).Str("raw", string(raw)).Msg("skipping invalid rate")
			continue
		}
		rates = append(rates, domain.Rate{
			From:   code,
			To:     e.base,
			Value:  one.Div(value),
			Source: domain.SourceFiat,
		})
	}
	return rates, nil
}
