package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"valutatrade/internal/core/domain"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// CoinGecko fetches crypto prices from the CoinGecko simple-price API.
type CoinGecko struct {
	fetcher
	base  domain.CurrencyCode
	ids   map[domain.CurrencyCode]string
	codes []domain.CurrencyCode
}

// NewCoinGecko creates a client for the currencies in ids, keyed by code.
func NewCoinGecko(client HTTPClient, base domain.CurrencyCode, ids map[domain.CurrencyCode]string, opts Options, log zerolog.Logger) *CoinGecko {
	c := &CoinGecko{
		fetcher: newFetcher("coingecko", client, opts, log),
		base:    base,
		ids:     make(map[domain.CurrencyCode]string, len(ids)),
	}
	for code, id := range ids {
		code = domain.NormalizeCode(string(code))
		c.ids[code] = id
		c.codes = append(c.codes, code)
	}
	sort.Slice(c.codes, func(i, j int) bool { return c.codes[i] < c.codes[j] })
	return c
}

func (c *CoinGecko) Name() string                      { return c.source }
func (c *CoinGecko) Kind() domain.SourceKind           { return domain.SourceCrypto }
func (c *CoinGecko) Currencies() []domain.CurrencyCode { return append([]domain.CurrencyCode(nil), c.codes...) }

// FetchRate fetches the price of a single coin.
func (c *CoinGecko) FetchRate(ctx context.Context, code domain.CurrencyCode) (*domain.Rate, error) {
	code = domain.NormalizeCode(string(code))
	if _, ok := c.ids[code]; !ok {
		return nil, fmt.Errorf("%s: currency %s is not supported", c.source, code)
	}
	rates, err := c.fetch(ctx, []domain.CurrencyCode{code})
	if err != nil {
		return nil, err
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("%s: no price for %s in response", c.source, code)
	}
	return &rates[0], nil
}

// FetchAll fetches every configured coin in one request. Coins missing from
// the response are skipped.
func (c *CoinGecko) FetchAll(ctx context.Context) ([]domain.Rate, error) {
	return c.fetch(ctx, c.codes)
}

func (c *CoinGecko) fetch(ctx context.Context, codes []domain.CurrencyCode) ([]domain.Rate, error) {
	if len(codes) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(codes))
	for _, code := range codes {
		ids = append(ids, c.ids[code])
	}
	vs := strings.ToLower(string(c.base))

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", vs)

	// {"bitcoin": {"usd": 60000.5}, ...}
	var body map[string]map[string]json.RawMessage
	if err := c.getJSON(ctx, c.opts.URL+"?"+q.Encode(), &body); err != nil {
		return nil, err
	}

	rates := make([]domain.Rate, 0, len(codes))
	for _, code := range codes {
		raw, ok := body[c.ids[code]][vs]
		if !ok {
			c.log.Warn().Str("source", c.source).Str("currency", string(code)).Msg("price missing from response")
			continue
		}
		value, err := parseValue(raw)
		if err != nil || !value.IsPositive() {
			c.log.Warn().Str("source", c.source).Str("currency", string(code)).Str("raw", string(raw)).Msg("skipping invalid price")
			continue
		}
		rates = append(rates, domain.Rate{
			From:   code,
			To:     c.base,
			Value:  value,
			Source: domain.SourceCrypto,
		})
	}
	return rates, nil
}

// parseValue accepts a JSON number or a numeric string.
func parseValue(raw json.RawMessage) (decimal.Decimal, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	return decimal.NewFromString(s)
}
