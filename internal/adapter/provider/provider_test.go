package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"valutatrade/internal/core/domain"
	"valutatrade/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions(url string) Options {
	return Options{URL: url, Timeout: time.Second, MaxRetries: 3, RetryDelay: time.Millisecond}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

var testIDs = map[domain.CurrencyCode]string{
	"BTC": "bitcoin",
	"eth": "ethereum",
	"SOL": "solana",
}

func TestCoinGecko_FetchAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bitcoin,ethereum,solana", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":60000.5},"ethereum":{"usd":3000},"solana":{"usd":0}}`))
	}))
	defer srv.Close()

	cg := NewCoinGecko(srv.Client(), "USD", testIDs, testOptions(srv.URL), zerolog.Nop())
	assert.Equal(t, "coingecko", cg.Name())
	assert.Equal(t, domain.SourceCrypto, cg.Kind())
	assert.Equal(t, []domain.CurrencyCode{"BTC", "ETH", "SOL"}, cg.Currencies())

	rates, err := cg.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, rates, 2) // SOL skipped: zero price

	assert.Equal(t, domain.CurrencyCode("BTC"), rates[0].From)
	assert.Equal(t, domain.CurrencyCode("USD"), rates[0].To)
	assert.Equal(t, domain.SourceCrypto, rates[0].Source)
	assertDecimal(t, "60000.5", rates[0].Value)
	assertDecimal(t, "3000", rates[1].Value)
}

func TestCoinGecko_FetchRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ethereum", r.URL.Query().Get("ids"))
		_, _ = w.Write([]byte(`{"ethereum":{"usd":"3100.25"}}`))
	}))
	defer srv.Close()

	cg := NewCoinGecko(srv.Client(), "USD", testIDs, testOptions(srv.URL), zerolog.Nop())

	r, err := cg.FetchRate(context.Background(), "eth")
	require.NoError(t, err)
	assert.Equal(t, domain.CurrencyCode("ETH"), r.From)
	assertDecimal(t, "3100.25", r.Value)
}

func TestCoinGecko_FetchRate_Unsupported(t *testing.T) {
	cg := NewCoinGecko(nil, "USD", testIDs, testOptions("http://unused"), zerolog.Nop())

	_, err := cg.FetchRate(context.Background(), "DOGE")
	assert.ErrorContains(t, err, "not supported")
}

func TestCoinGecko_FetchRate_MissingFromResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cg := NewCoinGecko(srv.Client(), "USD", testIDs, testOptions(srv.URL), zerolog.Nop())

	_, err := cg.FetchRate(context.Background(), "BTC")
	assert.ErrorContains(t, err, "no price for BTC")
}

func TestFetcher_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":1}}`))
	}))
	defer srv.Close()

	cg := NewCoinGecko(srv.Client(), "USD", testIDs, testOptions(srv.URL), zerolog.Nop())

	r, err := cg.FetchRate(context.Background(), "BTC")
	require.NoError(t, err)
	assertDecimal(t, "1", r.Value)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetcher_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cg := NewCoinGecko(srv.Client(), "USD", testIDs, testOptions(srv.URL), zerolog.Nop())

	_, err := cg.FetchAll(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "unexpected status 503")
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetcher_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	cg := NewCoinGecko(srv.Client(), "USD", testIDs, testOptions(srv.URL), zerolog.Nop())

	_, err := cg.FetchAll(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetcher_TimeoutPerAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	opts := testOptions(srv.URL)
	opts.Timeout = 20 * time.Millisecond
	opts.MaxRetries = 2
	cg := NewCoinGecko(srv.Client(), "USD", testIDs, opts, zerolog.Nop())

	_, err := cg.FetchAll(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetcher_StopsOnCancelledContext(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	opts := testOptions(srv.URL)
	opts.RetryDelay = time.Hour
	cg := NewCoinGecko(srv.Client(), "USD", testIDs, opts, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := cg.FetchAll(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExchangeRate_FetchAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/secret/latest/USD", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"result": "success",
			"base_code": "USD",
			"conversion_rates": {"USD": 1, "EUR": 0.8, "GBP": 0.5, "RUB": 0, "JPY": "bad"}
		}`))
	}))
	defer srv.Close()

	er := NewExchangeRate(srv.Client(), "USD", []domain.CurrencyCode{"gbp", "EUR", "RUB", "JPY", "CNY"}, "secret", testOptions(srv.URL), zerolog.Nop())
	assert.Equal(t, "exchangerate", er.Name())
	assert.Equal(t, domain.SourceFiat, er.Kind())
	assert.Equal(t, []domain.CurrencyCode{"CNY", "EUR", "GBP", "JPY", "RUB"}, er.Currencies())

	rates, err := er.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, rates, 2)

	assert.Equal(t, domain.CurrencyCode("EUR"), rates[0].From)
	assert.Equal(t, domain.CurrencyCode("USD"), rates[0].To)
	assert.Equal(t, domain.SourceFiat, rates[0].Source)
	assertDecimal(t, "1.25", rates[0].Value)
	assert.Equal(t, domain.CurrencyCode("GBP"), rates[1].From)
	assertDecimal(t, "2", rates[1].Value)
}

func TestExchangeRate_FetchRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":"success","conversion_rates":{"EUR":0.8}}`))
	}))
	defer srv.Close()

	er := NewExchangeRate(srv.Client(), "USD", []domain.CurrencyCode{"EUR", "GBP"}, "k", testOptions(srv.URL), zerolog.Nop())

	r, err := er.FetchRate(context.Background(), "eur")
	require.NoError(t, err)
	assertDecimal(t, "1.25", r.Value)

	_, err = er.FetchRate(context.Background(), "GBP")
	assert.ErrorContains(t, err, "no rate for GBP")
}

func TestExchangeRate_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":"error","error-type":"invalid-key"}`))
	}))
	defer srv.Close()

	er := NewExchangeRate(srv.Client(), "USD", []domain.CurrencyCode{"EUR"}, "bad", testOptions(srv.URL), zerolog.Nop())

	_, err := er.FetchAll(context.Background())
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeProviderError, appErr.Code)
	assert.ErrorContains(t, err, "invalid-key")
}

func TestExchangeRate_MissingAPIKey(t *testing.T) {
	er := NewExchangeRate(nil, "USD", []domain.CurrencyCode{"EUR"}, "", testOptions("http://unused"), zerolog.Nop())

	_, err := er.FetchAll(context.Background())
	assert.Equal(t, apperror.CodeProviderError, apperror.KindOf(err))
}

func TestExchangeRate_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	er := NewExchangeRate(srv.Client(), "USD", []domain.CurrencyCode{"EUR"}, "k", testOptions(srv.URL), zerolog.Nop())

	_, err := er.FetchAll(context.Background())
	assert.ErrorContains(t, err, "failed to parse response")
}
