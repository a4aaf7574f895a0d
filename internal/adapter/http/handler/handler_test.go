package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"valutatrade/internal/core/domain"
	"valutatrade/internal/core/ports"
	"valutatrade/internal/core/ports/mocks"
	"valutatrade/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testToken = "good_token"

type routerTestDeps struct {
	router  *gin.Engine
	users   *mocks.MockUserService
	trading *mocks.MockTradingService
	rates   *mocks.MockRateCache
	history *mocks.MockRateHistoryRepository
	tokens  *mocks.MockTokenService
	userID  uuid.UUID
}

func setupRouter(t *testing.T) *routerTestDeps {
	ctrl := gomock.NewController(t)
	d := &routerTestDeps{
		users:   mocks.NewMockUserService(ctrl),
		trading: mocks.NewMockTradingService(ctrl),
		rates:   mocks.NewMockRateCache(ctrl),
		history: mocks.NewMockRateHistoryRepository(ctrl),
		tokens:  mocks.NewMockTokenService(ctrl),
		userID:  uuid.New(),
	}
	d.rates.EXPECT().BaseCurrency().Return(domain.CurrencyCode("USD")).AnyTimes()
	d.tokens.EXPECT().Validate(testToken).Return(&ports.TokenClaims{UserID: d.userID, Username: "alice"}, nil).AnyTimes()

	d.router = SetupRouter(RouterDeps{
		UserSvc:        d.users,
		TradingSvc:     d.trading,
		RateCache:      d.rates,
		RateHistory:    d.history,
		Registry:       domain.MustDefaultRegistry(),
		TokenSvc:       d.tokens,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "# metrics") }),
		HistoryLimit:   50,
		Logger:         zerolog.Nop(),
	})
	return d
}

func (d *routerTestDeps) do(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	d.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, w.Code)
	assert.Equal(t, code, decodeBody(t, w)["error_code"])
}

var fetchedAt = time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC)

func testRate(from, to, value string, stale bool) domain.Rate {
	return domain.Rate{
		From:      domain.CurrencyCode(from),
		To:        domain.CurrencyCode(to),
		Value:     decimal.RequireFromString(value),
		FetchedAt: fetchedAt,
		Source:    domain.SourceCrypto,
		Stale:     stale,
	}
}

// --- Auth ---

func TestRegister_Success(t *testing.T) {
	d := setupRouter(t)
	id := uuid.New()
	d.users.EXPECT().Register(gomock.Any(), "alice", "pass1234").
		Return(&domain.User{ID: id, Username: "alice", CreatedAt: fetchedAt}, nil)

	w := d.do(http.MethodPost, "/api/v1/auth/register", map[string]string{"username": " alice ", "password": "pass1234"}, "")

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, id.String(), data["user_id"])
	assert.Equal(t, "alice", data["username"])
}

func TestRegister_ValidationError(t *testing.T) {
	d := setupRouter(t)
	w := d.do(http.MethodPost, "/api/v1/auth/register", "{}", "")
	assertErrorCode(t, w, http.StatusBadRequest, apperror.CodeValidation)
}

func TestRegister_UsernameTaken(t *testing.T) {
	d := setupRouter(t)
	d.users.EXPECT().Register(gomock.Any(), "taken", "pass1234").Return(nil, apperror.ErrUsernameExists("taken"))

	w := d.do(http.MethodPost, "/api/v1/auth/register", map[string]string{"username": "taken", "password": "pass1234"}, "")
	assertErrorCode(t, w, http.StatusConflict, apperror.CodeUsernameExists)
}

func TestLogin_Success(t *testing.T) {
	d := setupRouter(t)
	expiry := time.Now().Add(time.Hour)
	d.users.EXPECT().Login(gomock.Any(), "alice", "pass1234").Return("jwt", expiry, nil)

	w := d.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "alice", "password": "pass1234"}, "")

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "jwt", data["token"])
	assert.Equal(t, float64(expiry.Unix()), data["expiry"])
}

func TestLogin_InvalidCredentials(t *testing.T) {
	d := setupRouter(t)
	d.users.EXPECT().Login(gomock.Any(), "alice", "wrong").Return("", time.Time{}, apperror.ErrInvalidCredentials())

	w := d.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "alice", "password": "wrong"}, "")
	assertErrorCode(t, w, http.StatusUnauthorized, apperror.CodeInvalidCredentials)
}

// --- Rates ---

func TestListRates(t *testing.T) {
	d := setupRouter(t)
	d.rates.EXPECT().ListCached(2, domain.CurrencyCode("EUR")).Return([]domain.Rate{
		testRate("BTC", "EUR", "55000", false),
		testRate("ETH", "EUR", "2800", true),
	}, nil)

	w := d.do(http.MethodGet, "/api/v1/rates?top=2&base=eur", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	items := resp["data"].([]interface{})
	require.Len(t, items, 2)
	assert.Equal(t, "55000", items[0].(map[string]interface{})["rate"])
	meta := resp["meta"].(map[string]interface{})
	assert.Equal(t, "EUR", meta["base"])
	assert.Equal(t, float64(1), meta["stale_count"])
}

func TestListRates_DefaultsToCacheBase(t *testing.T) {
	d := setupRouter(t)
	d.rates.EXPECT().ListCached(0, domain.CurrencyCode("USD")).Return(nil, nil)

	w := d.do(http.MethodGet, "/api/v1/rates", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody(t, w)["data"])
}

func TestListRates_InvalidQuery(t *testing.T) {
	d := setupRouter(t)
	assertErrorCode(t, d.do(http.MethodGet, "/api/v1/rates?top=-1", nil, ""), http.StatusBadRequest, apperror.CodeValidation)
	assertErrorCode(t, d.do(http.MethodGet, "/api/v1/rates?base=1x", nil, ""), http.StatusBadRequest, apperror.CodeValidation)
}

func TestGetRate_IncludesReverse(t *testing.T) {
	d := setupRouter(t)
	r := testRate("EUR", "USD", "1.25", false)
	d.rates.EXPECT().GetRate(gomock.Any(), domain.CurrencyCode("EUR"), domain.CurrencyCode("USD")).Return(&r, nil)

	w := d.do(http.MethodGet, "/api/v1/rates/eur", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "1.25", data["rate"])
	assert.Equal(t, "0.8", data["reverse_rate"])
	assert.Equal(t, false, data["stale"])
}

func TestGetRate_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unknown currency", apperror.ErrUnknownCurrency("XYZ"), http.StatusBadRequest, apperror.CodeUnknownCurrency},
		{"unavailable", apperror.ErrRateUnavailable("BTC", "USD", nil), http.StatusServiceUnavailable, apperror.CodeRateUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupRouter(t)
			d.rates.EXPECT().GetRate(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, tt.err)

			assertErrorCode(t, d.do(http.MethodGet, "/api/v1/rates/XYZ", nil, ""), tt.wantStatus, tt.wantCode)
		})
	}
}

func TestHistory(t *testing.T) {
	d := setupRouter(t)
	rec := domain.NewRateHistoryRecord(testRate("BTC", "USD", "60000", false))
	d.history.EXPECT().ListByCurrency(gomock.Any(), domain.CurrencyCode("BTC"), 50).
		Return([]domain.RateHistoryRecord{rec}, nil)

	w := d.do(http.MethodGet, "/api/v1/rates/btc/history", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	items := decodeBody(t, w)["data"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, rec.ID, items[0].(map[string]interface{})["id"])
}

func TestHistory_UnknownCurrency(t *testing.T) {
	d := setupRouter(t)
	assertErrorCode(t, d.do(http.MethodGet, "/api/v1/rates/doge/history?limit=5", nil, ""), http.StatusBadRequest, apperror.CodeUnknownCurrency)
}

func TestHistory_RepositoryError(t *testing.T) {
	d := setupRouter(t)
	d.history.EXPECT().ListByCurrency(gomock.Any(), domain.CurrencyCode("ETH"), 5).Return(nil, errors.New("db down"))

	assertErrorCode(t, d.do(http.MethodGet, "/api/v1/rates/ETH/history?limit=5", nil, ""), http.StatusInternalServerError, apperror.CodeInternal)
}

func TestRefresh_AllWithPartialFailure(t *testing.T) {
	d := setupRouter(t)
	d.rates.EXPECT().RefreshAll(gomock.Any(), domain.SourceCrypto).
		Return([]domain.Rate{testRate("BTC", "USD", "60000", false)}, nil)
	d.rates.EXPECT().RefreshAll(gomock.Any(), domain.SourceFiat).
		Return(nil, apperror.ErrProvider("FIAT", errors.New("invalid-key")))

	w := d.do(http.MethodPost, "/api/v1/rates/refresh", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Len(t, resp["data"], 1)
	failed := resp["meta"].(map[string]interface{})["failed_sources"].(map[string]interface{})
	assert.Equal(t, apperror.CodeProviderError, failed["FIAT"])
}

func TestRefresh_SingleSourceFailure(t *testing.T) {
	d := setupRouter(t)
	d.rates.EXPECT().RefreshAll(gomock.Any(), domain.SourceCrypto).
		Return(nil, apperror.ErrProvider("CRYPTO", errors.New("timeout")))

	assertErrorCode(t, d.do(http.MethodPost, "/api/v1/rates/refresh?source=crypto", nil, ""), http.StatusBadGateway, apperror.CodeProviderError)
}

func TestRefresh_InvalidSource(t *testing.T) {
	d := setupRouter(t)
	assertErrorCode(t, d.do(http.MethodPost, "/api/v1/rates/refresh?source=stocks", nil, ""), http.StatusBadRequest, apperror.CodeValidation)
}

func TestCurrencies(t *testing.T) {
	d := setupRouter(t)
	w := d.do(http.MethodGet, "/api/v1/currencies", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	items := decodeBody(t, w)["data"].([]interface{})
	assert.Len(t, items, len(domain.DefaultCurrencies()))
}

// --- Wallet & trades ---

func TestWallet_RequiresToken(t *testing.T) {
	d := setupRouter(t)
	assertErrorCode(t, d.do(http.MethodGet, "/api/v1/wallet", nil, ""), http.StatusUnauthorized, apperror.CodeInvalidToken)
}

func TestGetWallet(t *testing.T) {
	d := setupRouter(t)
	wallet := domain.NewWallet(d.userID, "USD", fetchedAt)
	wallet.BaseCash = decimal.RequireFromString("150.5")
	wallet.Holdings["BTC"] = decimal.RequireFromString("0.01")
	d.trading.EXPECT().Wallet(gomock.Any(), d.userID).Return(wallet, nil)

	w := d.do(http.MethodGet, "/api/v1/wallet", nil, testToken)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "150.5", data["base_cash"])
	assert.Equal(t, "0.01", data["holdings"].(map[string]interface{})["BTC"])
}

func TestDeposit(t *testing.T) {
	d := setupRouter(t)
	wallet := domain.NewWallet(d.userID, "USD", fetchedAt)
	wallet.BaseCash = decimal.NewFromInt(100)
	d.trading.EXPECT().Deposit(gomock.Any(), d.userID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, amount decimal.Decimal) (*domain.Wallet, error) {
			assert.True(t, amount.Equal(decimal.NewFromInt(100)))
			return wallet, nil
		})

	w := d.do(http.MethodPost, "/api/v1/wallet/deposit", `{"amount": "100"}`, testToken)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDeposit_MalformedAmount(t *testing.T) {
	d := setupRouter(t)
	assertErrorCode(t, d.do(http.MethodPost, "/api/v1/wallet/deposit", `{"amount": "lots"}`, testToken), http.StatusBadRequest, apperror.CodeInvalidAmount)
}

func TestTrade_Success(t *testing.T) {
	d := setupRouter(t)
	wallet := domain.NewWallet(d.userID, "USD", fetchedAt)
	wallet.BaseCash = decimal.NewFromInt(400)
	wallet.Holdings["BTC"] = decimal.RequireFromString("0.01")
	rate := testRate("BTC", "USD", "60000", true)

	d.trading.EXPECT().Trade(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, cmd ports.TradeCommand) (*domain.TradeOutcome, error) {
			assert.Equal(t, d.userID, cmd.UserID)
			assert.Equal(t, "btc", cmd.Currency)
			assert.Equal(t, domain.DirectionBuy, cmd.Direction)
			assert.True(t, cmd.Amount.Equal(decimal.RequireFromString("0.01")))
			return &domain.TradeOutcome{
				Success:        true,
				Wallet:         wallet,
				CostOrProceeds: decimal.NewFromInt(600),
				Rate:           &rate,
			}, nil
		})

	w := d.do(http.MethodPost, "/api/v1/trades", `{"currency": "btc", "amount": 0.01, "direction": "buy"}`, testToken)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "BUY", data["direction"])
	assert.Equal(t, "BTC", data["currency"])
	assert.Equal(t, "600", data["cost_or_proceeds"])
	assert.Equal(t, "60000", data["rate"])
	assert.Equal(t, true, data["stale"])
	assert.Equal(t, "400", data["wallet"].(map[string]interface{})["base_cash"])
}

func TestTrade_InsufficientFunds(t *testing.T) {
	d := setupRouter(t)
	d.trading.EXPECT().Trade(gomock.Any(), gomock.Any()).
		Return(&domain.TradeOutcome{ErrorKind: apperror.CodeInsufficientFunds}, apperror.ErrInsufficientFunds(nil))

	w := d.do(http.MethodPost, "/api/v1/trades", `{"currency": "BTC", "amount": "5", "direction": "buy"}`, testToken)
	assertErrorCode(t, w, http.StatusUnprocessableEntity, apperror.CodeInsufficientFunds)
}

func TestTrade_InvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad direction", `{"currency": "BTC", "amount": "1", "direction": "hold"}`},
		{"missing currency", `{"amount": "1", "direction": "sell"}`},
		{"malformed currency", `{"currency": "B1C", "amount": "1", "direction": "sell"}`},
		{"not json", `currency=BTC`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupRouter(t)
			assertErrorCode(t, d.do(http.MethodPost, "/api/v1/trades", tt.body, testToken), http.StatusBadRequest, apperror.CodeValidation)
		})
	}
}

func TestPortfolio(t *testing.T) {
	d := setupRouter(t)
	d.trading.EXPECT().Portfolio(gomock.Any(), d.userID, "EUR").Return(&domain.Valuation{
		Base:  "EUR",
		Total: decimal.NewFromInt(80),
		Lines: []domain.ValuationLine{
			{Currency: "USD", Balance: decimal.NewFromInt(100), Rate: decimal.NewNullDecimal(decimal.RequireFromString("0.8")), Value: decimal.NewFromInt(80), Stale: true},
		},
	}, nil)

	w := d.do(http.MethodGet, "/api/v1/portfolio?base=EUR", nil, testToken)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "EUR", data["base"])
	assert.Equal(t, "80", data["total"])
	assert.Equal(t, true, data["stale"])
	assert.Len(t, data["lines"], 1)
}

// --- Health, metrics & docs ---

func TestHealthCheck(t *testing.T) {
	ctrl := gomock.NewController(t)
	healthy := mocks.NewMockHealthChecker(ctrl)
	healthy.EXPECT().Name().Return("memory").AnyTimes()
	healthy.EXPECT().Ping(gomock.Any()).Return(nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	HealthCheck(healthy)(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decodeBody(t, w)["status"])
}

func TestHealthCheck_Degraded(t *testing.T) {
	ctrl := gomock.NewController(t)
	broken := mocks.NewMockHealthChecker(ctrl)
	broken.EXPECT().Name().Return("redis").AnyTimes()
	broken.EXPECT().Ping(gomock.Any()).Return(errors.New("connection refused"))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	HealthCheck(broken)(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, "degraded", resp["status"])
	dep := resp["dependencies"].(map[string]interface{})["redis"].(map[string]interface{})
	assert.Equal(t, "connection refused", dep["error"])
}

func TestMetricsRoute(t *testing.T) {
	d := setupRouter(t)
	w := d.do(http.MethodGet, "/metrics", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "# metrics", w.Body.String())
}

func TestSwaggerUI(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/swagger", nil)

	SwaggerUI(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "/swagger/spec")
}

func TestSwaggerSpec(t *testing.T) {
	SetSwaggerSpec(nil)
	d := setupRouter(t)
	assert.Equal(t, http.StatusNotFound, d.do(http.MethodGet, "/swagger/spec", nil, "").Code)

	SetSwaggerSpec([]byte("openapi: '3.0.3'\ninfo:\n  title: Test"))
	t.Cleanup(func() { SetSwaggerSpec(nil) })

	w := d.do(http.MethodGet, "/swagger/spec", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "openapi")
}
