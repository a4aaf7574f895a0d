// Package app wires configuration, storage, providers and services into a
// runnable HTTP application.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"valutatrade/config"
	"valutatrade/internal/adapter/http/handler"
	"valutatrade/internal/adapter/http/middleware"
	"valutatrade/internal/adapter/metrics"
	"valutatrade/internal/adapter/provider"
	"valutatrade/internal/core/domain"
	"valutatrade/internal/core/ports"
	"valutatrade/internal/service"
	"valutatrade/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Options overrides collaborators that tests need to control.
type Options struct {
	// HTTPClient is used for provider calls. Nil uses a default http.Client.
	HTTPClient provider.HTTPClient
	// Registry receives the application metrics. Nil creates a fresh registry
	// with the Go and process collectors.
	Registry *prometheus.Registry
	// Argon2 overrides the password hashing cost.
	Argon2 *service.Argon2Params
}

// App is a fully wired application.
type App struct {
	Router    *gin.Engine
	Cache     *service.RateCacheImpl
	Scheduler *service.RateScheduler // nil when the scheduler is disabled

	cfg     *config.Config
	storage *storage
	log     zerolog.Logger
}

// Build constructs every dependency described by cfg. The returned App owns
// the storage connections; call Close when done.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.JWT.Secret == "" {
		return nil, errors.New("invalid config: jwt.secret is required (set VTH_JWT_SECRET)")
	}

	base := domain.NormalizeCode(cfg.Rates.BaseCurrency)
	registry, err := buildRegistry(cfg.Rates)
	if err != nil {
		return nil, err
	}

	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	promMetrics := metrics.New(reg)

	ratesLog := logger.Component(log, "rates")
	sources := buildSources(cfg.Rates, base, opts.HTTPClient, ratesLog)
	cache, err := service.NewRateCache(registry, base, cfg.Rates.TTL, sources, ratesLog,
		service.WithSnapshotStore(st.snapshots),
		service.WithHistory(st.history),
		service.WithMetrics(promMetrics),
	)
	if err != nil {
		st.close()
		return nil, fmt.Errorf("building rate cache: %w", err)
	}

	hashParams := service.DefaultArgon2Params()
	if opts.Argon2 != nil {
		hashParams = *opts.Argon2
	}
	hashSvc := service.NewArgon2HashService(hashParams)
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	actions := service.NewActionLog(st.actions, log)

	engine := service.NewTradeEngine(cache, registry, log)
	valuation := service.NewValuationService(cache, registry, log)
	tradingSvc := service.NewTradingService(engine, valuation, st.wallets, st.transactor, actions, promMetrics, base, log)
	userSvc := service.NewUserService(st.users, st.wallets, st.transactor, hashSvc, tokenSvc, actions, base, log)

	var scheduler *service.RateScheduler
	if cfg.Scheduler.Enabled {
		scheduler = service.NewRateScheduler(cache, []domain.SourceKind{domain.SourceCrypto, domain.SourceFiat}, cfg.Scheduler.Interval, ratesLog)
	}

	router := handler.SetupRouter(handler.RouterDeps{
		UserSvc:     userSvc,
		TradingSvc:  tradingSvc,
		RateCache:   cache,
		RateHistory: st.history,
		Registry:    registry,
		TokenSvc:    tokenSvc,
		RateLimiter: st.limiter,
		RateLimitRules: map[string]middleware.RateLimitRule{
			middleware.GroupRatesRefresh: {
				Limit:  int64(cfg.RateLimit.RefreshLimit),
				Window: cfg.RateLimit.RefreshWindow,
			},
		},
		IdempotencyCache: st.idempotency,
		IdempotencyTTL:   cfg.Idempotency.TTL,
		HealthCheckers:   st.health,
		MetricsHandler:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		HistoryLimit:     cfg.Rates.HistoryLimit,
		Mode:             cfg.Server.Mode,
		Logger:           log,
	})

	return &App{
		Router:    router,
		Cache:     cache,
		Scheduler: scheduler,
		cfg:       cfg,
		storage:   st,
		log:       log,
	}, nil
}

// Start restores the last rate snapshot and starts the refresh scheduler.
// A missing or unreadable snapshot only costs a cold cache.
func (a *App) Start(ctx context.Context) {
	if err := a.Cache.Restore(ctx); err != nil {
		a.log.Warn().Err(err).Msg("Rate snapshot not restored, starting with an empty cache")
	}
	if a.Scheduler != nil {
		a.Scheduler.Start(ctx)
	}
}

// Server returns an http.Server bound to the configured address.
func (a *App) Server() *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port),
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Close stops the scheduler and releases storage connections.
func (a *App) Close() {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	a.storage.close()
}

// buildRegistry registers the base currency plus every configured crypto and
// fiat code. Known codes keep their built-in descriptions.
func buildRegistry(cfg config.RatesConfig) (*domain.Registry, error) {
	known := make(map[domain.CurrencyCode]domain.Currency)
	for _, c := range domain.DefaultCurrencies() {
		known[c.Code] = c
	}

	seen := make(map[domain.CurrencyCode]bool)
	var currencies []domain.Currency
	add := func(raw string, kind domain.CurrencyKind) {
		code := domain.NormalizeCode(raw)
		if seen[code] {
			return
		}
		seen[code] = true
		c, ok := known[code]
		if !ok {
			c = domain.Currency{Code: code, Name: string(code), Kind: kind}
		}
		currencies = append(currencies, c)
	}

	add(cfg.BaseCurrency, domain.CurrencyKindFiat)
	for _, code := range cfg.CryptoCurrencies {
		add(code, domain.CurrencyKindCrypto)
	}
	for _, code := range cfg.FiatCurrencies {
		add(code, domain.CurrencyKindFiat)
	}

	registry, err := domain.NewRegistry(currencies...)
	if err != nil {
		return nil, fmt.Errorf("building currency registry: %w", err)
	}
	return registry, nil
}

// buildSources creates the crypto and fiat providers. The base currency is
// never routed to a provider.
func buildSources(cfg config.RatesConfig, base domain.CurrencyCode, client provider.HTTPClient, log zerolog.Logger) []ports.RateSource {
	var sources []ports.RateSource

	if len(cfg.CryptoCurrencies) > 0 {
		ids := make(map[domain.CurrencyCode]string, len(cfg.CryptoCurrencies))
		for _, code := range cfg.CryptoCurrencies {
			if id, ok := cfg.CoinGeckoID(code); ok {
				ids[domain.NormalizeCode(code)] = id
			}
		}
		sources = append(sources, provider.NewCoinGecko(client, base, ids, providerOptions(cfg, cfg.CoinGeckoURL), log))
	}

	var fiat []domain.CurrencyCode
	for _, raw := range cfg.FiatCurrencies {
		if code := domain.NormalizeCode(raw); code != base {
			fiat = append(fiat, code)
		}
	}
	if len(fiat) > 0 {
		if cfg.ExchangeRateAPIKey == "" {
			log.Warn().Msg("rates.exchangerate_api_key is empty, fiat rates will be unavailable")
		}
		sources = append(sources, provider.NewExchangeRate(client, base, fiat, cfg.ExchangeRateAPIKey, providerOptions(cfg, cfg.ExchangeRateURL), log))
	}

	return sources
}

func providerOptions(cfg config.RatesConfig, url string) provider.Options {
	return provider.Options{
		URL:        url,
		Timeout:    cfg.RequestTimeout,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
	}
}
