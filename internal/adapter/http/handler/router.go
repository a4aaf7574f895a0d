package handler

import (
	"net/http"
	"time"

	"valutatrade/internal/adapter/http/middleware"
	"valutatrade/internal/core/domain"
	"valutatrade/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	UserSvc          ports.UserService
	TradingSvc       ports.TradingService
	RateCache        ports.RateCache
	RateHistory      ports.RateHistoryRepository // nil = history endpoint reports not found
	Registry         *domain.Registry
	TokenSvc         ports.TokenService
	RateLimiter      ports.RateLimiter                   // nil = rate limiting disabled
	RateLimitRules   map[string]middleware.RateLimitRule // overrides DefaultRateLimitRules per group
	IdempotencyCache ports.IdempotencyCache              // nil = Idempotency-Key ignored
	IdempotencyTTL   time.Duration
	HealthCheckers   []ports.HealthChecker
	MetricsHandler   http.Handler // nil = /metrics disabled
	HistoryLimit     int
	Mode             string // gin mode; empty keeps the current one
	Logger           zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Mode != "" {
		gin.SetMode(deps.Mode)
	}
	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep: verifies every storage dependency)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	// Swagger documentation
	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()
	for group, rule := range deps.RateLimitRules {
		rules[group] = rule
	}

	// Helper: return rate limiter middleware if a limiter is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimiter == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok || rule.Limit <= 0 {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimiter, group, rule, deps.Logger)
	}

	var idempotent gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if deps.IdempotencyCache != nil {
		ttl := deps.IdempotencyTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		idempotent = middleware.Idempotency(deps.IdempotencyCache, ttl, deps.Logger)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.UserSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/register", rl(middleware.GroupAuthRegister), authHandler.Register)
		auth.POST("/login", rl(middleware.GroupAuthLogin), authHandler.Login)
	}

	rateHandler := NewRateHandler(deps.RateCache, deps.RateHistory, deps.Registry, deps.HistoryLimit, deps.Logger)
	v1.GET("/currencies", rateHandler.Currencies)
	rates := v1.Group("/rates")
	{
		rates.GET("", rateHandler.ListRates)
		rates.POST("/refresh", rl(middleware.GroupRatesRefresh), rateHandler.Refresh)
		rates.GET("/:currency", rateHandler.GetRate)
		rates.GET("/:currency/history", rateHandler.History)
	}

	// --- JWT-authenticated routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	walletHandler := NewWalletHandler(deps.TradingSvc)

	wallet := v1.Group("/wallet", jwtAuth)
	{
		wallet.GET("", walletHandler.GetWallet)
		wallet.POST("/deposit", idempotent, walletHandler.Deposit)
	}
	v1.POST("/trades", jwtAuth, rl(middleware.GroupTrades), idempotent, walletHandler.Trade)
	v1.GET("/portfolio", jwtAuth, walletHandler.Portfolio)

	return r
}
