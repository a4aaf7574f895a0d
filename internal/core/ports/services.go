//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

package ports

import (
	"context"
	"time"

	"valutatrade/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RateSource is an external price provider. Rates are quoted against the
// provider's base currency (USD).
type RateSource interface {
	Name() string
	Kind() domain.SourceKind
	// Currencies lists the codes this source is routed for.
	Currencies() []domain.CurrencyCode
	FetchRate(ctx context.Context, code domain.CurrencyCode) (*domain.Rate, error)
	FetchAll(ctx context.Context) ([]domain.Rate, error)
}

// RateCache serves rates under a TTL policy with stale fallback.
type RateCache interface {
	GetRate(ctx context.Context, currency, base domain.CurrencyCode) (*domain.Rate, error)
	// RefreshAll force-fetches every currency routed to kind, regardless of TTL.
	RefreshAll(ctx context.Context, kind domain.SourceKind) ([]domain.Rate, error)
	// ListCached returns up to topN cached rates converted into base, most recent first.
	// topN <= 0 returns every entry.
	ListCached(topN int, base domain.CurrencyCode) ([]domain.Rate, error)
	BaseCurrency() domain.CurrencyCode
}

// TradeEngine validates, prices and applies trades against a wallet.
type TradeEngine interface {
	// Quote validates req and looks up its rate. It never touches a wallet.
	Quote(ctx context.Context, req domain.TradeRequest, base domain.CurrencyCode) (*domain.TradeQuote, error)
	// Apply mutates wallet with both legs of quote under the wallet's lock.
	Apply(quote *domain.TradeQuote, wallet *domain.Wallet) (*domain.TradeOutcome, error)
	// Execute is Quote followed by Apply. The outcome is never nil.
	Execute(ctx context.Context, req domain.TradeRequest, wallet *domain.Wallet) (*domain.TradeOutcome, error)
}

// PortfolioValuation prices a wallet in a requested currency.
type PortfolioValuation interface {
	TotalValue(ctx context.Context, wallet *domain.Wallet, base domain.CurrencyCode) (decimal.Decimal, error)
	Valuate(ctx context.Context, wallet *domain.Wallet, base domain.CurrencyCode) (*domain.Valuation, error)
}

// ActionLog records user actions. Recording never fails the caller.
type ActionLog interface {
	Record(ctx context.Context, kind domain.ActionKind, payload domain.ActionPayload)
}

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(userID uuid.UUID, username string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	UserID   uuid.UUID
	Username string
}

// RateLimiter counts hits per key in a fixed window.
type RateLimiter interface {
	// Allow records a hit and reports whether key is still under limit.
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error)
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // Unix timestamp
}

// IdempotencyCache stores responses to requests sent with an Idempotency-Key.
type IdempotencyCache interface {
	// Get returns nil, nil if the key does not exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Metrics receives operational counters from the core services.
type Metrics interface {
	// RateLookup counts cache lookups by outcome: hit, fetched, stale, unavailable.
	RateLookup(outcome string)
	ProviderCall(source string, success bool, elapsed time.Duration)
	// Trade counts trade attempts by direction and result code ("OK" on success).
	Trade(direction domain.Direction, result string)
}

// --- Service Ports (Business Logic) ---

// UserService defines registration and login.
type UserService interface {
	Register(ctx context.Context, username, password string) (*domain.User, error)
	Login(ctx context.Context, username, password string) (string, time.Time, error) // token, expiry, error
}

// TradingService is the user-facing trading workflow: it loads and persists
// wallets around the TradeEngine and records actions.
type TradingService interface {
	Trade(ctx context.Context, req TradeCommand) (*domain.TradeOutcome, error)
	Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*domain.Wallet, error)
	Wallet(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	Portfolio(ctx context.Context, userID uuid.UUID, base string) (*domain.Valuation, error)
}

// TradeCommand holds raw, not yet validated trade input.
type TradeCommand struct {
	UserID    uuid.UUID
	Currency  string
	Amount    decimal.Decimal
	Direction domain.Direction
}
