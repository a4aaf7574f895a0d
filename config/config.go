package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	Rates       RatesConfig       `mapstructure:"rates"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type StorageConfig struct {
	// Driver selects where users, wallets, history and the rate snapshot live:
	// "postgres" (with Redis) or "memory".
	Driver string `mapstructure:"driver"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// LockTimeout bounds how long a trade waits for a locked wallet row.
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type RatesConfig struct {
	BaseCurrency     string        `mapstructure:"base_currency"`
	TTL              time.Duration `mapstructure:"ttl"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	CryptoCurrencies []string      `mapstructure:"crypto_currencies"`
	FiatCurrencies   []string      `mapstructure:"fiat_currencies"`
	// CoinGeckoIDs maps currency codes to CoinGecko coin ids. Viper lower-cases
	// map keys, so lookups must normalize.
	CoinGeckoIDs       map[string]string `mapstructure:"coingecko_ids"`
	CoinGeckoURL       string            `mapstructure:"coingecko_url"`
	ExchangeRateURL    string            `mapstructure:"exchangerate_url"`
	ExchangeRateAPIKey string            `mapstructure:"exchangerate_api_key"`
	HistoryLimit       int               `mapstructure:"history_limit"`
}

// CoinGeckoID returns the coin id configured for code.
func (r RatesConfig) CoinGeckoID(code string) (string, bool) {
	id, ok := r.CoinGeckoIDs[strings.ToLower(code)]
	return id, ok
}

type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

type RateLimitConfig struct {
	RefreshLimit  int           `mapstructure:"refresh_limit"`
	RefreshWindow time.Duration `mapstructure:"refresh_window"`
}

type IdempotencyConfig struct {
	// TTL is how long a successful write can be replayed by its Idempotency-Key.
	TTL time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Validate rejects configurations the services cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("storage.driver must be %q or %q, got %q", DriverPostgres, DriverMemory, c.Storage.Driver)
	}
	if strings.TrimSpace(c.Rates.BaseCurrency) == "" {
		return errors.New("rates.base_currency is required")
	}
	if c.Rates.TTL <= 0 {
		return errors.New("rates.ttl must be positive")
	}
	if c.Rates.RequestTimeout <= 0 {
		return errors.New("rates.request_timeout must be positive")
	}
	if c.Rates.MaxRetries < 1 {
		return errors.New("rates.max_retries must be at least 1")
	}
	for _, code := range c.Rates.CryptoCurrencies {
		if _, ok := c.Rates.CoinGeckoID(code); !ok {
			return fmt.Errorf("rates.coingecko_ids has no id for %s", code)
		}
	}
	if c.Idempotency.TTL <= 0 {
		return errors.New("idempotency.ttl must be positive")
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return errors.New("scheduler.interval must be positive when the scheduler is enabled")
	}
	return nil
}

// Load reads configuration from file and environment variables.
// A .env file in the working directory is loaded first and never overrides
// variables already set. Environment variables override file values.
// Prefix: VTH_ (ValutaTrade Hub). Nested keys use underscore: VTH_RATES_TTL,
// VTH_RATES_EXCHANGERATE_API_KEY, etc.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("storage.driver", DriverPostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "valutatrade")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.lock_timeout", "5s")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "valutatrade")
	v.SetDefault("rates.base_currency", "USD")
	v.SetDefault("rates.ttl", "1h")
	v.SetDefault("rates.request_timeout", "10s")
	v.SetDefault("rates.max_retries", 3)
	v.SetDefault("rates.retry_delay", "2s")
	v.SetDefault("rates.crypto_currencies", []string{"BTC", "ETH", "SOL"})
	v.SetDefault("rates.fiat_currencies", []string{"EUR", "GBP", "RUB", "JPY", "CNY"})
	v.SetDefault("rates.coingecko_ids", map[string]string{
		"btc": "bitcoin",
		"eth": "ethereum",
		"sol": "solana",
	})
	v.SetDefault("rates.coingecko_url", "https://api.coingecko.com/api/v3/simple/price")
	v.SetDefault("rates.exchangerate_url", "https://v6.exchangerate-api.com/v6")
	v.SetDefault("rates.exchangerate_api_key", "")
	v.SetDefault("rates.history_limit", 100)
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("ratelimit.refresh_limit", 10)
	v.SetDefault("ratelimit.refresh_window", "1m")
	v.SetDefault("idempotency.ttl", "24h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: VTH_RATES_TTL -> rates.ttl
	v.SetEnvPrefix("VTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
