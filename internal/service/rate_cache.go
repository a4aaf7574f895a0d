package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"valutatrade/internal/core/domain"
	"valutatrade/internal/core/ports"
	"valutatrade/pkg/apperror"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Rate lookup outcomes reported to ports.Metrics.
const (
	LookupHit         = "hit"
	LookupFetched     = "fetched"
	LookupStale       = "stale"
	LookupUnavailable = "unavailable"
)

// RateCacheImpl implements ports.RateCache. It holds one rate per currency,
// quoted in the native base currency, and replaces entries wholesale.
type RateCacheImpl struct {
	registry *domain.Registry
	base     domain.CurrencyCode
	ttl      time.Duration
	routes   map[domain.CurrencyCode]ports.RateSource
	sources  []ports.RateSource

	snapshots ports.RateSnapshotStore
	history   ports.RateHistoryRepository
	metrics   ports.Metrics
	now       func() time.Time
	log       zerolog.Logger

	mu      sync.RWMutex
	entries map[domain.CurrencyCode]domain.Rate
	group   singleflight.Group
}

// RateCacheOption configures optional RateCacheImpl collaborators.
type RateCacheOption func(*RateCacheImpl)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) RateCacheOption {
	return func(c *RateCacheImpl) { c.now = now }
}

// WithSnapshotStore persists the cache contents after every refresh.
func WithSnapshotStore(store ports.RateSnapshotStore) RateCacheOption {
	return func(c *RateCacheImpl) { c.snapshots = store }
}

// WithHistory appends every fetched rate to the history log.
func WithHistory(repo ports.RateHistoryRepository) RateCacheOption {
	return func(c *RateCacheImpl) { c.history = repo }
}

// WithMetrics reports lookups and provider calls.
func WithMetrics(m ports.Metrics) RateCacheOption {
	return func(c *RateCacheImpl) { c.metrics = m }
}

// NewRateCache builds the cache and its static routing table. Every registered
// currency other than base must be served by exactly one source.
func NewRateCache(
	registry *domain.Registry,
	base domain.CurrencyCode,
	ttl time.Duration,
	sources []ports.RateSource,
	log zerolog.Logger,
	opts ...RateCacheOption,
) (*RateCacheImpl, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("rate cache ttl must be positive, got %s", ttl)
	}
	if !registry.Contains(base) {
		return nil, fmt.Errorf("base currency %s is not registered", base)
	}

	c := &RateCacheImpl{
		registry: registry,
		base:     base,
		ttl:      ttl,
		routes:   make(map[domain.CurrencyCode]ports.RateSource),
		sources:  sources,
		metrics:  nopMetrics{},
		now:      time.Now,
		log:      log,
		entries:  make(map[domain.CurrencyCode]domain.Rate),
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, src := range sources {
		for _, code := range src.Currencies() {
			if !registry.Contains(code) {
				return nil, fmt.Errorf("source %s routes unregistered currency %s", src.Name(), code)
			}
			if code == base {
				return nil, fmt.Errorf("source %s routes the base currency %s", src.Name(), code)
			}
			if prev, dup := c.routes[code]; dup {
				return nil, fmt.Errorf("currency %s routed to both %s and %s", code, prev.Name(), src.Name())
			}
			c.routes[code] = src
		}
	}
	for _, code := range registry.Codes() {
		if code == base {
			continue
		}
		if _, ok := c.routes[code]; !ok {
			return nil, fmt.Errorf("currency %s has no rate source", code)
		}
	}

	return c, nil
}

// BaseCurrency returns the currency every cached rate is quoted in.
func (c *RateCacheImpl) BaseCurrency() domain.CurrencyCode {
	return c.base
}

// Restore loads the last persisted snapshot. Entries keep their original
// fetch time, so a restored rate is only fresh if it is younger than the TTL.
func (c *RateCacheImpl) Restore(ctx context.Context) error {
	if c.snapshots == nil {
		return nil
	}
	rates, err := c.snapshots.Load(ctx)
	if err != nil {
		return fmt.Errorf("load rate snapshot: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	restored := 0
	for _, r := range rates {
		if r.To != c.base || r.Validate() != nil {
			continue
		}
		if _, routed := c.routes[r.From]; !routed {
			continue
		}
		r.Stale = false
		c.entries[r.From] = r
		restored++
	}
	c.log.Info().Int("rates", restored).Msg("rate snapshot restored")
	return nil
}

// GetRate returns the rate of one unit of currency in base.
func (c *RateCacheImpl) GetRate(ctx context.Context, currency, base domain.CurrencyCode) (*domain.Rate, error) {
	currency = domain.NormalizeCode(string(currency))
	base = domain.NormalizeCode(string(base))
	for _, code := range []domain.CurrencyCode{currency, base} {
		if !c.registry.Contains(code) {
			return nil, apperror.ErrUnknownCurrency(string(code))
		}
	}

	if currency == base {
		r := domain.IdentityRate(currency, c.now())
		return &r, nil
	}

	switch {
	case base == c.base:
		r, err := c.toBase(ctx, currency)
		if err != nil {
			return nil, apperror.ErrRateUnavailable(string(currency), string(base), err)
		}
		return &r, nil

	case currency == c.base:
		leg, err := c.toBase(ctx, base)
		if err != nil {
			return nil, apperror.ErrRateUnavailable(string(currency), string(base), err)
		}
		r := leg.Inverse()
		return &r, nil

	default:
		from, err := c.toBase(ctx, currency)
		if err != nil {
			return nil, apperror.ErrRateUnavailable(string(currency), string(base), err)
		}
		leg, err := c.toBase(ctx, base)
		if err != nil {
			return nil, apperror.ErrRateUnavailable(string(currency), string(base), err)
		}
		r := domain.CrossRate(from, leg)
		return &r, nil
	}
}

// toBase returns the cached rate of code in the native base, fetching it when
// missing or expired. On provider failure a stale entry is returned with Stale set.
func (c *RateCacheImpl) toBase(ctx context.Context, code domain.CurrencyCode) (domain.Rate, error) {
	cached, ok := c.entry(code)
	if ok && domain.IsFresh(cached, c.now(), c.ttl) {
		c.metrics.RateLookup(LookupHit)
		return cached, nil
	}

	src, routed := c.routes[code]
	if !routed {
		return domain.Rate{}, fmt.Errorf("currency %s has no rate source", code)
	}

	// The shared fetch ignores cancellation of the caller that started it;
	// the provider timeout and retry cap bound it.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(string(code), func() (interface{}, error) {
		// Another caller may have refreshed the entry while we waited.
		if cur, ok := c.entry(code); ok && domain.IsFresh(cur, c.now(), c.ttl) {
			return cur, nil
		}

		started := time.Now()
		fetched, err := src.FetchRate(fetchCtx, code)
		c.metrics.ProviderCall(src.Name(), err == nil, time.Since(started))
		if err != nil {
			return nil, err
		}

		r, err := c.normalize(*fetched, src.Kind())
		if err != nil {
			return nil, err
		}
		c.store(fetchCtx, []domain.Rate{r})
		return r, nil
	})

	var (
		v   interface{}
		err error
	)
	select {
	case res := <-ch:
		v, err = res.Val, res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		if ok {
			c.log.Warn().Err(err).
				Str("currency", string(code)).
				Str("source", src.Name()).
				Time("fetched_at", cached.FetchedAt).
				Bool("stale", true).
				Msg("rate refresh failed, serving stale rate")
			c.metrics.RateLookup(LookupStale)
			cached.Stale = true
			return cached, nil
		}
		c.log.Error().Err(err).
			Str("currency", string(code)).
			Str("source", src.Name()).
			Msg("rate unavailable")
		c.metrics.RateLookup(LookupUnavailable)
		return domain.Rate{}, err
	}

	c.metrics.RateLookup(LookupFetched)
	return v.(domain.Rate), nil
}

// RefreshAll fetches every currency routed to a source of kind, ignoring the TTL.
func (c *RateCacheImpl) RefreshAll(ctx context.Context, kind domain.SourceKind) ([]domain.Rate, error) {
	var (
		refreshed []domain.Rate
		errs      []error
		matched   bool
	)
	for _, src := range c.sources {
		if src.Kind() != kind {
			continue
		}
		matched = true

		started := time.Now()
		rates, err := src.FetchAll(ctx)
		c.metrics.ProviderCall(src.Name(), err == nil, time.Since(started))
		if err != nil {
			c.log.Error().Err(err).Str("source", src.Name()).Msg("rate refresh failed")
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}

		for _, r := range rates {
			if c.routes[r.From] != src {
				c.log.Debug().Str("currency", string(r.From)).Str("source", src.Name()).Msg("skipping unrouted rate")
				continue
			}
			nr, err := c.normalize(r, kind)
			if err != nil {
				c.log.Warn().Err(err).Str("currency", string(r.From)).Msg("skipping invalid rate")
				continue
			}
			refreshed = append(refreshed, nr)
		}
	}

	if !matched {
		return nil, apperror.Validation(fmt.Sprintf("no rate source of kind %s", kind))
	}
	if len(errs) > 0 && len(refreshed) == 0 {
		return nil, apperror.ErrProvider(string(kind), errors.Join(errs...))
	}

	c.store(ctx, refreshed)
	sortRates(refreshed)
	c.log.Info().Str("source", string(kind)).Int("rates", len(refreshed)).Msg("rates refreshed")
	return refreshed, nil
}

// ListCached returns up to topN cached rates converted into base, without any
// provider I/O. Entries past the TTL are returned with Stale set. Only cached
// entries are listed, so with a foreign base the native base currency (which
// has no entry of its own) is absent; GetRate serves that pair.
func (c *RateCacheImpl) ListCached(topN int, base domain.CurrencyCode) ([]domain.Rate, error) {
	base = domain.NormalizeCode(string(base))
	if !c.registry.Contains(base) {
		return nil, apperror.ErrUnknownCurrency(string(base))
	}

	now := c.now()
	c.mu.RLock()
	all := make([]domain.Rate, 0, len(c.entries))
	for _, r := range c.entries {
		r.Stale = !domain.IsFresh(r, now, c.ttl)
		all = append(all, r)
	}
	leg, haveLeg := c.entries[base]
	c.mu.RUnlock()

	if base != c.base {
		if !haveLeg {
			return nil, apperror.ErrRateUnavailable(string(base), string(c.base), errors.New("no cached rate"))
		}
		leg.Stale = !domain.IsFresh(leg, now, c.ttl)
	}

	out := make([]domain.Rate, 0, len(all))
	for _, r := range all {
		switch {
		case base == c.base:
			out = append(out, r)
		case r.From == base:
			// The base leg itself would be an identity rate.
			continue
		default:
			out = append(out, domain.CrossRate(r, leg))
		}
	}

	sortRates(out)
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}

func (c *RateCacheImpl) entry(code domain.CurrencyCode) (domain.Rate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.entries[code]
	return r, ok
}

// normalize stamps a provider rate with the cache clock and checks it is
// quoted in the native base.
func (c *RateCacheImpl) normalize(r domain.Rate, kind domain.SourceKind) (domain.Rate, error) {
	if r.To != c.base {
		return domain.Rate{}, fmt.Errorf("rate %s is not quoted in %s", r.Pair(), c.base)
	}
	r.FetchedAt = c.now()
	r.Source = kind
	r.Stale = false
	if err := r.Validate(); err != nil {
		return domain.Rate{}, err
	}
	return r, nil
}

// store replaces the entries for rates and checkpoints the cache.
// Persistence failures are logged, never returned.
func (c *RateCacheImpl) store(ctx context.Context, rates []domain.Rate) {
	if len(rates) == 0 {
		return
	}

	c.mu.Lock()
	for _, r := range rates {
		c.entries[r.From] = r
	}
	snapshot := make([]domain.Rate, 0, len(c.entries))
	for _, r := range c.entries {
		snapshot = append(snapshot, r)
	}
	c.mu.Unlock()

	if c.history != nil {
		records := make([]domain.RateHistoryRecord, 0, len(rates))
		for _, r := range rates {
			records = append(records, domain.NewRateHistoryRecord(r))
		}
		if err := c.history.Append(ctx, records); err != nil {
			c.log.Warn().Err(err).Int("rates", len(records)).Msg("failed to append rate history")
		}
	}
	if c.snapshots != nil {
		sortRates(snapshot)
		if err := c.snapshots.Save(ctx, snapshot); err != nil {
			c.log.Warn().Err(err).Msg("failed to save rate snapshot")
		}
	}
}

// sortRates orders by fetch time descending, then currency code ascending.
func sortRates(rates []domain.Rate) {
	sort.SliceStable(rates, func(i, j int) bool {
		if !rates[i].FetchedAt.Equal(rates[j].FetchedAt) {
			return rates[i].FetchedAt.After(rates[j].FetchedAt)
		}
		return rates[i].From < rates[j].From
	})
}

type nopMetrics struct{}

func (nopMetrics) RateLookup(string)                        {}
func (nopMetrics) ProviderCall(string, bool, time.Duration) {}
func (nopMetrics) Trade(domain.Direction, string)           {}
