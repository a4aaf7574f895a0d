package handler

import (
	"errors"
	"strings"

	"valutatrade/internal/adapter/http/dto"
	"valutatrade/internal/core/domain"
	"valutatrade/internal/core/ports"
	"valutatrade/pkg/apperror"
	"valutatrade/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const defaultHistoryLimit = 100

// RateHandler serves exchange rates, their history and manual refreshes.
type RateHandler struct {
	cache        ports.RateCache
	history      ports.RateHistoryRepository
	registry     *domain.Registry
	historyLimit int
	log          zerolog.Logger
}

// NewRateHandler creates a new RateHandler. history may be nil, in which
// case the history endpoint reports not found.
func NewRateHandler(cache ports.RateCache, history ports.RateHistoryRepository, registry *domain.Registry, historyLimit int, log zerolog.Logger) *RateHandler {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &RateHandler{
		cache:        cache,
		history:      history,
		registry:     registry,
		historyLimit: historyLimit,
		log:          log,
	}
}

// ListRates handles GET /api/v1/rates. It never calls a provider.
func (h *RateHandler) ListRates(c *gin.Context) {
	var q dto.RatesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	base := h.cache.BaseCurrency()
	if q.Base != "" {
		base = domain.NormalizeCode(q.Base)
	}

	rates, err := h.cache.ListCached(q.Top, base)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.RateResponse, 0, len(rates))
	stale := 0
	for _, r := range rates {
		items = append(items, toRateResponse(r))
		if r.Stale {
			stale++
		}
	}
	response.OKWithMeta(c, items, gin.H{
		"base":        base,
		"count":       len(items),
		"stale_count": stale,
	})
}

// GetRate handles GET /api/v1/rates/:currency.
func (h *RateHandler) GetRate(c *gin.Context) {
	var q dto.RateQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	base := h.cache.BaseCurrency()
	if q.Base != "" {
		base = domain.NormalizeCode(q.Base)
	}

	rate, err := h.cache.GetRate(c.Request.Context(), domain.NormalizeCode(c.Param("currency")), base)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toRateResponse(*rate))
}

// History handles GET /api/v1/rates/:currency/history.
func (h *RateHandler) History(c *gin.Context) {
	if h.history == nil {
		response.Error(c, apperror.ErrNotFound("rate history"))
		return
	}

	var q dto.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	limit := q.Limit
	if limit == 0 {
		limit = h.historyLimit
	}

	cur, err := h.registry.Lookup(c.Param("currency"))
	if err != nil {
		response.Error(c, apperror.ErrUnknownCurrency(strings.ToUpper(strings.TrimSpace(c.Param("currency")))))
		return
	}

	records, err := h.history.ListByCurrency(c.Request.Context(), cur.Code, limit)
	if err != nil {
		response.Error(c, apperror.ErrDatabaseError(err))
		return
	}

	items := make([]dto.RateHistoryResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, dto.RateHistoryResponse{
			ID:        rec.ID,
			From:      string(rec.From),
			To:        string(rec.To),
			Rate:      rec.Value,
			Source:    string(rec.Source),
			Timestamp: rec.FetchedAt,
		})
	}
	response.OKWithMeta(c, items, gin.H{"currency": cur.Code, "count": len(items)})
}

// Refresh handles POST /api/v1/rates/refresh?source=crypto|fiat|all.
// With "all", a failing source is reported in meta as long as another
// source succeeded.
func (h *RateHandler) Refresh(c *gin.Context) {
	var q dto.RefreshQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	kinds := []domain.SourceKind{domain.SourceCrypto, domain.SourceFiat}
	if src := strings.ToLower(q.Source); src != "" && src != "all" {
		kind, err := domain.ParseSourceKind(src)
		if err != nil {
			response.Error(c, apperror.Validation(err.Error()))
			return
		}
		kinds = []domain.SourceKind{kind}
	}

	var (
		items    []dto.RateResponse
		failures = make(map[domain.SourceKind]string)
		errs     []error
	)
	for _, kind := range kinds {
		rates, err := h.cache.RefreshAll(c.Request.Context(), kind)
		if err != nil {
			h.log.Warn().Err(err).Str("source", string(kind)).Msg("manual rate refresh failed")
			failures[kind] = apperror.KindOf(err)
			errs = append(errs, err)
			continue
		}
		for _, r := range rates {
			items = append(items, toRateResponse(r))
		}
	}

	if len(errs) == len(kinds) {
		response.Error(c, errors.Join(errs...))
		return
	}

	meta := gin.H{"count": len(items)}
	if len(failures) > 0 {
		meta["failed_sources"] = failures
	}
	response.OKWithMeta(c, items, meta)
}

// Currencies handles GET /api/v1/currencies.
func (h *RateHandler) Currencies(c *gin.Context) {
	codes := h.registry.Codes()
	items := make([]dto.CurrencyResponse, 0, len(codes))
	for _, code := range codes {
		cur, err := h.registry.Lookup(string(code))
		if err != nil {
			continue
		}
		items = append(items, dto.CurrencyResponse{
			Code:           string(cur.Code),
			Name:           cur.Name,
			Kind:           string(cur.Kind),
			IssuingCountry: cur.IssuingCountry,
			Algorithm:      cur.Algorithm,
			MarketCap:      cur.MarketCap,
			Info:           cur.DisplayInfo(),
		})
	}
	response.OK(c, items)
}

func toRateResponse(r domain.Rate) dto.RateResponse {
	return dto.RateResponse{
		From:        string(r.From),
		To:          string(r.To),
		Rate:        r.Value,
		ReverseRate: r.Inverse().Value,
		Source:      string(r.Source),
		UpdatedAt:   r.FetchedAt,
		Stale:       r.Stale,
	}
}
