package service

import (
	"context"

	"valutatrade/internal/core/domain"
	"valutatrade/internal/core/ports"
	"valutatrade/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ValuationServiceImpl implements ports.PortfolioValuation.
type ValuationServiceImpl struct {
	rates    ports.RateCache
	registry *domain.Registry
	log      zerolog.Logger
}

// NewValuationService creates a new ValuationServiceImpl.
func NewValuationService(rates ports.RateCache, registry *domain.Registry, log zerolog.Logger) *ValuationServiceImpl {
	return &ValuationServiceImpl{rates: rates, registry: registry, log: log}
}

// TotalValue returns the wallet's base cash plus every holding priced in base.
func (s *ValuationServiceImpl) TotalValue(ctx context.Context, wallet *domain.Wallet, base domain.CurrencyCode) (decimal.Decimal, error) {
	v, err := s.Valuate(ctx, wallet, base)
	if err != nil {
		return decimal.Zero, err
	}
	return v.Total, nil
}

// Valuate prices every non-zero balance of wallet in base. Any unavailable rate
// fails the whole valuation; stale rates are used and flagged per line.
func (s *ValuationServiceImpl) Valuate(ctx context.Context, wallet *domain.Wallet, base domain.CurrencyCode) (*domain.Valuation, error) {
	cur, err := s.registry.Lookup(string(base))
	if err != nil {
		return nil, apperror.ErrUnknownCurrency(string(base))
	}
	base = cur.Code

	v := &domain.Valuation{Base: base, Total: decimal.Zero}

	line, err := s.line(ctx, wallet.BaseCurrency, wallet.BaseCash, base)
	if err != nil {
		return nil, err
	}
	v.Lines = append(v.Lines, line)
	v.Total = v.Total.Add(line.Value)

	for _, code := range wallet.HoldingCodes() {
		line, err := s.line(ctx, code, wallet.Holdings[code], base)
		if err != nil {
			return nil, err
		}
		v.Lines = append(v.Lines, line)
		v.Total = v.Total.Add(line.Value)
	}

	if v.Stale() {
		s.log.Warn().
			Str("user_id", wallet.UserID.String()).
			Str("base", string(base)).
			Bool("stale", true).
			Msg("portfolio valued with stale rates")
	}
	return v, nil
}

func (s *ValuationServiceImpl) line(ctx context.Context, code domain.CurrencyCode, balance decimal.Decimal, base domain.CurrencyCode) (domain.ValuationLine, error) {
	l := domain.ValuationLine{Currency: code, Balance: balance}
	if balance.IsZero() {
		// Zero holdings add nothing, so they never trigger a fetch or fail
		// the valuation. Their rate stays null unless it is the identity.
		l.Value = decimal.Zero
		if code == base {
			l.Rate = decimal.NewNullDecimal(decimal.NewFromInt(1))
		}
		return l, nil
	}

	rate, err := s.rates.GetRate(ctx, code, base)
	if err != nil {
		return l, err
	}
	l.Rate = decimal.NewNullDecimal(rate.Value)
	l.Value = balance.Mul(rate.Value)
	l.Stale = rate.Stale
	return l, nil
}
