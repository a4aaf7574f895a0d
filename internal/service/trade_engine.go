package service

import (
	"context"
	"errors"
	"fmt"

	"valutatrade/internal/core/domain"
	"valutatrade/internal/core/ports"
	"valutatrade/pkg/apperror"

	"github.com/rs/zerolog"
)

// TradeEngineImpl implements ports.TradeEngine.
type TradeEngineImpl struct {
	rates    ports.RateCache
	registry *domain.Registry
	locks    *keyedMutex
	log      zerolog.Logger
}

// NewTradeEngine creates a new TradeEngineImpl.
func NewTradeEngine(rates ports.RateCache, registry *domain.Registry, log zerolog.Logger) *TradeEngineImpl {
	return &TradeEngineImpl{
		rates:    rates,
		registry: registry,
		locks:    newKeyedMutex(),
		log:      log,
	}
}

// Quote validates req and prices it in base. Validation happens before any
// rate lookup; no wallet is locked or touched.
func (e *TradeEngineImpl) Quote(ctx context.Context, req domain.TradeRequest, base domain.CurrencyCode) (*domain.TradeQuote, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.Direction != domain.DirectionBuy && req.Direction != domain.DirectionSell {
		return nil, apperror.Validation(fmt.Sprintf("unknown trade direction %q", req.Direction))
	}

	cur, err := e.registry.Lookup(string(req.Currency))
	if err != nil {
		return nil, apperror.ErrUnknownCurrency(string(req.Currency))
	}
	if cur.Code == base {
		return nil, apperror.ErrBaseCurrencyTrade(string(base))
	}
	req.Currency = cur.Code

	rate, err := e.rates.GetRate(ctx, cur.Code, base)
	if err != nil {
		return nil, err
	}

	return &domain.TradeQuote{
		Request: req,
		Rate:    *rate,
		Value:   req.Amount.Mul(rate.Value),
	}, nil
}

// Apply performs both legs of quote on wallet while holding the wallet's lock.
// On failure the wallet is unchanged and the outcome carries a snapshot of it.
func (e *TradeEngineImpl) Apply(quote *domain.TradeQuote, wallet *domain.Wallet) (*domain.TradeOutcome, error) {
	unlock := e.locks.Lock(wallet.UserID)
	defer unlock()

	if quote.Rate.To != wallet.BaseCurrency {
		err := apperror.InternalError(fmt.Errorf("quote in %s applied to %s wallet", quote.Rate.To, wallet.BaseCurrency))
		return failedOutcome(wallet, err), err
	}

	req := quote.Request
	if err := wallet.ApplyTrade(req.Direction, req.Currency, req.Amount, quote.Value); err != nil {
		appErr := mapWalletError(err, wallet.BaseCurrency)
		e.log.Debug().Err(err).
			Str("user_id", wallet.UserID.String()).
			Str("currency", string(req.Currency)).
			Str("direction", string(req.Direction)).
			Msg("trade rejected")
		return failedOutcome(wallet, appErr), appErr
	}

	rate := quote.Rate
	return &domain.TradeOutcome{
		Success:        true,
		Wallet:         wallet.Clone(),
		CostOrProceeds: quote.Value,
		Rate:           &rate,
	}, nil
}

// Execute quotes req in the wallet's base currency and applies it.
func (e *TradeEngineImpl) Execute(ctx context.Context, req domain.TradeRequest, wallet *domain.Wallet) (*domain.TradeOutcome, error) {
	quote, err := e.Quote(ctx, req, wallet.BaseCurrency)
	if err != nil {
		return failedOutcome(wallet, err), err
	}
	return e.Apply(quote, wallet)
}

func failedOutcome(wallet *domain.Wallet, err error) *domain.TradeOutcome {
	return &domain.TradeOutcome{
		Success:   false,
		Wallet:    wallet.Clone(),
		ErrorKind: apperror.KindOf(err),
		Err:       err,
	}
}

// mapWalletError converts domain wallet sentinels to AppErrors.
func mapWalletError(err error, base domain.CurrencyCode) error {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		return apperror.ErrInsufficientFunds(err)
	case errors.Is(err, domain.ErrInvalidAmount):
		return apperror.ErrInvalidAmount()
	case errors.Is(err, domain.ErrBaseCurrencyTrade):
		return apperror.ErrBaseCurrencyTrade(string(base))
	default:
		return apperror.InternalError(err)
	}
}
