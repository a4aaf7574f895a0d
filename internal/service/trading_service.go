package service

import (
	"context"
	"errors"
	"fmt"

	"valutatrade/internal/core/domain"
	"valutatrade/internal/core/ports"
	"valutatrade/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TradingServiceImpl implements ports.TradingService.
type TradingServiceImpl struct {
	engine     ports.TradeEngine
	valuation  ports.PortfolioValuation
	walletRepo ports.WalletRepository
	transactor ports.DBTransactor
	actions    ports.ActionLog
	metrics    ports.Metrics
	base       domain.CurrencyCode
	log        zerolog.Logger
}

// NewTradingService creates a new TradingServiceImpl. metrics may be nil.
func NewTradingService(
	engine ports.TradeEngine,
	valuation ports.PortfolioValuation,
	walletRepo ports.WalletRepository,
	transactor ports.DBTransactor,
	actions ports.ActionLog,
	metrics ports.Metrics,
	base domain.CurrencyCode,
	log zerolog.Logger,
) *TradingServiceImpl {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &TradingServiceImpl{
		engine:     engine,
		valuation:  valuation,
		walletRepo: walletRepo,
		transactor: transactor,
		actions:    actions,
		metrics:    metrics,
		base:       base,
		log:        log,
	}
}

// Trade prices the request without holding any lock, then applies it to the
// row-locked wallet and persists both legs in one database transaction.
func (s *TradingServiceImpl) Trade(ctx context.Context, cmd ports.TradeCommand) (*domain.TradeOutcome, error) {
	req := domain.TradeRequest{
		Currency:  domain.NormalizeCode(cmd.Currency),
		Amount:    cmd.Amount,
		Direction: cmd.Direction,
	}

	quote, err := s.engine.Quote(ctx, req, s.base)
	if err != nil {
		s.recordTrade(ctx, cmd.UserID, req, nil, err)
		return s.rejected(ctx, cmd.UserID, err), err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, cmd.UserID)
	if err != nil {
		return nil, lockError(err)
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	outcome, err := s.engine.Apply(quote, wallet)
	if err != nil {
		s.recordTrade(ctx, cmd.UserID, quote.Request, &quote.Rate, err)
		return outcome, err
	}

	if err := s.walletRepo.Save(ctx, dbTx, wallet); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("save wallet: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit: %w", err))
	}

	s.recordTrade(ctx, cmd.UserID, quote.Request, &quote.Rate, nil)
	s.log.Info().
		Str("user_id", cmd.UserID.String()).
		Str("direction", string(quote.Request.Direction)).
		Str("currency", string(quote.Request.Currency)).
		Str("amount", quote.Request.Amount.String()).
		Str("value", quote.Value.String()).
		Bool("stale", quote.Rate.Stale).
		Msg("trade executed")

	return outcome, nil
}

// Deposit credits base cash to the user's wallet.
func (s *TradingServiceImpl) Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*domain.Wallet, error) {
	if !amount.IsPositive() {
		s.recordDeposit(ctx, userID, amount, apperror.ErrInvalidAmount())
		return nil, apperror.ErrInvalidAmount()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, userID)
	if err != nil {
		return nil, lockError(err)
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	if err := wallet.CreditCash(amount); err != nil {
		if errors.Is(err, domain.ErrInvalidAmount) {
			return nil, apperror.ErrInvalidAmount()
		}
		return nil, apperror.InternalError(err)
	}

	if err := s.walletRepo.Save(ctx, dbTx, wallet); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("save wallet: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit: %w", err))
	}

	s.recordDeposit(ctx, userID, amount, nil)
	return wallet.Clone(), nil
}

// Wallet returns the user's current wallet.
func (s *TradingServiceImpl) Wallet(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	return wallet, nil
}

// Portfolio values the user's wallet in base, defaulting to the wallet's base currency.
func (s *TradingServiceImpl) Portfolio(ctx context.Context, userID uuid.UUID, base string) (*domain.Valuation, error) {
	wallet, err := s.Wallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	code := domain.NormalizeCode(base)
	if code == "" {
		code = wallet.BaseCurrency
	}
	return s.valuation.Valuate(ctx, wallet, code)
}

// rejected builds the outcome of a trade refused before any lock was taken.
func (s *TradingServiceImpl) rejected(ctx context.Context, userID uuid.UUID, cause error) *domain.TradeOutcome {
	out := &domain.TradeOutcome{ErrorKind: apperror.KindOf(cause), Err: cause}
	if w, err := s.walletRepo.GetByUserID(ctx, userID); err == nil && w != nil {
		out.Wallet = w
	}
	return out
}

func (s *TradingServiceImpl) recordTrade(ctx context.Context, userID uuid.UUID, req domain.TradeRequest, rate *domain.Rate, err error) {
	kind := domain.ActionBuy
	if req.Direction == domain.DirectionSell {
		kind = domain.ActionSell
	}

	amount := req.Amount
	payload := domain.ActionPayload{
		UserID:   &userID,
		Currency: req.Currency,
		Amount:   &amount,
		Base:     s.base,
		Result:   domain.ActionOK,
	}
	if rate != nil {
		v := rate.Value
		payload.Rate = &v
	}

	result := string(domain.ActionOK)
	if err != nil {
		payload.Result = domain.ActionError
		payload.ErrorKind = apperror.KindOf(err)
		payload.Message = err.Error()
		result = payload.ErrorKind
	}

	s.metrics.Trade(req.Direction, result)
	s.actions.Record(ctx, kind, payload)
}

func (s *TradingServiceImpl) recordDeposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, err error) {
	payload := domain.ActionPayload{
		UserID:   &userID,
		Currency: s.base,
		Amount:   &amount,
		Result:   domain.ActionOK,
	}
	if err != nil {
		payload.Result = domain.ActionError
		payload.ErrorKind = apperror.KindOf(err)
	}
	s.actions.Record(ctx, domain.ActionDeposit, payload)
}

func lockError(err error) error {
	if errors.Is(err, domain.ErrWalletLockTimeout) {
		return apperror.ErrLockTimeout(err)
	}
	return apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
}
