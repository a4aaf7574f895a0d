package handler

import (
	"valutatrade/internal/adapter/http/dto"
	"valutatrade/internal/adapter/http/middleware"
	"valutatrade/internal/core/domain"
	"valutatrade/internal/core/ports"
	"valutatrade/pkg/apperror"
	"valutatrade/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// WalletHandler handles wallet, trade and portfolio endpoints.
type WalletHandler struct {
	tradingSvc ports.TradingService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(tradingSvc ports.TradingService) *WalletHandler {
	return &WalletHandler{tradingSvc: tradingSvc}
}

// GetWallet handles GET /api/v1/wallet.
func (h *WalletHandler) GetWallet(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	wallet, err := h.tradingSvc.Wallet(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toWalletResponse(wallet))
}

// Deposit handles POST /api/v1/wallet/deposit.
func (h *WalletHandler) Deposit(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}

	wallet, err := h.tradingSvc.Deposit(c.Request.Context(), userID, req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toWalletResponse(wallet))
}

// Trade handles POST /api/v1/trades.
func (h *WalletHandler) Trade(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.TradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	direction, err := domain.ParseDirection(req.Direction)
	if err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	outcome, err := h.tradingSvc.Trade(c.Request.Context(), ports.TradeCommand{
		UserID:    userID,
		Currency:  req.Currency,
		Amount:    req.Amount,
		Direction: direction,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.TradeResponse{
		Direction:      string(direction),
		Currency:       string(domain.NormalizeCode(req.Currency)),
		Amount:         req.Amount,
		CostOrProceeds: outcome.CostOrProceeds,
		Wallet:         toWalletResponse(outcome.Wallet),
	}
	if outcome.Rate != nil {
		resp.Rate = outcome.Rate.Value
		resp.Stale = outcome.Rate.Stale
	}
	response.OK(c, resp)
}

// Portfolio handles GET /api/v1/portfolio?base=XXX.
func (h *WalletHandler) Portfolio(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var q dto.PortfolioQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	val, err := h.tradingSvc.Portfolio(c.Request.Context(), userID, q.Base)
	if err != nil {
		response.Error(c, err)
		return
	}

	lines := make([]dto.ValuationLineResponse, 0, len(val.Lines))
	for _, l := range val.Lines {
		lines = append(lines, dto.ValuationLineResponse{
			Currency: string(l.Currency),
			Balance:  l.Balance,
			Rate:     l.Rate,
			Value:    l.Value,
			Stale:    l.Stale,
		})
	}
	response.OK(c, dto.PortfolioResponse{
		Base:  string(val.Base),
		Total: val.Total,
		Stale: val.Stale(),
		Lines: lines,
	})
}

func toWalletResponse(w *domain.Wallet) dto.WalletResponse {
	if w == nil {
		return dto.WalletResponse{}
	}
	holdings := make(map[string]decimal.Decimal, len(w.Holdings))
	for code, amount := range w.Holdings {
		holdings[string(code)] = amount
	}
	return dto.WalletResponse{
		UserID:       w.UserID.String(),
		BaseCurrency: string(w.BaseCurrency),
		BaseCash:     w.BaseCash,
		Holdings:     holdings,
		UpdatedAt:    w.UpdatedAt,
	}
}
