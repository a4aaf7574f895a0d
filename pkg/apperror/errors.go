package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// KindOf returns the code of the first AppError in err's chain, "SYS_000" for
// any other error and "" for nil.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// Error codes.
const (
	CodeInvalidAmount      = "VAL_001"
	CodeValidation         = "VAL_002"
	CodeUnknownCurrency    = "CUR_001"
	CodeInsufficientFunds  = "FND_001"
	CodeBaseCurrencyTrade  = "TRD_001"
	CodeRateUnavailable    = "RATE_001"
	CodeProviderError      = "RATE_002"
	CodeInvalidCredentials = "AUTH_001"
	CodeUsernameExists     = "AUTH_002"
	CodeInvalidToken       = "AUTH_003"
	CodeNotFound           = "NF_001"
	CodeRateLimitExceeded  = "LIM_001"
	CodeInternal           = "SYS_001"
	CodeLockTimeout        = "SYS_002"
	CodeUnknown            = "SYS_000"
)

// ---- Validation (VAL) ----

func ErrInvalidAmount() *AppError {
	return New(CodeInvalidAmount, "Amount must be a positive number", http.StatusBadRequest)
}

// Validation returns a VAL_002 validation error with a custom message.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

// ---- Currencies & Rates (CUR, RATE) ----

func ErrUnknownCurrency(code string) *AppError {
	return New(CodeUnknownCurrency, fmt.Sprintf("Unknown currency '%s'", code), http.StatusBadRequest)
}

func ErrRateUnavailable(from, to string, err error) *AppError {
	return Wrap(CodeRateUnavailable, fmt.Sprintf("Rate %s→%s is unavailable, try again later", from, to), http.StatusServiceUnavailable, err)
}

func ErrProvider(source string, err error) *AppError {
	return Wrap(CodeProviderError, fmt.Sprintf("Rate provider %s failed", source), http.StatusBadGateway, err)
}

// ---- Trading (FND, TRD) ----

func ErrInsufficientFunds(err error) *AppError {
	return Wrap(CodeInsufficientFunds, "Insufficient funds", http.StatusUnprocessableEntity, err)
}

func ErrBaseCurrencyTrade(code string) *AppError {
	return New(CodeBaseCurrencyTrade, fmt.Sprintf("Cannot trade the base currency %s, use deposit instead", code), http.StatusBadRequest)
}

func ErrNotFound(entity string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New(CodeInvalidCredentials, "Invalid credentials", http.StatusUnauthorized)
}

func ErrUsernameExists(username string) *AppError {
	return New(CodeUsernameExists, fmt.Sprintf("Username '%s' is already taken", username), http.StatusConflict)
}

func ErrInvalidToken() *AppError {
	return New(CodeInvalidToken, "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Rate Limiting (LIM) ----

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimitExceeded, "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap(CodeInternal, "Internal database error", http.StatusInternalServerError, err)
}

func ErrLockTimeout(err error) *AppError {
	return Wrap(CodeLockTimeout, "Lock acquisition timeout", http.StatusServiceUnavailable, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}
