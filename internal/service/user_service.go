package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"valutatrade/internal/core/domain"
	"valutatrade/internal/core/ports"
	"valutatrade/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// UserServiceImpl implements ports.UserService.
type UserServiceImpl struct {
	userRepo   ports.UserRepository
	walletRepo ports.WalletRepository
	transactor ports.DBTransactor
	hashSvc    ports.HashService
	tokenSvc   ports.TokenService
	actions    ports.ActionLog
	base       domain.CurrencyCode
	log        zerolog.Logger
}

// NewUserService creates a new UserServiceImpl. New wallets hold cash in base.
func NewUserService(
	userRepo ports.UserRepository,
	walletRepo ports.WalletRepository,
	transactor ports.DBTransactor,
	hashSvc ports.HashService,
	tokenSvc ports.TokenService,
	actions ports.ActionLog,
	base domain.CurrencyCode,
	log zerolog.Logger,
) *UserServiceImpl {
	return &UserServiceImpl{
		userRepo:   userRepo,
		walletRepo: walletRepo,
		transactor: transactor,
		hashSvc:    hashSvc,
		tokenSvc:   tokenSvc,
		actions:    actions,
		base:       base,
		log:        log,
	}
}

// Register creates a user and its empty wallet in one transaction.
func (s *UserServiceImpl) Register(ctx context.Context, username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperror.Validation("username must not be empty")
	}
	if len(password) < domain.MinPasswordLength {
		return nil, apperror.Validation(fmt.Sprintf("password must be at least %d characters", domain.MinPasswordLength))
	}

	existing, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check username: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrUsernameExists(username)
	}

	passwordHash, err := s.hashSvc.Hash(password)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hash password: %w", err))
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
	}
	wallet := domain.NewWallet(user.ID, s.base, now)

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.userRepo.Create(ctx, dbTx, user); err != nil {
		if errors.Is(err, domain.ErrUsernameTaken) {
			return nil, apperror.ErrUsernameExists(username)
		}
		return nil, apperror.InternalError(fmt.Errorf("create user: %w", err))
	}
	if err := s.walletRepo.Create(ctx, dbTx, wallet); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit: %w", err))
	}

	s.actions.Record(ctx, domain.ActionRegister, domain.ActionPayload{
		UserID:   &user.ID,
		Username: user.Username,
		Result:   domain.ActionOK,
	})

	return user, nil
}

// Login validates credentials and returns a JWT token.
func (s *UserServiceImpl) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	username = strings.TrimSpace(username)
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("find user: %w", err))
	}
	if user == nil {
		s.recordLoginFailure(ctx, username, nil)
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	valid, err := s.hashSvc.Verify(password, user.PasswordHash)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("verify password: %w", err))
	}
	if !valid {
		s.recordLoginFailure(ctx, username, &user.ID)
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	token, expiry, err := s.tokenSvc.Generate(user.ID, user.Username)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}

	s.actions.Record(ctx, domain.ActionLogin, domain.ActionPayload{
		UserID:   &user.ID,
		Username: user.Username,
		Result:   domain.ActionOK,
	})

	return token, expiry, nil
}

func (s *UserServiceImpl) recordLoginFailure(ctx context.Context, username string, userID *uuid.UUID) {
	s.actions.Record(ctx, domain.ActionLogin, domain.ActionPayload{
		UserID:    userID,
		Username:  username,
		Result:    domain.ActionError,
		ErrorKind: apperror.CodeInvalidCredentials,
	})
}
