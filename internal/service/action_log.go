package service

import (
	"context"
	"time"

	"valutatrade/internal/core/domain"
	"valutatrade/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type actionLog struct {
	repo ports.ActionLogRepository
	log  zerolog.Logger
	now  func() time.Time
}

// NewActionLog creates the action log.
// If repo is nil, actions are only written to the logger.
func NewActionLog(repo ports.ActionLogRepository, log zerolog.Logger) ports.ActionLog {
	return &actionLog{repo: repo, log: log, now: time.Now}
}

// Record writes one action entry. Persistence errors are logged and swallowed.
func (s *actionLog) Record(ctx context.Context, kind domain.ActionKind, payload domain.ActionPayload) {
	if payload.Result == "" {
		payload.Result = domain.ActionOK
	}
	entry := &domain.ActionRecord{
		ID:        uuid.New(),
		Kind:      kind,
		Payload:   payload,
		CreatedAt: s.now().UTC(),
	}

	ev := s.log.Info()
	if payload.Result == domain.ActionError {
		ev = s.log.Warn().Str("error_kind", payload.ErrorKind)
	}
	if payload.UserID != nil {
		ev = ev.Str("user_id", payload.UserID.String())
	}
	if payload.Currency != "" {
		ev = ev.Str("currency", string(payload.Currency))
	}
	if payload.Amount != nil {
		ev = ev.Str("amount", payload.Amount.String())
	}
	ev.Str("action", string(kind)).
		Str("username", payload.Username).
		Str("result", string(payload.Result)).
		Msg("action")

	if s.repo == nil {
		return
	}
	// Detached so a cancelled request still leaves its trail.
	if err := s.repo.Create(context.WithoutCancel(ctx), entry); err != nil {
		s.log.Warn().Err(err).Str("action", string(kind)).Msg("failed to persist action log")
	}
}
