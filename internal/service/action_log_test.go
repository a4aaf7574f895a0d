package service

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"valutatrade/internal/core/domain"
	"valutatrade/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestActionLog_Record_Persists(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockActionLogRepository(ctrl)
	var buf bytes.Buffer
	al := NewActionLog(repo, zerolog.New(&buf))

	userID := uuid.New()
	amount := dec("0.5")

	repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, rec *domain.ActionRecord) error {
			assert.NotEqual(t, uuid.Nil, rec.ID)
			assert.Equal(t, domain.ActionBuy, rec.Kind)
			assert.Equal(t, domain.ActionOK, rec.Payload.Result)
			assert.Equal(t, &userID, rec.Payload.UserID)
			assert.False(t, rec.CreatedAt.IsZero())
			return nil
		})

	al.Record(context.Background(), domain.ActionBuy, domain.ActionPayload{
		UserID:   &userID,
		Currency: "BTC",
		Amount:   &amount,
	})

	assert.Contains(t, buf.String(), `"action":"BUY"`)
	assert.Contains(t, buf.String(), `"amount":"0.5"`)
}

func TestActionLog_Record_SurvivesCancelledContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockActionLogRepository(ctrl)
	al := NewActionLog(repo, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ *domain.ActionRecord) error {
			require.NoError(t, ctx.Err())
			return nil
		})

	al.Record(ctx, domain.ActionDeposit, domain.ActionPayload{})
}

func TestActionLog_Record_SwallowsRepoError(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockActionLogRepository(ctrl)
	var buf bytes.Buffer
	al := NewActionLog(repo, zerolog.New(&buf))

	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("db down"))

	assert.NotPanics(t, func() {
		al.Record(context.Background(), domain.ActionLogin, domain.ActionPayload{
			Username:  "alice",
			Result:    domain.ActionError,
			ErrorKind: "AUTH_001",
		})
	})
	assert.Contains(t, buf.String(), "failed to persist action log")
	assert.Contains(t, buf.String(), `"error_kind":"AUTH_001"`)
}

func TestActionLog_Record_LogOnly(t *testing.T) {
	var buf bytes.Buffer
	al := NewActionLog(nil, zerolog.New(&buf))

	al.Record(context.Background(), domain.ActionRegister, domain.ActionPayload{Username: "bob"})
	assert.Contains(t, buf.String(), `"username":"bob"`)
}
