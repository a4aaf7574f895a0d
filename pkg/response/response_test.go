package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"valutatrade/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set("request_id", "req-1")
	return c, w
}

func TestOKWithMeta(t *testing.T) {
	c, w := newContext()
	OKWithMeta(c, []string{"BTC"}, map[string]int{"count": 1})

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "req-1", body["request_id"])
	assert.Equal(t, float64(1), body["meta"].(map[string]interface{})["count"])
}

func TestOK_OmitsMeta(t *testing.T) {
	c, w := newContext()
	OK(c, "x")

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotContains(t, body, "meta")
}

func TestError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"app error", apperror.ErrInsufficientFunds(nil), http.StatusUnprocessableEntity, "FND_001"},
		{"wrapped app error", errors.Join(errors.New("ctx"), apperror.ErrUnknownCurrency("XYZ")), http.StatusBadRequest, "CUR_001"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "SYS_000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newContext()
			Error(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.ErrorCode)
			assert.Equal(t, "req-1", body.RequestID)
		})
	}
}
