package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"valutatrade/internal/core/ports"
	"valutatrade/pkg/apperror"
	"valutatrade/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	// HeaderIdempotencyKey lets a client retry a write without applying it twice.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplay marks a response served from the idempotency cache.
	HeaderIdempotentReplay = "Idempotent-Replayed"

	maxIdempotencyKeyLen = 128
)

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type capturingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *capturingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response when a caller repeats a request
// with the same Idempotency-Key. Only 2xx responses are stored, so a rejected
// trade can be retried with the same key. Requests without the header pass
// through. A failing cache never blocks the request.
func Idempotency(cache ports.IdempotencyCache, ttl time.Duration, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			response.Error(c, apperror.Validation(fmt.Sprintf("%s must be at most %d characters", HeaderIdempotencyKey, maxIdempotencyKeyLen)))
			c.Abort()
			return
		}

		cacheKey := fmt.Sprintf("%s:%s %s:%s", extractIdentifier(c), c.Request.Method, c.FullPath(), key)
		ctx := c.Request.Context()

		raw, err := cache.Get(ctx, cacheKey)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("idempotency lookup failed, executing request")
		}
		if raw != nil {
			var stored storedResponse
			if err := json.Unmarshal(raw, &stored); err == nil {
				c.Header(HeaderIdempotentReplay, "true")
				c.Data(stored.Status, stored.ContentType, stored.Body)
				c.Abort()
				return
			}
			log.Warn().Str("key", key).Msg("discarding unreadable idempotent response")
		}

		w := &capturingWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		status := w.Status()
		if status < 200 || status >= 300 {
			return
		}
		raw, err = json.Marshal(storedResponse{
			Status:      status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.body.Bytes(),
		})
		if err != nil {
			log.Warn().Err(err).Msg("encoding idempotent response")
			return
		}
		if err := cache.Set(ctx, cacheKey, raw, ttl); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to store idempotent response")
		}
	}
}
