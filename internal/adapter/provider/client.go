package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options holds the transport settings shared by all providers.
type Options struct {
	URL        string
	Timeout    time.Duration // per attempt
	MaxRetries int           // total attempts, at least 1
	RetryDelay time.Duration
}

// statusError is a non-2xx provider response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

// retryable reports whether another attempt could succeed. Client errors
// other than 429 (bad key, bad request) never will.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= http.StatusInternalServerError
	}
	return true
}

// fetcher performs GET requests with retries and decodes JSON bodies.
type fetcher struct {
	source string
	client HTTPClient
	opts   Options
	log    zerolog.Logger
}

func newFetcher(source string, client HTTPClient, opts Options, log zerolog.Logger) fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	return fetcher{source: source, client: client, opts: opts, log: log}
}

// getJSON fetches url into out, retrying transport failures and 5xx/429
// responses up to MaxRetries attempts, RetryDelay apart.
func (f fetcher) getJSON(ctx context.Context, url string, out any) error {
	var lastErr error
	for attempt := 0; attempt < f.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: %w (last error: %v)", f.source, ctx.Err(), lastErr)
			case <-time.After(f.opts.RetryDelay):
			}
		}

		body, err := f.get(ctx, url)
		if err == nil {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("%s: failed to parse response: %w", f.source, err)
			}
			return nil
		}

		lastErr = err
		f.log.Warn().Err(err).
			Str("source", f.source).
			Int("attempt", attempt+1).
			Int("max_attempts", f.opts.MaxRetries).
			Msg("rate provider request failed")
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("%s: %w", f.source, lastErr)
}

func (f fetcher) get(ctx context.Context, url string) ([]byte, error) {
	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &statusError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}
