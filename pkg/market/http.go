// Package market quotes token prices and NFT metadata from public HTTP APIs.
// Every upstream sits behind its own circuit breaker and failures degrade to
// zero values instead of errors.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/chainsafe/mintwatch/internal/metrics"
)

const maxBodyBytes = 1 << 20

// APIKeyHeader carries the optional upstream API key.
const APIKeyHeader = "X-API-Key"

var errUpstreamStatus = errors.New("unexpected upstream status")

func newBreaker(name string, failures uint32, timeout time.Duration, logger *zap.Logger) *gobreaker.CircuitBreaker {
	if failures == 0 {
		failures = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// getJSON issues a GET through cb and decodes a 2xx JSON body into dst.
func getJSON(ctx context.Context, client *http.Client, cb *gobreaker.CircuitBreaker, source, url, apiKey string, dst any) error {
	_, err := cb.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if apiKey != "" {
			req.Header.Set(APIKeyHeader, apiKey)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
			return nil, fmt.Errorf("%w: %s returned %d", errUpstreamStatus, source, resp.StatusCode)
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(dst); err != nil {
			return nil, fmt.Errorf("failed to decode %s response: %w", source, err)
		}
		return nil, nil
	})

	status := "ok"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		status = "breaker_open"
	case err != nil:
		status = "error"
	}
	metrics.ExternalRequests.WithLabelValues(source, status).Inc()
	return err
}
