package ethereum

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// DialFunc opens a connection to a single RPC endpoint.
type DialFunc func(ctx context.Context, url string) (Reader, error)

// Option configures client settings using the functional options pattern.
type Option func(*settings)

type settings struct {
	logger  *zap.Logger
	dial    DialFunc
	timeout time.Duration
}

// WithLogger sets a custom logger for the client.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithDialer replaces ethclient dialing, mostly for tests.
func WithDialer(d DialFunc) Option {
	return func(s *settings) { s.dial = d }
}

// WithRequestTimeout bounds every RPC call.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

func dialEthclient(ctx context.Context, url string) (Reader, error) {
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func applyOptions(opts []Option) settings {
	s := settings{
		logger:  zap.NewNop(),
		dial:    dialEthclient,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}
