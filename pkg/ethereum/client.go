package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/chainsafe/mintwatch/internal/metrics"
	"github.com/chainsafe/mintwatch/pkg/chain"
)

// Reader is the subset of ethclient.Client the bot needs.
type Reader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q geth.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, msg geth.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// Client talks to one chain through a rotating endpoint pool.
type Client struct {
	chain   chain.ID
	pool    *Pool
	decoder *Decoder
	dial    DialFunc
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	readers map[string]Reader
}

// NewClient creates a client for the chain. Endpoints are dialed lazily.
func NewClient(pool *Pool, opts ...Option) (*Client, error) {
	if pool == nil {
		return nil, fmt.Errorf("nil endpoint pool")
	}
	s := applyOptions(opts)

	decoder, err := NewDecoder()
	if err != nil {
		return nil, err
	}

	s.logger.Info("Ethereum client configured",
		zap.String("chain", pool.Chain().String()),
		zap.Int("endpoints", pool.Len()),
		zap.String("rpc_url", pool.Current()))

	return &Client{
		chain:   pool.Chain(),
		pool:    pool,
		decoder: decoder,
		dial:    s.dial,
		timeout: s.timeout,
		logger:  s.logger,
		readers: make(map[string]Reader),
	}, nil
}

// Chain returns the chain this client serves.
func (c *Client) Chain() chain.ID { return c.chain }

// Pool returns the endpoint pool.
func (c *Client) Pool() *Pool { return c.pool }

// Close closes every dialed endpoint.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for url, r := range c.readers {
		r.Close()
		delete(c.readers, url)
	}
}

func (c *Client) reader(ctx context.Context, url string) (Reader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.readers[url]; ok {
		return r, nil
	}
	r, err := c.dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errDial, url, err)
	}
	c.readers[url] = r
	return r, nil
}

// withRotation runs fn against the current endpoint, rotating on transient
// faults. Each endpoint is tried at most once per call.
func (c *Client) withRotation(ctx context.Context, method string, fn func(ctx context.Context, r Reader) error) error {
	var lastErr error
	for attempt := 0; attempt < c.pool.Len(); attempt++ {
		url := c.pool.Current()

		r, err := c.reader(ctx, url)
		if err == nil {
			start := time.Now()
			callCtx, cancel := context.WithTimeout(ctx, c.timeout)
			err = fn(callCtx, r)
			cancel()
			metrics.RPCDuration.WithLabelValues(c.chain.String(), method).Observe(time.Since(start).Seconds())
			if err == nil {
				return nil
			}
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !IsTransient(err) && !errors.Is(err, errDial) {
			return err
		}

		next := c.pool.Rotate()
		metrics.RPCRotations.WithLabelValues(c.chain.String()).Inc()
		c.logger.Warn("Rotating RPC endpoint",
			zap.String("chain", c.chain.String()),
			zap.String("method", method),
			zap.String("next", next),
			zap.Error(err))
	}
	return fmt.Errorf("%s failed on all %d endpoints: %w", method, c.pool.Len(), lastErr)
}

var errDial = errors.New("dial failed")

// GetLatestBlockNumber gets the latest block number
func (c *Client) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := c.withRotation(ctx, "eth_blockNumber", func(ctx context.Context, r Reader) error {
		var err error
		n, err = r.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}
	return n, nil
}

func (c *Client) filterLogs(ctx context.Context, from, to uint64, contracts []common.Address) ([]types.Log, error) {
	query := geth.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: contracts,
		Topics:    c.decoder.Topics(),
	}
	var logs []types.Log
	err := c.withRotation(ctx, "eth_getLogs", func(ctx context.Context, r Reader) error {
		var err error
		logs, err = r.FilterLogs(ctx, query)
		return err
	})
	return logs, err
}

// FetchEvents fetches and decodes the logs of contracts in [from, to].
//
// When the provider rejects the range it retries once with the single block
// `to`. If that fails too the result is empty and the failure is only logged.
func (c *Client) FetchEvents(ctx context.Context, from, to uint64, contracts []common.Address) ([]Event, error) {
	if len(contracts) == 0 {
		return nil, nil
	}
	if from > to {
		from = to
	}

	logs, err := c.filterLogs(ctx, from, to, contracts)
	if err != nil && IsInvalidRange(err) && from != to {
		c.logger.Warn("Block range rejected, retrying latest block only",
			zap.String("chain", c.chain.String()),
			zap.Uint64("from", from),
			zap.Uint64("to", to),
			zap.Error(err))
		logs, err = c.filterLogs(ctx, to, to, contracts)
	}
	if err != nil {
		if IsInvalidRange(err) {
			c.logger.Warn("Block range fallback failed, skipping",
				zap.String("chain", c.chain.String()),
				zap.Uint64("block", to),
				zap.Error(err))
			metrics.ErrorsTotal.WithLabelValues("ethereum", "invalid_range").Inc()
			return nil, nil
		}
		return nil, fmt.Errorf("failed to filter logs: %w", err)
	}

	return c.decoder.DecodeAll(c.chain, logs), nil
}

// OwnerOf returns the current owner of an ERC-721 token.
func (c *Client) OwnerOf(ctx context.Context, contract common.Address, tokenID *big.Int) (common.Address, error) {
	input, err := c.decoder.abi.Pack("ownerOf", tokenID)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to pack ownerOf: %w", err)
	}

	var out []byte
	err = c.withRotation(ctx, "eth_call", func(ctx context.Context, r Reader) error {
		var err error
		out, err = r.CallContract(ctx, geth.CallMsg{To: &contract, Data: input}, nil)
		return err
	})
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to call ownerOf: %w", err)
	}

	values, err := c.decoder.abi.Unpack("ownerOf", out)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to unpack ownerOf: %w", err)
	}
	if len(values) != 1 {
		return common.Address{}, fmt.Errorf("unexpected ownerOf output length %d", len(values))
	}
	owner, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected ownerOf result %T", values[0])
	}
	return owner, nil
}
