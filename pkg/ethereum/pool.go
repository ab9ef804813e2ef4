package ethereum

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/chainsafe/mintwatch/pkg/chain"
)

// JSON-RPC 2.0 reserves -32000..-32099 for server errors.
const (
	rpcServerErrorMin = -32099
	rpcServerErrorMax = -32000
	rpcInternalError  = -32603
)

var invalidRangeMarkers = []string{
	"block range",
	"exceed maximum block range",
	"query returned more than",
	"too many results",
	"range too large",
}

// Pool is the ordered list of RPC endpoints of one chain. Rotation is circular.
type Pool struct {
	chain     chain.ID
	endpoints []string

	mu      sync.RWMutex
	current int
}

// NewPool creates an endpoint pool. Empty and duplicate URLs are dropped while
// keeping the configured order.
func NewPool(id chain.ID, endpoints []string) (*Pool, error) {
	seen := make(map[string]struct{}, len(endpoints))
	out := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		ep = strings.TrimSpace(ep)
		if ep == "" {
			continue
		}
		if _, ok := seen[ep]; ok {
			continue
		}
		seen[ep] = struct{}{}
		out = append(out, ep)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no rpc endpoints configured for chain %s", id)
	}
	return &Pool{chain: id, endpoints: out}, nil
}

// Chain returns the chain the pool serves.
func (p *Pool) Chain() chain.ID { return p.chain }

// Len returns the number of distinct endpoints.
func (p *Pool) Len() int { return len(p.endpoints) }

// Current returns the active endpoint.
func (p *Pool) Current() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.endpoints[p.current]
}

// Rotate advances to the next endpoint and returns it.
func (p *Pool) Rotate() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = (p.current + 1) % len(p.endpoints)
	return p.endpoints[p.current]
}

// IsTransient reports whether err should make the caller rotate to the next endpoint.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode >= 500 {
		return true
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		code := rpcErr.ErrorCode()
		if code == rpcInternalError || (code >= rpcServerErrorMin && code <= rpcServerErrorMax) {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return IsInvalidRange(err)
}

// IsInvalidRange reports whether the provider rejected the requested block range.
func IsInvalidRange(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range invalidRangeMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
