package market

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/chainsafe/mintwatch/pkg/chain"
	"github.com/chainsafe/mintwatch/pkg/config"
)

const (
	sourceMetadata = "metadata"
	unknownName    = "unknown"
)

// Trait is one attribute of an NFT.
type Trait struct {
	Type  string `json:"trait_type"`
	Value string `json:"value"`
}

// Metadata describes a single token.
type Metadata struct {
	Name       string  `json:"name"`
	Image      string  `json:"image"`
	RarityRank int     `json:"rarity_rank"`
	Traits     []Trait `json:"traits"`
}

// Known reports whether the metadata came from the upstream.
func (m Metadata) Known() bool {
	return m.Name != unknownName
}

// MetadataClient fetches NFT metadata.
type MetadataClient struct {
	http    *http.Client
	baseURL string
	apiKey  string
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewMetadataClient creates a metadata client from cfg.
func NewMetadataClient(cfg config.MarketConfig, logger *zap.Logger) *MetadataClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MetadataClient{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.MetadataURL, "/"),
		apiKey:  cfg.APIKey,
		breaker: newBreaker(sourceMetadata, cfg.BreakerFailures, cfg.BreakerTimeout, logger),
		logger:  logger,
	}
}

// Token returns the token's metadata. Any failure yields a placeholder named
// "unknown".
func (c *MetadataClient) Token(ctx context.Context, id chain.ID, contract, tokenID string) Metadata {
	fallback := Metadata{Name: unknownName}
	if c.baseURL == "" {
		return fallback
	}

	endpoint := fmt.Sprintf("%s/nft/%s/%s/%s",
		c.baseURL,
		url.PathEscape(string(id)),
		url.PathEscape(strings.ToLower(contract)),
		url.PathEscape(tokenID))

	var out Metadata
	if err := getJSON(ctx, c.http, c.breaker, sourceMetadata, endpoint, c.apiKey, &out); err != nil {
		c.logger.Warn("Failed to fetch token metadata",
			zap.String("chain", string(id)),
			zap.String("contract", contract),
			zap.String("token_id", tokenID),
			zap.Error(err))
		return fallback
	}
	if strings.TrimSpace(out.Name) == "" {
		out.Name = fmt.Sprintf("#%s", tokenID)
	}
	return out
}
