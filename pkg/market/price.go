package market

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/chainsafe/mintwatch/pkg/config"
)

const (
	sourcePrimary   = "coingecko"
	sourceSecondary = "coinbase"
	priceCacheTTL   = time.Minute
	priceCacheSize  = 256
)

// coinIDs maps ticker symbols to CoinGecko ids. Unlisted symbols are sent
// lowercased.
var coinIDs = map[string]string{
	"ETH":   "ethereum",
	"WETH":  "weth",
	"BTC":   "bitcoin",
	"APE":   "apecoin",
	"POL":   "polygon-ecosystem-token",
	"MATIC": "matic-network",
	"ARB":   "arbitrum",
	"OP":    "optimism",
	"SOL":   "solana",
	"USDC":  "usd-coin",
	"USDT":  "tether",
}

var errNoPrice = errors.New("price not found")

// PriceClient quotes USD prices from a primary and a secondary source.
type PriceClient struct {
	http         *http.Client
	primaryURL   string
	secondaryURL string
	apiKey       string
	primary      *gobreaker.CircuitBreaker
	secondary    *gobreaker.CircuitBreaker
	cache        *expirable.LRU[string, decimal.Decimal]
	logger       *zap.Logger
}

// NewPriceClient creates a price client from cfg.
func NewPriceClient(cfg config.MarketConfig, logger *zap.Logger) *PriceClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PriceClient{
		http:         &http.Client{Timeout: timeout},
		primaryURL:   strings.TrimRight(cfg.PrimaryURL, "/"),
		secondaryURL: strings.TrimRight(cfg.SecondaryURL, "/"),
		apiKey:       cfg.APIKey,
		primary:      newBreaker(sourcePrimary, cfg.BreakerFailures, cfg.BreakerTimeout, logger),
		secondary:    newBreaker(sourceSecondary, cfg.BreakerFailures, cfg.BreakerTimeout, logger),
		cache:        expirable.NewLRU[string, decimal.Decimal](priceCacheSize, nil, priceCacheTTL),
		logger:       logger,
	}
}

// USD returns the symbol's USD price, or zero when no source can answer.
func (c *PriceClient) USD(ctx context.Context, symbol string) decimal.Decimal {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return decimal.Zero
	}
	if price, ok := c.cache.Get(symbol); ok {
		return price
	}

	price, err := c.fromPrimary(ctx, symbol)
	if err != nil {
		c.logger.Debug("Primary price source failed", zap.String("symbol", symbol), zap.Error(err))
		price, err = c.fromSecondary(ctx, symbol)
	}
	if err != nil {
		c.logger.Warn("No price source available",
			zap.String("symbol", symbol),
			zap.Error(err))
		return decimal.Zero
	}

	c.cache.Add(symbol, price)
	return price
}

func (c *PriceClient) fromPrimary(ctx context.Context, symbol string) (decimal.Decimal, error) {
	id, ok := coinIDs[symbol]
	if !ok {
		id = strings.ToLower(symbol)
	}
	q := url.Values{}
	q.Set("ids", id)
	q.Set("vs_currencies", "usd")

	var out map[string]struct {
		USD decimal.NullDecimal `json:"usd"`
	}
	if err := getJSON(ctx, c.http, c.primary, sourcePrimary, c.primaryURL+"/simple/price?"+q.Encode(), c.apiKey, &out); err != nil {
		return decimal.Zero, err
	}
	entry, ok := out[id]
	if !ok || !entry.USD.Valid || !entry.USD.Decimal.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s on %s", errNoPrice, symbol, sourcePrimary)
	}
	return entry.USD.Decimal, nil
}

func (c *PriceClient) fromSecondary(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var out struct {
		Data struct {
			Amount decimal.NullDecimal `json:"amount"`
		} `json:"data"`
	}
	endpoint := fmt.Sprintf("%s/v2/prices/%s-USD/spot", c.secondaryURL, url.PathEscape(symbol))
	if err := getJSON(ctx, c.http, c.secondary, sourceSecondary, endpoint, c.apiKey, &out); err != nil {
		return decimal.Zero, err
	}
	if !out.Data.Amount.Valid || !out.Data.Amount.Decimal.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s on %s", errNoPrice, symbol, sourceSecondary)
	}
	return out.Data.Amount.Decimal, nil
}
