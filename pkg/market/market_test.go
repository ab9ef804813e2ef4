package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/mintwatch/pkg/chain"
	"github.com/chainsafe/mintwatch/pkg/config"
)

func testConfig(primary, secondary, metadata string) config.MarketConfig {
	return config.MarketConfig{
		PrimaryURL:      primary,
		SecondaryURL:    secondary,
		MetadataURL:     metadata,
		APIKey:          "secret",
		Timeout:         2 * time.Second,
		BreakerFailures: 2,
		BreakerTimeout:  time.Minute,
	}
}

func TestPriceClient_Primary(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "ethereum", r.URL.Query().Get("ids"))
		assert.Equal(t, "secret", r.Header.Get(APIKeyHeader))
		_, _ = w.Write([]byte(`{"ethereum":{"usd":3123.45}}`))
	}))
	defer primary.Close()

	c := NewPriceClient(testConfig(primary.URL, "http://127.0.0.1:1", ""), zap.NewNop())
	price := c.USD(context.Background(), "eth")
	assert.True(t, price.Equal(decimal.RequireFromString("3123.45")), "got %s", price)
}

func TestPriceClient_FallsBackToSecondary(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer primary.Close()
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/prices/APE-USD/spot", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"amount":"1.23","base":"APE","currency":"USD"}}`))
	}))
	defer secondary.Close()

	c := NewPriceClient(testConfig(primary.URL, secondary.URL, ""), nil)
	price := c.USD(context.Background(), "APE")
	assert.True(t, price.Equal(decimal.RequireFromString("1.23")))
}

func TestPriceClient_BothFailReturnsZero(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()

	c := NewPriceClient(testConfig(down.URL, down.URL, ""), nil)
	assert.True(t, c.USD(context.Background(), "ETH").IsZero())
	assert.True(t, c.USD(context.Background(), "").IsZero())
}

func TestPriceClient_MissingEntryFallsBack(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer primary.Close()
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"amount":"0.5"}}`))
	}))
	defer secondary.Close()

	c := NewPriceClient(testConfig(primary.URL, secondary.URL, ""), nil)
	assert.True(t, c.USD(context.Background(), "FOO").Equal(decimal.RequireFromString("0.5")))
}

func TestPriceClient_BreakerOpensAndCaches(t *testing.T) {
	var primaryHits, secondaryHits atomic.Int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		primaryHits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer primary.Close()
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondaryHits.Add(1)
		_, _ = w.Write([]byte(`{"data":{"amount":"10"}}`))
	}))
	defer secondary.Close()

	c := NewPriceClient(testConfig(primary.URL, secondary.URL, ""), nil)
	for _, sym := range []string{"AAA", "BBB", "CCC", "DDD"} {
		assert.True(t, c.USD(context.Background(), sym).Equal(decimal.NewFromInt(10)))
	}
	assert.Equal(t, int32(2), primaryHits.Load(), "breaker opens after two failures")
	assert.Equal(t, int32(4), secondaryHits.Load())

	// cached
	c.USD(context.Background(), "AAA")
	assert.Equal(t, int32(4), secondaryHits.Load())
}

func TestMetadataClient_Token(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/nft/base/0xabc/42", r.URL.Path)
		_, _ = w.Write([]byte(`{"name":"Ape #42","image":"https://img/42.png","rarity_rank":7,"traits":[{"trait_type":"Fur","value":"Gold"}]}`))
	}))
	defer srv.Close()

	c := NewMetadataClient(testConfig("", "", srv.URL), nil)
	md := c.Token(context.Background(), chain.Base, "0xABC", "42")

	require.True(t, md.Known())
	assert.Equal(t, "Ape #42", md.Name)
	assert.Equal(t, 7, md.RarityRank)
	require.Len(t, md.Traits, 1)
	assert.Equal(t, "Fur", md.Traits[0].Type)
}

func TestMetadataClient_Fallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	md := NewMetadataClient(testConfig("", "", srv.URL), nil).Token(context.Background(), chain.Base, "0xabc", "1")
	assert.Equal(t, "unknown", md.Name)
	assert.False(t, md.Known())

	md = NewMetadataClient(testConfig("", "", ""), nil).Token(context.Background(), chain.Base, "0xabc", "1")
	assert.Equal(t, "unknown", md.Name)
}
