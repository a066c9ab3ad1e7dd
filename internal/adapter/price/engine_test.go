package price

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"txrisk-engine/internal/adapter/storage/memory"
	"txrisk-engine/internal/config"
	"txrisk-engine/internal/domain/entity"
)

const (
	pepe = "0x6982508145454ce325ddbe47a25d4ec3d2311933"
	weth = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	usdc = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
)

var mainnet = entity.ChainConfig{
	ChainID:        "0x1",
	NativeSymbol:   "ETH",
	NativeDecimals: 18,
	DexChain:       "ethereum",
	Quoter:         "0x61ffe014ba17989e743c5f6cb21bf9697530b21e",
	WrappedNative:  weth,
	Stablecoin:     usdc,
}

type chainStub struct{}

func (chainStub) ConfigFor(string) entity.ChainConfig { return mainnet }

type countingFetcher struct {
	mu      sync.Mutex
	bodies  map[string]string
	calls   []string
	failAll bool
}

func (f *countingFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if f.failAll {
		return nil, errors.New("offline")
	}
	if b, ok := f.bodies[url]; ok {
		return []byte(b), nil
	}
	return nil, errors.New("not found")
}

func (f *countingFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type quoteRacer struct {
	mu       sync.Mutex
	calls    int
	amountBy map[string]*big.Int // calldata -> amountOut
}

func (r *quoteRacer) Race(_ context.Context, _, _ string, params []any, _ bool) json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	data := params[0].(map[string]string)["data"]
	out, ok := r.amountBy[data]
	if !ok {
		return nil
	}
	word := make([]byte, 32)
	out.FillBytes(word)
	b, _ := json.Marshal(hexutil.Encode(word))
	return b
}

func (r *quoteRacer) RaceOutcome(ctx context.Context, chainID, method string, params []any, trace bool) entity.RaceOutcome {
	return entity.RaceOutcome{Result: r.Race(ctx, chainID, method, params, trace)}
}

func testConfig() config.PriceConfig {
	return config.PriceConfig{
		TTL:               time.Minute,
		DexURL:            "https://dex/",
		TickerURL:         "https://ticker?symbol=",
		FeeTiers:          []int{3000, 500},
		FallbackNativeUSD: map[string]float64{"eth": 3000},
		Stablecoins:       []string{"USDC", "USDT", "DAI"},
	}
}

func newEngine(f *countingFetcher, r *quoteRacer) *Engine {
	cache := memory.NewCacheRepository(config.CacheConfig{DefaultExpiration: time.Minute, CleanupInterval: time.Minute}, zap.NewNop())
	return NewEngine(testConfig(), chainStub{}, cache, r, f, nil, zap.NewNop())
}

func TestPriceOf_StablecoinWithoutNetwork(t *testing.T) {
	f := &countingFetcher{}
	r := &quoteRacer{}
	e := newEngine(f, r)

	for _, sym := range []string{"USDC", "usdt", " Dai "} {
		assert.Equal(t, 1.0, e.PriceOf(context.Background(), pepe, sym, 6, "0x1"), sym)
	}
	assert.Zero(t, f.count())
	assert.Zero(t, r.calls)
}

func TestPriceOf_ChainStablecoinAddress(t *testing.T) {
	f := &countingFetcher{}
	r := &quoteRacer{}
	e := newEngine(f, r)

	assert.Equal(t, 1.0, e.PriceOf(context.Background(), "0x"+strings.ToUpper(usdc[2:]), "UNKNOWN", 6, "0x1"))
	assert.Equal(t, 1.0, e.PriceOf(context.Background(), usdc, "UNKNOWN", 6, "0x1"))
	assert.Zero(t, f.count())
	assert.Zero(t, r.calls)
}

// deadlineFetcher fails every request and records the time left on each.
type deadlineFetcher struct {
	mu       sync.Mutex
	calls    []string
	timeLeft []time.Duration
}

func (f *deadlineFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	deadline, ok := ctx.Deadline()
	if !ok {
		f.timeLeft = append(f.timeLeft, -1)
		return nil, errors.New("offline")
	}
	f.timeLeft = append(f.timeLeft, time.Until(deadline))
	return nil, errors.New("offline")
}

func TestPriceOf_HTTPLookupsUseConfiguredTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.HTTPTimeout = 300 * time.Millisecond
	f := &deadlineFetcher{}
	cache := memory.NewCacheRepository(config.CacheConfig{DefaultExpiration: time.Minute, CleanupInterval: time.Minute}, zap.NewNop())
	e := NewEngine(cfg, chainStub{}, cache, &quoteRacer{}, f, nil, zap.NewNop())

	assert.Zero(t, e.PriceOf(context.Background(), pepe, "PEPE", 18, "0x1"))

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.calls, 2, "one dex and one ticker request")
	assert.Equal(t, "https://dex/"+pepe, f.calls[0])
	assert.Equal(t, "https://ticker?symbol=ETHUSDT", f.calls[1])
	for i, left := range f.timeLeft {
		assert.Positive(t, left, f.calls[i])
		assert.LessOrEqual(t, left, 300*time.Millisecond, f.calls[i])
	}
}

func TestPriceConfig_DefaultHTTPTimeout(t *testing.T) {
	assert.Equal(t, 2500*time.Millisecond, config.PriceConfig{}.GetHTTPTimeout())
	assert.Equal(t, time.Second, config.PriceConfig{HTTPTimeout: time.Second}.GetHTTPTimeout())
}

func TestPriceOf_DexHitIsCached(t *testing.T) {
	f := &countingFetcher{bodies: map[string]string{
		"https://dex/" + pepe: `{"pairs":[
			{"chainId":"bsc","baseToken":{"address":"` + pepe + `"},"priceUsd":"9","liquidity":{"usd":1e9}},
			{"chainId":"ethereum","baseToken":{"address":"0x6982508145454Ce325dDbE47a25d4ec3d2311933"},"priceUsd":"0.0000012","liquidity":{"usd":5000}},
			{"chainId":"ethereum","baseToken":{"address":"` + pepe + `"},"priceUsd":"0.0000011","liquidity":{"usd":90000}}
		]}`,
	}}
	e := newEngine(f, &quoteRacer{})

	p := e.PriceOf(context.Background(), pepe, "PEPE", 18, "0x1")
	assert.InDelta(t, 0.0000011, p, 1e-12)

	calls := f.count()
	assert.InDelta(t, p, e.PriceOf(context.Background(), pepe, "PEPE", 18, "0x1"), 1e-15)
	assert.Equal(t, calls, f.count())
}

func TestPriceOf_WrappedNativeUsesTicker(t *testing.T) {
	f := &countingFetcher{bodies: map[string]string{
		"https://ticker?symbol=ETHUSDT": `{"symbol":"ETHUSDT","price":"2500.50"}`,
	}}
	e := newEngine(f, &quoteRacer{})

	assert.InDelta(t, 2500.50, e.PriceOf(context.Background(), weth, "WETH", 18, "0x1"), 1e-9)
	assert.InDelta(t, 2500.50, e.PriceOf(context.Background(), entity.ZeroAddress, "ETH", 18, "0x1"), 1e-9)
}

func TestPriceOf_QuoterFallback(t *testing.T) {
	f := &countingFetcher{bodies: map[string]string{
		"https://ticker?symbol=ETHUSDT": `{"price":"2000"}`,
	}}
	oneToken := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	halfEth := new(big.Int).Div(oneToken, big.NewInt(2))
	r := &quoteRacer{amountBy: map[string]*big.Int{
		EncodeQuoteExactInputSingle(pepe, weth, oneToken, 500): halfEth,
	}}
	e := newEngine(f, r)

	assert.InDelta(t, 1000.0, e.PriceOf(context.Background(), pepe, "PEPE", 18, "0x1"), 1e-9)
	assert.Equal(t, 2, r.calls, "3000 tier tried first, 500 answers")
}

func TestNativePrice_FallbackAndStale(t *testing.T) {
	f := &countingFetcher{failAll: true}
	e := newEngine(f, &quoteRacer{})
	assert.Equal(t, 3000.0, e.NativePrice(context.Background(), "0x1"))

	f.failAll = false
	f.bodies = map[string]string{"https://ticker?symbol=ETHUSDT": `{"price":"2222"}`}
	assert.Equal(t, 2222.0, e.NativePrice(context.Background(), "0x1"))

	// Expire the cached value; the ticker is down again, so the last known price wins.
	e.cache.SetPrice(context.Background(), nativeCacheKey, "ETH", 0, time.Nanosecond)
	time.Sleep(time.Millisecond)
	f.failAll = true
	assert.Equal(t, 2222.0, e.NativePrice(context.Background(), "0x1"))
}

func TestPriceOf_TotalFailureIsZero(t *testing.T) {
	e := newEngine(&countingFetcher{failAll: true}, &quoteRacer{})
	assert.Zero(t, e.PriceOf(context.Background(), pepe, "PEPE", 18, "0x1"))
}

func TestEncodeQuoteExactInputSingle(t *testing.T) {
	data := EncodeQuoteExactInputSingle(pepe, weth, big.NewInt(1), 3000)
	require.Len(t, data, 2+8+5*64)
	assert.True(t, strings.HasPrefix(data, "0xc6a5026a"))
	assert.Contains(t, data, strings.TrimPrefix(pepe, "0x"))
	assert.Contains(t, data, "0bb8")
}
