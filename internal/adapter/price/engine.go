// Package price resolves token prices in USD through layered sources.
package price

import (
	"context"
	"strings"
	"sync"

	"txrisk-engine/internal/config"
	"txrisk-engine/internal/domain/entity"
	domainRepo "txrisk-engine/internal/domain/repository"
	domainService "txrisk-engine/internal/domain/service"
	"txrisk-engine/internal/metrics"

	"go.uber.org/zap"
)

// Compile-time check
var _ domainService.PriceOracle = (*Engine)(nil)

const nativeCacheKey = "native"

// Engine implements domainService.PriceOracle. Resolution order after the
// stablecoin short-circuit: cache, DEX aggregator, wrapped-native symbol,
// on-chain quoter. Every failure degrades to 0.
type Engine struct {
	registry    domainRepo.ChainRegistry
	cache       domainRepo.CacheRepository
	dex         *DexClient
	ticker      *TickerClient
	quoter      *Quoter
	cfg         config.PriceConfig
	stablecoins map[string]struct{}
	fallback    map[string]float64
	metrics     *metrics.Metrics
	logger      *zap.Logger

	mu        sync.Mutex
	lastKnown map[string]float64 // native symbol -> last resolved USD price
}

// NewEngine creates a new price engine.
func NewEngine(
	cfg config.PriceConfig,
	registry domainRepo.ChainRegistry,
	cache domainRepo.CacheRepository,
	racer domainService.RPCRacer,
	fetcher domainService.FeedFetcher,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Engine {
	logger = logger.Named("PriceEngine")

	stable := make(map[string]struct{}, len(cfg.Stablecoins))
	for _, s := range cfg.Stablecoins {
		stable[strings.ToUpper(strings.TrimSpace(s))] = struct{}{}
	}
	fallback := make(map[string]float64, len(cfg.FallbackNativeUSD))
	for k, v := range cfg.FallbackNativeUSD {
		fallback[strings.ToUpper(k)] = v
	}

	return &Engine{
		registry:    registry,
		cache:       cache,
		dex:         NewDexClient(cfg.DexURL, cfg.GetHTTPTimeout(), fetcher, logger),
		ticker:      NewTickerClient(cfg.TickerURL, cfg.GetHTTPTimeout(), fetcher, logger),
		quoter:      NewQuoter(racer, cfg.FeeTiers, logger),
		cfg:         cfg,
		stablecoins: stable,
		fallback:    fallback,
		metrics:     m,
		logger:      logger,
		lastKnown:   make(map[string]float64),
	}
}

// IsStablecoin reports whether symbol is treated as pegged to exactly 1 USD.
func (e *Engine) IsStablecoin(symbol string) bool {
	_, ok := e.stablecoins[strings.ToUpper(strings.TrimSpace(symbol))]
	return ok
}

// PriceOf implements domainService.PriceOracle.
func (e *Engine) PriceOf(ctx context.Context, token, symbol string, decimals int, chainID string) float64 {
	if e.IsStablecoin(symbol) {
		e.metrics.PriceLayer("stablecoin")
		return 1.0
	}

	chain := e.registry.ConfigFor(chainID)
	addr, ok := entity.NormalizeAddress(token)
	if !ok || addr == entity.ZeroAddress {
		return e.NativePrice(ctx, chain.ChainID)
	}
	if chain.Stablecoin != "" && addr == chain.Stablecoin {
		e.metrics.PriceLayer("stablecoin")
		return 1.0
	}

	if p, hit := e.cache.GetPrice(ctx, chain.ChainID, addr); hit {
		e.metrics.PriceLayer("cache")
		return p
	}

	if p := e.dex.Price(ctx, chain, addr); p > 0 {
		e.metrics.PriceLayer("dex")
		e.cache.SetPrice(ctx, chain.ChainID, addr, p, e.cfg.GetTTL())
		return p
	}

	if e.isWrappedNative(chain, addr, symbol) {
		return e.NativePrice(ctx, chain.ChainID)
	}

	if native := e.NativePrice(ctx, chain.ChainID); native > 0 {
		if amount := e.quoter.Quote(ctx, chain, addr, decimals); amount > 0 {
			p := amount * native
			e.metrics.PriceLayer("quoter")
			e.cache.SetPrice(ctx, chain.ChainID, addr, p, e.cfg.GetTTL())
			return p
		}
	}

	e.metrics.PriceLayer("none")
	e.logger.Debug("No price found",
		zap.String("chainId", chain.ChainID),
		zap.String("token", addr),
		zap.String("symbol", symbol))
	return 0
}

// NativePrice implements domainService.PriceOracle. A failed ticker fetch
// falls back to the last value ever resolved, then to the configured constant.
func (e *Engine) NativePrice(ctx context.Context, chainID string) float64 {
	chain := e.registry.ConfigFor(chainID)
	symbol := strings.ToUpper(chain.NativeSymbol)

	if p, hit := e.cache.GetPrice(ctx, nativeCacheKey, symbol); hit {
		e.metrics.PriceLayer("native_cache")
		return p
	}

	if p, err := e.ticker.Price(ctx, symbol); err == nil && p > 0 {
		e.metrics.PriceLayer("native_ticker")
		e.cache.SetPrice(ctx, nativeCacheKey, symbol, p, e.cfg.GetTTL())
		e.mu.Lock()
		e.lastKnown[symbol] = p
		e.mu.Unlock()
		return p
	} else if err != nil {
		e.logger.Debug("Native ticker unavailable", zap.String("symbol", symbol), zap.Error(err))
	}

	e.mu.Lock()
	stale, ok := e.lastKnown[symbol]
	e.mu.Unlock()
	if ok {
		e.metrics.PriceLayer("native_stale")
		return stale
	}

	e.metrics.PriceLayer("native_fallback")
	return e.fallback[symbol]
}

func (e *Engine) isWrappedNative(chain entity.ChainConfig, addr, symbol string) bool {
	if chain.WrappedNative != "" && addr == chain.WrappedNative {
		return true
	}
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	native := strings.ToUpper(chain.NativeSymbol)
	return native != "" && (sym == "W"+native || sym == native)
}
