package price

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"txrisk-engine/internal/domain/entity"
	domainService "txrisk-engine/internal/domain/service"

	"go.uber.org/zap"
)

type dexResponse struct {
	Pairs []dexPair `json:"pairs"`
}

type dexPair struct {
	ChainID   string `json:"chainId"`
	BaseToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD  string `json:"priceUsd"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
}

// DexClient reads spot prices from a DEX aggregator tokens endpoint.
type DexClient struct {
	baseURL string
	timeout time.Duration
	fetcher domainService.FeedFetcher
	logger  *zap.Logger
}

// NewDexClient creates a new DEX aggregator client. Every lookup is bounded by timeout.
func NewDexClient(baseURL string, timeout time.Duration, fetcher domainService.FeedFetcher, logger *zap.Logger) *DexClient {
	return &DexClient{baseURL: baseURL, timeout: timeout, fetcher: fetcher, logger: logger.Named("DexClient")}
}

// Price returns the USD price of token from its most liquid pair on chain,
// where token is the base asset. Returns 0 when unknown.
func (c *DexClient) Price(ctx context.Context, chain entity.ChainConfig, token string) float64 {
	if c.baseURL == "" {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := c.fetcher.Fetch(ctx, c.baseURL+token)
	if err != nil {
		c.logger.Debug("DEX lookup failed", zap.String("token", token), zap.Error(err))
		return 0
	}

	var resp dexResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Debug("DEX response unreadable", zap.String("token", token), zap.Error(err))
		return 0
	}

	best, bestLiquidity := 0.0, -1.0
	for _, p := range resp.Pairs {
		if chain.DexChain != "" && !strings.EqualFold(p.ChainID, chain.DexChain) {
			continue
		}
		if !strings.EqualFold(p.BaseToken.Address, token) {
			continue
		}
		price, err := strconv.ParseFloat(p.PriceUSD, 64)
		if err != nil || price <= 0 {
			continue
		}
		if p.Liquidity.USD > bestLiquidity {
			best, bestLiquidity = price, p.Liquidity.USD
		}
	}
	return best
}
