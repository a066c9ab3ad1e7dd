package price

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	domainService "txrisk-engine/internal/domain/service"
	"txrisk-engine/internal/pkg/apperrors"

	"go.uber.org/zap"
)

// TickerClient reads native-currency prices from an exchange ticker.
type TickerClient struct {
	baseURL string
	timeout time.Duration
	fetcher domainService.FeedFetcher
	logger  *zap.Logger
}

// NewTickerClient creates a new exchange ticker client. Every lookup is bounded by timeout.
func NewTickerClient(baseURL string, timeout time.Duration, fetcher domainService.FeedFetcher, logger *zap.Logger) *TickerClient {
	return &TickerClient{baseURL: baseURL, timeout: timeout, fetcher: fetcher, logger: logger.Named("TickerClient")}
}

// Price returns the USDT quote of symbol.
func (c *TickerClient) Price(ctx context.Context, symbol string) (float64, error) {
	if c.baseURL == "" || symbol == "" {
		return 0, fmt.Errorf("%w: ticker not configured", apperrors.ErrInvalidInput)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := c.fetcher.Fetch(ctx, c.baseURL+symbol+"USDT")
	if err != nil {
		return 0, err
	}

	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("%w: invalid ticker response: %v", apperrors.ErrExternalServiceFailure, err)
	}
	p, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil || p <= 0 {
		return 0, fmt.Errorf("%w: invalid ticker price %q", apperrors.ErrExternalServiceFailure, resp.Price)
	}
	return p, nil
}
