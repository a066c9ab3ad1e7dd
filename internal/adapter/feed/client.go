// Package feed fetches and normalises remote threat-intelligence documents.
package feed

import (
	"bytes"
	"context"
	"fmt"
	"time"

	domainService "txrisk-engine/internal/domain/service"
	"txrisk-engine/internal/pkg/apperrors"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Compile-time check
var _ domainService.FeedFetcher = (*Client)(nil)

const defaultFetchTimeout = 15 * time.Second

// Client implements domainService.FeedFetcher over fasthttp.
type Client struct {
	client     *fasthttp.Client
	publicOnly bool
	logger     *zap.Logger
}

// NewClient creates a new feed client.
func NewClient(logger *zap.Logger) *Client {
	return &Client{
		client: &fasthttp.Client{
			Name:                "txrisk-engine",
			MaxResponseBodySize: 64 << 20,
		},
		logger: logger.Named("FeedClient"),
	}
}

// Fetch downloads url and returns the (decompressed) body.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	if c.publicOnly {
		if err := CheckPublicURL(url); err != nil {
			return nil, err
		}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	req.Header.Set(fasthttp.HeaderAcceptEncoding, "gzip")

	timeout := defaultFetchTimeout
	if deadline, ok := ctx.Deadline(); ok {
		requestTimeout := time.Until(deadline)
		if requestTimeout <= 0 {
			return nil, fmt.Errorf("%w: no time left to fetch %s", apperrors.ErrTimeout, url)
		}
		if requestTimeout < timeout {
			timeout = requestTimeout
		}
	}

	c.logger.Debug("Fetching feed", zap.String("url", url), zap.Duration("timeout", timeout))

	if err := c.client.DoTimeout(req, resp, timeout); err != nil {
		c.logger.Warn("Failed to execute feed request", zap.String("url", url), zap.Error(err))
		return nil, fmt.Errorf("%w: failed to fetch %s: %v", apperrors.ErrExternalServiceFailure, url, err)
	}

	switch resp.StatusCode() {
	case fasthttp.StatusOK:
	case fasthttp.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", apperrors.ErrNotFound, url)
	case fasthttp.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s", apperrors.ErrRateLimited, url)
	default:
		c.logger.Warn("Feed returned non-OK status",
			zap.String("url", url),
			zap.Int("statusCode", resp.StatusCode()),
			zap.ByteString("bodySample", resp.Body()[:min(256, len(resp.Body()))]),
		)
		return nil, fmt.Errorf("%w: %s returned status %d",
			apperrors.ErrExternalServiceFailure, url, resp.StatusCode())
	}

	if bytes.EqualFold(resp.Header.Peek(fasthttp.HeaderContentEncoding), []byte("gzip")) {
		body, err := resp.BodyGunzip()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decompress %s: %v", apperrors.ErrExternalServiceFailure, url, err)
		}
		if limit := c.client.MaxResponseBodySize; limit > 0 && len(body) > limit {
			return nil, fmt.Errorf("%w: %s decompressed to %d bytes", apperrors.ErrExternalServiceFailure, url, len(body))
		}
		return body, nil
	}

	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())
	return body, nil
}
