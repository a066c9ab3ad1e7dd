package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"txrisk-engine/internal/domain"
	"txrisk-engine/internal/domain/entity"
	"txrisk-engine/internal/pkg/apperrors"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// HTTPTransport posts JSON-RPC payloads over HTTP/HTTPS.
type HTTPTransport struct {
	client *fasthttp.Client
	logger *zap.Logger
}

// NewHTTPTransport creates a new fasthttp backed transport.
func NewHTTPTransport(logger *zap.Logger) *HTTPTransport {
	return &HTTPTransport{
		client: &fasthttp.Client{
			ReadTimeout:         10 * time.Second,
			MaxIdleConnDuration: 30 * time.Second,
		},
		logger: logger.Named("HTTPTransport"),
	}
}

type httpResult struct {
	body []byte
	err  error
}

// Call sends payload to endpoint. The request is abandoned as soon as ctx is
// done; the in-flight fasthttp call finishes on its own and is discarded.
func (t *HTTPTransport) Call(ctx context.Context, endpoint entity.RPCURL, payload []byte) ([]byte, error) {
	rpcURL := endpoint.String()
	timeout := effectiveTimeout(ctx, t.client.ReadTimeout)
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: %w: no time left for %s", domain.ErrNodeUnreachable, apperrors.ErrTimeout, rpcURL)
	}

	done := make(chan httpResult, 1)
	go func() {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		req.SetRequestURI(rpcURL)
		req.Header.SetMethod(fasthttp.MethodPost)
		req.Header.SetContentType("application/json")
		req.SetBody(payload)

		if err := t.client.DoTimeout(req, resp, timeout); err != nil {
			if errors.Is(err, fasthttp.ErrTimeout) {
				done <- httpResult{err: fmt.Errorf("%w: %w: http request to %s timed out after %v",
					domain.ErrNodeUnreachable, apperrors.ErrTimeout, rpcURL, timeout)}
				return
			}
			done <- httpResult{err: fmt.Errorf("%w: %w: http request to %s failed: %v",
				domain.ErrNodeUnreachable, apperrors.ErrExternalServiceFailure, rpcURL, err)}
			return
		}

		switch status := resp.StatusCode(); {
		case status == fasthttp.StatusTooManyRequests:
			done <- httpResult{err: fmt.Errorf("%w: %w: rpc %s throttled",
				domain.ErrNodeUnreachable, apperrors.ErrRateLimited, rpcURL)}
			return
		case status != fasthttp.StatusOK:
			done <- httpResult{err: fmt.Errorf("%w: %w: rpc %s returned non-OK http status: %d",
				domain.ErrNodeUnreachable, apperrors.ErrExternalServiceFailure, rpcURL, status)}
			return
		}

		body := make([]byte, len(resp.Body()))
		copy(body, resp.Body())
		done <- httpResult{body: body}
	}()

	select {
	case <-ctx.Done():
		t.logger.Debug("HTTP RPC call abandoned", zap.String("url", rpcURL), zap.Error(ctx.Err()))
		return nil, fmt.Errorf("%w: %w: %s: %v", domain.ErrNodeUnreachable, apperrors.ErrTimeout, rpcURL, ctx.Err())
	case r := <-done:
		if r.err != nil {
			t.logger.Debug("HTTP RPC call failed", zap.String("url", rpcURL), zap.Error(r.err))
		}
		return r.body, r.err
	}
}

// effectiveTimeout picks the tighter of the context deadline and fallback.
func effectiveTimeout(ctx context.Context, fallback time.Duration) time.Duration {
	timeout := fallback
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
	}
	return timeout
}
