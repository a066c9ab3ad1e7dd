package rpc

import (
	"context"
	"fmt"

	"txrisk-engine/internal/domain/entity"
	domainService "txrisk-engine/internal/domain/service"
	"txrisk-engine/internal/pkg/apperrors"

	"go.uber.org/zap"
)

// Compile-time check
var _ domainService.Transport = (*Transport)(nil)

// Transport routes a call to the HTTP or WebSocket transport by URL scheme.
type Transport struct {
	http   domainService.Transport
	ws     domainService.Transport
	logger *zap.Logger
}

// NewTransport creates a new protocol-dispatching transport.
func NewTransport(logger *zap.Logger) *Transport {
	return &Transport{
		http:   NewHTTPTransport(logger),
		ws:     NewWSTransport(logger),
		logger: logger.Named("RPCTransport"),
	}
}

// Call implements domainService.Transport.
func (t *Transport) Call(ctx context.Context, endpoint entity.RPCURL, payload []byte) ([]byte, error) {
	switch endpoint.Protocol() {
	case entity.ProtocolHTTP, entity.ProtocolHTTPS:
		return t.http.Call(ctx, endpoint, payload)
	case entity.ProtocolWS, entity.ProtocolWSS:
		return t.ws.Call(ctx, endpoint, payload)
	default:
		t.logger.Warn("Skipping call for unsupported protocol", zap.String("url", endpoint.String()))
		return nil, fmt.Errorf("%w: unsupported protocol in URL %s", apperrors.ErrInvalidInput, endpoint)
	}
}
