package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"txrisk-engine/internal/domain"
	"txrisk-engine/internal/domain/entity"
	"txrisk-engine/internal/pkg/apperrors"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSTransport performs a single request/response exchange over a fresh
// WebSocket connection per call.
type WSTransport struct {
	dialer websocket.Dialer
	logger *zap.Logger
}

// NewWSTransport creates a new gorilla/websocket backed transport.
func NewWSTransport(logger *zap.Logger) *WSTransport {
	return &WSTransport{
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger.Named("WSTransport"),
	}
}

// Call dials endpoint, writes payload and returns the first message read.
func (t *WSTransport) Call(ctx context.Context, endpoint entity.RPCURL, payload []byte) ([]byte, error) {
	rpcURL := endpoint.String()

	conn, _, err := t.dialer.DialContext(ctx, rpcURL, nil)
	if err != nil {
		t.logger.Debug("WSS dial failed", zap.String("url", rpcURL), zap.Error(err))
		return nil, wrapWSError(ctx, "dial", rpcURL, err)
	}
	defer conn.Close()

	operationTimeout := effectiveTimeout(ctx, 15*time.Second)
	if operationTimeout <= 0 {
		return nil, fmt.Errorf("%w: %w: no time left for %s", domain.ErrNodeUnreachable, apperrors.ErrTimeout, rpcURL)
	}
	deadline := time.Now().Add(operationTimeout)
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)

	// Unblock ReadMessage when the race is decided elsewhere.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.logger.Debug("WSS write message failed", zap.String("url", rpcURL), zap.Error(err))
		return nil, wrapWSError(ctx, "write", rpcURL, err)
	}

	_, message, err := conn.ReadMessage()
	if err != nil {
		t.logger.Debug("WSS read message failed", zap.String("url", rpcURL), zap.Error(err))
		return nil, wrapWSError(ctx, "read", rpcURL, err)
	}

	return message, nil
}

func wrapWSError(ctx context.Context, stage, rpcURL string, err error) error {
	if ctxErr := context.Cause(ctx); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w: wss %s %s timed out: %v",
				domain.ErrNodeUnreachable, apperrors.ErrTimeout, stage, rpcURL, ctxErr)
		}
		return fmt.Errorf("%w: wss %s %s cancelled: %v", domain.ErrNodeUnreachable, stage, rpcURL, ctxErr)
	}
	return fmt.Errorf("%w: %w: wss %s %s failed: %v",
		domain.ErrNodeUnreachable, apperrors.ErrExternalServiceFailure, stage, rpcURL, err)
}
