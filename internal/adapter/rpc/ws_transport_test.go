package rpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"txrisk-engine/internal/domain"
	"txrisk-engine/internal/domain/entity"
)

// newWSServer upgrades every request and hands the connection to serve.
func newWSServer(t *testing.T, serve func(conn *websocket.Conn)) (entity.RPCURL, func()) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	}))
	endpoint := entity.RPCURL("ws" + strings.TrimPrefix(srv.URL, "http"))
	return endpoint, func() {
		srv.CloseClientConnections()
		srv.Close()
	}
}

func TestWSTransport_CallReturnsReply(t *testing.T) {
	received := make(chan string, 1)
	endpoint, closeServer := newWSServer(t, func(conn *websocket.Conn) {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- string(msg)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":1,"result":"0x1"}`))
	})
	defer closeServer()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload := []byte(`{"jsonrpc":"2.0","id":1,"method":"eth_chainId","params":[]}`)
	body, err := NewTransport(zap.NewNop()).Call(ctx, endpoint, payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":"0x1"}`, string(body))
	assert.JSONEq(t, string(payload), <-received)
}

func TestWSTransport_CancelUnblocksRead(t *testing.T) {
	release := make(chan struct{})
	endpoint, closeServer := newWSServer(t, func(conn *websocket.Conn) {
		_, _, _ = conn.ReadMessage()
		<-release
	})
	defer closeServer()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := NewWSTransport(zap.NewNop()).Call(ctx, endpoint, []byte(`{"jsonrpc":"2.0","id":1,"method":"eth_blockNumber"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNodeUnreachable)
	assert.Contains(t, err.Error(), "cancelled")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWSTransport_DialFailure(t *testing.T) {
	endpoint, closeServer := newWSServer(t, func(*websocket.Conn) {})
	closeServer()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewWSTransport(zap.NewNop()).Call(ctx, endpoint, []byte(`{}`))
	assert.ErrorIs(t, err, domain.ErrNodeUnreachable)
}
