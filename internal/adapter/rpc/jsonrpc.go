package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"txrisk-engine/internal/domain"
)

var requestSeq atomic.Uint64

// JSONRPCRequest is the request envelope sent to every node.
type JSONRPCRequest struct {
	Jsonrpc string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// JSONRPCError defines the structure for a JSON-RPC error.
type JSONRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("json-rpc error %d: %s", e.Code, e.Message)
}

// IsRevert reports whether the node says the EVM reverted the call. Code 3 is
// the standard revert code; some clients use the generic server error codes
// with a revert message instead.
func (e *JSONRPCError) IsRevert() bool {
	switch e.Code {
	case 3:
		return true
	case -32000, -32015:
		return strings.Contains(strings.ToLower(e.Message), "revert")
	default:
		return false
	}
}

// NewPayload encodes a JSON-RPC 2.0 request with a process-unique id.
func NewPayload(method string, params []any) ([]byte, error) {
	if params == nil {
		params = []any{}
	}
	return json.Marshal(JSONRPCRequest{
		Jsonrpc: "2.0",
		ID:      requestSeq.Add(1),
		Method:  method,
		Params:  params,
	})
}

// ParseResponse extracts the `result` member of a response body. A response
// is valid solely by the presence of `result`; a JSON-RPC error object is
// returned separately so callers can tell a rejected call from a broken node.
func ParseResponse(body []byte) (json.RawMessage, *JSONRPCError, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(body, &members); err != nil {
		return nil, nil, fmt.Errorf("%w: invalid JSON: %v", domain.ErrMalformedResponse, err)
	}

	if result, ok := members["result"]; ok {
		return result, nil, nil
	}

	if raw, ok := members["error"]; ok && !bytes.Equal(raw, []byte("null")) {
		var rpcErr JSONRPCError
		if err := json.Unmarshal(raw, &rpcErr); err != nil {
			return nil, nil, fmt.Errorf("%w: unreadable error member: %v", domain.ErrMalformedResponse, err)
		}
		return nil, &rpcErr, nil
	}

	return nil, nil, fmt.Errorf("%w: response has no result", domain.ErrMalformedResponse)
}
