package service

import (
	"context"
	"encoding/json"

	"txrisk-engine/internal/domain/entity"
)

// Transport sends one raw JSON-RPC payload to one endpoint.
type Transport interface {
	Call(ctx context.Context, endpoint entity.RPCURL, payload []byte) ([]byte, error)
}

// RPCRacer races a JSON-RPC request across a chain's endpoints.
type RPCRacer interface {
	// Race returns the first structurally valid result, or nil when every
	// candidate failed. nil means "unknown", never an error.
	Race(ctx context.Context, chainID, method string, params []any, requiresTrace bool) json.RawMessage

	// RaceOutcome is Race with the reason behind a missing result.
	RaceOutcome(ctx context.Context, chainID, method string, params []any, requiresTrace bool) entity.RaceOutcome
}
