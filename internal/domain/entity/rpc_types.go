package entity

import (
	"encoding/json"
	"fmt"

	"txrisk-engine/internal/domain"
)

// Protocol defines the type for RPC protocols.
type Protocol string

// Constants for known protocols.
const (
	ProtocolHTTP    Protocol = "http"
	ProtocolHTTPS   Protocol = "https"
	ProtocolWS      Protocol = "ws"
	ProtocolWSS     Protocol = "wss"
	ProtocolUnknown Protocol = "unknown"
)

// RaceOutcome is the detailed result of racing one request across a chain's endpoints.
type RaceOutcome struct {
	// Result is the winning `result` payload, nil when no endpoint produced one.
	Result json.RawMessage
	// Endpoint is the URL that produced Result.
	Endpoint RPCURL
	// ExecutionError is set when at least one endpoint reported that the EVM
	// reverted the call. Other JSON-RPC errors count as endpoint failures.
	ExecutionError string
}

// OK reports whether a structurally valid result was obtained.
func (o RaceOutcome) OK() bool {
	return o.Result != nil
}

// Reverted reports whether no result was obtained but a node rejected the call.
func (o RaceOutcome) Reverted() bool {
	return o.Result == nil && o.ExecutionError != ""
}

// Err describes why no result was obtained, or returns nil when OK.
func (o RaceOutcome) Err() error {
	switch {
	case o.OK():
		return nil
	case o.Reverted():
		return fmt.Errorf("%w: call reverted: %s", domain.ErrVerificationFailed, o.ExecutionError)
	default:
		return fmt.Errorf("%w: %w: no endpoint answered", domain.ErrVerificationFailed, domain.ErrNodeUnreachable)
	}
}
