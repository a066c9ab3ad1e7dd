package entity

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// RPCURL represents a typed URL for an RPC endpoint.
type RPCURL string

// NewRPCURL creates a new RPCURL instance.
func NewRPCURL(rawURL string) (RPCURL, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", fmt.Errorf("rpc url cannot be empty")
	}

	u, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid rpc url format '%s': %w", rawURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ws", "wss":
	default:
		return "", fmt.Errorf("rpc url '%s' has unsupported scheme: '%s'", rawURL, u.Scheme)
	}

	return RPCURL(rawURL), nil
}

// String returns the string representation of the RPCURL.
func (r RPCURL) String() string {
	return string(r)
}

// Protocol returns the transport protocol implied by the URL scheme.
func (r RPCURL) Protocol() Protocol {
	scheme, _, _ := strings.Cut(string(r), "://")
	switch strings.ToLower(scheme) {
	case "http":
		return ProtocolHTTP
	case "https":
		return ProtocolHTTPS
	case "ws":
		return ProtocolWS
	case "wss":
		return ProtocolWSS
	default:
		return ProtocolUnknown
	}
}

// ZeroAddress is the canonical lowercase zero address.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// NormalizeAddress trims and lowercases a 0x-prefixed 20-byte hex address.
// The second return value is false for anything that is not exactly
// 42 characters of 0x-prefixed hex.
func NormalizeAddress(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if len(s) != 42 || !strings.HasPrefix(s, "0x") || !common.IsHexAddress(s) {
		return "", false
	}
	return s, true
}

// SameAddress compares two addresses ignoring case and surrounding whitespace.
func SameAddress(a, b string) bool {
	na, okA := NormalizeAddress(a)
	nb, okB := NormalizeAddress(b)
	return okA && okB && na == nb
}
