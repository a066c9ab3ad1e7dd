package entity

import (
	"math/big"
	"strings"
)

// CallKind is the closed set of contract calls the decoder recognises.
type CallKind int

const (
	KindUnknown CallKind = iota
	KindNativeTransfer
	KindApprove
	KindApprovalForAll
	KindTransfer
	KindTransferFrom
	KindSafeTransferFrom
	KindSwap
	KindMarketplace
)

// String returns the kind name.
func (k CallKind) String() string {
	switch k {
	case KindNativeTransfer:
		return "nativeTransfer"
	case KindApprove:
		return "approve"
	case KindApprovalForAll:
		return "setApprovalForAll"
	case KindTransfer:
		return "transfer"
	case KindTransferFrom:
		return "transferFrom"
	case KindSafeTransferFrom:
		return "safeTransferFrom"
	case KindSwap:
		return "swap"
	case KindMarketplace:
		return "marketplace"
	default:
		return "unknown"
	}
}

// DecodedParam is one positional parameter extracted from calldata.
// Addresses are lowercase 0x-hex, bools are "true"/"false" and every
// other type is kept as the raw 32-byte word in 0x-hex.
type DecodedParam struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// DecodedCall is the structured view of a contract call.
type DecodedCall struct {
	Kind     CallKind       `json:"-"`
	Name     string         `json:"functionName"`
	Selector string         `json:"selector,omitempty"`
	Params   []DecodedParam `json:"params"`
}

// Param returns the i-th parameter if it was decoded.
func (c DecodedCall) Param(i int) (DecodedParam, bool) {
	if i < 0 || i >= len(c.Params) {
		return DecodedParam{}, false
	}
	return c.Params[i], true
}

// Address returns the i-th parameter when it is an address.
func (c DecodedCall) Address(i int) (string, bool) {
	p, ok := c.Param(i)
	if !ok || p.Type != "address" {
		return "", false
	}
	return p.Value, true
}

// Bool returns the i-th parameter when it is a bool.
func (c DecodedCall) Bool(i int) (bool, bool) {
	p, ok := c.Param(i)
	if !ok || p.Type != "bool" {
		return false, false
	}
	return p.Value == "true", true
}

// Uint returns the i-th raw word interpreted as an unsigned integer.
func (c DecodedCall) Uint(i int) (*big.Int, bool) {
	p, ok := c.Param(i)
	if !ok || p.Type == "address" || p.Type == "bool" {
		return nil, false
	}
	v, ok := new(big.Int).SetString(strings.TrimPrefix(p.Value, "0x"), 16)
	return v, ok
}

// IsApproval reports whether the call grants spending rights to a third party.
func (c DecodedCall) IsApproval() bool {
	return c.Kind == KindApprove || c.Kind == KindApprovalForAll
}
