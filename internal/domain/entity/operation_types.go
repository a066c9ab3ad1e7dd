package entity

import (
	"encoding/json"
	"math/big"
	"strings"
)

// Wallet methods understood by the analyzer.
const (
	MethodSendTransaction = "eth_sendTransaction"
	MethodSignTypedData   = "eth_signTypedData"
	MethodSignTypedDataV3 = "eth_signTypedData_v3"
	MethodSignTypedDataV4 = "eth_signTypedData_v4"
	MethodPersonalSign    = "personal_sign"
	MethodEthSign         = "eth_sign"
	MethodRequestAccounts = "eth_requestAccounts"
)

// PendingOperation is a wallet call intercepted from a web page.
type PendingOperation struct {
	Method        string            `json:"method"`
	Params        []json.RawMessage `json:"params"`
	Origin        string            `json:"origin"`
	ChainID       string            `json:"chainId"`
	CorrelationID string            `json:"id,omitempty"`
}

// IsSignature reports whether the method asks the wallet to sign a message.
func (o PendingOperation) IsSignature() bool {
	switch o.Method {
	case MethodSignTypedData, MethodSignTypedDataV3, MethodSignTypedDataV4, MethodPersonalSign, MethodEthSign:
		return true
	}
	return false
}

// IsTypedData reports whether the method carries EIP-712 typed data.
func (o PendingOperation) IsTypedData() bool {
	return strings.HasPrefix(o.Method, MethodSignTypedData)
}

// TxRequest is the transaction object carried by eth_sendTransaction.
type TxRequest struct {
	From  string `json:"from"`
	To    string `json:"to,omitempty"`
	Value string `json:"value,omitempty"`
	Data  string `json:"data,omitempty"`
	Input string `json:"input,omitempty"`
	Gas   string `json:"gas,omitempty"`
}

// Calldata returns the call payload, preferring `data` over `input`.
func (t TxRequest) Calldata() string {
	if t.Data != "" {
		return t.Data
	}
	return t.Input
}

// ValueWei parses the hex (or decimal) value field; zero when absent or malformed.
func (t TxRequest) ValueWei() *big.Int {
	return parseQuantity(t.Value)
}

// GasLimit parses the declared gas limit; zero when absent or malformed.
func (t TxRequest) GasLimit() *big.Int {
	return parseQuantity(t.Gas)
}

// CallObject returns the JSON-RPC call object used for simulation.
func (t TxRequest) CallObject() map[string]any {
	obj := map[string]any{"from": t.From}
	if t.To != "" {
		obj["to"] = t.To
	}
	if t.Value != "" {
		obj["value"] = t.Value
	}
	if data := t.Calldata(); data != "" {
		obj["data"] = data
	}
	if t.Gas != "" {
		obj["gas"] = t.Gas
	}
	return obj
}

func parseQuantity(raw string) *big.Int {
	s := strings.TrimSpace(raw)
	if s == "" {
		return new(big.Int)
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
		if s == "" {
			return new(big.Int)
		}
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok || v.Sign() < 0 {
		return new(big.Int)
	}
	return v
}
