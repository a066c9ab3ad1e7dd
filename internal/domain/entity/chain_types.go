package entity

// MainnetChainID is the registry key used when a lookup cannot be resolved.
const MainnetChainID = "0x1"

// ChainConfig holds the static per-network settings used by the engine.
type ChainConfig struct {
	ChainID        string   `yaml:"chainId"`
	DisplayName    string   `yaml:"displayName"`
	RPC            []RPCURL `yaml:"rpc"`
	TraceRPC       []RPCURL `yaml:"traceRpc"`
	Quoter         string   `yaml:"quoter"`
	WrappedNative  string   `yaml:"wrappedNative"`
	Stablecoin     string   `yaml:"stablecoin"`
	NativeSymbol   string   `yaml:"nativeSymbol"`
	NativeDecimals int      `yaml:"nativeDecimals"`
	DexChain       string   `yaml:"dexChain"`
}

// DefaultRPC returns the chain's last-resort endpoint (first general entry).
func (c ChainConfig) DefaultRPC() (RPCURL, bool) {
	if len(c.RPC) == 0 {
		return "", false
	}
	return c.RPC[0], true
}

// TokenMeta is the on-chain metadata needed to price and display a token.
type TokenMeta struct {
	Symbol   string
	Decimals int
}
