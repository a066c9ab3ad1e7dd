package decoder

// Event topics matched in call traces.
var (
	// TransferTopic is shared by ERC-20 and ERC-721 Transfer events.
	TransferTopic = Topic("Transfer(address,address,uint256)")
	// SwapV2Topic is emitted by Uniswap V2 style pairs.
	SwapV2Topic = Topic("Swap(address,uint256,uint256,uint256,uint256,address)")
	// SwapV3Topic is emitted by Uniswap V3 style pools.
	SwapV3Topic = Topic("Swap(address,address,int256,int256,uint160,uint128,int24)")
)

// Read-only token calls.
var (
	SymbolSelector   = Selector("symbol()")
	DecimalsSelector = Selector("decimals()")
	TokenURISelector = Selector("tokenURI(uint256)")
	URISelector      = Selector("uri(uint256)")
)

// IsSwapTopic reports whether topic0 belongs to a known AMM swap event.
func IsSwapTopic(topic string) bool {
	return topic == SwapV2Topic || topic == SwapV3Topic
}
