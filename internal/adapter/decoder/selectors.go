package decoder

import (
	"strings"

	"txrisk-engine/internal/domain/entity"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

type method struct {
	name   string
	kind   entity.CallKind
	params []string
}

// canonical signatures; selectors are derived by hashing.
var signatures = []struct {
	sig  string
	kind entity.CallKind
}{
	{"transfer(address,uint256)", entity.KindTransfer},
	{"transferFrom(address,address,uint256)", entity.KindTransferFrom},
	{"approve(address,uint256)", entity.KindApprove},
	{"increaseAllowance(address,uint256)", entity.KindApprove},
	{"setApprovalForAll(address,bool)", entity.KindApprovalForAll},
	{"safeTransferFrom(address,address,uint256)", entity.KindSafeTransferFrom},
	{"safeTransferFrom(address,address,uint256,bytes)", entity.KindSafeTransferFrom},
	{"safeTransferFrom(address,address,uint256,uint256,bytes)", entity.KindSafeTransferFrom},
	{"swapExactTokensForTokens(uint256,uint256,address[],address,uint256)", entity.KindSwap},
	{"swapTokensForExactTokens(uint256,uint256,address[],address,uint256)", entity.KindSwap},
	{"swapExactETHForTokens(uint256,address[],address,uint256)", entity.KindSwap},
	{"swapETHForExactTokens(uint256,address[],address,uint256)", entity.KindSwap},
	{"swapExactTokensForETH(uint256,uint256,address[],address,uint256)", entity.KindSwap},
	{"swapTokensForExactETH(uint256,uint256,address[],address,uint256)", entity.KindSwap},
	{"swapExactTokensForTokensSupportingFeeOnTransferTokens(uint256,uint256,address[],address,uint256)", entity.KindSwap},
	{"swapExactETHForTokensSupportingFeeOnTransferTokens(uint256,address[],address,uint256)", entity.KindSwap},
	{"swapExactTokensForETHSupportingFeeOnTransferTokens(uint256,uint256,address[],address,uint256)", entity.KindSwap},
}

// Calls whose arguments are tuples or nested arrays. They are recognised by
// name only and carry no decoded parameters.
var opaque = []struct {
	selector string
	name     string
	kind     entity.CallKind
}{
	{"0x414bf389", "exactInputSingle", entity.KindSwap},
	{"0x04e45aaf", "exactInputSingle", entity.KindSwap},
	{"0xc04b8d59", "exactInput", entity.KindSwap},
	{"0xb858183f", "exactInput", entity.KindSwap},
	{"0x3593564c", "execute", entity.KindSwap},
	{"0x24856bc3", "execute", entity.KindSwap},
	{"0x5ae401dc", "multicall", entity.KindSwap},
	{"0xac9650d8", "multicall", entity.KindSwap},
	{"0x2eb2c2d6", "safeBatchTransferFrom", entity.KindSafeTransferFrom},
	{"0xfb0f3ee1", "fulfillBasicOrder", entity.KindMarketplace},
	{"0x00000000", "fulfillBasicOrder_efficient_6GL6yc", entity.KindMarketplace},
	{"0xb3a34c4c", "fulfillOrder", entity.KindMarketplace},
	{"0xe7acab24", "fulfillAdvancedOrder", entity.KindMarketplace},
	{"0x87201b41", "fulfillAvailableAdvancedOrders", entity.KindMarketplace},
	{"0xed98a574", "fulfillAvailableOrders", entity.KindMarketplace},
	{"0xf2d12b12", "matchAdvancedOrders", entity.KindMarketplace},
	{"0x9a1fc3a7", "execute", entity.KindMarketplace},
	{"0xb3be57f8", "bulkExecute", entity.KindMarketplace},
}

var table = buildTable()

func buildTable() map[string]method {
	t := make(map[string]method, len(signatures)+len(opaque))
	for _, s := range signatures {
		name, params := splitSignature(s.sig)
		t[Selector(s.sig)] = method{name: name, kind: s.kind, params: params}
	}
	for _, o := range opaque {
		t[o.selector] = method{name: o.name, kind: o.kind}
	}
	return t
}

// Selector returns the 0x-prefixed 4-byte selector of a canonical signature.
func Selector(signature string) string {
	return hexutil.Encode(crypto.Keccak256([]byte(signature))[:4])
}

// Topic returns the 0x-prefixed event topic of a canonical event signature.
func Topic(signature string) string {
	return crypto.Keccak256Hash([]byte(signature)).Hex()
}

func splitSignature(sig string) (string, []string) {
	open := strings.IndexByte(sig, '(')
	if open < 0 {
		return sig, nil
	}
	name := sig[:open]
	inner := strings.TrimSuffix(sig[open+1:], ")")
	if inner == "" {
		return name, nil
	}
	return name, strings.Split(inner, ",")
}
