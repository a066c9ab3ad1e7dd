package price

import (
	"context"
	"encoding/json"
	"math/big"

	"txrisk-engine/internal/adapter/decoder"
	"txrisk-engine/internal/domain/entity"
	domainService "txrisk-engine/internal/domain/service"
	"txrisk-engine/internal/pkg/units"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

var quoteExactInputSingle = decoder.Selector("quoteExactInputSingle((address,address,uint256,uint24,uint160))")

var defaultFeeTiers = []int{3000, 500, 10000, 100}

// Quoter simulates a one-unit swap into the wrapped native token through a
// Uniswap V3 QuoterV2 style contract.
type Quoter struct {
	racer    domainService.RPCRacer
	feeTiers []int
	logger   *zap.Logger
}

// NewQuoter creates a new on-chain quoter.
func NewQuoter(racer domainService.RPCRacer, feeTiers []int, logger *zap.Logger) *Quoter {
	if len(feeTiers) == 0 {
		feeTiers = defaultFeeTiers
	}
	return &Quoter{racer: racer, feeTiers: feeTiers, logger: logger.Named("Quoter")}
}

// Quote returns how many whole wrapped-native units one whole unit of token
// buys, trying each fee tier in order. Returns 0 when no pool answers.
func (q *Quoter) Quote(ctx context.Context, chain entity.ChainConfig, token string, decimals int) float64 {
	if chain.Quoter == "" || chain.WrappedNative == "" || token == chain.WrappedNative {
		return 0
	}
	amountIn := units.Pow10(decimals)

	for _, fee := range q.feeTiers {
		data := EncodeQuoteExactInputSingle(token, chain.WrappedNative, amountIn, fee)
		params := []any{map[string]string{"to": chain.Quoter, "data": data}, "latest"}
		raw := q.racer.Race(ctx, chain.ChainID, "eth_call", params, false)
		out, ok := decodeFirstWord(raw)
		if !ok || out.Sign() == 0 {
			continue
		}
		q.logger.Debug("Quoted token",
			zap.String("token", token),
			zap.Int("fee", fee),
			zap.String("amountOut", out.String()))
		return units.ToFloat(out, chain.NativeDecimals)
	}
	return 0
}

// EncodeQuoteExactInputSingle builds calldata for
// quoteExactInputSingle((tokenIn, tokenOut, amountIn, fee, sqrtPriceLimitX96=0)).
// The tuple is all static, so it is encoded inline as five words.
func EncodeQuoteExactInputSingle(tokenIn, tokenOut string, amountIn *big.Int, fee int) string {
	buf := make([]byte, 0, 4+5*32)
	buf = append(buf, hexutil.MustDecode(quoteExactInputSingle)...)
	buf = append(buf, common.LeftPadBytes(common.HexToAddress(tokenIn).Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(common.HexToAddress(tokenOut).Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(amountIn.Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(big.NewInt(int64(fee)).Bytes(), 32)...)
	buf = append(buf, make([]byte, 32)...)
	return hexutil.Encode(buf)
}

func decodeFirstWord(raw json.RawMessage) (*big.Int, bool) {
	if raw == nil {
		return nil, false
	}
	var hexResult string
	if err := json.Unmarshal(raw, &hexResult); err != nil {
		return nil, false
	}
	data, err := hexutil.Decode(hexResult)
	if err != nil || len(data) < 32 {
		return nil, false
	}
	return new(big.Int).SetBytes(data[:32]), true
}
