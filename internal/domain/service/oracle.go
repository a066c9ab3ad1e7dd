package service

import (
	"context"
	"math/big"

	"txrisk-engine/internal/domain/entity"
)

// PriceOracle resolves token prices in USD. It never fails; 0 means unknown.
type PriceOracle interface {
	PriceOf(ctx context.Context, token, symbol string, decimals int, chainID string) float64
	NativePrice(ctx context.Context, chainID string) float64
}

// TokenResolver reads token metadata and NFT images from chain.
type TokenResolver interface {
	Metadata(ctx context.Context, chainID, token string) entity.TokenMeta
	Image(ctx context.Context, chainID, token string, tokenID *big.Int) string
}

// CallDecoder maps calldata to a structured call.
type CallDecoder interface {
	Decode(calldata string) entity.DecodedCall
}

// BlockChecker answers blocklist membership queries.
type BlockChecker interface {
	IsBlocked(address string) bool
}
