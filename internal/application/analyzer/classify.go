package analyzer

import (
	"context"
	"fmt"
	"math/big"

	"txrisk-engine/internal/domain/entity"
	"txrisk-engine/internal/pkg/units"
)

const maxPlausibleGas = 1_000_000

func (a *Analyzer) rawHeuristics(ctx context.Context, r *run, chain entity.ChainConfig, tx entity.TxRequest) {
	if gas := tx.GasLimit(); gas.Cmp(big.NewInt(maxPlausibleGas)) > 0 {
		r.warn(entity.RiskHigh, titleGasLimit, fmt.Sprintf("gas limit %s is implausibly high", gas))
	}

	value := tx.ValueWei()
	if value.Sign() == 0 {
		return
	}
	amount := units.FormatUnits(value, chain.NativeDecimals)
	if units.ExceedsWholeUnits(value, 1, chain.NativeDecimals) {
		r.note(fmt.Sprintf("sends %s %s from your wallet", amount, chain.NativeSymbol))
	}
	r.add(a.nativeEntry(ctx, chain, entity.DirectionLoss, value, tx.To))
}

func (a *Analyzer) classify(
	ctx context.Context,
	r *run,
	chain entity.ChainConfig,
	tx entity.TxRequest,
	call entity.DecodedCall,
	wallet string,
) {
	switch call.Kind {
	case entity.KindApprove:
		a.classifyApprove(ctx, r, chain, tx, call)
	case entity.KindApprovalForAll:
		if granted, ok := call.Bool(1); ok && granted {
			operator, _ := call.Address(0)
			r.warn(entity.RiskCritical, titleCollection,
				fmt.Sprintf("grants %s full access to every item you hold in this collection", operator))
		}
	case entity.KindTransfer, entity.KindTransferFrom, entity.KindSafeTransferFrom:
		a.classifyTransfer(ctx, r, chain, tx, call, wallet)
	case entity.KindSwap, entity.KindMarketplace, entity.KindNativeTransfer:
		// Covered by the simulation.
	case entity.KindUnknown:
		if call.Selector != "" {
			r.note(fmt.Sprintf("unrecognised contract call %s", call.Selector))
		}
	}
}

func (a *Analyzer) classifyApprove(ctx context.Context, r *run, chain entity.ChainConfig, tx entity.TxRequest, call entity.DecodedCall) {
	spender, _ := call.Address(0)
	meta := a.tokens.Metadata(ctx, chain.ChainID, tx.To)
	amount, ok := call.Uint(1)

	if ok && amount.Cmp(units.MaxUint256) == 0 {
		r.warn(entity.RiskCritical, titleApproval, fmt.Sprintf("approval lets %s spend your %s", spender, meta.Symbol))
		r.warn(entity.RiskCritical, titleApproval,
			"unlimited allowance: the spender can move your entire balance at any time, now or later")
		return
	}

	shown := "an unknown amount of"
	if ok {
		shown = units.FormatUnits(amount, meta.Decimals)
	}
	r.warn(entity.RiskCritical, titleApproval, fmt.Sprintf("approval lets %s spend %s %s", spender, shown, meta.Symbol))
}

func (a *Analyzer) classifyTransfer(
	ctx context.Context,
	r *run,
	chain entity.ChainConfig,
	tx entity.TxRequest,
	call entity.DecodedCall,
	wallet string,
) {
	var (
		from, to     string
		amount, id   *big.Int
		okFrom, okTo bool
	)
	switch call.Kind {
	case entity.KindTransfer:
		from, okFrom = tx.From, tx.From != ""
		to, okTo = call.Address(0)
		amount, _ = call.Uint(1)
	case entity.KindTransferFrom:
		from, okFrom = call.Address(0)
		to, okTo = call.Address(1)
		amount, _ = call.Uint(2)
	default:
		from, okFrom = call.Address(0)
		to, okTo = call.Address(1)
		id, _ = call.Uint(2)
		amount = big.NewInt(1)
		if p, ok := call.Param(3); ok && p.Type == "uint256" {
			amount, _ = call.Uint(3)
		}
	}
	if !okFrom || !okTo || amount == nil {
		return
	}

	dir, counterparty, ok := direction(wallet, from, to)
	if !ok {
		return
	}

	entry := a.tokenEntry(ctx, chain, dir, tx.To, amount, id, counterparty)
	r.add(entry)
	if dir == entity.DirectionLoss {
		r.warn(entity.RiskMedium, titleTransfer,
			fmt.Sprintf("sends %s %s to %s", entry.Amount, entry.Symbol, counterparty))
	}
}

// direction classifies a movement relative to wallet and returns the other party.
func direction(wallet, from, to string) (entity.Direction, string, bool) {
	fromWallet := entity.SameAddress(from, wallet)
	toWallet := entity.SameAddress(to, wallet)
	switch {
	case fromWallet && toWallet:
		return entity.DirectionSelf, wallet, true
	case fromWallet:
		return entity.DirectionLoss, to, true
	case toWallet && entity.SameAddress(from, entity.ZeroAddress):
		return entity.DirectionMint, from, true
	case toWallet:
		return entity.DirectionIncoming, from, true
	default:
		return "", "", false
	}
}

// tokenEntry resolves a token movement into a display entry. A non-nil id
// marks an NFT, which is shown with its image and no USD estimate.
func (a *Analyzer) tokenEntry(
	ctx context.Context,
	chain entity.ChainConfig,
	dir entity.Direction,
	token string,
	amount, id *big.Int,
	counterparty string,
) entity.AssetChangeEntry {
	meta := a.tokens.Metadata(ctx, chain.ChainID, token)
	entry := entity.AssetChangeEntry{
		Direction:    dir,
		Symbol:       meta.Symbol,
		Token:        token,
		Counterparty: counterparty,
	}

	if id != nil {
		entry.Amount = amount.String()
		entry.Symbol = fmt.Sprintf("%s #%s", meta.Symbol, id)
		entry.ImageURL = a.tokens.Image(ctx, chain.ChainID, token, id)
		return entry
	}

	entry.Amount = units.FormatUnits(amount, meta.Decimals)
	if price := a.prices.PriceOf(ctx, token, meta.Symbol, meta.Decimals, chain.ChainID); price > 0 {
		entry.USDValue = units.ToFloat(amount, meta.Decimals) * price
	}
	return entry
}

func (a *Analyzer) nativeEntry(
	ctx context.Context,
	chain entity.ChainConfig,
	dir entity.Direction,
	value *big.Int,
	counterparty string,
) entity.AssetChangeEntry {
	entry := entity.AssetChangeEntry{
		Direction:    dir,
		Amount:       units.FormatUnits(value, chain.NativeDecimals),
		Symbol:       chain.NativeSymbol,
		Counterparty: counterparty,
	}
	if price := a.prices.NativePrice(ctx, chain.ChainID); price > 0 {
		entry.USDValue = units.ToFloat(value, chain.NativeDecimals) * price
	}
	return entry
}
