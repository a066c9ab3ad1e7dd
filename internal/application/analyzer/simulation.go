package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"txrisk-engine/internal/adapter/decoder"
	"txrisk-engine/internal/domain/entity"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	highImpact     = 0.20
	noticeImpact   = 0.05
	traceMethod    = "debug_traceCall"
	fallbackMethod = "eth_call"
)

var tracerOptions = map[string]any{
	"tracer":       "callTracer",
	"tracerConfig": map[string]any{"withLog": true},
}

// callFrame is the callTracer output shape.
type callFrame struct {
	Type         string      `json:"type"`
	From         string      `json:"from"`
	To           string      `json:"to"`
	Value        string      `json:"value"`
	Error        string      `json:"error"`
	RevertReason string      `json:"revertReason"`
	Calls        []callFrame `json:"calls"`
	Logs         []callLog   `json:"logs"`
}

type callLog struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

// movement is one asset transfer touching the wallet, found in a trace.
type movement struct {
	dir          entity.Direction
	token        string
	amount       *big.Int
	id           *big.Int
	counterparty string
	native       bool
}

// simulate traces the transaction and records every asset movement touching
// wallet. It reports whether any AMM swap event was emitted.
func (a *Analyzer) simulate(ctx context.Context, r *run, chain entity.ChainConfig, tx entity.TxRequest, wallet string) bool {
	call := tx.CallObject()
	raw := a.racer.Race(ctx, chain.ChainID, traceMethod, []any{call, "latest", tracerOptions}, true)

	root, ok := parseTrace(raw)
	if !ok {
		a.fallbackCall(ctx, r, chain, call)
		return false
	}
	if root.Error != "" {
		r.warn(entity.RiskCritical, titleWillFail,
			fmt.Sprintf("simulation reverted (%s): the transaction will fail", revertText(root)))
		return false
	}

	var (
		moves []movement
		swaps bool
	)
	walkFrames(root, true, func(f callFrame, isRoot bool) {
		if !isRoot && f.Error == "" {
			if v := quantity(f.Value); v.Sign() > 0 && entity.SameAddress(f.To, wallet) && !entity.SameAddress(f.From, wallet) {
				moves = append(moves, movement{
					dir:          entity.DirectionIncoming,
					amount:       v,
					counterparty: strings.ToLower(f.From),
					native:       true,
				})
			}
		}
		for _, l := range f.Logs {
			if len(l.Topics) > 0 && decoder.IsSwapTopic(strings.ToLower(l.Topics[0])) {
				swaps = true
			}
			if m, ok := transferMovement(l, wallet); ok {
				moves = append(moves, m)
			}
		}
	})

	entries := make([]entity.AssetChangeEntry, len(moves))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range moves {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					a.logger.Warn("Failed to resolve asset movement", zap.Any("panic", p))
					entries[i] = entity.AssetChangeEntry{Direction: m.dir, Amount: m.amount.String(), Token: m.token, Counterparty: m.counterparty}
				}
			}()
			if m.native {
				entries[i] = a.nativeEntry(gctx, chain, m.dir, m.amount, m.counterparty)
			} else {
				entries[i] = a.tokenEntry(gctx, chain, m.dir, m.token, m.amount, m.id, m.counterparty)
			}
			return nil
		})
	}
	_ = g.Wait()

	losses := 0
	for _, e := range entries {
		r.add(e)
		if e.Direction == entity.DirectionLoss {
			losses++
		}
	}
	if losses > 0 {
		r.warn(entity.RiskMedium, titleOutflow, fmt.Sprintf("simulation: %d asset transfer(s) leave your wallet", losses))
	}
	return swaps
}

// fallbackCall runs a plain eth_call when no trace is available.
// An absent or empty result counts as a revert; this also catches the rare
// successful call that returns nothing.
func (a *Analyzer) fallbackCall(ctx context.Context, r *run, chain entity.ChainConfig, call map[string]any) {
	outcome := a.racer.RaceOutcome(ctx, chain.ChainID, fallbackMethod, []any{call, "latest"}, false)
	switch {
	case outcome.Reverted():
		r.warn(entity.RiskCritical, titleWillFail,
			fmt.Sprintf("simulation reverted (%s): the transaction will fail", outcome.ExecutionError))
	case !outcome.OK():
		a.logger.Debug("Fallback simulation unavailable",
			zap.String("chainId", chain.ChainID),
			zap.Error(outcome.Err()))
		r.warn(entity.RiskMedium, titleUnverified, "could not verify, risk unknown: no node could simulate this transaction")
	default:
		var result string
		if err := json.Unmarshal(outcome.Result, &result); err == nil && result == "" {
			r.warn(entity.RiskCritical, titleWillFail, "simulation returned no result: the transaction will fail")
			return
		}
		r.note("no execution trace on this network: asset changes could not be verified")
	}
}

// assessSwap compares the USD value leaving and entering the wallet.
func assessSwap(r *run) {
	var loss, gain float64
	for _, e := range r.entries {
		switch e.Direction {
		case entity.DirectionLoss:
			loss += e.USDValue
		case entity.DirectionIncoming, entity.DirectionMint:
			gain += e.USDValue
		}
	}
	if loss <= 0 {
		return
	}
	if gain == 0 {
		r.warn(entity.RiskHigh, titleDrain,
			fmt.Sprintf("you give up about $%.2f and receive nothing of known value (likely drain or burn)", loss))
		return
	}

	impact := 1 - gain/loss
	switch {
	case impact > highImpact:
		r.warn(entity.RiskHigh, titlePriceImpact,
			fmt.Sprintf("price impact %.1f%%: about $%.2f lost on this swap", impact*100, loss-gain))
	case impact > noticeImpact:
		r.note(fmt.Sprintf("price impact %.1f%%", impact*100))
	}
}

func parseTrace(raw json.RawMessage) (callFrame, bool) {
	if raw == nil {
		return callFrame{}, false
	}
	var root callFrame
	if err := json.Unmarshal(raw, &root); err != nil {
		return callFrame{}, false
	}
	if root.Type == "" && root.From == "" {
		return callFrame{}, false
	}
	return root, true
}

func walkFrames(f callFrame, isRoot bool, visit func(callFrame, bool)) {
	visit(f, isRoot)
	for _, c := range f.Calls {
		walkFrames(c, false, visit)
	}
}

// transferMovement reads an ERC-20 (3 topics) or ERC-721 (4 topics)
// Transfer log and keeps it only when it touches wallet.
func transferMovement(l callLog, wallet string) (movement, bool) {
	if len(l.Topics) < 3 || !strings.EqualFold(l.Topics[0], decoder.TransferTopic) {
		return movement{}, false
	}
	from := topicAddress(l.Topics[1])
	to := topicAddress(l.Topics[2])
	dir, counterparty, ok := direction(wallet, from, to)
	if !ok {
		return movement{}, false
	}

	m := movement{
		dir:          dir,
		token:        strings.ToLower(l.Address),
		counterparty: counterparty,
	}
	if len(l.Topics) >= 4 {
		m.id = new(big.Int).SetBytes(common.FromHex(l.Topics[3]))
		m.amount = big.NewInt(1)
	} else {
		m.amount = new(big.Int).SetBytes(common.FromHex(l.Data))
	}
	return m, true
}

func topicAddress(topic string) string {
	return strings.ToLower(common.HexToAddress(topic).Hex())
}

func quantity(hex string) *big.Int {
	v, ok := new(big.Int).SetString(strings.TrimPrefix(strings.TrimSpace(hex), "0x"), 16)
	if !ok {
		return new(big.Int)
	}
	return v
}

func revertText(f callFrame) string {
	if f.RevertReason != "" {
		return f.RevertReason
	}
	return f.Error
}
