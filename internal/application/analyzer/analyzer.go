// Package analyzer turns a pending wallet operation into a risk verdict.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"txrisk-engine/internal/application/port"
	"txrisk-engine/internal/domain/entity"
	domainRepo "txrisk-engine/internal/domain/repository"
	domainService "txrisk-engine/internal/domain/service"
	"txrisk-engine/internal/metrics"
	"txrisk-engine/internal/pkg/apperrors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Compile-time check
var _ port.RiskAnalyzer = (*Analyzer)(nil)

// Analyzer implements port.RiskAnalyzer. It holds no per-request state.
type Analyzer struct {
	registry  domainRepo.ChainRegistry
	racer     domainService.RPCRacer
	decoder   domainService.CallDecoder
	prices    domainService.PriceOracle
	tokens    domainService.TokenResolver
	blocklist domainService.BlockChecker
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// New creates a new risk analyzer.
func New(
	registry domainRepo.ChainRegistry,
	racer domainService.RPCRacer,
	decoder domainService.CallDecoder,
	prices domainService.PriceOracle,
	tokens domainService.TokenResolver,
	blocklist domainService.BlockChecker,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Analyzer {
	return &Analyzer{
		registry:  registry,
		racer:     racer,
		decoder:   decoder,
		prices:    prices,
		tokens:    tokens,
		blocklist: blocklist,
		metrics:   m,
		logger:    logger.Named("RiskAnalyzer"),
	}
}

// Analyze implements port.RiskAnalyzer.
func (a *Analyzer) Analyze(ctx context.Context, op entity.PendingOperation, wallet string) entity.RiskVerdict {
	start := time.Now()
	verdict := a.analyze(ctx, op, wallet)

	a.metrics.Verdict(verdict.Level.String())
	a.logger.Info("Operation analysed",
		zap.String("id", op.CorrelationID),
		zap.String("method", op.Method),
		zap.String("origin", op.Origin),
		zap.String("chainId", op.ChainID),
		zap.Stringer("level", verdict.Level),
		zap.String("title", verdict.Title),
		zap.Int("warnings", len(verdict.Warnings)),
		zap.Duration("duration", time.Since(start)),
	)
	return verdict
}

func (a *Analyzer) analyze(ctx context.Context, op entity.PendingOperation, wallet string) entity.RiskVerdict {
	if op.Method == entity.MethodRequestAccounts {
		return entity.RiskVerdict{
			Level:    entity.RiskSafe,
			Title:    titleWalletConnect,
			Warnings: []string{"the site asks to see your wallet address; this alone cannot move funds"},
		}
	}

	r := newRun()
	switch {
	case op.Method == entity.MethodSendTransaction:
		if v, done := a.analyzeTransaction(ctx, r, op, wallet); done {
			return v
		}
	case op.IsSignature():
		if v, done := a.analyzeSignature(r, op); done {
			return v
		}
	}
	return r.verdict()
}

// analyzeTransaction runs the transaction pipeline. It returns done=true
// when a fast path already produced the final verdict.
func (a *Analyzer) analyzeTransaction(ctx context.Context, r *run, op entity.PendingOperation, wallet string) (entity.RiskVerdict, bool) {
	tx, err := parseTx(op.Params)
	if err != nil {
		a.logger.Debug("Unreadable transaction", zap.String("id", op.CorrelationID), zap.Error(err))
		r.warn(entity.RiskMedium, titleUnverified, "could not read the transaction, risk unknown")
		return entity.RiskVerdict{}, false
	}
	if w, ok := entity.NormalizeAddress(wallet); ok {
		wallet = w
	} else {
		wallet, _ = entity.NormalizeAddress(tx.From)
	}

	chain := a.registry.ConfigFor(op.ChainID)

	var call entity.DecodedCall
	a.guard(r, "calldata", func() {
		call = a.decoder.Decode(tx.Calldata())
	})

	if addr, hit := a.blockedTarget(tx, call); hit {
		a.logger.Warn("Blocklisted contract in transaction", zap.String("id", op.CorrelationID), zap.String("address", addr))
		return blockedVerdict(addr), true
	}

	r.simulated = true
	a.guard(r, "transaction limits", func() {
		a.rawHeuristics(ctx, r, chain, tx)
	})
	a.guard(r, "contract call", func() {
		a.classify(ctx, r, chain, tx, call, wallet)
	})

	inspection, simulation := newRun(), newRun()
	var swaps bool
	var g errgroup.Group
	g.Go(func() error {
		a.guard(inspection, "contract code", func() {
			a.inspectContract(ctx, inspection, chain, tx.To)
		})
		return nil
	})
	g.Go(func() error {
		a.guard(simulation, "simulation", func() {
			swaps = a.simulate(ctx, simulation, chain, tx, wallet)
		})
		return nil
	})
	_ = g.Wait()

	r.merge(inspection)
	r.merge(simulation)

	if swaps {
		a.guard(r, "price impact", func() {
			assessSwap(r)
		})
	}
	return entity.RiskVerdict{}, false
}

func (a *Analyzer) blockedTarget(tx entity.TxRequest, call entity.DecodedCall) (string, bool) {
	if to, ok := entity.NormalizeAddress(tx.To); ok && a.blocklist.IsBlocked(to) {
		return to, true
	}
	if call.IsApproval() {
		if spender, ok := call.Address(0); ok && a.blocklist.IsBlocked(spender) {
			return spender, true
		}
	}
	return "", false
}

// guard runs one pipeline stage. A panic is logged and turned into an
// explicit "could not verify" warning so the verdict is still produced.
func (a *Analyzer) guard(r *run, stage string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			a.logger.Warn("Analysis stage failed",
				zap.String("stage", stage),
				zap.Error(stageError(stage, p)),
				zap.Stack("stack"))
			r.warn(entity.RiskMedium, titleUnverified, fmt.Sprintf("could not verify %s, risk unknown", stage))
		}
	}()
	fn()
}

func stageError(stage string, recovered any) error {
	return fmt.Errorf("%w: %s stage panicked: %v", apperrors.ErrInternal, stage, recovered)
}

func parseTx(params []json.RawMessage) (entity.TxRequest, error) {
	if len(params) == 0 {
		return entity.TxRequest{}, fmt.Errorf("%w: eth_sendTransaction without params", apperrors.ErrInvalidInput)
	}
	var tx entity.TxRequest
	if err := json.Unmarshal(params[0], &tx); err != nil {
		return entity.TxRequest{}, fmt.Errorf("%w: transaction object: %v", apperrors.ErrInvalidInput, err)
	}
	tx.To = strings.ToLower(strings.TrimSpace(tx.To))
	tx.From = strings.ToLower(strings.TrimSpace(tx.From))
	return tx, nil
}
