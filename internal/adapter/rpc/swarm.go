package rpc

import (
	"context"
	"encoding/json"
	"time"

	"txrisk-engine/internal/config"
	"txrisk-engine/internal/domain/entity"
	domainRepo "txrisk-engine/internal/domain/repository"
	domainService "txrisk-engine/internal/domain/service"
	"txrisk-engine/internal/metrics"

	"go.uber.org/zap"
)

// Compile-time check
var _ domainService.RPCRacer = (*Swarm)(nil)

// Swarm races each JSON-RPC request across several endpoints of a chain and
// keeps the first structurally valid answer.
type Swarm struct {
	registry  domainRepo.ChainRegistry
	transport domainService.Transport
	cfg       config.RPCConfig
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewSwarm creates a new RPC swarm.
func NewSwarm(
	registry domainRepo.ChainRegistry,
	transport domainService.Transport,
	cfg config.RPCConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Swarm {
	return &Swarm{
		registry:  registry,
		transport: transport,
		cfg:       cfg,
		metrics:   m,
		logger:    logger.Named("RPCSwarm"),
	}
}

type attempt struct {
	endpoint entity.RPCURL
	result   json.RawMessage
	rpcErr   *JSONRPCError
	err      error
}

// Race implements domainService.RPCRacer.
func (s *Swarm) Race(ctx context.Context, chainID, method string, params []any, requiresTrace bool) json.RawMessage {
	return s.RaceOutcome(ctx, chainID, method, params, requiresTrace).Result
}

// RaceOutcome implements domainService.RPCRacer.
func (s *Swarm) RaceOutcome(
	ctx context.Context,
	chainID, method string,
	params []any,
	requiresTrace bool,
) entity.RaceOutcome {
	chain := s.registry.ConfigFor(chainID)
	candidates := Candidates(chain, requiresTrace, s.cfg.GetMaxCandidates())
	if len(candidates) == 0 {
		s.logger.Warn("No RPC candidates configured", zap.String("chainId", chain.ChainID))
		s.metrics.ObserveRace(chain.ChainID, "unreachable", 0)
		return entity.RaceOutcome{}
	}

	payload, err := NewPayload(method, params)
	if err != nil {
		s.logger.Error("Failed to encode JSON-RPC payload", zap.String("method", method), zap.Error(err))
		return entity.RaceOutcome{}
	}

	timeout := s.cfg.GetPlainTimeout()
	if requiresTrace {
		timeout = s.cfg.GetTraceTimeout()
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	started := time.Now()
	results := make(chan attempt, len(candidates))
	for _, endpoint := range candidates {
		go func(endpoint entity.RPCURL) {
			reqCtx, reqCancel := context.WithTimeout(raceCtx, timeout)
			defer reqCancel()
			results <- s.try(reqCtx, endpoint, payload)
		}(endpoint)
	}

	var outcome entity.RaceOutcome
	for range candidates {
		a := <-results
		switch {
		case a.err != nil:
			s.metrics.EndpointFailed(a.endpoint.String())
			s.logger.Debug("Race candidate failed",
				zap.String("method", method),
				zap.String("url", a.endpoint.String()),
				zap.Error(a.err))
		case a.rpcErr != nil:
			if !a.rpcErr.IsRevert() {
				s.metrics.EndpointFailed(a.endpoint.String())
			} else if outcome.ExecutionError == "" {
				outcome.ExecutionError = a.rpcErr.Message
			}
			s.logger.Debug("Race candidate returned JSON-RPC error",
				zap.String("method", method),
				zap.String("url", a.endpoint.String()),
				zap.Int("errorCode", a.rpcErr.Code),
				zap.String("errorMessage", a.rpcErr.Message))
		default:
			cancel()
			s.metrics.ObserveRace(chain.ChainID, "ok", time.Since(started).Seconds())
			return entity.RaceOutcome{Result: a.result, Endpoint: a.endpoint}
		}
	}

	if outcome.Reverted() {
		s.metrics.ObserveRace(chain.ChainID, "reverted", 0)
	} else {
		s.metrics.ObserveRace(chain.ChainID, "unreachable", 0)
	}
	s.logger.Debug("All race candidates failed",
		zap.String("chainId", chain.ChainID),
		zap.String("method", method),
		zap.Int("candidates", len(candidates)),
		zap.String("executionError", outcome.ExecutionError))
	return outcome
}

func (s *Swarm) try(ctx context.Context, endpoint entity.RPCURL, payload []byte) attempt {
	body, err := s.transport.Call(ctx, endpoint, payload)
	if err != nil {
		return attempt{endpoint: endpoint, err: err}
	}
	result, rpcErr, err := ParseResponse(body)
	return attempt{endpoint: endpoint, result: result, rpcErr: rpcErr, err: err}
}

// Candidates returns the endpoints raced for one request: the first max-1
// entries of the trace (or general) list, then the chain's default endpoint
// when it is not already included.
func Candidates(chain entity.ChainConfig, requiresTrace bool, max int) []entity.RPCURL {
	if max <= 0 {
		max = 1
	}
	source := chain.RPC
	if requiresTrace && len(chain.TraceRPC) > 0 {
		source = chain.TraceRPC
	}

	limit := min(max-1, len(source))
	out := make([]entity.RPCURL, 0, max)
	out = append(out, source[:limit]...)

	if def, ok := chain.DefaultRPC(); ok {
		present := false
		for _, u := range out {
			if u == def {
				present = true
				break
			}
		}
		if !present {
			out = append(out, def)
		}
	}
	if len(out) > max {
		out = out[:max]
	}
	return out
}
