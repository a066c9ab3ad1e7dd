package http

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"txrisk-engine/internal/application/port"
	"txrisk-engine/internal/domain/entity"
	"txrisk-engine/internal/pkg/apperrors"
)

const requestIDHeader = "X-Request-ID"

type analyzeRequest struct {
	Operation entity.PendingOperation `json:"operation"`
	Wallet    string                  `json:"wallet"`
}

type navigationRequest struct {
	URL string `json:"url"`
}

type blocklistRequest struct {
	Address string `json:"address"`
}

type blocklistResponse struct {
	Address string `json:"address"`
	Blocked bool   `json:"blocked"`
	Size    int    `json:"size"`
}

// RiskHandler serves the analysis, navigation and blocklist endpoints.
type RiskHandler struct {
	analyzer   port.RiskAnalyzer
	navigation port.NavigationService
	blocklist  port.BlocklistService
	logger     *zap.Logger
}

func NewRiskHandler(
	analyzer port.RiskAnalyzer,
	navigation port.NavigationService,
	blocklist port.BlocklistService,
	logger *zap.Logger,
) *RiskHandler {
	return &RiskHandler{
		analyzer:   analyzer,
		navigation: navigation,
		blocklist:  blocklist,
		logger:     logger.Named("RiskHandler"),
	}
}

// Analyze handles POST /v1/analyze. The engine always produces a verdict,
// so only malformed requests are rejected.
func (h *RiskHandler) Analyze(ctx *fasthttp.RequestCtx) {
	var req analyzeRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.logger.Debug("Invalid analyze request", zap.Error(err))
		ctx.Error("Bad Request: invalid JSON body", fasthttp.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Operation.Method) == "" {
		ctx.Error("Bad Request: operation.method is required", fasthttp.StatusBadRequest)
		return
	}
	if req.Operation.CorrelationID == "" {
		req.Operation.CorrelationID = string(ctx.Response.Header.Peek(requestIDHeader))
	}

	verdict := h.analyzer.Analyze(ctx, req.Operation, req.Wallet)
	h.writeJSON(ctx, fasthttp.StatusOK, verdict)
}

// CheckNavigation handles POST /v1/navigation.
func (h *RiskHandler) CheckNavigation(ctx *fasthttp.RequestCtx) {
	var req navigationRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || strings.TrimSpace(req.URL) == "" {
		ctx.Error("Bad Request: url is required", fasthttp.StatusBadRequest)
		return
	}

	verdict := h.navigation.CheckNavigation(ctx, req.URL)
	h.writeJSON(ctx, fasthttp.StatusOK, verdict)
}

// AddToBlocklist handles POST /v1/blocklist (manual reports).
func (h *RiskHandler) AddToBlocklist(ctx *fasthttp.RequestCtx) {
	var req blocklistRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		ctx.Error("Bad Request: invalid JSON body", fasthttp.StatusBadRequest)
		return
	}

	if err := h.blocklist.Add(ctx, req.Address); err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			ctx.Error("Bad Request: invalid contract address", fasthttp.StatusBadRequest)
			return
		}
		// The address is in memory; only the snapshot write failed.
		h.logger.Error("Failed to persist manual blocklist entry", zap.String("address", req.Address), zap.Error(err))
	}

	addr, _ := entity.NormalizeAddress(req.Address)
	h.writeJSON(ctx, fasthttp.StatusOK, blocklistResponse{Address: addr, Blocked: true, Size: h.blocklist.Size()})
}

// GetBlocklistStatus handles GET /v1/blocklist/{address}.
func (h *RiskHandler) GetBlocklistStatus(ctx *fasthttp.RequestCtx) {
	raw, ok := ctx.UserValue("address").(string)
	if !ok {
		ctx.Error("Bad Request: missing address", fasthttp.StatusBadRequest)
		return
	}
	addr, valid := entity.NormalizeAddress(raw)
	if !valid {
		ctx.Error("Bad Request: invalid contract address", fasthttp.StatusBadRequest)
		return
	}

	h.writeJSON(ctx, fasthttp.StatusOK, blocklistResponse{
		Address: addr,
		Blocked: h.blocklist.IsBlocked(addr),
		Size:    h.blocklist.Size(),
	})
}

func (h *RiskHandler) writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	if err := json.NewEncoder(ctx).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
