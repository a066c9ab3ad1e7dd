package http

import (
	"time"

	"github.com/fasthttp/router"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// RegisterRoutes sets up the API routes, the health check and the metrics endpoint.
func RegisterRoutes(r *router.Router, h *RiskHandler, metrics fasthttp.RequestHandler, logger *zap.Logger) {
	logger.Info("Setting up application-specific routes...")

	v1 := r.Group("/v1")
	v1.POST("/analyze", h.Analyze)
	v1.POST("/navigation", h.CheckNavigation)
	v1.POST("/blocklist", h.AddToBlocklist)
	v1.GET("/blocklist/{address}", h.GetBlocklistStatus)

	logger.Info("Setting up health check route...")
	r.GET("/health", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("OK")
	})

	if metrics != nil {
		r.GET("/metrics", metrics)
	}

	logger.Info("All routes registered.")
}

// WithRequestLogging tags every request with an X-Request-ID (reusing the
// caller's when present) and logs it once it completes.
func WithRequestLogging(next fasthttp.RequestHandler, logger *zap.Logger) fasthttp.RequestHandler {
	logger = logger.Named("HTTP")
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		id := string(ctx.Request.Header.Peek(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		ctx.Response.Header.Set(requestIDHeader, id)

		next(ctx)

		logger.Info("Request handled",
			zap.String("requestId", id),
			zap.ByteString("method", ctx.Method()),
			zap.ByteString("uri", ctx.RequestURI()),
			zap.Int("status", ctx.Response.StatusCode()),
			zap.Duration("duration", time.Since(start)))
	}
}
