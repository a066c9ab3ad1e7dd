package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"txrisk-engine/internal/adapter/decoder"
	"txrisk-engine/internal/adapter/feed"
	httpHandler "txrisk-engine/internal/adapter/handler/http"
	"txrisk-engine/internal/adapter/price"
	"txrisk-engine/internal/adapter/registry"
	"txrisk-engine/internal/adapter/rpc"
	"txrisk-engine/internal/adapter/storage/file"
	"txrisk-engine/internal/adapter/storage/memory"
	redisStore "txrisk-engine/internal/adapter/storage/redis"
	"txrisk-engine/internal/adapter/token"
	"txrisk-engine/internal/application/analyzer"
	"txrisk-engine/internal/application/blocklist"
	"txrisk-engine/internal/application/domainguard"
	"txrisk-engine/internal/config"
	domainRepo "txrisk-engine/internal/domain/repository"
	appLogger "txrisk-engine/internal/logger"
	"txrisk-engine/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// --- Environment ---
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: failed to load .env file: %v", err)
	}

	// --- Configuration ---
	cfgPath := "configs"
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration from %s: %v", cfgPath, err)
	}

	// --- Logger ---
	logger, err := appLogger.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("Failed to setup logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("Logger initialized", zap.Any("config", cfg.Logger))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Dependency Injection (Manual) ---
	logger.Info("Initializing dependencies...")
	m := metrics.New(prometheus.DefaultRegisterer)

	store, err := openSnapshotStore(cfg.Storage, logger)
	if err != nil {
		logger.Fatal("Failed to open snapshot store", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close snapshot store", zap.Error(err))
		}
	}()

	chainRegistry, err := registry.New(cfg.Chains.OverridePath, logger)
	if err != nil {
		logger.Fatal("Failed to build chain registry", zap.Error(err))
	}

	transport := rpc.NewTransport(logger)
	swarm := rpc.NewSwarm(chainRegistry, transport, cfg.RPC, m, logger)
	cache := memory.NewCacheRepository(cfg.Cache, logger)
	feedClient := feed.NewClient(logger)

	metadataClient := feed.NewPublicClient(token.MaxMetadataSize, logger)

	tokenResolver := token.NewResolver(swarm, chainRegistry, cache, metadataClient, cfg.Price.GetHTTPTimeout(), logger)
	priceEngine := price.NewEngine(cfg.Price, chainRegistry, cache, swarm, feedClient, m, logger)

	blocklistManager := blocklist.NewManager(cfg.Blocklist, feedClient, store, m, logger)
	blocklistManager.Start(rootCtx)

	guard := domainguard.New(cfg.Domain, feedClient, cache, store, m, logger)
	guard.Start(rootCtx)

	riskAnalyzer := analyzer.New(chainRegistry, swarm, decoder.New(), priceEngine, tokenResolver, blocklistManager, m, logger)

	// --- HTTP Router & Server ---
	logger.Info("Setting up HTTP router...")
	r := router.New()
	handler := httpHandler.NewRiskHandler(riskAnalyzer, guard, blocklistManager, logger)
	httpHandler.RegisterRoutes(r, handler, fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()), logger)

	server := &fasthttp.Server{
		Handler: httpHandler.WithRequestLogging(r.Handler, logger),
		Name:    cfg.App.Name,
	}

	serverAddr := ":" + cfg.Server.Port
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("address", serverAddr))
		serverErr <- server.ListenAndServe(serverAddr)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server stopped", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
	logger.Info("Server stopped")
}

// openSnapshotStore selects the durable backend for the blocklist and domain decisions.
func openSnapshotStore(cfg config.StorageConfig, logger *zap.Logger) (domainRepo.SnapshotStore, error) {
	switch cfg.Driver {
	case "redis":
		return redisStore.NewSnapshotStore(cfg.RedisURL, logger)
	default:
		return file.NewSnapshotStore(cfg.Path, logger)
	}
}
