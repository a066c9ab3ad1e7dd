package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"txrisk-engine/internal/config"
	"txrisk-engine/internal/domain/entity"
	domainRepo "txrisk-engine/internal/domain/repository"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Compile-time check
var _ domainRepo.CacheRepository = (*CacheRepository)(nil)

// Cache key prefixes
const (
	priceKeyPrefix     = "price_v1_"
	tokenMetaKeyPrefix = "token_meta_v1_"
	domainKeyPrefix    = "domain_v1_"
)

// CacheRepository implements domainRepo.CacheRepository using the go-cache in-memory library.
type CacheRepository struct {
	cache  *cache.Cache
	logger *zap.Logger
}

// NewCacheRepository creates a new in-memory cache repository instance.
func NewCacheRepository(cfg config.CacheConfig, logger *zap.Logger) *CacheRepository {
	defaultExpiration := cfg.GetDefaultExpiration()
	cleanupInterval := cfg.GetCleanupInterval()

	c := cache.New(defaultExpiration, cleanupInterval)
	logger.Info(
		"Initialized go-cache for memory storage",
		zap.Duration("defaultExpiration", defaultExpiration),
		zap.Duration("cleanupInterval", cleanupInterval),
	)

	return &CacheRepository{
		cache:  c,
		logger: logger.Named("MemoryCacheStorage"),
	}
}

// GetPrice retrieves a cached USD price.
func (r *CacheRepository) GetPrice(_ context.Context, chainID, token string) (float64, bool) {
	return get[float64](r, priceKey(chainID, token))
}

// SetPrice caches a USD price for ttl.
func (r *CacheRepository) SetPrice(_ context.Context, chainID, token string, price float64, ttl time.Duration) {
	r.set(priceKey(chainID, token), price, ttl)
}

// GetTokenMeta retrieves cached token metadata.
func (r *CacheRepository) GetTokenMeta(_ context.Context, chainID, token string) (entity.TokenMeta, bool) {
	return get[entity.TokenMeta](r, tokenMetaKey(chainID, token))
}

// SetTokenMeta caches token metadata for ttl.
func (r *CacheRepository) SetTokenMeta(_ context.Context, chainID, token string, meta entity.TokenMeta, ttl time.Duration) {
	r.set(tokenMetaKey(chainID, token), meta, ttl)
}

// GetDomainDecision retrieves a cached domain decision.
func (r *CacheRepository) GetDomainDecision(_ context.Context, domain string) (entity.DomainDecision, bool) {
	return get[entity.DomainDecision](r, domainKeyPrefix+strings.ToLower(domain))
}

// SetDomainDecision caches a domain decision without expiry.
func (r *CacheRepository) SetDomainDecision(_ context.Context, decision entity.DomainDecision) {
	key := domainKeyPrefix + strings.ToLower(decision.Domain)
	r.cache.Set(key, decision, cache.NoExpiration)
	r.logger.Debug("Memory cache set", zap.String("key", key))
}

func (r *CacheRepository) set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = cache.DefaultExpiration
	}
	r.cache.Set(key, value, ttl)
	r.logger.Debug("Memory cache set", zap.String("key", key), zap.Duration("ttl", ttl))
}

func get[T any](r *CacheRepository, key string) (T, bool) {
	var zero T
	x, found := r.cache.Get(key)
	if !found {
		r.logger.Debug("Memory cache miss", zap.String("key", key))
		return zero, false
	}
	v, ok := x.(T)
	if !ok {
		r.logger.Warn(
			"Memory cache data type mismatch for key",
			zap.String("key", key), zap.String("type", fmt.Sprintf("%T", x)),
		)
		return zero, false
	}
	r.logger.Debug("Memory cache hit", zap.String("key", key))
	return v, true
}

func priceKey(chainID, token string) string {
	return priceKeyPrefix + chainID + "_" + strings.ToLower(token)
}

func tokenMetaKey(chainID, token string) string {
	return tokenMetaKeyPrefix + chainID + "_" + strings.ToLower(token)
}
