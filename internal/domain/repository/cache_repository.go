package repository

import (
	"context"
	"time"

	"txrisk-engine/internal/domain/entity"
)

// CacheRepository defines the in-memory, process-lifetime caches used by the engine.
type CacheRepository interface {
	// GetPrice retrieves a cached USD price for a token on a chain.
	GetPrice(ctx context.Context, chainID, token string) (float64, bool)

	// SetPrice stores a USD price with the given TTL.
	SetPrice(ctx context.Context, chainID, token string, price float64, ttl time.Duration)

	// GetTokenMeta retrieves cached token metadata.
	GetTokenMeta(ctx context.Context, chainID, token string) (entity.TokenMeta, bool)

	// SetTokenMeta stores token metadata with the given TTL.
	SetTokenMeta(ctx context.Context, chainID, token string, meta entity.TokenMeta, ttl time.Duration)

	// GetDomainDecision retrieves a cached domain decision.
	GetDomainDecision(ctx context.Context, domain string) (entity.DomainDecision, bool)

	// SetDomainDecision stores a domain decision without expiry.
	SetDomainDecision(ctx context.Context, decision entity.DomainDecision)
}
