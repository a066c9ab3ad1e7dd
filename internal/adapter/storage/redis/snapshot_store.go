// Package redis persists engine snapshots in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"txrisk-engine/internal/domain"
	"txrisk-engine/internal/domain/entity"
	domainRepo "txrisk-engine/internal/domain/repository"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Compile-time check
var _ domainRepo.SnapshotStore = (*SnapshotStore)(nil)

// Key layout
const (
	blocklistKey = "txrisk:blocklist"
	domainsKey   = "txrisk:domains"
)

// SnapshotStore keeps the blocklist in a SET and domain decisions as JSON in a HASH.
type SnapshotStore struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewSnapshotStore connects to the Redis instance at url.
func NewSnapshotStore(url string, logger *zap.Logger) (*SnapshotStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &SnapshotStore{rdb: rdb, logger: logger.Named("RedisSnapshotStore")}, nil
}

// LoadBlocklist implements domainRepo.SnapshotStore.
func (s *SnapshotStore) LoadBlocklist(ctx context.Context) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, blocklistKey).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers failed: %w", err)
	}
	if len(members) == 0 {
		return nil, domain.ErrSnapshotNotFound
	}
	return members, nil
}

// SaveBlocklist implements domainRepo.SnapshotStore. The set is replaced in
// one MULTI/EXEC so readers never observe a partial snapshot.
func (s *SnapshotStore) SaveBlocklist(ctx context.Context, addresses []string) error {
	members := make([]any, len(addresses))
	for i, a := range addresses {
		members[i] = a
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, blocklistKey)
		if len(members) > 0 {
			pipe.SAdd(ctx, blocklistKey, members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save blocklist: %w", err)
	}
	s.logger.Debug("Blocklist snapshot saved", zap.Int("count", len(addresses)))
	return nil
}

// LoadDomainDecision implements domainRepo.SnapshotStore.
func (s *SnapshotStore) LoadDomainDecision(ctx context.Context, host string) (entity.DomainDecision, bool, error) {
	raw, err := s.rdb.HGet(ctx, domainsKey, strings.ToLower(host)).Bytes()
	if errors.Is(err, redis.Nil) {
		return entity.DomainDecision{}, false, nil
	}
	if err != nil {
		return entity.DomainDecision{}, false, fmt.Errorf("hget failed: %w", err)
	}

	var d entity.DomainDecision
	if err := json.Unmarshal(raw, &d); err != nil {
		return entity.DomainDecision{}, false, fmt.Errorf("failed to decode decision for %s: %w", host, err)
	}
	return d, true, nil
}

// SaveDomainDecision implements domainRepo.SnapshotStore.
func (s *SnapshotStore) SaveDomainDecision(ctx context.Context, decision entity.DomainDecision) error {
	raw, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("failed to encode decision: %w", err)
	}
	if err := s.rdb.HSet(ctx, domainsKey, strings.ToLower(decision.Domain), raw).Err(); err != nil {
		return fmt.Errorf("hset failed: %w", err)
	}
	return nil
}

// Close implements domainRepo.SnapshotStore.
func (s *SnapshotStore) Close() error {
	return s.rdb.Close()
}
