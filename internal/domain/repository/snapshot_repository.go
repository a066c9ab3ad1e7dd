package repository

import (
	"context"

	"txrisk-engine/internal/domain/entity"
)

// SnapshotStore defines durable storage for state that must survive a restart.
type SnapshotStore interface {
	// LoadBlocklist returns the last persisted blocklist snapshot.
	// It returns domain.ErrSnapshotNotFound when nothing was persisted yet.
	LoadBlocklist(ctx context.Context) ([]string, error)

	// SaveBlocklist replaces the persisted blocklist snapshot.
	SaveBlocklist(ctx context.Context, addresses []string) error

	// LoadDomainDecision returns a persisted domain decision, if any.
	LoadDomainDecision(ctx context.Context, domain string) (entity.DomainDecision, bool, error)

	// SaveDomainDecision persists a resolved domain decision.
	SaveDomainDecision(ctx context.Context, decision entity.DomainDecision) error

	// Close releases underlying resources.
	Close() error
}
