package port

import (
	"context"

	"txrisk-engine/internal/domain/entity"
)

// RiskAnalyzer produces a verdict for a pending wallet operation.
type RiskAnalyzer interface {
	// Analyze always returns a verdict; failures degrade into warnings.
	Analyze(ctx context.Context, op entity.PendingOperation, wallet string) entity.RiskVerdict
}

// BlocklistService manages the set of known-malicious addresses.
type BlocklistService interface {
	// IsBlocked reports membership, ignoring case and surrounding whitespace.
	IsBlocked(address string) bool

	// Add inserts an address and persists the set immediately.
	Add(ctx context.Context, address string) error

	// Refresh merges the remote feeds into the set.
	Refresh(ctx context.Context) error

	// Size returns the number of blocked addresses.
	Size() int
}

// NavigationService classifies page navigations.
type NavigationService interface {
	// CheckNavigation returns allow, block or redirect for rawURL.
	CheckNavigation(ctx context.Context, rawURL string) entity.NavigationVerdict
}
