package repository

import "txrisk-engine/internal/domain/entity"

// ChainRegistry defines read access to the static per-network configuration.
type ChainRegistry interface {
	// ConfigFor returns the configuration for chainID, or mainnet when unknown.
	ConfigFor(chainID string) entity.ChainConfig
}
