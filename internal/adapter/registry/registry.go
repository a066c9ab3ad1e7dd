// Package registry provides the static per-network configuration table.
package registry

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"txrisk-engine/internal/domain/entity"
	domainRepo "txrisk-engine/internal/domain/repository"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed chains.yaml
var embeddedChains []byte

// Compile-time check
var _ domainRepo.ChainRegistry = (*Registry)(nil)

type chainFile struct {
	Chains []chainRaw `yaml:"chains"`
}

type chainRaw struct {
	ChainID        string   `yaml:"chainId"`
	DisplayName    string   `yaml:"displayName"`
	NativeSymbol   string   `yaml:"nativeSymbol"`
	NativeDecimals int      `yaml:"nativeDecimals"`
	DexChain       string   `yaml:"dexChain"`
	Quoter         string   `yaml:"quoter"`
	WrappedNative  string   `yaml:"wrappedNative"`
	Stablecoin     string   `yaml:"stablecoin"`
	RPC            []string `yaml:"rpc"`
	TraceRPC       []string `yaml:"traceRpc"`
}

// Registry is an immutable chain id -> configuration lookup.
type Registry struct {
	chains  map[string]entity.ChainConfig
	mainnet entity.ChainConfig
}

// New loads the embedded table and, when overridePath is set, merges the
// chains defined in that file over it by chain id.
func New(overridePath string, logger *zap.Logger) (*Registry, error) {
	logger = logger.Named("ChainRegistry")

	chains, err := parse(embeddedChains, logger)
	if err != nil {
		return nil, fmt.Errorf("embedded chain table: %w", err)
	}

	if overridePath != "" {
		data, err := os.ReadFile(overridePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read chain override %s: %w", overridePath, err)
		}
		overrides, err := parse(data, logger)
		if err != nil {
			return nil, fmt.Errorf("chain override %s: %w", overridePath, err)
		}
		for id, cfg := range overrides {
			chains[id] = cfg
		}
		logger.Info("Applied chain override", zap.String("path", overridePath), zap.Int("count", len(overrides)))
	}

	mainnet, ok := chains[entity.MainnetChainID]
	if !ok {
		return nil, fmt.Errorf("chain table has no mainnet (%s) entry", entity.MainnetChainID)
	}

	logger.Info("Chain registry loaded", zap.Int("chains", len(chains)))
	return &Registry{chains: chains, mainnet: mainnet}, nil
}

// ConfigFor returns the configuration for chainID. Unknown or malformed ids
// resolve to mainnet.
func (r *Registry) ConfigFor(chainID string) entity.ChainConfig {
	key, ok := NormalizeChainID(chainID)
	if !ok {
		return r.mainnet
	}
	if cfg, found := r.chains[key]; found {
		return cfg
	}
	return r.mainnet
}

// NormalizeChainID canonicalises a hex chain id ("0x01", "0X1" -> "0x1").
func NormalizeChainID(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if !strings.HasPrefix(s, "0x") || len(s) == 2 {
		return "", false
	}
	n, err := strconv.ParseUint(s[2:], 16, 64)
	if err != nil {
		return "", false
	}
	return "0x" + strconv.FormatUint(n, 16), true
}

func parse(data []byte, logger *zap.Logger) (map[string]entity.ChainConfig, error) {
	var file chainFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse chain table: %w", err)
	}

	chains := make(map[string]entity.ChainConfig, len(file.Chains))
	for _, raw := range file.Chains {
		id, ok := NormalizeChainID(raw.ChainID)
		if !ok {
			logger.Warn("Skipping chain with malformed id", zap.String("chainId", raw.ChainID))
			continue
		}
		decimals := raw.NativeDecimals
		if decimals <= 0 {
			decimals = 18
		}
		chains[id] = entity.ChainConfig{
			ChainID:        id,
			DisplayName:    raw.DisplayName,
			RPC:            toRPCURLs(raw.RPC, id, logger),
			TraceRPC:       toRPCURLs(raw.TraceRPC, id, logger),
			Quoter:         lower(raw.Quoter),
			WrappedNative:  lower(raw.WrappedNative),
			Stablecoin:     lower(raw.Stablecoin),
			NativeSymbol:   raw.NativeSymbol,
			NativeDecimals: decimals,
			DexChain:       raw.DexChain,
		}
	}
	return chains, nil
}

func toRPCURLs(raw []string, chainID string, logger *zap.Logger) []entity.RPCURL {
	urls := make([]entity.RPCURL, 0, len(raw))
	for _, s := range raw {
		u, err := entity.NewRPCURL(s)
		if err != nil {
			logger.Warn("Skipping invalid RPC URL",
				zap.String("rawUrl", s),
				zap.String("chainId", chainID),
				zap.Error(err))
			continue
		}
		urls = append(urls, u)
	}
	return urls
}

func lower(addr string) string {
	if norm, ok := entity.NormalizeAddress(addr); ok {
		return norm
	}
	return ""
}
