package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	RPC       RPCConfig       `mapstructure:"rpc"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Price     PriceConfig     `mapstructure:"price"`
	Blocklist BlocklistConfig `mapstructure:"blocklist"`
	Domain    DomainConfig    `mapstructure:"domain"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Chains    ChainsConfig    `mapstructure:"chains"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

// RPCConfig holds settings for racing JSON-RPC requests.
type RPCConfig struct {
	PlainTimeout  time.Duration `mapstructure:"plain_timeout"`
	TraceTimeout  time.Duration `mapstructure:"trace_timeout"`
	MaxCandidates int           `mapstructure:"max_candidates"`
}

// CacheConfig holds settings for the in-memory caching layer.
type CacheConfig struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

// PriceConfig holds settings for the price resolution engine.
type PriceConfig struct {
	TTL               time.Duration      `mapstructure:"ttl"`
	DexURL            string             `mapstructure:"dex_url"`
	TickerURL         string             `mapstructure:"ticker_url"`
	FeeTiers          []int              `mapstructure:"fee_tiers"`
	FallbackNativeUSD map[string]float64 `mapstructure:"fallback_native_usd"`
	Stablecoins       []string           `mapstructure:"stablecoins"`
	HTTPTimeout       time.Duration      `mapstructure:"http_timeout"`
}

// BlocklistConfig holds settings for the threat blocklist.
type BlocklistConfig struct {
	Feeds           []string      `mapstructure:"feeds"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	Seed            []string      `mapstructure:"seed"`
}

// DomainConfig holds settings for navigation protection.
type DomainConfig struct {
	PhishingListURL   string        `mapstructure:"phishing_list_url"`
	RefreshInterval   time.Duration `mapstructure:"refresh_interval"`
	RDAPURL           string        `mapstructure:"rdap_url"`
	MinAgeDays        int           `mapstructure:"min_age_days"`
	EntropyThreshold  float64       `mapstructure:"entropy_threshold"`
	EntropyMinLength  int           `mapstructure:"entropy_min_length"`
	KeywordMinLength  int           `mapstructure:"keyword_min_length"`
	Keywords          []string      `mapstructure:"keywords"`
	Protected         []string      `mapstructure:"protected"`
	LookupTimeout     time.Duration `mapstructure:"lookup_timeout"`
	TyposquatDistance int           `mapstructure:"typosquat_distance"`
}

// StorageConfig holds settings for durable snapshot storage.
type StorageConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	RedisURL string `mapstructure:"redis_url"`
}

// ChainsConfig holds the optional chain registry override.
type ChainsConfig struct {
	OverridePath string `mapstructure:"override_path"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix("TXRISK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "txrisk-engine")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")

	v.SetDefault("rpc.plain_timeout", "2500ms")
	v.SetDefault("rpc.trace_timeout", "8s")
	v.SetDefault("rpc.max_candidates", 5)

	v.SetDefault("cache.default_expiration", "60s")
	v.SetDefault("cache.cleanup_interval", "5m")

	v.SetDefault("price.ttl", "60s")
	v.SetDefault("price.dex_url", "https://api.dexscreener.com/latest/dex/tokens/")
	v.SetDefault("price.ticker_url", "https://api.binance.com/api/v3/ticker/price?symbol=")
	v.SetDefault("price.fee_tiers", []int{3000, 500, 10000, 100})
	v.SetDefault("price.fallback_native_usd", map[string]float64{"ETH": 3000, "BNB": 600, "POL": 0.5})
	v.SetDefault("price.stablecoins", []string{"USDC", "USDT", "DAI", "BUSD", "USDC.E", "FDUSD", "TUSD", "USDP", "PYUSD"})
	v.SetDefault("price.http_timeout", "2500ms")

	v.SetDefault("blocklist.feeds", []string{
		"https://raw.githubusercontent.com/scamsniffer/scam-database/main/blacklist/address.json",
	})
	v.SetDefault("blocklist.refresh_interval", "6h")

	v.SetDefault("domain.phishing_list_url", "https://raw.githubusercontent.com/MetaMask/eth-phishing-detect/main/src/config.json")
	v.SetDefault("domain.refresh_interval", "1h")
	v.SetDefault("domain.rdap_url", "https://rdap.org/domain/")
	v.SetDefault("domain.min_age_days", 7)
	v.SetDefault("domain.entropy_threshold", 4.5)
	v.SetDefault("domain.entropy_min_length", 8)
	v.SetDefault("domain.keyword_min_length", 20)
	v.SetDefault("domain.keywords", []string{"verify", "wallet", "airdrop", "claim", "reward", "restore", "validate", "secure-login", "giveaway", "bonus"})
	v.SetDefault("domain.protected", []string{
		"metamask.io", "uniswap.org", "opensea.io", "etherscan.io", "coinbase.com",
		"binance.com", "pancakeswap.finance", "lido.fi", "aave.com", "blur.io",
		"rabby.io", "curve.fi", "1inch.io", "arbitrum.io", "polygon.technology",
	})
	v.SetDefault("domain.lookup_timeout", "5s")
	v.SetDefault("domain.typosquat_distance", 2)

	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.path", "data/snapshot.json")
	v.SetDefault("storage.redis_url", "redis://localhost:6379/0")
}

func (c RPCConfig) GetPlainTimeout() time.Duration {
	if c.PlainTimeout <= 0 {
		return 2500 * time.Millisecond
	}
	return c.PlainTimeout
}

func (c RPCConfig) GetTraceTimeout() time.Duration {
	if c.TraceTimeout <= 0 {
		return 8 * time.Second
	}
	return c.TraceTimeout
}

func (c RPCConfig) GetMaxCandidates() int {
	if c.MaxCandidates <= 0 {
		return 5
	}
	return c.MaxCandidates
}

func (c CacheConfig) GetDefaultExpiration() time.Duration {
	return c.DefaultExpiration
}

func (c CacheConfig) GetCleanupInterval() time.Duration {
	return c.CleanupInterval
}

func (c PriceConfig) GetTTL() time.Duration {
	if c.TTL <= 0 {
		return 60 * time.Second
	}
	return c.TTL
}

func (c PriceConfig) GetHTTPTimeout() time.Duration {
	if c.HTTPTimeout <= 0 {
		return 2500 * time.Millisecond
	}
	return c.HTTPTimeout
}

func (c BlocklistConfig) GetRefreshInterval() time.Duration {
	return c.RefreshInterval
}

func (c DomainConfig) GetRefreshInterval() time.Duration {
	return c.RefreshInterval
}
