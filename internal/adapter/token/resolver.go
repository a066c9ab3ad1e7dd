// Package token reads ERC-20 metadata and NFT images through the RPC swarm.
package token

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"txrisk-engine/internal/adapter/decoder"
	"txrisk-engine/internal/adapter/feed"
	"txrisk-engine/internal/domain"
	"txrisk-engine/internal/domain/entity"
	domainRepo "txrisk-engine/internal/domain/repository"
	domainService "txrisk-engine/internal/domain/service"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Compile-time check
var _ domainService.TokenResolver = (*Resolver)(nil)

const (
	metaTTL        = 24 * time.Hour
	unknownSymbol  = "UNKNOWN"
	defaultDecimal = 18
	ipfsGateway    = "https://ipfs.io/ipfs/"
	defaultTimeout = 2500 * time.Millisecond

	// MaxMetadataSize caps the NFT metadata document fetched from a token URI.
	MaxMetadataSize = 1 << 20
)

var stringArgs = func() abi.Arguments {
	t, err := abi.NewType("string", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: t}}
}()

// Resolver implements domainService.TokenResolver.
type Resolver struct {
	racer        domainService.RPCRacer
	registry     domainRepo.ChainRegistry
	cache        domainRepo.CacheRepository
	fetcher      domainService.FeedFetcher
	fetchTimeout time.Duration
	logger       *zap.Logger
}

// NewResolver creates a new token metadata resolver. fetcher loads NFT
// metadata documents and each load is bounded by fetchTimeout.
func NewResolver(
	racer domainService.RPCRacer,
	registry domainRepo.ChainRegistry,
	cache domainRepo.CacheRepository,
	fetcher domainService.FeedFetcher,
	fetchTimeout time.Duration,
	logger *zap.Logger,
) *Resolver {
	if fetchTimeout <= 0 {
		fetchTimeout = defaultTimeout
	}
	return &Resolver{
		racer:        racer,
		registry:     registry,
		cache:        cache,
		fetcher:      fetcher,
		fetchTimeout: fetchTimeout,
		logger:       logger.Named("TokenResolver"),
	}
}

// Metadata returns symbol and decimals for token. The zero address stands for
// the chain's native currency. Lookups that fail fall back to UNKNOWN/18 and
// are not cached.
func (r *Resolver) Metadata(ctx context.Context, chainID, token string) entity.TokenMeta {
	addr, ok := entity.NormalizeAddress(token)
	if !ok || addr == entity.ZeroAddress {
		chain := r.registry.ConfigFor(chainID)
		return entity.TokenMeta{Symbol: chain.NativeSymbol, Decimals: chain.NativeDecimals}
	}

	if meta, hit := r.cache.GetTokenMeta(ctx, chainID, addr); hit {
		return meta
	}

	var (
		symbol     string
		decimals   int
		symbolOK   bool
		decimalsOK bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		symbol, err = decodeSymbol(r.call(gctx, chainID, addr, decoder.SymbolSelector))
		symbolOK = err == nil
		return nil
	})
	g.Go(func() error {
		var err error
		decimals, err = decodeDecimals(r.call(gctx, chainID, addr, decoder.DecimalsSelector))
		decimalsOK = err == nil
		return nil
	})
	_ = g.Wait()

	meta := entity.TokenMeta{Symbol: unknownSymbol, Decimals: defaultDecimal}
	if symbolOK {
		meta.Symbol = symbol
	}
	if decimalsOK {
		meta.Decimals = decimals
	}
	if symbolOK && decimalsOK {
		r.cache.SetTokenMeta(ctx, chainID, addr, meta, metaTTL)
	} else {
		r.logger.Debug("Incomplete token metadata",
			zap.String("chainId", chainID),
			zap.String("token", addr),
			zap.Bool("symbol", symbolOK),
			zap.Bool("decimals", decimalsOK))
	}
	return meta
}

// Image resolves the image URL of an NFT via tokenURI(id), falling back to
// the ERC-1155 uri(id). Returns "" when nothing could be resolved.
func (r *Resolver) Image(ctx context.Context, chainID, token string, tokenID *big.Int) string {
	addr, ok := entity.NormalizeAddress(token)
	if !ok || tokenID == nil || tokenID.Sign() < 0 {
		return ""
	}

	idWord := hexutil.Encode(common.LeftPadBytes(tokenID.Bytes(), 32))[2:]
	uri, err := decodeString(r.call(ctx, chainID, addr, decoder.TokenURISelector+idWord))
	if err != nil || uri == "" {
		uri, err = decodeString(r.call(ctx, chainID, addr, decoder.URISelector+idWord))
		if err != nil || uri == "" {
			return ""
		}
		uri = strings.ReplaceAll(uri, "{id}", idWord)
	}

	metadata, err := r.loadMetadata(ctx, uri)
	if err != nil {
		r.logger.Debug("Failed to load NFT metadata", zap.String("uri", uri), zap.Error(err))
		return ""
	}

	var doc struct {
		Image    string `json:"image"`
		ImageURL string `json:"image_url"`
	}
	if err := json.Unmarshal(metadata, &doc); err != nil {
		return ""
	}
	if doc.Image == "" {
		doc.Image = doc.ImageURL
	}
	image := GatewayURL(doc.Image)
	if !strings.HasPrefix(image, "https://") && !strings.HasPrefix(image, "data:image/") {
		return ""
	}
	return image
}

func (r *Resolver) loadMetadata(ctx context.Context, uri string) ([]byte, error) {
	const inlinePrefix = "data:application/json;base64,"
	if strings.HasPrefix(uri, inlinePrefix) {
		return base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, inlinePrefix))
	}
	if rest, ok := strings.CutPrefix(uri, "data:application/json,"); ok {
		return []byte(rest), nil
	}
	target := GatewayURL(uri)
	if err := feed.CheckPublicURL(target); err != nil {
		return nil, fmt.Errorf("refusing metadata uri %q: %w", uri, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()
	body, err := r.fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	if len(body) > MaxMetadataSize {
		return nil, fmt.Errorf("%w: metadata document of %d bytes", domain.ErrDecodeUnsupported, len(body))
	}
	return body, nil
}

func (r *Resolver) call(ctx context.Context, chainID, to, data string) []byte {
	params := []any{map[string]string{"to": to, "data": data}, "latest"}
	raw := r.racer.Race(ctx, chainID, "eth_call", params, false)
	if raw == nil {
		return nil
	}
	var hexResult string
	if err := json.Unmarshal(raw, &hexResult); err != nil {
		return nil
	}
	out, err := hexutil.Decode(hexResult)
	if err != nil {
		return nil
	}
	return out
}

// GatewayURL rewrites ipfs:// URIs to an HTTP gateway.
func GatewayURL(uri string) string {
	uri = strings.TrimSpace(uri)
	if rest, ok := strings.CutPrefix(uri, "ipfs://"); ok {
		return ipfsGateway + strings.TrimPrefix(rest, "ipfs/")
	}
	return uri
}

func decodeString(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty return data", domain.ErrDecodeUnsupported)
	}
	values, err := stringArgs.Unpack(data)
	if err != nil || len(values) == 0 {
		return "", fmt.Errorf("%w: not an ABI string: %v", domain.ErrDecodeUnsupported, err)
	}
	s, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("%w: unexpected %T", domain.ErrDecodeUnsupported, values[0])
	}
	return s, nil
}

// decodeSymbol handles both string and legacy bytes32 symbols.
func decodeSymbol(data []byte) (string, error) {
	if s, err := decodeString(data); err == nil && s != "" {
		return s, nil
	}
	if len(data) == 32 {
		if s := strings.TrimRight(string(data), "\x00"); s != "" {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: symbol is neither string nor bytes32", domain.ErrDecodeUnsupported)
}

func decodeDecimals(data []byte) (int, error) {
	if len(data) < 32 {
		return 0, fmt.Errorf("%w: decimals word has %d bytes", domain.ErrDecodeUnsupported, len(data))
	}
	v := new(big.Int).SetBytes(data[:32])
	if !v.IsInt64() || v.Int64() > 77 {
		return 0, fmt.Errorf("%w: decimals %s out of range", domain.ErrDecodeUnsupported, v)
	}
	return int(v.Int64()), nil
}
