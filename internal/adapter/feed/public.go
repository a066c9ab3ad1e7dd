package feed

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"txrisk-engine/internal/pkg/apperrors"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const publicDialTimeout = 5 * time.Second

// Carrier-grade NAT and benchmarking ranges are not covered by netip's helpers.
var nonPublicPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("198.18.0.0/15"),
}

// NewPublicClient creates a client for URLs chosen by untrusted parties, such
// as NFT metadata locations returned by a contract. It only fetches https URLs,
// only connects to public unicast addresses and refuses bodies larger than
// maxBodySize.
func NewPublicClient(maxBodySize int, logger *zap.Logger) *Client {
	c := NewClient(logger)
	c.client.MaxResponseBodySize = maxBodySize
	c.client.Dial = publicDial
	c.publicOnly = true
	c.logger = logger.Named("PublicFeedClient")
	return c
}

// CheckPublicURL rejects URLs that are not https or that name a loopback,
// private or link-local host literally.
func CheckPublicURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: unparsable url: %v", apperrors.ErrInvalidInput, err)
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return fmt.Errorf("%w: only https urls are fetched, got %q", apperrors.ErrInvalidInput, u.Scheme)
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return fmt.Errorf("%w: url has no host", apperrors.ErrInvalidInput)
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("%w: %s is not a public host", apperrors.ErrInvalidInput, host)
	}
	if ip, err := netip.ParseAddr(host); err == nil && !IsPublicAddr(ip) {
		return fmt.Errorf("%w: %s is not a public address", apperrors.ErrInvalidInput, ip)
	}
	return nil
}

// IsPublicAddr reports whether ip is a globally routable unicast address.
func IsPublicAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	if !ip.IsValid() || !ip.IsGlobalUnicast() || ip.IsPrivate() {
		return false
	}
	for _, p := range nonPublicPrefixes {
		if p.Contains(ip) {
			return false
		}
	}
	return true
}

// publicDial resolves addr and connects only when every resolved address is
// public, so DNS names pointing at internal hosts are refused too.
func publicDial(addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: bad dial address %q: %v", apperrors.ErrInvalidInput, addr, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publicDialTimeout)
	defer cancel()
	ips, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resolve %s: %v", apperrors.ErrExternalServiceFailure, host, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("%w: %s has no addresses", apperrors.ErrExternalServiceFailure, host)
	}
	for _, ip := range ips {
		if !IsPublicAddr(ip) {
			return nil, fmt.Errorf("%w: %s resolves to non-public address %s", apperrors.ErrInvalidInput, host, ip)
		}
	}
	return fasthttp.DialTimeout(net.JoinHostPort(ips[0].Unmap().String(), port), publicDialTimeout)
}
