package domainguard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"txrisk-engine/internal/adapter/storage/memory"
	"txrisk-engine/internal/config"
	"txrisk-engine/internal/domain"
	"txrisk-engine/internal/domain/entity"
)

const (
	phishingURL = "https://lists/phishing.json"
	rdapURL     = "https://rdap/"
)

type stubFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
}

func (f *stubFetcher) set(url, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[url] = body
}

func (f *stubFetcher) drop(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.bodies, url)
}

func (f *stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.bodies[url]; ok {
		return []byte(b), nil
	}
	return nil, errors.New("no route")
}

type decisionStore struct {
	mu        sync.Mutex
	decisions map[string]entity.DomainDecision
}

func newDecisionStore() *decisionStore {
	return &decisionStore{decisions: make(map[string]entity.DomainDecision)}
}

func (s *decisionStore) LoadBlocklist(context.Context) ([]string, error) {
	return nil, domain.ErrSnapshotNotFound
}
func (s *decisionStore) SaveBlocklist(context.Context, []string) error { return nil }
func (s *decisionStore) Close() error { return nil }

func (s *decisionStore) LoadDomainDecision(_ context.Context, host string) (entity.DomainDecision, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.decisions[host]
	return d, ok, nil
}

func (s *decisionStore) SaveDomainDecision(_ context.Context, d entity.DomainDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions[d.Domain] = d
	return nil
}

func testConfig() config.DomainConfig {
	return config.DomainConfig{
		PhishingListURL:   phishingURL,
		RDAPURL:           rdapURL,
		MinAgeDays:        7,
		EntropyThreshold:  4.5,
		EntropyMinLength:  8,
		KeywordMinLength:  20,
		Keywords:          []string{"verify", "wallet", "airdrop", "claim"},
		Protected:         []string{"metamask.io", "uniswap.org", "opensea.io"},
		LookupTimeout:     time.Second,
		TyposquatDistance: 2,
	}
}

func newGuard(f *stubFetcher, store *decisionStore) *Guard {
	cache := memory.NewCacheRepository(config.CacheConfig{DefaultExpiration: time.Minute, CleanupInterval: time.Minute}, zap.NewNop())
	g := New(testConfig(), f, cache, store, nil, zap.NewNop())
	g.now = func() time.Time { return time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC) }
	return g
}

func TestIsTyposquat(t *testing.T) {
	g := newGuard(&stubFetcher{bodies: map[string]string{}}, newDecisionStore())

	tests := []struct {
		host   string
		target string
		squat  bool
	}{
		{host: "metamask.io", squat: false},
		{host: "www.opensea.io", squat: false},
		{host: "app.uniswap.org", squat: false},
		{host: "metamsk.io", target: "metamask.io", squat: true},
		{host: "unlswap.org", target: "uniswap.org", squat: true},
		{host: "login.uniswaap.org", target: "uniswap.org", squat: true},
		{host: "example.com", squat: false},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			target, squat := g.IsTyposquat(tt.host)
			assert.Equal(t, tt.squat, squat)
			assert.Equal(t, tt.target, target)
		})
	}
}

func TestIsPhishing_ListIncludesParents(t *testing.T) {
	f := &stubFetcher{bodies: map[string]string{phishingURL: `{"blacklist":["evil-phish.com"],"whitelist":[]}`}}
	g := newGuard(f, newDecisionStore())
	require.NoError(t, g.RefreshPhishingList(context.Background()))

	flagged, reasons := g.IsPhishing(context.Background(), "login.evil-phish.com")
	assert.True(t, flagged)
	assert.Contains(t, reasons, "domain is on the phishing blocklist")

	f.drop(phishingURL)
	err := g.RefreshPhishingList(context.Background())
	assert.ErrorIs(t, err, domain.ErrFeedUnavailable)

	flagged, _ = g.IsPhishing(context.Background(), "evil-phish.com")
	assert.True(t, flagged, "failed refresh keeps the previous list")
}

func TestIsPhishing_WhitelistOverridesParentListing(t *testing.T) {
	f := &stubFetcher{bodies: map[string]string{
		phishingURL: `{"blacklist":["evil-phish.com"],"whitelist":["docs.evil-phish.com"]}`,
	}}
	g := newGuard(f, newDecisionStore())
	require.NoError(t, g.RefreshPhishingList(context.Background()))
	ctx := context.Background()

	flagged, _ := g.IsPhishing(ctx, "docs.evil-phish.com")
	assert.False(t, flagged)

	flagged, _ = g.IsPhishing(ctx, "api.docs.evil-phish.com")
	assert.False(t, flagged, "whitelisting covers subdomains")

	flagged, reasons := g.IsPhishing(ctx, "login.evil-phish.com")
	assert.True(t, flagged)
	assert.Contains(t, reasons, "domain is on the phishing blocklist")

	verdict := g.CheckNavigation(ctx, "https://docs.evil-phish.com/start")
	assert.Equal(t, entity.NavigationAllow, verdict.Action)
	g.pending.Wait()
}

func TestIsPhishing_Heuristics(t *testing.T) {
	g := newGuard(&stubFetcher{bodies: map[string]string{}}, newDecisionStore())
	ctx := context.Background()

	flagged, reasons := g.IsPhishing(ctx, "x7qk9z2mvw4rjb8tn5yhcfp3.com")
	assert.True(t, flagged)
	require.Len(t, reasons, 1)
	assert.Contains(t, reasons[0], "entropy")

	flagged, reasons = g.IsPhishing(ctx, "claim-airdrop-rewards-now.com")
	assert.True(t, flagged)
	require.Len(t, reasons, 1)
	assert.Contains(t, reasons[0], "airdrop")

	flagged, _ = g.IsPhishing(ctx, "wallet.io")
	assert.False(t, flagged, "keyword on a short domain")

	flagged, _ = g.IsPhishing(ctx, "example.com")
	assert.False(t, flagged)

	flagged, _ = g.IsPhishing(ctx, "verify-your-wallet-now.metamask.io")
	assert.False(t, flagged, "protected subdomains are never flagged")

	g.pending.Wait()
}

func TestCheckNavigation_RegistrationAgeIsEventuallyConsistent(t *testing.T) {
	f := &stubFetcher{bodies: map[string]string{
		rdapURL + "newdomain.xyz": `{"events":[{"eventAction":"registration","eventDate":"2026-01-08T00:00:00Z"}]}`,
		rdapURL + "olddomain.xyz": `{"events":[{"eventAction":"last changed","eventDate":"2025-12-01T00:00:00Z"},{"eventAction":"registration","eventDate":"2019-03-01T00:00:00Z"}]}`,
	}}
	store := newDecisionStore()
	g := newGuard(f, store)
	ctx := context.Background()

	first := g.CheckNavigation(ctx, "https://newdomain.xyz/login")
	assert.Equal(t, entity.NavigationAllow, first.Action, "first visit proceeds while the lookup runs")
	g.pending.Wait()

	second := g.CheckNavigation(ctx, "https://app.newdomain.xyz/")
	assert.Equal(t, entity.NavigationBlock, second.Action)
	require.Len(t, second.Reasons, 1)
	assert.Contains(t, second.Reasons[0], "registered 2 days ago")

	g.CheckNavigation(ctx, "olddomain.xyz")
	g.pending.Wait()
	assert.Equal(t, entity.NavigationAllow, g.CheckNavigation(ctx, "olddomain.xyz").Action)

	saved, ok, err := store.LoadDomainDecision(ctx, "newdomain.xyz")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, saved.Blocked)
	require.NotNil(t, saved.RegistrationAgeDays)
	assert.Equal(t, 2, *saved.RegistrationAgeDays)

	// A fresh process rehydrates the decision without another lookup.
	f.drop(rdapURL + "newdomain.xyz")
	restarted := newGuard(f, store)
	assert.Equal(t, entity.NavigationBlock, restarted.CheckNavigation(ctx, "newdomain.xyz").Action)
}

func TestCheckNavigation_Redirect(t *testing.T) {
	g := newGuard(&stubFetcher{bodies: map[string]string{}}, newDecisionStore())

	v := g.CheckNavigation(context.Background(), "https://www.metamsk.io/download")
	assert.Equal(t, entity.NavigationRedirect, v.Action)
	assert.Equal(t, "metamsk.io", v.Domain)
	assert.Equal(t, "metamask.io", v.SuggestedDomain)

	v = g.CheckNavigation(context.Background(), "https://metamask.io/")
	assert.Equal(t, entity.NavigationAllow, v.Action)

	v = g.CheckNavigation(context.Background(), "localhost")
	assert.Equal(t, entity.NavigationAllow, v.Action)
	assert.Empty(t, v.Domain)
	g.pending.Wait()
}

func TestEntropyAndLabels(t *testing.T) {
	assert.Zero(t, Entropy("aaaa"))
	assert.InDelta(t, 1.0, Entropy("abab"), 1e-9)
	assert.Equal(t, "my-wallet", domainLabel("login.my-wallet.co.uk"))
	assert.Equal(t, []string{"a.b.example.com", "b.example.com", "example.com"}, parentDomains("a.b.example.com"))

	host, ok := Hostname("  HTTPS://WWW.Example.COM.:8443/path?q=1 ")
	require.True(t, ok)
	assert.Equal(t, "example.com", host)
}
