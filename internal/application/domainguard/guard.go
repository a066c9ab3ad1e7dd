// Package domainguard classifies page navigations as typosquats or phishing.
package domainguard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"txrisk-engine/internal/adapter/feed"
	"txrisk-engine/internal/application/port"
	"txrisk-engine/internal/config"
	"txrisk-engine/internal/domain"
	"txrisk-engine/internal/domain/entity"
	domainRepo "txrisk-engine/internal/domain/repository"
	domainService "txrisk-engine/internal/domain/service"
	"txrisk-engine/internal/metrics"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Compile-time check
var _ port.NavigationService = (*Guard)(nil)

const (
	defaultTyposquatDistance = 2
	defaultLookupTimeout     = 5 * time.Second
	refreshTimeout           = time.Minute
)

// Guard implements port.NavigationService.
type Guard struct {
	cfg     config.DomainConfig
	fetcher domainService.FeedFetcher
	cache   domainRepo.CacheRepository
	store   domainRepo.SnapshotStore
	metrics *metrics.Metrics
	logger  *zap.Logger

	protected []string
	keywords  []string

	mu       sync.RWMutex
	phishing map[string]struct{}
	allowed  map[string]struct{}

	lookups singleflight.Group
	pending sync.WaitGroup
	bgCtx   context.Context
	now     func() time.Time

	isRefreshing *atomic.Bool
}

// New creates a navigation guard. Start must be called before serving to
// load the phishing list and bind background lookups to the application context.
func New(
	cfg config.DomainConfig,
	fetcher domainService.FeedFetcher,
	cache domainRepo.CacheRepository,
	store domainRepo.SnapshotStore,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Guard {
	g := &Guard{
		cfg:          cfg,
		fetcher:      fetcher,
		cache:        cache,
		store:        store,
		metrics:      m,
		logger:       logger.Named("DomainGuard"),
		phishing:     make(map[string]struct{}),
		allowed:      make(map[string]struct{}),
		bgCtx:        context.Background(),
		now:          time.Now,
		isRefreshing: new(atomic.Bool),
	}
	for _, p := range cfg.Protected {
		if host := normalizeHost(p); host != "" {
			g.protected = append(g.protected, host)
		}
	}
	for _, k := range cfg.Keywords {
		if kw := strings.ToLower(strings.TrimSpace(k)); kw != "" {
			g.keywords = append(g.keywords, kw)
		}
	}
	return g
}

// CheckNavigation implements port.NavigationService.
func (g *Guard) CheckNavigation(ctx context.Context, rawURL string) entity.NavigationVerdict {
	host, ok := Hostname(rawURL)
	if !ok {
		g.metrics.Navigation(string(entity.NavigationAllow))
		return entity.NavigationVerdict{Action: entity.NavigationAllow}
	}

	verdict := entity.NavigationVerdict{
		Domain:       host,
		Action:       entity.NavigationAllow,
		EntropyScore: Entropy(domainLabel(host)),
	}

	if target, squat := g.IsTyposquat(host); squat {
		verdict.Action = entity.NavigationRedirect
		verdict.SuggestedDomain = target
		verdict.Reasons = []string{fmt.Sprintf("%s imitates %s", host, target)}
	} else if phishing, reasons := g.IsPhishing(ctx, host); phishing {
		verdict.Action = entity.NavigationBlock
		verdict.Reasons = reasons
	}

	if verdict.Action != entity.NavigationAllow {
		g.logger.Info("Navigation flagged",
			zap.String("domain", host),
			zap.String("action", string(verdict.Action)),
			zap.Strings("reasons", verdict.Reasons))
	}
	g.metrics.Navigation(string(verdict.Action))
	return verdict
}

// IsTyposquat reports whether host is a near miss (0 < distance <= max) of a
// protected domain and returns that domain.
func (g *Guard) IsTyposquat(host string) (string, bool) {
	host = normalizeHost(host)
	if host == "" || g.isProtected(host) {
		return "", false
	}

	candidates := []string{host}
	if reg := registrableDomain(host); reg != host {
		candidates = append(candidates, reg)
	}

	limit := g.cfg.TyposquatDistance
	if limit <= 0 {
		limit = defaultTyposquatDistance
	}
	for _, target := range g.protected {
		for _, c := range candidates {
			if d := levenshtein.ComputeDistance(c, target); d > 0 && d <= limit {
				return target, true
			}
		}
	}
	return "", false
}

// IsPhishing runs the list, entropy, keyword and registration-age checks.
// Hosts under a whitelisted domain are never flagged. The age check only
// answers from cache; an unknown domain schedules a background lookup and is
// not flagged on this visit.
func (g *Guard) IsPhishing(ctx context.Context, host string) (bool, []string) {
	host = normalizeHost(host)
	if host == "" || g.isProtected(host) || g.whitelisted(host) {
		return false, nil
	}

	var reasons []string
	if g.listed(host) {
		reasons = append(reasons, "domain is on the phishing blocklist")
	}

	label := domainLabel(host)
	if utf8.RuneCountInString(label) >= g.cfg.EntropyMinLength {
		if e := Entropy(label); e > g.cfg.EntropyThreshold {
			reasons = append(reasons, fmt.Sprintf("randomly generated looking name (entropy %.2f)", e))
		}
	}

	if kw, ok := g.suspiciousKeyword(host); ok {
		reasons = append(reasons, fmt.Sprintf("long domain containing %q", kw))
	}

	reg := registrableDomain(host)
	if d, ok := g.cachedAgeDecision(ctx, reg); ok {
		if d.Blocked {
			reasons = append(reasons, fmt.Sprintf("domain registered %d days ago", *d.RegistrationAgeDays))
		}
	} else {
		g.resolveAgeAsync(reg, host)
	}

	return len(reasons) > 0, reasons
}

// RefreshPhishingList replaces the phishing-domain set. The current list is
// kept when the fetch or parse fails.
func (g *Guard) RefreshPhishingList(ctx context.Context) error {
	if g.cfg.PhishingListURL == "" {
		return nil
	}
	body, err := g.fetcher.Fetch(ctx, g.cfg.PhishingListURL)
	if err != nil {
		return fmt.Errorf("%w: phishing list: %w", domain.ErrFeedUnavailable, err)
	}
	list, err := feed.NormalizePhishingList(body)
	if err != nil {
		return err
	}
	if len(list.Blocked) == 0 {
		return fmt.Errorf("%w: phishing list is empty", domain.ErrFeedUnavailable)
	}

	blocked := hostSet(list.Blocked)
	allowed := hostSet(list.Allowed)

	g.mu.Lock()
	g.phishing = blocked
	g.allowed = allowed
	g.mu.Unlock()

	g.logger.Info("Phishing list refreshed", zap.Int("domains", len(blocked)), zap.Int("whitelisted", len(allowed)))
	return nil
}

func hostSet(hosts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		if h = normalizeHost(h); h != "" {
			set[h] = struct{}{}
		}
	}
	return set
}

// Start binds background lookups to rootCtx and keeps the phishing list
// fresh until rootCtx is cancelled.
func (g *Guard) Start(rootCtx context.Context) {
	g.bgCtx = rootCtx
	go g.runRefresher(rootCtx)
}

func (g *Guard) runRefresher(rootCtx context.Context) {
	g.triggerRefresh(rootCtx)

	interval := g.cfg.GetRefreshInterval()
	if interval <= 0 {
		g.logger.Info("Periodic phishing list refresh disabled (interval <= 0)")
		return
	}

	g.logger.Info("Starting phishing list refresher", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.triggerRefresh(rootCtx)
		case <-rootCtx.Done():
			g.logger.Info("Phishing list refresher stopping due to context cancellation.")
			return
		}
	}
}

func (g *Guard) triggerRefresh(rootCtx context.Context) {
	if !g.isRefreshing.CompareAndSwap(false, true) {
		g.logger.Debug("Phishing list refresh already in progress")
		return
	}
	defer g.isRefreshing.Store(false)

	ctx, cancel := context.WithTimeout(rootCtx, refreshTimeout)
	defer cancel()
	if err := g.RefreshPhishingList(ctx); err != nil {
		if rootCtx.Err() != nil {
			return
		}
		g.logger.Warn("Phishing list refresh failed, keeping previous list", zap.Error(err))
	}
}

func (g *Guard) isProtected(host string) bool {
	for _, p := range g.protected {
		if host == p || strings.HasSuffix(host, "."+p) {
			return true
		}
	}
	return false
}

func (g *Guard) whitelisted(host string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, d := range parentDomains(host) {
		if _, ok := g.allowed[d]; ok {
			return true
		}
	}
	return false
}

func (g *Guard) listed(host string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, d := range parentDomains(host) {
		if _, ok := g.phishing[d]; ok {
			return true
		}
	}
	return false
}

func (g *Guard) suspiciousKeyword(host string) (string, bool) {
	if len(host) <= g.cfg.KeywordMinLength {
		return "", false
	}
	for _, kw := range g.keywords {
		if strings.Contains(host, kw) {
			return kw, true
		}
	}
	return "", false
}

func (g *Guard) lookupTimeout() time.Duration {
	if g.cfg.LookupTimeout <= 0 {
		return defaultLookupTimeout
	}
	return g.cfg.LookupTimeout
}
