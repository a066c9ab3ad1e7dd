package domainguard

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"txrisk-engine/internal/domain/entity"
	"txrisk-engine/internal/pkg/apperrors"

	"go.uber.org/zap"
)

type rdapDoc struct {
	Events []rdapEvent `json:"events"`
}

type rdapEvent struct {
	EventAction string `json:"eventAction"`
	EventDate   string `json:"eventDate"`
}

// registrationAge asks the RDAP service how many whole days ago domain was registered.
func (g *Guard) registrationAge(ctx context.Context, domain string) (int, error) {
	body, err := g.fetcher.Fetch(ctx, g.cfg.RDAPURL+domain)
	if err != nil {
		return 0, err
	}

	var doc rdapDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return 0, fmt.Errorf("%w: invalid rdap document for %s: %v", apperrors.ErrExternalServiceFailure, domain, err)
	}

	for _, ev := range doc.Events {
		if !strings.EqualFold(ev.EventAction, "registration") {
			continue
		}
		registered, err := time.Parse(time.RFC3339, ev.EventDate)
		if err != nil {
			return 0, fmt.Errorf("%w: bad registration date %q: %v", apperrors.ErrExternalServiceFailure, ev.EventDate, err)
		}
		days := int(g.now().Sub(registered).Hours() / 24)
		return max(days, 0), nil
	}
	return 0, fmt.Errorf("%w: no registration event for %s", apperrors.ErrNotFound, domain)
}

// cachedAgeDecision returns the resolved age decision for domain from memory,
// falling back to the durable store.
func (g *Guard) cachedAgeDecision(ctx context.Context, domain string) (entity.DomainDecision, bool) {
	if d, ok := g.cache.GetDomainDecision(ctx, domain); ok && d.RegistrationAgeDays != nil {
		return d, true
	}
	if g.store == nil {
		return entity.DomainDecision{}, false
	}
	d, ok, err := g.store.LoadDomainDecision(ctx, domain)
	if err != nil {
		g.logger.Warn("Failed to load domain decision", zap.String("domain", domain), zap.Error(err))
		return entity.DomainDecision{}, false
	}
	if !ok || d.RegistrationAgeDays == nil {
		return entity.DomainDecision{}, false
	}
	g.cache.SetDomainDecision(ctx, d)
	return d, true
}

// resolveAgeAsync runs the registration lookup for domain in the background.
// Concurrent visits to the same domain share one lookup.
func (g *Guard) resolveAgeAsync(domain, host string) {
	g.pending.Add(1)
	go func() {
		defer g.pending.Done()
		_, err, shared := g.lookups.Do(domain, func() (any, error) {
			return g.resolveAge(domain, host)
		})
		if err != nil && !shared {
			g.logger.Debug("Registration lookup failed", zap.String("domain", domain), zap.Error(err))
		}
	}()
}

func (g *Guard) resolveAge(domain, host string) (entity.DomainDecision, error) {
	ctx, cancel := context.WithTimeout(g.bgCtx, g.lookupTimeout())
	defer cancel()

	if d, ok := g.cache.GetDomainDecision(ctx, domain); ok && d.RegistrationAgeDays != nil {
		return d, nil
	}

	age, err := g.registrationAge(ctx, domain)
	if err != nil {
		return entity.DomainDecision{}, err
	}

	decision := entity.DomainDecision{
		Domain:              domain,
		IsBlocklisted:       g.listed(host),
		EntropyScore:        Entropy(domainLabel(host)),
		RegistrationAgeDays: &age,
		Blocked:             age < g.cfg.MinAgeDays,
		ResolvedAt:          g.now(),
	}
	g.cache.SetDomainDecision(ctx, decision)
	if g.store != nil {
		if err := g.store.SaveDomainDecision(ctx, decision); err != nil {
			g.logger.Error("Failed to persist domain decision", zap.String("domain", domain), zap.Error(err))
		}
	}
	g.logger.Info("Domain registration age resolved",
		zap.String("domain", domain),
		zap.Int("ageDays", age),
		zap.Bool("blocked", decision.Blocked))
	return decision, nil
}
