// Package blocklist maintains the monotonically growing set of known-malicious
// contract addresses.
package blocklist

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"txrisk-engine/internal/adapter/feed"
	"txrisk-engine/internal/application/port"
	"txrisk-engine/internal/config"
	"txrisk-engine/internal/domain"
	"txrisk-engine/internal/domain/entity"
	domainRepo "txrisk-engine/internal/domain/repository"
	domainService "txrisk-engine/internal/domain/service"
	"txrisk-engine/internal/metrics"
	"txrisk-engine/internal/pkg/apperrors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Compile-time checks
var (
	_ port.BlocklistService     = (*Manager)(nil)
	_ domainService.BlockChecker = (*Manager)(nil)
)

// Addresses blocked even when no feed or snapshot has ever been loaded.
var fallbackSeed = []string{
	"0xd90e2f925DA726b50C4Ed8D0Fb90Ad053324F31b",
	"0x722122dF12D4e14e13Ac3b6895a86e84145b6967",
	"0x910Cbd523D972eb0a6f4cAe4618aD62622b39DbF",
}

const refreshTimeout = time.Minute

// Manager implements port.BlocklistService. The set is never shrunk:
// refreshes union feed entries into it.
type Manager struct {
	cfg     config.BlocklistConfig
	fetcher domainService.FeedFetcher
	store   domainRepo.SnapshotStore
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu  sync.RWMutex
	set map[string]struct{}

	// persistMu orders snapshots so an older one never overwrites a newer one.
	persistMu sync.Mutex

	isRefreshing *atomic.Bool
}

// NewManager creates a manager seeded with the static fallback list and the
// configured seed.
func NewManager(
	cfg config.BlocklistConfig,
	fetcher domainService.FeedFetcher,
	store domainRepo.SnapshotStore,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Manager {
	mgr := &Manager{
		cfg:          cfg,
		fetcher:      fetcher,
		store:        store,
		metrics:      m,
		logger:       logger.Named("BlocklistManager"),
		set:          make(map[string]struct{}),
		isRefreshing: new(atomic.Bool),
	}
	added := mgr.merge(fallbackSeed)
	added += mgr.merge(cfg.Seed)
	mgr.logger.Info("Blocklist seeded", zap.Int("count", added))
	return mgr
}

// IsBlocked implements domainService.BlockChecker.
func (m *Manager) IsBlocked(address string) bool {
	addr, ok := entity.NormalizeAddress(address)
	if !ok {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, found := m.set[addr]
	return found
}

// Size returns the number of blocked addresses.
func (m *Manager) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.set)
}

// Add inserts a single address and persists immediately.
func (m *Manager) Add(ctx context.Context, address string) error {
	addr, ok := entity.NormalizeAddress(address)
	if !ok {
		return fmt.Errorf("%w: %q is not a contract address", apperrors.ErrInvalidInput, address)
	}
	if m.merge([]string{addr}) == 0 {
		return nil
	}
	m.logger.Info("Address added to blocklist", zap.String("address", addr))
	return m.Persist(ctx)
}

// Load rehydrates the set from the durable snapshot. A missing snapshot is not an error.
func (m *Manager) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	list, err := m.store.LoadBlocklist(ctx)
	if errors.Is(err, domain.ErrSnapshotNotFound) {
		m.logger.Info("No blocklist snapshot to rehydrate")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load blocklist snapshot: %w", err)
	}
	added := m.merge(list)
	m.logger.Info("Blocklist rehydrated from snapshot",
		zap.Int("snapshot", len(list)), zap.Int("added", added), zap.Int("size", m.Size()))
	return nil
}

// Persist writes the current set to the snapshot store.
func (m *Manager) Persist(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	list := m.snapshot()
	if err := m.store.SaveBlocklist(ctx, list); err != nil {
		m.logger.Error("Failed to persist blocklist", zap.Error(err))
		return fmt.Errorf("failed to persist blocklist: %w", err)
	}
	m.logger.Debug("Blocklist persisted", zap.Int("count", len(list)))
	return nil
}

// Refresh fetches every feed concurrently and unions the results into the
// set. When no feed could be read it rehydrates from the snapshot instead
// and reports domain.ErrFeedUnavailable.
func (m *Manager) Refresh(ctx context.Context) error {
	feeds := m.cfg.Feeds
	results := make([][]string, len(feeds))

	g, gctx := errgroup.WithContext(ctx)
	for i, url := range feeds {
		g.Go(func() error {
			body, err := m.fetcher.Fetch(gctx, url)
			if err != nil {
				m.logger.Warn("Blocklist feed fetch failed", zap.String("url", url), zap.Error(err))
				return nil
			}
			list, err := feed.NormalizeAddresses(body, m.logger)
			if err != nil {
				m.logger.Warn("Blocklist feed unreadable", zap.String("url", url), zap.Error(err))
				return nil
			}
			results[i] = list
			return nil
		})
	}
	_ = g.Wait()

	succeeded, added := 0, 0
	for _, list := range results {
		if list == nil {
			continue
		}
		succeeded++
		added += m.merge(list)
	}

	if succeeded == 0 {
		m.metrics.BlocklistRefresh("failed", m.Size())
		if err := m.Load(ctx); err != nil {
			m.logger.Error("Snapshot fallback failed", zap.Error(err))
		}
		return fmt.Errorf("%w: none of %d blocklist feeds could be read", domain.ErrFeedUnavailable, len(feeds))
	}

	m.metrics.BlocklistRefresh("ok", m.Size())
	m.logger.Info("Blocklist refreshed",
		zap.Int("feeds", succeeded), zap.Int("added", added), zap.Int("size", m.Size()))
	return m.Persist(ctx)
}

// Start rehydrates from the snapshot, refreshes once and then keeps
// refreshing on the configured interval until rootCtx is cancelled.
func (m *Manager) Start(rootCtx context.Context) {
	if err := m.Load(rootCtx); err != nil {
		m.logger.Warn("Initial blocklist rehydrate failed", zap.Error(err))
	}
	go m.runRefresher(rootCtx)
}

func (m *Manager) runRefresher(rootCtx context.Context) {
	m.triggerRefresh(rootCtx)

	interval := m.cfg.GetRefreshInterval()
	if interval <= 0 {
		m.logger.Info("Periodic blocklist refresh disabled (interval <= 0)")
		return
	}

	m.logger.Info("Starting blocklist refresher", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.triggerRefresh(rootCtx)
		case <-rootCtx.Done():
			m.logger.Info("Blocklist refresher stopping due to context cancellation.")
			return
		}
	}
}

func (m *Manager) triggerRefresh(rootCtx context.Context) {
	if !m.isRefreshing.CompareAndSwap(false, true) {
		m.logger.Debug("Blocklist refresh already in progress")
		return
	}
	defer m.isRefreshing.Store(false)

	ctx, cancel := context.WithTimeout(rootCtx, refreshTimeout)
	defer cancel()
	if err := m.Refresh(ctx); err != nil {
		if rootCtx.Err() != nil {
			m.logger.Warn("Blocklist refresh cancelled due to application shutdown")
			return
		}
		m.logger.Warn("Blocklist refresh degraded", zap.Error(err))
	}
}

// merge adds the well-formed addresses of list and returns how many were new.
func (m *Manager) merge(list []string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	added := 0
	for _, raw := range list {
		addr, ok := entity.NormalizeAddress(raw)
		if !ok {
			continue
		}
		if _, exists := m.set[addr]; exists {
			continue
		}
		m.set[addr] = struct{}{}
		added++
	}
	return added
}

func (m *Manager) snapshot() []string {
	m.mu.RLock()
	list := make([]string, 0, len(m.set))
	for addr := range m.set {
		list = append(list, addr)
	}
	m.mu.RUnlock()
	sort.Strings(list)
	return list
}
