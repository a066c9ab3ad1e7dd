// Package file persists engine snapshots as a single JSON document on disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"txrisk-engine/internal/domain"
	"txrisk-engine/internal/domain/entity"
	domainRepo "txrisk-engine/internal/domain/repository"

	"go.uber.org/zap"
)

// Compile-time check
var _ domainRepo.SnapshotStore = (*SnapshotStore)(nil)

type document struct {
	Blocklist      []string                         `json:"blocklist"`
	BlocklistSaved time.Time                        `json:"blocklistSavedAt,omitempty"`
	Domains        map[string]entity.DomainDecision `json:"domains"`
}

// SnapshotStore keeps the document in memory and rewrites the file
// atomically (temp file + rename) on every save.
type SnapshotStore struct {
	mu     sync.Mutex
	path   string
	doc    document
	logger *zap.Logger
}

// NewSnapshotStore opens (or lazily creates) the snapshot file at path.
func NewSnapshotStore(path string, logger *zap.Logger) (*SnapshotStore, error) {
	s := &SnapshotStore{
		path:   path,
		doc:    document{Domains: map[string]entity.DomainDecision{}},
		logger: logger.Named("FileSnapshotStore"),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Info("No snapshot file yet", zap.String("path", path))
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	if s.doc.Domains == nil {
		s.doc.Domains = map[string]entity.DomainDecision{}
	}
	s.logger.Info("Loaded snapshot",
		zap.String("path", path),
		zap.Int("blocklist", len(s.doc.Blocklist)),
		zap.Int("domains", len(s.doc.Domains)))
	return s, nil
}

// LoadBlocklist implements domainRepo.SnapshotStore.
func (s *SnapshotStore) LoadBlocklist(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.doc.Blocklist) == 0 {
		return nil, domain.ErrSnapshotNotFound
	}
	out := make([]string, len(s.doc.Blocklist))
	copy(out, s.doc.Blocklist)
	return out, nil
}

// SaveBlocklist implements domainRepo.SnapshotStore.
func (s *SnapshotStore) SaveBlocklist(_ context.Context, addresses []string) error {
	list := make([]string, len(addresses))
	copy(list, addresses)
	sort.Strings(list)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Blocklist = list
	s.doc.BlocklistSaved = time.Now().UTC()
	return s.flush()
}

// LoadDomainDecision implements domainRepo.SnapshotStore.
func (s *SnapshotStore) LoadDomainDecision(_ context.Context, host string) (entity.DomainDecision, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.doc.Domains[strings.ToLower(host)]
	return d, ok, nil
}

// SaveDomainDecision implements domainRepo.SnapshotStore.
func (s *SnapshotStore) SaveDomainDecision(_ context.Context, decision entity.DomainDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Domains[strings.ToLower(decision.Domain)] = decision
	return s.flush()
}

// Close implements domainRepo.SnapshotStore.
func (s *SnapshotStore) Close() error {
	return nil
}

// flush must be called with s.mu held.
func (s *SnapshotStore) flush() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace snapshot %s: %w", s.path, err)
	}

	s.logger.Debug("Snapshot written", zap.String("path", s.path), zap.Int("bytes", len(data)))
	return nil
}
