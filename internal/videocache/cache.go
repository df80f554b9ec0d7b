// Package videocache caches resolved video metadata across two tiers.
package videocache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/curator/metadata-resolver/internal/metrics"
	"github.com/curator/metadata-resolver/internal/video"
)

// ErrNotCached marks a durable-tier miss. Absence and corruption of the
// durable document are treated identically.
var ErrNotCached = errors.New("no cached entry")

// Entry is one whole-snapshot cache value. Entries are replaced, never
// merged.
type Entry struct {
	Records   []video.Record `json:"records"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// Valid reports whether the entry is still within its TTL.
func (e Entry) Valid(now time.Time, ttl time.Duration) bool {
	if e.FetchedAt.IsZero() {
		return false
	}
	return now.Sub(e.FetchedAt) < ttl
}

// Store is the durable cache tier: a single JSON document that survives
// process restarts.
type Store interface {
	Load(ctx context.Context) (Entry, error)
	Save(ctx context.Context, entry Entry) error
}

// BatchLister resolves the configured set to fresh records.
type BatchLister interface {
	FetchBatch(ctx context.Context, items []video.ConfigItem) ([]video.Record, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Service owns both cache tiers. All metadata reads go through Get; writes
// are whole-snapshot replacements, so concurrent refreshes race to one of two
// valid snapshots and never to a corrupt hybrid.
type Service struct {
	mu    sync.RWMutex
	entry *Entry // in-process tier; nil until first populate

	store  Store
	items  []video.ConfigItem
	batch  BatchLister
	ttl    time.Duration
	clock  Clock
	logger *zap.Logger
}

// NewService constructs the cache service. store may be nil to run with the
// in-process tier only.
func NewService(store Store, batch BatchLister, items []video.ConfigItem, ttl time.Duration, clock Clock, logger *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		items:  items,
		batch:  batch,
		ttl:    ttl,
		clock:  clock,
		logger: logger,
	}
}

// Get returns the cached records, resolving a fresh batch on miss, staleness
// or forced refresh. Read path: in-process tier, durable tier (which seeds
// the in-process tier), then a full batch resolution stored into both tiers.
func (s *Service) Get(ctx context.Context, forceRefresh bool) ([]video.Record, error) {
	now := s.clock.Now()

	if !forceRefresh {
		if entry := s.snapshot(); entry != nil && entry.Valid(now, s.ttl) {
			metrics.ObserveCacheRead("memory", true)
			return entry.Records, nil
		}
		metrics.ObserveCacheRead("memory", false)

		if s.store != nil {
			entry, err := s.store.Load(ctx)
			if err == nil && entry.Valid(now, s.ttl) {
				metrics.ObserveCacheRead("durable", true)
				s.replace(entry)
				return entry.Records, nil
			}
			if err != nil && !errors.Is(err, ErrNotCached) {
				s.logger.Warn("durable cache read failed", zap.Error(err))
			}
			metrics.ObserveCacheRead("durable", false)
		}
	}

	return s.refresh(ctx)
}

// RefreshInBackground triggers a forced refresh without blocking the caller.
// Failures are logged, never surfaced.
func (s *Service) RefreshInBackground(ctx context.Context) {
	go func() {
		// Detach from the request's cancellation but keep a bound.
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Minute)
		defer cancel()
		if _, err := s.refresh(refreshCtx); err != nil {
			s.logger.Warn("background cache refresh failed", zap.Error(err))
		}
	}()
}

// Invalidate drops the in-process tier; the next read consults the durable
// tier or re-resolves.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.entry = nil
	s.mu.Unlock()
}

func (s *Service) refresh(ctx context.Context) ([]video.Record, error) {
	records, err := s.batch.FetchBatch(ctx, s.items)
	if err != nil {
		return nil, fmt.Errorf("resolve video batch: %w", err)
	}
	entry := Entry{Records: records, FetchedAt: s.clock.Now().UTC()}
	s.replace(entry)

	if s.store != nil {
		if err := s.store.Save(ctx, entry); err != nil {
			// The in-process tier already has the snapshot; a durable
			// write failure only costs persistence across restarts.
			s.logger.Warn("durable cache write failed", zap.Error(err))
		}
	}
	return records, nil
}

func (s *Service) snapshot() *Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entry
}

func (s *Service) replace(entry Entry) {
	s.mu.Lock()
	s.entry = &entry
	s.mu.Unlock()
}
