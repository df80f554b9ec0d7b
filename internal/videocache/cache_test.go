package videocache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/curator/metadata-resolver/internal/video"
)

type movableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *movableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *movableClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingBatch struct {
	mu      sync.Mutex
	calls   int
	records []video.Record
	err     error
}

func (b *countingBatch) FetchBatch(context.Context, []video.ConfigItem) ([]video.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return b.records, b.err
}

func (b *countingBatch) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type memStore struct {
	mu    sync.Mutex
	entry *Entry
	saves int
	err   error
}

func (s *memStore) Load(context.Context) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Entry{}, s.err
	}
	if s.entry == nil {
		return Entry{}, ErrNotCached
	}
	return *s.entry, nil
}

func (s *memStore) Save(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entry = &entry
	s.saves++
	return nil
}

var cacheNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func someRecords() []video.Record {
	return []video.Record{{ExternalID: "vid11111111", Title: "Cached talk"}}
}

func TestService_Get_PopulatesBothTiers(t *testing.T) {
	t.Parallel()

	clock := &movableClock{now: cacheNow}
	batch := &countingBatch{records: someRecords()}
	store := &memStore{}
	svc := NewService(store, batch, nil, time.Hour, clock, zap.NewNop())

	records, err := svc.Get(context.Background(), false)

	require.NoError(t, err)
	require.Equal(t, someRecords(), records)
	require.Equal(t, 1, batch.Calls())
	require.NotNil(t, store.entry, "durable tier seeded")

	// A second read within the TTL is served from memory.
	records, err = svc.Get(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, someRecords(), records)
	require.Equal(t, 1, batch.Calls())
}

func TestService_Get_ExpiresAfterTTL(t *testing.T) {
	t.Parallel()

	clock := &movableClock{now: cacheNow}
	batch := &countingBatch{records: someRecords()}
	svc := NewService(nil, batch, nil, time.Hour, clock, zap.NewNop())

	_, err := svc.Get(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, 1, batch.Calls())

	clock.Advance(61 * time.Minute)
	_, err = svc.Get(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, 2, batch.Calls(), "stale entry forces re-resolution")
}

func TestService_Get_DurableTierSeedsMemory(t *testing.T) {
	t.Parallel()

	clock := &movableClock{now: cacheNow}
	batch := &countingBatch{records: nil}
	store := &memStore{entry: &Entry{Records: someRecords(), FetchedAt: cacheNow.Add(-10 * time.Minute)}}
	svc := NewService(store, batch, nil, time.Hour, clock, zap.NewNop())

	records, err := svc.Get(context.Background(), false)

	require.NoError(t, err)
	require.Equal(t, someRecords(), records)
	require.Equal(t, 0, batch.Calls(), "valid durable entry avoids provider traffic")
}

func TestService_Get_ForceRefreshBypassesTiers(t *testing.T) {
	t.Parallel()

	clock := &movableClock{now: cacheNow}
	batch := &countingBatch{records: someRecords()}
	store := &memStore{entry: &Entry{Records: []video.Record{{ExternalID: "old"}}, FetchedAt: cacheNow}}
	svc := NewService(store, batch, nil, time.Hour, clock, zap.NewNop())

	records, err := svc.Get(context.Background(), true)

	require.NoError(t, err)
	require.Equal(t, someRecords(), records)
	require.Equal(t, 1, batch.Calls())
}

func TestService_Get_BatchFailureSurfaces(t *testing.T) {
	t.Parallel()

	clock := &movableClock{now: cacheNow}
	batch := &countingBatch{err: errors.New("provider down")}
	svc := NewService(nil, batch, nil, time.Hour, clock, zap.NewNop())

	_, err := svc.Get(context.Background(), false)

	require.Error(t, err)
	require.Contains(t, err.Error(), "provider down")
}

func TestService_Get_DurableWriteFailureTolerated(t *testing.T) {
	t.Parallel()

	clock := &movableClock{now: cacheNow}
	batch := &countingBatch{records: someRecords()}
	store := &memStore{err: errors.New("disk full")}
	svc := NewService(store, batch, nil, time.Hour, clock, zap.NewNop())

	records, err := svc.Get(context.Background(), false)

	require.NoError(t, err, "durable write failure only costs persistence")
	require.Equal(t, someRecords(), records)
}

func TestService_Invalidate(t *testing.T) {
	t.Parallel()

	clock := &movableClock{now: cacheNow}
	batch := &countingBatch{records: someRecords()}
	svc := NewService(nil, batch, nil, time.Hour, clock, zap.NewNop())

	_, err := svc.Get(context.Background(), false)
	require.NoError(t, err)

	svc.Invalidate()
	_, err = svc.Get(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, 2, batch.Calls())
}

func TestService_RefreshInBackground(t *testing.T) {
	t.Parallel()

	clock := &movableClock{now: cacheNow}
	batch := &countingBatch{records: someRecords()}
	svc := NewService(nil, batch, nil, time.Hour, clock, zap.NewNop())

	svc.RefreshInBackground(context.Background())

	require.Eventually(t, func() bool {
		return batch.Calls() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEntry_Valid(t *testing.T) {
	t.Parallel()

	require.False(t, Entry{}.Valid(cacheNow, time.Hour))
	require.True(t, Entry{FetchedAt: cacheNow.Add(-30 * time.Minute)}.Valid(cacheNow, time.Hour))
	require.False(t, Entry{FetchedAt: cacheNow.Add(-2 * time.Hour)}.Valid(cacheNow, time.Hour))
}
