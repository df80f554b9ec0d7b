// Package batch reconciles the configured video set against the provider.
package batch

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/curator/metadata-resolver/internal/metrics"
	"github.com/curator/metadata-resolver/internal/video"
)

// Provider resolves external ids to authoritative metadata. Ids the provider
// cannot supply are absent from the map, not errors.
type Provider interface {
	ListVideos(ctx context.Context, ids []string) (map[string]video.ProviderVideo, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// fallbackSpacing is the fixed increment synthetic publication dates step
// backward by, per item index, so fallback records keep a stable order.
const fallbackSpacing = 7 * 24 * time.Hour

// Fetcher resolves a batch of configured items to exactly one record each,
// synthesizing local fallbacks for ids the provider omits.
type Fetcher struct {
	provider Provider
	clock    Clock
	logger   *zap.Logger
}

// NewFetcher constructs a Fetcher.
func NewFetcher(provider Provider, clock Clock, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{provider: provider, clock: clock, logger: logger}
}

// FetchBatch returns one record per derivable input item, ordered by
// descending publication date. Items whose URL yields no id are skipped with
// a warning. A provider that omits an item never causes that item to vanish:
// the gap is filled with a locally synthesized fallback record.
func (f *Fetcher) FetchBatch(ctx context.Context, items []video.ConfigItem) ([]video.Record, error) {
	type derived struct {
		item  video.ConfigItem
		id    string
		index int
	}

	deriveds := make([]derived, 0, len(items))
	ids := make([]string, 0, len(items))
	skipped := 0
	for i, item := range items {
		id, err := video.ParseVideoID(item.URL)
		if err != nil {
			skipped++
			f.logger.Warn("skipping item with unrecoverable id",
				zap.String("url", item.URL),
				zap.String("title", item.Title),
				zap.Error(err),
			)
			continue
		}
		deriveds = append(deriveds, derived{item: item, id: id, index: i})
		ids = append(ids, id)
	}

	known, err := f.provider.ListVideos(ctx, ids)
	if err != nil {
		// Total provider failure degrades to all-fallback output rather
		// than dropping the listing.
		f.logger.Error("provider batch call failed, synthesizing all records", zap.Error(err))
		known = map[string]video.ProviderVideo{}
	}

	now := f.clock.Now().UTC()
	records := make([]video.Record, 0, len(deriveds))
	fromProvider, fromFallback := 0, 0
	for _, d := range deriveds {
		if pv, ok := known[d.id]; ok {
			records = append(records, providerRecord(d.item, pv))
			fromProvider++
			continue
		}
		records = append(records, fallbackRecord(d.item, d.id, d.index, now))
		fromFallback++
	}
	metrics.ObserveProviderBatch(fromProvider, fromFallback, skipped)

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].PublishedAt.After(records[j].PublishedAt)
	})
	return records, nil
}

func providerRecord(item video.ConfigItem, pv video.ProviderVideo) video.Record {
	return video.Record{
		ExternalID:   pv.ID,
		Title:        pv.Title,
		Description:  pv.Description,
		ThumbnailURL: pv.ThumbnailURL,
		PublishedAt:  pv.PublishedAt,
		ChannelName:  pv.ChannelTitle,
		SourceURL:    video.WatchURL(pv.ID),
		Category:     item.Category,
		Featured:     item.Featured,
	}
}

// fallbackRecord synthesizes metadata for an id the provider omitted.
// The synthetic publishedAt steps backward with the item's configured index,
// which keeps fallback records in a stable, monotonically decreasing order.
func fallbackRecord(item video.ConfigItem, id string, index int, now time.Time) video.Record {
	return video.Record{
		ExternalID:   id,
		Title:        item.Title,
		Description:  item.Description,
		ThumbnailURL: video.FallbackThumbnailURL(id),
		PublishedAt:  now.Add(-time.Duration(index+1) * fallbackSpacing),
		SourceURL:    video.WatchURL(id),
		Category:     item.Category,
		Featured:     item.Featured,
		Fallback:     true,
	}
}
