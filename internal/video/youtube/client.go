// Package youtube implements the video metadata provider against the Data API v3.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/curator/metadata-resolver/internal/video"
)

const defaultEndpoint = "https://www.googleapis.com/youtube/v3/videos"

// The API caps one videos.list call at 50 ids.
const maxBatchSize = 50

// Config controls the provider client.
type Config struct {
	APIKey    string
	Endpoint  string
	BatchSize int
	Timeout   time.Duration
	// RateLimit is requests per second against the API; 0 disables limiting.
	RateLimit float64
}

// Client calls the videos.list endpoint and parses responses into strict
// records at the boundary; malformed entries are logged and dropped rather
// than propagated inward.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New builds a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > maxBatchSize {
		cfg.BatchSize = maxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logger,
	}
}

// ListVideos resolves the ids against the provider, batching as needed.
// The returned map only contains ids the provider actually knows about;
// omitted ids (private, deleted, region-blocked) are simply absent.
func (c *Client) ListVideos(ctx context.Context, ids []string) (map[string]video.ProviderVideo, error) {
	found := make(map[string]video.ProviderVideo, len(ids))
	for start := 0; start < len(ids); start += c.cfg.BatchSize {
		end := min(start+c.cfg.BatchSize, len(ids))
		if err := c.listBatch(ctx, ids[start:end], found); err != nil {
			return nil, err
		}
	}
	return found, nil
}

func (c *Client) listBatch(ctx context.Context, ids []string, found map[string]video.ProviderVideo) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("id", strings.Join(ids, ","))
	q.Set("key", c.cfg.APIKey)
	q.Set("maxResults", "50")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("videos.list call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("videos.list returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload videoListResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode videos.list response: %w", err)
	}

	for _, item := range payload.Items {
		v, err := item.toProviderVideo()
		if err != nil {
			c.logger.Warn("malformed provider item dropped", zap.String("id", item.ID), zap.Error(err))
			continue
		}
		found[v.ID] = v
	}
	return nil
}

// Boundary shapes for the videos.list payload. Only the fields the service
// consumes are declared; everything else is ignored on decode.
type videoListResponse struct {
	Items []videoItem `json:"items"`
}

type videoItem struct {
	ID      string  `json:"id"`
	Snippet snippet `json:"snippet"`
}

type snippet struct {
	Title        string               `json:"title"`
	Description  string               `json:"description"`
	ChannelTitle string               `json:"channelTitle"`
	PublishedAt  string               `json:"publishedAt"`
	Thumbnails   map[string]thumbnail `json:"thumbnails"`
}

type thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// thumbnailPriority orders variants richest-first; the deterministic URL
// pattern is the final fallback when the provider sends none at all.
var thumbnailPriority = []string{"maxres", "standard", "high", "medium", "default"}

func (i videoItem) toProviderVideo() (video.ProviderVideo, error) {
	if i.ID == "" {
		return video.ProviderVideo{}, fmt.Errorf("item missing id")
	}
	publishedAt, err := time.Parse(time.RFC3339, i.Snippet.PublishedAt)
	if err != nil {
		return video.ProviderVideo{}, fmt.Errorf("parse publishedAt %q: %w", i.Snippet.PublishedAt, err)
	}

	thumb := ""
	for _, variant := range thumbnailPriority {
		if t, ok := i.Snippet.Thumbnails[variant]; ok && t.URL != "" {
			thumb = t.URL
			break
		}
	}
	if thumb == "" {
		thumb = video.FallbackThumbnailURL(i.ID)
	}

	return video.ProviderVideo{
		ID:           i.ID,
		Title:        i.Snippet.Title,
		Description:  i.Snippet.Description,
		ChannelTitle: i.Snippet.ChannelTitle,
		PublishedAt:  publishedAt.UTC(),
		ThumbnailURL: thumb,
	}, nil
}
