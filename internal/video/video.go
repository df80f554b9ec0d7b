// Package video defines the metadata records for the video listing surface.
package video

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// ConfigItem is one entry of the configured video set, sourced from the
// content registry.
type ConfigItem struct {
	URL         string `json:"url" mapstructure:"url"`
	Title       string `json:"title" mapstructure:"title"`
	Description string `json:"description" mapstructure:"description"`
	Category    string `json:"category" mapstructure:"category"`
	Featured    bool   `json:"featured" mapstructure:"featured"`
}

// Record is the resolved metadata for one video. Identity is the ExternalID;
// SourceURL is always re-derivable from it.
type Record struct {
	ExternalID   string    `json:"external_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ThumbnailURL string    `json:"thumbnail_url"`
	PublishedAt  time.Time `json:"published_at"`
	ChannelName  string    `json:"channel_name"`
	SourceURL    string    `json:"source_url"`
	Category     string    `json:"category"`
	Featured     bool      `json:"featured"`
	// Fallback marks records synthesized locally because the provider
	// omitted the item.
	Fallback bool `json:"fallback,omitempty"`
}

// ProviderVideo is the provider-authoritative slice of metadata for one id,
// parsed strictly at the API boundary.
type ProviderVideo struct {
	ID           string
	Title        string
	Description  string
	ChannelTitle string
	PublishedAt  time.Time
	ThumbnailURL string
}

var videoIDExpr = regexp.MustCompile(`^[A-Za-z0-9_-]{6,16}$`)

// ParseVideoID extracts the stable external id from any of the URL shapes
// the registry carries: watch?v=, youtu.be/, /embed/, /shorts/, /live/.
func ParseVideoID(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse video url: %w", err)
	}
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))

	var id string
	switch host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		if v := u.Query().Get("v"); v != "" {
			id = v
			break
		}
		for _, prefix := range []string{"/embed/", "/shorts/", "/live/", "/v/"} {
			if strings.HasPrefix(u.Path, prefix) {
				id = strings.Trim(strings.TrimPrefix(u.Path, prefix), "/")
				break
			}
		}
	default:
		return "", fmt.Errorf("unsupported video host %q", u.Hostname())
	}

	if idx := strings.IndexByte(id, '/'); idx >= 0 {
		id = id[:idx]
	}
	if !videoIDExpr.MatchString(id) {
		return "", fmt.Errorf("no video id in url %q", raw)
	}
	return id, nil
}

// WatchURL returns the canonical source URL for an external id.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// FallbackThumbnailURL returns the deterministic thumbnail location keyed by
// the id. It exists for every public video regardless of API availability.
func FallbackThumbnailURL(id string) string {
	return fmt.Sprintf("https://i.ytimg.com/vi/%s/hqdefault.jpg", id)
}
