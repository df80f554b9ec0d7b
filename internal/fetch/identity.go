// Package fetch retrieves external pages while surviving anti-bot defenses.
package fetch

import (
	"fmt"
	"sync"
)

// Identity is one plausible client identity: a user-agent plus the header
// bundle a real browser of that kind would send.
type Identity struct {
	Name      string
	UserAgent string
	Headers   map[string]string
}

// DefaultIdentities returns the shipped identity pool. Ordering matters: the
// first entries are the least suspicious and get used first.
func DefaultIdentities() []Identity {
	return []Identity{
		{
			Name:      "chrome-win",
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			Headers: map[string]string{
				"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
				"Accept-Language": "en-US,en;q=0.9",
				"Sec-Fetch-Dest":  "document",
				"Sec-Fetch-Mode":  "navigate",
			},
		},
		{
			Name:      "safari-mac",
			UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
			Headers: map[string]string{
				"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
				"Accept-Language": "en-US,en;q=0.9",
			},
		},
		{
			Name:      "firefox-linux",
			UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0",
			Headers: map[string]string{
				"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
				"Accept-Language": "en-US,en;q=0.5",
				"DNT":             "1",
			},
		},
		{
			Name:      "edge-win",
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36 Edg/126.0.0.0",
			Headers: map[string]string{
				"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
				"Accept-Language": "en-US,en;q=0.9",
			},
		},
		{
			Name:      "chrome-android",
			UserAgent: "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Mobile Safari/537.36",
			Headers: map[string]string{
				"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
				"Accept-Language": "en-US,en;q=0.9",
			},
		},
	}
}

// IdentitiesFromUserAgents builds a pool from configured user-agent strings,
// attaching a neutral header bundle to each. An empty input returns the
// shipped defaults.
func IdentitiesFromUserAgents(userAgents []string) []Identity {
	if len(userAgents) == 0 {
		return DefaultIdentities()
	}
	pool := make([]Identity, 0, len(userAgents))
	for i, ua := range userAgents {
		pool = append(pool, Identity{
			Name:      fmt.Sprintf("configured-%d", i),
			UserAgent: ua,
			Headers: map[string]string{
				"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
				"Accept-Language": "en-US,en;q=0.9",
			},
		})
	}
	return pool
}

// Rotator hands out identities round-robin. Safe for concurrent use.
type Rotator struct {
	mu    sync.Mutex
	pool  []Identity
	index int
}

// NewRotator builds a Rotator; an empty pool falls back to the defaults.
func NewRotator(pool []Identity) *Rotator {
	if len(pool) == 0 {
		pool = DefaultIdentities()
	}
	return &Rotator{pool: pool}
}

// Next returns the next identity in rotation.
func (r *Rotator) Next() Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.pool[r.index%len(r.pool)]
	r.index++
	return id
}

// Size returns the pool size, which bounds the retry budget.
func (r *Rotator) Size() int {
	return len(r.pool)
}
