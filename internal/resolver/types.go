// Package resolver recovers publication dates from external web pages.
package resolver

import (
	"time"
)

// Method identifies which strategy produced an extraction result. The set is
// closed; consumers switch over it exhaustively.
type Method string

const (
	// MethodStructuredTag means the date came from a known meta tag.
	MethodStructuredTag Method = "structured-tag"
	// MethodStructuredGraph means the date came from embedded JSON-LD.
	MethodStructuredGraph Method = "structured-graph"
	// MethodURLPattern means the date was recovered from the URL path.
	MethodURLPattern Method = "url-pattern"
	// MethodContentHeuristic means the date was guessed from page/URL text.
	MethodContentHeuristic Method = "content-heuristic"
	// MethodCurrentDateFallback means no strategy produced a usable date.
	MethodCurrentDateFallback Method = "current-date-fallback"
)

// Result is the outcome of resolving a URL. The engine guarantees
// Confidence is within [0,100] and that Confidence == 0 implies NeedsReview.
type Result struct {
	PublishedDate time.Time `json:"published_date,omitzero"`
	Confidence    int       `json:"confidence"`
	Method        Method    `json:"method"`
	NeedsReview   bool      `json:"needs_review"`
	Notes         string    `json:"notes,omitempty"`
	RawEvidence   string    `json:"raw_evidence,omitempty"`
}

// Page is a fetched document handed to the extraction strategies.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
	// Identity names the client identity that succeeded, for diagnostics.
	Identity string
	// Rendered is set when the body came from a headless browser pass.
	Rendered bool
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

const (
	// maxDateAge bounds how far in the past an extracted date may lie.
	maxDateAge = 10 * 365 * 24 * time.Hour
	// maxFutureSkew bounds how far in the future an extracted date may lie.
	maxFutureSkew = 365 * 24 * time.Hour
)

// dateInRange reports whether t lies within [now-10y, now+1y]. Dates outside
// the window are treated as invalid regardless of how they were extracted.
func dateInRange(t, now time.Time) bool {
	if t.IsZero() {
		return false
	}
	return !t.Before(now.Add(-maxDateAge)) && !t.After(now.Add(maxFutureSkew))
}
