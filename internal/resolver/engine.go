package resolver

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/curator/metadata-resolver/internal/metrics"
)

// PageFetcher retrieves a URL's document, rotating client identities as
// needed. Implemented by internal/fetch.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (Page, error)
}

// Thresholds are the per-strategy acceptance bars. Zero values fall back to
// the defaults from the shipped configuration.
type Thresholds struct {
	Structured    int // accept structured results at or above this
	URLPattern    int // accept url-pattern results at or above this
	Heuristic     int // accept heuristic results at or above this
	BestAvailable int // below this even the best attempt degrades to fallback
}

// DefaultThresholds returns the shipped acceptance bars.
func DefaultThresholds() Thresholds {
	return Thresholds{Structured: 85, URLPattern: 75, Heuristic: 60, BestAvailable: 30}
}

// Engine orchestrates the extraction strategies in priority order. It owns no
// persistent state; Resolve is a pure function of the URL plus network
// responses.
type Engine struct {
	fetcher    PageFetcher
	registry   *PatternRegistry
	clock      Clock
	thresholds Thresholds
	logger     *zap.Logger
}

// NewEngine constructs an Engine.
func NewEngine(fetcher PageFetcher, registry *PatternRegistry, clock Clock, thresholds Thresholds, logger *zap.Logger) *Engine {
	if registry == nil {
		registry = NewPatternRegistry()
	}
	if thresholds == (Thresholds{}) {
		thresholds = DefaultThresholds()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		fetcher:    fetcher,
		registry:   registry,
		clock:      clock,
		thresholds: thresholds,
		logger:     logger,
	}
}

// Resolve recovers a publication date for the URL. It is total: every failure
// mode degrades to a low or zero confidence result, never an error. Strategies
// run strictly in priority order and the first one clearing its bar wins.
func (e *Engine) Resolve(ctx context.Context, url string) Result {
	start := e.clock.Now()
	attempts := make([]Result, 0, 3)

	// The page is fetched once and shared by the structured and heuristic
	// passes; a blocked site degrades both to URL-only analysis.
	page, fetchErr := e.fetchSafe(ctx, url)
	page.URL = url

	structured := e.tryStructured(page, fetchErr)
	attempts = append(attempts, structured)
	if structured.Confidence >= e.thresholds.Structured {
		return e.finish(url, structured, start)
	}

	fromURL := e.tryURLPattern(url)
	attempts = append(attempts, fromURL)
	if fromURL.Confidence >= e.thresholds.URLPattern {
		return e.finish(url, fromURL, start)
	}

	heuristic := extractHeuristic(page, e.clock.Now())
	attempts = append(attempts, heuristic)
	if heuristic.Confidence >= e.thresholds.Heuristic {
		return e.finish(url, heuristic, start)
	}

	// Nothing cleared its bar: keep the best attempt if it is worth human
	// review, otherwise fall all the way back to the current date.
	best := attempts[0]
	for _, a := range attempts[1:] {
		if a.Confidence > best.Confidence {
			best = a
		}
	}
	if best.Confidence > e.thresholds.BestAvailable {
		best.NeedsReview = true
		if best.Notes == "" {
			best.Notes = "below acceptance threshold; best available result"
		}
		return e.finish(url, best, start)
	}

	return e.finish(url, Result{
		PublishedDate: e.clock.Now().UTC(),
		Confidence:    0,
		Method:        MethodCurrentDateFallback,
		NeedsReview:   true,
		Notes:         "no strategy produced a usable date",
	}, start)
}

// tryStructured runs the structured-data pass. Fetch errors (timeouts, DNS,
// exhausted identities) fold into a zero-confidence contribution rather than
// propagating.
func (e *Engine) tryStructured(page Page, fetchErr error) Result {
	if fetchErr != nil {
		e.logger.Warn("structured pass fetch failed", zap.String("url", page.URL), zap.Error(fetchErr))
		return Result{
			Method:      MethodStructuredTag,
			NeedsReview: true,
			Notes:       fmt.Sprintf("fetch failed: %v", fetchErr),
		}
	}
	return extractStructured(page, e.clock.Now())
}

func (e *Engine) tryURLPattern(url string) Result {
	return extractFromURL(url, e.registry, e.clock.Now())
}

// fetchSafe shields the engine from fetcher panics; a strategy either
// completes or contributes nothing.
func (e *Engine) fetchSafe(ctx context.Context, url string) (page Page, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("fetch panic: %v", rec)
		}
	}()
	return e.fetcher.FetchPage(ctx, url)
}

// finish applies the date-range validation and emits telemetry.
// A result whose date falls outside the window is demoted to an empty-date,
// zero-confidence result regardless of its strategy's self-reported score.
func (e *Engine) finish(url string, r Result, start time.Time) Result {
	now := e.clock.Now()
	if !r.PublishedDate.IsZero() && !dateInRange(r.PublishedDate, now) {
		e.logger.Warn("extracted date out of range",
			zap.String("url", url),
			zap.Time("date", r.PublishedDate),
			zap.String("method", string(r.Method)),
		)
		r = Result{
			Method:      r.Method,
			Confidence:  0,
			NeedsReview: true,
			Notes:       fmt.Sprintf("extracted date %s outside accepted window", r.PublishedDate.Format(time.RFC3339)),
			RawEvidence: r.RawEvidence,
		}
	}
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 100 {
		r.Confidence = 100
	}
	if r.Confidence == 0 {
		r.NeedsReview = true
	}

	metrics.ObserveResolution(string(r.Method), r.NeedsReview, r.Confidence, now.Sub(start))
	e.logger.Debug("url resolved",
		zap.String("url", url),
		zap.String("method", string(r.Method)),
		zap.Int("confidence", r.Confidence),
		zap.Bool("needs_review", r.NeedsReview),
	)
	return r
}
