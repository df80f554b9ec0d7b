package resolver

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// heuristicMaxConfidence caps what the heuristic strategy may claim,
// regardless of how certain an individual signal looks. Natural-language
// dates are too easy to confuse with event dates, bylines of other articles,
// or copyright years.
const heuristicMaxConfidence = 70

// Textual date shapes worth feeding to the fuzzy parser. Scans are bounded to
// the head of the document where bylines and datelines live.
var textDateExprs = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:published|posted|updated)[^<>{}]{0,20}?(\d{1,2}\s+[A-Za-z]{3,9}\s+\d{4})`),
	regexp.MustCompile(`(?i)(?:published|posted|updated)[^<>{}]{0,20}?([A-Za-z]{3,9}\s+\d{1,2},?\s+\d{4})`),
	regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`),
	regexp.MustCompile(`\b([A-Za-z]{3,9}\s+\d{1,2},\s+\d{4})\b`),
	regexp.MustCompile(`\b(\d{1,2}\s+[A-Za-z]{3,9}\s+\d{4})\b`),
}

var urlYearExpr = regexp.MustCompile(`/((?:19|20)\d{2})(?:/|-|$)`)

const heuristicScanLimit = 64 * 1024

// extractHeuristic is the last-resort strategy: scan the visible document and
// the URL for anything date-shaped. Signals with context ("published ...")
// score higher than bare matches; a lone year in the URL scores lowest.
func extractHeuristic(page Page, now time.Time) Result {
	body := page.Body
	if len(body) > heuristicScanLimit {
		body = body[:heuristicScanLimit]
	}
	text := string(body)

	for i, expr := range textDateExprs {
		m := expr.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		parsed, err := dateparse.ParseAny(strings.TrimSpace(m[1]))
		if err != nil {
			continue
		}
		parsed = parsed.UTC()
		if !dateInRange(parsed, now) {
			continue
		}
		confidence := heuristicMaxConfidence - i*3
		return Result{
			PublishedDate: parsed,
			Confidence:    confidence,
			Method:        MethodContentHeuristic,
			RawEvidence:   fmt.Sprintf("body text %q", m[0]),
		}
	}

	// A bare year in the URL pins the date to January 1 with low confidence.
	if m := urlYearExpr.FindStringSubmatch(page.URL); m != nil {
		year := atoi(m[1])
		t := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		if dateInRange(t, now) {
			return Result{
				PublishedDate: t,
				Confidence:    40,
				Method:        MethodContentHeuristic,
				Notes:         "only a year could be recovered",
				RawEvidence:   fmt.Sprintf("url year %s", m[1]),
			}
		}
	}

	return Result{
		Method:      MethodContentHeuristic,
		NeedsReview: true,
		Notes:       "no date-shaped text found",
	}
}
