package resolver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
)

// metaTagCandidate pairs a meta tag selector with its intrinsic confidence.
// The list is priority-ordered; earlier entries are more trustworthy sources.
type metaTagCandidate struct {
	attr       string // attribute the tag is keyed on: property, name, itemprop
	key        string
	confidence int
}

var metaTagCandidates = []metaTagCandidate{
	{attr: "property", key: "article:published_time", confidence: 95},
	{attr: "itemprop", key: "datePublished", confidence: 92},
	{attr: "name", key: "parsely-pub-date", confidence: 90},
	{attr: "name", key: "publish-date", confidence: 88},
	{attr: "name", key: "publication_date", confidence: 86},
	{attr: "name", key: "date", confidence: 84},
	{attr: "name", key: "DC.date.issued", confidence: 82},
	{attr: "name", key: "sailthru.date", confidence: 80},
	{attr: "property", key: "article:modified_time", confidence: 72},
	{attr: "property", key: "og:updated_time", confidence: 70},
}

// jsonLDProperty pairs a JSON-LD property name with its confidence. Searched
// in order; datePublished always beats dateModified.
type jsonLDProperty struct {
	name       string
	confidence int
}

var jsonLDProperties = []jsonLDProperty{
	{name: "datePublished", confidence: 88},
	{name: "dateCreated", confidence: 84},
	{name: "uploadDate", confidence: 84},
	{name: "dateModified", confidence: 76},
}

// extractStructured pulls the best-candidate date out of the page's
// machine-readable metadata: known meta tags first, then embedded JSON-LD
// documents. It is a pure function over the fetched body.
func extractStructured(page Page, now time.Time) Result {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return Result{
			Method:      MethodStructuredTag,
			NeedsReview: true,
			Notes:       fmt.Sprintf("parse html: %v", err),
		}
	}

	best := bestMetaTag(doc, now)

	// JSON-LD is only consulted when no meta tag reached the acceptance bar.
	if best.Confidence < 85 {
		if graph := bestJSONLD(doc, now); graph.Confidence > best.Confidence {
			best = graph
		}
	}
	if best.Confidence == 0 {
		best.Method = MethodStructuredTag
		best.NeedsReview = true
		best.Notes = "no structured date markers found"
	}
	return best
}

func bestMetaTag(doc *goquery.Document, now time.Time) Result {
	var best Result
	for _, cand := range metaTagCandidates {
		if best.Confidence >= cand.confidence {
			break // candidates are sorted; nothing later can win
		}
		sel := fmt.Sprintf(`meta[%s=%q]`, cand.attr, cand.key)
		content, ok := doc.Find(sel).First().Attr("content")
		if !ok || strings.TrimSpace(content) == "" {
			continue
		}
		parsed, err := parseDateValue(content)
		if err != nil || !dateInRange(parsed, now) {
			continue
		}
		best = Result{
			PublishedDate: parsed,
			Confidence:    cand.confidence,
			Method:        MethodStructuredTag,
			RawEvidence:   fmt.Sprintf("meta[%s=%s]=%s", cand.attr, cand.key, content),
		}
	}
	return best
}

func bestJSONLD(doc *goquery.Document, now time.Time) Result {
	var best Result
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var node any
		if err := json.Unmarshal([]byte(s.Text()), &node); err != nil {
			return true // malformed block; keep scanning siblings
		}
		for _, prop := range jsonLDProperties {
			raw, found := findGraphProperty(node, prop.name, 0)
			if !found {
				continue
			}
			parsed, err := parseDateValue(raw)
			if err != nil || !dateInRange(parsed, now) {
				continue
			}
			if prop.confidence > best.Confidence {
				best = Result{
					PublishedDate: parsed,
					Confidence:    prop.confidence,
					Method:        MethodStructuredGraph,
					RawEvidence:   fmt.Sprintf("ld+json %s=%s", prop.name, raw),
				}
			}
			break // property list is priority-ordered within one document
		}
		return best.Confidence < 85
	})
	return best
}

const maxGraphDepth = 8

// findGraphProperty walks a decoded JSON-LD document depth-first looking for
// the named property. JSON-LD graphs nest arbitrarily (@graph arrays, nested
// entities), hence the recursive search with a depth bound.
func findGraphProperty(node any, name string, depth int) (string, bool) {
	if depth > maxGraphDepth {
		return "", false
	}
	switch v := node.(type) {
	case map[string]any:
		if raw, ok := v[name]; ok {
			if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
				return s, true
			}
		}
		for _, child := range v {
			if s, ok := findGraphProperty(child, name, depth+1); ok {
				return s, true
			}
		}
	case []any:
		for _, child := range v {
			if s, ok := findGraphProperty(child, name, depth+1); ok {
				return s, true
			}
		}
	}
	return "", false
}

// parseDateValue accepts the formats seen in the wild for structured date
// fields: RFC3339 and its sloppier cousins, falling back to fuzzy parsing.
func parseDateValue(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date value")
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", raw, err)
	}
	return t.UTC(), nil
}
