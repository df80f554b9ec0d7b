// Package review classifies degraded resolutions and decides when humans
// need to hear about them.
package review

import (
	"sort"
	"time"

	"github.com/curator/metadata-resolver/internal/resolver"
)

// Priority orders how urgently a record needs human attention.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityStandard Priority = "standard"
	PriorityLow      Priority = "low"
)

// Bands holds the configurable confidence cut lines between the non-critical
// priorities. The critical rule is structural, not configurable.
type Bands struct {
	// HighBelow: confidence strictly below this is High priority.
	HighBelow int
	// LowAtOrAbove: confidence at or above this is Low priority.
	LowAtOrAbove int
}

// DefaultBands returns the shipped cut lines.
func DefaultBands() Bands {
	return Bands{HighBelow: 30, LowAtOrAbove: 60}
}

// Classify maps a resolution outcome to a review priority. Critical iff the
// confidence is zero or the date is the current-date fallback; the rest fall
// into bands.
func Classify(confidence int, method resolver.Method, bands Bands) Priority {
	if confidence == 0 || method == resolver.MethodCurrentDateFallback {
		return PriorityCritical
	}
	switch {
	case confidence < bands.HighBelow:
		return PriorityHigh
	case confidence >= bands.LowAtOrAbove:
		return PriorityLow
	default:
		return PriorityStandard
	}
}

// Record is one resolution awaiting (or past) human review.
type Record struct {
	ID            string          `json:"id"`
	URL           string          `json:"url"`
	Domain        string          `json:"domain"`
	Title         string          `json:"title,omitempty"`
	PublishedDate time.Time       `json:"published_date,omitzero"`
	Confidence    int             `json:"confidence"`
	Method        resolver.Method `json:"method"`
	NeedsReview   bool            `json:"needs_review"`
	Notes         string          `json:"notes,omitempty"`
	Priority      Priority        `json:"priority"`
	CreatedAt     time.Time       `json:"created_at"`
	ReviewedBy    string          `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time      `json:"reviewed_at,omitempty"`
	CorrectedDate *time.Time      `json:"corrected_date,omitempty"`
}

// DomainCount pairs a source domain with how many review items it produced.
type DomainCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

// Summary is the aggregate the dashboard renders.
type Summary struct {
	TotalNeeding      int              `json:"total_needing_review"`
	ByPriority        map[Priority]int `json:"by_priority"`
	AverageConfidence float64          `json:"average_confidence"`
	TopDomains        []DomainCount    `json:"top_domains"`
}

const topDomainLimit = 5

// Summarize computes the aggregate over records still needing review.
func Summarize(records []Record) Summary {
	sum := Summary{ByPriority: map[Priority]int{}}
	domains := map[string]int{}
	confidenceTotal := 0

	for _, rec := range records {
		if !rec.NeedsReview {
			continue
		}
		sum.TotalNeeding++
		sum.ByPriority[rec.Priority]++
		confidenceTotal += rec.Confidence
		if rec.Domain != "" {
			domains[rec.Domain]++
		}
	}
	if sum.TotalNeeding > 0 {
		sum.AverageConfidence = float64(confidenceTotal) / float64(sum.TotalNeeding)
	}

	for domain, count := range domains {
		sum.TopDomains = append(sum.TopDomains, DomainCount{Domain: domain, Count: count})
	}
	sort.Slice(sum.TopDomains, func(i, j int) bool {
		if sum.TopDomains[i].Count != sum.TopDomains[j].Count {
			return sum.TopDomains[i].Count > sum.TopDomains[j].Count
		}
		return sum.TopDomains[i].Domain < sum.TopDomains[j].Domain
	})
	if len(sum.TopDomains) > topDomainLimit {
		sum.TopDomains = sum.TopDomains[:topDomainLimit]
	}
	return sum
}
