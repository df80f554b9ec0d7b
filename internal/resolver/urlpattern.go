package resolver

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// datePattern extracts a year/month/day triple from a URL path.
type datePattern struct {
	re *regexp.Regexp
	// order maps capture groups to year, month, day positions (1-based).
	year, month, day int
}

// PatternRegistry holds per-domain URL date patterns plus shared patterns that
// apply to any source publishing dated paths.
type PatternRegistry struct {
	byDomain map[string][]datePattern
	shared   []datePattern
}

var (
	slashYMD   = datePattern{re: regexp.MustCompile(`/(\d{4})/(\d{1,2})/(\d{1,2})(?:/|$)`), year: 1, month: 2, day: 3}
	dashYMD    = datePattern{re: regexp.MustCompile(`/(\d{4})-(\d{2})-(\d{2})(?:[-/]|$)`), year: 1, month: 2, day: 3}
	compactYMD = datePattern{re: regexp.MustCompile(`/(\d{4})(\d{2})(\d{2})(?:/|-)`), year: 1, month: 2, day: 3}
	slashYM    = datePattern{re: regexp.MustCompile(`/(\d{4})/(\d{1,2})/`), year: 1, month: 2}
)

// NewPatternRegistry builds a registry preloaded with the known source
// domains plus the shared dated-path patterns.
func NewPatternRegistry() *PatternRegistry {
	r := &PatternRegistry{
		byDomain: map[string][]datePattern{},
		shared:   []datePattern{slashYMD, dashYMD, compactYMD, slashYM},
	}
	// Known sources whose URL schemes deviate from the shared patterns.
	r.Register("medium.com", dashYMD)
	r.Register("substack.com", dashYMD)
	r.Register("techcrunch.com", slashYMD)
	r.Register("theverge.com", slashYMD)
	r.Register("arstechnica.com", slashYM)
	return r
}

// Register adds a pattern for a domain (matched by suffix, so subdomains of a
// registered domain are covered).
func (r *PatternRegistry) Register(domain string, p datePattern) {
	domain = strings.ToLower(domain)
	r.byDomain[domain] = append(r.byDomain[domain], p)
}

func (r *PatternRegistry) patternsFor(host string) []datePattern {
	host = strings.ToLower(host)
	for domain, patterns := range r.byDomain {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			out := make([]datePattern, 0, len(patterns)+len(r.shared))
			out = append(out, patterns...)
			return append(out, r.shared...)
		}
	}
	return r.shared
}

// extractFromURL attempts regex-based date recovery from the URL path. The
// extracted triple is validated for calendar validity before being trusted.
func extractFromURL(rawURL string, registry *PatternRegistry, now time.Time) Result {
	miss := Result{Method: MethodURLPattern, NeedsReview: true}

	u, err := url.Parse(rawURL)
	if err != nil {
		miss.Notes = fmt.Sprintf("parse url: %v", err)
		return miss
	}
	for _, p := range registry.patternsFor(u.Hostname()) {
		m := p.re.FindStringSubmatch(u.Path)
		if m == nil {
			continue
		}
		year := atoi(m[p.year])
		month, day := 1, 1
		if p.month > 0 {
			month = atoi(m[p.month])
		}
		if p.day > 0 {
			day = atoi(m[p.day])
		}
		t, ok := validCalendarDate(year, month, day)
		if !ok || !dateInRange(t, now) {
			continue
		}
		return Result{
			PublishedDate: t,
			Confidence:    78,
			Method:        MethodURLPattern,
			RawEvidence:   fmt.Sprintf("url path %s matched %s", u.Path, p.re.String()),
		}
	}
	miss.Notes = "no date pattern matched url path"
	return miss
}

// validCalendarDate rejects triples like 2024-02-31 that a naive regex match
// would happily produce.
func validCalendarDate(year, month, day int) (time.Time, bool) {
	if year < 1990 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
