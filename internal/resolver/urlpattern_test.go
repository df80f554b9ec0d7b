package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExtractFromURL_SlashDatedPath(t *testing.T) {
	t.Parallel()

	res := extractFromURL("https://example.com/2024/03/15/launch", NewPatternRegistry(), testNow)

	require.Equal(t, MethodURLPattern, res.Method)
	require.Equal(t, 78, res.Confidence)
	require.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), res.PublishedDate)
	require.False(t, res.NeedsReview)
}

func TestExtractFromURL_DashDatedPath(t *testing.T) {
	t.Parallel()

	res := extractFromURL("https://blog.medium.com/2024-03-15-big-news", NewPatternRegistry(), testNow)

	require.Equal(t, 78, res.Confidence)
	require.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), res.PublishedDate)
}

func TestExtractFromURL_YearMonthOnly(t *testing.T) {
	t.Parallel()

	res := extractFromURL("https://arstechnica.com/2024/06/some-story", NewPatternRegistry(), testNow)

	require.Equal(t, 78, res.Confidence)
	require.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), res.PublishedDate)
}

func TestExtractFromURL_ImpossibleCalendarDate(t *testing.T) {
	t.Parallel()

	res := extractFromURL("https://example.com/2024/13/40/story", NewPatternRegistry(), testNow)

	require.Equal(t, 0, res.Confidence)
	require.True(t, res.NeedsReview)
}

func TestExtractFromURL_FutureDateRejected(t *testing.T) {
	t.Parallel()

	res := extractFromURL("https://example.com/2028/03/15/preview", NewPatternRegistry(), testNow)

	require.Equal(t, 0, res.Confidence)
	require.True(t, res.NeedsReview)
}

func TestExtractFromURL_NoPattern(t *testing.T) {
	t.Parallel()

	res := extractFromURL("https://example.com/about-us", NewPatternRegistry(), testNow)

	require.Equal(t, 0, res.Confidence)
	require.True(t, res.NeedsReview)
	require.Contains(t, res.Notes, "no date pattern")
}

func TestExtractFromURL_UnparseableURL(t *testing.T) {
	t.Parallel()

	res := extractFromURL("://not a url", NewPatternRegistry(), testNow)

	require.Equal(t, 0, res.Confidence)
	require.True(t, res.NeedsReview)
}

func TestPatternRegistry_RegisterDoesNotLeakShared(t *testing.T) {
	t.Parallel()

	r := NewPatternRegistry()
	first := r.patternsFor("techcrunch.com")
	r.Register("techcrunch.com", compactYMD)
	second := r.patternsFor("techcrunch.com")

	require.Len(t, second, len(first)+1)
}

func TestValidCalendarDate(t *testing.T) {
	t.Parallel()

	_, ok := validCalendarDate(2024, 2, 31)
	require.False(t, ok)
	_, ok = validCalendarDate(1989, 5, 1)
	require.False(t, ok)
	got, ok := validCalendarDate(2024, 2, 29)
	require.True(t, ok)
	require.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), got)
}
