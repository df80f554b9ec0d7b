package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/curator/metadata-resolver/internal/resolver"
	"github.com/curator/metadata-resolver/internal/review"
)

var storeNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func testRecord() review.Record {
	published := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	return review.Record{
		ID:            "uuid-v7",
		URL:           "https://example.com/2024/03/15/launch",
		Domain:        "example.com",
		Title:         "Launch post",
		PublishedDate: published,
		Confidence:    22,
		Method:        resolver.MethodContentHeuristic,
		NeedsReview:   true,
		Notes:         "below acceptance threshold; best available result",
		Priority:      review.PriorityHigh,
		CreatedAt:     storeNow,
	}
}

func TestReviewStore_InsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewReviewStoreWithPool(mock)
	require.NoError(t, err)

	rec := testRecord()
	mock.ExpectExec("INSERT INTO review_records").
		WithArgs(
			rec.ID,
			rec.URL,
			rec.Domain,
			rec.Title,
			&rec.PublishedDate,
			rec.Confidence,
			string(rec.Method),
			rec.NeedsReview,
			rec.Notes,
			string(rec.Priority),
			rec.CreatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Insert(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewStore_InsertNilPublishedDate(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewReviewStoreWithPool(mock)
	require.NoError(t, err)

	rec := testRecord()
	rec.PublishedDate = time.Time{}
	mock.ExpectExec("INSERT INTO review_records").
		WithArgs(
			rec.ID,
			rec.URL,
			rec.Domain,
			rec.Title,
			(*time.Time)(nil),
			rec.Confidence,
			string(rec.Method),
			rec.NeedsReview,
			rec.Notes,
			string(rec.Priority),
			rec.CreatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Insert(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewStore_InsertRequiresID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewReviewStoreWithPool(mock)
	require.NoError(t, err)

	rec := testRecord()
	rec.ID = ""
	require.Error(t, store.Insert(context.Background(), rec))
}

func TestReviewStore_ListPending(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewReviewStoreWithPool(mock)
	require.NoError(t, err)

	published := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{
		"id", "url", "domain", "title", "published_date", "confidence",
		"method", "needs_review", "notes", "priority", "created_at",
	}).
		AddRow("r1", "https://example.com/a", "example.com", "A", &published, 0,
			"current-date-fallback", true, "", "critical", storeNow).
		AddRow("r2", "https://example.com/b", "example.com", "B", (*time.Time)(nil), 45,
			"content-heuristic", true, "notes", "standard", storeNow)

	mock.ExpectQuery("SELECT .+ FROM review_records").
		WithArgs(10).
		WillReturnRows(rows)

	records, err := store.ListPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "r1", records[0].ID)
	require.Equal(t, review.PriorityCritical, records[0].Priority)
	require.Equal(t, resolver.MethodCurrentDateFallback, records[0].Method)
	require.True(t, records[1].PublishedDate.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewStore_ListPendingNoLimit(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewReviewStoreWithPool(mock)
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{
		"id", "url", "domain", "title", "published_date", "confidence",
		"method", "needs_review", "notes", "priority", "created_at",
	})
	mock.ExpectQuery("SELECT .+ FROM review_records").
		WillReturnRows(rows)

	records, err := store.ListPending(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, records)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewStore_MarkReviewed(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewReviewStoreWithPool(mock)
	require.NoError(t, err)

	corrected := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE review_records").
		WithArgs("ana", &corrected, "r1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.MarkReviewed(context.Background(), "r1", "ana", &corrected))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewStore_MarkReviewedNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewReviewStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE review_records").
		WithArgs("ana", (*time.Time)(nil), "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.MarkReviewed(context.Background(), "ghost", "ana", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

func TestReviewStore_InsertQueryFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewReviewStoreWithPool(mock)
	require.NoError(t, err)

	rec := testRecord()
	mock.ExpectExec("INSERT INTO review_records").
		WithArgs(
			rec.ID,
			rec.URL,
			rec.Domain,
			rec.Title,
			&rec.PublishedDate,
			rec.Confidence,
			string(rec.Method),
			rec.NeedsReview,
			rec.Notes,
			string(rec.Priority),
			rec.CreatedAt,
		).
		WillReturnError(errors.New("connection reset"))

	require.Error(t, store.Insert(context.Background(), rec))
}

func TestNewReviewStoreWithPool_RequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewReviewStoreWithPool(nil)
	require.Error(t, err)
}
