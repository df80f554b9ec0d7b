// Package memory provides in-memory persistence for development/testing.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/curator/metadata-resolver/internal/review"
)

// ReviewStore is an in-memory implementation of review.Store.
type ReviewStore struct {
	mu      sync.RWMutex
	records map[string]review.Record
}

// NewReviewStore constructs a ReviewStore.
func NewReviewStore() *ReviewStore {
	return &ReviewStore{records: make(map[string]review.Record)}
}

// Insert stores a new review record.
func (s *ReviewStore) Insert(_ context.Context, rec review.Record) error {
	if rec.ID == "" {
		return errors.New("record id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; exists {
		return errors.New("record already exists")
	}
	s.records[rec.ID] = rec
	return nil
}

// ListPending returns standing review items ordered by priority then age.
// limit <= 0 returns everything.
func (s *ReviewStore) ListPending(_ context.Context, limit int) ([]review.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []review.Record
	for _, rec := range s.records {
		if rec.NeedsReview {
			pending = append(pending, rec)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		pi, pj := priorityRank(pending[i].Priority), priorityRank(pending[j].Priority)
		if pi != pj {
			return pi < pj
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// MarkReviewed clears the review flag and applies the optional correction.
func (s *ReviewStore) MarkReviewed(_ context.Context, id, reviewer string, correctedDate *time.Time) error {
	if reviewer == "" {
		return errors.New("reviewer is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return errors.New("record not found")
	}
	now := time.Now().UTC()
	rec.NeedsReview = false
	rec.ReviewedBy = reviewer
	rec.ReviewedAt = &now
	rec.CorrectedDate = correctedDate
	if correctedDate != nil {
		rec.PublishedDate = *correctedDate
	}
	s.records[id] = rec
	return nil
}

func priorityRank(p review.Priority) int {
	switch p {
	case review.PriorityCritical:
		return 0
	case review.PriorityHigh:
		return 1
	case review.PriorityStandard:
		return 2
	default:
		return 3
	}
}
