package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/MP2EZ/being-sub014/internal/domain"
)

// MemoryResultsRepository supports running without a database (DB_ENABLED=false).
// Results live only as long as the process.
type MemoryResultsRepository struct {
	mu      sync.RWMutex
	results map[string][]*domain.CompletedResult // userID -> results
}

func NewMemoryResultsRepository() *MemoryResultsRepository {
	return &MemoryResultsRepository{
		results: map[string][]*domain.CompletedResult{},
	}
}

var _ ResultsRepository = (*MemoryResultsRepository)(nil)

func (r *MemoryResultsRepository) Append(_ context.Context, result *domain.CompletedResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *result
	cp.Answers = append([]domain.AnswerRecord(nil), result.Answers...)
	r.results[result.UserID] = append(r.results[result.UserID], &cp)
	return nil
}

func (r *MemoryResultsRepository) List(_ context.Context, userID string, instrumentType *domain.InstrumentType, limit int) ([]*domain.CompletedResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.CompletedResult
	for _, res := range r.results[userID] {
		if instrumentType != nil && res.InstrumentType != *instrumentType {
			continue
		}
		cp := *res
		cp.Answers = append([]domain.AnswerRecord(nil), res.Answers...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CompletedAt.After(out[j].CompletedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
