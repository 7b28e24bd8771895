package risk

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu          sync.RWMutex
	assessments map[string]*Assessment
}

// NewMemoryStore creates an in-memory assessment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{assessments: make(map[string]*Assessment)}
}

func (s *MemoryStore) Create(ctx context.Context, a *Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.IsActive {
		for _, existing := range s.assessments {
			if existing.InvestmentID == a.InvestmentID && existing.IsActive {
				return ErrConflict
			}
		}
	}
	cp := copyAssessment(a)
	s.assessments[a.ID] = cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assessments[id]
	if !ok {
		return nil, ErrAssessmentNotFound
	}
	return copyAssessment(a), nil
}

func (s *MemoryStore) GetActive(ctx context.Context, investmentID string) (*Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.assessments {
		if a.InvestmentID == investmentID && a.IsActive {
			return copyAssessment(a), nil
		}
	}
	return nil, ErrAssessmentNotFound
}

func (s *MemoryStore) Deactivate(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assessments[id]
	if !ok {
		return ErrAssessmentNotFound
	}
	a.IsActive = false
	stamp := at
	a.LastReassessment = &stamp
	return nil
}

func (s *MemoryStore) AppendOverride(ctx context.Context, id string, o ManualOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assessments[id]
	if !ok {
		return ErrAssessmentNotFound
	}
	a.Overrides = append(a.Overrides, o)
	return nil
}

func (s *MemoryStore) ListActiveByBorrower(ctx context.Context, borrowerID string, limit int) ([]*Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*Assessment
	for _, a := range s.assessments {
		if a.BorrowerID == borrowerID && a.IsActive {
			result = append(result, copyAssessment(a))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].AssessedAt.After(result[j].AssessedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryStore) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*Assessment
	for _, a := range s.assessments {
		if a.IsActive && a.NextReassessment.Before(now) {
			result = append(result, copyAssessment(a))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].NextReassessment.Before(result[j].NextReassessment)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryStore) ListActiveSince(ctx context.Context, cutoff time.Time) ([]*Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*Assessment
	for _, a := range s.assessments {
		if a.IsActive && !a.AssessedAt.Before(cutoff) {
			result = append(result, copyAssessment(a))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].AssessedAt.Before(result[j].AssessedAt)
	})
	return result, nil
}

func (s *MemoryStore) ListActiveByBorrowerSince(ctx context.Context, borrowerID string, cutoff time.Time) ([]*Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*Assessment
	for _, a := range s.assessments {
		if a.BorrowerID == borrowerID && a.IsActive && !a.AssessedAt.Before(cutoff) {
			result = append(result, copyAssessment(a))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].AssessedAt.Before(result[j].AssessedAt)
	})
	return result, nil
}

// copyAssessment deep-copies the slices and maps so callers cannot mutate
// stored state.
func copyAssessment(a *Assessment) *Assessment {
	cp := *a
	if a.RiskFactors != nil {
		cp.RiskFactors = append([]Factor(nil), a.RiskFactors...)
	}
	if a.CategoryScores != nil {
		cp.CategoryScores = make(map[string]CategoryScore, len(a.CategoryScores))
		for k, v := range a.CategoryScores {
			cp.CategoryScores[k] = v
		}
	}
	if a.Recommendations != nil {
		cp.Recommendations = append([]Recommendation(nil), a.Recommendations...)
	}
	if a.Overrides != nil {
		cp.Overrides = append([]ManualOverride(nil), a.Overrides...)
	}
	if a.Comparisons.SimilarInvestments != nil {
		cp.Comparisons.SimilarInvestments = append([]SimilarInvestment(nil), a.Comparisons.SimilarInvestments...)
	}
	if a.Comparisons.PriorAssessments != nil {
		cp.Comparisons.PriorAssessments = append([]PriorAssessment(nil), a.Comparisons.PriorAssessments...)
	}
	if a.LastReassessment != nil {
		stamp := *a.LastReassessment
		cp.LastReassessment = &stamp
	}
	return &cp
}
