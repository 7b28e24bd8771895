package ledger

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu          sync.RWMutex
	investments map[string]*Investment
}

// NewMemoryStore creates an in-memory investment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{investments: make(map[string]*Investment)}
}

func copyInvestment(inv *Investment) *Investment {
	cp := *inv
	if inv.Repayments != nil {
		cp.Repayments = make([]Repayment, len(inv.Repayments))
		copy(cp.Repayments, inv.Repayments)
	}
	return &cp
}

func (s *MemoryStore) Create(ctx context.Context, inv *Investment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.investments[inv.ID] = copyInvestment(inv)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.investments[id]
	if !ok {
		return nil, ErrInvestmentNotFound
	}
	return copyInvestment(inv), nil
}

func (s *MemoryStore) Update(ctx context.Context, inv *Investment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.investments[inv.ID]; !ok {
		return ErrInvestmentNotFound
	}
	s.investments[inv.ID] = copyInvestment(inv)
	return nil
}

func (s *MemoryStore) ListByBorrower(ctx context.Context, borrowerID string, status Status) ([]*Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*Investment
	for _, inv := range s.investments {
		if inv.BorrowerID != borrowerID {
			continue
		}
		if status != "" && inv.Status != status {
			continue
		}
		result = append(result, copyInvestment(inv))
	}
	sortByCreated(result)
	return result, nil
}

func (s *MemoryStore) ListByInvestor(ctx context.Context, investorID string) ([]*Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*Investment
	for _, inv := range s.investments {
		if inv.InvestorID == investorID {
			result = append(result, copyInvestment(inv))
		}
	}
	sortByCreated(result)
	return result, nil
}

func (s *MemoryStore) ListSimilar(ctx context.Context, q SimilarQuery) ([]*Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*Investment
	for _, inv := range s.investments {
		if inv.ID == q.ExcludeID || inv.Purpose != q.Purpose {
			continue
		}
		if inv.Amount < q.MinAmount || inv.Amount > q.MaxAmount {
			continue
		}
		result = append(result, copyInvestment(inv))
	}
	sortByCreated(result)
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

func sortByCreated(invs []*Investment) {
	sort.Slice(invs, func(i, j int) bool {
		return invs[i].CreatedAt.Before(invs[j].CreatedAt)
	})
}
