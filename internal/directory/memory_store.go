package directory

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*User
	docs  map[string][]*Document // userID → documents
}

// NewMemoryStore creates an in-memory user store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*User),
		docs:  make(map[string][]*Document),
	}
}

func (s *MemoryStore) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) Update(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return ErrUserNotFound
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateReputation(ctx context.Context, id string, score int, level string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.ReputationScore = score
	u.ReputationLevel = level
	u.ReputationUpdatedAt = at
	return nil
}

func (s *MemoryStore) ListAdmins(ctx context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*User
	for _, u := range s.users {
		if u.Admin && u.Verified() {
			cp := *u
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListTopReputation(ctx context.Context, limit int) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*User
	for _, u := range s.users {
		if u.ReputationLevel == "" {
			continue
		}
		cp := *u
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ReputationScore > result[j].ReputationScore
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryStore) ListStaleReputation(ctx context.Context, before time.Time, limit int) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*User
	for _, u := range s.users {
		if u.ReputationUpdatedAt.Before(before) {
			cp := *u
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ReputationUpdatedAt.Before(result[j].ReputationUpdatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryStore) ReputationDistribution(ctx context.Context) (map[string]LevelStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	totals := make(map[string]int)
	counts := make(map[string]int)
	for _, u := range s.users {
		if u.ReputationLevel == "" {
			continue
		}
		counts[u.ReputationLevel]++
		totals[u.ReputationLevel] += u.ReputationScore
	}
	result := make(map[string]LevelStats, len(counts))
	for level, count := range counts {
		result[level] = LevelStats{
			Count:    count,
			AvgScore: float64(totals[level]) / float64(count),
		}
	}
	return result, nil
}

func (s *MemoryStore) AddDocument(ctx context.Context, d *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.docs[d.UserID] = append(s.docs[d.UserID], &cp)
	return nil
}

func (s *MemoryStore) ListDocuments(ctx context.Context, userID string) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := s.docs[userID]
	result := make([]*Document, 0, len(docs))
	for _, d := range docs {
		cp := *d
		result = append(result, &cp)
	}
	return result, nil
}
