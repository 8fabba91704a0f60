package promotion

import (
	"context"
	"sync"
)

// ActiveSet caches the enabled promotions for the evaluator's hot path.
// Promotion writes are rare next to cart recomputes, so the set is loaded
// once and held until Invalidate is called after a create, update, or
// delete.
type ActiveSet struct {
	repo Repository

	mu     sync.RWMutex
	loaded bool
	active []*Promotion
}

// NewActiveSet creates a cache over the repository.
func NewActiveSet(repo Repository) *ActiveSet {
	return &ActiveSet{repo: repo}
}

// Invalidate drops the cached set. The next read reloads it.
func (s *ActiveSet) Invalidate() {
	s.mu.Lock()
	s.loaded = false
	s.active = nil
	s.mu.Unlock()
}

// ActivePromotions returns the enabled promotions, loading them on first
// use.
func (s *ActiveSet) ActivePromotions(ctx context.Context) ([]*Promotion, error) {
	s.mu.RLock()
	if s.loaded {
		cached := s.active
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	promos, err := s.repo.Active(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.loaded = true
	s.active = promos
	s.mu.Unlock()
	return promos, nil
}
