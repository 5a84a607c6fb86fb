package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"credible/internal/grant/models"
	"credible/pkg/platform/sentinel"
)

// InMemoryStore keeps grants by id. Safe for concurrent use; returned values
// are copies.
type InMemoryStore struct {
	mu     sync.RWMutex
	grants map[string]*models.Grant
}

func New() *InMemoryStore {
	return &InMemoryStore{
		grants: make(map[string]*models.Grant),
	}
}

func (s *InMemoryStore) Save(_ context.Context, grant *models.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.grants[grant.ID]; exists {
		return sentinel.ErrConflict
	}
	s.grants[grant.ID] = clone(grant)
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, id string) (*models.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.grants[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(g), nil
}

func (s *InMemoryStore) ListByHolder(_ context.Context, holder string) ([]*models.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Grant
	for _, g := range s.grants {
		if g.Holder == holder {
			out = append(out, clone(g))
		}
	}
	sortByGrantedAt(out)
	return out, nil
}

func (s *InMemoryStore) ListByVerifier(_ context.Context, verifier string) ([]*models.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Grant
	for _, g := range s.grants {
		if g.Verifier == verifier {
			out = append(out, clone(g))
		}
	}
	sortByGrantedAt(out)
	return out, nil
}

func (s *InMemoryStore) Revoke(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.grants[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if g.RevokedAt == nil {
		now := time.Now()
		g.RevokedAt = &now
	}
	return nil
}

// Clear removes all grants. Test helper.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants = make(map[string]*models.Grant)
}

func sortByGrantedAt(grants []*models.Grant) {
	sort.Slice(grants, func(i, j int) bool {
		return grants[i].GrantedAt.Before(grants[j].GrantedAt)
	})
}

func clone(g *models.Grant) *models.Grant {
	c := *g
	if g.RevokedAt != nil {
		t := *g.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}

var _ Store = (*InMemoryStore)(nil)
