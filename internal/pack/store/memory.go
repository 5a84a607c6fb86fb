package store

import (
	"context"
	"sort"
	"sync"

	"credible/internal/pack/models"
	"credible/pkg/platform/sentinel"
)

// InMemoryStore stores packs in memory.
type InMemoryStore struct {
	mu    sync.RWMutex
	packs map[string]*models.Pack
}

// New constructs an empty in-memory pack store.
func New() *InMemoryStore {
	return &InMemoryStore{packs: make(map[string]*models.Pack)}
}

func (s *InMemoryStore) Save(_ context.Context, pack *models.Pack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.packs[pack.ID]; ok {
		return sentinel.ErrConflict
	}
	copyPack := clonePack(pack)
	s.packs[pack.ID] = copyPack
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, packID string) (*models.Pack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pack, ok := s.packs[packID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clonePack(pack), nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*models.Pack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Pack, 0, len(s.packs))
	for _, pack := range s.packs {
		out = append(out, clonePack(pack))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) Confirm(_ context.Context, packID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pack, ok := s.packs[packID]
	if !ok {
		return sentinel.ErrNotFound
	}
	pack.Confirmed = true
	return nil
}

// clonePack returns a deep copy to prevent external modification.
func clonePack(pack *models.Pack) *models.Pack {
	copyPack := *pack
	copyPack.Milestones = append([]models.Milestone(nil), pack.Milestones...)
	return &copyPack
}
