package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"credible/internal/enrollment/models"
	"credible/pkg/platform/sentinel"
)

// InMemoryStore keeps enrollments keyed by (packID, holder). Safe for
// concurrent use; returned values are copies.
type InMemoryStore struct {
	mu          sync.RWMutex
	enrollments map[string]*models.Enrollment
}

func New() *InMemoryStore {
	return &InMemoryStore{
		enrollments: make(map[string]*models.Enrollment),
	}
}

func key(packID, holder string) string {
	return fmt.Sprintf("%s|%s", packID, holder)
}

func (s *InMemoryStore) Save(_ context.Context, enrollment *models.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(enrollment.PackID, enrollment.Holder)
	if _, exists := s.enrollments[k]; exists {
		return sentinel.ErrConflict
	}
	s.enrollments[k] = clone(enrollment)
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, packID, holder string) (*models.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.enrollments[key(packID, holder)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(e), nil
}

func (s *InMemoryStore) ListByHolder(_ context.Context, holder string) ([]*models.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Enrollment
	for _, e := range s.enrollments {
		if e.Holder == holder {
			out = append(out, clone(e))
		}
	}
	sortByEnrolledAt(out)
	return out, nil
}

func (s *InMemoryStore) ListByPack(_ context.Context, packID string) ([]*models.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Enrollment
	for _, e := range s.enrollments {
		if e.PackID == packID {
			out = append(out, clone(e))
		}
	}
	sortByEnrolledAt(out)
	return out, nil
}

func (s *InMemoryStore) SetMinted(_ context.Context, packID, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.enrollments[key(packID, holder)]
	if !ok {
		return sentinel.ErrNotFound
	}
	now := time.Now()
	e.Minted = true
	e.MintedAt = &now
	return nil
}

// Clear removes all enrollments. Test helper.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollments = make(map[string]*models.Enrollment)
}

func sortByEnrolledAt(enrollments []*models.Enrollment) {
	sort.Slice(enrollments, func(i, j int) bool {
		return enrollments[i].EnrolledAt.Before(enrollments[j].EnrolledAt)
	})
}

func clone(e *models.Enrollment) *models.Enrollment {
	c := *e
	if e.MintedAt != nil {
		t := *e.MintedAt
		c.MintedAt = &t
	}
	return &c
}

var _ Store = (*InMemoryStore)(nil)
