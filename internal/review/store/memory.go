package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"credible/internal/review/models"
	"credible/pkg/platform/sentinel"
)

// InMemoryStore keeps submissions by id with a per-milestone attempt index.
// Safe for concurrent use; returned values are copies.
type InMemoryStore struct {
	mu          sync.RWMutex
	submissions map[string]*models.Submission
	// attempts maps "packID|holder|milestoneIndex" to submission ids in
	// ascending seq order.
	attempts map[string][]string
}

func New() *InMemoryStore {
	return &InMemoryStore{
		submissions: make(map[string]*models.Submission),
		attempts:    make(map[string][]string),
	}
}

func milestoneKey(packID, holder string, milestoneIndex uint64) string {
	return fmt.Sprintf("%s|%s|%d", packID, holder, milestoneIndex)
}

func (s *InMemoryStore) Save(_ context.Context, sub *models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.submissions[sub.ID]; exists {
		return sentinel.ErrConflict
	}
	s.submissions[sub.ID] = clone(sub)
	k := milestoneKey(sub.PackID, sub.Holder, sub.MilestoneIndex)
	s.attempts[k] = append(s.attempts[k], sub.ID)
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, id string) (*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.submissions[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(sub), nil
}

func (s *InMemoryStore) FindLatest(_ context.Context, packID, holder string, milestoneIndex uint64) (*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.attempts[milestoneKey(packID, holder, milestoneIndex)]
	if len(ids) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return clone(s.submissions[ids[len(ids)-1]]), nil
}

func (s *InMemoryStore) Update(_ context.Context, sub *models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.submissions[sub.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.submissions[sub.ID] = clone(sub)
	return nil
}

func (s *InMemoryStore) ListByEnrollment(_ context.Context, packID, holder string) ([]*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Submission
	for _, sub := range s.submissions {
		if sub.PackID == packID && sub.Holder == holder {
			out = append(out, clone(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MilestoneIndex != out[j].MilestoneIndex {
			return out[i].MilestoneIndex < out[j].MilestoneIndex
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (s *InMemoryStore) ListPending(_ context.Context, packID string) ([]*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Submission
	for _, sub := range s.submissions {
		if sub.Status != models.StatusPending {
			continue
		}
		if packID != "" && sub.PackID != packID {
			continue
		}
		out = append(out, clone(sub))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out, nil
}

func (s *InMemoryStore) CountByStatus(_ context.Context, packID, holder string) (approved, pending int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ids := range s.attempts {
		if len(ids) == 0 {
			continue
		}
		latest := s.submissions[ids[len(ids)-1]]
		if latest.PackID != packID || latest.Holder != holder {
			continue
		}
		switch latest.Status {
		case models.StatusApproved:
			approved++
		case models.StatusPending:
			pending++
		}
	}
	return approved, pending, nil
}

// Clear removes all submissions. Test helper.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions = make(map[string]*models.Submission)
	s.attempts = make(map[string][]string)
}

func clone(sub *models.Submission) *models.Submission {
	c := *sub
	if sub.ReviewedAt != nil {
		t := *sub.ReviewedAt
		c.ReviewedAt = &t
	}
	return &c
}

var _ Store = (*InMemoryStore)(nil)
