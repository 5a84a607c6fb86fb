package store

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"credible/internal/chain"
	"credible/pkg/platform/sentinel"
)

// InMemoryStore keeps the projection in process memory. It is the default
// backend for tests and single-node deployments without a database.
type InMemoryStore struct {
	mu        sync.RWMutex
	records   map[string]*Record
	packs     map[string]*PackHeader
	defs      map[string]map[uint64]*MilestoneDef
	history   map[chain.MilestoneKey][]HistoryEntry
	mints     map[string]map[string]*MintRecord
	transfers map[string][]Transfer // keyed by token id
}

// New constructs an empty in-memory projection store.
func New() *InMemoryStore {
	return &InMemoryStore{
		records:   make(map[string]*Record),
		packs:     make(map[string]*PackHeader),
		defs:      make(map[string]map[uint64]*MilestoneDef),
		history:   make(map[chain.MilestoneKey][]HistoryEntry),
		mints:     make(map[string]map[string]*MintRecord),
		transfers: make(map[string][]Transfer),
	}
}

func (s *InMemoryStore) Apply(_ context.Context, rec Record, mut *Mutation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[rec.EventID]; ok {
		if bytes.Equal(existing.Payload, rec.Payload) {
			return false, nil
		}
		return false, sentinel.ErrIntegrity
	}

	copyRec := rec
	copyRec.Payload = append([]byte(nil), rec.Payload...)
	s.records[rec.EventID] = &copyRec

	if mut == nil {
		return true, nil
	}

	if mut.Pack != nil {
		pack := *mut.Pack
		s.packs[pack.PackID] = &pack
	}
	if mut.Milestone != nil {
		def := *mut.Milestone
		defs, ok := s.defs[def.PackID]
		if !ok {
			defs = make(map[uint64]*MilestoneDef)
			s.defs[def.PackID] = defs
		}
		defs[def.MilestoneID] = &def
	}
	if mut.History != nil {
		s.insertHistory(*mut.History)
	}
	if mut.Mint != nil {
		mint := *mut.Mint
		holders, ok := s.mints[mint.PackID]
		if !ok {
			holders = make(map[string]*MintRecord)
			s.mints[mint.PackID] = holders
		}
		holders[mint.Holder] = &mint
	}
	for _, t := range mut.Transfers {
		s.transfers[t.TokenID] = append(s.transfers[t.TokenID], t)
	}

	return true, nil
}

// insertHistory keeps each milestone's history ordered by block number then
// log index, regardless of arrival order.
func (s *InMemoryStore) insertHistory(entry HistoryEntry) {
	key := chain.MilestoneKey{Holder: entry.Holder, PackID: entry.PackID, MilestoneIndex: entry.MilestoneIndex}
	entries := s.history[key]
	pos := sort.Search(len(entries), func(i int) bool {
		if entries[i].BlockNumber != entry.BlockNumber {
			return entries[i].BlockNumber > entry.BlockNumber
		}
		return entries[i].LogIndex > entry.LogIndex
	})
	entries = append(entries, HistoryEntry{})
	copy(entries[pos+1:], entries[pos:])
	entries[pos] = entry
	s.history[key] = entries
}

func (s *InMemoryStore) Record(_ context.Context, eventID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[eventID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copyRec := *rec
	copyRec.Payload = append([]byte(nil), rec.Payload...)
	return &copyRec, nil
}

func (s *InMemoryStore) Pack(_ context.Context, packID string) (*PackProjection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	header, ok := s.packs[packID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	proj := &PackProjection{Header: *header}
	for _, def := range s.defs[packID] {
		proj.Milestones = append(proj.Milestones, *def)
	}
	sort.Slice(proj.Milestones, func(i, j int) bool {
		return proj.Milestones[i].MilestoneID < proj.Milestones[j].MilestoneID
	})
	return proj, nil
}

func (s *InMemoryStore) History(_ context.Context, key chain.MilestoneKey) ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]HistoryEntry(nil), s.history[key]...), nil
}

func (s *InMemoryStore) Minted(_ context.Context, packID, holder string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.mints[packID][holder]
	return ok, nil
}

func (s *InMemoryStore) TransfersByToken(_ context.Context, tokenID string) ([]Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Transfer(nil), s.transfers[tokenID]...), nil
}
