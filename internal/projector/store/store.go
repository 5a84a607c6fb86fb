// Package store persists the chain-event projection: the raw, append-only
// event records keyed by event id, plus the normalized read model assembled
// from them (packs, milestone review history, mints, token transfers).
package store

import (
	"context"

	"credible/internal/chain"
)

// Record is a raw projected event. Payload is the canonical JSON encoding of
// the decoded event, so byte equality decides whether a redelivery is a replay
// or an integrity fault.
type Record struct {
	EventID     string
	ChainID     uint64
	BlockNumber uint64
	LogIndex    uint64
	Type        string
	Payload     []byte
}

// PackHeader is the projected PackCreated payload.
type PackHeader struct {
	PackID         string
	Name           string
	Description    string
	MilestoneCount uint64
	EventID        string
}

// MilestoneDef is one projected milestone definition of a pack.
type MilestoneDef struct {
	PackID      string
	MilestoneID uint64
	Title       string
	Description string
	Required    bool
	EventID     string
}

// HistoryEntry is one step of a milestone's confirmed review history.
// Entries are ordered by (BlockNumber, LogIndex), never by arrival time.
type HistoryEntry struct {
	EventID        string `json:"eventId"`
	Holder         string `json:"holder"`
	PackID         string `json:"packId"`
	MilestoneIndex uint64 `json:"milestoneIndex"`
	BlockNumber    uint64 `json:"blockNumber"`
	LogIndex       uint64 `json:"logIndex"`
	Kind           string `json:"kind"`
	ProofCID       string `json:"proofCid,omitempty"`
	Feedback       string `json:"feedback,omitempty"`
	NewProgress    uint64 `json:"newProgress,omitempty"`
}

// MintRecord marks a confirmed mint of a pack credential.
type MintRecord struct {
	PackID  string
	Holder  string
	EventID string
}

// Transfer is one projected token movement. Batch transfers are zipped into
// one Transfer per (id, value) pair, indexed within the event.
type Transfer struct {
	EventID  string `json:"eventId"`
	Index    int    `json:"index"`
	Operator string `json:"operator"`
	From     string `json:"from"`
	To       string `json:"to"`
	TokenID  string `json:"tokenId"`
	Value    string `json:"value"`
}

// Mutation is the normalized effect of one event on the read model. At most
// one of the pointer fields is set, depending on the event kind; events with
// no normalized projection (URI, ApprovalForAll, OwnershipTransferred) carry
// an empty Mutation and only the raw record is written.
type Mutation struct {
	Pack      *PackHeader
	Milestone *MilestoneDef
	History   *HistoryEntry
	Mint      *MintRecord
	Transfers []Transfer
}

// PackProjection is the assembled view of a pack. It stays partial until
// every milestone definition announced by PackCreated has been projected.
type PackProjection struct {
	Header     PackHeader
	Milestones []MilestoneDef
}

// Ready reports whether the pack is fully assembled and therefore enrollable.
func (p *PackProjection) Ready() bool {
	return p.Header.MilestoneCount > 0 && uint64(len(p.Milestones)) == p.Header.MilestoneCount
}

// Store persists projected events and their read model.
//
// Error contract:
//   - Apply returns sentinel.ErrIntegrity when the event id exists with a
//     differing payload; the stored record is left untouched
//   - Apply returns (false, nil) for an identical replay
//   - Read methods return sentinel.ErrNotFound when the entity does not exist
type Store interface {
	// Apply atomically writes the raw record and its normalized mutation.
	Apply(ctx context.Context, rec Record, mut *Mutation) (inserted bool, err error)

	Record(ctx context.Context, eventID string) (*Record, error)
	Pack(ctx context.Context, packID string) (*PackProjection, error)
	History(ctx context.Context, key chain.MilestoneKey) ([]HistoryEntry, error)
	Minted(ctx context.Context, packID, holder string) (bool, error)
	TransfersByToken(ctx context.Context, tokenID string) ([]Transfer, error)
}
