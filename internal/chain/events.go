// Package chain models the decoded contract events emitted by the pack issuer
// contract. The event set is closed: every kind the contract can emit has its
// own struct with a fixed field set, decoded exactly once at the ingestion
// boundary. Numeric token quantities are carried as decimal strings because
// they are uint256 on chain.
package chain

import (
	"fmt"
)

// Event kinds emitted by the pack issuer contract.
const (
	KindPackCreated          = "PackCreated"
	KindPackMilestones       = "PackMilestones"
	KindPackMinted           = "PackMinted"
	KindMilestoneSubmitted   = "MilestoneSubmitted"
	KindMilestoneApproved    = "MilestoneApproved"
	KindMilestoneRejected    = "MilestoneRejected"
	KindTransferSingle       = "TransferSingle"
	KindTransferBatch        = "TransferBatch"
	KindURI                  = "URI"
	KindApprovalForAll       = "ApprovalForAll"
	KindOwnershipTransferred = "OwnershipTransferred"
)

// Event is the closed union over decoded contract events.
type Event interface {
	Kind() string
}

// PackCreated announces a new pack with its milestone count.
type PackCreated struct {
	PackID         string `json:"packId"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	MilestoneCount uint64 `json:"milestoneCount"`
}

func (PackCreated) Kind() string { return KindPackCreated }

// PackMilestones carries one milestone definition of a pack. The contract
// emits one per milestone alongside PackCreated.
type PackMilestones struct {
	PackID      string `json:"packId"`
	MilestoneID uint64 `json:"milestoneId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

func (PackMilestones) Kind() string { return KindPackMilestones }

// PackMinted confirms a holder minted a completed pack credential.
type PackMinted struct {
	Holder string `json:"holder"`
	PackID string `json:"packId"`
}

func (PackMinted) Kind() string { return KindPackMinted }

// MilestoneSubmitted confirms a proof submission for one milestone.
type MilestoneSubmitted struct {
	Holder         string `json:"holder"`
	PackID         string `json:"packId"`
	MilestoneIndex uint64 `json:"milestoneIndex"`
	ProofCID       string `json:"proofCID"`
}

func (MilestoneSubmitted) Kind() string { return KindMilestoneSubmitted }

// MilestoneApproved confirms an issuer approval, with the holder's new
// aggregate progress as counted by the contract.
type MilestoneApproved struct {
	Holder         string `json:"holder"`
	PackID         string `json:"packId"`
	MilestoneIndex uint64 `json:"milestoneIndex"`
	Feedback       string `json:"feedback"`
	NewProgress    uint64 `json:"newProgress"`
}

func (MilestoneApproved) Kind() string { return KindMilestoneApproved }

// MilestoneRejected confirms an issuer rejection with mandatory feedback.
type MilestoneRejected struct {
	Holder         string `json:"holder"`
	PackID         string `json:"packId"`
	MilestoneIndex uint64 `json:"milestoneIndex"`
	Feedback       string `json:"feedback"`
}

func (MilestoneRejected) Kind() string { return KindMilestoneRejected }

// TransferSingle is the ERC-1155 single-token transfer event.
type TransferSingle struct {
	Operator string `json:"operator"`
	From     string `json:"from"`
	To       string `json:"to"`
	TokenID  string `json:"id"`
	Value    string `json:"value"`
}

func (TransferSingle) Kind() string { return KindTransferSingle }

// TransferBatch is the ERC-1155 batch transfer event. TokenIDs and Values are
// parallel arrays zipped 1:1 by index; Decode rejects mismatched lengths.
type TransferBatch struct {
	Operator string   `json:"operator"`
	From     string   `json:"from"`
	To       string   `json:"to"`
	TokenIDs []string `json:"ids"`
	Values   []string `json:"values"`
}

func (TransferBatch) Kind() string { return KindTransferBatch }

// URI is the ERC-1155 metadata URI event.
type URI struct {
	TokenID string `json:"id"`
	Value   string `json:"value"`
}

func (URI) Kind() string { return KindURI }

// ApprovalForAll is the ERC-1155 operator approval event.
type ApprovalForAll struct {
	Account  string `json:"account"`
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`
}

func (ApprovalForAll) Kind() string { return KindApprovalForAll }

// OwnershipTransferred is the contract ownership event.
type OwnershipTransferred struct {
	PreviousOwner string `json:"previousOwner"`
	NewOwner      string `json:"newOwner"`
}

func (OwnershipTransferred) Kind() string { return KindOwnershipTransferred }

// MilestoneKey identifies one milestone's review history across events.
type MilestoneKey struct {
	Holder         string
	PackID         string
	MilestoneIndex uint64
}

func (k MilestoneKey) String() string {
	return fmt.Sprintf("%s|%s|%d", k.Holder, k.PackID, k.MilestoneIndex)
}
