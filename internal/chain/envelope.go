package chain

import (
	"bytes"
	"encoding/json"
	"fmt"

	dErrors "credible/pkg/domain-errors"
)

// Envelope is the raw, transport-level form of a contract event as delivered
// by the indexer feed. Params stay opaque until Decode runs at the boundary.
type Envelope struct {
	ChainID     uint64          `json:"chainId"`
	BlockNumber uint64          `json:"blockNumber"`
	LogIndex    uint64          `json:"logIndex"`
	Type        string          `json:"eventType"`
	Params      json.RawMessage `json:"params"`
}

// EventID returns the globally unique, deterministic identity of the physical
// event. Every redelivery of the same (chain, block, log index) produces the
// same ID, which is what makes replayed projection a no-op.
func (e Envelope) EventID() string {
	return fmt.Sprintf("%d_%d_%d", e.ChainID, e.BlockNumber, e.LogIndex)
}

// Decode maps the envelope params onto the typed event for its kind.
// Unknown kinds and malformed params fail with a validation error so poison
// messages are surfaced instead of silently skipped. A TransferBatch whose
// parallel arrays disagree in length fails with an integrity error.
func Decode(env Envelope) (Event, error) {
	var (
		event Event
		err   error
	)

	switch env.Type {
	case KindPackCreated:
		event, err = unmarshalParams[PackCreated](env)
	case KindPackMilestones:
		event, err = unmarshalParams[PackMilestones](env)
	case KindPackMinted:
		event, err = unmarshalParams[PackMinted](env)
	case KindMilestoneSubmitted:
		event, err = unmarshalParams[MilestoneSubmitted](env)
	case KindMilestoneApproved:
		event, err = unmarshalParams[MilestoneApproved](env)
	case KindMilestoneRejected:
		event, err = unmarshalParams[MilestoneRejected](env)
	case KindTransferSingle:
		event, err = unmarshalParams[TransferSingle](env)
	case KindTransferBatch:
		var batch TransferBatch
		batch, err = unmarshalParams[TransferBatch](env)
		if err == nil && len(batch.TokenIDs) != len(batch.Values) {
			return nil, dErrors.New(dErrors.CodeIntegrity,
				fmt.Sprintf("transfer batch %s: %d token ids vs %d values", env.EventID(), len(batch.TokenIDs), len(batch.Values)))
		}
		event = batch
	case KindURI:
		event, err = unmarshalParams[URI](env)
	case KindApprovalForAll:
		event, err = unmarshalParams[ApprovalForAll](env)
	case KindOwnershipTransferred:
		event, err = unmarshalParams[OwnershipTransferred](env)
	default:
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown event type %q", env.Type))
	}

	if err != nil {
		return nil, err
	}
	return event, nil
}

// unmarshalParams decodes strictly: the event set is closed, so params
// carrying fields outside the typed schema are malformed. Strictness also
// keeps the canonical payload faithful; a lenient decode would collapse
// envelopes that differ only in unknown fields into identical records.
func unmarshalParams[T Event](env Envelope) (T, error) {
	var out T
	if len(env.Params) == 0 {
		return out, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("event %s: missing params", env.EventID()))
	}
	dec := json.NewDecoder(bytes.NewReader(env.Params))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, dErrors.Wrap(dErrors.CodeValidation, fmt.Sprintf("event %s: malformed %s params", env.EventID(), env.Type), err)
	}
	return out, nil
}
