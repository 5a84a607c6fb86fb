package chain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "credible/pkg/domain-errors"
)

func envelope(t *testing.T, eventType string, params any) Envelope {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	return Envelope{
		ChainID:     10,
		BlockNumber: 123456,
		LogIndex:    7,
		Type:        eventType,
		Params:      raw,
	}
}

func TestEventIDFormat(t *testing.T) {
	env := Envelope{ChainID: 10, BlockNumber: 123456, LogIndex: 7}
	assert.Equal(t, "10_123456_7", env.EventID())

	// Same position always yields the same id.
	assert.Equal(t, env.EventID(), env.EventID())
}

func TestDecodePackCreated(t *testing.T) {
	env := envelope(t, KindPackCreated, map[string]any{
		"packId":         "pack-1",
		"name":           "B.S. in Computer Science",
		"description":    "Degree credential",
		"milestoneCount": 8,
	})

	event, err := Decode(env)
	require.NoError(t, err)

	created, ok := event.(PackCreated)
	require.True(t, ok)
	assert.Equal(t, "pack-1", created.PackID)
	assert.Equal(t, uint64(8), created.MilestoneCount)
	assert.Equal(t, KindPackCreated, created.Kind())
}

func TestDecodeMilestoneEvents(t *testing.T) {
	env := envelope(t, KindMilestoneSubmitted, map[string]any{
		"holder":         "0xholder",
		"packId":         "pack-1",
		"milestoneIndex": 3,
		"proofCID":       "QmProof",
	})
	event, err := Decode(env)
	require.NoError(t, err)
	submitted := event.(MilestoneSubmitted)
	assert.Equal(t, uint64(3), submitted.MilestoneIndex)
	assert.Equal(t, "QmProof", submitted.ProofCID)

	env = envelope(t, KindMilestoneApproved, map[string]any{
		"holder":         "0xholder",
		"packId":         "pack-1",
		"milestoneIndex": 3,
		"feedback":       "",
		"newProgress":    4,
	})
	event, err = Decode(env)
	require.NoError(t, err)
	approved := event.(MilestoneApproved)
	assert.Empty(t, approved.Feedback)
	assert.Equal(t, uint64(4), approved.NewProgress)
}

func TestDecodeUnknownType(t *testing.T) {
	env := envelope(t, "SomethingElse", map[string]any{})

	_, err := Decode(env)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestDecodeMalformedParams(t *testing.T) {
	env := Envelope{ChainID: 1, BlockNumber: 1, LogIndex: 0, Type: KindPackCreated, Params: []byte(`{"milestoneCount":"eight"}`)}

	_, err := Decode(env)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestDecodeRejectsUnknownParamsFields(t *testing.T) {
	env := envelope(t, KindPackCreated, map[string]any{
		"packId":         "pack-1",
		"name":           "Pack",
		"description":    "d",
		"milestoneCount": 1,
		"extra":          "field",
	})

	_, err := Decode(env)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestDecodeTransferBatchLengthMismatch(t *testing.T) {
	env := envelope(t, KindTransferBatch, map[string]any{
		"operator": "0xop",
		"from":     "0xfrom",
		"to":       "0xto",
		"ids":      []string{"1", "2", "3"},
		"values":   []string{"1", "1"},
	})

	_, err := Decode(env)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIntegrity))
}

func TestDecodeTransferBatch(t *testing.T) {
	env := envelope(t, KindTransferBatch, map[string]any{
		"operator": "0xop",
		"from":     "0xfrom",
		"to":       "0xto",
		"ids":      []string{"1", "2"},
		"values":   []string{"1", "1"},
	})

	event, err := Decode(env)
	require.NoError(t, err)
	batch := event.(TransferBatch)
	assert.Len(t, batch.TokenIDs, 2)
	assert.Len(t, batch.Values, 2)
}

func TestMilestoneKeyString(t *testing.T) {
	key := MilestoneKey{Holder: "0xholder", PackID: "pack-1", MilestoneIndex: 2}
	assert.Equal(t, "0xholder|pack-1|2", key.String())
}
