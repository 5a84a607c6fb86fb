package projector

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credible/internal/chain"
	"credible/internal/projector/store"
	dErrors "credible/pkg/domain-errors"
	"credible/pkg/testutil"
)

func newTestService(t *testing.T) (*Service, *store.InMemoryStore) {
	t.Helper()
	st := store.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(st, log), st
}

func envelope(t *testing.T, block, logIndex uint64, eventType string, params any) chain.Envelope {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	return chain.Envelope{
		ChainID:     1,
		BlockNumber: block,
		LogIndex:    logIndex,
		Type:        eventType,
		Params:      raw,
	}
}

func packCreatedEnv(t *testing.T, block, logIndex uint64, packID string, count int) chain.Envelope {
	return envelope(t, block, logIndex, chain.KindPackCreated, map[string]any{
		"packId":         packID,
		"name":           "B.S. in Computer Science",
		"description":    "Degree credential",
		"milestoneCount": count,
	})
}

func milestoneDefEnv(t *testing.T, block, logIndex uint64, packID string, id int) chain.Envelope {
	return envelope(t, block, logIndex, chain.KindPackMilestones, map[string]any{
		"packId":      packID,
		"milestoneId": id,
		"title":       "Milestone",
		"description": "Do the thing",
		"required":    true,
	})
}

func TestProjectPackCreated(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	update, err := svc.Project(ctx, packCreatedEnv(t, 100, 0, "pack-1", 2))
	require.NoError(t, err)
	assert.Equal(t, "1_100_0", update.EventID)
	assert.Equal(t, EntityPack, update.Entity)
	assert.False(t, update.Replayed)

	rec, err := st.Record(ctx, "1_100_0")
	require.NoError(t, err)
	assert.Equal(t, chain.KindPackCreated, rec.Type)

	proj, err := st.Pack(ctx, "pack-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), proj.Header.MilestoneCount)
	assert.False(t, proj.Ready(), "header without milestone defs is partial")
}

func TestProjectPackBecomesReady(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	_, err := svc.Project(ctx, packCreatedEnv(t, 100, 0, "pack-1", 2))
	require.NoError(t, err)
	_, err = svc.Project(ctx, milestoneDefEnv(t, 100, 1, "pack-1", 0))
	require.NoError(t, err)

	proj, err := st.Pack(ctx, "pack-1")
	require.NoError(t, err)
	assert.False(t, proj.Ready(), "one of two defs is still partial")

	_, err = svc.Project(ctx, milestoneDefEnv(t, 100, 2, "pack-1", 1))
	require.NoError(t, err)

	proj, err = st.Pack(ctx, "pack-1")
	require.NoError(t, err)
	assert.True(t, proj.Ready())
	assert.Len(t, proj.Milestones, 2)
}

func TestProjectReplayIsNoOp(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	env := packCreatedEnv(t, 100, 0, "pack-1", 2)

	first, err := svc.Project(ctx, env)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	// Same event id, same params, different whitespace in the raw form.
	replay := env
	replay.Params = []byte(`{ "packId": "pack-1", "name": "B.S. in Computer Science", "description": "Degree credential", "milestoneCount": 2 }`)
	second, err := svc.Project(ctx, replay)
	require.NoError(t, err)
	assert.True(t, second.Replayed)

	proj, err := st.Pack(ctx, "pack-1")
	require.NoError(t, err)
	assert.Equal(t, "B.S. in Computer Science", proj.Header.Name)
}

func TestProjectDivergentPayloadIsIntegrityFault(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	_, err := svc.Project(ctx, packCreatedEnv(t, 100, 0, "pack-1", 2))
	require.NoError(t, err)

	// Same position on chain, different content.
	_, err = svc.Project(ctx, packCreatedEnv(t, 100, 0, "pack-1", 8))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIntegrity))

	// The first write wins and is never overwritten.
	proj, err := st.Pack(ctx, "pack-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), proj.Header.MilestoneCount)
}

func TestProjectHistoryOrderedByChainPosition(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	key := chain.MilestoneKey{Holder: "0xholder", PackID: "pack-1", MilestoneIndex: 0}

	submitted := func(block, logIndex uint64, cid string) chain.Envelope {
		return envelope(t, block, logIndex, chain.KindMilestoneSubmitted, map[string]any{
			"holder":         key.Holder,
			"packId":         key.PackID,
			"milestoneIndex": 0,
			"proofCID":       cid,
		})
	}
	approved := envelope(t, 210, 0, chain.KindMilestoneApproved, map[string]any{
		"holder":         key.Holder,
		"packId":         key.PackID,
		"milestoneIndex": 0,
		"feedback":       "good work",
		"newProgress":    1,
	})

	// Deliver out of chain order.
	_, err := svc.Project(ctx, approved)
	require.NoError(t, err)
	_, err = svc.Project(ctx, submitted(205, 3, "QmSecond"))
	require.NoError(t, err)
	_, err = svc.Project(ctx, submitted(200, 1, "QmFirst"))
	require.NoError(t, err)

	history, err := st.History(ctx, key)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "QmFirst", history[0].ProofCID)
	assert.Equal(t, "QmSecond", history[1].ProofCID)
	assert.Equal(t, chain.KindMilestoneApproved, history[2].Kind)
	assert.Equal(t, uint64(1), history[2].NewProgress)
}

func TestProjectMintAndTransfers(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	_, err := svc.Project(ctx, envelope(t, 300, 0, chain.KindPackMinted, map[string]any{
		"holder": "0xholder",
		"packId": "pack-1",
	}))
	require.NoError(t, err)

	minted, err := st.Minted(ctx, "pack-1", "0xholder")
	require.NoError(t, err)
	assert.True(t, minted)

	_, err = svc.Project(ctx, envelope(t, 300, 1, chain.KindTransferBatch, map[string]any{
		"operator": "0xop",
		"from":     "0x0",
		"to":       "0xholder",
		"ids":      []string{"7", "8"},
		"values":   []string{"1", "1"},
	}))
	require.NoError(t, err)

	transfers, err := st.TransfersByToken(ctx, "8")
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, "0xholder", transfers[0].To)
	assert.Equal(t, 1, transfers[0].Index)
}

func TestProjectRawOnlyEvents(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	update, err := svc.Project(ctx, envelope(t, 400, 0, chain.KindURI, map[string]any{
		"id":    "7",
		"value": "ipfs://metadata/7",
	}))
	require.NoError(t, err)
	assert.Equal(t, EntityEvent, update.Entity)

	rec, err := st.Record(ctx, "1_400_0")
	require.NoError(t, err)
	assert.Equal(t, chain.KindURI, rec.Type)
}

func TestProjectConcurrentSameEvent(t *testing.T) {
	svc, st := newTestService(t)
	env := packCreatedEnv(t, 500, 0, "pack-c", 1)

	result := testutil.RunConcurrent(16, func(int) error {
		_, err := svc.Project(context.Background(), env)
		return err
	})
	assert.Equal(t, int32(16), result.Successes, "replays succeed as no-ops")

	rec, err := st.Record(context.Background(), "1_500_0")
	require.NoError(t, err)
	assert.Equal(t, chain.KindPackCreated, rec.Type)
}
