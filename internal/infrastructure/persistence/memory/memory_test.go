package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbiter-backend/internal/domain/audit"
	"arbiter-backend/internal/domain/consensus"
	"arbiter-backend/internal/domain/dkg"
	"arbiter-backend/internal/errors"
)

var opened = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestRound(t *testing.T, id string) *consensus.Round {
	t.Helper()
	round, err := consensus.NewRound(consensus.RoundParams{
		ID:           id,
		StudioID:     "studio-1",
		AuditID:      "audit-1",
		DataHash:     dkg.HashPayload([]byte("payload")),
		Dimensions:   []string{"initiative", "efficiency"},
		Participants: []string{"agent-1"},
		MADMultiple:  3,
		CommitWindow: time.Hour,
		RevealWindow: time.Hour,
		OpenedAt:     opened,
	})
	require.NoError(t, err)
	return round
}

func TestReportStore_SaveGetList(t *testing.T) {
	ctx := context.Background()
	store := NewReportStore()

	first := &audit.Report{AuditID: "audit-1", ThreadID: "thread-1", Verdict: audit.VerdictPassed}
	second := &audit.Report{AuditID: "audit-2", ThreadID: "thread-1", Verdict: audit.VerdictFailed}
	require.NoError(t, store.SaveReport(ctx, first))
	require.NoError(t, store.SaveReport(ctx, second))

	got, err := store.GetReport(ctx, "audit-1")
	require.NoError(t, err)
	assert.Equal(t, audit.VerdictPassed, got.Verdict)

	list, err := store.ListReportsByThread(ctx, "thread-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "audit-2", list[0].AuditID, "newest report comes first")

	// Replacing a report must not duplicate it in the thread index.
	require.NoError(t, store.SaveReport(ctx, first))
	list, err = store.ListReportsByThread(ctx, "thread-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = store.GetReport(ctx, "audit-404")
	assert.True(t, errors.IsNotFound(err))
}

func TestRoundStore_CreateRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	store := NewRoundStore()

	require.NoError(t, store.CreateRound(ctx, newTestRound(t, "round-1")))
	err := store.CreateRound(ctx, newTestRound(t, "round-1"))
	assert.True(t, errors.IsConflict(err))

	_, err = store.GetRound(ctx, "round-404")
	assert.True(t, errors.IsNotFound(err))
}

func TestRoundStore_UpdateAbortsOnMutationError(t *testing.T) {
	ctx := context.Background()
	store := NewRoundStore()
	require.NoError(t, store.CreateRound(ctx, newTestRound(t, "round-1")))

	digest := dkg.HashPayload([]byte("commitment"))
	commitTime := opened.Add(10 * time.Minute)

	err := store.UpdateRound(ctx, "round-1", func(r *consensus.Round) error {
		return r.Commit("verifier-1", -1, digest, commitTime)
	})
	require.Error(t, err)
	assert.Equal(t, "INVALID_STAKE", errors.CodeOf(err))

	round, err := store.GetRound(ctx, "round-1")
	require.NoError(t, err)
	assert.Empty(t, round.Commitments(), "failed update must not persist")

	require.NoError(t, store.UpdateRound(ctx, "round-1", func(r *consensus.Round) error {
		return r.Commit("verifier-1", 100, digest, commitTime)
	}))
	round, err = store.GetRound(ctx, "round-1")
	require.NoError(t, err)
	assert.Len(t, round.Commitments(), 1)
}

func TestRoundStore_GetReturnsSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewRoundStore()
	require.NoError(t, store.CreateRound(ctx, newTestRound(t, "round-1")))

	snapshot, err := store.GetRound(ctx, "round-1")
	require.NoError(t, err)
	digest := dkg.HashPayload([]byte("commitment"))
	require.NoError(t, snapshot.Commit("verifier-1", 100, digest, opened.Add(time.Minute)))

	stored, err := store.GetRound(ctx, "round-1")
	require.NoError(t, err)
	assert.Empty(t, stored.Commitments(), "mutating a snapshot must not touch the store")
}

func TestBlobStore_ContentAddressing(t *testing.T) {
	ctx := context.Background()
	store := NewBlobStore()

	cid, err := store.Put(ctx, []byte("evidence payload"))
	require.NoError(t, err)

	again, err := store.Put(ctx, []byte("evidence payload"))
	require.NoError(t, err)
	assert.Equal(t, cid, again, "identical content shares one cid")

	data, err := store.Get(ctx, cid)
	require.NoError(t, err)
	assert.Equal(t, []byte("evidence payload"), data)

	_, err = store.Get(ctx, dkg.HashPayload([]byte("other")).String())
	assert.True(t, errors.IsNotFound(err))
}

func TestStakeRegistry_FallsBackForUnknownVerifiers(t *testing.T) {
	ctx := context.Background()
	registry := NewStakeRegistry(map[string]float64{"verifier-1": 250}, 50)

	stake, err := registry.Stake(ctx, "verifier-1")
	require.NoError(t, err)
	assert.Equal(t, 250.0, stake)

	stake, err = registry.Stake(ctx, "verifier-99")
	require.NoError(t, err)
	assert.Equal(t, 50.0, stake)

	registry.SetStake("verifier-99", 80)
	stake, err = registry.Stake(ctx, "verifier-99")
	require.NoError(t, err)
	assert.Equal(t, 80.0, stake)
}

func TestThreadStore_FetchCopiesMessages(t *testing.T) {
	ctx := context.Background()
	store := NewThreadStore()
	store.AddThread("thread-1", []dkg.Message{
		{ID: "m1", Author: "alice", Content: "start", Timestamp: opened},
	})

	messages, err := store.FetchThread(ctx, "thread-1")
	require.NoError(t, err)
	require.Len(t, messages, 1)

	messages[0].Author = "mallory"
	fresh, err := store.FetchThread(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", fresh[0].Author)

	_, err = store.FetchThread(ctx, "thread-404")
	assert.True(t, errors.IsNotFound(err))
}
