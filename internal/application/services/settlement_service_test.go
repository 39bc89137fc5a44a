package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"arbiter-backend/internal/domain/analytics"
	"arbiter-backend/internal/domain/audit"
	"arbiter-backend/internal/domain/consensus"
	"arbiter-backend/internal/domain/dkg"
	"arbiter-backend/internal/errors"
	"arbiter-backend/internal/infrastructure/persistence/memory"
	"arbiter-backend/internal/ports"
)

var settlementEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func uniformVector(v float64) analytics.Vector {
	out := analytics.Vector{}
	for _, d := range analytics.StandardDimensions() {
		out[d] = v
	}
	return out
}

func scoreMatrix(alice, bob float64) analytics.ScoreSet {
	return analytics.ScoreSet{"alice": uniformVector(alice), "bob": uniformVector(bob)}
}

func settledReport() *audit.Report {
	return &audit.Report{
		AuditID:      "audit-1",
		ThreadID:     "thread-9",
		EvidenceID:   "ev-1",
		AgentID:      "agent-carol",
		StudioID:     "studio-research",
		DataHash:     dkg.HashPayload([]byte("evidence bytes")),
		Dimensions:   analytics.StandardDimensions(),
		Scores:       scoreMatrix(80, 60),
		Contribution: map[string]float64{"alice": 0.6, "bob": 0.4},
		Verdict:      audit.VerdictPassed,
		AuditedAt:    settlementEpoch.Add(-time.Hour),
	}
}

type settlementFixture struct {
	clock     *fakeClock
	stakes    *MockStakeRegistry
	publisher *MockEventPublisher
	reports   *memory.ReportStore
	rounds    *memory.RoundStore
	service   *SettlementService
}

func newSettlementFixture(t *testing.T) *settlementFixture {
	t.Helper()
	f := &settlementFixture{
		clock:     newFakeClock(settlementEpoch),
		stakes:    new(MockStakeRegistry),
		publisher: new(MockEventPublisher),
		reports:   memory.NewReportStore(),
		rounds:    memory.NewRoundStore(),
	}
	f.service = NewSettlementService(
		testCatalog(t),
		f.stakes,
		f.reports,
		f.rounds,
		f.publisher,
		testCollector(),
		zap.NewNop(),
	)
	f.service.WithClock(f.clock.Now)
	require.NoError(t, f.reports.SaveReport(context.Background(), settledReport()))
	return f
}

func (f *settlementFixture) open(t *testing.T) *consensus.Round {
	t.Helper()
	round, err := f.service.OpenRound(context.Background(), OpenRoundCommand{AuditID: "audit-1"})
	require.NoError(t, err)
	return round
}

// commit derives the digest the way a real verifier would and submits
// it with the mocked stake.
func (f *settlementFixture) commit(t *testing.T, round *consensus.Round, verifier string, stake float64, scores analytics.ScoreSet, salt []byte) {
	t.Helper()
	digest := consensus.CommitmentDigest(consensus.EncodeScores(round.Dimensions(), scores), salt, round.DataHash())
	f.stakes.On("Stake", mock.Anything, verifier).Return(stake, nil).Once()
	require.NoError(t, f.service.Commit(context.Background(), CommitCommand{
		RoundID:    round.ID(),
		VerifierID: verifier,
		Digest:     digest.String(),
	}))
}

func TestOpenRound_InheritsReportAndStudio(t *testing.T) {
	f := newSettlementFixture(t)
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)

	round := f.open(t)
	assert.Equal(t, "audit-1", round.AuditID())
	assert.Equal(t, "studio-research", round.StudioID())
	assert.Equal(t, []string{"alice", "bob"}, round.Participants())
	assert.Equal(t, analytics.StandardDimensions(), round.Dimensions())
	assert.Equal(t, settlementEpoch.Add(time.Hour), round.CommitDeadline())
	assert.Equal(t, settlementEpoch.Add(2*time.Hour), round.RevealDeadline())

	stored, err := f.service.GetRound(context.Background(), round.ID())
	require.NoError(t, err)
	assert.Equal(t, round.ID(), stored.ID())
}

func TestOpenRound_UnknownAudit(t *testing.T) {
	f := newSettlementFixture(t)
	_, err := f.service.OpenRound(context.Background(), OpenRoundCommand{AuditID: "audit-404"})
	assert.True(t, errors.IsNotFound(err))
}

func TestOpenRound_StudioMismatch(t *testing.T) {
	f := newSettlementFixture(t)
	_, err := f.service.OpenRound(context.Background(), OpenRoundCommand{AuditID: "audit-1", StudioID: "studio-other"})
	require.Error(t, err)
	assert.Equal(t, "STUDIO_MISMATCH", errors.CodeOf(err))
}

func TestCommit_RejectsStakeBelowStudioMinimum(t *testing.T) {
	f := newSettlementFixture(t)
	round := f.open(t)

	f.stakes.On("Stake", mock.Anything, "verifier-poor").Return(99.0, nil)
	err := f.service.Commit(context.Background(), CommitCommand{
		RoundID:    round.ID(),
		VerifierID: "verifier-poor",
		Digest:     dkg.HashPayload([]byte("digest")).String(),
	})
	require.Error(t, err)
	assert.Equal(t, "INSUFFICIENT_STAKE", errors.CodeOf(err))

	stored, err := f.service.GetRound(context.Background(), round.ID())
	require.NoError(t, err)
	assert.Empty(t, stored.Commitments())
}

func TestCommit_RejectsMalformedDigest(t *testing.T) {
	f := newSettlementFixture(t)
	round := f.open(t)

	err := f.service.Commit(context.Background(), CommitCommand{
		RoundID:    round.ID(),
		VerifierID: "verifier-1",
		Digest:     "not-a-hash",
	})
	require.Error(t, err)
	f.stakes.AssertNotCalled(t, "Stake", mock.Anything, mock.Anything)
}

func TestRoundLifecycle_CommitRevealSettle(t *testing.T) {
	ctx := context.Background()
	f := newSettlementFixture(t)
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)

	round := f.open(t)
	honest := scoreMatrix(80, 60)
	shifted := scoreMatrix(81, 59)
	f.commit(t, round, "verifier-1", 300, honest, []byte("salt-1"))
	f.commit(t, round, "verifier-2", 100, shifted, []byte("salt-2"))

	f.clock.Advance(61 * time.Minute)
	require.NoError(t, f.service.Reveal(ctx, RevealCommand{
		RoundID: round.ID(), VerifierID: "verifier-1", Scores: honest, Salt: []byte("salt-1"),
	}))
	require.NoError(t, f.service.Reveal(ctx, RevealCommand{
		RoundID: round.ID(), VerifierID: "verifier-2", Scores: shifted, Salt: []byte("salt-2"),
	}))

	result, err := f.service.Settle(ctx, SettleCommand{RoundID: round.ID(), Budget: 1000})
	require.NoError(t, err)

	outcome := result.Settlement.Outcome
	assert.False(t, outcome.Unscored)
	assert.ElementsMatch(t, []string{"verifier-1", "verifier-2"}, outcome.Inliers)
	assert.Empty(t, outcome.Outliers)
	assert.Empty(t, result.Settlement.NonRevealers)

	// Stake-weighted consensus: (80*300 + 81*100) / 400.
	assert.InDelta(t, 80.25, outcome.Scores["alice"][analytics.DimensionInitiative], 1e-9)
	assert.InDelta(t, 59.75, outcome.Scores["bob"][analytics.DimensionInitiative], 1e-9)

	// Workers share 80% of the budget in proportion to quality times
	// contribution: alice 0.8025*0.6, bob 0.5975*0.4.
	assert.InDelta(t, 800.0, result.Workers.Allocated, 1e-9)
	require.Len(t, result.Workers.Payouts, 2)
	assert.Equal(t, "alice", result.Workers.Payouts[0].Participant)
	assert.InDelta(t, 800*0.4815/0.7205, result.Workers.Payouts[0].Amount, 1e-9)
	assert.InDelta(t, 800*0.2390/0.7205, result.Workers.Payouts[1].Amount, 1e-9)

	// Verifiers share the remaining 20% weighted by stake/(1+dev).
	// Both deviate 0.5 from the cell medians.
	assert.InDelta(t, 200.0, result.Verifiers.Allocated, 1e-9)
	require.Len(t, result.Verifiers.Payouts, 2)
	assert.InDelta(t, 150.0, result.Verifiers.Payouts[0].Amount, 1e-9)
	assert.InDelta(t, 50.0, result.Verifiers.Payouts[1].Amount, 1e-9)

	stored, err := f.service.GetRound(ctx, round.ID())
	require.NoError(t, err)
	assert.True(t, stored.Settled())

	var settledEvents int
	for _, e := range f.publisher.Published() {
		if e.Type == ports.EventRoundSettled {
			settledEvents++
			assert.Equal(t, false, e.Detail["unscored"])
		}
	}
	assert.Equal(t, 1, settledEvents)
}

func TestReveal_WrongSaltNotPersisted(t *testing.T) {
	ctx := context.Background()
	f := newSettlementFixture(t)
	round := f.open(t)
	honest := scoreMatrix(80, 60)
	f.commit(t, round, "verifier-1", 300, honest, []byte("salt-1"))

	f.clock.Advance(61 * time.Minute)
	err := f.service.Reveal(ctx, RevealCommand{
		RoundID: round.ID(), VerifierID: "verifier-1", Scores: honest, Salt: []byte("wrong"),
	})
	require.Error(t, err)
	assert.True(t, errors.IsIntegrity(err))

	stored, err := f.service.GetRound(ctx, round.ID())
	require.NoError(t, err)
	assert.Empty(t, stored.Reveals())
}

func TestSettle_NonRevealerExcludedAndFlagged(t *testing.T) {
	ctx := context.Background()
	f := newSettlementFixture(t)
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)

	round := f.open(t)
	honest := scoreMatrix(80, 60)
	f.commit(t, round, "verifier-1", 300, honest, []byte("salt-1"))
	f.commit(t, round, "verifier-2", 100, scoreMatrix(81, 59), []byte("salt-2"))

	f.clock.Advance(61 * time.Minute)
	require.NoError(t, f.service.Reveal(ctx, RevealCommand{
		RoundID: round.ID(), VerifierID: "verifier-1", Scores: honest, Salt: []byte("salt-1"),
	}))

	f.clock.Advance(2 * time.Hour)
	result, err := f.service.Settle(ctx, SettleCommand{RoundID: round.ID(), Budget: 1000})
	require.NoError(t, err)

	assert.Equal(t, []string{"verifier-2"}, result.Settlement.NonRevealers)
	assert.Equal(t, []string{"verifier-1"}, result.Settlement.Outcome.Inliers)
	assert.InDelta(t, 80.0, result.Settlement.Outcome.Scores["alice"][analytics.DimensionEfficiency], 1e-9)

	// The silent verifier earns nothing; the lone revealer takes the
	// whole verifier budget.
	require.Len(t, result.Verifiers.Payouts, 1)
	assert.Equal(t, "verifier-1", result.Verifiers.Payouts[0].Verifier)
	assert.InDelta(t, 200.0, result.Verifiers.Payouts[0].Amount, 1e-9)

	var flagged []ports.Event
	for _, e := range f.publisher.Published() {
		if e.Type == ports.EventVerifierFlagged {
			flagged = append(flagged, e)
		}
	}
	require.Len(t, flagged, 1)
	assert.Equal(t, "verifier-2", flagged[0].Detail["verifier"])
	assert.Equal(t, "no_reveal", flagged[0].Detail["reason"])
}

func TestSettle_NoRevealsSettlesRoundButReportsGap(t *testing.T) {
	ctx := context.Background()
	f := newSettlementFixture(t)
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)

	round := f.open(t)
	f.commit(t, round, "verifier-1", 300, scoreMatrix(80, 60), []byte("salt-1"))

	f.clock.Advance(3 * time.Hour)
	result, err := f.service.Settle(ctx, SettleCommand{RoundID: round.ID(), Budget: 1000})
	require.Error(t, err)
	assert.True(t, errors.IsConsensusGap(err))
	assert.Nil(t, result)

	stored, err := f.service.GetRound(ctx, round.ID())
	require.NoError(t, err)
	assert.True(t, stored.Settled(), "a gap still closes the round")
	assert.True(t, stored.Settlement().Outcome.Unscored)

	var reasons []string
	for _, e := range f.publisher.Published() {
		if e.Type == ports.EventVerifierFlagged {
			reasons = append(reasons, e.Detail["reason"].(string))
		}
	}
	assert.Equal(t, []string{"no_reveal"}, reasons)
}

func TestSettle_NegativeBudgetLeavesRoundOpen(t *testing.T) {
	ctx := context.Background()
	f := newSettlementFixture(t)
	round := f.open(t)

	_, err := f.service.Settle(ctx, SettleCommand{RoundID: round.ID(), Budget: -5})
	require.Error(t, err)
	assert.Equal(t, "INVALID_BUDGET", errors.CodeOf(err))

	stored, err := f.service.GetRound(ctx, round.ID())
	require.NoError(t, err)
	assert.False(t, stored.Settled())
}

func TestSettle_SecondSettlementConflicts(t *testing.T) {
	ctx := context.Background()
	f := newSettlementFixture(t)
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)

	round := f.open(t)
	honest := scoreMatrix(80, 60)
	f.commit(t, round, "verifier-1", 300, honest, []byte("salt-1"))
	f.clock.Advance(61 * time.Minute)
	require.NoError(t, f.service.Reveal(ctx, RevealCommand{
		RoundID: round.ID(), VerifierID: "verifier-1", Scores: honest, Salt: []byte("salt-1"),
	}))

	_, err := f.service.Settle(ctx, SettleCommand{RoundID: round.ID(), Budget: 1000})
	require.NoError(t, err)

	_, err = f.service.Settle(ctx, SettleCommand{RoundID: round.ID(), Budget: 1000})
	assert.True(t, errors.IsConflict(err))
}
