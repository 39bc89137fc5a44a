package dynamodb

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbiter-backend/internal/domain/analytics"
	"arbiter-backend/internal/domain/audit"
	"arbiter-backend/internal/domain/consensus"
	"arbiter-backend/internal/domain/dkg"
	appErrors "arbiter-backend/internal/errors"
)

func buildRound(t *testing.T) *consensus.Round {
	t.Helper()
	opened := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	round, err := consensus.NewRound(consensus.RoundParams{
		ID:           "round-1",
		StudioID:     "studio-1",
		AuditID:      "audit-1",
		DataHash:     dkg.HashPayload([]byte("evidence")),
		Dimensions:   []string{"initiative", "efficiency"},
		Participants: []string{"agent-1"},
		MADMultiple:  3,
		CommitWindow: time.Hour,
		RevealWindow: 30 * time.Minute,
		OpenedAt:     opened,
	})
	require.NoError(t, err)

	scores := analytics.ScoreSet{"agent-1": {"initiative": 81, "efficiency": 64}}
	salt := []byte("salt-1")
	digest := consensus.CommitmentDigest(consensus.EncodeScores(round.Dimensions(), scores), salt, round.DataHash())
	require.NoError(t, round.Commit("verifier-1", 250, digest, opened.Add(5*time.Minute)))
	require.NoError(t, round.Reveal("verifier-1", scores, salt, opened.Add(65*time.Minute)))
	return round
}

func TestRoundItem_RoundTripsFullState(t *testing.T) {
	round := buildRound(t)
	_, err := round.Settle(round.RevealDeadline().Add(time.Minute))
	require.NoError(t, err)

	item, err := marshalRound(round, 7)
	require.NoError(t, err)

	var row ddbRound
	require.NoError(t, attributevalue.UnmarshalMap(item, &row))
	assert.Equal(t, "ROUND#round-1", row.PK)
	assert.Equal(t, roundSK, row.SK)
	assert.Equal(t, 7, row.Version)
	assert.True(t, row.Settled)

	restored, err := decodeRoundDoc([]byte(row.Document))
	require.NoError(t, err)
	assert.Equal(t, round.ID(), restored.ID())
	assert.Equal(t, round.CommitDeadline(), restored.CommitDeadline())
	assert.Equal(t, round.RevealDeadline(), restored.RevealDeadline())
	assert.Equal(t, round.Commitments(), restored.Commitments())
	assert.Equal(t, round.Reveals(), restored.Reveals())

	require.NotNil(t, restored.Settlement())
	assert.Equal(t, round.Settlement().Outcome.Scores, restored.Settlement().Outcome.Scores)
}

func TestRoundItem_UnsettledRoundStaysOpen(t *testing.T) {
	round := buildRound(t)

	item, err := marshalRound(round, 0)
	require.NoError(t, err)
	var row ddbRound
	require.NoError(t, attributevalue.UnmarshalMap(item, &row))
	assert.False(t, row.Settled)

	restored, err := decodeRoundDoc([]byte(row.Document))
	require.NoError(t, err)
	assert.False(t, restored.Settled())

	// The restored round must accept the transitions the original
	// still had ahead of it.
	_, err = restored.Settle(restored.RevealDeadline().Add(time.Second))
	require.NoError(t, err)
}

func TestExternalError_ClassifiesAWSFailures(t *testing.T) {
	throttled := &smithy.GenericAPIError{Code: "ProvisionedThroughputExceededException", Message: "slow down"}
	err := externalError("ROUND_SAVE_FAILED", "round could not be stored", "UpdateRound", "round-1", throttled)

	var appErr *appErrors.Error
	require.True(t, appErrors.As(err, &appErr))
	assert.True(t, appErr.Retryable)
	assert.Equal(t, "ProvisionedThroughputExceededException", appErr.Details["aws_code"])

	denied := &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "not authorized"}
	err = externalError("ROUND_SAVE_FAILED", "round could not be stored", "UpdateRound", "round-1", denied)
	require.True(t, appErrors.As(err, &appErr))
	assert.False(t, appErr.Retryable)
	assert.Equal(t, "AccessDeniedException", appErr.Details["aws_code"])
}

func TestReportItem_DocumentDecodes(t *testing.T) {
	report := &audit.Report{
		AuditID:    "audit-1",
		ThreadID:   "thread-1",
		StudioID:   "studio-1",
		DataHash:   dkg.HashPayload([]byte("evidence")),
		Dimensions: analytics.StandardDimensions(),
		Scores:     analytics.ScoreSet{"alice": {"initiative": 100}},
		Verdict:    audit.VerdictPassed,
		AuditedAt:  time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC),
	}
	doc, err := json.Marshal(report)
	require.NoError(t, err)

	item, err := attributevalue.MarshalMap(ddbReport{
		PK:       auditPK(report.AuditID),
		SK:       reportSK,
		AuditID:  report.AuditID,
		Document: string(doc),
	})
	require.NoError(t, err)

	got, err := decodeReportItem(item)
	require.NoError(t, err)
	assert.Equal(t, report.AuditID, got.AuditID)
	assert.Equal(t, report.DataHash, got.DataHash)
	assert.Equal(t, report.Scores, got.Scores)
	assert.Equal(t, report.Verdict, got.Verdict)
}
