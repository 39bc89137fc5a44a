package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Creation(t *testing.T) {
	tests := []struct {
		name     string
		builder  func() *Error
		expected *Error
	}{
		{
			name: "structural error",
			builder: func() *Error {
				return Structural(CodeMissingParent, "parent not present in graph").
					WithResource("node").
					Build()
			},
			expected: &Error{
				Type:      ErrorTypeStructural,
				Code:      CodeMissingParent,
				Message:   "parent not present in graph",
				Resource:  "node",
				Severity:  SeverityHigh,
				Retryable: false,
			},
		},
		{
			name: "input error is retryable",
			builder: func() *Error {
				return Input("THREAD_FETCH_FAILED", "thread fetch failed").
					WithOperation("FetchThread").
					Build()
			},
			expected: &Error{
				Type:      ErrorTypeInput,
				Code:      "THREAD_FETCH_FAILED",
				Message:   "thread fetch failed",
				Operation: "FetchThread",
				Severity:  SeverityMedium,
				Retryable: true,
			},
		},
		{
			name: "config error",
			builder: func() *Error {
				return Config("WEIGHTS_SUM", "dimension weights must sum to 1").Build()
			},
			expected: &Error{
				Type:      ErrorTypeConfig,
				Code:      "WEIGHTS_SUM",
				Message:   "dimension weights must sum to 1",
				Severity:  SeverityHigh,
				Retryable: false,
			},
		},
		{
			name: "consensus gap",
			builder: func() *Error {
				return ConsensusGap("NO_REVEALS", "no verifier revealed").Build()
			},
			expected: &Error{
				Type:      ErrorTypeConsensusGap,
				Code:      "NO_REVEALS",
				Message:   "no verifier revealed",
				Severity:  SeverityMedium,
				Retryable: false,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.builder()

			assert.Equal(t, tt.expected.Type, err.Type)
			assert.Equal(t, tt.expected.Code, err.Code)
			assert.Equal(t, tt.expected.Message, err.Message)
			assert.Equal(t, tt.expected.Operation, err.Operation)
			assert.Equal(t, tt.expected.Resource, err.Resource)
			assert.Equal(t, tt.expected.Severity, err.Severity)
			assert.Equal(t, tt.expected.Retryable, err.Retryable)
		})
	}
}

func TestError_Interface(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := External("BLOB_STORE_UNREACHABLE", "blob store unreachable").
		WithCause(cause).
		Build()

	assert.Contains(t, err.Error(), "EXTERNAL")
	assert.Contains(t, err.Error(), "BLOB_STORE_UNREACHABLE")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestError_Classification(t *testing.T) {
	structural := Structural(CodeCycleDetected, "cycle in causal graph").Build()
	wrapped := fmt.Errorf("building graph: %w", structural)

	assert.True(t, IsStructural(wrapped))
	assert.False(t, IsInput(wrapped))
	assert.Equal(t, CodeCycleDetected, CodeOf(wrapped))

	assert.True(t, IsConfig(Config("BAD_MAD_MULTIPLE", "negative multiple").Build()))
	assert.True(t, IsConsensusGap(ConsensusGap("NO_REVEALS", "nothing revealed").Build()))
	assert.True(t, IsNotFound(NotFound("ROUND_NOT_FOUND", "no such round").Build()))
	assert.True(t, IsConflict(Conflict("ROUND_CLOSED", "commit window closed").Build()))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
}

func TestError_IsMatchesTypeAndCode(t *testing.T) {
	a := Structural(CodeMissingParent, "missing parent p1").Build()
	b := Structural(CodeMissingParent, "missing parent p2").Build()
	c := Structural(CodeConflictingNode, "conflicting re-add").Build()

	require.True(t, errors.Is(a, b))
	require.False(t, errors.Is(a, c))
}

func TestError_WithDetailDoesNotMutate(t *testing.T) {
	base := Integrity("ROOT_MISMATCH", "computed root differs").
		WithDetails(map[string]interface{}{"expected": "ab"}).
		Build()
	derived := base.WithDetail("computed", "cd")

	assert.NotContains(t, base.Details, "computed")
	assert.Equal(t, "cd", derived.Details["computed"])
	assert.Equal(t, "ab", derived.Details["expected"])
}
