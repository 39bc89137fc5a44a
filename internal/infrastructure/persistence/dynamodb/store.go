// Package dynamodb persists audit reports and consensus rounds in a
// single DynamoDB table. Items carry a small set of queryable
// attributes plus the full domain object as a JSON document; rounds are
// versioned and written behind a conditional expression, so concurrent
// commits and reveals against one round serialize through optimistic
// locking instead of a process-local mutex.
package dynamodb

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	appErrors "arbiter-backend/internal/errors"
)

// Sort keys of the item kinds stored in the table.
const (
	reportSK = "REPORT#v0"
	roundSK  = "STATE#v0"
)

func auditPK(auditID string) string { return "AUDIT#" + auditID }

func roundPK(roundID string) string { return "ROUND#" + roundID }

func threadPK(threadID string) string { return "THREAD#" + threadID }

// itemKey builds the primary key map for a PK/SK pair.
func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// externalError wraps an AWS SDK failure. Throttle and availability
// codes are marked retryable so callers can back off; the service
// error code rides along in the details.
func externalError(code, message, operation, resource string, cause error) error {
	builder := appErrors.External(code, message).
		WithOperation(operation).WithResource(resource).WithCause(cause)

	var apiErr smithy.APIError
	if errors.As(cause, &apiErr) {
		builder = builder.WithDetails(map[string]interface{}{"aws_code": apiErr.ErrorCode()})
		switch apiErr.ErrorCode() {
		case "ProvisionedThroughputExceededException", "RequestLimitExceeded",
			"ThrottlingException", "InternalServerError", "ServiceUnavailable":
			builder = builder.WithRetryable(true)
		}
	}
	return builder.Build()
}
