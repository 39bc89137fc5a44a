package dynamodb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"arbiter-backend/internal/domain/audit"
	appErrors "arbiter-backend/internal/errors"
)

// ddbReport is the report item layout. The report itself travels as a
// JSON document; the flat attributes exist for keys and filtering.
type ddbReport struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	GSI1PK    string `dynamodbav:"GSI1PK"`
	GSI1SK    string `dynamodbav:"GSI1SK"`
	AuditID   string `dynamodbav:"AuditID"`
	ThreadID  string `dynamodbav:"ThreadID"`
	StudioID  string `dynamodbav:"StudioID"`
	Verdict   string `dynamodbav:"Verdict"`
	AuditedAt string `dynamodbav:"AuditedAt"`
	Document  string `dynamodbav:"Document"`
}

// ReportStore stores audit reports in DynamoDB.
type ReportStore struct {
	client *dynamodb.Client
	table  string
	index  string
	logger *zap.Logger
}

// NewReportStore creates a report store over the given table. index
// names the GSI keyed by thread.
func NewReportStore(client *dynamodb.Client, table, index string, logger *zap.Logger) *ReportStore {
	return &ReportStore{client: client, table: table, index: index, logger: logger}
}

func (s *ReportStore) SaveReport(ctx context.Context, report *audit.Report) error {
	doc, err := json.Marshal(report)
	if err != nil {
		return appErrors.Internal("REPORT_ENCODING", "report failed to encode").
			WithOperation("SaveReport").WithResource(report.AuditID).WithCause(err).Build()
	}
	auditedAt := report.AuditedAt.UTC().Format(time.RFC3339Nano)
	item, err := attributevalue.MarshalMap(ddbReport{
		PK:        auditPK(report.AuditID),
		SK:        reportSK,
		GSI1PK:    threadPK(report.ThreadID),
		GSI1SK:    "AUDIT#" + auditedAt + "#" + report.AuditID,
		AuditID:   report.AuditID,
		ThreadID:  report.ThreadID,
		StudioID:  report.StudioID,
		Verdict:   string(report.Verdict),
		AuditedAt: auditedAt,
		Document:  string(doc),
	})
	if err != nil {
		return appErrors.Internal("REPORT_ENCODING", "report item failed to marshal").
			WithOperation("SaveReport").WithResource(report.AuditID).WithCause(err).Build()
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return externalError("REPORT_SAVE_FAILED", "report could not be stored",
			"SaveReport", report.AuditID, err)
	}

	s.logger.Debug("report stored",
		zap.String("auditID", report.AuditID),
		zap.String("threadID", report.ThreadID))
	return nil
}

func (s *ReportStore) GetReport(ctx context.Context, auditID string) (*audit.Report, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       itemKey(auditPK(auditID), reportSK),
	})
	if err != nil {
		return nil, externalError("REPORT_LOAD_FAILED", "report could not be loaded",
			"GetReport", auditID, err)
	}
	if out.Item == nil {
		return nil, appErrors.NotFound("REPORT_NOT_FOUND", "no report recorded for audit").
			WithOperation("GetReport").WithResource(auditID).Build()
	}
	return decodeReportItem(out.Item)
}

func (s *ReportStore) ListReportsByThread(ctx context.Context, threadID string) ([]*audit.Report, error) {
	keyCond := expression.Key("GSI1PK").Equal(expression.Value(threadPK(threadID)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, appErrors.Internal("QUERY_BUILD_FAILED", "thread query failed to build").
			WithOperation("ListReportsByThread").WithCause(err).Build()
	}

	var reports []*audit.Report
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.table),
			IndexName:                 aws.String(s.index),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ScanIndexForward:          aws.Bool(false),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, externalError("REPORT_QUERY_FAILED", "thread reports could not be queried",
				"ListReportsByThread", threadID, err)
		}
		for _, item := range out.Items {
			report, err := decodeReportItem(item)
			if err != nil {
				return nil, err
			}
			reports = append(reports, report)
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return reports, nil
}

func decodeReportItem(item map[string]types.AttributeValue) (*audit.Report, error) {
	var row ddbReport
	if err := attributevalue.UnmarshalMap(item, &row); err != nil {
		return nil, appErrors.Internal("REPORT_DECODING", "report item failed to unmarshal").
			WithOperation("decodeReportItem").WithCause(err).Build()
	}
	var report audit.Report
	if err := json.Unmarshal([]byte(row.Document), &report); err != nil {
		return nil, appErrors.Internal("REPORT_DECODING", "report document failed to decode").
			WithOperation("decodeReportItem").WithResource(row.AuditID).WithCause(err).Build()
	}
	return &report, nil
}
