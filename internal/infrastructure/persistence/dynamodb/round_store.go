package dynamodb

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"arbiter-backend/internal/domain/consensus"
	"arbiter-backend/internal/domain/dkg"
	appErrors "arbiter-backend/internal/errors"
)

// maxUpdateAttempts bounds optimistic-lock retries per update.
const maxUpdateAttempts = 3

// ddbRound is the round item layout.
type ddbRound struct {
	PK       string `dynamodbav:"PK"`
	SK       string `dynamodbav:"SK"`
	RoundID  string `dynamodbav:"RoundID"`
	StudioID string `dynamodbav:"StudioID"`
	AuditID  string `dynamodbav:"AuditID"`
	Settled  bool   `dynamodbav:"Settled"`
	Version  int    `dynamodbav:"Version"`
	Document string `dynamodbav:"Document"`
}

// roundDoc is the JSON shape of a persisted round.
type roundDoc struct {
	ID           string                 `json:"id"`
	StudioID     string                 `json:"studio_id"`
	AuditID      string                 `json:"audit_id"`
	DataHash     dkg.Hash               `json:"data_hash"`
	Dimensions   []string               `json:"dimensions"`
	Participants []string               `json:"participants"`
	MADMultiple  float64                `json:"mad_multiple"`
	CommitWindow time.Duration          `json:"commit_window"`
	RevealWindow time.Duration          `json:"reveal_window"`
	OpenedAt     time.Time              `json:"opened_at"`
	Commitments  []consensus.Commitment `json:"commitments,omitempty"`
	Reveals      []consensus.Submission `json:"reveals,omitempty"`
	Settlement   *consensus.Settlement  `json:"settlement,omitempty"`
}

// RoundStore stores consensus rounds in DynamoDB. Every update reloads
// the round, applies the transition and writes back behind a version
// condition, retrying on contention.
type RoundStore struct {
	client *dynamodb.Client
	table  string
	logger *zap.Logger
}

// NewRoundStore creates a round store over the given table.
func NewRoundStore(client *dynamodb.Client, table string, logger *zap.Logger) *RoundStore {
	return &RoundStore{client: client, table: table, logger: logger}
}

func (s *RoundStore) CreateRound(ctx context.Context, round *consensus.Round) error {
	item, err := marshalRound(round, 0)
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return appErrors.Conflict("ROUND_EXISTS", "round id is already in use").
				WithOperation("CreateRound").WithResource(round.ID()).Build()
		}
		return externalError("ROUND_SAVE_FAILED", "round could not be stored",
			"CreateRound", round.ID(), err)
	}

	s.logger.Debug("round stored",
		zap.String("roundID", round.ID()),
		zap.String("auditID", round.AuditID()))
	return nil
}

func (s *RoundStore) GetRound(ctx context.Context, roundID string) (*consensus.Round, error) {
	round, _, err := s.load(ctx, roundID)
	return round, err
}

func (s *RoundStore) UpdateRound(ctx context.Context, roundID string, mutate func(*consensus.Round) error) error {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		round, version, err := s.load(ctx, roundID)
		if err != nil {
			return err
		}
		if err := mutate(round); err != nil {
			return err
		}

		item, err := marshalRound(round, version+1)
		if err != nil {
			return err
		}
		_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(s.table),
			Item:                item,
			ConditionExpression: aws.String("Version = :expected_version"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":expected_version": &types.AttributeValueMemberN{Value: strconv.Itoa(version)},
			},
		})
		if err == nil {
			return nil
		}
		if !isConditionalCheckFailed(err) {
			return externalError("ROUND_SAVE_FAILED", "round could not be stored",
				"UpdateRound", roundID, err)
		}
		s.logger.Debug("round update contention, retrying",
			zap.String("roundID", roundID),
			zap.Int("attempt", attempt+1))
	}
	return appErrors.Conflict("ROUND_CONTENTION", "round update lost every optimistic-lock attempt").
		WithOperation("UpdateRound").WithResource(roundID).WithRetryable(true).Build()
}

// load reads the round with a consistent read and returns it with its
// stored version.
func (s *RoundStore) load(ctx context.Context, roundID string) (*consensus.Round, int, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            itemKey(roundPK(roundID), roundSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, 0, externalError("ROUND_LOAD_FAILED", "round could not be loaded",
			"GetRound", roundID, err)
	}
	if out.Item == nil {
		return nil, 0, appErrors.NotFound("ROUND_NOT_FOUND", "no round with this id").
			WithOperation("GetRound").WithResource(roundID).Build()
	}

	var row ddbRound
	if err := attributevalue.UnmarshalMap(out.Item, &row); err != nil {
		return nil, 0, appErrors.Internal("ROUND_DECODING", "round item failed to unmarshal").
			WithOperation("GetRound").WithResource(roundID).WithCause(err).Build()
	}
	round, err := decodeRoundDoc([]byte(row.Document))
	if err != nil {
		return nil, 0, err
	}
	return round, row.Version, nil
}

func marshalRound(round *consensus.Round, version int) (map[string]types.AttributeValue, error) {
	doc, err := json.Marshal(roundDoc{
		ID:           round.ID(),
		StudioID:     round.StudioID(),
		AuditID:      round.AuditID(),
		DataHash:     round.DataHash(),
		Dimensions:   round.Dimensions(),
		Participants: round.Participants(),
		MADMultiple:  round.MADMultiple(),
		CommitWindow: round.CommitDeadline().Sub(round.OpenedAt()),
		RevealWindow: round.RevealDeadline().Sub(round.CommitDeadline()),
		OpenedAt:     round.OpenedAt(),
		Commitments:  round.Commitments(),
		Reveals:      round.Reveals(),
		Settlement:   round.Settlement(),
	})
	if err != nil {
		return nil, appErrors.Internal("ROUND_ENCODING", "round failed to encode").
			WithOperation("marshalRound").WithResource(round.ID()).WithCause(err).Build()
	}

	item, err := attributevalue.MarshalMap(ddbRound{
		PK:       roundPK(round.ID()),
		SK:       roundSK,
		RoundID:  round.ID(),
		StudioID: round.StudioID(),
		AuditID:  round.AuditID(),
		Settled:  round.Settled(),
		Version:  version,
		Document: string(doc),
	})
	if err != nil {
		return nil, appErrors.Internal("ROUND_ENCODING", "round item failed to marshal").
			WithOperation("marshalRound").WithResource(round.ID()).WithCause(err).Build()
	}
	return item, nil
}

func decodeRoundDoc(raw []byte) (*consensus.Round, error) {
	var doc roundDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, appErrors.Internal("ROUND_DECODING", "round document failed to decode").
			WithOperation("decodeRoundDoc").WithCause(err).Build()
	}
	return consensus.ReconstructRound(consensus.RoundParams{
		ID:           doc.ID,
		StudioID:     doc.StudioID,
		AuditID:      doc.AuditID,
		DataHash:     doc.DataHash,
		Dimensions:   doc.Dimensions,
		Participants: doc.Participants,
		MADMultiple:  doc.MADMultiple,
		CommitWindow: doc.CommitWindow,
		RevealWindow: doc.RevealWindow,
		OpenedAt:     doc.OpenedAt,
	}, doc.Commitments, doc.Reveals, doc.Settlement)
}
