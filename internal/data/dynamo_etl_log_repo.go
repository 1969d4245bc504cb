package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
	apperrors "github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/errors"
)

// DynamoETLLogRepo stores the append-only ETL log in a DynamoDB table keyed by (id, timestamp).
type DynamoETLLogRepo struct {
	client DynamoAPI
	table  string
}

// NewDynamoETLLogRepo creates a repository over the given table.
func NewDynamoETLLogRepo(client DynamoAPI, table string) *DynamoETLLogRepo {
	return &DynamoETLLogRepo{client: client, table: table}
}

// Append writes one attempt record. Existing records are never overwritten.
func (r *DynamoETLLogRepo) Append(ctx context.Context, rec *model.ETLLogRecord) error {
	if err := rec.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid etl log record")
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal etl log record: %w", err)
	}

	cond := expression.AttributeNotExists(expression.Name("timestamp"))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("build etl log condition: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.table),
		Item:                     item,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: %s@%s", ErrDuplicateETLRecord, rec.ID, rec.Timestamp)
		}
		return fmt.Errorf("put etl log record: %w", apperrors.MapAWSError(err))
	}
	return nil
}

// History returns the attempts recorded for a file, newest first.
func (r *DynamoETLLogRepo) History(ctx context.Context, q model.ETLHistoryQuery) ([]*model.ETLLogRecord, error) {
	q.Normalize()
	if q.ID == "" {
		return nil, apperrors.ValidationField("id", "id is required")
	}

	keyCond := expression.Key("id").Equal(expression.Value(q.ID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("build etl log query: %w", err)
	}

	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(int32(q.Limit)), //nolint:gosec // limit is bounded by Normalize
	})
	if err != nil {
		return nil, fmt.Errorf("query etl log: %w", apperrors.MapAWSError(err))
	}

	var records []*model.ETLLogRecord
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &records); err != nil {
		return nil, fmt.Errorf("unmarshal etl log records: %w", err)
	}
	model.SortETLRecordsNewestFirst(records)
	return records, nil
}

// Latest returns the authoritative record for a file or model.ErrETLLogNotFound.
func (r *DynamoETLLogRepo) Latest(ctx context.Context, id string) (*model.ETLLogRecord, error) {
	records, err := r.History(ctx, model.ETLHistoryQuery{ID: id, Limit: 1})
	if err != nil {
		return nil, err
	}
	latest := model.LatestETLRecord(records)
	if latest == nil {
		return nil, model.ErrETLLogNotFound
	}
	return latest, nil
}
