package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
	apperrors "github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/errors"
)

// DynamoBulkLoadRepoOptions configures DynamoBulkLoadRepo.
type DynamoBulkLoadRepoOptions struct {
	Client DynamoAPI
	Table  string
	// SourceIndex is a GSI with sourceKey as hash key and submittedAt as range key.
	SourceIndex string
}

// DynamoBulkLoadRepo stores one item per bulk-load job keyed by loadId.
type DynamoBulkLoadRepo struct {
	client      DynamoAPI
	table       string
	sourceIndex string
}

// NewDynamoBulkLoadRepo creates a repository from options.
func NewDynamoBulkLoadRepo(opts DynamoBulkLoadRepoOptions) *DynamoBulkLoadRepo {
	return &DynamoBulkLoadRepo{client: opts.Client, table: opts.Table, sourceIndex: opts.SourceIndex}
}

type bulkLoadItem struct {
	LoadID         string            `dynamodbav:"loadId"`
	SourceKey      string            `dynamodbav:"sourceKey,omitempty"`
	Source         string            `dynamodbav:"source,omitempty"`
	Status         model.LoadStatus  `dynamodbav:"status"`
	Payload        model.LoadPayload `dynamodbav:"payload"`
	StartTime      int64             `dynamodbav:"startTime"`
	TotalTimeSpent int64             `dynamodbav:"totalTimeSpent"`
	Error          *string           `dynamodbav:"error,omitempty"`
	SubmittedAt    string            `dynamodbav:"submittedAt"`
	UpdatedAt      string            `dynamodbav:"updatedAt"`
}

func toBulkLoadItem(job *model.BulkLoadJob) bulkLoadItem {
	return bulkLoadItem{
		LoadID:         job.LoadID,
		SourceKey:      job.SourceKey,
		Source:         job.Source,
		Status:         job.Status,
		Payload:        job.Payload,
		StartTime:      job.StartTime,
		TotalTimeSpent: job.TotalTimeSpent,
		Error:          job.Error,
		SubmittedAt:    model.FormatTimestamp(job.SubmittedAt),
		UpdatedAt:      model.FormatTimestamp(job.UpdatedAt),
	}
}

func (it bulkLoadItem) toModel() *model.BulkLoadJob {
	job := &model.BulkLoadJob{
		LoadID:         it.LoadID,
		SourceKey:      it.SourceKey,
		Source:         it.Source,
		Status:         it.Status,
		Payload:        it.Payload,
		StartTime:      it.StartTime,
		TotalTimeSpent: it.TotalTimeSpent,
		Error:          it.Error,
	}
	if t, err := model.ParseTimestamp(it.SubmittedAt); err == nil {
		job.SubmittedAt = t
	}
	if t, err := model.ParseTimestamp(it.UpdatedAt); err == nil {
		job.UpdatedAt = t
	}
	return job
}

// Put creates or replaces the record for a job.
func (r *DynamoBulkLoadRepo) Put(ctx context.Context, job *model.BulkLoadJob) error {
	if err := job.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid bulk load job")
	}
	item, err := attributevalue.MarshalMap(toBulkLoadItem(job))
	if err != nil {
		return fmt.Errorf("marshal bulk load job: %w", err)
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("put bulk load job: %w", apperrors.MapAWSError(err))
	}
	return nil
}

// Get returns the record for loadID or model.ErrBulkLoadNotFound.
func (r *DynamoBulkLoadRepo) Get(ctx context.Context, loadID string) (*model.BulkLoadJob, error) {
	if loadID == "" {
		return nil, ErrLoadIDRequired
	}
	key, err := attributevalue.MarshalMap(map[string]string{"loadId": loadID})
	if err != nil {
		return nil, fmt.Errorf("marshal bulk load key: %w", err)
	}
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get bulk load job: %w", apperrors.MapAWSError(err))
	}
	if len(out.Item) == 0 {
		return nil, model.ErrBulkLoadNotFound
	}
	var it bulkLoadItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal bulk load job: %w", err)
	}
	return it.toModel(), nil
}

// UpdateStatus overwrites the status snapshot of an existing record.
func (r *DynamoBulkLoadRepo) UpdateStatus(ctx context.Context, p model.UpdateLoadStatusParams) error {
	if p.LoadID == "" {
		return ErrLoadIDRequired
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	key, err := attributevalue.MarshalMap(map[string]string{"loadId": p.LoadID})
	if err != nil {
		return fmt.Errorf("marshal bulk load key: %w", err)
	}

	update := expression.
		Set(expression.Name("status"), expression.Value(p.Status)).
		Set(expression.Name("payload"), expression.Value(p.Payload)).
		Set(expression.Name("startTime"), expression.Value(p.StartTime)).
		Set(expression.Name("totalTimeSpent"), expression.Value(p.TotalTimeSpent)).
		Set(expression.Name("updatedAt"), expression.Value(model.FormatTimestamp(p.UpdatedAt)))
	cond := expression.AttributeExists(expression.Name("loadId"))
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("build bulk load update: %w", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.table),
		Key:                       key,
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return model.ErrBulkLoadNotFound
		}
		return fmt.Errorf("update bulk load status: %w", apperrors.MapAWSError(err))
	}
	return nil
}

// FindRecentBySource returns jobs for a source key submitted at or after q.Since, newest first.
func (r *DynamoBulkLoadRepo) FindRecentBySource(
	ctx context.Context,
	q model.RecentLoadsQuery,
) ([]*model.BulkLoadJob, error) {
	if q.SourceKey == "" {
		return nil, ErrSourceKeyMissing
	}
	keyCond := expression.Key("sourceKey").Equal(expression.Value(q.SourceKey)).
		And(expression.Key("submittedAt").GreaterThanEqual(expression.Value(model.FormatTimestamp(q.Since))))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("build bulk load source query: %w", err)
	}

	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.table),
		IndexName:                 aws.String(r.sourceIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("query bulk loads by source: %w", apperrors.MapAWSError(err))
	}

	var items []bulkLoadItem
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, fmt.Errorf("unmarshal bulk load jobs: %w", err)
	}
	jobs := make([]*model.BulkLoadJob, 0, len(items))
	for _, it := range items {
		jobs = append(jobs, it.toModel())
	}
	return jobs, nil
}
