package data

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
	apperrors "github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/errors"
)

type fakeDynamo struct {
	puts    []*dynamodb.PutItemInput
	updates []*dynamodb.UpdateItemInput
	queries []*dynamodb.QueryInput

	putErr    error
	updateErr error
	queryErr  error
	getItem   map[string]types.AttributeValue
	queryOut  []map[string]types.AttributeValue
}

func (f *fakeDynamo) PutItem(
	_ context.Context,
	in *dynamodb.PutItemInput,
	_ ...func(*dynamodb.Options),
) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, in)
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(
	_ context.Context,
	_ *dynamodb.GetItemInput,
	_ ...func(*dynamodb.Options),
) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.getItem}, nil
}

func (f *fakeDynamo) UpdateItem(
	_ context.Context,
	in *dynamodb.UpdateItemInput,
	_ ...func(*dynamodb.Options),
) (*dynamodb.UpdateItemOutput, error) {
	f.updates = append(f.updates, in)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) Query(
	_ context.Context,
	in *dynamodb.QueryInput,
	_ ...func(*dynamodb.Options),
) (*dynamodb.QueryOutput, error) {
	f.queries = append(f.queries, in)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &dynamodb.QueryOutput{Items: f.queryOut}, nil
}

func etlItem(t *testing.T, rec model.ETLLogRecord) map[string]types.AttributeValue {
	t.Helper()
	item, err := attributevalue.MarshalMap(rec)
	require.NoError(t, err)
	return item
}

func TestDynamoETLLogRepo_Append(t *testing.T) {
	ctx := context.Background()

	t.Run("writes item with conditional put", func(t *testing.T) {
		fake := &fakeDynamo{}
		repo := NewDynamoETLLogRepo(fake, "etl-log")
		rec := &model.ETLLogRecord{
			ID:        "orders.csv",
			Timestamp: model.FormatTimestamp(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)),
			Status:    model.ETLStatusSuccess,
			FileName:  "orders.csv",
		}
		require.NoError(t, repo.Append(ctx, rec))
		require.Len(t, fake.puts, 1)

		in := fake.puts[0]
		assert.Equal(t, "etl-log", aws.ToString(in.TableName))
		require.NotNil(t, in.ConditionExpression)
		assert.Contains(t, *in.ConditionExpression, "attribute_not_exists")

		var got model.ETLLogRecord
		require.NoError(t, attributevalue.UnmarshalMap(in.Item, &got))
		assert.Equal(t, *rec, got)
	})

	t.Run("failed record without error is rejected", func(t *testing.T) {
		fake := &fakeDynamo{}
		repo := NewDynamoETLLogRepo(fake, "etl-log")
		err := repo.Append(ctx, &model.ETLLogRecord{
			ID: "x.csv", Timestamp: "2024-01-01T00:00:00.000000000Z", Status: model.ETLStatusFailed,
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
		assert.Empty(t, fake.puts)
	})

	t.Run("conditional check failure is a duplicate", func(t *testing.T) {
		fake := &fakeDynamo{putErr: &types.ConditionalCheckFailedException{Message: aws.String("exists")}}
		repo := NewDynamoETLLogRepo(fake, "etl-log")
		err := repo.Append(ctx, &model.ETLLogRecord{
			ID: "x.csv", Timestamp: "2024-01-01T00:00:00.000000000Z", Status: model.ETLStatusSuccess,
		})
		require.ErrorIs(t, err, ErrDuplicateETLRecord)
	})

	t.Run("throttling is retryable", func(t *testing.T) {
		fake := &fakeDynamo{putErr: &smithy.GenericAPIError{Code: "ProvisionedThroughputExceededException"}}
		repo := NewDynamoETLLogRepo(fake, "etl-log")
		err := repo.Append(ctx, &model.ETLLogRecord{
			ID: "x.csv", Timestamp: "2024-01-01T00:00:00.000000000Z", Status: model.ETLStatusSuccess,
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsRetryable(err))
	})
}

func TestDynamoETLLogRepo_HistoryAndLatest(t *testing.T) {
	ctx := context.Background()
	errMsg := "throttled"
	older := model.ETLLogRecord{
		ID: "orders.csv", Timestamp: "2024-01-01T12:00:00.000000000Z",
		Status: model.ETLStatusPending, Error: &errMsg, Attempt: 0,
	}
	newer := model.ETLLogRecord{
		ID: "orders.csv", Timestamp: "2024-01-01T12:00:05.000000000Z",
		Status: model.ETLStatusSuccess, Attempt: 1,
	}

	fake := &fakeDynamo{queryOut: []map[string]types.AttributeValue{etlItem(t, older), etlItem(t, newer)}}
	repo := NewDynamoETLLogRepo(fake, "etl-log")

	records, err := repo.History(ctx, model.ETLHistoryQuery{ID: " orders.csv ", Limit: 0})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, newer.Timestamp, records[0].Timestamp)
	assert.Equal(t, older.Timestamp, records[1].Timestamp)

	in := fake.queries[0]
	assert.False(t, aws.ToBool(in.ScanIndexForward))
	assert.Equal(t, int32(50), aws.ToInt32(in.Limit))
	assert.Contains(t, in.ExpressionAttributeValues, ":0")

	latest, err := repo.Latest(ctx, "orders.csv")
	require.NoError(t, err)
	assert.Equal(t, model.ETLStatusSuccess, latest.Status)

	_, err = repo.History(ctx, model.ETLHistoryQuery{ID: "  "})
	assert.True(t, apperrors.IsValidation(err))
}

func TestDynamoETLLogRepo_LatestNotFound(t *testing.T) {
	repo := NewDynamoETLLogRepo(&fakeDynamo{}, "etl-log")
	_, err := repo.Latest(context.Background(), "missing.csv")
	require.ErrorIs(t, err, model.ErrETLLogNotFound)
}

func newTestBulkRepo(fake *fakeDynamo) *DynamoBulkLoadRepo {
	return NewDynamoBulkLoadRepo(DynamoBulkLoadRepoOptions{
		Client:      fake,
		Table:       "bulk-load-log",
		SourceIndex: "sourceKey-index",
	})
}

func TestDynamoBulkLoadRepo_PutAndGet(t *testing.T) {
	ctx := context.Background()
	submitted := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	job := &model.BulkLoadJob{
		LoadID:      "abc-123",
		SourceKey:   "output/orders/orders_nodes.csv",
		Source:      "s3://bucket/output/orders/orders_nodes.csv",
		Status:      model.LoadStatusInProgress,
		Payload:     model.LoadPayload{OverallStatus: "LOAD_IN_QUEUE"},
		SubmittedAt: submitted,
		UpdatedAt:   submitted,
	}

	fake := &fakeDynamo{}
	repo := newTestBulkRepo(fake)
	require.NoError(t, repo.Put(ctx, job))
	require.Len(t, fake.puts, 1)

	fake.getItem = fake.puts[0].Item
	got, err := repo.Get(ctx, "abc-123")
	require.NoError(t, err)
	assert.Equal(t, job.LoadID, got.LoadID)
	assert.Equal(t, job.SourceKey, got.SourceKey)
	assert.Equal(t, job.Status, got.Status)
	assert.Equal(t, "LOAD_IN_QUEUE", got.Payload.OverallStatus)
	assert.True(t, submitted.Equal(got.SubmittedAt))
}

func TestDynamoBulkLoadRepo_GetMissing(t *testing.T) {
	repo := newTestBulkRepo(&fakeDynamo{})
	_, err := repo.Get(context.Background(), "nope")
	require.ErrorIs(t, err, model.ErrBulkLoadNotFound)

	_, err = repo.Get(context.Background(), "")
	require.ErrorIs(t, err, ErrLoadIDRequired)
}

func TestDynamoBulkLoadRepo_UpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("conditional update", func(t *testing.T) {
		fake := &fakeDynamo{}
		repo := newTestBulkRepo(fake)
		err := repo.UpdateStatus(ctx, model.UpdateLoadStatusParams{
			LoadID:  "abc-123",
			Status:  model.LoadStatusCompleted,
			Payload: model.LoadPayload{OverallStatus: "LOAD_COMPLETED", FeedCount: 1},
		})
		require.NoError(t, err)
		require.Len(t, fake.updates, 1)
		in := fake.updates[0]
		require.NotNil(t, in.ConditionExpression)
		assert.Contains(t, *in.ConditionExpression, "attribute_exists")
		assert.Contains(t, *in.UpdateExpression, "SET")
	})

	t.Run("missing record", func(t *testing.T) {
		fake := &fakeDynamo{updateErr: &types.ConditionalCheckFailedException{}}
		repo := newTestBulkRepo(fake)
		err := repo.UpdateStatus(ctx, model.UpdateLoadStatusParams{LoadID: "gone", Status: model.LoadStatusFailed})
		require.ErrorIs(t, err, model.ErrBulkLoadNotFound)
	})
}

func TestDynamoBulkLoadRepo_FindRecentBySource(t *testing.T) {
	ctx := context.Background()
	item, err := attributevalue.MarshalMap(toBulkLoadItem(&model.BulkLoadJob{
		LoadID:      "abc-123",
		SourceKey:   "output/orders/orders_nodes.csv",
		Status:      model.LoadStatusInProgress,
		SubmittedAt: time.Now(),
		UpdatedAt:   time.Now(),
	}))
	require.NoError(t, err)

	fake := &fakeDynamo{queryOut: []map[string]types.AttributeValue{item}}
	repo := newTestBulkRepo(fake)

	jobs, err := repo.FindRecentBySource(ctx, model.RecentLoadsQuery{
		SourceKey: "output/orders/orders_nodes.csv",
		Since:     time.Now().Add(-5 * time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "abc-123", jobs[0].LoadID)
	assert.Equal(t, "sourceKey-index", aws.ToString(fake.queries[0].IndexName))

	_, err = repo.FindRecentBySource(ctx, model.RecentLoadsQuery{})
	require.ErrorIs(t, err, ErrSourceKeyMissing)

	fake.queryErr = &smithy.GenericAPIError{Code: "ResourceNotFoundException"}
	_, err = repo.FindRecentBySource(ctx, model.RecentLoadsQuery{SourceKey: "k"})
	assert.True(t, apperrors.IsNotFound(err))
}
