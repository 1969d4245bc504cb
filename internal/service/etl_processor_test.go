package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/core"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/etl"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/mocks"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/observability/notify"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/service/failurenotifier"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/testutil"
)

const (
	testBucket    = "data"
	testKey       = "incoming/orders.csv"
	testEventTime = "2024-01-01T11:59:00Z"
)

type etlHarness struct {
	clock       *testutil.Clock
	store       *testutil.MemObjectStore
	queue       *testutil.MemQueue
	dlq         *testutil.MemQueue
	log         *testutil.MemETLLog
	transformer *testutil.ScriptedTransformer
	processor   *ETLProcessor
	consumer    *ThrottleConsumer

	mu       sync.Mutex
	failures []notify.PipelineFailurePayload
}

type harnessConfig struct {
	processor ETLProcessorConfig
	consumer  ThrottleConsumerConfig
	maxRecv   int
}

func newETLHarness(t *testing.T, tweak ...func(*harnessConfig)) *etlHarness {
	t.Helper()
	cfg := harnessConfig{
		processor: ETLProcessorConfig{
			SchemaKey:        "schema/graph_schema.txt",
			SampleBytes:      1024,
			MaxRetries:       3,
			LogWriteAttempts: 2,
			RecordPending:    true,
		},
		consumer: ThrottleConsumerConfig{
			MaxMessages:        10,
			VisibilityTimeout:  30 * time.Second,
			Concurrency:        2,
			DeadLetterFailures: true,
		},
		maxRecv: 8,
	}
	for _, fn := range tweak {
		fn(&cfg)
	}

	h := &etlHarness{
		clock:       testutil.NewClock(testutil.TestTime()),
		store:       testutil.NewMemObjectStore(),
		log:         testutil.NewMemETLLog(),
		transformer: testutil.NewScriptedTransformer(testutil.OrdersMapping().Success()),
	}
	h.dlq = testutil.NewMemQueue(testutil.MemQueueOptions{Clock: h.clock})
	h.queue = testutil.NewMemQueue(testutil.MemQueueOptions{Clock: h.clock, MaxReceiveCount: cfg.maxRecv, DLQ: h.dlq})

	backoff, err := etl.NewBackoffPolicy(etl.BackoffOptions{
		Base: time.Second,
		Max:  time.Minute,
		Rand: func() float64 { return 0.5 },
	})
	require.NoError(t, err)

	notifier := failurenotifier.NewService(failurenotifier.Options{Sinks: []failurenotifier.SinkRegistration{{
		Name: "capture",
		Sink: notify.SinkFunc(func(_ context.Context, p notify.PipelineFailurePayload) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.failures = append(h.failures, p)
			return nil
		}),
	}}})

	h.processor, err = NewETLProcessor(ETLProcessorOptions{
		Store:       h.store,
		Transformer: h.transformer,
		Queue:       h.queue,
		Log:         h.log,
		Backoff:     backoff,
		Config:      cfg.processor,
		Notifier:    notifier,
		Now:         h.clock.Now,
	})
	require.NoError(t, err)

	h.consumer, err = NewThrottleConsumer(ThrottleConsumerOptions{
		Queue:     h.queue,
		Processor: h.processor,
		Config:    cfg.consumer,
		Now:       h.clock.Now,
	})
	require.NoError(t, err)
	return h
}

func (h *etlHarness) envelope() model.FileEnvelope {
	return model.FileEnvelope{
		Bucket:      testBucket,
		Key:         testKey,
		EventName:   "ObjectCreated:Put",
		EventTime:   testEventTime,
		FirstSeenAt: h.clock.Now(),
	}
}

func (h *etlHarness) notifications() []notify.PipelineFailurePayload {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]notify.PipelineFailurePayload(nil), h.failures...)
}

func decodeEnvelope(t *testing.T, body string) model.FileEnvelope {
	t.Helper()
	var env model.FileEnvelope
	require.NoError(t, json.Unmarshal([]byte(body), &env))
	return env
}

func TestNewETLProcessor_RequiresDependencies(t *testing.T) {
	_, err := NewETLProcessor(ETLProcessorOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ObjectStore is required")
}

func TestETLProcessor_Success(t *testing.T) {
	ctx := context.Background()
	h := newETLHarness(t)
	h.store.Seed(testBucket, testKey, []byte(testutil.OrdersCSV))
	h.store.Seed(testBucket, "schema/graph_schema.txt", []byte("(:Order)-[:PLACED_BY]->(:Customer)"))

	res, err := h.processor.Process(ctx, h.envelope())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, res.Outcome)

	nodes, ok := h.store.Object(testBucket, "output/orders/orders_nodes.csv")
	require.True(t, ok)
	assert.Contains(t, string(nodes), "~id,~label")
	assert.Contains(t, string(nodes), "Order_1")
	_, ok = h.store.Object(testBucket, "output/orders/orders_edges_PLACED_BY.csv")
	assert.True(t, ok)

	recs := h.log.All(testKey)
	require.Len(t, recs, 1)
	assert.Equal(t, model.ETLStatusSuccess, recs[0].Status)
	assert.Equal(t, "Order", recs[0].NodeLabel)
	assert.Equal(t, testEventTime, recs[0].EventTime)
	assert.ElementsMatch(t, []string{
		"output/orders/orders_nodes.csv",
		"output/orders/orders_edges_PLACED_BY.csv",
	}, recs[0].OutputKeys)
	assert.Nil(t, recs[0].Error)

	require.Len(t, h.transformer.Calls, 1)
	call := h.transformer.Calls[0]
	assert.Equal(t, "orders.csv", call.FileName)
	assert.Contains(t, call.Records, "order_id,customer_id,amount")
	assert.Contains(t, call.GraphSchema, ":Order")
	assert.Equal(t, 0, h.queue.Len())
	assert.Empty(t, h.notifications())
}

func TestETLProcessor_RetryableSchedulesBackoff(t *testing.T) {
	ctx := context.Background()
	h := newETLHarness(t)
	h.store.Seed(testBucket, testKey, []byte(testutil.OrdersCSV))
	h.transformer.Script["orders.csv"] = []model.TransformResult{
		{Kind: model.TransformRateLimited, Detail: "ThrottlingException: slow down"},
	}

	res, err := h.processor.Process(ctx, h.envelope())
	require.NoError(t, err)
	assert.Equal(t, OutcomeRetried, res.Outcome)
	assert.Equal(t, time.Second, res.Delay)

	bodies := h.queue.Bodies()
	require.Len(t, bodies, 1)
	next := decodeEnvelope(t, bodies[0])
	assert.Equal(t, 1, next.Attempt)
	assert.Equal(t, testEventTime, next.EventTime)
	assert.Contains(t, next.LastError, "rate_limited")
	assert.Equal(t, []time.Duration{time.Second}, h.queue.SentDelays)

	recs := h.log.All(testKey)
	require.Len(t, recs, 1)
	assert.Equal(t, model.ETLStatusPending, recs[0].Status)
	assert.Empty(t, h.store.Puts)
}

func TestETLProcessor_BackoffGrowsWithAttempt(t *testing.T) {
	ctx := context.Background()
	h := newETLHarness(t, func(c *harnessConfig) { c.processor.MaxRetries = 10 })
	h.store.Seed(testBucket, testKey, []byte(testutil.OrdersCSV))
	h.transformer.Fallback = model.TransformResult{Kind: model.TransformTransient, Detail: "timeout"}

	env := h.envelope()
	env.Attempt = 3
	res, err := h.processor.Process(ctx, env)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRetried, res.Outcome)
	assert.Equal(t, 8*time.Second, res.Delay)
}

func TestETLProcessor_RetriesExhausted(t *testing.T) {
	ctx := context.Background()
	h := newETLHarness(t)
	h.store.Seed(testBucket, testKey, []byte(testutil.OrdersCSV))
	h.transformer.Fallback = model.TransformResult{Kind: model.TransformTransient, Detail: "service unavailable"}

	env := h.envelope()
	env.Attempt = 3
	res, err := h.processor.Process(ctx, env)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, 0, h.queue.Len())

	recs := h.log.All(testKey)
	require.Len(t, recs, 1)
	assert.Equal(t, model.ETLStatusFailed, recs[0].Status)
	require.NotNil(t, recs[0].Error)
	assert.Contains(t, *recs[0].Error, "retries exhausted after attempt 3")

	sent := h.notifications()
	require.Len(t, sent, 1)
	assert.Equal(t, notify.StageETL, sent[0].Stage)
	assert.Equal(t, testKey, sent[0].Subject)
	assert.Equal(t, "orders.csv", sent[0].FileName)
	assert.Equal(t, 3, sent[0].Attempt)
}

func TestETLProcessor_MissingObjectFailsWithoutRetry(t *testing.T) {
	ctx := context.Background()
	h := newETLHarness(t)

	res, err := h.processor.Process(ctx, h.envelope())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, 0, h.transformer.CallCount())
	assert.Equal(t, 0, h.queue.Len())

	recs := h.log.All(testKey)
	require.Len(t, recs, 1)
	assert.Equal(t, model.ETLStatusFailed, recs[0].Status)
}

func TestETLProcessor_ReadErrorRetries(t *testing.T) {
	ctx := context.Background()
	h := newETLHarness(t)
	h.store.Seed(testBucket, testKey, []byte(testutil.OrdersCSV))
	h.store.Errors[core.ObjectRef{Bucket: testBucket, Key: testKey}] = errors.New("connection reset")

	res, err := h.processor.Process(ctx, h.envelope())
	require.NoError(t, err)
	assert.Equal(t, OutcomeRetried, res.Outcome)
	assert.Equal(t, 1, h.queue.Len())
}

func TestETLProcessor_EmptyFileFails(t *testing.T) {
	ctx := context.Background()
	h := newETLHarness(t)
	h.store.Seed(testBucket, testKey, []byte("  \n"))

	res, err := h.processor.Process(ctx, h.envelope())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, 0, h.transformer.CallCount())
}

func TestETLProcessor_NotFoundTransformIsTerminal(t *testing.T) {
	ctx := context.Background()
	h := newETLHarness(t)
	h.store.Seed(testBucket, testKey, []byte(testutil.OrdersCSV))
	h.transformer.Fallback = model.TransformResult{Kind: model.TransformNotFound, Detail: "StateMachineDoesNotExist"}

	res, err := h.processor.Process(ctx, h.envelope())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, 0, h.queue.Len())
	require.NotNil(t, res.Record.Error)
	assert.Contains(t, *res.Record.Error, "not_found")
}

func TestETLProcessor_MalformedRetriedOnce(t *testing.T) {
	ctx := context.Background()
	h := newETLHarness(t)
	h.store.Seed(testBucket, testKey, []byte(testutil.OrdersCSV))
	h.transformer.Fallback = model.TransformResult{Kind: model.TransformMalformed, Detail: "not json"}

	first, err := h.processor.Process(ctx, h.envelope())
	require.NoError(t, err)
	assert.Equal(t, OutcomeRetried, first.Outcome)

	bodies := h.queue.Bodies()
	require.Len(t, bodies, 1)
	next := decodeEnvelope(t, bodies[0])
	assert.Equal(t, 1, next.MalformedRetries)

	h.clock.Advance(time.Second)
	second, err := h.processor.Process(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, second.Outcome)
	require.NotNil(t, second.Record.Error)
	assert.Contains(t, *second.Record.Error, "malformed transform response")
	assert.Equal(t, 1, h.queue.Len(), "no further retry is enqueued")
}

func TestETLProcessor_MappingMismatchIsMalformed(t *testing.T) {
	ctx := context.Background()
	h := newETLHarness(t)
	h.store.Seed(testBucket, testKey, []byte("sku,qty\na,1\n"))

	res, err := h.processor.Process(ctx, h.envelope())
	require.NoError(t, err)
	assert.Equal(t, OutcomeRetried, res.Outcome)
	next := decodeEnvelope(t, h.queue.Bodies()[0])
	assert.Equal(t, 1, next.MalformedRetries)
	assert.Contains(t, next.LastError, "malformed")
}

func TestETLProcessor_LogWriteFailureIsUnacked(t *testing.T) {
	ctx := context.Background()
	h := newETLHarness(t)
	h.store.Seed(testBucket, testKey, []byte(testutil.OrdersCSV))
	h.log.AppendErrs = []error{errors.New("throttled"), errors.New("throttled")}

	res, err := h.processor.Process(ctx, h.envelope())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLogWriteFailed)
	assert.Equal(t, OutcomeUnacked, res.Outcome)
	assert.Empty(t, h.log.All(testKey))
}

func TestETLProcessor_LogWriteRetried(t *testing.T) {
	ctx := context.Background()
	h := newETLHarness(t)
	h.store.Seed(testBucket, testKey, []byte(testutil.OrdersCSV))
	h.log.AppendErrs = []error{errors.New("throttled")}

	res, err := h.processor.Process(ctx, h.envelope())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, res.Outcome)
	assert.Len(t, h.log.All(testKey), 1)
}

func TestETLProcessor_DuplicateTimestampRetriedWithLaterOne(t *testing.T) {
	ctx := context.Background()
	h := newETLHarness(t)
	h.store.Seed(testBucket, testKey, []byte(testutil.OrdersCSV))

	ctrl := gomock.NewController(t)
	logRepo := mocks.NewMockETLLogRepository(ctrl)
	transformer := mocks.NewMockSchemaTransformer(ctrl)
	h.processor.log = logRepo
	h.processor.transformer = transformer

	logRepo.EXPECT().Latest(gomock.Any(), testKey).Return(nil, model.ErrETLLogNotFound)
	transformer.EXPECT().Transform(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req model.TransformRequest) (model.TransformResult, error) {
			assert.Equal(t, "orders.csv", req.FileName)
			assert.NotEmpty(t, req.Records)
			return testutil.OrdersMapping().Success(), nil
		})

	var firstTS string
	gomock.InOrder(
		logRepo.EXPECT().Append(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, rec *model.ETLLogRecord) error {
				firstTS = rec.Timestamp
				return model.ErrDuplicateETLRecord
			}),
		logRepo.EXPECT().Append(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, rec *model.ETLLogRecord) error {
				assert.Equal(t, model.ETLStatusSuccess, rec.Status)
				assert.Greater(t, rec.Timestamp, firstTS)
				return nil
			}),
	)

	res, err := h.processor.Process(ctx, h.envelope())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, res.Outcome)
}

func TestETLProcessor_TimestampCollisionMovesForward(t *testing.T) {
	ctx := context.Background()
	h := newETLHarness(t)
	h.store.Seed(testBucket, testKey, []byte(testutil.OrdersCSV))
	existing := testutil.NewETLRecord(testKey, h.clock.Now()).Failed("older event").Build()
	require.NoError(t, h.log.Append(ctx, existing))

	res, err := h.processor.Process(ctx, h.envelope())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, res.Outcome)

	recs := h.log.All(testKey)
	require.Len(t, recs, 2)
	assert.NotEqual(t, recs[0].Timestamp, recs[1].Timestamp)
}

func TestETLProcessor_RedeliveryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newETLHarness(t)
	h.store.Seed(testBucket, testKey, []byte(testutil.OrdersCSV))

	first, err := h.processor.Process(ctx, h.envelope())
	require.NoError(t, err)
	require.Equal(t, OutcomeSucceeded, first.Outcome)

	h.clock.Advance(time.Minute)
	second, err := h.processor.Process(ctx, h.envelope())
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, OutcomeSkipped, second.Outcome)
	assert.Equal(t, 1, h.transformer.CallCount())
	assert.Len(t, h.log.All(testKey), 1)
}

func TestETLProcessor_StaleAttemptDoesNotForkRetries(t *testing.T) {
	ctx := context.Background()
	h := newETLHarness(t)
	h.store.Seed(testBucket, testKey, []byte(testutil.OrdersCSV))
	h.transformer.Script["orders.csv"] = []model.TransformResult{
		{Kind: model.TransformRateLimited, Detail: "ThrottlingException"},
		{Kind: model.TransformRateLimited, Detail: "ThrottlingException"},
	}

	first, err := h.processor.Process(ctx, h.envelope())
	require.NoError(t, err)
	require.Equal(t, OutcomeRetried, first.Outcome)

	h.clock.Advance(time.Second)
	next := decodeEnvelope(t, h.queue.Bodies()[0])
	second, err := h.processor.Process(ctx, next)
	require.NoError(t, err)
	require.Equal(t, OutcomeRetried, second.Outcome)
	require.Equal(t, 2, h.queue.Len())

	h.clock.Advance(time.Second)
	stale, err := h.processor.Process(ctx, h.envelope())
	require.NoError(t, err)
	assert.True(t, stale.Duplicate)
	assert.Equal(t, OutcomeRetried, stale.Outcome)
	assert.Equal(t, 1, stale.Record.Attempt)
	assert.Equal(t, 2, h.queue.Len())
	assert.Equal(t, 2, h.transformer.CallCount())
	assert.Len(t, h.log.All(testKey), 2)
}

func TestETLProcessor_NewEventForSameKeyIsProcessed(t *testing.T) {
	ctx := context.Background()
	h := newETLHarness(t)
	h.store.Seed(testBucket, testKey, []byte(testutil.OrdersCSV))

	_, err := h.processor.Process(ctx, h.envelope())
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	env := h.envelope()
	env.EventTime = "2024-01-01T12:01:00Z"
	res, err := h.processor.Process(ctx, env)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, OutcomeSucceeded, res.Outcome)
	assert.Len(t, h.log.All(testKey), 2)
}

func TestETLProcessor_SkipsOutOfScopeKeys(t *testing.T) {
	ctx := context.Background()
	h := newETLHarness(t)

	for _, key := range []string{"output/orders/orders_nodes.csv", "incoming/", "schema/graph_schema.txt"} {
		env := h.envelope()
		env.Key = key
		res, err := h.processor.Process(ctx, env)
		require.NoError(t, err)
		assert.Equal(t, OutcomeSkipped, res.Outcome, key)
	}
	assert.Equal(t, 0, h.transformer.CallCount())
}

func TestETLProcessor_TransformErrorIsUnacked(t *testing.T) {
	h := newETLHarness(t)
	h.store.Seed(testBucket, testKey, []byte(testutil.OrdersCSV))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := h.processor.Process(ctx, h.envelope())
	require.Error(t, err)
	assert.Equal(t, OutcomeUnacked, res.Outcome)
	assert.Empty(t, h.log.All(testKey))
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "skipped", OutcomeSkipped.String())
	assert.Equal(t, "succeeded", OutcomeSucceeded.String())
	assert.Equal(t, "retried", OutcomeRetried.String())
	assert.Equal(t, "failed", OutcomeFailed.String())
	assert.Equal(t, "unacked", OutcomeUnacked.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
