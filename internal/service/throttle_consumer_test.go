package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/core"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/testutil"
)

func TestThrottleConsumer_AcksSuccess(t *testing.T) {
	ctx := context.Background()
	h := newETLHarness(t)
	h.store.Seed(testBucket, testKey, []byte(testutil.OrdersCSV))
	require.NoError(t, h.queue.Send(ctx, core.SendParams{Body: testutil.S3EventBody(testBucket, testKey, testEventTime)}))

	res, err := h.consumer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Received: 1, Succeeded: 1}, res)
	assert.Equal(t, 0, h.queue.Len())
}

func TestThrottleConsumer_EmptyBatch(t *testing.T) {
	h := newETLHarness(t)

	res, err := h.consumer.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BatchResult{}, res)
}

func TestThrottleConsumer_ReceiveErrorReturned(t *testing.T) {
	h := newETLHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.consumer.RunOnce(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestThrottleConsumer_RetryReplacesMessage(t *testing.T) {
	ctx := context.Background()
	h := newETLHarness(t)
	h.store.Seed(testBucket, testKey, []byte(testutil.OrdersCSV))
	h.transformer.Script["orders.csv"] = []model.TransformResult{{Kind: model.TransformRateLimited}}
	require.NoError(t, h.queue.Send(ctx, core.SendParams{Body: testutil.S3EventBody(testBucket, testKey, testEventTime)}))

	res, err := h.consumer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retried)

	bodies := h.queue.Bodies()
	require.Len(t, bodies, 1, "original deleted and retry envelope enqueued")
	assert.Equal(t, 1, decodeEnvelope(t, bodies[0]).Attempt)

	empty, err := h.consumer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Received, "retry stays invisible until its delay passes")

	h.clock.Advance(time.Second)
	res, err = h.consumer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 0, h.queue.Len())

	recs := h.log.All(testKey)
	require.Len(t, recs, 2)
	assert.Equal(t, model.ETLStatusPending, recs[0].Status)
	assert.Equal(t, model.ETLStatusSuccess, recs[1].Status)
	assert.Equal(t, 1, recs[1].Attempt)
}

func TestThrottleConsumer_LogWriteFailureLeavesMessage(t *testing.T) {
	ctx := context.Background()
	h := newETLHarness(t)
	h.store.Seed(testBucket, testKey, []byte(testutil.OrdersCSV))
	h.log.AppendErrs = []error{errors.New("unavailable"), errors.New("unavailable")}
	require.NoError(t, h.queue.Send(ctx, core.SendParams{Body: testutil.S3EventBody(testBucket, testKey, testEventTime)}))

	res, err := h.consumer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unacked)
	assert.Equal(t, 1, h.queue.Len())

	h.clock.Advance(31 * time.Second)
	res, err = h.consumer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 0, h.queue.Len())
	assert.Len(t, h.log.All(testKey), 1)
}

func TestThrottleConsumer_UnparseableBodyStaysForRedrive(t *testing.T) {
	ctx := context.Background()
	h := newETLHarness(t)
	require.NoError(t, h.queue.Send(ctx, core.SendParams{Body: "not json"}))

	res, err := h.consumer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unacked)
	assert.Equal(t, 1, h.queue.Len())
}

func TestThrottleConsumer_TestEventAcked(t *testing.T) {
	ctx := context.Background()
	h := newETLHarness(t)
	require.NoError(t, h.queue.Send(ctx, core.SendParams{Body: `{"Service":"Amazon S3","Event":"s3:TestEvent","Bucket":"data"}`}))

	res, err := h.consumer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, h.queue.Len())
}

func TestThrottleConsumer_FailedMessageReachesDLQ(t *testing.T) {
	ctx := context.Background()
	h := newETLHarness(t)
	h.store.Seed(testBucket, testKey, []byte(testutil.OrdersCSV))
	h.transformer.Fallback = model.TransformResult{Kind: model.TransformNotFound, Detail: "StateMachineDoesNotExist"}
	require.NoError(t, h.queue.Send(ctx, core.SendParams{Body: testutil.S3EventBody(testBucket, testKey, testEventTime)}))

	for range 12 {
		_, err := h.consumer.RunOnce(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, 0, h.queue.Len())
	assert.Equal(t, 1, h.dlq.Len())
	assert.Equal(t, 1, h.transformer.CallCount(), "redeliveries are recognized from the log")

	recs := h.log.All(testKey)
	require.Len(t, recs, 1)
	assert.Equal(t, model.ETLStatusFailed, recs[0].Status)
	assert.Len(t, h.notifications(), 1)
}

func TestThrottleConsumer_FailedMessageAckedWithoutDeadLetter(t *testing.T) {
	ctx := context.Background()
	h := newETLHarness(t, func(c *harnessConfig) { c.consumer.DeadLetterFailures = false })
	require.NoError(t, h.queue.Send(ctx, core.SendParams{Body: testutil.S3EventBody(testBucket, testKey, testEventTime)}))

	res, err := h.consumer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 0, h.queue.Len())
	assert.Equal(t, 0, h.dlq.Len())
}

func TestThrottleConsumer_ConcurrentBatch(t *testing.T) {
	ctx := context.Background()
	h := newETLHarness(t, func(c *harnessConfig) { c.consumer.Concurrency = 4 })
	keys := []string{"incoming/a.csv", "incoming/b.csv", "incoming/c.csv", "incoming/d.csv", "incoming/e.csv"}
	for _, k := range keys {
		h.store.Seed(testBucket, k, []byte(testutil.OrdersCSV))
		require.NoError(t, h.queue.Send(ctx, core.SendParams{Body: testutil.S3EventBody(testBucket, k, testEventTime)}))
	}

	res, err := h.consumer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Received)
	assert.Equal(t, 5, res.Succeeded)
	for _, k := range keys {
		assert.Len(t, h.log.All(k), 1, k)
	}
}

func TestWorse(t *testing.T) {
	assert.Equal(t, OutcomeUnacked, worse(OutcomeSucceeded, OutcomeUnacked))
	assert.Equal(t, OutcomeFailed, worse(OutcomeFailed, OutcomeRetried))
	assert.Equal(t, OutcomeRetried, worse(OutcomeSkipped, OutcomeRetried))
	assert.Equal(t, OutcomeSucceeded, worse(OutcomeSucceeded, OutcomeSkipped))
}
