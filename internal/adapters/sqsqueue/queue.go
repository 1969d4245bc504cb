// Package sqsqueue implements the throttle queue on Amazon SQS.
package sqsqueue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/core"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
	apperrors "github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/errors"
)

// SQS limits.
const (
	maxBatch          = 10
	maxWaitSeconds    = 20
	maxDelaySeconds   = 900
	maxVisibilitySecs = 43200
)

// API is the subset of the SQS client used by Queue.
type API interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(
		ctx context.Context,
		in *sqs.ChangeMessageVisibilityInput,
		optFns ...func(*sqs.Options),
	) (*sqs.ChangeMessageVisibilityOutput, error)
}

var _ API = (*sqs.Client)(nil)

// ErrQueueURLRequired is returned by New for an empty queue URL.
var ErrQueueURLRequired = errors.New("queue url is required")

// Queue is a core.ThrottleQueue bound to one queue URL.
type Queue struct {
	api API
	url string
}

var _ core.ThrottleQueue = (*Queue)(nil)

// New binds api to queueURL.
func New(api API, queueURL string) (*Queue, error) {
	if queueURL == "" {
		return nil, ErrQueueURLRequired
	}
	return &Queue{api: api, url: queueURL}, nil
}

// URL returns the bound queue URL.
func (q *Queue) URL() string { return q.url }

// Receive long-polls for up to params.MaxMessages messages.
func (q *Queue) Receive(ctx context.Context, params core.ReceiveParams) ([]model.QueueMessage, error) {
	in := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.url),
		MaxNumberOfMessages: int32(clamp(params.MaxMessages, 1, maxBatch)),
		WaitTimeSeconds:     int32(clamp(ceilSeconds(params.WaitTime), 0, maxWaitSeconds)),
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
			types.MessageSystemAttributeNameSentTimestamp,
		},
	}
	if params.VisibilityTimeout > 0 {
		in.VisibilityTimeout = int32(clamp(ceilSeconds(params.VisibilityTimeout), 1, maxVisibilitySecs))
	}

	out, err := q.api.ReceiveMessage(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("receive messages: %w", apperrors.MapAWSError(err))
	}

	msgs := make([]model.QueueMessage, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, toQueueMessage(m))
	}
	return msgs, nil
}

func toQueueMessage(m types.Message) model.QueueMessage {
	msg := model.QueueMessage{
		ID:            aws.ToString(m.MessageId),
		ReceiptHandle: aws.ToString(m.ReceiptHandle),
		Body:          aws.ToString(m.Body),
	}
	if v, ok := m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			msg.ReceiveCount = n
		}
	}
	if v, ok := m.Attributes[string(types.MessageSystemAttributeNameSentTimestamp)]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			msg.SentAt = time.UnixMilli(ms).UTC()
		}
	}
	return msg
}

// Send enqueues params.Body with a delivery delay clamped to the queue's 0..900s range.
func (q *Queue) Send(ctx context.Context, params core.SendParams) error {
	_, err := q.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(q.url),
		MessageBody:  aws.String(params.Body),
		DelaySeconds: DelaySeconds(params.Delay),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", apperrors.MapAWSError(err))
	}
	return nil
}

// Delete acknowledges a message.
func (q *Queue) Delete(ctx context.Context, receiptHandle string) error {
	_, err := q.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.url),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", apperrors.MapAWSError(err))
	}
	return nil
}

// ChangeVisibility sets the remaining invisibility of a received message. Zero releases it immediately.
func (q *Queue) ChangeVisibility(ctx context.Context, receiptHandle string, timeout time.Duration) error {
	_, err := q.api.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.url),
		ReceiptHandle:     aws.String(receiptHandle),
		VisibilityTimeout: int32(clamp(ceilSeconds(timeout), 0, maxVisibilitySecs)),
	})
	if err != nil {
		return fmt.Errorf("change message visibility: %w", apperrors.MapAWSError(err))
	}
	return nil
}

// DelaySeconds converts d into the queue's whole-second delay, rounding up and clamping to 0..900.
func DelaySeconds(d time.Duration) int32 {
	return int32(clamp(ceilSeconds(d), 0, maxDelaySeconds))
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	s := math.Ceil(d.Seconds())
	if s > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(s)
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
