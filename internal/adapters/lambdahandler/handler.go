// Package lambdahandler dispatches Lambda invocations to the pipeline services.
//
// One function handles four payload shapes:
//   - S3 ObjectCreated notifications: incoming files are put on the throttle
//     queue, output files are submitted as bulk loads;
//   - EventBridge scheduled events: one throttle queue batch is processed;
//   - {"action":"check_load_status","loadId":"..."}: a normalized status report;
//   - {"action":"redrive_dlq","max":N}: dead letters are moved back to the queue.
package lambdahandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/core"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
	apperrors "github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/errors"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/service"
)

// Supported direct-invocation actions.
const (
	ActionCheckLoadStatus = "check_load_status"
	ActionRedriveDLQ      = "redrive_dlq"
)

// ErrUnsupportedEvent is returned for payloads matching no known shape.
var ErrUnsupportedEvent = errors.New("unsupported event")

// Intake puts envelopes on the throttle queue.
type Intake interface {
	Submit(ctx context.Context, env model.FileEnvelope, delay time.Duration) error
	RedriveDLQ(ctx context.Context, maxMessages int) (service.RedriveResult, error)
}

// Consumer processes one throttle queue batch.
type Consumer interface {
	RunOnce(ctx context.Context) (service.BatchResult, error)
}

// Loader submits bulk loads for output objects.
type Loader interface {
	InScope(key string) bool
	HandleObject(ctx context.Context, ref core.ObjectRef) (service.LoadResult, error)
}

// StatusChecker answers load status queries.
type StatusChecker interface {
	Check(ctx context.Context, loadID string) (*model.LoadStatusReport, error)
}

// Options groups dependencies for Handler. Nil services disable their event shape.
type Options struct {
	Intake         Intake
	Consumer       Consumer
	Loader         Loader
	Status         StatusChecker
	IncomingPrefix string
	Logger         *slog.Logger
	Now            func() time.Time
}

// Handler is the Lambda entrypoint.
type Handler struct {
	intake   Intake
	consumer Consumer
	loader   Loader
	status   StatusChecker
	incoming string
	logger   *slog.Logger
	now      func() time.Time
}

// New constructs a Handler.
func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	incoming := opts.IncomingPrefix
	if incoming == "" {
		incoming = "incoming/"
	}
	return &Handler{
		intake:   opts.Intake,
		consumer: opts.Consumer,
		loader:   opts.Loader,
		status:   opts.Status,
		incoming: incoming,
		logger:   logger.With("component", "lambda_handler"),
		now:      now,
	}
}

// ObjectEventResult summarizes an S3 notification invocation.
type ObjectEventResult struct {
	Enqueued     int `json:"enqueued"`
	Submitted    int `json:"submitted"`
	Deduplicated int `json:"deduplicated"`
	Rejected     int `json:"rejected"`
	Ignored      int `json:"ignored"`
}

// ActionResponse is returned for direct invocations.
type ActionResponse struct {
	StatusCode int `json:"statusCode"`
	Body       any `json:"body"`
}

type probe struct {
	Records []struct {
		EventSource string `json:"eventSource"`
	} `json:"Records"`
	Source     string `json:"source"`
	DetailType string `json:"detail-type"`
	Action     string `json:"action"`
	LoadID     string `json:"loadId"`
	Max        int    `json:"max"`
}

// Handle decodes payload and dispatches it.
func (h *Handler) Handle(ctx context.Context, payload json.RawMessage) (any, error) {
	var p probe
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	switch {
	case len(p.Records) > 0 && p.Records[0].EventSource == "aws:s3":
		var ev events.S3Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("decode s3 event: %w", err)
		}
		return h.HandleS3(ctx, ev)
	case p.Source == "aws.events" || p.DetailType == "Scheduled Event":
		var ev events.CloudWatchEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("decode scheduled event: %w", err)
		}
		return h.HandleScheduled(ctx, ev)
	case p.Action == ActionCheckLoadStatus:
		return h.checkLoadStatus(ctx, p.LoadID)
	case p.Action == ActionRedriveDLQ:
		return h.redrive(ctx, p.Max)
	case p.Action != "":
		return ActionResponse{StatusCode: 400, Body: map[string]string{"error": "unknown action " + p.Action}}, nil
	default:
		return nil, ErrUnsupportedEvent
	}
}

// HandleS3 routes each created object by prefix. Any failed record fails the
// invocation so Lambda retries it; completed records are idempotent on retry.
func (h *Handler) HandleS3(ctx context.Context, ev events.S3Event) (ObjectEventResult, error) {
	var (
		res  ObjectEventResult
		errs []error
	)
	for _, rec := range ev.Records {
		if !model.IsObjectCreated(rec.EventName) {
			res.Ignored++
			continue
		}
		env := model.EnvelopeFromS3Record(rec, h.now())
		key := env.Key
		ref := core.ObjectRef{Bucket: env.Bucket, Key: key}
		logger := h.logger.With("bucket", ref.Bucket, "key", ref.Key)

		switch {
		case h.intake != nil && strings.HasPrefix(key, h.incoming) && !strings.HasSuffix(key, "/"):
			if err := h.intake.Submit(ctx, env, 0); err != nil {
				logger.ErrorContext(ctx, "enqueue failed", "error", err)
				errs = append(errs, err)
				continue
			}
			res.Enqueued++
		case h.loader != nil && h.loader.InScope(key):
			out, err := h.loader.HandleObject(ctx, ref)
			if err != nil {
				logger.ErrorContext(ctx, "bulk load failed", "error", err)
				errs = append(errs, err)
				continue
			}
			switch out.Outcome {
			case service.LoadOutcomeSubmitted:
				res.Submitted++
			case service.LoadOutcomeDeduplicated:
				res.Deduplicated++
			case service.LoadOutcomeRejected:
				res.Rejected++
			default:
				res.Ignored++
			}
		default:
			res.Ignored++
		}
	}
	return res, errors.Join(errs...)
}

// HandleScheduled processes one throttle queue batch.
func (h *Handler) HandleScheduled(ctx context.Context, ev events.CloudWatchEvent) (service.BatchResult, error) {
	if h.consumer == nil {
		return service.BatchResult{}, fmt.Errorf("%w: scheduled consumer not configured", ErrUnsupportedEvent)
	}
	h.logger.DebugContext(ctx, "scheduled batch", "event_id", ev.ID, "time", ev.Time)
	return h.consumer.RunOnce(ctx)
}

func (h *Handler) checkLoadStatus(ctx context.Context, loadID string) (ActionResponse, error) {
	if h.status == nil {
		return ActionResponse{}, fmt.Errorf("%w: load status not configured", ErrUnsupportedEvent)
	}
	report, err := h.status.Check(ctx, loadID)
	if err != nil {
		if apperrors.IsValidation(err) {
			return ActionResponse{StatusCode: 400, Body: map[string]string{"error": err.Error()}}, nil
		}
		return ActionResponse{}, err
	}
	return ActionResponse{StatusCode: 200, Body: report}, nil
}

func (h *Handler) redrive(ctx context.Context, maxMessages int) (ActionResponse, error) {
	if h.intake == nil {
		return ActionResponse{}, fmt.Errorf("%w: intake not configured", ErrUnsupportedEvent)
	}
	res, err := h.intake.RedriveDLQ(ctx, maxMessages)
	if err != nil {
		return ActionResponse{}, err
	}
	return ActionResponse{StatusCode: 200, Body: res}, nil
}
