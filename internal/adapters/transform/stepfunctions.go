package transform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-sdk-go-v2/service/sfn/types"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/core"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
)

// SFNAPI is the subset of the Step Functions client used here.
type SFNAPI interface {
	StartSyncExecution(
		ctx context.Context,
		in *sfn.StartSyncExecutionInput,
		optFns ...func(*sfn.Options),
	) (*sfn.StartSyncExecutionOutput, error)
}

var _ SFNAPI = (*sfn.Client)(nil)

// StepFunctionsOptions configures a StepFunctionsTransformer.
type StepFunctionsOptions struct {
	Client          SFNAPI
	StateMachineARN string
	Logger          *slog.Logger
}

// StepFunctionsTransformer runs the schema translator express workflow synchronously.
type StepFunctionsTransformer struct {
	client SFNAPI
	arn    string
	logger *slog.Logger
}

var _ core.SchemaTransformer = (*StepFunctionsTransformer)(nil)

// NewStepFunctionsTransformer validates opts and builds the transformer.
func NewStepFunctionsTransformer(opts StepFunctionsOptions) (*StepFunctionsTransformer, error) {
	if opts.Client == nil {
		return nil, errors.New("step functions client is required")
	}
	if opts.StateMachineARN == "" {
		return nil, errors.New("state machine arn is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StepFunctionsTransformer{
		client: opts.Client,
		arn:    opts.StateMachineARN,
		logger: logger.With("component", "sfn_transformer"),
	}, nil
}

// Transform starts one synchronous execution with {records, file_name, graph_schema}.
func (t *StepFunctionsTransformer) Transform(ctx context.Context, req model.TransformRequest) (model.TransformResult, error) {
	input, err := json.Marshal(req)
	if err != nil {
		return model.TransformResult{}, fmt.Errorf("encode transform input: %w", err)
	}

	out, err := t.client.StartSyncExecution(ctx, &sfn.StartSyncExecutionInput{
		StateMachineArn: aws.String(t.arn),
		Input:           aws.String(string(input)),
	})
	if err != nil {
		return fromCallError(ctx, err)
	}

	switch out.Status {
	case types.SyncExecutionStatusSucceeded:
		raw := aws.ToString(out.Output)
		mapping, perr := ParseMapping(raw, req.FileName)
		if perr != nil {
			t.logger.WarnContext(ctx, "unparseable transform output", "file_name", req.FileName, "error", perr)
			return malformed(raw, perr), nil
		}
		return model.TransformResult{Kind: model.TransformSuccess, Mapping: mapping}, nil
	case types.SyncExecutionStatusTimedOut:
		return model.TransformResult{Kind: model.TransformTransient, Detail: "execution timed out"}, nil
	default:
		execErr, cause := aws.ToString(out.Error), aws.ToString(out.Cause)
		detail := execErr
		if cause != "" {
			detail = execErr + ": " + cause
		}
		return model.TransformResult{Kind: classify(execErr + " " + cause), Detail: detail}, nil
	}
}
