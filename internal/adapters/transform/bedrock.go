package transform

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/core"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
)

// BedrockAPI is the subset of the Bedrock runtime client used here.
type BedrockAPI interface {
	Converse(
		ctx context.Context,
		in *bedrockruntime.ConverseInput,
		optFns ...func(*bedrockruntime.Options),
	) (*bedrockruntime.ConverseOutput, error)
}

var _ BedrockAPI = (*bedrockruntime.Client)(nil)

const systemPrompt = `You map CSV files onto an existing property graph schema.
Given the graph schema, a file name and a sample of the file, answer with a single JSON object and nothing else:
{"node": {"file_name": string, "originalHeaders": [string], "nodeLabel": string, "uniqueIdentifier": string, "transformedHeaders": [string]},
 "edges": {"matching_edges": [string], "edge_definitions": [{"edge_label": string, "source_column": string, "target_label": string, "direction": "out" | "in"}]}}
Rules: reuse vertex and edge labels from the schema whenever one fits. transformedHeaders has one entry per original header in the same order,
in camelCase, with a Neptune type suffix (":Int", ":Double", ":Bool", ":Date") when the sample values are typed. uniqueIdentifier is an original header.
source_column is an original header whose values identify the target vertex.`

// BedrockOptions configures a BedrockTransformer.
type BedrockOptions struct {
	Client      BedrockAPI
	ModelID     string
	MaxTokens   int32
	Temperature float32
	Logger      *slog.Logger
}

// BedrockTransformer asks a model through the Converse API for the mapping.
type BedrockTransformer struct {
	client      BedrockAPI
	modelID     string
	maxTokens   int32
	temperature float32
	logger      *slog.Logger
}

var _ core.SchemaTransformer = (*BedrockTransformer)(nil)

// NewBedrockTransformer validates opts and builds the transformer.
func NewBedrockTransformer(opts BedrockOptions) (*BedrockTransformer, error) {
	if opts.Client == nil {
		return nil, errors.New("bedrock client is required")
	}
	if opts.ModelID == "" {
		return nil, errors.New("model id is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BedrockTransformer{
		client:      opts.Client,
		modelID:     opts.ModelID,
		maxTokens:   maxTokens,
		temperature: opts.Temperature,
		logger:      logger.With("component", "bedrock_transformer"),
	}, nil
}

// Transform sends the schema and sample in one user turn and parses the reply.
func (t *BedrockTransformer) Transform(ctx context.Context, req model.TransformRequest) (model.TransformResult, error) {
	out, err := t.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(t.modelID),
		System:  []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: systemPrompt}},
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: userPrompt(req)}},
		}},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(t.maxTokens),
			Temperature: aws.Float32(t.temperature),
		},
	})
	if err != nil {
		return fromCallError(ctx, err)
	}

	raw := replyText(out)
	if out.StopReason == types.StopReasonMaxTokens {
		t.logger.WarnContext(ctx, "transform reply truncated", "file_name", req.FileName, "max_tokens", t.maxTokens)
	}
	mapping, perr := ParseMapping(raw, req.FileName)
	if perr != nil {
		t.logger.WarnContext(ctx, "unparseable transform reply", "file_name", req.FileName, "error", perr)
		return malformed(raw, perr), nil
	}
	return model.TransformResult{Kind: model.TransformSuccess, Mapping: mapping}, nil
}

func userPrompt(req model.TransformRequest) string {
	var b strings.Builder
	b.WriteString("<graph_schema>\n")
	b.WriteString(req.GraphSchema)
	b.WriteString("\n</graph_schema>\n<file_name>")
	b.WriteString(req.FileName)
	b.WriteString("</file_name>\n<records>\n")
	b.WriteString(req.Records)
	b.WriteString("</records>")
	return b.String()
}

func replyText(out *bedrockruntime.ConverseOutput) string {
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	var b strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			b.WriteString(text.Value)
		}
	}
	return b.String()
}
