// Package transform implements core.SchemaTransformer on Step Functions and on Bedrock.
package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
)

// maxDetail bounds how much of an unparseable answer is kept for the ETL log.
const maxDetail = 1024

var errNoJSONObject = errors.New("no JSON object in response")

// ParseMapping decodes a transformer answer into a schema mapping.
//
// The answer is {"node": {...}, "edges": {...}}. Either member may itself be a
// JSON-encoded string, and the whole answer may be wrapped in prose or a code fence.
func ParseMapping(raw string, fileName string) (*model.SchemaMapping, error) {
	obj, err := extractObject(raw)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Node  json.RawMessage `json:"node"`
		Edges json.RawMessage `json:"edges"`
	}
	if err := json.Unmarshal(obj, &envelope); err != nil {
		return nil, fmt.Errorf("decode mapping: %w", err)
	}
	if len(envelope.Node) == 0 {
		return nil, errors.New("mapping has no node")
	}

	var m model.SchemaMapping
	if err := decodeMember(envelope.Node, &m.Node); err != nil {
		return nil, fmt.Errorf("decode node: %w", err)
	}
	if len(envelope.Edges) > 0 && !bytes.Equal(envelope.Edges, []byte("null")) {
		if err := decodeMember(envelope.Edges, &m.Edges); err != nil {
			return nil, fmt.Errorf("decode edges: %w", err)
		}
	}
	if m.Node.FileName == "" {
		m.Node.FileName = fileName
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func decodeMember(raw json.RawMessage, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return err
		}
		obj, err := extractObject(inner)
		if err != nil {
			return err
		}
		raw = obj
	}
	return json.Unmarshal(raw, dst)
}

func extractObject(raw string) ([]byte, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return nil, errNoJSONObject
	}
	return []byte(raw[start : end+1]), nil
}

// malformed builds the Malformed result for an answer that could not be used.
func malformed(raw string, err error) model.TransformResult {
	detail := raw
	if len(detail) > maxDetail {
		detail = detail[:maxDetail]
	}
	return model.TransformResult{
		Kind:   model.TransformMalformed,
		Detail: fmt.Sprintf("%v: %s", err, detail),
	}
}

var rateLimitedCodes = []string{"Throttling", "TooManyRequests", "RateExceeded", "ServiceQuotaExceeded", "LimitExceeded"}

var notFoundCodes = []string{"ResourceNotFound", "StateMachineDoesNotExist", "ExecutionDoesNotExist", "NoSuchKey"}

// classify maps a service error code (or a Step Functions error/cause pair)
// onto a transform kind. Service unavailability, model timeouts and unknown
// failures are all transient.
func classify(code string) model.TransformKind {
	switch {
	case containsAny(code, rateLimitedCodes):
		return model.TransformRateLimited
	case containsAny(code, notFoundCodes):
		return model.TransformNotFound
	default:
		return model.TransformTransient
	}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// fromCallError turns an SDK call failure into a result. Context errors are returned as errors.
func fromCallError(ctx context.Context, err error) (model.TransformResult, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return model.TransformResult{}, ctxErr
	}
	if errors.Is(err, context.Canceled) {
		return model.TransformResult{}, err
	}
	code := ""
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.ErrorCode()
	}
	kind := classify(code)
	if code == "" && errors.Is(err, context.DeadlineExceeded) {
		kind = model.TransformTransient
	}
	return model.TransformResult{Kind: kind, Detail: err.Error()}, nil
}
