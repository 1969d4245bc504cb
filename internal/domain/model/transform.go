package model

import (
	"errors"
	"strconv"
	"strings"
)

// TransformKind tags the outcome of a schema transform call.
type TransformKind int

const (
	TransformSuccess TransformKind = iota
	TransformRateLimited
	TransformTransient
	TransformMalformed
	TransformNotFound
)

func (k TransformKind) String() string {
	switch k {
	case TransformSuccess:
		return "success"
	case TransformRateLimited:
		return "rate_limited"
	case TransformTransient:
		return "transient"
	case TransformMalformed:
		return "malformed"
	case TransformNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Retryable reports whether the outcome should be retried with backoff.
func (k TransformKind) Retryable() bool {
	return k == TransformRateLimited || k == TransformTransient
}

// NodeMapping describes how a CSV file maps onto a graph vertex label.
type NodeMapping struct {
	FileName           string   `json:"file_name"`
	OriginalHeaders    []string `json:"originalHeaders"`
	NodeLabel          string   `json:"nodeLabel"`
	UniqueIdentifier   string   `json:"uniqueIdentifier"`
	TransformedHeaders []string `json:"transformedHeaders"`
}

// EdgeDirection is relative to the vertex the file describes.
type EdgeDirection string

const (
	EdgeOut EdgeDirection = "out"
	EdgeIn  EdgeDirection = "in"
)

// EdgeDefinition describes edges derived from one column of the file.
type EdgeDefinition struct {
	EdgeLabel    string        `json:"edge_label"`
	SourceColumn string        `json:"source_column"`
	TargetLabel  string        `json:"target_label"`
	Direction    EdgeDirection `json:"direction"`
}

// EdgeSet is the transformer's edge answer for one file.
type EdgeSet struct {
	MatchingEdges   []string         `json:"matching_edges"`
	EdgeDefinitions []EdgeDefinition `json:"edge_definitions"`
}

// SchemaMapping is the parsed answer of a successful transform.
type SchemaMapping struct {
	Node  NodeMapping `json:"node"`
	Edges EdgeSet     `json:"edges"`
}

// Validate checks that a mapping is usable to rewrite the file.
func (m *SchemaMapping) Validate() error {
	if m == nil {
		return errors.New("mapping is required")
	}
	if strings.TrimSpace(m.Node.NodeLabel) == "" {
		return errors.New("nodeLabel is required")
	}
	if strings.TrimSpace(m.Node.UniqueIdentifier) == "" {
		return errors.New("uniqueIdentifier is required")
	}
	if len(m.Node.OriginalHeaders) > 0 && len(m.Node.TransformedHeaders) > 0 &&
		len(m.Node.OriginalHeaders) != len(m.Node.TransformedHeaders) {
		return errors.New("originalHeaders and transformedHeaders differ in length")
	}
	for i, def := range m.Edges.EdgeDefinitions {
		if def.EdgeLabel == "" || def.SourceColumn == "" || def.TargetLabel == "" {
			return errors.New("edge definition " + strconv.Itoa(i) + " is incomplete")
		}
	}
	return nil
}

// TransformRequest is the input handed to the schema transformer.
type TransformRequest struct {
	Records     string `json:"records"`
	FileName    string `json:"file_name"`
	GraphSchema string `json:"graph_schema"`
}

// TransformResult is the tagged outcome of one transform call.
type TransformResult struct {
	Kind    TransformKind
	Mapping *SchemaMapping
	// Detail carries the service error or the unparseable payload for the log.
	Detail string
}
