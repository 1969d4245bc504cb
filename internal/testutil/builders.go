// Package testutil provides testing utilities, in-memory fakes and builders for the ETL pipeline.
package testutil

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
)

// S3EventBody renders an S3 ObjectCreated notification for one object, form-encoding the key the way S3 does.
func S3EventBody(bucket, key, eventTime string) string {
	encoded := strings.ReplaceAll(url.QueryEscape(key), "%2F", "/")
	body := map[string]any{
		"Records": []any{map[string]any{
			"eventName": "ObjectCreated:Put",
			"eventTime": eventTime,
			"s3": map[string]any{
				"bucket": map[string]any{"name": bucket},
				"object": map[string]any{"key": encoded},
			},
		}},
	}
	b, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// EnvelopeBody renders a typed queue envelope.
func EnvelopeBody(env model.FileEnvelope) string {
	body, err := env.Marshal()
	if err != nil {
		panic(err)
	}
	return body
}

// MappingBuilder provides a fluent interface for building SchemaMapping values.
type MappingBuilder struct {
	m model.SchemaMapping
}

// NewMapping starts a mapping for fileName with the given vertex label and identifier column.
func NewMapping(fileName, label, identifier string) *MappingBuilder {
	return &MappingBuilder{m: model.SchemaMapping{Node: model.NodeMapping{
		FileName:         fileName,
		NodeLabel:        label,
		UniqueIdentifier: identifier,
	}}}
}

// WithHeaders sets the original and transformed headers.
func (b *MappingBuilder) WithHeaders(original, transformed []string) *MappingBuilder {
	b.m.Node.OriginalHeaders = original
	b.m.Node.TransformedHeaders = transformed
	return b
}

// WithEdge appends an edge definition and marks it as matching.
func (b *MappingBuilder) WithEdge(def model.EdgeDefinition) *MappingBuilder {
	if def.Direction == "" {
		def.Direction = model.EdgeOut
	}
	b.m.Edges.EdgeDefinitions = append(b.m.Edges.EdgeDefinitions, def)
	b.m.Edges.MatchingEdges = append(b.m.Edges.MatchingEdges, def.EdgeLabel)
	return b
}

// Build returns the mapping.
func (b *MappingBuilder) Build() *model.SchemaMapping {
	out := b.m
	return &out
}

// Success wraps the mapping in a successful transform result.
func (b *MappingBuilder) Success() model.TransformResult {
	return model.TransformResult{Kind: model.TransformSuccess, Mapping: b.Build()}
}

// OrdersCSV is a small source file used across pipeline tests.
const OrdersCSV = "order_id,customer_id,amount\n1,c1,10.5\n2,c2,3.0\n"

// OrdersMapping is the mapping matching OrdersCSV.
func OrdersMapping() *MappingBuilder {
	return NewMapping("orders.csv", "Order", "order_id").
		WithHeaders(
			[]string{"order_id", "customer_id", "amount"},
			[]string{"orderId", "customerId", "amount:Double"},
		).
		WithEdge(model.EdgeDefinition{EdgeLabel: "PLACED_BY", SourceColumn: "customer_id", TargetLabel: "Customer"})
}

// ETLRecordBuilder provides a fluent interface for building ETL log records.
type ETLRecordBuilder struct {
	rec model.ETLLogRecord
}

// NewETLRecord starts a record for id at the given time.
func NewETLRecord(id string, at time.Time) *ETLRecordBuilder {
	return &ETLRecordBuilder{rec: model.ETLLogRecord{
		ID:        id,
		FileName:  id,
		Timestamp: model.FormatTimestamp(at),
		Status:    model.ETLStatusSuccess,
	}}
}

// Failed marks the record FAILED with msg.
func (b *ETLRecordBuilder) Failed(msg string) *ETLRecordBuilder {
	b.rec.Status = model.ETLStatusFailed
	b.rec.Error = &msg
	return b
}

// Pending marks the record PENDING with msg.
func (b *ETLRecordBuilder) Pending(msg string) *ETLRecordBuilder {
	b.rec.Status = model.ETLStatusPending
	b.rec.Error = &msg
	return b
}

// WithAttempt sets the attempt number.
func (b *ETLRecordBuilder) WithAttempt(n int) *ETLRecordBuilder {
	b.rec.Attempt = n
	return b
}

// WithEventTime sets the originating event time.
func (b *ETLRecordBuilder) WithEventTime(v string) *ETLRecordBuilder {
	b.rec.EventTime = v
	return b
}

// Build returns the record.
func (b *ETLRecordBuilder) Build() *model.ETLLogRecord {
	out := b.rec
	return &out
}
