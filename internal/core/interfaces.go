// Package core defines the ports of the ingestion pipeline: the contracts
// between the service layer and the storage, queue and graph adapters.
package core

import (
	"context"
	"time"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
)

// This file contains repository and gateway interface definitions (ports in hexagonal architecture).
// Service implementations depend on these interfaces, not on concrete adapters.

// ObjectRef addresses an object in the store.
type ObjectRef struct {
	Bucket string
	Key    string
}

// GetRangeParams groups parameters for ObjectStore.GetObjectRange.
type GetRangeParams struct {
	Ref    ObjectRef
	Offset int64
	Length int64
}

// ObjectRange is a partial read of an object.
type ObjectRange struct {
	Data []byte
	// Truncated is true when the object extends past the returned range.
	Truncated bool
	Size      int64
}

// PutObjectParams groups parameters for ObjectStore.PutObject.
type PutObjectParams struct {
	Ref         ObjectRef
	Body        []byte
	ContentType string
}

// ObjectStore reads source files and writes transformed output.
// Missing objects map to model.ErrObjectNotFound, forbidden ones to model.ErrObjectAccessDenied.
type ObjectStore interface {
	GetObject(ctx context.Context, ref ObjectRef) ([]byte, error)
	GetObjectRange(ctx context.Context, params GetRangeParams) (*ObjectRange, error)
	PutObject(ctx context.Context, params PutObjectParams) error
}

// ReceiveParams groups parameters for ThrottleQueue.Receive.
type ReceiveParams struct {
	MaxMessages       int
	WaitTime          time.Duration
	VisibilityTimeout time.Duration
}

// SendParams groups parameters for ThrottleQueue.Send.
type SendParams struct {
	Body  string
	Delay time.Duration
}

// ThrottleQueue is an at-least-once message queue with delayed delivery and a dead-letter sink.
type ThrottleQueue interface {
	Receive(ctx context.Context, params ReceiveParams) ([]model.QueueMessage, error)
	Send(ctx context.Context, params SendParams) error
	Delete(ctx context.Context, receiptHandle string) error
	ChangeVisibility(ctx context.Context, receiptHandle string, timeout time.Duration) error
}

// ETLLogRepository persists the append-only ETL audit trail.
type ETLLogRepository interface {
	Append(ctx context.Context, rec *model.ETLLogRecord) error
	// History returns the records for an id, newest first.
	History(ctx context.Context, q model.ETLHistoryQuery) ([]*model.ETLLogRecord, error)
	// Latest returns the authoritative record or model.ErrETLLogNotFound.
	Latest(ctx context.Context, id string) (*model.ETLLogRecord, error)
}

// BulkLoadRepository persists one record per submitted bulk-load job.
type BulkLoadRepository interface {
	Put(ctx context.Context, job *model.BulkLoadJob) error
	// Get returns the record or model.ErrBulkLoadNotFound.
	Get(ctx context.Context, loadID string) (*model.BulkLoadJob, error)
	// UpdateStatus overwrites the payload snapshot; model.ErrBulkLoadNotFound if absent.
	UpdateStatus(ctx context.Context, params model.UpdateLoadStatusParams) error
	FindRecentBySource(ctx context.Context, q model.RecentLoadsQuery) ([]*model.BulkLoadJob, error)
}

// SchemaTransformer maps a CSV sample onto the standing graph schema.
// Service-level failures are reported through TransformResult.Kind; the
// error return is reserved for context cancellation and programming errors.
type SchemaTransformer interface {
	Transform(ctx context.Context, req model.TransformRequest) (model.TransformResult, error)
}

// GraphLoader submits and inspects graph bulk-load jobs.
type GraphLoader interface {
	StartLoad(ctx context.Context, req model.LoadRequest) (string, error)
	// LoadStatus returns Found=false for a load id the engine does not know.
	LoadStatus(ctx context.Context, loadID string) (*model.EngineLoadStatus, error)
}
