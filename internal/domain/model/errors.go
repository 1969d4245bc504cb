package model

import "errors"

var (
	// ErrObjectNotFound indicates the object key does not exist in the store.
	ErrObjectNotFound = errors.New("object not found")
	// ErrObjectAccessDenied indicates the caller may not read the object.
	ErrObjectAccessDenied = errors.New("object access denied")
	// ErrDuplicateETLRecord indicates a record with the same id and timestamp already exists.
	ErrDuplicateETLRecord = errors.New("etl log record already exists")
	// ErrETLLogNotFound indicates no ETL log record exists for the id.
	ErrETLLogNotFound = errors.New("etl log record not found")
	// ErrBulkLoadNotFound indicates no bulk-load record exists for the load id.
	ErrBulkLoadNotFound = errors.New("bulk load record not found")
	// ErrLoadSubmissionRejected indicates the graph engine refused a load request.
	ErrLoadSubmissionRejected = errors.New("load submission rejected")
)
