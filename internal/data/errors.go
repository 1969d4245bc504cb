package data

import (
	"errors"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
)

// Shared sentinel errors for data-layer repositories.
var (
	ErrLoadIDRequired   = errors.New("loadId is required")
	ErrSourceKeyMissing = errors.New("sourceKey is required")

	// ErrDuplicateETLRecord is returned when a record with the same id and timestamp already exists.
	ErrDuplicateETLRecord = model.ErrDuplicateETLRecord
)
