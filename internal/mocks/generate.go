// Package mocks provides mock implementations for testing the ingestion pipeline.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the ports in internal/core.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	loader := mocks.NewMockGraphLoader(ctrl)
//	loader.EXPECT().StartLoad(gomock.Any(), gomock.Any()).Return("load-1", nil)
package mocks

// StartLoad, LoadStatus
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=graph_loader_mock.go github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/core GraphLoader

// Put, Get, UpdateStatus, FindRecentBySource
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=bulk_load_repository_mock.go github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/core BulkLoadRepository

// Append, History, Latest
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=etl_log_repository_mock.go github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/core ETLLogRepository

// Transform
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=schema_transformer_mock.go github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/core SchemaTransformer

// Set, Get, Delete, SetIfNotExists, Health
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=cache_repository_mock.go github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/core CacheRepository
