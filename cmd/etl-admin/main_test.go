package main

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/config"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/migrate"
)

func TestPrintUsage_ListsCommandsSorted(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))

	out := buf.String()
	assert.Contains(t, out, "Usage: etl-admin")
	prev := -1
	for _, name := range []string{"enqueue", "etl-history", "load-status", "migrate", "redrive-dlq"} {
		idx := bytes.Index(buf.Bytes(), []byte("  "+name+" "))
		require.GreaterOrEqual(t, idx, 0, name)
		assert.Greater(t, idx, prev, "%s out of order", name)
		prev = idx
	}
}

func TestParseMigrateFlags(t *testing.T) {
	opts, err := parseMigrateFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultMigrationTimeout, opts.Timeout)
	assert.False(t, opts.Status)

	opts, err = parseMigrateFlags([]string{"--timeout", "30s", "--status"})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.True(t, opts.Status)

	_, err = parseMigrateFlags([]string{"--timeout", "0s"})
	require.Error(t, err)
}

func TestParseHistoryFlags(t *testing.T) {
	opts, key, err := parseHistoryFlags([]string{"--limit", "5", "/incoming/orders.csv"})
	require.NoError(t, err)
	assert.Equal(t, 5, opts.Limit)
	assert.Equal(t, "incoming/orders.csv", key)

	_, _, err = parseHistoryFlags(nil)
	require.Error(t, err)
	_, _, err = parseHistoryFlags([]string{"  "})
	require.Error(t, err)
}

func TestRunMigrations_RequiresPostgres(t *testing.T) {
	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: slog.Default(),
		Config: config.AppConfig{LogStore: config.LogStoreConfig{Backend: config.LogStoreDynamoDB}},
		Out:    &bytes.Buffer{},
	}
	err := runMigrations(cmdCtx, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_STORE=postgres")
}

func TestPrintMigrationStatus(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	require.NoError(t, printMigrationStatus(&buf, []migrate.Status{
		{Version: "001_etl_log.sql", Applied: true, AppliedAt: &at},
		{Version: "002_bulk_load_log.sql"},
	}))

	out := buf.String()
	assert.Contains(t, out, "001_etl_log.sql")
	assert.Contains(t, out, "2024-01-01T12:00:00Z")
	assert.Contains(t, out, "false")
}

func TestPrintLoadReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printLoadReport(&buf, &model.LoadStatusReport{
		LoadID: "load-1",
		Status: model.LoadStatusCompletedWithErrors,
		Payload: model.LoadPayload{
			OverallStatus: "LOAD_COMPLETED",
			FeedCount:     2,
			FailedFeeds:   1,
			Errors:        []model.LoadError{{ErrorCode: "PARSING_ERROR", ErrorMessage: "bad row", FileName: "orders_nodes.csv", RecordNum: 7}},
		},
		SourceKey: "output/orders/orders_nodes.csv",
	}))

	out := buf.String()
	assert.Contains(t, out, "completed_with_errors")
	assert.Contains(t, out, "2 (1 failed)")
	assert.Contains(t, out, "PARSING_ERROR")
	assert.Contains(t, out, "orders_nodes.csv:7")
}

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printHistory(&buf, "incoming/orders.csv", nil))
	assert.Contains(t, buf.String(), "No ETL log records")

	buf.Reset()
	msg := "transform timed out"
	require.NoError(t, printHistory(&buf, "incoming/orders.csv", []*model.ETLLogRecord{
		{ID: "incoming/orders.csv", Timestamp: "2024-01-01T12:00:05Z", Status: model.ETLStatusSuccess, Attempt: 1, NodeLabel: "Order", OutputKeys: []string{"output/orders/orders_nodes.csv"}},
		{ID: "incoming/orders.csv", Timestamp: "2024-01-01T12:00:00Z", Status: model.ETLStatusFailed, Attempt: 0, Error: &msg},
	}))
	out := buf.String()
	assert.Contains(t, out, "output/orders/orders_nodes.csv")
	assert.Contains(t, out, "transform timed out")
}
