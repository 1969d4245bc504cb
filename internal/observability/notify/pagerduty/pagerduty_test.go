package pagerduty

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error when routing key missing")
	}
}

func TestBuildEventDefaults(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key", Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	event := client.buildEvent(notify.PipelineFailurePayload{
		Subject:    "orders.csv",
		FileName:   "orders.csv",
		Attempt:    10,
		Error:      "boom",
		ErrorClass: "throttled",
	})

	payloadSection, ok := event["payload"].(map[string]any)
	if !ok {
		t.Fatalf("expected payload section")
	}
	if payloadSection["severity"] != notify.SeverityCritical {
		t.Fatalf("expected default severity, got %v", payloadSection["severity"])
	}
	if payloadSection["source"] != "etl-pipeline" {
		t.Fatalf("expected default source, got %v", payloadSection["source"])
	}
	if payloadSection["component"] != "etl-pipeline" {
		t.Fatalf("expected default component, got %v", payloadSection["component"])
	}
	if s, _ := payloadSection["summary"].(string); !strings.Contains(s, "attempt 10") {
		t.Fatalf("unexpected summary %q", s)
	}

	custom, ok := payloadSection["custom_details"].(map[string]any)
	if !ok {
		t.Fatalf("expected custom details")
	}
	for _, key := range []string{"stage", "subject", "file_name", "error", "error_class"} {
		if _, exists := custom[key]; !exists {
			t.Fatalf("expected key %s in custom details", key)
		}
	}

	if dedup, _ := event["dedup_key"].(string); dedup != "etl:orders.csv" {
		t.Fatalf("unexpected dedup key %q", dedup)
	}
}

func TestSendPipelineFailurePostsEvent(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "key", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = client.SendPipelineFailure(context.Background(), notify.PipelineFailurePayload{
		Stage:   notify.StageBulkLoad,
		Subject: "failed-42",
		LoadID:  "failed-42",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["dedup_key"] != "bulk_load:failed-42" {
		t.Fatalf("unexpected dedup key %v", got["dedup_key"])
	}
}
