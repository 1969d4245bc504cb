package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/observability/notify"
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// ConsoleURLPrefix, when set, turns the failure subject into a link.
	ConsoleURLPrefix string
}

// Client delivers pipeline failure notifications to a Slack webhook.
type Client struct {
	webhookURL       string
	channel          string
	username         string
	retryLimit       int
	consoleURLPrefix string
	client           *http.Client
}

// NewClient builds a Slack webhook client. Callers should pass a validated config.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		webhookURL:       webhookURL,
		channel:          strings.TrimSpace(cfg.Channel),
		username:         fallbackString(strings.TrimSpace(cfg.Username), "etl-pipeline"),
		retryLimit:       max(cfg.RetryLimit, 0),
		consoleURLPrefix: strings.TrimSpace(cfg.ConsoleURLPrefix),
		client:           hc,
	}, nil
}

// SendPipelineFailure posts a formatted message to Slack.
func (c *Client) SendPipelineFailure(ctx context.Context, payload notify.PipelineFailurePayload) error {
	body, err := json.Marshal(c.formatMessage(payload))
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}
	return notify.DeliverWithRetry(ctx, c.retryLimit, func(ctx context.Context) error {
		return c.post(ctx, body)
	})
}

func (c *Client) formatMessage(payload notify.PipelineFailurePayload) map[string]any {
	timestamp := payload.OccurredAt
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	text := strings.Builder{}
	writeHeader(&text, payload)
	appendDetails(&text, payload, c.formatSubject(payload.Subject))
	appendMetadata(&text, payload.Metadata)
	text.WriteString("• Timestamp: ")
	text.WriteString(timestamp.UTC().Format(time.RFC3339))

	msg := map[string]any{
		"text":     text.String(),
		"username": c.username,
	}
	if c.channel != "" {
		msg["channel"] = c.channel
	}
	return msg
}

func fallbackString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("slack webhook %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("drain slack response body: %w", err)
	}
	return nil
}

func writeHeader(text *strings.Builder, payload notify.PipelineFailurePayload) {
	switch payload.Stage {
	case notify.StageBulkLoad:
		text.WriteString("*Bulk load failure*")
	default:
		text.WriteString("*ETL failure*")
	}
	if payload.FileName != "" {
		text.WriteString(" `")
		text.WriteString(escapeText(payload.FileName))
		text.WriteByte('`')
	}
	text.WriteByte('\n')
}

func appendDetails(text *strings.Builder, payload notify.PipelineFailurePayload, subject string) {
	attempt := ""
	if payload.Attempt > 0 {
		attempt = strconv.Itoa(payload.Attempt)
	}
	fields := []struct {
		label string
		value string
	}{
		{"Severity", fallbackString(payload.Severity, notify.SeverityCritical)},
		{"Subject", subject},
		{"Load ID", escapeText(payload.LoadID)},
		{"Attempt", attempt},
		{"Error class", payload.ErrorClass},
		{"Error", escapeText(payload.Error)},
	}
	for _, field := range fields {
		if strings.TrimSpace(field.value) == "" {
			continue
		}
		text.WriteString("• ")
		text.WriteString(field.label)
		text.WriteString(": ")
		text.WriteString(field.value)
		text.WriteByte('\n')
	}
}

func (c *Client) formatSubject(subject string) string {
	raw := strings.TrimSpace(subject)
	if raw == "" {
		return ""
	}
	display := escapeText(raw)
	if link := c.buildLink(raw); link != "" {
		return fmt.Sprintf("<%s|%s>", link, display)
	}
	return display
}

func escapeText(value string) string {
	if value == "" {
		return ""
	}
	return strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	).Replace(value)
}

func (c *Client) buildLink(subject string) string {
	if c.consoleURLPrefix == "" {
		return ""
	}
	u, err := url.Parse(c.consoleURLPrefix)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	link, err := url.JoinPath(u.String(), subject)
	if err != nil {
		return ""
	}
	return link
}

func appendMetadata(text *strings.Builder, metadata map[string]string) {
	if len(metadata) == 0 {
		return
	}
	text.WriteString("• Metadata:\n")
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		text.WriteString("    • ")
		text.WriteString(k)
		text.WriteString(": ")
		text.WriteString(metadata[k])
		text.WriteByte('\n')
	}
}
