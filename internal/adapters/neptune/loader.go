// Package neptune submits and inspects bulk-load jobs through the Neptune loader HTTP API.
package neptune

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/core"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
	apperrors "github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/errors"
)

// signingService is the SigV4 service name for Neptune data-plane calls.
const signingService = "neptune-db"

const maxErrorBody = 8192

var (
	// ErrEndpointRequired is returned by New for an empty endpoint.
	ErrEndpointRequired = errors.New("graph endpoint is required")
	// ErrCredentialsRequired is returned by New when IAM auth is enabled without credentials.
	ErrCredentialsRequired = errors.New("credentials are required for IAM auth")
)

// Options configures a Loader.
type Options struct {
	// Endpoint is the cluster base URL, e.g. https://cluster.example:8182.
	Endpoint   string
	HTTPClient *http.Client
	Timeout    time.Duration

	IAMAuth     bool
	Region      string
	Credentials aws.CredentialsProvider

	Logger *slog.Logger
	Now    func() time.Time
}

// Loader implements core.GraphLoader.
type Loader struct {
	endpoint string
	client   *http.Client
	iamAuth  bool
	region   string
	creds    aws.CredentialsProvider
	signer   *v4.Signer
	logger   *slog.Logger
	now      func() time.Time
}

var _ core.GraphLoader = (*Loader)(nil)

// New validates opts and builds a Loader.
func New(opts Options) (*Loader, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	if endpoint == "" {
		return nil, ErrEndpointRequired
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("parse graph endpoint: %w", err)
	}
	if opts.IAMAuth && opts.Credentials == nil {
		return nil, ErrCredentialsRequired
	}

	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Loader{
		endpoint: endpoint,
		client:   client,
		iamAuth:  opts.IAMAuth,
		region:   opts.Region,
		creds:    opts.Credentials,
		signer:   v4.NewSigner(),
		logger:   logger.With("component", "neptune_loader"),
		now:      now,
	}, nil
}

type startLoadBody struct {
	Source                            string `json:"source"`
	Format                            string `json:"format"`
	IAMRoleARN                        string `json:"iamRoleArn"`
	Region                            string `json:"region"`
	FailOnError                       string `json:"failOnError"`
	Parallelism                       string `json:"parallelism,omitempty"`
	QueueRequest                      string `json:"queueRequest"`
	UpdateSingleCardinalityProperties string `json:"updateSingleCardinalityProperties"`
}

type startLoadResponse struct {
	Status  string `json:"status"`
	Payload struct {
		LoadID string `json:"loadId"`
	} `json:"payload"`
}

// StartLoad submits a bulk-load job and returns the engine's load id.
// Engine rejections wrap model.ErrLoadSubmissionRejected.
func (l *Loader) StartLoad(ctx context.Context, req model.LoadRequest) (string, error) {
	body, err := json.Marshal(startLoadBody{
		Source:                            req.Source,
		Format:                            req.Format,
		IAMRoleARN:                        req.IAMRoleARN,
		Region:                            req.Region,
		FailOnError:                       boolFlag(req.FailOnError),
		Parallelism:                       req.Parallelism,
		QueueRequest:                      boolFlag(req.QueueRequest),
		UpdateSingleCardinalityProperties: boolFlag(req.UpdateSingleCardinalityProperties),
	})
	if err != nil {
		return "", fmt.Errorf("encode load request: %w", err)
	}

	status, respBody, err := l.do(ctx, http.MethodPost, l.endpoint+"/loader", body)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		apiErr := parseAPIError(status, respBody)
		return "", fmt.Errorf("%w: %w", model.ErrLoadSubmissionRejected, apperrors.MapHTTPStatus(status, apiErr))
	}

	var out startLoadResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("decode load response: %w", err)
	}
	if out.Payload.LoadID == "" {
		return "", fmt.Errorf("%w: response has no loadId", model.ErrLoadSubmissionRejected)
	}
	l.logger.InfoContext(ctx, "bulk load submitted", "load_id", out.Payload.LoadID, "source", req.Source)
	return out.Payload.LoadID, nil
}

type loadStatusResponse struct {
	Status  string `json:"status"`
	Payload struct {
		FeedCount     []map[string]int `json:"feedCount"`
		OverallStatus struct {
			FullURI        string `json:"fullUri"`
			Status         string `json:"status"`
			StartTime      int64  `json:"startTime"`
			TotalTimeSpent int64  `json:"totalTimeSpent"`
			TotalRecords   int64  `json:"totalRecords"`
			ParsingErrors  int64  `json:"parsingErrors"`
			InsertErrors   int64  `json:"insertErrors"`
		} `json:"overallStatus"`
		Errors struct {
			ErrorLogs []model.LoadError `json:"errorLogs"`
		} `json:"errors"`
	} `json:"payload"`
}

// LoadStatus fetches the job's status with details and errors. An id the engine
// does not know yields Found=false rather than an error.
func (l *Loader) LoadStatus(ctx context.Context, loadID string) (*model.EngineLoadStatus, error) {
	u := l.endpoint + "/loader/" + url.PathEscape(loadID) + "?details=true&errors=true"
	status, respBody, err := l.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		apiErr := parseAPIError(status, respBody)
		if apiErr.notFound() {
			return &model.EngineLoadStatus{Found: false}, nil
		}
		return nil, fmt.Errorf("get load status: %w", apperrors.MapHTTPStatus(status, apiErr))
	}

	var out loadStatusResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode load status: %w", err)
	}
	return toEngineStatus(out), nil
}

func toEngineStatus(out loadStatusResponse) *model.EngineLoadStatus {
	overall := out.Payload.OverallStatus
	payload := model.LoadPayload{
		OverallStatus: overall.Status,
		Errors:        out.Payload.Errors.ErrorLogs,
	}
	for _, entry := range out.Payload.FeedCount {
		for feedStatus, n := range entry {
			payload.FeedCount += n
			if isFailedFeed(feedStatus) {
				payload.FailedFeeds += n
			}
		}
	}
	if payload.Errors == nil {
		payload.Errors = []model.LoadError{}
	}
	return &model.EngineLoadStatus{
		Found:          true,
		Status:         out.Status,
		Payload:        payload,
		StartTime:      overall.StartTime,
		TotalTimeSpent: overall.TotalTimeSpent,
	}
}

func isFailedFeed(status string) bool {
	s := strings.ToUpper(status)
	return strings.Contains(s, "FAIL") || strings.Contains(s, "ERROR") || strings.Contains(s, "CANCEL")
}

func (l *Loader) do(ctx context.Context, method, rawURL string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("create loader request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if l.iamAuth {
		if err := l.sign(ctx, req, body); err != nil {
			return 0, nil, err
		}
	}

	resp, err := l.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, fmt.Errorf("loader request: %w", ctxErr)
		}
		return 0, nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "loader request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("read loader response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func (l *Loader) sign(ctx context.Context, req *http.Request, body []byte) error {
	creds, err := l.creds.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("retrieve credentials: %w", err)
	}
	sum := sha256.Sum256(body)
	if err := l.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), signingService, l.region, l.now()); err != nil {
		return fmt.Errorf("sign loader request: %w", err)
	}
	return nil
}

// APIError is an error response returned by the loader endpoint.
type APIError struct {
	StatusCode      int
	Code            string `json:"code"`
	DetailedMessage string `json:"detailedMessage"`
	RequestID       string `json:"requestId"`
}

func (e *APIError) Error() string {
	msg := e.DetailedMessage
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("neptune loader %d %s: %s", e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("neptune loader %d: %s", e.StatusCode, msg)
}

// ErrorCode returns the engine's error code so error classification sees it.
func (e *APIError) ErrorCode() string { return e.Code }

func (e *APIError) notFound() bool {
	if e.StatusCode == http.StatusNotFound {
		return true
	}
	return strings.Contains(e.Code, "NotFound") ||
		strings.Contains(strings.ToLower(e.DetailedMessage), "not found")
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	if err := json.Unmarshal(body, apiErr); err != nil {
		apiErr.DetailedMessage = strings.TrimSpace(string(body))
	}
	return apiErr
}

func boolFlag(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}
