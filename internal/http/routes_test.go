package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/service"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/testutil"
)

type routerFixture struct {
	engine *testutil.FakeGraphLoader
	loads  *testutil.MemBulkLoadRepo
	log    *testutil.MemETLLog
	router http.Handler
}

func newRouterFixture(t *testing.T, checks map[string]HealthCheck) *routerFixture {
	t.Helper()
	f := &routerFixture{
		engine: testutil.NewFakeGraphLoader(),
		loads:  testutil.NewMemBulkLoadRepo(),
		log:    testutil.NewMemETLLog(),
	}
	loads, err := service.NewLoadStatusService(service.LoadStatusServiceOptions{
		Loader: f.engine,
		Repo:   f.loads,
		Now:    testutil.FixedTimeFunc(testutil.TestTime()),
	})
	require.NoError(t, err)
	etl, err := service.NewETLLogService(service.ETLLogServiceOptions{Repo: f.log})
	require.NoError(t, err)
	f.router = NewRouter(RouterServices{
		Loads:              loads,
		ETLLog:             etl,
		Checks:             checks,
		CORSAllowedOrigins: []string{"https://console.example.com"},
	})
	return f
}

func (f *routerFixture) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	f := newRouterFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	rec = f.do(t, http.MethodHead, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, rec.Body.Len())
}

func TestReadyz(t *testing.T) {
	f := newRouterFixture(t, map[string]HealthCheck{
		"etl_log": func(context.Context) error { return nil },
		"cache":   func(context.Context) error { return errors.New("connection refused") },
	})

	rec := f.do(t, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody[readiness](t, rec)
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Checks["etl_log"])
	assert.Equal(t, "connection refused", body.Checks["cache"])
}

func TestLoadRoutes(t *testing.T) {
	ctx := context.Background()
	f := newRouterFixture(t, nil)
	res, err := f.engine.StartLoad(ctx, model.LoadRequest{Source: "s3://data/output/orders/orders_nodes.csv"})
	require.NoError(t, err)
	require.NoError(t, f.loads.Put(ctx, &model.BulkLoadJob{
		LoadID:      res,
		SourceKey:   "output/orders/orders_nodes.csv",
		Source:      "s3://data/output/orders/orders_nodes.csv",
		Status:      model.LoadStatusInProgress,
		SubmittedAt: testutil.TestTime(),
		UpdatedAt:   testutil.TestTime(),
	}))

	t.Run("stored record", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/loads/"+res)
		require.Equal(t, http.StatusOK, rec.Code)
		job := decodeBody[model.BulkLoadJob](t, rec)
		assert.Equal(t, model.LoadStatusInProgress, job.Status)
	})

	t.Run("live status", func(t *testing.T) {
		f.engine.SetStatus(res, &model.EngineLoadStatus{Found: true, Status: "LOAD_COMPLETED"})
		rec := f.do(t, http.MethodGet, "/api/loads/"+res+"/status")
		require.Equal(t, http.StatusOK, rec.Code)
		report := decodeBody[model.LoadStatusReport](t, rec)
		assert.Equal(t, model.LoadStatusCompleted, report.Status)
		assert.Equal(t, "output/orders/orders_nodes.csv", report.SourceKey)
	})

	t.Run("unknown load", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/loads/missing")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		body := decodeBody[errorBody](t, rec)
		assert.Equal(t, "not_found", body.Error)
		assert.Equal(t, rec.Header().Get(RequestIDHeader), body.RequestID)
	})

	t.Run("engine failure hides details", func(t *testing.T) {
		f.engine.StatusErr = errors.New("dial tcp 10.0.0.1:8182: i/o timeout")
		t.Cleanup(func() { f.engine.StatusErr = nil })
		rec := f.do(t, http.MethodGet, "/api/loads/"+res+"/status")
		assert.GreaterOrEqual(t, rec.Code, http.StatusInternalServerError)
		assert.NotContains(t, rec.Body.String(), "10.0.0.1")
	})
}

func TestETLLogRoutes(t *testing.T) {
	ctx := context.Background()
	f := newRouterFixture(t, nil)
	key := "incoming/sales/orders.csv"
	at := testutil.TestTime()
	require.NoError(t, f.log.Append(ctx, testutil.NewETLRecord(key, at).Pending("throttled").Build()))
	require.NoError(t, f.log.Append(ctx, testutil.NewETLRecord(key, at.Add(time.Minute)).WithAttempt(1).Build()))

	rec := f.do(t, http.MethodGet, "/api/etl/logs/"+key)
	require.Equal(t, http.StatusOK, rec.Code)
	hist := decodeBody[historyResponse](t, rec)
	assert.Equal(t, key, hist.ID)
	require.Len(t, hist.Records, 2)
	assert.Equal(t, 1, hist.Records[0].Attempt, "newest first")

	rec = f.do(t, http.MethodGet, "/api/etl/logs/"+key+"?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[historyResponse](t, rec).Records, 1)

	rec = f.do(t, http.MethodGet, "/api/etl/logs/"+key+"?limit=many")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "limit", decodeBody[errorBody](t, rec).Field)

	rec = f.do(t, http.MethodGet, "/api/etl/latest/"+key)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[model.ETLLogRecord](t, rec).Attempt)

	rec = f.do(t, http.MethodGet, "/api/etl/latest/incoming/unknown.csv")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/etl/logs/incoming/unknown.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"incoming/unknown.csv","records":[]}`, rec.Body.String())
}

func TestRouter_UnknownRoute(t *testing.T) {
	f := newRouterFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/jobs")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeBody[errorBody](t, rec).Error)
}

func TestRouter_CORS(t *testing.T) {
	f := newRouterFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://console.example.com")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, "https://console.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
