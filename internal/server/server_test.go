package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/devrev/tablegateway/internal/airtable"
	"github.com/devrev/tablegateway/internal/airtable/airtabletest"
	"github.com/devrev/tablegateway/internal/config"
	"github.com/devrev/tablegateway/internal/metrics"
	"github.com/devrev/tablegateway/internal/model"
	"github.com/devrev/tablegateway/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testAPIKey = "patTESTKEY"

var samples = model.NewTableRef("appTEST", "Samples")

type testEnv struct {
	twin     *airtabletest.Server
	gateway  *httptest.Server
	registry *prometheus.Registry
}

type envOption func(cfg *config.Config)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	twin := airtabletest.NewServer(airtabletest.WithAPIKey(testAPIKey))
	twin.Store().EnsureTable(samples)
	remote := httptest.NewServer(twin)
	t.Cleanup(remote.Close)

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:           8000,
			APIPrefix:      "/api",
			RequestTimeout: 5 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		Airtable: config.AirtableConfig{
			APIKey:    testAPIKey,
			BaseID:    samples.BaseID,
			TableName: samples.TableName,
			BaseURL:   remote.URL + "/v0",
			Timeout:   5 * time.Second,
			PageSize:  100,
		},
		Health: config.HealthConfig{CheckInterval: time.Minute, CheckTimeout: time.Second},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)

	client, err := airtable.NewClient(cfg.Airtable, zap.NewNop(), airtable.WithRecorder(m))
	require.NoError(t, err)
	svc := service.NewTableService(client, nil, model.NewTableRef(cfg.Airtable.BaseID, cfg.Airtable.TableName), zap.NewNop())

	srv := NewServer(cfg, svc, m, zap.NewNop())
	srv.SetupRoutes()
	gateway := httptest.NewServer(srv.GetHandler())
	t.Cleanup(gateway.Close)

	return &testEnv{twin: twin, gateway: gateway, registry: registry}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.gateway.URL+path, reader)
	require.NoError(t, err)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.gateway.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return resp.StatusCode, out
}

func TestServer_CreateScenario(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/api/appTEST/Samples", map[string]any{
		"name":  "Test Record",
		"value": 123,
	})

	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["id"])
	fields := body["fields"].(map[string]any)
	assert.Equal(t, "Test Record", fields["name"])
	assert.Equal(t, float64(123), fields["value"])
}

func TestServer_RecordLifecycle(t *testing.T) {
	env := newTestEnv(t)

	status, created := env.do(t, http.MethodPost, "/api/appTEST/Samples", map[string]any{
		"fields": map[string]any{"POINT_ID": "BH501", "Zone": "Zone5", "Material": "Clay"},
	})
	require.Equal(t, http.StatusOK, status)
	id := created["id"].(string)
	recordPath := "/api/appTEST/Samples/" + id

	status, got := env.do(t, http.MethodGet, recordPath, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "BH501", got["fields"].(map[string]any)["POINT_ID"])
	assert.NotEmpty(t, got["createdTime"])

	status, updated := env.do(t, http.MethodPatch, recordPath, map[string]any{
		"fields": map[string]any{"Zone": "Zone6", "Material": nil},
	})
	require.Equal(t, http.StatusOK, status)
	fields := updated["fields"].(map[string]any)
	assert.Equal(t, "Zone6", fields["Zone"])
	assert.Equal(t, "Clay", fields["Material"])

	status, listed := env.do(t, http.MethodGet, "/api/appTEST/Samples", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, listed["records"], 1)

	status, deleted := env.do(t, http.MethodDelete, recordPath, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Record deleted successfully", deleted["message"])

	status, missing := env.do(t, http.MethodGet, recordPath, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.NotEmpty(t, missing["detail"])

	status, _ = env.do(t, http.MethodDelete, recordPath, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_FilteredList(t *testing.T) {
	env := newTestEnv(t)
	for i, zone := range []string{"Zone5", "Zone5", "Zone6"} {
		env.twin.Store().Insert(samples, model.Record{Fields: model.Fields{
			"POINT_ID": fmt.Sprintf("BH50%d", i+1),
			"Zone":     zone,
			"Depth":    json.Number(fmt.Sprintf("%d", 10*(i+1))),
		}})
	}

	status, body := env.do(t, http.MethodGet, "/api/appTEST/Samples?filter=Zone:Zone5&sort=-Depth", nil)
	require.Equal(t, http.StatusOK, status)

	records := body["records"].([]any)
	require.Len(t, records, 2)
	first := records[0].(map[string]any)["fields"].(map[string]any)
	assert.Equal(t, "BH502", first["POINT_ID"])

	var formula string
	for _, req := range env.twin.Requests() {
		if f := req.Query.Get("filterByFormula"); f != "" {
			formula = f
		}
	}
	assert.Equal(t, "AND({Zone}='Zone5')", formula)
}

func TestServer_FollowsPagination(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.Airtable.PageSize = 2 })
	for i := 0; i < 5; i++ {
		env.twin.Store().Insert(samples, model.Record{Fields: model.Fields{"POINT_ID": fmt.Sprintf("BH%d", i)}})
	}
	env.twin.ResetRequests()

	status, body := env.do(t, http.MethodGet, "/api/appTEST/Samples", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["records"], 5)
	assert.Len(t, env.twin.Requests(), 3)
}

func TestServer_ErrorMapping(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantDetail string
	}{
		{"malformed JSON body", http.MethodPost, "/api/appTEST/Samples", `{"name":`, http.StatusBadRequest, "failed to parse request body"},
		{"non-object body", http.MethodPost, "/api/appTEST/Samples", `[1]`, http.StatusBadRequest, "must be a JSON object"},
		{"missing record", http.MethodGet, "/api/appTEST/Samples/recMISSING0000001", nil, http.StatusNotFound, ""},
		{"unknown table", http.MethodGet, "/api/appTEST/Unknown", nil, http.StatusNotFound, ""},
		{"empty sort", http.MethodGet, "/api/appTEST/Samples?sort=", nil, http.StatusBadRequest, "invalid sort"},
		{"unknown route", http.MethodGet, "/nowhere", nil, http.StatusNotFound, "endpoint not found"},
		{"wrong method", http.MethodPut, "/api/appTEST/Samples/rec1", `{}`, http.StatusMethodNotAllowed, "method not allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, status)
			require.Contains(t, body, "detail")
			if tt.wantDetail != "" {
				assert.Contains(t, body["detail"], tt.wantDetail)
			}
		})
	}
}

func TestServer_MissingAPIKey(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.Airtable.APIKey = "" })
	env.twin.ResetRequests()

	status, body := env.do(t, http.MethodGet, "/api/appTEST/Samples", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, body["detail"], "AIRTABLE_API_KEY is not configured")
	assert.Empty(t, env.twin.Requests())
}

func TestServer_CheckConnection(t *testing.T) {
	t.Run("valid credentials", func(t *testing.T) {
		env := newTestEnv(t)
		status, body := env.do(t, http.MethodGet, "/api/check-connection", nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "Connection successful", body["message"])
	})

	t.Run("invalid credentials", func(t *testing.T) {
		env := newTestEnv(t, func(cfg *config.Config) { cfg.Airtable.APIKey = "patWRONG" })
		status, body := env.do(t, http.MethodGet, "/api/check-connection", nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "Connection failed", body["message"])
		assert.NotEmpty(t, body["error"])
	})

	t.Run("missing default table", func(t *testing.T) {
		env := newTestEnv(t, func(cfg *config.Config) { cfg.Airtable.TableName = "" })
		status, body := env.do(t, http.MethodGet, "/api/check-connection", nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, false, body["success"])
		assert.Contains(t, body["error"], "AIRTABLE_TABLE_NAME")
	})
}

func TestServer_HealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])

	status, body = env.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	unready := newTestEnv(t, func(cfg *config.Config) { cfg.Airtable.APIKey = "patWRONG" })
	status, body = unready.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "not_ready", body["status"])
}

func TestServer_Middleware(t *testing.T) {
	t.Run("request id and metrics", func(t *testing.T) {
		env := newTestEnv(t)

		resp, err := env.gateway.Client().Get(env.gateway.URL + "/api/appTEST/Samples")
		require.NoError(t, err)
		resp.Body.Close()
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

		count, err := testutil.GatherAndCount(env.registry, "table_gateway_http_requests_total")
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		count, err = testutil.GatherAndCount(env.registry, "table_gateway_remote_requests_total")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("rate limited", func(t *testing.T) {
		env := newTestEnv(t, func(cfg *config.Config) {
			cfg.RateLimiter = config.RateLimiterConfig{Enabled: true, RequestsPerSecond: 0.001, BurstSize: 1}
		})

		status, _ := env.do(t, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, status)

		status, body := env.do(t, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusTooManyRequests, status)
		assert.Equal(t, "rate limit exceeded", body["detail"])
	})

	t.Run("panics become 500", func(t *testing.T) {
		cfg := &config.Config{Server: config.ServerConfig{APIPrefix: "/api", RequestTimeout: time.Second}}
		srv := NewServer(cfg, nil, nil, zap.NewNop())
		srv.SetupRoutes()

		rr := httptest.NewRecorder()
		srv.GetHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/check-connection", nil))
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.JSONEq(t, `{"detail":"internal server error"}`, rr.Body.String())
	})
}
