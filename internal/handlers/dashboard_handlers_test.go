package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solar-analyzer/internal/gateway"
	"solar-analyzer/internal/models"
	"solar-analyzer/internal/services"
	"solar-analyzer/pkg/logging"
	"solar-analyzer/pkg/metrics"
)

// analysisService is a scripted stand-in for the remote analysis service
type analysisService struct {
	mu       sync.Mutex
	requests []*http.Request
	mux      *http.ServeMux
}

func newAnalysisService() *analysisService {
	s := &analysisService{mux: http.NewServeMux()}

	s.mux.HandleFunc("/api/analysis-results/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("site_id") != "" {
			w.Write([]byte(`[]`))
			return
		}
		w.Write([]byte(`{"count": 3, "results": [
			{"result_id": 1, "site": 1, "total_suitability_score": "95.00"},
			{"result_id": 2, "site": 2, "total_suitability_score": "45.00"},
			{"result_id": 3, "site": 3, "total_suitability_score": "10.00"}
		]}`))
	})
	s.mux.HandleFunc("/api/sites/1/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"site_id": 1, "site_name": "North Ridge", "area_sqm": "5000.00"}`))
	})
	s.mux.HandleFunc("/api/sites/7/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail": "Not found."}`))
	})
	s.mux.HandleFunc("/api/analyze/calculate/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]float64
		json.NewDecoder(r.Body).Decode(&body)
		if body["area_sqm"] == 503 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"detail": "Scoring backend unavailable"}`))
			return
		}
		if body["area_sqm"] < 0 {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"area_sqm": ["Ensure this value is greater than or equal to 0."]}`))
			return
		}
		w.Write([]byte(`{"total_score": 64.2, "breakdown": {"solar": 80}, "weights_used": {"solar": 40}}`))
	})
	s.mux.HandleFunc("/api/export/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"site_id": 1}]`))
	})
	s.mux.HandleFunc("/api/analysis-parameters/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"param_id": 1, "parameter_name": "solar", "weight_value": "0.350", "is_active": true}]`))
	})
	return s
}

func (s *analysisService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.Clone(r.Context()))
	s.mu.Unlock()
	s.mux.ServeHTTP(w, r)
}

func (s *analysisService) lastRequest() *http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return nil
	}
	return s.requests[len(s.requests)-1]
}

type testEnv struct {
	router    *mux.Router
	upstream  *analysisService
	exportDir string
	metrics   *metrics.Collector
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	upstream := newAnalysisService()
	ts := httptest.NewServer(upstream)
	t.Cleanup(ts.Close)

	logger := logging.NewStructuredLogger("handlers-test", "test", logging.ErrorLevel)
	logger.SetOutput(io.Discard)
	collector := metrics.NewCollectorWithRegistry("test", prometheus.NewRegistry())

	client := gateway.New(gateway.Config{BaseURL: ts.URL + "/api", Timeout: 5 * time.Second}, logger, collector)
	exportDir := t.TempDir()
	store := services.NewAnalysisStore(client, services.NewDirSaver(exportDir), logger, collector)

	router := mux.NewRouter()
	router.Use(RequestID, Recoverer(logger, collector))
	NewDashboardHandler(store, nil, logger, collector).RegisterRoutes(router)

	return &testEnv{router: router, upstream: upstream, exportDir: exportDir, metrics: collector}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestGetState_Initial(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)

	state := decode[services.State](t, rec)
	assert.Equal(t, models.DefaultFilters(), state.Filters)
	assert.Nil(t, state.Error)
	assert.Empty(t, state.AnalysisResults)
}

func TestFetchSitesAndViews(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/sites/fetch", `{"region": "west"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	upstreamReq := env.upstream.lastRequest()
	require.NotNil(t, upstreamReq)
	assert.Equal(t, "west", upstreamReq.URL.Query().Get("region"))
	assert.Equal(t, "0", upstreamReq.URL.Query().Get("min_score"))

	state := decode[services.State](t, rec)
	assert.Len(t, state.AnalysisResults, 3)
	assert.Equal(t, "west", *state.Filters.Region)

	rec = env.do(t, http.MethodGet, "/api/views/distribution", "")
	assert.Equal(t, models.ScoreDistribution{Excellent: 1, Fair: 1, VeryPoor: 1}, decode[models.ScoreDistribution](t, rec))

	rec = env.do(t, http.MethodPatch, "/api/filters", `{"min_score": 45}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/views/filtered", "")
	filtered := decode[ListResponse](t, rec)
	assert.Equal(t, 2, filtered.Count)

	rec = env.do(t, http.MethodGet, "/api/views/top", "")
	top := decode[ListResponse](t, rec)
	require.Equal(t, 3, top.Count)
	assert.Equal(t, 95.0, top.Results[0].Score())
}

func TestFetchSites_RejectsUnknownFilter(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/sites/fetch", `{"regoin": "west"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, env.upstream.lastRequest())
}

func TestGetSiteDetails(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/sites/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/sites/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	details := decode[SiteDetailsResponse](t, rec)
	require.NotNil(t, details.Site)
	assert.Equal(t, int64(1), details.Site.SiteID)
	assert.Nil(t, details.Error)

	// The store still holds site 1, which must not answer for site 7
	rec = env.do(t, http.MethodGet, "/api/sites/7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	details = decode[SiteDetailsResponse](t, rec)
	assert.Nil(t, details.Site)
	assert.Nil(t, details.Analysis)
	require.NotNil(t, details.Error)
	assert.Equal(t, "Not found.", *details.Error)
}

func TestCalculate(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/calculate", `{"site": {"area_sqm": 5000, "solar_irradiance_kwh": 5.2}, "weights": {"solar_weight": "150", "area_weight": 20}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[CalculateResponse](t, rec)
	assert.Equal(t, 64.2, resp.Result.TotalScore.Float64())
	assert.Nil(t, resp.RecordID)

	rec = env.do(t, http.MethodPost, "/api/calculate", `{"site": {"area_sqm": -1}, "weights": {}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errResp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "area_sqm: Ensure this value is greater than or equal to 0.", errResp.Message)
	assert.Contains(t, errResp.FieldErrors, "area_sqm")

	state := decode[services.State](t, env.do(t, http.MethodGet, "/api/state", ""))
	require.NotNil(t, state.Error)

	rec = env.do(t, http.MethodDelete, "/api/error", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	state = decode[services.State](t, env.do(t, http.MethodGet, "/api/state", ""))
	assert.Nil(t, state.Error)
}

func TestCalculate_UnavailableIsRetryable(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/calculate", `{"site": {"area_sqm": 503}, "weights": {}}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	errResp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "Scoring backend unavailable", errResp.Message)
	assert.True(t, errResp.Retryable)

	rec = env.do(t, http.MethodPost, "/api/calculate", `{"site": {"area_sqm": -1}, "weights": {}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, decode[ErrorResponse](t, rec).Retryable)
}

func TestRoutesObserveRequestDuration(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodGet, "/api/state", "")
	env.do(t, http.MethodGet, "/health", "")

	assert.Equal(t, 2, testutil.CollectAndCount(env.metrics.APIRequestDuration))
}

func TestCalculations_HistoryDisabled(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/calculations", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExport(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/export?format=xml", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/export?format=json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ExportResponse](t, rec)
	assert.Equal(t, "solar_sites.json", resp.File)
	assert.Equal(t, filepath.Join(env.exportDir, "solar_sites.json"), resp.Location)
	assert.Nil(t, resp.Error)

	data, err := os.ReadFile(resp.Location)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"site_id": 1}]`, string(data))
}

func TestGetParameters(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/parameters", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ParametersResponse](t, rec)
	require.Len(t, resp.Parameters, 1)
	assert.Equal(t, 0.35, resp.Parameters[0].WeightValue.Float64())
}

func TestRequestIDPropagation(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/statistics/fetch", nil)
	req.Header.Set("X-Request-ID", "dash-123")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, "dash-123", rec.Header().Get("X-Request-ID"))
	upstreamReq := env.upstream.lastRequest()
	require.NotNil(t, upstreamReq)
	assert.Equal(t, "dash-123", upstreamReq.Header.Get("X-Request-ID"))

	rec = env.do(t, http.MethodGet, "/health", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "disabled", body["history"])
}

func TestOpenAPISpec(t *testing.T) {
	rec := httptest.NewRecorder()
	OpenAPISpec(rec, httptest.NewRequest(http.MethodGet, "/api/docs/openapi.json", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var spec map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &spec))
	paths, ok := spec["paths"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, paths, "/api/calculate")
	assert.Contains(t, paths, "/api/views/distribution")
}
