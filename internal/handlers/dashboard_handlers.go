package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"solar-analyzer/internal/gateway"
	"solar-analyzer/internal/models"
	"solar-analyzer/internal/repository"
	"solar-analyzer/internal/services"
	"solar-analyzer/pkg/logging"
	"solar-analyzer/pkg/metrics"
)

const (
	maxRequestBodySize  = 1 << 20
	defaultHistoryLimit = 20
)

// DashboardHandler exposes the analysis store to the view layer
type DashboardHandler struct {
	store   *services.AnalysisStore
	history *services.HistoryService
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewDashboardHandler creates a new dashboard handler. history may be nil,
// in which case calculations are not recorded.
func NewDashboardHandler(
	store *services.AnalysisStore,
	history *services.HistoryService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *DashboardHandler {
	return &DashboardHandler{
		store:   store,
		history: history,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error       string              `json:"error"`
	Message     string              `json:"message"`
	Code        int                 `json:"code"`
	FieldErrors map[string][]string `json:"field_errors,omitempty"`
	// Retryable marks gateway failures that may succeed when repeated
	Retryable bool `json:"retryable,omitempty"`
}

// ListResponse wraps a derived view
type ListResponse struct {
	Results []models.AnalysisResult `json:"results"`
	Count   int                     `json:"count"`
}

// SiteDetailsResponse is the outcome of a site details fetch
type SiteDetailsResponse struct {
	Site     *models.Site           `json:"site"`
	Analysis *models.AnalysisResult `json:"analysis"`
	Error    *string                `json:"error"`
}

// CalculateRequest is the body of POST /api/calculate
type CalculateRequest struct {
	Site    models.SiteInput  `json:"site"`
	Weights models.RawWeights `json:"weights"`
}

// CalculateResponse carries the service's score and, when history is
// enabled, the stored record ID.
type CalculateResponse struct {
	Result   *models.CalculationResult `json:"result"`
	RecordID *int64                    `json:"record_id,omitempty"`
}

// ParametersResponse lists the held analysis parameters
type ParametersResponse struct {
	Parameters []models.AnalysisParameter `json:"parameters"`
	Error      *string                    `json:"error"`
}

// ExportResponse reports where an export was saved
type ExportResponse struct {
	File     string  `json:"file"`
	Location string  `json:"location"`
	Error    *string `json:"error"`
}

// GetState handles GET /api/state
func (h *DashboardHandler) GetState(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, h.store.Snapshot(), http.StatusOK)
}

// FetchSites handles POST /api/sites/fetch. The body, if any, holds filter overrides.
func (h *DashboardHandler) FetchSites(w http.ResponseWriter, r *http.Request) {
	var override *models.SiteFilters

	var filters models.SiteFilters
	present, err := decodeOptionalBody(w, r, &filters)
	if err != nil {
		h.sendError(w, r, "/api/sites/fetch", "invalid filters: "+err.Error(), http.StatusBadRequest)
		return
	}
	if present {
		override = &filters
	}

	h.store.FetchSites(r.Context(), override)
	h.sendJSON(w, h.store.Snapshot(), http.StatusOK)
}

// UpdateFilters handles PATCH /api/filters
func (h *DashboardHandler) UpdateFilters(w http.ResponseWriter, r *http.Request) {
	var filters models.SiteFilters
	if err := decodeBody(w, r, &filters); err != nil {
		h.sendError(w, r, "/api/filters", "invalid filters: "+err.Error(), http.StatusBadRequest)
		return
	}

	h.store.UpdateFilters(r.Context(), filters)
	h.sendJSON(w, h.store.Snapshot(), http.StatusOK)
}

// ListSites handles POST /api/sites/list
func (h *DashboardHandler) ListSites(w http.ResponseWriter, r *http.Request) {
	h.store.FetchSiteList(r.Context())
	h.sendJSON(w, h.store.Snapshot(), http.StatusOK)
}

// GetSiteDetails handles GET /api/sites/{id}
func (h *DashboardHandler) GetSiteDetails(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		h.sendError(w, r, "/api/sites/{id}", "site id must be a positive integer", http.StatusBadRequest)
		return
	}

	h.store.FetchSiteDetails(r.Context(), id)

	// Only a site matching id answers this request; after a failed fetch the
	// store still holds whatever site was loaded before.
	state := h.store.Snapshot()
	resp := SiteDetailsResponse{Error: state.Error}
	if state.Error == nil && state.CurrentSite != nil && state.CurrentSite.SiteID == id {
		resp.Site = state.CurrentSite
		resp.Analysis = state.CurrentAnalysis
	}
	h.sendJSON(w, resp, http.StatusOK)
}

// FetchStatistics handles POST /api/statistics/fetch
func (h *DashboardHandler) FetchStatistics(w http.ResponseWriter, r *http.Request) {
	h.store.FetchStatistics(r.Context())
	h.sendJSON(w, h.store.Snapshot(), http.StatusOK)
}

// FetchTopSites handles POST /api/top-sites/fetch?limit=N
func (h *DashboardHandler) FetchTopSites(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r, services.DefaultTopSitesLimit)
	if !ok {
		h.sendError(w, r, "/api/top-sites/fetch", "limit must be a positive integer", http.StatusBadRequest)
		return
	}

	h.store.FetchTopSites(r.Context(), limit)
	h.sendJSON(w, h.store.Snapshot(), http.StatusOK)
}

// FilteredView handles GET /api/views/filtered
func (h *DashboardHandler) FilteredView(w http.ResponseWriter, r *http.Request) {
	results := h.store.FilteredSites()
	h.sendJSON(w, ListResponse{Results: results, Count: len(results)}, http.StatusOK)
}

// TopView handles GET /api/views/top
func (h *DashboardHandler) TopView(w http.ResponseWriter, r *http.Request) {
	results := h.store.TopSites()
	h.sendJSON(w, ListResponse{Results: results, Count: len(results)}, http.StatusOK)
}

// DistributionView handles GET /api/views/distribution
func (h *DashboardHandler) DistributionView(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, h.store.ScoreDistribution(), http.StatusOK)
}

// Calculate handles POST /api/calculate
func (h *DashboardHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CalculateRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.sendError(w, r, "/api/calculate", "invalid calculation request: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.store.CalculateCustomSuitability(ctx, req.Site, req.Weights)
	if err != nil {
		h.sendGatewayError(w, r, "/api/calculate", services.OpCalculate, err)
		return
	}

	resp := CalculateResponse{Result: result}
	if h.history != nil {
		record, err := h.history.Record(ctx, req.Site, req.Weights, result)
		if err != nil {
			h.logger.Error(ctx, "[API_HISTORY_ERROR] Failed to record calculation", logging.Fields{}, err)
			h.metrics.RecordAPIError("history_error", "/api/calculate")
		} else {
			resp.RecordID = &record.ID
		}
	}

	h.sendJSON(w, resp, http.StatusOK)
}

// ListCalculations handles GET /api/calculations?limit=N
func (h *DashboardHandler) ListCalculations(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.sendError(w, r, "/api/calculations", "calculation history is disabled", http.StatusNotFound)
		return
	}

	limit, ok := parseLimit(r, defaultHistoryLimit)
	if !ok {
		h.sendError(w, r, "/api/calculations", "limit must be a positive integer", http.StatusBadRequest)
		return
	}

	records, err := h.history.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error(r.Context(), "[API_LIST_CALCULATIONS_ERROR] Failed to list calculations", logging.Fields{
			"limit": limit,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/calculations")
		h.sendError(w, r, "/api/calculations", "failed to retrieve calculations", http.StatusInternalServerError)
		return
	}

	h.sendJSON(w, records, http.StatusOK)
}

// GetCalculation handles GET /api/calculations/{id}
func (h *DashboardHandler) GetCalculation(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.sendError(w, r, "/api/calculations/{id}", "calculation history is disabled", http.StatusNotFound)
		return
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.sendError(w, r, "/api/calculations/{id}", "calculation id must be an integer", http.StatusBadRequest)
		return
	}

	record, err := h.history.Get(r.Context(), id)
	var notFound *repository.NotFoundError
	switch {
	case errors.As(err, &notFound):
		h.sendError(w, r, "/api/calculations/{id}", notFound.Error(), http.StatusNotFound)
	case err != nil:
		h.logger.Error(r.Context(), "[API_GET_CALCULATION_ERROR] Failed to get calculation", logging.Fields{
			"id": id,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/calculations/{id}")
		h.sendError(w, r, "/api/calculations/{id}", "failed to retrieve calculation", http.StatusInternalServerError)
	default:
		h.sendJSON(w, record, http.StatusOK)
	}
}

// GetParameters handles GET /api/parameters
func (h *DashboardHandler) GetParameters(w http.ResponseWriter, r *http.Request) {
	h.store.FetchParameters(r.Context())

	state := h.store.Snapshot()
	h.sendJSON(w, ParametersResponse{Parameters: state.Parameters, Error: state.Error}, http.StatusOK)
}

// UpdateParameter handles PATCH /api/parameters/{id}
func (h *DashboardHandler) UpdateParameter(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.sendError(w, r, "/api/parameters/{id}", "parameter id must be an integer", http.StatusBadRequest)
		return
	}

	var patch models.AnalysisParameterPatch
	if err := decodeBody(w, r, &patch); err != nil {
		h.sendError(w, r, "/api/parameters/{id}", "invalid parameter patch: "+err.Error(), http.StatusBadRequest)
		return
	}

	param, err := h.store.UpdateParameter(r.Context(), id, patch)
	if err != nil {
		h.sendGatewayError(w, r, "/api/parameters/{id}", services.OpUpdateParameter, err)
		return
	}

	h.sendJSON(w, param, http.StatusOK)
}

// Export handles POST /api/export?format=csv|json
func (h *DashboardHandler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := models.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.sendError(w, r, "/api/export", err.Error(), http.StatusBadRequest)
		return
	}

	location := h.store.ExportData(r.Context(), format)

	resp := ExportResponse{File: format.FileName(), Location: location}
	if location == "" {
		if msg, ok := h.store.LastError(); ok {
			resp.Error = &msg
		}
	}
	h.sendJSON(w, resp, http.StatusOK)
}

// ClearError handles DELETE /api/error
func (h *DashboardHandler) ClearError(w http.ResponseWriter, r *http.Request) {
	h.store.ClearError()
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /health
func (h *DashboardHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"history":   "disabled",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK

	if h.history != nil {
		status["history"] = "ok"
		if err := h.history.HealthCheck(ctx); err != nil {
			h.logger.Warn(ctx, "[HEALTH_CHECK_DEGRADED] History database unreachable", logging.Fields{
				"error": err.Error(),
			})
			status["status"] = "degraded"
			status["history"] = "unreachable"
			code = http.StatusServiceUnavailable
		}
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, code)
}

// sendGatewayError maps a failure returned by the store to a response
func (h *DashboardHandler) sendGatewayError(w http.ResponseWriter, r *http.Request, endpoint, op string, err error) {
	code := http.StatusBadGateway
	errorType := "gateway_error"
	switch {
	case errors.Is(err, gateway.ErrValidationRejected):
		code = http.StatusBadRequest
		errorType = "validation_rejected"
	case errors.Is(err, gateway.ErrNotFound):
		code = http.StatusNotFound
		errorType = "not_found"
	}
	h.metrics.RecordAPIError(errorType, endpoint)

	resp := ErrorResponse{
		Error:   http.StatusText(code),
		Message: services.ErrorMessage(op, err),
		Code:    code,
	}
	var reqErr *gateway.RequestError
	if errors.As(err, &reqErr) {
		resp.FieldErrors = reqErr.FieldErrors
		resp.Retryable = reqErr.IsTransient()
	}

	h.sendJSON(w, resp, code)
}

// sendJSON sends a JSON response
func (h *DashboardHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *DashboardHandler) sendError(w http.ResponseWriter, r *http.Request, endpoint, message string, statusCode int) {
	if statusCode >= http.StatusInternalServerError {
		h.metrics.RecordAPIError("internal_error", endpoint)
	} else {
		h.metrics.RecordAPIError("client_error", endpoint)
	}

	h.sendJSON(w, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}, statusCode)
}

// decodeBody decodes a required JSON body. Unknown fields are rejected.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	present, err := decodeOptionalBody(w, r, dst)
	if err != nil {
		return err
	}
	if !present {
		return errors.New("request body is empty")
	}
	return nil
}

// decodeOptionalBody decodes a JSON body if there is one
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst interface{}) (bool, error) {
	if r.Body == nil {
		return false, nil
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	if dec.More() {
		return false, fmt.Errorf("unexpected data after JSON body")
	}
	return true, nil
}

// parseLimit reads ?limit=N, falling back to def when absent
func parseLimit(r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, false
	}
	return limit, true
}

// RegisterRoutes registers all dashboard API routes
func (h *DashboardHandler) RegisterRoutes(router *mux.Router) {
	routes := []struct {
		path    string
		method  string
		handler http.HandlerFunc
	}{
		{"/api/state", http.MethodGet, h.GetState},
		{"/api/sites/fetch", http.MethodPost, h.FetchSites},
		{"/api/sites/list", http.MethodPost, h.ListSites},
		{"/api/sites/{id}", http.MethodGet, h.GetSiteDetails},
		{"/api/filters", http.MethodPatch, h.UpdateFilters},
		{"/api/statistics/fetch", http.MethodPost, h.FetchStatistics},
		{"/api/top-sites/fetch", http.MethodPost, h.FetchTopSites},
		{"/api/views/filtered", http.MethodGet, h.FilteredView},
		{"/api/views/top", http.MethodGet, h.TopView},
		{"/api/views/distribution", http.MethodGet, h.DistributionView},
		{"/api/calculate", http.MethodPost, h.Calculate},
		{"/api/calculations", http.MethodGet, h.ListCalculations},
		{"/api/calculations/{id}", http.MethodGet, h.GetCalculation},
		{"/api/parameters", http.MethodGet, h.GetParameters},
		{"/api/parameters/{id}", http.MethodPatch, h.UpdateParameter},
		{"/api/export", http.MethodPost, h.Export},
		{"/api/error", http.MethodDelete, h.ClearError},
		{"/health", http.MethodGet, h.HealthCheck},
	}

	for _, rt := range routes {
		router.HandleFunc(rt.path, h.instrument(rt.path, rt.handler)).Methods(rt.method)
	}
}
