// Package gateway is the client for the remote site analysis service.
//
// Each method maps one endpoint: no retries, no caching and no transformation
// beyond unwrapping the response body. Every failure is returned as a
// *RequestError matching ErrRequestFailed.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"solar-analyzer/internal/models"
	"solar-analyzer/pkg/logging"
	"solar-analyzer/pkg/metrics"
)

const (
	defaultTimeout      = 30 * time.Second
	contentTypeJSON     = "application/json"
	headerContentType   = "Content-Type"
	headerAccept        = "Accept"
	headerRequestID     = "X-Request-ID"
	maxResponseBodySize = 10 * 1024 * 1024
	maxExportBodySize   = 100 * 1024 * 1024
)

// Operation names, used for errors, logs and metrics labels
const (
	OpListSites            = "list_sites"
	OpGetSite              = "get_site"
	OpListAnalysisResults  = "list_analysis_results"
	OpGetTopSites          = "get_top_sites"
	OpGetStatistics        = "get_statistics"
	OpListParameters       = "list_parameters"
	OpUpdateParameter      = "update_parameter"
	OpCalculateSuitability = "calculate_suitability"
	OpExportSites          = "export_sites"
)

// Config holds the analysis service connection settings
type Config struct {
	BaseURL string
	Timeout time.Duration
	// RateLimitRPS throttles outgoing calls; 0 disables throttling
	RateLimitRPS float64
}

// Client calls the analysis service over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logging.StructuredLogger
	metrics    *metrics.Collector

	maxBodySize   int64
	maxExportSize int64
}

// New creates a new analysis service client
func New(cfg Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1)
	}

	return &Client{
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient:    &http.Client{Timeout: timeout},
		limiter:       limiter,
		logger:        logger,
		metrics:       metricsCollector,
		maxBodySize:   maxResponseBodySize,
		maxExportSize: maxExportBodySize,
	}
}

// Blob is a binary export payload
type Blob struct {
	Data        []byte
	ContentType string
}

// ListSites handles GET /sites/
func (c *Client) ListSites(ctx context.Context, filters models.SiteFilters) ([]models.Site, error) {
	body, err := c.do(ctx, call{op: OpListSites, method: http.MethodGet, path: "/sites/", query: filters.Values()})
	if err != nil {
		return nil, err
	}

	sites, err := unwrapList[models.Site](body)
	if err != nil {
		return nil, failed(OpListSites, err)
	}
	return sites, nil
}

// GetSite handles GET /sites/{id}/
func (c *Client) GetSite(ctx context.Context, id int64) (*models.Site, error) {
	body, err := c.do(ctx, call{
		op:       OpGetSite,
		method:   http.MethodGet,
		path:     "/sites/" + strconv.FormatInt(id, 10) + "/",
		notFound: true,
	})
	if err != nil {
		return nil, err
	}

	var site models.Site
	if err := json.Unmarshal(body, &site); err != nil {
		return nil, failed(OpGetSite, fmt.Errorf("decode site: %w", err))
	}
	return &site, nil
}

// ListAnalysisResults handles GET /analysis-results/, accepting both response shapes
func (c *Client) ListAnalysisResults(ctx context.Context, filters models.SiteFilters) ([]models.AnalysisResult, error) {
	body, err := c.do(ctx, call{op: OpListAnalysisResults, method: http.MethodGet, path: "/analysis-results/", query: filters.Values()})
	if err != nil {
		return nil, err
	}

	results, err := unwrapList[models.AnalysisResult](body)
	if err != nil {
		return nil, failed(OpListAnalysisResults, err)
	}
	return results, nil
}

// GetTopSites handles GET /analysis-results/top_sites/?limit=N.
// Ranking and truncation happen on the server.
func (c *Client) GetTopSites(ctx context.Context, limit int) ([]models.AnalysisResult, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))

	body, err := c.do(ctx, call{op: OpGetTopSites, method: http.MethodGet, path: "/analysis-results/top_sites/", query: query})
	if err != nil {
		return nil, err
	}

	results, err := unwrapList[models.AnalysisResult](body)
	if err != nil {
		return nil, failed(OpGetTopSites, err)
	}
	return results, nil
}

// GetStatistics handles GET /analysis-results/statistics/
func (c *Client) GetStatistics(ctx context.Context) (*models.Statistics, error) {
	body, err := c.do(ctx, call{op: OpGetStatistics, method: http.MethodGet, path: "/analysis-results/statistics/"})
	if err != nil {
		return nil, err
	}

	var stats models.Statistics
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, failed(OpGetStatistics, fmt.Errorf("decode statistics: %w", err))
	}
	return &stats, nil
}

// ListParameters handles GET /analysis-parameters/
func (c *Client) ListParameters(ctx context.Context) ([]models.AnalysisParameter, error) {
	body, err := c.do(ctx, call{op: OpListParameters, method: http.MethodGet, path: "/analysis-parameters/"})
	if err != nil {
		return nil, err
	}

	params, err := unwrapList[models.AnalysisParameter](body)
	if err != nil {
		return nil, failed(OpListParameters, err)
	}
	return params, nil
}

// UpdateParameter handles PATCH /analysis-parameters/{id}/
func (c *Client) UpdateParameter(ctx context.Context, id int64, patch models.AnalysisParameterPatch) (*models.AnalysisParameter, error) {
	body, err := c.do(ctx, call{
		op:        OpUpdateParameter,
		method:    http.MethodPatch,
		path:      "/analysis-parameters/" + strconv.FormatInt(id, 10) + "/",
		body:      patch,
		notFound:  true,
		validates: true,
	})
	if err != nil {
		return nil, err
	}

	var param models.AnalysisParameter
	if err := json.Unmarshal(body, &param); err != nil {
		return nil, failed(OpUpdateParameter, fmt.Errorf("decode parameter: %w", err))
	}
	return &param, nil
}

// CalculateSuitability handles POST /analyze/calculate/. The payload is
// forwarded as is; the score comes back from the server.
func (c *Client) CalculateSuitability(ctx context.Context, payload models.CalculationRequest) (*models.CalculationResult, error) {
	body, err := c.do(ctx, call{
		op:        OpCalculateSuitability,
		method:    http.MethodPost,
		path:      "/analyze/calculate/",
		body:      payload,
		validates: true,
	})
	if err != nil {
		return nil, err
	}

	var result models.CalculationResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, failed(OpCalculateSuitability, fmt.Errorf("decode calculation: %w", err))
	}
	return &result, nil
}

// ExportSites handles GET /export/?format=csv|json and returns the raw file
func (c *Client) ExportSites(ctx context.Context, format models.ExportFormat) (*Blob, error) {
	query := url.Values{}
	query.Set("format", string(format))

	var contentType string
	body, err := c.do(ctx, call{
		op:          OpExportSites,
		method:      http.MethodGet,
		path:        "/export/",
		query:       query,
		binary:      true,
		contentType: &contentType,
	})
	if err != nil {
		return nil, err
	}
	return &Blob{Data: body, ContentType: contentType}, nil
}

// call describes one request
type call struct {
	op     string
	method string
	path   string
	query  url.Values
	body   interface{}
	// notFound maps 404 to ErrNotFound
	notFound bool
	// validates maps 400 to ErrValidationRejected
	validates bool
	// binary marks a non-JSON response
	binary      bool
	contentType *string
}

func (c *Client) do(ctx context.Context, req call) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, failed(req.op, fmt.Errorf("rate limit wait: %w", err))
	}

	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var reqBody io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return nil, failed(req.op, fmt.Errorf("encode request: %w", err))
		}
		reqBody = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, reqBody)
	if err != nil {
		return nil, failed(req.op, fmt.Errorf("create request: %w", err))
	}

	if !req.binary {
		httpReq.Header.Set(headerContentType, contentTypeJSON)
		httpReq.Header.Set(headerAccept, contentTypeJSON)
	}

	requestID := logging.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	httpReq.Header.Set(headerRequestID, requestID)

	log := c.logger.WithFields(logging.Fields{
		"operation": req.op,
		"method":    req.method,
		"url":       target,
	})

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.RecordGatewayRequest(req.op, "error", time.Since(start))
		log.Warn(ctx, "[GATEWAY_TRANSPORT_ERROR] Analysis service unreachable", logging.Fields{
			"error": err.Error(),
		})
		return nil, failed(req.op, err)
	}
	defer resp.Body.Close()

	limit := c.maxBodySize
	if req.binary {
		limit = c.maxExportSize
	}
	// One byte past the limit tells a full body from a truncated one
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, limit+1))

	duration := time.Since(start)
	c.metrics.RecordGatewayRequest(req.op, strconv.Itoa(resp.StatusCode), duration)

	log.Debug(ctx, "[GATEWAY_CALL] Analysis service call completed", logging.Fields{
		"status":      resp.StatusCode,
		"duration_ms": duration.Milliseconds(),
		"bytes":       len(body),
	})

	if int64(len(body)) > limit {
		log.Warn(ctx, "[GATEWAY_RESPONSE_TOO_LARGE] Response body exceeds limit", logging.Fields{
			"limit_bytes": limit,
		})
		return nil, failed(req.op, fmt.Errorf("response exceeds %d bytes", limit))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		kind := ErrRequestFailed
		switch {
		case resp.StatusCode == http.StatusNotFound && req.notFound:
			kind = ErrNotFound
		case resp.StatusCode == http.StatusBadRequest && req.validates:
			kind = ErrValidationRejected
		}
		return nil, statusError(req.op, resp.StatusCode, body, kind)
	}

	if readErr != nil {
		return nil, failed(req.op, fmt.Errorf("read response: %w", readErr))
	}

	if req.contentType != nil {
		*req.contentType = resp.Header.Get(headerContentType)
	}
	return body, nil
}
