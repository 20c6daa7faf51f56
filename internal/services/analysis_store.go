package services

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"solar-analyzer/internal/gateway"
	"solar-analyzer/internal/models"
	"solar-analyzer/internal/weights"
	"solar-analyzer/pkg/logging"
	"solar-analyzer/pkg/metrics"
)

// DefaultTopSitesLimit is used by FetchTopSites when no positive limit is given
const DefaultTopSitesLimit = 10

// Store operation names, used for logs and metrics labels
const (
	OpFetchSites       = "fetch_sites"
	OpFetchSiteList    = "fetch_site_list"
	OpFetchSiteDetails = "fetch_site_details"
	OpFetchStatistics  = "fetch_statistics"
	OpFetchTopSites    = "fetch_top_sites"
	OpFetchParameters  = "fetch_parameters"
	OpUpdateParameter  = "update_parameter"
	OpCalculate        = "calculate_custom_suitability"
	OpExportData       = "export_data"
	OpUpdateFilters    = "update_filters"
	OpClearError       = "clear_error"
)

const (
	outcomeSuccess       = "success"
	outcomeFailure       = "failure"
	defaultFailedMessage = "Request failed"
)

// Messages recorded when the service gave no usable detail
var defaultMessages = map[string]string{
	OpFetchSites:       "Failed to fetch sites",
	OpFetchSiteList:    "Failed to fetch site list",
	OpFetchSiteDetails: "Failed to fetch site details",
	OpFetchStatistics:  "Failed to fetch statistics",
	OpFetchTopSites:    "Failed to fetch top sites",
	OpFetchParameters:  "Failed to fetch analysis parameters",
	OpUpdateParameter:  "Failed to update analysis parameter",
	OpCalculate:        "Failed to calculate suitability",
	OpExportData:       "Failed to export data",
}

// Gateway is the remote analysis service as seen by the store
type Gateway interface {
	ListSites(ctx context.Context, filters models.SiteFilters) ([]models.Site, error)
	GetSite(ctx context.Context, id int64) (*models.Site, error)
	ListAnalysisResults(ctx context.Context, filters models.SiteFilters) ([]models.AnalysisResult, error)
	GetTopSites(ctx context.Context, limit int) ([]models.AnalysisResult, error)
	GetStatistics(ctx context.Context) (*models.Statistics, error)
	ListParameters(ctx context.Context) ([]models.AnalysisParameter, error)
	UpdateParameter(ctx context.Context, id int64, patch models.AnalysisParameterPatch) (*models.AnalysisParameter, error)
	CalculateSuitability(ctx context.Context, payload models.CalculationRequest) (*models.CalculationResult, error)
	ExportSites(ctx context.Context, format models.ExportFormat) (*gateway.Blob, error)
}

// AnalysisStore holds the fetched analysis state and orchestrates fetches
// against the gateway.
//
// The lock is never held across a gateway call. Overlapping dispatches of
// the same operation race and whichever settles last overwrites the held
// collection. The error field and loading flag are shared by all
// operations, so unrelated failures overwrite each other's message.
type AnalysisStore struct {
	gateway Gateway
	saver   FileSaver
	logger  *logging.StructuredLogger
	metrics *metrics.Collector

	mu              sync.RWMutex
	sites           []models.Site
	analysisResults []models.AnalysisResult
	currentSite     *models.Site
	currentAnalysis *models.AnalysisResult
	statistics      *models.Statistics
	parameters      []models.AnalysisParameter
	filters         models.SiteFilters
	loading         bool
	lastError       *string
}

// NewAnalysisStore creates a store with the default filters
func NewAnalysisStore(gw Gateway, saver FileSaver, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *AnalysisStore {
	return &AnalysisStore{
		gateway:         gw,
		saver:           saver,
		logger:          logger,
		metrics:         metricsCollector,
		sites:           []models.Site{},
		analysisResults: []models.AnalysisResult{},
		parameters:      []models.AnalysisParameter{},
		filters:         models.DefaultFilters(),
	}
}

// FetchSites merges override into the current filters and replaces the held
// analysis results with the matching ones. Failures are recorded in the
// error state and leave the held results untouched.
func (s *AnalysisStore) FetchSites(ctx context.Context, override *models.SiteFilters) {
	s.mu.Lock()
	if override != nil {
		s.filters = s.filters.Merge(*override)
	}
	filters := s.filters
	s.loading = true
	s.lastError = nil
	s.mu.Unlock()

	results, err := s.gateway.ListAnalysisResults(ctx, filters)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.failLocked(ctx, OpFetchSites, err)
		return
	}

	s.analysisResults = results
	s.metrics.SetHeldAnalysisResults(len(results))
	s.succeeded(OpFetchSites)
}

// FetchSiteList replaces the held sites with those matching the current filters
func (s *AnalysisStore) FetchSiteList(ctx context.Context) {
	filters := s.Filters()

	sites, err := s.gateway.ListSites(ctx, filters)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failLocked(ctx, OpFetchSiteList, err)
		return
	}

	s.sites = sites
	s.succeeded(OpFetchSiteList)
}

// FetchSiteDetails loads one site and its analysis concurrently. Both calls
// run to completion even if the other fails; state only changes once both
// have succeeded.
func (s *AnalysisStore) FetchSiteDetails(ctx context.Context, siteID int64) {
	s.setLoading(true)

	var (
		site    *models.Site
		results []models.AnalysisResult
	)

	var g errgroup.Group
	g.Go(func() error {
		var err error
		site, err = s.gateway.GetSite(ctx, siteID)
		return err
	})
	g.Go(func() error {
		var err error
		results, err = s.gateway.ListAnalysisResults(ctx, models.SiteFilters{SiteID: models.Ptr(siteID)})
		return err
	})
	err := g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.failLocked(ctx, OpFetchSiteDetails, err, logging.Fields{"site_id": siteID})
		return
	}

	s.currentSite = site
	s.currentAnalysis = nil
	if len(results) > 0 {
		first := results[0]
		s.currentAnalysis = &first
	}
	s.succeeded(OpFetchSiteDetails)
}

// FetchStatistics replaces the held statistics. On failure the last known
// statistics are kept.
func (s *AnalysisStore) FetchStatistics(ctx context.Context) {
	stats, err := s.gateway.GetStatistics(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failLocked(ctx, OpFetchStatistics, err)
		return
	}

	s.statistics = stats
	s.succeeded(OpFetchStatistics)
}

// FetchTopSites replaces the held analysis results with the service's top
// limit results. Ranking is left to the service.
func (s *AnalysisStore) FetchTopSites(ctx context.Context, limit int) {
	if limit <= 0 {
		limit = DefaultTopSitesLimit
	}

	results, err := s.gateway.GetTopSites(ctx, limit)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failLocked(ctx, OpFetchTopSites, err, logging.Fields{"limit": limit})
		return
	}

	s.analysisResults = results
	s.metrics.SetHeldAnalysisResults(len(results))
	s.succeeded(OpFetchTopSites)
}

// FetchParameters replaces the held analysis parameters
func (s *AnalysisStore) FetchParameters(ctx context.Context) {
	params, err := s.gateway.ListParameters(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failLocked(ctx, OpFetchParameters, err)
		return
	}

	s.parameters = params
	s.succeeded(OpFetchParameters)
}

// UpdateParameter patches one analysis parameter and swaps it into the held
// list. Failures are recorded and returned.
func (s *AnalysisStore) UpdateParameter(ctx context.Context, id int64, patch models.AnalysisParameterPatch) (*models.AnalysisParameter, error) {
	param, err := s.gateway.UpdateParameter(ctx, id, patch)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failLocked(ctx, OpUpdateParameter, err, logging.Fields{"param_id": id})
		return nil, err
	}

	for i := range s.parameters {
		if s.parameters[i].ParamID == param.ParamID {
			s.parameters[i] = *param
			break
		}
	}
	s.succeeded(OpUpdateParameter)
	return param, nil
}

// CalculateCustomSuitability sanitizes raw, merges the weights into site and
// asks the service to score it. Failures are both recorded and returned so
// callers can react to rejected input.
func (s *AnalysisStore) CalculateCustomSuitability(ctx context.Context, site models.SiteInput, raw models.RawWeights) (*models.CalculationResult, error) {
	sanitized := weights.Sanitize(raw)

	s.logger.Debug(ctx, "[WEIGHTS_SANITIZED] Final weights", logging.Fields{
		"solar_weight": sanitized.SolarWeight,
		"area_weight":  sanitized.AreaWeight,
		"grid_weight":  sanitized.GridWeight,
		"slope_weight": sanitized.SlopeWeight,
		"infra_weight": sanitized.InfraWeight,
	})

	result, err := s.gateway.CalculateSuitability(ctx, models.NewCalculationRequest(site, sanitized))
	if err != nil {
		s.mu.Lock()
		s.failLocked(ctx, OpCalculate, err)
		s.mu.Unlock()
		return nil, err
	}

	s.succeeded(OpCalculate)
	return result, nil
}

// ExportData downloads the export in format and hands it to the file saver
// as solar_sites.<format>. It returns the saved location, or "" after
// recording the failure in the error state.
func (s *AnalysisStore) ExportData(ctx context.Context, format models.ExportFormat) string {
	if format == "" {
		format = models.ExportCSV
	}

	blob, err := s.gateway.ExportSites(ctx, format)
	if err != nil {
		s.recordFailure(ctx, OpExportData, err)
		return ""
	}

	location, err := s.saver.Save(format.FileName(), bytes.NewReader(blob.Data))
	if err != nil {
		s.recordFailure(ctx, OpExportData, err)
		return ""
	}

	s.metrics.RecordExport(string(format), len(blob.Data))
	s.logger.Info(ctx, "[EXPORT_SAVED] Export saved", logging.Fields{
		"format":   format,
		"location": location,
		"bytes":    len(blob.Data),
	})
	s.succeeded(OpExportData)
	return location
}

// UpdateFilters merges filters into the current ones and refetches with the result
func (s *AnalysisStore) UpdateFilters(ctx context.Context, filters models.SiteFilters) {
	s.mu.Lock()
	s.filters = s.filters.Merge(filters)
	s.mu.Unlock()
	s.succeeded(OpUpdateFilters)

	s.FetchSites(ctx, nil)
}

// ClearError resets the error state
func (s *AnalysisStore) ClearError() {
	s.mu.Lock()
	s.lastError = nil
	s.mu.Unlock()
	s.succeeded(OpClearError)
}

// LastError returns the recorded error message, if any
func (s *AnalysisStore) LastError() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastError == nil {
		return "", false
	}
	return *s.lastError, true
}

// Loading reports whether a fetch that toggles the loading flag is in flight
func (s *AnalysisStore) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Filters returns a copy of the current filters
func (s *AnalysisStore) Filters() models.SiteFilters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.SiteFilters{}.Merge(s.filters)
}

// AnalysisResults returns a copy of the held analysis results
func (s *AnalysisStore) AnalysisResults() []models.AnalysisResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.AnalysisResult(nil), s.analysisResults...)
}

// Statistics returns the last fetched statistics, or nil
func (s *AnalysisStore) Statistics() *models.Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.statistics == nil {
		return nil
	}
	stats := *s.statistics
	return &stats
}

// FilteredSites returns the held results within the current score bounds
func (s *AnalysisStore) FilteredSites() []models.AnalysisResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FilterByScore(s.analysisResults, s.filters)
}

// TopSites returns the ten best held results
func (s *AnalysisStore) TopSites() []models.AnalysisResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return TopN(s.analysisResults, TopSitesLimit)
}

// ScoreDistribution buckets the held results by total score
func (s *AnalysisStore) ScoreDistribution() models.ScoreDistribution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Distribute(s.analysisResults)
}

// State is a point-in-time copy of the store
type State struct {
	Sites           []models.Site              `json:"sites"`
	AnalysisResults []models.AnalysisResult    `json:"analysis_results"`
	CurrentSite     *models.Site               `json:"current_site"`
	CurrentAnalysis *models.AnalysisResult     `json:"current_analysis"`
	Statistics      *models.Statistics         `json:"statistics"`
	Parameters      []models.AnalysisParameter `json:"parameters"`
	Filters         models.SiteFilters         `json:"filters"`
	Loading         bool                       `json:"loading"`
	Error           *string                    `json:"error"`
}

// Snapshot returns a copy of the held state
func (s *AnalysisStore) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := State{
		Sites:           append([]models.Site{}, s.sites...),
		AnalysisResults: append([]models.AnalysisResult{}, s.analysisResults...),
		Parameters:      append([]models.AnalysisParameter{}, s.parameters...),
		Filters:         models.SiteFilters{}.Merge(s.filters),
		Loading:         s.loading,
	}
	if s.currentSite != nil {
		site := *s.currentSite
		state.CurrentSite = &site
	}
	if s.currentAnalysis != nil {
		analysis := *s.currentAnalysis
		state.CurrentAnalysis = &analysis
	}
	if s.statistics != nil {
		stats := *s.statistics
		state.Statistics = &stats
	}
	if s.lastError != nil {
		msg := *s.lastError
		state.Error = &msg
	}
	return state
}

func (s *AnalysisStore) setLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	s.mu.Unlock()
}

func (s *AnalysisStore) recordFailure(ctx context.Context, op string, err error, fields ...logging.Fields) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLocked(ctx, op, err, fields...)
}

// failLocked records err as the current error message. s.mu must be held.
func (s *AnalysisStore) failLocked(ctx context.Context, op string, err error, fields ...logging.Fields) {
	msg := ErrorMessage(op, err)
	s.lastError = &msg

	logFields := logging.Fields{"operation": op, "message": msg}
	var reqErr *gateway.RequestError
	if errors.As(err, &reqErr) {
		logFields["transient"] = reqErr.IsTransient()
	}
	for _, f := range fields {
		for k, v := range f {
			logFields[k] = v
		}
	}
	s.logger.Error(ctx, "[STORE_OPERATION_FAILED] Store operation failed", logFields, err)
	s.metrics.RecordStoreOperation(op, outcomeFailure)
}

func (s *AnalysisStore) succeeded(op string) {
	s.metrics.RecordStoreOperation(op, outcomeSuccess)
}

// ErrorMessage returns the message recorded for a failed store operation:
// the service's own detail when it sent one, else the operation's default.
func ErrorMessage(op string, err error) string {
	var reqErr *gateway.RequestError
	if errors.As(err, &reqErr) && reqErr.Message != "" {
		return reqErr.Message
	}
	if msg, ok := defaultMessages[op]; ok {
		return msg
	}
	return defaultFailedMessage
}
