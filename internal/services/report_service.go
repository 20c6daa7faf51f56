package services

import (
	"context"
	"errors"
	"time"

	"solar-analyzer/internal/models"
	"solar-analyzer/pkg/logging"
	"solar-analyzer/pkg/metrics"
)

// ErrNoResults is returned by ReportService.Run when the analysis results
// could not be fetched at all.
var ErrNoResults = errors.New("analysis results unavailable")

// ReportOptions controls one report run
type ReportOptions struct {
	Filters models.SiteFilters
	// TopLimit asks the service for its own top N ranking; 0 skips it
	TopLimit int
	Format   models.ExportFormat
	// SkipExport leaves out the export download
	SkipExport bool
}

// Report summarises the analysis state after a run
type Report struct {
	Filters        models.SiteFilters
	Statistics     *models.Statistics
	HeldResults    int
	FilteredCount  int
	Distribution   models.ScoreDistribution
	TopSites       []models.AnalysisResult
	ServiceTop     []models.AnalysisResult
	ExportLocation string
	Duration       time.Duration
	Errors         []string
}

// ReportService drives a store through a full fetch, summarise and export pass
type ReportService struct {
	store   *AnalysisStore
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewReportService creates a new report service
func NewReportService(store *AnalysisStore, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *ReportService {
	return &ReportService{
		store:   store,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Run fetches results and statistics, computes the local views and exports.
// Failures of the later steps are collected in Report.Errors.
func (s *ReportService) Run(ctx context.Context, opts ReportOptions) (*Report, error) {
	startTime := time.Now()

	s.logger.Info(ctx, "[REPORT_START] Starting analysis report", logging.Fields{
		"top_limit": opts.TopLimit,
		"format":    opts.Format,
		"stage":     "INITIALIZATION",
	})

	report := &Report{Errors: make([]string, 0)}

	s.store.FetchSites(ctx, &opts.Filters)
	if msg, failed := s.takeError(); failed {
		s.logger.Error(ctx, "[REPORT_FETCH_ERROR] Analysis results unavailable", logging.Fields{
			"message": msg,
			"stage":   "FETCH_RESULTS",
		}, ErrNoResults)
		return nil, errors.Join(ErrNoResults, errors.New(msg))
	}

	report.Filters = s.store.Filters()
	report.HeldResults = len(s.store.AnalysisResults())
	report.FilteredCount = len(s.store.FilteredSites())
	report.Distribution = s.store.ScoreDistribution()
	report.TopSites = s.store.TopSites()

	s.logger.Info(ctx, "[REPORT_RESULTS] Analysis results fetched", logging.Fields{
		"held_results":   report.HeldResults,
		"filtered_count": report.FilteredCount,
		"stage":          "FETCH_RESULTS",
	})

	s.store.FetchStatistics(ctx)
	if msg, failed := s.takeError(); failed {
		report.Errors = append(report.Errors, "statistics: "+msg)
	} else {
		report.Statistics = s.store.Statistics()
	}

	if opts.TopLimit > 0 {
		// FetchTopSites replaces the held results, so it runs after the local views.
		s.store.FetchTopSites(ctx, opts.TopLimit)
		if msg, failed := s.takeError(); failed {
			report.Errors = append(report.Errors, "top sites: "+msg)
		} else {
			report.ServiceTop = s.store.AnalysisResults()
		}
	}

	if !opts.SkipExport {
		location := s.store.ExportData(ctx, opts.Format)
		if msg, failed := s.takeError(); failed {
			report.Errors = append(report.Errors, "export: "+msg)
		} else {
			report.ExportLocation = location
		}
	}

	report.Duration = time.Since(startTime)

	s.logger.Info(ctx, "[REPORT_COMPLETE] Analysis report completed", logging.Fields{
		"held_results":     report.HeldResults,
		"excellent":        report.Distribution.Excellent,
		"very_poor":        report.Distribution.VeryPoor,
		"export_location":  report.ExportLocation,
		"error_count":      len(report.Errors),
		"duration_seconds": report.Duration.Seconds(),
		"stage":            "COMPLETE",
	})

	return report, nil
}

// takeError reads and clears the store's error so each step is judged on its own
func (s *ReportService) takeError() (string, bool) {
	msg, failed := s.store.LastError()
	if failed {
		s.store.ClearError()
	}
	return msg, failed
}
