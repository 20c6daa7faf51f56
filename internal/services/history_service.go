package services

import (
	"context"
	"fmt"

	"solar-analyzer/internal/models"
	"solar-analyzer/internal/repository"
	"solar-analyzer/internal/weights"
	"solar-analyzer/pkg/logging"
	"solar-analyzer/pkg/metrics"
)

// HistoryService keeps a record of custom suitability calculations
type HistoryService struct {
	repo    repository.CalculationRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewHistoryService creates a new history service
func NewHistoryService(repo repository.CalculationRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *HistoryService {
	return &HistoryService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Record stores a successful calculation. raw is sanitized the same way it
// was before being sent, so the stored weights match the request.
func (s *HistoryService) Record(ctx context.Context, site models.SiteInput, raw models.RawWeights, result *models.CalculationResult) (*models.CalculationRecord, error) {
	record, err := models.NewCalculationRecord(site, weights.Sanitize(raw), result)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Record(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store calculation: %w", err)
	}

	s.logger.Info(ctx, "[HISTORY_RECORDED] Calculation stored", logging.Fields{
		"id":          record.ID,
		"total_score": record.TotalScore,
	})
	return record, nil
}

// Get retrieves one stored calculation
func (s *HistoryService) Get(ctx context.Context, id int64) (*models.CalculationRecord, error) {
	return s.repo.Get(ctx, id)
}

// ListRecent retrieves the newest stored calculations
func (s *HistoryService) ListRecent(ctx context.Context, limit int) ([]*models.CalculationRecord, error) {
	return s.repo.ListRecent(ctx, limit)
}

// HealthCheck reports whether the history database is reachable
func (s *HistoryService) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}
