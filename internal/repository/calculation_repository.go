package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"solar-analyzer/internal/models"
	"solar-analyzer/pkg/database"
	"solar-analyzer/pkg/logging"
	"solar-analyzer/pkg/metrics"
)

// MaxListLimit caps the number of calculations returned by ListRecent
const MaxListLimit = 500

// CalculationRepository stores custom suitability calculations
type CalculationRepository interface {
	Record(ctx context.Context, record *models.CalculationRecord) error
	Get(ctx context.Context, id int64) (*models.CalculationRecord, error)
	ListRecent(ctx context.Context, limit int) ([]*models.CalculationRecord, error)

	HealthCheck(ctx context.Context) error
}

// calculationRepository implements CalculationRepository
type calculationRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewCalculationRepository creates a new calculation repository
func NewCalculationRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) CalculationRepository {
	return &calculationRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

const calculationColumns = `
	id, solar_irradiance_kwh, area_sqm, grid_distance_km, slope_degrees, road_distance_km,
	solar_weight, area_weight, grid_weight, slope_weight, infra_weight,
	total_score, breakdown, created_at`

// Record inserts record and fills in its generated ID
func (r *calculationRepository) Record(ctx context.Context, record *models.CalculationRecord) error {
	query := `
		INSERT INTO suitability_calculations (
			solar_irradiance_kwh, area_sqm, grid_distance_km, slope_degrees, road_distance_km,
			solar_weight, area_weight, grid_weight, slope_weight, infra_weight,
			total_score, breakdown, created_at
		) VALUES (
			:solar_irradiance_kwh, :area_sqm, :grid_distance_km, :slope_degrees, :road_distance_km,
			:solar_weight, :area_weight, :grid_weight, :slope_weight, :infra_weight,
			:total_score, :breakdown, :created_at
		)
		RETURNING id
	`

	var inserted struct {
		ID int64 `db:"id"`
	}
	if err := r.db.NamedGetContext(ctx, "insert_calculation", &inserted, query, record); err != nil {
		return fmt.Errorf("failed to record calculation: %w", err)
	}
	record.ID = inserted.ID

	r.logger.Debug(ctx, "[REPO_RECORD_CALCULATION] Calculation recorded", logging.Fields{
		"id":          record.ID,
		"total_score": record.TotalScore,
	})

	return nil
}

// Get retrieves one calculation by ID
func (r *calculationRepository) Get(ctx context.Context, id int64) (*models.CalculationRecord, error) {
	query := `SELECT ` + calculationColumns + `
		FROM suitability_calculations
		WHERE id = $1
	`

	var record models.CalculationRecord
	err := r.db.GetContext(ctx, "get_calculation", &record, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{
			Resource: "suitability_calculation",
			ID:       strconv.FormatInt(id, 10),
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get calculation: %w", err)
	}

	return &record, nil
}

// ListRecent returns up to limit calculations, newest first
func (r *calculationRepository) ListRecent(ctx context.Context, limit int) ([]*models.CalculationRecord, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}

	query := `SELECT ` + calculationColumns + `
		FROM suitability_calculations
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`

	records := make([]*models.CalculationRecord, 0)
	if err := r.db.SelectContext(ctx, "list_calculations", &records, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list calculations: %w", err)
	}

	return records, nil
}

// HealthCheck performs a repository health check
func (r *calculationRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}
