package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// RawWeights holds user-supplied weights before sanitization. Each field may
// carry a number, a numeric string or anything else a form produced.
type RawWeights struct {
	SolarWeight any `json:"solar_weight"`
	AreaWeight  any `json:"area_weight"`
	GridWeight  any `json:"grid_weight"`
	SlopeWeight any `json:"slope_weight"`
	InfraWeight any `json:"infra_weight"`
}

// SuitabilityWeights are sanitized weights: finite, within [0,100], at most
// two decimals and four significant digits.
type SuitabilityWeights struct {
	SolarWeight float64 `json:"solar_weight" db:"solar_weight"`
	AreaWeight  float64 `json:"area_weight" db:"area_weight"`
	GridWeight  float64 `json:"grid_weight" db:"grid_weight"`
	SlopeWeight float64 `json:"slope_weight" db:"slope_weight"`
	InfraWeight float64 `json:"infra_weight" db:"infra_weight"`
}

// SiteInput is the site description forwarded for a custom suitability calculation
type SiteInput struct {
	SolarIrradianceKwh float64 `json:"solar_irradiance_kwh" db:"solar_irradiance_kwh"`
	AreaSqm            float64 `json:"area_sqm" db:"area_sqm"`
	GridDistanceKm     float64 `json:"grid_distance_km" db:"grid_distance_km"`
	SlopeDegrees       float64 `json:"slope_degrees" db:"slope_degrees"`
	RoadDistanceKm     float64 `json:"road_distance_km" db:"road_distance_km"`
}

// CalculationRequest is the body of POST /analyze/calculate/: the site input
// with the sanitized weights merged in.
type CalculationRequest struct {
	SiteInput
	SuitabilityWeights
}

// NewCalculationRequest merges weights into the site input
func NewCalculationRequest(site SiteInput, weights SuitabilityWeights) CalculationRequest {
	return CalculationRequest{SiteInput: site, SuitabilityWeights: weights}
}

// ScoreBreakdown lists the per-criterion scores computed by the service
type ScoreBreakdown struct {
	Solar          Number `json:"solar"`
	Area           Number `json:"area"`
	Grid           Number `json:"grid"`
	Slope          Number `json:"slope"`
	Infrastructure Number `json:"infrastructure"`
}

// CalculationResult is the service's answer to a custom calculation.
// TotalScore is authoritative; it is never recomputed locally.
type CalculationResult struct {
	TotalScore  Number         `json:"total_score"`
	Breakdown   ScoreBreakdown `json:"breakdown"`
	WeightsUsed ScoreBreakdown `json:"weights_used"`
}

// ScoreDistribution counts held analysis results per score bucket
type ScoreDistribution struct {
	Excellent int `json:"excellent"`
	Good      int `json:"good"`
	Fair      int `json:"fair"`
	Poor      int `json:"poor"`
	VeryPoor  int `json:"veryPoor"`
}

// Total returns the number of results counted
func (d ScoreDistribution) Total() int {
	return d.Excellent + d.Good + d.Fair + d.Poor + d.VeryPoor
}

// ExportFormat is the file format requested from the export endpoint
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"
)

// ParseExportFormat returns the format for s; "" selects CSV
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case "", ExportCSV:
		return ExportCSV, nil
	case ExportJSON:
		return ExportJSON, nil
	default:
		return "", &ValidationError{Field: "format", Value: s, Message: fmt.Sprintf("unsupported export format %q", s)}
	}
}

// FileName returns the deterministic download name, solar_sites.<format>
func (f ExportFormat) FileName() string {
	return "solar_sites." + string(f)
}

// CalculationRecord is one stored custom calculation
type CalculationRecord struct {
	ID int64 `json:"id" db:"id"`
	SiteInput
	SuitabilityWeights
	TotalScore float64        `json:"total_score" db:"total_score"`
	Breakdown  types.JSONText `json:"breakdown" db:"breakdown"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}

// NewCalculationRecord captures a successful calculation for the history store
func NewCalculationRecord(site SiteInput, weights SuitabilityWeights, result *CalculationResult) (*CalculationRecord, error) {
	breakdown, err := json.Marshal(result.Breakdown)
	if err != nil {
		return nil, fmt.Errorf("encode breakdown: %w", err)
	}

	return &CalculationRecord{
		SiteInput:          site,
		SuitabilityWeights: weights,
		TotalScore:         result.TotalScore.Float64(),
		Breakdown:          types.JSONText(breakdown),
		CreatedAt:          time.Now().UTC(),
	}, nil
}
