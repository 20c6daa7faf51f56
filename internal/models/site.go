package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"
)

// Number is a float that decodes from either a JSON number or a numeric
// string. The analysis service renders decimal columns as strings ("85.50").
// null decodes to zero.
type Number float64

// Float64 returns n as a float64
func (n Number) Float64() float64 {
	return float64(n)
}

// UnmarshalJSON accepts 12.5, "12.5" and null. NaN and infinities are rejected.
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		data = []byte(s)
	}

	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return &ValidationError{Field: "number", Value: string(data), Message: fmt.Sprintf("not a number: %q", data)}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &ValidationError{Field: "number", Value: string(data), Message: fmt.Sprintf("not a finite number: %q", data)}
	}
	*n = Number(v)
	return nil
}

// Site is a candidate location as held by the remote analysis service
type Site struct {
	SiteID             int64     `json:"site_id"`
	SiteName           string    `json:"site_name"`
	Latitude           Number    `json:"latitude"`
	Longitude          Number    `json:"longitude"`
	AreaSqm            Number    `json:"area_sqm"`
	SolarIrradianceKwh Number    `json:"solar_irradiance_kwh"`
	GridDistanceKm     Number    `json:"grid_distance_km"`
	SlopeDegrees       Number    `json:"slope_degrees"`
	RoadDistanceKm     Number    `json:"road_distance_km"`
	ElevationM         Number    `json:"elevation_m"`
	LandType           string    `json:"land_type"`
	Region             string    `json:"region"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// AnalysisResult is the server-computed suitability scoring of one site.
// TotalSuitabilityScore is taken verbatim from the service and never derived
// from the sub-scores.
type AnalysisResult struct {
	ResultID              int64           `json:"result_id"`
	Site                  int64           `json:"site"`
	SiteName              string          `json:"site_name"`
	Latitude              Number          `json:"latitude"`
	Longitude             Number          `json:"longitude"`
	Region                string          `json:"region"`
	SolarIrradianceScore  Number          `json:"solar_irradiance_score"`
	AreaScore             Number          `json:"area_score"`
	GridDistanceScore     Number          `json:"grid_distance_score"`
	SlopeScore            Number          `json:"slope_score"`
	InfrastructureScore   Number          `json:"infrastructure_score"`
	TotalSuitabilityScore Number          `json:"total_suitability_score"`
	AnalysisTimestamp     time.Time       `json:"analysis_timestamp"`
	ParametersSnapshot    json.RawMessage `json:"parameters_snapshot,omitempty"`
}

// Score returns the authoritative ranking key
func (r AnalysisResult) Score() float64 {
	return float64(r.TotalSuitabilityScore)
}

// AnalysisParameter is a server-side default scoring weight
type AnalysisParameter struct {
	ParamID       int64     `json:"param_id"`
	ParameterName string    `json:"parameter_name"`
	WeightValue   Number    `json:"weight_value"`
	Description   string    `json:"description"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AnalysisParameterPatch carries the fields of a partial parameter update.
// Nil fields are left out of the request body.
type AnalysisParameterPatch struct {
	ParameterName *string  `json:"parameter_name,omitempty"`
	WeightValue   *float64 `json:"weight_value,omitempty"`
	Description   *string  `json:"description,omitempty"`
	IsActive      *bool    `json:"is_active,omitempty"`
}

// Statistics is the server-computed aggregate over all analysis results
type Statistics struct {
	TotalSites int    `json:"total_sites"`
	AvgScore   Number `json:"avg_score"`
	MinScore   Number `json:"min_score"`
	MaxScore   Number `json:"max_score"`
}

// Ptr returns a pointer to v, for building optional filter fields
func Ptr[T any](v T) *T {
	return &v
}

// SiteFilters narrows the analysis results requested from the service.
// Every field is optional; nil means "not set".
type SiteFilters struct {
	MinScore *float64 `json:"min_score,omitempty"`
	MaxScore *float64 `json:"max_score,omitempty"`
	Region   *string  `json:"region,omitempty"`
	LandType *string  `json:"land_type,omitempty"`
	Limit    *int     `json:"limit,omitempty"`
	SiteID   *int64   `json:"site_id,omitempty"`
}

const (
	DefaultMinScore = 0
	DefaultMaxScore = 100
	DefaultLimit    = 50
)

// DefaultFilters returns the filters a fresh store starts with
func DefaultFilters() SiteFilters {
	return SiteFilters{
		MinScore: Ptr(float64(DefaultMinScore)),
		MaxScore: Ptr(float64(DefaultMaxScore)),
		Limit:    Ptr(DefaultLimit),
	}
}

// Merge returns f with every field set in override replacing its counterpart.
// Fields absent from override are retained.
func (f SiteFilters) Merge(override SiteFilters) SiteFilters {
	merged := f
	if override.MinScore != nil {
		merged.MinScore = Ptr(*override.MinScore)
	}
	if override.MaxScore != nil {
		merged.MaxScore = Ptr(*override.MaxScore)
	}
	if override.Region != nil {
		merged.Region = Ptr(*override.Region)
	}
	if override.LandType != nil {
		merged.LandType = Ptr(*override.LandType)
	}
	if override.Limit != nil {
		merged.Limit = Ptr(*override.Limit)
	}
	if override.SiteID != nil {
		merged.SiteID = Ptr(*override.SiteID)
	}
	return merged
}

// ScoreBounds returns the inclusive score range, applying 0 and 100 for unset bounds
func (f SiteFilters) ScoreBounds() (float64, float64) {
	lo, hi := float64(DefaultMinScore), float64(DefaultMaxScore)
	if f.MinScore != nil {
		lo = *f.MinScore
	}
	if f.MaxScore != nil {
		hi = *f.MaxScore
	}
	return lo, hi
}

// Values encodes the set fields as query parameters
func (f SiteFilters) Values() url.Values {
	v := url.Values{}
	if f.MinScore != nil {
		v.Set("min_score", strconv.FormatFloat(*f.MinScore, 'f', -1, 64))
	}
	if f.MaxScore != nil {
		v.Set("max_score", strconv.FormatFloat(*f.MaxScore, 'f', -1, 64))
	}
	if f.Region != nil {
		v.Set("region", *f.Region)
	}
	if f.LandType != nil {
		v.Set("land_type", *f.LandType)
	}
	if f.Limit != nil {
		v.Set("limit", strconv.Itoa(*f.Limit))
	}
	if f.SiteID != nil {
		v.Set("site_id", strconv.FormatInt(*f.SiteID, 10))
	}
	return v
}

// ValidationError represents a data validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
