// Package weights normalizes user-supplied scoring weights before they are
// sent to the analysis service.
//
// Every weight goes through the same steps:
//  1. parse as a float; unparseable input becomes 0
//  2. clamp into [0, 100]
//  3. round to two decimals, half away from zero on the shortest decimal
//     rendering of the value (33.4567 -> 33.46, 1.005 -> 1.01)
//  4. if the value still renders with more than four digits, keep the first
//     four and place the decimal point before the last two of them
//
// Clamping runs before the digit guard, so 12345 becomes 100, not 12.34.
// The functions here are pure; callers log the result if they want a trace.
package weights

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"solar-analyzer/internal/models"
)

const (
	MinWeight     = 0
	MaxWeight     = 100
	decimalPlaces = 2
	maxDigits     = 4
)

// leading float literal, the part a lenient parser accepts ("12.5kg" -> 12.5)
var floatPrefix = regexp.MustCompile(`^[+-]?(?:Infinity|(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?)`)

// Sanitize applies Value to each of the five weights
func Sanitize(raw models.RawWeights) models.SuitabilityWeights {
	return models.SuitabilityWeights{
		SolarWeight: Value(raw.SolarWeight),
		AreaWeight:  Value(raw.AreaWeight),
		GridWeight:  Value(raw.GridWeight),
		SlopeWeight: Value(raw.SlopeWeight),
		InfraWeight: Value(raw.InfraWeight),
	}
}

// Value converts one raw weight into a finite number in [0,100] with at most
// two decimals and four significant digits.
func Value(raw any) float64 {
	v, ok := parse(raw)
	if !ok || math.IsNaN(v) {
		return 0
	}

	v = clamp(v)
	v = round(v)
	return truncateDigits(v)
}

func parse(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		return parseString(v.String())
	case string:
		return parseString(v)
	case decimal.Decimal:
		return v.InexactFloat64(), true
	default:
		return 0, false
	}
}

func parseString(s string) (float64, bool) {
	match := floatPrefix.FindString(strings.TrimSpace(s))
	if match == "" {
		return 0, false
	}

	v, err := strconv.ParseFloat(match, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	// out-of-range literals come back as ±Inf, which clamping handles
	return v, true
}

func clamp(v float64) float64 {
	if v < MinWeight {
		return MinWeight
	}
	if v > MaxWeight {
		return MaxWeight
	}
	return v
}

func round(v float64) float64 {
	return decimal.NewFromFloat(v).Round(decimalPlaces).InexactFloat64()
}

// truncateDigits keeps at most maxDigits digits of the rendered value,
// re-inserting the point so that decimalPlaces digits follow it.
func truncateDigits(v float64) float64 {
	digits := strings.Replace(strconv.FormatFloat(v, 'f', -1, 64), ".", "", 1)
	if len(digits) <= maxDigits {
		return v
	}

	cut := digits[:maxDigits]
	truncated, err := strconv.ParseFloat(cut[:maxDigits-decimalPlaces]+"."+cut[maxDigits-decimalPlaces:], 64)
	if err != nil {
		return 0
	}
	return truncated
}
