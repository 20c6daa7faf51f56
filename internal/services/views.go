package services

import (
	"sort"

	"solar-analyzer/internal/models"
)

// TopSitesLimit is the length of the local top sites view
const TopSitesLimit = 10

// Score distribution bucket lower bounds, checked from the top
const (
	excellentThreshold = 80
	goodThreshold      = 60
	fairThreshold      = 40
	poorThreshold      = 20
)

// FilterByScore returns the results whose total score lies within the
// inclusive bounds of filters. Unset bounds count as 0 and 100.
func FilterByScore(results []models.AnalysisResult, filters models.SiteFilters) []models.AnalysisResult {
	lo, hi := filters.ScoreBounds()

	filtered := make([]models.AnalysisResult, 0, len(results))
	for _, r := range results {
		if score := r.Score(); score >= lo && score <= hi {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// TopN returns up to n results ordered by descending total score. Ties keep
// their relative order. The input slice is not modified.
func TopN(results []models.AnalysisResult, n int) []models.AnalysisResult {
	sorted := make([]models.AnalysisResult, len(results))
	copy(sorted, results)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score() > sorted[j].Score()
	})

	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// Distribute counts results per score bucket
func Distribute(results []models.AnalysisResult) models.ScoreDistribution {
	var d models.ScoreDistribution
	for _, r := range results {
		switch score := r.Score(); {
		case score >= excellentThreshold:
			d.Excellent++
		case score >= goodThreshold:
			d.Good++
		case score >= fairThreshold:
			d.Fair++
		case score >= poorThreshold:
			d.Poor++
		default:
			d.VeryPoor++
		}
	}
	return d
}
