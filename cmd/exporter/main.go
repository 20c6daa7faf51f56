package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"solar-analyzer/internal/config"
	"solar-analyzer/internal/gateway"
	"solar-analyzer/internal/models"
	"solar-analyzer/internal/services"
	"solar-analyzer/pkg/logging"
	"solar-analyzer/pkg/metrics"
)

func main() {
	// Parse command-line flags
	format := flag.String("format", "csv", "Export format: csv or json")
	topLimit := flag.Int("top", 0, "Also fetch the service's top N sites; 0 skips it")
	region := flag.String("region", "", "Only include sites in this region")
	landType := flag.String("land-type", "", "Only include sites with this land type")
	minScore := flag.Float64("min-score", models.DefaultMinScore, "Minimum total suitability score")
	maxScore := flag.Float64("max-score", models.DefaultMaxScore, "Maximum total suitability score")
	limit := flag.Int("limit", models.DefaultLimit, "Maximum number of results to fetch")
	skipExport := flag.Bool("skip-export", false, "Print the report without downloading an export")
	flag.Parse()

	exportFormat, err := models.ParseExportFormat(*format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid flag: %v\n", err)
		os.Exit(2)
	}

	// Only flags given on the command line override the default filters
	var filters models.SiteFilters
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "region":
			filters.Region = models.Ptr(*region)
		case "land-type":
			filters.LandType = models.Ptr(*landType)
		case "min-score":
			filters.MinScore = models.Ptr(*minScore)
		case "max-score":
			filters.MaxScore = models.Ptr(*maxScore)
		case "limit":
			filters.Limit = models.Ptr(*limit)
		}
	})

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("solar-exporter", "1.0.0", logging.ParseLevel(cfg.Logging.Level))

	ctx := context.Background()
	logger.Info(ctx, "[EXPORTER_START] Starting site analysis export", logging.Fields{
		"version":     "1.0.0",
		"gateway_url": cfg.Gateway.BaseURL,
		"format":      exportFormat,
		"top":         *topLimit,
		"skip_export": *skipExport,
		"export_dir":  cfg.Export.Dir,
	})

	metricsCollector := metrics.NewCollector("solar_exporter")

	client := gateway.New(gateway.Config{
		BaseURL:      cfg.Gateway.BaseURL,
		Timeout:      cfg.Gateway.Timeout,
		RateLimitRPS: cfg.Gateway.RateLimitRPS,
	}, logger, metricsCollector)

	store := services.NewAnalysisStore(client, services.NewDirSaver(cfg.Export.Dir), logger, metricsCollector)
	reportService := services.NewReportService(store, logger, metricsCollector)

	report, err := reportService.Run(ctx, services.ReportOptions{
		Filters:    filters,
		TopLimit:   *topLimit,
		Format:     exportFormat,
		SkipExport: *skipExport,
	})
	if err != nil {
		if errors.Is(err, services.ErrNoResults) {
			fmt.Fprintf(os.Stderr, "No analysis results: %v\n", err)
			os.Exit(1)
		}
		logger.Fatal(ctx, "[EXPORTER_ERROR] Report failed", logging.Fields{}, err)
	}

	printReport(report)

	logger.Info(ctx, "[EXPORTER_COMPLETE] Export completed", logging.Fields{
		"held_results":     report.HeldResults,
		"filtered_count":   report.FilteredCount,
		"export_location":  report.ExportLocation,
		"error_count":      len(report.Errors),
		"duration_seconds": report.Duration.Seconds(),
	})

	if len(report.Errors) > 0 {
		os.Exit(1)
	}
}

// loadConfig reads and validates the environment configuration
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func printReport(report *services.Report) {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("SITE ANALYSIS REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Filters:            %s\n", describeFilters(report.Filters))
	fmt.Printf("Held Results:       %d\n", report.HeldResults)
	fmt.Printf("Within Score Range: %d\n", report.FilteredCount)
	fmt.Printf("Duration:           %v\n", report.Duration)

	d := report.Distribution
	fmt.Println("\nScore Distribution:")
	fmt.Printf("  Excellent (>=80): %d\n", d.Excellent)
	fmt.Printf("  Good (60-79):     %d\n", d.Good)
	fmt.Printf("  Fair (40-59):     %d\n", d.Fair)
	fmt.Printf("  Poor (20-39):     %d\n", d.Poor)
	fmt.Printf("  Very Poor (<20):  %d\n", d.VeryPoor)

	if s := report.Statistics; s != nil {
		fmt.Println("\nService Statistics:")
		fmt.Printf("  Total Sites:      %d\n", s.TotalSites)
		fmt.Printf("  Average Score:    %.2f\n", s.AvgScore.Float64())
		fmt.Printf("  Min Score:        %.2f\n", s.MinScore.Float64())
		fmt.Printf("  Max Score:        %.2f\n", s.MaxScore.Float64())
	}

	printRanking("Top Sites", report.TopSites)
	printRanking("Service Top Sites", report.ServiceTop)

	if report.ExportLocation != "" {
		fmt.Printf("\nExported to: %s\n", report.ExportLocation)
	}

	if len(report.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(report.Errors))
		for _, msg := range report.Errors {
			fmt.Printf("  - %s\n", msg)
		}
	}
}

func printRanking(title string, results []models.AnalysisResult) {
	if len(results) == 0 {
		return
	}
	fmt.Printf("\n%s:\n", title)
	for i, r := range results {
		name := r.SiteName
		if name == "" {
			name = fmt.Sprintf("site %d", r.Site)
		}
		fmt.Printf("  %2d. %-40s %6.2f\n", i+1, name, r.Score())
	}
}

func describeFilters(f models.SiteFilters) string {
	encoded := f.Values().Encode()
	if encoded == "" {
		return "(none)"
	}
	return strings.ReplaceAll(encoded, "&", " ")
}
