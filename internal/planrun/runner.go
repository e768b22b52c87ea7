package planrun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/certwatch/internal/adapters/repository"
	"github.com/okian/certwatch/pkg/logger"
)

// ErrInvariant is returned when the service broke at least one checked rule.
var ErrInvariant = errors.New("invariant violated")

// Run executes the complete planning run.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{
		StartTime: time.Now(),
	}

	logger.Get().Info(ctx, "starting planning run",
		logger.String("baseURL", config.BaseURL),
		logger.Int("companies", config.Companies),
		logger.Int("employees", config.Employees),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.Any("seed", config.Seed),
		logger.Bool("seeding", config.DSN != ""),
		logger.Bool("plan", config.Plan))

	client := newHTTPClient(config.BaseURL, config.Timeout)

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, client); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Build the fixture
	today := time.Now()
	fx := BuildFixture(config, today)

	// Step 3: Seed the database
	if config.DSN != "" {
		if err := seedDatabase(ctx, config.DSN, fx, stats); err != nil {
			return fmt.Errorf("fixture seeding failed: %w", err)
		}
	} else {
		logger.Get().Warn(ctx, "no database configured, expecting an already seeded service")
	}

	// Step 4: Exercise every company concurrently
	reports := checkCompanies(ctx, config, client, fx, today, stats)

	// Step 5: Save the report
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	report := Report{
		Seed:      config.Seed,
		StartedAt: stats.StartTime,
		Duration:  stats.Duration.String(),
		Companies: reports,
	}
	if err := saveReportToFile(ctx, config, report); err != nil {
		logger.Get().Warn(ctx, "failed to save report to file", logger.Error(err))
	}

	displayFinalStats(stats)

	if stats.Violations > 0 {
		return fmt.Errorf("%w: %d violations across %d companies", ErrInvariant, stats.Violations, stats.CompaniesChecked)
	}
	if stats.RequestsFailed > 0 {
		return fmt.Errorf("%d requests failed", stats.RequestsFailed)
	}
	logger.Get().Info(ctx, "planning run completed successfully")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	logger.Get().Info(ctx, "checking service health")

	var health struct {
		Status string `json:"status"`
	}
	status, err := client.Get(ctx, "/healthz", "", &health)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if status != http.StatusOK || health.Status != "ok" {
		return fmt.Errorf("service health check failed with status %d (%q)", status, health.Status)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// seedDatabase writes fx into the database at dsn, migrating it first.
func seedDatabase(ctx context.Context, dsn string, fx Fixture, stats *Stats) error {
	store, err := repository.Open(dsn, repository.WithLogger(logger.Named("planrun.repository")))
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close database", logger.Error(err))
		}
	}()
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	if err := seedFixture(ctx, store, fx); err != nil {
		return err
	}
	for _, cf := range fx.Companies {
		stats.CompaniesSeeded++
		stats.EmployeesSeeded += len(cf.Employees)
		stats.CertificatesSeeded += len(cf.Certificates)
	}
	logger.Get().Info(ctx, "fixture seeded",
		logger.Int("companies", stats.CompaniesSeeded),
		logger.Int("employees", stats.EmployeesSeeded),
		logger.Int("certificates", stats.CertificatesSeeded))
	return nil
}

// saveReportToFile writes the run report as indented JSON.
func saveReportToFile(ctx context.Context, config *Config, report Report) error {
	filename := config.ReportFile
	if filename == "" {
		timestamp := time.Now().Format("20060102_150405")
		filename = "planrun_report_" + timestamp + ".json"
	}

	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), logFilePermission); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	logger.Get().Info(ctx, "report saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(stats *Stats) {
	var noOfferingRate, comparisonsPerSecond float64

	if stats.Comparisons > 0 {
		noOfferingRate = float64(stats.NoOffering) / float64(stats.Comparisons) * PercentageMultiplier
	}

	if stats.Duration > 0 {
		comparisonsPerSecond = float64(stats.Comparisons) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("companiesSeeded", stats.CompaniesSeeded),
		logger.Int("employeesSeeded", stats.EmployeesSeeded),
		logger.Int("certificatesSeeded", stats.CertificatesSeeded),
		logger.Int("companiesChecked", stats.CompaniesChecked),
		logger.Int("needsCreated", stats.NeedsCreated),
		logger.Int("groupsRetrieved", stats.GroupsRetrieved),
		logger.Int("comparisons", stats.Comparisons),
		logger.Int("noOffering", stats.NoOffering),
		logger.Int("capacityExceeded", stats.CapacityExceeded),
		logger.Int("constraintChecks", stats.ConstraintChecks),
		logger.Int("warnings", stats.Warnings),
		logger.Int("sessionsPlanned", stats.SessionsPlanned),
		logger.Int("requestsFailed", stats.RequestsFailed),
		logger.Int("violations", stats.Violations),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("noOfferingRate", noOfferingRate),
		logger.Float64("comparisonsPerSecond", comparisonsPerSecond))
}
