package planrun

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/okian/certwatch/pkg/logger"
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string, verbose bool) error {
	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "planrun_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	level := "info"
	if verbose {
		level = "debug"
	}
	if err := logger.Init(logger.WithOutput(multiWriter), logger.WithLevel(level)); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the planning run tool.
func ShowHelp() {
	os.Stdout.WriteString(`certwatch planning run
======================

Seeds a synthetic workforce and walks every company through detection,
grouping, cost comparison, constraint checks and session planning,
verifying the answers of a running service.

Usage:
  go run ./cmd/planrun [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:8080")
  -dsn string
        Database to seed before the run; empty expects a seeded service
  -companies int
        Number of synthetic companies (default 4)
  -employees int
        Employees per company (default 40)
  -workers int
        Number of concurrent workers (default CPU cores)
  -seed uint
        Fixture seed (default 1)
  -horizon int
        Detection horizon in days; 0 uses the service default
  -plan
        Plan a session for each company's most urgent group (default true)
  -timeout duration
        HTTP request timeout (default 30s)
  -output string
        Report file (default: planrun_report_TIMESTAMP.json)
  -log string
        Log file for run output (default: planrun_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Seed the service database and run with defaults
  go run ./cmd/planrun -dsn certwatch.db

  # Larger run against a remote service
  go run ./cmd/planrun -url http://planner:8080 -companies 20 -employees 200 -workers 16
`)
}
