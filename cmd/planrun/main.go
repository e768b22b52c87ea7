package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/certwatch/internal/planrun"
)

// Default configuration constants.
const (
	defaultCompanies  = 4
	defaultEmployees  = 40
	defaultTimeout    = 30 * time.Second
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:8080", "Base URL of the service")
		dsn        = flag.String("dsn", "", "Database to seed before the run; empty expects a seeded service")
		companies  = flag.Int("companies", defaultCompanies, "Number of synthetic companies")
		employees  = flag.Int("employees", defaultEmployees, "Employees per company")
		workers    = flag.Int("workers", runtime.NumCPU(), "Number of concurrent workers")
		seed       = flag.Uint64("seed", 1, "Fixture seed")
		horizon    = flag.Int("horizon", 0, "Detection horizon in days; 0 uses the service default")
		plan       = flag.Bool("plan", true, "Plan a session for each company's most urgent group")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile = flag.String("output", "", "Report file (default: planrun_report_TIMESTAMP.json)")
		logFile    = flag.String("log", "", "Log file for run output (default: planrun_log_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		planrun.ShowHelp()
		return
	}

	if err := planrun.SetupLogging(*logFile, *verbose); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	config := &planrun.Config{
		BaseURL:     *baseURL,
		DSN:         *dsn,
		Companies:   *companies,
		Employees:   *employees,
		Workers:     *workers,
		Timeout:     *timeout,
		Seed:        *seed,
		Plan:        *plan,
		ReportFile:  *outputFile,
		LogFile:     *logFile,
		Verbose:     *verbose,
		LegalFloor:  planrun.DefaultLegalFloor,
		HorizonDays: *horizon,
	}

	if err := planrun.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Planning run failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}
