package planrun

import "time"

// Config holds configuration for a planning run.
type Config struct {
	BaseURL     string        // Base URL of the service
	DSN         string        // Database to seed; empty skips seeding
	Companies   int           // Number of synthetic companies
	Employees   int           // Employees per company
	Workers     int           // Number of concurrent workers
	Timeout     time.Duration // HTTP request timeout
	Seed        uint64        // Fixture seed; equal seeds give equal fixtures
	Plan        bool          // Plan a session for each company's most urgent group
	ReportFile  string        // Output file for the run report
	LogFile     string        // Log file for run output
	Verbose     bool          // Enable verbose logging
	LegalFloor  int           // Minimum priority expected for legal obligations
	HorizonDays int           // Detection horizon sent to the service
}

// Stats holds run statistics.
type Stats struct {
	CompaniesSeeded    int
	EmployeesSeeded    int
	CertificatesSeeded int
	CompaniesChecked   int
	NeedsCreated       int
	GroupsRetrieved    int
	Comparisons        int
	NoOffering         int
	CapacityExceeded   int
	ConstraintChecks   int
	Warnings           int
	SessionsPlanned    int
	RequestsFailed     int
	Violations         int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}

// CompanyReport is what one company's pass produced.
type CompanyReport struct {
	CompanyID   string   `json:"companyId"`
	Created     int      `json:"needsCreated"`
	Groups      int      `json:"groups"`
	Comparisons int      `json:"comparisons"`
	Warnings    int      `json:"warnings"`
	SessionID   string   `json:"sessionId,omitempty"`
	Violations  []string `json:"violations,omitempty"`
	Errors      []string `json:"errors,omitempty"`
}

// Report is written to Config.ReportFile at the end of a run.
type Report struct {
	Seed      uint64          `json:"seed"`
	StartedAt time.Time       `json:"startedAt"`
	Duration  string          `json:"duration"`
	Companies []CompanyReport `json:"companies"`
}
