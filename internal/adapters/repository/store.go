// Package repository persists the workforce, catalog and planning data on gorm.
// Every read and write is scoped by an explicit company argument.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/certwatch/internal/domain/model"
	"github.com/okian/certwatch/pkg/logger"
	"github.com/okian/certwatch/pkg/metrics"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store is everything the service reads from and writes to storage.
type Store interface {
	Companies(ctx context.Context) ([]model.CompanyID, error)
	Employees(ctx context.Context, company model.CompanyID) ([]model.Employee, error)
	EmployeesByIDs(ctx context.Context, company model.CompanyID, ids []string) ([]model.Employee, error)
	FormationTypes(ctx context.Context, company model.CompanyID) ([]model.FormationType, error)
	FormationType(ctx context.Context, company model.CompanyID, id string) (model.FormationType, error)
	Certificates(ctx context.Context, company model.CompanyID) ([]model.Certificate, error)
	CenterOfferings(ctx context.Context, company model.CompanyID, formationTypeID string) ([]model.CenterOffering, error)
	Constraints(ctx context.Context, company model.CompanyID) (*model.PlanningConstraints, error)
	BookedEmployees(ctx context.Context, company model.CompanyID, day time.Time) ([]model.Employee, error)

	Needs(ctx context.Context, company model.CompanyID, statuses ...model.NeedStatus) ([]model.TrainingNeed, error)
	NeedCounts(ctx context.Context) (map[model.NeedStatus]int64, error)
	UpsertNeed(ctx context.Context, need model.TrainingNeed) (model.TrainingNeed, bool, error)
	CancelNeeds(ctx context.Context, company model.CompanyID, ids []string) (int, error)

	CreateSession(ctx context.Context, session model.TrainingSession) (model.TrainingSession, error)
	Session(ctx context.Context, company model.CompanyID, id string) (model.TrainingSession, error)

	Close() error
}

// GormStore implements Store on any gorm dialect.
type GormStore struct {
	db           *gorm.DB
	logger       logger.Logger
	sqlLogLevel  gormlogger.LogLevel
	maxOpenConns int
}

var _ Store = (*GormStore)(nil)

func defaults() *GormStore {
	return &GormStore{
		logger:       logger.Get().Named("repository"),
		sqlLogLevel:  gormlogger.Silent,
		maxOpenConns: 10,
	}
}

// Open connects to dsn. A postgres URL or key=value list selects the
// postgres driver; anything else is treated as a sqlite path or URI.
func Open(dsn string, opts ...Option) (*GormStore, error) {
	s := defaults()
	for _, opt := range opts {
		opt(s)
	}

	dsn = strings.Trim(strings.TrimSpace(dsn), "\"'")
	if dsn == "" {
		return nil, ErrUnsupportedDriver
	}
	dialector, isSQLite := dialectorFor(dsn)

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(s.sqlLogLevel)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if isSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(s.maxOpenConns)
	}
	if err := db.Exec("SELECT 1").Error; err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("database ping: %w", err)
	}

	s.db = db
	s.logger.Info(context.Background(), "database connected",
		logger.String("dialect", db.Dialector.Name()))
	return s, nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, opts ...Option) *GormStore {
	s := defaults()
	for _, opt := range opts {
		opt(s)
	}
	s.db = db
	return s
}

func dialectorFor(dsn string) (gorm.Dialector, bool) {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"),
		strings.Contains(lower, "host=") && strings.Contains(lower, "dbname="):
		return postgres.Open(dsn), false
	default:
		return sqlite.Open(dsn), true
	}
}

// Migrate creates or updates every table.
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// DB exposes the underlying handle.
func (s *GormStore) DB() *gorm.DB { return s.db }

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// observe records latency and failure of one storage operation.
func (s *GormStore) observe(op string, start time.Time, err error) {
	failed := err != nil && !errors.Is(err, model.ErrNotFound) && !errors.Is(err, model.ErrConflict)
	metrics.RecordRepositoryOperation(op, float64(time.Since(start).Microseconds())/1000, failed)
}
