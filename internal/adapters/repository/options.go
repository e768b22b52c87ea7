package repository

import (
	"github.com/okian/certwatch/pkg/logger"
	gormlogger "gorm.io/gorm/logger"
)

// Option applies a configuration option to the GormStore.
type Option func(*GormStore)

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *GormStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSQLLogLevel sets gorm's own SQL logger level. Silent by default.
func WithSQLLogLevel(level gormlogger.LogLevel) Option {
	return func(s *GormStore) {
		s.sqlLogLevel = level
	}
}

// WithMaxOpenConns caps the connection pool. Ignored for sqlite, which
// always uses a single connection.
func WithMaxOpenConns(n int) Option {
	return func(s *GormStore) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}
