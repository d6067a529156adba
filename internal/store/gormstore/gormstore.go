// Package gormstore implements the booking and report stores on GORM.
// Postgres is the production driver; sqlite (pure Go) serves local runs and
// tests.
package gormstore

import (
	"fmt"
	"strings"
	"time"

	"booking-validation-service/internal/store"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config selects and tunes the database connection
type Config struct {
	Driver          string        `json:"driver" mapstructure:"driver"`
	DSN             string        `json:"dsn" mapstructure:"dsn"`
	MaxOpenConns    int           `json:"max_open_conns" mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	LogQueries      bool          `json:"log_queries" mapstructure:"log_queries"`
}

// Validate checks if the database configuration is usable
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver %q (use %s or %s)", c.Driver, DriverPostgres, DriverSQLite)
	}
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("database DSN cannot be empty")
	}
	if c.MaxOpenConns < 0 {
		return fmt.Errorf("max open connections cannot be negative: %d", c.MaxOpenConns)
	}
	return nil
}

// Store implements store.BookingStore and store.ReportStore on one database
type Store struct {
	db *gorm.DB
}

var (
	_ store.BookingStore = (*Store)(nil)
	_ store.ReportStore  = (*Store)(nil)
)

// Open connects to the configured database
func Open(config *Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch config.Driver {
	case DriverPostgres:
		dialector = postgres.Open(config.DSN)
	case DriverSQLite:
		dialector = sqlite.Open(config.DSN)
	}

	logLevel := gormlogger.Silent
	if config.LogQueries {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  gormlogger.Default.LogMode(logLevel),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, errors.Wrapf(err, "connect to %s", config.Driver)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "access connection pool")
	}
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	return New(db), nil
}

// New wraps an existing GORM handle
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the schema
func (s *Store) AutoMigrate() error {
	return errors.Wrap(
		s.db.AutoMigrate(&BookingRow{}, &PassengerRow{}, &ReportRow{}, &ResultRow{}),
		"migrate schema",
	)
}

// Close releases the connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// notFound maps gorm.ErrRecordNotFound to store.ErrNotFound
func notFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrapf(store.ErrNotFound, "%s %s", what, id)
	}
	return errors.Wrapf(err, "load %s %s", what, id)
}
