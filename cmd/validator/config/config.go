package config

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"booking-validation-service/internal/matcher"
	"booking-validation-service/internal/parsers"
	"booking-validation-service/internal/reconciler"
	"booking-validation-service/internal/reporter"
	"booking-validation-service/internal/store/gormstore"
)

// Store kinds accepted by --store
const (
	StoreMemory   = "memory"
	StorePostgres = gormstore.DriverPostgres
	StoreSQLite   = gormstore.DriverSQLite
)

// DefaultSQLitePath is used when --store sqlite is given without --dsn
const DefaultSQLitePath = "booking-validation.db"

// ValidStoreKind reports whether kind names a supported store
func ValidStoreKind(kind string) bool {
	switch kind {
	case StoreMemory, StorePostgres, StoreSQLite:
		return true
	default:
		return false
	}
}

// IsPersistent reports whether the store kind outlives the process
func IsPersistent(kind string) bool {
	return kind == StorePostgres || kind == StoreSQLite
}

// CreateStoreConfig creates the database configuration for a persistent store
func CreateStoreConfig(kind, dsn string, logQueries bool) (*gormstore.Config, error) {
	if !IsPersistent(kind) {
		return nil, fmt.Errorf("store %q is not backed by a database", kind)
	}
	if strings.TrimSpace(dsn) == "" {
		if kind != StoreSQLite {
			return nil, fmt.Errorf("--dsn is required for the %s store", kind)
		}
		dsn = DefaultSQLitePath
	}

	config := &gormstore.Config{
		Driver:     kind,
		DSN:        dsn,
		LogQueries: logQueries,
	}
	if kind == StorePostgres {
		config.MaxOpenConns = 10
	} else {
		// sqlite serializes writers
		config.MaxOpenConns = 1
	}
	return config, config.Validate()
}

// CreateMatchingConfig creates a matching configuration from CLI options
func CreateMatchingConfig(bestCandidate bool, maxCandidates int, timezone string) *matcher.MatchingConfig {
	config := matcher.DefaultMatchingConfig()
	if bestCandidate {
		config.CandidatePolicy = matcher.PolicyBestScore
	}
	config.MaxCandidates = maxCandidates
	if strings.TrimSpace(timezone) != "" {
		config.BusinessTimezone = strings.TrimSpace(timezone)
	}
	return config
}

// CreateReconcilerConfig creates a reconciler configuration
func CreateReconcilerConfig(workers int, showProgress bool) *reconciler.Config {
	config := reconciler.DefaultConfig()
	if workers > 0 {
		config.Workers = workers
	}
	config.ProgressReporting = showProgress
	return config
}

// CreateParseConfig creates the ingestion configuration. An empty delimiter
// keeps detection on; "\t" and "tab" select a tab.
func CreateParseConfig(delimiter, sheet string) (*parsers.ParseConfig, error) {
	config := parsers.DefaultParseConfig()
	config.Sheet = strings.TrimSpace(sheet)

	switch delimiter {
	case "":
	case `\t`, "tab":
		config.Delimiter = '\t'
		config.DetectDelimiter = false
	default:
		if utf8.RuneCountInString(delimiter) != 1 {
			return nil, fmt.Errorf("delimiter must be a single character, got %q", delimiter)
		}
		r, _ := utf8.DecodeRuneInString(delimiter)
		config.Delimiter = r
		config.DetectDelimiter = false
	}

	return config, config.Validate()
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string, includeMatched bool) *reporter.ReportConfig {
	config := reporter.DefaultReportConfig()
	config.IncludeMatched = includeMatched

	switch format {
	case "console":
		config.Format = reporter.FormatConsole
	case "json":
		config.Format = reporter.FormatJSON
	case "csv":
		config.Format = reporter.FormatCSV
		config.CSVHeaders = true
		// a spreadsheet review wants every row
		config.IncludeMatched = true
	default:
		config.Format = reporter.OutputFormat(format)
	}

	return config
}

// ValidateConfig validates that all component configurations are usable
func ValidateConfig(matchingConfig *matcher.MatchingConfig, reconcilerConfig *reconciler.Config, reportConfig *reporter.ReportConfig) error {
	if err := matchingConfig.Validate(); err != nil {
		return fmt.Errorf("invalid matching config: %w", err)
	}
	if err := reconcilerConfig.Validate(); err != nil {
		return fmt.Errorf("invalid reconciler config: %w", err)
	}
	if err := reportConfig.Validate(); err != nil {
		return fmt.Errorf("invalid report config: %w", err)
	}
	return nil
}
