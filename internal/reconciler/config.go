// Package reconciler runs the booking validation pipeline for one uploaded
// manifest: ingest the file, map rows to canonical records, match every
// record against the booking store, store one result per record together
// with the completed report, then mark matched bookings validated.
//
// Example usage:
//
//	service, err := reconciler.NewValidationService(bookings, reports, matcher.DefaultMatchingConfig(), nil)
//	reportID, err := service.CreateReport(ctx, "manifest.csv", models.FileTypeCSV, "auditor")
//	summary, err := service.RunReconciliation(ctx, reportID, data, models.FileTypeCSV, nil)
package reconciler

import (
	"fmt"
	"time"
)

// Config holds configuration options for the validation service
type Config struct {
	// Workers bounds the number of records matched concurrently
	Workers int `json:"workers" mapstructure:"workers"`

	// ProgressReporting enables periodic progress log lines per run
	ProgressReporting bool          `json:"progress_reporting" mapstructure:"progress_reporting"`
	ProgressInterval  time.Duration `json:"progress_interval" mapstructure:"progress_interval"`

	// BookingUpdateRetries is the number of extra attempts for a failed
	// booking validation write. Attempt n waits n*RetryBackoff first.
	BookingUpdateRetries int           `json:"booking_update_retries" mapstructure:"booking_update_retries"`
	RetryBackoff         time.Duration `json:"retry_backoff" mapstructure:"retry_backoff"`
}

// DefaultConfig returns a default configuration for the validation service
func DefaultConfig() *Config {
	return &Config{
		Workers:              4,
		ProgressReporting:    false,
		ProgressInterval:     5 * time.Second,
		BookingUpdateRetries: 2,
		RetryBackoff:         100 * time.Millisecond,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.ProgressInterval < 0 {
		return fmt.Errorf("progress interval cannot be negative, got %s", c.ProgressInterval)
	}
	if c.BookingUpdateRetries < 0 {
		return fmt.Errorf("booking update retries cannot be negative, got %d", c.BookingUpdateRetries)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative, got %s", c.RetryBackoff)
	}
	return nil
}
