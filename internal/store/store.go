// Package store defines the persistence boundaries of the validation
// service: the booking store the engine reads and marks validated, and the
// report store that holds validation reports and their per-record results.
//
// Two implementations live in subpackages: memory (tests and the standalone
// CLI) and gormstore (postgres or sqlite through GORM).
package store

import (
	"context"
	"errors"
	"time"

	"booking-validation-service/internal/models"
)

var (
	// ErrNotFound is returned when a booking or report id is unknown
	ErrNotFound = errors.New("not found")

	// ErrTerminalState is returned when a report that already completed or
	// failed is updated again
	ErrTerminalState = errors.New("report is in a terminal state")

	// ErrClaimed is returned when another run owns a processing report
	ErrClaimed = errors.New("report is claimed by another run")
)

// BookingStore is the agency booking store
type BookingStore interface {
	// FindBookingByReference returns the booking whose own reference or
	// recorded airline PNR equals ref, or (nil, nil) when there is none.
	FindBookingByReference(ctx context.Context, ref string) (*models.Booking, error)

	// FindBookingsByFlightAndDate returns bookings whose flight number
	// contains flightNumber case-insensitively and that depart within
	// models.DayBounds(day), in a stable order.
	FindBookingsByFlightAndDate(ctx context.Context, flightNumber string, day time.Time) ([]*models.Booking, error)

	// UpdateBookingValidation applies the validation fields to a booking.
	// Applying the same update twice has the same effect as applying it once.
	UpdateBookingValidation(ctx context.Context, bookingID string, update models.BookingValidation) error

	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
}

// ReportStore holds validation reports and results
type ReportStore interface {
	CreateReport(ctx context.Context, report *models.ValidationReport) error
	GetReport(ctx context.Context, reportID string) (*models.ValidationReport, error)

	// UpdateReport replaces the stored report. It fails with
	// ErrTerminalState when the stored report is completed or failed, and
	// with ErrClaimed when the stored report is owned by a run other than
	// report.RunID.
	UpdateReport(ctx context.Context, report *models.ValidationReport) error

	// ClaimReport makes runID the owner of an unclaimed processing report and
	// returns the claimed report.
	ClaimReport(ctx context.Context, reportID, runID string) (*models.ValidationReport, error)

	// ReleaseReport drops the claim of runID, leaving the report processing
	// and free to be claimed again.
	ReleaseReport(ctx context.Context, reportID, runID string) error

	// CompleteReport stores results and the completed report together.
	// The stored report must be processing and owned by report.RunID;
	// nothing is written when it fails. Results without an id get one.
	CompleteReport(ctx context.Context, report *models.ValidationReport, results []*models.ValidationResult) error

	// CreateResult adds one result to a report that is still processing
	CreateResult(ctx context.Context, result *models.ValidationResult) error

	// UpdateResultDetails replaces the match details of a stored result
	UpdateResultDetails(ctx context.Context, resultID string, details models.MatchDetails) error

	// ListResults returns the results of a report ordered by row number
	ListResults(ctx context.Context, reportID string) ([]*models.ValidationResult, error)

	CountResultsByStatus(ctx context.Context, reportID string) (models.StatusCounts, error)
}
