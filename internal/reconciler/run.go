package reconciler

import (
	"context"
	stderrors "errors"
	"time"

	"booking-validation-service/internal/mapping"
	"booking-validation-service/internal/matcher"
	"booking-validation-service/internal/models"
	"booking-validation-service/internal/parsers"
	"booking-validation-service/internal/store"
	"booking-validation-service/pkg/errors"
	"booking-validation-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
)

// RunReconciliation processes data for a report that is still processing.
//
// The run first claims the report, so a second run on the same report fails
// with an invalid state error. Records are matched without writing anything;
// the results and the completed report are then stored in one step, and
// only after that are matched bookings marked validated. On return without
// error the report is completed and its counters equal the persisted results
// grouped by match status. A file that cannot be ingested or mapped, or
// results that cannot be persisted, move the report to failed with no
// results; the failed summary is returned together with the error.
// Cancelling ctx before the results are stored leaves the report processing
// and unclaimed.
func (s *ValidationService) RunReconciliation(
	ctx context.Context,
	reportID string,
	data []byte,
	kind parsers.FileType,
	columns mapping.ColumnMapping,
) (*models.ReportSummary, error) {
	start := s.now()

	report, err := s.reports.GetReport(ctx, reportID)
	if err != nil {
		return nil, storeLookupError("load_report", reportID, err)
	}
	if report.Status != models.ReportStatusProcessing {
		return nil, errors.ValidationError(errors.CodeInvalidState, "report_status", report.Status, nil).
			WithContext("report_id", reportID).
			WithSuggestion("only a report in processing state can be reconciled; upload the file again")
	}

	report, err = s.reports.ClaimReport(ctx, reportID, uuid.NewString())
	if err != nil {
		if stderrors.Is(err, store.ErrTerminalState) || stderrors.Is(err, store.ErrClaimed) {
			return nil, s.stateError(ctx, reportID, err)
		}
		return nil, storeLookupError("claim_report", reportID, err)
	}

	log := s.logger.WithFields(logger.Fields{
		"report_id": reportID,
		"file_name": report.FileName,
		"run_id":    report.RunID,
	})
	op := logger.NewOperationLogger("reconciliation", log)

	op.Step("ingest")
	records, err := s.ingest(ctx, report.FileName, data, kind, columns)
	if err != nil {
		if ctx.Err() != nil {
			return nil, s.cancelled(ctx, report, op)
		}
		op.Error(err, "Manifest could not be ingested")
		return s.failReport(ctx, report, err, start)
	}

	op.Step("match")
	matches, err := s.matchRecords(ctx, report, records, log)
	if err != nil {
		if ctx.Err() != nil {
			return nil, s.cancelled(ctx, report, op)
		}
		op.Error(err, "Records could not be matched")
		return s.failReport(ctx, report, err, start)
	}

	results := make([]*models.ValidationResult, len(matches))
	for i, m := range matches {
		results[i] = m.result
	}

	op.Step("persist")
	counts := models.TallyResults(results)
	completedAt := s.now()
	report.Status = models.ReportStatusCompleted
	report.TotalRecords = counts.Total()
	report.MatchedRecords = counts.Matched
	report.PartialMatches = counts.Partial
	report.UnmatchedRecords = counts.Unmatched
	report.ErrorMessage = ""
	report.CompletedAt = &completedAt

	if err := s.reports.CompleteReport(ctx, report, results); err != nil {
		if ctx.Err() != nil {
			return nil, s.cancelled(ctx, report, op)
		}
		if stderrors.Is(err, store.ErrTerminalState) || stderrors.Is(err, store.ErrClaimed) {
			op.Error(err, "Report was finished by another run")
			return nil, s.stateError(ctx, reportID, err)
		}
		op.Error(err, "Results could not be persisted")
		return s.failReport(ctx, report, errors.StoreError(errors.CodePersistenceFailed, "complete_report", err), start)
	}
	for _, m := range matches {
		s.observeRecord(m.result.MatchStatus)
	}

	// the report is completed; its matched bookings are updated even if ctx
	// is cancelled now
	op.Step("validate_bookings")
	updateFailures := s.validateBookings(context.WithoutCancel(ctx), report, records, matches, log)

	summary := models.NewReportSummary(report)
	summary.BookingUpdateFailures = updateFailures
	summary.Duration = s.now().Sub(start)
	s.observeRun(report.Status, summary.Duration)

	op.Success("Reconciliation completed", logger.Fields{
		"total":                   summary.TotalRecords,
		"matched":                 summary.MatchedRecords,
		"partial":                 summary.PartialMatches,
		"unmatched":               summary.UnmatchedRecords,
		"booking_update_failures": updateFailures,
	})
	return summary, nil
}

// ingest reads every row before any result is written so that a malformed
// file fails the report with zero results
func (s *ValidationService) ingest(
	ctx context.Context,
	fileName string,
	data []byte,
	kind parsers.FileType,
	columns mapping.ColumnMapping,
) ([]models.CanonicalRecord, error) {
	normalized, err := columns.Normalize()
	if err != nil {
		return nil, err
	}

	config := *s.parseConfig
	config.FileName = fileName

	it, err := parsers.NewIngestor(&config).Open(ctx, data, kind)
	if err != nil {
		return nil, err
	}
	rows, err := parsers.ReadAll(ctx, it)
	if err != nil {
		return nil, err
	}

	return mapping.NewMapper(normalized, s.location).MapAll(rows), nil
}

// recordMatch is the result produced for one record and the booking to mark
// validated, if any
type recordMatch struct {
	result  *models.ValidationResult
	booking *models.Booking
}

// matchRecords matches records on a bounded pool. matches[i] belongs to
// records[i]. Nothing is written to either store.
func (s *ValidationService) matchRecords(
	ctx context.Context,
	report *models.ValidationReport,
	records []models.CanonicalRecord,
	log logger.Logger,
) ([]recordMatch, error) {
	matches := make([]recordMatch, len(records))

	var progress *logger.ProgressTracker
	if s.config.ProgressReporting {
		progress = logger.NewProgressTracker(logger.ProgressConfig{
			Operation:   "reconcile " + report.FileName,
			Total:       int64(len(records)),
			LogInterval: s.config.ProgressInterval,
			Logger:      log,
			Clock:       s.now,
		})
	}

	p := pool.New().
		WithMaxGoroutines(s.config.Workers).
		WithContext(ctx).
		WithCancelOnError()

	for i := range records {
		if ctx.Err() != nil {
			break
		}
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, err := s.matchRecord(ctx, report, records[i], log)
			if err != nil {
				return err
			}

			matches[i] = m
			if progress != nil {
				progress.Increment(string(m.result.MatchStatus))
			}
			return nil
		})
	}

	err := p.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		if progress != nil {
			progress.CompleteWithError(err)
		}
		return nil, err
	}
	if progress != nil {
		progress.Complete()
	}
	return matches, nil
}

// matchRecord produces the result for one record. A failed booking lookup
// is recorded on the result instead of failing the run.
func (s *ValidationService) matchRecord(
	ctx context.Context,
	report *models.ValidationReport,
	record models.CanonicalRecord,
	log logger.Logger,
) (recordMatch, error) {
	result := models.NewValidationResult(report.ID, record)

	verdict, err := s.engine.Match(ctx, record)
	if err != nil {
		if ctx.Err() != nil {
			return recordMatch{}, ctx.Err()
		}
		s.observeStoreError("match")
		log.WithError(err).WithField("row", record.RowNumber).Warn("Booking lookup failed, recording record as unmatched")

		verdict = matcher.NoMatchResult()
		verdict.Details = models.MatchDetails{
			Reason:      matcher.ReasonStoreUnavailable,
			LookupError: errorText(err),
		}
	}

	score := verdict.Score
	result.BookingID = verdict.BookingID
	result.MatchStatus = verdict.Status
	result.MatchScore = &score
	result.MatchDetails = verdict.Details

	m := recordMatch{result: result}
	if verdict.IsMatched() {
		m.booking = verdict.Booking
	}
	return m, nil
}

// validateBookings marks the booking of every matched record validated and
// returns how many updates failed after all retries. A failure is written
// to the stored result's details.
func (s *ValidationService) validateBookings(
	ctx context.Context,
	report *models.ValidationReport,
	records []models.CanonicalRecord,
	matches []recordMatch,
	log logger.Logger,
) int {
	failed := make([]bool, len(matches))

	p := pool.New().WithMaxGoroutines(s.config.Workers)
	for i, m := range matches {
		if m.booking == nil {
			continue
		}
		p.Go(func() {
			err := s.validateBooking(ctx, m.booking, records[i], report.UploadedBy)
			if err == nil {
				s.observeBookingUpdate(true)
				return
			}

			failed[i] = true
			s.observeBookingUpdate(false)
			entry := log.WithError(err).WithFields(logger.Fields{
				"row":        records[i].RowNumber,
				"booking_id": m.booking.ID,
			})
			entry.Error("Booking validation update failed")

			m.result.MatchDetails.BookingUpdateError = errorText(err)
			if werr := s.reports.UpdateResultDetails(ctx, m.result.ID, m.result.MatchDetails); werr != nil {
				s.observeStoreError("update_result")
				entry.WithField("result_id", m.result.ID).Error("Booking update failure could not be recorded on the result")
			}
		})
	}
	p.Wait()

	failures := 0
	for _, f := range failed {
		if f {
			failures++
		}
	}
	return failures
}

// validateBooking marks booking validated, retrying with linear backoff.
// The record's reference and ticket replace the booking's only when present.
func (s *ValidationService) validateBooking(
	ctx context.Context,
	booking *models.Booking,
	record models.CanonicalRecord,
	uploadedBy string,
) error {
	update := models.BookingValidation{
		AirlinePNR:   booking.AirlinePNR,
		TicketNumber: booking.TicketNumber,
		IsValidated:  true,
		ValidatedAt:  s.now(),
		ValidatedBy:  uploadedBy,
	}
	if record.AirlineReference != "" {
		update.AirlinePNR = record.AirlineReference
	}
	if record.TicketNumber != nil {
		update.TicketNumber = *record.TicketNumber
	}

	var err error
	for attempt := 0; attempt <= s.config.BookingUpdateRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * s.config.RetryBackoff):
			}
		}

		err = s.bookings.UpdateBookingValidation(ctx, booking.ID, update)
		if err == nil || stderrors.Is(err, store.ErrNotFound) || ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		return errors.StoreError(errors.CodePersistenceFailed, "update_booking_validation", err).
			WithContext("booking_id", booking.ID)
	}
	return nil
}

// failReport moves the report to failed with zero counters
func (s *ValidationService) failReport(
	ctx context.Context,
	report *models.ValidationReport,
	cause error,
	start time.Time,
) (*models.ReportSummary, error) {
	completedAt := s.now()
	report.Status = models.ReportStatusFailed
	report.TotalRecords = 0
	report.MatchedRecords = 0
	report.PartialMatches = 0
	report.UnmatchedRecords = 0
	report.ErrorMessage = errorText(cause)
	report.CompletedAt = &completedAt

	if err := s.reports.UpdateReport(ctx, report); err != nil {
		s.logger.WithError(err).WithField("report_id", report.ID).Error("Failed to mark report as failed")
		if stderrors.Is(err, store.ErrTerminalState) || stderrors.Is(err, store.ErrClaimed) {
			return nil, s.stateError(ctx, report.ID, err)
		}
		return nil, errors.StoreError(errors.CodePersistenceFailed, "update_report", err)
	}

	summary := models.NewReportSummary(report)
	summary.Duration = completedAt.Sub(start)
	s.observeRun(report.Status, summary.Duration)

	return summary, errors.WrapIfNeeded(cause, errors.CategoryReconciliation, errors.CodeProcessingError, "reconciliation failed").
		WithContext("report_id", report.ID)
}

// cancelled releases the claim so the report can be run again
func (s *ValidationService) cancelled(ctx context.Context, report *models.ValidationReport, op *logger.OperationLogger) error {
	if err := s.reports.ReleaseReport(context.WithoutCancel(ctx), report.ID, report.RunID); err != nil {
		s.logger.WithError(err).WithField("report_id", report.ID).Warn("Failed to release report claim")
	}
	err := errors.ReconciliationError(errors.CodeCancelled, "reconciliation", ctx.Err())
	op.Error(err, "Reconciliation cancelled")
	return err
}

// stateError describes a report that another run owns or already finished
func (s *ValidationService) stateError(ctx context.Context, reportID string, cause error) error {
	var status interface{} = "unknown"
	if current, err := s.reports.GetReport(context.WithoutCancel(ctx), reportID); err == nil {
		status = current.Status
	}

	suggestion := "the report was already finished by another run"
	if stderrors.Is(cause, store.ErrClaimed) {
		suggestion = "another run is processing the report; wait for it to finish"
	}
	return errors.ValidationError(errors.CodeInvalidState, "report_status", status, cause).
		WithContext("report_id", reportID).
		WithSuggestion(suggestion)
}

func (s *ValidationService) observeRecord(status models.MatchStatus) {
	if s.metrics != nil {
		s.metrics.RecordsProcessed.WithLabelValues(string(status)).Inc()
	}
}

func (s *ValidationService) observeBookingUpdate(ok bool) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	s.metrics.BookingUpdates.WithLabelValues(outcome).Inc()
}

func (s *ValidationService) observeStoreError(operation string) {
	if s.metrics != nil {
		s.metrics.StoreErrors.WithLabelValues(operation).Inc()
	}
}

func (s *ValidationService) observeRun(status models.ReportStatus, d time.Duration) {
	if s.metrics != nil {
		s.metrics.Runs.WithLabelValues(string(status)).Inc()
		s.metrics.RunDuration.Observe(d.Seconds())
	}
}
