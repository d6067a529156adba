package gormstore

import (
	"context"
	"encoding/json"
	"time"

	"booking-validation-service/internal/models"
	"booking-validation-service/internal/store"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CreateReport inserts a report, assigning an id and creation time when unset
func (s *Store) CreateReport(ctx context.Context, report *models.ValidationReport) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	if err := report.Validate(); err != nil {
		return errors.Wrap(err, "invalid report")
	}
	return errors.Wrap(s.db.WithContext(ctx).Create(toReportRow(report)).Error, "create report")
}

// GetReport loads one report
func (s *Store) GetReport(ctx context.Context, reportID string) (*models.ValidationReport, error) {
	var row ReportRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", reportID).Error; err != nil {
		return nil, notFound(err, "report", reportID)
	}
	return row.toModel(), nil
}

// UpdateReport writes the report only while the stored row is processing
// and owned by report.RunID. The guard is part of the UPDATE so concurrent
// finishers cannot both succeed.
func (s *Store) UpdateReport(ctx context.Context, report *models.ValidationReport) error {
	if err := report.Validate(); err != nil {
		return errors.Wrap(err, "invalid report")
	}
	return s.updateOwned(s.db.WithContext(ctx), report)
}

func (s *Store) updateOwned(tx *gorm.DB, report *models.ValidationReport) error {
	row := toReportRow(report)
	result := tx.Model(&ReportRow{}).
		Where("id = ? AND status = ? AND run_id = ?", report.ID, string(models.ReportStatusProcessing), report.RunID).
		Updates(map[string]interface{}{
			"total_records":     row.TotalRecords,
			"matched_records":   row.MatchedRecords,
			"unmatched_records": row.UnmatchedRecords,
			"partial_matches":   row.PartialMatches,
			"status":            row.Status,
			"error_message":     row.ErrorMessage,
			"completed_at":      row.CompletedAt,
		})
	if result.Error != nil {
		return errors.Wrapf(result.Error, "update report %s", report.ID)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	return ownerError(tx, report.ID)
}

// ClaimReport sets run_id on an unclaimed processing report
func (s *Store) ClaimReport(ctx context.Context, reportID, runID string) (*models.ValidationReport, error) {
	if runID == "" {
		return nil, errors.New("run id cannot be empty")
	}

	db := s.db.WithContext(ctx)
	result := db.Model(&ReportRow{}).
		Where("id = ? AND status = ? AND run_id = ''", reportID, string(models.ReportStatusProcessing)).
		Update("run_id", runID)
	if result.Error != nil {
		return nil, errors.Wrapf(result.Error, "claim report %s", reportID)
	}
	if result.RowsAffected == 0 {
		return nil, ownerError(db, reportID)
	}
	return s.GetReport(ctx, reportID)
}

// ReleaseReport clears run_id when runID holds the claim
func (s *Store) ReleaseReport(ctx context.Context, reportID, runID string) error {
	db := s.db.WithContext(ctx)
	result := db.Model(&ReportRow{}).
		Where("id = ? AND status = ? AND run_id = ?", reportID, string(models.ReportStatusProcessing), runID).
		Update("run_id", "")
	if result.Error != nil {
		return errors.Wrapf(result.Error, "release report %s", reportID)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var row ReportRow
	if err := db.First(&row, "id = ?", reportID).Error; err != nil {
		return notFound(err, "report", reportID)
	}
	if row.RunID == "" {
		return nil
	}
	return ownerError(db, reportID)
}

// CompleteReport updates the report and inserts the results in one
// transaction
func (s *Store) CompleteReport(ctx context.Context, report *models.ValidationReport, results []*models.ValidationResult) error {
	if err := report.Validate(); err != nil {
		return errors.Wrap(err, "invalid report")
	}
	rows, err := resultRows(report.ID, results)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// the guarded update comes first so a competing finisher blocks on the row
		if err := s.updateOwned(tx, report); err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return errors.Wrapf(tx.CreateInBatches(rows, resultBatchSize).Error, "create results for report %s", report.ID)
	})
}

// CreateResult inserts one validation result for a processing report
func (s *Store) CreateResult(ctx context.Context, result *models.ValidationResult) error {
	rows, err := resultRows(result.ReportID, []*models.ValidationResult{result})
	if err != nil {
		return err
	}

	current, err := s.GetReport(ctx, result.ReportID)
	if err != nil {
		return err
	}
	if current.Status.IsTerminal() {
		return errors.Wrapf(store.ErrTerminalState, "report %s is %s", current.ID, current.Status)
	}
	return errors.Wrapf(s.db.WithContext(ctx).Create(rows[0]).Error, "create result for report %s", result.ReportID)
}

// UpdateResultDetails rewrites the match_details column of one result
func (s *Store) UpdateResultDetails(ctx context.Context, resultID string, details models.MatchDetails) error {
	encoded, err := json.Marshal(details)
	if err != nil {
		return errors.Wrap(err, "encode match details")
	}

	result := s.db.WithContext(ctx).
		Model(&ResultRow{}).
		Where("id = ?", resultID).
		Update("match_details", datatypes.JSON(encoded))
	if result.Error != nil {
		return errors.Wrapf(result.Error, "update result %s", resultID)
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(store.ErrNotFound, "result %s", resultID)
	}
	return nil
}

const resultBatchSize = 200

// resultRows fills in ids and creation times and encodes the results
func resultRows(reportID string, results []*models.ValidationResult) ([]*ResultRow, error) {
	rows := make([]*ResultRow, 0, len(results))
	for _, result := range results {
		if result.ReportID != reportID {
			return nil, errors.Errorf("result for report %s stored with report %s", result.ReportID, reportID)
		}
		if result.ID == "" {
			result.ID = uuid.NewString()
		}
		if result.CreatedAt.IsZero() {
			result.CreatedAt = time.Now().UTC()
		}
		if err := result.Validate(); err != nil {
			return nil, errors.Wrap(err, "invalid result")
		}

		row, err := toResultRow(result)
		if err != nil {
			return nil, errors.Wrap(err, "encode match details")
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ownerError explains why a guarded report update matched no row
func ownerError(db *gorm.DB, reportID string) error {
	var row ReportRow
	if err := db.First(&row, "id = ?", reportID).Error; err != nil {
		return notFound(err, "report", reportID)
	}
	if models.ReportStatus(row.Status).IsTerminal() {
		return errors.Wrapf(store.ErrTerminalState, "report %s is %s", reportID, row.Status)
	}
	return errors.Wrapf(store.ErrClaimed, "report %s", reportID)
}

// ListResults returns the report's results ordered by row number
func (s *Store) ListResults(ctx context.Context, reportID string) ([]*models.ValidationResult, error) {
	if _, err := s.GetReport(ctx, reportID); err != nil {
		return nil, err
	}

	var rows []ResultRow
	err := s.db.WithContext(ctx).
		Where("report_id = ?", reportID).
		Order("row_number ASC").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list results of report %s", reportID)
	}

	results := make([]*models.ValidationResult, 0, len(rows))
	for i := range rows {
		result, err := rows[i].toModel()
		if err != nil {
			return nil, errors.Wrapf(err, "decode result %s", rows[i].ID)
		}
		results = append(results, result)
	}
	return results, nil
}

// CountResultsByStatus tallies the report's results in the database
func (s *Store) CountResultsByStatus(ctx context.Context, reportID string) (models.StatusCounts, error) {
	var groups []struct {
		MatchStatus string
		Count       int
	}
	err := s.db.WithContext(ctx).
		Model(&ResultRow{}).
		Select("match_status, COUNT(*) AS count").
		Where("report_id = ?", reportID).
		Group("match_status").
		Scan(&groups).Error
	if err != nil {
		return models.StatusCounts{}, errors.Wrapf(err, "count results of report %s", reportID)
	}

	var counts models.StatusCounts
	for _, g := range groups {
		switch models.MatchStatus(g.MatchStatus) {
		case models.MatchStatusMatched:
			counts.Matched += g.Count
		case models.MatchStatusPartial:
			counts.Partial += g.Count
		default:
			counts.Unmatched += g.Count
		}
	}
	return counts, nil
}
