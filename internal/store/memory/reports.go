package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"booking-validation-service/internal/models"
	"booking-validation-service/internal/store"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ReportStore keeps validation reports and results in memory
type ReportStore struct {
	mu      sync.RWMutex
	reports map[string]*models.ValidationReport
	results map[string][]*models.ValidationResult
	now     func() time.Time
}

var _ store.ReportStore = (*ReportStore)(nil)

// NewReportStore creates an empty report store
func NewReportStore() *ReportStore {
	return &ReportStore{
		reports: make(map[string]*models.ValidationReport),
		results: make(map[string][]*models.ValidationResult),
		now:     time.Now,
	}
}

// CreateReport stores a new report, assigning an id and creation time when
// they are unset
func (s *ReportStore) CreateReport(ctx context.Context, report *models.ValidationReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = s.now()
	}
	if err := report.Validate(); err != nil {
		return errors.Wrap(err, "invalid report")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reports[report.ID]; exists {
		return errors.Errorf("report %s already exists", report.ID)
	}
	c := *report
	s.reports[report.ID] = &c
	return nil
}

// GetReport returns a copy of the stored report
func (s *ReportStore) GetReport(ctx context.Context, reportID string) (*models.ValidationReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reports[reportID]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "report %s", reportID)
	}
	c := *r
	return &c, nil
}

// UpdateReport replaces a report that is still processing
func (s *ReportStore) UpdateReport(ctx context.Context, report *models.ValidationReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := report.Validate(); err != nil {
		return errors.Wrap(err, "invalid report")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOwner(report.ID, report.RunID); err != nil {
		return err
	}
	c := *report
	s.reports[report.ID] = &c
	return nil
}

// ClaimReport marks an unclaimed processing report as owned by runID
func (s *ReportStore) ClaimReport(ctx context.Context, reportID, runID string) (*models.ValidationReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if runID == "" {
		return nil, errors.New("run id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOwner(reportID, ""); err != nil {
		return nil, err
	}
	r := s.reports[reportID]
	r.RunID = runID
	c := *r
	return &c, nil
}

// ReleaseReport clears the claim held by runID
func (s *ReportStore) ReleaseReport(ctx context.Context, reportID, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reports[reportID]
	if !ok {
		return errors.Wrapf(store.ErrNotFound, "report %s", reportID)
	}
	if r.RunID == "" {
		return nil
	}
	if err := s.checkOwner(reportID, runID); err != nil {
		return err
	}
	r.RunID = ""
	return nil
}

// CompleteReport stores the results and the report under one lock
func (s *ReportStore) CompleteReport(ctx context.Context, report *models.ValidationReport, results []*models.ValidationResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := report.Validate(); err != nil {
		return errors.Wrap(err, "invalid report")
	}
	stored, err := s.prepareResults(report.ID, results)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOwner(report.ID, report.RunID); err != nil {
		return err
	}
	c := *report
	s.reports[report.ID] = &c
	s.results[report.ID] = append(s.results[report.ID], stored...)
	return nil
}

// CreateResult appends a result to a report that is still processing
func (s *ReportStore) CreateResult(ctx context.Context, result *models.ValidationResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored, err := s.prepareResults(result.ReportID, []*models.ValidationResult{result})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reports[result.ReportID]
	if !ok {
		return errors.Wrapf(store.ErrNotFound, "report %s", result.ReportID)
	}
	if r.Status.IsTerminal() {
		return errors.Wrapf(store.ErrTerminalState, "report %s is %s", r.ID, r.Status)
	}
	s.results[result.ReportID] = append(s.results[result.ReportID], stored...)
	return nil
}

// UpdateResultDetails replaces the details of one result
func (s *ReportStore) UpdateResultDetails(ctx context.Context, resultID string, details models.MatchDetails) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, results := range s.results {
		for _, r := range results {
			if r.ID == resultID {
				r.MatchDetails = details
				return nil
			}
		}
	}
	return errors.Wrapf(store.ErrNotFound, "result %s", resultID)
}

// prepareResults fills in ids and creation times and returns copies to store
func (s *ReportStore) prepareResults(reportID string, results []*models.ValidationResult) ([]*models.ValidationResult, error) {
	stored := make([]*models.ValidationResult, 0, len(results))
	for _, result := range results {
		if result.ReportID != reportID {
			return nil, errors.Errorf("result for report %s stored with report %s", result.ReportID, reportID)
		}
		if result.ID == "" {
			result.ID = uuid.NewString()
		}
		if result.CreatedAt.IsZero() {
			result.CreatedAt = s.now()
		}
		if err := result.Validate(); err != nil {
			return nil, errors.Wrap(err, "invalid result")
		}
		c := *result
		stored = append(stored, &c)
	}
	return stored, nil
}

// checkOwner fails unless the report is processing and claimed by runID.
// An empty runID matches an unclaimed report. Callers hold the lock.
func (s *ReportStore) checkOwner(reportID, runID string) error {
	r, ok := s.reports[reportID]
	if !ok {
		return errors.Wrapf(store.ErrNotFound, "report %s", reportID)
	}
	if r.Status.IsTerminal() {
		return errors.Wrapf(store.ErrTerminalState, "report %s is %s", reportID, r.Status)
	}
	if r.RunID != runID {
		return errors.Wrapf(store.ErrClaimed, "report %s", reportID)
	}
	return nil
}

// ListResults returns copies of the report's results ordered by row number
func (s *ReportStore) ListResults(ctx context.Context, reportID string) ([]*models.ValidationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.reports[reportID]; !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "report %s", reportID)
	}
	stored := s.results[reportID]
	results := make([]*models.ValidationResult, 0, len(stored))
	for _, r := range stored {
		c := *r
		results = append(results, &c)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RowNumber < results[j].RowNumber
	})
	return results, nil
}

// CountResultsByStatus tallies the report's results
func (s *ReportStore) CountResultsByStatus(ctx context.Context, reportID string) (models.StatusCounts, error) {
	if err := ctx.Err(); err != nil {
		return models.StatusCounts{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.reports[reportID]; !ok {
		return models.StatusCounts{}, errors.Wrapf(store.ErrNotFound, "report %s", reportID)
	}
	return models.TallyResults(s.results[reportID]), nil
}
