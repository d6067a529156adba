package reconciler

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"booking-validation-service/internal/matcher"
	"booking-validation-service/internal/models"
	"booking-validation-service/internal/parsers"
	"booking-validation-service/internal/store"
	"booking-validation-service/pkg/errors"
	"booking-validation-service/pkg/logger"
	"booking-validation-service/pkg/metrics"

	"github.com/google/uuid"
)

// ValidationService reconciles uploaded manifests against the booking store
type ValidationService struct {
	bookings    store.BookingStore
	reports     store.ReportStore
	engine      *matcher.MatchingEngine
	location    *time.Location
	config      *Config
	parseConfig *parsers.ParseConfig
	metrics     *metrics.Metrics
	logger      logger.Logger
	now         func() time.Time
}

// Option customizes a ValidationService
type Option func(*ValidationService)

// WithMetrics records run metrics on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *ValidationService) { s.metrics = m }
}

// WithLogger replaces the global logger
func WithLogger(l logger.Logger) Option {
	return func(s *ValidationService) {
		if l != nil {
			s.logger = l.WithComponent("validation_service")
		}
	}
}

// WithClock replaces time.Now for report and booking timestamps
func WithClock(now func() time.Time) Option {
	return func(s *ValidationService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithParseConfig sets the ingestion options used for every run
func WithParseConfig(c *parsers.ParseConfig) Option {
	return func(s *ValidationService) {
		if c != nil {
			s.parseConfig = c
		}
	}
}

// NewValidationService creates a validation service. A nil matchingConfig or
// config selects the defaults.
func NewValidationService(
	bookings store.BookingStore,
	reports store.ReportStore,
	matchingConfig *matcher.MatchingConfig,
	config *Config,
	opts ...Option,
) (*ValidationService, error) {
	if bookings == nil || reports == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "store", nil, nil).
			WithSuggestion("provide both a booking store and a report store")
	}
	if matchingConfig == nil {
		matchingConfig = matcher.DefaultMatchingConfig()
	}
	if config == nil {
		config = DefaultConfig()
	}

	if err := matchingConfig.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching", matchingConfig.String(), err)
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciler", fmt.Sprintf("%+v", *config), err)
	}
	location, _ := matchingConfig.Location()

	s := &ValidationService{
		bookings:    bookings,
		reports:     reports,
		engine:      matcher.NewMatchingEngine(bookings, matchingConfig),
		location:    location,
		config:      config,
		parseConfig: parsers.DefaultParseConfig(),
		logger:      logger.GetGlobalLogger().WithComponent("validation_service"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger.WithFields(logger.Fields{
		"workers":  config.Workers,
		"matching": matchingConfig.String(),
	}).Debug("Created validation service")

	return s, nil
}

// CreateReport registers an upload and returns the id of the new report,
// which starts in processing
func (s *ValidationService) CreateReport(ctx context.Context, fileName string, fileType models.FileType, uploadedBy string) (string, error) {
	if !fileType.IsValid() {
		return "", errors.ValidationError(errors.CodeUnsupportedFileType, "file_type", fileType, nil).
			WithSuggestion("use one of: csv, excel")
	}
	if strings.TrimSpace(fileName) == "" {
		return "", errors.ValidationError(errors.CodeMissingField, "file_name", fileName, nil)
	}
	if strings.TrimSpace(uploadedBy) == "" {
		return "", errors.ValidationError(errors.CodeMissingField, "uploaded_by", uploadedBy, nil)
	}

	report := &models.ValidationReport{
		ID:         uuid.NewString(),
		FileName:   fileName,
		FileType:   fileType,
		Status:     models.ReportStatusProcessing,
		UploadedBy: uploadedBy,
		CreatedAt:  s.now(),
	}
	if err := s.reports.CreateReport(ctx, report); err != nil {
		return "", errors.StoreError(errors.CodePersistenceFailed, "create_report", err)
	}

	s.logger.WithFields(logger.Fields{
		"report_id": report.ID,
		"file_name": fileName,
		"file_type": fileType,
	}).Info("Created validation report")
	return report.ID, nil
}

// GetReport returns one report
func (s *ValidationService) GetReport(ctx context.Context, reportID string) (*models.ValidationReport, error) {
	report, err := s.reports.GetReport(ctx, reportID)
	if err != nil {
		return nil, storeLookupError("get_report", reportID, err)
	}
	return report, nil
}

// ListResults returns a report's results ordered by row number
func (s *ValidationService) ListResults(ctx context.Context, reportID string) ([]*models.ValidationResult, error) {
	results, err := s.reports.ListResults(ctx, reportID)
	if err != nil {
		return nil, storeLookupError("list_results", reportID, err)
	}
	return results, nil
}

func storeLookupError(operation, reportID string, err error) error {
	code := errors.CodeStoreUnavailable
	if stderrors.Is(err, store.ErrNotFound) {
		code = errors.CodeNotFound
	}
	return errors.StoreError(code, operation, err).WithContext("report_id", reportID)
}

// errorText includes the cause of a ReconcilerError, whose Error() omits it
func errorText(err error) string {
	if rerr, ok := errors.AsReconcilerError(err); ok && rerr.Cause != nil {
		return rerr.Message + ": " + rerr.Cause.Error()
	}
	return err.Error()
}
