package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"booking-validation-service/cmd/validator/config"
	"booking-validation-service/internal/mapping"
	"booking-validation-service/internal/models"
	"booking-validation-service/internal/parsers"
	"booking-validation-service/internal/reconciler"
	"booking-validation-service/internal/reporter"
	"booking-validation-service/pkg/errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the validate command
var (
	manifestFile   string
	fileType       string
	mappingFile    string
	uploadedBy     string
	workers        int
	bestCandidate  bool
	skipBlankNames bool
	maxCandidates  int
	timezone       string
	sheet          string
	delimiter      string
	outputFormat   string
	outputFile     string
	showProgress   bool
	includeMatched bool
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate an airline manifest against the booking records",
	Long: `Validate ingests one manifest file, matches every row against the
booking store and prints the resulting report.

Rows are matched in two stages: an exact airline reference or booking
reference first, then flight number, departure day and passenger name
similarity (80 or more is a match, 50 to 79 a partial match).

Columns are read by their canonical names (pnr, bookingRef, ticketNumber,
passengerName, firstName, lastName, flightNumber, flightDate, amount) unless a
mapping file names the manifest's own headers.

Examples:
  # CSV manifest against bookings loaded into memory
  validator validate --file manifest.csv --user auditor --bookings bookings.json

  # Workbook with vendor headers, JSON report to a file
  validator validate --file manifest.xlsx --mapping thai-airways.yaml --user auditor \
    --store postgres --dsn "$DATABASE_URL" --output-format json --output-file report.json

  # Pick the best scoring booking instead of the first one above the threshold
  validator validate --file manifest.csv --user auditor --best-candidate --workers 8`,

	PreRunE: validateValidateFlags,
	RunE:    runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	flags := validateCmd.Flags()
	flags.StringVar(&manifestFile, "file", "", "path to the manifest, CSV or XLSX (required)")
	flags.StringVarP(&fileType, "type", "t", "", "file type: csv, excel (default: detect from name and content)")
	flags.StringVarP(&mappingFile, "mapping", "m", "", "JSON or YAML column mapping file")
	flags.StringVarP(&uploadedBy, "user", "u", "", "user recorded as uploader and validator (required)")
	flags.IntVarP(&workers, "workers", "w", 4, "records matched concurrently")
	flags.BoolVar(&bestCandidate, "best-candidate", false, "choose the highest scoring flight candidate instead of the first above the threshold")
	flags.BoolVar(&skipBlankNames, "skip-blank-names", false, "never match a row without a passenger name on name similarity")
	flags.IntVar(&maxCandidates, "max-candidates", 0, "maximum flight candidates scored per row, 0 for no limit")
	flags.StringVar(&timezone, "timezone", "UTC", "IANA timezone manifest dates are read in")
	flags.StringVar(&sheet, "sheet", "", "workbook sheet to read (default: first sheet)")
	flags.StringVar(&delimiter, "delimiter", "", "CSV delimiter (default: detect)")
	flags.StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	flags.StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	flags.BoolVar(&showProgress, "progress", false, "log progress while matching")
	flags.BoolVar(&includeMatched, "include-matched", false, "list matched rows as well as exceptions")

	_ = validateCmd.MarkFlagRequired("file")

	for _, name := range []string{"user", "workers", "best-candidate", "skip-blank-names", "max-candidates", "timezone", "output-format", "progress"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func validateValidateFlags(cmd *cobra.Command, args []string) error {
	// viper lets the config file and environment supply these
	uploadedBy = viper.GetString("user")
	workers = viper.GetInt("workers")
	bestCandidate = viper.GetBool("best-candidate")
	skipBlankNames = viper.GetBool("skip-blank-names")
	maxCandidates = viper.GetInt("max-candidates")
	timezone = viper.GetString("timezone")
	outputFormat = viper.GetString("output-format")
	showProgress = viper.GetBool("progress")

	if err := validateFileExists(manifestFile, "manifest file"); err != nil {
		return err
	}
	if mappingFile != "" {
		if err := validateFileExists(mappingFile, "mapping file"); err != nil {
			return err
		}
	}
	if uploadedBy == "" {
		return errors.ValidationError(errors.CodeMissingField, "user", "", nil).
			WithSuggestion("pass --user or set VALIDATOR_USER")
	}
	if fileType != "" {
		if _, err := parsers.ParseFileType(fileType); err != nil {
			return err
		}
	}
	if workers <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "workers", workers, nil).
			WithSuggestion("use a positive number of workers")
	}
	if maxCandidates < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "max-candidates", maxCandidates, nil)
	}
	if err := validateOutputFormat(outputFormat); err != nil {
		return err
	}
	return validateOutputFile(outputFile)
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	matchingConfig := config.CreateMatchingConfig(bestCandidate, maxCandidates, timezone)
	matchingConfig.SkipBlankNames = skipBlankNames
	reconcilerConfig := config.CreateReconcilerConfig(workers, showProgress)
	reportConfig := config.CreateReportConfig(outputFormat, includeMatched)
	if err := config.ValidateConfig(matchingConfig, reconcilerConfig, reportConfig); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "validate", nil, err)
	}
	parseConfig, err := config.CreateParseConfig(delimiter, sheet)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "delimiter", delimiter, err)
	}

	data, err := readManifest(manifestFile)
	if err != nil {
		return err
	}
	kind := parsers.DetectFileType(manifestFile, data)
	if fileType != "" {
		kind, _ = parsers.ParseFileType(fileType)
	}

	var columns mapping.ColumnMapping
	if mappingFile != "" {
		if columns, err = mapping.LoadMapping(mappingFile); err != nil {
			return err
		}
	}

	app, err := openApplication()
	if err != nil {
		return err
	}
	defer app.Close()

	service, err := reconciler.NewValidationService(app.bookings, app.reports, matchingConfig, reconcilerConfig,
		reconciler.WithMetrics(app.metrics),
		reconciler.WithLogger(app.logger),
		reconciler.WithParseConfig(parseConfig),
	)
	if err != nil {
		return err
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Validating %s (%s) as %s\n", manifestFile, kind, uploadedBy)
		fmt.Fprintf(os.Stderr, "Store: %s, workers: %d, matching: %s\n", app.storeKind, workers, matchingConfig)
	}

	reportID, err := service.CreateReport(ctx, filepath.Base(manifestFile), kind, uploadedBy)
	if err != nil {
		return err
	}

	summary, runErr := service.RunReconciliation(ctx, reportID, data, kind, columns)
	if summary == nil {
		return runErr
	}

	// render even a failed report so the user sees its error message
	renderCtx := context.WithoutCancel(ctx)
	report, err := service.GetReport(renderCtx, reportID)
	if err != nil {
		return err
	}
	results, err := service.ListResults(renderCtx, reportID)
	if err != nil {
		return err
	}
	if err := renderReport(report, results, summary, reportConfig, outputFile); err != nil {
		return err
	}

	if viper.GetBool("verbose") && runErr == nil {
		fmt.Fprintf(os.Stderr, "\nValidation completed: %d rows, %d matched, %d partial, %d unmatched in %v\n",
			summary.TotalRecords, summary.MatchedRecords, summary.PartialMatches, summary.UnmatchedRecords, summary.Duration)
	}
	return runErr
}

func readManifest(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		return data, nil
	case os.IsNotExist(err):
		return nil, errors.FileError(errors.CodeFileNotFound, path, err)
	case os.IsPermission(err):
		return nil, errors.FileError(errors.CodeFilePermission, path, err)
	default:
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}
}

// renderReport writes the report to outputPath, or stdout when it is empty
func renderReport(
	report *models.ValidationReport,
	results []*models.ValidationResult,
	summary *models.ReportSummary,
	reportConfig *reporter.ReportConfig,
	outputPath string,
) error {
	generator, err := reporter.NewSafeReportGenerator(reportConfig, nil)
	if err != nil {
		return err
	}

	output := os.Stdout
	if outputPath != "" {
		output, err = os.Create(outputPath)
		if err != nil {
			return errors.FileError(errors.CodeFilePermission, outputPath, err).
				WithSuggestion("check that the output directory is writable")
		}
		defer output.Close()
	}

	return generator.GenerateReportSafely(&reporter.ReportData{
		Report:  report,
		Results: results,
		Summary: summary,
	}, output)
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return errors.ValidationError(errors.CodeMissingField, description, "", nil)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err).WithContext("description", description)
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err).WithContext("description", description)
	}
	if info.IsDir() {
		return errors.FileError(errors.CodeUnsupportedFileType, filePath, nil).
			WithContext("description", description).
			WithSuggestion(fmt.Sprintf("%s is a directory, expected a file", filePath))
	}

	file, err := os.Open(filePath)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err).WithContext("description", description)
	}
	return file.Close()
}

func validateOutputFormat(format string) error {
	if !reporter.OutputFormat(format).IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output-format", format, nil).
			WithSuggestion("valid formats: console, json, csv")
	}
	return nil
}

func validateOutputFile(path string) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, dir, err).
			WithSuggestion("create the output directory first")
	}
	return nil
}
