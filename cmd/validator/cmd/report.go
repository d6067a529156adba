package cmd

import (
	stderrors "errors"

	"booking-validation-service/cmd/validator/config"
	"booking-validation-service/internal/models"
	"booking-validation-service/internal/store"
	"booking-validation-service/pkg/errors"

	"github.com/spf13/cobra"
)

var (
	reportID             string
	reportOutputFormat   string
	reportOutputFile     string
	reportIncludeMatched bool
)

// reportCmd prints a stored validation report
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a stored validation report",
	Long: `Report loads a validation report and its per-row results from a
persistent store and renders them in the chosen format.

Examples:
  validator report --id 3f0c... --store sqlite --dsn validation.db
  validator report --id 3f0c... --store postgres --dsn "$DATABASE_URL" --output-format csv --output-file results.csv`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	flags := reportCmd.Flags()
	flags.StringVar(&reportID, "id", "", "report id printed by validate (required)")
	flags.StringVarP(&reportOutputFormat, "output-format", "f", "console", "output format: console, json, csv")
	flags.StringVarP(&reportOutputFile, "output-file", "o", "", "output file path (default: stdout)")
	flags.BoolVar(&reportIncludeMatched, "include-matched", false, "list matched rows as well as exceptions")

	_ = reportCmd.MarkFlagRequired("id")
}

func runReport(cmd *cobra.Command, args []string) error {
	if err := validateOutputFormat(reportOutputFormat); err != nil {
		return err
	}
	if err := validateOutputFile(reportOutputFile); err != nil {
		return err
	}

	app, err := openApplication()
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.requireDatabase("report"); err != nil {
		return err
	}

	ctx := cmd.Context()
	report, err := app.reports.GetReport(ctx, reportID)
	if err != nil {
		return reportLookupError(reportID, err)
	}
	results, err := app.reports.ListResults(ctx, reportID)
	if err != nil {
		return reportLookupError(reportID, err)
	}

	return renderReport(report, results, storedSummary(report, results),
		config.CreateReportConfig(reportOutputFormat, reportIncludeMatched), reportOutputFile)
}

// storedSummary rebuilds the run summary from a persisted report
func storedSummary(report *models.ValidationReport, results []*models.ValidationResult) *models.ReportSummary {
	summary := models.NewReportSummary(report)
	for _, r := range results {
		if r.MatchDetails.BookingUpdateError != "" {
			summary.BookingUpdateFailures++
		}
	}
	if report.CompletedAt != nil {
		summary.Duration = report.CompletedAt.Sub(report.CreatedAt)
	}
	return summary
}

func reportLookupError(id string, err error) error {
	if stderrors.Is(err, store.ErrNotFound) {
		return errors.StoreError(errors.CodeNotFound, "get_report", err).
			WithContext("report_id", id).
			WithSuggestion("check the id printed by 'validator validate' and the --dsn it used")
	}
	return errors.StoreError(errors.CodeStoreUnavailable, "get_report", err).WithContext("report_id", id)
}
