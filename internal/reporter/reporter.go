// Package reporter renders validation reports and their per-record results.
//
// Supported output formats:
//   - Console: human-readable summary and exception lists for a terminal
//   - JSON: the report, its summary and the selected results
//   - CSV: one line per selected result for spreadsheet review
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(reporter.DefaultReportConfig())
//	err = generator.GenerateReport(&reporter.ReportData{Report: report, Results: results}, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"booking-validation-service/internal/models"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Which results are listed. Counters always cover every result.
	IncludeMatched   bool `json:"include_matched"`
	IncludePartial   bool `json:"include_partial"`
	IncludeUnmatched bool `json:"include_unmatched"`

	// MaxListed caps each console list; zero lists everything
	MaxListed     int `json:"max_listed"`
	TableMaxWidth int `json:"table_max_width"`

	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`

	// SortByAmount lists the largest fares first instead of row order
	SortByAmount bool `json:"sort_by_amount"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:           FormatConsole,
		IncludeMatched:   false,
		IncludePartial:   true,
		IncludeUnmatched: true,
		MaxListed:        10,
		TableMaxWidth:    120,
		CSVDelimiter:     ',',
		CSVHeaders:       true,
		SortByAmount:     false,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.TableMaxWidth < 50 {
		return fmt.Errorf("table max width must be at least 50 characters, got %d", c.TableMaxWidth)
	}
	if c.MaxListed < 0 {
		return fmt.Errorf("max listed cannot be negative, got %d", c.MaxListed)
	}
	switch c.CSVDelimiter {
	case 0, '\r', '\n', '"':
		return fmt.Errorf("invalid csv delimiter %q", c.CSVDelimiter)
	}
	return nil
}

// ReportData is what a report is rendered from. Summary is only present
// right after a run; a stored report is rendered without it.
type ReportData struct {
	Report  *models.ValidationReport
	Results []*models.ValidationResult
	Summary *models.ReportSummary
}

// ReportGenerator generates validation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// GenerateReport renders data to writer in the configured format
func (rg *ReportGenerator) GenerateReport(data *ReportData, writer io.Writer) error {
	if data == nil || data.Report == nil {
		return fmt.Errorf("validation report cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(data, writer)
	case FormatJSON:
		return rg.generateJSONReport(data, writer)
	case FormatCSV:
		return rg.generateCSVReport(data, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// errWriter keeps the first write error so the console printers can ignore
// theirs
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) Write(p []byte) (int, error) {
	if ew.err != nil {
		return 0, ew.err
	}
	n, err := ew.w.Write(p)
	if err != nil {
		ew.err = err
	}
	return n, err
}

func (rg *ReportGenerator) generateConsoleReport(data *ReportData, w io.Writer) error {
	writer := &errWriter{w: w}
	rg.writeConsoleReport(data, writer)
	return writer.err
}

func (rg *ReportGenerator) writeConsoleReport(data *ReportData, writer io.Writer) {
	report := data.Report
	rule := strings.Repeat("=", min(rg.config.TableMaxWidth, 60))

	fmt.Fprintf(writer, "BOOKING VALIDATION REPORT\n%s\n", rule)
	fmt.Fprintf(writer, "Report:      %s\n", report.ID)
	fmt.Fprintf(writer, "File:        %s (%s)\n", report.FileName, report.FileType)
	fmt.Fprintf(writer, "Uploaded By: %s\n", report.UploadedBy)
	fmt.Fprintf(writer, "Status:      %s\n", strings.ToUpper(string(report.Status)))
	fmt.Fprintf(writer, "Created:     %s\n", report.CreatedAt.Format(time.RFC3339))
	if report.CompletedAt != nil {
		fmt.Fprintf(writer, "Completed:   %s\n", report.CompletedAt.Format(time.RFC3339))
	}
	if data.Summary != nil && data.Summary.Duration > 0 {
		fmt.Fprintf(writer, "Duration:    %v\n", data.Summary.Duration.Round(time.Millisecond))
	}
	if report.ErrorMessage != "" {
		fmt.Fprintf(writer, "Error:       %s\n", report.ErrorMessage)
	}
	fmt.Fprintf(writer, "\n")

	if report.Status == models.ReportStatusFailed {
		fmt.Fprintf(writer, "The manifest could not be processed; no results were recorded.\n")
		return
	}

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	rg.printSummaryTable(report, writer)
	if data.Summary != nil && data.Summary.BookingUpdateFailures > 0 {
		fmt.Fprintf(writer, "  Booking update failures: %d\n", data.Summary.BookingUpdateFailures)
	}
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== MATCH BREAKDOWN ===\n")
	rg.printBreakdown(data.Results, writer)
	fmt.Fprintf(writer, "\n")

	sections := []struct {
		title   string
		status  models.MatchStatus
		include bool
	}{
		{"PARTIAL MATCHES", models.MatchStatusPartial, rg.config.IncludePartial},
		{"UNMATCHED RECORDS", models.MatchStatusUnmatched, rg.config.IncludeUnmatched},
		{"MATCHED RECORDS", models.MatchStatusMatched, rg.config.IncludeMatched},
	}
	for _, section := range sections {
		if !section.include {
			continue
		}
		listed := rg.sorted(filterByStatus(data.Results, section.status))
		if len(listed) == 0 {
			continue
		}
		fmt.Fprintf(writer, "=== %s (%d) ===\n", section.title, len(listed))
		rg.printResultList(listed, writer)
		fmt.Fprintf(writer, "\n")
	}

	failures := bookingUpdateFailures(data.Results)
	if len(failures) > 0 {
		fmt.Fprintf(writer, "=== BOOKING UPDATE FAILURES (%d) ===\n", len(failures))
		for _, r := range failures {
			fmt.Fprintf(writer, "  Row %d, booking %s: %s\n", r.RowNumber, deref(r.BookingID), r.MatchDetails.BookingUpdateError)
		}
	}
}

type jsonReport struct {
	Report  *models.ValidationReport   `json:"report"`
	Summary *models.ReportSummary      `json:"summary,omitempty"`
	Results []*models.ValidationResult `json:"results"`
}

func (rg *ReportGenerator) generateJSONReport(data *ReportData, writer io.Writer) error {
	out := jsonReport{
		Report:  data.Report,
		Summary: data.Summary,
		Results: rg.sorted(rg.selectResults(data.Results)),
	}
	if out.Results == nil {
		out.Results = []*models.ValidationResult{}
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

var csvHeaders = []string{
	"Row",
	"Status",
	"Score",
	"Match_Type",
	"Booking_ID",
	"Airline_Reference",
	"Ticket_Number",
	"Passenger_Name",
	"Flight_Number",
	"Flight_Date",
	"Amount",
	"Reason",
	"Notes",
}

func (rg *ReportGenerator) generateCSVReport(data *ReportData, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(csvHeaders); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, r := range rg.sorted(rg.selectResults(data.Results)) {
		score := ""
		if r.MatchScore != nil {
			score = strconv.Itoa(*r.MatchScore)
		}
		flightDate := ""
		if r.FlightDate != nil {
			flightDate = r.FlightDate.Format("2006-01-02")
		}

		record := []string{
			strconv.Itoa(r.RowNumber),
			string(r.MatchStatus),
			score,
			r.MatchDetails.MatchType,
			deref(r.BookingID),
			r.AirlineReference,
			deref(r.TicketNumber),
			r.PassengerName,
			r.FlightNumber,
			flightDate,
			r.Amount.StringFixed(2),
			r.MatchDetails.Reason,
			notes(r),
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write result row %d: %w", r.RowNumber, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func (rg *ReportGenerator) printSummaryTable(report *models.ValidationReport, writer io.Writer) {
	fmt.Fprintf(writer, "Records:\n")
	fmt.Fprintf(writer, "  Total:     %d\n", report.TotalRecords)
	fmt.Fprintf(writer, "  Matched:   %d (%.1f%%)\n",
		report.MatchedRecords, rg.calculatePercentage(report.MatchedRecords, report.TotalRecords))
	fmt.Fprintf(writer, "  Partial:   %d (%.1f%%)\n",
		report.PartialMatches, rg.calculatePercentage(report.PartialMatches, report.TotalRecords))
	fmt.Fprintf(writer, "  Unmatched: %d (%.1f%%)\n",
		report.UnmatchedRecords, rg.calculatePercentage(report.UnmatchedRecords, report.TotalRecords))
}

// printBreakdown counts results by how they were decided
func (rg *ReportGenerator) printBreakdown(results []*models.ValidationResult, writer io.Writer) {
	counts := make(map[string]int)
	var keys []string
	for _, r := range results {
		key := r.MatchDetails.MatchType
		if key == "" {
			key = r.MatchDetails.Reason
		}
		if key == "" {
			key = "unknown"
		}
		key = string(r.MatchStatus) + " / " + key
		if counts[key] == 0 {
			keys = append(keys, key)
		}
		counts[key]++
	}
	sort.Strings(keys)

	if len(keys) == 0 {
		fmt.Fprintf(writer, "No results recorded\n")
		return
	}
	for _, key := range keys {
		fmt.Fprintf(writer, "%-40s %d (%.1f%%)\n", key+":", counts[key], rg.calculatePercentage(counts[key], len(results)))
	}
}

func (rg *ReportGenerator) printResultList(results []*models.ValidationResult, writer io.Writer) {
	limit := rg.config.MaxListed
	for i, r := range results {
		if limit > 0 && i >= limit {
			fmt.Fprintf(writer, "  ... and %d more\n", len(results)-limit)
			break
		}
		line := fmt.Sprintf("  %d. Row %d: %s, Flight: %s, Ref: %s, Score: %s",
			i+1,
			r.RowNumber,
			orDash(r.PassengerName),
			orDash(r.FlightNumber),
			orDash(r.AirlineReference),
			scoreText(r.MatchScore))
		if r.BookingID != nil {
			line += ", Booking: " + *r.BookingID
		}
		if n := notes(r); n != "" {
			line += " (" + n + ")"
		}
		fmt.Fprintln(writer, truncate(line, rg.config.TableMaxWidth))
	}
}

func (rg *ReportGenerator) calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

// selectResults keeps the statuses the configuration includes
func (rg *ReportGenerator) selectResults(results []*models.ValidationResult) []*models.ValidationResult {
	var out []*models.ValidationResult
	for _, r := range results {
		switch r.MatchStatus {
		case models.MatchStatusMatched:
			if !rg.config.IncludeMatched {
				continue
			}
		case models.MatchStatusPartial:
			if !rg.config.IncludePartial {
				continue
			}
		default:
			if !rg.config.IncludeUnmatched {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

// sorted returns results in row order, or by descending amount when
// SortByAmount is set. The input is not modified.
func (rg *ReportGenerator) sorted(results []*models.ValidationResult) []*models.ValidationResult {
	if results == nil {
		return nil
	}
	out := make([]*models.ValidationResult, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool {
		if rg.config.SortByAmount && !out[i].Amount.Equal(out[j].Amount) {
			return out[i].Amount.GreaterThan(out[j].Amount)
		}
		return out[i].RowNumber < out[j].RowNumber
	})
	return out
}

func filterByStatus(results []*models.ValidationResult, status models.MatchStatus) []*models.ValidationResult {
	var out []*models.ValidationResult
	for _, r := range results {
		if r.MatchStatus == status {
			out = append(out, r)
		}
	}
	return out
}

func bookingUpdateFailures(results []*models.ValidationResult) []*models.ValidationResult {
	var out []*models.ValidationResult
	for _, r := range results {
		if r.MatchDetails.BookingUpdateError != "" {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowNumber < out[j].RowNumber })
	return out
}

func notes(r *models.ValidationResult) string {
	var parts []string
	if r.MatchDetails.MatchedPassenger != "" {
		parts = append(parts, "matched passenger "+r.MatchDetails.MatchedPassenger)
	}
	if r.MatchDetails.LookupError != "" {
		parts = append(parts, "lookup failed: "+r.MatchDetails.LookupError)
	}
	if r.MatchDetails.BookingUpdateError != "" {
		parts = append(parts, "booking update failed: "+r.MatchDetails.BookingUpdateError)
	}
	return strings.Join(parts, "; ")
}

func scoreText(score *int) string {
	if score == nil {
		return "-"
	}
	return strconv.Itoa(*score)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if width <= 3 || len(runes) <= width {
		return s
	}
	return string(runes[:width-3]) + "..."
}
