package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FileType is the declared kind of an uploaded manifest
type FileType string

const (
	// FileTypeCSV is delimited text with a header row
	FileTypeCSV FileType = "csv"
	// FileTypeExcel is a spreadsheet workbook; only the first sheet is read
	FileTypeExcel FileType = "excel"
)

// String returns the string representation of FileType
func (f FileType) String() string {
	return string(f)
}

// IsValid checks if the file type is supported
func (f FileType) IsValid() bool {
	return f == FileTypeCSV || f == FileTypeExcel
}

// ReportStatus is the lifecycle state of a ValidationReport
type ReportStatus string

const (
	ReportStatusProcessing ReportStatus = "processing"
	ReportStatusCompleted  ReportStatus = "completed"
	ReportStatusFailed     ReportStatus = "failed"
)

// String returns the string representation of ReportStatus
func (s ReportStatus) String() string {
	return string(s)
}

// IsValid checks if the report status is known
func (s ReportStatus) IsValid() bool {
	switch s {
	case ReportStatusProcessing, ReportStatusCompleted, ReportStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition may leave this state
func (s ReportStatus) IsTerminal() bool {
	return s == ReportStatusCompleted || s == ReportStatusFailed
}

// MatchStatus is the verdict for one manifest record
type MatchStatus string

const (
	MatchStatusMatched   MatchStatus = "matched"
	MatchStatusPartial   MatchStatus = "partial"
	MatchStatusUnmatched MatchStatus = "unmatched"
)

// String returns the string representation of MatchStatus
func (s MatchStatus) String() string {
	return string(s)
}

// IsValid checks if the match status is known
func (s MatchStatus) IsValid() bool {
	switch s {
	case MatchStatusMatched, MatchStatusPartial, MatchStatusUnmatched:
		return true
	default:
		return false
	}
}

// CanonicalRecord is one manifest row after column mapping.
// An empty AirlineReference means no reference was supplied.
type CanonicalRecord struct {
	RowNumber        int
	AirlineReference string
	TicketNumber     *string
	PassengerName    string
	FlightNumber     string
	FlightDate       *time.Time
	Amount           decimal.Decimal
}

// HasFlightWindow reports whether the record carries enough data for a
// flight/date candidate search
func (r *CanonicalRecord) HasFlightWindow() bool {
	return strings.TrimSpace(r.FlightNumber) != "" && r.FlightDate != nil
}

// String returns a string representation of the CanonicalRecord
func (r *CanonicalRecord) String() string {
	date := "-"
	if r.FlightDate != nil {
		date = r.FlightDate.Format("2006-01-02")
	}
	return fmt.Sprintf("CanonicalRecord{Row: %d, Ref: %q, Passenger: %q, Flight: %s, Date: %s, Amount: %s}",
		r.RowNumber, r.AirlineReference, r.PassengerName, r.FlightNumber, date, r.Amount.String())
}

// DayBounds returns the calendar day containing t in t's location as the
// half-open window [start, end). A stored departure at 23:59:59.999 falls
// inside it.
func DayBounds(t time.Time) (start, end time.Time) {
	y, m, d := t.Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

// Passenger is one traveller on a booking
type Passenger struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// FullName returns "First Last" trimmed
func (p Passenger) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

// Booking is the agency-side booking as seen by the validation engine
type Booking struct {
	ID            string      `json:"id"`
	BookingRef    string      `json:"bookingRef"`
	AirlinePNR    string      `json:"airlinePNR,omitempty"`
	FlightNumber  string      `json:"flightNumber"`
	DepartureDate time.Time   `json:"departureDate"`
	Passengers    []Passenger `json:"passengers"`
	TicketNumber  string      `json:"ticketNumber,omitempty"`
	IsValidated   bool        `json:"isValidated"`
	ValidatedAt   *time.Time  `json:"validatedAt,omitempty"`
	ValidatedBy   string      `json:"validatedBy,omitempty"`
}

// PassengerNames returns the full names of every passenger
func (b *Booking) PassengerNames() []string {
	names := make([]string, 0, len(b.Passengers))
	for _, p := range b.Passengers {
		names = append(names, p.FullName())
	}
	return names
}

// Validate performs basic validation on the Booking
func (b *Booking) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return fmt.Errorf("booking ID cannot be empty")
	}
	if strings.TrimSpace(b.BookingRef) == "" {
		return fmt.Errorf("booking reference cannot be empty")
	}
	if b.DepartureDate.IsZero() {
		return fmt.Errorf("departure date cannot be zero")
	}
	return nil
}

// String returns a string representation of the Booking
func (b *Booking) String() string {
	return fmt.Sprintf("Booking{ID: %s, Ref: %s, PNR: %s, Flight: %s, Departure: %s, Passengers: %d}",
		b.ID, b.BookingRef, b.AirlinePNR, b.FlightNumber, b.DepartureDate.Format(time.RFC3339), len(b.Passengers))
}

// BookingValidation is the write applied to a booking on a confirmed match
type BookingValidation struct {
	AirlinePNR   string
	TicketNumber string
	IsValidated  bool
	ValidatedAt  time.Time
	ValidatedBy  string
}

// ValidationReport is the persistent record of one uploaded manifest
type ValidationReport struct {
	ID               string       `json:"id"`
	FileName         string       `json:"fileName"`
	FileType         FileType     `json:"fileType"`
	TotalRecords     int          `json:"totalRecords"`
	MatchedRecords   int          `json:"matchedRecords"`
	UnmatchedRecords int          `json:"unmatchedRecords"`
	PartialMatches   int          `json:"partialMatches"`
	Status           ReportStatus `json:"status"`
	UploadedBy       string       `json:"uploadedBy"`
	ErrorMessage     string       `json:"errorMessage,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
	CompletedAt      *time.Time   `json:"completedAt,omitempty"`

	// RunID identifies the run that claimed the report; empty until claimed
	RunID string `json:"runId,omitempty"`
}

// Validate performs basic validation on the ValidationReport
func (r *ValidationReport) Validate() error {
	if strings.TrimSpace(r.FileName) == "" {
		return fmt.Errorf("file name cannot be empty")
	}
	if !r.FileType.IsValid() {
		return fmt.Errorf("invalid file type: %s", r.FileType)
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("invalid report status: %s", r.Status)
	}
	if strings.TrimSpace(r.UploadedBy) == "" {
		return fmt.Errorf("uploading user cannot be empty")
	}
	if r.MatchedRecords+r.UnmatchedRecords+r.PartialMatches != r.TotalRecords {
		return fmt.Errorf("report counters do not add up: %d+%d+%d != %d",
			r.MatchedRecords, r.UnmatchedRecords, r.PartialMatches, r.TotalRecords)
	}
	return nil
}

// String returns a string representation of the ValidationReport
func (r *ValidationReport) String() string {
	return fmt.Sprintf("ValidationReport{ID: %s, File: %s, Status: %s, Total: %d, Matched: %d, Partial: %d, Unmatched: %d}",
		r.ID, r.FileName, r.Status, r.TotalRecords, r.MatchedRecords, r.PartialMatches, r.UnmatchedRecords)
}

// MatchDetails explains which stage produced a verdict
type MatchDetails struct {
	MatchType          string `json:"matchType,omitempty"`
	Reason             string `json:"reason,omitempty"`
	PassengerScore     *int   `json:"passengerScore,omitempty"`
	MatchedPassenger   string `json:"matchedPassenger,omitempty"`
	CandidateCount     int    `json:"candidateCount,omitempty"`
	LookupError        string `json:"lookupError,omitempty"`
	BookingUpdateError string `json:"bookingUpdateError,omitempty"`
}

// ValidationResult is the persisted verdict for one manifest record
type ValidationResult struct {
	ID               string          `json:"id"`
	ReportID         string          `json:"reportId"`
	BookingID        *string         `json:"bookingId"`
	RowNumber        int             `json:"rowNumber"`
	AirlineReference string          `json:"airlineReference"`
	TicketNumber     *string         `json:"ticketNumber"`
	PassengerName    string          `json:"passengerName"`
	FlightNumber     string          `json:"flightNumber"`
	FlightDate       *time.Time      `json:"flightDate"`
	Amount           decimal.Decimal `json:"amount"`
	MatchStatus      MatchStatus     `json:"matchStatus"`
	MatchScore       *int            `json:"matchScore"`
	MatchDetails     MatchDetails    `json:"matchDetails"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// NewValidationResult copies the record fields into a result for reportID
func NewValidationResult(reportID string, record CanonicalRecord) *ValidationResult {
	return &ValidationResult{
		ReportID:         reportID,
		RowNumber:        record.RowNumber,
		AirlineReference: record.AirlineReference,
		TicketNumber:     record.TicketNumber,
		PassengerName:    record.PassengerName,
		FlightNumber:     record.FlightNumber,
		FlightDate:       record.FlightDate,
		Amount:           record.Amount,
	}
}

// Validate performs basic validation on the ValidationResult
func (r *ValidationResult) Validate() error {
	if strings.TrimSpace(r.ReportID) == "" {
		return fmt.Errorf("report ID cannot be empty")
	}
	if !r.MatchStatus.IsValid() {
		return fmt.Errorf("invalid match status: %s", r.MatchStatus)
	}
	if r.MatchScore != nil && (*r.MatchScore < 0 || *r.MatchScore > 100) {
		return fmt.Errorf("match score out of range: %d", *r.MatchScore)
	}
	if r.MatchStatus == MatchStatusMatched && r.BookingID == nil {
		return fmt.Errorf("matched result must reference a booking")
	}
	return nil
}

// String returns a string representation of the ValidationResult
func (r *ValidationResult) String() string {
	score := "-"
	if r.MatchScore != nil {
		score = fmt.Sprintf("%d", *r.MatchScore)
	}
	booking := "-"
	if r.BookingID != nil {
		booking = *r.BookingID
	}
	return fmt.Sprintf("ValidationResult{Row: %d, Ref: %q, Status: %s, Score: %s, Booking: %s}",
		r.RowNumber, r.AirlineReference, r.MatchStatus, score, booking)
}

// StatusCounts tallies results by match status
type StatusCounts struct {
	Matched   int `json:"matched"`
	Partial   int `json:"partial"`
	Unmatched int `json:"unmatched"`
}

// Total returns the sum of all counters
func (c StatusCounts) Total() int {
	return c.Matched + c.Partial + c.Unmatched
}

// Add counts one result with the given status
func (c *StatusCounts) Add(status MatchStatus) {
	switch status {
	case MatchStatusMatched:
		c.Matched++
	case MatchStatusPartial:
		c.Partial++
	default:
		c.Unmatched++
	}
}

// TallyResults counts results by match status
func TallyResults(results []*ValidationResult) StatusCounts {
	var counts StatusCounts
	for _, r := range results {
		counts.Add(r.MatchStatus)
	}
	return counts
}

// ReportSummary is returned to the caller of a reconciliation run
type ReportSummary struct {
	ReportID              string        `json:"reportId"`
	FileName              string        `json:"fileName"`
	Status                ReportStatus  `json:"status"`
	TotalRecords          int           `json:"totalRecords"`
	MatchedRecords        int           `json:"matchedRecords"`
	PartialMatches        int           `json:"partialMatches"`
	UnmatchedRecords      int           `json:"unmatchedRecords"`
	BookingUpdateFailures int           `json:"bookingUpdateFailures"`
	Duration              time.Duration `json:"duration"`
}

// NewReportSummary builds a summary from a report
func NewReportSummary(report *ValidationReport) *ReportSummary {
	return &ReportSummary{
		ReportID:         report.ID,
		FileName:         report.FileName,
		Status:           report.Status,
		TotalRecords:     report.TotalRecords,
		MatchedRecords:   report.MatchedRecords,
		PartialMatches:   report.PartialMatches,
		UnmatchedRecords: report.UnmatchedRecords,
	}
}

// MatchRate returns matched/total as a percentage
func (s *ReportSummary) MatchRate() float64 {
	if s.TotalRecords == 0 {
		return 0
	}
	return float64(s.MatchedRecords) / float64(s.TotalRecords) * 100
}
