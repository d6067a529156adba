package gormstore

import (
	"encoding/json"
	"time"

	"booking-validation-service/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// BookingRow is the GORM model for the bookings table
type BookingRow struct {
	ID            string         `gorm:"primaryKey;size:36"`
	BookingRef    string         `gorm:"column:booking_ref;size:64;not null;uniqueIndex"`
	AirlinePNR    string         `gorm:"column:airline_pnr;size:64;index"`
	FlightNumber  string         `gorm:"column:flight_number;size:16;not null;index"`
	DepartureDate time.Time      `gorm:"column:departure_date;not null;index"`
	TicketNumber  string         `gorm:"column:ticket_number;size:32"`
	IsValidated   bool           `gorm:"column:is_validated;not null;default:false"`
	ValidatedAt   *time.Time     `gorm:"column:validated_at"`
	ValidatedBy   string         `gorm:"column:validated_by;size:128"`
	Passengers    []PassengerRow `gorm:"foreignKey:BookingID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName overrides the default table name
func (BookingRow) TableName() string {
	return "bookings"
}

// PassengerRow is the GORM model for the booking_passengers table
type PassengerRow struct {
	ID        uint   `gorm:"primaryKey"`
	BookingID string `gorm:"column:booking_id;size:36;not null;index"`
	Position  int    `gorm:"column:seq;not null"`
	FirstName string `gorm:"column:first_name;size:128"`
	LastName  string `gorm:"column:last_name;size:128"`
}

// TableName overrides the default table name
func (PassengerRow) TableName() string {
	return "booking_passengers"
}

// ReportRow is the GORM model for the validation_reports table
type ReportRow struct {
	ID               string     `gorm:"primaryKey;size:36"`
	FileName         string     `gorm:"column:file_name;size:255;not null"`
	FileType         string     `gorm:"column:file_type;size:16;not null"`
	TotalRecords     int        `gorm:"column:total_records;not null;default:0"`
	MatchedRecords   int        `gorm:"column:matched_records;not null;default:0"`
	UnmatchedRecords int        `gorm:"column:unmatched_records;not null;default:0"`
	PartialMatches   int        `gorm:"column:partial_matches;not null;default:0"`
	Status           string     `gorm:"column:status;size:16;not null;index"`
	UploadedBy       string     `gorm:"column:uploaded_by;size:128;not null"`
	ErrorMessage     string     `gorm:"column:error_message;type:text"`
	CreatedAt        time.Time  `gorm:"column:created_at;not null"`
	CompletedAt      *time.Time `gorm:"column:completed_at"`
	RunID            string     `gorm:"column:run_id;size:36;not null;default:''"`
}

// TableName overrides the default table name
func (ReportRow) TableName() string {
	return "validation_reports"
}

// ResultRow is the GORM model for the validation_results table
type ResultRow struct {
	ID               string          `gorm:"primaryKey;size:36"`
	ReportID         string          `gorm:"column:report_id;size:36;not null;index:idx_results_report_row"`
	BookingID        *string         `gorm:"column:booking_id;size:36;index"`
	RowNumber        int             `gorm:"column:row_number;not null;index:idx_results_report_row"`
	AirlineReference string          `gorm:"column:airline_reference;size:64"`
	TicketNumber     *string         `gorm:"column:ticket_number;size:32"`
	PassengerName    string          `gorm:"column:passenger_name;size:255"`
	FlightNumber     string          `gorm:"column:flight_number;size:16"`
	FlightDate       *time.Time      `gorm:"column:flight_date"`
	Amount           decimal.Decimal `gorm:"column:amount;type:decimal(14,2);not null"`
	MatchStatus      string          `gorm:"column:match_status;size:16;not null;index"`
	MatchScore       *int            `gorm:"column:match_score"`
	MatchDetails     datatypes.JSON  `gorm:"column:match_details"`
	CreatedAt        time.Time       `gorm:"column:created_at;not null"`
}

// TableName overrides the default table name
func (ResultRow) TableName() string {
	return "validation_results"
}

func toBookingRow(b *models.Booking) *BookingRow {
	row := &BookingRow{
		ID:            b.ID,
		BookingRef:    b.BookingRef,
		AirlinePNR:    b.AirlinePNR,
		FlightNumber:  b.FlightNumber,
		DepartureDate: b.DepartureDate.UTC(),
		TicketNumber:  b.TicketNumber,
		IsValidated:   b.IsValidated,
		ValidatedAt:   utcPtr(b.ValidatedAt),
		ValidatedBy:   b.ValidatedBy,
	}
	for i, p := range b.Passengers {
		row.Passengers = append(row.Passengers, PassengerRow{
			BookingID: b.ID,
			Position:  i,
			FirstName: p.FirstName,
			LastName:  p.LastName,
		})
	}
	return row
}

func (r *BookingRow) toModel() *models.Booking {
	b := &models.Booking{
		ID:            r.ID,
		BookingRef:    r.BookingRef,
		AirlinePNR:    r.AirlinePNR,
		FlightNumber:  r.FlightNumber,
		DepartureDate: r.DepartureDate.UTC(),
		TicketNumber:  r.TicketNumber,
		IsValidated:   r.IsValidated,
		ValidatedAt:   utcPtr(r.ValidatedAt),
		ValidatedBy:   r.ValidatedBy,
		Passengers:    make([]models.Passenger, 0, len(r.Passengers)),
	}
	for _, p := range r.Passengers {
		b.Passengers = append(b.Passengers, models.Passenger{FirstName: p.FirstName, LastName: p.LastName})
	}
	return b
}

func toReportRow(r *models.ValidationReport) *ReportRow {
	return &ReportRow{
		ID:               r.ID,
		FileName:         r.FileName,
		FileType:         string(r.FileType),
		TotalRecords:     r.TotalRecords,
		MatchedRecords:   r.MatchedRecords,
		UnmatchedRecords: r.UnmatchedRecords,
		PartialMatches:   r.PartialMatches,
		Status:           string(r.Status),
		UploadedBy:       r.UploadedBy,
		ErrorMessage:     r.ErrorMessage,
		CreatedAt:        r.CreatedAt.UTC(),
		CompletedAt:      utcPtr(r.CompletedAt),
		RunID:            r.RunID,
	}
}

func (r *ReportRow) toModel() *models.ValidationReport {
	return &models.ValidationReport{
		ID:               r.ID,
		FileName:         r.FileName,
		FileType:         models.FileType(r.FileType),
		TotalRecords:     r.TotalRecords,
		MatchedRecords:   r.MatchedRecords,
		UnmatchedRecords: r.UnmatchedRecords,
		PartialMatches:   r.PartialMatches,
		Status:           models.ReportStatus(r.Status),
		UploadedBy:       r.UploadedBy,
		ErrorMessage:     r.ErrorMessage,
		CreatedAt:        r.CreatedAt.UTC(),
		CompletedAt:      utcPtr(r.CompletedAt),
		RunID:            r.RunID,
	}
}

func toResultRow(r *models.ValidationResult) (*ResultRow, error) {
	details, err := json.Marshal(r.MatchDetails)
	if err != nil {
		return nil, err
	}
	return &ResultRow{
		ID:               r.ID,
		ReportID:         r.ReportID,
		BookingID:        r.BookingID,
		RowNumber:        r.RowNumber,
		AirlineReference: r.AirlineReference,
		TicketNumber:     r.TicketNumber,
		PassengerName:    r.PassengerName,
		FlightNumber:     r.FlightNumber,
		FlightDate:       calendarDate(r.FlightDate),
		Amount:           r.Amount,
		MatchStatus:      string(r.MatchStatus),
		MatchScore:       r.MatchScore,
		MatchDetails:     datatypes.JSON(details),
		CreatedAt:        r.CreatedAt.UTC(),
	}, nil
}

func (r *ResultRow) toModel() (*models.ValidationResult, error) {
	result := &models.ValidationResult{
		ID:               r.ID,
		ReportID:         r.ReportID,
		BookingID:        r.BookingID,
		RowNumber:        r.RowNumber,
		AirlineReference: r.AirlineReference,
		TicketNumber:     r.TicketNumber,
		PassengerName:    r.PassengerName,
		FlightNumber:     r.FlightNumber,
		FlightDate:       utcPtr(r.FlightDate),
		Amount:           r.Amount,
		MatchStatus:      models.MatchStatus(r.MatchStatus),
		MatchScore:       r.MatchScore,
		CreatedAt:        r.CreatedAt.UTC(),
	}
	if len(r.MatchDetails) > 0 {
		if err := json.Unmarshal(r.MatchDetails, &result.MatchDetails); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// calendarDate keeps the wall-clock date of t as midnight UTC
func calendarDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	y, m, d := t.Date()
	date := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &date
}
