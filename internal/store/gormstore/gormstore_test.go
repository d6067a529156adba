package gormstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"booking-validation-service/internal/models"
	"booking-validation-service/internal/store"

	"github.com/shopspring/decimal"
)

var day = time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(&Config{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "validation.db"),
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.AutoMigrate(); err != nil {
		t.Fatalf("AutoMigrate() error = %v", err)
	}
	return s
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	err := s.SeedBookings(context.Background(),
		&models.Booking{ID: "b-1", BookingRef: "BK1", FlightNumber: "TG101", DepartureDate: day.Add(8 * time.Hour),
			Passengers: []models.Passenger{{FirstName: "Somchai", LastName: "Jaidee"}, {FirstName: "Malee", LastName: "Srisuk"}}},
		&models.Booking{ID: "b-2", BookingRef: "BK2", AirlinePNR: "XYZ123", FlightNumber: "FD3000", DepartureDate: day.Add(10 * time.Hour)},
		&models.Booking{ID: "b-3", BookingRef: "BK3", FlightNumber: "tg101", DepartureDate: day.Add(23*time.Hour + 59*time.Minute + 59*time.Second + 999*time.Millisecond)},
		&models.Booking{ID: "b-4", BookingRef: "BK4", FlightNumber: "TG101", DepartureDate: day.AddDate(0, 0, 1)},
		&models.Booking{ID: "b-5", BookingRef: "BK5", FlightNumber: "TG1_1", DepartureDate: day.Add(9 * time.Hour)},
	)
	if err != nil {
		t.Fatalf("SeedBookings() error = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"sqlite", Config{Driver: DriverSQLite, DSN: "file.db"}, false},
		{"postgres", Config{Driver: DriverPostgres, DSN: "host=localhost"}, false},
		{"unknown driver", Config{Driver: "mysql", DSN: "x"}, true},
		{"empty dsn", Config{Driver: DriverSQLite}, true},
		{"negative pool", Config{Driver: DriverSQLite, DSN: "x", MaxOpenConns: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStore_FindBookingByReference(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	b, err := s.FindBookingByReference(ctx, "BK1")
	if err != nil || b == nil {
		t.Fatalf("FindBookingByReference(BK1) = %v, %v", b, err)
	}
	names := b.PassengerNames()
	if len(names) != 2 || names[0] != "Somchai Jaidee" || names[1] != "Malee Srisuk" {
		t.Errorf("passengers not loaded in order: %v", names)
	}
	if !b.DepartureDate.Equal(day.Add(8 * time.Hour)) {
		t.Errorf("DepartureDate = %v", b.DepartureDate)
	}

	b, err = s.FindBookingByReference(ctx, "XYZ123")
	if err != nil || b == nil || b.ID != "b-2" {
		t.Errorf("FindBookingByReference(XYZ123) = %v, %v", b, err)
	}

	b, err = s.FindBookingByReference(ctx, "NOPE")
	if err != nil || b != nil {
		t.Errorf("FindBookingByReference(NOPE) = %v, %v; want nil, nil", b, err)
	}
}

func TestStore_FindBookingsByFlightAndDate(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	tests := []struct {
		name   string
		flight string
		day    time.Time
		want   []string
	}{
		{"case-insensitive and inclusive of last millisecond", "TG101", day.Add(12 * time.Hour), []string{"b-1", "b-3"}},
		{"substring", "g10", day, []string{"b-1", "b-3"}},
		{"underscore is literal", "1_1", day, []string{"b-5"}},
		{"next day", "TG101", day.AddDate(0, 0, 1), []string{"b-4"}},
		{"no flight", "PG999", day, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bookings, err := s.FindBookingsByFlightAndDate(ctx, tt.flight, tt.day)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(bookings) != len(tt.want) {
				t.Fatalf("got %d bookings, want %d", len(bookings), len(tt.want))
			}
			for i, b := range bookings {
				if b.ID != tt.want[i] {
					t.Errorf("bookings[%d] = %s, want %s", i, b.ID, tt.want[i])
				}
			}
		})
	}
}

func TestStore_UpdateBookingValidation(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()
	at := time.Date(2024, 12, 5, 9, 30, 0, 0, time.UTC)

	update := models.BookingValidation{
		AirlinePNR:   "PNR777",
		TicketNumber: "2171234567890",
		IsValidated:  true,
		ValidatedAt:  at,
		ValidatedBy:  "auditor",
	}
	for i := 0; i < 2; i++ {
		if err := s.UpdateBookingValidation(ctx, "b-1", update); err != nil {
			t.Fatalf("UpdateBookingValidation() error = %v", err)
		}
	}

	b, err := s.GetBooking(ctx, "b-1")
	if err != nil {
		t.Fatalf("GetBooking() error = %v", err)
	}
	if !b.IsValidated || b.AirlinePNR != "PNR777" || b.TicketNumber != "2171234567890" || b.ValidatedBy != "auditor" {
		t.Errorf("validation not applied: %+v", b)
	}
	if b.ValidatedAt == nil || !b.ValidatedAt.Equal(at) {
		t.Errorf("ValidatedAt = %v, want %v", b.ValidatedAt, at)
	}

	if err := s.UpdateBookingValidation(ctx, "missing", update); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetBooking(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_ReportLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	report := &models.ValidationReport{
		FileName:   "manifest.xlsx",
		FileType:   models.FileTypeExcel,
		Status:     models.ReportStatusProcessing,
		UploadedBy: "auditor",
	}
	if err := s.CreateReport(ctx, report); err != nil {
		t.Fatalf("CreateReport() error = %v", err)
	}

	bookingID := "b-1"
	score := 86
	ticket := "2171234567890"
	flightDate := day
	passengerScore := 86
	results := []*models.ValidationResult{
		{
			ReportID: report.ID, RowNumber: 2, MatchStatus: models.MatchStatusMatched,
			BookingID: &bookingID, MatchScore: &score, TicketNumber: &ticket, FlightDate: &flightDate,
			PassengerName: "Somchay Jaydee", FlightNumber: "TG101", Amount: decimal.RequireFromString("4500.50"),
			MatchDetails: models.MatchDetails{MatchType: "flight_date_passenger", PassengerScore: &passengerScore, MatchedPassenger: "Somchai Jaidee", CandidateCount: 1},
		},
		{
			ReportID: report.ID, RowNumber: 1, MatchStatus: models.MatchStatusUnmatched,
			MatchDetails: models.MatchDetails{Reason: "no_match_found"},
		},
	}
	for _, r := range results {
		if err := s.CreateResult(ctx, r); err != nil {
			t.Fatalf("CreateResult() error = %v", err)
		}
	}

	listed, err := s.ListResults(ctx, report.ID)
	if err != nil {
		t.Fatalf("ListResults() error = %v", err)
	}
	if len(listed) != 2 || listed[0].RowNumber != 1 || listed[1].RowNumber != 2 {
		t.Fatalf("results not ordered by row: %v", listed)
	}
	matched := listed[1]
	if matched.BookingID == nil || *matched.BookingID != "b-1" || matched.MatchScore == nil || *matched.MatchScore != 86 {
		t.Errorf("unexpected matched result: %s", matched)
	}
	if !matched.Amount.Equal(decimal.RequireFromString("4500.5")) {
		t.Errorf("Amount = %s", matched.Amount)
	}
	if matched.MatchDetails.MatchedPassenger != "Somchai Jaidee" || matched.MatchDetails.PassengerScore == nil {
		t.Errorf("match details not round-tripped: %+v", matched.MatchDetails)
	}
	if matched.FlightDate == nil || matched.FlightDate.Format("2006-01-02") != "2024-12-01" {
		t.Errorf("FlightDate = %v", matched.FlightDate)
	}
	if listed[0].BookingID != nil || listed[0].MatchDetails.Reason != "no_match_found" {
		t.Errorf("unexpected unmatched result: %s", listed[0])
	}

	counts, err := s.CountResultsByStatus(ctx, report.ID)
	if err != nil {
		t.Fatalf("CountResultsByStatus() error = %v", err)
	}
	if counts != (models.StatusCounts{Matched: 1, Unmatched: 1}) {
		t.Errorf("unexpected counts: %+v", counts)
	}

	completedAt := day.Add(time.Hour)
	report.Status = models.ReportStatusCompleted
	report.TotalRecords, report.MatchedRecords, report.UnmatchedRecords = 2, 1, 1
	report.CompletedAt = &completedAt
	if err := s.UpdateReport(ctx, report); err != nil {
		t.Fatalf("UpdateReport() error = %v", err)
	}

	report.Status = models.ReportStatusFailed
	report.TotalRecords, report.MatchedRecords, report.UnmatchedRecords = 0, 0, 0
	if err := s.UpdateReport(ctx, report); !errors.Is(err, store.ErrTerminalState) {
		t.Errorf("expected ErrTerminalState, got %v", err)
	}

	stored, err := s.GetReport(ctx, report.ID)
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	if stored.Status != models.ReportStatusCompleted || stored.TotalRecords != 2 || stored.MatchedRecords != 1 {
		t.Errorf("unexpected stored report: %s", stored)
	}
	if stored.CompletedAt == nil || !stored.CompletedAt.Equal(completedAt) {
		t.Errorf("CompletedAt = %v", stored.CompletedAt)
	}
}

func TestStore_MissingReport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetReport(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetReport: expected ErrNotFound, got %v", err)
	}
	if _, err := s.ListResults(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ListResults: expected ErrNotFound, got %v", err)
	}
	report := &models.ValidationReport{ID: "missing", FileName: "f.csv", FileType: models.FileTypeCSV, Status: models.ReportStatusCompleted, UploadedBy: "u"}
	if err := s.UpdateReport(ctx, report); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateReport: expected ErrNotFound, got %v", err)
	}
}

func TestStore_ClaimAndComplete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	report := &models.ValidationReport{
		FileName:   "manifest.csv",
		FileType:   models.FileTypeCSV,
		Status:     models.ReportStatusProcessing,
		UploadedBy: "auditor",
	}
	if err := s.CreateReport(ctx, report); err != nil {
		t.Fatalf("CreateReport() error = %v", err)
	}

	claimed, err := s.ClaimReport(ctx, report.ID, "run-1")
	if err != nil {
		t.Fatalf("ClaimReport() error = %v", err)
	}
	if claimed.RunID != "run-1" {
		t.Errorf("RunID = %q, want run-1", claimed.RunID)
	}
	if _, err := s.ClaimReport(ctx, report.ID, "run-2"); !errors.Is(err, store.ErrClaimed) {
		t.Errorf("second claim: expected ErrClaimed, got %v", err)
	}

	completed := *claimed
	completed.Status = models.ReportStatusCompleted
	completed.TotalRecords, completed.UnmatchedRecords = 2, 2
	completedAt := day.Add(time.Hour)
	completed.CompletedAt = &completedAt

	// the duplicate id fails the second insert and rolls back the report update
	duplicate := []*models.ValidationResult{
		{ID: "r-1", ReportID: report.ID, RowNumber: 1, MatchStatus: models.MatchStatusUnmatched},
		{ID: "r-1", ReportID: report.ID, RowNumber: 2, MatchStatus: models.MatchStatusUnmatched},
	}
	if err := s.CompleteReport(ctx, &completed, duplicate); err == nil {
		t.Fatal("expected CompleteReport to fail on a duplicate result id")
	}
	stored, err := s.GetReport(ctx, report.ID)
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	if stored.Status != models.ReportStatusProcessing || stored.RunID != "run-1" {
		t.Errorf("failed completion changed the report: %s run %q", stored, stored.RunID)
	}
	if listed, _ := s.ListResults(ctx, report.ID); len(listed) != 0 {
		t.Fatalf("failed completion left %d results", len(listed))
	}

	results := []*models.ValidationResult{
		{ReportID: report.ID, RowNumber: 1, MatchStatus: models.MatchStatusUnmatched},
		{ReportID: report.ID, RowNumber: 2, MatchStatus: models.MatchStatusUnmatched},
	}
	stale := completed
	stale.RunID = "run-0"
	if err := s.CompleteReport(ctx, &stale, results); !errors.Is(err, store.ErrClaimed) {
		t.Errorf("stale CompleteReport: expected ErrClaimed, got %v", err)
	}
	if err := s.CompleteReport(ctx, &completed, results); err != nil {
		t.Fatalf("CompleteReport() error = %v", err)
	}

	counts, err := s.CountResultsByStatus(ctx, report.ID)
	if err != nil {
		t.Fatalf("CountResultsByStatus() error = %v", err)
	}
	if counts != (models.StatusCounts{Unmatched: 2}) {
		t.Errorf("unexpected counts: %+v", counts)
	}
	if err := s.ReleaseReport(ctx, report.ID, "run-1"); !errors.Is(err, store.ErrTerminalState) {
		t.Errorf("ReleaseReport on completed report: expected ErrTerminalState, got %v", err)
	}
	late := &models.ValidationResult{ReportID: report.ID, RowNumber: 3, MatchStatus: models.MatchStatusUnmatched}
	if err := s.CreateResult(ctx, late); !errors.Is(err, store.ErrTerminalState) {
		t.Errorf("CreateResult on completed report: expected ErrTerminalState, got %v", err)
	}

	details := models.MatchDetails{Reason: "no_match_found", BookingUpdateError: "disk full"}
	if err := s.UpdateResultDetails(ctx, results[0].ID, details); err != nil {
		t.Fatalf("UpdateResultDetails() error = %v", err)
	}
	listed, err := s.ListResults(ctx, report.ID)
	if err != nil {
		t.Fatalf("ListResults() error = %v", err)
	}
	if listed[0].MatchDetails.BookingUpdateError != "disk full" {
		t.Errorf("details not updated: %+v", listed[0].MatchDetails)
	}
	if err := s.UpdateResultDetails(ctx, "missing", details); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateResultDetails: expected ErrNotFound, got %v", err)
	}
}

func TestStore_ReleaseReport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	report := &models.ValidationReport{FileName: "manifest.csv", FileType: models.FileTypeCSV,
		Status: models.ReportStatusProcessing, UploadedBy: "auditor"}
	if err := s.CreateReport(ctx, report); err != nil {
		t.Fatalf("CreateReport() error = %v", err)
	}
	if _, err := s.ClaimReport(ctx, report.ID, "run-1"); err != nil {
		t.Fatalf("ClaimReport() error = %v", err)
	}

	if err := s.ReleaseReport(ctx, report.ID, "run-2"); !errors.Is(err, store.ErrClaimed) {
		t.Errorf("release by another run: expected ErrClaimed, got %v", err)
	}
	if err := s.ReleaseReport(ctx, report.ID, "run-1"); err != nil {
		t.Fatalf("ReleaseReport() error = %v", err)
	}
	if err := s.ReleaseReport(ctx, report.ID, "run-1"); err != nil {
		t.Errorf("releasing an unclaimed report should succeed, got %v", err)
	}
	if _, err := s.ClaimReport(ctx, report.ID, "run-2"); err != nil {
		t.Errorf("claim after release error = %v", err)
	}
	if err := s.ReleaseReport(ctx, "missing", "run-1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ReleaseReport: expected ErrNotFound, got %v", err)
	}
}
