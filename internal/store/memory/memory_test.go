package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"booking-validation-service/internal/models"
	"booking-validation-service/internal/store"
)

var day = time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)

func testBookings() []*models.Booking {
	return []*models.Booking{
		{ID: "b-3", BookingRef: "BK3", FlightNumber: "TG101", DepartureDate: day.Add(23*time.Hour + 59*time.Minute + 59*time.Second + 999*time.Millisecond),
			Passengers: []models.Passenger{{FirstName: "Malee", LastName: "Srisuk"}}},
		{ID: "b-1", BookingRef: "BK1", FlightNumber: "TG101", DepartureDate: day.Add(8 * time.Hour),
			Passengers: []models.Passenger{{FirstName: "Somchai", LastName: "Jaidee"}}},
		{ID: "b-2", BookingRef: "BK2", AirlinePNR: "XYZ123", FlightNumber: "FD3000", DepartureDate: day.Add(10 * time.Hour)},
		{ID: "b-4", BookingRef: "BK4", FlightNumber: "TG101", DepartureDate: day.AddDate(0, 0, 1)},
		{ID: "b-5", BookingRef: "BK5", FlightNumber: "TG101", DepartureDate: day.Add(-time.Millisecond)},
	}
}

func newBookingStore(t *testing.T) *BookingStore {
	t.Helper()
	s, err := NewBookingStore(testBookings()...)
	if err != nil {
		t.Fatalf("NewBookingStore() error = %v", err)
	}
	return s
}

func TestBookingStore_FindByReference(t *testing.T) {
	s := newBookingStore(t)
	ctx := context.Background()

	tests := []struct {
		ref    string
		wantID string
	}{
		{"BK1", "b-1"},
		{"XYZ123", "b-2"},
		{"bk1", ""},
		{"MISSING", ""},
	}

	for _, tt := range tests {
		b, err := s.FindBookingByReference(ctx, tt.ref)
		if err != nil {
			t.Fatalf("FindBookingByReference(%q) error = %v", tt.ref, err)
		}
		got := ""
		if b != nil {
			got = b.ID
		}
		if got != tt.wantID {
			t.Errorf("FindBookingByReference(%q) = %q, want %q", tt.ref, got, tt.wantID)
		}
	}
}

func TestBookingStore_FindByFlightAndDate(t *testing.T) {
	s := newBookingStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		flight string
		day    time.Time
		want   []string
	}{
		{"whole day in departure order", "TG101", day.Add(15 * time.Hour), []string{"b-1", "b-3"}},
		{"case-insensitive substring", "g10", day, []string{"b-1", "b-3"}},
		{"other flight", "FD3000", day, []string{"b-2"}},
		{"next day", "TG101", day.AddDate(0, 0, 1), []string{"b-4"}},
		{"previous day", "TG101", day.Add(-time.Hour), []string{"b-5"}},
		{"nothing", "PG999", day, nil},
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

func TestBookingStore_DayInOtherLocation(t *testing.T) {
	s := newBookingStore(t)
	bangkok := time.FixedZone("ICT", 7*3600)

	// 2024-12-01 in Bangkok is 2024-11-30T17:00Z to 2024-12-01T17:00Z
	bookings, err := s.FindBookingsByFlightAndDate(context.Background(), "TG101", time.Date(2024, 12, 1, 12, 0, 0, 0, bangkok))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bookings) != 2 || bookings[0].ID != "b-5" || bookings[1].ID != "b-1" {
		t.Errorf("unexpected bookings: %v", bookings)
	}
}

func TestBookingStore_UpdateValidation(t *testing.T) {
	s := newBookingStore(t)
	ctx := context.Background()
	at := day.Add(30 * time.Hour)

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
		t.Errorf("validation not applied: %s", b)
	}
	if b.ValidatedAt == nil || !b.ValidatedAt.Equal(at) {
		t.Errorf("ValidatedAt = %v, want %v", b.ValidatedAt, at)
	}

	found, err := s.FindBookingByReference(ctx, "PNR777")
	if err != nil || found == nil || found.ID != "b-1" {
		t.Errorf("recorded PNR should be searchable, got %v, %v", found, err)
	}

	if err := s.UpdateBookingValidation(ctx, "missing", update); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBookingStore_ReturnsCopies(t *testing.T) {
	s := newBookingStore(t)
	ctx := context.Background()

	b, _ := s.GetBooking(ctx, "b-1")
	b.Passengers[0].FirstName = "Changed"
	b.IsValidated = true

	again, _ := s.GetBooking(ctx, "b-1")
	if again.Passengers[0].FirstName != "Somchai" || again.IsValidated {
		t.Error("mutating a returned booking changed the store")
	}
}

func TestBookingStore_SeedRejectsDuplicates(t *testing.T) {
	s := newBookingStore(t)

	err := s.Seed(&models.Booking{ID: "b-new", BookingRef: "BK1", DepartureDate: day})
	if err == nil {
		t.Error("expected duplicate reference error")
	}
	err = s.Seed(&models.Booking{BookingRef: "BK9", DepartureDate: day})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if s.Len() != 6 {
		t.Errorf("Len() = %d, want 6", s.Len())
	}
}

func TestLoadBookingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bookings.json")
	content := `[
  {"id": "b-1", "bookingRef": "BK1", "flightNumber": "TG101", "departureDate": "2024-12-01T08:00:00Z",
   "passengers": [{"firstName": "Somchai", "lastName": "Jaidee"}]}
]`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	bookings, err := LoadBookingsFile(path)
	if err != nil {
		t.Fatalf("LoadBookingsFile() error = %v", err)
	}
	if len(bookings) != 1 || bookings[0].PassengerNames()[0] != "Somchai Jaidee" {
		t.Errorf("unexpected bookings: %v", bookings)
	}

	if _, err := LoadBookingsFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestBookingStore_Cancelled(t *testing.T) {
	s := newBookingStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.FindBookingByReference(ctx, "BK1"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func newReport() *models.ValidationReport {
	return &models.ValidationReport{
		FileName:   "manifest.csv",
		FileType:   models.FileTypeCSV,
		Status:     models.ReportStatusProcessing,
		UploadedBy: "auditor",
	}
}

func TestReportStore_Lifecycle(t *testing.T) {
	s := NewReportStore()
	ctx := context.Background()

	report := newReport()
	if err := s.CreateReport(ctx, report); err != nil {
		t.Fatalf("CreateReport() error = %v", err)
	}
	if report.ID == "" || report.CreatedAt.IsZero() {
		t.Fatalf("id and creation time should be assigned: %s", report)
	}

	bookingID := "b-1"
	score := 100
	for _, row := range []int{2, 1} {
		result := &models.ValidationResult{ReportID: report.ID, RowNumber: row, MatchStatus: models.MatchStatusUnmatched}
		if row == 1 {
			result.MatchStatus = models.MatchStatusMatched
			result.BookingID = &bookingID
			result.MatchScore = &score
		}
		if err := s.CreateResult(ctx, result); err != nil {
			t.Fatalf("CreateResult() error = %v", err)
		}
	}

	results, err := s.ListResults(ctx, report.ID)
	if err != nil {
		t.Fatalf("ListResults() error = %v", err)
	}
	if len(results) != 2 || results[0].RowNumber != 1 || results[1].RowNumber != 2 {
		t.Errorf("results not ordered by row: %v", results)
	}

	counts, err := s.CountResultsByStatus(ctx, report.ID)
	if err != nil {
		t.Fatalf("CountResultsByStatus() error = %v", err)
	}
	if counts.Matched != 1 || counts.Unmatched != 1 || counts.Total() != 2 {
		t.Errorf("unexpected counts: %+v", counts)
	}

	report.Status = models.ReportStatusCompleted
	report.TotalRecords, report.MatchedRecords, report.UnmatchedRecords = 2, 1, 1
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
	if stored.Status != models.ReportStatusCompleted || stored.TotalRecords != 2 {
		t.Errorf("terminal report was modified: %s", stored)
	}
}

func TestReportStore_Errors(t *testing.T) {
	s := NewReportStore()
	ctx := context.Background()

	if _, err := s.GetReport(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetReport: expected ErrNotFound, got %v", err)
	}
	if _, err := s.ListResults(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ListResults: expected ErrNotFound, got %v", err)
	}
	result := &models.ValidationResult{ReportID: "missing", MatchStatus: models.MatchStatusUnmatched}
	if err := s.CreateResult(ctx, result); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("CreateResult: expected ErrNotFound, got %v", err)
	}

	bad := newReport()
	bad.TotalRecords = 3
	if err := s.CreateReport(ctx, bad); err == nil {
		t.Error("expected validation error for counters that do not add up")
	}
}

func TestReportStore_Claim(t *testing.T) {
	s := NewReportStore()
	ctx := context.Background()

	report := newReport()
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

	// an update without the claim is rejected
	report.ErrorMessage = "stolen"
	if err := s.UpdateReport(ctx, report); !errors.Is(err, store.ErrClaimed) {
		t.Errorf("UpdateReport: expected ErrClaimed, got %v", err)
	}
	if err := s.ReleaseReport(ctx, report.ID, "run-2"); !errors.Is(err, store.ErrClaimed) {
		t.Errorf("ReleaseReport by another run: expected ErrClaimed, got %v", err)
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

	if _, err := s.ClaimReport(ctx, "missing", "run-1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ClaimReport: expected ErrNotFound, got %v", err)
	}
}

func TestReportStore_CompleteReport(t *testing.T) {
	s := NewReportStore()
	ctx := context.Background()

	report := newReport()
	if err := s.CreateReport(ctx, report); err != nil {
		t.Fatalf("CreateReport() error = %v", err)
	}
	claimed, err := s.ClaimReport(ctx, report.ID, "run-1")
	if err != nil {
		t.Fatalf("ClaimReport() error = %v", err)
	}

	results := []*models.ValidationResult{
		{ReportID: report.ID, RowNumber: 1, MatchStatus: models.MatchStatusUnmatched},
		{ReportID: report.ID, RowNumber: 2, MatchStatus: models.MatchStatusUnmatched},
	}
	completed := *claimed
	completed.Status = models.ReportStatusCompleted
	completed.TotalRecords, completed.UnmatchedRecords = 2, 2

	// a stale run id writes nothing
	stale := completed
	stale.RunID = "run-0"
	if err := s.CompleteReport(ctx, &stale, results); !errors.Is(err, store.ErrClaimed) {
		t.Fatalf("stale CompleteReport: expected ErrClaimed, got %v", err)
	}
	if stored, _ := s.ListResults(ctx, report.ID); len(stored) != 0 {
		t.Fatalf("rejected completion stored %d results", len(stored))
	}

	if err := s.CompleteReport(ctx, &completed, results); err != nil {
		t.Fatalf("CompleteReport() error = %v", err)
	}
	if results[0].ID == "" || results[1].ID == "" {
		t.Error("result ids should be assigned")
	}

	stored, err := s.GetReport(ctx, report.ID)
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	counts, err := s.CountResultsByStatus(ctx, report.ID)
	if err != nil {
		t.Fatalf("CountResultsByStatus() error = %v", err)
	}
	if stored.Status != models.ReportStatusCompleted || counts.Total() != stored.TotalRecords {
		t.Errorf("report %s disagrees with counts %+v", stored, counts)
	}

	if err := s.CompleteReport(ctx, &completed, results); !errors.Is(err, store.ErrTerminalState) {
		t.Errorf("second CompleteReport: expected ErrTerminalState, got %v", err)
	}
	late := &models.ValidationResult{ReportID: report.ID, RowNumber: 3, MatchStatus: models.MatchStatusUnmatched}
	if err := s.CreateResult(ctx, late); !errors.Is(err, store.ErrTerminalState) {
		t.Errorf("CreateResult on completed report: expected ErrTerminalState, got %v", err)
	}
	if n, _ := s.ListResults(ctx, report.ID); len(n) != 2 {
		t.Errorf("got %d results, want 2", len(n))
	}

	details := models.MatchDetails{Reason: "no_match_found", BookingUpdateError: "disk full"}
	if err := s.UpdateResultDetails(ctx, results[1].ID, details); err != nil {
		t.Fatalf("UpdateResultDetails() error = %v", err)
	}
	listed, _ := s.ListResults(ctx, report.ID)
	if listed[1].MatchDetails.BookingUpdateError != "disk full" {
		t.Errorf("details not updated: %+v", listed[1].MatchDetails)
	}
	if err := s.UpdateResultDetails(ctx, "missing", details); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateResultDetails: expected ErrNotFound, got %v", err)
	}
}
