package mapping

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"booking-validation-service/internal/parsers"
	"booking-validation-service/pkg/errors"
)

func rowOf(pairs ...any) parsers.RawRow {
	row := parsers.NewRawRow(len(pairs) / 2)
	for i := 0; i+1 < len(pairs); i += 2 {
		row.Set(pairs[i].(string), pairs[i+1])
	}
	return row
}

func TestMap_FirstLastNameFallback(t *testing.T) {
	mapper := NewMapper(ColumnMapping{
		FieldFirstName: "FName",
		FieldLastName:  "LName",
	}, nil)

	record := mapper.Map(rowOf("FName", "Somchai", "LName", "Jaidee"), 1)
	if record.PassengerName != "Somchai Jaidee" {
		t.Errorf("PassengerName = %q, want %q", record.PassengerName, "Somchai Jaidee")
	}
}

func TestMap_FallbackTrimsMissingPart(t *testing.T) {
	mapper := NewMapper(ColumnMapping{FieldFirstName: "FName", FieldLastName: "LName"}, nil)

	record := mapper.Map(rowOf("FName", "Somchai"), 1)
	if record.PassengerName != "Somchai" {
		t.Errorf("PassengerName = %q, want %q", record.PassengerName, "Somchai")
	}
}

func TestMap_AutomaticMode(t *testing.T) {
	mapper := NewMapper(nil, time.UTC)
	row := rowOf(
		"pnr", "BK12345678",
		"ticketNumber", "2171234567890",
		"passengerName", " Somchai Jaidee ",
		"flightNumber", "TG101",
		"flightDate", "2024-12-01",
		"amount", "4,500.50",
	)

	record := mapper.Map(row, 7)
	if record.RowNumber != 7 {
		t.Errorf("RowNumber = %d, want 7", record.RowNumber)
	}
	if record.AirlineReference != "BK12345678" {
		t.Errorf("AirlineReference = %q", record.AirlineReference)
	}
	if record.TicketNumber == nil || *record.TicketNumber != "2171234567890" {
		t.Errorf("TicketNumber = %v", record.TicketNumber)
	}
	if record.PassengerName != "Somchai Jaidee" {
		t.Errorf("PassengerName = %q", record.PassengerName)
	}
	if record.FlightDate == nil || !record.FlightDate.Equal(time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("FlightDate = %v", record.FlightDate)
	}
	if !record.Amount.Equal(decimal.RequireFromString("4500.50")) {
		t.Errorf("Amount = %s", record.Amount)
	}
}

func TestMap_ExplicitMappingDoesNotFallBack(t *testing.T) {
	mapper := NewMapper(ColumnMapping{FieldPassengerName: "Passenger"}, nil)

	record := mapper.Map(rowOf("passengerName", "Literal Column"), 1)
	if record.PassengerName != "" {
		t.Errorf("expected mapped column to be used exclusively, got %q", record.PassengerName)
	}
}

func TestMap_ReferencePrecedence(t *testing.T) {
	tests := []struct {
		name string
		row  parsers.RawRow
		want string
	}{
		{"pnr wins", rowOf("pnr", "PNR1", "bookingRef", "BK1"), "PNR1"},
		{"booking ref when pnr blank", rowOf("pnr", "", "bookingRef", "BK1"), "BK1"},
		{"neither", rowOf("other", "x"), ""},
	}

	mapper := NewMapper(nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapper.Map(tt.row, 1).AirlineReference; got != tt.want {
				t.Errorf("AirlineReference = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMap_NeverFails(t *testing.T) {
	mapper := NewMapper(ColumnMapping{FieldAmount: "Fare", FieldFlightDate: "Date"}, nil)

	record := mapper.Map(rowOf("Fare", "n/a", "Date", "sometime soon"), 3)
	if !record.Amount.IsZero() {
		t.Errorf("expected zero amount, got %s", record.Amount)
	}
	if record.FlightDate != nil {
		t.Errorf("expected nil date, got %v", record.FlightDate)
	}
	if record.TicketNumber != nil {
		t.Errorf("expected nil ticket, got %v", *record.TicketNumber)
	}

	empty := mapper.Map(parsers.RawRow{}, 4)
	if empty.AirlineReference != "" || empty.PassengerName != "" || !empty.Amount.IsZero() {
		t.Errorf("expected empty record, got %+v", empty)
	}
}

func TestMap_TypedWorkbookCells(t *testing.T) {
	bangkok := time.FixedZone("ICT", 7*3600)
	mapper := NewMapper(ColumnMapping{
		FieldTicketNumber: "Ticket",
		FieldFlightDate:   "Date",
		FieldAmount:       "Fare",
	}, bangkok)

	record := mapper.Map(rowOf(
		"Ticket", float64(2171234567890),
		"Date", time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
		"Fare", 4500.5,
	), 1)

	if record.TicketNumber == nil || *record.TicketNumber != "2171234567890" {
		t.Errorf("TicketNumber = %v", record.TicketNumber)
	}
	if record.FlightDate == nil {
		t.Fatal("expected flight date")
	}
	if y, m, d := record.FlightDate.Date(); y != 2024 || m != time.December || d != 1 {
		t.Errorf("FlightDate = %v, want 2024-12-01", record.FlightDate)
	}
	if record.FlightDate.Location() != bangkok {
		t.Errorf("expected date in mapper location, got %v", record.FlightDate.Location())
	}
	if !record.Amount.Equal(decimal.RequireFromString("4500.5")) {
		t.Errorf("Amount = %s", record.Amount)
	}
}

func TestDateValue_Layouts(t *testing.T) {
	tests := []struct {
		input any
		want  string
	}{
		{"2024-12-01", "2024-12-01"},
		{"2024-12-01 14:30:00", "2024-12-01"},
		{"01/12/2024", "2024-12-01"},
		{"12/25/2024", "2024-12-25"},
		{"01-Dec-2024", "2024-12-01"},
		{"01DEC24", "2024-12-01"},
		{float64(20241201), "2024-12-01"},
	}

	for _, tt := range tests {
		got := dateValue(tt.input, time.UTC)
		if got == nil {
			t.Errorf("dateValue(%v) = nil, want %s", tt.input, tt.want)
			continue
		}
		if got.Format("2006-01-02") != tt.want {
			t.Errorf("dateValue(%v) = %s, want %s", tt.input, got.Format("2006-01-02"), tt.want)
		}
	}
}

func TestAmountValue(t *testing.T) {
	tests := []struct {
		input any
		want  string
	}{
		{"THB 4,500.50", "4500.5"},
		{"$1,234", "1234"},
		{"12,5", "12.5"},
		{"(250.00)", "-250"},
		{"-99", "-99"},
		{"", "0"},
		{"free", "0"},
		{nil, "0"},
		{12, "12"},
	}

	for _, tt := range tests {
		if got := amountValue(tt.input); !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("amountValue(%v) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestColumnMapping_Normalize(t *testing.T) {
	m, err := ColumnMapping{"PassengerName": " Passenger ", "pnr": "", "FLIGHTNUMBER": "Flight"}.Normalize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m[FieldPassengerName] != "Passenger" || m[FieldFlightNumber] != "Flight" {
		t.Errorf("unexpected normalized mapping: %v", m)
	}
	if _, ok := m[FieldPNR]; ok {
		t.Error("blank entries should be dropped")
	}

	_, err = ColumnMapping{"seat": "Seat"}.Normalize()
	if !errors.HasCode(err, errors.CodeInvalidConfig) {
		t.Errorf("expected invalid_config for unknown key, got %v", err)
	}
}

func TestLoadMapping(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"flat json", "mapping.json", `{"pnr": "PNR", "passengerName": "Passenger Name", "flightDate": "Flight Date"}`},
		{"nested yaml", "mapping.yaml", "columns:\n  pnr: PNR\n  passengerName: Passenger Name\n  flightDate: Flight Date\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("write mapping: %v", err)
			}
			m, err := LoadMapping(path)
			if err != nil {
				t.Fatalf("LoadMapping() error = %v", err)
			}
			if m[FieldPNR] != "PNR" || m[FieldPassengerName] != "Passenger Name" || m[FieldFlightDate] != "Flight Date" {
				t.Errorf("unexpected mapping: %v", m)
			}
		})
	}

	if _, err := LoadMapping(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing mapping file")
	}
}
