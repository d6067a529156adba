package parsers

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"booking-validation-service/pkg/errors"
)

func readCSV(t *testing.T, content string) ([]RawRow, error) {
	t.Helper()
	ctx := context.Background()
	it, err := NewIngestor(nil).Open(ctx, []byte(content), FileTypeCSV)
	if err != nil {
		return nil, err
	}
	return ReadAll(ctx, it)
}

func mustGet(t *testing.T, row RawRow, key string) any {
	t.Helper()
	v, ok := row.Get(key)
	if !ok {
		t.Fatalf("column %q not found in row with keys %v", key, row.Keys)
	}
	return v
}

func TestDefaultParseConfig(t *testing.T) {
	config := DefaultParseConfig()

	if config.Delimiter != ',' {
		t.Errorf("Expected delimiter to be ',', got %q", config.Delimiter)
	}
	if !config.DetectDelimiter {
		t.Error("Expected DetectDelimiter to be true")
	}
	if !config.SkipEmptyRows {
		t.Error("Expected SkipEmptyRows to be true")
	}
	if err := config.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}

	bad := &ParseConfig{Delimiter: '"'}
	if err := bad.Validate(); err == nil {
		t.Error("expected quote delimiter to be rejected")
	}
}

func TestParseFileType(t *testing.T) {
	tests := []struct {
		input   string
		want    FileType
		wantErr bool
	}{
		{"csv", FileTypeCSV, false},
		{"  CSV ", FileTypeCSV, false},
		{"text/csv", FileTypeCSV, false},
		{"xlsx", FileTypeExcel, false},
		{"Excel", FileTypeExcel, false},
		{"pdf", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFileType(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFileType(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFileType(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if tt.wantErr && !errors.HasCode(err, errors.CodeUnsupportedFileType) {
				t.Errorf("expected unsupported_file_type, got %v", err)
			}
		})
	}
}

func TestDetectFileType(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		data     []byte
		want     FileType
	}{
		{"csv extension", "manifest.CSV", []byte("PK\x03\x04"), FileTypeCSV},
		{"xlsx extension", "manifest.xlsx", nil, FileTypeExcel},
		{"zip content", "upload.bin", []byte("PK\x03\x04rest"), FileTypeExcel},
		{"text content", "upload", []byte("pnr,amount\n"), FileTypeCSV},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFileType(tt.fileName, tt.data); got != tt.want {
				t.Errorf("DetectFileType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRawRow_Get(t *testing.T) {
	row := NewRawRow(2)
	row.Set("PassengerName", "Somchai Jaidee")
	row.Set("Amount", 10.5)
	row.Set("PassengerName", "ignored duplicate")

	if row.Len() != 2 {
		t.Fatalf("expected 2 columns, got %d", row.Len())
	}
	if v, _ := row.Get("PassengerName"); v != "Somchai Jaidee" {
		t.Errorf("exact lookup = %v", v)
	}
	if v, _ := row.Get(" passengername "); v != "Somchai Jaidee" {
		t.Errorf("case-insensitive lookup = %v", v)
	}
	if _, ok := row.Get("missing"); ok {
		t.Error("expected missing column lookup to fail")
	}
	if row.Keys[0] != "PassengerName" || row.Keys[1] != "Amount" {
		t.Errorf("unexpected key order: %v", row.Keys)
	}
}

func TestCSV_PreservesOrderAndSkipsHeader(t *testing.T) {
	content := "pnr,passengerName,flightNumber,flightDate,amount\n" +
		"BK12345678,Somchai Jaidee,TG101,2024-12-01,4500.00\n" +
		",Somchay Jaydee,TG101,2024-12-01,3200\n"

	rows, err := readCSV(t, content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 data rows, got %d", len(rows))
	}
	if got := mustGet(t, rows[0], "pnr"); got != "BK12345678" {
		t.Errorf("row 1 pnr = %v", got)
	}
	if got := mustGet(t, rows[1], "passengerName"); got != "Somchay Jaydee" {
		t.Errorf("row 2 passengerName = %v", got)
	}
	if got := mustGet(t, rows[1], "pnr"); got != "" {
		t.Errorf("row 2 pnr should be empty, got %v", got)
	}
}

func TestCSV_EmptyInput(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no bytes", ""},
		{"whitespace", "  \n\n"},
		{"header only", "pnr,amount\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := readCSV(t, tt.content)
			if err != nil {
				t.Fatalf("expected no error for empty input, got %v", err)
			}
			if len(rows) != 0 {
				t.Errorf("expected no rows, got %d", len(rows))
			}
		})
	}
}

func TestCSV_BOMAndDelimiterDetection(t *testing.T) {
	content := "\xEF\xBB\xBFpnr;passengerName;amount\nBK1;\"Jaidee; Somchai\";10\n"

	rows, err := readCSV(t, content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Keys[0] != "pnr" {
		t.Errorf("expected BOM to be stripped from first header, got %q", rows[0].Keys[0])
	}
	if got := mustGet(t, rows[0], "passengerName"); got != "Jaidee; Somchai" {
		t.Errorf("quoted delimiter not preserved: %v", got)
	}
}

func TestCSV_SkipsEmptyRows(t *testing.T) {
	rows, err := readCSV(t, "pnr,amount\nA,1\n,\n\nB,2\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
}

func TestCSV_Errors(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantCode errors.ErrorCode
	}{
		{"row wider than header", "pnr,amount\nA,1\nB,2,extra\n", errors.CodeInvalidFormat},
		{"row narrower than header", "pnr,amount,flight\nA,1\n", errors.CodeInvalidFormat},
		{"unterminated quote", "pnr,amount\n\"A,1\n", errors.CodeInvalidFormat},
		{"invalid utf-8", "pnr,name\nA,\xff\xfe\n", errors.CodeEncodingError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readCSV(t, tt.content)
			if err == nil {
				t.Fatal("expected an error")
			}
			rerr, ok := errors.AsReconcilerError(err)
			if !ok {
				t.Fatalf("expected ReconcilerError, got %T: %v", err, err)
			}
			if rerr.Category != errors.CategoryParse {
				t.Errorf("expected parse category, got %s", rerr.Category)
			}
			if rerr.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, rerr.Code)
			}
		})
	}
}

func TestCSV_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	it, err := NewIngestor(nil).Open(ctx, []byte("pnr\nA\nB\n"), FileTypeCSV)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer it.Close()

	if _, err := it.Next(ctx); err != nil {
		t.Fatalf("first row: %v", err)
	}
	cancel()
	_, err = it.Next(ctx)
	if !errors.HasCode(err, errors.CodeCancelled) {
		t.Errorf("expected cancelled error, got %v", err)
	}
}

func TestCSV_NotRestartable(t *testing.T) {
	ctx := context.Background()
	it, err := NewIngestor(nil).Open(ctx, []byte("pnr\nA\n"), FileTypeCSV)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ReadAll(ctx, it); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := it.Next(ctx); err != io.EOF {
		t.Errorf("expected io.EOF after exhaustion, got %v", err)
	}
}

func buildWorkbook(t *testing.T, fill func(f *excelize.File, sheet string)) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	fill(f, sheet)
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("failed to write workbook: %v", err)
	}
	return buf.Bytes()
}

func TestExcel_TypedCells(t *testing.T) {
	data := buildWorkbook(t, func(f *excelize.File, sheet string) {
		f.SetSheetRow(sheet, "A1", &[]any{"PNR", "Passenger", "Flight", "Date", "Amount"})
		f.SetSheetRow(sheet, "A2", &[]any{"BK12345678", "Somchai Jaidee", "TG101", 45627, 4500.5})
		dateStyle, err := f.NewStyle(&excelize.Style{NumFmt: 14})
		if err != nil {
			t.Fatalf("failed to create date style: %v", err)
		}
		f.SetCellStyle(sheet, "D2", "D2", dateStyle)
	})

	ctx := context.Background()
	it, err := NewIngestor(nil).Open(ctx, data, FileTypeExcel)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, err := ReadAll(ctx, it)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]

	if got := mustGet(t, row, "PNR"); got != "BK12345678" {
		t.Errorf("PNR = %v", got)
	}
	amount, ok := mustGet(t, row, "Amount").(float64)
	if !ok || amount != 4500.5 {
		t.Errorf("expected float64 amount 4500.5, got %#v", mustGet(t, row, "Amount"))
	}
	date, ok := mustGet(t, row, "Date").(time.Time)
	if !ok {
		t.Fatalf("expected time.Time date, got %#v", mustGet(t, row, "Date"))
	}
	if date.Format("2006-01-02") != "2024-12-01" {
		t.Errorf("date = %s, want 2024-12-01", date.Format("2006-01-02"))
	}
}

func TestExcel_ShortRowsArePadded(t *testing.T) {
	data := buildWorkbook(t, func(f *excelize.File, sheet string) {
		f.SetSheetRow(sheet, "A1", &[]any{"pnr", "passengerName", "flightNumber"})
		f.SetSheetRow(sheet, "A2", &[]any{"BK1"})
	})

	ctx := context.Background()
	it, err := NewIngestor(nil).Open(ctx, data, FileTypeExcel)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, err := ReadAll(ctx, it)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Len() != 3 {
		t.Fatalf("expected one row with 3 columns, got %+v", rows)
	}
	if got := mustGet(t, rows[0], "flightNumber"); got != "" {
		t.Errorf("missing cell should be empty, got %v", got)
	}
}

func TestExcel_HeaderOnlyIsEmpty(t *testing.T) {
	data := buildWorkbook(t, func(f *excelize.File, sheet string) {
		f.SetSheetRow(sheet, "A1", &[]any{"pnr", "amount"})
	})

	ctx := context.Background()
	it, err := NewIngestor(nil).Open(ctx, data, FileTypeExcel)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, err := ReadAll(ctx, it)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
}

func TestExcel_CorruptWorkbook(t *testing.T) {
	_, err := NewIngestor(nil).Open(context.Background(), []byte("PK\x03\x04 this is not a workbook"), FileTypeExcel)
	if err == nil {
		t.Fatal("expected an error for a corrupt workbook")
	}
	if !errors.HasCode(err, errors.CodeFileCorrupted) {
		t.Errorf("expected file_corrupted, got %v", err)
	}
	rerr, _ := errors.AsReconcilerError(err)
	if rerr.Category != errors.CategoryParse {
		t.Errorf("expected parse category, got %s", rerr.Category)
	}
}

func TestIsDateFormatCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"yyyy-mm-dd", true},
		{"dd/mm/yyyy hh:mm", true},
		{"d-mmm", true},
		{"#,##0.00", false},
		{`0.00" days"`, false},
		{"[Red]0.00", false},
		{"hh:mm:ss", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := isDateFormatCode(tt.code); got != tt.want {
				t.Errorf("isDateFormatCode(%q) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}
