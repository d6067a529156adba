// Package parsers decodes uploaded airline manifests into raw rows.
//
// A manifest is either delimited text or a spreadsheet workbook. Both are
// exposed through the same RowIterator: the first row is the header and
// never appears as data, row order is preserved and an empty file yields an
// empty sequence. Cell values keep the type the source gives them: delimited
// text yields strings, workbooks yield strings, float64 for numeric cells and
// time.Time for date formatted cells.
//
// Example usage:
//
//	ingestor := NewIngestor(nil)
//	it, err := ingestor.Open(ctx, data, FileTypeCSV)
//	if err != nil {
//		return err
//	}
//	defer it.Close()
//	for {
//		row, err := it.Next(ctx)
//		if err == io.EOF {
//			break
//		}
//		...
//	}
//
// Decoding failures are reported as *errors.ReconcilerError values in the
// parse category and abort the whole manifest.
package parsers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"booking-validation-service/internal/models"
	"booking-validation-service/pkg/errors"
	"booking-validation-service/pkg/logger"
)

// FileType is the declared kind of a manifest
type FileType = models.FileType

const (
	FileTypeCSV   = models.FileTypeCSV
	FileTypeExcel = models.FileTypeExcel
)

var zipMagic = []byte("PK\x03\x04")

// ParseFileType resolves a user supplied kind name
func ParseFileType(name string) (FileType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "csv", "text/csv", "txt", "tsv", "delimited":
		return FileTypeCSV, nil
	case "excel", "xlsx", "xlsm", "spreadsheet", "workbook":
		return FileTypeExcel, nil
	default:
		return "", errors.ValidationError(errors.CodeUnsupportedFileType, "file_type", name, nil).
			WithSuggestion("use one of: csv, excel")
	}
}

// DetectFileType guesses the kind from the file name, then from content
func DetectFileType(fileName string, data []byte) FileType {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv", ".txt", ".tsv":
		return FileTypeCSV
	case ".xlsx", ".xlsm":
		return FileTypeExcel
	}
	if bytes.HasPrefix(data, zipMagic) {
		return FileTypeExcel
	}
	return FileTypeCSV
}

// ParseConfig holds configuration for manifest decoding
type ParseConfig struct {
	// Delimiter is used for delimited text unless DetectDelimiter finds another
	Delimiter        rune
	DetectDelimiter  bool
	Comment          rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	ValidateEncoding bool
	// Sheet selects a workbook sheet by name; empty means the first sheet
	Sheet string
	// FileName is only used to enrich error messages
	FileName string
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		Delimiter:        ',',
		DetectDelimiter:  true,
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		ValidateEncoding: true,
	}
}

// Validate checks the configuration
func (c *ParseConfig) Validate() error {
	switch c.Delimiter {
	case 0, '\r', '\n', '"':
		return fmt.Errorf("invalid delimiter %q", c.Delimiter)
	}
	if c.Comment != 0 && c.Comment == c.Delimiter {
		return fmt.Errorf("comment character cannot equal the delimiter")
	}
	return nil
}

// RawRow is one data row keyed by header name, in header order
type RawRow struct {
	Keys   []string
	values map[string]any
}

// NewRawRow creates an empty row with room for n columns
func NewRawRow(n int) RawRow {
	return RawRow{
		Keys:   make([]string, 0, n),
		values: make(map[string]any, n),
	}
}

// Set stores a value under key. The first occurrence of a key wins.
func (r *RawRow) Set(key string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, exists := r.values[key]; exists {
		return
	}
	r.Keys = append(r.Keys, key)
	r.values[key] = value
}

// Get looks a column up by exact name, then case-insensitively
func (r RawRow) Get(key string) (any, bool) {
	if v, ok := r.values[key]; ok {
		return v, true
	}
	want := strings.ToLower(strings.TrimSpace(key))
	if want == "" {
		return nil, false
	}
	for _, k := range r.Keys {
		if strings.ToLower(strings.TrimSpace(k)) == want {
			return r.values[k], true
		}
	}
	return nil, false
}

// Len returns the number of columns in the row
func (r RawRow) Len() int {
	return len(r.Keys)
}

// IsEmpty reports whether every value is blank
func (r RawRow) IsEmpty() bool {
	for _, v := range r.values {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		return false
	}
	return true
}

// RowIterator is a lazy, finite, non-restartable sequence of rows.
// Next returns io.EOF once the sequence is exhausted.
type RowIterator interface {
	Next(ctx context.Context) (RawRow, error)
	Headers() []string
	Close() error
}

// Ingestor opens manifests of either kind
type Ingestor struct {
	config *ParseConfig
	logger logger.Logger
}

// NewIngestor creates a new Ingestor with the given configuration
func NewIngestor(config *ParseConfig) *Ingestor {
	if config == nil {
		config = DefaultParseConfig()
	}

	log := logger.GetGlobalLogger().WithComponent("ingestor")
	log.WithFields(logger.Fields{
		"delimiter":         string(config.Delimiter),
		"detect_delimiter":  config.DetectDelimiter,
		"validate_encoding": config.ValidateEncoding,
	}).Debug("Created ingestor")

	return &Ingestor{
		config: config,
		logger: log,
	}
}

// Open decodes the header of data and returns an iterator over its rows
func (in *Ingestor) Open(ctx context.Context, data []byte, kind FileType) (RowIterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.ReconciliationError(errors.CodeCancelled, "ingest", err)
	}

	in.logger.WithFields(logger.Fields{
		"file_type": kind,
		"file_name": in.config.FileName,
		"size":      len(data),
	}).Debug("Opening manifest")

	if len(bytes.TrimSpace(data)) == 0 {
		return emptyIterator{}, nil
	}

	switch kind {
	case FileTypeCSV:
		return newCSVIterator(data, in.config, in.logger)
	case FileTypeExcel:
		return newExcelIterator(data, in.config, in.logger)
	default:
		return nil, errors.ValidationError(errors.CodeUnsupportedFileType, "file_type", kind, nil).
			WithSuggestion("use one of: csv, excel")
	}
}

// ReadAll drains the iterator and closes it
func ReadAll(ctx context.Context, it RowIterator) ([]RawRow, error) {
	defer it.Close()

	var rows []RawRow
	for {
		row, err := it.Next(ctx)
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

// headerName names a blank header cell after its position
func headerName(raw string, index int) string {
	name := strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))
	if name == "" {
		return fmt.Sprintf("column_%d", index+1)
	}
	return name
}

type emptyIterator struct{}

func (emptyIterator) Next(context.Context) (RawRow, error) { return RawRow{}, io.EOF }
func (emptyIterator) Headers() []string                    { return nil }
func (emptyIterator) Close() error                         { return nil }

func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.ReconciliationError(errors.CodeCancelled, "ingest", err)
	}
	return nil
}
