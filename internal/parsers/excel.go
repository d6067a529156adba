package parsers

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"booking-validation-service/pkg/errors"
	"booking-validation-service/pkg/logger"
)

// builtInDateFormats are the built-in number format ids that render dates
var builtInDateFormats = map[int]bool{
	14: true, 15: true, 16: true, 17: true, 18: true, 19: true, 20: true, 21: true, 22: true,
	27: true, 28: true, 29: true, 30: true, 31: true, 32: true, 33: true, 34: true, 35: true, 36: true,
	45: true, 46: true, 47: true,
	50: true, 51: true, 52: true, 53: true, 54: true, 55: true, 56: true, 57: true, 58: true,
}

type excelIterator struct {
	file       *excelize.File
	sheet      string
	rows       [][]string
	headers    []string
	next       int
	date1904   bool
	dateStyles map[int]bool
	config     *ParseConfig
	logger     logger.Logger
}

func newExcelIterator(data []byte, config *ParseConfig, log logger.Logger) (RowIterator, error) {
	fileName := config.FileName

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		log.WithError(err).WithField("file_name", fileName).Error("Failed to open workbook")
		return nil, errors.ParseError(errors.CodeFileCorrupted, fileName, 0, "", "", err)
	}

	sheet := config.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			f.Close()
			return emptyIterator{}, nil
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		f.Close()
		log.WithError(err).WithFields(logger.Fields{"file_name": fileName, "sheet": sheet}).Error("Failed to read worksheet")
		return nil, errors.ParseError(errors.CodeFileCorrupted, fileName, 0, sheet, "", err)
	}
	if len(rows) == 0 {
		f.Close()
		return emptyIterator{}, nil
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = headerName(h, i)
	}

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	log.WithFields(logger.Fields{
		"file_name": fileName,
		"sheet":     sheet,
		"rows":      len(rows) - 1,
		"headers":   headers,
	}).Debug("Read workbook header")

	return &excelIterator{
		file:       f,
		sheet:      sheet,
		rows:       rows,
		headers:    headers,
		next:       1,
		date1904:   date1904,
		dateStyles: make(map[int]bool),
		config:     config,
		logger:     log,
	}, nil
}

func (it *excelIterator) Next(ctx context.Context) (RawRow, error) {
	for {
		if it.next >= len(it.rows) {
			return RawRow{}, io.EOF
		}
		if err := cancelled(ctx); err != nil {
			return RawRow{}, err
		}

		index := it.next
		cells := it.rows[index]
		it.next++

		row := NewRawRow(len(it.headers))
		for col, h := range it.headers {
			if col >= len(cells) {
				row.Set(h, "")
				continue
			}
			row.Set(h, it.cellValue(col+1, index+1, cells[col]))
		}
		if it.config.SkipEmptyRows && row.IsEmpty() {
			continue
		}
		return row, nil
	}
}

func (it *excelIterator) Headers() []string {
	return it.headers
}

func (it *excelIterator) Close() error {
	if it.file == nil {
		return nil
	}
	err := it.file.Close()
	it.file = nil
	return err
}

// cellValue types a raw cell: numbers become float64 and date formatted
// numbers become time.Time. Everything else stays a string.
func (it *excelIterator) cellValue(col, rowNum int, raw string) any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	ref, err := excelize.CoordinatesToCellName(col, rowNum)
	if err != nil {
		return raw
	}
	cellType, err := it.file.GetCellType(it.sheet, ref)
	if err != nil {
		return raw
	}

	switch cellType {
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		number, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return raw
		}
		if it.isDateCell(ref) {
			if t, err := excelize.ExcelDateToTime(number, it.date1904); err == nil {
				return t
			}
		}
		return number
	case excelize.CellTypeDate:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, raw); err == nil {
				return t
			}
		}
		return raw
	default:
		return raw
	}
}

func (it *excelIterator) isDateCell(ref string) bool {
	styleID, err := it.file.GetCellStyle(it.sheet, ref)
	if err != nil || styleID == 0 {
		return false
	}
	if isDate, ok := it.dateStyles[styleID]; ok {
		return isDate
	}

	isDate := false
	if style, err := it.file.GetStyle(styleID); err == nil && style != nil {
		isDate = builtInDateFormats[style.NumFmt]
		if !isDate && style.CustomNumFmt != nil {
			isDate = isDateFormatCode(*style.CustomNumFmt)
		}
	}
	it.dateStyles[styleID] = isDate
	return isDate
}

// isDateFormatCode reports whether a custom number format renders a date.
// Quoted literals and bracketed sections are ignored.
func isDateFormatCode(code string) bool {
	var b strings.Builder
	inQuotes, inBrackets := false, false
	for _, r := range strings.ToLower(code) {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case inQuotes:
		case r == '[':
			inBrackets = true
		case r == ']':
			inBrackets = false
		case inBrackets:
		default:
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	return strings.ContainsAny(cleaned, "yd") || strings.Contains(cleaned, "mmm")
}
