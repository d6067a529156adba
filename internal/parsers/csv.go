package parsers

import (
	"bytes"
	"context"
	"encoding/csv"
	stderrors "errors"
	"io"
	"strings"
	"unicode/utf8"

	"booking-validation-service/pkg/errors"
	"booking-validation-service/pkg/logger"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// delimiterCandidates are tried in order when detecting the delimiter
var delimiterCandidates = []rune{',', ';', '\t', '|'}

type csvIterator struct {
	reader   *csv.Reader
	headers  []string
	config   *ParseConfig
	logger   logger.Logger
	fileName string
	done     bool
}

func newCSVIterator(data []byte, config *ParseConfig, log logger.Logger) (RowIterator, error) {
	fileName := config.FileName
	data = bytes.TrimPrefix(data, utf8BOM)

	if config.ValidateEncoding {
		if line := invalidUTF8Line(data); line > 0 {
			log.WithFields(logger.Fields{"file_name": fileName, "line": line}).Error("Manifest is not valid UTF-8")
			return nil, errors.EncodingError(fileName, line, nil)
		}
	}

	delimiter := config.Delimiter
	if config.DetectDelimiter {
		delimiter = detectDelimiter(data, config.Delimiter)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.Comment = config.Comment
	reader.TrimLeadingSpace = config.TrimLeadingSpace

	header, err := reader.Read()
	if err == io.EOF {
		return emptyIterator{}, nil
	}
	if err != nil {
		return nil, csvReadError(fileName, err)
	}

	headers := make([]string, len(header))
	for i, h := range header {
		headers[i] = headerName(h, i)
	}
	reader.FieldsPerRecord = len(headers)

	log.WithFields(logger.Fields{
		"file_name": fileName,
		"delimiter": string(delimiter),
		"headers":   headers,
	}).Debug("Read manifest header")

	return &csvIterator{
		reader:   reader,
		headers:  headers,
		config:   config,
		logger:   log,
		fileName: fileName,
	}, nil
}

func (it *csvIterator) Next(ctx context.Context) (RawRow, error) {
	for {
		if it.done {
			return RawRow{}, io.EOF
		}
		if err := cancelled(ctx); err != nil {
			return RawRow{}, err
		}

		record, err := it.reader.Read()
		if err == io.EOF {
			it.done = true
			return RawRow{}, io.EOF
		}
		if err != nil {
			it.done = true
			var pe *csv.ParseError
			if stderrors.As(err, &pe) && stderrors.Is(pe.Err, csv.ErrFieldCount) {
				it.logger.WithFields(logger.Fields{
					"file_name": it.fileName,
					"line":      pe.StartLine,
					"expected":  len(it.headers),
					"actual":    len(record),
				}).Error("Manifest row width differs from header")
				return RawRow{}, errors.RowWidthError(it.fileName, pe.StartLine, len(it.headers), len(record), record)
			}
			return RawRow{}, csvReadError(it.fileName, err)
		}

		row := NewRawRow(len(it.headers))
		for i, h := range it.headers {
			row.Set(h, strings.TrimSpace(record[i]))
		}
		if it.config.SkipEmptyRows && row.IsEmpty() {
			continue
		}
		return row, nil
	}
}

func (it *csvIterator) Headers() []string {
	return it.headers
}

func (it *csvIterator) Close() error {
	it.done = true
	return nil
}

func csvReadError(fileName string, err error) error {
	line := 0
	var pe *csv.ParseError
	if stderrors.As(err, &pe) {
		line = pe.StartLine
	}
	return errors.MalformedRecordError(fileName, line, err)
}

// detectDelimiter picks the candidate that occurs most often in the header
// line outside of quotes. Ties keep the fallback.
func detectDelimiter(data []byte, fallback rune) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}

	counts := make(map[rune]int, len(delimiterCandidates))
	inQuotes := false
	for _, r := range string(line) {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[r]++
		}
	}

	best := fallback
	bestCount := counts[fallback]
	for _, c := range delimiterCandidates {
		if counts[c] > bestCount {
			best, bestCount = c, counts[c]
		}
	}
	return best
}

// invalidUTF8Line returns the 1-based line of the first invalid byte, or 0
func invalidUTF8Line(data []byte) int {
	if utf8.Valid(data) {
		return 0
	}
	for i, line := range bytes.Split(data, []byte("\n")) {
		if !utf8.Valid(line) {
			return i + 1
		}
	}
	return 1
}
