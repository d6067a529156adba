// Package mapping translates vendor manifest columns into canonical records.
package mapping

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"booking-validation-service/internal/models"
	"booking-validation-service/internal/parsers"
	"booking-validation-service/pkg/errors"
)

// Canonical field names accepted as mapping keys
const (
	FieldPNR           = "pnr"
	FieldBookingRef    = "bookingRef"
	FieldTicketNumber  = "ticketNumber"
	FieldPassengerName = "passengerName"
	FieldFirstName     = "firstName"
	FieldLastName      = "lastName"
	FieldFlightNumber  = "flightNumber"
	FieldFlightDate    = "flightDate"
	FieldAmount        = "amount"
)

var canonicalFields = []string{
	FieldPNR,
	FieldBookingRef,
	FieldTicketNumber,
	FieldPassengerName,
	FieldFirstName,
	FieldLastName,
	FieldFlightNumber,
	FieldFlightDate,
	FieldAmount,
}

// ColumnMapping maps a canonical field name to a source column header.
// A nil or empty mapping selects automatic mode, where each field is read
// from a column named literally after it.
type ColumnMapping map[string]string

// Fields returns the canonical field names in a stable order
func Fields() []string {
	out := make([]string, len(canonicalFields))
	copy(out, canonicalFields)
	return out
}

// canonicalField resolves a key case-insensitively, or returns ""
func canonicalField(key string) string {
	want := strings.ToLower(strings.TrimSpace(key))
	for _, f := range canonicalFields {
		if strings.ToLower(f) == want {
			return f
		}
	}
	return ""
}

// Normalize returns a copy keyed by canonical field names with blank
// entries dropped. Unknown keys are an error.
func (m ColumnMapping) Normalize() (ColumnMapping, error) {
	out := make(ColumnMapping, len(m))
	var unknown []string
	for key, column := range m {
		field := canonicalField(key)
		if field == "" {
			unknown = append(unknown, key)
			continue
		}
		if column = strings.TrimSpace(column); column != "" {
			out[field] = column
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "column_mapping", strings.Join(unknown, ", "), nil).
			WithSuggestion(fmt.Sprintf("valid mapping keys are: %s", strings.Join(canonicalFields, ", ")))
	}
	return out, nil
}

// IsAutomatic reports whether no explicit column is mapped
func (m ColumnMapping) IsAutomatic() bool {
	for _, column := range m {
		if strings.TrimSpace(column) != "" {
			return false
		}
	}
	return true
}

// LoadMapping reads a JSON or YAML mapping file. The mapping may sit at the
// top level or under a "columns" key.
func LoadMapping(path string) (ColumnMapping, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "mapping_file", path, err).
			WithSuggestion("provide a JSON or YAML file such as {\"pnr\": \"PNR\", \"passengerName\": \"Passenger\"}")
	}

	source := v.GetStringMapString("columns")
	if len(source) == 0 {
		source = make(map[string]string)
		for _, key := range v.AllKeys() {
			source[key] = v.GetString(key)
		}
	}

	return ColumnMapping(source).Normalize()
}

// Mapper turns raw rows into canonical records
type Mapper struct {
	Mapping ColumnMapping
	// Location is used for dates that carry no zone; nil means UTC
	Location *time.Location
}

// NewMapper creates a Mapper. Keys are normalized leniently: unknown keys
// are ignored here, use ColumnMapping.Normalize to reject them.
func NewMapper(mapping ColumnMapping, loc *time.Location) *Mapper {
	normalized := make(ColumnMapping, len(mapping))
	for key, column := range mapping {
		if field := canonicalField(key); field != "" && strings.TrimSpace(column) != "" {
			normalized[field] = strings.TrimSpace(column)
		}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Mapper{Mapping: normalized, Location: loc}
}

// Map builds the canonical record for one row. It never fails: missing or
// malformed values become empty strings, nil optionals or a zero amount.
func (m *Mapper) Map(row parsers.RawRow, rowNumber int) models.CanonicalRecord {
	reference := stringValue(m.value(row, FieldPNR))
	if reference == "" {
		reference = stringValue(m.value(row, FieldBookingRef))
	}

	passenger := stringValue(m.value(row, FieldPassengerName))
	if passenger == "" {
		first := stringValue(m.value(row, FieldFirstName))
		last := stringValue(m.value(row, FieldLastName))
		passenger = strings.TrimSpace(first + " " + last)
	}

	return models.CanonicalRecord{
		RowNumber:        rowNumber,
		AirlineReference: reference,
		TicketNumber:     optionalString(stringValue(m.value(row, FieldTicketNumber))),
		PassengerName:    passenger,
		FlightNumber:     stringValue(m.value(row, FieldFlightNumber)),
		FlightDate:       dateValue(m.value(row, FieldFlightDate), m.Location),
		Amount:           amountValue(m.value(row, FieldAmount)),
	}
}

// MapAll maps rows in order; row numbers start at 1
func (m *Mapper) MapAll(rows []parsers.RawRow) []models.CanonicalRecord {
	records := make([]models.CanonicalRecord, len(rows))
	for i, row := range rows {
		records[i] = m.Map(row, i+1)
	}
	return records
}

// value reads the mapped column, or the column named after the field when
// the field is not mapped
func (m *Mapper) value(row parsers.RawRow, field string) any {
	column := field
	if mapped, ok := m.Mapping[field]; ok {
		column = mapped
	}
	v, _ := row.Get(column)
	return v
}
