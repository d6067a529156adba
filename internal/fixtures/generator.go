// Package fixtures generates matching booking and manifest data sets for
// demos, load tests and end-to-end checks.
package fixtures

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"booking-validation-service/internal/models"
)

// Outcome is the result a generated manifest row is built to produce
type Outcome string

const (
	// OutcomeReference rows carry the booking reference
	OutcomeReference Outcome = "reference"
	// OutcomeFuzzy rows carry no reference and a misspelt passenger name
	OutcomeFuzzy Outcome = "fuzzy"
	// OutcomeUnmatched rows name a flight no booking is on
	OutcomeUnmatched Outcome = "unmatched"
)

var firstNames = []string{
	"Somchai", "Malee", "Kittisak", "Niran", "Pranee", "Apichart",
	"Ratana", "Anong", "Boonmee", "Chanida", "Duangjai", "Pornthip",
}

var lastNames = []string{
	"Jaidee", "Srisuk", "Wongsawat", "Rattanakorn", "Phromma", "Thongchai",
	"Bunnag", "Kaewmanee", "Sukprasert", "Limthongkul", "Chaiyaporn", "Intharat",
}

var flights = []string{"TG101", "TG102", "TG203", "TG310", "FD3125", "WE261"}

var manifestHeaders = []string{"pnr", "ticketNumber", "passengerName", "flightNumber", "flightDate", "amount"}

// Generator builds a data set of bookings and a manifest against them
type Generator struct {
	// Count is the number of manifest rows
	Count int
	// Day is the departure day shared by every flight
	Day time.Time
	// ReferenceRatio and UnmatchedRatio split the rows; the rest are fuzzy
	ReferenceRatio float64
	UnmatchedRatio float64
	Seed           uint64
}

// NewGenerator returns a generator with a 60/20/20 reference, fuzzy,
// unmatched split
func NewGenerator(count int, seed uint64) *Generator {
	return &Generator{
		Count:          count,
		Day:            time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
		ReferenceRatio: 0.6,
		UnmatchedRatio: 0.2,
		Seed:           seed,
	}
}

// MaxCount is the largest data set with unique passenger names
func MaxCount() int {
	return len(firstNames) * len(lastNames)
}

// Validate checks the generator settings
func (g *Generator) Validate() error {
	if g.Count <= 0 || g.Count > MaxCount() {
		return errors.Errorf("count must be between 1 and %d, got %d", MaxCount(), g.Count)
	}
	if g.ReferenceRatio < 0 || g.UnmatchedRatio < 0 || g.ReferenceRatio+g.UnmatchedRatio > 1 {
		return errors.Errorf("invalid ratios: reference %.2f, unmatched %.2f", g.ReferenceRatio, g.UnmatchedRatio)
	}
	return nil
}

// ManifestRow is one generated manifest line
type ManifestRow struct {
	PNR           string
	TicketNumber  string
	PassengerName string
	FlightNumber  string
	FlightDate    time.Time
	Amount        decimal.Decimal

	// Expected outcome and the booking the row was built from
	Outcome   Outcome
	BookingID string
}

// Dataset is a generated set of bookings with a manifest
type Dataset struct {
	Bookings []*models.Booking
	Rows     []ManifestRow
}

// Count returns how many rows expect outcome
func (d *Dataset) Count(outcome Outcome) int {
	n := 0
	for _, r := range d.Rows {
		if r.Outcome == outcome {
			n++
		}
	}
	return n
}

// Generate builds the data set. The same seed always yields the same data.
func (g *Generator) Generate() (*Dataset, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(g.Seed, g.Seed^0x9e3779b97f4a7c15))
	names := rng.Perm(MaxCount())[:g.Count]

	references := int(math.Round(float64(g.Count) * g.ReferenceRatio))
	unmatched := int(math.Round(float64(g.Count) * g.UnmatchedRatio))

	ds := &Dataset{}
	for i, nameIndex := range names {
		passenger := models.Passenger{
			FirstName: firstNames[nameIndex%len(firstNames)],
			LastName:  lastNames[nameIndex/len(firstNames)],
		}
		flight := flights[i%len(flights)]
		departure := g.Day.Add(time.Duration(6+i%len(flights)*2) * time.Hour)
		amount := decimal.NewFromInt(int64(1500+rng.IntN(23500))).Add(decimal.New(int64(rng.IntN(100)), -2))

		row := ManifestRow{
			TicketNumber:  fmt.Sprintf("217%010d", rng.Int64N(1e10)),
			PassengerName: passenger.FullName(),
			FlightNumber:  flight,
			FlightDate:    g.Day,
			Amount:        amount,
		}

		switch {
		case i < references:
			row.Outcome = OutcomeReference
		case i < references+unmatched:
			row.Outcome = OutcomeUnmatched
			row.FlightNumber = fmt.Sprintf("ZZ%03d", 900+i%100)
			ds.Rows = append(ds.Rows, row)
			continue
		default:
			row.Outcome = OutcomeFuzzy
			row.PassengerName = misspell(passenger.FullName(), rng)
		}

		ref := fmt.Sprintf("BK%08d", 10000000+i)
		booking := &models.Booking{
			ID:            uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%d/%s", g.Seed, ref))).String(),
			BookingRef:    ref,
			FlightNumber:  flight,
			DepartureDate: departure,
			Passengers:    []models.Passenger{passenger},
		}
		if row.Outcome == OutcomeReference {
			row.PNR = booking.BookingRef
		}
		row.BookingID = booking.ID
		ds.Bookings = append(ds.Bookings, booking)
		ds.Rows = append(ds.Rows, row)
	}

	// interleave outcomes so the manifest does not look sorted
	rng.Shuffle(len(ds.Rows), func(i, j int) { ds.Rows[i], ds.Rows[j] = ds.Rows[j], ds.Rows[i] })
	return ds, nil
}

// misspell replaces one vowel of the name with another
func misspell(name string, rng *rand.Rand) string {
	swaps := map[byte]byte{'a': 'e', 'e': 'a', 'i': 'y', 'o': 'u', 'u': 'o'}
	b := []byte(name)

	var positions []int
	for i, c := range b {
		if _, ok := swaps[c]; ok {
			positions = append(positions, i)
		}
	}
	if len(positions) == 0 {
		return name
	}
	pos := positions[rng.IntN(len(positions))]
	b[pos] = swaps[b[pos]]
	return string(b)
}

func (r ManifestRow) record() []string {
	return []string{
		r.PNR,
		r.TicketNumber,
		r.PassengerName,
		r.FlightNumber,
		r.FlightDate.Format("2006-01-02"),
		r.Amount.StringFixed(2),
	}
}

// WriteBookingsJSON writes the bookings in the format the memory store loads
func (d *Dataset) WriteBookingsJSON(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return errors.Wrap(encoder.Encode(d.Bookings), "encode bookings")
}

// WriteManifestCSV writes the manifest with canonical column names
func (d *Dataset) WriteManifestCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(manifestHeaders); err != nil {
		return errors.Wrap(err, "write manifest header")
	}
	for _, r := range d.Rows {
		if err := writer.Write(r.record()); err != nil {
			return errors.Wrap(err, "write manifest row")
		}
	}
	writer.Flush()
	return errors.Wrap(writer.Error(), "flush manifest")
}

// WriteManifestXLSX writes the manifest as a single sheet workbook
func (d *Dataset) WriteManifestXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Manifest"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return errors.Wrap(err, "name sheet")
	}

	header := make([]any, len(manifestHeaders))
	for i, h := range manifestHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return errors.Wrap(err, "write manifest header")
	}

	for i, r := range d.Rows {
		values := r.record()
		cells := make([]any, len(values))
		for j, v := range values {
			cells[j] = v
		}
		// amounts as numbers so the sheet sums them
		if amount, err := strconv.ParseFloat(values[len(values)-1], 64); err == nil {
			cells[len(cells)-1] = amount
		}
		if err := f.SetSheetRow(sheet, "A"+strconv.Itoa(i+2), &cells); err != nil {
			return errors.Wrapf(err, "write manifest row %d", i+1)
		}
	}

	_, err := f.WriteTo(w)
	return errors.Wrap(err, "write workbook")
}
