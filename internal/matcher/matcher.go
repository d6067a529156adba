package matcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"booking-validation-service/internal/models"
	"booking-validation-service/pkg/errors"
)

// BookingFinder is the read side of the booking store used for matching
type BookingFinder interface {
	// FindBookingByReference returns the booking whose own reference or
	// recorded airline PNR equals ref exactly, or nil when there is none.
	FindBookingByReference(ctx context.Context, ref string) (*models.Booking, error)

	// FindBookingsByFlightAndDate returns bookings whose flight number
	// contains flightNumber, case-insensitively, and that depart within
	// the calendar day of day.
	FindBookingsByFlightAndDate(ctx context.Context, flightNumber string, day time.Time) ([]*models.Booking, error)
}

// MatchingEngine runs the two matching stages for one record at a time.
// It holds no per-record state and is safe for concurrent use.
type MatchingEngine struct {
	Config *MatchingConfig
	finder BookingFinder
}

// MatchResult is the verdict for one canonical record
type MatchResult struct {
	BookingID *string
	Booking   *models.Booking
	Status    models.MatchStatus
	Score     int
	Details   models.MatchDetails
}

// IsMatched reports whether the verdict confirms a booking
func (r *MatchResult) IsMatched() bool {
	return r.Status == models.MatchStatusMatched && r.Booking != nil
}

// String returns a string representation of the MatchResult
func (r *MatchResult) String() string {
	booking := "-"
	if r.BookingID != nil {
		booking = *r.BookingID
	}
	return fmt.Sprintf("MatchResult{Status: %s, Score: %d, Booking: %s, Type: %s}",
		r.Status, r.Score, booking, r.Details.MatchType)
}

// NewMatchingEngine creates a new matching engine with the specified configuration
func NewMatchingEngine(finder BookingFinder, config *MatchingConfig) *MatchingEngine {
	if config == nil {
		config = DefaultMatchingConfig()
	}

	return &MatchingEngine{
		Config: config,
		finder: finder,
	}
}

// Match produces a verdict for record. A store failure is returned as a
// store category error and no verdict.
func (me *MatchingEngine) Match(ctx context.Context, record models.CanonicalRecord) (*MatchResult, error) {
	if ref := strings.TrimSpace(record.AirlineReference); ref != "" {
		booking, err := me.finder.FindBookingByReference(ctx, ref)
		if err != nil {
			return nil, errors.WrapIfNeeded(err, errors.CategoryStore, errors.CodeStoreUnavailable, "booking lookup by reference failed").
				WithContext("reference", ref)
		}
		if booking != nil {
			return exactReferenceResult(booking), nil
		}
	}

	if record.HasFlightWindow() {
		candidates, err := me.finder.FindBookingsByFlightAndDate(ctx, strings.TrimSpace(record.FlightNumber), *record.FlightDate)
		if err != nil {
			return nil, errors.WrapIfNeeded(err, errors.CategoryStore, errors.CodeStoreUnavailable, "booking lookup by flight and date failed").
				WithContext("flight_number", record.FlightNumber)
		}
		if result := me.selectCandidate(record.PassengerName, candidates); result != nil {
			return result, nil
		}
	}

	return NoMatchResult(), nil
}

// NoMatchResult is the stage three verdict
func NoMatchResult() *MatchResult {
	return &MatchResult{
		Status:  models.MatchStatusUnmatched,
		Score:   0,
		Details: models.MatchDetails{Reason: ReasonNoMatchFound},
	}
}

func exactReferenceResult(booking *models.Booking) *MatchResult {
	id := booking.ID
	return &MatchResult{
		BookingID: &id,
		Booking:   booking,
		Status:    models.MatchStatusMatched,
		Score:     ExactReferenceScore,
		Details:   models.MatchDetails{MatchType: MatchTypeExactReference},
	}
}

type scoredCandidate struct {
	booking   *models.Booking
	score     int
	passenger string
}

// selectCandidate applies the candidate policy. It returns nil when no
// candidate reaches the partial threshold.
func (me *MatchingEngine) selectCandidate(passengerName string, candidates []*models.Booking) *MatchResult {
	if me.Config.MaxCandidates > 0 && len(candidates) > me.Config.MaxCandidates {
		candidates = candidates[:me.Config.MaxCandidates]
	}

	name := NormalizeName(passengerName)
	var firstPartial, best *scoredCandidate

	for _, booking := range candidates {
		if booking == nil {
			continue
		}
		current := &scoredCandidate{booking: booking}
		if name != "" || !me.Config.SkipBlankNames {
			current.score, current.passenger = BestSimilarity(name, booking.PassengerNames())
		}

		switch me.Config.CandidatePolicy {
		case PolicyBestScore:
			if best == nil || current.score > best.score {
				best = current
			}
		default:
			switch ClassifyScore(current.score) {
			case models.MatchStatusMatched:
				return candidateResult(current, len(candidates))
			case models.MatchStatusPartial:
				if firstPartial == nil {
					firstPartial = current
				}
			}
		}
	}

	chosen := firstPartial
	if me.Config.CandidatePolicy == PolicyBestScore {
		chosen = best
	}
	if chosen == nil || ClassifyScore(chosen.score) == models.MatchStatusUnmatched {
		return nil
	}
	return candidateResult(chosen, len(candidates))
}

func candidateResult(c *scoredCandidate, candidateCount int) *MatchResult {
	id := c.booking.ID
	score := c.score
	return &MatchResult{
		BookingID: &id,
		Booking:   c.booking,
		Status:    ClassifyScore(c.score),
		Score:     c.score,
		Details: models.MatchDetails{
			MatchType:        MatchTypeFlightDatePassenger,
			PassengerScore:   &score,
			MatchedPassenger: c.passenger,
			CandidateCount:   candidateCount,
		},
	}
}
