// Package matcher reconciles canonical manifest records against bookings.
//
// Matching runs in two stages and the first stage that produces a verdict
// wins:
//  1. Exact reference: a non-empty airline reference is looked up against
//     the booking's own reference and any previously recorded airline PNR.
//     A hit is an immediate match scored 100.
//  2. Flight/date + passenger name: bookings whose flight number contains
//     the record's flight number and that depart on the same calendar day
//     are scored by passenger name similarity. A score of 80 or more is a
//     match, 50 or more a partial match.
//
// Anything else is unmatched with score 0.
//
// The engine is read-only against the booking store. Persisting verdicts and
// marking bookings validated belongs to the reconciler.
//
// Example usage:
//
//	engine := matcher.NewMatchingEngine(bookingStore, matcher.DefaultMatchingConfig())
//	result, err := engine.Match(ctx, record)
package matcher

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"booking-validation-service/internal/models"
)

// Score thresholds. These are constants, not MatchingConfig fields.
const (
	// MatchThreshold is the minimum passenger score for a matched verdict
	MatchThreshold = 80

	// PartialThreshold is the minimum passenger score for a partial verdict
	PartialThreshold = 50

	// ExactReferenceScore is the score of a stage one hit
	ExactReferenceScore = 100
)

// Stage identifiers and reasons recorded in models.MatchDetails
const (
	MatchTypeExactReference      = "exact_reference"
	MatchTypeFlightDatePassenger = "flight_date_passenger"

	ReasonNoMatchFound     = "no_match_found"
	ReasonStoreUnavailable = "store_unavailable"
)

// ClassifyScore maps a passenger similarity score to a verdict
func ClassifyScore(score int) models.MatchStatus {
	switch {
	case score >= MatchThreshold:
		return models.MatchStatusMatched
	case score >= PartialThreshold:
		return models.MatchStatusPartial
	default:
		return models.MatchStatusUnmatched
	}
}

// CandidatePolicy decides which flight/date candidate wins when several
// clear a threshold.
type CandidatePolicy int

const (
	// PolicyFirstAboveThreshold accepts the first candidate, in retrieval
	// order, that reaches the match threshold, and otherwise the first one
	// that reaches the partial threshold.
	PolicyFirstAboveThreshold CandidatePolicy = iota

	// PolicyBestScore scores every candidate and keeps the highest one.
	// Ties keep the earlier candidate in retrieval order.
	PolicyBestScore
)

// String returns the string representation of CandidatePolicy
func (p CandidatePolicy) String() string {
	switch p {
	case PolicyFirstAboveThreshold:
		return "first"
	case PolicyBestScore:
		return "best"
	default:
		return "unknown"
	}
}

// ParseCandidatePolicy resolves "first" or "best"
func ParseCandidatePolicy(s string) (CandidatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first", "first_above_threshold":
		return PolicyFirstAboveThreshold, nil
	case "best", "best_score":
		return PolicyBestScore, nil
	default:
		return PolicyFirstAboveThreshold, fmt.Errorf("unknown candidate policy %q", s)
	}
}

// MatchingConfig holds configuration parameters for record matching.
//
// Only behavior that does not move the score thresholds is configurable:
// how candidates are chosen, how many are considered and which timezone
// manifest dates without a zone are read in.
type MatchingConfig struct {
	// CandidatePolicy selects between first-above-threshold and best-score
	CandidatePolicy CandidatePolicy `json:"candidate_policy" mapstructure:"candidate_policy"`

	// MaxCandidates caps the number of flight/date candidates scored per
	// record. Zero means no cap.
	MaxCandidates int `json:"max_candidates" mapstructure:"max_candidates"`

	// BusinessTimezone is the IANA zone manifest dates are interpreted in
	BusinessTimezone string `json:"business_timezone" mapstructure:"business_timezone"`

	// SkipBlankNames scores a record without a passenger name 0 against
	// every candidate. Left off, a blank name scores 100 against a blank
	// passenger like any other pair of equal names.
	SkipBlankNames bool `json:"skip_blank_names" mapstructure:"skip_blank_names"`
}

// DefaultMatchingConfig returns a configuration with sensible defaults
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		CandidatePolicy:  PolicyFirstAboveThreshold,
		MaxCandidates:    0,
		BusinessTimezone: "UTC",
	}
}

// BestScoreMatchingConfig returns the default configuration with the
// best-score candidate policy
func BestScoreMatchingConfig() *MatchingConfig {
	config := DefaultMatchingConfig()
	config.CandidatePolicy = PolicyBestScore
	return config
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if mc.CandidatePolicy != PolicyFirstAboveThreshold && mc.CandidatePolicy != PolicyBestScore {
		return fmt.Errorf("invalid candidate policy: %d", mc.CandidatePolicy)
	}
	if mc.MaxCandidates < 0 {
		return fmt.Errorf("max candidates cannot be negative: %d", mc.MaxCandidates)
	}
	if _, err := mc.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves BusinessTimezone, defaulting to UTC
func (mc *MatchingConfig) Location() (*time.Location, error) {
	if strings.TrimSpace(mc.BusinessTimezone) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(mc.BusinessTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid business timezone %q: %w", mc.BusinessTimezone, err)
	}
	return loc, nil
}

// Clone returns a copy of the configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	clone := *mc
	return &clone
}

// String returns a string representation of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{Policy: %s, MaxCandidates: %d, Timezone: %s, SkipBlankNames: %t}",
		mc.CandidatePolicy, mc.MaxCandidates, mc.BusinessTimezone, mc.SkipBlankNames)
}
