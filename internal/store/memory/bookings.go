// Package memory provides mutex guarded in-memory implementations of the
// store interfaces. It backs the tests and the standalone CLI mode.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"booking-validation-service/internal/models"
	"booking-validation-service/internal/store"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// BookingStore keeps bookings in memory. Bookings are indexed by id, by
// reference and by departure time so flight/date searches only scan the
// requested day.
type BookingStore struct {
	mu sync.RWMutex

	byID  map[string]*models.Booking
	byRef map[string]*models.Booking
	byPNR map[string]*models.Booking

	// byDeparture is sorted by departure time then booking reference
	byDeparture []*models.Booking
}

var _ store.BookingStore = (*BookingStore)(nil)

// NewBookingStore creates a store seeded with bookings
func NewBookingStore(bookings ...*models.Booking) (*BookingStore, error) {
	s := &BookingStore{
		byID:  make(map[string]*models.Booking),
		byRef: make(map[string]*models.Booking),
		byPNR: make(map[string]*models.Booking),
	}
	if err := s.Seed(bookings...); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadBookingsFile reads a JSON array of bookings
func LoadBookingsFile(path string) ([]*models.Booking, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read bookings file %s", path)
	}

	var bookings []*models.Booking
	if err := json.Unmarshal(data, &bookings); err != nil {
		return nil, errors.Wrapf(err, "decode bookings file %s", path)
	}
	return bookings, nil
}

// Seed adds bookings to the store. Bookings without an id get a new one.
// A duplicate id or booking reference is rejected.
func (s *BookingStore) Seed(bookings ...*models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.sortByDeparture()

	for _, b := range bookings {
		if b == nil {
			continue
		}
		booking := cloneBooking(b)
		if booking.ID == "" {
			booking.ID = uuid.NewString()
		}
		if err := booking.Validate(); err != nil {
			return errors.Wrapf(err, "invalid booking %s", booking.BookingRef)
		}
		if _, exists := s.byID[booking.ID]; exists {
			return fmt.Errorf("duplicate booking id %s", booking.ID)
		}
		if _, exists := s.byRef[booking.BookingRef]; exists {
			return fmt.Errorf("duplicate booking reference %s", booking.BookingRef)
		}

		s.byID[booking.ID] = booking
		s.byRef[booking.BookingRef] = booking
		if booking.AirlinePNR != "" {
			s.byPNR[booking.AirlinePNR] = booking
		}
		s.byDeparture = append(s.byDeparture, booking)
	}

	return nil
}

// sortByDeparture must be called with the write lock held
func (s *BookingStore) sortByDeparture() {
	sort.SliceStable(s.byDeparture, func(i, j int) bool {
		a, b := s.byDeparture[i], s.byDeparture[j]
		if !a.DepartureDate.Equal(b.DepartureDate) {
			return a.DepartureDate.Before(b.DepartureDate)
		}
		return a.BookingRef < b.BookingRef
	})
}

// FindBookingByReference looks ref up as a booking reference first and as a
// recorded airline PNR second
func (s *BookingStore) FindBookingByReference(ctx context.Context, ref string) (*models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.byRef[ref]; ok {
		return cloneBooking(b), nil
	}
	if b, ok := s.byPNR[ref]; ok {
		return cloneBooking(b), nil
	}
	return nil, nil
}

// FindBookingsByFlightAndDate returns matching bookings in departure order
func (s *BookingStore) FindBookingsByFlightAndDate(ctx context.Context, flightNumber string, day time.Time) ([]*models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start, end := models.DayBounds(day)
	needle := strings.ToLower(flightNumber)

	s.mu.RLock()
	defer s.mu.RUnlock()

	first := sort.Search(len(s.byDeparture), func(i int) bool {
		return !s.byDeparture[i].DepartureDate.Before(start)
	})

	var bookings []*models.Booking
	for _, b := range s.byDeparture[first:] {
		if !b.DepartureDate.Before(end) {
			break
		}
		if strings.Contains(strings.ToLower(b.FlightNumber), needle) {
			bookings = append(bookings, cloneBooking(b))
		}
	}
	return bookings, nil
}

// UpdateBookingValidation applies update to the booking with bookingID
func (s *BookingStore) UpdateBookingValidation(ctx context.Context, bookingID string, update models.BookingValidation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.byID[bookingID]
	if !ok {
		return errors.Wrapf(store.ErrNotFound, "booking %s", bookingID)
	}

	if b.AirlinePNR != "" && b.AirlinePNR != update.AirlinePNR {
		delete(s.byPNR, b.AirlinePNR)
	}
	b.AirlinePNR = update.AirlinePNR
	if b.AirlinePNR != "" {
		s.byPNR[b.AirlinePNR] = b
	}
	b.TicketNumber = update.TicketNumber
	b.IsValidated = update.IsValidated
	validatedAt := update.ValidatedAt
	b.ValidatedAt = &validatedAt
	b.ValidatedBy = update.ValidatedBy
	return nil
}

// GetBooking returns the booking with bookingID
func (s *BookingStore) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.byID[bookingID]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "booking %s", bookingID)
	}
	return cloneBooking(b), nil
}

// Len returns the number of stored bookings
func (s *BookingStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func cloneBooking(b *models.Booking) *models.Booking {
	c := *b
	c.Passengers = append([]models.Passenger(nil), b.Passengers...)
	if b.ValidatedAt != nil {
		t := *b.ValidatedAt
		c.ValidatedAt = &t
	}
	return &c
}
