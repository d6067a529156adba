package gormstore

import (
	"context"
	"strings"
	"time"

	"booking-validation-service/internal/models"
	"booking-validation-service/internal/store"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func withPassengers(db *gorm.DB) *gorm.DB {
	return db.Preload("Passengers", func(db *gorm.DB) *gorm.DB {
		return db.Order("seq ASC")
	})
}

// SeedBookings inserts bookings with their passengers. Bookings without an
// id get a new one.
func (s *Store) SeedBookings(ctx context.Context, bookings ...*models.Booking) error {
	rows := make([]*BookingRow, 0, len(bookings))
	for _, b := range bookings {
		if b == nil {
			continue
		}
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		if err := b.Validate(); err != nil {
			return errors.Wrapf(err, "invalid booking %s", b.BookingRef)
		}
		rows = append(rows, toBookingRow(b))
	}
	if len(rows) == 0 {
		return nil
	}
	return errors.Wrap(s.db.WithContext(ctx).Create(&rows).Error, "seed bookings")
}

// FindBookingByReference looks ref up as a booking reference first and as a
// recorded airline PNR second
func (s *Store) FindBookingByReference(ctx context.Context, ref string) (*models.Booking, error) {
	for _, column := range []string{"booking_ref", "airline_pnr"} {
		var rows []BookingRow
		err := withPassengers(s.db.WithContext(ctx)).
			Where(column+" = ?", ref).
			Order("departure_date ASC").
			Limit(1).
			Find(&rows).Error
		if err != nil {
			return nil, errors.Wrap(err, "find booking by reference")
		}
		if len(rows) > 0 {
			return rows[0].toModel(), nil
		}
	}
	return nil, nil
}

// FindBookingsByFlightAndDate returns matching bookings ordered by
// departure time and booking reference
func (s *Store) FindBookingsByFlightAndDate(ctx context.Context, flightNumber string, day time.Time) ([]*models.Booking, error) {
	start, end := models.DayBounds(day)
	pattern := "%" + likeEscaper.Replace(strings.ToLower(flightNumber)) + "%"

	var rows []BookingRow
	err := withPassengers(s.db.WithContext(ctx)).
		Where(`LOWER(flight_number) LIKE ? ESCAPE '\'`, pattern).
		Where("departure_date >= ? AND departure_date < ?", start.UTC(), end.UTC()).
		Order("departure_date ASC").
		Order("booking_ref ASC").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "find bookings by flight and date")
	}

	bookings := make([]*models.Booking, 0, len(rows))
	for i := range rows {
		bookings = append(bookings, rows[i].toModel())
	}
	return bookings, nil
}

// UpdateBookingValidation writes the validation fields of one booking
func (s *Store) UpdateBookingValidation(ctx context.Context, bookingID string, update models.BookingValidation) error {
	validatedAt := update.ValidatedAt.UTC()
	result := s.db.WithContext(ctx).
		Model(&BookingRow{}).
		Where("id = ?", bookingID).
		Updates(map[string]interface{}{
			"airline_pnr":   update.AirlinePNR,
			"ticket_number": update.TicketNumber,
			"is_validated":  update.IsValidated,
			"validated_at":  validatedAt,
			"validated_by":  update.ValidatedBy,
		})
	if result.Error != nil {
		return errors.Wrapf(result.Error, "update booking %s", bookingID)
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(store.ErrNotFound, "booking %s", bookingID)
	}
	return nil
}

// GetBooking loads one booking with its passengers
func (s *Store) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	var row BookingRow
	if err := withPassengers(s.db.WithContext(ctx)).First(&row, "id = ?", bookingID).Error; err != nil {
		return nil, notFound(err, "booking", bookingID)
	}
	return row.toModel(), nil
}
