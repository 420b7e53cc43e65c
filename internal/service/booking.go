package service

import (
	"context"
	"errors"
	"fmt"

	"nursedesk/internal/domain"
	"nursedesk/internal/events"
	"nursedesk/internal/models"

	"github.com/rs/zerolog"
)

// BookingEngine commits normal bookings against Available slots.
type BookingEngine struct {
	directory *PersonDirectory
	catalog   *SlotCatalog
	bookings  BookingStore
	eventBus  EventPublisher
	calendar  Calendar
	logger    *zerolog.Logger
}

func NewBookingEngine(
	directory *PersonDirectory,
	catalog *SlotCatalog,
	bookings BookingStore,
	eventBus EventPublisher,
	calendar Calendar,
	logger *zerolog.Logger,
) *BookingEngine {
	l := logger.With().Str("component", "booking_engine").Logger()
	return &BookingEngine{
		directory: directory,
		catalog:   catalog,
		bookings:  bookings,
		eventBus:  eventBus,
		calendar:  calendar,
		logger:    &l,
	}
}

// CreateBooking books slotID for the caller. The slot must be Available and a
// student may hold only one active booking per date. The final check and the
// Available -> Reserved transition happen atomically in the store.
func (e *BookingEngine) CreateBooking(ctx context.Context, identity string, slotID int64) (*models.Booking, error) {
	booking, person, err := e.createBooking(ctx, identity, slotID)
	if err != nil {
		e.rejected(identity, err)
		return nil, err
	}

	e.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("slot_id", slotID).
		Str("username", person.Username).
		Str("role", string(person.Role)).
		Msg("Booking created")

	e.publish(events.BookingCreated, events.BookingPayload{
		BookingID: booking.ID,
		PersonID:  person.ID,
		SlotID:    booking.SlotID,
		Role:      string(person.Role),
		Actor:     booking.CreatedBy,
	})
	return booking, nil
}

func (e *BookingEngine) createBooking(ctx context.Context, identity string, slotID int64) (*models.Booking, *models.Person, error) {
	person, err := e.directory.Resolve(ctx, identity)
	if err != nil {
		return nil, nil, err
	}

	slot, err := e.catalog.GetByID(ctx, slotID)
	if errors.Is(err, domain.ErrSlotNotFound) {
		return nil, nil, fmt.Errorf("slot %d does not exist: %w", slotID, domain.ErrSlotUnavailable)
	}
	if err != nil {
		return nil, nil, err
	}
	if !slot.IsBookable() {
		return nil, nil, fmt.Errorf("slot %d is %s: %w", slot.ID, slot.Status, domain.ErrSlotUnavailable)
	}

	if person.IsStudent() {
		taken, err := e.bookings.HasActiveBookingOnDate(ctx, person.ID, slot.Date)
		if err != nil {
			return nil, nil, err
		}
		if taken {
			return nil, nil, fmt.Errorf("%s on %s: %w", person.Username, slot.Date, domain.ErrDuplicateBookingSameDay)
		}
	}

	booking, err := e.bookings.ReserveSlot(ctx, models.ReserveParams{
		PersonID:   person.ID,
		SlotID:     slot.ID,
		Actor:      person.Username,
		DailyLimit: person.IsStudent(),
		At:         e.calendar.now(),
	})
	if err != nil {
		return nil, nil, err
	}
	return booking, person, nil
}

func (e *BookingEngine) rejected(identity string, err error) {
	e.logger.Debug().Err(err).Str("username", identity).Msg("Booking rejected")
	e.publish(events.BookingRejected, events.RejectionPayload{
		Operation: "create_booking",
		Reason:    domain.Kind(err),
		Actor:     identity,
	})
}

func (e *BookingEngine) publish(eventType string, payload interface{}) {
	if e.eventBus == nil {
		return
	}
	if err := e.eventBus.PublishJSON(eventType, payload); err != nil {
		e.logger.Warn().Err(err).Str("type", eventType).Msg("Failed to publish event")
	}
}
