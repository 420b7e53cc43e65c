package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"nursedesk/internal/domain"
	"nursedesk/internal/events"
	"nursedesk/internal/models"

	"github.com/rs/zerolog"
)

// DefaultEmergencySlotTime is the time stamped on emergency slots.
const DefaultEmergencySlotTime = "00:00"

// EmergencyDispatcher books students on the shared emergency slot of the day.
type EmergencyDispatcher struct {
	directory *PersonDirectory
	store     EmergencyStore
	eventBus  EventPublisher
	calendar  Calendar
	slotTime  string
	logger    *zerolog.Logger
}

func NewEmergencyDispatcher(
	directory *PersonDirectory,
	store EmergencyStore,
	eventBus EventPublisher,
	calendar Calendar,
	slotTime string,
	logger *zerolog.Logger,
) *EmergencyDispatcher {
	if slotTime == "" {
		slotTime = DefaultEmergencySlotTime
	}
	l := logger.With().Str("component", "emergency_dispatcher").Logger()
	return &EmergencyDispatcher{
		directory: directory,
		store:     store,
		eventBus:  eventBus,
		calendar:  calendar,
		slotTime:  slotTime,
		logger:    &l,
	}
}

type EmergencyResult struct {
	Booking     *models.Booking
	Student     *models.Person
	Date        string
	SlotCreated bool
}

// RequestEmergency lets a faculty member book a student on today's emergency slot,
// opening the slot first when it does not exist yet.
func (d *EmergencyDispatcher) RequestEmergency(ctx context.Context, callerIdentity string, studentID int64) (*EmergencyResult, error) {
	res, err := d.requestEmergency(ctx, callerIdentity, studentID)
	if err != nil {
		d.logger.Debug().Err(err).Str("username", callerIdentity).Int64("student_id", studentID).Msg("Emergency rejected")
		d.publish(events.BookingRejected, events.RejectionPayload{
			Operation: "create_emergency",
			Reason:    domain.Kind(err),
			Actor:     callerIdentity,
		})
		return nil, err
	}

	d.logger.Info().
		Int64("booking_id", res.Booking.ID).
		Int64("slot_id", res.Booking.SlotID).
		Str("student", res.Student.Username).
		Str("requested_by", res.Booking.CreatedBy).
		Bool("slot_created", res.SlotCreated).
		Msg("Emergency booking created")

	if res.SlotCreated {
		d.publish(events.EmergencySlotOpened, events.SlotPayload{SlotID: res.Booking.SlotID, Date: res.Date})
	}
	d.publish(events.EmergencyCreated, events.BookingPayload{
		BookingID: res.Booking.ID,
		PersonID:  res.Student.ID,
		SlotID:    res.Booking.SlotID,
		Role:      string(res.Student.Role),
		Actor:     res.Booking.CreatedBy,
		Date:      res.Date,
	})
	return res, nil
}

func (d *EmergencyDispatcher) requestEmergency(ctx context.Context, callerIdentity string, studentID int64) (*EmergencyResult, error) {
	if strings.TrimSpace(callerIdentity) == "" {
		return nil, fmt.Errorf("empty caller: %w", domain.ErrValidation)
	}

	caller, err := d.directory.Resolve(ctx, callerIdentity)
	if errors.Is(err, domain.ErrPersonNotFound) {
		return nil, fmt.Errorf("unknown caller %q: %w", callerIdentity, domain.ErrForbidden)
	}
	if err != nil {
		return nil, err
	}
	if !caller.IsFaculty() {
		return nil, fmt.Errorf("%s is %s: %w", caller.Username, caller.Role, domain.ErrForbidden)
	}

	student, err := d.directory.ResolveID(ctx, studentID)
	if errors.Is(err, domain.ErrPersonNotFound) {
		return nil, fmt.Errorf("student %d: %w", studentID, domain.ErrStudentNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !student.IsStudent() {
		return nil, fmt.Errorf("person %d is %s: %w", studentID, student.Role, domain.ErrStudentNotFound)
	}

	now := d.calendar.now()
	date := models.DateOf(now)
	booking, created, err := d.store.CreateEmergencyBooking(ctx, models.EmergencyParams{
		StudentID: student.ID,
		Date:      date,
		Time:      d.slotTime,
		Actor:     caller.Username,
		At:        now,
	})
	if err != nil {
		return nil, err
	}
	return &EmergencyResult{Booking: booking, Student: student, Date: date, SlotCreated: created}, nil
}

func (d *EmergencyDispatcher) publish(eventType string, payload interface{}) {
	if d.eventBus == nil {
		return
	}
	if err := d.eventBus.PublishJSON(eventType, payload); err != nil {
		d.logger.Warn().Err(err).Str("type", eventType).Msg("Failed to publish event")
	}
}
