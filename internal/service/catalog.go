package service

import (
	"context"
	"fmt"

	"nursedesk/internal/domain"
	"nursedesk/internal/models"

	"github.com/rs/zerolog"
)

// SlotCatalog lists bookable slots according to the caller's role.
type SlotCatalog struct {
	slots     SlotStore
	directory *PersonDirectory
	calendar  Calendar
	logger    *zerolog.Logger
}

func NewSlotCatalog(slots SlotStore, directory *PersonDirectory, calendar Calendar, logger *zerolog.Logger) *SlotCatalog {
	l := logger.With().Str("component", "slot_catalog").Logger()
	return &SlotCatalog{slots: slots, directory: directory, calendar: calendar, logger: &l}
}

// Listing is the slot view of one caller.
type Listing struct {
	Person *models.Person
	Slots  []models.Slot
}

// ListAvailable returns Available slots visible to role on referenceDate:
// students see only that date, staff and faculty see that date onwards.
func (c *SlotCatalog) ListAvailable(ctx context.Context, role models.Role, referenceDate string) ([]models.Slot, error) {
	if _, err := models.ParseDate(referenceDate); err != nil {
		return nil, fmt.Errorf("reference date %q: %w", referenceDate, domain.ErrValidation)
	}

	if _, err := models.ParseRole(string(role)); err != nil {
		return nil, fmt.Errorf("role %q: %w", role, domain.ErrValidation)
	}

	return c.slots.ListAvailableSlots(ctx, models.SlotQuery{From: referenceDate, Exact: !role.SeesFutureSlots()})
}

func (c *SlotCatalog) GetByID(ctx context.Context, id int64) (*models.Slot, error) {
	if id <= 0 {
		return nil, fmt.Errorf("slot %d: %w", id, domain.ErrSlotNotFound)
	}
	return c.slots.GetSlot(ctx, id)
}

// AvailableFor resolves the caller and lists the slots they may book today.
func (c *SlotCatalog) AvailableFor(ctx context.Context, identity string) (*Listing, error) {
	person, err := c.directory.Resolve(ctx, identity)
	if err != nil {
		return nil, err
	}

	slots, err := c.ListAvailable(ctx, person.Role, c.calendar.Today())
	if err != nil {
		return nil, err
	}
	return &Listing{Person: person, Slots: slots}, nil
}
