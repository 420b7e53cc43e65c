package service

import (
	"context"
	"time"

	"nursedesk/internal/models"

	"github.com/rs/zerolog"
)

type PersonStore interface {
	GetPersonByUsername(ctx context.Context, username string) (*models.Person, error)
	GetPersonByID(ctx context.Context, id int64) (*models.Person, error)
	ListPeopleByRole(ctx context.Context, role models.Role) ([]models.Person, error)
}

type SlotStore interface {
	GetSlot(ctx context.Context, id int64) (*models.Slot, error)
	ListAvailableSlots(ctx context.Context, q models.SlotQuery) ([]models.Slot, error)
}

type BookingStore interface {
	HasActiveBookingOnDate(ctx context.Context, personID int64, date string) (bool, error)
	ReserveSlot(ctx context.Context, p models.ReserveParams) (*models.Booking, error)
}

type EmergencyStore interface {
	CreateEmergencyBooking(ctx context.Context, p models.EmergencyParams) (*models.Booking, bool, error)
}

// Store is everything the booking services need from persistence.
type Store interface {
	PersonStore
	SlotStore
	BookingStore
	EmergencyStore
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Calendar decides what "now" and "today" mean for booking rules.
type Calendar struct {
	Now      func() time.Time
	Location *time.Location
}

func (c Calendar) now() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	return now().In(loc)
}

// Today returns the current date in the calendar's location.
func (c Calendar) Today() string {
	return models.DateOf(c.now())
}

// Options configure New.
type Options struct {
	Calendar Calendar
	// People overrides the store for person lookups, e.g. with a cache.
	People            PersonStore
	EmergencySlotTime string
}

// Services bundles the booking components behind one store.
type Services struct {
	Directory *PersonDirectory
	Catalog   *SlotCatalog
	Engine    *BookingEngine
	Emergency *EmergencyDispatcher
}

func New(store Store, bus EventPublisher, opts Options, logger *zerolog.Logger) *Services {
	people := opts.People
	if people == nil {
		people = store
	}

	directory := NewPersonDirectory(people, logger)
	catalog := NewSlotCatalog(store, directory, opts.Calendar, logger)
	return &Services{
		Directory: directory,
		Catalog:   catalog,
		Engine:    NewBookingEngine(directory, catalog, store, bus, opts.Calendar, logger),
		Emergency: NewEmergencyDispatcher(directory, store, bus, opts.Calendar, opts.EmergencySlotTime, logger),
	}
}
