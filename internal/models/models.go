package models

import (
	"fmt"
	"time"
)

const (
	// DateLayout is the persisted calendar date format of a slot.
	DateLayout = "2006-01-02"
	// ClockLayout is the persisted time-of-day format of a slot.
	ClockLayout = "15:04"
)

// Role classifies a person and drives slot visibility and emergency privileges.
type Role string

const (
	RoleStudent Role = "Student"
	RoleStaff   Role = "Staff"
	RoleFaculty Role = "Faculty"
)

// SeesFutureSlots reports whether the role may look past today when listing slots.
func (r Role) SeesFutureSlots() bool {
	return r == RoleStaff || r == RoleFaculty
}

// ParseRole validates a persisted role value.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleStudent, RoleStaff, RoleFaculty:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Person is a caller of the booking service. People are never modified after creation.
type Person struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (p *Person) IsStudent() bool { return p.Role == RoleStudent }

func (p *Person) IsFaculty() bool { return p.Role == RoleFaculty }


type SlotStatus string

const (
	SlotAvailable SlotStatus = "Available"
	SlotReserved  SlotStatus = "Reserved"
	SlotEmergency SlotStatus = "Emergency"
)

// Slot is a bookable date/time unit. Emergency slots are shared buckets, one per date.
type Slot struct {
	ID         int64      `json:"id"`
	Date       string     `json:"date"` // YYYY-MM-DD
	Time       string     `json:"time"` // HH:MM
	Status     SlotStatus `json:"status"`
	CreatedBy  string     `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	ModifiedBy string     `json:"modified_by,omitempty"`
	ModifiedAt *time.Time `json:"modified_at,omitempty"`
}

// IsBookable reports whether a normal booking may target the slot.
func (s *Slot) IsBookable() bool { return s.Status == SlotAvailable }

type BookingStatus string

const (
	BookingCreated   BookingStatus = "Created"
	BookingCancelled BookingStatus = "Cancelled"
	BookingEmergency BookingStatus = "Emergency"
)

// Booking links a person to a slot.
type Booking struct {
	ID        int64         `json:"id"`
	PersonID  int64         `json:"person_id"`
	SlotID    int64         `json:"slot_id"`
	Status    BookingStatus `json:"status"`
	ArrivedAt *time.Time    `json:"arrived_at,omitempty"`
	CreatedBy string        `json:"created_by"`
	CreatedAt time.Time     `json:"created_at"`
}

// SlotQuery selects Available slots by date.
// With Exact set only slots dated From are returned, otherwise slots dated From or later.
type SlotQuery struct {
	From  string
	Exact bool
}

// ReserveParams describes an atomic Available -> Reserved transition plus booking insert.
type ReserveParams struct {
	PersonID int64
	SlotID   int64
	Actor    string
	// DailyLimit re-checks the one-booking-per-day rule inside the transaction.
	DailyLimit bool
	At         time.Time
}

// EmergencyParams describes an emergency booking on the shared slot of Date.
type EmergencyParams struct {
	StudentID int64
	Date      string
	Time      string
	Actor     string
	At        time.Time
}

// DateOf formats t as a slot date in t's location.
func DateOf(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD slot date.
func ParseDate(s string) (time.Time, error) {
	return parseCanonical(DateLayout, s)
}

// ParseClock parses a zero-padded HH:MM slot time. Slot times are compared as text,
// so "9:00" is rejected.
func ParseClock(s string) (time.Time, error) {
	return parseCanonical(ClockLayout, s)
}

// ValidateSlotTime checks that date and clock are in their persisted forms.
func ValidateSlotTime(date, clock string) error {
	if _, err := ParseDate(date); err != nil {
		return fmt.Errorf("slot date: %w", err)
	}
	if _, err := ParseClock(clock); err != nil {
		return fmt.Errorf("slot time: %w", err)
	}
	return nil
}

func parseCanonical(layout, s string) (time.Time, error) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, err
	}
	if t.Format(layout) != s {
		return time.Time{}, fmt.Errorf("%q is not in %s form", s, layout)
	}
	return t, nil
}
