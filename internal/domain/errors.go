package domain

import "errors"

var (
	ErrPersonNotFound          = errors.New("person not found")
	ErrSlotNotFound            = errors.New("slot not found")
	ErrSlotUnavailable         = errors.New("slot unavailable")
	ErrDuplicateBookingSameDay = errors.New("student already has a booking on this date")
	ErrForbidden               = errors.New("forbidden")
	ErrStudentNotFound         = errors.New("student not found")
	ErrValidation              = errors.New("validation error")
)

// ErrSlotExists is returned by slot provisioning when date and time are already taken.
var ErrSlotExists = errors.New("slot already exists")

// GenericMessage is returned to callers for any error outside the taxonomy.
const GenericMessage = "The request could not be completed. Please try again later."

var kinds = []struct {
	err     error
	kind    string
	message string
}{
	{ErrPersonNotFound, "person_not_found", "User not found."},
	{ErrSlotNotFound, "slot_not_found", "The selected slot does not exist."},
	{ErrSlotUnavailable, "slot_unavailable", "The selected slot is no longer available."},
	{ErrDuplicateBookingSameDay, "duplicate_booking_same_day", "You already have an appointment booked for that day."},
	{ErrForbidden, "forbidden", "This action is only available to faculty members."},
	{ErrStudentNotFound, "student_not_found", "Student not found."},
	{ErrValidation, "validation_error", "The request is invalid."},
}

// Kind returns a stable machine code for err, or "internal" for unexpected errors.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}

// Message returns the fixed user-facing message for err.
// Error text is never passed through so store details stay in the logs.
func Message(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.message
		}
	}
	return GenericMessage
}

// IsExpected reports whether err belongs to the booking error taxonomy.
func IsExpected(err error) bool {
	return Kind(err) != "internal"
}
