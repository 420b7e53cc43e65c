package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	for _, s := range []string{"Student", "Staff", "Faculty"} {
		r, err := ParseRole(s)
		assert.NoError(t, err)
		assert.Equal(t, Role(s), r)
	}

	_, err := ParseRole("Profesor")
	assert.Error(t, err)
	_, err = ParseRole("")
	assert.Error(t, err)
}

func TestPerson_RoleHelpers(t *testing.T) {
	tests := []struct {
		role       Role
		student    bool
		faculty    bool
		seesFuture bool
	}{
		{RoleStudent, true, false, false},
		{RoleStaff, false, false, true},
		{RoleFaculty, false, true, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			p := &Person{Role: tt.role}
			assert.Equal(t, tt.student, p.IsStudent())
			assert.Equal(t, tt.faculty, p.IsFaculty())
			assert.Equal(t, tt.seesFuture, p.Role.SeesFutureSlots())
		})
	}
}

func TestSlot_Helpers(t *testing.T) {
	available := &Slot{Status: SlotAvailable}
	assert.True(t, available.IsBookable())
	assert.False(t, (&Slot{Status: SlotReserved}).IsBookable())
	assert.False(t, (&Slot{Status: SlotEmergency}).IsBookable())
}

func TestDateHelpers(t *testing.T) {
	loc := time.FixedZone("UTC-6", -6*60*60)
	// 03:00 UTC on May 2nd is still May 1st six hours west.
	ts := time.Date(2024, 5, 2, 3, 0, 0, 0, time.UTC).In(loc)
	assert.Equal(t, "2024-05-01", DateOf(ts))

	d, err := ParseDate("2024-05-01")
	assert.NoError(t, err)
	assert.Equal(t, time.May, d.Month())

	_, err = ParseDate("01/05/2024")
	assert.Error(t, err)

	c, err := ParseClock("09:30")
	assert.NoError(t, err)
	assert.Equal(t, 9, c.Hour())
	assert.Equal(t, 30, c.Minute())

	_, err = ParseDate("2024-5-01")
	assert.Error(t, err)
}

func TestParseClock_RequiresZeroPadding(t *testing.T) {
	for _, s := range []string{"00:00", "09:00", "10:00", "23:59"} {
		_, err := ParseClock(s)
		assert.NoError(t, err, s)
	}

	for _, s := range []string{"9:00", "0:00", "9h30", "09:0", "24:00", " 09:00", ""} {
		_, err := ParseClock(s)
		assert.Error(t, err, s)
	}
}

func TestValidateSlotTime(t *testing.T) {
	assert.NoError(t, ValidateSlotTime("2024-05-01", "08:00"))
	assert.Error(t, ValidateSlotTime("2024-05-01", "8:00"))
	assert.Error(t, ValidateSlotTime("2024-5-1", "08:00"))
}
