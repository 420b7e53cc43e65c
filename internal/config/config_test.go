package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"nursedesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultsAndEnvExpansion(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("NURSEDESK_TEST_DB", filepath.Join(dir, "db", "test.db"))

	path := writeFile(t, dir, "config.yaml", `
database:
  path: ${NURSEDESK_TEST_DB}
booking:
  timezone: UTC
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, filepath.Join(dir, "db", "test.db"), cfg.Database.Path)
	assert.DirExists(t, filepath.Join(dir, "db"))
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "00:00", cfg.Booking.EmergencySlotTime)
	assert.Equal(t, 10*time.Minute, cfg.PersonCacheTTL())
	assert.Equal(t, 24*time.Hour, cfg.BackupInterval())
	assert.Equal(t, 30*time.Second, cfg.RosterWatchInterval())
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())
}

func TestLoad_PathFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "custom.yaml", "database:\n  path: "+filepath.Join(dir, "x.db")+"\nredis:\n  person_ttl_seconds: 30\n")
	t.Setenv(PathEnv, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.PersonCacheTTL())
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"unknown driver", "database:\n  driver: mysql\n"},
		{"postgres without dsn", "database:\n  driver: postgres\n"},
		{"bad emergency time", "database:\n  path: " + filepath.Join(dir, "a.db") + "\nbooking:\n  emergency_slot_time: midnight\n"},
		{"unpadded emergency time", "database:\n  path: " + filepath.Join(dir, "c.db") + "\nbooking:\n  emergency_slot_time: \"0:00\"\n"},
		{"bad timezone", "database:\n  path: " + filepath.Join(dir, "b.db") + "\nbooking:\n  timezone: Mars/Olympus\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, "config.yaml", tt.content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRoster(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "roster.yaml", `
people:
  - username: est1
    name: Ana Student
    role: Student
  - username: profe1
    name: " Dr. Faculty "
    role: Faculty
`)

	r, err := LoadRoster(path)
	require.NoError(t, err)

	people := r.Persons()
	require.Len(t, people, 2)
	assert.Equal(t, models.RoleStudent, people[0].Role)
	assert.Equal(t, "Dr. Faculty", people[1].Name)
}

func TestRoster_Validate(t *testing.T) {
	tests := []struct {
		name   string
		roster Roster
	}{
		{"missing username", Roster{People: []RosterEntry{{Name: "A", Role: "Student"}}}},
		{"missing name", Roster{People: []RosterEntry{{Username: "a", Role: "Student"}}}},
		{"bad role", Roster{People: []RosterEntry{{Username: "a", Name: "A", Role: "Profesor"}}}},
		{"duplicate", Roster{People: []RosterEntry{
			{Username: "a", Name: "A", Role: "Student"},
			{Username: "a", Name: "B", Role: "Staff"},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.roster.Validate())
		})
	}
}

func TestWatchRoster_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "roster.yaml", "people:\n  - {username: a, name: A, role: Student}\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var last atomic.Int32
	err := WatchRoster(ctx, path, 10*time.Millisecond, func(r *Roster) {
		last.Store(int32(len(r.People)))
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), last.Load())

	writeFile(t, dir, "roster.yaml", "people:\n  - {username: a, name: A, role: Student}\n  - {username: b, name: B, role: Staff}\n")
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	assert.Eventually(t, func() bool { return last.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}
