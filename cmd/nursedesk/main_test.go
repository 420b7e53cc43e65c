package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nursedesk/internal/config"
	"nursedesk/internal/database"
	"nursedesk/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) (dir, path string) {
	t.Helper()
	dir = t.TempDir()
	roster := filepath.Join(dir, "roster.yaml")
	require.NoError(t, os.WriteFile(roster, []byte(`
people:
  - username: est1
    name: Ana
    role: Student
  - username: profe1
    name: Dr. Ruiz
    role: Faculty
`), 0o644))

	path = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: `+filepath.Join(dir, "data", "nursedesk.db")+`
backup:
  storage_path: `+filepath.Join(dir, "backups")+`
  retention_days: 7
roster:
  path: `+roster+`
logging:
  level: error
`), 0o644))
	return dir, path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_RosterSlotsAndBackup(t *testing.T) {
	dir, cfgPath := writeConfig(t)

	out, err := run(t, "--config", cfgPath, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema is up to date (sqlite)")

	out, err = run(t, "--config", cfgPath, "roster", "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "2 added, 2 total")

	out, err = run(t, "--config", cfgPath, "roster", "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "0 added, 2 total")

	out, err = run(t, "--config", cfgPath, "slots", "add", "--date", "2024-05-01", "--time", "08:00")
	require.NoError(t, err)
	assert.Contains(t, out, "created for 2024-05-01 08:00")

	_, err = run(t, "--config", cfgPath, "slots", "add", "--date", "2024-05-01", "--time", "08:00")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = run(t, "--config", cfgPath, "slots", "add", "--date", "01/05/2024", "--time", "08:00")
	require.Error(t, err)

	out, err = run(t, "--config", cfgPath, "backup")
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, filepath.Join(dir, "backups")), out)

	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(dir, "data", "nursedesk.db"), &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	students, err := db.ListPeopleByRole(ctx, models.RoleStudent)
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "est1", students[0].Username)

	slots, err := db.ListAvailableSlots(ctx, models.SlotQuery{From: "2024-05-01", Exact: true})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "admin", slots[0].CreatedBy)
}

func TestCLI_BackupRequiresSQLite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: postgres\n  dsn: postgres://localhost/none\n"), 0o644))

	_, err := run(t, "--config", path, "backup")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only supported")
}

func TestNewLogger_Level(t *testing.T) {
	logger := newLogger(config.LoggingConfig{Level: "warn", Format: "json"})
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())

	logger = newLogger(config.LoggingConfig{Level: "bogus"})
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}
