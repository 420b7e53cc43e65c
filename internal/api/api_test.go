package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"nursedesk/internal/config"
	"nursedesk/internal/database"
	"nursedesk/internal/domain"
	"nursedesk/internal/events"
	"nursedesk/internal/models"
	"nursedesk/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	db     *database.DB
	srv    *httptest.Server
	people map[string]*models.Person
	now    time.Time
}

func setupTestServer(t *testing.T, rl config.RateLimitConfig) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	_, err = db.SyncRoster(ctx, []models.Person{
		{Username: "est1", Name: "Ana", Role: models.RoleStudent},
		{Username: "est7", Name: "Seven", Role: models.RoleStudent},
		{Username: "staff1", Name: "Sam", Role: models.RoleStaff},
		{Username: "profe1", Name: "Dr. Ruiz", Role: models.RoleFaculty},
	})
	require.NoError(t, err)

	env := &testEnv{
		db:     db,
		people: make(map[string]*models.Person),
		now:    time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
	}
	for _, u := range []string{"est1", "est7", "staff1", "profe1"} {
		p, err := db.GetPersonByUsername(ctx, u)
		require.NoError(t, err)
		env.people[u] = p
	}

	svcs := service.New(db, events.NewEventBus(&logger), service.Options{
		Calendar: service.Calendar{Now: func() time.Time { return env.now }, Location: time.UTC},
	}, &logger)
	env.srv = httptest.NewServer(NewHTTPServer(svcs, rl, &logger).Router())
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) slot(t *testing.T, date, clock string) *models.Slot {
	t.Helper()
	s, err := e.db.ProvisionSlot(context.Background(), date, clock, "admin", e.now)
	require.NoError(t, err)
	return s
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *testEnv) post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	resp, err := http.Post(e.srv.URL+path, "application/json", &buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestGetSlots(t *testing.T) {
	env := setupTestServer(t, config.RateLimitConfig{})
	a := env.slot(t, "2024-05-01", "08:00")
	env.slot(t, "2024-05-02", "08:00")

	resp := env.get(t, "/api/slots?usuario=est1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	var body slotsResponse
	decode(t, resp, &body)
	assert.Equal(t, models.RoleStudent, body.Role)
	assert.False(t, body.IsFaculty)
	require.Len(t, body.Slots, 1)
	assert.Equal(t, slotView{ID: a.ID, Date: "2024-05-01", Time: "08:00"}, body.Slots[0])

	resp = env.get(t, "/api/slots?usuario=profe1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &body)
	assert.True(t, body.IsFaculty)
	assert.Len(t, body.Slots, 2)
}

func TestGetSlots_Errors(t *testing.T) {
	env := setupTestServer(t, config.RateLimitConfig{})

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantMsg    string
	}{
		{"missing usuario", "/api/slots", http.StatusBadRequest, "The request is invalid."},
		{"unknown usuario", "/api/slots?usuario=ghost", http.StatusNotFound, "User not found."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.get(t, tt.path)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			var body Response
			decode(t, resp, &body)
			assert.False(t, body.Success)
			assert.Equal(t, tt.wantMsg, body.Message)
		})
	}
}

func TestGetSlots_EmptyListIsArray(t *testing.T) {
	env := setupTestServer(t, config.RateLimitConfig{})

	resp := env.get(t, "/api/slots?usuario=staff1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"slots":[]`)
}

func TestCreateBooking(t *testing.T) {
	env := setupTestServer(t, config.RateLimitConfig{})
	a := env.slot(t, "2024-05-01", "08:00")
	b := env.slot(t, "2024-05-01", "09:00")

	resp := env.post(t, "/api/bookings?usuario=est1", map[string]int64{"slot_id": a.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ok Response
	decode(t, resp, &ok)
	assert.True(t, ok.Success)
	assert.Equal(t, "Appointment booked successfully.", ok.Message)
	assert.NotZero(t, ok.BookingID)

	tests := []struct {
		name       string
		usuario    string
		body       interface{}
		wantStatus int
		wantMsg    string
	}{
		{"same day twice", "est1", map[string]int64{"slot_id": b.ID}, http.StatusConflict, "You already have an appointment booked for that day."},
		{"slot taken", "staff1", map[string]int64{"slot_id": a.ID}, http.StatusConflict, "The selected slot is no longer available."},
		{"slot missing", "staff1", map[string]int64{"slot_id": 9999}, http.StatusConflict, "The selected slot is no longer available."},
		{"unknown user", "ghost", map[string]int64{"slot_id": b.ID}, http.StatusNotFound, "User not found."},
		{"zero slot id", "staff1", map[string]int64{"slot_id": 0}, http.StatusBadRequest, "The request is invalid."},
		{"unknown field", "staff1", `{"slot_id": 1, "extra": true}`, http.StatusBadRequest, "The request is invalid."},
		{"malformed json", "staff1", `{"slot_id":`, http.StatusBadRequest, "The request is invalid."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.post(t, "/api/bookings?usuario="+tt.usuario, tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			var body Response
			decode(t, resp, &body)
			assert.False(t, body.Success)
			assert.Equal(t, tt.wantMsg, body.Message)
		})
	}

	slot, err := env.db.GetSlot(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotAvailable, slot.Status)
}

func TestCreateEmergency(t *testing.T) {
	env := setupTestServer(t, config.RateLimitConfig{})
	est7 := env.people["est7"].ID

	resp := env.post(t, "/api/emergencies?usuario=profe1", map[string]int64{"student_id": est7})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ok Response
	decode(t, resp, &ok)
	assert.True(t, ok.Success)
	assert.Equal(t, "Emergency appointment created for Seven.", ok.Message)

	tests := []struct {
		name       string
		usuario    string
		studentID  int64
		wantStatus int
		wantMsg    string
	}{
		{"staff caller", "staff1", est7, http.StatusForbidden, "This action is only available to faculty members."},
		{"unknown caller", "ghost", est7, http.StatusForbidden, "This action is only available to faculty members."},
		{"empty caller", "", est7, http.StatusBadRequest, "The request is invalid."},
		{"target not a student", "profe1", env.people["staff1"].ID, http.StatusNotFound, "Student not found."},
		{"missing student", "profe1", 9999, http.StatusNotFound, "Student not found."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.post(t, "/api/emergencies?usuario="+tt.usuario, map[string]int64{"student_id": tt.studentID})
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			var body Response
			decode(t, resp, &body)
			assert.False(t, body.Success)
			assert.Equal(t, tt.wantMsg, body.Message)
		})
	}

	var count int
	require.NoError(t, env.db.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM slots WHERE status = 'Emergency'`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestCreateEmergency_MalformedBody(t *testing.T) {
	env := setupTestServer(t, config.RateLimitConfig{})

	tests := []struct {
		name string
		body string
	}{
		{"truncated", `{"student_id":`},
		{"unknown field", `{"student_id":1,"x":true}`},
		{"wrong type", `{"student_id":"7"}`},
		{"empty", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.post(t, "/api/emergencies?usuario=profe1", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var body Response
			decode(t, resp, &body)
			assert.False(t, body.Success)
			assert.Equal(t, "The request is invalid.", body.Message)
		})
	}

	var count int
	require.NoError(t, env.db.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM slots WHERE status = 'Emergency'`).Scan(&count))
	assert.Zero(t, count)
}

func TestListStudents(t *testing.T) {
	env := setupTestServer(t, config.RateLimitConfig{})

	resp := env.get(t, "/api/students?usuario=profe1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body studentsResponse
	decode(t, resp, &body)
	require.Len(t, body.Students, 2)
	assert.Equal(t, "Ana", body.Students[0].Name)
	assert.Equal(t, "est1", body.Students[0].Username)
	assert.Equal(t, "Seven", body.Students[1].Name)

	resp = env.get(t, "/api/students?usuario=est1")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	env := setupTestServer(t, config.RateLimitConfig{Enabled: true, RequestsPerSecond: 0.01, Burst: 2})

	for i := 0; i < 2; i++ {
		resp := env.get(t, "/api/slots?usuario=est1")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := env.get(t, "/api/slots?usuario=est1")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "100", resp.Header.Get("Retry-After"))

	// Other identities have their own bucket.
	resp = env.get(t, "/api/slots?usuario=staff1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestID_Propagated(t *testing.T) {
	env := setupTestServer(t, config.RateLimitConfig{})
	id := "0b6f2c4e-2f55-4d2a-9a53-3b0f7d1c9e11"

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/api/slots?usuario=est1", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, id)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, id, resp.Header.Get(requestIDHeader))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", domain.ErrValidation), http.StatusBadRequest},
		{domain.ErrForbidden, http.StatusForbidden},
		{domain.ErrPersonNotFound, http.StatusNotFound},
		{domain.ErrStudentNotFound, http.StatusNotFound},
		{domain.ErrSlotNotFound, http.StatusNotFound},
		{domain.ErrSlotUnavailable, http.StatusConflict},
		{domain.ErrDuplicateBookingSameDay, http.StatusConflict},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestHealthHandler(t *testing.T) {
	var down atomic.Bool
	srv := httptest.NewServer(HealthHandler(Check{
		Name: "db",
		Ping: func(context.Context) error {
			if down.Load() {
				return errors.New("down")
			}
			return nil
		},
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	down.Store(true)
	resp, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(raw), "db not ready")
}
