package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"nursedesk/internal/domain"
	"nursedesk/internal/models"
)

type slotView struct {
	ID   int64  `json:"id"`
	Date string `json:"date"`
	Time string `json:"time"`
}

type slotsResponse struct {
	Role      models.Role `json:"role"`
	IsFaculty bool        `json:"is_faculty"`
	Slots     []slotView  `json:"slots"`
}

type studentView struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type studentsResponse struct {
	Students []studentView `json:"students"`
}

type createBookingRequest struct {
	SlotID int64 `json:"slot_id"`
}

type createEmergencyRequest struct {
	StudentID int64 `json:"student_id"`
}

func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	listing, err := s.services.Catalog.AvailableFor(r.Context(), r.URL.Query().Get("usuario"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := slotsResponse{
		Role:      listing.Person.Role,
		IsFaculty: listing.Person.IsFaculty(),
		Slots:     make([]slotView, 0, len(listing.Slots)),
	}
	for _, slot := range listing.Slots {
		resp.Slots = append(resp.Slots, slotView{ID: slot.ID, Date: slot.Date, Time: slot.Time})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.SlotID <= 0 {
		s.fail(w, r, fmt.Errorf("slot_id must be positive: %w", domain.ErrValidation))
		return
	}

	booking, err := s.services.Engine.CreateBooking(r.Context(), r.URL.Query().Get("usuario"), req.SlotID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Success:   true,
		Message:   "Appointment booked successfully.",
		BookingID: booking.ID,
	})
}

func (s *HTTPServer) handleCreateEmergency(w http.ResponseWriter, r *http.Request) {
	var req createEmergencyRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.services.Emergency.RequestEmergency(r.Context(), r.URL.Query().Get("usuario"), req.StudentID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Success:   true,
		Message:   fmt.Sprintf("Emergency appointment created for %s.", res.Student.Name),
		BookingID: res.Booking.ID,
	})
}

func (s *HTTPServer) handleStudents(w http.ResponseWriter, r *http.Request) {
	students, err := s.services.Directory.ListStudents(r.Context(), r.URL.Query().Get("usuario"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := studentsResponse{Students: make([]studentView, 0, len(students))}
	for _, p := range students {
		resp.Students = append(resp.Students, studentView{ID: p.ID, Name: p.Name, Username: p.Username})
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %v: %w", err, domain.ErrValidation)
	}
	return nil
}

// fail writes the fixed message for err. Unexpected errors are logged with the request id.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if !domain.IsExpected(err) {
		s.logger.Error().
			Err(err).
			Str("request_id", RequestIDFrom(r.Context())).
			Str("path", r.URL.Path).
			Msg("Request failed")
	}
	writeError(w, status, domain.Message(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrPersonNotFound),
		errors.Is(err, domain.ErrStudentNotFound),
		errors.Is(err, domain.ErrSlotNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSlotUnavailable),
		errors.Is(err, domain.ErrDuplicateBookingSameDay):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
