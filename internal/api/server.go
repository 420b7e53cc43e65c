package api

import (
	"encoding/json"
	"net/http"

	"nursedesk/internal/config"
	"nursedesk/internal/service"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// HTTPServer exposes the booking services over JSON.
type HTTPServer struct {
	services *service.Services
	limiter  *identityLimiter
	logger   *zerolog.Logger
}

func NewHTTPServer(services *service.Services, rl config.RateLimitConfig, logger *zerolog.Logger) *HTTPServer {
	l := logger.With().Str("component", "api").Logger()
	s := &HTTPServer{services: services, logger: &l}
	if rl.Enabled {
		s.limiter = newIdentityLimiter(rl.RequestsPerSecond, rl.Burst)
	}
	return s
}

// Router builds the chi router for the public API.
func (s *HTTPServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger(s.logger))
	r.Use(chimw.Recoverer)

	r.Route("/api", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.middleware)
		}
		r.Get("/slots", s.observe("slots", s.handleSlots))
		r.Post("/bookings", s.observe("bookings", s.handleCreateBooking))
		r.Post("/emergencies", s.observe("emergencies", s.handleCreateEmergency))
		r.Get("/students", s.observe("students", s.handleStudents))
	})

	return r
}

// Response is the body of booking operations.
type Response struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	BookingID int64  `json:"booking_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Success: false, Message: message})
}
