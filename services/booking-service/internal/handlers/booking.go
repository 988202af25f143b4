package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

type BookingHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewBookingHandler(svc *booking.Service, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger}
}

// Routes mounts the public API. limit guards the two write endpoints.
func (h *BookingHandler) Routes(r chi.Router, limit httpx.Middleware) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/available-times/{date}", h.AvailableTimes)
		r.Get("/appointments/date/{date}", h.ListByDate)
		r.Get("/cancel-appointment/verify", h.VerifyCancellation)
		r.Group(func(r chi.Router) {
			if limit != nil {
				r.Use(limit)
			}
			r.Post("/appointments", h.Create)
			r.Post("/cancel-appointment", h.Cancel)
		})
	})
}

type availabilityResponse struct {
	Date       string   `json:"date"`
	Type       string   `json:"type"`
	IsBookable bool     `json:"isBookable"`
	Reason     string   `json:"reason,omitempty"`
	Slots      []string `json:"slots"`
}

type createBookingRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	VisitType string `json:"visit_type"`
	Date      string `json:"date"`
	Time      string `json:"time"`
}

type createBookingResponse struct {
	AppointmentID         string `json:"appointment_id"`
	Date                  string `json:"date"`
	Time                  string `json:"time"`
	CancellationToken     string `json:"cancellation_token"`
	CancellationURL       string `json:"cancellation_url"`
	CancellationExpiresAt string `json:"cancellation_expires_at"`
	IsExistingPatient     bool   `json:"is_existing_patient"`
}

type verifyCancellationResponse struct {
	AppointmentID        string `json:"appointment_id"`
	PatientName          string `json:"patient_name"`
	Date                 string `json:"date"`
	Time                 string `json:"time"`
	VisitType            string `json:"visit_type,omitempty"`
	Status               string `json:"status"`
	CancellationDeadline string `json:"cancellation_deadline"`
	CanCancel            bool   `json:"can_cancel"`
	DenialReason         string `json:"denial_reason,omitempty"`
}

type cancelBookingRequest struct {
	Token string `json:"token"`
}

type cancelBookingResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	CancelledAt   string `json:"cancelled_at"`
}

// listAppointmentItem is served without auth, so it carries no contact details.
type listAppointmentItem struct {
	AppointmentID string `json:"appointment_id"`
	PatientID     string `json:"patient_id"`
	PatientName   string `json:"patient_name"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	VisitType     string `json:"visit_type,omitempty"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
}

func (h *BookingHandler) AvailableTimes(w http.ResponseWriter, r *http.Request) {
	date, err := model.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}
	av, err := h.svc.AvailableSlots(r.Context(), date)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, availabilityResponse{
		Date:       av.Date.String(),
		Type:       string(av.Type),
		IsBookable: av.IsBookable,
		Reason:     av.Reason,
		Slots:      av.Slots,
	})
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_body", "invalid json body")
		return
	}
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.FirstName == "" || req.LastName == "" || req.Phone == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_fields", "first_name, last_name and phone are required")
		return
	}
	date, err := model.ParseDate(req.Date)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}
	at, err := model.ParseClock(req.Time)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_time", "time must be HH:MM")
		return
	}

	b, err := h.svc.Book(r.Context(), booking.Request{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		VisitType: req.VisitType,
		Date:      date,
		Time:      at,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, createBookingResponse{
		AppointmentID:         b.Appointment.ID,
		Date:                  b.Appointment.Date.String(),
		Time:                  b.Appointment.Time.String(),
		CancellationToken:     b.Appointment.CancellationToken,
		CancellationURL:       b.CancellationURL,
		CancellationExpiresAt: b.TokenExpiresAt.UTC().Format(time.RFC3339),
		IsExistingPatient:     b.ExistingPatient,
	})
}

func (h *BookingHandler) VerifyCancellation(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_token", "token is required")
		return
	}
	p, err := h.svc.Inspect(r.Context(), token)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	resp := verifyCancellationResponse{
		AppointmentID:        p.Appointment.ID,
		PatientName:          p.Appointment.PatientName,
		Date:                 p.Appointment.Date.String(),
		Time:                 p.Appointment.Time.String(),
		VisitType:            p.Appointment.VisitType,
		Status:               string(p.Appointment.Status),
		CancellationDeadline: p.Deadline.UTC().Format(time.RFC3339),
		CanCancel:            p.CanCancel,
	}
	if p.Denial != nil {
		resp.DenialReason = classify(p.Denial).code
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_body", "invalid json body")
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_token", "token is required")
		return
	}
	c, err := h.svc.Cancel(r.Context(), req.Token)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cancelBookingResponse{
		AppointmentID: c.Appointment.ID,
		Status:        string(c.Appointment.Status),
		CancelledAt:   c.CancelledAt.UTC().Format(time.RFC3339),
	})
}

func (h *BookingHandler) ListByDate(w http.ResponseWriter, r *http.Request) {
	date, err := model.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}
	appts, err := h.svc.AppointmentsOn(r.Context(), date)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	items := make([]listAppointmentItem, 0, len(appts))
	for _, a := range appts {
		item := listAppointmentItem{
			AppointmentID: a.ID,
			PatientID:     a.PatientID,
			PatientName:   a.PatientName,
			Date:          a.Date.String(),
			Time:          a.Time.String(),
			VisitType:     a.VisitType,
			Status:        string(a.Status),
			CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
		}
		if a.CancelledAt != nil {
			item.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"date": date.String(), "items": items})
}

type errorClass struct {
	status  int
	code    string
	message string
}

var domainErrors = []struct {
	target error
	status int
	code   string
}{
	{model.ErrNotBookable, http.StatusUnprocessableEntity, "not_bookable"},
	{model.ErrNoScheduleConfigured, http.StatusUnprocessableEntity, "no_schedule"},
	{model.ErrSlotUnavailable, http.StatusUnprocessableEntity, "slot_unavailable"},
	{model.ErrDuplicateBooking, http.StatusConflict, "duplicate_booking"},
	{model.ErrInvalidToken, http.StatusBadRequest, "invalid_token"},
	{model.ErrCancellationWindowClosed, http.StatusForbidden, "cancellation_window_closed"},
	{model.ErrAlreadyCancelled, http.StatusConflict, "already_cancelled"},
	{model.ErrTokenMismatch, http.StatusForbidden, "token_mismatch"},
	{model.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
}

func classify(err error) errorClass {
	var nb *model.NotBookableError
	if errors.As(err, &nb) {
		return errorClass{http.StatusUnprocessableEntity, "not_bookable", nb.Reason}
	}
	for _, d := range domainErrors {
		if errors.Is(err, d.target) {
			return errorClass{d.status, d.code, d.target.Error()}
		}
	}
	return errorClass{http.StatusInternalServerError, "internal", "internal server error"}
}

func (h *BookingHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	c := classify(err)
	if c.status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	httpx.WriteError(w, c.status, c.code, c.message)
}
