package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/cancellation"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/canceltoken"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/ports/portstest"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/schedule"
)

func newTestRouter(t *testing.T, now time.Time, limit int) (http.Handler, *portstest.Store) {
	t.Helper()
	store := portstest.NewStore()
	store.Now = func() time.Time { return now }
	store.SetWeekly(model.WeeklySchedule{
		Weekday:      time.Tuesday,
		IsWorkingDay: true,
		Windows:      []model.Window{{Start: model.NewClock(9, 0), End: model.NewClock(13, 0)}},
	})
	store.SetWeekly(model.WeeklySchedule{Weekday: time.Sunday, IsWorkingDay: false})

	codec, err := canceltoken.NewCodec("handler-test-secret-0123456789abcdef", time.UTC)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := booking.NewService(
		schedule.NewResolver(store),
		store,
		codec,
		cancellation.NewEnforcer(time.UTC),
		nil,
		logger,
		booking.Config{Location: time.UTC, PublicBaseURL: "https://clinic.example", Now: func() time.Time { return now }},
	)

	r := chi.NewRouter()
	NewBookingHandler(svc, logger).Routes(r, httpx.RateLimit(httpx.NewFixedWindow(limit, time.Minute), logger, false))
	return r, store
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	req.RemoteAddr = "203.0.113.7:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func bookBody(phone, day, at string) string {
	return fmt.Sprintf(`{"first_name":"Ana","last_name":"Rojas","phone":%q,"visit_type":"checkup","date":%q,"time":%q}`, phone, day, at)
}

func TestAvailableTimes(t *testing.T) {
	h, _ := newTestRouter(t, time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC), 5)

	rec := do(t, h, http.MethodGet, "/api/v1/available-times/2025-06-10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	av := decode[availabilityResponse](t, rec)
	if !av.IsBookable || av.Type != "default_schedule" || len(av.Slots) != 12 || av.Slots[0] != "09:00" {
		t.Fatalf("unexpected availability %+v", av)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/available-times/2025-06-08", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unbookable day still returns 200, got %d", rec.Code)
	}
	av = decode[availabilityResponse](t, rec)
	if av.IsBookable || av.Reason != model.ReasonNotWorkingDay || av.Slots == nil {
		t.Fatalf("unexpected closed day %+v", av)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/available-times/10-06-2025", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed date, got %d", rec.Code)
	}
}

func TestCreateAndCancelAppointment(t *testing.T) {
	h, store := newTestRouter(t, time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC), 50)

	rec := do(t, h, http.MethodPost, "/api/v1/appointments", bookBody("+56911112222", "2025-06-10", "10:00"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[createBookingResponse](t, rec)
	if created.AppointmentID == "" || created.CancellationToken == "" || created.IsExistingPatient {
		t.Fatalf("unexpected create response %+v", created)
	}
	if created.CancellationExpiresAt != "2025-06-09T22:00:00Z" {
		t.Fatalf("unexpected token expiry %s", created.CancellationExpiresAt)
	}
	u, err := url.Parse(created.CancellationURL)
	if err != nil || u.Query().Get("token") != created.CancellationToken {
		t.Fatalf("cancellation url must carry the token: %s", created.CancellationURL)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/appointments", bookBody("+56911112222", "2025-06-10", "10:00"))
	if rec.Code != http.StatusConflict || decode[httpx.ErrorBody](t, rec).Error != "duplicate_booking" {
		t.Fatalf("expected 409 duplicate_booking, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPost, "/api/v1/appointments", bookBody("+56933334444", "2025-06-10", "10:00"))
	if rec.Code != http.StatusUnprocessableEntity || decode[httpx.ErrorBody](t, rec).Error != "slot_unavailable" {
		t.Fatalf("expected 422 slot_unavailable, got %d: %s", rec.Code, rec.Body.String())
	}

	verify := "/api/v1/cancel-appointment/verify?token=" + url.QueryEscape(created.CancellationToken)
	rec = do(t, h, http.MethodGet, verify, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	preview := decode[verifyCancellationResponse](t, rec)
	if !preview.CanCancel || preview.AppointmentID != created.AppointmentID || preview.CancellationDeadline != "2025-06-09T22:00:00Z" {
		t.Fatalf("unexpected preview %+v", preview)
	}

	body := fmt.Sprintf(`{"token":%q}`, created.CancellationToken)
	rec = do(t, h, http.MethodPost, "/api/v1/cancel-appointment", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	cancelled := decode[cancelBookingResponse](t, rec)
	if cancelled.Status != "cancelled" || cancelled.AppointmentID != created.AppointmentID {
		t.Fatalf("unexpected cancel response %+v", cancelled)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/cancel-appointment", body)
	if rec.Code != http.StatusConflict || decode[httpx.ErrorBody](t, rec).Error != "already_cancelled" {
		t.Fatalf("expected 409 already_cancelled, got %d: %s", rec.Code, rec.Body.String())
	}
	if n := len(store.Events()); n != 2 {
		t.Fatalf("expected booked and cancelled events, got %d", n)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/appointments/date/2025-06-10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	list := decode[struct {
		Items []listAppointmentItem `json:"items"`
	}](t, rec)
	if len(list.Items) != 1 || list.Items[0].Status != "cancelled" || list.Items[0].CancelledAt == "" {
		t.Fatalf("unexpected listing %+v", list.Items)
	}
}

func TestListingOmitsPatientPhone(t *testing.T) {
	h, _ := newTestRouter(t, time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC), 50)

	rec := do(t, h, http.MethodPost, "/api/v1/appointments", bookBody("+56911112222", "2025-06-10", "10:00"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/v1/appointments/date/2025-06-10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "+56911112222") || strings.Contains(body, "patient_phone") {
		t.Fatalf("listing must not expose phone numbers: %s", body)
	}
	if !strings.Contains(body, `"patient_name":"Ana Rojas"`) {
		t.Fatalf("expected patient name in listing: %s", body)
	}
}

func TestCreateValidation(t *testing.T) {
	h, _ := newTestRouter(t, time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC), 50)
	cases := []struct {
		name string
		body string
		code string
	}{
		{"malformed json", `{`, "invalid_body"},
		{"missing phone", `{"first_name":"Ana","last_name":"Rojas","date":"2025-06-10","time":"10:00"}`, "missing_fields"},
		{"bad date", bookBody("+1", "2025/06/10", "10:00"), "invalid_date"},
		{"bad time", bookBody("+1", "2025-06-10", "10h"), "invalid_time"},
	}
	for _, tc := range cases {
		rec := do(t, h, http.MethodPost, "/api/v1/appointments", tc.body)
		if rec.Code != http.StatusBadRequest || decode[httpx.ErrorBody](t, rec).Error != tc.code {
			t.Fatalf("%s: expected 400 %s, got %d: %s", tc.name, tc.code, rec.Code, rec.Body.String())
		}
	}

	rec := do(t, h, http.MethodPost, "/api/v1/appointments", bookBody("+1", "2025-06-08", "10:00"))
	body := decode[httpx.ErrorBody](t, rec)
	if rec.Code != http.StatusUnprocessableEntity || body.Error != "not_bookable" || body.Message != model.ReasonNotWorkingDay {
		t.Fatalf("expected 422 not_bookable, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPost, "/api/v1/appointments", bookBody("+1", "2025-06-11", "10:00"))
	if rec.Code != http.StatusUnprocessableEntity || decode[httpx.ErrorBody](t, rec).Error != "no_schedule" {
		t.Fatalf("expected 422 no_schedule, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCancelRejectsBadTokens(t *testing.T) {
	h, _ := newTestRouter(t, time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC), 50)

	rec := do(t, h, http.MethodPost, "/api/v1/cancel-appointment", `{"token":""}`)
	if rec.Code != http.StatusBadRequest || decode[httpx.ErrorBody](t, rec).Error != "missing_token" {
		t.Fatalf("expected 400 missing_token, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPost, "/api/v1/cancel-appointment", `{"token":"not-a-token"}`)
	if rec.Code != http.StatusBadRequest || decode[httpx.ErrorBody](t, rec).Error != "invalid_token" {
		t.Fatalf("expected 400 invalid_token, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodGet, "/api/v1/cancel-appointment/verify?token=garbage", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for garbage verify token, got %d", rec.Code)
	}
}

func TestWriteEndpointsAreRateLimited(t *testing.T) {
	h, _ := newTestRouter(t, time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC), 2)

	for i := 0; i < 2; i++ {
		rec := do(t, h, http.MethodPost, "/api/v1/cancel-appointment", `{"token":"x"}`)
		if rec.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d limited too early", i)
		}
	}
	rec := do(t, h, http.MethodPost, "/api/v1/appointments", `{}`)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/available-times/2025-06-10", ""); rec.Code != http.StatusOK {
		t.Fatalf("reads must not be limited, got %d", rec.Code)
	}
}

func TestClassifyUnknownErrorIsInternal(t *testing.T) {
	c := classify(errors.New("connection reset"))
	if c.status != http.StatusInternalServerError || c.code != "internal" {
		t.Fatalf("unexpected class %+v", c)
	}
	c = classify(fmt.Errorf("wrapped: %w", model.ErrTokenMismatch))
	if c.status != http.StatusForbidden || c.code != "token_mismatch" {
		t.Fatalf("unexpected class %+v", c)
	}
}
