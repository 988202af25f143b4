// Package portstest provides in-memory implementations of the booking ports
// for tests. Transactions work on a snapshot that Commit publishes.
package portstest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/ports"
)

var errTxDone = errors.New("transaction already closed")

type state struct {
	patients map[string]model.Patient // by phone
	appts    map[string]model.Appointment
	events   []outbox.Event
	seq      int
}

func (s state) clone() state {
	c := state{
		patients: make(map[string]model.Patient, len(s.patients)),
		appts:    make(map[string]model.Appointment, len(s.appts)),
		events:   append([]outbox.Event(nil), s.events...),
		seq:      s.seq,
	}
	for k, v := range s.patients {
		c.patients[k] = v
	}
	for k, v := range s.appts {
		c.appts[k] = v
	}
	return c
}

type Store struct {
	mu        sync.Mutex
	overrides map[string]model.DayOverride
	weekly    map[time.Weekday]model.WeeklySchedule
	data      state
	// Now stamps cancellations; defaults to time.Now.
	Now func() time.Time
	// SkipDuplicateCheck makes ActiveAppointmentExists always report false,
	// so only the unique index emulation guards duplicates.
	SkipDuplicateCheck bool
}

var (
	_ ports.ScheduleStore    = (*Store)(nil)
	_ ports.AppointmentStore = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		overrides: map[string]model.DayOverride{},
		weekly:    map[time.Weekday]model.WeeklySchedule{},
		data:      state{patients: map[string]model.Patient{}, appts: map[string]model.Appointment{}},
		Now:       time.Now,
	}
}

func (s *Store) SetWeekly(ws model.WeeklySchedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weekly[ws.Weekday] = ws
}

func (s *Store) SetOverride(ov model.DayOverride) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[ov.Date.String()] = ov
}

// Events returns the committed outbox events.
func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Event(nil), s.data.events...)
}

// Put stores appt as committed state, creating its patient when needed.
func (s *Store) Put(appt model.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.patients[appt.PatientPhone]; !ok {
		s.data.patients[appt.PatientPhone] = model.Patient{ID: appt.PatientID, FirstName: appt.PatientName, Phone: appt.PatientPhone}
	}
	s.data.appts[appt.ID] = appt
}

func (s *Store) DayOverride(_ context.Context, date model.Date) (model.DayOverride, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ov, ok := s.overrides[date.String()]
	return ov, ok, nil
}

func (s *Store) WeeklySchedule(_ context.Context, day time.Weekday) (model.WeeklySchedule, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.weekly[day]
	return ws, ok, nil
}

func (s *Store) Begin(context.Context) (ports.AppointmentTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Tx{store: s, data: s.data.clone()}, nil
}

func (s *Store) BookedTimes(_ context.Context, date model.Date) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bookedTimes(s.data, date), nil
}

func (s *Store) ListByDate(_ context.Context, date model.Date) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, a := range s.data.appts {
		if a.Date == date {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

func (s *Store) AppointmentByID(_ context.Context, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.data.appts[id]
	if !ok {
		return model.Appointment{}, model.ErrAppointmentNotFound
	}
	return a, nil
}

// Tx is a snapshot transaction over Store.
type Tx struct {
	store *Store
	data  state
	done  bool
}

func (t *Tx) FindOrCreatePatient(_ context.Context, p model.Patient) (model.Patient, bool, error) {
	if existing, ok := t.data.patients[p.Phone]; ok {
		return existing, true, nil
	}
	t.data.seq++
	p.ID = fmt.Sprintf("patient-%d", t.data.seq)
	t.data.patients[p.Phone] = p
	return p, false, nil
}

func (t *Tx) ActiveAppointmentExists(_ context.Context, patientID string, date model.Date, at model.Clock) (bool, error) {
	if t.store.SkipDuplicateCheck {
		return false, nil
	}
	for _, a := range t.data.appts {
		if a.PatientID == patientID && a.Date == date && a.Time == at && !a.IsCancelled() {
			return true, nil
		}
	}
	return false, nil
}

func (t *Tx) BookedTimes(_ context.Context, date model.Date) ([]string, error) {
	return bookedTimes(t.data, date), nil
}

// InsertAppointment emulates both partial unique indexes.
func (t *Tx) InsertAppointment(_ context.Context, appt model.Appointment) (string, error) {
	for _, a := range t.data.appts {
		if a.IsCancelled() || a.Date != appt.Date || a.Time != appt.Time {
			continue
		}
		if a.PatientID == appt.PatientID {
			return "", model.ErrDuplicateBooking
		}
		return "", model.ErrSlotUnavailable
	}
	t.data.seq++
	appt.ID = fmt.Sprintf("appt-%d", t.data.seq)
	t.data.appts[appt.ID] = appt
	return appt.ID, nil
}

func (t *Tx) SetCancellationToken(_ context.Context, id, token string) error {
	a, ok := t.data.appts[id]
	if !ok {
		return model.ErrAppointmentNotFound
	}
	a.CancellationToken = token
	t.data.appts[id] = a
	return nil
}

func (t *Tx) AppointmentForUpdate(_ context.Context, id string) (model.Appointment, error) {
	a, ok := t.data.appts[id]
	if !ok {
		return model.Appointment{}, model.ErrAppointmentNotFound
	}
	return a, nil
}

func (t *Tx) CancelAppointment(_ context.Context, id string) (time.Time, error) {
	a, ok := t.data.appts[id]
	if !ok || a.IsCancelled() {
		return time.Time{}, model.ErrAppointmentNotFound
	}
	now := t.store.Now()
	a.Status = model.StatusCancelled
	a.CancelledAt = &now
	t.data.appts[id] = a
	return now, nil
}

func (t *Tx) InsertEvent(_ context.Context, evt outbox.Event) error {
	t.data.events = append(t.data.events, evt)
	return nil
}

func (t *Tx) Commit(context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.data = t.data
	return nil
}

func (t *Tx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	return nil
}

func bookedTimes(s state, date model.Date) []string {
	var out []string
	for _, a := range s.appts {
		if a.Date == date && !a.IsCancelled() {
			out = append(out, a.Time.String())
		}
	}
	sort.Strings(out)
	return out
}
