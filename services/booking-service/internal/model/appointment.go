package model

import "time"

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCancelled Status = "cancelled"
)

type Patient struct {
	ID        string
	FirstName string
	LastName  string
	Phone     string
}

func (p Patient) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	default:
		return p.FirstName + " " + p.LastName
	}
}

type Appointment struct {
	ID                string
	PatientID         string
	PatientName       string
	PatientPhone      string
	Date              Date
	Time              Clock
	VisitType         string
	Status            Status
	CancellationToken string
	CreatedAt         time.Time
	CancelledAt       *time.Time
}

// StartsAt is the appointment's wall-clock start in the clinic location.
func (a Appointment) StartsAt(loc *time.Location) time.Time {
	return a.Date.At(a.Time, loc)
}

func (a Appointment) IsCancelled() bool { return a.Status == StatusCancelled }
