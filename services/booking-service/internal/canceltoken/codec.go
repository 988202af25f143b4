// Package canceltoken issues and verifies the signed credential that lets a
// patient cancel an appointment from a link, without logging in.
package canceltoken

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"golang.org/x/crypto/hkdf"
)

const (
	// MinSecretLength is the shortest accepted signing secret, in bytes.
	MinSecretLength = 32
	// Cutoff is how long before the appointment a token stops being useful.
	Cutoff = 12 * time.Hour
	// GracePeriod is the lifetime of a token minted after the cutoff.
	GracePeriod = time.Hour

	issuer  = "clinicbook"
	keyInfo = "clinicbook/cancellation-token/v1"
)

var (
	ErrWeakSecret = fmt.Errorf("cancellation token secret must be at least %d bytes", MinSecretLength)
	errUnassigned = errors.New("appointment id is required to finalize a cancellation token")
)

// AppointmentRef is either Unassigned (before the row exists) or a concrete id.
type AppointmentRef struct {
	id string
}

func Unassigned() AppointmentRef { return AppointmentRef{} }

func AssignedTo(id string) AppointmentRef { return AppointmentRef{id: id} }

// ID returns the appointment id and false for Unassigned.
func (r AppointmentRef) ID() (string, bool) { return r.id, r.id != "" }

// Subject is what a token is about, minus the appointment id.
type Subject struct {
	PatientID    string
	PatientPhone string
	Date         model.Date
	Time         model.Clock
}

// Payload is the verified content of a token.
type Payload struct {
	AppointmentID   string
	PatientID       string
	PatientPhone    string
	AppointmentDate string
	AppointmentTime string
	IssuedAt        time.Time
	ExpiresAt       time.Time
}

// Draft is a signed placeholder minted before the appointment row exists.
// It never verifies as a cancellation credential.
type Draft struct {
	Token     string
	Subject   Subject
	Ref       AppointmentRef
	ExpiresAt time.Time
}

// Final is the only token form that may be stored or handed to a patient.
type Final struct {
	Token   string
	Payload Payload
}

type claims struct {
	AppointmentID   string `json:"appointmentId"`
	PatientID       string `json:"patientId"`
	PatientPhone    string `json:"patientPhone"`
	AppointmentDate string `json:"appointmentDate"`
	AppointmentTime string `json:"appointmentTime"`
	jwt.RegisteredClaims
}

// Codec signs HS256 JWTs with a key derived from the configured secret.
// It is safe for concurrent use.
type Codec struct {
	key []byte
	loc *time.Location
}

// NewCodec derives the signing key from secret. loc is the clinic's timezone,
// used to place appointment wall-clock times on the timeline.
func NewCodec(secret string, loc *time.Location) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	if loc == nil {
		loc = time.UTC
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}
	return &Codec{key: key, loc: loc}, nil
}

// ExpiresAt is the appointment start minus Cutoff, or now plus GracePeriod
// when that moment is not in the future.
func (c *Codec) ExpiresAt(s Subject, now time.Time) time.Time {
	exp := s.Date.At(s.Time, c.loc).Add(-Cutoff)
	if !exp.After(now) {
		exp = now.Add(GracePeriod)
	}
	return exp
}

// Draft mints the pre-insert placeholder.
func (c *Codec) Draft(s Subject, now time.Time) (Draft, error) {
	tok, p, err := c.sign(Unassigned(), s, now)
	if err != nil {
		return Draft{}, err
	}
	return Draft{Token: tok, Subject: s, Ref: Unassigned(), ExpiresAt: p.ExpiresAt}, nil
}

// Finalize re-mints d bound to the stored appointment id.
func (c *Codec) Finalize(d Draft, appointmentID string, now time.Time) (Final, error) {
	appointmentID = strings.TrimSpace(appointmentID)
	if appointmentID == "" {
		return Final{}, errUnassigned
	}
	tok, p, err := c.sign(AssignedTo(appointmentID), d.Subject, now)
	if err != nil {
		return Final{}, err
	}
	return Final{Token: tok, Payload: p}, nil
}

func (c *Codec) sign(ref AppointmentRef, s Subject, now time.Time) (string, Payload, error) {
	id, _ := ref.ID()
	iat := now.UTC().Truncate(time.Second)
	exp := c.ExpiresAt(s, now).UTC().Truncate(time.Second)
	if !exp.After(iat) {
		exp = iat.Add(GracePeriod)
	}

	p := Payload{
		AppointmentID:   id,
		PatientID:       s.PatientID,
		PatientPhone:    s.PatientPhone,
		AppointmentDate: s.Date.String(),
		AppointmentTime: s.Time.String(),
		IssuedAt:        iat,
		ExpiresAt:       exp,
	}
	cl := claims{
		AppointmentID:   p.AppointmentID,
		PatientID:       p.PatientID,
		PatientPhone:    p.PatientPhone,
		AppointmentDate: p.AppointmentDate,
		AppointmentTime: p.AppointmentTime,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   s.PatientID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString(c.key)
	if err != nil {
		return "", Payload{}, fmt.Errorf("sign cancellation token: %w", err)
	}
	return tok, p, nil
}

// Verify checks signature, issuer and expiry at now. Every failure, including
// a draft token, is reported as model.ErrInvalidToken.
func (c *Codec) Verify(token string, now time.Time) (Payload, error) {
	var cl claims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(token), &cl,
		func(*jwt.Token) (any, error) { return c.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", model.ErrInvalidToken, err)
	}
	if cl.AppointmentID == "" {
		return Payload{}, fmt.Errorf("%w: token is not bound to an appointment", model.ErrInvalidToken)
	}

	p := Payload{
		AppointmentID:   cl.AppointmentID,
		PatientID:       cl.PatientID,
		PatientPhone:    cl.PatientPhone,
		AppointmentDate: cl.AppointmentDate,
		AppointmentTime: cl.AppointmentTime,
		ExpiresAt:       cl.ExpiresAt.Time.UTC(),
	}
	if cl.IssuedAt != nil {
		p.IssuedAt = cl.IssuedAt.Time.UTC()
	}
	return p, nil
}

// CancellationURL builds the patient-facing cancellation link.
func CancellationURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/cancelar-cita?token=" + url.QueryEscape(token)
}
