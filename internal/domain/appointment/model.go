package appointment

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("appointment not found")
	ErrInvalid           = errors.New("invalid appointment")
	ErrNoClinic          = errors.New("user is not associated with a clinic")
	ErrSlotTaken         = errors.New("doctor already has an appointment in this time slot")
	ErrUnknownPatient    = errors.New("patient not found in this clinic")
	ErrUnknownDoctor     = errors.New("doctor not found in this clinic")
	ErrInvalidTransition = errors.New("appointment status change not allowed")
	ErrInUse             = errors.New("appointment has clinical records or invoices and cannot be deleted")
)

const (
	StatusScheduled      = "scheduled"
	StatusCheckedIn      = "checked_in"
	StatusInConsultation = "in_consultation"
	StatusCompleted      = "completed"
	StatusCancelled      = "cancelled"
)

// DefaultDuration is the slot length used when none is given.
const DefaultDuration = 30

// transitions lists the statuses reachable from each status. Completed and
// cancelled appointments are final.
var transitions = map[string][]string{
	StatusScheduled:      {StatusCheckedIn, StatusInConsultation, StatusCancelled},
	StatusCheckedIn:      {StatusInConsultation, StatusCancelled},
	StatusInConsultation: {StatusCompleted},
	StatusCompleted:      nil,
	StatusCancelled:      nil,
}

// activeStatuses occupy the doctor's agenda.
var activeStatuses = []string{StatusScheduled, StatusCheckedIn, StatusInConsultation}

// Appointment maps to the appointments table. PatientName and DoctorName
// are filled on reads only.
type Appointment struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	ClinicID        uuid.UUID  `db:"clinic_id" json:"clinic_id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID        uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	ScheduledAt     time.Time  `db:"scheduled_datetime" json:"scheduled_datetime"`
	DurationMinutes int        `db:"duration_minutes" json:"duration_minutes"`
	Status          string     `db:"status" json:"status"`
	Reason          *string    `db:"reason" json:"reason,omitempty"`
	CheckedInAt     *time.Time `db:"checked_in_at" json:"checked_in_at,omitempty"`
	StartedAt       *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt     *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt     *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
	PatientName     string     `json:"patient_name,omitempty"`
	DoctorName      string     `json:"doctor_name,omitempty"`
}

// End returns the time the slot is released.
func (a *Appointment) End() time.Time {
	return a.ScheduledAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Filter narrows List. Zero fields do not filter.
type Filter struct {
	From      *time.Time
	To        *time.Time
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    string
}

// ValidStatus reports whether s is a known appointment status.
func ValidStatus(s string) bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether an appointment in status from may move to
// status to.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// stamp records the time the appointment entered status.
func stamp(a *Appointment, status string, now time.Time) {
	switch status {
	case StatusCheckedIn:
		a.CheckedInAt = &now
	case StatusInConsultation:
		if a.CheckedInAt == nil {
			a.CheckedInAt = &now
		}
		a.StartedAt = &now
	case StatusCompleted:
		a.CompletedAt = &now
	case StatusCancelled:
		a.CancelledAt = &now
	}
	a.Status = status
}
