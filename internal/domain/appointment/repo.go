package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the persistence interface for appointments. Every
// method is scoped to one clinic.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	UpdateStatus(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, clinicID, id uuid.UUID) error
	List(ctx context.Context, clinicID uuid.UUID, f Filter, limit, offset int) ([]*Appointment, int, error)

	// HasConflict reports whether the doctor has an active appointment
	// overlapping [start, start+minutes). exclude skips one appointment.
	HasConflict(ctx context.Context, clinicID, doctorID uuid.UUID, start time.Time, minutes int, exclude uuid.UUID) (bool, error)
	PatientExists(ctx context.Context, clinicID, patientID uuid.UUID) (bool, error)
	// LockDoctor checks that doctorID is an active doctor of the clinic and
	// holds a row lock on it until the surrounding transaction ends.
	LockDoctor(ctx context.Context, clinicID, doctorID uuid.UUID) error
}
