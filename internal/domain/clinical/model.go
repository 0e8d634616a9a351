package clinical

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound            = errors.New("clinical record not found")
	ErrDiagnosisNotFound   = errors.New("diagnosis not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrInvalid             = errors.New("invalid clinical record")
	ErrUnknownCode         = errors.New("unknown ICD-10 code")
	ErrNoClinic            = errors.New("user is not associated with a clinic")
	ErrForbidden           = errors.New("only the assigned doctor or an admin may change this record")
)

// Record is the SOAP note of one appointment.
type Record struct {
	ID            uuid.UUID    `db:"id" json:"id"`
	AppointmentID uuid.UUID    `db:"appointment_id" json:"appointment_id"`
	Subjective    *string      `db:"subjective" json:"subjective,omitempty"`
	Objective     *string      `db:"objective" json:"objective,omitempty"`
	Assessment    *string      `db:"assessment" json:"assessment,omitempty"`
	Plan          *string      `db:"plan" json:"plan,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
	Diagnoses     []*Diagnosis `json:"diagnoses"`
}

// Diagnosis attaches an ICD-10 code to a record.
type Diagnosis struct {
	ID               uuid.UUID `db:"id" json:"id"`
	ClinicalRecordID uuid.UUID `db:"clinical_record_id" json:"clinical_record_id"`
	CIDCode          string    `db:"cid_code" json:"cid_code"`
	Description      *string   `db:"description" json:"description,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// HistoryEntry is one appointment of a patient with its record, if any.
type HistoryEntry struct {
	AppointmentID   uuid.UUID `json:"appointment_id"`
	AppointmentDate time.Time `json:"appointment_date"`
	Status          string    `json:"status"`
	DoctorName      string    `json:"doctor_name"`
	ClinicalRecord  *Record   `json:"clinical_record"`
}
