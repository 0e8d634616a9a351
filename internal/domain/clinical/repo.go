package clinical

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for clinical records and diagnoses. Records
// belong to a clinic through their appointment.
type Repository interface {
	// AppointmentDoctor returns the doctor assigned to an appointment.
	AppointmentDoctor(ctx context.Context, clinicID, appointmentID uuid.UUID) (uuid.UUID, error)
	// RecordDoctor returns the doctor of the appointment a record belongs to.
	RecordDoctor(ctx context.Context, clinicID, recordID uuid.UUID) (uuid.UUID, error)

	UpsertRecord(ctx context.Context, r *Record) error
	GetRecordByAppointment(ctx context.Context, clinicID, appointmentID uuid.UUID) (*Record, error)

	CreateDiagnosis(ctx context.Context, d *Diagnosis) error
	GetDiagnosis(ctx context.Context, clinicID, id uuid.UUID) (*Diagnosis, error)
	UpdateDiagnosis(ctx context.Context, d *Diagnosis) error
	DeleteDiagnosis(ctx context.Context, id uuid.UUID) error
	// DiagnosesByRecord returns the diagnoses of each record id, oldest
	// first.
	DiagnosesByRecord(ctx context.Context, recordIDs []uuid.UUID) (map[uuid.UUID][]*Diagnosis, error)

	PatientExists(ctx context.Context, clinicID, patientID uuid.UUID) (bool, error)
	PatientHistory(ctx context.Context, clinicID, patientID uuid.UUID) ([]*HistoryEntry, error)
}
