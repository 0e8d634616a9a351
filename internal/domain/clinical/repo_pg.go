package clinical

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *repoPG) AppointmentDoctor(ctx context.Context, clinicID, appointmentID uuid.UUID) (uuid.UUID, error) {
	var doctorID uuid.UUID
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT doctor_id FROM appointments WHERE clinic_id = $1 AND id = $2`, clinicID, appointmentID).Scan(&doctorID)
	if db.IsNotFound(err) {
		return uuid.Nil, ErrAppointmentNotFound
	}
	return doctorID, err
}

func (r *repoPG) RecordDoctor(ctx context.Context, clinicID, recordID uuid.UUID) (uuid.UUID, error) {
	var doctorID uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT a.doctor_id
		FROM clinical_records cr
		JOIN appointments a ON a.id = cr.appointment_id
		WHERE a.clinic_id = $1 AND cr.id = $2`, clinicID, recordID).Scan(&doctorID)
	if db.IsNotFound(err) {
		return uuid.Nil, ErrNotFound
	}
	return doctorID, err
}

func (r *repoPG) UpsertRecord(ctx context.Context, rec *Record) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO clinical_records (id, appointment_id, subjective, objective, assessment, plan)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (appointment_id) DO UPDATE SET
			subjective = EXCLUDED.subjective, objective = EXCLUDED.objective,
			assessment = EXCLUDED.assessment, plan = EXCLUDED.plan, updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		uuid.New(), rec.AppointmentID, rec.Subjective, rec.Objective, rec.Assessment, rec.Plan,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
}

func (r *repoPG) GetRecordByAppointment(ctx context.Context, clinicID, appointmentID uuid.UUID) (*Record, error) {
	var rec Record
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT cr.id, cr.appointment_id, cr.subjective, cr.objective, cr.assessment, cr.plan, cr.created_at, cr.updated_at
		FROM clinical_records cr
		JOIN appointments a ON a.id = cr.appointment_id
		WHERE a.clinic_id = $1 AND cr.appointment_id = $2`, clinicID, appointmentID,
	).Scan(&rec.ID, &rec.AppointmentID, &rec.Subjective, &rec.Objective, &rec.Assessment, &rec.Plan,
		&rec.CreatedAt, &rec.UpdatedAt)
	if db.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *repoPG) CreateDiagnosis(ctx context.Context, d *Diagnosis) error {
	d.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO diagnoses (id, clinical_record_id, cid_code, description)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`, d.ID, d.ClinicalRecordID, d.CIDCode, d.Description,
	).Scan(&d.CreatedAt)
}

func (r *repoPG) GetDiagnosis(ctx context.Context, clinicID, id uuid.UUID) (*Diagnosis, error) {
	d, err := scanDiagnosis(r.conn(ctx).QueryRow(ctx, `
		SELECT d.id, d.clinical_record_id, d.cid_code, d.description, d.created_at
		FROM diagnoses d
		JOIN clinical_records cr ON cr.id = d.clinical_record_id
		JOIN appointments a ON a.id = cr.appointment_id
		WHERE a.clinic_id = $1 AND d.id = $2`, clinicID, id))
	if db.IsNotFound(err) {
		return nil, ErrDiagnosisNotFound
	}
	return d, err
}

func (r *repoPG) UpdateDiagnosis(ctx context.Context, d *Diagnosis) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE diagnoses SET cid_code = $2, description = $3
		WHERE id = $1
		RETURNING clinical_record_id, created_at`, d.ID, d.CIDCode, d.Description,
	).Scan(&d.ClinicalRecordID, &d.CreatedAt)
	if db.IsNotFound(err) {
		return ErrDiagnosisNotFound
	}
	return err
}

func (r *repoPG) DeleteDiagnosis(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM diagnoses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDiagnosisNotFound
	}
	return nil
}

func (r *repoPG) DiagnosesByRecord(ctx context.Context, recordIDs []uuid.UUID) (map[uuid.UUID][]*Diagnosis, error) {
	out := make(map[uuid.UUID][]*Diagnosis, len(recordIDs))
	if len(recordIDs) == 0 {
		return out, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, clinical_record_id, cid_code, description, created_at
		FROM diagnoses
		WHERE clinical_record_id = ANY($1)
		ORDER BY created_at, id`, recordIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		d, err := scanDiagnosis(rows)
		if err != nil {
			return nil, err
		}
		out[d.ClinicalRecordID] = append(out[d.ClinicalRecordID], d)
	}
	return out, rows.Err()
}

func (r *repoPG) PatientExists(ctx context.Context, clinicID, patientID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM patients WHERE clinic_id = $1 AND id = $2)`, clinicID, patientID).Scan(&exists)
	return exists, err
}

func (r *repoPG) PatientHistory(ctx context.Context, clinicID, patientID uuid.UUID) ([]*HistoryEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT a.id, a.scheduled_datetime, a.status, TRIM(CONCAT(u.first_name, ' ', u.last_name)),
		       cr.id, cr.subjective, cr.objective, cr.assessment, cr.plan, cr.created_at, cr.updated_at
		FROM appointments a
		JOIN users u ON u.id = a.doctor_id
		LEFT JOIN clinical_records cr ON cr.appointment_id = a.id
		WHERE a.clinic_id = $1 AND a.patient_id = $2
		ORDER BY a.scheduled_datetime DESC`, clinicID, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*HistoryEntry
	for rows.Next() {
		var (
			e                HistoryEntry
			recID            *uuid.UUID
			rec              Record
			created, updated *time.Time
		)
		if err := rows.Scan(&e.AppointmentID, &e.AppointmentDate, &e.Status, &e.DoctorName,
			&recID, &rec.Subjective, &rec.Objective, &rec.Assessment, &rec.Plan, &created, &updated); err != nil {
			return nil, err
		}
		if recID != nil {
			rec.ID, rec.AppointmentID = *recID, e.AppointmentID
			rec.CreatedAt, rec.UpdatedAt = *created, *updated
			e.ClinicalRecord = &rec
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func scanDiagnosis(row pgx.Row) (*Diagnosis, error) {
	var d Diagnosis
	if err := row.Scan(&d.ID, &d.ClinicalRecordID, &d.CIDCode, &d.Description, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// queryable abstracts pgxpool.Pool and pgx.Tx.
type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
