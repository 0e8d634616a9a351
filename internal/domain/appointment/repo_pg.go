package appointment

import (
	"context"
	"fmt"
	"strings"
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

const appointmentColumns = `a.id, a.clinic_id, a.patient_id, a.doctor_id, a.scheduled_datetime, a.duration_minutes,
	a.status, a.reason, a.checked_in_at, a.started_at, a.completed_at, a.cancelled_at, a.created_at, a.updated_at,
	TRIM(CONCAT(p.first_name, ' ', p.last_name)), TRIM(CONCAT(u.first_name, ' ', u.last_name))`

const appointmentFrom = ` FROM appointments a
	JOIN patients p ON p.id = a.patient_id
	JOIN users u ON u.id = a.doctor_id`

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, clinic_id, patient_id, doctor_id, scheduled_datetime, duration_minutes, status, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		a.ID, a.ClinicID, a.PatientID, a.DoctorID, a.ScheduledAt, a.DurationMinutes, a.Status, a.Reason,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return mapError(err)
}

func (r *repoPG) GetByID(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+appointmentColumns+appointmentFrom+` WHERE a.clinic_id = $1 AND a.id = $2`, clinicID, id))
	return a, mapError(err)
}

func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET
			patient_id = $3, doctor_id = $4, scheduled_datetime = $5, duration_minutes = $6,
			reason = $7, updated_at = NOW()
		WHERE clinic_id = $1 AND id = $2
		RETURNING created_at, updated_at`,
		a.ClinicID, a.ID, a.PatientID, a.DoctorID, a.ScheduledAt, a.DurationMinutes, a.Reason,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return mapError(err)
}

func (r *repoPG) UpdateStatus(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET
			status = $3, checked_in_at = $4, started_at = $5, completed_at = $6, cancelled_at = $7,
			updated_at = NOW()
		WHERE clinic_id = $1 AND id = $2
		RETURNING updated_at`,
		a.ClinicID, a.ID, a.Status, a.CheckedInAt, a.StartedAt, a.CompletedAt, a.CancelledAt,
	).Scan(&a.UpdatedAt)
	return mapError(err)
}

func (r *repoPG) Delete(ctx context.Context, clinicID, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointments WHERE clinic_id = $1 AND id = $2`, clinicID, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, clinicID uuid.UUID, f Filter, limit, offset int) ([]*Appointment, int, error) {
	where := []string{"a.clinic_id = $1"}
	args := []interface{}{clinicID}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.From != nil {
		add("a.scheduled_datetime >= $%d", *f.From)
	}
	if f.To != nil {
		add("a.scheduled_datetime <= $%d", *f.To)
	}
	if f.DoctorID != nil {
		add("a.doctor_id = $%d", *f.DoctorID)
	}
	if f.PatientID != nil {
		add("a.patient_id = $%d", *f.PatientID)
	}
	if f.Status != "" {
		add("a.status = $%d", f.Status)
	}
	filter := appointmentFrom + ` WHERE ` + strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+filter, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+appointmentColumns+filter+
		fmt.Sprintf(` ORDER BY a.scheduled_datetime LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (r *repoPG) HasConflict(ctx context.Context, clinicID, doctorID uuid.UUID, start time.Time, minutes int, exclude uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE clinic_id = $1 AND doctor_id = $2 AND id <> $3
			  AND status = ANY($4)
			  AND scheduled_datetime < $5::timestamptz + make_interval(mins => $6::int)
			  AND scheduled_datetime + make_interval(mins => duration_minutes) > $5::timestamptz
		)`, clinicID, doctorID, exclude, activeStatuses, start, minutes).Scan(&exists)
	return exists, err
}

func (r *repoPG) PatientExists(ctx context.Context, clinicID, patientID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM patients WHERE clinic_id = $1 AND id = $2)`, clinicID, patientID).Scan(&exists)
	return exists, err
}

func (r *repoPG) LockDoctor(ctx context.Context, clinicID, doctorID uuid.UUID) error {
	var id uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id FROM users
		WHERE clinic_id = $1 AND id = $2 AND role = 'doctor' AND is_active
		FOR UPDATE`, clinicID, doctorID).Scan(&id)
	if db.IsNotFound(err) {
		return ErrUnknownDoctor
	}
	return err
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.ClinicID, &a.PatientID, &a.DoctorID, &a.ScheduledAt, &a.DurationMinutes,
		&a.Status, &a.Reason, &a.CheckedInAt, &a.StartedAt, &a.CompletedAt, &a.CancelledAt,
		&a.CreatedAt, &a.UpdatedAt, &a.PatientName, &a.DoctorName)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNotFound(err):
		return ErrNotFound
	case db.IsForeignKeyViolation(err):
		return ErrInUse
	default:
		return err
	}
}

// queryable abstracts pgxpool.Pool and pgx.Tx.
type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
