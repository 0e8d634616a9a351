package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

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

// -- Clinical --

func (r *repoPG) TopDiagnoses(ctx context.Context, clinicID uuid.UUID, rg Range, limit int) ([]DiagnosisCount, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT d.cid_code, COALESCE(d.description, ''), COUNT(d.id)
		FROM diagnoses d
		JOIN clinical_records cr ON cr.id = d.clinical_record_id
		JOIN appointments a ON a.id = cr.appointment_id
		WHERE a.clinic_id = $1 AND a.scheduled_datetime BETWEEN $2 AND $3
		GROUP BY d.cid_code, d.description
		ORDER BY COUNT(d.id) DESC, d.cid_code
		LIMIT $4`, clinicID, rg.Start, rg.End, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DiagnosisCount
	for rows.Next() {
		var d DiagnosisCount
		if err := rows.Scan(&d.ICD10Code, &d.Description, &d.Count); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *repoPG) PatientBirthDates(ctx context.Context, clinicID uuid.UUID, rg Range) ([]*time.Time, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT p.date_of_birth
		FROM patients p
		WHERE p.id IN (
			SELECT a.patient_id FROM appointments a
			WHERE a.clinic_id = $1 AND a.scheduled_datetime BETWEEN $2 AND $3
		)`, clinicID, rg.Start, rg.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*time.Time
	for rows.Next() {
		var dob *time.Time
		if err := rows.Scan(&dob); err != nil {
			return nil, err
		}
		out = append(out, dob)
	}
	return out, rows.Err()
}

func (r *repoPG) AppointmentsByStatus(ctx context.Context, clinicID uuid.UUID, rg Range) ([]StatusCount, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT a.status, COUNT(a.id)
		FROM appointments a
		WHERE a.clinic_id = $1 AND a.scheduled_datetime BETWEEN $2 AND $3
		GROUP BY a.status
		ORDER BY a.status`, clinicID, rg.Start, rg.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatusCount
	for rows.Next() {
		var s StatusCount
		if err := rows.Scan(&s.Status, &s.Count); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repoPG) ConsultationsByDoctor(ctx context.Context, clinicID uuid.UUID, rg Range) ([]DoctorCount, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT TRIM(CONCAT(u.first_name, ' ', u.last_name)), COUNT(a.id)
		FROM appointments a
		JOIN users u ON u.id = a.doctor_id
		WHERE a.clinic_id = $1 AND a.scheduled_datetime BETWEEN $2 AND $3
		GROUP BY u.first_name, u.last_name
		ORDER BY COUNT(a.id) DESC`, clinicID, rg.Start, rg.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DoctorCount
	for rows.Next() {
		var d DoctorCount
		if err := rows.Scan(&d.DoctorName, &d.Count); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// -- Financial --

func (r *repoPG) RevenueByDoctor(ctx context.Context, clinicID uuid.UUID, rg Range) ([]Amount, error) {
	return r.amounts(ctx, `
		SELECT TRIM(CONCAT(u.first_name, ' ', u.last_name)), COALESCE(SUM(i.total_amount), 0)
		FROM invoices i
		JOIN appointments a ON a.id = i.appointment_id
		JOIN users u ON u.id = a.doctor_id
		WHERE i.clinic_id = $1 AND i.issue_date BETWEEN $2 AND $3 AND i.status <> 'cancelled'
		GROUP BY u.first_name, u.last_name
		ORDER BY SUM(i.total_amount) DESC`, clinicID, rg.Start, rg.End)
}

func (r *repoPG) RevenueByService(ctx context.Context, clinicID uuid.UUID, rg Range, limit int) ([]Amount, error) {
	return r.amounts(ctx, `
		SELECT s.name, COALESCE(SUM(l.line_total), 0)
		FROM invoice_lines l
		JOIN invoices i ON i.id = l.invoice_id
		LEFT JOIN service_items s ON s.id = l.service_item_id
		WHERE i.clinic_id = $1 AND i.issue_date BETWEEN $2 AND $3 AND i.status <> 'cancelled'
		GROUP BY s.name
		ORDER BY SUM(l.line_total) DESC
		LIMIT $4`, clinicID, rg.Start, rg.End, limit)
}

func (r *repoPG) MonthlyRevenue(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]Amount, error) {
	return r.amounts(ctx, `
		SELECT TO_CHAR(DATE_TRUNC('month', i.issue_date AT TIME ZONE 'UTC'), 'YYYY-MM') AS month,
		       COALESCE(SUM(i.total_amount), 0)
		FROM invoices i
		WHERE i.clinic_id = $1 AND i.issue_date BETWEEN $2 AND $3 AND i.status <> 'cancelled'
		GROUP BY month
		ORDER BY month`, clinicID, from, to)
}

func (r *repoPG) amounts(ctx context.Context, sql string, args ...interface{}) ([]Amount, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Amount
	for rows.Next() {
		var a Amount
		if err := rows.Scan(&a.Label, &a.Total); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repoPG) InvoiceTotals(ctx context.Context, clinicID uuid.UUID, rg Range) (int, decimal.Decimal, error) {
	var count int
	var total decimal.Decimal
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(i.id), COALESCE(SUM(i.total_amount), 0)
		FROM invoices i
		WHERE i.clinic_id = $1 AND i.issue_date BETWEEN $2 AND $3 AND i.status <> 'cancelled'`,
		clinicID, rg.Start, rg.End).Scan(&count, &total)
	return count, total, err
}

func (r *repoPG) OpenBalances(ctx context.Context, clinicID uuid.UUID, issuedBy time.Time) ([]OpenBalance, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT i.due_date, i.total_amount - COALESCE(p.paid, 0) AS unpaid
		FROM invoices i
		LEFT JOIN (
			SELECT invoice_id, SUM(amount) AS paid
			FROM payments
			WHERE status = 'completed'
			GROUP BY invoice_id
		) p ON p.invoice_id = i.id
		WHERE i.clinic_id = $1 AND i.status <> 'cancelled' AND i.issue_date <= $2`,
		clinicID, issuedBy)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OpenBalance
	for rows.Next() {
		var b OpenBalance
		if err := rows.Scan(&b.DueDate, &b.Unpaid); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repoPG) CostPerProcedure(ctx context.Context, clinicID uuid.UUID, rg Range, limit int) ([]ProcedureTotals, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT s.name, COALESCE(SUM(l.line_total), 0), COALESCE(SUM(l.quantity), 0)
		FROM invoice_lines l
		JOIN invoices i ON i.id = l.invoice_id
		LEFT JOIN service_items s ON s.id = l.service_item_id
		WHERE i.clinic_id = $1 AND i.issue_date BETWEEN $2 AND $3 AND i.status <> 'cancelled'
		GROUP BY s.name
		ORDER BY s.name
		LIMIT $4`, clinicID, rg.Start, rg.End, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProcedureTotals
	for rows.Next() {
		var p ProcedureTotals
		if err := rows.Scan(&p.Name, &p.Total, &p.Quantity); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// -- Operational --

func (r *repoPG) UtilizationByWeekday(ctx context.Context, clinicID uuid.UUID, rg Range) ([]WeekdayCount, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT EXTRACT(DOW FROM a.scheduled_datetime AT TIME ZONE 'UTC')::int AS dow, COUNT(a.id)
		FROM appointments a
		WHERE a.clinic_id = $1 AND a.scheduled_datetime BETWEEN $2 AND $3
		GROUP BY dow
		ORDER BY dow`, clinicID, rg.Start, rg.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WeekdayCount
	for rows.Next() {
		var w WeekdayCount
		if err := rows.Scan(&w.Weekday, &w.Count); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *repoPG) AverageWaitMinutes(ctx context.Context, clinicID uuid.UUID, rg Range) (float64, error) {
	var avg *float64
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT AVG(EXTRACT(EPOCH FROM (a.started_at - a.checked_in_at)) / 60.0)::float8
		FROM appointments a
		WHERE a.clinic_id = $1
		  AND a.checked_in_at IS NOT NULL AND a.started_at IS NOT NULL
		  AND a.scheduled_datetime BETWEEN $2 AND $3`, clinicID, rg.Start, rg.End).Scan(&avg)
	if err != nil || avg == nil {
		return 0, err
	}
	return *avg, nil
}

func (r *repoPG) NoShows(ctx context.Context, clinicID uuid.UUID, rg Range) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(a.id)
		FROM appointments a
		WHERE a.clinic_id = $1 AND a.scheduled_datetime BETWEEN $2 AND $3
		  AND a.completed_at IS NULL AND a.cancelled_at IS NULL`, clinicID, rg.Start, rg.End).Scan(&n)
	return n, err
}

// -- Custom --

func (r *repoPG) RunCustom(ctx context.Context, q CustomQuery, clinicID uuid.UUID, rg Range) ([]Row, error) {
	if q.Statement() == "" {
		return nil, fmt.Errorf("custom report %s has no statement", q.Domain)
	}
	rows, err := r.conn(ctx).Query(ctx, q.Statement(), clinicID, rg.Start, rg.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := []Row{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(Row, len(fields))
		for i, fd := range fields {
			row[i] = Field{Column: fd.Name, Value: normalizeValue(values[i])}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// normalizeValue converts driver values into plain JSON-friendly values.
func normalizeValue(v interface{}) interface{} {
	switch x := v.(type) {
	case pgtype.Numeric:
		if !x.Valid || x.Int == nil {
			return nil
		}
		return decimal.NewFromBigInt(x.Int, x.Exp).InexactFloat64()
	case [16]byte:
		return uuid.UUID(x).String()
	case time.Time:
		return x.UTC()
	default:
		return v
	}
}

func (r *repoPG) ClinicName(ctx context.Context, clinicID uuid.UUID) (string, error) {
	var name string
	err := r.conn(ctx).QueryRow(ctx, `SELECT name FROM clinics WHERE id = $1`, clinicID).Scan(&name)
	return name, err
}

// queryable abstracts pgxpool.Pool and pgx.Tx.
type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
