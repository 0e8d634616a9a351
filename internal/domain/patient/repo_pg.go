package patient

import (
	"context"
	"strings"

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

const patientColumns = `id, clinic_id, first_name, last_name, date_of_birth, gender, cpf, phone, email,
	address, allergies, blood_type, notes, is_active, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (
			id, clinic_id, first_name, last_name, date_of_birth, gender, cpf, phone, email,
			address, allergies, blood_type, notes, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`,
		p.ID, p.ClinicID, p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.CPF, p.Phone, p.Email,
		p.Address, p.Allergies, p.BloodType, p.Notes, p.IsActive,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return mapError(err)
}

func (r *repoPG) GetByID(ctx context.Context, clinicID, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientColumns+` FROM patients WHERE clinic_id = $1 AND id = $2`, clinicID, id))
	return p, mapError(err)
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET
			first_name = $3, last_name = $4, date_of_birth = $5, gender = $6, cpf = $7,
			phone = $8, email = $9, address = $10, allergies = $11, blood_type = $12,
			notes = $13, is_active = $14, updated_at = NOW()
		WHERE clinic_id = $1 AND id = $2
		RETURNING created_at, updated_at`,
		p.ClinicID, p.ID, p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.CPF,
		p.Phone, p.Email, p.Address, p.Allergies, p.BloodType, p.Notes, p.IsActive,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return mapError(err)
}

func (r *repoPG) Delete(ctx context.Context, clinicID, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE clinic_id = $1 AND id = $2`, clinicID, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, clinicID uuid.UUID, search string, limit, offset int) ([]*Patient, int, error) {
	pattern := "%"
	if s := strings.TrimSpace(search); s != "" {
		pattern = "%" + s + "%"
	}
	const filter = ` FROM patients
		WHERE clinic_id = $1
		  AND (first_name || ' ' || last_name ILIKE $2 OR COALESCE(cpf, '') ILIKE $2)`

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+filter, clinicID, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientColumns+filter+`
		ORDER BY first_name, last_name
		LIMIT $3 OFFSET $4`, clinicID, pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.ClinicID, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender, &p.CPF,
		&p.Phone, &p.Email, &p.Address, &p.Allergies, &p.BloodType, &p.Notes, &p.IsActive,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNotFound(err):
		return ErrNotFound
	case db.IsUniqueViolation(err):
		return ErrDuplicateCPF
	case db.IsForeignKeyViolation(err):
		return ErrHasRecords
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
