package clinic

import (
	"context"
	"fmt"
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

const clinicColumns = `c.id, c.name, c.legal_name, c.commercial_name, c.tax_id, c.address, c.phone, c.email,
	c.max_users, c.is_active, c.created_at, c.updated_at`

func (r *repoPG) Create(ctx context.Context, c *Clinic) error {
	c.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO clinics (id, name, legal_name, commercial_name, tax_id, address, phone, email, max_users, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		c.ID, c.Name, c.LegalName, c.CommercialName, c.TaxID, c.Address, c.Phone, c.Email, c.MaxUsers, c.IsActive,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	return mapError(err)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	c, err := scanClinic(r.conn(ctx).QueryRow(ctx, `
		SELECT `+clinicColumns+`,
			(SELECT COUNT(*) FROM users u WHERE u.clinic_id = c.id AND u.is_active)
		FROM clinics c WHERE c.id = $1`, id))
	return c, mapError(err)
}

func (r *repoPG) Update(ctx context.Context, c *Clinic) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE clinics SET
			name = $2, legal_name = $3, commercial_name = $4, tax_id = $5,
			address = $6, phone = $7, email = $8, max_users = $9, is_active = $10,
			updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		c.ID, c.Name, c.LegalName, c.CommercialName, c.TaxID, c.Address, c.Phone, c.Email, c.MaxUsers, c.IsActive,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	return mapError(err)
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM clinics WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Clinic, int, error) {
	where, args := buildFilter(f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM clinics c`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT %s,
			(SELECT COUNT(*) FROM users u WHERE u.clinic_id = c.id AND u.is_active)
		FROM clinics c%s
		ORDER BY c.created_at DESC
		LIMIT $%d OFFSET $%d`, clinicColumns, where, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Clinic
	for rows.Next() {
		c, err := scanClinic(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// buildFilter renders the WHERE clause of a listing. Values are always bound
// as parameters.
func buildFilter(f ListFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+s+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(c.name ILIKE $%d OR c.legal_name ILIKE $%d OR c.tax_id ILIKE $%d OR c.email ILIKE $%d)", n, n, n, n))
	}
	if f.IsActive != nil {
		args = append(args, *f.IsActive)
		conds = append(conds, fmt.Sprintf("c.is_active = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *repoPG) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM clinics),
			(SELECT COUNT(*) FROM clinics WHERE is_active),
			(SELECT COUNT(*) FROM users WHERE is_active)`,
	).Scan(&s.TotalClinics, &s.ActiveClinics, &s.TotalUsers)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanClinic(row pgx.Row) (*Clinic, error) {
	var c Clinic
	err := row.Scan(&c.ID, &c.Name, &c.LegalName, &c.CommercialName, &c.TaxID, &c.Address, &c.Phone, &c.Email,
		&c.MaxUsers, &c.IsActive, &c.CreatedAt, &c.UpdatedAt, &c.UserCount)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNotFound(err):
		return ErrNotFound
	case db.IsUniqueViolation(err):
		return ErrDuplicateTaxID
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
