package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

const serviceItemColumns = `id, clinic_id, name, code, price, is_active, created_at`

func (r *repoPG) ListServiceItems(ctx context.Context, clinicID uuid.UUID, active *bool, search string) ([]*ServiceItem, error) {
	query := `SELECT ` + serviceItemColumns + ` FROM service_items WHERE clinic_id = $1`
	args := []interface{}{clinicID}
	if active != nil {
		args = append(args, *active)
		query += fmt.Sprintf(" AND is_active = $%d", len(args))
	}
	if search != "" {
		args = append(args, "%"+search+"%")
		query += fmt.Sprintf(" AND (name ILIKE $%d OR code ILIKE $%d)", len(args), len(args))
	}
	rows, err := r.conn(ctx).Query(ctx, query+" ORDER BY name", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ServiceItem
	for rows.Next() {
		it, err := scanServiceItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *repoPG) GetServiceItem(ctx context.Context, clinicID, id uuid.UUID) (*ServiceItem, error) {
	it, err := scanServiceItem(r.conn(ctx).QueryRow(ctx,
		`SELECT `+serviceItemColumns+` FROM service_items WHERE clinic_id = $1 AND id = $2`, clinicID, id))
	if db.IsNotFound(err) {
		return nil, ErrServiceItemNotFound
	}
	return it, err
}

func (r *repoPG) CreateServiceItem(ctx context.Context, it *ServiceItem) error {
	it.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO service_items (id, clinic_id, name, code, price, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		it.ID, it.ClinicID, it.Name, it.Code, it.Price, it.IsActive,
	).Scan(&it.CreatedAt)
}

func (r *repoPG) UpdateServiceItem(ctx context.Context, it *ServiceItem) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE service_items SET name = $3, code = $4, price = $5, is_active = $6
		WHERE clinic_id = $1 AND id = $2
		RETURNING created_at`,
		it.ClinicID, it.ID, it.Name, it.Code, it.Price, it.IsActive,
	).Scan(&it.CreatedAt)
	if db.IsNotFound(err) {
		return ErrServiceItemNotFound
	}
	return err
}

func (r *repoPG) PatientExists(ctx context.Context, clinicID, patientID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM patients WHERE clinic_id = $1 AND id = $2)`, clinicID, patientID).Scan(&exists)
	return exists, err
}

func (r *repoPG) AppointmentInfo(ctx context.Context, clinicID, appointmentID uuid.UUID) (uuid.UUID, string, error) {
	var patientID uuid.UUID
	var status string
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT patient_id, status FROM appointments WHERE clinic_id = $1 AND id = $2`,
		clinicID, appointmentID).Scan(&patientID, &status)
	if db.IsNotFound(err) {
		return uuid.Nil, "", ErrUnknownAppointment
	}
	return patientID, status, err
}

const invoiceColumns = `i.id, i.clinic_id, i.patient_id, i.appointment_id, i.issue_date, i.due_date,
	i.status, i.total_amount, i.notes, i.created_at, i.updated_at`

// paidSubquery sums the completed payments of invoice i.
const paidSubquery = `COALESCE((SELECT SUM(p.amount) FROM payments p
	WHERE p.invoice_id = i.id AND p.status = 'completed'), 0)`

func (r *repoPG) CreateInvoice(ctx context.Context, inv *Invoice) error {
	inv.ID = uuid.New()
	q := r.conn(ctx)
	err := q.QueryRow(ctx, `
		INSERT INTO invoices (id, clinic_id, patient_id, appointment_id, issue_date, due_date, status, total_amount, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		inv.ID, inv.ClinicID, inv.PatientID, inv.AppointmentID, inv.IssueDate, inv.DueDate,
		inv.Status, inv.TotalAmount, inv.Notes,
	).Scan(&inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	for _, l := range inv.Lines {
		l.ID = uuid.New()
		l.InvoiceID = inv.ID
		_, err := q.Exec(ctx, `
			INSERT INTO invoice_lines (id, invoice_id, service_item_id, quantity, unit_price, line_total, description)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			l.ID, l.InvoiceID, l.ServiceItemID, l.Quantity, l.UnitPrice, l.LineTotal, l.Description)
		if err != nil {
			return mapError(err)
		}
	}
	return nil
}

func (r *repoPG) GetInvoice(ctx context.Context, clinicID, id uuid.UUID) (*Invoice, error) {
	q := r.conn(ctx)
	inv, err := scanInvoice(q.QueryRow(ctx,
		`SELECT `+invoiceColumns+`, `+paidSubquery+` FROM invoices i WHERE i.clinic_id = $1 AND i.id = $2`,
		clinicID, id))
	if err != nil {
		return nil, mapError(err)
	}

	rows, err := q.Query(ctx, `
		SELECT l.id, l.invoice_id, l.service_item_id, s.name, l.quantity, l.unit_price, l.line_total, l.description
		FROM invoice_lines l
		LEFT JOIN service_items s ON s.id = l.service_item_id
		WHERE l.invoice_id = $1
		ORDER BY s.name NULLS LAST, l.id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l InvoiceLine
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.ServiceItemID, &l.ServiceName,
			&l.Quantity, &l.UnitPrice, &l.LineTotal, &l.Description); err != nil {
			return nil, err
		}
		inv.Lines = append(inv.Lines, &l)
	}
	return inv, rows.Err()
}

func (r *repoPG) LockInvoice(ctx context.Context, clinicID, id uuid.UUID) (*Invoice, error) {
	q := r.conn(ctx)
	inv, err := scanInvoiceHeader(q.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices i WHERE i.clinic_id = $1 AND i.id = $2 FOR UPDATE`,
		clinicID, id))
	if err != nil {
		return nil, mapError(err)
	}
	inv.PaidAmount, err = r.PaidAmount(ctx, id)
	return inv, err
}

func (r *repoPG) ListInvoices(ctx context.Context, clinicID uuid.UUID, f InvoiceFilter, limit, offset int) ([]*Invoice, int, error) {
	where := []string{"i.clinic_id = $1"}
	args := []interface{}{clinicID}
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		where = append(where, fmt.Sprintf("i.patient_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("i.status = $%d", len(args)))
	}
	filter := ` FROM invoices i WHERE ` + strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+filter, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+invoiceColumns+`, `+paidSubquery+filter+
		fmt.Sprintf(` ORDER BY i.issue_date DESC, i.id LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

func (r *repoPG) UpdateInvoice(ctx context.Context, inv *Invoice) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE invoices SET status = $3, due_date = $4, notes = $5, updated_at = NOW()
		WHERE clinic_id = $1 AND id = $2
		RETURNING updated_at`,
		inv.ClinicID, inv.ID, inv.Status, inv.DueDate, inv.Notes,
	).Scan(&inv.UpdatedAt)
	return mapError(err)
}

const paymentColumns = `p.id, p.invoice_id, p.method, p.amount, p.status, p.paid_at, p.created_at`

func (r *repoPG) CreatePayment(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO payments (id, invoice_id, method, amount, status, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		p.ID, p.InvoiceID, p.Method, p.Amount, p.Status, p.PaidAt,
	).Scan(&p.CreatedAt)
	return mapError(err)
}

func (r *repoPG) GetPayment(ctx context.Context, clinicID, id uuid.UUID) (*Payment, error) {
	p, err := scanPayment(r.conn(ctx).QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments p JOIN invoices i ON i.id = p.invoice_id
		WHERE i.clinic_id = $1 AND p.id = $2`, clinicID, id))
	if db.IsNotFound(err) {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

func (r *repoPG) UpdatePayment(ctx context.Context, p *Payment) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE payments SET method = $2, status = $3, paid_at = $4 WHERE id = $1`,
		p.ID, p.Method, p.Status, p.PaidAt)
	return err
}

func (r *repoPG) ListPayments(ctx context.Context, clinicID, invoiceID uuid.UUID) ([]*Payment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments p JOIN invoices i ON i.id = p.invoice_id
		WHERE i.clinic_id = $1 AND p.invoice_id = $2
		ORDER BY p.created_at, p.id`, clinicID, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repoPG) PaidAmount(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error) {
	var paid decimal.Decimal
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM payments
		WHERE invoice_id = $1 AND status = 'completed'`, invoiceID).Scan(&paid)
	return paid, err
}

func scanServiceItem(row pgx.Row) (*ServiceItem, error) {
	var it ServiceItem
	err := row.Scan(&it.ID, &it.ClinicID, &it.Name, &it.Code, &it.Price, &it.IsActive, &it.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func invoiceFields(inv *Invoice) []interface{} {
	return []interface{}{&inv.ID, &inv.ClinicID, &inv.PatientID, &inv.AppointmentID, &inv.IssueDate,
		&inv.DueDate, &inv.Status, &inv.TotalAmount, &inv.Notes, &inv.CreatedAt, &inv.UpdatedAt}
}

func scanInvoiceHeader(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	if err := row.Scan(invoiceFields(&inv)...); err != nil {
		return nil, err
	}
	return &inv, nil
}

// scanInvoice reads the header columns followed by the paid amount.
func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	if err := row.Scan(append(invoiceFields(&inv), &inv.PaidAmount)...); err != nil {
		return nil, err
	}
	return &inv, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.InvoiceID, &p.Method, &p.Amount, &p.Status, &p.PaidAt, &p.CreatedAt)
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
