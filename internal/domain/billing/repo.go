package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository defines persistence for the price list, invoices and
// payments. Every lookup is scoped to one clinic.
type Repository interface {
	ListServiceItems(ctx context.Context, clinicID uuid.UUID, active *bool, search string) ([]*ServiceItem, error)
	GetServiceItem(ctx context.Context, clinicID, id uuid.UUID) (*ServiceItem, error)
	CreateServiceItem(ctx context.Context, it *ServiceItem) error
	UpdateServiceItem(ctx context.Context, it *ServiceItem) error

	PatientExists(ctx context.Context, clinicID, patientID uuid.UUID) (bool, error)
	// AppointmentInfo returns the patient and status of an appointment.
	AppointmentInfo(ctx context.Context, clinicID, appointmentID uuid.UUID) (patientID uuid.UUID, status string, err error)

	// CreateInvoice inserts the invoice and its lines.
	CreateInvoice(ctx context.Context, inv *Invoice) error
	// GetInvoice loads an invoice with its lines and completed payments.
	GetInvoice(ctx context.Context, clinicID, id uuid.UUID) (*Invoice, error)
	// LockInvoice loads the invoice header and its completed payments and
	// holds a row lock until the surrounding transaction ends.
	LockInvoice(ctx context.Context, clinicID, id uuid.UUID) (*Invoice, error)
	ListInvoices(ctx context.Context, clinicID uuid.UUID, f InvoiceFilter, limit, offset int) ([]*Invoice, int, error)
	UpdateInvoice(ctx context.Context, inv *Invoice) error

	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, clinicID, id uuid.UUID) (*Payment, error)
	UpdatePayment(ctx context.Context, p *Payment) error
	ListPayments(ctx context.Context, clinicID, invoiceID uuid.UUID) ([]*Payment, error)
	// PaidAmount sums the completed payments of an invoice.
	PaidAmount(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error)
}
