package billing

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound               = errors.New("invoice not found")
	ErrServiceItemNotFound    = errors.New("service item not found")
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrInvalid                = errors.New("invalid billing request")
	ErrNoClinic               = errors.New("user is not associated with a clinic")
	ErrUnknownPatient         = errors.New("patient not found in this clinic")
	ErrUnknownAppointment     = errors.New("appointment not found in this clinic")
	ErrAppointmentNotComplete = errors.New("appointment is not completed")
	ErrAlreadyPaid            = errors.New("invoice is already paid")
	ErrCancelled              = errors.New("invoice is cancelled")
)

const (
	InvoiceDraft     = "draft"
	InvoiceIssued    = "issued"
	InvoicePaid      = "paid"
	InvoiceCancelled = "cancelled"
)

const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
	PaymentCancelled = "cancelled"
	PaymentRefunded  = "refunded"
)

var validPaymentMethods = map[string]bool{
	"cash":          true,
	"credit_card":   true,
	"debit_card":    true,
	"bank_transfer": true,
	"pix":           true,
	"check":         true,
	"insurance":     true,
	"other":         true,
}

var validPaymentStatuses = map[string]bool{
	PaymentPending:   true,
	PaymentCompleted: true,
	PaymentFailed:    true,
	PaymentCancelled: true,
	PaymentRefunded:  true,
}

// ServiceItem is a billable service of a clinic's price list.
type ServiceItem struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	ClinicID  uuid.UUID       `db:"clinic_id" json:"clinic_id"`
	Name      string          `db:"name" json:"name"`
	Code      *string         `db:"code" json:"code,omitempty"`
	Price     decimal.Decimal `db:"price" json:"price"`
	IsActive  bool            `db:"is_active" json:"is_active"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// ServiceItemUpdate carries the mutable price-list fields. Nil fields are
// kept.
type ServiceItemUpdate struct {
	Name     *string          `json:"name,omitempty"`
	Code     *string          `json:"code,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	IsActive *bool            `json:"is_active,omitempty"`
}

// Invoice maps to the invoices table. Lines and PaidAmount are filled on
// single-invoice reads.
type Invoice struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	ClinicID      uuid.UUID       `db:"clinic_id" json:"clinic_id"`
	PatientID     uuid.UUID       `db:"patient_id" json:"patient_id"`
	AppointmentID *uuid.UUID      `db:"appointment_id" json:"appointment_id,omitempty"`
	IssueDate     time.Time       `db:"issue_date" json:"issue_date"`
	DueDate       *time.Time      `db:"due_date" json:"due_date,omitempty"`
	Status        string          `db:"status" json:"status"`
	TotalAmount   decimal.Decimal `db:"total_amount" json:"total_amount"`
	Notes         *string         `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	Lines         []*InvoiceLine  `json:"lines,omitempty"`
}

// Balance is what is still owed, never below zero.
func (inv *Invoice) Balance() decimal.Decimal {
	b := inv.TotalAmount.Sub(inv.PaidAmount)
	if b.IsNegative() {
		return decimal.Zero
	}
	return b
}

type InvoiceLine struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	InvoiceID     uuid.UUID       `db:"invoice_id" json:"invoice_id"`
	ServiceItemID *uuid.UUID      `db:"service_item_id" json:"service_item_id,omitempty"`
	ServiceName   *string         `json:"service_name,omitempty"`
	Quantity      decimal.Decimal `db:"quantity" json:"quantity"`
	UnitPrice     decimal.Decimal `db:"unit_price" json:"unit_price"`
	LineTotal     decimal.Decimal `db:"line_total" json:"line_total"`
	Description   *string         `db:"description" json:"description,omitempty"`
}

// LineInput is one requested invoice line. Quantity defaults to 1 and
// UnitPrice to the service item's price.
type LineInput struct {
	ServiceItemID uuid.UUID        `json:"service_item_id"`
	Quantity      *decimal.Decimal `json:"quantity,omitempty"`
	UnitPrice     *decimal.Decimal `json:"unit_price,omitempty"`
	Description   *string          `json:"description,omitempty"`
}

type InvoiceInput struct {
	PatientID     uuid.UUID   `json:"patient_id"`
	AppointmentID *uuid.UUID  `json:"appointment_id,omitempty"`
	DueDate       *time.Time  `json:"due_date,omitempty"`
	Notes         *string     `json:"notes,omitempty"`
	Lines         []LineInput `json:"service_items"`
}

// InvoiceUpdate carries the mutable invoice fields. Nil fields are kept.
type InvoiceUpdate struct {
	Status  *string    `json:"status,omitempty"`
	DueDate *time.Time `json:"due_date,omitempty"`
	Notes   *string    `json:"notes,omitempty"`
}

type InvoiceFilter struct {
	PatientID *uuid.UUID
	Status    string
}

type Payment struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	InvoiceID uuid.UUID       `db:"invoice_id" json:"invoice_id"`
	Method    string          `db:"method" json:"method"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Status    string          `db:"status" json:"status"`
	PaidAt    *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// PaymentInput records a payment against an invoice. Status defaults to
// completed.
type PaymentInput struct {
	InvoiceID uuid.UUID       `json:"invoice_id"`
	Method    string          `json:"method"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status,omitempty"`
}

// PaymentUpdate carries the mutable payment fields. Nil fields are kept.
type PaymentUpdate struct {
	Method *string `json:"method,omitempty"`
	Status *string `json:"status,omitempty"`
}
