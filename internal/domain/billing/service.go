package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TxFunc runs fn inside a single database transaction.
type TxFunc func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	repo Repository
	tx   TxFunc
	now  func() time.Time
}

func NewService(repo Repository, tx TxFunc) *Service {
	if tx == nil {
		tx = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	return &Service{repo: repo, tx: tx, now: time.Now}
}

var one = decimal.NewFromInt(1)

// --- Service items ---

func (s *Service) ListServiceItems(ctx context.Context, clinicID uuid.UUID, active *bool, search string) ([]*ServiceItem, error) {
	if clinicID == uuid.Nil {
		return nil, ErrNoClinic
	}
	return s.repo.ListServiceItems(ctx, clinicID, active, strings.TrimSpace(search))
}

func (s *Service) CreateServiceItem(ctx context.Context, clinicID uuid.UUID, it *ServiceItem) error {
	if clinicID == uuid.Nil {
		return ErrNoClinic
	}
	it.ClinicID = clinicID
	it.IsActive = true
	if err := validateServiceItem(it); err != nil {
		return err
	}
	return s.repo.CreateServiceItem(ctx, it)
}

func (s *Service) UpdateServiceItem(ctx context.Context, clinicID, id uuid.UUID, upd ServiceItemUpdate) (*ServiceItem, error) {
	if clinicID == uuid.Nil {
		return nil, ErrNoClinic
	}
	it, err := s.repo.GetServiceItem(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		it.Name = *upd.Name
	}
	if upd.Code != nil {
		it.Code = upd.Code
	}
	if upd.Price != nil {
		it.Price = *upd.Price
	}
	if upd.IsActive != nil {
		it.IsActive = *upd.IsActive
	}
	if err := validateServiceItem(it); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateServiceItem(ctx, it); err != nil {
		return nil, err
	}
	return it, nil
}

func validateServiceItem(it *ServiceItem) error {
	it.Name = strings.TrimSpace(it.Name)
	if it.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if it.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrInvalid)
	}
	it.Price = it.Price.Round(2)
	return nil
}

// --- Invoices ---

// CreateInvoice issues an invoice for a patient. Line prices default to
// the price list and the total is the sum of the rounded line totals.
func (s *Service) CreateInvoice(ctx context.Context, clinicID uuid.UUID, in InvoiceInput) (*Invoice, error) {
	if clinicID == uuid.Nil {
		return nil, ErrNoClinic
	}
	if in.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", ErrInvalid)
	}
	if len(in.Lines) == 0 {
		return nil, fmt.Errorf("%w: at least one service item is required", ErrInvalid)
	}

	inv := &Invoice{
		ClinicID:      clinicID,
		PatientID:     in.PatientID,
		AppointmentID: in.AppointmentID,
		IssueDate:     s.now().UTC(),
		DueDate:       in.DueDate,
		Status:        InvoiceIssued,
		Notes:         in.Notes,
	}
	err := s.tx(ctx, func(ctx context.Context) error {
		ok, err := s.repo.PatientExists(ctx, clinicID, in.PatientID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUnknownPatient
		}
		if in.AppointmentID != nil {
			patientID, _, err := s.repo.AppointmentInfo(ctx, clinicID, *in.AppointmentID)
			if err != nil {
				return err
			}
			if patientID != in.PatientID {
				return fmt.Errorf("%w: appointment belongs to another patient", ErrInvalid)
			}
		}
		if err := s.buildLines(ctx, inv, in.Lines); err != nil {
			return err
		}
		return s.repo.CreateInvoice(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("invoice_id", inv.ID.String()).Str("total", inv.TotalAmount.StringFixed(2)).
		Msg("invoice issued")
	return inv, nil
}

// CreateInvoiceFromAppointment bills a completed appointment to its patient.
func (s *Service) CreateInvoiceFromAppointment(ctx context.Context, clinicID, appointmentID uuid.UUID, in InvoiceInput) (*Invoice, error) {
	if clinicID == uuid.Nil {
		return nil, ErrNoClinic
	}
	patientID, status, err := s.repo.AppointmentInfo(ctx, clinicID, appointmentID)
	if err != nil {
		return nil, err
	}
	if status != "completed" {
		return nil, fmt.Errorf("%w (status %s)", ErrAppointmentNotComplete, status)
	}
	in.PatientID = patientID
	in.AppointmentID = &appointmentID
	return s.CreateInvoice(ctx, clinicID, in)
}

func (s *Service) buildLines(ctx context.Context, inv *Invoice, lines []LineInput) error {
	total := decimal.Zero
	for i, in := range lines {
		item, err := s.repo.GetServiceItem(ctx, inv.ClinicID, in.ServiceItemID)
		if err != nil {
			return err
		}
		if !item.IsActive {
			return fmt.Errorf("%w: service item %q is inactive", ErrInvalid, item.Name)
		}
		qty := one
		if in.Quantity != nil {
			qty = *in.Quantity
		}
		if !qty.IsPositive() {
			return fmt.Errorf("%w: line %d quantity must be positive", ErrInvalid, i+1)
		}
		unit := item.Price
		if in.UnitPrice != nil {
			unit = *in.UnitPrice
		}
		if unit.IsNegative() {
			return fmt.Errorf("%w: line %d unit_price must not be negative", ErrInvalid, i+1)
		}
		itemID, name := item.ID, item.Name
		l := &InvoiceLine{
			ServiceItemID: &itemID,
			ServiceName:   &name,
			Quantity:      qty.Round(2),
			UnitPrice:     unit.Round(2),
			Description:   in.Description,
		}
		l.LineTotal = l.Quantity.Mul(l.UnitPrice).Round(2)
		total = total.Add(l.LineTotal)
		inv.Lines = append(inv.Lines, l)
	}
	inv.TotalAmount = total
	return nil
}

func (s *Service) GetInvoice(ctx context.Context, clinicID, id uuid.UUID) (*Invoice, error) {
	if clinicID == uuid.Nil {
		return nil, ErrNoClinic
	}
	return s.repo.GetInvoice(ctx, clinicID, id)
}

func (s *Service) ListInvoices(ctx context.Context, clinicID uuid.UUID, f InvoiceFilter, limit, offset int) ([]*Invoice, int, error) {
	if clinicID == uuid.Nil {
		return nil, 0, ErrNoClinic
	}
	switch f.Status {
	case "", InvoiceDraft, InvoiceIssued, InvoicePaid, InvoiceCancelled:
	default:
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrInvalid, f.Status)
	}
	return s.repo.ListInvoices(ctx, clinicID, f, limit, offset)
}

// UpdateInvoice changes the due date, notes or status of an invoice.
// Payment drives the paid status, so it cannot be set here, and cancelled
// invoices are final.
func (s *Service) UpdateInvoice(ctx context.Context, clinicID, id uuid.UUID, upd InvoiceUpdate) (*Invoice, error) {
	if clinicID == uuid.Nil {
		return nil, ErrNoClinic
	}
	var inv *Invoice
	err := s.tx(ctx, func(ctx context.Context) error {
		var err error
		if inv, err = s.repo.LockInvoice(ctx, clinicID, id); err != nil {
			return err
		}
		if inv.Status == InvoiceCancelled {
			return ErrCancelled
		}
		if upd.Status != nil && *upd.Status != inv.Status {
			switch *upd.Status {
			case InvoiceDraft, InvoiceIssued, InvoiceCancelled:
			case InvoicePaid:
				return fmt.Errorf("%w: use mark-paid or record a payment", ErrInvalid)
			default:
				return fmt.Errorf("%w: unknown status %q", ErrInvalid, *upd.Status)
			}
			if inv.Status == InvoicePaid {
				return ErrAlreadyPaid
			}
			inv.Status = *upd.Status
		}
		if upd.DueDate != nil {
			inv.DueDate = upd.DueDate
		}
		if upd.Notes != nil {
			inv.Notes = upd.Notes
		}
		return s.repo.UpdateInvoice(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// MarkPaid settles the open balance of an invoice with one completed
// payment and marks it paid.
func (s *Service) MarkPaid(ctx context.Context, clinicID, id uuid.UUID, method string) (*Invoice, error) {
	if clinicID == uuid.Nil {
		return nil, ErrNoClinic
	}
	if method == "" {
		method = "cash"
	}
	if !validPaymentMethods[method] {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrInvalid, method)
	}
	var inv *Invoice
	err := s.tx(ctx, func(ctx context.Context) error {
		var err error
		if inv, err = s.repo.LockInvoice(ctx, clinicID, id); err != nil {
			return err
		}
		switch inv.Status {
		case InvoiceCancelled:
			return ErrCancelled
		case InvoicePaid:
			return ErrAlreadyPaid
		}
		if balance := inv.Balance(); balance.IsPositive() {
			now := s.now().UTC()
			p := &Payment{InvoiceID: inv.ID, Method: method, Amount: balance, Status: PaymentCompleted, PaidAt: &now}
			if err := s.repo.CreatePayment(ctx, p); err != nil {
				return err
			}
			inv.PaidAmount = inv.PaidAmount.Add(balance)
		}
		inv.Status = InvoicePaid
		return s.repo.UpdateInvoice(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("invoice_id", inv.ID.String()).Msg("invoice marked paid")
	return inv, nil
}

// --- Payments ---

// RecordPayment registers a payment and marks the invoice paid once its
// completed payments cover the total.
func (s *Service) RecordPayment(ctx context.Context, clinicID uuid.UUID, in PaymentInput) (*Payment, error) {
	if clinicID == uuid.Nil {
		return nil, ErrNoClinic
	}
	if in.InvoiceID == uuid.Nil {
		return nil, fmt.Errorf("%w: invoice_id is required", ErrInvalid)
	}
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalid)
	}
	if !validPaymentMethods[in.Method] {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrInvalid, in.Method)
	}
	if in.Status == "" {
		in.Status = PaymentCompleted
	}
	if !validPaymentStatuses[in.Status] {
		return nil, fmt.Errorf("%w: unknown payment status %q", ErrInvalid, in.Status)
	}

	p := &Payment{InvoiceID: in.InvoiceID, Method: in.Method, Amount: in.Amount.Round(2), Status: in.Status}
	if p.Status == PaymentCompleted {
		now := s.now().UTC()
		p.PaidAt = &now
	}
	err := s.tx(ctx, func(ctx context.Context) error {
		inv, err := s.repo.LockInvoice(ctx, clinicID, in.InvoiceID)
		if err != nil {
			return err
		}
		switch inv.Status {
		case InvoiceCancelled:
			return ErrCancelled
		case InvoicePaid:
			return ErrAlreadyPaid
		}
		if err := s.repo.CreatePayment(ctx, p); err != nil {
			return err
		}
		return s.settle(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("payment_id", p.ID.String()).Str("invoice_id", p.InvoiceID.String()).
		Str("amount", p.Amount.StringFixed(2)).Str("status", p.Status).Msg("payment recorded")
	return p, nil
}

// UpdatePayment changes the method or status of a payment and brings the
// invoice status in line with the new paid amount.
func (s *Service) UpdatePayment(ctx context.Context, clinicID, id uuid.UUID, upd PaymentUpdate) (*Payment, error) {
	if clinicID == uuid.Nil {
		return nil, ErrNoClinic
	}
	if upd.Method != nil && !validPaymentMethods[*upd.Method] {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrInvalid, *upd.Method)
	}
	if upd.Status != nil && !validPaymentStatuses[*upd.Status] {
		return nil, fmt.Errorf("%w: unknown payment status %q", ErrInvalid, *upd.Status)
	}
	var p *Payment
	err := s.tx(ctx, func(ctx context.Context) error {
		var err error
		if p, err = s.repo.GetPayment(ctx, clinicID, id); err != nil {
			return err
		}
		inv, err := s.repo.LockInvoice(ctx, clinicID, p.InvoiceID)
		if err != nil {
			return err
		}
		if inv.Status == InvoiceCancelled {
			return ErrCancelled
		}
		if upd.Method != nil {
			p.Method = *upd.Method
		}
		if upd.Status != nil {
			p.Status = *upd.Status
		}
		if p.Status == PaymentCompleted && p.PaidAt == nil {
			now := s.now().UTC()
			p.PaidAt = &now
		}
		if err := s.repo.UpdatePayment(ctx, p); err != nil {
			return err
		}
		return s.settle(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) ListPayments(ctx context.Context, clinicID, invoiceID uuid.UUID) ([]*Payment, error) {
	if clinicID == uuid.Nil {
		return nil, ErrNoClinic
	}
	if _, err := s.repo.GetInvoice(ctx, clinicID, invoiceID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, clinicID, invoiceID)
}

// settle recomputes the paid amount of a locked invoice and moves it
// between issued and paid accordingly.
func (s *Service) settle(ctx context.Context, inv *Invoice) error {
	paid, err := s.repo.PaidAmount(ctx, inv.ID)
	if err != nil {
		return err
	}
	inv.PaidAmount = paid
	status := inv.Status
	switch {
	case inv.TotalAmount.IsPositive() && paid.GreaterThanOrEqual(inv.TotalAmount):
		status = InvoicePaid
	case inv.Status == InvoicePaid && paid.LessThan(inv.TotalAmount):
		status = InvoiceIssued
	}
	if status == inv.Status {
		return nil
	}
	inv.Status = status
	return s.repo.UpdateInvoice(ctx, inv)
}
