package billing

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	clinicA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	clinicB = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

type mockAppointment struct {
	clinic, patient uuid.UUID
	status          string
}

// -- Mock Repository --

type mockRepo struct {
	items        map[uuid.UUID]*ServiceItem
	invoices     map[uuid.UUID]*Invoice
	payments     map[uuid.UUID]*Payment
	patients     map[uuid.UUID]uuid.UUID // patient -> clinic
	appointments map[uuid.UUID]mockAppointment
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		items:        make(map[uuid.UUID]*ServiceItem),
		invoices:     make(map[uuid.UUID]*Invoice),
		payments:     make(map[uuid.UUID]*Payment),
		patients:     make(map[uuid.UUID]uuid.UUID),
		appointments: make(map[uuid.UUID]mockAppointment),
	}
}

func (m *mockRepo) ListServiceItems(_ context.Context, clinicID uuid.UUID, active *bool, _ string) ([]*ServiceItem, error) {
	var out []*ServiceItem
	for _, it := range m.items {
		if it.ClinicID == clinicID && (active == nil || it.IsActive == *active) {
			cp := *it
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockRepo) GetServiceItem(_ context.Context, clinicID, id uuid.UUID) (*ServiceItem, error) {
	it, ok := m.items[id]
	if !ok || it.ClinicID != clinicID {
		return nil, ErrServiceItemNotFound
	}
	cp := *it
	return &cp, nil
}

func (m *mockRepo) CreateServiceItem(_ context.Context, it *ServiceItem) error {
	it.ID = uuid.New()
	it.CreatedAt = time.Now()
	cp := *it
	m.items[it.ID] = &cp
	return nil
}

func (m *mockRepo) UpdateServiceItem(_ context.Context, it *ServiceItem) error {
	if _, ok := m.items[it.ID]; !ok {
		return ErrServiceItemNotFound
	}
	cp := *it
	m.items[it.ID] = &cp
	return nil
}

func (m *mockRepo) PatientExists(_ context.Context, clinicID, patientID uuid.UUID) (bool, error) {
	return m.patients[patientID] == clinicID, nil
}

func (m *mockRepo) AppointmentInfo(_ context.Context, clinicID, id uuid.UUID) (uuid.UUID, string, error) {
	a, ok := m.appointments[id]
	if !ok || a.clinic != clinicID {
		return uuid.Nil, "", ErrUnknownAppointment
	}
	return a.patient, a.status, nil
}

func (m *mockRepo) CreateInvoice(_ context.Context, inv *Invoice) error {
	inv.ID = uuid.New()
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	for _, l := range inv.Lines {
		l.ID = uuid.New()
		l.InvoiceID = inv.ID
	}
	cp := *inv
	m.invoices[inv.ID] = &cp
	return nil
}

func (m *mockRepo) GetInvoice(ctx context.Context, clinicID, id uuid.UUID) (*Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok || inv.ClinicID != clinicID {
		return nil, ErrNotFound
	}
	cp := *inv
	cp.PaidAmount, _ = m.PaidAmount(ctx, id)
	return &cp, nil
}

func (m *mockRepo) LockInvoice(ctx context.Context, clinicID, id uuid.UUID) (*Invoice, error) {
	return m.GetInvoice(ctx, clinicID, id)
}

func (m *mockRepo) ListInvoices(ctx context.Context, clinicID uuid.UUID, f InvoiceFilter, _, _ int) ([]*Invoice, int, error) {
	var out []*Invoice
	for id, inv := range m.invoices {
		if inv.ClinicID != clinicID || (f.Status != "" && inv.Status != f.Status) {
			continue
		}
		if f.PatientID != nil && inv.PatientID != *f.PatientID {
			continue
		}
		cp, _ := m.GetInvoice(ctx, clinicID, id)
		out = append(out, cp)
	}
	return out, len(out), nil
}

func (m *mockRepo) UpdateInvoice(_ context.Context, inv *Invoice) error {
	existing, ok := m.invoices[inv.ID]
	if !ok || existing.ClinicID != inv.ClinicID {
		return ErrNotFound
	}
	existing.Status, existing.DueDate, existing.Notes = inv.Status, inv.DueDate, inv.Notes
	return nil
}

func (m *mockRepo) CreatePayment(_ context.Context, p *Payment) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *mockRepo) GetPayment(_ context.Context, clinicID, id uuid.UUID) (*Payment, error) {
	p, ok := m.payments[id]
	if !ok || m.invoices[p.InvoiceID].ClinicID != clinicID {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) UpdatePayment(_ context.Context, p *Payment) error {
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *mockRepo) ListPayments(_ context.Context, _, invoiceID uuid.UUID) ([]*Payment, error) {
	var out []*Payment
	for _, p := range m.payments {
		if p.InvoiceID == invoiceID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) PaidAmount(_ context.Context, invoiceID uuid.UUID) (decimal.Decimal, error) {
	paid := decimal.Zero
	for _, p := range m.payments {
		if p.InvoiceID == invoiceID && p.Status == PaymentCompleted {
			paid = paid.Add(p.Amount)
		}
	}
	return paid, nil
}

// -- Helpers --

type fixture struct {
	svc      *Service
	repo     *mockRepo
	patient  uuid.UUID
	consulta *ServiceItem
	exame    *ServiceItem
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMockRepo()
	f := &fixture{
		svc:     NewService(repo, nil),
		repo:    repo,
		patient: uuid.New(),
		now:     time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC),
	}
	f.svc.now = func() time.Time { return f.now }
	repo.patients[f.patient] = clinicA

	ctx := context.Background()
	f.consulta = &ServiceItem{Name: "Consulta", Price: dec("200")}
	f.exame = &ServiceItem{Name: "Hemograma", Price: dec("35.90")}
	for _, it := range []*ServiceItem{f.consulta, f.exame} {
		if err := f.svc.CreateServiceItem(ctx, clinicA, it); err != nil {
			t.Fatalf("seed service item: %v", err)
		}
	}
	return f
}

func (f *fixture) invoice(t *testing.T, lines ...LineInput) *Invoice {
	t.Helper()
	inv, err := f.svc.CreateInvoice(context.Background(), clinicA, InvoiceInput{PatientID: f.patient, Lines: lines})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	return inv
}

// -- Tests --

func TestService_CreateServiceItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if !f.consulta.IsActive || f.consulta.ClinicID != clinicA {
		t.Errorf("expected active clinic A item, got %+v", f.consulta)
	}
	if err := f.svc.CreateServiceItem(ctx, clinicA, &ServiceItem{Name: "  "}); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for blank name, got %v", err)
	}
	if err := f.svc.CreateServiceItem(ctx, clinicA, &ServiceItem{Name: "X", Price: dec("-1")}); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for negative price, got %v", err)
	}
	if err := f.svc.CreateServiceItem(ctx, uuid.Nil, &ServiceItem{Name: "X"}); !errors.Is(err, ErrNoClinic) {
		t.Errorf("expected ErrNoClinic, got %v", err)
	}

	inactive := false
	it, err := f.svc.UpdateServiceItem(ctx, clinicA, f.exame.ID, ServiceItemUpdate{Price: decPtr("40.005"), IsActive: &inactive})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !it.Price.Equal(dec("40.01")) || it.IsActive {
		t.Errorf("unexpected update result %+v", it)
	}
	if _, err := f.svc.UpdateServiceItem(ctx, clinicB, f.exame.ID, ServiceItemUpdate{}); !errors.Is(err, ErrServiceItemNotFound) {
		t.Errorf("expected item of another clinic to be hidden, got %v", err)
	}

	active := true
	items, _ := f.svc.ListServiceItems(ctx, clinicA, &active, "")
	if len(items) != 1 || items[0].Name != "Consulta" {
		t.Errorf("expected only the active item, got %d", len(items))
	}
}

func TestService_CreateInvoice_Totals(t *testing.T) {
	f := newFixture(t)

	inv := f.invoice(t,
		LineInput{ServiceItemID: f.consulta.ID},
		LineInput{ServiceItemID: f.exame.ID, Quantity: decPtr("3")},
		LineInput{ServiceItemID: f.consulta.ID, UnitPrice: decPtr("150"), Quantity: decPtr("0.5")},
	)
	if inv.Status != InvoiceIssued {
		t.Errorf("expected issued invoice, got %s", inv.Status)
	}
	if !inv.IssueDate.Equal(f.now) {
		t.Errorf("expected issue date %v, got %v", f.now, inv.IssueDate)
	}
	want := []string{"200", "107.7", "75"}
	for i, l := range inv.Lines {
		if !l.LineTotal.Equal(dec(want[i])) {
			t.Errorf("line %d: expected %s, got %s", i, want[i], l.LineTotal)
		}
	}
	if !inv.TotalAmount.Equal(dec("382.70")) {
		t.Errorf("expected total 382.70, got %s", inv.TotalAmount)
	}
}

func TestService_CreateInvoice_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inactive := false
	f.svc.UpdateServiceItem(ctx, clinicA, f.exame.ID, ServiceItemUpdate{IsActive: &inactive})
	otherClinicPatient := uuid.New()
	f.repo.patients[otherClinicPatient] = clinicB

	tests := []struct {
		name string
		in   InvoiceInput
		want error
	}{
		{"no lines", InvoiceInput{PatientID: f.patient}, ErrInvalid},
		{"no patient", InvoiceInput{Lines: []LineInput{{ServiceItemID: f.consulta.ID}}}, ErrInvalid},
		{"foreign patient", InvoiceInput{PatientID: otherClinicPatient, Lines: []LineInput{{ServiceItemID: f.consulta.ID}}}, ErrUnknownPatient},
		{"unknown item", InvoiceInput{PatientID: f.patient, Lines: []LineInput{{ServiceItemID: uuid.New()}}}, ErrServiceItemNotFound},
		{"inactive item", InvoiceInput{PatientID: f.patient, Lines: []LineInput{{ServiceItemID: f.exame.ID}}}, ErrInvalid},
		{"zero quantity", InvoiceInput{PatientID: f.patient, Lines: []LineInput{{ServiceItemID: f.consulta.ID, Quantity: decPtr("0")}}}, ErrInvalid},
		{"negative price", InvoiceInput{PatientID: f.patient, Lines: []LineInput{{ServiceItemID: f.consulta.ID, UnitPrice: decPtr("-5")}}}, ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.CreateInvoice(ctx, clinicA, tt.in); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if len(f.repo.invoices) != 0 {
		t.Errorf("expected no invoice to be stored, got %d", len(f.repo.invoices))
	}
}

func TestService_CreateInvoiceFromAppointment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	done, pending := uuid.New(), uuid.New()
	f.repo.appointments[done] = mockAppointment{clinic: clinicA, patient: f.patient, status: "completed"}
	f.repo.appointments[pending] = mockAppointment{clinic: clinicA, patient: f.patient, status: "scheduled"}
	lines := []LineInput{{ServiceItemID: f.consulta.ID}}

	inv, err := f.svc.CreateInvoiceFromAppointment(ctx, clinicA, done, InvoiceInput{Lines: lines})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.PatientID != f.patient || inv.AppointmentID == nil || *inv.AppointmentID != done {
		t.Errorf("expected invoice linked to appointment and its patient, got %+v", inv)
	}
	if _, err := f.svc.CreateInvoiceFromAppointment(ctx, clinicA, pending, InvoiceInput{Lines: lines}); !errors.Is(err, ErrAppointmentNotComplete) {
		t.Errorf("expected ErrAppointmentNotComplete, got %v", err)
	}
	if _, err := f.svc.CreateInvoiceFromAppointment(ctx, clinicB, done, InvoiceInput{Lines: lines}); !errors.Is(err, ErrUnknownAppointment) {
		t.Errorf("expected ErrUnknownAppointment across clinics, got %v", err)
	}
}

func TestService_PaymentsSettleInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.invoice(t, LineInput{ServiceItemID: f.consulta.ID})

	pending, err := f.svc.RecordPayment(ctx, clinicA, PaymentInput{InvoiceID: inv.ID, Method: "pix", Amount: dec("150"), Status: PaymentPending})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pending.PaidAt != nil {
		t.Error("expected pending payment without paid_at")
	}
	p1, err := f.svc.RecordPayment(ctx, clinicA, PaymentInput{InvoiceID: inv.ID, Method: "cash", Amount: dec("50")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p1.Status != PaymentCompleted || p1.PaidAt == nil {
		t.Errorf("expected completed payment with paid_at, got %+v", p1)
	}
	got, _ := f.svc.GetInvoice(ctx, clinicA, inv.ID)
	if got.Status != InvoiceIssued || !got.Balance().Equal(dec("150")) {
		t.Fatalf("expected issued invoice with 150 open, got %s/%s", got.Status, got.Balance())
	}

	completed := PaymentCompleted
	if _, err := f.svc.UpdatePayment(ctx, clinicA, pending.ID, PaymentUpdate{Status: &completed}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ = f.svc.GetInvoice(ctx, clinicA, inv.ID)
	if got.Status != InvoicePaid || !got.Balance().IsZero() {
		t.Fatalf("expected paid invoice, got %s/%s", got.Status, got.Balance())
	}
	if _, err := f.svc.RecordPayment(ctx, clinicA, PaymentInput{InvoiceID: inv.ID, Method: "cash", Amount: dec("1")}); !errors.Is(err, ErrAlreadyPaid) {
		t.Errorf("expected ErrAlreadyPaid, got %v", err)
	}

	refunded := PaymentRefunded
	if _, err := f.svc.UpdatePayment(ctx, clinicA, p1.ID, PaymentUpdate{Status: &refunded}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ = f.svc.GetInvoice(ctx, clinicA, inv.ID)
	if got.Status != InvoiceIssued || !got.PaidAmount.Equal(dec("150")) {
		t.Errorf("expected refund to reopen the invoice, got %s paid %s", got.Status, got.PaidAmount)
	}
}

func TestService_RecordPayment_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.invoice(t, LineInput{ServiceItemID: f.consulta.ID})

	tests := []struct {
		name string
		in   PaymentInput
		want error
	}{
		{"zero amount", PaymentInput{InvoiceID: inv.ID, Method: "cash"}, ErrInvalid},
		{"bad method", PaymentInput{InvoiceID: inv.ID, Method: "barter", Amount: dec("10")}, ErrInvalid},
		{"bad status", PaymentInput{InvoiceID: inv.ID, Method: "cash", Amount: dec("10"), Status: "maybe"}, ErrInvalid},
		{"unknown invoice", PaymentInput{InvoiceID: uuid.New(), Method: "cash", Amount: dec("10")}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.RecordPayment(ctx, clinicA, tt.in); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if _, err := f.svc.RecordPayment(ctx, clinicB, PaymentInput{InvoiceID: inv.ID, Method: "cash", Amount: dec("10")}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected invoice of another clinic to be hidden, got %v", err)
	}
}

func TestService_MarkPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.invoice(t, LineInput{ServiceItemID: f.consulta.ID})
	if _, err := f.svc.RecordPayment(ctx, clinicA, PaymentInput{InvoiceID: inv.ID, Method: "cash", Amount: dec("80")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := f.svc.MarkPaid(ctx, clinicA, inv.ID, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != InvoicePaid || !got.PaidAmount.Equal(dec("200")) {
		t.Errorf("expected paid invoice covering 200, got %s/%s", got.Status, got.PaidAmount)
	}
	payments, _ := f.svc.ListPayments(ctx, clinicA, inv.ID)
	if len(payments) != 2 {
		t.Fatalf("expected balance settled by a second payment, got %d", len(payments))
	}
	if _, err := f.svc.MarkPaid(ctx, clinicA, inv.ID, ""); !errors.Is(err, ErrAlreadyPaid) {
		t.Errorf("expected ErrAlreadyPaid, got %v", err)
	}
	if _, err := f.svc.MarkPaid(ctx, clinicA, inv.ID, "barter"); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for unknown method, got %v", err)
	}
}

func TestService_UpdateInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.invoice(t, LineInput{ServiceItemID: f.consulta.ID})
	str := func(s string) *string { return &s }

	due := f.now.AddDate(0, 0, 30)
	got, err := f.svc.UpdateInvoice(ctx, clinicA, inv.ID, InvoiceUpdate{DueDate: &due, Notes: str("parcelado")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) || got.Status != InvoiceIssued {
		t.Errorf("unexpected update result %+v", got)
	}
	if _, err := f.svc.UpdateInvoice(ctx, clinicA, inv.ID, InvoiceUpdate{Status: str(InvoicePaid)}); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected paid status to be rejected, got %v", err)
	}
	if _, err := f.svc.UpdateInvoice(ctx, clinicA, inv.ID, InvoiceUpdate{Status: str(InvoiceCancelled)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.svc.UpdateInvoice(ctx, clinicA, inv.ID, InvoiceUpdate{Status: str(InvoiceIssued)}); !errors.Is(err, ErrCancelled) {
		t.Errorf("expected cancelled invoice to be final, got %v", err)
	}
	if _, err := f.svc.RecordPayment(ctx, clinicA, PaymentInput{InvoiceID: inv.ID, Method: "cash", Amount: dec("10")}); !errors.Is(err, ErrCancelled) {
		t.Errorf("expected payment on cancelled invoice to fail, got %v", err)
	}
}
