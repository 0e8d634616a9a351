package patient

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// -- Mock Repository --

type mockRepo struct {
	patients   map[uuid.UUID]*Patient
	referenced map[uuid.UUID]bool
}

func newMockRepo() *mockRepo {
	return &mockRepo{patients: make(map[uuid.UUID]*Patient), referenced: make(map[uuid.UUID]bool)}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	if p.CPF != nil {
		for _, existing := range m.patients {
			if existing.ClinicID == p.ClinicID && existing.CPF != nil && *existing.CPF == *p.CPF {
				return ErrDuplicateCPF
			}
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, clinicID, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok || p.ClinicID != clinicID {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	existing, ok := m.patients[p.ID]
	if !ok || existing.ClinicID != p.ClinicID {
		return ErrNotFound
	}
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) Delete(_ context.Context, clinicID, id uuid.UUID) error {
	p, ok := m.patients[id]
	if !ok || p.ClinicID != clinicID {
		return ErrNotFound
	}
	if m.referenced[id] {
		return ErrHasRecords
	}
	delete(m.patients, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, clinicID uuid.UUID, search string, limit, offset int) ([]*Patient, int, error) {
	var out []*Patient
	for _, p := range m.patients {
		if p.ClinicID != clinicID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.FullName()), strings.ToLower(search)) {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

var (
	clinicA = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	clinicB = uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000002")
)

func newTestService() *Service {
	svc := NewService(newMockRepo())
	svc.now = func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) }
	return svc
}

func strPtr(s string) *string { return &s }

func TestService_CreatePatient(t *testing.T) {
	svc := newTestService()
	p := &Patient{FirstName: " Maria ", LastName: "Silva", CPF: strPtr("123.456.789-00")}
	if err := svc.CreatePatient(context.Background(), clinicA, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ClinicID != clinicA {
		t.Error("expected patient scoped to caller clinic")
	}
	if p.FirstName != "Maria" || !p.IsActive {
		t.Errorf("unexpected patient %+v", p)
	}
}

func TestService_CreatePatient_Validation(t *testing.T) {
	future := NewDate(2030, 1, 1)
	tests := []struct {
		name string
		p    *Patient
		want error
	}{
		{"missing first name", &Patient{LastName: "Silva"}, ErrInvalid},
		{"missing last name", &Patient{FirstName: "Maria"}, ErrInvalid},
		{"future birth date", &Patient{FirstName: "Maria", LastName: "Silva", DateOfBirth: &future}, ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService()
			if err := svc.CreatePatient(context.Background(), clinicA, tt.p); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestService_RequiresClinic(t *testing.T) {
	svc := newTestService()
	if err := svc.CreatePatient(context.Background(), uuid.Nil, &Patient{FirstName: "A", LastName: "B"}); !errors.Is(err, ErrNoClinic) {
		t.Errorf("expected ErrNoClinic, got %v", err)
	}
	if _, _, err := svc.ListPatients(context.Background(), uuid.Nil, "", 20, 0); !errors.Is(err, ErrNoClinic) {
		t.Errorf("expected ErrNoClinic, got %v", err)
	}
}

func TestService_ClinicIsolation(t *testing.T) {
	svc := newTestService()
	p := &Patient{FirstName: "Maria", LastName: "Silva"}
	svc.CreatePatient(context.Background(), clinicA, p)

	if _, err := svc.GetPatient(context.Background(), clinicB, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound across clinics, got %v", err)
	}
	if err := svc.DeletePatient(context.Background(), clinicB, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound across clinics, got %v", err)
	}
	list, total, _ := svc.ListPatients(context.Background(), clinicB, "", 20, 0)
	if total != 0 || len(list) != 0 {
		t.Errorf("expected no patients for other clinic, got %d", total)
	}
}

func TestService_BlankCPFStoredAsNull(t *testing.T) {
	svc := newTestService()
	a := &Patient{FirstName: "A", LastName: "One", CPF: strPtr("  ")}
	b := &Patient{FirstName: "B", LastName: "Two", CPF: strPtr("")}
	if err := svc.CreatePatient(context.Background(), clinicA, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.CreatePatient(context.Background(), clinicA, b); err != nil {
		t.Fatalf("blank CPFs must not collide: %v", err)
	}
	if a.CPF != nil {
		t.Error("expected blank CPF cleared")
	}
}

func TestDate_JSON(t *testing.T) {
	var p Patient
	if err := json.Unmarshal([]byte(`{"first_name":"A","last_name":"B","date_of_birth":"1990-05-01"}`), &p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.DateOfBirth == nil || p.DateOfBirth.Year() != 1990 || p.DateOfBirth.Month() != time.May {
		t.Fatalf("unexpected date %v", p.DateOfBirth)
	}
	out, _ := json.Marshal(p)
	if !strings.Contains(string(out), `"date_of_birth":"1990-05-01"`) {
		t.Errorf("unexpected encoding %s", out)
	}
	if err := json.Unmarshal([]byte(`{"date_of_birth":"01/05/1990"}`), &p); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestDate_Scan(t *testing.T) {
	var d Date
	if err := d.Scan(time.Date(1985, 3, 2, 0, 0, 0, 0, time.Local)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Format(dateLayout) != "1985-03-02" {
		t.Errorf("unexpected date %s", d.Format(dateLayout))
	}
	if err := d.Scan(42); err == nil {
		t.Error("expected error for unsupported source")
	}
}

func TestService_PhoneNormalized(t *testing.T) {
	svc := newTestService()
	p := &Patient{FirstName: "Maria", LastName: "Silva", Phone: strPtr("(11) 98765-4321")}
	if err := svc.CreatePatient(context.Background(), clinicA, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Phone == nil || *p.Phone != "+5511987654321" {
		t.Errorf("expected E.164 phone, got %v", p.Phone)
	}

	bad := &Patient{FirstName: "João", LastName: "Souza", Phone: strPtr("123")}
	if err := svc.CreatePatient(context.Background(), clinicA, bad); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for malformed phone, got %v", err)
	}
}
