package clinic

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// -- Mock Repository --

type mockRepo struct {
	clinics map[uuid.UUID]*Clinic
}

func newMockRepo() *mockRepo {
	return &mockRepo{clinics: make(map[uuid.UUID]*Clinic)}
}

func (m *mockRepo) Create(_ context.Context, c *Clinic) error {
	for _, existing := range m.clinics {
		if existing.TaxID == c.TaxID {
			return ErrDuplicateTaxID
		}
	}
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	m.clinics[c.ID] = c
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Clinic, error) {
	c, ok := m.clinics[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *mockRepo) Update(_ context.Context, c *Clinic) error {
	if _, ok := m.clinics[c.ID]; !ok {
		return ErrNotFound
	}
	m.clinics[c.ID] = c
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.clinics[id]; !ok {
		return ErrNotFound
	}
	delete(m.clinics, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, f ListFilter, limit, offset int) ([]*Clinic, int, error) {
	var out []*Clinic
	for _, c := range m.clinics {
		if f.IsActive != nil && c.IsActive != *f.IsActive {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, c)
	}
	return out, len(out), nil
}

func (m *mockRepo) Stats(_ context.Context) (*Stats, error) {
	s := &Stats{TotalClinics: len(m.clinics)}
	for _, c := range m.clinics {
		if c.IsActive {
			s.ActiveClinics++
		}
		s.TotalUsers += c.UserCount
	}
	return s, nil
}

func newTestService() *Service {
	return NewService(newMockRepo())
}

func sampleClinic() *Clinic {
	return &Clinic{Name: "Clínica Central", LegalName: "Clínica Central LTDA", TaxID: "12.345.678/0001-90"}
}

func TestService_CreateClinic(t *testing.T) {
	svc := newTestService()
	c := sampleClinic()
	if err := svc.CreateClinic(context.Background(), c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if !c.IsActive {
		t.Error("expected new clinic to be active")
	}
	if c.MaxUsers != defaultMaxUsers {
		t.Errorf("expected default max users %d, got %d", defaultMaxUsers, c.MaxUsers)
	}
}

func TestService_CreateClinic_PhoneNormalized(t *testing.T) {
	svc := newTestService()
	c := sampleClinic()
	raw := "(21) 3456-7890"
	c.Phone = &raw
	if err := svc.CreateClinic(context.Background(), c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *c.Phone != "+552134567890" {
		t.Errorf("expected E.164 phone, got %s", *c.Phone)
	}
}

func TestService_CreateClinic_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Clinic)
	}{
		{"missing name", func(c *Clinic) { c.Name = "  " }},
		{"missing legal name", func(c *Clinic) { c.LegalName = "" }},
		{"missing tax id", func(c *Clinic) { c.TaxID = "" }},
		{"negative max users", func(c *Clinic) { c.MaxUsers = -1 }},
		{"malformed phone", func(c *Clinic) { bad := "0800"; c.Phone = &bad }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService()
			c := sampleClinic()
			tt.mutate(c)
			if err := svc.CreateClinic(context.Background(), c); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestService_CreateClinic_DuplicateTaxID(t *testing.T) {
	svc := newTestService()
	svc.CreateClinic(context.Background(), sampleClinic())
	if err := svc.CreateClinic(context.Background(), sampleClinic()); !errors.Is(err, ErrDuplicateTaxID) {
		t.Fatalf("expected ErrDuplicateTaxID, got %v", err)
	}
}

func TestService_Stats(t *testing.T) {
	svc := newTestService()
	a := sampleClinic()
	svc.CreateClinic(context.Background(), a)
	b := sampleClinic()
	b.TaxID = "98.765.432/0001-10"
	svc.CreateClinic(context.Background(), b)
	b.IsActive = false
	svc.UpdateClinic(context.Background(), b)

	s, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.TotalClinics != 2 || s.ActiveClinics != 1 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestService_DeleteClinic_NotFound(t *testing.T) {
	svc := newTestService()
	if err := svc.DeleteClinic(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBuildFilter(t *testing.T) {
	active := true
	where, args := buildFilter(ListFilter{Search: " central ", IsActive: &active})
	if !strings.Contains(where, "ILIKE $1") || !strings.Contains(where, "c.is_active = $2") {
		t.Errorf("unexpected where clause %q", where)
	}
	if len(args) != 2 || args[0] != "%central%" || args[1] != true {
		t.Errorf("unexpected args %v", args)
	}
	if where, args := buildFilter(ListFilter{}); where != "" || args != nil {
		t.Errorf("expected empty filter, got %q %v", where, args)
	}
}
