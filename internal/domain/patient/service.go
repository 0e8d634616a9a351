package patient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/pkg/phone"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) validate(p *Patient) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	if p.FirstName == "" {
		return fmt.Errorf("%w: first_name is required", ErrInvalid)
	}
	if p.LastName == "" {
		return fmt.Errorf("%w: last_name is required", ErrInvalid)
	}
	if p.DateOfBirth != nil && p.DateOfBirth.After(s.now()) {
		return fmt.Errorf("%w: date_of_birth is in the future", ErrInvalid)
	}
	if p.CPF != nil {
		cpf := strings.TrimSpace(*p.CPF)
		if cpf == "" {
			p.CPF = nil
		} else {
			p.CPF = &cpf
		}
	}
	normalized, err := phone.NormalizeOptional(p.Phone)
	if err != nil {
		return fmt.Errorf("%w: phone must be a valid number", ErrInvalid)
	}
	p.Phone = normalized
	return nil
}

// CreatePatient registers a patient in clinicID.
func (s *Service) CreatePatient(ctx context.Context, clinicID uuid.UUID, p *Patient) error {
	if clinicID == uuid.Nil {
		return ErrNoClinic
	}
	if err := s.validate(p); err != nil {
		return err
	}
	p.ClinicID = clinicID
	p.IsActive = true
	return s.repo.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, clinicID, id uuid.UUID) (*Patient, error) {
	if clinicID == uuid.Nil {
		return nil, ErrNoClinic
	}
	return s.repo.GetByID(ctx, clinicID, id)
}

func (s *Service) UpdatePatient(ctx context.Context, clinicID uuid.UUID, p *Patient) error {
	if clinicID == uuid.Nil {
		return ErrNoClinic
	}
	if err := s.validate(p); err != nil {
		return err
	}
	p.ClinicID = clinicID
	return s.repo.Update(ctx, p)
}

func (s *Service) DeletePatient(ctx context.Context, clinicID, id uuid.UUID) error {
	if clinicID == uuid.Nil {
		return ErrNoClinic
	}
	return s.repo.Delete(ctx, clinicID, id)
}

func (s *Service) ListPatients(ctx context.Context, clinicID uuid.UUID, search string, limit, offset int) ([]*Patient, int, error) {
	if clinicID == uuid.Nil {
		return nil, 0, ErrNoClinic
	}
	return s.repo.List(ctx, clinicID, search, limit, offset)
}
