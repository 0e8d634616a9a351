package clinic

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/pkg/phone"
)

const defaultMaxUsers = 10

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func validate(c *Clinic) error {
	c.Name = strings.TrimSpace(c.Name)
	c.LegalName = strings.TrimSpace(c.LegalName)
	c.TaxID = strings.TrimSpace(c.TaxID)
	if c.Name == "" {
		return fmt.Errorf("%w: clinic name is required", ErrInvalid)
	}
	if c.LegalName == "" {
		return fmt.Errorf("%w: legal name is required", ErrInvalid)
	}
	if c.TaxID == "" {
		return fmt.Errorf("%w: tax id is required", ErrInvalid)
	}
	if c.MaxUsers < 0 {
		return fmt.Errorf("%w: max_users must not be negative", ErrInvalid)
	}
	normalized, err := phone.NormalizeOptional(c.Phone)
	if err != nil {
		return fmt.Errorf("%w: phone must be a valid number", ErrInvalid)
	}
	c.Phone = normalized
	return nil
}

func (s *Service) CreateClinic(ctx context.Context, c *Clinic) error {
	if err := validate(c); err != nil {
		return err
	}
	if c.MaxUsers == 0 {
		c.MaxUsers = defaultMaxUsers
	}
	c.IsActive = true
	return s.repo.Create(ctx, c)
}

func (s *Service) GetClinic(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) UpdateClinic(ctx context.Context, c *Clinic) error {
	if err := validate(c); err != nil {
		return err
	}
	return s.repo.Update(ctx, c)
}

func (s *Service) DeleteClinic(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) ListClinics(ctx context.Context, f ListFilter, limit, offset int) ([]*Clinic, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.repo.Stats(ctx)
}
