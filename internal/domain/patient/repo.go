package patient

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the persistence interface for patients. Every method
// is scoped to one clinic.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, clinicID, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, clinicID, id uuid.UUID) error
	List(ctx context.Context, clinicID uuid.UUID, search string, limit, offset int) ([]*Patient, int, error)
}
