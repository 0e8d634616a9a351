package clinic

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the persistence interface for clinics.
type Repository interface {
	Create(ctx context.Context, c *Clinic) error
	GetByID(ctx context.Context, id uuid.UUID) (*Clinic, error)
	Update(ctx context.Context, c *Clinic) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Clinic, int, error)
	Stats(ctx context.Context) (*Stats, error)
}
