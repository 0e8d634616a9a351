package user

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the persistence interface for users.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, clinicID, id uuid.UUID) (*User, error)
	// GetByLogin looks up an active user by username or email across all
	// clinics.
	GetByLogin(ctx context.Context, usernameOrEmail string) (*User, error)
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, clinicID, id uuid.UUID) error
	// ListByClinic returns the active users of a clinic ordered by name. An
	// empty role matches every role.
	ListByClinic(ctx context.Context, clinicID uuid.UUID, role string) ([]*User, error)
}
