package clinic

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("clinic not found")
	ErrDuplicateTaxID = errors.New("clinic with this tax ID already exists")
	ErrInvalid        = errors.New("invalid clinic")
	ErrInUse          = errors.New("clinic still has users or patients")
)

// Clinic maps to the clinics table. A clinic is the tenant every other
// record belongs to.
type Clinic struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	LegalName      string    `db:"legal_name" json:"legal_name"`
	CommercialName *string   `db:"commercial_name" json:"commercial_name,omitempty"`
	TaxID          string    `db:"tax_id" json:"tax_id"`
	Address        *string   `db:"address" json:"address,omitempty"`
	Phone          *string   `db:"phone" json:"phone,omitempty"`
	Email          *string   `db:"email" json:"email,omitempty"`
	MaxUsers       int       `db:"max_users" json:"max_users"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	UserCount      int       `db:"-" json:"user_count"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// ListFilter narrows the clinic listing. Search matches name, legal name,
// tax id and email case-insensitively.
type ListFilter struct {
	Search   string
	IsActive *bool
}

// Stats is the admin dashboard summary.
type Stats struct {
	TotalClinics  int `json:"total_clinics"`
	ActiveClinics int `json:"active_clinics"`
	TotalUsers    int `json:"total_users"`
}
