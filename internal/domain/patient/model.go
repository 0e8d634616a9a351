package patient

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("patient not found")
	ErrDuplicateCPF = errors.New("patient with this CPF already exists")
	ErrInvalid      = errors.New("invalid patient")
	ErrNoClinic     = errors.New("user is not associated with a clinic")
	ErrHasRecords   = errors.New("patient has appointments or clinical records and cannot be deleted")
)

// Patient maps to the patients table.
type Patient struct {
	ID          uuid.UUID `db:"id" json:"id"`
	ClinicID    uuid.UUID `db:"clinic_id" json:"clinic_id"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	DateOfBirth *Date     `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender      *string   `db:"gender" json:"gender,omitempty"`
	CPF         *string   `db:"cpf" json:"cpf,omitempty"`
	Phone       *string   `db:"phone" json:"phone,omitempty"`
	Email       *string   `db:"email" json:"email,omitempty"`
	Address     *string   `db:"address" json:"address,omitempty"`
	Allergies   *string   `db:"allergies" json:"allergies,omitempty"`
	BloodType   *string   `db:"blood_type" json:"blood_type,omitempty"`
	Notes       *string   `db:"notes" json:"notes,omitempty"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// FullName returns "first last".
func (p *Patient) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}
