package user

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrDuplicate          = errors.New("username or email already registered")
	ErrInvalid            = errors.New("invalid user")
	ErrNoClinic           = errors.New("user is not associated with a clinic")
	ErrInvalidCredentials = errors.New("incorrect username/email or password")
	ErrInUse              = errors.New("user is referenced by appointments or records; deactivate instead")
)

var validRoles = map[string]bool{
	auth.RoleAdmin:     true,
	auth.RoleSecretary: true,
	auth.RoleDoctor:    true,
	auth.RolePatient:   true,
}

// ValidRole reports whether role is one of the known user roles.
func ValidRole(role string) bool { return validRoles[role] }

// User maps to the users table. PasswordHash never leaves the service.
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	ClinicID     uuid.UUID `db:"clinic_id" json:"clinic_id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FirstName    *string   `db:"first_name" json:"first_name,omitempty"`
	LastName     *string   `db:"last_name" json:"last_name,omitempty"`
	Role         string    `db:"role" json:"role"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// FullName returns the trimmed "first last" display name.
func (u *User) FullName() string {
	var parts []string
	if u.FirstName != nil && *u.FirstName != "" {
		parts = append(parts, *u.FirstName)
	}
	if u.LastName != nil && *u.LastName != "" {
		parts = append(parts, *u.LastName)
	}
	return strings.Join(parts, " ")
}

// CreateRequest is the payload of POST /users.
type CreateRequest struct {
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Role      string  `json:"role"`
}

// UpdateRequest is the payload of PUT /users/:id. Nil fields are left
// unchanged.
type UpdateRequest struct {
	Email     *string `json:"email"`
	Password  *string `json:"password"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Role      *string `json:"role"`
	IsActive  *bool   `json:"is_active"`
}

// LoginRequest accepts either a username or an email.
type LoginRequest struct {
	UsernameOrEmail string `json:"username_or_email"`
	Password        string `json:"password"`
}

// LoginResponse carries the issued access token.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	User        *User  `json:"user"`
}
