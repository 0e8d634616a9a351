package user

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

// dummyHash is compared against when a login names an unknown user so that
// both paths cost one bcrypt comparison.
var dummyHash = sync.OnceValue(func() string {
	h, _ := auth.HashPassword("not-a-real-password")
	return h
})

type Service struct {
	repo Repository
	jwt  auth.JWTConfig
	now  func() time.Time
}

func NewService(repo Repository, jwtCfg auth.JWTConfig) *Service {
	return &Service{repo: repo, jwt: jwtCfg, now: time.Now}
}

func (s *Service) CreateUser(ctx context.Context, clinicID uuid.UUID, req CreateRequest) (*User, error) {
	if clinicID == uuid.Nil {
		return nil, ErrNoClinic
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalid)
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if !ValidRole(req.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalid, req.Role)
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	u := &User{
		ClinicID:     clinicID,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         req.Role,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, clinicID, id uuid.UUID) (*User, error) {
	if clinicID == uuid.Nil {
		return nil, ErrNoClinic
	}
	return s.repo.GetByID(ctx, clinicID, id)
}

func (s *Service) UpdateUser(ctx context.Context, clinicID, id uuid.UUID, req UpdateRequest) (*User, error) {
	u, err := s.GetUser(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	if req.Email != nil {
		email, err := normalizeEmail(*req.Email)
		if err != nil {
			return nil, err
		}
		u.Email = email
	}
	if req.Password != nil {
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		u.PasswordHash = hash
	}
	if req.Role != nil {
		if !ValidRole(*req.Role) {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalid, *req.Role)
		}
		u.Role = *req.Role
	}
	if req.FirstName != nil {
		u.FirstName = req.FirstName
	}
	if req.LastName != nil {
		u.LastName = req.LastName
	}
	if req.IsActive != nil {
		u.IsActive = *req.IsActive
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) DeleteUser(ctx context.Context, clinicID, id uuid.UUID) error {
	if clinicID == uuid.Nil {
		return ErrNoClinic
	}
	return s.repo.Delete(ctx, clinicID, id)
}

// ListUsers returns the active users of a clinic, optionally of one role.
func (s *Service) ListUsers(ctx context.Context, clinicID uuid.UUID, role string) ([]*User, error) {
	if clinicID == uuid.Nil {
		return nil, ErrNoClinic
	}
	if role != "" && !ValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalid, role)
	}
	users, err := s.repo.ListByClinic(ctx, clinicID, role)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*User{}
	}
	return users, nil
}

// ListDoctors returns the active doctors of a clinic.
func (s *Service) ListDoctors(ctx context.Context, clinicID uuid.UUID) ([]*User, error) {
	return s.ListUsers(ctx, clinicID, auth.RoleDoctor)
}

// Login verifies credentials and issues an access token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	login := strings.TrimSpace(req.UsernameOrEmail)
	if login == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}

	u, err := s.repo.GetByLogin(ctx, login)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		_ = auth.CheckPassword(dummyHash(), req.Password)
		return nil, ErrInvalidCredentials
	}
	if err := auth.CheckPassword(u.PasswordHash, req.Password); err != nil {
		zerolog.Ctx(ctx).Info().Str("user_id", u.ID.String()).Msg("login rejected")
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	token, expires, err := auth.IssueToken(s.jwt, u.ID.String(), u.ClinicID.String(), u.Role, now)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(expires.Sub(now).Seconds()),
		User:        u,
	}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalid)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("%w: invalid email", ErrInvalid)
	}
	return email, nil
}
