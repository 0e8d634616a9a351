package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextWithRoles(roles ...string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := context.WithValue(req.Context(), UserRolesKey, roles)
	ctx = context.WithValue(ctx, UserIDKey, "user-1")
	rec := httptest.NewRecorder()
	return e.NewContext(req.WithContext(ctx), rec), rec
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name    string
		has     []string
		require []string
		allowed bool
	}{
		{"doctor on staff route", []string{RoleDoctor}, StaffRoles, true},
		{"secretary on staff route", []string{RoleSecretary}, StaffRoles, true},
		{"patient on staff route", []string{RolePatient}, StaffRoles, false},
		{"admin always passes", []string{RoleAdmin}, []string{RoleDoctor}, true},
		{"doctor on admin route", []string{RoleDoctor}, []string{RoleAdmin}, false},
		{"no roles", nil, StaffRoles, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := contextWithRoles(tt.has...)
			err := RequireRole(tt.require...)(okHandler)(c)
			if tt.allowed {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if rec.Code != http.StatusOK {
					t.Errorf("expected 200, got %d", rec.Code)
				}
				return
			}
			expectStatus(t, err, http.StatusForbidden)
		})
	}
}

func TestRequireAuthenticated(t *testing.T) {
	c, _ := contextWithRoles(RolePatient)
	if err := RequireAuthenticated()(okHandler)(c); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	e := echo.New()
	anon := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	expectStatus(t, RequireAuthenticated()(okHandler)(anon), http.StatusUnauthorized)
}

func TestHasRole(t *testing.T) {
	c, _ := contextWithRoles(RoleSecretary)
	ctx := c.Request().Context()
	if !HasRole(ctx, RoleSecretary) {
		t.Error("expected secretary role")
	}
	if HasRole(ctx, RoleAdmin) {
		t.Error("unexpected admin role")
	}
}
