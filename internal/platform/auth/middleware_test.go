package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func newAuthContext(header string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/clinical", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	c, _ := newAuthContext("")
	err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(okHandler)(c)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	for _, header := range []string{"Token abc123", "Bearer", "Bearer ", "Basic dXNlcjpwYXNz"} {
		c, _ := newAuthContext(header)
		err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(okHandler)(c)
		expectStatus(t, err, http.StatusUnauthorized)
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	cfg := JWTConfig{Issuer: "clinicore", SigningKey: testSigningKey, TTL: time.Hour}
	token, expires, err := IssueToken(cfg, "user-1", "5f1c2c56-8d0a-4a5e-9f3b-0d6e2b7c1a11", RoleDoctor, time.Now())
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Error("expected expiry in the future")
	}

	c, rec := newAuthContext("Bearer " + token)
	var userID string
	var roles []string
	h := JWTMiddleware(cfg)(func(c echo.Context) error {
		userID = UserIDFromContext(c.Request().Context())
		roles = RolesFromContext(c.Request().Context())
		return okHandler(c)
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if userID != "user-1" {
		t.Errorf("expected user-1, got %s", userID)
	}
	if len(roles) != 1 || roles[0] != RoleDoctor {
		t.Errorf("expected [doctor], got %v", roles)
	}
	if c.Get("jwt_clinic_id") != "5f1c2c56-8d0a-4a5e-9f3b-0d6e2b7c1a11" {
		t.Errorf("expected clinic id on echo context, got %v", c.Get("jwt_clinic_id"))
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey, TTL: time.Minute}
	token, _, err := IssueToken(cfg, "user-1", "", RoleAdmin, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	c, _ := newAuthContext("Bearer " + token)
	expectStatus(t, JWTMiddleware(cfg)(okHandler)(c), http.StatusUnauthorized)
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	token, _, err := IssueToken(JWTConfig{SigningKey: []byte("another-key-another-key-another-key")}, "u", "", RoleAdmin, time.Now())
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	c, _ := newAuthContext("Bearer " + token)
	expectStatus(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(okHandler)(c), http.StatusUnauthorized)
}

func TestJWTMiddleware_RejectsNoneAlgorithm(t *testing.T) {
	claims := Claims{Role: RoleAdmin}
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	s, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	c, _ := newAuthContext("Bearer " + s)
	expectStatus(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(okHandler)(c), http.StatusUnauthorized)
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	c, rec := newAuthContext("")
	cfg := JWTConfig{SigningKey: testSigningKey, Skipper: func(echo.Context) bool { return true }}
	if err := JWTMiddleware(cfg)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestIssueToken_RequiresKey(t *testing.T) {
	if _, _, err := IssueToken(JWTConfig{}, "u", "", RoleAdmin, time.Now()); err == nil {
		t.Error("expected error without signing key")
	}
}

func TestDevAuthMiddleware_DefaultsToAdmin(t *testing.T) {
	c, _ := newAuthContext("")
	var roles []string
	h := DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey}, "dev-clinic")(func(c echo.Context) error {
		roles = RolesFromContext(c.Request().Context())
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(roles) != 1 || roles[0] != RoleAdmin {
		t.Errorf("expected admin role, got %v", roles)
	}
	if c.Get("jwt_clinic_id") != "dev-clinic" {
		t.Errorf("expected dev clinic, got %v", c.Get("jwt_clinic_id"))
	}
}

func TestDevAuthMiddleware_ValidatesProvidedToken(t *testing.T) {
	c, _ := newAuthContext("Bearer garbage")
	err := DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey}, "dev-clinic")(okHandler)(c)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "s3cret-pass" {
		t.Fatal("hash must not equal the password")
	}
	if err := CheckPassword(hash, "s3cret-pass"); err != nil {
		t.Errorf("expected match, got %v", err)
	}
	if err := CheckPassword(hash, "wrong-pass"); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := HashPassword("short"); err == nil {
		t.Error("expected error for short password")
	}
}

func TestIsPublicPath(t *testing.T) {
	if !IsPublicPath("/api/v1/auth/login") || !IsPublicPath("/metrics") {
		t.Error("expected login and metrics to be public")
	}
	if IsPublicPath("/api/v1/analytics/clinical") {
		t.Error("analytics must not be public")
	}
}
