package clinic

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *echo.Echo) {
	return NewHandler(newTestService()), echo.New()
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	return he.Code
}

func createViaHandler(t *testing.T, h *Handler, e *echo.Echo, body string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/clinics", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return rec, h.CreateClinic(e.NewContext(req, rec))
}

const clinicBody = `{"name":"Clínica Central","legal_name":"Clínica Central LTDA","tax_id":"12.345.678/0001-90"}`

func TestHandler_CreateClinic(t *testing.T) {
	h, e := newTestHandler()
	rec, err := createViaHandler(t, h, e, clinicBody)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var c Clinic
	json.Unmarshal(rec.Body.Bytes(), &c)
	if c.Name != "Clínica Central" {
		t.Errorf("expected name, got %s", c.Name)
	}
}

func TestHandler_CreateClinic_Conflict(t *testing.T) {
	h, e := newTestHandler()
	createViaHandler(t, h, e, clinicBody)
	_, err := createViaHandler(t, h, e, clinicBody)
	if code := statusOf(t, err); code != http.StatusConflict {
		t.Errorf("expected 409, got %d", code)
	}
}

func TestHandler_CreateClinic_BadRequest(t *testing.T) {
	h, e := newTestHandler()
	_, err := createViaHandler(t, h, e, `{"name":"Sem CNPJ"}`)
	if code := statusOf(t, err); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_GetClinic_NotFound(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("6f1c1f3e-1d7b-4c1e-9c39-2a0f3b7f6d11")
	if code := statusOf(t, h.GetClinic(c)); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHandler_ListClinics(t *testing.T) {
	h, e := newTestHandler()
	createViaHandler(t, h, e, clinicBody)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/clinics?is_active=true&search=central", nil)
	rec := httptest.NewRecorder()
	if err := h.ListClinics(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Total int `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 1 {
		t.Errorf("expected 1 clinic, got %d", body.Total)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/clinics?is_active=maybe", nil)
	if code := statusOf(t, h.ListClinics(e.NewContext(req, httptest.NewRecorder()))); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_Stats(t *testing.T) {
	h, e := newTestHandler()
	createViaHandler(t, h, e, clinicBody)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/clinics/stats", nil)
	rec := httptest.NewRecorder()
	if err := h.Stats(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"total_clinics":1`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}
