package patient

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/db"
)

func newTestHandler() (*Handler, *echo.Echo) {
	return NewHandler(newTestService()), echo.New()
}

func newPatientContext(e *echo.Echo, method, target, body string, clinicID uuid.UUID) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(db.WithClinic(req.Context(), clinicID))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	return he.Code
}

func TestHandler_CreateAndGetPatient(t *testing.T) {
	h, e := newTestHandler()
	c, rec := newPatientContext(e, http.MethodPost, "/api/v1/patients",
		`{"first_name":"Maria","last_name":"Silva","date_of_birth":"1990-05-01"}`, clinicA)
	if err := h.CreatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var created Patient
	json.Unmarshal(rec.Body.Bytes(), &created)

	c, rec = newPatientContext(e, http.MethodGet, "/", "", clinicA)
	c.SetParamNames("id")
	c.SetParamValues(created.ID.String())
	if err := h.GetPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"first_name":"Maria"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	c, _ = newPatientContext(e, http.MethodGet, "/", "", clinicB)
	c.SetParamNames("id")
	c.SetParamValues(created.ID.String())
	if code := statusOf(t, h.GetPatient(c)); code != http.StatusNotFound {
		t.Errorf("expected 404 for other clinic, got %d", code)
	}
}

func TestHandler_CreatePatient_Duplicate(t *testing.T) {
	h, e := newTestHandler()
	body := `{"first_name":"Maria","last_name":"Silva","cpf":"123.456.789-00"}`
	c, _ := newPatientContext(e, http.MethodPost, "/api/v1/patients", body, clinicA)
	h.CreatePatient(c)
	c, _ = newPatientContext(e, http.MethodPost, "/api/v1/patients", body, clinicA)
	if code := statusOf(t, h.CreatePatient(c)); code != http.StatusConflict {
		t.Errorf("expected 409, got %d", code)
	}
}

func TestHandler_CreatePatient_NoClinic(t *testing.T) {
	h, e := newTestHandler()
	c, _ := newPatientContext(e, http.MethodPost, "/api/v1/patients", `{"first_name":"A","last_name":"B"}`, uuid.Nil)
	if code := statusOf(t, h.CreatePatient(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_ListPatients(t *testing.T) {
	h, e := newTestHandler()
	for _, name := range []string{"Maria", "João"} {
		c, _ := newPatientContext(e, http.MethodPost, "/api/v1/patients", `{"first_name":"`+name+`","last_name":"Silva"}`, clinicA)
		h.CreatePatient(c)
	}
	c, rec := newPatientContext(e, http.MethodGet, "/api/v1/patients?search=maria", "", clinicA)
	if err := h.ListPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Total int `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 1 {
		t.Errorf("expected 1 match, got %d", body.Total)
	}
}

func TestHandler_DeletePatient(t *testing.T) {
	h, e := newTestHandler()
	c, rec := newPatientContext(e, http.MethodPost, "/api/v1/patients", `{"first_name":"A","last_name":"B"}`, clinicA)
	h.CreatePatient(c)
	var created Patient
	json.Unmarshal(rec.Body.Bytes(), &created)

	c, rec = newPatientContext(e, http.MethodDelete, "/", "", clinicA)
	c.SetParamNames("id")
	c.SetParamValues(created.ID.String())
	if err := h.DeletePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestHandler_DeletePatient_Referenced(t *testing.T) {
	h, e := newTestHandler()
	c, rec := newPatientContext(e, http.MethodPost, "/api/v1/patients", `{"first_name":"A","last_name":"B"}`, clinicA)
	h.CreatePatient(c)
	var created Patient
	json.Unmarshal(rec.Body.Bytes(), &created)
	h.svc.repo.(*mockRepo).referenced[created.ID] = true

	c, _ = newPatientContext(e, http.MethodDelete, "/", "", clinicA)
	c.SetParamNames("id")
	c.SetParamValues(created.ID.String())
	err := h.DeletePatient(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
}
