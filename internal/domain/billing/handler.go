package billing

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/financial", auth.RequireRole(auth.StaffRoles...))
	write := auth.RequireRole(auth.RoleAdmin, auth.RoleSecretary)

	g.GET("/service-items", h.ListServiceItems)
	g.POST("/service-items", h.CreateServiceItem, write)
	g.PUT("/service-items/:id", h.UpdateServiceItem, write)

	g.GET("/invoices", h.ListInvoices)
	g.GET("/invoices/:id", h.GetInvoice)
	g.POST("/invoices", h.CreateInvoice, write)
	g.POST("/invoices/from-appointment/:id", h.CreateInvoiceFromAppointment, write)
	g.PUT("/invoices/:id", h.UpdateInvoice, write)
	g.POST("/invoices/:id/mark-paid", h.MarkPaid, write)
	g.GET("/invoices/:id/payments", h.ListPayments)

	g.POST("/payments", h.RecordPayment, write)
	g.PUT("/payments/:id", h.UpdatePayment, write)
}

func (h *Handler) ListServiceItems(c echo.Context) error {
	var active *bool
	if raw := c.QueryParam("is_active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid is_active")
		}
		active = &v
	}
	ctx := c.Request().Context()
	items, err := h.svc.ListServiceItems(ctx, db.ClinicFromContext(ctx), active, c.QueryParam("search"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateServiceItem(c echo.Context) error {
	var it ServiceItem
	if err := c.Bind(&it); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	if err := h.svc.CreateServiceItem(ctx, db.ClinicFromContext(ctx), &it); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, it)
}

func (h *Handler) UpdateServiceItem(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var upd ServiceItemUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	it, err := h.svc.UpdateServiceItem(ctx, db.ClinicFromContext(ctx), id, upd)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, it)
}

func (h *Handler) ListInvoices(c echo.Context) error {
	var f InvoiceFilter
	if raw := c.QueryParam("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}
	f.Status = c.QueryParam("status")

	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	items, total, err := h.svc.ListInvoices(ctx, db.ClinicFromContext(ctx), f, pg.Limit, pg.Offset)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetInvoice(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	inv, err := h.svc.GetInvoice(ctx, db.ClinicFromContext(ctx), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) CreateInvoice(c echo.Context) error {
	var in InvoiceInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	inv, err := h.svc.CreateInvoice(ctx, db.ClinicFromContext(ctx), in)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, inv)
}

func (h *Handler) CreateInvoiceFromAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in InvoiceInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	inv, err := h.svc.CreateInvoiceFromAppointment(ctx, db.ClinicFromContext(ctx), id, in)
	if errors.Is(err, ErrUnknownAppointment) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, inv)
}

func (h *Handler) UpdateInvoice(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var upd InvoiceUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	inv, err := h.svc.UpdateInvoice(ctx, db.ClinicFromContext(ctx), id, upd)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, inv)
}

type markPaidRequest struct {
	Method string `json:"method"`
}

func (h *Handler) MarkPaid(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req markPaidRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	inv, err := h.svc.MarkPaid(ctx, db.ClinicFromContext(ctx), id, req.Method)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) ListPayments(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	items, err := h.svc.ListPayments(ctx, db.ClinicFromContext(ctx), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) RecordPayment(c echo.Context) error {
	var in PaymentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	p, err := h.svc.RecordPayment(ctx, db.ClinicFromContext(ctx), in)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) UpdatePayment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var upd PaymentUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	p, err := h.svc.UpdatePayment(ctx, db.ClinicFromContext(ctx), id, upd)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrServiceItemNotFound), errors.Is(err, ErrPaymentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrCancelled):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalid), errors.Is(err, ErrNoClinic), errors.Is(err, ErrAlreadyPaid),
		errors.Is(err, ErrUnknownPatient), errors.Is(err, ErrUnknownAppointment),
		errors.Is(err, ErrAppointmentNotComplete):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
}
