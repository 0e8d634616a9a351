package analytics

import (
	"mime"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/db"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/analytics", auth.RequireRole(auth.StaffRoles...))
	g.GET("/ping", h.Ping)
	g.GET("/clinical", h.Clinical)
	g.GET("/financial", h.Financial)
	g.GET("/inventory", h.Operational)
	g.POST("/custom/run", h.RunCustom)
	g.GET("/export/:domain/:format", h.Export)
	g.POST("/export/custom/excel", h.ExportCustomExcel)
}

func (h *Handler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Clinical(c echo.Context) error {
	ctx := c.Request().Context()
	_, raw, err := h.svc.Clinical(ctx, db.ClinicFromContext(ctx), periodParam(c, DomainClinical))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSONBlob(http.StatusOK, raw)
}

func (h *Handler) Financial(c echo.Context) error {
	ctx := c.Request().Context()
	_, raw, err := h.svc.Financial(ctx, db.ClinicFromContext(ctx), periodParam(c, DomainFinancial))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSONBlob(http.StatusOK, raw)
}

func (h *Handler) Operational(c echo.Context) error {
	ctx := c.Request().Context()
	_, raw, err := h.svc.Operational(ctx, db.ClinicFromContext(ctx), periodParam(c, DomainOperational))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSONBlob(http.StatusOK, raw)
}

func (h *Handler) RunCustom(c echo.Context) error {
	var req CustomRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	rep, err := h.svc.RunCustom(ctx, db.ClinicFromContext(ctx), req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *Handler) Export(c echo.Context) error {
	domain := c.Param("domain")
	ctx := c.Request().Context()
	file, err := h.svc.Export(ctx, db.ClinicFromContext(ctx), domain, periodParam(c, domain), c.Param("format"))
	if err != nil {
		return toHTTPError(err)
	}
	return attachment(c, file)
}

func (h *Handler) ExportCustomExcel(c echo.Context) error {
	var in CustomExport
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	file, err := ExportCustomExcel(in)
	if err != nil {
		return toHTTPError(err)
	}
	return attachment(c, file)
}

func attachment(c echo.Context, f *ExportFile) error {
	c.Response().Header().Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": f.Filename}))
	return c.Blob(http.StatusOK, f.ContentType, f.Body)
}

func periodParam(c echo.Context, domain string) string {
	if p := c.QueryParam("period"); p != "" {
		return p
	}
	return DefaultPeriod(domain)
}

func toHTTPError(err error) error {
	if IsClientError(err) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
}
