package icd10

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

// maxArchiveSize bounds the import upload; the DATASUS archive is ~3MB.
const maxArchiveSize = "50M"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/icd10", auth.RequireRole(auth.StaffRoles...))
	g.GET("/search", h.Search)
	g.GET("/code/:code", h.GetCode)
	g.POST("/import", h.Import, auth.RequireRole(auth.RoleAdmin), echomw.BodyLimit(maxArchiveSize))
}

func (h *Handler) Search(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	entries, err := h.svc.Search(c.Request().Context(), c.QueryParam("query"), c.QueryParam("level"), limit)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) GetCode(c echo.Context) error {
	code, err := h.svc.Lookup(c.Request().Context(), c.Param("code"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, code)
}

func (h *Handler) Import(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field \"file\" is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer f.Close()

	res, err := h.svc.ImportArchive(c.Request().Context(), f, fh.Size)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"imported": res})
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
}
