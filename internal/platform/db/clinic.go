package db

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const ClinicIDKey contextKey = "clinic_id"

// ClinicMiddleware resolves the clinic the caller belongs to and stores it on
// the request context. The clinic comes from the authenticated token; callers
// without a clinic association pass through with uuid.Nil so that handlers
// can decide whether that is an error.
func ClinicMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := extractClinicID(c)
			clinicID := uuid.Nil
			if raw != "" {
				parsed, err := uuid.Parse(raw)
				if err != nil {
					return echo.NewHTTPError(http.StatusBadRequest, "invalid clinic identifier")
				}
				clinicID = parsed
			}

			ctx := context.WithValue(c.Request().Context(), ClinicIDKey, clinicID)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("clinic_id", clinicID)

			return next(c)
		}
	}
}

func extractClinicID(c echo.Context) string {
	if cid, ok := c.Get("jwt_clinic_id").(string); ok {
		return cid
	}
	return ""
}

// ClinicFromContext returns the caller's clinic, or uuid.Nil when the caller
// has no clinic association.
func ClinicFromContext(ctx context.Context) uuid.UUID {
	cid, _ := ctx.Value(ClinicIDKey).(uuid.UUID)
	return cid
}

// WithClinic returns a copy of ctx scoped to clinicID.
func WithClinic(ctx context.Context, clinicID uuid.UUID) context.Context {
	return context.WithValue(ctx, ClinicIDKey, clinicID)
}
