package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"gymbill/internal/services"
)

// AnalyticsHandler serves dashboard aggregates and exports
type AnalyticsHandler struct {
	analytics *services.AnalyticsService
}

func NewAnalyticsHandler(analytics *services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Dashboard returns the cached dashboard aggregates
func (h *AnalyticsHandler) Dashboard(c echo.Context) error {
	stats, err := h.analytics.Dashboard(c.Request().Context())
	if err != nil {
		return err
	}
	return respondOK(c, stats)
}

// ExportCSV streams the invoice register as a CSV attachment
func (h *AnalyticsHandler) ExportCSV(c echo.Context) error {
	filename := "invoices-" + time.Now().Format("2006-01-02") + ".csv"
	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	c.Response().WriteHeader(http.StatusOK)

	return h.analytics.ExportInvoicesCSV(c.Response())
}
