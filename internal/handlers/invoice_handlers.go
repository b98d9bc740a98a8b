package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"gymbill/internal/models"
	"gymbill/internal/services"
)

// InvoiceHandler handles invoice lifecycle endpoints
type InvoiceHandler struct {
	db       *gorm.DB
	invoices *services.InvoiceService
}

func NewInvoiceHandler(db *gorm.DB, invoices *services.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{db: db, invoices: invoices}
}

// List returns invoices, paginated, filterable by status and member
func (h *InvoiceHandler) List(c echo.Context) error {
	page, limit, offset := pageParams(c)

	query := h.db.Model(&models.Invoice{}).Preload("Member").Preload("Plan")
	if status := c.QueryParam("status"); status != "" {
		query = query.Where("payment_status = ?", status)
	}
	if memberID := c.QueryParam("member_id"); memberID != "" {
		query = query.Where("member_id = ?", memberID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var invoices []models.Invoice
	if err := query.Order("created_at desc").Limit(limit).Offset(offset).Find(&invoices).Error; err != nil {
		return err
	}

	return respondOK(c, PageResult{Items: invoices, Total: total, Page: page, Limit: limit})
}

// Get returns a single invoice
func (h *InvoiceHandler) Get(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	invoice, err := h.invoices.Get(id)
	if err != nil {
		return err
	}
	return respondOK(c, invoice)
}

// Create issues a new invoice
func (h *InvoiceHandler) Create(c echo.Context) error {
	var input services.CreateInvoiceInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	invoice, err := h.invoices.Create(input)
	if err != nil {
		return err
	}
	return respondCreated(c, invoice)
}

// Update patches an invoice
func (h *InvoiceHandler) Update(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	var input services.UpdateInvoiceInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	invoice, err := h.invoices.Update(id, input)
	if err != nil {
		return err
	}
	return respondOK(c, invoice)
}

// MarkPaid settles an invoice in full from the dashboard (cash payments)
func (h *InvoiceHandler) MarkPaid(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	var details services.PaymentDetails
	if err := c.Bind(&details); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if details.Method == models.PaymentMethodUnknown {
		details.Method = models.PaymentMethodCash
	}

	invoice, err := h.invoices.MarkAsPaid(id, details)
	if err != nil {
		return err
	}
	return respondOK(c, invoice)
}

// Delete hard-deletes an invoice; other invoice numbers are not reissued
func (h *InvoiceHandler) Delete(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	if err := h.invoices.Delete(id); err != nil {
		return err
	}
	return respondMessage(c, "Invoice deleted")
}

// Overdue lists unpaid invoices past their due date
func (h *InvoiceHandler) Overdue(c echo.Context) error {
	invoices, err := h.invoices.ListOverdue()
	if err != nil {
		return err
	}
	return respondOK(c, invoices)
}
