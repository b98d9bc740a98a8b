package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"gymbill/internal/models"
	"gymbill/internal/services"
)

// PaymentHandler handles the online payment flow: order creation and the
// signed gateway callback
type PaymentHandler struct {
	db       *gorm.DB
	gateway  *services.RazorpayService
	invoices *services.InvoiceService
}

func NewPaymentHandler(db *gorm.DB, gateway *services.RazorpayService, invoices *services.InvoiceService) *PaymentHandler {
	return &PaymentHandler{db: db, gateway: gateway, invoices: invoices}
}

type createOrderRequest struct {
	InvoiceID uint `json:"invoice_id"`
}

// CreateOrder creates a gateway order for an unpaid invoice
func (h *PaymentHandler) CreateOrder(c echo.Context) error {
	var req createOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	var invoice models.Invoice
	if err := h.db.First(&invoice, req.InvoiceID).Error; err != nil {
		return err
	}
	if invoice.PaymentStatus == models.PaymentStatusPaid {
		return echo.NewHTTPError(http.StatusBadRequest, "Invoice is already paid")
	}

	order, err := h.gateway.CreateOrder(&invoice)
	if err != nil {
		return err
	}
	return respondOK(c, order)
}

type verifyPaymentRequest struct {
	InvoiceID uint   `json:"invoice_id"`
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

// VerifyPayment validates the signed gateway callback and settles the
// invoice. The invoice is only marked paid after the signature verifies; the
// client-reported success alone is untrusted.
func (h *PaymentHandler) VerifyPayment(c echo.Context) error {
	var req verifyPaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Order id, payment id and signature are required")
	}

	// Resolve the invoice by id, falling back to the stored gateway order id
	var invoice models.Invoice
	if req.InvoiceID != 0 {
		if err := h.db.First(&invoice, req.InvoiceID).Error; err != nil {
			return err
		}
		if invoice.GatewayOrderID != "" && invoice.GatewayOrderID != req.OrderID {
			return echo.NewHTTPError(http.StatusBadRequest, "Order id does not match the invoice")
		}
	} else {
		if err := h.db.Where("gateway_order_id = ?", req.OrderID).First(&invoice).Error; err != nil {
			return err
		}
	}

	if err := h.gateway.VerifySignature(req.OrderID, req.PaymentID, req.Signature); err != nil {
		// Invoice left untouched; mismatch is logged for audit by the service
		return err
	}

	settled, err := h.invoices.MarkAsPaid(invoice.ID, services.PaymentDetails{
		Method:           models.PaymentMethodOnline,
		GatewayOrderID:   req.OrderID,
		GatewayPaymentID: req.PaymentID,
	})
	if err != nil {
		return err
	}
	return respondOK(c, settled)
}

// OrderStatus reports whether the invoice behind a gateway order is settled,
// for the payment page to poll
func (h *PaymentHandler) OrderStatus(c echo.Context) error {
	invoiceID, err := strconv.ParseUint(c.QueryParam("invoice_id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid invoice id")
	}

	var invoice models.Invoice
	if err := h.db.First(&invoice, uint(invoiceID)).Error; err != nil {
		return err
	}
	return respondOK(c, map[string]interface{}{
		"payment_status": invoice.PaymentStatus,
		"paid_amount":    invoice.PaidAmount,
	})
}
