package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gymbill/internal/models"
	"gymbill/internal/services"
)

func setupHandlerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Plan{}, &models.Member{}, &models.Invoice{}, &models.Setting{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedBillingFixtures(t *testing.T, db *gorm.DB) (models.Member, models.Plan) {
	t.Helper()
	plan := models.Plan{Name: "Monthly", DurationMonths: 1, Price: 1000, TaxRate: 18, IsActive: true}
	if err := db.Create(&plan).Error; err != nil {
		t.Fatalf("plan: %v", err)
	}
	member := models.Member{MemberCode: "AFE-001", Name: "Asha", Email: "asha@example.com", Status: models.MemberStatusPending}
	if err := db.Create(&member).Error; err != nil {
		t.Fatalf("member: %v", err)
	}
	return member, plan
}

func newInvoiceTestHandler(db *gorm.DB) (*InvoiceHandler, *services.InvoiceService) {
	membership := services.NewMembershipService(db)
	invoiceService := services.NewInvoiceService(db, nil, membership)
	return NewInvoiceHandler(db, invoiceService), invoiceService
}

func TestInvoiceCreateJSON(t *testing.T) {
	db := setupHandlerTestDB(t)
	member, plan := seedBillingFixtures(t, db)
	h, _ := newInvoiceTestHandler(db)

	e := echo.New()
	body := fmt.Sprintf(`{"member_id":%d,"plan_id":%d,"discount":10,"discount_type":"percentage"}`, member.ID, plan.ID)
	req := httptest.NewRequest(http.MethodPost, "/api/invoices", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Create(c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool           `json:"success"`
		Data    models.Invoice `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success {
		t.Error("expected success envelope")
	}
	if resp.Data.InvoiceNumber == "" || !strings.HasPrefix(resp.Data.InvoiceNumber, "INV-") {
		t.Errorf("invoice number = %q", resp.Data.InvoiceNumber)
	}
	if resp.Data.Amount != 900 || resp.Data.GSTAmount != 162 || resp.Data.TotalAmount != 1062 {
		t.Errorf("totals = %v/%v/%v; want 900/162/1062", resp.Data.Amount, resp.Data.GSTAmount, resp.Data.TotalAmount)
	}
}

func TestPaymentVerifyFlow(t *testing.T) {
	db := setupHandlerTestDB(t)
	member, plan := seedBillingFixtures(t, db)
	_, invoiceService := newInvoiceTestHandler(db)

	secret := "verify_secret"
	for key, value := range map[string]string{
		models.SettingRazorpayKeyID:     "key_test",
		models.SettingRazorpayKeySecret: secret,
	} {
		if err := db.Create(&models.Setting{Key: key, Value: value}).Error; err != nil {
			t.Fatalf("seed setting: %v", err)
		}
	}

	invoice, err := invoiceService.Create(services.CreateInvoiceInput{MemberID: member.ID, PlanID: plan.ID})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	orderID := "order_test_1"
	if err := db.Model(&models.Invoice{}).Where("id = ?", invoice.ID).Update("gateway_order_id", orderID).Error; err != nil {
		t.Fatalf("store order id: %v", err)
	}

	gateway := services.NewRazorpayService(db)
	h := NewPaymentHandler(db, gateway, invoiceService)
	e := echo.New()

	paymentID := "pay_test_1"
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	signature := hex.EncodeToString(mac.Sum(nil))

	// Tampered signature must be rejected and leave the invoice unpaid
	badBody := fmt.Sprintf(`{"invoice_id":%d,"razorpay_order_id":%q,"razorpay_payment_id":%q,"razorpay_signature":"deadbeef"}`,
		invoice.ID, orderID, paymentID)
	req := httptest.NewRequest(http.MethodPost, "/api/payments/verify", strings.NewReader(badBody))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.VerifyPayment(e.NewContext(req, rec)); err == nil {
		t.Fatal("expected signature mismatch error")
	}
	var unchanged models.Invoice
	if err := db.First(&unchanged, invoice.ID).Error; err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if unchanged.PaymentStatus == models.PaymentStatusPaid {
		t.Fatal("invoice marked paid despite bad signature")
	}

	// Valid signature settles the invoice
	goodBody := fmt.Sprintf(`{"invoice_id":%d,"razorpay_order_id":%q,"razorpay_payment_id":%q,"razorpay_signature":%q}`,
		invoice.ID, orderID, paymentID, signature)
	req = httptest.NewRequest(http.MethodPost, "/api/payments/verify", strings.NewReader(goodBody))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	if err := h.VerifyPayment(e.NewContext(req, rec)); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", rec.Code, rec.Body.String())
	}

	var settled models.Invoice
	if err := db.First(&settled, invoice.ID).Error; err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if settled.PaymentStatus != models.PaymentStatusPaid {
		t.Errorf("status = %s; want paid", settled.PaymentStatus)
	}
	if settled.PaidAmount != settled.TotalAmount {
		t.Errorf("paid %v != total %v", settled.PaidAmount, settled.TotalAmount)
	}
	if settled.GatewayPaymentID != paymentID || settled.PaymentMethod != models.PaymentMethodOnline {
		t.Errorf("payment metadata not merged: %+v", settled)
	}
}

func TestInvoiceMarkPaidEndpoint(t *testing.T) {
	db := setupHandlerTestDB(t)
	member, plan := seedBillingFixtures(t, db)
	h, invoiceService := newInvoiceTestHandler(db)

	invoice, err := invoiceService.Create(services.CreateInvoiceInput{MemberID: member.ID, PlanID: plan.ID})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/invoices/1/pay", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(fmt.Sprint(invoice.ID))

	if err := h.MarkPaid(c); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}

	var settled models.Invoice
	if err := db.First(&settled, invoice.ID).Error; err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if settled.PaymentMethod != models.PaymentMethodCash {
		t.Errorf("method = %s; want cash default", settled.PaymentMethod)
	}
	if settled.PaymentStatus != models.PaymentStatusPaid || settled.PaidAmount != settled.TotalAmount {
		t.Errorf("settlement invariant broken: %+v", settled)
	}
}
