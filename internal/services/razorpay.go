package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math"
	"os"

	razorpay "github.com/razorpay/razorpay-go"
	"gorm.io/gorm"

	"gymbill/internal/models"
)

const gatewayCurrency = "INR"

// RazorpayService creates gateway orders for invoices and verifies signed
// payment callbacks. Credentials are resolved from the settings table first
// and the environment second; the callback signature is recomputed locally
// and compared in constant time, so a UI-reported success alone can never
// mark an invoice paid.
type RazorpayService struct {
	db *gorm.DB

	// newClient is swappable in tests
	newClient func(keyID, keySecret string) *razorpay.Client
}

func NewRazorpayService(db *gorm.DB) *RazorpayService {
	return &RazorpayService{
		db:        db,
		newClient: razorpay.NewClient,
	}
}

// GatewayOrder is the result of creating a remote payment order
type GatewayOrder struct {
	OrderID  string  `json:"order_id"`
	Amount   int64   `json:"amount"` // smallest currency unit (paise)
	Currency string  `json:"currency"`
	KeyID    string  `json:"key_id"`
	Total    float64 `json:"total"`
}

// Credentials resolves the gateway key pair: persisted settings win over the
// RAZORPAY_KEY_ID / RAZORPAY_KEY_SECRET environment variables
func (s *RazorpayService) Credentials() (keyID, keySecret string, err error) {
	keyID = s.settingValue(models.SettingRazorpayKeyID)
	keySecret = s.settingValue(models.SettingRazorpayKeySecret)

	if keyID == "" {
		keyID = os.Getenv("RAZORPAY_KEY_ID")
	}
	if keySecret == "" {
		keySecret = os.Getenv("RAZORPAY_KEY_SECRET")
	}
	if keyID == "" || keySecret == "" {
		return "", "", ErrGatewayNotConfigured
	}
	return keyID, keySecret, nil
}

func (s *RazorpayService) settingValue(key string) string {
	if s.db == nil {
		return ""
	}
	var setting models.Setting
	err := s.db.Where("key = ?", key).First(&setting).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("Failed to read setting %s: %v", key, err)
		}
		return ""
	}
	return setting.Value
}

// CreateOrder creates a remote order for the invoice's outstanding total and
// stores the returned order id on the invoice. The amount is converted to the
// gateway's minor unit (paise).
func (s *RazorpayService) CreateOrder(invoice *models.Invoice) (*GatewayOrder, error) {
	keyID, keySecret, err := s.Credentials()
	if err != nil {
		return nil, err
	}

	amountPaise := int64(math.Round(invoice.TotalAmount * 100))
	client := s.newClient(keyID, keySecret)

	data := map[string]interface{}{
		"amount":   amountPaise,
		"currency": gatewayCurrency,
		"receipt":  invoice.InvoiceNumber,
		"notes":    map[string]interface{}{"invoice_ref": invoice.UUID},
	}
	order, err := client.Order.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway order: %w", err)
	}

	orderID, _ := order["id"].(string)
	if orderID == "" {
		return nil, fmt.Errorf("gateway returned no order id for invoice %s", invoice.InvoiceNumber)
	}

	invoice.GatewayOrderID = orderID
	if err := s.db.Model(invoice).Update("gateway_order_id", orderID).Error; err != nil {
		return nil, fmt.Errorf("failed to store gateway order id: %w", err)
	}

	log.Printf("Created gateway order %s for invoice %s (%d paise)", orderID, invoice.InvoiceNumber, amountPaise)
	return &GatewayOrder{
		OrderID:  orderID,
		Amount:   amountPaise,
		Currency: gatewayCurrency,
		KeyID:    keyID,
		Total:    invoice.TotalAmount,
	}, nil
}

// VerifySignature checks a payment callback against the shared secret.
// Returns ErrSignatureMismatch when the signature does not verify and
// ErrGatewayNotConfigured when no secret is available.
func (s *RazorpayService) VerifySignature(orderID, paymentID, signature string) error {
	_, keySecret, err := s.Credentials()
	if err != nil {
		return err
	}
	if !verifyPaymentSignature(orderID, paymentID, signature, keySecret) {
		log.Printf("Audit: signature mismatch for order %s payment %s", orderID, paymentID)
		return ErrSignatureMismatch
	}
	return nil
}

// verifyPaymentSignature recomputes the HMAC-SHA256 of "orderID|paymentID"
// and compares it to the supplied signature in constant time
func verifyPaymentSignature(orderID, paymentID, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
