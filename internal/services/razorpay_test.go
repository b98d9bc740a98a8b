package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"gymbill/internal/models"
)

func signPayload(orderID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyPaymentSignature(t *testing.T) {
	secret := "test_secret_key"
	orderID := "order_N8qzLxY1"
	paymentID := "pay_K3mDa7Qc"
	good := signPayload(orderID, paymentID, secret)

	if !verifyPaymentSignature(orderID, paymentID, good, secret) {
		t.Fatal("valid signature rejected")
	}

	// Any single-character mutation must fail
	mutated := []byte(good)
	if mutated[0] == 'a' {
		mutated[0] = 'b'
	} else {
		mutated[0] = 'a'
	}
	if verifyPaymentSignature(orderID, paymentID, string(mutated), secret) {
		t.Error("mutated signature accepted")
	}

	if verifyPaymentSignature(orderID, paymentID, good, "wrong_secret") {
		t.Error("signature accepted with wrong secret")
	}
	if verifyPaymentSignature("order_other", paymentID, good, secret) {
		t.Error("signature accepted for different order")
	}
	if verifyPaymentSignature(orderID, paymentID, "", secret) {
		t.Error("empty signature accepted")
	}
}

func TestCredentialsPrecedence(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRazorpayService(db)

	t.Setenv("RAZORPAY_KEY_ID", "env_key")
	t.Setenv("RAZORPAY_KEY_SECRET", "env_secret")

	// Env only
	keyID, keySecret, err := svc.Credentials()
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	if keyID != "env_key" || keySecret != "env_secret" {
		t.Errorf("got %s/%s; want env credentials", keyID, keySecret)
	}

	// Settings rows take precedence over env
	for key, value := range map[string]string{
		models.SettingRazorpayKeyID:     "db_key",
		models.SettingRazorpayKeySecret: "db_secret",
	} {
		if err := db.Create(&models.Setting{Key: key, Value: value}).Error; err != nil {
			t.Fatalf("seed setting: %v", err)
		}
	}
	keyID, keySecret, err = svc.Credentials()
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	if keyID != "db_key" || keySecret != "db_secret" {
		t.Errorf("got %s/%s; want settings credentials", keyID, keySecret)
	}
}

func TestCredentialsMissingIsAnError(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRazorpayService(db)

	t.Setenv("RAZORPAY_KEY_ID", "")
	t.Setenv("RAZORPAY_KEY_SECRET", "")

	if _, _, err := svc.Credentials(); !errors.Is(err, ErrGatewayNotConfigured) {
		t.Errorf("err = %v; want ErrGatewayNotConfigured", err)
	}

	if err := svc.VerifySignature("o", "p", "s"); !errors.Is(err, ErrGatewayNotConfigured) {
		t.Errorf("verify err = %v; want ErrGatewayNotConfigured", err)
	}
}

func TestVerifySignatureMismatch(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRazorpayService(db)

	t.Setenv("RAZORPAY_KEY_ID", "key")
	t.Setenv("RAZORPAY_KEY_SECRET", "secret")

	orderID := "order_1"
	paymentID := "pay_1"

	if err := svc.VerifySignature(orderID, paymentID, signPayload(orderID, paymentID, "secret")); err != nil {
		t.Errorf("valid signature rejected: %v", err)
	}
	if err := svc.VerifySignature(orderID, paymentID, "bogus"); !errors.Is(err, ErrSignatureMismatch) {
		t.Errorf("err = %v; want ErrSignatureMismatch", err)
	}
}
