package services

import "errors"

var (
	// ErrValidation marks client errors that are rejected before any persistence
	ErrValidation = errors.New("validation failed")

	// ErrGatewayNotConfigured is returned when neither the settings table nor
	// the environment provides payment gateway credentials
	ErrGatewayNotConfigured = errors.New("payment gateway credentials not configured")

	// ErrSignatureMismatch is returned when a gateway callback signature does
	// not verify against the shared secret
	ErrSignatureMismatch = errors.New("payment signature verification failed")
)
