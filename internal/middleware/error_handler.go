package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"gymbill/internal/services"
)

// CustomErrorHandler translates service and framework errors into the JSON
// envelope every API response uses: {"success": false, "message": ...}.
func CustomErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "Something went wrong. Please try again later."

	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		code = he.Code
		if msg, ok := he.Message.(string); ok && msg != "" {
			message = msg
		} else {
			message = http.StatusText(code)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		code = http.StatusNotFound
		message = "Record not found"
	case errors.Is(err, services.ErrValidation):
		code = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, services.ErrSignatureMismatch):
		code = http.StatusBadRequest
		message = "Payment signature verification failed"
	case errors.Is(err, services.ErrGatewayNotConfigured):
		code = http.StatusInternalServerError
		message = "Payment gateway is not configured"
	}

	if code >= http.StatusInternalServerError {
		c.Logger().Error(err)
	}

	if jsonErr := c.JSON(code, map[string]interface{}{
		"success": false,
		"message": message,
	}); jsonErr != nil {
		c.Logger().Error(jsonErr)
	}
}
