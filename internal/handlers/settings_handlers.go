package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gymbill/internal/models"
)

// SettingsHandler manages the key/value settings table (gateway credentials
// and similar dashboard-editable configuration)
type SettingsHandler struct {
	db *gorm.DB
}

func NewSettingsHandler(db *gorm.DB) *SettingsHandler {
	return &SettingsHandler{db: db}
}

// secretKeys are masked when listed
var secretKeys = map[string]bool{
	models.SettingRazorpayKeySecret: true,
}

// List returns all settings with secret values masked
func (h *SettingsHandler) List(c echo.Context) error {
	var settings []models.Setting
	if err := h.db.Order("key asc").Find(&settings).Error; err != nil {
		return err
	}

	out := make(map[string]string, len(settings))
	for _, s := range settings {
		if secretKeys[s.Key] && s.Value != "" {
			out[s.Key] = "********"
			continue
		}
		out[s.Key] = s.Value
	}
	return respondOK(c, out)
}

// Upsert writes a batch of settings
func (h *SettingsHandler) Upsert(c echo.Context) error {
	var req map[string]string
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if len(req) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "No settings provided")
	}

	for key, value := range req {
		key = strings.TrimSpace(key)
		if key == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "Setting keys must not be empty")
		}
		setting := models.Setting{Key: key, Value: value}
		err := h.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&setting).Error
		if err != nil {
			return err
		}
	}
	return respondMessage(c, "Settings saved")
}
