package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"gymbill/internal/models"
)

// PlanHandler handles subscription plan endpoints
type PlanHandler struct {
	db *gorm.DB
}

func NewPlanHandler(db *gorm.DB) *PlanHandler {
	return &PlanHandler{db: db}
}

// List returns all plans; ?active=true filters to active plans only
func (h *PlanHandler) List(c echo.Context) error {
	query := h.db.Model(&models.Plan{})
	if c.QueryParam("active") == "true" {
		query = query.Where("is_active = ?", true)
	}

	var plans []models.Plan
	if err := query.Order("price asc").Find(&plans).Error; err != nil {
		return err
	}
	return respondOK(c, plans)
}

type planRequest struct {
	Name           string   `json:"name"`
	DurationMonths int      `json:"duration_months"`
	Price          float64  `json:"price"`
	TaxRate        *float64 `json:"tax_rate"`
	IsActive       *bool    `json:"is_active"`
}

// Create adds a new plan
func (h *PlanHandler) Create(c echo.Context) error {
	var req planRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if req.Name == "" || req.DurationMonths <= 0 || req.Price < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "Name, a positive duration and a non-negative price are required")
	}

	plan := models.Plan{
		Name:           req.Name,
		DurationMonths: req.DurationMonths,
		Price:          req.Price,
		TaxRate:        18,
		IsActive:       true,
	}
	if req.TaxRate != nil {
		plan.TaxRate = *req.TaxRate
	}
	if req.IsActive != nil {
		plan.IsActive = *req.IsActive
	}

	if err := h.db.Create(&plan).Error; err != nil {
		return err
	}
	return respondCreated(c, plan)
}

// Update edits a plan. Existing invoices snapshot price and tax rate at
// creation, so edits never rewrite history.
func (h *PlanHandler) Update(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	var plan models.Plan
	if err := h.db.First(&plan, id).Error; err != nil {
		return err
	}

	var req planRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	if req.Name != "" {
		plan.Name = req.Name
	}
	if req.DurationMonths > 0 {
		plan.DurationMonths = req.DurationMonths
	}
	if req.Price >= 0 {
		plan.Price = req.Price
	}
	if req.TaxRate != nil {
		plan.TaxRate = *req.TaxRate
	}
	if req.IsActive != nil {
		plan.IsActive = *req.IsActive
	}

	if err := h.db.Save(&plan).Error; err != nil {
		return err
	}
	return respondOK(c, plan)
}

// Delete deactivates a plan. Plans are never hard-deleted so historical
// invoices keep their reference.
func (h *PlanHandler) Delete(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	res := h.db.Model(&models.Plan{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "Plan not found")
	}
	return respondMessage(c, "Plan deactivated")
}
