package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"gymbill/internal/models"
	"gymbill/internal/services"
)

// MemberHandler handles member CRUD endpoints
type MemberHandler struct {
	db         *gorm.DB
	membership *services.MembershipService
}

func NewMemberHandler(db *gorm.DB, membership *services.MembershipService) *MemberHandler {
	return &MemberHandler{db: db, membership: membership}
}

// List returns members, paginated, searchable by name, code or phone
func (h *MemberHandler) List(c echo.Context) error {
	page, limit, offset := pageParams(c)

	query := h.db.Model(&models.Member{}).Preload("Plan")
	if search := c.QueryParam("search"); search != "" {
		like := "%" + search + "%"
		query = query.Where("name LIKE ? OR member_code LIKE ? OR phone LIKE ?", like, like, like)
	}
	if status := c.QueryParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var members []models.Member
	if err := query.Order("created_at desc").Limit(limit).Offset(offset).Find(&members).Error; err != nil {
		return err
	}

	return respondOK(c, PageResult{Items: members, Total: total, Page: page, Limit: limit})
}

// Get returns a single member with plan and invoices preloaded
func (h *MemberHandler) Get(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	var member models.Member
	if err := h.db.Preload("Plan").Preload("Invoices").First(&member, id).Error; err != nil {
		return err
	}
	return respondOK(c, member)
}

// Create registers a new member; the member code is allocated by the service
func (h *MemberHandler) Create(c echo.Context) error {
	var input services.CreateMemberInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	member, err := h.membership.CreateMember(input)
	if err != nil {
		return err
	}
	return respondCreated(c, member)
}

type updateMemberRequest struct {
	Name    *string `json:"name"`
	Phone   *string `json:"phone"`
	Email   *string `json:"email"`
	Gender  *string `json:"gender"`
	Address *string `json:"address"`
}

// Update patches member contact fields. The member code and the plan window
// are not writable here; the window belongs to the renewal engine.
func (h *MemberHandler) Update(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	var member models.Member
	if err := h.db.First(&member, id).Error; err != nil {
		return err
	}

	var req updateMemberRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	if req.Name != nil {
		member.Name = *req.Name
	}
	if req.Phone != nil {
		member.Phone = *req.Phone
	}
	if req.Email != nil {
		member.Email = *req.Email
	}
	if req.Gender != nil {
		member.Gender = *req.Gender
	}
	if req.Address != nil {
		member.Address = *req.Address
	}

	if err := h.db.Save(&member).Error; err != nil {
		return err
	}
	return respondOK(c, member)
}

// Delete soft-deletes a member
func (h *MemberHandler) Delete(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	res := h.db.Delete(&models.Member{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "Member not found")
	}
	return respondMessage(c, "Member deleted")
}

// Expiring lists members whose plan ends within the given number of days
// (default 5), mirroring the reminder job's window
func (h *MemberHandler) Expiring(c echo.Context) error {
	days := 5
	if d := c.QueryParam("days"); d != "" {
		if parsed, err := strconv.Atoi(d); err == nil && parsed > 0 {
			days = parsed
		}
	}

	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, days+1)

	var members []models.Member
	err := h.db.Preload("Plan").
		Where("status = ? AND plan_end_date >= ? AND plan_end_date < ?", models.MemberStatusActive, start, end).
		Order("plan_end_date asc").
		Find(&members).Error
	if err != nil {
		return err
	}
	return respondOK(c, members)
}
