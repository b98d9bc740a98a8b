package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"gymbill/internal/models"
)

const memberCodePrefix = "AFE-"

// MembershipService owns member records and the plan validity window. The
// renewal engine here is the only code path that mutates PlanStartDate and
// PlanEndDate.
type MembershipService struct {
	db *gorm.DB
}

func NewMembershipService(db *gorm.DB) *MembershipService {
	return &MembershipService{db: db}
}

// CreateMemberInput carries the fields accepted when registering a member
type CreateMemberInput struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Gender  string `json:"gender"`
	Address string `json:"address"`
	PlanID  *uint  `json:"plan_id"`
}

// CreateMember registers a member and allocates the next sequential member
// code inside the insert transaction. The unique index on member_code rejects
// a racing duplicate; allocation is retried on conflict.
func (s *MembershipService) CreateMember(input CreateMemberInput) (*models.Member, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("%w: member name is required", ErrValidation)
	}
	if input.PlanID != nil {
		var plan models.Plan
		if err := s.db.First(&plan, *input.PlanID).Error; err != nil {
			return nil, fmt.Errorf("plan %d: %w", *input.PlanID, err)
		}
	}

	member := models.Member{
		Name:    strings.TrimSpace(input.Name),
		Phone:   input.Phone,
		Email:   input.Email,
		Gender:  input.Gender,
		Address: input.Address,
		PlanID:  input.PlanID,
		Status:  models.MemberStatusPending,
	}

	var lastErr error
	for attempt := 0; attempt < numberAllocationRetries; attempt++ {
		err := s.db.Transaction(func(tx *gorm.DB) error {
			code, err := nextMemberCode(tx)
			if err != nil {
				return err
			}
			member.MemberCode = code
			return tx.Create(&member).Error
		})
		if err == nil {
			return &member, nil
		}
		lastErr = err
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		member.ID = 0
	}
	return nil, fmt.Errorf("failed to allocate member code: %w", lastErr)
}

// nextMemberCode finds the highest issued member code and increments it.
// Codes are zero-padded to three digits and never reused, so soft-deleted
// members are included in the scan.
func nextMemberCode(tx *gorm.DB) (string, error) {
	var last models.Member
	err := tx.Unscoped().
		Where("member_code LIKE ?", memberCodePrefix+"%").
		Order("length(member_code) DESC, member_code DESC").
		First(&last).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Sprintf("%s%03d", memberCodePrefix, 1), nil
		}
		return "", err
	}

	seq, err := strconv.Atoi(strings.TrimPrefix(last.MemberCode, memberCodePrefix))
	if err != nil {
		return "", fmt.Errorf("malformed member code %q: %w", last.MemberCode, err)
	}
	return fmt.Sprintf("%s%03d", memberCodePrefix, seq+1), nil
}

// Renew extends or resets a member's plan validity window. Called only when
// an invoice enters the paid state; the billing service guarantees the call
// fires once per transition.
//
// If the current end date is still in the future the window is extended in
// place; otherwise it is reset to start now. A renewal may switch the member
// to a different plan.
func (s *MembershipService) Renew(tx *gorm.DB, memberID, planID uint, now time.Time) error {
	var member models.Member
	if err := tx.First(&member, memberID).Error; err != nil {
		return fmt.Errorf("member %d: %w", memberID, err)
	}
	var plan models.Plan
	if err := tx.First(&plan, planID).Error; err != nil {
		return fmt.Errorf("plan %d: %w", planID, err)
	}

	if member.PlanEndDate != nil && member.PlanEndDate.After(now) {
		// Not yet expired: extend from the current end date
		newEnd := member.PlanEndDate.AddDate(0, plan.DurationMonths, 0)
		member.PlanEndDate = &newEnd
		if member.PlanStartDate == nil {
			member.PlanStartDate = &now
		}
	} else {
		// Expired or never subscribed: reset the window
		start := now
		end := now.AddDate(0, plan.DurationMonths, 0)
		member.PlanStartDate = &start
		member.PlanEndDate = &end
	}

	member.PlanID = &plan.ID
	member.Status = models.MemberStatusActive

	return tx.Save(&member).Error
}
