package models

import (
	"time"

	"gorm.io/gorm"
)

// MemberStatus represents the membership state of a member
type MemberStatus string

const (
	MemberStatusActive  MemberStatus = "active"
	MemberStatusExpired MemberStatus = "expired"
	MemberStatusPending MemberStatus = "pending"
)

// Member represents a gym customer
type Member struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// MemberCode is allocated once at creation and never reused or changed
	MemberCode string `gorm:"type:varchar(20);uniqueIndex" json:"member_code"`
	Name       string `gorm:"type:varchar(255)" json:"name"`
	Phone      string `gorm:"type:varchar(50);index" json:"phone"`
	Email      string `gorm:"type:varchar(255)" json:"email"`
	Gender     string `gorm:"type:varchar(20)" json:"gender"`
	Address    string `gorm:"type:text" json:"address"`

	// PlanStartDate/PlanEndDate are mutated only by the renewal engine
	PlanID        *uint        `gorm:"index" json:"plan_id"`
	PlanStartDate *time.Time   `json:"plan_start_date"`
	PlanEndDate   *time.Time   `json:"plan_end_date"`
	Status        MemberStatus `gorm:"type:varchar(20);default:'pending'" json:"status"`

	// Relationships
	Plan     *Plan     `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
	Invoices []Invoice `gorm:"foreignKey:MemberID" json:"invoices,omitempty"`
}

// EffectiveStatus derives the membership state from the plan window instead of
// trusting the stored status, which is only ever flipped to active on renewal.
func (m Member) EffectiveStatus(now time.Time) MemberStatus {
	if m.PlanEndDate == nil {
		return MemberStatusPending
	}
	if m.PlanEndDate.Before(now) {
		return MemberStatusExpired
	}
	return MemberStatusActive
}
