package models

import (
	"time"

	"gorm.io/gorm"
)

// Plan represents a gym subscription tier. Plans referenced by invoices are
// never hard-deleted, only deactivated, so historical invoices keep a valid
// foreign key.
type Plan struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name           string  `gorm:"type:varchar(255)" json:"name"`
	DurationMonths int     `gorm:"not null" json:"duration_months"`
	Price          float64 `gorm:"type:decimal(15,2)" json:"price"`
	TaxRate        float64 `gorm:"type:decimal(5,2);default:18" json:"tax_rate"`
	IsActive       bool    `gorm:"default:true" json:"is_active"`

	// Relationships
	Members  []Member  `gorm:"foreignKey:PlanID" json:"members,omitempty"`
	Invoices []Invoice `gorm:"foreignKey:PlanID" json:"invoices,omitempty"`
}
