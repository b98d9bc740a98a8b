package models

import (
	"time"

	"gorm.io/gorm"
)

// Setting keys consumed by the core services. Persisted settings take
// precedence over environment configuration.
const (
	SettingRazorpayKeyID     = "razorpay_key_id"
	SettingRazorpayKeySecret = "razorpay_key_secret"
)

// Setting is a key/value configuration record editable from the dashboard
type Setting struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Key   string `gorm:"type:varchar(100);uniqueIndex" json:"key"`
	Value string `gorm:"type:text" json:"value"`
}
