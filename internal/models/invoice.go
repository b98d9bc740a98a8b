package models

import (
	"time"

	"gorm.io/gorm"
)

// PaymentStatus represents the payment state of an invoice
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPartial PaymentStatus = "partial"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusOverdue PaymentStatus = "overdue"
)

// DiscountType selects how Invoice.Discount is interpreted
type DiscountType string

const (
	DiscountTypeAmount     DiscountType = "amount"
	DiscountTypePercentage DiscountType = "percentage"
)

// PaymentMethod identifies how an invoice was settled
type PaymentMethod string

const (
	PaymentMethodCash    PaymentMethod = "cash"
	PaymentMethodOnline  PaymentMethod = "online"
	PaymentMethodUnknown PaymentMethod = ""
)

// Invoice is a single billing transaction tied to one member and one plan.
// Price and tax rate are snapshotted from the plan at creation time, so later
// plan edits never alter issued invoices.
//
// Invariant held by the billing service on every write:
// TotalAmount == Amount + GSTAmount + LateFee + PreviousDue, and
// PaidAmount == TotalAmount whenever PaymentStatus is paid.
type Invoice struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	InvoiceNumber string `gorm:"type:varchar(20);uniqueIndex" json:"invoice_number"`
	// UUID is a stable external reference, safe to hand to the payment
	// gateway and to put on receipts
	UUID     string `gorm:"type:varchar(36);uniqueIndex" json:"uuid"`
	MemberID uint   `gorm:"index" json:"member_id"`
	PlanID   uint   `gorm:"index" json:"plan_id"`

	// Amount is the taxable value: base price after discount, before tax
	Amount       float64      `gorm:"type:decimal(15,2)" json:"amount"`
	Discount     float64      `gorm:"type:decimal(15,2)" json:"discount"`
	DiscountType DiscountType `gorm:"type:varchar(20);default:'amount'" json:"discount_type"`
	TaxRate      float64      `gorm:"type:decimal(5,2)" json:"tax_rate"`
	GSTAmount    float64      `gorm:"type:decimal(15,2)" json:"gst_amount"`
	CGST         float64      `gorm:"type:decimal(15,2)" json:"cgst"`
	SGST         float64      `gorm:"type:decimal(15,2)" json:"sgst"`
	LateFee      float64      `gorm:"type:decimal(15,2)" json:"late_fee"`
	// PreviousDue is the outstanding balance carried from earlier unpaid
	// invoices of the same member; added to the total, never re-taxed
	PreviousDue float64 `gorm:"type:decimal(15,2)" json:"previous_due"`
	TotalAmount float64 `gorm:"type:decimal(15,2)" json:"total_amount"`
	PaidAmount  float64 `gorm:"type:decimal(15,2)" json:"paid_amount"`

	PaymentStatus PaymentStatus `gorm:"type:varchar(20);index;default:'pending'" json:"payment_status"`
	PaymentMethod PaymentMethod `gorm:"type:varchar(20)" json:"payment_method"`
	DueDate       time.Time     `json:"due_date"`
	PaidDate      *time.Time    `json:"paid_date"`

	GatewayOrderID   string `gorm:"type:varchar(100);index" json:"gateway_order_id"`
	GatewayPaymentID string `gorm:"type:varchar(100)" json:"gateway_payment_id"`

	// Relationships
	Member Member `gorm:"foreignKey:MemberID" json:"member,omitempty"`
	Plan   Plan   `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
}

// Outstanding returns the unpaid remainder of the invoice
func (i Invoice) Outstanding() float64 {
	rest := i.TotalAmount - i.PaidAmount
	if rest < 0 {
		return 0
	}
	return rest
}
