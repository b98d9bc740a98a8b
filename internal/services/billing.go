package services

import (
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"gymbill/internal/models"
)

const (
	invoiceNumberPrefix = "INV"

	// numberAllocationRetries bounds retries when two concurrent inserts race
	// for the same sequence number and hit the unique index
	numberAllocationRetries = 3
)

// InvoiceTotals is the result of the GST computation for a single invoice
type InvoiceTotals struct {
	TaxableAmount float64 `json:"taxable_amount"`
	GSTAmount     float64 `json:"gst_amount"`
	CGST          float64 `json:"cgst"`
	SGST          float64 `json:"sgst"`
	TotalAmount   float64 `json:"total_amount"`
}

// ComputeInvoiceTotals turns a base amount, discount and late fee into the
// taxable value, the CGST/SGST split and the grand total. The CGST/SGST equal
// split is the fixed domestic GST convention. The late fee is not taxed.
//
// The function is total: invalid inputs are coerced to 0 and the taxable
// amount never goes negative, even when the discount exceeds the base amount.
func ComputeInvoiceTotals(baseAmount, discount float64, discountType models.DiscountType, taxRate, lateFee float64) InvoiceTotals {
	baseAmount = sanitizeAmount(baseAmount)
	discount = sanitizeAmount(discount)
	taxRate = sanitizeAmount(taxRate)
	lateFee = sanitizeAmount(lateFee)

	discountAmount := discount
	if discountType == models.DiscountTypePercentage {
		discountAmount = baseAmount * discount / 100
	}

	taxable := baseAmount - discountAmount
	if taxable < 0 {
		taxable = 0
	}

	gst := round2(taxable * taxRate / 100)

	// Split the rounded figure so CGST+SGST always reconciles with GSTAmount;
	// rounding the halves separately drifts by a paisa when GST is odd
	return InvoiceTotals{
		TaxableAmount: round2(taxable),
		GSTAmount:     gst,
		CGST:          gst / 2,
		SGST:          gst / 2,
		TotalAmount:   round2(round2(taxable) + gst + lateFee),
	}
}

func sanitizeAmount(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// InvoiceService orchestrates the invoice lifecycle: creation, updates,
// payment settlement, deletion and the revenue aggregates. Renewal fires only
// on the transition into the paid state, and notification failures never fail
// the surrounding invoice operation.
type InvoiceService struct {
	db         *gorm.DB
	mailer     Mailer
	membership *MembershipService
	now        func() time.Time
}

func NewInvoiceService(db *gorm.DB, mailer Mailer, membership *MembershipService) *InvoiceService {
	return &InvoiceService{
		db:         db,
		mailer:     mailer,
		membership: membership,
		now:        time.Now,
	}
}

// CreateInvoiceInput carries the fields accepted when issuing an invoice.
// Amount and TaxRate default to the plan's price and tax rate, snapshotting
// them so later plan edits never alter this invoice.
type CreateInvoiceInput struct {
	MemberID     uint                 `json:"member_id"`
	PlanID       uint                 `json:"plan_id"`
	Amount       *float64             `json:"amount"`
	Discount     float64              `json:"discount"`
	DiscountType models.DiscountType  `json:"discount_type"`
	TaxRate      *float64             `json:"tax_rate"`
	LateFee      float64              `json:"late_fee"`
	// CarryPreviousDue rolls the member's outstanding balance from earlier
	// unpaid invoices into the total (after tax, never re-taxed)
	CarryPreviousDue bool                 `json:"carry_previous_due"`
	DueDate          time.Time            `json:"due_date"`
	PaidAmount       float64              `json:"paid_amount"`
	PaymentStatus    models.PaymentStatus `json:"payment_status"`
	PaymentMethod    models.PaymentMethod `json:"payment_method"`
}

// PaymentDetails carries settlement metadata merged into an invoice when it
// is marked as paid
type PaymentDetails struct {
	Method           models.PaymentMethod `json:"method"`
	GatewayOrderID   string               `json:"gateway_order_id"`
	GatewayPaymentID string               `json:"gateway_payment_id"`
}

// UpdateInvoiceInput patches an existing invoice. Nil fields are untouched;
// totals are recomputed when any pricing field changes.
type UpdateInvoiceInput struct {
	Amount        *float64              `json:"amount"`
	Discount      *float64              `json:"discount"`
	DiscountType  *models.DiscountType  `json:"discount_type"`
	TaxRate       *float64              `json:"tax_rate"`
	LateFee       *float64              `json:"late_fee"`
	DueDate       *time.Time            `json:"due_date"`
	PaidAmount    *float64              `json:"paid_amount"`
	PaymentStatus *models.PaymentStatus `json:"payment_status"`
	PaymentMethod *models.PaymentMethod `json:"payment_method"`
}

// Create validates the member and plan, computes totals, allocates the next
// invoice number and persists the invoice. If the invoice is born paid the
// member is renewed in the same transaction and a receipt is dispatched after
// commit.
func (s *InvoiceService) Create(input CreateInvoiceInput) (*models.Invoice, error) {
	var member models.Member
	if err := s.db.First(&member, input.MemberID).Error; err != nil {
		return nil, fmt.Errorf("member %d: %w", input.MemberID, err)
	}
	var plan models.Plan
	if err := s.db.First(&plan, input.PlanID).Error; err != nil {
		return nil, fmt.Errorf("plan %d: %w", input.PlanID, err)
	}

	baseAmount := plan.Price
	if input.Amount != nil {
		baseAmount = *input.Amount
	}
	taxRate := plan.TaxRate
	if input.TaxRate != nil {
		taxRate = *input.TaxRate
	}
	if baseAmount < 0 || input.Discount < 0 || input.LateFee < 0 || taxRate < 0 || input.PaidAmount < 0 {
		return nil, fmt.Errorf("%w: amounts must not be negative", ErrValidation)
	}

	discountType := input.DiscountType
	if discountType == "" {
		discountType = models.DiscountTypeAmount
	}

	now := s.now()

	previousDue := 0.0
	if input.CarryPreviousDue {
		due, err := s.outstandingBalance(input.MemberID)
		if err != nil {
			return nil, err
		}
		previousDue = due
	}

	totals := ComputeInvoiceTotals(baseAmount, input.Discount, discountType, taxRate, input.LateFee)

	dueDate := input.DueDate
	if dueDate.IsZero() {
		dueDate = now
	}

	invoice := models.Invoice{
		UUID:          uuid.New().String(),
		MemberID:      input.MemberID,
		PlanID:        input.PlanID,
		Amount:        totals.TaxableAmount,
		Discount:      input.Discount,
		DiscountType:  discountType,
		TaxRate:       taxRate,
		GSTAmount:     totals.GSTAmount,
		CGST:          totals.CGST,
		SGST:          totals.SGST,
		LateFee:       input.LateFee,
		PreviousDue:   round2(previousDue),
		TotalAmount:   round2(totals.TotalAmount + previousDue),
		PaidAmount:    input.PaidAmount,
		PaymentStatus: input.PaymentStatus,
		PaymentMethod: input.PaymentMethod,
		DueDate:       dueDate,
	}
	if invoice.PaymentStatus == "" {
		invoice.PaymentStatus = models.PaymentStatusPending
	}
	if invoice.PaymentStatus == models.PaymentStatusPaid {
		// Born paid: settle fully so paid amount and status always move together
		settle(&invoice, now)
	} else if invoice.PaidAmount > 0 && invoice.PaidAmount < invoice.TotalAmount {
		invoice.PaymentStatus = models.PaymentStatusPartial
	} else if invoice.PaidAmount >= invoice.TotalAmount && invoice.TotalAmount > 0 {
		settle(&invoice, now)
	}

	var lastErr error
	for attempt := 0; attempt < numberAllocationRetries; attempt++ {
		err := s.db.Transaction(func(tx *gorm.DB) error {
			number, err := nextInvoiceNumber(tx, now)
			if err != nil {
				return err
			}
			invoice.InvoiceNumber = number
			if err := tx.Create(&invoice).Error; err != nil {
				return err
			}
			if invoice.PaymentStatus == models.PaymentStatusPaid {
				return s.membership.Renew(tx, invoice.MemberID, invoice.PlanID, now)
			}
			return nil
		})
		if err == nil {
			if invoice.PaymentStatus == models.PaymentStatusPaid {
				s.sendReceipt(&invoice)
			}
			return &invoice, nil
		}
		lastErr = err
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		invoice.ID = 0
	}
	return nil, fmt.Errorf("failed to allocate invoice number: %w", lastErr)
}

// Update patches an invoice and recomputes totals when pricing fields change.
// Renewal and the receipt fire only when the status transitions into paid,
// not on every save of an already-paid invoice.
func (s *InvoiceService) Update(id uint, input UpdateInvoiceInput) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := s.db.First(&invoice, id).Error; err != nil {
		return nil, fmt.Errorf("invoice %d: %w", id, err)
	}
	previousStatus := invoice.PaymentStatus

	recompute := false
	baseAmount := invoice.Amount + discountAmountOf(invoice)
	if input.Amount != nil {
		baseAmount = *input.Amount
		recompute = true
	}
	if input.Discount != nil {
		invoice.Discount = *input.Discount
		recompute = true
	}
	if input.DiscountType != nil {
		invoice.DiscountType = *input.DiscountType
		recompute = true
	}
	if input.TaxRate != nil {
		invoice.TaxRate = *input.TaxRate
		recompute = true
	}
	if input.LateFee != nil {
		invoice.LateFee = *input.LateFee
		recompute = true
	}
	if recompute {
		if baseAmount < 0 || invoice.Discount < 0 || invoice.LateFee < 0 || invoice.TaxRate < 0 {
			return nil, fmt.Errorf("%w: amounts must not be negative", ErrValidation)
		}
		totals := ComputeInvoiceTotals(baseAmount, invoice.Discount, invoice.DiscountType, invoice.TaxRate, invoice.LateFee)
		invoice.Amount = totals.TaxableAmount
		invoice.GSTAmount = totals.GSTAmount
		invoice.CGST = totals.CGST
		invoice.SGST = totals.SGST
		invoice.TotalAmount = round2(totals.TotalAmount + invoice.PreviousDue)
	}

	if input.DueDate != nil {
		invoice.DueDate = *input.DueDate
	}
	if input.PaidAmount != nil {
		if *input.PaidAmount < 0 {
			return nil, fmt.Errorf("%w: amounts must not be negative", ErrValidation)
		}
		invoice.PaidAmount = *input.PaidAmount
	}
	if input.PaymentMethod != nil {
		invoice.PaymentMethod = *input.PaymentMethod
	}
	if input.PaymentStatus != nil {
		invoice.PaymentStatus = *input.PaymentStatus
	}

	now := s.now()
	if invoice.PaymentStatus == models.PaymentStatusPaid {
		settle(&invoice, now)
	}

	entersPaid := previousStatus != models.PaymentStatusPaid && invoice.PaymentStatus == models.PaymentStatusPaid

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&invoice).Error; err != nil {
			return err
		}
		if entersPaid {
			return s.membership.Renew(tx, invoice.MemberID, invoice.PlanID, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if entersPaid {
		s.sendReceipt(&invoice)
	}
	return &invoice, nil
}

// MarkAsPaid forces an invoice into the paid state with full settlement:
// paid amount always equals the total and the paid date is stamped, so the
// two fields can never drift apart. Used by the gateway verification callback
// and by cash settlement from the dashboard.
func (s *InvoiceService) MarkAsPaid(id uint, details PaymentDetails) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := s.db.First(&invoice, id).Error; err != nil {
		return nil, fmt.Errorf("invoice %d: %w", id, err)
	}
	previousStatus := invoice.PaymentStatus

	now := s.now()
	settle(&invoice, now)
	if details.Method != models.PaymentMethodUnknown {
		invoice.PaymentMethod = details.Method
	}
	if details.GatewayOrderID != "" {
		invoice.GatewayOrderID = details.GatewayOrderID
	}
	if details.GatewayPaymentID != "" {
		invoice.GatewayPaymentID = details.GatewayPaymentID
	}

	entersPaid := previousStatus != models.PaymentStatusPaid

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&invoice).Error; err != nil {
			return err
		}
		if entersPaid {
			return s.membership.Renew(tx, invoice.MemberID, invoice.PlanID, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if entersPaid {
		s.sendReceipt(&invoice)
	}
	return &invoice, nil
}

// Delete hard-deletes an invoice. Numbers of other invoices are untouched and
// the member's plan window is left as is.
func (s *InvoiceService) Delete(id uint) error {
	res := s.db.Unscoped().Delete(&models.Invoice{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("invoice %d: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

// Get fetches a single invoice with its member and plan preloaded
func (s *InvoiceService) Get(id uint) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := s.db.Preload("Member").Preload("Plan").First(&invoice, id).Error; err != nil {
		return nil, fmt.Errorf("invoice %d: %w", id, err)
	}
	return &invoice, nil
}

// ListOverdue returns unpaid invoices whose due date has passed
func (s *InvoiceService) ListOverdue() ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := s.db.Preload("Member").
		Where("payment_status IN ? AND due_date < ?",
			[]models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusOverdue}, s.now()).
		Order("due_date asc").
		Find(&invoices).Error
	return invoices, err
}

// TotalRevenue sums the paid amount across all invoices
func (s *InvoiceService) TotalRevenue() (float64, error) {
	var total float64
	err := s.db.Model(&models.Invoice{}).
		Select("COALESCE(SUM(paid_amount), 0)").
		Scan(&total).Error
	return total, err
}

// TodayCollections sums the paid amount of invoices touched within the
// current calendar day. The update timestamp stands in for the collection
// time since settlement always rewrites the record.
func (s *InvoiceService) TodayCollections() (float64, error) {
	now := s.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, 1)

	var total float64
	err := s.db.Model(&models.Invoice{}).
		Select("COALESCE(SUM(paid_amount), 0)").
		Where("updated_at >= ? AND updated_at < ?", start, end).
		Scan(&total).Error
	return total, err
}

// outstandingBalance sums the unpaid remainder of a member's open invoices
func (s *InvoiceService) outstandingBalance(memberID uint) (float64, error) {
	var invoices []models.Invoice
	err := s.db.Where("member_id = ? AND payment_status IN ?", memberID,
		[]models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusPartial, models.PaymentStatusOverdue}).
		Find(&invoices).Error
	if err != nil {
		return 0, err
	}
	var due float64
	for _, inv := range invoices {
		due += inv.Outstanding()
	}
	return due, nil
}

// settle moves an invoice into the paid state. Status, paid amount and paid
// date always change together so the record cannot drift into a paid invoice
// with a zero paid amount.
func settle(invoice *models.Invoice, now time.Time) {
	invoice.PaymentStatus = models.PaymentStatusPaid
	invoice.PaidAmount = invoice.TotalAmount
	invoice.PaidDate = &now
}

func discountAmountOf(invoice models.Invoice) float64 {
	if invoice.DiscountType == models.DiscountTypePercentage {
		// Amount stores base - base*discount/100; invert to recover the base
		if invoice.Discount >= 100 {
			return 0
		}
		base := invoice.Amount / (1 - invoice.Discount/100)
		return base - invoice.Amount
	}
	return invoice.Discount
}

// nextInvoiceNumber allocates the next year-scoped sequence. The caller must
// run it in the same transaction as the invoice insert; the unique index on
// invoice_number catches a concurrent allocation and the insert is retried.
func nextInvoiceNumber(tx *gorm.DB, now time.Time) (string, error) {
	prefix := fmt.Sprintf("%s-%d-", invoiceNumberPrefix, now.Year())

	// Soft-deleted invoices keep their numbers, so scan unscoped. Length
	// sorts before the string so a 5-digit sequence outranks 9999
	var last models.Invoice
	err := tx.Unscoped().
		Where("invoice_number LIKE ?", prefix+"%").
		Order("length(invoice_number) DESC, invoice_number DESC").
		First(&last).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Sprintf("%s%04d", prefix, 1), nil
		}
		return "", err
	}

	seq, err := strconv.Atoi(strings.TrimPrefix(last.InvoiceNumber, prefix))
	if err != nil {
		return "", fmt.Errorf("malformed invoice number %q: %w", last.InvoiceNumber, err)
	}
	return fmt.Sprintf("%s%04d", prefix, seq+1), nil
}

// sendReceipt emails a payment receipt. Delivery failures are logged and
// swallowed: payment correctness never depends on email delivery.
func (s *InvoiceService) sendReceipt(invoice *models.Invoice) {
	if s.mailer == nil {
		return
	}
	var member models.Member
	if err := s.db.First(&member, invoice.MemberID).Error; err != nil {
		log.Printf("Failed to load member %d for receipt: %v", invoice.MemberID, err)
		return
	}
	if member.Email == "" {
		return
	}

	subject := fmt.Sprintf("Payment received - %s", invoice.InvoiceNumber)
	body := fmt.Sprintf(
		"Hi %s,\n\nWe have received your payment of %.2f for invoice %s. Your membership is now active.\n\nThank you!",
		member.Name, invoice.PaidAmount, invoice.InvoiceNumber)

	if err := s.mailer.SendEmail([]string{member.Email}, subject, body); err != nil {
		log.Printf("Failed to send receipt for invoice %s: %v", invoice.InvoiceNumber, err)
	}
}
