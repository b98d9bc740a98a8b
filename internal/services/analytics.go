package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"gorm.io/gorm"

	"gymbill/internal/models"
)

const dashboardCacheKey = "analytics:dashboard"
const dashboardCacheTTL = 60 * time.Second

// DashboardStats is the aggregate payload behind the admin dashboard
type DashboardStats struct {
	TotalMembers     int64   `json:"total_members"`
	ActiveMembers    int64   `json:"active_members"`
	TotalRevenue     float64 `json:"total_revenue"`
	TodayCollections float64 `json:"today_collections"`
	OverdueInvoices  int64   `json:"overdue_invoices"`
	PendingInvoices  int64   `json:"pending_invoices"`
}

// AnalyticsService computes reporting aggregates, cached through Redis when
// a cache is configured
type AnalyticsService struct {
	db       *gorm.DB
	cache    *RedisCache
	invoices *InvoiceService
}

func NewAnalyticsService(db *gorm.DB, cache *RedisCache, invoices *InvoiceService) *AnalyticsService {
	return &AnalyticsService{db: db, cache: cache, invoices: invoices}
}

// Dashboard returns the dashboard aggregates, served from cache for up to a
// minute
func (s *AnalyticsService) Dashboard(ctx context.Context) (DashboardStats, error) {
	return GetOrSet(s.cache, ctx, dashboardCacheKey, dashboardCacheTTL, func() (DashboardStats, error) {
		var stats DashboardStats

		if err := s.db.Model(&models.Member{}).Count(&stats.TotalMembers).Error; err != nil {
			return stats, err
		}
		if err := s.db.Model(&models.Member{}).
			Where("status = ? AND plan_end_date > ?", models.MemberStatusActive, time.Now()).
			Count(&stats.ActiveMembers).Error; err != nil {
			return stats, err
		}

		revenue, err := s.invoices.TotalRevenue()
		if err != nil {
			return stats, err
		}
		stats.TotalRevenue = revenue

		today, err := s.invoices.TodayCollections()
		if err != nil {
			return stats, err
		}
		stats.TodayCollections = today

		overdue, err := s.invoices.ListOverdue()
		if err != nil {
			return stats, err
		}
		stats.OverdueInvoices = int64(len(overdue))

		if err := s.db.Model(&models.Invoice{}).
			Where("payment_status = ?", models.PaymentStatusPending).
			Count(&stats.PendingInvoices).Error; err != nil {
			return stats, err
		}

		return stats, nil
	})
}

// ExportInvoicesCSV streams the invoice register as CSV
func (s *AnalyticsService) ExportInvoicesCSV(w io.Writer) error {
	var invoices []models.Invoice
	if err := s.db.Preload("Member").Preload("Plan").Order("created_at asc").Find(&invoices).Error; err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"invoice_number", "member_code", "member_name", "plan", "amount", "gst_amount", "late_fee", "previous_due", "total_amount", "paid_amount", "status", "due_date", "paid_date"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, inv := range invoices {
		paidDate := ""
		if inv.PaidDate != nil {
			paidDate = inv.PaidDate.Format("2006-01-02")
		}
		row := []string{
			inv.InvoiceNumber,
			inv.Member.MemberCode,
			inv.Member.Name,
			inv.Plan.Name,
			fmt.Sprintf("%.2f", inv.Amount),
			fmt.Sprintf("%.2f", inv.GSTAmount),
			fmt.Sprintf("%.2f", inv.LateFee),
			fmt.Sprintf("%.2f", inv.PreviousDue),
			fmt.Sprintf("%.2f", inv.TotalAmount),
			fmt.Sprintf("%.2f", inv.PaidAmount),
			string(inv.PaymentStatus),
			inv.DueDate.Format("2006-01-02"),
			paidDate,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return cw.Error()
}
