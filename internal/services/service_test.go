package services

import (
	"fmt"
	"sync"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gymbill/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Plan{},
		&models.Member{},
		&models.Invoice{},
		&models.Setting{},
		&models.ScheduledTask{},
		&models.ScheduledTaskHistory{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// fakeMailer records sends and can be forced to fail
type fakeMailer struct {
	mu    sync.Mutex
	sent  [][]string
	fail  bool
	calls int
}

func (m *fakeMailer) SendEmail(to []string, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail {
		return fmt.Errorf("smtp unreachable")
	}
	m.sent = append(m.sent, to)
	return nil
}

func seedPlan(t *testing.T, db *gorm.DB, name string, months int, price, taxRate float64) models.Plan {
	t.Helper()
	plan := models.Plan{Name: name, DurationMonths: months, Price: price, TaxRate: taxRate, IsActive: true}
	if err := db.Create(&plan).Error; err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return plan
}

func seedMember(t *testing.T, db *gorm.DB, code, name, email string) models.Member {
	t.Helper()
	member := models.Member{MemberCode: code, Name: name, Email: email, Status: models.MemberStatusPending}
	if err := db.Create(&member).Error; err != nil {
		t.Fatalf("seed member: %v", err)
	}
	return member
}

func almostEqual(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-9
}
