package tasks

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gymbill/internal/models"
)

func setupTaskTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Member{}, &models.Plan{}, &models.ScheduledTask{}, &models.ScheduledTaskHistory{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type recordingMailer struct {
	mu     sync.Mutex
	sent   []string
	failTo string
}

func (m *recordingMailer) SendEmail(to []string, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(to) > 0 && to[0] == m.failTo {
		return fmt.Errorf("smtp unreachable")
	}
	m.sent = append(m.sent, to[0])
	return nil
}

func seedExpiringMember(t *testing.T, db *gorm.DB, code, email string, endsIn time.Duration, now time.Time, status models.MemberStatus) models.Member {
	t.Helper()
	end := now.Add(endsIn)
	member := models.Member{
		MemberCode:  code,
		Name:        "Member " + code,
		Email:       email,
		PlanEndDate: &end,
		Status:      status,
	}
	if err := db.Create(&member).Error; err != nil {
		t.Fatalf("seed member %s: %v", code, err)
	}
	return member
}

func runReminderSweep(t *testing.T, db *gorm.DB, mailer *recordingMailer, now time.Time) map[string]interface{} {
	t.Helper()
	def := &ExpiryReminderTaskDef{
		Mailer: mailer,
		Now:    func() time.Time { return now },
	}
	task := models.ScheduledTask{
		TaskName:  def.TaskID(),
		Arguments: map[string]interface{}{"window_days": 5},
	}
	result, err := def.HandleExecution(context.Background(), db, task)
	if err != nil {
		t.Fatalf("handle execution: %v", err)
	}
	return result
}

func TestExpiryReminderWindow(t *testing.T) {
	db := setupTaskTestDB(t)
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

	// In window: today, +2 days, +5 days
	seedExpiringMember(t, db, "AFE-001", "a@example.com", 2*time.Hour, now, models.MemberStatusActive)
	seedExpiringMember(t, db, "AFE-002", "b@example.com", 48*time.Hour, now, models.MemberStatusActive)
	seedExpiringMember(t, db, "AFE-003", "c@example.com", 5*24*time.Hour, now, models.MemberStatusActive)
	// Out of window: expired yesterday, +7 days
	seedExpiringMember(t, db, "AFE-004", "d@example.com", -24*time.Hour, now, models.MemberStatusActive)
	seedExpiringMember(t, db, "AFE-005", "e@example.com", 7*24*time.Hour, now, models.MemberStatusActive)
	// Matching window but not eligible: no email, not active
	seedExpiringMember(t, db, "AFE-006", "", 48*time.Hour, now, models.MemberStatusActive)
	seedExpiringMember(t, db, "AFE-007", "g@example.com", 48*time.Hour, now, models.MemberStatusExpired)

	mailer := &recordingMailer{}
	result := runReminderSweep(t, db, mailer, now)

	if result["matched"] != 3 {
		t.Errorf("matched = %v; want 3", result["matched"])
	}
	if len(mailer.sent) != 3 {
		t.Fatalf("sent %d reminders; want 3 (%v)", len(mailer.sent), mailer.sent)
	}
}

func TestExpiryReminderFailureIsolation(t *testing.T) {
	db := setupTaskTestDB(t)
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

	seedExpiringMember(t, db, "AFE-001", "ok1@example.com", 24*time.Hour, now, models.MemberStatusActive)
	seedExpiringMember(t, db, "AFE-002", "broken@example.com", 48*time.Hour, now, models.MemberStatusActive)
	seedExpiringMember(t, db, "AFE-003", "ok2@example.com", 72*time.Hour, now, models.MemberStatusActive)

	mailer := &recordingMailer{failTo: "broken@example.com"}
	result := runReminderSweep(t, db, mailer, now)

	if result["success"] != 2 {
		t.Errorf("success = %v; want 2", result["success"])
	}
	if result["failure"] != 1 {
		t.Errorf("failure = %v; want 1", result["failure"])
	}
	if len(mailer.sent) != 2 {
		t.Errorf("one failed send must not stop the batch; sent %v", mailer.sent)
	}
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		deadline time.Time
		want     int
	}{
		{"later today", now.Add(2 * time.Hour), 1},
		{"exactly now", now, 0},
		{"in the past", now.Add(-30 * time.Hour), 0},
		{"three and a half days", now.Add(84 * time.Hour), 4},
		{"exactly five days", now.Add(5 * 24 * time.Hour), 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := daysUntil(tt.deadline, now); got != tt.want {
				t.Errorf("daysUntil() = %d; want %d", got, tt.want)
			}
		})
	}
}

func TestEnsureScheduledIsIdempotent(t *testing.T) {
	db := setupTaskTestDB(t)
	def := &ExpiryReminderTaskDef{}

	if err := def.EnsureScheduled(db); err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if err := def.EnsureScheduled(db); err != nil {
		t.Fatalf("second ensure: %v", err)
	}

	var count int64
	db.Model(&models.ScheduledTask{}).Where("task_name = ?", def.TaskID()).Count(&count)
	if count != 1 {
		t.Errorf("scheduled %d tasks; want 1", count)
	}
}
