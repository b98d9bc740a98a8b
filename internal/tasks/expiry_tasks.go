package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	"gorm.io/gorm"

	"gymbill/internal/models"
	"gymbill/internal/services"
)

// defaultReminderWindowDays is how far ahead of plan expiry members are warned
const defaultReminderWindowDays = 5

// ExpiryReminderArgs defines the arguments for the expiry reminder task
type ExpiryReminderArgs struct {
	WindowDays int `json:"window_days"`
}

// ExpiryReminderTaskDef scans for members whose plan ends within the reminder
// window and emails each of them how many days are left. One member's send
// failure never stops the rest of the batch.
type ExpiryReminderTaskDef struct {
	// Mailer and Now are swappable in tests; nil falls back to the SMTP
	// service and wall-clock time
	Mailer services.Mailer
	Now    func() time.Time
}

// ExpiryReminderTask is the singleton instance registered with the worker
var ExpiryReminderTask = &ExpiryReminderTaskDef{}

// TaskID returns the unique identifier for this task
func (t *ExpiryReminderTaskDef) TaskID() string {
	return "membership_expiry_reminder"
}

// EnsureScheduled creates the daily recurring task record if none is active
func (t *ExpiryReminderTaskDef) EnsureScheduled(db *gorm.DB) error {
	var count int64
	err := db.Model(&models.ScheduledTask{}).
		Where("task_name = ? AND status = ?", t.TaskID(), models.ScheduledTaskStatusActive).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	// Run daily at 08:00 server time
	now := time.Now()
	due := time.Date(now.Year(), now.Month(), now.Day(), 8, 0, 0, 0, now.Location())
	if !due.After(now) {
		due = due.AddDate(0, 0, 1)
	}
	rule := "FREQ=DAILY"

	task, err := BuildScheduledTask(t.TaskID(),
		ExpiryReminderArgs{WindowDays: defaultReminderWindowDays},
		due, &rule, models.ScheduledTaskTypeRecurring, 3)
	if err != nil {
		return err
	}
	return db.Create(task).Error
}

// HandleExecution runs one reminder sweep
func (t *ExpiryReminderTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	argsBytes, err := json.Marshal(task.Arguments)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal args: %w", err)
	}
	var args ExpiryReminderArgs
	if err := json.Unmarshal(argsBytes, &args); err != nil {
		return nil, fmt.Errorf("failed to unmarshal args: %w", err)
	}
	if args.WindowDays <= 0 {
		args.WindowDays = defaultReminderWindowDays
	}

	now := time.Now()
	if t.Now != nil {
		now = t.Now()
	}
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, args.WindowDays+1) // inclusive of the last day

	var members []models.Member
	err = db.Where("status = ? AND email <> '' AND plan_end_date >= ? AND plan_end_date < ?",
		models.MemberStatusActive, start, end).
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch expiring members: %w", err)
	}

	mailer := t.Mailer
	if mailer == nil {
		mailer = services.NewEmailService()
	}

	successCount := 0
	failureCount := 0
	var failures []string

	for _, member := range members {
		if ctx.Err() != nil {
			break
		}

		daysLeft := daysUntil(*member.PlanEndDate, now)
		subject := "Your gym membership is expiring soon"
		var body string
		if daysLeft == 0 {
			body = fmt.Sprintf("Hi %s,\n\nYour membership expires today. Renew now to keep access to the gym.", member.Name)
		} else {
			body = fmt.Sprintf("Hi %s,\n\nYour membership expires in %d day(s), on %s. Renew now to keep access to the gym.",
				member.Name, daysLeft, member.PlanEndDate.Format("2006-01-02"))
		}

		if err := mailer.SendEmail([]string{member.Email}, subject, body); err != nil {
			log.Printf("Failed to send expiry reminder to %s (%s): %v", member.MemberCode, member.Email, err)
			failureCount++
			failures = append(failures, fmt.Sprintf("%s: %v", member.MemberCode, err))
			continue
		}
		successCount++
	}

	result := map[string]interface{}{
		"matched": len(members),
		"success": successCount,
		"failure": failureCount,
	}
	if failureCount > 0 {
		result["errors"] = failures
	}
	return result, nil
}

// daysUntil returns the whole days between now and the deadline, rounded up
// and clamped at zero
func daysUntil(deadline, now time.Time) int {
	days := int(math.Ceil(deadline.Sub(now).Hours() / 24))
	if days < 0 {
		return 0
	}
	return days
}
