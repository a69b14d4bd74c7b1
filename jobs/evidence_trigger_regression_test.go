package jobs_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ecocomply/compliance_backend/config"
	"github.com/ecocomply/compliance_backend/jobs"
	"github.com/ecocomply/compliance_backend/models"
	"github.com/ecocomply/compliance_backend/utils"
	"gorm.io/gorm"
)

func TestEvidenceExpiryReminderLadder(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	pgName, pgPort := startPostgresContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(pgName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_USER", "postgres")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", pgPort)
	t.Setenv("DB_NAME", "ecocomply_test")

	// Connect deps.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	// Migrate schema (in a fresh DB).
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	ctx = utils.SetUsernameInContext(ctx, "test@local")

	company, err := models.CreateCompany(ctx, &models.NewCompany{
		Name:  "Brookfield Water Services",
		Email: "ops@brookfield.test",
	})
	if err != nil {
		t.Fatalf("CreateCompany: %v", err)
	}
	companyID := company.ID.String()
	ctx = utils.SetCompanyIdInContext(ctx, companyID)

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}

	now := time.Now()
	london, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	local := now.In(london)
	base := time.Date(local.Year(), local.Month(), local.Day(), 12, 0, 0, 0, time.UTC)

	// 1) One item inside two reminder thresholds, one already expired.
	insuranceExpiry := base.AddDate(0, 0, 25)
	insurance, err := models.CreateEvidenceItem(ctx, &models.NewEvidenceItem{
		Title:      "Waste carrier insurance",
		ExpiryDate: &insuranceExpiry,
	})
	if err != nil {
		t.Fatalf("CreateEvidenceItem (insurance): %v", err)
	}

	certificateExpiry := base.AddDate(0, 0, -2)
	certificate, err := models.CreateEvidenceItem(ctx, &models.NewEvidenceItem{
		Title:      "Stack test certificate",
		ExpiryDate: &certificateExpiry,
	})
	if err != nil {
		t.Fatalf("CreateEvidenceItem (certificate): %v", err)
	}

	scope := jobs.Scope{CompanyId: companyID}

	// 2) First pass: tracking rows appear, both crossed thresholds fire at
	// once for the insurance, the certificate flips to expired.
	first, err := jobs.RunEvidencePass(ctx, scope)
	if err != nil {
		t.Fatalf("RunEvidencePass: %v", err)
	}
	if first.Created != 2 || first.Failed != 0 {
		t.Fatalf("expected created=2 failed=0; got created=%d failed=%d (errors=%v)",
			first.Created, first.Failed, first.Errors)
	}
	if first.RemindersSent != 2 {
		t.Fatalf("expected 2 reminders on first pass; got %d", first.RemindersSent)
	}
	if first.Expired != 1 {
		t.Fatalf("expected 1 expiry on first pass; got %d", first.Expired)
	}

	fetchTracking := func(evidenceItemId int) models.EvidenceExpiryTracking {
		t.Helper()
		var tracking models.EvidenceExpiryTracking
		if err := db.WithContext(ctx).
			Where("company_id = ? AND evidence_item_id = ?", companyID, evidenceItemId).
			First(&tracking).Error; err != nil {
			t.Fatalf("fetch tracking for evidence %d: %v", evidenceItemId, err)
		}
		return tracking
	}

	insTracking := fetchTracking(insurance.ID)
	if insTracking.DaysUntilExpiry != 25 || insTracking.IsExpired {
		t.Fatalf("expected insurance tracking 25d live; got %dd expired=%v",
			insTracking.DaysUntilExpiry, insTracking.IsExpired)
	}
	if len(insTracking.ReminderDays) != 3 || !insTracking.ReminderDays.Contains(90) || !insTracking.ReminderDays.Contains(7) {
		t.Fatalf("expected default reminder ladder seeded; got %v", insTracking.ReminderDays)
	}
	if len(insTracking.RemindersSent) != 2 || !insTracking.RemindersSent.Contains(90) || !insTracking.RemindersSent.Contains(30) {
		t.Fatalf("expected reminders_sent [90 30]; got %v", insTracking.RemindersSent)
	}

	certTracking := fetchTracking(certificate.ID)
	if !certTracking.IsExpired || certTracking.ExpiredAt == nil {
		t.Fatalf("expected certificate tracking expired; got expired=%v at=%v",
			certTracking.IsExpired, certTracking.ExpiredAt)
	}
	if len(certTracking.RemindersSent) != 0 {
		t.Fatalf("reminders must not fire past expiry; got %v", certTracking.RemindersSent)
	}

	countKind := func(kind models.NotificationKind) int64 {
		t.Helper()
		var n int64
		if err := db.WithContext(ctx).Model(&models.NotificationRecord{}).
			Where("company_id = ? AND kind = ?", companyID, kind).
			Count(&n).Error; err != nil {
			t.Fatalf("count %s notifications: %v", kind, err)
		}
		return n
	}

	if n := countKind(models.NotificationKindEvidenceReminder); n != 2 {
		t.Fatalf("expected 2 evidence_reminder notifications; got %d", n)
	}
	if n := countKind(models.NotificationKindEvidenceExpired); n != 1 {
		t.Fatalf("expected 1 evidence_expired notification; got %d", n)
	}

	// 3) Second pass is silent: thresholds already sent never refire and the
	// expiry transition happens once.
	second, err := jobs.RunEvidencePass(ctx, scope)
	if err != nil {
		t.Fatalf("RunEvidencePass (second): %v", err)
	}
	if second.RemindersSent != 0 || second.Expired != 0 {
		t.Fatalf("expected silent second pass; got reminders=%d expired=%d",
			second.RemindersSent, second.Expired)
	}
	if n := countKind(models.NotificationKindEvidenceReminder); n != 2 {
		t.Fatalf("second pass queued extra reminders; got %d", n)
	}
	if n := countKind(models.NotificationKindEvidenceExpired); n != 1 {
		t.Fatalf("second pass queued extra expiry notices; got %d", n)
	}

	// 4) A renewal arrives: the certificate gets a future expiry date, comes
	// back to life and re-enters the ladder at its new countdown.
	if err := db.WithContext(ctx).Model(&models.EvidenceItem{}).
		Where("id = ?", certificate.ID).
		Update("expiry_date", base.AddDate(0, 0, 40)).Error; err != nil {
		t.Fatalf("renew certificate: %v", err)
	}

	third, err := jobs.RunEvidencePass(ctx, scope)
	if err != nil {
		t.Fatalf("RunEvidencePass (third): %v", err)
	}
	if third.RemindersSent != 1 || third.Expired != 0 {
		t.Fatalf("expected renewal to fire the 90d reminder only; got reminders=%d expired=%d",
			third.RemindersSent, third.Expired)
	}

	certTracking = fetchTracking(certificate.ID)
	if certTracking.IsExpired || certTracking.ExpiredAt != nil {
		t.Fatalf("expected renewed certificate live again; got expired=%v at=%v",
			certTracking.IsExpired, certTracking.ExpiredAt)
	}
	if certTracking.DaysUntilExpiry != 40 {
		t.Fatalf("expected renewed countdown 40d; got %d", certTracking.DaysUntilExpiry)
	}
	if len(certTracking.RemindersSent) != 1 || !certTracking.RemindersSent.Contains(90) {
		t.Fatalf("expected renewed reminders_sent [90]; got %v", certTracking.RemindersSent)
	}

	// 5) Superseding the insurance reaps its tracking row on the next pass.
	if err := db.WithContext(ctx).Model(&models.EvidenceItem{}).
		Where("id = ?", insurance.ID).
		Update("status", models.EvidenceStatusSuperseded).Error; err != nil {
		t.Fatalf("supersede insurance: %v", err)
	}

	fourth, err := jobs.RunEvidencePass(ctx, scope)
	if err != nil {
		t.Fatalf("RunEvidencePass (fourth): %v", err)
	}
	if fourth.Deleted != 1 {
		t.Fatalf("expected superseded item reaped; got deleted=%d", fourth.Deleted)
	}

	var trackingRows int64
	if err := db.WithContext(ctx).Model(&models.EvidenceExpiryTracking{}).
		Where("company_id = ?", companyID).
		Count(&trackingRows).Error; err != nil {
		t.Fatalf("count tracking rows: %v", err)
	}
	if trackingRows != 1 {
		t.Fatalf("expected 1 tracking row (certificate) after reap; got %d", trackingRows)
	}
}

func TestTriggerPassMaterializesTasks(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	pgName, pgPort := startPostgresContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(pgName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_USER", "postgres")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", pgPort)
	t.Setenv("DB_NAME", "ecocomply_test")

	// Connect deps.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	// Migrate schema (in a fresh DB).
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	ctx = utils.SetUsernameInContext(ctx, "test@local")

	company, err := models.CreateCompany(ctx, &models.NewCompany{
		Name:  "Harbour Metals Ltd",
		Email: "ops@harbourmetals.test",
	})
	if err != nil {
		t.Fatalf("CreateCompany: %v", err)
	}
	companyID := company.ID.String()
	ctx = utils.SetCompanyIdInContext(ctx, companyID)

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}

	now := time.Now()
	london, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	local := now.In(london)
	base := time.Date(local.Year(), local.Month(), local.Day(), 12, 0, 0, 0, time.UTC)

	// 1) A monthly trigger anchored yesterday is due immediately.
	startDate := base.AddDate(0, 0, -1)
	trigger, err := models.CreateRecurrenceTrigger(ctx, &models.NewRecurrenceTrigger{
		Name:        "Monthly waste transfer note review",
		TriggerType: "DYNAMIC",
		TriggerConfig: models.TriggerConfig{
			IntervalCount: 1,
			IntervalUnit:  models.RecurringTermsMonth,
			StartDate:     &startDate,
			TaskTitle:     "File waste transfer note",
			TaskType:      "waste_return",
			DueInDays:     5,
		},
	})
	if err != nil {
		t.Fatalf("CreateRecurrenceTrigger: %v", err)
	}
	if trigger.NextExecutionDate == nil || !trigger.NextExecutionDate.Equal(startDate) {
		t.Fatalf("expected next_execution_date anchored at start date; got %v", trigger.NextExecutionDate)
	}

	// A leftover open task from a previous cycle, already past due.
	stale := models.RecurringTask{
		CompanyId:   companyID,
		TriggerId:   trigger.ID,
		Title:       "Backlog transfer note check",
		TriggerType: models.TriggerTypeDynamic,
		DueDate:     base.AddDate(0, 0, -3),
		Status:      models.RecurringTaskStatusPending,
	}
	if err := db.WithContext(ctx).Create(&stale).Error; err != nil {
		t.Fatalf("seed stale task: %v", err)
	}

	scope := jobs.Scope{CompanyId: companyID}

	// 2) First pass fires the trigger and sweeps the stale task.
	first, err := jobs.RunTriggerPass(ctx, scope)
	if err != nil {
		t.Fatalf("RunTriggerPass: %v", err)
	}
	if first.Evaluated != 1 || first.Fired != 1 || first.Failed != 0 {
		t.Fatalf("expected evaluated=1 fired=1 failed=0; got evaluated=%d fired=%d failed=%d (errors=%v)",
			first.Evaluated, first.Fired, first.Failed, first.Errors)
	}
	if first.TasksMarkedOverdue != 1 {
		t.Fatalf("expected 1 task swept overdue; got %d", first.TasksMarkedOverdue)
	}

	var fired models.RecurringTask
	if err := db.WithContext(ctx).
		Where("company_id = ? AND trigger_id = ? AND id <> ?", companyID, trigger.ID, stale.ID).
		First(&fired).Error; err != nil {
		t.Fatalf("fetch fired task: %v", err)
	}
	if fired.Title != "File waste transfer note" || fired.TaskType != "waste_return" {
		t.Fatalf("task template not applied; got title=%q type=%q", fired.Title, fired.TaskType)
	}
	if fired.Status != models.RecurringTaskStatusPending {
		t.Fatalf("expected fired task PENDING; got %s", fired.Status)
	}
	if !fired.DueDate.After(now.AddDate(0, 0, 4)) || !fired.DueDate.Before(now.AddDate(0, 0, 6)) {
		t.Fatalf("expected fired task due ~5d out; got %v", fired.DueDate)
	}

	var sweptStale models.RecurringTask
	if err := db.WithContext(ctx).Where("id = ?", stale.ID).First(&sweptStale).Error; err != nil {
		t.Fatalf("refetch stale task: %v", err)
	}
	if sweptStale.Status != models.RecurringTaskStatusOverdue {
		t.Fatalf("expected stale task OVERDUE; got %s", sweptStale.Status)
	}

	var after models.RecurrenceTrigger
	if err := db.WithContext(ctx).Where("id = ?", trigger.ID).First(&after).Error; err != nil {
		t.Fatalf("refetch trigger: %v", err)
	}
	if after.ExecutionCount != 1 || after.LastExecutedAt == nil {
		t.Fatalf("expected execution bookkeeping count=1 with last_executed_at; got count=%d at=%v",
			after.ExecutionCount, after.LastExecutedAt)
	}
	if after.NextExecutionDate == nil || !after.NextExecutionDate.After(now) {
		t.Fatalf("expected next_execution_date advanced past now; got %v", after.NextExecutionDate)
	}

	var taskNotices int64
	if err := db.WithContext(ctx).Model(&models.NotificationRecord{}).
		Where("company_id = ? AND kind = ?", companyID, models.NotificationKindRecurringTaskCreated).
		Count(&taskNotices).Error; err != nil {
		t.Fatalf("count task notifications: %v", err)
	}
	if taskNotices != 1 {
		t.Fatalf("expected 1 recurring_task_created notification; got %d", taskNotices)
	}

	// 3) Second pass: the advanced trigger does not refire, the swept task
	// stays where the sweep left it.
	second, err := jobs.RunTriggerPass(ctx, scope)
	if err != nil {
		t.Fatalf("RunTriggerPass (second): %v", err)
	}
	if second.Evaluated != 1 || second.Fired != 0 {
		t.Fatalf("expected evaluated=1 fired=0 on second pass; got evaluated=%d fired=%d",
			second.Evaluated, second.Fired)
	}
	if second.TasksMarkedOverdue != 0 {
		t.Fatalf("expected no new overdue tasks on second pass; got %d", second.TasksMarkedOverdue)
	}

	var taskRows int64
	if err := db.WithContext(ctx).Model(&models.RecurringTask{}).
		Where("company_id = ? AND trigger_id = ?", companyID, trigger.ID).
		Count(&taskRows).Error; err != nil {
		t.Fatalf("count tasks: %v", err)
	}
	if taskRows != 2 {
		t.Fatalf("expected 2 tasks (fired + stale); got %d", taskRows)
	}
}

type failingTaskCreator struct{ err error }

func (f failingTaskCreator) CreateTask(ctx context.Context, tx *gorm.DB, task *models.RecurringTask) error {
	return f.err
}

func TestTriggerFireFailureRollsBackAndSkipsCycle(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	pgName, pgPort := startPostgresContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(pgName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_USER", "postgres")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", pgPort)
	t.Setenv("DB_NAME", "ecocomply_test")

	// Connect deps.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	// Migrate schema (in a fresh DB).
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	ctx = utils.SetUsernameInContext(ctx, "test@local")

	company, err := models.CreateCompany(ctx, &models.NewCompany{
		Name:  "Severn Recycling Ltd",
		Email: "ops@severnrecycling.test",
	})
	if err != nil {
		t.Fatalf("CreateCompany: %v", err)
	}
	companyID := company.ID.String()
	ctx = utils.SetCompanyIdInContext(ctx, companyID)

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}

	now := time.Now()
	london, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	local := now.In(london)
	base := time.Date(local.Year(), local.Month(), local.Day(), 12, 0, 0, 0, time.UTC)
	startDate := base.AddDate(0, 0, -1)

	trigger, err := models.CreateRecurrenceTrigger(ctx, &models.NewRecurrenceTrigger{
		Name:        "Monthly consent limit review",
		TriggerType: "DYNAMIC",
		TriggerConfig: models.TriggerConfig{
			IntervalCount: 1,
			IntervalUnit:  models.RecurringTermsMonth,
			StartDate:     &startDate,
			TaskTitle:     "Review discharge consent limits",
			TaskType:      "consent_review",
			DueInDays:     7,
		},
	})
	if err != nil {
		t.Fatalf("CreateRecurrenceTrigger: %v", err)
	}

	scope := jobs.Scope{CompanyId: companyID}

	countTasks := func(triggerId int) int64 {
		t.Helper()
		var n int64
		if err := db.WithContext(ctx).Model(&models.RecurringTask{}).
			Where("company_id = ? AND trigger_id = ?", companyID, triggerId).
			Count(&n).Error; err != nil {
			t.Fatalf("count tasks for trigger %d: %v", triggerId, err)
		}
		return n
	}
	fetchTrigger := func(triggerId int) models.RecurrenceTrigger {
		t.Helper()
		var tr models.RecurrenceTrigger
		if err := db.WithContext(ctx).Where("id = ?", triggerId).First(&tr).Error; err != nil {
			t.Fatalf("refetch trigger %d: %v", triggerId, err)
		}
		return tr
	}

	// 1) Task insert blows up mid-fire. The whole fire rolls back, but the
	// schedule slides one cycle forward (advance-on-failure is the default).
	engine := jobs.NewTriggerEngine()
	engine.Tasks = failingTaskCreator{err: errors.New("task store unavailable")}

	first, err := engine.Run(ctx, scope)
	if err != nil {
		t.Fatalf("Run with failing creator: %v", err)
	}
	if first.Evaluated != 1 || first.Fired != 0 || first.Failed != 1 {
		t.Fatalf("expected evaluated=1 fired=0 failed=1; got evaluated=%d fired=%d failed=%d",
			first.Evaluated, first.Fired, first.Failed)
	}
	if n := countTasks(trigger.ID); n != 0 {
		t.Fatalf("expected no task rows after rollback; got %d", n)
	}

	var taskNotices int64
	if err := db.WithContext(ctx).Model(&models.NotificationRecord{}).
		Where("company_id = ? AND kind = ?", companyID, models.NotificationKindRecurringTaskCreated).
		Count(&taskNotices).Error; err != nil {
		t.Fatalf("count task notifications: %v", err)
	}
	if taskNotices != 0 {
		t.Fatalf("expected no notification after rollback; got %d", taskNotices)
	}

	after := fetchTrigger(trigger.ID)
	if after.ExecutionCount != 0 || after.LastExecutedAt != nil {
		t.Fatalf("expected execution bookkeeping untouched; got count=%d at=%v",
			after.ExecutionCount, after.LastExecutedAt)
	}
	if after.NextExecutionDate == nil || !after.NextExecutionDate.After(now) {
		t.Fatalf("expected next_execution_date skipped past now; got %v", after.NextExecutionDate)
	}
	if skip := after.NextExecutionDate.Sub(startDate); skip < 27*24*time.Hour || skip > 32*24*time.Hour {
		t.Fatalf("expected schedule skipped one month ahead; got %v (+%v)", after.NextExecutionDate, skip)
	}

	// 2) With TRIGGER_ADVANCE_ON_FAILURE off the schedule freezes instead, so
	// the same cycle is retried on the next pass.
	t.Setenv("TRIGGER_ADVANCE_ON_FAILURE", "false")

	weekly, err := models.CreateRecurrenceTrigger(ctx, &models.NewRecurrenceTrigger{
		Name:        "Weekly effluent sampling log",
		TriggerType: "DYNAMIC",
		TriggerConfig: models.TriggerConfig{
			IntervalCount: 1,
			IntervalUnit:  models.RecurringTermsWeek,
			StartDate:     &startDate,
			TaskTitle:     "Record effluent sample results",
			TaskType:      "monitoring_log",
			DueInDays:     3,
		},
	})
	if err != nil {
		t.Fatalf("CreateRecurrenceTrigger (weekly): %v", err)
	}

	second, err := engine.Run(ctx, scope)
	if err != nil {
		t.Fatalf("Run with frozen schedule: %v", err)
	}
	if second.Evaluated != 2 || second.Fired != 0 || second.Failed != 1 {
		t.Fatalf("expected evaluated=2 fired=0 failed=1; got evaluated=%d fired=%d failed=%d",
			second.Evaluated, second.Fired, second.Failed)
	}

	frozen := fetchTrigger(weekly.ID)
	if frozen.NextExecutionDate == nil || !frozen.NextExecutionDate.Equal(startDate) {
		t.Fatalf("expected next_execution_date frozen at %v; got %v", startDate, frozen.NextExecutionDate)
	}
	if frozen.ExecutionCount != 0 || frozen.LastExecutedAt != nil {
		t.Fatalf("expected frozen trigger bookkeeping untouched; got count=%d at=%v",
			frozen.ExecutionCount, frozen.LastExecutedAt)
	}

	// 3) Once the store recovers, the frozen trigger fires on the very next
	// pass; the skipped monthly one stays asleep until its next cycle.
	recovered := jobs.NewTriggerEngine()
	third, err := recovered.Run(ctx, scope)
	if err != nil {
		t.Fatalf("Run after recovery: %v", err)
	}
	if third.Evaluated != 2 || third.Fired != 1 || third.Failed != 0 {
		t.Fatalf("expected evaluated=2 fired=1 failed=0; got evaluated=%d fired=%d failed=%d",
			third.Evaluated, third.Fired, third.Failed)
	}
	if n := countTasks(weekly.ID); n != 1 {
		t.Fatalf("expected 1 task after recovery; got %d", n)
	}
	if n := countTasks(trigger.ID); n != 0 {
		t.Fatalf("expected skipped monthly trigger still quiet; got %d tasks", n)
	}

	caught := fetchTrigger(weekly.ID)
	if caught.ExecutionCount != 1 || caught.LastExecutedAt == nil {
		t.Fatalf("expected recovered bookkeeping count=1; got count=%d at=%v",
			caught.ExecutionCount, caught.LastExecutedAt)
	}
	if caught.NextExecutionDate == nil {
		t.Fatalf("expected recovered schedule advanced; got nil")
	}
	if adv := caught.NextExecutionDate.Sub(startDate); adv < 6*24*time.Hour || adv > 8*24*time.Hour {
		t.Fatalf("expected recovered schedule advanced one week; got %v (+%v)", caught.NextExecutionDate, adv)
	}
}
