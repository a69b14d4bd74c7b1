package models

import (
	"context"
	"errors"
	"time"

	"github.com/ecocomply/compliance_backend/config"
	"github.com/ecocomply/compliance_backend/utils"
	"gorm.io/gorm"
)

// RecurringTask is a materialized unit of work produced by a trigger fire.
// The trigger engine inserts rows; status changes afterwards come from the
// people working the task.
type RecurringTask struct {
	ID           int                 `gorm:"primary_key" json:"id"`
	CompanyId    string              `gorm:"size:64;not null;index" json:"company_id"`
	SiteId       *int                `gorm:"index" json:"site_id"`
	TriggerId    int                 `gorm:"not null;index" json:"trigger_id"`
	ObligationId *int                `gorm:"index" json:"obligation_id"`
	Title        string              `gorm:"size:255;not null" json:"title"`
	TaskType     string              `gorm:"size:50" json:"task_type"`
	TriggerType  TriggerType         `gorm:"size:20;not null" json:"trigger_type"`
	DueDate      time.Time           `gorm:"index;not null" json:"due_date"`
	AssignedTo   *int                `json:"assigned_to"`
	Status       RecurringTaskStatus `gorm:"size:20;not null;default:'PENDING'" json:"status"`
	CompletedAt  *time.Time          `json:"completed_at"`
	CreatedAt    time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// BuildRecurringTask applies the trigger's task template. Missing template
// fields fall back to the trigger itself so a sparse config still yields a
// workable task.
func BuildRecurringTask(trigger *RecurrenceTrigger, firedAt time.Time) *RecurringTask {
	cfg := trigger.TriggerConfig

	title := cfg.TaskTitle
	if title == "" {
		title = trigger.Name
	}
	// Titles may carry {{.Date}}, {{.Month}} or {{.Year}} placeholders; a
	// malformed template keeps the raw title.
	if rendered, err := utils.ExecTemplate(title, map[string]interface{}{
		"Date":  firedAt.Format("2006-01-02"),
		"Month": firedAt.Format("January 2006"),
		"Year":  firedAt.Format("2006"),
	}); err == nil {
		title = rendered
	}
	taskType := cfg.TaskType
	if taskType == "" {
		taskType = string(trigger.TriggerType)
	}
	dueInDays := cfg.DueInDays
	if dueInDays <= 0 {
		dueInDays = 7
	}

	return &RecurringTask{
		CompanyId:    trigger.CompanyId,
		SiteId:       trigger.SiteId,
		TriggerId:    trigger.ID,
		ObligationId: trigger.ObligationId,
		Title:        title,
		TaskType:     taskType,
		TriggerType:  trigger.TriggerType,
		DueDate:      firedAt.AddDate(0, 0, dueInDays),
		AssignedTo:   cfg.AssignedTo,
		Status:       RecurringTaskStatusPending,
	}
}

// CreateRecurringTask inserts inside the caller's transaction so the task
// and the trigger bookkeeping commit or roll back together.
func CreateRecurringTask(ctx context.Context, tx *gorm.DB, task *RecurringTask) error {
	if task.Status == "" {
		task.Status = RecurringTaskStatusPending
	}
	return tx.WithContext(ctx).Create(task).Error
}

var recurringTaskTransitions = map[RecurringTaskStatus][]RecurringTaskStatus{
	RecurringTaskStatusPending:    {RecurringTaskStatusInProgress, RecurringTaskStatusCompleted, RecurringTaskStatusCancelled},
	RecurringTaskStatusInProgress: {RecurringTaskStatusCompleted, RecurringTaskStatusCancelled},
	RecurringTaskStatusOverdue:    {RecurringTaskStatusInProgress, RecurringTaskStatusCompleted, RecurringTaskStatusCancelled},
	RecurringTaskStatusCompleted:  {},
	RecurringTaskStatusCancelled:  {},
}

func canTransitionRecurringTask(from, to RecurringTaskStatus) bool {
	for _, allowed := range recurringTaskTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func UpdateRecurringTaskStatus(ctx context.Context, id int, status string) (*RecurringTask, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	newStatus, err := ParseRecurringTaskStatus(status)
	if err != nil {
		return nil, err
	}

	task, err := utils.FetchModel[RecurringTask](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	if !canTransitionRecurringTask(task.Status, newStatus) {
		return nil, errors.New("invalid status transition")
	}

	updates := map[string]interface{}{"Status": newStatus}
	if newStatus == RecurringTaskStatusCompleted {
		now := time.Now()
		updates["CompletedAt"] = &now
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&task).Updates(updates).Error
	if err != nil {
		return nil, err
	}

	return task, nil
}

func GetRecurringTask(ctx context.Context, id int) (*RecurringTask, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	return utils.FetchModel[RecurringTask](ctx, companyId, id)
}

func GetRecurringTasks(ctx context.Context, siteId *int, triggerId *int, status *string) ([]*RecurringTask, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	var results []*RecurringTask

	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if siteId != nil && *siteId > 0 {
		dbCtx = dbCtx.Where("site_id = ?", *siteId)
	}
	if triggerId != nil && *triggerId > 0 {
		dbCtx = dbCtx.Where("trigger_id = ?", *triggerId)
	}
	if status != nil && *status != "" {
		parsed, err := ParseRecurringTaskStatus(*status)
		if err != nil {
			return nil, err
		}
		dbCtx = dbCtx.Where("status = ?", parsed)
	}

	// db query
	err := dbCtx.Order("due_date, id").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// MarkOverdueRecurringTasks flips open tasks past the cutoff to OVERDUE.
// The caller computes the cutoff (start of today in the company timezone)
// so a task due today stays open until tomorrow. The guarded WHERE keeps
// completed and cancelled tasks untouched.
func MarkOverdueRecurringTasks(ctx context.Context, companyId string, cutoff time.Time) (int64, error) {

	db := config.GetDB()

	dbCtx := db.WithContext(ctx).Model(&RecurringTask{}).
		Where("due_date < ? AND status IN ?", cutoff,
			[]RecurringTaskStatus{RecurringTaskStatusPending, RecurringTaskStatusInProgress})
	if companyId != "" {
		dbCtx = dbCtx.Where("company_id = ?", companyId)
	}

	result := dbCtx.Update("status", RecurringTaskStatusOverdue)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
