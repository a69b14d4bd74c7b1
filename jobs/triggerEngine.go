package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ecocomply/compliance_backend/config"
	"github.com/ecocomply/compliance_backend/models"
	"github.com/ecocomply/compliance_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TaskCreator inserts the materialized task inside the fire transaction.
// The gorm-backed creator is the production path; tests inject failures here
// to exercise the rollback policy.
type TaskCreator interface {
	CreateTask(ctx context.Context, tx *gorm.DB, task *models.RecurringTask) error
}

type gormTaskCreator struct{}

func (gormTaskCreator) CreateTask(ctx context.Context, tx *gorm.DB, task *models.RecurringTask) error {
	return models.CreateRecurringTask(ctx, tx, task)
}

// TriggerPassResult is the outcome of one trigger evaluation pass.
type TriggerPassResult struct {
	Evaluated          int       `json:"evaluated"`
	Fired              int       `json:"fired"`
	Failed             int       `json:"failed"`
	TasksMarkedOverdue int       `json:"tasks_marked_overdue"`
	Errors             []string  `json:"errors,omitempty"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
}

// TriggerEngine evaluates active recurrence triggers and materializes tasks.
// A fire is one transaction: the task insert, the execution bookkeeping and
// the notification commit together or not at all.
type TriggerEngine struct {
	Tasks   TaskCreator
	Tenants TenantDirectory
	Reports ReportSink
	Logger  *logrus.Logger
	Now     func() time.Time
}

func NewTriggerEngine() *TriggerEngine {
	return &TriggerEngine{
		Tasks:   gormTaskCreator{},
		Tenants: gormTenantDirectory{},
		Reports: gormReportSink{},
		Logger:  config.GetLogger(),
		Now:     time.Now,
	}
}

// Run evaluates every active trigger in the scope, then sweeps open tasks
// past their due date to OVERDUE. Evaluation errors count as did-not-fire;
// they never stop the pass.
func (e *TriggerEngine) Run(ctx context.Context, scope Scope) (*TriggerPassResult, error) {
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)
	now := e.Now()
	result := &TriggerPassResult{StartedAt: now}

	tenants, err := e.Tenants.Snapshot(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("loading tenant snapshot: %w", err)
	}

	triggers, err := models.ListActiveRecurrenceTriggers(ctx, scope.CompanyId, scope.SiteId)
	if err != nil {
		return nil, fmt.Errorf("listing active triggers: %w", err)
	}

	for i := range triggers {
		trigger := triggers[i]
		result.Evaluated++

		info, ok := tenants[trigger.CompanyId]
		if !ok {
			// tenant deactivated; its triggers sleep until reactivation
			e.Logger.WithFields(logrus.Fields{
				"trigger_id": trigger.ID,
				"company_id": trigger.CompanyId,
			}).Debug("trigger.skip.inactive_company")
			continue
		}

		shouldFire, err := e.evaluate(ctx, &trigger, now, locationFor(info.Timezone))
		if err != nil {
			// an unevaluable trigger did not fire; no bookkeeping moves
			config.LogError(e.Logger, "triggerEngine.go", "Run", "evaluating trigger", trigger.ID, err)
			result.Failed++
			continue
		}
		if !shouldFire {
			continue
		}

		if err := e.fire(ctx, &trigger, now); err != nil {
			config.LogError(e.Logger, "triggerEngine.go", "Run", "firing trigger", trigger.ID, err)
			result.Failed++
			if trigger.TriggerType == models.TriggerTypeDynamic && config.TriggerAdvanceOnFailure() {
				e.advanceNextDateOnly(ctx, &trigger, err)
			}
			continue
		}
		result.Fired++
	}

	for companyId, info := range tenants {
		cutoff := startOfDay(now, locationFor(info.Timezone))
		marked, err := models.MarkOverdueRecurringTasks(ctx, companyId, cutoff)
		if err != nil {
			config.LogError(e.Logger, "triggerEngine.go", "Run", "marking overdue tasks", companyId, err)
			result.Errors = append(result.Errors, fmt.Sprintf("overdue sweep %s: %v", companyId, err))
			continue
		}
		result.TasksMarkedOverdue += int(marked)
	}

	result.FinishedAt = e.Now()
	e.persistReport(ctx, scope, result)

	e.Logger.WithFields(logrus.Fields{
		"company_id": scope.CompanyId,
		"evaluated":  result.Evaluated,
		"fired":      result.Fired,
		"failed":     result.Failed,
		"overdue":    result.TasksMarkedOverdue,
		"took":       result.FinishedAt.Sub(result.StartedAt).String(),
	}).Info("trigger.run.done")

	return result, nil
}

func (e *TriggerEngine) evaluate(ctx context.Context, trigger *models.RecurrenceTrigger, now time.Time, loc *time.Location) (bool, error) {
	switch trigger.TriggerType {
	case models.TriggerTypeDynamic:
		if trigger.NextExecutionDate == nil {
			return false, errors.New("dynamic trigger has no next execution date")
		}
		return !now.Before(*trigger.NextExecutionDate), nil

	case models.TriggerTypeEventBased:
		switch trigger.TriggerConfig.EventSource {
		case models.TriggerEventSourceStackTestCompleted:
			latest, err := models.LatestStackTestCompletion(ctx, trigger.CompanyId, trigger.TriggerConfig.GeneratorId)
			if err != nil {
				return false, err
			}
			if latest == nil {
				return false, nil
			}
			since := trigger.LastExecutedAt
			if since == nil {
				since = &trigger.CreatedAt
			}
			return latest.After(*since), nil
		}
		return false, fmt.Errorf("unknown event source %q", trigger.TriggerConfig.EventSource)

	case models.TriggerTypeConditional:
		value, err := e.metricValue(ctx, trigger, now)
		if err != nil {
			return false, err
		}
		return compareMetric(value, trigger.TriggerConfig.Operator, trigger.TriggerConfig.Threshold)
	}
	return false, fmt.Errorf("unknown trigger type %q", trigger.TriggerType)
}

func (e *TriggerEngine) metricValue(ctx context.Context, trigger *models.RecurrenceTrigger, now time.Time) (decimal.Decimal, error) {
	cfg := trigger.TriggerConfig
	switch cfg.Metric {
	case models.ConditionMetricRunHoursYtd:
		return models.YearToDateRunHours(ctx, cfg.GeneratorId, now)

	case models.ConditionMetricRunHoursPctOfLimit:
		ytd, err := models.YearToDateRunHours(ctx, cfg.GeneratorId, now)
		if err != nil {
			return decimal.Zero, err
		}
		db := config.GetDB()
		var generator models.Generator
		err = db.WithContext(ctx).
			Where("id = ? AND company_id = ?", cfg.GeneratorId, trigger.CompanyId).
			Take(&generator).Error
		if err != nil {
			return decimal.Zero, err
		}
		if generator.AnnualRunHourLimit.IsZero() {
			return decimal.Zero, errors.New("generator has no annual run hour limit")
		}
		return ytd.Div(generator.AnnualRunHourLimit).Mul(decimal.NewFromInt(100)), nil
	}
	return decimal.Zero, fmt.Errorf("unknown condition metric %q", cfg.Metric)
}

func compareMetric(value decimal.Decimal, op models.ComparisonOperator, threshold decimal.Decimal) (bool, error) {
	switch op {
	case models.ComparisonOperatorGt:
		return value.GreaterThan(threshold), nil
	case models.ComparisonOperatorGte:
		return value.GreaterThanOrEqual(threshold), nil
	case models.ComparisonOperatorLt:
		return value.LessThan(threshold), nil
	case models.ComparisonOperatorLte:
		return value.LessThanOrEqual(threshold), nil
	case models.ComparisonOperatorEq:
		return value.Equal(threshold), nil
	}
	return false, fmt.Errorf("unknown comparison operator %q", op)
}

// fire materializes one task and moves the trigger's bookkeeping in a single
// transaction. The trigger updates go batch-style on purpose: engine writes
// are not user actions and must not produce audit rows.
func (e *TriggerEngine) fire(ctx context.Context, trigger *models.RecurrenceTrigger, now time.Time) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task := models.BuildRecurringTask(trigger, now)
		if err := e.Tasks.CreateTask(ctx, tx, task); err != nil {
			return err
		}

		updates := map[string]interface{}{
			"execution_count":  gorm.Expr("execution_count + 1"),
			"last_executed_at": now,
		}
		if trigger.TriggerType == models.TriggerTypeDynamic && trigger.NextExecutionDate != nil {
			updates["next_execution_date"] = trigger.TriggerConfig.NextFrom(*trigger.NextExecutionDate)
		}
		err := tx.Model(&models.RecurrenceTrigger{}).
			Where("id = ?", trigger.ID).
			Updates(updates).Error
		if err != nil {
			return err
		}

		payload := map[string]interface{}{
			"trigger_id":   trigger.ID,
			"trigger_name": trigger.Name,
			"trigger_type": trigger.TriggerType,
			"task_id":      task.ID,
			"task_title":   task.Title,
			"due_date":     task.DueDate,
		}
		return models.QueueNotification(ctx, tx, trigger.CompanyId, trigger.SiteId,
			models.NotificationKindRecurringTaskCreated, task.ID, "recurring_task", payload)
	})
}

// advanceNextDateOnly is the escape hatch for a fire that keeps failing: the
// schedule moves to the following cycle so a poisoned task cannot wedge the
// cadence. Execution bookkeeping stays untouched and the skip is loud.
func (e *TriggerEngine) advanceNextDateOnly(ctx context.Context, trigger *models.RecurrenceTrigger, fireErr error) {
	if trigger.NextExecutionDate == nil {
		return
	}
	next := trigger.TriggerConfig.NextFrom(*trigger.NextExecutionDate)

	db := config.GetDB()
	err := db.WithContext(ctx).Model(&models.RecurrenceTrigger{}).
		Where("id = ?", trigger.ID).
		Update("next_execution_date", next).Error
	if err != nil {
		config.LogError(e.Logger, "triggerEngine.go", "advanceNextDateOnly", "advancing next execution date", trigger.ID, err)
		return
	}

	e.Logger.WithFields(logrus.Fields{
		"trigger_id":          trigger.ID,
		"company_id":          trigger.CompanyId,
		"next_execution_date": next.Format(time.RFC3339),
		"fire_error":          fireErr.Error(),
	}).Warn("trigger.fire.failed.cycle_skipped")
}

func (e *TriggerEngine) persistReport(ctx context.Context, scope Scope, result *TriggerPassResult) {
	extra, _ := utils.MarshalToJSON(map[string]int{
		"evaluated":            result.Evaluated,
		"fired":                result.Fired,
		"tasks_marked_overdue": result.TasksMarkedOverdue,
	})
	finishedAt := result.FinishedAt

	report := &models.ReconciliationReport{
		JobName:    JobTriggerRun,
		CompanyId:  scope.CompanyId,
		SiteId:     scope.SiteId,
		Created:    result.Fired,
		Failed:     result.Failed,
		Summary:    extra,
		ErrorText:  strings.Join(result.Errors, "; "),
		StartedAt:  result.StartedAt,
		FinishedAt: &finishedAt,
	}
	if err := e.Reports.Save(ctx, report); err != nil {
		config.LogError(e.Logger, "triggerEngine.go", "persistReport", "saving run report", report, err)
	}
}
