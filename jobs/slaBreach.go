package jobs

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ecocomply/compliance_backend/config"
	"github.com/ecocomply/compliance_backend/models"
	"github.com/ecocomply/compliance_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SlaPassResult is the outcome of one SLA breach detection pass.
type SlaPassResult struct {
	Checked    int       `json:"checked"`
	Breached   int       `json:"breached"`
	Failed     int       `json:"failed"`
	Errors     []string  `json:"errors,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// SlaBreachDetector flips overdue deadlines COMPLIANT -> BREACHED. The flip
// is one-way: the guarded UPDATE means a concurrent pass can never re-stamp
// a breach, and the frozen duration is whatever the winning pass computed.
type SlaBreachDetector struct {
	Reports ReportSink
	Logger  *logrus.Logger
	Now     func() time.Time
}

func NewSlaBreachDetector() *SlaBreachDetector {
	return &SlaBreachDetector{
		Reports: gormReportSink{},
		Logger:  config.GetLogger(),
		Now:     time.Now,
	}
}

// Run detects breaches within the scope. Row failures are counted and the
// pass continues; the run report always lands.
func (d *SlaBreachDetector) Run(ctx context.Context, scope Scope) (*SlaPassResult, error) {
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)
	now := d.Now()
	result := &SlaPassResult{StartedAt: now}

	db := config.GetDB()
	var candidates []models.Deadline

	dbCtx := db.WithContext(ctx).Model(&models.Deadline{})
	dbCtx = activeTenants(dbCtx, "deadlines")
	dbCtx = applyScope(dbCtx, "deadlines", scope)
	err := dbCtx.Where(
		"deadlines.status = ? AND deadlines.sla_status = ? AND deadlines.sla_target_date IS NOT NULL AND deadlines.sla_target_date < ?",
		models.DeadlineStatusOpen, models.SlaStatusCompliant, now).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("fetching breach candidates: %w", err)
	}
	result.Checked = len(candidates)

	for i := range candidates {
		deadline := candidates[i]
		breached, err := d.breachOne(ctx, &deadline, now)
		if err != nil {
			config.LogError(d.Logger, "slaBreach.go", "Run", "stamping breach", deadline.ID, err)
			result.Failed++
			continue
		}
		if breached {
			result.Breached++
		}
	}

	result.FinishedAt = d.Now()
	d.persistReport(ctx, scope, result)

	d.Logger.WithFields(logrus.Fields{
		"company_id": scope.CompanyId,
		"checked":    result.Checked,
		"breached":   result.Breached,
		"failed":     result.Failed,
		"took":       result.FinishedAt.Sub(result.StartedAt).String(),
	}).Info("sla.check.done")

	return result, nil
}

// breachOne stamps one deadline inside its own transaction. The WHERE on
// sla_status makes the stamp first-writer-wins; a lost race skips the
// notification too, so a breach never notifies twice.
func (d *SlaBreachDetector) breachOne(ctx context.Context, deadline *models.Deadline, now time.Time) (bool, error) {
	hours := int(math.Floor(now.Sub(*deadline.SlaTargetDate).Hours()))

	var breached bool
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Deadline{}).
			Where("id = ? AND sla_status = ?", deadline.ID, models.SlaStatusCompliant).
			Updates(map[string]interface{}{
				"sla_status":                models.SlaStatusBreached,
				"sla_breached_at":           now,
				"sla_breach_duration_hours": hours,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		breached = true

		payload := map[string]interface{}{
			"deadline_id":           deadline.ID,
			"title":                 deadline.Title,
			"module_code":           deadline.ModuleCode,
			"sla_target_date":       deadline.SlaTargetDate,
			"breach_duration_hours": hours,
		}
		siteId := deadline.SiteId
		return models.QueueNotification(ctx, tx, deadline.CompanyId, &siteId,
			models.NotificationKindSlaBreach, deadline.ID, "deadline", payload)
	})
	if err != nil {
		return false, err
	}

	if breached {
		// the guarded update bypasses hooks, so the cache entry is dropped here
		_ = utils.RemoveRedisItem[models.Deadline](deadline.ID)
		_ = utils.RemoveRedisList[models.Deadline](deadline.CompanyId)
	}
	return breached, nil
}

func (d *SlaBreachDetector) persistReport(ctx context.Context, scope Scope, result *SlaPassResult) {
	extra, _ := utils.MarshalToJSON(map[string]int{
		"checked":  result.Checked,
		"breached": result.Breached,
	})
	finishedAt := result.FinishedAt

	report := &models.ReconciliationReport{
		JobName:    JobSlaCheck,
		CompanyId:  scope.CompanyId,
		SiteId:     scope.SiteId,
		Updated:    result.Breached,
		Failed:     result.Failed,
		Summary:    extra,
		ErrorText:  strings.Join(result.Errors, "; "),
		StartedAt:  result.StartedAt,
		FinishedAt: &finishedAt,
	}
	if err := d.Reports.Save(ctx, report); err != nil {
		config.LogError(d.Logger, "slaBreach.go", "persistReport", "saving run report", report, err)
	}
}
