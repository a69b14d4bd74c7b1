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
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ExpiryPassResult is the outcome of one evidence expiry pass.
type ExpiryPassResult struct {
	Created       int       `json:"created"`
	Updated       int       `json:"updated"`
	Deleted       int       `json:"deleted"`
	Failed        int       `json:"failed"`
	RemindersSent int       `json:"reminders_sent"`
	Expired       int       `json:"expired"`
	Errors        []string  `json:"errors,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

type evidenceRow struct {
	Id         int
	CompanyId  string
	SiteId     *int
	Title      string
	ExpiryDate time.Time
}

func isDuplicateKeyErr(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// EvidenceExpiryRunner keeps one tracking row per active, dated evidence
// item: refreshes the countdown, fires each reminder threshold once, stamps
// the expiry transition once, and reaps rows whose evidence dropped out.
type EvidenceExpiryRunner struct {
	Tenants TenantDirectory
	Reports ReportSink
	Logger  *logrus.Logger
	Now     func() time.Time
}

func NewEvidenceExpiryRunner() *EvidenceExpiryRunner {
	return &EvidenceExpiryRunner{
		Tenants: gormTenantDirectory{},
		Reports: gormReportSink{},
		Logger:  config.GetLogger(),
		Now:     time.Now,
	}
}

// remindersDue returns the thresholds that fire at the given countdown:
// every configured threshold the countdown has reached that has not fired
// before. Several thresholds crossed at once each fire. Nothing fires at or
// past expiry (days <= 0).
func remindersDue(days int, reminderDays models.IntList, sent models.IntList) []int {
	if days <= 0 {
		return nil
	}
	var due []int
	for _, threshold := range reminderDays {
		if days <= threshold && !sent.Contains(threshold) {
			due = append(due, threshold)
		}
	}
	return due
}

func fetchEligibleEvidence(ctx context.Context, scope Scope) ([]evidenceRow, error) {
	db := config.GetDB()
	var items []models.EvidenceItem

	dbCtx := db.WithContext(ctx).Model(&models.EvidenceItem{})
	dbCtx = activeTenants(dbCtx, "evidence_items")
	dbCtx = applyScope(dbCtx, "evidence_items", scope)
	err := dbCtx.Where("evidence_items.status = ? AND evidence_items.expiry_date IS NOT NULL",
		models.EvidenceStatusActive).Find(&items).Error
	if err != nil {
		return nil, err
	}

	rows := make([]evidenceRow, 0, len(items))
	for _, item := range items {
		rows = append(rows, evidenceRow{
			Id:         item.ID,
			CompanyId:  item.CompanyId,
			SiteId:     item.SiteId,
			Title:      item.Title,
			ExpiryDate: *item.ExpiryDate,
		})
	}
	return rows, nil
}

// Run walks every eligible evidence item in the scope. Item failures are
// counted and logged; they never stop the pass.
func (r *EvidenceExpiryRunner) Run(ctx context.Context, scope Scope) (*ExpiryPassResult, error) {
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)
	now := r.Now()
	result := &ExpiryPassResult{StartedAt: now}

	tenants, err := r.Tenants.Snapshot(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("loading tenant snapshot: %w", err)
	}

	tracked, err := models.ListEvidenceExpiryTrackings(ctx, scope.CompanyId, scope.SiteId)
	if err != nil {
		return nil, fmt.Errorf("listing tracking rows: %w", err)
	}
	trackedByEvidence := make(map[int]bool, len(tracked))
	for _, t := range tracked {
		trackedByEvidence[t.EvidenceItemId] = true
	}

	eligible, err := fetchEligibleEvidence(ctx, scope)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("fetching eligible evidence: %v", err))
		result.FinishedAt = r.Now()
		r.persistReport(ctx, scope, result)
		return result, nil
	}

	eligibleSet := make(map[int]bool, len(eligible))
	for _, item := range eligible {
		eligibleSet[item.Id] = true

		info, ok := tenants[item.CompanyId]
		if !ok {
			config.LogError(r.Logger, "evidenceExpiry.go", "Run",
				"company missing from tenant snapshot", item,
				fmt.Errorf("company %s not in snapshot", item.CompanyId))
			result.Failed++
			continue
		}
		loc := locationFor(info.Timezone)

		isNew := !trackedByEvidence[item.Id]
		if isNew {
			days := DaysRemaining(item.ExpiryDate, now, loc)
			tracking := models.EvidenceExpiryTracking{
				CompanyId:       item.CompanyId,
				SiteId:          item.SiteId,
				EvidenceItemId:  item.Id,
				ExpiryDate:      item.ExpiryDate,
				DaysUntilExpiry: days,
				ReminderDays:    models.ReminderDaysForCompany(ctx, item.CompanyId),
				RemindersSent:   models.IntList{},
				LastCheckedAt:   now,
			}
			if err := models.CreateEvidenceExpiryTracking(ctx, &tracking); err != nil {
				if !isDuplicateKeyErr(err) {
					config.LogError(r.Logger, "evidenceExpiry.go", "Run", "creating tracking row", item, err)
					result.Failed++
					continue
				}
				// a concurrent pass created it first; refresh it below
				isNew = false
			}
		}

		reminders, expired, err := r.refreshOne(ctx, item, loc, now)
		if err != nil {
			config.LogError(r.Logger, "evidenceExpiry.go", "Run", "refreshing tracking row", item, err)
			result.Failed++
			continue
		}
		if isNew {
			result.Created++
		} else {
			result.Updated++
		}
		result.RemindersSent += reminders
		if expired {
			result.Expired++
		}
	}

	// reap rows whose evidence lost its expiry date, went inactive, or was
	// deleted; a failed refresh above keeps its row for the next pass
	var goneIds []int
	for _, t := range tracked {
		if !eligibleSet[t.EvidenceItemId] {
			goneIds = append(goneIds, t.EvidenceItemId)
		}
	}
	deleted, err := models.DeleteEvidenceExpiryTrackingsByEvidenceIds(ctx, goneIds)
	if err != nil {
		config.LogError(r.Logger, "evidenceExpiry.go", "Run", "reaping tracking rows", goneIds, err)
		result.Errors = append(result.Errors, fmt.Sprintf("reaping tracking rows: %v", err))
	}
	result.Deleted = int(deleted)

	result.FinishedAt = r.Now()
	r.persistReport(ctx, scope, result)

	r.Logger.WithFields(logrus.Fields{
		"company_id": scope.CompanyId,
		"created":    result.Created,
		"updated":    result.Updated,
		"deleted":    result.Deleted,
		"failed":     result.Failed,
		"reminders":  result.RemindersSent,
		"expired":    result.Expired,
		"took":       result.FinishedAt.Sub(result.StartedAt).String(),
	}).Info("evidence.expiry.done")

	return result, nil
}

// refreshOne advances one tracking row inside its own transaction: the row
// lock, the bookkeeping update and any queued notifications commit together,
// so a rollback leaves no half-sent reminder behind.
func (r *EvidenceExpiryRunner) refreshOne(ctx context.Context, item evidenceRow, loc *time.Location, now time.Time) (reminders int, expired bool, err error) {
	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tracking, err := models.GetEvidenceExpiryTrackingForUpdate(tx, ctx, item.Id)
		if err != nil {
			return err
		}

		days := DaysRemaining(item.ExpiryDate, now, loc)
		updates := map[string]interface{}{
			"expiry_date":       item.ExpiryDate,
			"days_until_expiry": days,
			"last_checked_at":   now,
		}

		if days < 0 {
			// reminders never fire once expired
			if !tracking.IsExpired {
				updates["is_expired"] = true
				updates["expired_at"] = now
				payload := map[string]interface{}{
					"evidence_item_id": item.Id,
					"title":            item.Title,
					"expiry_date":      item.ExpiryDate,
				}
				if err := models.QueueNotification(ctx, tx, tracking.CompanyId, tracking.SiteId,
					models.NotificationKindEvidenceExpired, item.Id, "evidence_item", payload); err != nil {
					return err
				}
				expired = true
			}
		} else {
			if tracking.IsExpired {
				// a later expiry date arrived; the item is live again
				updates["is_expired"] = false
				updates["expired_at"] = nil
			}
			due := remindersDue(days, tracking.ReminderDays, tracking.RemindersSent)
			for _, threshold := range due {
				payload := map[string]interface{}{
					"evidence_item_id":  item.Id,
					"title":             item.Title,
					"expiry_date":       item.ExpiryDate,
					"days_until_expiry": days,
					"threshold":         threshold,
				}
				if err := models.QueueNotification(ctx, tx, tracking.CompanyId, tracking.SiteId,
					models.NotificationKindEvidenceReminder, item.Id, "evidence_item", payload); err != nil {
					return err
				}
				reminders++
			}
			if len(due) > 0 {
				updates["reminders_sent"] = append(tracking.RemindersSent, due...)
			}
		}

		return tx.Model(&models.EvidenceExpiryTracking{}).
			Where("id = ?", tracking.ID).
			Updates(updates).Error
	})
	if err != nil {
		return 0, false, err
	}
	return reminders, expired, nil
}

func (r *EvidenceExpiryRunner) persistReport(ctx context.Context, scope Scope, result *ExpiryPassResult) {
	extra, _ := utils.MarshalToJSON(map[string]int{
		"reminders_sent": result.RemindersSent,
		"expired":        result.Expired,
	})
	finishedAt := result.FinishedAt

	report := &models.ReconciliationReport{
		JobName:    JobEvidenceExpiry,
		CompanyId:  scope.CompanyId,
		SiteId:     scope.SiteId,
		Created:    result.Created,
		Updated:    result.Updated,
		Deleted:    result.Deleted,
		Failed:     result.Failed,
		Summary:    extra,
		ErrorText:  strings.Join(result.Errors, "; "),
		StartedAt:  result.StartedAt,
		FinishedAt: &finishedAt,
	}
	if err := r.Reports.Save(ctx, report); err != nil {
		config.LogError(r.Logger, "evidenceExpiry.go", "persistReport", "saving run report", report, err)
	}
}
