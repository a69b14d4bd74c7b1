package models

import (
	"context"
	"time"

	"github.com/ecocomply/compliance_backend/config"
)

// ReconciliationReport records one reconciliation pass (scheduled or
// on-demand) for ops visibility. Counts are also embedded as JSON so a
// multi-type pass keeps its per-type breakdown.
type ReconciliationReport struct {
	ID            int        `gorm:"primary_key" json:"id"`
	JobName       string     `gorm:"size:50;index;not null" json:"job_name"` // e.g. clock_reconcile, evidence_expiry
	CompanyId     string     `gorm:"size:64;index" json:"company_id"`        // empty = fleet-wide pass
	SiteId        *int       `json:"site_id"`
	EntityType    string     `gorm:"size:30" json:"entity_type"` // set when narrowed to one type
	Created       int        `json:"created"`
	Updated       int        `json:"updated"`
	Deleted       int        `json:"deleted"`
	Failed        int        `json:"failed"`
	Summary       string     `gorm:"type:jsonb" json:"summary"` // per-type counts
	ErrorText     string     `gorm:"type:text" json:"error_text"`
	CorrelationId string     `gorm:"size:64;index" json:"correlation_id"`
	StartedAt     time.Time  `gorm:"index;not null" json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// SaveReconciliationReport persists a finished pass. Callers treat failures
// here as log-only; a lost report must never fail the pass itself.
func SaveReconciliationReport(ctx context.Context, report *ReconciliationReport) error {

	if report.CorrelationId == "" {
		report.CorrelationId = correlationIdFromContextOrNew(ctx)
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(report).Error
	if err != nil {
		return err
	}
	return nil
}

// GetReconciliationReports lists recent passes, newest first.
func GetReconciliationReports(ctx context.Context, jobName *string, companyId *string, limit int) ([]*ReconciliationReport, error) {

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	db := config.GetDB()
	var results []*ReconciliationReport

	dbCtx := db.WithContext(ctx)
	if jobName != nil && *jobName != "" {
		dbCtx = dbCtx.Where("job_name = ?", *jobName)
	}
	if companyId != nil && *companyId != "" {
		dbCtx = dbCtx.Where("company_id = ?", *companyId)
	}

	// db query
	err := dbCtx.Order("started_at DESC").Limit(limit).Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
