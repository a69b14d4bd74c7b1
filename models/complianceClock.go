package models

import (
	"context"
	"time"

	"github.com/ecocomply/compliance_backend/config"
)

// ComplianceClock is the universal deadline projection: one row per tracked
// source entity, keyed by (entity_type, entity_id). Rows are owned by the
// reconciliation passes; nothing else writes them.
type ComplianceClock struct {
	ID               int              `gorm:"primary_key" json:"id"`
	CompanyId        string           `gorm:"size:64;not null;index" json:"company_id"`
	SiteId           *int             `gorm:"index" json:"site_id"`
	EntityType       ClockEntityType  `gorm:"size:30;not null;uniqueIndex:uniq_clock_entity,priority:1" json:"entity_type"`
	EntityId         int              `gorm:"not null;uniqueIndex:uniq_clock_entity,priority:2" json:"entity_id"`
	EntityName       string           `gorm:"size:255" json:"entity_name"`
	ModuleCode       string           `gorm:"size:20" json:"module_code"`
	TargetDate       time.Time        `gorm:"index;not null" json:"target_date"`
	DaysRemaining    int              `gorm:"not null" json:"days_remaining"`
	Criticality      ClockCriticality `gorm:"size:10;not null" json:"criticality"`
	Status           ClockStatus      `gorm:"size:10;not null" json:"status"`
	LastReconciledAt time.Time        `gorm:"not null" json:"last_reconciled_at"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetCursor for composite pagination, ordered by target date.
func (c ComplianceClock) GetCursor() string {
	return c.TargetDate.String()
}

// UpsertComplianceClock writes one clock row atomically. A single
// INSERT .. ON CONFLICT statement so that overlapping passes never
// read-modify-write each other; created_at survives updates.
func UpsertComplianceClock(ctx context.Context, clock *ComplianceClock) error {

	db := config.GetDB()
	err := db.WithContext(ctx).Exec(`
		INSERT INTO compliance_clocks
			(company_id, site_id, entity_type, entity_id, entity_name, module_code,
			 target_date, days_remaining, criticality, status, last_reconciled_at,
			 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
		ON CONFLICT (entity_type, entity_id) DO UPDATE SET
			company_id = EXCLUDED.company_id,
			site_id = EXCLUDED.site_id,
			entity_name = EXCLUDED.entity_name,
			module_code = EXCLUDED.module_code,
			target_date = EXCLUDED.target_date,
			days_remaining = EXCLUDED.days_remaining,
			criticality = EXCLUDED.criticality,
			status = EXCLUDED.status,
			last_reconciled_at = EXCLUDED.last_reconciled_at,
			updated_at = NOW()`,
		clock.CompanyId, clock.SiteId, clock.EntityType, clock.EntityId,
		clock.EntityName, clock.ModuleCode, clock.TargetDate, clock.DaysRemaining,
		clock.Criticality, clock.Status, clock.LastReconciledAt).Error
	if err != nil {
		return err
	}

	return nil
}

// ListComplianceClocksByType returns the clock rows currently tracked for one
// entity type, optionally narrowed to a company and site. Passes run with the
// tenant scope bypassed, so the filters here are the only scoping.
func ListComplianceClocksByType(ctx context.Context, entityType ClockEntityType, companyId string, siteId *int) ([]ComplianceClock, error) {

	db := config.GetDB()
	var results []ComplianceClock

	dbCtx := db.WithContext(ctx).Where("entity_type = ?", entityType)
	if companyId != "" {
		dbCtx = dbCtx.Where("company_id = ?", companyId)
	}
	if siteId != nil && *siteId > 0 {
		dbCtx = dbCtx.Where("site_id = ?", *siteId)
	}

	// db query
	err := dbCtx.Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// DeleteComplianceClocksByIDs reaps the clock rows of entities that dropped
// out of tracking. Returns the number of rows removed.
func DeleteComplianceClocksByIDs(ctx context.Context, entityType ClockEntityType, entityIds []int) (int64, error) {

	if len(entityIds) == 0 {
		return 0, nil
	}

	db := config.GetDB()
	result := db.WithContext(ctx).
		Where("entity_type = ? AND entity_id IN ?", entityType, entityIds).
		Delete(&ComplianceClock{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
