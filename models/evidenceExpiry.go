package models

import (
	"context"
	"time"

	"github.com/ecocomply/compliance_backend/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EvidenceExpiryTracking is the expiry projection for one evidence item.
// reminder_days is seeded once at creation (company settings or the default
// ladder) and preserved afterwards; reminders_sent only ever grows, and
// stays a subset of reminder_days. expired_at is set once and never cleared
// while the item remains expired.
type EvidenceExpiryTracking struct {
	ID              int        `gorm:"primary_key" json:"id"`
	CompanyId       string     `gorm:"size:64;not null;index" json:"company_id"`
	SiteId          *int       `gorm:"index" json:"site_id"`
	EvidenceItemId  int        `gorm:"not null;uniqueIndex:uniq_expiry_evidence" json:"evidence_item_id"`
	ExpiryDate      time.Time  `gorm:"index;not null" json:"expiry_date"`
	DaysUntilExpiry int        `gorm:"not null" json:"days_until_expiry"`
	IsExpired       bool       `gorm:"index;not null;default:false" json:"is_expired"`
	ExpiredAt       *time.Time `json:"expired_at"`
	ReminderDays    IntList    `gorm:"type:jsonb;not null" json:"reminder_days"`
	RemindersSent   IntList    `gorm:"type:jsonb;not null" json:"reminders_sent"`
	LastCheckedAt   time.Time  `gorm:"not null" json:"last_checked_at"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// ListEvidenceExpiryTrackings returns the tracking rows for the scope.
func ListEvidenceExpiryTrackings(ctx context.Context, companyId string, siteId *int) ([]EvidenceExpiryTracking, error) {

	db := config.GetDB()
	var results []EvidenceExpiryTracking

	dbCtx := db.WithContext(ctx)
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

// CreateEvidenceExpiryTracking inserts a new tracking row. Callers seed
// ReminderDays before calling; a duplicate-key error means a concurrent pass
// created the row first and is handled by the caller.
func CreateEvidenceExpiryTracking(ctx context.Context, tracking *EvidenceExpiryTracking) error {

	if tracking.ReminderDays == nil {
		tracking.ReminderDays = DefaultReminderDays()
	}
	if tracking.RemindersSent == nil {
		tracking.RemindersSent = IntList{}
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(tracking).Error
	if err != nil {
		return err
	}
	return nil
}

// GetEvidenceExpiryTrackingForUpdate re-reads one tracking row under a row
// lock so reminder bookkeeping and its notifications commit atomically.
func GetEvidenceExpiryTrackingForUpdate(tx *gorm.DB, ctx context.Context, evidenceItemId int) (*EvidenceExpiryTracking, error) {

	var tracking EvidenceExpiryTracking
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("evidence_item_id = ?", evidenceItemId).
		Take(&tracking).Error
	if err != nil {
		return nil, err
	}
	return &tracking, nil
}

// DeleteEvidenceExpiryTrackingsByEvidenceIds reaps tracking rows whose
// evidence lost its expiry date or became inactive. Returns rows removed.
func DeleteEvidenceExpiryTrackingsByEvidenceIds(ctx context.Context, evidenceItemIds []int) (int64, error) {

	if len(evidenceItemIds) == 0 {
		return 0, nil
	}

	db := config.GetDB()
	result := db.WithContext(ctx).
		Where("evidence_item_id IN ?", evidenceItemIds).
		Delete(&EvidenceExpiryTracking{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
