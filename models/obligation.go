package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ecocomply/compliance_backend/config"
	"github.com/ecocomply/compliance_backend/utils"
)

// Obligation is a standing compliance duty (permit condition, consent
// requirement). The clock engine tracks open obligations with a due date.
type Obligation struct {
	ID          int              `gorm:"primary_key" json:"id"`
	CompanyId   string           `gorm:"index;not null" json:"company_id"`
	SiteId      int              `gorm:"index;not null" json:"site_id" binding:"required"`
	ModuleCode  string           `gorm:"size:20;not null" json:"module_code" binding:"required"`
	Title       string           `gorm:"size:255;not null" json:"title" binding:"required"`
	Description string           `gorm:"type:text" json:"description"`
	PermitRef   string           `gorm:"size:100" json:"permit_ref"`
	Status      ObligationStatus `gorm:"size:20;not null;default:'pending'" json:"status"`
	DueDate     *time.Time       `gorm:"index" json:"due_date"`
	AssignedTo  *int             `json:"assigned_to"`
	CompletedAt *time.Time       `json:"completed_at"`
	CreatedAt   time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewObligation struct {
	SiteId      int        `json:"site_id" binding:"required"`
	ModuleCode  string     `json:"module_code" binding:"required"`
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	PermitRef   string     `json:"permit_ref"`
	Status      *string    `json:"status"`
	DueDate     *time.Time `json:"due_date"`
	AssignedTo  *int       `json:"assigned_to"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewObligation) validate(ctx context.Context, companyId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Obligation](ctx, companyId, id); err != nil {
			return err
		}
	}
	if err := utils.ValidateResourceId[Site](ctx, companyId, input.SiteId); err != nil {
		return errors.New("site not found")
	}
	// the module must be registered for the company
	db := config.GetDB()
	var count int64
	if err := db.WithContext(ctx).Model(&ComplianceModule{}).
		Where("company_id = ? AND code = ? AND is_enabled = ?", companyId, input.ModuleCode, true).
		Count(&count).Error; err != nil {
		return err
	}
	if count <= 0 {
		return fmt.Errorf("module %s is not registered for the company", input.ModuleCode)
	}
	if input.Status != nil {
		if _, err := ParseObligationStatus(*input.Status); err != nil {
			return err
		}
	}
	return nil
}

func CreateObligation(ctx context.Context, input *NewObligation) (*Obligation, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, 0); err != nil {
		return nil, err
	}

	status := ObligationStatusPending
	if input.Status != nil {
		status, _ = ParseObligationStatus(*input.Status)
	}

	obligation := Obligation{
		CompanyId:   companyId,
		SiteId:      input.SiteId,
		ModuleCode:  input.ModuleCode,
		Title:       input.Title,
		Description: input.Description,
		PermitRef:   input.PermitRef,
		Status:      status,
		DueDate:     input.DueDate,
		AssignedTo:  input.AssignedTo,
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&obligation).Error
	if err != nil {
		return nil, err
	}

	return &obligation, nil
}

func UpdateObligation(ctx context.Context, id int, input *NewObligation) (*Obligation, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, id); err != nil {
		return nil, err
	}

	obligation, err := utils.FetchModel[Obligation](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"SiteId":      input.SiteId,
		"ModuleCode":  input.ModuleCode,
		"Title":       input.Title,
		"Description": input.Description,
		"PermitRef":   input.PermitRef,
		"DueDate":     input.DueDate,
		"AssignedTo":  input.AssignedTo,
	}
	if input.Status != nil {
		status, _ := ParseObligationStatus(*input.Status)
		updates["Status"] = status
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&obligation).Updates(updates).Error
	if err != nil {
		return nil, err
	}

	return obligation, nil
}

// CompleteObligation closes the obligation; the next reconciliation pass
// reaps its clock row.
func CompleteObligation(ctx context.Context, id int) (*Obligation, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	obligation, err := utils.FetchModel[Obligation](ctx, companyId, id)
	if err != nil {
		return nil, err
	}
	if obligation.Status == ObligationStatusCompleted {
		return nil, errors.New("obligation is already completed")
	}

	now := time.Now()
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&obligation).Updates(map[string]interface{}{
		"Status":      ObligationStatusCompleted,
		"CompletedAt": &now,
	}).Error
	if err != nil {
		return nil, err
	}

	return obligation, nil
}

func DeleteObligation(ctx context.Context, id int) (*Obligation, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	result, err := utils.FetchModel[Obligation](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	// check if the obligation is referenced by triggers
	db := config.GetDB()
	var count int64
	if err := db.WithContext(ctx).Model(&RecurrenceTrigger{}).
		Where("obligation_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("obligation has recurrence triggers")
	}

	// db action
	err = db.WithContext(ctx).Delete(&result).Error
	if err != nil {
		return nil, err
	}

	return result, nil
}

func GetObligation(ctx context.Context, id int) (*Obligation, error) {

	return GetResource[Obligation](ctx, id)
}

func GetObligations(ctx context.Context, siteId *int, status *string) ([]*Obligation, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	var results []*Obligation

	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if siteId != nil && *siteId > 0 {
		dbCtx = dbCtx.Where("site_id = ?", *siteId)
	}
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	// db query
	err := dbCtx.Order("due_date").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
