package models

import (
	"context"
	"errors"
	"time"

	"github.com/ecocomply/compliance_backend/config"
	"github.com/ecocomply/compliance_backend/utils"
)

// Deadline is a dated submission or action (report due, sampling return).
// It carries the SLA state the breach detector advances; sla_breach fields
// are stamped once at detection and never recomputed.
type Deadline struct {
	ID                     int            `gorm:"primary_key" json:"id"`
	CompanyId              string         `gorm:"index;not null" json:"company_id"`
	SiteId                 int            `gorm:"index;not null" json:"site_id" binding:"required"`
	ObligationId           *int           `gorm:"index" json:"obligation_id"`
	ModuleCode             string         `gorm:"size:20;not null" json:"module_code" binding:"required"`
	Title                  string         `gorm:"size:255;not null" json:"title" binding:"required"`
	Description            string         `gorm:"type:text" json:"description"`
	DeadlineDate           time.Time      `gorm:"index;not null" json:"deadline_date" binding:"required"`
	Status                 DeadlineStatus `gorm:"size:20;not null;default:'open'" json:"status"`
	CompletedAt            *time.Time     `json:"completed_at"`
	SlaTargetDate          *time.Time     `gorm:"index" json:"sla_target_date"`
	SlaStatus              SlaStatus      `gorm:"size:20;not null;default:'COMPLIANT'" json:"sla_status"`
	SlaBreachedAt          *time.Time     `json:"sla_breached_at"`
	SlaBreachDurationHours *int           `json:"sla_breach_duration_hours"`
	EscalationStatus       string         `gorm:"size:30" json:"escalation_status"`
	CreatedAt              time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewDeadline struct {
	SiteId        int        `json:"site_id" binding:"required"`
	ObligationId  *int       `json:"obligation_id"`
	ModuleCode    string     `json:"module_code" binding:"required"`
	Title         string     `json:"title" binding:"required"`
	Description   string     `json:"description"`
	DeadlineDate  time.Time  `json:"deadline_date" binding:"required"`
	SlaTargetDate *time.Time `json:"sla_target_date"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewDeadline) validate(ctx context.Context, companyId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Deadline](ctx, companyId, id); err != nil {
			return err
		}
	}
	if err := utils.ValidateResourceId[Site](ctx, companyId, input.SiteId); err != nil {
		return errors.New("site not found")
	}
	if input.ObligationId != nil && *input.ObligationId > 0 {
		if err := utils.ValidateResourceId[Obligation](ctx, companyId, *input.ObligationId); err != nil {
			return errors.New("obligation not found")
		}
	}
	return nil
}

func CreateDeadline(ctx context.Context, input *NewDeadline) (*Deadline, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, 0); err != nil {
		return nil, err
	}

	// the SLA target defaults to the deadline itself
	slaTarget := input.SlaTargetDate
	if slaTarget == nil {
		slaTarget = &input.DeadlineDate
	}

	deadline := Deadline{
		CompanyId:     companyId,
		SiteId:        input.SiteId,
		ObligationId:  input.ObligationId,
		ModuleCode:    input.ModuleCode,
		Title:         input.Title,
		Description:   input.Description,
		DeadlineDate:  input.DeadlineDate,
		Status:        DeadlineStatusOpen,
		SlaTargetDate: slaTarget,
		SlaStatus:     SlaStatusCompliant,
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&deadline).Error
	if err != nil {
		return nil, err
	}

	return &deadline, nil
}

func UpdateDeadline(ctx context.Context, id int, input *NewDeadline) (*Deadline, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, id); err != nil {
		return nil, err
	}

	deadline, err := utils.FetchModel[Deadline](ctx, companyId, id)
	if err != nil {
		return nil, err
	}
	if deadline.Status != DeadlineStatusOpen {
		return nil, errors.New("only open deadlines can be updated")
	}

	updates := map[string]interface{}{
		"SiteId":       input.SiteId,
		"ObligationId": input.ObligationId,
		"ModuleCode":   input.ModuleCode,
		"Title":        input.Title,
		"Description":  input.Description,
		"DeadlineDate": input.DeadlineDate,
	}
	if input.SlaTargetDate != nil {
		// re-target only while still compliant; breach stamps are final
		if deadline.SlaStatus == SlaStatusBreached {
			return nil, errors.New("cannot re-target a breached deadline")
		}
		updates["SlaTargetDate"] = input.SlaTargetDate
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&deadline).Updates(updates).Error
	if err != nil {
		return nil, err
	}

	return deadline, nil
}

// CompleteDeadline closes the deadline; the next reconciliation pass reaps its
// clock row.
func CompleteDeadline(ctx context.Context, id int) (*Deadline, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	deadline, err := utils.FetchModel[Deadline](ctx, companyId, id)
	if err != nil {
		return nil, err
	}
	if deadline.Status != DeadlineStatusOpen {
		return nil, errors.New("deadline is not open")
	}

	now := time.Now()
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&deadline).Updates(map[string]interface{}{
		"Status":      DeadlineStatusCompleted,
		"CompletedAt": &now,
	}).Error
	if err != nil {
		return nil, err
	}

	return deadline, nil
}

func CancelDeadline(ctx context.Context, id int) (*Deadline, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	deadline, err := utils.FetchModel[Deadline](ctx, companyId, id)
	if err != nil {
		return nil, err
	}
	if deadline.Status != DeadlineStatusOpen {
		return nil, errors.New("deadline is not open")
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&deadline).Update("status", DeadlineStatusCancelled).Error
	if err != nil {
		return nil, err
	}

	return deadline, nil
}

func GetDeadline(ctx context.Context, id int) (*Deadline, error) {

	return GetResource[Deadline](ctx, id)
}

func GetDeadlines(ctx context.Context, siteId *int, status *string, slaStatus *string) ([]*Deadline, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	var results []*Deadline

	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if siteId != nil && *siteId > 0 {
		dbCtx = dbCtx.Where("site_id = ?", *siteId)
	}
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	if slaStatus != nil && *slaStatus != "" {
		dbCtx = dbCtx.Where("sla_status = ?", *slaStatus)
	}
	// db query
	err := dbCtx.Order("deadline_date").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
