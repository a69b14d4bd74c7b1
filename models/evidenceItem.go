package models

import (
	"context"
	"errors"
	"time"

	"github.com/ecocomply/compliance_backend/config"
	"github.com/ecocomply/compliance_backend/utils"
)

// EvidenceItem is a document proving compliance (certificate, consent,
// calibration record). The expiry tracker watches active items with an
// expiry date; the document itself lives in external storage.
type EvidenceItem struct {
	ID           int            `gorm:"primary_key" json:"id"`
	CompanyId    string         `gorm:"index;not null" json:"company_id"`
	SiteId       *int           `gorm:"index" json:"site_id"`
	ObligationId *int           `gorm:"index" json:"obligation_id"`
	Title        string         `gorm:"size:255;not null" json:"title" binding:"required"`
	DocumentRef  string         `gorm:"size:255" json:"document_ref"`
	Status       EvidenceStatus `gorm:"size:20;not null;default:'active'" json:"status"`
	ExpiryDate   *time.Time     `gorm:"index" json:"expiry_date"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewEvidenceItem struct {
	SiteId       *int       `json:"site_id"`
	ObligationId *int       `json:"obligation_id"`
	Title        string     `json:"title" binding:"required"`
	DocumentRef  string     `json:"document_ref"`
	ExpiryDate   *time.Time `json:"expiry_date"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewEvidenceItem) validate(ctx context.Context, companyId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[EvidenceItem](ctx, companyId, id); err != nil {
			return err
		}
	}
	if input.SiteId != nil && *input.SiteId > 0 {
		if err := utils.ValidateResourceId[Site](ctx, companyId, *input.SiteId); err != nil {
			return errors.New("site not found")
		}
	}
	if input.ObligationId != nil && *input.ObligationId > 0 {
		if err := utils.ValidateResourceId[Obligation](ctx, companyId, *input.ObligationId); err != nil {
			return errors.New("obligation not found")
		}
	}
	return nil
}

func CreateEvidenceItem(ctx context.Context, input *NewEvidenceItem) (*EvidenceItem, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, 0); err != nil {
		return nil, err
	}

	item := EvidenceItem{
		CompanyId:    companyId,
		SiteId:       input.SiteId,
		ObligationId: input.ObligationId,
		Title:        input.Title,
		DocumentRef:  input.DocumentRef,
		Status:       EvidenceStatusActive,
		ExpiryDate:   input.ExpiryDate,
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&item).Error
	if err != nil {
		return nil, err
	}

	return &item, nil
}

func UpdateEvidenceItem(ctx context.Context, id int, input *NewEvidenceItem) (*EvidenceItem, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, id); err != nil {
		return nil, err
	}

	item, err := utils.FetchModel[EvidenceItem](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&item).Updates(map[string]interface{}{
		"SiteId":       input.SiteId,
		"ObligationId": input.ObligationId,
		"Title":        input.Title,
		"DocumentRef":  input.DocumentRef,
		"ExpiryDate":   input.ExpiryDate,
	}).Error
	if err != nil {
		return nil, err
	}

	return item, nil
}

// SupersedeEvidenceItem retires the item in favour of a newer document. Its
// tracking row is reaped on the next expiry pass.
func SupersedeEvidenceItem(ctx context.Context, id int) (*EvidenceItem, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	item, err := utils.FetchModel[EvidenceItem](ctx, companyId, id)
	if err != nil {
		return nil, err
	}
	if item.Status != EvidenceStatusActive {
		return nil, errors.New("evidence item is not active")
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&item).Update("status", EvidenceStatusSuperseded).Error
	if err != nil {
		return nil, err
	}

	return item, nil
}

func DeleteEvidenceItem(ctx context.Context, id int) (*EvidenceItem, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	result, err := utils.FetchModel[EvidenceItem](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()

	// db action
	err = db.WithContext(ctx).Delete(&result).Error
	if err != nil {
		return nil, err
	}

	return result, nil
}

func GetEvidenceItem(ctx context.Context, id int) (*EvidenceItem, error) {

	return GetResource[EvidenceItem](ctx, id)
}

func GetEvidenceItems(ctx context.Context, siteId *int, status *string) ([]*EvidenceItem, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	var results []*EvidenceItem

	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if siteId != nil && *siteId > 0 {
		dbCtx = dbCtx.Where("site_id = ?", *siteId)
	}
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	// db query
	err := dbCtx.Order("expiry_date").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
