package models

import (
	"context"
	"errors"
	"time"

	"github.com/ecocomply/compliance_backend/config"
	"github.com/ecocomply/compliance_backend/utils"
)

type Site struct {
	ID           int       `gorm:"primary_key" json:"id"`
	CompanyId    string    `gorm:"index;not null" json:"company_id"`
	Name         string    `gorm:"index;size:100;not null" json:"name" binding:"required"`
	Address      string    `gorm:"type:text" json:"address"`
	City         string    `gorm:"size:100" json:"city"`
	Postcode     string    `gorm:"size:20" json:"postcode"`
	RegulatorRef string    `gorm:"size:100" json:"regulator_ref"`
	IsActive     *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSite struct {
	Name         string `json:"name" binding:"required"`
	Address      string `json:"address"`
	City         string `json:"city"`
	Postcode     string `json:"postcode"`
	RegulatorRef string `json:"regulator_ref"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewSite) validate(ctx context.Context, companyId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Site](ctx, companyId, id); err != nil {
			return err
		}
	}
	// name
	if err := utils.ValidateUnique[Site](ctx, companyId, "name", input.Name, id); err != nil {
		return err
	}
	return nil
}

func CreateSite(ctx context.Context, input *NewSite) (*Site, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, 0); err != nil {
		return nil, err
	}

	site := Site{
		CompanyId:    companyId,
		Name:         input.Name,
		Address:      input.Address,
		City:         input.City,
		Postcode:     input.Postcode,
		RegulatorRef: input.RegulatorRef,
		IsActive:     utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&site).Error
	if err != nil {
		return nil, err
	}

	return &site, nil
}

func UpdateSite(ctx context.Context, id int, input *NewSite) (*Site, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, id); err != nil {
		return nil, err
	}

	site, err := utils.FetchModel[Site](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&site).Updates(map[string]interface{}{
		"Name":         input.Name,
		"Address":      input.Address,
		"City":         input.City,
		"Postcode":     input.Postcode,
		"RegulatorRef": input.RegulatorRef,
	}).Error
	if err != nil {
		return nil, err
	}

	return site, nil
}

func DeleteSite(ctx context.Context, id int) (*Site, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	result, err := utils.FetchModel[Site](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	// check if the site is used
	db := config.GetDB()
	var count int64
	if err := db.WithContext(ctx).Model(&Company{}).
		Where("id = ? AND primary_site_id = ?", companyId, id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("cannot delete primary site")
	}
	if err := db.WithContext(ctx).Model(&Obligation{}).
		Where("site_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("site has obligations")
	}
	if err := db.WithContext(ctx).Model(&Generator{}).
		Where("site_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("site has generators")
	}

	// db action
	err = db.WithContext(ctx).Delete(&result).Error
	if err != nil {
		return nil, err
	}

	return result, nil
}

func GetSite(ctx context.Context, id int) (*Site, error) {

	return GetResource[Site](ctx, id)
}

func GetSites(ctx context.Context, name *string) ([]*Site, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	var results []*Site

	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	// db query
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func ToggleActiveSite(ctx context.Context, id int, isActive bool) (*Site, error) {
	// <owner>
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	if !isActive {
		db := config.GetDB()
		var count int64
		if err := db.WithContext(ctx).Model(&Company{}).
			Where("id = ? AND primary_site_id = ?", companyId, id).Count(&count).Error; err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, errors.New("cannot toggle primary site inactive")
		}
	}
	return ToggleActiveModel[Site](ctx, companyId, id, isActive)
}
