package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ecocomply/compliance_backend/config"
	"github.com/ecocomply/compliance_backend/utils"
	"github.com/google/uuid"
)

// Company is the tenant. Every compliance-bearing row hangs off a company,
// and the clock engine computes calendar days in the company's timezone.
type Company struct {
	ID            uuid.UUID `gorm:"primary_key" json:"id"`
	Name          string    `gorm:"index;size:100;not null" json:"name" binding:"required"`
	ContactName   string    `gorm:"size:100" json:"contact_name"`
	Email         string    `gorm:"size:255" json:"email"`
	Phone         string    `gorm:"size:20" json:"phone"`
	Website       string    `gorm:"size:255" json:"website"`
	Address       string    `gorm:"type:text" json:"address"`
	Country       string    `gorm:"size:100" json:"country"`
	City          string    `gorm:"size:100" json:"city"`
	Postcode      string    `gorm:"size:20" json:"postcode"`
	RegulatorRef  string    `gorm:"size:100" json:"regulator_ref"`
	Timezone      string    `gorm:"size:50" json:"timezone"`
	PrimarySiteId int       `gorm:"not null" json:"primary_site_id"`
	IsActive      *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCompany struct {
	Name         string `json:"name" binding:"required"`
	ContactName  string `json:"contact_name"`
	Email        string `json:"email" binding:"required"`
	Phone        string `json:"phone"`
	Website      string `json:"website"`
	Address      string `json:"address"`
	Country      string `json:"country"`
	City         string `json:"city"`
	Postcode     string `json:"postcode"`
	RegulatorRef string `json:"regulator_ref"`
	Timezone     string `json:"timezone"`
}

func (company *Company) StoreRedis() error {
	return config.SetRedisObject("Company:"+fmt.Sprint(company.ID), company, 0)
}

func (company *Company) RemoveRedis() error {
	return config.RemoveRedisKey("Company:" + fmt.Sprint(company.ID))
}

func (input *NewCompany) validate(ctx context.Context, id string) error {
	// name
	if err := utils.ValidateUnique[Company](ctx, "", "name", input.Name, id); err != nil {
		return err
	}
	// email
	if !utils.IsValidEmail(input.Email) {
		return errors.New("invalid email")
	}
	if err := utils.ValidateUnique[Company](ctx, "", "email", input.Email, id); err != nil {
		return err
	}
	// phone
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return err
		}
	}
	return nil
}

func CreateCompany(ctx context.Context, input *NewCompany) (*Company, error) {
	// When creating a company,
	// - create the primary site
	// - register the compliance modules
	// - seed notification settings (reminder cadence defaults)
	// - create the 'Owner' user
	if err := input.validate(ctx, ""); err != nil {
		return nil, err
	}
	db := config.GetDB()

	tx := db.Begin()

	CID := uuid.New()
	timezone := "Europe/London"
	if input.Timezone != "" {
		timezone = input.Timezone
	}

	company := Company{
		ID:           CID,
		Name:         input.Name,
		ContactName:  input.ContactName,
		Email:        input.Email,
		Phone:        input.Phone,
		Website:      input.Website,
		Address:      input.Address,
		Country:      input.Country,
		City:         input.City,
		Postcode:     input.Postcode,
		RegulatorRef: input.RegulatorRef,
		Timezone:     timezone,
		IsActive:     utils.NewTrue(),
	}

	// create company
	err := tx.WithContext(ctx).Create(&company).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	companyId := company.ID.String()
	ctx = context.WithValue(ctx, utils.ContextKeyCompanyId, companyId)

	// register compliance modules for the company
	if _, err := CreateDefaultModules(tx, ctx, companyId); err != nil {
		tx.Rollback()
		return nil, err
	}

	// seed notification settings with the default reminder cadence
	if _, err := CreateDefaultNotificationSetting(tx, ctx, companyId); err != nil {
		tx.Rollback()
		return nil, err
	}

	// create primary site
	siteInput := &NewSite{
		Name: "Main Site",
	}
	site, err := CreateDefaultSite(tx, ctx, siteInput, companyId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if _, err := CreateDefaultOwner(tx, ctx, companyId, company.Email, company.Name); err != nil {
		tx.Rollback()
		return nil, err
	}

	// update primary site
	err = tx.WithContext(ctx).Model(&company).Updates(map[string]interface{}{
		"PrimarySiteId": site.ID,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err = tx.Commit().Error; err != nil {
		return nil, err
	}

	// caching
	if err := config.RemoveRedisKey("CompanyList"); err != nil {
		return nil, err
	}

	return &company, nil
}

func UpdateCompany(ctx context.Context, input *NewCompany) (*Company, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId); err != nil {
		return nil, err
	}

	// db action
	db := config.GetDB()
	var company Company
	if err := db.WithContext(ctx).Where("id = ?", companyId).First(&company).Error; err != nil {
		return nil, err
	}

	err := db.WithContext(ctx).Model(&company).Updates(map[string]interface{}{
		"Name":         input.Name,
		"ContactName":  input.ContactName,
		"Email":        input.Email,
		"Phone":        input.Phone,
		"Website":      input.Website,
		"Address":      input.Address,
		"Country":      input.Country,
		"City":         input.City,
		"Postcode":     input.Postcode,
		"RegulatorRef": input.RegulatorRef,
		// Timezone changes shift every clock boundary; handled separately.
	}).Error
	if err != nil {
		return nil, err
	}

	// caching
	if err := company.RemoveRedis(); err != nil {
		return nil, err
	}
	if err := config.RemoveRedisKey("CompanyList"); err != nil {
		return nil, err
	}
	return &company, nil
}

func ToggleActiveCompany(ctx context.Context, id uuid.UUID, isActive bool) (*Company, error) {
	db := config.GetDB()
	var company Company
	if err := db.WithContext(ctx).Where("id = ?", id).First(&company).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	err := db.WithContext(ctx).Model(&company).Update("is_active", isActive).Error
	if err != nil {
		return nil, err
	}

	if err := company.RemoveRedis(); err != nil {
		return nil, err
	}
	if err := config.RemoveRedisKey("CompanyList"); err != nil {
		return nil, err
	}
	return &company, nil
}

func GetCompanyById(ctx context.Context, id string) (*Company, error) {
	// redis first
	var cached *Company
	exists, err := config.GetRedisObject("Company:"+id, &cached)
	if err == nil && exists && cached != nil {
		return cached, nil
	}

	db := config.GetDB()
	var company Company
	if err := db.WithContext(ctx).Where("id = ?", id).First(&company).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	// caching
	if err := company.StoreRedis(); err != nil {
		return nil, err
	}
	return &company, nil
}

func GetCompany(ctx context.Context) (*Company, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	return GetCompanyById(ctx, companyId)
}

func GetCompanies(ctx context.Context, name *string) ([]*Company, error) {
	db := config.GetDB()
	var results []*Company

	dbCtx := db.WithContext(ctx)
	if name != nil && *name != "" {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	if err := dbCtx.Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ListActiveCompanies returns the tenants the reconciliation jobs iterate.
func ListActiveCompanies(ctx context.Context) ([]*Company, error) {
	db := config.GetDB()
	var results []*Company
	if err := db.WithContext(ctx).Where("is_active = ?", true).Order("created_at").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
