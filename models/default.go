package models

import (
	"context"

	"github.com/ecocomply/compliance_backend/utils"
	"gorm.io/gorm"
)

func CreateDefaultModules(tx *gorm.DB, ctx context.Context, companyId string) ([]ComplianceModule, error) {

	registry := GetDefaultModuleRegistry()

	var modules []ComplianceModule
	for code, name := range registry {
		modules = append(modules, ComplianceModule{
			CompanyId: companyId,
			Code:      code,
			Name:      name,
			IsEnabled: utils.NewTrue(),
		})
	}

	if err := tx.WithContext(ctx).Create(&modules).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	return modules, nil
}

func CreateDefaultNotificationSetting(tx *gorm.DB, ctx context.Context, companyId string) (*NotificationSetting, error) {

	setting := NotificationSetting{
		CompanyId:    companyId,
		ReminderDays: DefaultReminderDays(),
		NotifyEmail:  utils.NewTrue(),
		NotifyInApp:  utils.NewTrue(),
	}

	if err := tx.WithContext(ctx).Create(&setting).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	return &setting, nil
}

func CreateDefaultSite(tx *gorm.DB, ctx context.Context, input *NewSite, companyId string) (*Site, error) {

	site := Site{
		CompanyId: companyId,
		Name:      input.Name,
		IsActive:  utils.NewTrue(),
	}

	if err := tx.WithContext(ctx).Create(&site).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	return &site, nil
}

func CreateDefaultOwner(tx *gorm.DB, ctx context.Context, companyId string, email string, name string) (*User, error) {

	hashedPassword, err := utils.HashPassword("default123")
	if err != nil {
		return &User{}, err
	}

	owner := User{
		CompanyId: companyId,
		Username:  email,
		Name:      name,
		Email:     &email,
		Password:  string(hashedPassword),
		IsActive:  utils.NewTrue(),
		Role:      UserRoleOwner,
	}
	if err := tx.WithContext(ctx).Create(&owner).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	return &owner, nil
}
