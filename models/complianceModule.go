package models

import (
	"context"
	"errors"
	"time"

	"github.com/ecocomply/compliance_backend/config"
	"github.com/ecocomply/compliance_backend/utils"
)

// ComplianceModule is a per-company registry row for one compliance domain.
// Clock rows carry the module code of the entity they track so reports can
// group by domain.
type ComplianceModule struct {
	ID        int       `gorm:"primary_key" json:"id"`
	CompanyId string    `gorm:"index;not null" json:"company_id"`
	Code      string    `gorm:"size:20;not null" json:"code"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	IsEnabled *bool     `gorm:"not null;default:true" json:"is_enabled"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

/*
cache
	ComplianceModuleList:$companyId
*/

// GetDefaultModuleRegistry returns the module codes every company starts with.
func GetDefaultModuleRegistry() map[string]string {
	return map[string]string{
		"PERMITS":    "Permits & Obligations",
		"WATER":      "Water Monitoring",
		"GENERATORS": "Generator Compliance",
		"WASTE":      "Waste & Contractors",
	}
}

type AllComplianceModule struct {
	ID        int    `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	IsEnabled *bool  `json:"is_enabled"`
}

func GetComplianceModules(ctx context.Context) ([]*AllComplianceModule, error) {

	return ListAllResource[ComplianceModule, AllComplianceModule](ctx, "code")
}

// EnabledModuleCodes returns the codes of the company's enabled modules.
func EnabledModuleCodes(ctx context.Context, companyId string) ([]string, error) {
	db := config.GetDB()
	var codes []string
	err := db.WithContext(ctx).Model(&ComplianceModule{}).Select("code").
		Where("company_id = ? AND is_enabled = ?", companyId, true).
		Order("code").Scan(&codes).Error
	if err != nil {
		return nil, err
	}
	return codes, nil
}

func ToggleComplianceModule(ctx context.Context, id int, isEnabled bool) (*ComplianceModule, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	module, err := utils.FetchModel[ComplianceModule](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&module).Update("is_enabled", isEnabled).Error
	if err != nil {
		return nil, err
	}

	// caching
	if err := module.RemoveAllRedis(); err != nil {
		return nil, err
	}

	return module, nil
}
