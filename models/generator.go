package models

import (
	"context"
	"errors"
	"time"

	"github.com/ecocomply/compliance_backend/config"
	"github.com/ecocomply/compliance_backend/utils"
	"github.com/shopspring/decimal"
)

// Generator is an on-site emergency or standby generator. Its clock counts
// toward the next stack test; its run-hour readings feed the CONDITIONAL
// trigger metrics.
type Generator struct {
	ID                 int             `gorm:"primary_key" json:"id"`
	CompanyId          string          `gorm:"index;not null" json:"company_id"`
	SiteId             int             `gorm:"index;not null" json:"site_id" binding:"required"`
	Name               string          `gorm:"size:255;not null" json:"name" binding:"required"`
	SerialNumber       string          `gorm:"size:100" json:"serial_number"`
	PermitRef          string          `gorm:"size:100" json:"permit_ref"`
	Status             GeneratorStatus `gorm:"size:20;not null;default:'active'" json:"status"`
	AnnualRunHourLimit decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"annual_run_hour_limit"`
	NextStackTestDate  *time.Time      `gorm:"index" json:"next_stack_test_date"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewGenerator struct {
	SiteId             int             `json:"site_id" binding:"required"`
	Name               string          `json:"name" binding:"required"`
	SerialNumber       string          `json:"serial_number"`
	PermitRef          string          `json:"permit_ref"`
	AnnualRunHourLimit decimal.Decimal `json:"annual_run_hour_limit"`
	NextStackTestDate  *time.Time      `json:"next_stack_test_date"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewGenerator) validate(ctx context.Context, companyId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Generator](ctx, companyId, id); err != nil {
			return err
		}
	}
	// name
	if err := utils.ValidateUnique[Generator](ctx, companyId, "name", input.Name, id); err != nil {
		return err
	}
	if err := utils.ValidateResourceId[Site](ctx, companyId, input.SiteId); err != nil {
		return errors.New("site not found")
	}
	if input.AnnualRunHourLimit.IsNegative() {
		return errors.New("annual run hour limit must not be negative")
	}
	return nil
}

func CreateGenerator(ctx context.Context, input *NewGenerator) (*Generator, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, 0); err != nil {
		return nil, err
	}

	generator := Generator{
		CompanyId:          companyId,
		SiteId:             input.SiteId,
		Name:               input.Name,
		SerialNumber:       input.SerialNumber,
		PermitRef:          input.PermitRef,
		Status:             GeneratorStatusActive,
		AnnualRunHourLimit: input.AnnualRunHourLimit,
		NextStackTestDate:  input.NextStackTestDate,
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&generator).Error
	if err != nil {
		return nil, err
	}

	return &generator, nil
}

func UpdateGenerator(ctx context.Context, id int, input *NewGenerator) (*Generator, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, id); err != nil {
		return nil, err
	}

	generator, err := utils.FetchModel[Generator](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&generator).Updates(map[string]interface{}{
		"SiteId":             input.SiteId,
		"Name":               input.Name,
		"SerialNumber":       input.SerialNumber,
		"PermitRef":          input.PermitRef,
		"AnnualRunHourLimit": input.AnnualRunHourLimit,
		"NextStackTestDate":  input.NextStackTestDate,
	}).Error
	if err != nil {
		return nil, err
	}

	return generator, nil
}

// DecommissionGenerator takes the generator out of service. Its clock row and
// any conditional triggers go quiet on the next pass.
func DecommissionGenerator(ctx context.Context, id int) (*Generator, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	generator, err := utils.FetchModel[Generator](ctx, companyId, id)
	if err != nil {
		return nil, err
	}
	if generator.Status == GeneratorStatusDecommissioned {
		return nil, errors.New("generator is already decommissioned")
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&generator).Update("status", GeneratorStatusDecommissioned).Error
	if err != nil {
		return nil, err
	}

	return generator, nil
}

func DeleteGenerator(ctx context.Context, id int) (*Generator, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	result, err := utils.FetchModel[Generator](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	// check if the generator has readings or tests
	db := config.GetDB()
	var count int64
	if err := db.WithContext(ctx).Model(&RuntimeMonitoring{}).
		Where("generator_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("generator has runtime readings")
	}
	if err := db.WithContext(ctx).Model(&StackTest{}).
		Where("generator_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("generator has stack tests")
	}

	// db action
	err = db.WithContext(ctx).Delete(&result).Error
	if err != nil {
		return nil, err
	}

	return result, nil
}

func GetGenerator(ctx context.Context, id int) (*Generator, error) {

	return GetResource[Generator](ctx, id)
}

func GetGenerators(ctx context.Context, siteId *int, status *string) ([]*Generator, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	var results []*Generator

	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if siteId != nil && *siteId > 0 {
		dbCtx = dbCtx.Where("site_id = ?", *siteId)
	}
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	// db query
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// YearToDateRunHours sums the generator's readings since 1 January of the
// reference year.
func YearToDateRunHours(ctx context.Context, generatorId int, ref time.Time) (decimal.Decimal, error) {
	db := config.GetDB()

	startOfYear := time.Date(ref.Year(), time.January, 1, 0, 0, 0, 0, ref.Location())

	var total decimal.NullDecimal
	err := db.WithContext(ctx).Model(&RuntimeMonitoring{}).
		Select("SUM(run_hours)").
		Where("generator_id = ? AND reading_date >= ?", generatorId, startOfYear).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}
