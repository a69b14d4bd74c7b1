package models

import (
	"context"
	"errors"
	"time"

	"github.com/ecocomply/compliance_backend/config"
	"github.com/ecocomply/compliance_backend/utils"
	"github.com/shopspring/decimal"
)

// RuntimeMonitoring is one run-hour reading for a generator (manual log or
// telemetry import). CONDITIONAL triggers compare aggregates of these
// readings against configured thresholds.
type RuntimeMonitoring struct {
	ID          int             `gorm:"primary_key" json:"id"`
	CompanyId   string          `gorm:"index;not null" json:"company_id"`
	GeneratorId int             `gorm:"index;not null" json:"generator_id" binding:"required"`
	ReadingDate time.Time       `gorm:"index;not null" json:"reading_date" binding:"required"`
	RunHours    decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"run_hours" binding:"required"`
	Source      string          `gorm:"size:20;default:'manual'" json:"source"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewRuntimeMonitoring struct {
	GeneratorId int             `json:"generator_id" binding:"required"`
	ReadingDate time.Time       `json:"reading_date" binding:"required"`
	RunHours    decimal.Decimal `json:"run_hours" binding:"required"`
	Source      string          `json:"source"`
}

func (input *NewRuntimeMonitoring) validate(ctx context.Context, companyId string) error {
	if err := utils.ValidateResourceId[Generator](ctx, companyId, input.GeneratorId); err != nil {
		return errors.New("generator not found")
	}
	if input.RunHours.IsNegative() {
		return errors.New("run hours must not be negative")
	}
	return nil
}

func CreateRuntimeMonitoring(ctx context.Context, input *NewRuntimeMonitoring) (*RuntimeMonitoring, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId); err != nil {
		return nil, err
	}

	source := input.Source
	if source == "" {
		source = "manual"
	}

	reading := RuntimeMonitoring{
		CompanyId:   companyId,
		GeneratorId: input.GeneratorId,
		ReadingDate: input.ReadingDate,
		RunHours:    input.RunHours,
		Source:      source,
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&reading).Error
	if err != nil {
		return nil, err
	}

	return &reading, nil
}

func GetRuntimeMonitorings(ctx context.Context, generatorId *int, from *time.Time, to *time.Time) ([]*RuntimeMonitoring, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	var results []*RuntimeMonitoring

	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if generatorId != nil && *generatorId > 0 {
		dbCtx = dbCtx.Where("generator_id = ?", *generatorId)
	}
	if from != nil {
		dbCtx = dbCtx.Where("reading_date >= ?", *from)
	}
	if to != nil {
		dbCtx = dbCtx.Where("reading_date <= ?", *to)
	}
	// db query
	err := dbCtx.Order("reading_date DESC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
