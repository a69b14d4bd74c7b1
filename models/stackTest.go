package models

import (
	"context"
	"errors"
	"time"

	"github.com/ecocomply/compliance_backend/config"
	"github.com/ecocomply/compliance_backend/utils"
	"gorm.io/gorm"
)

// StackTest records a completed emissions test for a generator. Completed
// tests are the upstream events EVENT_BASED triggers watch for.
type StackTest struct {
	ID          int       `gorm:"primary_key" json:"id"`
	CompanyId   string    `gorm:"index;not null" json:"company_id"`
	GeneratorId int       `gorm:"index;not null" json:"generator_id" binding:"required"`
	TestDate    time.Time `gorm:"not null" json:"test_date" binding:"required"`
	Result      string    `gorm:"size:10;not null" json:"result" binding:"required"`
	CompletedAt time.Time `gorm:"index;not null" json:"completed_at"`
	Notes       string    `gorm:"type:text" json:"notes"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewStackTest struct {
	GeneratorId int        `json:"generator_id" binding:"required"`
	TestDate    time.Time  `json:"test_date" binding:"required"`
	Result      string     `json:"result" binding:"required"`
	CompletedAt *time.Time `json:"completed_at"`
	Notes       string     `json:"notes"`
}

func (input *NewStackTest) validate(ctx context.Context, companyId string) error {
	if err := utils.ValidateResourceId[Generator](ctx, companyId, input.GeneratorId); err != nil {
		return errors.New("generator not found")
	}
	if input.Result != "pass" && input.Result != "fail" {
		return errors.New("result must be pass or fail")
	}
	return nil
}

func CreateStackTest(ctx context.Context, input *NewStackTest) (*StackTest, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId); err != nil {
		return nil, err
	}

	completedAt := time.Now()
	if input.CompletedAt != nil {
		completedAt = *input.CompletedAt
	}

	test := StackTest{
		CompanyId:   companyId,
		GeneratorId: input.GeneratorId,
		TestDate:    input.TestDate,
		Result:      input.Result,
		CompletedAt: completedAt,
		Notes:       input.Notes,
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&test).Error
	if err != nil {
		return nil, err
	}

	return &test, nil
}

func GetStackTests(ctx context.Context, generatorId *int) ([]*StackTest, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	var results []*StackTest

	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if generatorId != nil && *generatorId > 0 {
		dbCtx = dbCtx.Where("generator_id = ?", *generatorId)
	}
	// db query
	err := dbCtx.Order("completed_at DESC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// LatestStackTestCompletion returns the most recent completion instant for
// the generator, or nil when it has never been tested.
func LatestStackTestCompletion(ctx context.Context, companyId string, generatorId int) (*time.Time, error) {
	db := config.GetDB()

	var test StackTest
	err := db.WithContext(ctx).
		Where("company_id = ? AND generator_id = ?", companyId, generatorId).
		Order("completed_at DESC").
		First(&test).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &test.CompletedAt, nil
}
