package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ecocomply/compliance_backend/config"
	"github.com/ecocomply/compliance_backend/utils"
)

// ContractorLicence records a third-party contractor's certification (waste
// carrier registration, discharge consent). The clock counts toward its
// expiry while the licence is active or suspended.
type ContractorLicence struct {
	ID             int           `gorm:"primary_key" json:"id"`
	CompanyId      string        `gorm:"index;not null" json:"company_id"`
	SiteId         *int          `gorm:"index" json:"site_id"`
	ContractorName string        `gorm:"size:255;not null" json:"contractor_name" binding:"required"`
	LicenceNumber  string        `gorm:"size:100;not null" json:"licence_number" binding:"required"`
	LicenceType    string        `gorm:"size:100" json:"licence_type"`
	ContactEmail   string        `gorm:"size:255" json:"contact_email"`
	ContactPhone   string        `gorm:"size:20" json:"contact_phone"`
	Status         LicenceStatus `gorm:"size:20;not null;default:'active'" json:"status"`
	ExpiryDate     *time.Time    `gorm:"index" json:"expiry_date"`
	CreatedAt      time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewContractorLicence struct {
	SiteId         *int       `json:"site_id"`
	ContractorName string     `json:"contractor_name" binding:"required"`
	LicenceNumber  string     `json:"licence_number" binding:"required"`
	LicenceType    string     `json:"licence_type"`
	ContactEmail   string     `json:"contact_email"`
	ContactPhone   string     `json:"contact_phone"`
	ExpiryDate     *time.Time `json:"expiry_date"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewContractorLicence) validate(ctx context.Context, companyId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[ContractorLicence](ctx, companyId, id); err != nil {
			return err
		}
	}
	// licence number
	if err := utils.ValidateUnique[ContractorLicence](ctx, companyId, "licence_number", input.LicenceNumber, id); err != nil {
		return err
	}
	if input.SiteId != nil && *input.SiteId > 0 {
		if err := utils.ValidateResourceId[Site](ctx, companyId, *input.SiteId); err != nil {
			return errors.New("site not found")
		}
	}
	// email
	if input.ContactEmail != "" && !utils.IsValidEmail(input.ContactEmail) {
		return errors.New("invalid contact email")
	}
	// phone
	if len(strings.TrimSpace(input.ContactPhone)) > 0 {
		if err := utils.ValidatePhoneNumber(input.ContactPhone, utils.CountryCode); err != nil {
			return err
		}
	}
	return nil
}

func CreateContractorLicence(ctx context.Context, input *NewContractorLicence) (*ContractorLicence, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, 0); err != nil {
		return nil, err
	}

	licence := ContractorLicence{
		CompanyId:      companyId,
		SiteId:         input.SiteId,
		ContractorName: input.ContractorName,
		LicenceNumber:  input.LicenceNumber,
		LicenceType:    input.LicenceType,
		ContactEmail:   input.ContactEmail,
		ContactPhone:   input.ContactPhone,
		Status:         LicenceStatusActive,
		ExpiryDate:     input.ExpiryDate,
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&licence).Error
	if err != nil {
		return nil, err
	}

	return &licence, nil
}

func UpdateContractorLicence(ctx context.Context, id int, input *NewContractorLicence) (*ContractorLicence, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, id); err != nil {
		return nil, err
	}

	licence, err := utils.FetchModel[ContractorLicence](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&licence).Updates(map[string]interface{}{
		"SiteId":         input.SiteId,
		"ContractorName": input.ContractorName,
		"LicenceNumber":  input.LicenceNumber,
		"LicenceType":    input.LicenceType,
		"ContactEmail":   input.ContactEmail,
		"ContactPhone":   input.ContactPhone,
		"ExpiryDate":     input.ExpiryDate,
	}).Error
	if err != nil {
		return nil, err
	}

	return licence, nil
}

// ChangeLicenceStatus moves the licence through its lifecycle. Expired and
// revoked licences drop out of the clock table on the next pass.
func ChangeLicenceStatus(ctx context.Context, id int, status string) (*ContractorLicence, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	parsed, err := ParseLicenceStatus(status)
	if err != nil {
		return nil, err
	}

	licence, err := utils.FetchModel[ContractorLicence](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&licence).Update("status", parsed).Error
	if err != nil {
		return nil, err
	}

	return licence, nil
}

func DeleteContractorLicence(ctx context.Context, id int) (*ContractorLicence, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	result, err := utils.FetchModel[ContractorLicence](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Delete(&result).Error
	if err != nil {
		return nil, err
	}

	return result, nil
}

func GetContractorLicence(ctx context.Context, id int) (*ContractorLicence, error) {

	return GetResource[ContractorLicence](ctx, id)
}

func GetContractorLicences(ctx context.Context, contractorName *string, status *string) ([]*ContractorLicence, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	var results []*ContractorLicence

	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if contractorName != nil && len(*contractorName) > 0 {
		dbCtx = dbCtx.Where("contractor_name LIKE ?", "%"+*contractorName+"%")
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
