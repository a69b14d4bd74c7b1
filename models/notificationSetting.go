package models

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/ecocomply/compliance_backend/config"
	"github.com/ecocomply/compliance_backend/utils"
)

// NotificationSetting holds the company's reminder cadence. New expiry
// tracking rows copy ReminderDays at creation time, so changing the setting
// only affects evidence registered afterwards.
type NotificationSetting struct {
	ID           int       `gorm:"primary_key" json:"id"`
	CompanyId    string    `gorm:"uniqueIndex;not null" json:"company_id"`
	ReminderDays IntList   `gorm:"type:jsonb;not null" json:"reminder_days"`
	NotifyEmail  *bool     `gorm:"not null;default:true" json:"notify_email"`
	NotifyInApp  *bool     `gorm:"not null;default:true" json:"notify_in_app"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewNotificationSetting struct {
	ReminderDays []int `json:"reminder_days" binding:"required"`
	NotifyEmail  *bool `json:"notify_email"`
	NotifyInApp  *bool `json:"notify_in_app"`
}

/*
cache
	NotificationSetting:$companyId
*/

func (setting NotificationSetting) RemoveInstanceRedis() error {
	return config.RemoveRedisKey("NotificationSetting:" + setting.CompanyId)
}

func (setting NotificationSetting) RemoveAllRedis() error {
	return nil
}

// DefaultReminderDays is the cadence seeded for every new company.
func DefaultReminderDays() []int {
	return []int{90, 30, 7}
}

func (input *NewNotificationSetting) validate() error {
	if len(input.ReminderDays) == 0 {
		return errors.New("reminder days must not be empty")
	}
	seen := map[int]bool{}
	for _, d := range input.ReminderDays {
		if d <= 0 {
			return errors.New("reminder days must be positive")
		}
		if seen[d] {
			return errors.New("reminder days must be unique")
		}
		seen[d] = true
	}
	return nil
}

func GetNotificationSetting(ctx context.Context) (*NotificationSetting, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	// redis first
	var cached *NotificationSetting
	exists, err := config.GetRedisObject("NotificationSetting:"+companyId, &cached)
	if err == nil && exists && cached != nil {
		return cached, nil
	}

	db := config.GetDB()
	var setting NotificationSetting
	if err := db.WithContext(ctx).Where("company_id = ?", companyId).First(&setting).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	// caching
	if err := config.SetRedisObject("NotificationSetting:"+companyId, &setting, 0); err != nil {
		return nil, err
	}
	return &setting, nil
}

func UpdateNotificationSetting(ctx context.Context, input *NewNotificationSetting) (*NotificationSetting, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var setting NotificationSetting
	if err := db.WithContext(ctx).Where("company_id = ?", companyId).First(&setting).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	// store the cadence largest-first
	days := append([]int{}, input.ReminderDays...)
	sort.Sort(sort.Reverse(sort.IntSlice(days)))

	updates := map[string]interface{}{
		"ReminderDays": IntList(days),
	}
	if input.NotifyEmail != nil {
		updates["NotifyEmail"] = input.NotifyEmail
	}
	if input.NotifyInApp != nil {
		updates["NotifyInApp"] = input.NotifyInApp
	}

	err := db.WithContext(ctx).Model(&setting).Updates(updates).Error
	if err != nil {
		return nil, err
	}

	// caching
	if err := setting.RemoveInstanceRedis(); err != nil {
		return nil, err
	}
	return &setting, nil
}

// ReminderDaysForCompany returns the company's cadence, falling back to the
// default set when the company has no setting row.
func ReminderDaysForCompany(ctx context.Context, companyId string) []int {
	db := config.GetDB()
	var setting NotificationSetting
	if err := db.WithContext(ctx).Where("company_id = ?", companyId).First(&setting).Error; err != nil {
		return DefaultReminderDays()
	}
	if len(setting.ReminderDays) == 0 {
		return DefaultReminderDays()
	}
	return setting.ReminderDays
}
