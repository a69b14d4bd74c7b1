package models

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ecocomply/compliance_backend/config"
	"github.com/ecocomply/compliance_backend/utils"
	"github.com/shopspring/decimal"
)

// TriggerConfig is the typed trigger_config column. One struct covers all
// three variants; validation checks exactly the fields the variant needs.
type TriggerConfig struct {
	// DYNAMIC recurrence interval
	IntervalCount int            `json:"interval_count,omitempty"`
	IntervalUnit  RecurringTerms `json:"interval_unit,omitempty"`
	StartDate     *time.Time     `json:"start_date,omitempty"`

	// EVENT_BASED upstream event
	EventSource TriggerEventSource `json:"event_source,omitempty"`

	// CONDITIONAL predicate
	Metric    ConditionMetric    `json:"metric,omitempty"`
	Operator  ComparisonOperator `json:"operator,omitempty"`
	Threshold decimal.Decimal    `json:"threshold"`

	// EVENT_BASED and CONDITIONAL are generator-scoped
	GeneratorId int `json:"generator_id,omitempty"`

	// task template applied on fire
	TaskType   string `json:"task_type,omitempty"`
	TaskTitle  string `json:"task_title,omitempty"`
	DueInDays  int    `json:"due_in_days,omitempty"`
	AssignedTo *int   `json:"assigned_to,omitempty"`
}

// Value implements the driver.Valuer interface
func (c TriggerConfig) Value() (driver.Value, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface
func (c *TriggerConfig) Scan(value interface{}) error {
	if value == nil {
		*c = TriggerConfig{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return fmt.Errorf("cannot convert %T to TriggerConfig", value)
	}
}

// NextFrom advances a DYNAMIC schedule one interval past the anchor.
// Anchoring on the previous next date (not on "now") keeps the cadence
// stable when a pass runs late; missed cycles roll forward one per pass.
func (c TriggerConfig) NextFrom(anchor time.Time) time.Time {
	count := c.IntervalCount
	if count < 1 {
		count = 1
	}
	switch c.IntervalUnit {
	case RecurringTermsDay:
		return anchor.AddDate(0, 0, count)
	case RecurringTermsWeek:
		return anchor.AddDate(0, 0, 7*count)
	case RecurringTermsMonth:
		return anchor.AddDate(0, count, 0)
	case RecurringTermsYear:
		return anchor.AddDate(count, 0, 0)
	}
	return anchor.AddDate(0, 0, count)
}

func sameSchedule(a, b TriggerConfig) bool {
	if a.IntervalCount != b.IntervalCount || a.IntervalUnit != b.IntervalUnit {
		return false
	}
	if (a.StartDate == nil) != (b.StartDate == nil) {
		return false
	}
	if a.StartDate != nil && !a.StartDate.Equal(*b.StartDate) {
		return false
	}
	return true
}

// RecurrenceTrigger materializes recurring work. The trigger engine is the
// only writer of the execution bookkeeping fields (next_execution_date,
// last_executed_at, execution_count); admin CRUD owns the rest.
type RecurrenceTrigger struct {
	ID                int           `gorm:"primary_key" json:"id"`
	CompanyId         string        `gorm:"size:64;not null;index" json:"company_id"`
	SiteId            *int          `gorm:"index" json:"site_id"`
	ObligationId      *int          `gorm:"index" json:"obligation_id"`
	Name              string        `gorm:"size:255;not null" json:"name" binding:"required"`
	Description       string        `gorm:"type:text" json:"description"`
	TriggerType       TriggerType   `gorm:"size:20;not null" json:"trigger_type" binding:"required"`
	TriggerConfig     TriggerConfig `gorm:"type:jsonb;not null" json:"trigger_config"`
	IsActive          *bool         `gorm:"index;not null;default:true" json:"is_active"`
	NextExecutionDate *time.Time    `gorm:"index" json:"next_execution_date"`
	LastExecutedAt    *time.Time    `json:"last_executed_at"`
	ExecutionCount    int           `gorm:"not null;default:0" json:"execution_count"`
	CreatedAt         time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewRecurrenceTrigger struct {
	SiteId        *int          `json:"site_id"`
	ObligationId  *int          `json:"obligation_id"`
	Name          string        `json:"name" binding:"required"`
	Description   string        `json:"description"`
	TriggerType   string        `json:"trigger_type" binding:"required"`
	TriggerConfig TriggerConfig `json:"trigger_config"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewRecurrenceTrigger) validate(ctx context.Context, companyId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[RecurrenceTrigger](ctx, companyId, id); err != nil {
			return err
		}
	}

	triggerType, err := ParseTriggerType(input.TriggerType)
	if err != nil {
		return err
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

	cfg := input.TriggerConfig
	switch triggerType {
	case TriggerTypeDynamic:
		if cfg.IntervalCount < 1 {
			return errors.New("interval count must be at least 1")
		}
		if _, err := ParseRecurringTerms(string(cfg.IntervalUnit)); err != nil {
			return err
		}
	case TriggerTypeEventBased:
		if _, err := ParseTriggerEventSource(string(cfg.EventSource)); err != nil {
			return err
		}
		if cfg.GeneratorId <= 0 {
			return errors.New("generator id is required for event based triggers")
		}
		if err := utils.ValidateResourceId[Generator](ctx, companyId, cfg.GeneratorId); err != nil {
			return errors.New("generator not found")
		}
	case TriggerTypeConditional:
		if _, err := ParseConditionMetric(string(cfg.Metric)); err != nil {
			return err
		}
		if _, err := ParseComparisonOperator(string(cfg.Operator)); err != nil {
			return err
		}
		if cfg.GeneratorId <= 0 {
			return errors.New("generator id is required for conditional triggers")
		}
		if err := utils.ValidateResourceId[Generator](ctx, companyId, cfg.GeneratorId); err != nil {
			return errors.New("generator not found")
		}
	}
	return nil
}

func CreateRecurrenceTrigger(ctx context.Context, input *NewRecurrenceTrigger) (*RecurrenceTrigger, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, 0); err != nil {
		return nil, err
	}

	triggerType, _ := ParseTriggerType(input.TriggerType)

	trigger := RecurrenceTrigger{
		CompanyId:     companyId,
		SiteId:        input.SiteId,
		ObligationId:  input.ObligationId,
		Name:          input.Name,
		Description:   input.Description,
		TriggerType:   triggerType,
		TriggerConfig: input.TriggerConfig,
		IsActive:      utils.NewTrue(),
	}

	// DYNAMIC triggers start counting immediately: the first fire lands on
	// the configured start date, or one full interval from creation.
	if triggerType == TriggerTypeDynamic {
		next := input.TriggerConfig.NextFrom(time.Now())
		if input.TriggerConfig.StartDate != nil {
			next = *input.TriggerConfig.StartDate
		}
		trigger.NextExecutionDate = &next
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&trigger).Error
	if err != nil {
		return nil, err
	}

	return &trigger, nil
}

func UpdateRecurrenceTrigger(ctx context.Context, id int, input *NewRecurrenceTrigger) (*RecurrenceTrigger, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, id); err != nil {
		return nil, err
	}

	trigger, err := utils.FetchModel[RecurrenceTrigger](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	triggerType, _ := ParseTriggerType(input.TriggerType)
	if triggerType != trigger.TriggerType {
		return nil, errors.New("trigger type cannot be changed")
	}

	updates := map[string]interface{}{
		"SiteId":        input.SiteId,
		"ObligationId":  input.ObligationId,
		"Name":          input.Name,
		"Description":   input.Description,
		"TriggerConfig": input.TriggerConfig,
	}

	// a schedule change re-anchors the next fire; unrelated edits keep it
	if triggerType == TriggerTypeDynamic && !sameSchedule(trigger.TriggerConfig, input.TriggerConfig) {
		next := input.TriggerConfig.NextFrom(time.Now())
		if input.TriggerConfig.StartDate != nil {
			next = *input.TriggerConfig.StartDate
		}
		updates["NextExecutionDate"] = &next
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&trigger).Updates(updates).Error
	if err != nil {
		return nil, err
	}

	return trigger, nil
}

func DeleteRecurrenceTrigger(ctx context.Context, id int) (*RecurrenceTrigger, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	result, err := utils.FetchModel[RecurrenceTrigger](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	// tasks already materialized keep their trigger_id for traceability
	db := config.GetDB()
	err = db.WithContext(ctx).Delete(&result).Error
	if err != nil {
		return nil, err
	}

	return result, nil
}

func ToggleActiveRecurrenceTrigger(ctx context.Context, id int, isActive bool) (*RecurrenceTrigger, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	return ToggleActiveModel[RecurrenceTrigger](ctx, companyId, id, isActive)
}

func GetRecurrenceTrigger(ctx context.Context, id int) (*RecurrenceTrigger, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	// triggers are not redis-cached; the engine always reads fresh state
	return utils.FetchModel[RecurrenceTrigger](ctx, companyId, id)
}

func GetRecurrenceTriggers(ctx context.Context, siteId *int, obligationId *int, triggerType *string) ([]*RecurrenceTrigger, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	var results []*RecurrenceTrigger

	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if siteId != nil && *siteId > 0 {
		dbCtx = dbCtx.Where("site_id = ?", *siteId)
	}
	if obligationId != nil && *obligationId > 0 {
		dbCtx = dbCtx.Where("obligation_id = ?", *obligationId)
	}
	if triggerType != nil && *triggerType != "" {
		parsed, err := ParseTriggerType(*triggerType)
		if err != nil {
			return nil, err
		}
		dbCtx = dbCtx.Where("trigger_type = ?", parsed)
	}

	// db query
	err := dbCtx.Order("id").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ListActiveRecurrenceTriggers returns the triggers an engine pass must
// evaluate, optionally narrowed to a company and site.
func ListActiveRecurrenceTriggers(ctx context.Context, companyId string, siteId *int) ([]RecurrenceTrigger, error) {

	db := config.GetDB()
	var results []RecurrenceTrigger

	dbCtx := db.WithContext(ctx).Where("is_active = ?", true)
	if companyId != "" {
		dbCtx = dbCtx.Where("company_id = ?", companyId)
	}
	if siteId != nil && *siteId > 0 {
		dbCtx = dbCtx.Where("site_id = ?", *siteId)
	}

	// db query
	err := dbCtx.Order("id").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
