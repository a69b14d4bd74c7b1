package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ClockEntityType identifies which source table a compliance clock row was
// projected from. The set is closed; adding a type means adding a source
// adapter as well.
type ClockEntityType string

const (
	ClockEntityTypeObligation        ClockEntityType = "obligation"
	ClockEntityTypeDeadline          ClockEntityType = "deadline"
	ClockEntityTypeContractorLicence ClockEntityType = "contractor_licence"
	ClockEntityTypeGenerator         ClockEntityType = "generator"
)

// AllClockEntityTypes returns the registered types in reconciliation order.
func AllClockEntityTypes() []ClockEntityType {
	return []ClockEntityType{
		ClockEntityTypeObligation,
		ClockEntityTypeDeadline,
		ClockEntityTypeContractorLicence,
		ClockEntityTypeGenerator,
	}
}

func ParseClockEntityType(s string) (ClockEntityType, error) {
	clockEntityTypes := map[string]ClockEntityType{
		"obligation":         ClockEntityTypeObligation,
		"deadline":           ClockEntityTypeDeadline,
		"contractor_licence": ClockEntityTypeContractorLicence,
		"generator":          ClockEntityTypeGenerator,
	}
	t, ok := clockEntityTypes[s]
	if !ok {
		return "", errors.New("invalid clock entity type")
	}
	return t, nil
}

type ClockCriticality string

const (
	ClockCriticalityRed   ClockCriticality = "RED"
	ClockCriticalityAmber ClockCriticality = "AMBER"
	ClockCriticalityGreen ClockCriticality = "GREEN"
)

type ClockStatus string

const (
	ClockStatusActive  ClockStatus = "ACTIVE"
	ClockStatusOverdue ClockStatus = "OVERDUE"
)

// --- Source entity lifecycles ---
// Only entities in an "open" lifecycle state keep a clock row; terminal
// states cause the row to be reaped on the next pass.

type ObligationStatus string

const (
	ObligationStatusPending       ObligationStatus = "pending"
	ObligationStatusInProgress    ObligationStatus = "in_progress"
	ObligationStatusCompleted     ObligationStatus = "completed"
	ObligationStatusOverdue       ObligationStatus = "overdue"
	ObligationStatusNotApplicable ObligationStatus = "not_applicable"
)

func OpenObligationStatuses() []ObligationStatus {
	return []ObligationStatus{
		ObligationStatusPending,
		ObligationStatusInProgress,
		ObligationStatusOverdue,
	}
}

type DeadlineStatus string

const (
	DeadlineStatusOpen      DeadlineStatus = "open"
	DeadlineStatusCompleted DeadlineStatus = "completed"
	DeadlineStatusCancelled DeadlineStatus = "cancelled"
)

type LicenceStatus string

const (
	LicenceStatusActive    LicenceStatus = "active"
	LicenceStatusSuspended LicenceStatus = "suspended"
	LicenceStatusExpired   LicenceStatus = "expired"
	LicenceStatusRevoked   LicenceStatus = "revoked"
)

// A suspended licence still counts toward its expiry, so it keeps a clock.
func OpenLicenceStatuses() []LicenceStatus {
	return []LicenceStatus{LicenceStatusActive, LicenceStatusSuspended}
}

type GeneratorStatus string

const (
	GeneratorStatusActive         GeneratorStatus = "active"
	GeneratorStatusDecommissioned GeneratorStatus = "decommissioned"
)

type EvidenceStatus string

const (
	EvidenceStatusActive      EvidenceStatus = "active"
	EvidenceStatusSuperseded  EvidenceStatus = "superseded"
	EvidenceStatusInvalidated EvidenceStatus = "invalidated"
)

// --- Recurrence triggers ---

type TriggerType string

const (
	TriggerTypeDynamic     TriggerType = "DYNAMIC"
	TriggerTypeEventBased  TriggerType = "EVENT_BASED"
	TriggerTypeConditional TriggerType = "CONDITIONAL"
)

func ParseTriggerType(s string) (TriggerType, error) {
	triggerTypes := map[string]TriggerType{
		"DYNAMIC":     TriggerTypeDynamic,
		"EVENT_BASED": TriggerTypeEventBased,
		"CONDITIONAL": TriggerTypeConditional,
	}
	t, ok := triggerTypes[s]
	if !ok {
		return "", errors.New("invalid trigger type")
	}
	return t, nil
}

type RecurringTerms string

const (
	RecurringTermsDay   RecurringTerms = "D"
	RecurringTermsWeek  RecurringTerms = "W"
	RecurringTermsMonth RecurringTerms = "M"
	RecurringTermsYear  RecurringTerms = "Y"
)

func ParseRecurringTerms(s string) (RecurringTerms, error) {
	recurringTerms := map[string]RecurringTerms{
		"D": RecurringTermsDay,
		"W": RecurringTermsWeek,
		"M": RecurringTermsMonth,
		"Y": RecurringTermsYear,
	}
	t, ok := recurringTerms[s]
	if !ok {
		return "", errors.New("invalid recurringTerms")
	}
	return t, nil
}

// TriggerEventSource names the upstream event stream an EVENT_BASED trigger
// watches. Closed set, dispatched in the trigger engine.
type TriggerEventSource string

const (
	TriggerEventSourceStackTestCompleted TriggerEventSource = "stack_test_completed"
)

func ParseTriggerEventSource(s string) (TriggerEventSource, error) {
	eventSources := map[string]TriggerEventSource{
		"stack_test_completed": TriggerEventSourceStackTestCompleted,
	}
	t, ok := eventSources[s]
	if !ok {
		return "", errors.New("invalid trigger event source")
	}
	return t, nil
}

type ComparisonOperator string

const (
	ComparisonOperatorGt  ComparisonOperator = "GT"
	ComparisonOperatorGte ComparisonOperator = "GTE"
	ComparisonOperatorLt  ComparisonOperator = "LT"
	ComparisonOperatorLte ComparisonOperator = "LTE"
	ComparisonOperatorEq  ComparisonOperator = "EQ"
)

func ParseComparisonOperator(s string) (ComparisonOperator, error) {
	operators := map[string]ComparisonOperator{
		"GT":  ComparisonOperatorGt,
		"GTE": ComparisonOperatorGte,
		"LT":  ComparisonOperatorLt,
		"LTE": ComparisonOperatorLte,
		"EQ":  ComparisonOperatorEq,
	}
	op, ok := operators[s]
	if !ok {
		return "", errors.New("invalid comparison operator")
	}
	return op, nil
}

// ConditionMetric names a live measurement a CONDITIONAL trigger compares
// against its threshold. Resolved in the trigger engine's metric registry.
type ConditionMetric string

const (
	ConditionMetricRunHoursYtd        ConditionMetric = "run_hours_ytd"
	ConditionMetricRunHoursPctOfLimit ConditionMetric = "run_hours_pct_of_limit"
)

func ParseConditionMetric(s string) (ConditionMetric, error) {
	metrics := map[string]ConditionMetric{
		"run_hours_ytd":          ConditionMetricRunHoursYtd,
		"run_hours_pct_of_limit": ConditionMetricRunHoursPctOfLimit,
	}
	m, ok := metrics[s]
	if !ok {
		return "", errors.New("invalid condition metric")
	}
	return m, nil
}

type RecurringTaskStatus string

const (
	RecurringTaskStatusPending    RecurringTaskStatus = "PENDING"
	RecurringTaskStatusInProgress RecurringTaskStatus = "IN_PROGRESS"
	RecurringTaskStatusCompleted  RecurringTaskStatus = "COMPLETED"
	RecurringTaskStatusOverdue    RecurringTaskStatus = "OVERDUE"
	RecurringTaskStatusCancelled  RecurringTaskStatus = "CANCELLED"
)

func ParseRecurringTaskStatus(s string) (RecurringTaskStatus, error) {
	taskStatuses := map[string]RecurringTaskStatus{
		"PENDING":     RecurringTaskStatusPending,
		"IN_PROGRESS": RecurringTaskStatusInProgress,
		"COMPLETED":   RecurringTaskStatusCompleted,
		"OVERDUE":     RecurringTaskStatusOverdue,
		"CANCELLED":   RecurringTaskStatusCancelled,
	}
	st, ok := taskStatuses[s]
	if !ok {
		return "", errors.New("invalid recurring task status")
	}
	return st, nil
}

// --- SLA ---

type SlaStatus string

const (
	SlaStatusCompliant SlaStatus = "COMPLIANT"
	SlaStatusBreached  SlaStatus = "BREACHED"
)

// --- Notifications ---

type NotificationKind string

const (
	NotificationKindEvidenceReminder     NotificationKind = "evidence_reminder"
	NotificationKindEvidenceExpired      NotificationKind = "evidence_expired"
	NotificationKindSlaBreach            NotificationKind = "sla_breach"
	NotificationKindRecurringTaskCreated NotificationKind = "recurring_task_created"
)

func ParseNotificationKind(s string) (NotificationKind, error) {
	kinds := map[string]NotificationKind{
		"evidence_reminder":      NotificationKindEvidenceReminder,
		"evidence_expired":       NotificationKindEvidenceExpired,
		"sla_breach":             NotificationKindSlaBreach,
		"recurring_task_created": NotificationKindRecurringTaskCreated,
	}
	k, ok := kinds[s]
	if !ok {
		return "", errors.New("invalid notification kind")
	}
	return k, nil
}

// --- Users ---

type UserRole string

const (
	UserRoleAdmin  UserRole = "A"
	UserRoleOwner  UserRole = "O"
	UserRoleMember UserRole = "M"
)

// --- Shared column types ---

// IntList stores an ordered set of ints as a jsonb column
// (reminder thresholds and the sent ledger on evidence tracking rows).
type IntList []int

// Value implements the driver.Valuer interface
func (l IntList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]int(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface
func (l *IntList) Scan(value interface{}) error {
	if value == nil {
		*l = IntList{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, (*[]int)(l))
	case string:
		return json.Unmarshal([]byte(v), (*[]int)(l))
	default:
		return fmt.Errorf("cannot convert %T to IntList", value)
	}
}

func (l IntList) Contains(target int) bool {
	for _, v := range l {
		if v == target {
			return true
		}
	}
	return false
}

type MyDateString time.Time

func (t MyDateString) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(time.Time(t).Format("2006-01-02T15:04:05"))), nil
}

// Parse the string into time.Time object
func (t *MyDateString) UnmarshalJSON(b []byte) error {
	str, err := strconv.Unquote(string(b))
	if err != nil {
		return errors.New("MyDateString must be string")
	}

	// Parse the date string into a time.Time object
	localTime, err := time.Parse("2006-01-02T15:04:05", str)
	if err != nil {
		return errors.New("error parsing datetime")
	}
	*t = MyDateString(localTime)

	return nil
}

func (t *MyDateString) StartOfDayUTCTime(timezone string) error {
	// do nothing if the pointer is nil
	if t == nil {
		return nil
	}

	localTime := time.Time(*t)

	if timezone == "" {
		timezone = "Europe/London"
	}

	// Load the location for the given timezone
	location, err := time.LoadLocation(timezone)
	if err != nil {
		fmt.Println("Error loading location:", err)
		return err
	}

	// Convert the start of the day local time to the specified timezone
	localTimeInZone := time.Date(
		localTime.Year(), localTime.Month(), localTime.Day(),
		0, 0, 0, 0,
		location,
	)

	// Convert the time to UTC
	utcTime := localTimeInZone.In(time.UTC)
	*t = MyDateString(utcTime)

	return nil
}

func (t *MyDateString) EndOfDayUTCTime(timezone string) error {
	// do nothing if the pointer is nil
	if t == nil {
		return nil
	}

	localTime := time.Time(*t)

	if timezone == "" {
		timezone = "Europe/London"
	}

	// Load the location for the given timezone
	location, err := time.LoadLocation(timezone)
	if err != nil {
		fmt.Println("Error loading location:", err)
		return err
	}

	// Convert the end of the day local time to the specified timezone
	localTimeInZone := time.Date(
		localTime.Year(), localTime.Month(), localTime.Day(),
		23, 59, 59, 999, // Max nanoseconds
		location,
	)

	// Convert the time to UTC
	utcTime := localTimeInZone.In(time.UTC)
	*t = MyDateString(utcTime)

	return nil
}

// Value implements the driver.Valuer interface
func (t MyDateString) Value() (driver.Value, error) {
	return time.Time(t), nil
}

// Scan implements the sql.Scanner interface
func (t *MyDateString) Scan(value interface{}) error {
	if value == nil {
		*t = MyDateString(time.Time{})
		return nil
	}
	switch v := value.(type) {
	case time.Time:
		*t = MyDateString(v)
	default:
		return fmt.Errorf("cannot convert %T to MyDateString", value)
	}
	return nil
}

func (t *MyDateString) SetDefaultNowIfNil() *MyDateString {
	if t == nil {
		now := MyDateString(time.Now())
		return &now
	}
	return t
}
