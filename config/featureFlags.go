package config

import (
	"os"
	"strings"
)

// TriggerAdvanceOnFailure keeps a DYNAMIC recurrence trigger from refiring
// forever when its task creation keeps failing: after the failed fire is
// rolled back, next_execution_date alone is advanced to the following cycle.
//
// Set via env:
// - TRIGGER_ADVANCE_ON_FAILURE=false  (defaults to on)
func TriggerAdvanceOnFailure() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("TRIGGER_ADVANCE_ON_FAILURE")))
	return !(v == "0" || v == "false" || v == "no" || v == "n")
}

// ClockTypeEnabled allows incremental rollout of clock reconciliation per
// entity type.
//
// Set via env:
// - CLOCK_ENTITY_TYPES="obligation,deadline,contractor_licence,generator"
//
// Empty means every registered type is reconciled. Type keys are
// case-insensitive.
func ClockTypeEnabled(entityType string) bool {
	entityType = strings.ToLower(strings.TrimSpace(entityType))
	if entityType == "" {
		return false
	}
	raw := os.Getenv("CLOCK_ENTITY_TYPES")
	if strings.TrimSpace(raw) == "" {
		return true
	}
	for _, part := range strings.Split(raw, ",") {
		if strings.ToLower(strings.TrimSpace(part)) == entityType {
			return true
		}
	}
	return false
}
