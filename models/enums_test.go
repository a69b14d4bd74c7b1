package models

import "testing"

func TestParseClockEntityType(t *testing.T) {
	for _, entityType := range AllClockEntityTypes() {
		parsed, err := ParseClockEntityType(string(entityType))
		if err != nil {
			t.Fatal(err)
		}
		if parsed != entityType {
			t.Fatalf("got %s, want %s", parsed, entityType)
		}
	}

	if _, err := ParseClockEntityType("permit"); err == nil {
		t.Fatal("expected error for unknown entity type")
	}
	if _, err := ParseClockEntityType("Obligation"); err == nil {
		t.Fatal("entity type keys are lower case on the wire")
	}
}

func TestParseTriggerTypeRejectsUnknown(t *testing.T) {
	if _, err := ParseTriggerType("CRON"); err == nil {
		t.Fatal("expected error for unknown trigger type")
	}
	if _, err := ParseComparisonOperator("BETWEEN"); err == nil {
		t.Fatal("expected error for unknown operator")
	}
	if _, err := ParseConditionMetric("co2_tonnes"); err == nil {
		t.Fatal("expected error for unknown metric")
	}
}

func TestIntListContains(t *testing.T) {
	ladder := IntList{90, 30, 7}
	for _, threshold := range []int{90, 30, 7} {
		if !ladder.Contains(threshold) {
			t.Fatalf("missing %d", threshold)
		}
	}
	if ladder.Contains(14) {
		t.Fatal("14 is not on the ladder")
	}
	var empty IntList
	if empty.Contains(0) {
		t.Fatal("empty list contains nothing")
	}
}
