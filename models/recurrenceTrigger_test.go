package models

import (
	"testing"
	"time"
)

func TestNextFromAdvancesOneInterval(t *testing.T) {
	anchor := time.Date(2026, 1, 15, 6, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		cfg  TriggerConfig
		want time.Time
	}{
		{"daily", TriggerConfig{IntervalCount: 1, IntervalUnit: RecurringTermsDay}, anchor.AddDate(0, 0, 1)},
		{"every 3 days", TriggerConfig{IntervalCount: 3, IntervalUnit: RecurringTermsDay}, anchor.AddDate(0, 0, 3)},
		{"weekly", TriggerConfig{IntervalCount: 1, IntervalUnit: RecurringTermsWeek}, anchor.AddDate(0, 0, 7)},
		{"fortnightly", TriggerConfig{IntervalCount: 2, IntervalUnit: RecurringTermsWeek}, anchor.AddDate(0, 0, 14)},
		{"monthly", TriggerConfig{IntervalCount: 1, IntervalUnit: RecurringTermsMonth}, time.Date(2026, 2, 15, 6, 0, 0, 0, time.UTC)},
		{"quarterly", TriggerConfig{IntervalCount: 3, IntervalUnit: RecurringTermsMonth}, time.Date(2026, 4, 15, 6, 0, 0, 0, time.UTC)},
		{"yearly", TriggerConfig{IntervalCount: 1, IntervalUnit: RecurringTermsYear}, time.Date(2027, 1, 15, 6, 0, 0, 0, time.UTC)},
		{"zero count treated as one", TriggerConfig{IntervalCount: 0, IntervalUnit: RecurringTermsDay}, anchor.AddDate(0, 0, 1)},
		{"negative count treated as one", TriggerConfig{IntervalCount: -2, IntervalUnit: RecurringTermsWeek}, anchor.AddDate(0, 0, 7)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.cfg.NextFrom(anchor)
			if !got.Equal(tc.want) {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

// A pass that runs late advances from the scheduled date, not from the fire
// time, so the cadence never drifts.
func TestNextFromKeepsCadenceWhenPassRunsLate(t *testing.T) {
	cfg := TriggerConfig{IntervalCount: 1, IntervalUnit: RecurringTermsMonth}
	scheduled := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// the engine fires days late; the anchor is still the scheduled date
	next := cfg.NextFrom(scheduled)
	want := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("got %s, want %s", next, want)
	}

	// and the chain stays on the first of the month
	next = cfg.NextFrom(next)
	want = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("got %s, want %s", next, want)
	}
}

func TestSameSchedule(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	base := TriggerConfig{IntervalCount: 1, IntervalUnit: RecurringTermsMonth, StartDate: &start}

	same := base
	same.TaskTitle = "renamed task"
	same.DueInDays = 21
	if !sameSchedule(base, same) {
		t.Fatal("task template edits must not count as a schedule change")
	}

	differentCount := base
	differentCount.IntervalCount = 2
	if sameSchedule(base, differentCount) {
		t.Fatal("interval count change not detected")
	}

	differentUnit := base
	differentUnit.IntervalUnit = RecurringTermsWeek
	if sameSchedule(base, differentUnit) {
		t.Fatal("interval unit change not detected")
	}

	droppedStart := base
	droppedStart.StartDate = nil
	if sameSchedule(base, droppedStart) {
		t.Fatal("start date removal not detected")
	}

	movedStart := base
	later := start.AddDate(0, 1, 0)
	movedStart.StartDate = &later
	if sameSchedule(base, movedStart) {
		t.Fatal("start date move not detected")
	}
}

func TestBuildRecurringTaskFromTemplate(t *testing.T) {
	siteId := 4
	assignee := 12
	trigger := RecurrenceTrigger{
		ID:          9,
		CompanyId:   "co-1",
		SiteId:      &siteId,
		Name:        "Monthly discharge sampling",
		TriggerType: TriggerTypeDynamic,
		TriggerConfig: TriggerConfig{
			TaskType:   "sampling",
			TaskTitle:  "Collect discharge samples",
			DueInDays:  14,
			AssignedTo: &assignee,
		},
	}
	firedAt := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)

	task := BuildRecurringTask(&trigger, firedAt)
	if task.Title != "Collect discharge samples" || task.TaskType != "sampling" {
		t.Fatalf("got title=%q type=%q", task.Title, task.TaskType)
	}
	if task.TriggerId != 9 || task.CompanyId != "co-1" || task.SiteId == nil || *task.SiteId != 4 {
		t.Fatalf("task did not inherit trigger scope: %+v", task)
	}
	if !task.DueDate.Equal(firedAt.AddDate(0, 0, 14)) {
		t.Fatalf("got due date %s", task.DueDate)
	}
	if task.AssignedTo == nil || *task.AssignedTo != 12 {
		t.Fatal("assignee not carried over")
	}
	if task.Status != RecurringTaskStatusPending {
		t.Fatalf("got status %s", task.Status)
	}
}

func TestBuildRecurringTaskFallbacks(t *testing.T) {
	trigger := RecurrenceTrigger{
		ID:          3,
		CompanyId:   "co-1",
		Name:        "Stack test follow-up",
		TriggerType: TriggerTypeEventBased,
	}
	firedAt := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)

	task := BuildRecurringTask(&trigger, firedAt)
	if task.Title != "Stack test follow-up" {
		t.Fatalf("empty template title must fall back to trigger name, got %q", task.Title)
	}
	if task.TaskType != string(TriggerTypeEventBased) {
		t.Fatalf("got task type %q", task.TaskType)
	}
	if !task.DueDate.Equal(firedAt.AddDate(0, 0, 7)) {
		t.Fatalf("default due window: got %s", task.DueDate)
	}
	if task.AssignedTo != nil {
		t.Fatal("unassigned template must stay unassigned")
	}
}

func TestBuildRecurringTaskTitlePlaceholders(t *testing.T) {
	trigger := RecurrenceTrigger{
		ID:          5,
		CompanyId:   "co-1",
		Name:        "Waste return",
		TriggerType: TriggerTypeDynamic,
		TriggerConfig: TriggerConfig{
			TaskTitle: "File {{.Month}} waste return",
		},
	}
	firedAt := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)

	task := BuildRecurringTask(&trigger, firedAt)
	if task.Title != "File May 2026 waste return" {
		t.Fatalf("got title %q", task.Title)
	}

	trigger.TriggerConfig.TaskTitle = "Review {{.Broken quarterly"
	task = BuildRecurringTask(&trigger, firedAt)
	if task.Title != "Review {{.Broken quarterly" {
		t.Fatalf("malformed template must keep the raw title, got %q", task.Title)
	}
}

func TestRecurringTaskTransitions(t *testing.T) {
	allowed := []struct{ from, to RecurringTaskStatus }{
		{RecurringTaskStatusPending, RecurringTaskStatusInProgress},
		{RecurringTaskStatusPending, RecurringTaskStatusCompleted},
		{RecurringTaskStatusPending, RecurringTaskStatusCancelled},
		{RecurringTaskStatusInProgress, RecurringTaskStatusCompleted},
		{RecurringTaskStatusInProgress, RecurringTaskStatusCancelled},
		{RecurringTaskStatusOverdue, RecurringTaskStatusInProgress},
		{RecurringTaskStatusOverdue, RecurringTaskStatusCompleted},
		{RecurringTaskStatusOverdue, RecurringTaskStatusCancelled},
	}
	for _, tc := range allowed {
		if !canTransitionRecurringTask(tc.from, tc.to) {
			t.Fatalf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}

	blocked := []struct{ from, to RecurringTaskStatus }{
		{RecurringTaskStatusCompleted, RecurringTaskStatusInProgress},
		{RecurringTaskStatusCompleted, RecurringTaskStatusPending},
		{RecurringTaskStatusCancelled, RecurringTaskStatusCompleted},
		{RecurringTaskStatusInProgress, RecurringTaskStatusPending},
		{RecurringTaskStatusPending, RecurringTaskStatusOverdue},
	}
	for _, tc := range blocked {
		if canTransitionRecurringTask(tc.from, tc.to) {
			t.Fatalf("%s -> %s should be blocked", tc.from, tc.to)
		}
	}
}
