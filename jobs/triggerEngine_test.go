package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ecocomply/compliance_backend/models"
)

func TestCompareMetric(t *testing.T) {
	tests := []struct {
		name      string
		value     decimal.Decimal
		op        models.ComparisonOperator
		threshold decimal.Decimal
		want      bool
	}{
		{"gt above", decimal.NewFromFloat(80.5), models.ComparisonOperatorGt, decimal.NewFromInt(75), true},
		{"gt at threshold", decimal.NewFromInt(75), models.ComparisonOperatorGt, decimal.NewFromInt(75), false},
		{"gte at threshold", decimal.NewFromInt(75), models.ComparisonOperatorGte, decimal.NewFromInt(75), true},
		{"gte below", decimal.NewFromInt(60), models.ComparisonOperatorGte, decimal.NewFromInt(75), false},
		{"lt below", decimal.NewFromInt(60), models.ComparisonOperatorLt, decimal.NewFromInt(75), true},
		{"lt at threshold", decimal.NewFromInt(75), models.ComparisonOperatorLt, decimal.NewFromInt(75), false},
		{"lte at threshold", decimal.NewFromInt(75), models.ComparisonOperatorLte, decimal.NewFromInt(75), true},
		{"lte above", decimal.NewFromFloat(75.01), models.ComparisonOperatorLte, decimal.NewFromInt(75), false},
		{"eq equal", decimal.NewFromInt(75), models.ComparisonOperatorEq, decimal.NewFromInt(75), true},
		{"eq unequal", decimal.NewFromFloat(74.999), models.ComparisonOperatorEq, decimal.NewFromInt(75), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := compareMetric(tc.value, tc.op, tc.threshold)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Fatalf("%s %s %s: got %v, want %v", tc.value, tc.op, tc.threshold, got, tc.want)
			}
		})
	}
}

// Run-hour sums are decimal so threshold checks never wobble on float
// representation.
func TestCompareMetricExactAccumulation(t *testing.T) {
	sum := decimal.NewFromFloat(0.1).Add(decimal.NewFromFloat(0.2))
	ok, err := compareMetric(sum, models.ComparisonOperatorEq, decimal.NewFromFloat(0.3))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatalf("0.1 + 0.2 != 0.3 under decimal: %s", sum)
	}
}

func TestCompareMetricUnknownOperator(t *testing.T) {
	_, err := compareMetric(decimal.NewFromInt(1), "BETWEEN", decimal.NewFromInt(2))
	if err == nil {
		t.Fatal("expected error for unknown operator")
	}
}

func TestEvaluateDynamicTrigger(t *testing.T) {
	engine := &TriggerEngine{}
	next := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before next date", next.Add(-time.Minute), false},
		{"exactly at next date", next, true},
		{"past next date", next.Add(48 * time.Hour), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			trigger := models.RecurrenceTrigger{
				TriggerType:       models.TriggerTypeDynamic,
				NextExecutionDate: &next,
			}
			got, err := engine.evaluate(context.Background(), &trigger, tc.now, time.UTC)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Fatalf("now=%s next=%s: got %v, want %v", tc.now, next, got, tc.want)
			}
		})
	}
}

func TestEvaluateDynamicTriggerWithoutNextDate(t *testing.T) {
	engine := &TriggerEngine{}
	trigger := models.RecurrenceTrigger{TriggerType: models.TriggerTypeDynamic}

	fired, err := engine.evaluate(context.Background(), &trigger, time.Now(), time.UTC)
	if err == nil {
		t.Fatal("expected error for dynamic trigger without next execution date")
	}
	if fired {
		t.Fatal("broken trigger must not fire")
	}
}

func TestEvaluateUnknownEventSource(t *testing.T) {
	engine := &TriggerEngine{}
	trigger := models.RecurrenceTrigger{
		TriggerType:   models.TriggerTypeEventBased,
		TriggerConfig: models.TriggerConfig{EventSource: "permit_renewed"},
	}

	fired, err := engine.evaluate(context.Background(), &trigger, time.Now(), time.UTC)
	if err == nil {
		t.Fatal("expected error for unknown event source")
	}
	if fired {
		t.Fatal("unevaluable trigger must not fire")
	}
}

func TestEvaluateUnknownTriggerType(t *testing.T) {
	engine := &TriggerEngine{}
	trigger := models.RecurrenceTrigger{TriggerType: "CRON"}

	fired, err := engine.evaluate(context.Background(), &trigger, time.Now(), time.UTC)
	if err == nil {
		t.Fatal("expected error for unknown trigger type")
	}
	if fired {
		t.Fatal("unevaluable trigger must not fire")
	}
}
