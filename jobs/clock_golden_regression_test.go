package jobs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/ecocomply/compliance_backend/models"
)

// Clock golden regression harness.
//
// Guards the classified output of a reconciliation pass end to end: the
// criticality and status buckets, the tenant-timezone day arithmetic and the
// per-type counters. Any change that reshuffles a clock row shows up as a
// readable JSON diff here before it shows up on a customer dashboard.
//
// Usage:
// - Run: go test ./jobs -run ClockGolden -v
// - Update snapshot: UPDATE_GOLDEN=1 go test ./jobs -run ClockGolden -v
//
// Golden files live under jobs/testdata/golden/.

type goldenClockRow struct {
	EntityType     string `json:"entity_type"`
	EntityId       int    `json:"entity_id"`
	CompanyId      string `json:"company_id"`
	SiteId         *int   `json:"site_id"`
	EntityName     string `json:"entity_name"`
	ModuleCode     string `json:"module_code"`
	TargetDate     string `json:"target_date"`
	DaysRemaining  int    `json:"days_remaining"`
	Criticality    string `json:"criticality"`
	Status         string `json:"status"`
	LastReconciled string `json:"last_reconciled_at"`
}

type goldenPassCounters struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

type clockSnapshot struct {
	AsOf    string                 `json:"as_of"`
	Pass    goldenPassCounters     `json:"pass"`
	PerType map[string]TypeSummary `json:"per_type"`
	Clocks  []goldenClockRow       `json:"clocks"`
}

func snapshotPath(name string) string {
	return filepath.Join("testdata", "golden", name+".json")
}

func loadOrUpdateGolden(t *testing.T, path string, actual any) {
	t.Helper()

	update := strings.TrimSpace(os.Getenv("UPDATE_GOLDEN")) != ""
	b, err := os.ReadFile(path)
	if err != nil {
		if update {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				t.Fatalf("mkdir golden dir: %v", err)
			}
			out, merr := json.MarshalIndent(actual, "", "  ")
			if merr != nil {
				t.Fatalf("marshal golden: %v", merr)
			}
			if werr := os.WriteFile(path, out, 0o644); werr != nil {
				t.Fatalf("write golden: %v", werr)
			}
			t.Logf("wrote golden snapshot: %s", path)
			return
		}
		t.Skipf("golden snapshot missing (%s). Re-run with UPDATE_GOLDEN=1 to generate.", path)
	}

	var expected any
	if err := json.Unmarshal(b, &expected); err != nil {
		t.Fatalf("unmarshal golden (%s): %v", path, err)
	}

	// Round-trip both sides through any so key order never matters.
	var got any
	if err := json.Unmarshal(mustMarshalJSON(t, actual), &got); err != nil {
		t.Fatalf("round-trip actual: %v", err)
	}
	if string(mustMarshalJSON(t, got)) != string(mustMarshalJSON(t, expected)) {
		prettyExpected, _ := json.MarshalIndent(expected, "", "  ")
		prettyActual, _ := json.MarshalIndent(got, "", "  ")
		t.Fatalf("clock regression mismatch\n\nEXPECTED (%s):\n%s\n\nACTUAL:\n%s\n", path, string(prettyExpected), string(prettyActual))
	}
}

func mustMarshalJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal json: %v", err)
	}
	return b
}

func normalizeClocks(store *fakeClockStore) []goldenClockRow {
	out := make([]goldenClockRow, 0, len(store.rows))
	for _, row := range store.rows {
		out = append(out, goldenClockRow{
			EntityType:     string(row.EntityType),
			EntityId:       row.EntityId,
			CompanyId:      row.CompanyId,
			SiteId:         row.SiteId,
			EntityName:     row.EntityName,
			ModuleCode:     row.ModuleCode,
			TargetDate:     row.TargetDate.UTC().Format(time.RFC3339),
			DaysRemaining:  row.DaysRemaining,
			Criticality:    string(row.Criticality),
			Status:         string(row.Status),
			LastReconciled: row.LastReconciledAt.UTC().Format(time.RFC3339),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityType != out[j].EntityType {
			return out[i].EntityType < out[j].EntityType
		}
		return out[i].EntityId < out[j].EntityId
	})
	return out
}

func TestClockGolden_MixedTenantScenario(t *testing.T) {
	store := newFakeClockStore()
	siteId := 2

	obligations := &fakeAdapter{
		entityType: models.ClockEntityTypeObligation,
		rows: []SourceRow{
			obligationRow(1, 3),
			obligationRow(2, 45),
			{
				// late evening in New York is still the same civil day there
				EntityId: 3, CompanyId: "co-2",
				EntityName: "Air permit renewal", ModuleCode: "PERMITS",
				TargetDate: time.Date(2026, 5, 2, 1, 0, 0, 0, time.UTC),
			},
		},
	}
	deadlines := &fakeAdapter{
		entityType: models.ClockEntityTypeDeadline,
		rows: []SourceRow{
			{
				EntityId: 10, CompanyId: "co-1", SiteId: &siteId,
				EntityName: "Discharge return", ModuleCode: "WATER",
				TargetDate: testNow.AddDate(0, 0, -2),
			},
			{
				EntityId: 11, CompanyId: "co-1",
				EntityName: "Annual monitoring report", ModuleCode: "WATER",
				TargetDate: testNow.AddDate(0, 0, 30),
			},
		},
	}
	licences := &fakeAdapter{
		entityType: models.ClockEntityTypeContractorLicence,
		rows: []SourceRow{
			{
				EntityId: 20, CompanyId: "co-1",
				EntityName: "Haulage Co (WML-99)", ModuleCode: "WASTE",
				TargetDate: testNow.AddDate(0, 0, 14),
			},
			{
				// WASTE is switched off for co-2; this row must never surface
				EntityId: 21, CompanyId: "co-2",
				EntityName: "Borderline Haulage (WML-12)", ModuleCode: "WASTE",
				TargetDate: testNow.AddDate(0, 0, 10),
			},
		},
	}
	generators := &fakeAdapter{
		entityType: models.ClockEntityTypeGenerator,
		rows: []SourceRow{
			{
				EntityId: 30, CompanyId: "co-1", SiteId: &siteId,
				EntityName: "Standby Gen A", ModuleCode: "GENERATORS",
				TargetDate: testNow.AddDate(0, 0, 31),
			},
		},
	}

	tenants := fakeTenants{
		"co-1": {Timezone: "UTC", Modules: map[string]bool{"PERMITS": true, "WATER": true, "GENERATORS": true, "WASTE": true}},
		"co-2": {Timezone: "America/New_York", Modules: map[string]bool{"PERMITS": true, "WASTE": false}},
	}
	reconciler, _ := newTestReconciler(store, tenants, obligations, deadlines, licences, generators)

	if _, err := reconciler.Run(context.Background(), Scope{}, ""); err != nil {
		t.Fatal(err)
	}

	// A cycle of real life between passes: one obligation completes, the
	// overdue discharge return gets remediated with a fresh date.
	obligations.rows = []SourceRow{obligations.rows[0], obligations.rows[2]}
	deadlines.rows[0].TargetDate = testNow.AddDate(0, 0, 12)

	result, err := reconciler.Run(context.Background(), Scope{}, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected pass errors: %v", result.Errors)
	}

	snap := clockSnapshot{
		AsOf: testNow.UTC().Format(time.RFC3339),
		Pass: goldenPassCounters{
			Created: result.Created,
			Updated: result.Updated,
			Deleted: result.Deleted,
			Failed:  result.Failed,
		},
		PerType: result.PerType,
		Clocks:  normalizeClocks(store),
	}

	loadOrUpdateGolden(t, snapshotPath("clock_mixed_pass"), snap)
}
