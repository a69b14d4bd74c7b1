package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ecocomply/compliance_backend/config"
	"github.com/ecocomply/compliance_backend/models"
	"github.com/ecocomply/compliance_backend/utils"
	"github.com/sirupsen/logrus"
)

// ClockStore is the clock table as the reconciler sees it. The gorm-backed
// store is the only production implementation; tests swap in a fake.
type ClockStore interface {
	ListByType(ctx context.Context, entityType models.ClockEntityType, scope Scope) ([]models.ComplianceClock, error)
	Upsert(ctx context.Context, clock *models.ComplianceClock) error
	DeleteByIDs(ctx context.Context, entityType models.ClockEntityType, entityIds []int) (int64, error)
}

type gormClockStore struct{}

func (gormClockStore) ListByType(ctx context.Context, entityType models.ClockEntityType, scope Scope) ([]models.ComplianceClock, error) {
	return models.ListComplianceClocksByType(ctx, entityType, scope.CompanyId, scope.SiteId)
}

func (gormClockStore) Upsert(ctx context.Context, clock *models.ComplianceClock) error {
	return models.UpsertComplianceClock(ctx, clock)
}

func (gormClockStore) DeleteByIDs(ctx context.Context, entityType models.ClockEntityType, entityIds []int) (int64, error) {
	return models.DeleteComplianceClocksByIDs(ctx, entityType, entityIds)
}

// ReportSink persists finished pass reports. Tests capture them in memory.
type ReportSink interface {
	Save(ctx context.Context, report *models.ReconciliationReport) error
}

type gormReportSink struct{}

func (gormReportSink) Save(ctx context.Context, report *models.ReconciliationReport) error {
	return models.SaveReconciliationReport(ctx, report)
}

// CompanyInfo is the per-tenant state a pass needs: the timezone that anchors
// day arithmetic, and the module registry. Modules maps code to enabled;
// a code absent from the map was never provisioned for the tenant.
type CompanyInfo struct {
	Timezone string
	Modules  map[string]bool
}

// TenantDirectory resolves the active tenants for a pass, snapshotted once
// at pass start so every row in the pass sees the same registry.
type TenantDirectory interface {
	Snapshot(ctx context.Context, scope Scope) (map[string]CompanyInfo, error)
}

type gormTenantDirectory struct{}

func (gormTenantDirectory) Snapshot(ctx context.Context, scope Scope) (map[string]CompanyInfo, error) {
	companies, err := models.ListActiveCompanies(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	if scope.CompanyId != "" {
		dbCtx = dbCtx.Where("company_id = ?", scope.CompanyId)
	}
	var moduleRows []models.ComplianceModule
	if err := dbCtx.Find(&moduleRows).Error; err != nil {
		return nil, err
	}

	modulesByCompany := make(map[string]map[string]bool)
	for _, m := range moduleRows {
		if modulesByCompany[m.CompanyId] == nil {
			modulesByCompany[m.CompanyId] = make(map[string]bool)
		}
		modulesByCompany[m.CompanyId][m.Code] = m.IsEnabled != nil && *m.IsEnabled
	}

	out := make(map[string]CompanyInfo, len(companies))
	for _, c := range companies {
		id := c.ID.String()
		if scope.CompanyId != "" && id != scope.CompanyId {
			continue
		}
		modules := modulesByCompany[id]
		if modules == nil {
			modules = make(map[string]bool)
		}
		out[id] = CompanyInfo{Timezone: c.Timezone, Modules: modules}
	}
	return out, nil
}

// TypeSummary counts one entity type's outcome within a pass.
type TypeSummary struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// ClockPassResult is the full outcome of one reconciliation pass. It is
// returned to on-demand callers and persisted as a run report.
type ClockPassResult struct {
	PerType    map[string]TypeSummary `json:"per_type"`
	Created    int                    `json:"created"`
	Updated    int                    `json:"updated"`
	Deleted    int                    `json:"deleted"`
	Failed     int                    `json:"failed"`
	Errors     []string               `json:"errors,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
}

// ClockReconciler drives the fetch/upsert/reap cycle that keeps the
// compliance_clocks projection in step with the source tables.
type ClockReconciler struct {
	Store    ClockStore
	Tenants  TenantDirectory
	Adapters []EntitySourceAdapter
	Reports  ReportSink
	Logger   *logrus.Logger
	Now      func() time.Time
}

func NewClockReconciler() *ClockReconciler {
	return &ClockReconciler{
		Store:    gormClockStore{},
		Tenants:  gormTenantDirectory{},
		Adapters: DefaultAdapters(),
		Reports:  gormReportSink{},
		Logger:   config.GetLogger(),
		Now:      time.Now,
	}
}

// Run reconciles every enabled entity type within the scope, or just one when
// only is non-empty. Each type runs in isolation: a source fetch failure
// aborts that type and the rest still complete. The result is persisted as a
// run report; losing the report never fails the pass.
func (r *ClockReconciler) Run(ctx context.Context, scope Scope, only models.ClockEntityType) (*ClockPassResult, error) {
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)
	startedAt := r.Now()
	result := &ClockPassResult{
		PerType:   make(map[string]TypeSummary),
		StartedAt: startedAt,
	}

	tenants, err := r.Tenants.Snapshot(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("loading tenant snapshot: %w", err)
	}

	for _, adapter := range r.Adapters {
		entityType := adapter.EntityType()
		if only != "" && entityType != only {
			continue
		}
		if !config.ClockTypeEnabled(string(entityType)) {
			r.Logger.WithFields(logrus.Fields{"entity_type": entityType}).Debug("clock.reconcile.type.skipped")
			continue
		}

		summary, err := r.reconcileType(ctx, adapter, scope, tenants, startedAt)
		result.PerType[string(entityType)] = summary
		result.Created += summary.Created
		result.Updated += summary.Updated
		result.Deleted += summary.Deleted
		result.Failed += summary.Failed
		if err != nil {
			// one failing type must not starve the others
			config.LogError(r.Logger, "clockReconciler.go", "Run",
				fmt.Sprintf("reconciling %s", entityType), scope, err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", entityType, err))
		}
	}

	result.FinishedAt = r.Now()
	r.persistReport(ctx, scope, only, result)

	r.Logger.WithFields(logrus.Fields{
		"company_id": scope.CompanyId,
		"created":    result.Created,
		"updated":    result.Updated,
		"deleted":    result.Deleted,
		"failed":     result.Failed,
		"errors":     len(result.Errors),
		"took":       result.FinishedAt.Sub(result.StartedAt).String(),
	}).Info("clock.reconcile.done")

	return result, nil
}

func (r *ClockReconciler) reconcileType(ctx context.Context, adapter EntitySourceAdapter, scope Scope, tenants map[string]CompanyInfo, now time.Time) (TypeSummary, error) {
	entityType := adapter.EntityType()
	var summary TypeSummary

	tracked, err := r.Store.ListByType(ctx, entityType, scope)
	if err != nil {
		return summary, fmt.Errorf("listing tracked clocks: %w", err)
	}
	trackedSet := make(map[int]bool, len(tracked))
	trackedIds := make([]int, 0, len(tracked))
	for _, clock := range tracked {
		trackedSet[clock.EntityId] = true
		trackedIds = append(trackedIds, clock.EntityId)
	}

	eligible, err := adapter.FetchEligible(ctx, scope)
	if err != nil {
		return summary, fmt.Errorf("fetching eligible rows: %w", err)
	}

	var disabledIds []int
	for _, row := range eligible {
		info, ok := tenants[row.CompanyId]
		if !ok {
			// company dropped out between the snapshot and the fetch
			config.LogError(r.Logger, "clockReconciler.go", "reconcileType",
				"company missing from tenant snapshot", row,
				fmt.Errorf("company %s not in snapshot", row.CompanyId))
			summary.Failed++
			continue
		}

		enabled, registered := info.Modules[row.ModuleCode]
		if !registered {
			// Provisioning gap, not a lifecycle change: the row keeps its
			// clock (if any) so a registry slip cannot destroy history.
			config.LogError(r.Logger, "clockReconciler.go", "reconcileType",
				"module not registered for company", row,
				fmt.Errorf("module %s not registered for company %s", row.ModuleCode, row.CompanyId))
			summary.Failed++
			continue
		}
		if !enabled {
			disabledIds = append(disabledIds, row.EntityId)
			continue
		}

		days, criticality, status := Classify(row.TargetDate, now, locationFor(info.Timezone))
		clock := models.ComplianceClock{
			CompanyId:        row.CompanyId,
			SiteId:           row.SiteId,
			EntityType:       entityType,
			EntityId:         row.EntityId,
			EntityName:       row.EntityName,
			ModuleCode:       row.ModuleCode,
			TargetDate:       row.TargetDate,
			DaysRemaining:    days,
			Criticality:      criticality,
			Status:           status,
			LastReconciledAt: now,
		}
		if err := r.Store.Upsert(ctx, &clock); err != nil {
			// the stale row stays tracked; the next pass retries it
			config.LogError(r.Logger, "clockReconciler.go", "reconcileType",
				"upserting clock", row, err)
			summary.Failed++
			continue
		}
		if trackedSet[row.EntityId] {
			summary.Updated++
		} else {
			summary.Created++
		}
	}

	ineligible, err := adapter.FetchIneligibleIDs(ctx, scope, trackedIds)
	if err != nil {
		return summary, fmt.Errorf("fetching ineligible ids: %w", err)
	}

	reapIds := utils.MergeIntSlices(ineligible, disabledIds)
	deleted, err := r.Store.DeleteByIDs(ctx, entityType, reapIds)
	if err != nil {
		return summary, fmt.Errorf("reaping clocks: %w", err)
	}
	summary.Deleted += int(deleted)

	return summary, nil
}

func (r *ClockReconciler) persistReport(ctx context.Context, scope Scope, only models.ClockEntityType, result *ClockPassResult) {
	summaryJson, _ := utils.MarshalToJSON(result.PerType)
	finishedAt := result.FinishedAt

	report := &models.ReconciliationReport{
		JobName:    JobClockReconcile,
		CompanyId:  scope.CompanyId,
		SiteId:     scope.SiteId,
		EntityType: string(only),
		Created:    result.Created,
		Updated:    result.Updated,
		Deleted:    result.Deleted,
		Failed:     result.Failed,
		Summary:    summaryJson,
		ErrorText:  strings.Join(result.Errors, "; "),
		StartedAt:  result.StartedAt,
		FinishedAt: &finishedAt,
	}
	if err := r.Reports.Save(ctx, report); err != nil {
		config.LogError(r.Logger, "clockReconciler.go", "persistReport", "saving run report", report, err)
	}
}
