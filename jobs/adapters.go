package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/ecocomply/compliance_backend/config"
	"github.com/ecocomply/compliance_backend/models"
	"gorm.io/gorm"
)

// Scope narrows a pass to one tenant and optionally one site. The zero
// value means the whole fleet.
type Scope struct {
	CompanyId string
	SiteId    *int
}

// SourceRow is one eligible entity as seen by the reconciler: everything
// needed to classify and upsert its clock, nothing else.
type SourceRow struct {
	EntityId   int
	CompanyId  string
	SiteId     *int
	EntityName string
	ModuleCode string
	TargetDate time.Time
}

// EntitySourceAdapter projects one source table into clock rows. The set of
// adapters is closed; registering a new entity type means writing one.
type EntitySourceAdapter interface {
	EntityType() models.ClockEntityType

	// FetchEligible returns rows in an open lifecycle state with a non-null
	// target date, for active tenants within the scope.
	FetchEligible(ctx context.Context, scope Scope) ([]SourceRow, error)

	// FetchIneligibleIDs returns the subset of trackedIds whose source row
	// is gone, terminal, or lost its target date. These clocks get reaped.
	FetchIneligibleIDs(ctx context.Context, scope Scope, trackedIds []int) ([]int, error)
}

// Module codes for source tables that have no per-row module column.
const (
	moduleCodeWaste      = "WASTE"
	moduleCodeGenerators = "GENERATORS"
)

// DefaultAdapters returns the registry in reconciliation order.
func DefaultAdapters() []EntitySourceAdapter {
	return []EntitySourceAdapter{
		obligationAdapter{},
		deadlineAdapter{},
		licenceAdapter{},
		generatorAdapter{},
	}
}

// activeTenants joins out rows belonging to deactivated companies, so an
// offboarded tenant's clocks are reaped rather than refreshed.
func activeTenants(dbCtx *gorm.DB, table string) *gorm.DB {
	return dbCtx.Joins(fmt.Sprintf("JOIN companies ON companies.id::text = %s.company_id AND companies.is_active = ?", table), true)
}

func applyScope(dbCtx *gorm.DB, table string, scope Scope) *gorm.DB {
	if scope.CompanyId != "" {
		dbCtx = dbCtx.Where(table+".company_id = ?", scope.CompanyId)
	}
	if scope.SiteId != nil && *scope.SiteId > 0 {
		dbCtx = dbCtx.Where(table+".site_id = ?", *scope.SiteId)
	}
	return dbCtx
}

func missingFrom(trackedIds []int, stillEligible []int) []int {
	eligible := make(map[int]bool, len(stillEligible))
	for _, id := range stillEligible {
		eligible[id] = true
	}
	var gone []int
	for _, id := range trackedIds {
		if !eligible[id] {
			gone = append(gone, id)
		}
	}
	return gone
}

type obligationAdapter struct{}

func (obligationAdapter) EntityType() models.ClockEntityType {
	return models.ClockEntityTypeObligation
}

func (obligationAdapter) eligibleQuery(ctx context.Context, scope Scope) *gorm.DB {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&models.Obligation{})
	dbCtx = activeTenants(dbCtx, "obligations")
	dbCtx = applyScope(dbCtx, "obligations", scope)
	return dbCtx.Where("obligations.status IN ? AND obligations.due_date IS NOT NULL",
		models.OpenObligationStatuses())
}

func (a obligationAdapter) FetchEligible(ctx context.Context, scope Scope) ([]SourceRow, error) {
	var obligations []models.Obligation
	if err := a.eligibleQuery(ctx, scope).Find(&obligations).Error; err != nil {
		return nil, err
	}

	rows := make([]SourceRow, 0, len(obligations))
	for _, o := range obligations {
		siteId := o.SiteId
		rows = append(rows, SourceRow{
			EntityId:   o.ID,
			CompanyId:  o.CompanyId,
			SiteId:     &siteId,
			EntityName: o.Title,
			ModuleCode: o.ModuleCode,
			TargetDate: *o.DueDate,
		})
	}
	return rows, nil
}

func (a obligationAdapter) FetchIneligibleIDs(ctx context.Context, scope Scope, trackedIds []int) ([]int, error) {
	if len(trackedIds) == 0 {
		return nil, nil
	}
	var stillEligible []int
	err := a.eligibleQuery(ctx, scope).
		Where("obligations.id IN ?", trackedIds).
		Pluck("obligations.id", &stillEligible).Error
	if err != nil {
		return nil, err
	}
	return missingFrom(trackedIds, stillEligible), nil
}

type deadlineAdapter struct{}

func (deadlineAdapter) EntityType() models.ClockEntityType {
	return models.ClockEntityTypeDeadline
}

func (deadlineAdapter) eligibleQuery(ctx context.Context, scope Scope) *gorm.DB {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&models.Deadline{})
	dbCtx = activeTenants(dbCtx, "deadlines")
	dbCtx = applyScope(dbCtx, "deadlines", scope)
	return dbCtx.Where("deadlines.status = ?", models.DeadlineStatusOpen)
}

func (a deadlineAdapter) FetchEligible(ctx context.Context, scope Scope) ([]SourceRow, error) {
	var deadlines []models.Deadline
	if err := a.eligibleQuery(ctx, scope).Find(&deadlines).Error; err != nil {
		return nil, err
	}

	rows := make([]SourceRow, 0, len(deadlines))
	for _, d := range deadlines {
		siteId := d.SiteId
		rows = append(rows, SourceRow{
			EntityId:   d.ID,
			CompanyId:  d.CompanyId,
			SiteId:     &siteId,
			EntityName: d.Title,
			ModuleCode: d.ModuleCode,
			TargetDate: d.DeadlineDate,
		})
	}
	return rows, nil
}

func (a deadlineAdapter) FetchIneligibleIDs(ctx context.Context, scope Scope, trackedIds []int) ([]int, error) {
	if len(trackedIds) == 0 {
		return nil, nil
	}
	var stillEligible []int
	err := a.eligibleQuery(ctx, scope).
		Where("deadlines.id IN ?", trackedIds).
		Pluck("deadlines.id", &stillEligible).Error
	if err != nil {
		return nil, err
	}
	return missingFrom(trackedIds, stillEligible), nil
}

type licenceAdapter struct{}

func (licenceAdapter) EntityType() models.ClockEntityType {
	return models.ClockEntityTypeContractorLicence
}

func (licenceAdapter) eligibleQuery(ctx context.Context, scope Scope) *gorm.DB {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&models.ContractorLicence{})
	dbCtx = activeTenants(dbCtx, "contractor_licences")
	dbCtx = applyScope(dbCtx, "contractor_licences", scope)
	// a suspended licence still counts toward its expiry
	return dbCtx.Where("contractor_licences.status IN ? AND contractor_licences.expiry_date IS NOT NULL",
		models.OpenLicenceStatuses())
}

func (a licenceAdapter) FetchEligible(ctx context.Context, scope Scope) ([]SourceRow, error) {
	var licences []models.ContractorLicence
	if err := a.eligibleQuery(ctx, scope).Find(&licences).Error; err != nil {
		return nil, err
	}

	rows := make([]SourceRow, 0, len(licences))
	for _, l := range licences {
		rows = append(rows, SourceRow{
			EntityId:   l.ID,
			CompanyId:  l.CompanyId,
			SiteId:     l.SiteId,
			EntityName: fmt.Sprintf("%s (%s)", l.ContractorName, l.LicenceNumber),
			ModuleCode: moduleCodeWaste,
			TargetDate: *l.ExpiryDate,
		})
	}
	return rows, nil
}

func (a licenceAdapter) FetchIneligibleIDs(ctx context.Context, scope Scope, trackedIds []int) ([]int, error) {
	if len(trackedIds) == 0 {
		return nil, nil
	}
	var stillEligible []int
	err := a.eligibleQuery(ctx, scope).
		Where("contractor_licences.id IN ?", trackedIds).
		Pluck("contractor_licences.id", &stillEligible).Error
	if err != nil {
		return nil, err
	}
	return missingFrom(trackedIds, stillEligible), nil
}

type generatorAdapter struct{}

func (generatorAdapter) EntityType() models.ClockEntityType {
	return models.ClockEntityTypeGenerator
}

func (generatorAdapter) eligibleQuery(ctx context.Context, scope Scope) *gorm.DB {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&models.Generator{})
	dbCtx = activeTenants(dbCtx, "generators")
	dbCtx = applyScope(dbCtx, "generators", scope)
	return dbCtx.Where("generators.status = ? AND generators.next_stack_test_date IS NOT NULL",
		models.GeneratorStatusActive)
}

func (a generatorAdapter) FetchEligible(ctx context.Context, scope Scope) ([]SourceRow, error) {
	var generators []models.Generator
	if err := a.eligibleQuery(ctx, scope).Find(&generators).Error; err != nil {
		return nil, err
	}

	rows := make([]SourceRow, 0, len(generators))
	for _, g := range generators {
		siteId := g.SiteId
		rows = append(rows, SourceRow{
			EntityId:   g.ID,
			CompanyId:  g.CompanyId,
			SiteId:     &siteId,
			EntityName: g.Name,
			ModuleCode: moduleCodeGenerators,
			TargetDate: *g.NextStackTestDate,
		})
	}
	return rows, nil
}

func (a generatorAdapter) FetchIneligibleIDs(ctx context.Context, scope Scope, trackedIds []int) ([]int, error) {
	if len(trackedIds) == 0 {
		return nil, nil
	}
	var stillEligible []int
	err := a.eligibleQuery(ctx, scope).
		Where("generators.id IN ?", trackedIds).
		Pluck("generators.id", &stillEligible).Error
	if err != nil {
		return nil, err
	}
	return missingFrom(trackedIds, stillEligible), nil
}
