package reports

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/ecocomply/compliance_backend/config"
	"github.com/ecocomply/compliance_backend/models"
	"github.com/ecocomply/compliance_backend/utils"
)

// ComplianceClockReportFilter narrows the fleet-wide clock table. Zero values
// mean "everything": the internal surface reads across tenants by default.
type ComplianceClockReportFilter struct {
	CompanyId   string
	SiteId      *int
	EntityType  *string
	Criticality *string
	Status      *string
	ModuleCode  *string
}

type ComplianceClockReportConnection struct {
	Edges    []*ComplianceClockReportEdge `json:"edges"`
	PageInfo *models.PageInfo             `json:"pageInfo"`
	Summary  *ComplianceClockSummary      `json:"summary"`
}

type ComplianceClockReportEdge models.Edge[models.ComplianceClock]

// ComplianceClockSummary counts every filtered row by band, independent of
// the page being served.
type ComplianceClockSummary struct {
	Red     int64 `json:"red"`
	Amber   int64 `json:"amber"`
	Green   int64 `json:"green"`
	Overdue int64 `json:"overdue"`
	Total   int64 `json:"total"`
}

func clockReportQuery(ctx context.Context, filter ComplianceClockReportFilter) (*gorm.DB, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx)

	if filter.CompanyId != "" {
		dbCtx = dbCtx.Where("company_id = ?", filter.CompanyId)
	}
	if filter.SiteId != nil && *filter.SiteId > 0 {
		dbCtx = dbCtx.Where("site_id = ?", *filter.SiteId)
	}
	if filter.EntityType != nil && *filter.EntityType != "" {
		entityType, err := models.ParseClockEntityType(*filter.EntityType)
		if err != nil {
			return nil, err
		}
		dbCtx = dbCtx.Where("entity_type = ?", entityType)
	}
	if filter.Criticality != nil && *filter.Criticality != "" {
		criticality := models.ClockCriticality(strings.ToUpper(*filter.Criticality))
		switch criticality {
		case models.ClockCriticalityRed, models.ClockCriticalityAmber, models.ClockCriticalityGreen:
		default:
			return nil, fmt.Errorf("invalid criticality %q", *filter.Criticality)
		}
		dbCtx = dbCtx.Where("criticality = ?", criticality)
	}
	if filter.Status != nil && *filter.Status != "" {
		status := models.ClockStatus(strings.ToUpper(*filter.Status))
		switch status {
		case models.ClockStatusActive, models.ClockStatusOverdue:
		default:
			return nil, fmt.Errorf("invalid status %q", *filter.Status)
		}
		dbCtx = dbCtx.Where("status = ?", status)
	}
	if filter.ModuleCode != nil && *filter.ModuleCode != "" {
		dbCtx = dbCtx.Where("module_code = ?", strings.ToUpper(*filter.ModuleCode))
	}

	return dbCtx, nil
}

// PaginateComplianceClockReport serves the clock report soonest-first with a
// composite cursor on (target_date, id).
func PaginateComplianceClockReport(ctx context.Context, limit *int, after *string, filter ComplianceClockReportFilter) (*ComplianceClockReportConnection, error) {
	start := time.Now()
	defer logSlowReport(ctx, "compliance_clock_report", start, map[string]any{
		"company_id":  filter.CompanyId,
		"entity_type": utils.DereferencePtr(filter.EntityType, ""),
	})

	dbCtx, err := clockReportQuery(ctx, filter)
	if err != nil {
		return nil, err
	}

	pageSize := 50
	if limit != nil && *limit > 0 {
		pageSize = *limit
	}

	edges, pageInfo, err := models.FetchPageCompositeCursor[models.ComplianceClock](dbCtx, pageSize, after, "target_date", ">")
	if err != nil {
		return nil, err
	}

	summary, err := GetComplianceClockSummary(ctx, filter)
	if err != nil {
		return nil, err
	}

	connection := ComplianceClockReportConnection{
		PageInfo: pageInfo,
		Summary:  summary,
	}
	for _, edge := range edges {
		reportEdge := ComplianceClockReportEdge(edge)
		connection.Edges = append(connection.Edges, &reportEdge)
	}

	return &connection, nil
}

func GetComplianceClockSummary(ctx context.Context, filter ComplianceClockReportFilter) (*ComplianceClockSummary, error) {

	var cacheKey string
	if reportCacheEnabled() {
		cacheKey = fmt.Sprintf("report:clock_summary:%s:%d:%s:%s:%s:%s",
			filter.CompanyId,
			utils.DereferencePtr(filter.SiteId, 0),
			utils.DereferencePtr(filter.EntityType, ""),
			utils.DereferencePtr(filter.Criticality, ""),
			utils.DereferencePtr(filter.Status, ""),
			utils.DereferencePtr(filter.ModuleCode, ""))
		var cached *ComplianceClockSummary
		if ok, err := cacheGet(cacheKey, &cached); err == nil && ok && cached != nil {
			return cached, nil
		}
	}

	dbCtx, err := clockReportQuery(ctx, filter)
	if err != nil {
		return nil, err
	}

	var bands []struct {
		Criticality models.ClockCriticality
		Status      models.ClockStatus
		Count       int64
	}
	err = dbCtx.Model(&models.ComplianceClock{}).
		Select("criticality, status, COUNT(*) AS count").
		Group("criticality, status").
		Find(&bands).Error
	if err != nil {
		return nil, err
	}

	var summary ComplianceClockSummary
	for _, band := range bands {
		switch band.Criticality {
		case models.ClockCriticalityRed:
			summary.Red += band.Count
		case models.ClockCriticalityAmber:
			summary.Amber += band.Count
		case models.ClockCriticalityGreen:
			summary.Green += band.Count
		}
		if band.Status == models.ClockStatusOverdue {
			summary.Overdue += band.Count
		}
		summary.Total += band.Count
	}

	if cacheKey != "" {
		_ = cacheSet(cacheKey, &summary, reportCacheTTL())
	}

	return &summary, nil
}

func GetAllComplianceClockReport(ctx context.Context, filter ComplianceClockReportFilter) ([]*models.ComplianceClock, error) {
	start := time.Now()
	defer logSlowReport(ctx, "compliance_clock_export", start, map[string]any{
		"company_id": filter.CompanyId,
	})

	dbCtx, err := clockReportQuery(ctx, filter)
	if err != nil {
		return nil, err
	}

	// db query
	var results []*models.ComplianceClock
	err = dbCtx.Order("target_date, id").Find(&results).Error
	if err != nil {
		return nil, err
	}

	return results, nil
}

// WriteComplianceClockExcel streams the filtered rows as a workbook. The
// caller has already negotiated the response; errors after the first write
// can only be logged.
func WriteComplianceClockExcel(w http.ResponseWriter, rows []*models.ComplianceClock) error {

	f := excelize.NewFile()
	sheetName := "ComplianceClocks"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	// Add headers
	f.SetCellValue(sheetName, "A1", "Company")
	f.SetCellValue(sheetName, "B1", "Site")
	f.SetCellValue(sheetName, "C1", "EntityType")
	f.SetCellValue(sheetName, "D1", "EntityName")
	f.SetCellValue(sheetName, "E1", "Module")
	f.SetCellValue(sheetName, "F1", "TargetDate")
	f.SetCellValue(sheetName, "G1", "DaysRemaining")
	f.SetCellValue(sheetName, "H1", "Criticality")
	f.SetCellValue(sheetName, "I1", "Status")

	// Add data
	for i, d := range rows {
		rowNo := fmt.Sprint(i + 2)
		f.SetCellValue(sheetName, "A"+rowNo, d.CompanyId)
		f.SetCellValue(sheetName, "B"+rowNo, utils.DereferencePtr(d.SiteId, 0))
		f.SetCellValue(sheetName, "C"+rowNo, string(d.EntityType))
		f.SetCellValue(sheetName, "D"+rowNo, d.EntityName)
		f.SetCellValue(sheetName, "E"+rowNo, d.ModuleCode)
		f.SetCellValue(sheetName, "F"+rowNo, d.TargetDate.Format("2006-01-02"))
		f.SetCellValue(sheetName, "G"+rowNo, d.DaysRemaining)
		f.SetCellValue(sheetName, "H"+rowNo, string(d.Criticality))
		f.SetCellValue(sheetName, "I"+rowNo, string(d.Status))
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=compliance_clocks.xlsx")
	return f.Write(w)
}
