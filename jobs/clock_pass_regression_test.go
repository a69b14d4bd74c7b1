package jobs_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/ecocomply/compliance_backend/config"
	"github.com/ecocomply/compliance_backend/jobs"
	"github.com/ecocomply/compliance_backend/models"
	"github.com/ecocomply/compliance_backend/utils"
)

func TestClockPassReconcilesProjection(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	pgName, pgPort := startPostgresContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(pgName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_USER", "postgres")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", pgPort)
	t.Setenv("DB_NAME", "ecocomply_test")

	// Connect deps.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	// Migrate schema (in a fresh DB).
	models.MigrateTable()

	// Company bootstrap and model hooks require user context.
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	ctx = utils.SetUsernameInContext(ctx, "test@local")

	// 1) Create a tenant (includes default modules, notification settings and main site).
	company, err := models.CreateCompany(ctx, &models.NewCompany{
		Name:  "Riverside Recycling Ltd",
		Email: "ops@riverside.test",
	})
	if err != nil {
		t.Fatalf("CreateCompany: %v", err)
	}
	companyID := company.ID.String()
	ctx = utils.SetCompanyIdInContext(ctx, companyID)

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}

	// Anchor target dates at noon UTC on today's London date so the day
	// arithmetic comes out exact whenever the test runs.
	now := time.Now()
	london, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	local := now.In(london)
	base := time.Date(local.Year(), local.Month(), local.Day(), 12, 0, 0, 0, time.UTC)

	// 2) Seed one source row per entity type.
	obligationDue := base.AddDate(0, 0, 5)
	obligation, err := models.CreateObligation(ctx, &models.NewObligation{
		SiteId:     company.PrimarySiteId,
		ModuleCode: "PERMITS",
		Title:      "Quarterly effluent sampling",
		DueDate:    &obligationDue,
	})
	if err != nil {
		t.Fatalf("CreateObligation: %v", err)
	}

	slaTarget := now.Add(-49*time.Hour - 30*time.Minute)
	deadline, err := models.CreateDeadline(ctx, &models.NewDeadline{
		SiteId:        company.PrimarySiteId,
		ModuleCode:    "WATER",
		Title:         "Discharge return to regulator",
		DeadlineDate:  base.AddDate(0, 0, -1),
		SlaTargetDate: &slaTarget,
	})
	if err != nil {
		t.Fatalf("CreateDeadline: %v", err)
	}

	licenceExpiry := base.AddDate(0, 0, 20)
	licence, err := models.CreateContractorLicence(ctx, &models.NewContractorLicence{
		ContractorName: "Skip Hire Ltd",
		LicenceNumber:  "WCL-7781",
		LicenceType:    "waste_carrier",
		ExpiryDate:     &licenceExpiry,
	})
	if err != nil {
		t.Fatalf("CreateContractorLicence: %v", err)
	}

	stackTest := base.AddDate(0, 0, 45)
	generator, err := models.CreateGenerator(ctx, &models.NewGenerator{
		SiteId:            company.PrimarySiteId,
		Name:              "Standby generator A",
		NextStackTestDate: &stackTest,
	})
	if err != nil {
		t.Fatalf("CreateGenerator: %v", err)
	}

	scope := jobs.Scope{CompanyId: companyID}

	// 3) First pass: every entity gets a clock row and the chained SLA
	// detector stamps the overdue deadline.
	first, err := jobs.RunClockPass(ctx, scope, "")
	if err != nil {
		t.Fatalf("RunClockPass: %v", err)
	}
	if first.Created != 4 || first.Failed != 0 {
		t.Fatalf("expected created=4 failed=0; got created=%d failed=%d (errors=%v)",
			first.Created, first.Failed, first.Errors)
	}
	for _, entityType := range models.AllClockEntityTypes() {
		if got := first.PerType[string(entityType)].Created; got != 1 {
			t.Fatalf("expected 1 %s clock created; got %d", entityType, got)
		}
	}

	fetchClock := func(entityType models.ClockEntityType, entityId int) models.ComplianceClock {
		t.Helper()
		var clock models.ComplianceClock
		if err := db.WithContext(ctx).
			Where("company_id = ? AND entity_type = ? AND entity_id = ?", companyID, entityType, entityId).
			First(&clock).Error; err != nil {
			t.Fatalf("fetch clock %s/%d: %v", entityType, entityId, err)
		}
		return clock
	}

	obClock := fetchClock(models.ClockEntityTypeObligation, obligation.ID)
	if obClock.DaysRemaining != 5 || obClock.Criticality != models.ClockCriticalityRed || obClock.Status != models.ClockStatusActive {
		t.Fatalf("expected obligation clock 5d RED ACTIVE; got %dd %s %s",
			obClock.DaysRemaining, obClock.Criticality, obClock.Status)
	}

	dlClock := fetchClock(models.ClockEntityTypeDeadline, deadline.ID)
	if dlClock.DaysRemaining != -1 || dlClock.Criticality != models.ClockCriticalityRed || dlClock.Status != models.ClockStatusOverdue {
		t.Fatalf("expected deadline clock -1d RED OVERDUE; got %dd %s %s",
			dlClock.DaysRemaining, dlClock.Criticality, dlClock.Status)
	}

	licClock := fetchClock(models.ClockEntityTypeContractorLicence, licence.ID)
	if licClock.DaysRemaining != 20 || licClock.Criticality != models.ClockCriticalityAmber || licClock.Status != models.ClockStatusActive {
		t.Fatalf("expected licence clock 20d AMBER ACTIVE; got %dd %s %s",
			licClock.DaysRemaining, licClock.Criticality, licClock.Status)
	}
	if licClock.EntityName != "Skip Hire Ltd (WCL-7781)" {
		t.Fatalf("expected licence clock name %q; got %q", "Skip Hire Ltd (WCL-7781)", licClock.EntityName)
	}
	if licClock.ModuleCode != "WASTE" {
		t.Fatalf("expected licence clock module WASTE; got %q", licClock.ModuleCode)
	}

	genClock := fetchClock(models.ClockEntityTypeGenerator, generator.ID)
	if genClock.DaysRemaining != 45 || genClock.Criticality != models.ClockCriticalityGreen || genClock.Status != models.ClockStatusActive {
		t.Fatalf("expected generator clock 45d GREEN ACTIVE; got %dd %s %s",
			genClock.DaysRemaining, genClock.Criticality, genClock.Status)
	}
	if genClock.ModuleCode != "GENERATORS" {
		t.Fatalf("expected generator clock module GENERATORS; got %q", genClock.ModuleCode)
	}

	// The chained SLA pass breached the deadline: 49.5h past target floors to 49.
	var breached models.Deadline
	if err := db.WithContext(ctx).Where("id = ?", deadline.ID).First(&breached).Error; err != nil {
		t.Fatalf("fetch deadline: %v", err)
	}
	if breached.SlaStatus != models.SlaStatusBreached {
		t.Fatalf("expected deadline sla_status BREACHED; got %s", breached.SlaStatus)
	}
	if breached.SlaBreachedAt == nil || breached.SlaBreachDurationHours == nil {
		t.Fatalf("expected breach stamp; got at=%v hours=%v", breached.SlaBreachedAt, breached.SlaBreachDurationHours)
	}
	if *breached.SlaBreachDurationHours != 49 {
		t.Fatalf("expected breach duration 49h; got %d", *breached.SlaBreachDurationHours)
	}
	firstBreachedAt := *breached.SlaBreachedAt

	var slaNotices int64
	if err := db.WithContext(ctx).Model(&models.NotificationRecord{}).
		Where("company_id = ? AND kind = ?", companyID, models.NotificationKindSlaBreach).
		Count(&slaNotices).Error; err != nil {
		t.Fatalf("count sla notifications: %v", err)
	}
	if slaNotices != 1 {
		t.Fatalf("expected 1 sla_breach notification; got %d", slaNotices)
	}

	// 4) Completing the obligation reaps its clock on the next pass; the
	// breach stamp survives the chained re-check.
	if err := db.WithContext(ctx).Model(&models.Obligation{}).
		Where("id = ?", obligation.ID).
		Update("status", models.ObligationStatusCompleted).Error; err != nil {
		t.Fatalf("complete obligation: %v", err)
	}

	second, err := jobs.RunClockPass(ctx, scope, "")
	if err != nil {
		t.Fatalf("RunClockPass (second): %v", err)
	}
	if second.Created != 0 || second.Updated != 3 || second.Deleted != 1 {
		t.Fatalf("expected second pass created=0 updated=3 deleted=1; got created=%d updated=%d deleted=%d",
			second.Created, second.Updated, second.Deleted)
	}

	var obClocks int64
	if err := db.WithContext(ctx).Model(&models.ComplianceClock{}).
		Where("company_id = ? AND entity_type = ?", companyID, models.ClockEntityTypeObligation).
		Count(&obClocks).Error; err != nil {
		t.Fatalf("count obligation clocks: %v", err)
	}
	if obClocks != 0 {
		t.Fatalf("expected obligation clock reaped; found %d", obClocks)
	}

	if err := db.WithContext(ctx).Where("id = ?", deadline.ID).First(&breached).Error; err != nil {
		t.Fatalf("refetch deadline: %v", err)
	}
	if breached.SlaBreachedAt == nil || !breached.SlaBreachedAt.Equal(firstBreachedAt) {
		t.Fatalf("breach stamp moved on re-check: %v -> %v", firstBreachedAt, breached.SlaBreachedAt)
	}
	if *breached.SlaBreachDurationHours != 49 {
		t.Fatalf("breach duration recomputed: expected 49h; got %d", *breached.SlaBreachDurationHours)
	}

	// 5) Disabling a module reaps its clocks without touching the source rows.
	if err := db.WithContext(ctx).Model(&models.ComplianceModule{}).
		Where("company_id = ? AND code = ?", companyID, "WASTE").
		Update("is_enabled", false).Error; err != nil {
		t.Fatalf("disable WASTE module: %v", err)
	}

	third, err := jobs.RunClockPass(ctx, scope, "")
	if err != nil {
		t.Fatalf("RunClockPass (third): %v", err)
	}
	if third.Deleted != 1 {
		t.Fatalf("expected third pass deleted=1 after disabling WASTE; got %d", third.Deleted)
	}

	var remaining int64
	if err := db.WithContext(ctx).Model(&models.ComplianceClock{}).
		Where("company_id = ?", companyID).
		Count(&remaining).Error; err != nil {
		t.Fatalf("count remaining clocks: %v", err)
	}
	if remaining != 2 {
		t.Fatalf("expected 2 clocks (deadline, generator) after reaps; got %d", remaining)
	}

	var licenceRows int64
	if err := db.WithContext(ctx).Model(&models.ContractorLicence{}).
		Where("company_id = ?", companyID).
		Count(&licenceRows).Error; err != nil {
		t.Fatalf("count licences: %v", err)
	}
	if licenceRows != 1 {
		t.Fatalf("reap must not touch source rows; licence count = %d", licenceRows)
	}

	// 6) Every pass left a run report.
	jobName := jobs.JobClockReconcile
	runs, err := models.GetReconciliationReports(ctx, &jobName, &companyID, 10)
	if err != nil {
		t.Fatalf("GetReconciliationReports: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 clock run reports; got %d", len(runs))
	}
	for _, run := range runs {
		if run.FinishedAt == nil {
			t.Fatalf("run report %d has no finished_at", run.ID)
		}
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("ecocomply-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startPostgresContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("ecocomply-test-postgres-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "POSTGRES_PASSWORD=testpw",
		"-e", "POSTGRES_DB=ecocomply_test",
		"-p", "127.0.0.1:0:5432",
		"postgres:16-alpine",
	)
	if err != nil {
		t.Fatalf("start postgres container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "5432/tcp")
	if err != nil {
		t.Fatalf("postgres docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "pg_isready", "-U", "postgres", "-d", "ecocomply_test")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("postgres did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
