// clock-reconcile runs one compliance clock pass and prints the summary as
// JSON. Deployments that drive the passes from cron use this binary instead
// of keeping ENABLE_SCHEDULER on in the API service.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/clock-reconcile
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ecocomply/compliance_backend/config"
	"github.com/ecocomply/compliance_backend/jobs"
	"github.com/ecocomply/compliance_backend/models"
)

func main() {
	companyID := flag.String("company-id", "", "Optional: narrow the pass to one company")
	siteID := flag.Int("site-id", 0, "Optional: narrow the pass to one site")
	entityType := flag.String("entity-type", "", "Optional: reconcile one entity type (obligation/deadline/contractor_licence/generator)")
	flag.Parse()

	var only models.ClockEntityType
	if strings.TrimSpace(*entityType) != "" {
		parsed, err := models.ParseClockEntityType(*entityType)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		only = parsed
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	scope := jobs.Scope{CompanyId: strings.TrimSpace(*companyID)}
	if *siteID > 0 {
		scope.SiteId = siteID
	}

	result, err := jobs.RunClockPass(context.Background(), scope, only)
	if err != nil {
		fmt.Fprintf(os.Stderr, "clock pass failed: %v\n", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
	if result.Failed > 0 {
		// Partial failure: rows were kept, operator should look at errors.
		os.Exit(3)
	}
}
