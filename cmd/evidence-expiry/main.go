// evidence-expiry runs one evidence expiry pass (reminder ladder + expiry
// flips) and prints the summary as JSON. Meant for cron-driven deployments;
// notifications enqueued by the pass are published by the API service's
// dispatcher.
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
)

func main() {
	companyID := flag.String("company-id", "", "Optional: narrow the pass to one company")
	siteID := flag.Int("site-id", 0, "Optional: narrow the pass to one site")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	scope := jobs.Scope{CompanyId: strings.TrimSpace(*companyID)}
	if *siteID > 0 {
		scope.SiteId = siteID
	}

	result, err := jobs.RunEvidencePass(context.Background(), scope)
	if err != nil {
		fmt.Fprintf(os.Stderr, "evidence pass failed: %v\n", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
	if result.Failed > 0 {
		os.Exit(3)
	}
}
