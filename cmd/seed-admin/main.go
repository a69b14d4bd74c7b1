// seed-admin creates or updates the ops console user (username: ecocomplyAdmin).
// Admin users have role = 'A'; the backend returns role "Admin" for login.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-admin
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ecocomply/compliance_backend/config"
	"github.com/ecocomply/compliance_backend/models"
	"github.com/ecocomply/compliance_backend/utils"
	"gorm.io/gorm"
)

const (
	adminUsername = "ecocomplyAdmin"
	adminPassword = "Ec0C0mply@dmin"
	adminName     = "EcoComply Admin"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	// Model history hooks require company_id + user info in context.
	// Mark this run as admin/bypass tenant scope before touching any rows.
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Seed")
	ctx = utils.SetUsernameInContext(ctx, adminUsername)
	ctx = utils.SetIsAdminInContext(ctx, true)
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)

	// Attach a real company id (first company in DB). On a fresh database,
	// bootstrap a demo tenant so the admin user has somewhere to live.
	var companyID string
	var company models.Company
	err := db.WithContext(ctx).Model(&models.Company{}).Select("id").First(&company).Error
	switch {
	case err == nil:
		companyID = company.ID.String()
	case err == gorm.ErrRecordNotFound:
		demo, err := models.CreateCompany(ctx, &models.NewCompany{
			Name:     "Demo Environmental Ltd",
			Email:    "owner@demo.ecocomply.io",
			Timezone: "Europe/London",
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to bootstrap demo company: %v\n", err)
			os.Exit(1)
		}
		companyID = demo.ID.String()
		fmt.Printf("Created demo company %q (id=%s) with default modules, site and owner\n", demo.Name, companyID)
	default:
		fmt.Fprintf(os.Stderr, "failed to lookup company: %v\n", err)
		os.Exit(1)
	}
	ctx = utils.SetCompanyIdInContext(ctx, companyID)

	hashed, err := utils.HashPassword(adminPassword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}
	hashedStr := string(hashed)

	var existing models.User
	err = db.WithContext(ctx).Model(&models.User{}).Where("username = ?", adminUsername).First(&existing).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
			os.Exit(1)
		}
		// Create new admin user
		u := models.User{
			Username:  adminUsername,
			Name:      adminName,
			Password:  hashedStr,
			IsActive:  utils.NewTrue(),
			Role:      models.UserRoleAdmin,
			CompanyId: companyID,
		}
		if err := db.WithContext(ctx).Create(&u).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created admin user: username=%q (role=Admin)\n", adminUsername)
		return
	}

	// Update existing user: ensure password and admin role
	if err := db.WithContext(ctx).Model(&models.User{}).Where("username = ?", adminUsername).Updates(map[string]any{
		"password":   hashedStr,
		"name":       adminName,
		"is_active":  utils.NewTrue(),
		"company_id": companyID,
		"role":       models.UserRoleAdmin,
	}).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
		os.Exit(1)
	}
	_ = existing.RemoveInstanceRedis()
	fmt.Printf("Updated admin user: username=%q (role=Admin)\n", adminUsername)
}
