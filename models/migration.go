package models

import (
	"log"

	"github.com/ecocomply/compliance_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Company{}, &Site{}, &ComplianceModule{}, &NotificationSetting{},
		&Obligation{}, &Deadline{},
		&ContractorLicence{}, &Generator{}, &StackTest{}, &RuntimeMonitoring{},
		&EvidenceItem{}, &EvidenceExpiryTracking{},
		&ComplianceClock{},
		&RecurrenceTrigger{}, &RecurringTask{},
		&History{},
		&NotificationRecord{},
		&ReconciliationReport{},
		&User{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
