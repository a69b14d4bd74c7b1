package models

import (
	"context"
	"encoding/json"

	"github.com/ecocomply/compliance_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QueueNotification implements the transactional outbox: it writes the
// notification record inside the caller's DB transaction but does NOT publish
// to Pub/Sub. Publishing is performed asynchronously by the dispatcher after
// commit, so a rolled-back pass never leaks notifications.
func QueueNotification(ctx context.Context, db *gorm.DB, companyId string, siteId *int, kind NotificationKind, refId int, refType string, payload interface{}) error {

	var payloadInByte []byte
	var err error

	if payload != nil {
		payloadInByte, err = json.Marshal(payload)
		if err != nil {
			return err
		}
	}

	record := NotificationRecord{
		CompanyId:     companyId,
		SiteId:        siteId,
		Kind:          kind,
		ReferenceId:   refId,
		ReferenceType: refType,
		Payload:       payloadInByte,
		PublishStatus: NotificationPublishStatusQueued,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	err = db.Create(&record).Error
	if err != nil {
		return err
	}
	return nil
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
