package models

import (
	"time"

	"github.com/ecocomply/compliance_backend/config"
)

// NotificationRecord is the transactional outbox for engine notifications
// (deadline reminders, evidence expiry, SLA breaches, trigger fires).
// The row is written inside the transaction that produced the event and
// published to Pub/Sub by the dispatcher after commit.
type NotificationRecord struct {
	ID            int              `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	CompanyId     string           `gorm:"size:64;not null;index" json:"company_id"`
	SiteId        *int             `gorm:"index" json:"site_id"`
	Kind          NotificationKind `gorm:"size:30;not null;index" json:"kind"`
	ReferenceId   int              `gorm:"index" json:"reference_id"`
	ReferenceType string           `gorm:"size:30" json:"reference_type"` // evidence_item, deadline, recurrence_trigger
	Payload       []byte           `gorm:"type:jsonb" json:"payload"`
	// Outbox metadata (publish happens after commit via dispatcher).
	PublishStatus    string     `gorm:"size:20;index;not null;default:'QUEUED';index:idx_outbox_dispatch,priority:1" json:"publish_status"` // QUEUED|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToNotificationMessage(record NotificationRecord) config.NotificationMessage {
	return config.NotificationMessage{
		ID:            record.ID,
		CompanyId:     record.CompanyId,
		OccurredAt:    record.CreatedAt,
		ReferenceId:   record.ReferenceId,
		ReferenceType: record.ReferenceType,
		Kind:          string(record.Kind),
		Payload:       record.Payload,
		CorrelationId: record.CorrelationId,
	}
}
