package models

// Outbox publish statuses for NotificationRecord.PublishStatus.
// Keep these as strings (DB values) for backwards compatibility.
const (
	NotificationPublishStatusQueued     = "QUEUED"
	NotificationPublishStatusProcessing = "PROCESSING"
	NotificationPublishStatusSent       = "SENT"
	NotificationPublishStatusFailed     = "FAILED"
	NotificationPublishStatusDead       = "DEAD"
)
