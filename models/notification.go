package models

import (
	"context"
	"time"

	"github.com/dwellmatch/estates_backend/config"
	"github.com/dwellmatch/estates_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Notification struct {
	ID            int              `gorm:"primary_key" json:"id"`
	UserId        int              `gorm:"index;not null" json:"user_id"`
	AgentId       int              `gorm:"index" json:"agent_id"`
	Type          NotificationType `gorm:"size:30;not null" json:"type"`
	Subject       string           `gorm:"size:150;not null" json:"subject"`
	Body          string           `gorm:"type:text" json:"body"`
	ReferenceType string           `gorm:"size:30" json:"reference_type"`
	ReferenceId   int              `json:"reference_id"`
	Read          *bool            `gorm:"not null;default:false" json:"read"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// NotificationOutbox implements the transactional outbox: the row is
// written inside the caller's DB transaction; publishing to Pub/Sub is
// performed asynchronously by the outbox dispatcher after commit.
type NotificationOutbox struct {
	ID            int              `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	UserId        int              `gorm:"not null" json:"user_id"`
	AgentId       int              `json:"agent_id"`
	Type          NotificationType `gorm:"size:30;not null" json:"type"`
	Subject       string           `gorm:"size:150;not null" json:"subject"`
	Body          string           `gorm:"type:text" json:"body"`
	ReferenceType string           `gorm:"size:30" json:"reference_type"`
	ReferenceId   int              `json:"reference_id"`

	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|PUBLISHED|FAILED|DEAD
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

func ConvertToNotificationMessage(record NotificationOutbox) config.NotificationMessage {
	return config.NotificationMessage{
		ID:            record.ID,
		UserId:        record.UserId,
		AgentId:       record.AgentId,
		Type:          string(record.Type),
		Subject:       record.Subject,
		Body:          record.Body,
		ReferenceType: record.ReferenceType,
		ReferenceId:   record.ReferenceId,
		CorrelationId: record.CorrelationId,
	}
}

// EnqueueNotification writes the in-app notification row and the outbox
// record in the caller's transaction. Never fails the business operation
// from here; callers decide whether a notification failure is fatal.
func EnqueueNotification(ctx context.Context, tx *gorm.DB, n *Notification) error {

	if err := tx.Create(n).Error; err != nil {
		return err
	}

	record := NotificationOutbox{
		UserId:        n.UserId,
		AgentId:       n.AgentId,
		Type:          n.Type,
		Subject:       n.Subject,
		Body:          n.Body,
		ReferenceType: n.ReferenceType,
		ReferenceId:   n.ReferenceId,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
