package models

import "time"

// IdempotencyKey provides durable, DB-backed idempotency for side effects
// that must not repeat (wallet debits on lead purchase, requeue handlers).
// Unique constraint: (handler_name, resource_id).
type IdempotencyKey struct {
	ID          int               `gorm:"primary_key" json:"id"`
	HandlerName string            `gorm:"size:100;not null;index:uniq_idem,unique" json:"handler_name"`
	ResourceId  string            `gorm:"size:255;not null;index:uniq_idem,unique" json:"resource_id"`
	Status      IdempotencyStatus `gorm:"size:20;not null;index" json:"status"`
	LastError   *string           `gorm:"type:text" json:"last_error"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}
