package models

import (
	"time"
)

// RequestComment is assignee-only free-form metadata on a service request.
// Comments never touch the lifecycle state or ordering invariants;
// last-write-wins is fine here.
type RequestComment struct {
	ID               int       `gorm:"primary_key" json:"id"`
	ServiceRequestId int       `gorm:"index;not null" json:"service_request_id"`
	AgentId          int       `gorm:"index;not null" json:"agent_id"`
	Body             string    `gorm:"type:text;not null" json:"body"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewRequestComment struct {
	Body string `json:"body" binding:"required"`
}
