package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LeadReceipt proves an exclusive purchase: exactly one receipt row per
// sold lead (unique index on service_request_id). The wallet debit it
// records is guarded by an idempotency key so a client retry of a
// successful purchase never double-charges.
type LeadReceipt struct {
	ID               int             `gorm:"primary_key" json:"id"`
	ReceiptNumber    string          `gorm:"size:64;uniqueIndex;not null" json:"receipt_number"`
	ServiceRequestId int             `gorm:"uniqueIndex;not null" json:"service_request_id"`
	BuyerAgentId     int             `gorm:"index;not null" json:"buyer_agent_id"`
	Amount           decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
