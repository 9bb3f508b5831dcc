package models

import (
	"context"
	"time"

	"github.com/dwellmatch/estates_backend/config"
	"github.com/shopspring/decimal"
)

// ServiceRequest is the unit of work flowing through the lifecycle.
// AssignedAgentId is owned exclusively by the current assignee and may
// only move to another agent through an explicit release.
//
// Premium requests double as marketplace leads: IsSold/SoldToAgentId
// carry the exclusivity guarantee (sold at most once, never un-sold).
type ServiceRequest struct {
	ID              int                  `gorm:"primary_key" json:"id"`
	ClientUserId    *int                 `json:"client_user_id"`
	ClientName      string               `gorm:"size:100;not null" json:"client_name"`
	ClientEmail     string               `gorm:"size:100;not null" json:"client_email"`
	ClientPhone     string               `gorm:"size:30;not null" json:"client_phone"`
	RequestType     string               `gorm:"size:30;not null" json:"request_type"`
	PropertyType    string               `gorm:"size:30;not null" json:"property_type"`
	Location        string               `gorm:"size:100;not null" json:"location"`
	BudgetMin       decimal.Decimal      `gorm:"type:decimal(12,2)" json:"budget_min"`
	BudgetMax       decimal.Decimal      `gorm:"type:decimal(12,2)" json:"budget_max"`
	Bedrooms        int                  `json:"bedrooms"`
	Bathrooms       int                  `json:"bathrooms"`
	Description     string               `gorm:"type:text" json:"description"`
	Urgency         RequestUrgency       `gorm:"size:10;not null;default:normal" json:"urgency"`
	Status          ServiceRequestStatus `gorm:"size:20;not null;default:open;index" json:"status"`
	AssignedAgentId *int                 `gorm:"index" json:"assigned_agent_id"`
	AssignedAt      *time.Time           `json:"assigned_at"`
	CompletedAt     *time.Time           `json:"completed_at"`
	CancelledAt     *time.Time           `json:"cancelled_at"`
	Contacted       *bool                `gorm:"not null;default:false" json:"contacted"`

	// verified-leads marketplace
	IsPremium     *bool           `gorm:"not null;default:false;index" json:"is_premium"`
	LeadPrice     decimal.Decimal `gorm:"type:decimal(12,2)" json:"lead_price"`
	IsSold        *bool           `gorm:"not null;default:false" json:"is_sold"`
	SoldToAgentId *int            `json:"sold_to_agent_id"`
	SoldAt        *time.Time      `json:"sold_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewServiceRequest struct {
	ClientName   string          `json:"client_name" binding:"required"`
	ClientEmail  string          `json:"client_email" binding:"required,email"`
	ClientPhone  string          `json:"client_phone" binding:"required"`
	RequestType  string          `json:"request_type" binding:"required"`
	PropertyType string          `json:"property_type" binding:"required"`
	Location     string          `json:"location" binding:"required"`
	BudgetMin    decimal.Decimal `json:"budget_min"`
	BudgetMax    decimal.Decimal `json:"budget_max"`
	Bedrooms     int             `json:"bedrooms"`
	Bathrooms    int             `json:"bathrooms"`
	Description  string          `json:"description"`
	Urgency      RequestUrgency  `json:"urgency"`
	IsPremium    bool            `json:"is_premium"`
	LeadPrice    decimal.Decimal `json:"lead_price"`
}

// CreateServiceRequest persists a new request in the open state. Allocation
// is a separate step (workflow.AssignServiceRequest) so a full agent pool
// outage degrades to "queued", never to a lost request.
func CreateServiceRequest(ctx context.Context, input *NewServiceRequest, clientUserId *int) (*ServiceRequest, error) {

	urgency := input.Urgency
	if urgency == "" {
		urgency = RequestUrgencyNormal
	}

	premium := input.IsPremium
	request := ServiceRequest{
		ClientUserId: clientUserId,
		ClientName:   input.ClientName,
		ClientEmail:  input.ClientEmail,
		ClientPhone:  input.ClientPhone,
		RequestType:  input.RequestType,
		PropertyType: input.PropertyType,
		Location:     input.Location,
		BudgetMin:    input.BudgetMin,
		BudgetMax:    input.BudgetMax,
		Bedrooms:     input.Bedrooms,
		Bathrooms:    input.Bathrooms,
		Description:  input.Description,
		Urgency:      urgency,
		Status:       ServiceRequestStatusOpen,
		IsPremium:    &premium,
		LeadPrice:    input.LeadPrice,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&request).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

// ListServiceRequests is the admin view, newest first.
func ListServiceRequests(ctx context.Context, status ServiceRequestStatus, limit int) ([]*ServiceRequest, error) {

	db := config.GetDB()
	q := db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var requests []*ServiceRequest
	if err := q.Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

// ListOpenUnassigned returns queued requests awaiting an eligible agent.
func ListOpenUnassigned(ctx context.Context, limit int) ([]*ServiceRequest, error) {

	db := config.GetDB()
	q := db.WithContext(ctx).
		Where("status = ? AND assigned_agent_id IS NULL", ServiceRequestStatusOpen).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var requests []*ServiceRequest
	if err := q.Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}
