package models

import (
	"context"
	"time"

	"github.com/dwellmatch/estates_backend/config"
	"github.com/dwellmatch/estates_backend/utils"
	"github.com/shopspring/decimal"
)

// Agent is a candidate in the round-robin pool. LastRequestAssignedAt is
// the fairness marker: NULL means "never served" and always wins the next
// assignment. It only ever moves forward (see workflow.AssignServiceRequest).
type Agent struct {
	ID                     int                `gorm:"primary_key" json:"id"`
	UserId                 int                `gorm:"uniqueIndex;not null" json:"user_id"`
	User                   *User              `json:"user,omitempty"`
	BusinessName           string             `gorm:"size:100" json:"business_name"`
	VerificationStatus     VerificationStatus `gorm:"size:20;not null;default:pending;index" json:"verification_status"`
	PaymentStatus          PaymentStatus      `gorm:"size:20;not null;default:unpaid;index" json:"payment_status"`
	DocumentURL            string             `gorm:"size:255" json:"document_url"`
	WalletBalance          decimal.Decimal    `gorm:"type:decimal(12,2);not null;default:0" json:"wallet_balance"`
	LastRequestAssignedAt  *time.Time         `gorm:"index" json:"last_request_assigned_at"`
	RequestsHandled        int                `gorm:"not null;default:0" json:"requests_handled"`
	CreatedAt              time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAgent struct {
	FullName     string `json:"full_name" binding:"required"`
	Email        string `json:"email" binding:"required,email"`
	Phone        string `json:"phone"`
	Password     string `json:"password" binding:"required,min=8"`
	BusinessName string `json:"business_name"`
}

// Eligible reports whether the agent may currently receive assignments.
// Callers filter with this BEFORE the round-robin pick.
func (a Agent) Eligible() bool {
	if a.VerificationStatus != VerificationStatusApproved {
		return false
	}
	if config.RequireAgentPayment() && a.PaymentStatus != PaymentStatusPaid {
		return false
	}
	return true
}

// SignupAgent creates the user + agent pair. Agents start pending and
// unpaid: they enter the allocation pool only after an admin approves the
// verification documents and payment is confirmed.
func SignupAgent(ctx context.Context, input *NewAgent) (*Agent, error) {

	user, err := CreateUser(ctx, &NewUser{
		FullName: input.FullName,
		Email:    input.Email,
		Phone:    input.Phone,
		Password: input.Password,
		Role:     "agent",
	})
	if err != nil {
		return nil, err
	}

	agent := Agent{
		UserId:       user.ID,
		BusinessName: input.BusinessName,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&agent).Error; err != nil {
		return nil, err
	}
	agent.User = user
	return &agent, nil
}

// FetchEligibleAgents returns the current allocation pool ordered the way
// the round-robin wants it: oldest assignment first, never-assigned first
// of all. MySQL sorts NULLs first on ASC; the id tie-break keeps the
// order deterministic when timestamps collide.
func FetchEligibleAgents(ctx context.Context) ([]*Agent, error) {

	db := config.GetDB()
	q := db.WithContext(ctx).
		Where("verification_status = ?", VerificationStatusApproved).
		Order("last_request_assigned_at ASC, id ASC")
	if config.RequireAgentPayment() {
		q = q.Where("payment_status = ?", PaymentStatusPaid)
	}

	var agents []*Agent
	if err := q.Find(&agents).Error; err != nil {
		return nil, err
	}
	return agents, nil
}

func UpdateAgentVerification(ctx context.Context, agentId int, status VerificationStatus) (*Agent, error) {

	agent, err := utils.FetchModel[Agent](ctx, agentId)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(agent).Updates(map[string]interface{}{
		"VerificationStatus": status,
	}).Error
	if err != nil {
		return nil, err
	}
	_ = utils.RemoveRedisItem[Agent](agentId)
	return agent, nil
}

func UpdateAgentPayment(ctx context.Context, agentId int, status PaymentStatus) (*Agent, error) {

	agent, err := utils.FetchModel[Agent](ctx, agentId)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(agent).Updates(map[string]interface{}{
		"PaymentStatus": status,
	}).Error
	if err != nil {
		return nil, err
	}
	_ = utils.RemoveRedisItem[Agent](agentId)
	return agent, nil
}
