package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/dwellmatch/estates_backend/config"
	"github.com/dwellmatch/estates_backend/models"
	"github.com/dwellmatch/estates_backend/utils"
	"gorm.io/gorm"
)

const agentPool = "agents"

// AssignmentResult reports the outcome of an allocation attempt.
// Queued means no eligible agent existed: the request stays open and is
// retried by an external trigger (new agent approved, a release, or the
// requeue job). Queued is a normal outcome, not an error.
type AssignmentResult struct {
	Queued  bool `json:"queued"`
	AgentId int  `json:"agent_id,omitempty"`
}

// NextAgent picks the fairness winner from an eligible pool: oldest
// last_request_assigned_at first, never-assigned (nil) before everyone,
// ties broken by ascending id so the order is reproducible. excludeId
// skips the releasing agent on the release path; pass 0 for no exclusion.
//
// Pure selection, no side effects; the commit happens in
// AssignServiceRequest.
func NextAgent(pool []*models.Agent, excludeId int) *models.Agent {
	var best *models.Agent
	for _, a := range pool {
		if a == nil || a.ID == excludeId {
			continue
		}
		if best == nil || lessRecentlyServed(a, best) {
			best = a
		}
	}
	return best
}

func lessRecentlyServed(a, b *models.Agent) bool {
	switch {
	case a.LastRequestAssignedAt == nil && b.LastRequestAssignedAt == nil:
		return a.ID < b.ID
	case a.LastRequestAssignedAt == nil:
		return true
	case b.LastRequestAssignedAt == nil:
		return false
	}
	if a.LastRequestAssignedAt.Equal(*b.LastRequestAssignedAt) {
		return a.ID < b.ID
	}
	return a.LastRequestAssignedAt.Before(*b.LastRequestAssignedAt)
}

// AssignServiceRequest allocates an open request to the next agent in the
// round-robin. The request flip and the agent's fairness marker commit in
// ONE transaction: splitting them is exactly the race that lets two
// concurrent submissions pick the same "never assigned" agent.
//
// excludeAgentId is non-zero on the release path so the releasing agent
// is not immediately re-selected.
func AssignServiceRequest(ctx context.Context, requestId int, excludeAgentId int) (*AssignmentResult, error) {

	// Best-effort Redis lock; correctness comes from the advisory lock
	// and the conditional updates below.
	if lock := obtainRedisAllocationLock(ctx, agentPool); lock != nil {
		defer lock.Release(context.WithoutCancel(ctx))
	}

	db := config.GetDB()
	var result *AssignmentResult
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireAllocationLock(tx, agentPool); err != nil {
			return storeErr(err)
		}
		defer ReleaseAllocationLock(tx, agentPool)

		var err error
		result, err = assignInTx(ctx, tx, requestId, excludeAgentId)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// assignInTx does the pick + conditional commit. Callers must hold the
// allocation advisory lock on tx.
func assignInTx(ctx context.Context, tx *gorm.DB, requestId int, excludeAgentId int) (*AssignmentResult, error) {

	pool, err := fetchEligibleAgentsTx(tx)
	if err != nil {
		return nil, storeErr(err)
	}

	agent := NextAgent(pool, excludeAgentId)
	if agent == nil {
		// Empty pool: the request stays open, queued for a later attempt.
		return &AssignmentResult{Queued: true}, nil
	}

	now := time.Now().UTC()

	// The WHERE clause is the precondition: only an open, unassigned
	// request can be claimed, and only one concurrent caller wins.
	res := tx.Model(&models.ServiceRequest{}).
		Where("id = ? AND status = ? AND assigned_agent_id IS NULL",
			requestId, models.ServiceRequestStatusOpen).
		Updates(map[string]interface{}{
			"assigned_agent_id": agent.ID,
			"status":            models.ServiceRequestStatusAssigned,
			"assigned_at":       now,
		})
	if res.Error != nil {
		return nil, storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := tx.Model(&models.ServiceRequest{}).Where("id = ?", requestId).Count(&count).Error; err != nil {
			return nil, storeErr(err)
		}
		if count == 0 {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, fmt.Errorf("request %d is not open and unassigned: %w", requestId, utils.ErrorPreconditionFailed)
	}

	// last_request_assigned_at only moves forward. A concurrent commit
	// with a later timestamp wins and this write is skipped.
	res = tx.Model(&models.Agent{}).
		Where("id = ? AND (last_request_assigned_at IS NULL OR last_request_assigned_at <= ?)", agent.ID, now).
		Updates(map[string]interface{}{
			"last_request_assigned_at": now,
			"requests_handled":         gorm.Expr("requests_handled + 1"),
		})
	if res.Error != nil {
		return nil, storeErr(res.Error)
	}

	notif := &models.Notification{
		UserId:        agent.UserId,
		AgentId:       agent.ID,
		Type:          models.NotificationTypeRequestAssigned,
		Subject:       "New Client Request Assigned",
		Body:          "You have received a new client request. Check your agent dashboard to view details.",
		ReferenceType: "service_request",
		ReferenceId:   requestId,
	}
	if err := models.EnqueueNotification(ctx, tx, notif); err != nil {
		return nil, storeErr(err)
	}

	return &AssignmentResult{AgentId: agent.ID}, nil
}

func fetchEligibleAgentsTx(tx *gorm.DB) ([]*models.Agent, error) {
	q := tx.
		Where("verification_status = ?", models.VerificationStatusApproved).
		Order("last_request_assigned_at ASC, id ASC")
	if config.RequireAgentPayment() {
		q = q.Where("payment_status = ?", models.PaymentStatusPaid)
	}

	var agents []*models.Agent
	if err := q.Find(&agents).Error; err != nil {
		return nil, err
	}
	return agents, nil
}

// storeErr classifies an infrastructure failure as transiently retryable.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", utils.ErrorStoreUnavailable, err)
}
