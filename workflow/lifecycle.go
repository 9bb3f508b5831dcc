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

// SubmitServiceRequest creates the request and immediately attempts
// allocation. Allocation failure never loses the request: it stays open
// and queued for the next trigger.
func SubmitServiceRequest(ctx context.Context, input *models.NewServiceRequest, clientUserId *int) (*models.ServiceRequest, *AssignmentResult, error) {

	request, err := models.CreateServiceRequest(ctx, input, clientUserId)
	if err != nil {
		return nil, nil, storeErr(err)
	}

	if !config.AutoAssignOnSubmit() {
		return request, &AssignmentResult{Queued: true}, nil
	}

	var result *AssignmentResult
	err = utils.RetryOnStoreUnavailable(ctx, 3, 200*time.Millisecond, func() error {
		var aerr error
		result, aerr = AssignServiceRequest(ctx, request.ID, 0)
		return aerr
	})
	if err != nil {
		// Request creation already committed; report it as queued so the
		// caller does not resubmit (which would duplicate the request).
		logger := config.GetLogger()
		config.LogError(logger, "lifecycle.go", "SubmitServiceRequest", "AssignServiceRequest", request.ID, err)
		return request, &AssignmentResult{Queued: true}, nil
	}
	return request, result, nil
}

// CompleteServiceRequest marks an assigned request done. Only the current
// assignee may complete; anything else is a stale-state precondition
// failure the caller must observe.
func CompleteServiceRequest(ctx context.Context, requestId int, actingAgentId int) error {

	if err := guardTransition(ctx, requestId, models.ServiceRequestStatusCompleted); err != nil {
		return err
	}

	now := time.Now().UTC()
	db := config.GetDB()
	res := db.WithContext(ctx).Model(&models.ServiceRequest{}).
		Where("id = ? AND status = ? AND assigned_agent_id = ?",
			requestId, models.ServiceRequestStatusAssigned, actingAgentId).
		Updates(map[string]interface{}{
			"status":       models.ServiceRequestStatusCompleted,
			"completed_at": now,
		})
	if res.Error != nil {
		return storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return preconditionDetail(ctx, requestId, "complete")
	}
	return nil
}

// ReleaseServiceRequest hands an assigned request back to the queue and
// reassigns it, excluding the releasing agent. Clear and reassign commit
// in ONE transaction under the allocation lock; the original system's
// two-write window could briefly show a cleared-but-unassigned request
// to a concurrent reader.
//
// adminOverride releases on behalf of any assignee (admin tooling);
// otherwise only the current assignee may release.
func ReleaseServiceRequest(ctx context.Context, requestId int, actingAgentId int, adminOverride bool) (*AssignmentResult, error) {

	if err := guardTransition(ctx, requestId, models.ServiceRequestStatusOpen); err != nil {
		return nil, err
	}

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

		// Who is releasing? Needed for the exclusion even on admin override.
		var request models.ServiceRequest
		if err := tx.First(&request, requestId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}
		if request.Status != models.ServiceRequestStatusAssigned || request.AssignedAgentId == nil {
			return fmt.Errorf("request %d is not assigned: %w", requestId, utils.ErrorPreconditionFailed)
		}
		releasingAgentId := *request.AssignedAgentId
		if !adminOverride && releasingAgentId != actingAgentId {
			return fmt.Errorf("request %d is not assigned to agent %d: %w", requestId, actingAgentId, utils.ErrorPreconditionFailed)
		}

		res := tx.Model(&models.ServiceRequest{}).
			Where("id = ? AND status = ? AND assigned_agent_id = ?",
				requestId, models.ServiceRequestStatusAssigned, releasingAgentId).
			Updates(map[string]interface{}{
				"assigned_agent_id": nil,
				"status":            models.ServiceRequestStatusOpen,
				"assigned_at":       nil,
			})
		if res.Error != nil {
			return storeErr(res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("request %d changed concurrently: %w", requestId, utils.ErrorPreconditionFailed)
		}

		var err error
		result, err = assignInTx(ctx, tx, requestId, releasingAgentId)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CancelServiceRequest is administrative: any non-terminal request may be
// cancelled, clearing the assignment. No reassignment happens.
func CancelServiceRequest(ctx context.Context, requestId int) error {

	now := time.Now().UTC()
	db := config.GetDB()
	res := db.WithContext(ctx).Model(&models.ServiceRequest{}).
		Where("id = ? AND status IN ?", requestId,
			[]models.ServiceRequestStatus{models.ServiceRequestStatusOpen, models.ServiceRequestStatusAssigned}).
		Updates(map[string]interface{}{
			"status":            models.ServiceRequestStatusCancelled,
			"assigned_agent_id": nil,
			"cancelled_at":      now,
		})
	if res.Error != nil {
		return storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return preconditionDetail(ctx, requestId, "cancel")
	}
	return nil
}

// ToggleContacted flips the contacted flag. Assignee-only metadata;
// does not touch the lifecycle state.
func ToggleContacted(ctx context.Context, requestId int, actingAgentId int) error {

	db := config.GetDB()
	res := db.WithContext(ctx).Model(&models.ServiceRequest{}).
		Where("id = ? AND status = ? AND assigned_agent_id = ?",
			requestId, models.ServiceRequestStatusAssigned, actingAgentId).
		Update("contacted", gorm.Expr("NOT contacted"))
	if res.Error != nil {
		return storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return preconditionDetail(ctx, requestId, "toggle contacted")
	}
	return nil
}

// AddRequestComment attaches an assignee-only note.
func AddRequestComment(ctx context.Context, requestId int, actingAgentId int, input *models.NewRequestComment) (*models.RequestComment, error) {

	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&models.ServiceRequest{}).
		Where("id = ? AND status = ? AND assigned_agent_id = ?",
			requestId, models.ServiceRequestStatusAssigned, actingAgentId).
		Count(&count).Error
	if err != nil {
		return nil, storeErr(err)
	}
	if count == 0 {
		return nil, preconditionDetail(ctx, requestId, "comment")
	}

	comment := models.RequestComment{
		ServiceRequestId: requestId,
		AgentId:          actingAgentId,
		Body:             input.Body,
	}
	if err := db.WithContext(ctx).Create(&comment).Error; err != nil {
		return nil, storeErr(err)
	}
	return &comment, nil
}

// guardTransition rejects lifecycle hops the transition table forbids
// before any write is attempted. The conditional UPDATE remains the
// authoritative check under concurrency.
func guardTransition(ctx context.Context, requestId int, to models.ServiceRequestStatus) error {
	request, err := utils.FetchModel[models.ServiceRequest](ctx, requestId)
	if err != nil {
		return err
	}
	if !models.CanTransition(request.Status, to) {
		return fmt.Errorf("transition %s -> %s: %w", request.Status, to, utils.ErrorPreconditionFailed)
	}
	return nil
}

// preconditionDetail distinguishes "no such request" from "state/actor
// precondition not met" after a zero-row conditional update.
func preconditionDetail(ctx context.Context, requestId int, op string) error {
	db := config.GetDB()
	var count int64
	if err := db.WithContext(ctx).Model(&models.ServiceRequest{}).Where("id = ?", requestId).Count(&count).Error; err != nil {
		return storeErr(err)
	}
	if count == 0 {
		return utils.ErrorRecordNotFound
	}
	return fmt.Errorf("cannot %s request %d in its current state: %w", op, requestId, utils.ErrorPreconditionFailed)
}
