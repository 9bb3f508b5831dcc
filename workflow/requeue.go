package workflow

import (
	"context"
	"errors"

	"github.com/dwellmatch/estates_backend/config"
	"github.com/dwellmatch/estates_backend/models"
	"github.com/dwellmatch/estates_backend/utils"
)

// RequeueResult summarizes one sweep over open unassigned requests.
type RequeueResult struct {
	Scanned  int `json:"scanned"`
	Assigned int `json:"assigned"`
	Queued   int `json:"queued"`
	Failed   int `json:"failed"`
}

// RequeueOpenRequests tries to assign every open, unassigned service request.
// It is run periodically (cron / Cloud Scheduler) to drain the backlog that
// accumulates while no eligible agents exist. Once a request comes back
// Queued the pool is empty and the sweep stops early: the remaining requests
// would queue too.
func RequeueOpenRequests(ctx context.Context, batchSize int) (*RequeueResult, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	requests, err := models.ListOpenUnassigned(ctx, batchSize)
	if err != nil {
		return nil, err
	}

	result := &RequeueResult{}
	for _, req := range requests {
		result.Scanned++
		assignment, err := AssignServiceRequest(ctx, req.ID, 0)
		if err != nil {
			// Races with concurrent manual assignment or cancellation are
			// expected here; skip and keep sweeping.
			if errors.Is(err, utils.ErrorRecordNotFound) || errors.Is(err, utils.ErrorPreconditionFailed) {
				continue
			}
			result.Failed++
			config.LogError(config.GetLogger(), "workflow", "RequeueOpenRequests", "assign", map[string]interface{}{"request_id": req.ID}, err)
			continue
		}
		if assignment.Queued {
			result.Queued = len(requests) - result.Scanned + 1
			break
		}
		result.Assigned++
	}
	return result, nil
}
