package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"gorm.io/gorm"

	"github.com/dwellmatch/estates_backend/models"
)

type agentReader struct {
	db *gorm.DB
}

func (r *agentReader) getAgents(ctx context.Context, ids []int) []*dataloader.Result[*models.Agent] {
	var results []models.Agent

	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&results).Error
	if err != nil {
		return handleError[*models.Agent](len(ids), err)
	}

	resultMap := make(map[int]*models.Agent)
	for i := range results {
		resultMap[results[i].ID] = &results[i]
	}

	loaderResults := make([]*dataloader.Result[*models.Agent], 0, len(ids))
	for _, id := range ids {
		loaderResults = append(loaderResults, &dataloader.Result[*models.Agent]{Data: resultMap[id]})
	}
	return loaderResults
}

// GetAgent returns single agent by id efficiently
func GetAgent(ctx context.Context, id int) (*models.Agent, error) {
	loaders := For(ctx)
	return loaders.AgentLoader.Load(ctx, id)()
}

// GetAgents returns many agents by ids efficiently
func GetAgents(ctx context.Context, ids []int) ([]*models.Agent, []error) {
	loaders := For(ctx)
	return loaders.AgentLoader.LoadMany(ctx, ids)()
}
