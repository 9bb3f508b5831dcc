package middlewares

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/graph-gophers/dataloader/v7"

	"github.com/dwellmatch/estates_backend/config"
	"github.com/dwellmatch/estates_backend/models"
	"gorm.io/gorm"
)

type ctxKey string

const (
	loadersKey = ctxKey("dataloaders")
)

// Loaders wrap the per-request data loaders injected via middleware.
// Request listings resolve agent and client rows through these so N rows
// cost one batched query instead of N.
type Loaders struct {
	AgentLoader *dataloader.Loader[int, *models.Agent]
	UserLoader  *dataloader.Loader[int, *models.User]
}

func NewLoaders(db *gorm.DB) *Loaders {
	agentReader := &agentReader{db: db}
	userReader := &userReader{db: db}

	return &Loaders{
		AgentLoader: dataloader.NewBatchedLoader(agentReader.getAgents, dataloader.WithWait[int, *models.Agent](time.Millisecond)),
		UserLoader:  dataloader.NewBatchedLoader(userReader.getUsers, dataloader.WithWait[int, *models.User](time.Millisecond)),
	}
}

func LoaderMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		loader := NewLoaders(config.GetDB())
		ctx := context.WithValue(c.Request.Context(), loadersKey, loader)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func For(ctx context.Context) *Loaders {
	return ctx.Value(loadersKey).(*Loaders)
}

// handleError creates array of result with the same error repeated for as many items requested
func handleError[T any](itemsLength int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], itemsLength)
	for i := 0; i < itemsLength; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}
