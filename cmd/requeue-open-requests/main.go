// requeue-open-requests sweeps open, unassigned service requests and tries
// to assign each one to the least recently served eligible agent. Intended
// to run as a scheduled job (Cloud Scheduler / cron); the HTTP admin route
// does the same thing on demand.
//
// Usage:
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/requeue-open-requests
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/dwellmatch/estates_backend/config"
	"github.com/dwellmatch/estates_backend/workflow"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	batchSize := 100
	if v := os.Getenv("REQUEUE_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			batchSize = n
		}
	}

	result, err := workflow.RequeueOpenRequests(ctx, batchSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "requeue failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("requeue done: scanned=%d assigned=%d queued=%d failed=%d\n",
		result.Scanned, result.Assigned, result.Queued, result.Failed)
}
