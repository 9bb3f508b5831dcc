// cleanup-expired-boosts deactivates advertisements whose paid boost window
// has ended, so the rotation only ever picks from live ads. Intended to run
// as a scheduled job.
//
// Usage:
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/cleanup-expired-boosts
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dwellmatch/estates_backend/config"
	"github.com/dwellmatch/estates_backend/models"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	affected, err := models.DeactivateExpiredBoosts(ctx, time.Now().UTC())
	if err != nil {
		fmt.Fprintf(os.Stderr, "cleanup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("deactivated %d expired advertisements\n", affected)
}
