package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/dwellmatch/estates_backend/config"
	"gorm.io/gorm"
)

// AcquireAllocationLock serializes round-robin selection across instances
// using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that will do the allocation transaction.
func AcquireAllocationLock(tx *gorm.DB, pool string) error {
	lockName := fmt.Sprintf("allocation:%s", pool)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire allocation lock for pool=%s", pool)
	}
	return nil
}

func ReleaseAllocationLock(tx *gorm.DB, pool string) {
	lockName := fmt.Sprintf("allocation:%s", pool)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

// obtainRedisAllocationLock is a best-effort optimization that keeps
// concurrent instances from piling up on the MySQL advisory lock.
// Reliability must not depend on Redis: callers proceed when Redis is
// down or the lock is contended, and correctness comes from the advisory
// lock plus conditional updates.
func obtainRedisAllocationLock(ctx context.Context, pool string) *redislock.Lock {
	locker := config.GetRedisLock()
	if locker == nil {
		return nil
	}
	lock, err := locker.Obtain(ctx, "allocation:"+pool, 10*time.Second, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 10),
	})
	if err != nil {
		return nil
	}
	return lock
}
