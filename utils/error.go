package utils

import (
	"context"
	"errors"
	"time"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrorPreconditionFailed means the caller attempted a state transition
// that is not valid from the current state, or not permitted for the
// acting identity (completing an unassigned request, a non-assignee
// releasing, etc.). The caller should re-read current state; it is never
// retried automatically.
var ErrorPreconditionFailed = errors.New("precondition not met")

// ErrorAlreadySold means a purchase lost the race: the lead was committed
// to another buyer first. Not an infrastructure error; retrying the same
// purchase is pointless.
var ErrorAlreadySold = errors.New("lead already sold")

// ErrorStoreUnavailable wraps infrastructure failures from MySQL/Redis.
// The only transiently-retryable class, and only for idempotent operations.
var ErrorStoreUnavailable = errors.New("store unavailable")

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}

// RetryOnStoreUnavailable runs fn with bounded retries, retrying only
// when the returned error wraps ErrorStoreUnavailable. PreconditionFailed
// and AlreadySold reflect real-world state and pass through untouched.
func RetryOnStoreUnavailable(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !errors.Is(err, ErrorStoreUnavailable) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
