package principaladmin

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dalemusser/portalauthz/internal/app/system/authz"
)

// conflictBackoff is the first wait between Conflict retries.
const conflictBackoff = 10 * time.Millisecond

// WithRetry runs fn until it succeeds, fails with anything other than
// Conflict, or attempts are used up. fn must re-read the target on every
// call (pass expectedVersion 0), otherwise a retry can never succeed.
func WithRetry[T any](ctx context.Context, attempts int, fn func(context.Context) (T, error)) (T, error) {
	if attempts < 1 {
		attempts = 1
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = conflictBackoff
	exp.MaxInterval = 10 * conflictBackoff
	exp.MaxElapsedTime = 0
	exp.Reset()
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)

	return backoff.RetryWithData(func() (T, error) {
		out, err := fn(ctx)
		if err != nil && authz.KindOf(err) != authz.KindConflict {
			return out, backoff.Permanent(err)
		}
		return out, err
	}, b)
}
