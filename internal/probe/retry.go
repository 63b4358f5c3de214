// internal/probe/retry.go
package probe

import (
	"context"
	"time"
)

// RetryOutcome is the single pass/fail verdict for a target after retries.
type RetryOutcome struct {
	Succeeded bool
	Attempts  int
	Data      any     // decoded payload of the successful attempt
	Last      Outcome // last attempt, successful or not
}

type Retrier struct {
	Attempts int
	Backoff  time.Duration
}

// Do calls fn sequentially until it succeeds or Attempts calls were made.
func (r Retrier) Do(ctx context.Context, fn Func) RetryOutcome {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var out RetryOutcome
	for i := 0; i < attempts; i++ {
		out.Last = fn(ctx)
		out.Attempts++
		if out.Last.Success {
			out.Succeeded = true
			out.Data = out.Last.Data
			return out
		}
		if i == attempts-1 {
			break
		}
		if !r.wait(ctx) {
			break
		}
	}
	return out
}

func (r Retrier) wait(ctx context.Context) bool {
	if r.Backoff <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(r.Backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
