package remote

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type PollOptions struct {
	// Interval is the wait before the first re-check. It doubles up to MaxInterval.
	Interval    time.Duration
	MaxInterval time.Duration
	// Timeout bounds the whole poll. Zero leaves it to ctx.
	Timeout time.Duration
}

func DefaultPollOptions() PollOptions {
	return PollOptions{
		Interval:    time.Second,
		MaxInterval: 10 * time.Second,
		Timeout:     10 * time.Minute,
	}
}

// Poll calls check until it reports done or fails. The first call happens immediately.
func Poll[T any](ctx context.Context, opts PollOptions, check func(ctx context.Context) (T, bool, error)) (T, error) {
	var zero T

	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.MaxInterval < opts.Interval {
		opts.MaxInterval = opts.Interval
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	interval := opts.Interval
	for attempt := 1; ; attempt++ {
		result, done, err := check(ctx)
		if err != nil {
			return zero, err
		}
		if done {
			return result, nil
		}

		slog.Debug("poll waiting", "attempt", attempt, "interval", interval)
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			if ctx.Err() == context.DeadlineExceeded {
				return zero, fmt.Errorf("%w after %d attempts", ErrPollTimeout, attempt)
			}
			return zero, ctx.Err()
		case <-timer.C:
		}

		interval = min(interval*2, opts.MaxInterval)
	}
}
