package util

import (
	"context"
	"time"

	"github.com/tubetok/tubetok/logger"
)

type ctxKey int

const loggerKey ctxKey = iota

// WithLogger attaches lg to the context.
func WithLogger(ctx context.Context, lg logger.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, lg)
}

// GetLogger returns the logger attached to the context, or a discarding
// logger if there is none.
func GetLogger(ctx context.Context) logger.Logger {
	if lg, ok := ctx.Value(loggerKey).(logger.Logger); ok {
		return lg
	}
	return logger.Discard()
}

// SleepContext sleeps for the given duration or until the context is canceled.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LoopUntilCancelled runs f in a loop until the context is canceled or f
// returns a non-nil error.
func LoopUntilCancelled(ctx context.Context, f func() error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := f(); err != nil {
				return err
			}
		}
	}
}
