package groutine

import (
	"context"
	"fmt"
	"runtime/debug"
	"runtime/pprof"

	"github.com/sirupsen/logrus"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts a goroutine labelled with name so it can be told apart in
// profiles and logs. Example usage:
//
//	groutine.Go(ctx, "looper", func(ctx context.Context) {
//	    // work
//	})
//
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		ctx = context.WithValue(ctx, goroutineNameKey, name)
		fn(ctx)
	})
}

// GoSafe is Go with a recover guard: a panic inside fn is logged with its stack
// and handed to onPanic instead of taking the process down.
func GoSafe(parentCtx context.Context, name string, logger *logrus.Logger, fn func(ctx context.Context), onPanic func(error)) {
	if logger == nil {
		logger = logrus.New()
	}
	Go(parentCtx, name, func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("goroutine %s panicked: %v", name, r)
				logger.WithFields(logrus.Fields{
					"goroutine": name,
					"stack":     string(debug.Stack()),
				}).WithError(err).Error("Recovered goroutine panic")
				if onPanic != nil {
					onPanic(err)
				}
			}
		}()
		fn(ctx)
	})
}

// GetName retrieves the goroutine name from the context.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(goroutineNameKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
