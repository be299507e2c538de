package utils

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"

	"golang-trend-publisher/pkg/logger"
)

// GoSafe runs fn in a goroutine and recovers a panic instead of crashing the process.
func GoSafe(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("recovered from panic: %v\n%s", r, debug.Stack())
			}
		}()
		fn()
	}()
}

// ShouldContinue reports whether ctx is still live, logging when it is not.
func ShouldContinue(ctx context.Context, log *logger.Logger) bool {
	if err := ctx.Err(); err != nil {
		log.Warn("Context done, stopping work", logger.ErrorField(err))
		return false
	}
	return true
}

// RecoverError converts a recovered panic value into an error.
func RecoverError(r interface{}) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
