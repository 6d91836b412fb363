package util

import (
	"runtime/debug"

	"github.com/stakedash/stakedash/internal/logging"
)

// Go runs fn on a new goroutine and logs, rather than propagates, a panic.
// name identifies the goroutine in the log record.
func Go(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Error("goroutine panic recovered",
					"goroutine", name,
					"panic", r,
					"stack", string(debug.Stack()),
				)
			}
		}()
		fn()
	}()
}
