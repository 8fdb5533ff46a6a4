// Package safego provides a panic-recovering goroutine launcher for background work.
package safego

import "log/slog"

// Go launches fn in a new goroutine under the given task name. If fn panics,
// the panic is recovered and logged rather than crashing the process. This
// should be used for all fire-and-forget goroutines (async audit shipping,
// background collectors, etc.) where an unrecovered panic would silently kill
// the goroutine forever.
func Go(task string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background goroutine", "task", task, "panic", r)
			}
		}()
		fn()
	}()
}
