package service

import (
	"context"
	"time"
)

// RunSweeper closes threads whose persisted schedule has passed. It covers schedules
// armed before a restart. Blocks until ctx is cancelled.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	e.Sweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and returns how many threads it closed.
func (e *Engine) Sweep(ctx context.Context) int {
	due, err := e.threads.DueForClose(ctx, e.now().UTC())
	if err != nil {
		e.log.WithError(err).Error("Failed to get threads due for close")
		return 0
	}

	closed := 0
	for _, thread := range due {
		ok, err := e.closeIfDue(ctx, thread.ID, *thread.ScheduledCloseAt)
		if err != nil {
			e.logger(thread).WithError(err).Error("Failed to close scheduled thread")
			continue
		}
		if ok {
			closed++
		}
	}

	if closed > 0 {
		e.log.Infof("Processed %d scheduled closes", closed)
	}
	return closed
}
