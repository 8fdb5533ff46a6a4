// Package jobs contains background workers that run on a schedule.
// The retention job enforces the operator-level data retention policy by
// pruning audit records older than the configured horizon. Jobs are designed
// to be idempotent: re-running after a crash produces the same result as a
// clean run.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stockledger/stockledger/internal/telemetry"
)

// RetentionStore is the persistence contract the retention job depends on.
type RetentionStore interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionJob periodically deletes audit records older than the retention
// horizon. The audit trail is append-only through the API; this job is the
// single sanctioned exception, driven by operator configuration.
type RetentionJob struct {
	store         RetentionStore
	retentionDays int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRetentionJob creates a retention job keeping retentionDays of history.
func NewRetentionJob(store RetentionStore, retentionDays int) *RetentionJob {
	return &RetentionJob{
		store:         store,
		retentionDays: retentionDays,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the periodic pruning loop. An initial pass runs immediately so
// a long-stopped service catches up on startup.
func (j *RetentionJob) Start(ctx context.Context, interval time.Duration) {
	slog.Info("starting audit retention job",
		"retention_days", j.retentionDays, "interval", interval)

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		j.prune(ctx)

		for {
			select {
			case <-ticker.C:
				j.prune(ctx)
			case <-j.stopCh:
				slog.Info("audit retention job stopped")
				return
			case <-ctx.Done():
				slog.Info("audit retention job context cancelled")
				return
			}
		}
	}()
}

// Stop stops the pruning loop and waits for an in-flight pass to finish.
func (j *RetentionJob) Stop() {
	close(j.stopCh)
	j.wg.Wait()
}

func (j *RetentionJob) prune(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -j.retentionDays)

	pruned, err := j.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("audit retention pass failed", "cutoff", cutoff, "error", err)
		return
	}

	if pruned > 0 {
		telemetry.AuditRecordsPrunedTotal.Add(float64(pruned))
		slog.Info("pruned expired audit records", "count", pruned, "cutoff", cutoff)
	}
}
