package relayq

import (
	"context"
	"time"

	"github.com/relaylabs/relayq/internal/keys"
	"github.com/relaylabs/relayq/job"
)

// reaperLoop periodically reclaims active jobs whose lock has expired
// without being renewed — a crashed or wedged worker's jobs — per spec
// §4.3: below MaxStalledCount they're requeued into wait, at or above
// it they're moved straight to failed.
func (q *Queue) reaperLoop(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.opts.StalledCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.reapStalled(ctx)
		}
	}
}

func (q *Queue) reapStalled(ctx context.Context) {
	now := time.Now()
	res, err := moveUnlockedJobsToWaitScript.Run(ctx, q.client, []string{
		q.keys.Of(keys.Active),
		q.keys.Of(keys.Wait),
		q.keys.Of(keys.Failed),
	},
		q.opts.MaxStalledCount,
		q.keys.Prefix+":"+q.keys.Queue+":",
		":lock",
		"job stalled more than allowable limit",
		now.UnixMilli(),
	).Result()
	if err != nil {
		q.events.distEmit(ctx, Event{Name: EventError, Err: err})
		return
	}

	rows, ok := res.([]interface{})
	if !ok || len(rows) != 2 {
		return
	}
	failedIDs := toStringSlice(rows[0])
	stalledIDs := toStringSlice(rows[1])

	for _, id := range stalledIDs {
		q.opts.Metrics.JobStalled()
		q.events.distEmit(ctx, Event{Name: EventStalled, Job: q.loadForEvent(ctx, id)})
	}
	for _, id := range failedIDs {
		q.opts.Metrics.JobStalled()
		q.events.distEmit(ctx, Event{Name: EventFailed, Job: q.loadForEvent(ctx, id), Message: "stalled more than allowable limit"})
	}
}

// guardianLoop is the safety net for the delay controller: it re-verifies
// the armed deadline on a fixed cadence in case a pub/sub wakeup was
// dropped (spec §4.1).
func (q *Queue) guardianLoop(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.opts.PollingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.delay.guardianTick(ctx)
		}
	}
}

// loadForEvent loads the full job by id so stalled/failed events carry the
// job's real payload per spec §4.3 ("the reaper emits per-id events after
// loading each Job"), falling back to a bare id-only stub if the load
// itself fails so the event still reaches subscribers.
func (q *Queue) loadForEvent(ctx context.Context, id string) *job.Job {
	j, err := job.FromID(ctx, q.client, q.keys, id)
	if err != nil {
		q.logWarn("reaper: load job for event", "job_id", id, "error", err)
		return &job.Job{ID: id}
	}
	if j == nil {
		return &job.Job{ID: id}
	}
	return j
}

func toStringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
