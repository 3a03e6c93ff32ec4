package relayq

import (
	"context"
	"fmt"
	"time"

	"github.com/relaylabs/relayq/internal/keys"
	"github.com/relaylabs/relayq/job"
)

// Add creates a job, persists it, and routes it into delayed or
// wait/paused (+ priority) per its Options. It arms the delay timer
// locally as a fast path alongside the delayed pub/sub channel the
// create script publishes on.
func (q *Queue) Add(ctx context.Context, data any, opts job.Options) (*job.Job, error) {
	if q.isClosing() {
		return nil, ErrClosed
	}
	j, err := job.Create(ctx, q.client, q.keys, data, opts)
	if err != nil {
		return nil, err
	}
	q.opts.Metrics.JobEnqueued()
	if opts.Delay > 0 {
		q.delay.updateDelayTimer(j.Timestamp.Add(opts.Delay))
	}
	q.events.distEmit(ctx, Event{Name: EventWaiting, Job: j})
	return j, nil
}

// GetJob loads a single job by id, or (nil, nil) if it no longer exists.
func (q *Queue) GetJob(ctx context.Context, id string) (*job.Job, error) {
	return job.FromID(ctx, q.client, q.keys, id)
}

// JobCounts reports the size of each collection, as returned by
// GetJobCounts.
type JobCounts struct {
	Waiting   int64
	Active    int64
	Delayed   int64
	Completed int64
	Failed    int64
	Paused    int64
}

// GetJobCounts reports the current size of every collection in a single
// pipelined round trip.
func (q *Queue) GetJobCounts(ctx context.Context) (JobCounts, error) {
	pipe := q.client.Pipeline()
	wait := pipe.LLen(ctx, q.keys.Of(keys.Wait))
	active := pipe.LLen(ctx, q.keys.Of(keys.Active))
	delayed := pipe.ZCard(ctx, q.keys.Of(keys.Delayed))
	completed := pipe.SCard(ctx, q.keys.Of(keys.Completed))
	failed := pipe.SCard(ctx, q.keys.Of(keys.Failed))
	paused := pipe.LLen(ctx, q.keys.Of(keys.Paused))
	if _, err := pipe.Exec(ctx); err != nil {
		return JobCounts{}, fmt.Errorf("relayq: get job counts: %w", err)
	}
	counts := JobCounts{
		Waiting:   wait.Val(),
		Active:    active.Val(),
		Delayed:   delayed.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
		Paused:    paused.Val(),
	}
	q.opts.Metrics.SetQueueDepths(int(counts.Waiting), int(counts.Active), int(counts.Delayed))
	return counts, nil
}

// Count returns the combined size of wait, active, delayed, and paused —
// the jobs that still have work left to do.
func (q *Queue) Count(ctx context.Context) (int64, error) {
	counts, err := q.GetJobCounts(ctx)
	if err != nil {
		return 0, err
	}
	return counts.Waiting + counts.Active + counts.Delayed + counts.Paused, nil
}

func (q *Queue) getIDsByList(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return q.client.LRange(ctx, key, start, stop).Result()
}

func (q *Queue) getIDsBySet(ctx context.Context, key string) ([]string, error) {
	return q.client.SMembers(ctx, key).Result()
}

func (q *Queue) hydrate(ctx context.Context, ids []string) ([]*job.Job, error) {
	jobs := make([]*job.Job, 0, len(ids))
	for _, id := range ids {
		j, err := job.FromID(ctx, q.client, q.keys, id)
		if err != nil {
			return nil, err
		}
		if j != nil {
			jobs = append(jobs, j)
		}
	}
	return jobs, nil
}

// GetWaiting returns jobs in the wait list between start and stop
// (inclusive, 0-indexed, negative indices count from the end — LRANGE
// semantics).
func (q *Queue) GetWaiting(ctx context.Context, start, stop int64) ([]*job.Job, error) {
	ids, err := q.getIDsByList(ctx, q.keys.Of(keys.Wait), start, stop)
	if err != nil {
		return nil, err
	}
	return q.hydrate(ctx, ids)
}

// GetActive returns jobs currently checked out by a worker.
func (q *Queue) GetActive(ctx context.Context, start, stop int64) ([]*job.Job, error) {
	ids, err := q.getIDsByList(ctx, q.keys.Of(keys.Active), start, stop)
	if err != nil {
		return nil, err
	}
	return q.hydrate(ctx, ids)
}

// GetDelayed returns every delayed job, ordered by promotion time.
func (q *Queue) GetDelayed(ctx context.Context) ([]*job.Job, error) {
	ids, err := q.client.ZRange(ctx, q.keys.Of(keys.Delayed), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("relayq: get delayed: %w", err)
	}
	return q.hydrate(ctx, ids)
}

// GetCompleted returns completed jobs. Completed is an unordered set, so
// there is no meaningful "most recent N" — this returns every member.
func (q *Queue) GetCompleted(ctx context.Context) ([]*job.Job, error) {
	ids, err := q.getIDsBySet(ctx, q.keys.Of(keys.Completed))
	if err != nil {
		return nil, err
	}
	return q.hydrate(ctx, ids)
}

// GetFailed returns failed jobs. Like GetCompleted, failed is an
// unordered set.
func (q *Queue) GetFailed(ctx context.Context) ([]*job.Job, error) {
	ids, err := q.getIDsBySet(ctx, q.keys.Of(keys.Failed))
	if err != nil {
		return nil, err
	}
	return q.hydrate(ctx, ids)
}

// Empty is a best-effort truncation of wait, paused, delayed, and
// meta-paused — every job that hasn't started processing, plus the
// global-pause marker. It does not touch active, completed, or failed.
func (q *Queue) Empty(ctx context.Context) error {
	if err := q.client.Del(ctx,
		q.keys.Of(keys.Wait),
		q.keys.Of(keys.Priority),
		q.keys.Of(keys.Paused),
		q.keys.Of(keys.Delayed),
		q.keys.Of(keys.MetaPaused),
	).Err(); err != nil {
		return fmt.Errorf("relayq: empty: %w", err)
	}
	return nil
}

// CleanType names a terminal collection Clean can operate on.
type CleanType string

const (
	CleanCompleted CleanType = "completed"
	CleanFailed    CleanType = "failed"
)

// Clean removes jobs from a terminal collection whose finishedOn is
// older than olderThan, up to limit jobs (0 means unlimited). It returns
// the removed job ids and emits a single "cleaned" event summarizing the
// batch.
func (q *Queue) Clean(ctx context.Context, kind CleanType, olderThan time.Duration, limit int) ([]string, error) {
	var setKey string
	switch kind {
	case CleanCompleted:
		setKey = q.keys.Of(keys.Completed)
	case CleanFailed:
		setKey = q.keys.Of(keys.Failed)
	default:
		return nil, ErrInvalidCleanType
	}

	cutoff := time.Now().Add(-olderThan).UnixMilli()
	res, err := cleanJobsInSetScript.Run(ctx, q.client, []string{
		setKey,
		q.keys.Of(""),
	}, cutoff, limit).Result()
	if err != nil {
		return nil, fmt.Errorf("relayq: clean: %w", err)
	}
	ids := toStringSlice(res)
	q.events.emit(Event{Name: EventCleaned, Message: fmt.Sprintf("removed %d %s job(s)", len(ids), kind)})
	return ids, nil
}
