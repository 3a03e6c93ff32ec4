package relayq

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/relaylabs/relayq/internal/relayqtest"
	"github.com/relaylabs/relayq/job"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	rc := relayqtest.Client(t)
	prefix := relayqtest.Prefix(t, rc)

	q, err := New(t.Name(), Options{
		Addr:                 relayqtest.Addr(t),
		KeyPrefix:            prefix,
		StalledCheckInterval: 50 * time.Millisecond,
		PollingInterval:      50 * time.Millisecond,
		LockDuration:         200 * time.Millisecond,
		LockRenewTime:        100 * time.Millisecond,
		ClientCloseTimeout:   2 * time.Second,
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = q.Close(ctx, true)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := q.Ready(ctx); err != nil {
		t.Fatalf("ready: %v", err)
	}
	return q
}

func TestQueue_AddProcessCompletes(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	j, err := q.Add(ctx, map[string]any{"to": "a@example.com"}, job.Options{})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	completed := q.events.On(EventCompleted)

	if err := q.Process(2, func(ctx context.Context, j *job.Job) (any, error) {
		var payload map[string]any
		if err := json.Unmarshal(j.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil
	}); err != nil {
		t.Fatalf("process: %v", err)
	}

	select {
	case e := <-completed:
		if e.Job == nil || e.Job.ID != j.ID {
			t.Fatalf("unexpected completed event: %+v", e)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job never completed")
	}

	counts, err := q.GetJobCounts(ctx)
	if err != nil {
		t.Fatalf("get job counts: %v", err)
	}
	if counts.Completed != 1 {
		t.Fatalf("expected 1 completed job, got %+v", counts)
	}
}

func TestQueue_HandlerErrorMovesToFailed(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	wantErr := "boom"
	j, err := q.Add(ctx, map[string]any{"x": 1}, job.Options{})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	failed := q.events.On(EventFailed)

	if err := q.Process(1, func(ctx context.Context, j *job.Job) (any, error) {
		return nil, errBoom{wantErr}
	}); err != nil {
		t.Fatalf("process: %v", err)
	}

	select {
	case e := <-failed:
		if e.Job == nil || e.Job.ID != j.ID {
			t.Fatalf("unexpected failed event: %+v", e)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job never failed")
	}

	got, err := q.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got == nil || got.FailedReason != wantErr {
		t.Fatalf("unexpected job state: %+v", got)
	}
}

type errBoom struct{ msg string }

func (e errBoom) Error() string { return e.msg }

func TestQueue_DelayedJobIsPromoted(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Add(ctx, map[string]any{"late": true}, job.Options{Delay: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	counts, err := q.GetJobCounts(ctx)
	if err != nil {
		t.Fatalf("get job counts: %v", err)
	}
	if counts.Delayed != 1 || counts.Waiting != 0 {
		t.Fatalf("expected the job to start delayed, got %+v", counts)
	}

	completed := q.events.On(EventCompleted)
	if err := q.Process(1, func(ctx context.Context, j *job.Job) (any, error) {
		return nil, nil
	}); err != nil {
		t.Fatalf("process: %v", err)
	}

	select {
	case <-completed:
	case <-time.After(5 * time.Second):
		t.Fatal("delayed job never promoted and completed")
	}
}

func TestQueue_PauseLocalStopsDispatch(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if err := q.Pause(ctx, true); err != nil {
		t.Fatalf("pause: %v", err)
	}

	processed := make(chan struct{}, 1)
	if err := q.Process(1, func(ctx context.Context, j *job.Job) (any, error) {
		processed <- struct{}{}
		return nil, nil
	}); err != nil {
		t.Fatalf("process: %v", err)
	}

	if _, err := q.Add(ctx, map[string]any{"x": 1}, job.Options{}); err != nil {
		t.Fatalf("add: %v", err)
	}

	select {
	case <-processed:
		t.Fatal("job was dispatched while paused")
	case <-time.After(300 * time.Millisecond):
	}

	if err := q.Resume(ctx, true); err != nil {
		t.Fatalf("resume: %v", err)
	}

	select {
	case <-processed:
	case <-time.After(5 * time.Second):
		t.Fatal("job was never dispatched after resume")
	}
}

func TestQueue_StalledJobIsReaped(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	j, err := q.Add(ctx, map[string]any{"x": 1}, job.Options{})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	// Move the job into active and take a lock under a different token,
	// simulating a worker that checked a job out and then vanished
	// without ever renewing its lock.
	if err := q.client.RPopLPush(ctx, q.keys.Of("wait"), q.keys.Of("active")).Err(); err != nil {
		t.Fatalf("simulate checkout: %v", err)
	}
	if ok, err := j.TakeLock(ctx, q.client, "dead-worker-token", q.opts.LockDuration, false, true); err != nil || !ok {
		t.Fatalf("take lock: ok=%v err=%v", ok, err)
	}

	stalled := q.events.On(EventStalled)
	select {
	case e := <-stalled:
		if e.Job == nil || e.Job.ID != j.ID {
			t.Fatalf("unexpected stalled event: %+v", e)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reaper never detected the stalled job")
	}

	counts, err := q.GetJobCounts(ctx)
	if err != nil {
		t.Fatalf("get job counts: %v", err)
	}
	if counts.Waiting != 1 {
		t.Fatalf("expected the stalled job to be requeued into wait, got %+v", counts)
	}
}
