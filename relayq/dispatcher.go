package relayq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/relaylabs/relayq/job"
)

// Handler is the user-supplied job handler. Its return value must be
// JSON-serializable; a value that fails to marshal is treated as a
// handler failure (spec §4.2 step 4).
type Handler func(ctx context.Context, j *job.Job) (any, error)

// Process installs the single handler for this Queue and starts
// concurrency dispatcher goroutines, coordinated with an errgroup.Group
// so a goroutine's early return is visible to Close's drain wait.
// Installing a second handler is a programming error and returns
// ErrDuplicateHandler. Workers run until Close is called; there is no
// separate stop method.
func (q *Queue) Process(concurrency int, handler Handler) error {
	if !atomic.CompareAndSwapInt32(&q.handlerInstalled, 0, 1) {
		return ErrDuplicateHandler
	}
	if concurrency < 1 {
		concurrency = 1
	}
	q.handler = handler

	g, gctx := errgroup.WithContext(q.lifeCtx)
	q.dispatchGroup = g
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			q.dispatchLoop(gctx)
			return nil
		})
	}
	return nil
}

// dispatchLoop is one logical worker: gate on pause, fetch, process,
// repeat, until the queue starts closing or ctx is done.
func (q *Queue) dispatchLoop(ctx context.Context) {
	for {
		if q.isClosing() {
			return
		}
		if err := q.pauser.await(ctx); err != nil {
			return
		}
		if q.isClosing() {
			return
		}

		j, err := q.getNextJob(ctx, true)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.events.distEmit(ctx, Event{Name: EventError, Err: err})
			continue
		}
		if j == nil {
			continue
		}
		q.processJob(ctx, j)
	}
}

// getNextJob implements spec §4.2: a blocking (or, with blocking=false,
// non-blocking) move of one job id from wait to active, best-effort
// priority-set cleanup, and the Job load. It returns (nil, nil) when no
// job was available.
func (q *Queue) getNextJob(ctx context.Context, blocking bool) (*job.Job, error) {
	atomic.AddInt64(&q.retrieving, 1)
	defer atomic.AddInt64(&q.retrieving, -1)

	if q.isClosing() || (q.pauser.isPaused() && !blocking) {
		return nil, nil
	}

	id, err := q.popToActive(ctx, blocking)
	if err != nil {
		return nil, err
	}
	if id == "" {
		q.events.emit(Event{Name: EventNoJobRetrieved})
		return nil, nil
	}

	// Best-effort, non-atomic with the move above — spec §4.2/§9
	// explicitly accepts this as an ordering hazard, not a bug.
	_ = q.client.ZRem(ctx, q.keys.Of("priority"), id).Err()

	j, err := job.FromID(ctx, q.client, q.keys, id)
	if err != nil {
		return nil, err
	}
	if j == nil {
		return nil, nil
	}

	atomic.AddInt64(&q.processing, 1)
	q.events.distEmit(ctx, Event{Name: EventActive, Job: j})
	return j, nil
}

// popToActive performs the wait->active move. Only one blocking move may
// be outstanding at a time (blockMu), so additional dispatcher goroutines
// queue behind the current one rather than racing the dedicated blocking
// connection, per spec §4.2.
func (q *Queue) popToActive(ctx context.Context, blocking bool) (string, error) {
	waitKey, activeKey := q.keys.Of("wait"), q.keys.Of("active")

	if !blocking {
		id, err := q.client.RPopLPush(ctx, waitKey, activeKey).Result()
		if err == redis.Nil {
			return "", nil
		}
		return id, err
	}

	q.blockMu.Lock()
	defer q.blockMu.Unlock()

	timeout := q.opts.LockRenewTime
	if timeout < time.Second {
		timeout = time.Second
	}
	id, err := q.blockClient.BRPopLPush(ctx, waitKey, activeKey, timeout).Result()
	if err == redis.Nil {
		return "", nil
	}
	return id, err
}

// processJob runs the handler under lock per spec §4.2 steps 1-5.
func (q *Queue) processJob(ctx context.Context, j *job.Job) {
	ok, err := j.TakeLock(ctx, q.client, q.token, q.opts.LockDuration, false, true)
	if err != nil {
		q.events.distEmit(ctx, Event{Name: EventError, Err: err})
		atomic.AddInt64(&q.processing, -1)
		return
	}
	if !ok {
		// Another worker owns the lock: this job was stalled and reaped
		// out from under us. Nothing to do.
		atomic.AddInt64(&q.processing, -1)
		return
	}

	lr := q.startLockRenewer(j)

	result, herr := q.runHandler(ctx, j)
	if herr == nil {
		if _, merr := json.Marshal(result); merr != nil {
			herr = fmt.Errorf("handler result not serializable: %w", merr)
		}
	}

	if herr == nil {
		atomic.AddInt64(&q.processing, -1)
		lr.stop()
		if err := j.MoveToCompleted(ctx, q.client, q.token, result); err != nil {
			q.events.distEmit(ctx, Event{Name: EventError, Err: err})
			return
		}
		q.opts.Metrics.JobCompleted(time.Since(j.Timestamp))
		q.events.distEmit(ctx, Event{Name: EventCompleted, Job: j})
		return
	}

	// Failure path: re-take the lock once more (renew=true,
	// ensureActive=false) so it cannot expire while the failure is
	// recorded. If that fails (the lock was lost mid-handler), it is
	// logged and the job is left in active for the reaper, per spec §4.2
	// step 5 / §7.
	if ok, rerr := j.TakeLock(ctx, q.client, q.token, q.opts.LockDuration, true, false); rerr != nil || !ok {
		q.logWarn("re-take lock before failure move", "job_id", j.ID, "error", rerr)
		lr.stop()
		atomic.AddInt64(&q.processing, -1)
		return
	}
	lr.stop()
	if err := j.MoveToFailed(ctx, q.client, q.token, herr); err != nil {
		q.events.distEmit(ctx, Event{Name: EventError, Err: err})
	}
	if err := j.ReleaseLock(ctx, q.client, q.token); err != nil {
		q.logWarn("release lock after failure", "job_id", j.ID, "error", err)
	}
	q.opts.Metrics.JobFailed(time.Since(j.Timestamp))
	q.events.distEmit(ctx, Event{Name: EventFailed, Job: j, Err: herr})
	atomic.AddInt64(&q.processing, -1)
}

// runHandler races the handler against j.Opts.Timeout when set. The
// handler goroutine is not forcibly killed on timeout — Go has no safe
// way to do that — so a handler that ignores ctx cancellation keeps
// running after runHandler returns; it will simply have no effect on the
// job's already-recorded outcome.
func (q *Queue) runHandler(ctx context.Context, j *job.Job) (any, error) {
	if j.Opts.Timeout <= 0 {
		return q.invokeHandler(ctx, j)
	}

	hctx, cancel := context.WithTimeout(ctx, j.Opts.Timeout)
	defer cancel()

	type outcome struct {
		val any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := q.invokeHandler(hctx, j)
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		return o.val, o.err
	case <-hctx.Done():
		return nil, fmt.Errorf("relayq: handler timed out after %s", j.Opts.Timeout)
	}
}

// invokeHandler calls the user handler with panic recovery, so a handler
// that panics fails its job instead of taking down the dispatcher
// goroutine it runs on.
func (q *Queue) invokeHandler(ctx context.Context, j *job.Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("relayq: handler panicked: %v", r)
		}
	}()
	return q.handler(ctx, j)
}

// lockRenewer is the self-rescheduling one-shot timer from spec §4.2
// step 2 / §9: a failure to renew naturally stops rescheduling instead
// of needing an explicit cancel-on-error branch.
type lockRenewer struct {
	q        *Queue
	j        *job.Job
	mu       sync.Mutex
	stopped  bool
	timer    *time.Timer
}

func (q *Queue) startLockRenewer(j *job.Job) *lockRenewer {
	lr := &lockRenewer{q: q, j: j}
	lr.schedule()
	return lr
}

func (lr *lockRenewer) schedule() {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.stopped {
		return
	}
	lr.q.timers.add()
	lr.timer = time.AfterFunc(lr.q.opts.LockRenewTime, lr.fire)
}

func (lr *lockRenewer) fire() {
	defer lr.q.timers.done()

	lr.mu.Lock()
	stopped := lr.stopped
	lr.mu.Unlock()
	if stopped {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), lr.q.opts.LockDuration)
	ok, err := lr.j.TakeLock(ctx, lr.q.client, lr.q.token, lr.q.opts.LockDuration, true, false)
	cancel()
	if err != nil {
		lr.q.logWarn("lock renewal failed", "job_id", lr.j.ID, "error", err)
		return
	}
	if !ok {
		lr.q.logWarn("lock renewal lost ownership", "job_id", lr.j.ID)
		return
	}
	lr.schedule()
}

func (lr *lockRenewer) stop() {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.stopped = true
	if lr.timer != nil && lr.timer.Stop() {
		lr.q.timers.done()
	}
}
