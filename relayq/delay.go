package relayq

import (
	"context"
	"sync"
	"time"
)

// delayController implements spec §4.1: a single scalar deadline and at
// most one armed one-shot timer, backed by the updateDelaySet script.
type delayController struct {
	q *Queue

	mu       sync.Mutex
	deadline time.Time // zero value means +infinity (no armed timer)
	timer    *time.Timer
}

func newDelayController(q *Queue) *delayController {
	return &delayController{q: q}
}

// updateDelayTimer arms (or re-arms) the single timer for t, unless t is
// not earlier than the currently-armed deadline or exceeds MaxTimeout —
// both cases are a silent no-op per spec §4.1.
func (d *delayController) updateDelayTimer(t time.Time) {
	now := time.Now()
	if t.After(now.Add(MaxTimeout)) {
		return
	}

	d.mu.Lock()
	if !d.deadline.IsZero() && !t.Before(d.deadline) {
		d.mu.Unlock()
		return
	}
	if d.timer != nil {
		if d.timer.Stop() {
			d.q.timers.done()
		}
	}
	d.deadline = t
	delay := t.Sub(now)
	if delay < 0 {
		delay = 0
	}
	d.q.timers.add()
	d.timer = time.AfterFunc(delay, d.fire)
	d.mu.Unlock()
}

// fire runs updateDelaySet and recursively rearms for whatever new
// minimum timestamp the script reports, per spec §4.1.
func (d *delayController) fire() {
	defer d.q.timers.done()

	d.mu.Lock()
	d.timer = nil
	d.deadline = time.Time{}
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), d.q.opts.ClientCloseTimeout)
	defer cancel()

	next, err := d.q.updateDelaySet(ctx)
	if err != nil {
		d.q.events.distEmit(ctx, Event{Name: EventError, Err: err})
		return
	}
	if next != nil {
		d.updateDelayTimer(*next)
	}
}

// guardianTick is the safety net spec §4.1 describes: re-verify or
// re-run the promotion even if pub/sub silently dropped a wakeup.
func (d *delayController) guardianTick(ctx context.Context) {
	d.mu.Lock()
	deadline := d.deadline
	d.mu.Unlock()

	now := time.Now()
	if !deadline.IsZero() && !deadline.Before(now) && deadline.Sub(now) <= d.q.opts.PollingInterval {
		return
	}

	next, err := d.q.updateDelaySet(ctx)
	if err != nil {
		d.q.events.distEmit(ctx, Event{Name: EventError, Err: err})
		return
	}
	d.mu.Lock()
	d.deadline = time.Time{}
	d.mu.Unlock()
	if next != nil {
		d.updateDelayTimer(*next)
	}
}

// onDelayedMessage handles a pub/sub message on the delayed channel: the
// payload is the new earliest timestamp in milliseconds.
func (d *delayController) onDelayedMessage(payloadMs int64) {
	d.updateDelayTimer(time.UnixMilli(payloadMs))
}
