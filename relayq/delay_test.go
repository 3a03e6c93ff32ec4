package relayq

import (
	"testing"
	"time"
)

func newTestDelayController(t *testing.T) *delayController {
	t.Helper()
	q := &Queue{
		opts:   Options{}.withDefaults(),
		timers: newTimerManager(),
	}
	d := newDelayController(q)
	t.Cleanup(func() {
		d.mu.Lock()
		if d.timer != nil {
			d.timer.Stop()
		}
		d.mu.Unlock()
	})
	return d
}

func TestDelayController_ArmsOnFirstCall(t *testing.T) {
	d := newTestDelayController(t)
	deadline := time.Now().Add(10 * time.Second)

	d.updateDelayTimer(deadline)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer == nil {
		t.Fatal("expected a timer to be armed")
	}
	if !d.deadline.Equal(deadline) {
		t.Fatalf("deadline = %v, want %v", d.deadline, deadline)
	}
}

func TestDelayController_LaterDeadlineIsNoop(t *testing.T) {
	d := newTestDelayController(t)
	first := time.Now().Add(10 * time.Second)
	d.updateDelayTimer(first)

	later := first.Add(time.Minute)
	d.updateDelayTimer(later)

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.deadline.Equal(first) {
		t.Fatalf("a later deadline should not replace the armed timer: got %v, want %v", d.deadline, first)
	}
}

func TestDelayController_EarlierDeadlineRearms(t *testing.T) {
	d := newTestDelayController(t)
	first := time.Now().Add(10 * time.Second)
	d.updateDelayTimer(first)

	earlier := time.Now().Add(5 * time.Second)
	d.updateDelayTimer(earlier)

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.deadline.Equal(earlier) {
		t.Fatalf("an earlier deadline should replace the armed timer: got %v, want %v", d.deadline, earlier)
	}
}

func TestDelayController_BeyondMaxTimeoutIsNoop(t *testing.T) {
	d := newTestDelayController(t)
	tooFar := time.Now().Add(MaxTimeout + time.Hour)

	d.updateDelayTimer(tooFar)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		t.Fatalf("expected no timer to be armed for a deadline beyond MaxTimeout")
	}
}
