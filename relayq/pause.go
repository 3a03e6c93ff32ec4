package relayq

import (
	"context"
	"fmt"
	"sync"
)

// pauser holds the in-memory gate each dispatcher worker awaits before
// its next getNextJob call (spec §4.4, "local pause"). Global pause is a
// separate, store-level barrier implemented by pauseResumeGlobalScript.
type pauser struct {
	mu     sync.Mutex
	paused bool
	gate   chan struct{}
}

func newPauser() *pauser {
	p := &pauser{gate: make(chan struct{})}
	close(p.gate) // start open: not paused
	return p
}

// await blocks until the gate opens (resumed) or ctx is cancelled.
func (p *pauser) await(ctx context.Context) error {
	p.mu.Lock()
	ch := p.gate
	p.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pauser) pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		return
	}
	p.paused = true
	p.gate = make(chan struct{})
}

func (p *pauser) resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		return
	}
	p.paused = false
	close(p.gate)
}

func (p *pauser) isPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Pause halts job consumption. local=true only gates this instance's
// dispatchers; local=false additionally renames wait->paused atomically
// across every instance sharing the store (spec §4.4).
func (q *Queue) Pause(ctx context.Context, local bool) error {
	q.pauser.pause()
	if local {
		q.events.emit(Event{Name: EventPaused})
		return nil
	}
	err := pauseResumeGlobalScript.Run(ctx, q.client,
		[]string{q.keys.Of("wait"), q.keys.Of("paused"), q.keys.Of("meta-paused"), q.keys.Channel("paused")},
		"paused",
	).Err()
	if err != nil {
		return fmt.Errorf("relayq: pause: %w", err)
	}
	q.events.distEmit(ctx, Event{Name: EventPaused})
	return nil
}

// Resume reverses Pause. local=false renames paused->wait and deletes
// meta-paused atomically.
func (q *Queue) Resume(ctx context.Context, local bool) error {
	if local {
		q.pauser.resume()
		q.events.emit(Event{Name: EventResumed})
		return nil
	}
	err := pauseResumeGlobalScript.Run(ctx, q.client,
		[]string{q.keys.Of("paused"), q.keys.Of("wait"), q.keys.Of("meta-paused"), q.keys.Channel("paused")},
		"resumed",
	).Err()
	if err != nil {
		return fmt.Errorf("relayq: resume: %w", err)
	}
	q.pauser.resume()
	q.events.distEmit(ctx, Event{Name: EventResumed})
	return nil
}

// onPausedMessage handles a pub/sub message on the paused channel: any
// instance (including the one that issued the global pause) gates its
// local dispatchers in response.
func (q *Queue) onPausedMessage(mode string) {
	switch mode {
	case "paused":
		q.pauser.pause()
	case "resumed":
		q.pauser.resume()
	}
}
