package relayq

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/relaylabs/relayq/internal/keys"
	"github.com/relaylabs/relayq/job"
)

// EventName is the closed set of event tags spec §4.6 recognizes, plus
// the "global:<event>" rehydrated variants a subscriber re-emits locally.
type EventName string

const (
	EventReady          EventName = "ready"
	EventError          EventName = "error"
	EventWaiting        EventName = "waiting"
	EventActive         EventName = "active"
	EventStalled        EventName = "stalled"
	EventProgress       EventName = "progress"
	EventCompleted      EventName = "completed"
	EventFailed         EventName = "failed"
	EventRemoved        EventName = "removed"
	EventCleaned        EventName = "cleaned"
	EventPaused         EventName = "paused"
	EventResumed        EventName = "resumed"
	EventNoJobRetrieved EventName = "no-job-retrieved"
)

// globalPrefix is how a rehydrated cross-instance event is re-emitted
// locally: "global:<event>".
const globalPrefix = "global:"

// Event is the payload carried on every local subscription channel.
type Event struct {
	Name     EventName
	Job      *job.Job // nil for queue-level events (ready, paused, resumed, cleaned)
	Err      error
	Progress int
	Message  string
}

// eventBus is local pub/sub plus optional distribution to other Queue
// instances over a Redis channel per event name.
type eventBus struct {
	mu   sync.RWMutex
	subs map[EventName][]chan Event
	rc   *redis.Client // publishing connection; never the dedicated subscriber
	keys keys.Namer
}

func newEventBus(rc *redis.Client, kn keys.Namer) *eventBus {
	return &eventBus{
		subs: make(map[EventName][]chan Event),
		rc:   rc,
		keys: kn,
	}
}

// On registers a new subscriber for name. The returned channel is
// buffered so a slow consumer cannot wedge emission; a full channel
// drops the event rather than blocking the emitter.
func (b *eventBus) On(name EventName) <-chan Event {
	ch := make(chan Event, 32)
	b.mu.Lock()
	b.subs[name] = append(b.subs[name], ch)
	b.mu.Unlock()
	return ch
}

// emit delivers e to every local subscriber of e.Name, never blocking.
func (b *eventBus) emit(e Event) {
	b.mu.RLock()
	chans := b.subs[e.Name]
	b.mu.RUnlock()
	for _, ch := range chans {
		select {
		case ch <- e:
		default:
		}
	}
}

// emitGlobal re-emits e locally under "global:<name>", the tag
// subscribers use to distinguish events originating on this instance
// from ones rehydrated from another instance's publish.
func (b *eventBus) emitGlobal(e Event) {
	b.mu.RLock()
	chans := b.subs[EventName(globalPrefix+string(e.Name))]
	b.mu.RUnlock()
	for _, ch := range chans {
		select {
		case ch <- e:
		default:
		}
	}
}

// distEmit emits e locally and, unless it is "cleaned" or "error" (which
// bypass cross-instance rehydration per spec §4.6), publishes a JSON
// envelope of it to "<event>@<queue-name>".
func (b *eventBus) distEmit(ctx context.Context, e Event) {
	b.emit(e)
	if e.Name == EventCleaned || e.Name == EventError {
		return
	}
	env := eventEnvelope{Name: e.Name, Progress: e.Progress, Message: e.Message}
	if e.Job != nil {
		snap, err := e.Job.Snapshot()
		if err == nil {
			env.Job = snap
		}
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return
	}
	_ = b.rc.Publish(ctx, b.keys.EventChannel(string(e.Name)), raw).Err()
}

type eventEnvelope struct {
	Name     EventName       `json:"name"`
	Job      json.RawMessage `json:"job,omitempty"`
	Progress int             `json:"progress,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// handleDistributed decodes a published envelope and re-emits it locally
// as "global:<event>", rehydrating the job snapshot per spec §4.6.
func (b *eventBus) handleDistributed(name EventName, payload []byte) {
	var env eventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return
	}
	e := Event{Name: name, Progress: env.Progress, Message: env.Message}
	if len(env.Job) > 0 {
		if j, err := job.FromJSON(env.Job); err == nil {
			e.Job = j
		}
	}
	b.emitGlobal(e)
}
