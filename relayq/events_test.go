package relayq

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/relaylabs/relayq/internal/keys"
)

func TestEventBus_EmitDeliversToSubscriber(t *testing.T) {
	b := newEventBus(nil, keys.New("relayq", "emails"))
	ch := b.On(EventCompleted)

	b.emit(Event{Name: EventCompleted, Progress: 100})

	select {
	case e := <-ch:
		if e.Name != EventCompleted || e.Progress != 100 {
			t.Fatalf("unexpected event: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the event")
	}
}

func TestEventBus_EmitIgnoresOtherNames(t *testing.T) {
	b := newEventBus(nil, keys.New("relayq", "emails"))
	ch := b.On(EventCompleted)

	b.emit(Event{Name: EventFailed})

	select {
	case e := <-ch:
		t.Fatalf("unexpected event delivered to completed subscriber: %+v", e)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestEventBus_EmitDoesNotBlockOnFullSubscriber(t *testing.T) {
	b := newEventBus(nil, keys.New("relayq", "emails"))
	b.On(EventProgress) // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 64; i++ {
			b.emit(Event{Name: EventProgress, Progress: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on a full subscriber channel")
	}
}

func TestEventBus_HandleDistributedRehydratesAsGlobal(t *testing.T) {
	b := newEventBus(nil, keys.New("relayq", "emails"))
	ch := b.On(EventName(globalPrefix + string(EventCompleted)))

	env := eventEnvelope{Name: EventCompleted, Job: []byte(`{"id":"7","data":null}`)}
	payload, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	b.handleDistributed(EventCompleted, payload)

	select {
	case e := <-ch:
		if e.Job == nil || e.Job.ID != "7" {
			t.Fatalf("expected rehydrated job id 7, got: %+v", e.Job)
		}
	case <-time.After(time.Second):
		t.Fatal("global subscriber never received the rehydrated event")
	}
}
