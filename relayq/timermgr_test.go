package relayq

import (
	"context"
	"testing"
	"time"
)

func TestTimerManager_IdleByDefault(t *testing.T) {
	tm := newTimerManager()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tm.awaitIdle(ctx); err != nil {
		t.Fatalf("expected idle, got: %v", err)
	}
}

func TestTimerManager_BlocksUntilDone(t *testing.T) {
	tm := newTimerManager()
	tm.add()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := tm.awaitIdle(ctx); err == nil {
		t.Fatalf("expected awaitIdle to time out while a timer is outstanding")
	}

	tm.done()

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if err := tm.awaitIdle(ctx2); err != nil {
		t.Fatalf("expected idle after done(), got: %v", err)
	}
}

func TestTimerManager_MultipleOutstanding(t *testing.T) {
	tm := newTimerManager()
	tm.add()
	tm.add()
	tm.done()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := tm.awaitIdle(ctx); err == nil {
		t.Fatalf("expected still-outstanding timer to block awaitIdle")
	}

	tm.done()
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if err := tm.awaitIdle(ctx2); err != nil {
		t.Fatalf("expected idle once both timers are done, got: %v", err)
	}
}
