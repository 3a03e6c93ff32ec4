package relayq

import (
	"context"
	"testing"
	"time"
)

func TestPauser_StartsOpen(t *testing.T) {
	p := newPauser()
	if p.isPaused() {
		t.Fatalf("expected a fresh pauser to start unpaused")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.await(ctx); err != nil {
		t.Fatalf("await on an unpaused gate should not block: %v", err)
	}
}

func TestPauser_PauseBlocksAwait(t *testing.T) {
	p := newPauser()
	p.pause()
	if !p.isPaused() {
		t.Fatalf("expected isPaused to report true after pause()")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.await(ctx); err == nil {
		t.Fatalf("expected await to block while paused")
	}
}

func TestPauser_ResumeUnblocksAwait(t *testing.T) {
	p := newPauser()
	p.pause()

	done := make(chan error, 1)
	go func() {
		done <- p.await(context.Background())
	}()

	time.Sleep(10 * time.Millisecond)
	p.resume()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected await to succeed after resume, got: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("await did not unblock after resume")
	}
	if p.isPaused() {
		t.Fatalf("expected isPaused to report false after resume()")
	}
}

func TestPauser_DoublePauseIsIdempotent(t *testing.T) {
	p := newPauser()
	p.pause()
	gate1 := p.gate
	p.pause()
	if p.gate != gate1 {
		t.Fatalf("pausing an already-paused pauser should not replace the gate")
	}
}
