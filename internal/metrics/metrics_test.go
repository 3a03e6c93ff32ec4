package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNoop_DoesNotPanic(t *testing.T) {
	var c Collector = Noop{}
	c.JobEnqueued()
	c.JobCompleted(time.Second)
	c.JobFailed(time.Second)
	c.JobStalled()
	c.SetQueueDepths(1, 2, 3)
}

func TestPromCollector_RegistersAndRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPromCollector(reg, "emails")

	c.JobEnqueued()
	c.JobCompleted(100 * time.Millisecond)
	c.JobFailed(200 * time.Millisecond)
	c.JobStalled()
	c.SetQueueDepths(3, 1, 0)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected at least one registered metric family")
	}
}

func TestPromCollector_SharedRegistryDoesNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPromCollector(reg, "emails")
	// A second queue name sharing the same registry must not panic or
	// error on the duplicate collector registration.
	NewPromCollector(reg, "sms")
}
