// Command relayq-worker is a minimal example of consuming package relayq
// directly, without the relayq CLI: build a Queue, install a handler,
// wait for a shutdown signal, close cleanly.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relaylabs/relayq/internal/config"
	"github.com/relaylabs/relayq/internal/logger"
	"github.com/relaylabs/relayq/internal/metrics"
	"github.com/relaylabs/relayq/job"
	"github.com/relaylabs/relayq/relayq"
)

func main() {
	log, err := logger.New(os.Getenv("RELAYQ_LOG_MODE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	c := config.Load(log)

	q, err := relayq.New(c.Queue, c.QueueOptions(log, metrics.Noop{}))
	if err != nil {
		log.Fatal("open queue", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := q.Ready(ctx); err != nil {
		log.Fatal("queue not ready", "error", err)
	}

	if err := q.Process(c.Concurrency, handle(log)); err != nil {
		log.Fatal("start processing", "error", err)
	}

	log.Info("relayq-worker running", "queue", c.Queue, "concurrency", c.Concurrency)
	<-ctx.Done()
	log.Info("shutting down")

	closeCtx, cancel := context.WithTimeout(context.Background(), c.ClientCloseTimeout+5*time.Second)
	defer cancel()
	if err := q.Close(closeCtx, false); err != nil {
		log.Warn("close", "error", err)
	}
}

func handle(log *logger.Logger) relayq.Handler {
	return func(ctx context.Context, j *job.Job) (any, error) {
		var payload map[string]any
		if err := json.Unmarshal(j.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		log.Info("handled job", "job_id", j.ID, "attempt", j.AttemptsMade+1)
		return map[string]any{"ok": true, "echo": payload}, nil
	}
}
