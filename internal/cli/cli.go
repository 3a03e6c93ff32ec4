// Package cli builds the relayq command-line tool: a thin wrapper over
// package relayq for operating a queue from a terminal (run a demo
// worker, enqueue a job, inspect counts, pause/resume).
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/relaylabs/relayq/internal/config"
	"github.com/relaylabs/relayq/internal/logger"
	"github.com/relaylabs/relayq/internal/metrics"
	"github.com/relaylabs/relayq/job"
	"github.com/relaylabs/relayq/relayq"
)

// BuildCLI assembles the root command and its subcommands.
func BuildCLI() *cobra.Command {
	root := &cobra.Command{
		Use:   "relayq",
		Short: "Operate a relayq job queue",
	}
	root.AddCommand(
		newRunCmd(),
		newEnqueueCmd(),
		newStatusCmd(),
		newPauseCmd(),
		newResumeCmd(),
	)
	return root
}

func newRunCmd() *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a worker that echoes job payloads back as their result",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New(cfg().LogMode)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer log.Sync()

			c := config.Load(log)
			if concurrency > 0 {
				c.Concurrency = concurrency
			}

			q, err := openQueue(c, log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := q.Ready(ctx); err != nil {
				return fmt.Errorf("queue not ready: %w", err)
			}

			if c.MetricsAddr != "" {
				go serveMetrics(c.MetricsAddr, log)
			}

			if err := q.Process(c.Concurrency, echoHandler(log)); err != nil {
				return fmt.Errorf("start processing: %w", err)
			}

			log.Info("worker running", "queue", c.Queue, "concurrency", c.Concurrency)
			<-ctx.Done()
			log.Info("shutting down")

			closeCtx, cancel := context.WithTimeout(context.Background(), c.ClientCloseTimeout+5*time.Second)
			defer cancel()
			return q.Close(closeCtx, false)
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "override RELAYQ_CONCURRENCY")
	return cmd
}

func echoHandler(log *logger.Logger) relayq.Handler {
	return func(ctx context.Context, j *job.Job) (any, error) {
		log.Info("processing job", "job_id", j.ID)
		var payload any
		if err := json.Unmarshal(j.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		return payload, nil
	}
}

func newEnqueueCmd() *cobra.Command {
	var (
		data     string
		file     string
		delay    time.Duration
		priority int64
		attempts int
	)
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Add one job to the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := jobPayload(data, file)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg().LogMode)
			if err != nil {
				return err
			}
			defer log.Sync()
			c := config.Load(log)
			q, err := openQueue(c, log)
			if err != nil {
				return err
			}
			defer q.Close(context.Background(), true)

			j, err := q.Add(cmd.Context(), raw, job.Options{
				Delay:    delay,
				Priority: priority,
				Attempts: attempts,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued job %s\n", j.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "inline JSON payload")
	cmd.Flags().StringVar(&file, "file", "", "path to a JSON payload file")
	cmd.Flags().DurationVar(&delay, "delay", 0, "delay before the job becomes runnable")
	cmd.Flags().Int64Var(&priority, "priority", 0, "lower values run first")
	cmd.Flags().IntVar(&attempts, "attempts", 0, "max retry attempts")
	return cmd
}

func jobPayload(data, file string) (json.RawMessage, error) {
	switch {
	case data != "":
		return json.RawMessage(data), nil
	case file != "":
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read payload file: %w", err)
		}
		return json.RawMessage(raw), nil
	default:
		return json.RawMessage("null"), nil
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the current size of every collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New(cfg().LogMode)
			if err != nil {
				return err
			}
			defer log.Sync()
			c := config.Load(log)
			q, err := openQueue(c, log)
			if err != nil {
				return err
			}
			defer q.Close(context.Background(), true)

			counts, err := q.GetJobCounts(cmd.Context())
			if err != nil {
				return err
			}
			out, _ := json.MarshalIndent(counts, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newPauseCmd() *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause job consumption",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueue(cmd, func(ctx context.Context, q *relayq.Queue) error {
				return q.Pause(ctx, local)
			})
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "only pause this instance, not the whole cluster")
	return cmd
}

func newResumeCmd() *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume job consumption",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueue(cmd, func(ctx context.Context, q *relayq.Queue) error {
				return q.Resume(ctx, local)
			})
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "only resume this instance, not the whole cluster")
	return cmd
}

func withQueue(cmd *cobra.Command, fn func(ctx context.Context, q *relayq.Queue) error) error {
	log, err := logger.New(cfg().LogMode)
	if err != nil {
		return err
	}
	defer log.Sync()
	c := config.Load(log)
	q, err := openQueue(c, log)
	if err != nil {
		return err
	}
	defer q.Close(context.Background(), true)
	return fn(cmd.Context(), q)
}

func openQueue(c config.Config, log *logger.Logger) (*relayq.Queue, error) {
	var collector metrics.Collector = metrics.Noop{}
	if c.MetricsAddr != "" {
		collector = metrics.NewPromCollector(prometheus.DefaultRegisterer, c.Queue)
	}
	q, err := relayq.New(c.Queue, c.QueueOptions(log, collector))
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}
	return q, nil
}

func serveMetrics(addr string, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("metrics server listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn("metrics server stopped", "error", err)
	}
}

// cfg reads just enough of the environment to pick a log mode before the
// full Config is loaded with that logger attached.
func cfg() config.Config {
	return config.Config{LogMode: os.Getenv("RELAYQ_LOG_MODE")}
}
