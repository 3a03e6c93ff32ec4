// Package job implements the collaborator spec.md's core treats as an
// external dependency: a job's own persistence format, lock handling,
// and terminal-state transitions. It is deliberately small and knows
// nothing about dispatch, delay timers, or pause/resume — those live in
// package relayq, which drives a Job through this package's methods.
package job

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relaylabs/relayq/internal/keys"
)

// Job is one unit of work: an opaque JSON payload plus the bookkeeping
// bull-style queues need for retries, priority, and locking.
type Job struct {
	ID             string
	Data           json.RawMessage
	Opts           Options
	Progress       int
	Delay          time.Duration
	Timestamp      time.Time
	AttemptsMade   int
	StalledCounter int
	FailedReason   string
	Stacktrace     string
	ReturnValue    json.RawMessage
	FinishedOn     time.Time
	ProcessedOn    time.Time

	keys keys.Namer
}

// Create allocates a new job id, persists its hash, and routes it into
// delayed or wait/paused (+ priority) atomically via addScript.
func Create(ctx context.Context, rc *redis.Client, kn keys.Namer, data any, opts Options) (*Job, error) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("job: marshal data: %w", err)
	}
	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("job: marshal opts: %w", err)
	}

	now := time.Now()
	base := kn.Of("") // "prefix:queue:" — trimmed below
	base = base[:len(base)-1]

	res, err := addScript.Run(ctx, rc, []string{
		kn.Of(keys.IDCounter),
		kn.Of(keys.Wait),
		kn.Of(keys.Paused),
		kn.Of(keys.MetaPaused),
		kn.Of(keys.Delayed),
		kn.Of(keys.Priority),
		kn.Channel(keys.Delayed),
	},
		base,
		string(dataJSON),
		string(optsJSON),
		now.UnixMilli(),
		opts.Delay.Milliseconds(),
		opts.Priority,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("job: create: %w", err)
	}

	id := fmt.Sprint(res)
	return &Job{
		ID:        id,
		Data:      dataJSON,
		Opts:      opts,
		Delay:     opts.Delay,
		Timestamp: now,
		keys:      kn,
	}, nil
}

// FromID loads a job's hash from Redis by id. It returns (nil, nil) if
// the hash does not exist, so callers can distinguish "gone" from error.
func FromID(ctx context.Context, rc *redis.Client, kn keys.Namer, id string) (*Job, error) {
	m, err := rc.HGetAll(ctx, kn.Job(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("job: load %s: %w", id, err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	return fromHash(kn, id, m)
}

func fromHash(kn keys.Namer, id string, m map[string]string) (*Job, error) {
	j := &Job{ID: id, keys: kn}
	if v := m["data"]; v != "" {
		j.Data = json.RawMessage(v)
	}
	if v := m["opts"]; v != "" {
		if err := json.Unmarshal([]byte(v), &j.Opts); err != nil {
			return nil, fmt.Errorf("job: decode opts: %w", err)
		}
	}
	j.Progress = atoiDefault(m["progress"], 0)
	j.Delay = time.Duration(atoiDefault(m["delay"], 0)) * time.Millisecond
	j.Timestamp = msToTime(m["timestamp"])
	j.AttemptsMade = atoiDefault(m["attemptsMade"], 0)
	j.StalledCounter = atoiDefault(m["stalledCounter"], 0)
	j.FailedReason = m["failedReason"]
	j.Stacktrace = m["stacktrace"]
	if v := m["returnvalue"]; v != "" {
		j.ReturnValue = json.RawMessage(v)
	}
	j.FinishedOn = msToTime(m["finishedOn"])
	j.ProcessedOn = msToTime(m["processedOn"])
	return j, nil
}

// FromJSON rehydrates a Job from the snapshot the event bus publishes
// over pub/sub. It carries a subset of fields — enough for event
// payloads — not the full hash-backed object.
func FromJSON(raw []byte) (*Job, error) {
	var snap struct {
		ID          string          `json:"id"`
		Data        json.RawMessage `json:"data"`
		Progress    int             `json:"progress"`
		ReturnValue json.RawMessage `json:"returnvalue,omitempty"`
		FailedReason string         `json:"failedReason,omitempty"`
	}
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("job: decode snapshot: %w", err)
	}
	return &Job{
		ID:           snap.ID,
		Data:         snap.Data,
		Progress:     snap.Progress,
		ReturnValue:  snap.ReturnValue,
		FailedReason: snap.FailedReason,
	}, nil
}

// Snapshot renders the subset of the job the event bus publishes to
// other instances over pub/sub.
func (j *Job) Snapshot() ([]byte, error) {
	return json.Marshal(struct {
		ID           string          `json:"id"`
		Data         json.RawMessage `json:"data"`
		Progress     int             `json:"progress"`
		ReturnValue  json.RawMessage `json:"returnvalue,omitempty"`
		FailedReason string          `json:"failedReason,omitempty"`
	}{j.ID, j.Data, j.Progress, j.ReturnValue, j.FailedReason})
}

// TakeLock acquires (renew=false) or extends (renew=true) this job's
// lock under the given worker token. ensureActive, when true and
// renew=false, requires the job still be a member of active — this is
// how a worker discovers its job was already reaped as stalled.
func (j *Job) TakeLock(ctx context.Context, rc *redis.Client, token string, ttl time.Duration, renew, ensureActive bool) (bool, error) {
	res, err := takeLockScript.Run(ctx, rc, []string{
		j.keys.JobLock(j.ID),
		j.keys.Of(keys.Active),
	},
		token,
		ttl.Milliseconds(),
		j.ID,
		boolArg(renew),
		boolArg(ensureActive),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("job: take lock %s: %w", j.ID, err)
	}
	return res == 1, nil
}

// ReleaseLock deletes the lock key iff it still names our token.
func (j *Job) ReleaseLock(ctx context.Context, rc *redis.Client, token string) error {
	if err := releaseLockScript.Run(ctx, rc, []string{j.keys.JobLock(j.ID)}, token).Err(); err != nil {
		return fmt.Errorf("job: release lock %s: %w", j.ID, err)
	}
	return nil
}

// MoveToCompleted records the handler's return value and moves the job
// from active into completed, releasing the lock if we still own it.
func (j *Job) MoveToCompleted(ctx context.Context, rc *redis.Client, token string, result any) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("job: marshal result %s: %w", j.ID, err)
	}
	now := time.Now()
	err = moveToCompletedScript.Run(ctx, rc, []string{
		j.keys.Of(keys.Active),
		j.keys.Job(j.ID),
		j.keys.Of(keys.Completed),
		j.keys.JobLock(j.ID),
	},
		j.ID,
		string(resultJSON),
		now.UnixMilli(),
		token,
		boolArg(j.Opts.RemoveOnComplete > 0),
	).Err()
	if err != nil {
		return fmt.Errorf("job: move to completed %s: %w", j.ID, err)
	}
	j.ReturnValue = resultJSON
	j.FinishedOn = now
	j.Progress = 100
	return nil
}

// MoveToFailed records the handler's error and moves the job from
// active into failed, releasing the lock if we still own it.
func (j *Job) MoveToFailed(ctx context.Context, rc *redis.Client, token string, cause error) error {
	now := time.Now()
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	err := moveToFailedScript.Run(ctx, rc, []string{
		j.keys.Of(keys.Active),
		j.keys.Job(j.ID),
		j.keys.Of(keys.Failed),
		j.keys.JobLock(j.ID),
	},
		j.ID,
		msg,
		"",
		now.UnixMilli(),
		token,
		boolArg(j.Opts.RemoveOnFail > 0),
	).Err()
	if err != nil {
		return fmt.Errorf("job: move to failed %s: %w", j.ID, err)
	}
	j.FailedReason = msg
	j.FinishedOn = now
	return nil
}

// Retry moves a failed job back into wait and bumps attemptsMade. The
// caller (typically the reaper or a handler-side policy) is responsible
// for checking Opts.Attempts before calling Retry again.
func (j *Job) Retry(ctx context.Context, rc *redis.Client) error {
	err := retryScript.Run(ctx, rc, []string{
		j.keys.Of(keys.Failed),
		j.keys.Of(keys.Wait),
		j.keys.Job(j.ID),
	}, j.ID).Err()
	if err != nil {
		return fmt.Errorf("job: retry %s: %w", j.ID, err)
	}
	j.StalledCounter = 0
	j.FailedReason = ""
	j.Stacktrace = ""
	j.AttemptsMade++
	return nil
}

func boolArg(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func msToTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
