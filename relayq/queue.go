// Package relayq is a Redis-backed distributed job queue modeled on the
// wait/active/delayed/priority/completed/failed collection design spec.md
// describes. A Queue owns three Redis connections (general, a dedicated
// blocking-pop connection, and a dedicated pub/sub subscriber), a local
// event bus, a pause gate, and the timers that drive delayed-job
// promotion and lock renewal.
package relayq

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/relaylabs/relayq/internal/keys"
)

// Queue is the top-level handle applications hold: Add jobs to it,
// Process jobs with it, and Close it on shutdown.
type Queue struct {
	name  string
	opts  Options
	keys  keys.Namer
	token string // this instance's worker identity for lock ownership

	client      *redis.Client // general commands + script eval
	blockClient *redis.Client // dedicated BRPOPLPUSH connection
	subClient   *redis.Client // dedicated pub/sub connection

	pauser *pauser
	timers *timerManager
	events *eventBus
	delay  *delayController

	handler          Handler
	handlerInstalled int32
	dispatchGroup    *errgroup.Group
	processing       int64
	retrieving       int64
	blockMu          sync.Mutex

	wg sync.WaitGroup // subscriber, reaper and guardian loops (dispatchers use dispatchGroup)

	closing   int32
	closeOnce sync.Once

	readyOnce sync.Once
	readyCh   chan struct{}
	readyErr  error

	lifeCtx    context.Context
	lifeCancel context.CancelFunc
}

// New constructs a Queue for the named collection set. It dials the three
// connections and starts the background subscriber loop, but does not
// verify server health or arm the delay timer — call Ready for that.
func New(name string, opts Options) (*Queue, error) {
	opts = opts.withDefaults()

	client, err := opts.buildClient(ClientGeneral)
	if err != nil {
		return nil, fmt.Errorf("relayq: dial general client: %w", err)
	}
	blockClient, err := opts.buildClient(ClientBlocking)
	if err != nil {
		return nil, fmt.Errorf("relayq: dial blocking client: %w", err)
	}
	subClient, err := opts.buildClient(ClientSubscriber)
	if err != nil {
		return nil, fmt.Errorf("relayq: dial subscriber client: %w", err)
	}

	kn := keys.New(opts.KeyPrefix, name)
	q := &Queue{
		name:        name,
		opts:        opts,
		keys:        kn,
		token:       uuid.NewString(),
		client:      client,
		blockClient: blockClient,
		subClient:   subClient,
		pauser:      newPauser(),
		timers:      newTimerManager(),
		readyCh:     make(chan struct{}),
	}
	q.events = newEventBus(q.client, kn)
	q.delay = newDelayController(q)

	q.lifeCtx, q.lifeCancel = context.WithCancel(context.Background())
	q.wg.Add(1)
	go q.subscriberLoop(q.lifeCtx)

	return q, nil
}

// updateDelaySet runs updateDelaySetScript and returns the new earliest
// remaining delayed timestamp, or nil if delayed is now empty.
func (q *Queue) updateDelaySet(ctx context.Context) (*time.Time, error) {
	res, err := updateDelaySetScript.Run(ctx, q.client, []string{
		q.keys.Of(keys.Delayed),
		q.keys.Of(keys.Wait),
		q.keys.Of(keys.Paused),
		q.keys.Of(keys.MetaPaused),
	}, time.Now().UnixMilli()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("relayq: update delay set: %w", err)
	}
	if res == nil {
		return nil, nil
	}
	s, ok := res.(string)
	if !ok {
		return nil, nil
	}
	scoreMs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, nil
	}
	t := time.UnixMilli(int64(scoreMs))
	return &t, nil
}

// subscriberLoop owns the dedicated pub/sub connection for the lifetime
// of the Queue: the delayed and paused channels, plus every event's
// "<event>@<queue-name>" channel via a pattern subscription.
func (q *Queue) subscriberLoop(ctx context.Context) {
	defer q.wg.Done()

	delayedChan := q.keys.Channel(keys.Delayed)
	pausedChan := q.keys.Channel(keys.Paused)
	eventPattern := "*@" + q.name

	sub := q.subClient.Subscribe(ctx, delayedChan, pausedChan)
	defer sub.Close()
	if err := sub.PSubscribe(ctx, eventPattern); err != nil {
		q.logWarn("psubscribe event channels", "error", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			q.handleSubMessage(msg)
		}
	}
}

func (q *Queue) handleSubMessage(msg *redis.Message) {
	switch msg.Channel {
	case q.keys.Channel(keys.Delayed):
		ms, err := strconv.ParseInt(msg.Payload, 10, 64)
		if err != nil {
			return
		}
		q.delay.onDelayedMessage(ms)
	case q.keys.Channel(keys.Paused):
		q.onPausedMessage(msg.Payload)
	default:
		event, _, ok := strings.Cut(msg.Channel, "@")
		if !ok {
			return
		}
		q.events.handleDistributed(EventName(event), []byte(msg.Payload))
	}
}

func (q *Queue) isClosing() bool {
	return atomic.LoadInt32(&q.closing) == 1
}

func (q *Queue) logWarn(msg string, kv ...interface{}) {
	if l := q.opts.Logger; l != nil {
		l.Warn(msg, kv...)
	}
}

func (q *Queue) logInfo(msg string, kv ...interface{}) {
	if l := q.opts.Logger; l != nil {
		l.Info(msg, kv...)
	}
}
