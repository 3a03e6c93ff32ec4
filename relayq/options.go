package relayq

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relaylabs/relayq/internal/logger"
	"github.com/relaylabs/relayq/internal/metrics"
)

// ClientKind identifies which of the three connections a ClientFactory
// override is being asked to build, mirroring the original's
// createClient(type) hook.
type ClientKind int

const (
	ClientGeneral ClientKind = iota
	ClientBlocking
	ClientSubscriber
)

func (k ClientKind) String() string {
	switch k {
	case ClientGeneral:
		return "client"
	case ClientBlocking:
		return "block"
	case ClientSubscriber:
		return "subscriber"
	default:
		return "unknown"
	}
}

// RedlockOptions configures the distributed-lock retry policy used when
// additional client instances are supplied for cross-host coordination.
type RedlockOptions struct {
	DriftFactor float64
	RetryCount  int
	RetryDelay  time.Duration
}

// ClientFactory builds a *redis.Client for one of the three connection
// roles a Queue needs. When nil, Options.redisOptions() is used directly.
type ClientFactory func(kind ClientKind) (*redis.Client, error)

// Options configures a Queue instance. The zero value is not usable;
// set Addr or URL (or a ClientFactory).
type Options struct {
	// Connection.
	Addr     string // host:port
	URL      string // full redis:// URL, takes precedence over Addr/DB/Password
	DB       int    // canonical DB option name per spec §9 open question
	Password string

	// Namespacing.
	KeyPrefix string // default "bull"

	// Extra client instances for distributed-lock quorum (redlock-style).
	// Unused by the single-instance lock scheme in this package today,
	// but threaded through so a future quorum lock can use it without a
	// breaking change to Options.
	Clients []*redis.Client
	Redlock RedlockOptions

	ClientFactory ClientFactory

	// Ambient.
	Logger  *logger.Logger
	Metrics metrics.Collector

	// Tunables, defaulted from the constants in constants.go.
	LockDuration         time.Duration
	LockRenewTime        time.Duration
	StalledCheckInterval time.Duration
	MaxStalledCount      int
	ClientCloseTimeout   time.Duration
	PollingInterval      time.Duration
}

// withDefaults returns a copy of o with zero-valued tunables replaced by
// the package defaults, and KeyPrefix defaulted to "bull".
func (o Options) withDefaults() Options {
	if o.KeyPrefix == "" {
		o.KeyPrefix = defaultKeyPrefix
	}
	if o.LockDuration <= 0 {
		o.LockDuration = DefaultLockDuration
	}
	if o.LockRenewTime <= 0 {
		o.LockRenewTime = DefaultLockRenewTime
	}
	if o.StalledCheckInterval <= 0 {
		o.StalledCheckInterval = DefaultStalledCheckInterval
	}
	if o.MaxStalledCount <= 0 {
		o.MaxStalledCount = DefaultMaxStalledCount
	}
	if o.ClientCloseTimeout <= 0 {
		o.ClientCloseTimeout = DefaultClientCloseTimeout
	}
	if o.PollingInterval <= 0 {
		o.PollingInterval = DefaultPollingInterval
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Noop{}
	}
	return o
}

func (o Options) redisOptions() *redis.Options {
	if o.URL != "" {
		parsed, err := redis.ParseURL(o.URL)
		if err == nil {
			return parsed
		}
	}
	return &redis.Options{
		Addr:     o.Addr,
		DB:       o.DB,
		Password: o.Password,
	}
}

func (o Options) buildClient(kind ClientKind) (*redis.Client, error) {
	if o.ClientFactory != nil {
		return o.ClientFactory(kind)
	}
	return redis.NewClient(o.redisOptions()), nil
}
