package relayq

import "time"

// Constants from spec §3. Frozen into Options at construction time per
// the design note in spec §9 ("expose as a configuration value frozen at
// construction; do not read process-wide mutable state from within the
// core") — the Default* tunables only ever reach the core through an
// Options value. MaxTimeout and minRedisVersion are fixed limits that
// delay.go and lifecycle.go read directly.
const (
	DefaultLockDuration            = 5000 * time.Millisecond
	DefaultLockRenewTime           = 2500 * time.Millisecond
	DefaultStalledCheckInterval    = 5000 * time.Millisecond
	DefaultMaxStalledCount         = 1
	DefaultClientCloseTimeout      = 5000 * time.Millisecond
	DefaultPollingInterval         = 5000 * time.Millisecond
	MaxTimeout                     = time.Duration(1<<31-1) * time.Millisecond
	minRedisVersion                = "2.8.11"
	defaultKeyPrefix               = "bull"
)
