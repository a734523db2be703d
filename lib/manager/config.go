package manager

import (
	"fmt"
	"github.com/ValentinKolb/dSess/lib/session"
	"strings"
	"time"
)

// SnapshotMode selects when dirty sessions are pushed.
type SnapshotMode string

const (
	SnapshotModeInterval SnapshotMode = "interval" // batched by a background goroutine
	SnapshotModeInstant  SnapshotMode = "instant"  // at the end of every request
)

// ParseSnapshotMode parses "interval" or "instant".
func ParseSnapshotMode(s string) (SnapshotMode, error) {
	switch SnapshotMode(strings.ToLower(strings.TrimSpace(s))) {
	case SnapshotModeInterval, "":
		return SnapshotModeInterval, nil
	case SnapshotModeInstant:
		return SnapshotModeInstant, nil
	default:
		return "", fmt.Errorf("unknown snapshot mode %q", s)
	}
}

// Config is the static configuration of a Manager.
type Config struct {
	Route                   string           // route of this node, embedded in session ids
	Distributed             bool             // use the cluster lock, otherwise ownership is always local
	SnapshotMode            SnapshotMode     // interval or instant
	SnapshotInterval        time.Duration    // tick of the interval scheduler
	FullReplicationWindow   time.Duration    // complete pushes after a handoff
	MaxInactiveInterval     int              // seconds, <= 0 never expires
	MaxUnreplicatedInterval int64            // ms, -1 disables timestamp only pushes
	Trigger                 session.Trigger  // dirty tracking on reads
	LockTimeout             time.Duration    // wait for the session lock
	MaxActiveSessions       int              // -1 = unlimited
	ExpirationInterval      time.Duration    // how often idle sessions are expired and passivated
	Clock                   func() time.Time // nil = time.Now

	NotificationPolicy     session.NotificationPolicy // nil = session.NotifyLocal
	PassivationMinIdleTime time.Duration              // idle time before eviction while MaxActiveSessions is reached, <= 0 disabled
	PassivationMaxIdleTime time.Duration              // idle time before eviction, <= 0 disabled
}

// DefaultConfig returns the defaults of a single node.
func DefaultConfig() Config {
	return Config{
		SnapshotMode:            SnapshotModeInterval,
		SnapshotInterval:        time.Second,
		FullReplicationWindow:   session.DefaultFullReplicationWindow,
		MaxInactiveInterval:     1800,
		MaxUnreplicatedInterval: -1,
		Trigger:                 session.OnSetAndNonPrimitiveGet,
		LockTimeout:             5 * time.Second,
		MaxActiveSessions:       -1,
		ExpirationInterval:      time.Minute,
	}
}

func (c Config) String() string {
	return fmt.Sprintf(`Manager Configuration:
  Route: %q
  Distributed: %v
  Snapshot Mode: %s
  Snapshot Interval: %s
  Full Replication Window: %s
  Max Inactive Interval: %ds
  Max Unreplicated Interval: %dms
  Trigger: %s
  Lock Timeout: %s
  Max Active Sessions: %d
  Expiration Interval: %s
  Passivation Min Idle Time: %s
  Passivation Max Idle Time: %s`,
		c.Route, c.Distributed, c.SnapshotMode, c.SnapshotInterval, c.FullReplicationWindow,
		c.MaxInactiveInterval, c.MaxUnreplicatedInterval, c.Trigger, c.LockTimeout,
		c.MaxActiveSessions, c.ExpirationInterval, c.PassivationMinIdleTime, c.PassivationMaxIdleTime)
}

func (c Config) sessionOptions() session.Options {
	return session.Options{
		Tracker:                 c.Trigger,
		Clock:                   c.Clock,
		FullReplicationWindow:   c.FullReplicationWindow,
		MaxInactiveInterval:     c.MaxInactiveInterval,
		MaxUnreplicatedInterval: c.MaxUnreplicatedInterval,
	}
}
