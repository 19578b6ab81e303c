package channel

import (
	"time"

	"github.com/nerrad567/quickbars-hub/internal/infrastructure/config"
)

// Default transport parameters.
const (
	defaultPath              = "/api/ws"
	defaultHeartbeatInterval = 10 * time.Second
	defaultMissedHeartbeats  = 3
	defaultDialTimeout       = 5 * time.Second
	defaultWriteTimeout      = 5 * time.Second
	defaultInitialBackoff    = 2 * time.Second
	defaultMaxBackoff        = 2 * time.Minute
	defaultUnreachableAfter  = 5
	defaultMaxMessageSize    = 1 << 20

	backoffMultiplier = 1.5
)

// Config holds the transport parameters shared by every channel.
type Config struct {
	// Path is the TV's WebSocket endpoint.
	Path string

	// HeartbeatInterval is the time between keep-alive pings.
	HeartbeatInterval time.Duration

	// MissedHeartbeats is how many consecutive unanswered pings drop the
	// connection.
	MissedHeartbeats int

	DialTimeout  time.Duration
	WriteTimeout time.Duration

	// InitialBackoff is the first reconnect delay. Each failed attempt
	// multiplies it by 1.5 up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// UnreachableAfter is the number of consecutive failed dials after
	// which the device is reported unreachable. Dialling continues.
	UnreachableAfter int

	MaxMessageSize int64
}

// FromTransport builds a channel Config from the transport config section.
func FromTransport(t config.TransportConfig) Config {
	return Config{
		Path:              t.Path,
		HeartbeatInterval: t.HeartbeatInterval,
		MissedHeartbeats:  t.MissedHeartbeats,
		DialTimeout:       t.DialTimeout,
		WriteTimeout:      t.WriteTimeout,
		InitialBackoff:    t.InitialBackoff,
		MaxBackoff:        t.MaxBackoff,
		UnreachableAfter:  t.UnreachableAfter,
		MaxMessageSize:    t.MaxMessageSize,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Path == "" {
		c.Path = defaultPath
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.MissedHeartbeats <= 0 {
		c.MissedHeartbeats = defaultMissedHeartbeats
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = max(defaultMaxBackoff, c.InitialBackoff)
	}
	if c.UnreachableAfter <= 0 {
		c.UnreachableAfter = defaultUnreachableAfter
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}
	return c
}

// nextBackoff grows d by the multiplier, capped at max.
func nextBackoff(d, maxBackoff time.Duration) time.Duration {
	next := time.Duration(float64(d) * backoffMultiplier)
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
