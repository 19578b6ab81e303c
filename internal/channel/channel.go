package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/quickbars-hub/internal/device"
)

// State is the connection state of a channel.
type State int32

// Channel states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateActive
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateActive:
		return "active"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// DeviceState maps a channel state onto the registry's device state.
// Connected (socket open, no pong yet) is reported as paired.
func (s State) DeviceState() device.State {
	switch s {
	case StateConnecting:
		return device.StateConnecting
	case StateConnected:
		return device.StatePaired
	case StateActive:
		return device.StateActive
	}
	return device.StateDisconnected
}

// Logger defines the logging interface used by channels.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Hooks are called from the channel's own goroutines. They must not block
// for long and must not call Close on the same channel.
type Hooks struct {
	// OnState is called on every state transition.
	OnState func(deviceID string, s State)

	// OnFrame is called for every text frame received.
	OnFrame func(deviceID string, data []byte)

	// OnUnreachable is called once when consecutive failed dials reach
	// Config.UnreachableAfter.
	OnUnreachable func(deviceID string, attempts int)
}

// Stats is a snapshot of channel counters.
type Stats struct {
	State        string    `json:"state"`
	Address      string    `json:"address"`
	Connects     uint64    `json:"connects"`
	Reconnects   uint64    `json:"reconnects"`
	DialFailures uint64    `json:"dial_failures"`
	FramesIn     uint64    `json:"frames_in"`
	FramesOut    uint64    `json:"frames_out"`
	LastPong     time.Time `json:"last_pong,omitzero"`
}

// Channel is the persistent connection to one TV. It implements
// device.Channel.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Frames are written one at a time; pings are written concurrently
//     as control frames.
type Channel struct {
	cfg      Config
	deviceID string
	token    string
	hooks    Hooks
	logger   Logger
	dialer   *websocket.Dialer

	addrMu  sync.RWMutex
	address string

	state atomic.Int32

	connMu sync.Mutex
	conn   *websocket.Conn

	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	redial chan struct{}

	// lifeMu orders Start's wg.Add before Close's wg.Wait.
	lifeMu  sync.Mutex
	started bool
	closed  bool
	wg      sync.WaitGroup

	connects     atomic.Uint64
	dialFailures atomic.Uint64
	framesIn     atomic.Uint64
	framesOut    atomic.Uint64
	lastPong     atomic.Int64
}

// New creates a channel to the TV at address ("host:port") that presents
// token. Call Start to begin connecting.
func New(deviceID, address, token string, cfg Config, hooks Hooks) *Channel {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		cfg:      cfg,
		deviceID: deviceID,
		token:    token,
		hooks:    hooks,
		logger:   noopLogger{},
		dialer:   &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
		address:  address,
		ctx:      ctx,
		cancel:   cancel,
		redial:   make(chan struct{}, 1),
	}
}

// SetLogger sets the logger. Call before Start.
func (c *Channel) SetLogger(logger Logger) {
	c.logger = logger
}

// DeviceID returns the id of the device this channel serves.
func (c *Channel) DeviceID() string { return c.deviceID }

// Start launches the connection loop. Calling it again, or after Close,
// has no effect.
func (c *Channel) Start() {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.started || c.closed {
		return
	}
	c.started = true
	c.wg.Add(1)
	go c.run()
}

// State returns the current state.
func (c *Channel) State() State {
	return State(c.state.Load())
}

// Address returns the address used for the next dial.
func (c *Channel) Address() string {
	c.addrMu.RLock()
	defer c.addrMu.RUnlock()
	return c.address
}

// SetAddress changes where the channel dials. An open connection is kept;
// a channel waiting to reconnect dials the new address at once.
func (c *Channel) SetAddress(address string) {
	c.addrMu.Lock()
	changed := c.address != address
	c.address = address
	c.addrMu.Unlock()

	if changed && c.State() != StateActive {
		select {
		case c.redial <- struct{}{}:
		default:
		}
	}
}

// Send writes one text frame. It fails with device.ErrDeviceUnreachable
// unless the channel is Active.
func (c *Channel) Send(ctx context.Context, frame []byte) error {
	if c.ctx.Err() != nil {
		return fmt.Errorf("%w: channel closed", device.ErrDeviceUnreachable)
	}
	if s := c.State(); s != StateActive {
		return fmt.Errorf("%w: channel is %s", device.ErrDeviceUnreachable, s)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", device.ErrDeviceUnreachable, err)
	}

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return fmt.Errorf("%w: no connection", device.ErrDeviceUnreachable)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline) //nolint:errcheck // Surfaces on WriteMessage
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		// The read loop sees the closed socket and reconnects.
		conn.Close() //nolint:errcheck // Best effort
		return fmt.Errorf("%w: %w: %v", device.ErrDeviceUnreachable, device.ErrTransport, err)
	}
	c.framesOut.Add(1)
	return nil
}

// Close stops reconnecting, closes the connection and waits for the
// channel's goroutines, or for ctx, whichever comes first.
func (c *Channel) Close(ctx context.Context) error {
	c.lifeMu.Lock()
	c.closed = true
	c.lifeMu.Unlock()
	c.cancel()

	c.connMu.Lock()
	if c.conn != nil {
		deadline := time.Now().Add(time.Second)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "removed")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline) //nolint:errcheck // Best effort
		c.conn.Close()                                                 //nolint:errcheck // Best effort
	}
	c.connMu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.setState(StateDisconnected)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("closing channel %s: %w", c.deviceID, ctx.Err())
	}
}

// Stats returns a snapshot of the channel's counters.
func (c *Channel) Stats() Stats {
	connects := c.connects.Load()
	s := Stats{
		State:        c.State().String(),
		Address:      c.Address(),
		Connects:     connects,
		DialFailures: c.dialFailures.Load(),
		FramesIn:     c.framesIn.Load(),
		FramesOut:    c.framesOut.Load(),
	}
	if connects > 1 {
		s.Reconnects = connects - 1
	}
	if ns := c.lastPong.Load(); ns != 0 {
		s.LastPong = time.Unix(0, ns)
	}
	return s
}

// run is the connection loop. It exits only when the channel is closed.
func (c *Channel) run() {
	defer c.wg.Done()

	backoff := c.cfg.InitialBackoff
	failures := 0

	for c.ctx.Err() == nil {
		c.setState(StateConnecting)

		conn, err := c.dial()
		if err != nil {
			if c.ctx.Err() != nil {
				break
			}
			failures++
			c.dialFailures.Add(1)
			c.logger.Debug("channel dial failed", "device_id", c.deviceID, "attempt", failures,
				"backoff", backoff.String(), "error", err)
			if failures == c.cfg.UnreachableAfter {
				c.logger.Warn("device unreachable", "device_id", c.deviceID, "attempts", failures)
				if c.hooks.OnUnreachable != nil {
					c.hooks.OnUnreachable(c.deviceID, failures)
				}
			}
			if !c.wait(backoff) {
				break
			}
			backoff = nextBackoff(backoff, c.cfg.MaxBackoff)
			continue
		}

		failures = 0
		backoff = c.cfg.InitialBackoff
		if n := c.connects.Add(1); n > 1 {
			c.logger.Info("channel reconnected", "device_id", c.deviceID, "reconnects", n-1)
		}
		c.serve(conn)
	}

	c.setState(StateDisconnected)
}

// wait sleeps for d, returning early on a redial request. It reports
// false if the channel was closed.
func (c *Channel) wait(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-c.ctx.Done():
		return false
	case <-c.redial:
		return true
	case <-timer.C:
		return true
	}
}

func (c *Channel) dial() (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.DialTimeout)
	defer cancel()

	url := "ws://" + c.Address() + c.cfg.Path
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)

	conn, resp, err := c.dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close() //nolint:errcheck // Handshake body unused
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("dial %s: credential rejected: %w", url, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

// serve owns conn until it fails or the channel is closed.
func (c *Channel) serve(conn *websocket.Conn) {
	c.connMu.Lock()
	if c.ctx.Err() != nil {
		c.connMu.Unlock()
		conn.Close() //nolint:errcheck // Closed during dial
		return
	}
	c.conn = conn
	c.connMu.Unlock()

	defer func() {
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		conn.Close() //nolint:errcheck // Already failed or closing
	}()

	c.setState(StateConnected)
	c.logger.Info("channel connected", "device_id", c.deviceID, "address", conn.RemoteAddr().String())

	conn.SetReadLimit(c.cfg.MaxMessageSize)

	var outstanding atomic.Int32
	conn.SetPongHandler(func(string) error {
		outstanding.Store(0)
		c.lastPong.Store(time.Now().UnixNano())
		if c.State() == StateConnected {
			c.setState(StateActive)
		}
		return nil
	})

	stop := make(chan struct{})
	keepaliveDone := make(chan struct{})
	go func() {
		defer close(keepaliveDone)
		c.keepalive(conn, &outstanding, stop)
	}()

	c.readLoop(conn)

	close(stop)
	<-keepaliveDone

	if c.ctx.Err() == nil {
		c.logger.Warn("channel lost", "device_id", c.deviceID)
		c.setState(StateConnecting)
	}
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil && !errors.Is(err, websocket.ErrCloseSent) {
				c.logger.Debug("channel read ended", "device_id", c.deviceID, "error", err)
			}
			return
		}
		c.framesIn.Add(1)
		if msgType != websocket.TextMessage {
			continue
		}
		if c.hooks.OnFrame != nil {
			c.hooks.OnFrame(c.deviceID, data)
		}
	}
}

// keepalive pings immediately and then every heartbeat. When MissedHeartbeats
// pings in a row go unanswered it closes conn, which ends the read loop.
func (c *Channel) keepalive(conn *websocket.Conn, outstanding *atomic.Int32, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		if int(outstanding.Load()) >= c.cfg.MissedHeartbeats {
			c.logger.Warn("heartbeats missed, dropping connection", "device_id", c.deviceID,
				"missed", c.cfg.MissedHeartbeats)
			conn.Close() //nolint:errcheck // Unblocks the read loop
			return
		}
		outstanding.Add(1)
		deadline := time.Now().Add(c.cfg.WriteTimeout)
		if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			conn.Close() //nolint:errcheck // Unblocks the read loop
			return
		}

		select {
		case <-stop:
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Channel) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old == s {
		return
	}
	c.logger.Debug("channel state", "device_id", c.deviceID, "from", old.String(), "to", s.String())
	if c.hooks.OnState != nil {
		c.hooks.OnState(c.deviceID, s)
	}
}
