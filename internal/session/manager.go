package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nerrad567/quickbars-hub/internal/channel"
	"github.com/nerrad567/quickbars-hub/internal/device"
	"github.com/nerrad567/quickbars-hub/internal/discovery"
	"github.com/nerrad567/quickbars-hub/internal/events"
	"github.com/nerrad567/quickbars-hub/internal/pairing"
)

// Logger defines the logging interface used by the Manager.
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

// Pairer runs the pairing handshake. *pairing.Handshaker satisfies it.
type Pairer interface {
	BeginPairing(ctx context.Context, address string) (*pairing.Challenge, error)
	Pair(ctx context.Context, address, code string) (*pairing.Result, error)
}

// FrameHandler consumes inbound frames. *events.Router satisfies it.
type FrameHandler interface {
	HandleFrame(ctx context.Context, deviceID string, data []byte) error
}

// Publisher publishes device state events. *events.Bus satisfies it.
type Publisher interface {
	Publish(e events.Event) int
}

// StateMetrics records channel state transitions.
type StateMetrics interface {
	WriteChannelState(deviceID, state string)
}

// Manager owns device sessions. It is safe for concurrent use.
type Manager struct {
	registry  *device.Registry
	pairer    Pairer
	frames    FrameHandler
	cfg       channel.Config
	logger    Logger
	publisher Publisher
	metrics   StateMetrics

	ctx    context.Context
	cancel context.CancelFunc

	// openMu keeps the tracked channel and the registry entry swapped
	// in the same order when pairings race.
	openMu sync.Mutex

	mu       sync.Mutex
	channels map[string]*channel.Channel
}

// NewManager creates a session manager.
func NewManager(registry *device.Registry, pairer Pairer, frames FrameHandler, cfg channel.Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		registry: registry,
		pairer:   pairer,
		frames:   frames,
		cfg:      cfg,
		logger:   noopLogger{},
		ctx:      ctx,
		cancel:   cancel,
		channels: make(map[string]*channel.Channel),
	}
}

// SetLogger sets the logger for the manager and the channels it opens.
func (m *Manager) SetLogger(logger Logger) { m.logger = logger }

// SetPublisher sets where device state events go.
func (m *Manager) SetPublisher(p Publisher) { m.publisher = p }

// SetMetrics sets the channel state recorder.
func (m *Manager) SetMetrics(s StateMetrics) { m.metrics = s }

// BeginPairing asks the TV at address to show a pairing code.
func (m *Manager) BeginPairing(ctx context.Context, address string) (*pairing.Challenge, error) {
	return m.pairer.BeginPairing(ctx, address)
}

// Pair completes the handshake with the TV at address and opens its
// channel. Pairing an already paired device replaces its session.
func (m *Manager) Pair(ctx context.Context, address, code string) (*device.Device, error) {
	res, err := m.pairer.Pair(ctx, address, code)
	if err != nil {
		return nil, err
	}
	if err := m.open(ctx, res.Device, res.Token); err != nil {
		return nil, err
	}
	return m.registry.Get(res.Device.ID)
}

// Restore opens a channel for every persisted device. It returns the number
// of sessions restored; a device that fails to restore is logged and
// skipped.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	records, err := m.registry.Restore(ctx)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, rec := range records {
		dev := rec.Device
		dev.State = device.StateDisconnected
		if err := m.open(ctx, dev, rec.Token); err != nil {
			m.logger.Error("failed to restore device session", "device_id", dev.ID, "error", err)
			continue
		}
		restored++
	}
	m.logger.Info("device sessions restored", "count", restored, "stored", len(records))
	return restored, nil
}

// open registers dev with a new channel and starts it.
func (m *Manager) open(ctx context.Context, dev device.Device, token string) error {
	m.openMu.Lock()
	defer m.openMu.Unlock()

	ch := m.newChannel(dev, token)

	// The new channel is tracked before the registry swap so the replaced
	// channel's final state changes are ignored.
	m.mu.Lock()
	prev, hadPrev := m.channels[dev.ID]
	m.channels[dev.ID] = ch
	m.mu.Unlock()

	if err := m.registry.Register(ctx, dev, device.Session{Token: token, Channel: ch}); err != nil {
		m.mu.Lock()
		if m.channels[dev.ID] == ch {
			if hadPrev {
				m.channels[dev.ID] = prev
			} else {
				delete(m.channels, dev.ID)
			}
		}
		m.mu.Unlock()
		ch.Close(ctx) //nolint:errcheck // Never started
		return err
	}

	ch.Start()
	return nil
}

func (m *Manager) newChannel(dev device.Device, token string) *channel.Channel {
	var ch *channel.Channel
	ch = channel.New(dev.ID, dev.Address(), token, m.cfg, channel.Hooks{
		OnState: func(id string, s channel.State) {
			if m.current(id, ch) {
				m.setState(id, s.DeviceState())
			}
		},
		OnUnreachable: func(id string, attempts int) {
			if m.current(id, ch) {
				m.setState(id, device.StateUnreachable)
			}
		},
		OnFrame: func(id string, data []byte) {
			if !m.current(id, ch) {
				return
			}
			if err := m.frames.HandleFrame(m.ctx, id, data); err != nil {
				m.logger.Warn("inbound frame rejected", "device_id", id, "error", err)
			}
		},
	})
	ch.SetLogger(m.logger)
	return ch
}

// current reports whether ch is the live channel for id.
func (m *Manager) current(id string, ch *channel.Channel) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channels[id] == ch
}

func (m *Manager) setState(id string, state device.State) {
	old, err := m.registry.SetState(id, state)
	if err != nil {
		if !errors.Is(err, device.ErrUnknownDevice) {
			m.logger.Warn("failed to update device state", "device_id", id, "state", string(state), "error", err)
		}
		return
	}
	if old == state {
		return
	}
	if m.publisher != nil {
		m.publisher.Publish(events.DeviceState(id, string(state)))
	}
	if m.metrics != nil {
		m.metrics.WriteChannelState(id, string(state))
	}
}

// Remove ends a device's session, closes its channel and deletes it.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.channels, id)
	m.mu.Unlock()

	if err := m.registry.Unregister(ctx, id); err != nil {
		return err
	}
	if m.publisher != nil {
		m.publisher.Publish(events.DeviceState(id, "removed"))
	}
	return nil
}

// HandlePresence applies a discovery sighting. A sighting of a paired
// device at a new address updates the stored address and the address its
// channel dials next. Sightings of unpaired devices are ignored.
func (m *Manager) HandlePresence(ctx context.Context, c discovery.Candidate) {
	if c.DeviceID == "" || c.Host == "" || c.Port <= 0 {
		return
	}

	var dev *device.Device
	for _, d := range m.registry.List() {
		if strings.EqualFold(d.ID, c.DeviceID) {
			dev = &d
			break
		}
	}
	if dev == nil || (dev.Host == c.Host && dev.Port == c.Port) {
		return
	}

	if err := m.registry.UpdateAddress(ctx, dev.ID, c.Host, c.Port); err != nil {
		m.logger.Warn("failed to update device address", "device_id", dev.ID, "error", err)
		return
	}
	m.mu.Lock()
	ch := m.channels[dev.ID]
	m.mu.Unlock()
	if ch != nil {
		ch.SetAddress(c.Address())
	}
	m.logger.Info("device address changed", "device_id", dev.ID, "from", dev.Address(), "to", c.Address())
}

// Stats returns the channel counters for a device.
func (m *Manager) Stats(id string) (channel.Stats, error) {
	m.mu.Lock()
	ch := m.channels[id]
	m.mu.Unlock()
	if ch == nil {
		return channel.Stats{}, fmt.Errorf("%w: %s", device.ErrUnknownDevice, id)
	}
	return ch.Stats(), nil
}

// Close closes every channel. Persisted devices are kept for the next
// Restore.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	m.channels = make(map[string]*channel.Channel)
	m.mu.Unlock()

	m.registry.Close(ctx)
	m.cancel()
}
