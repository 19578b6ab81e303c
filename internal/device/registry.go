package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// defaultCloseGrace bounds how long Unregister waits for a channel to close.
const defaultCloseGrace = 2 * time.Second

// Logger defines the logging interface used by the Registry.
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

// Target is a registered device together with its channel, as handed to
// the command dispatcher.
type Target struct {
	Device  Device
	Channel Channel
}

type entry struct {
	device  *Device
	session Session
}

// Registry maps device ids to their Device and Session.
//
// Writes go through to the Repository so paired devices survive restart.
// A device has at most one Session: registering again replaces the old one
// and closes its channel.
//
// All public methods are thread-safe.
type Registry struct {
	repo       Repository
	mu         sync.RWMutex
	entries    map[string]*entry
	closeGrace time.Duration
	logger     Logger
}

// NewRegistry creates an empty registry backed by repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:       repo,
		entries:    make(map[string]*entry),
		closeGrace: defaultCloseGrace,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetCloseGrace sets the bound on channel teardown during removal.
func (r *Registry) SetCloseGrace(d time.Duration) {
	if d > 0 {
		r.closeGrace = d
	}
}

// Restore returns the persisted device records. The session manager opens
// a channel for each and calls Register.
func (r *Registry) Restore(ctx context.Context) ([]Record, error) {
	records, err := r.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading devices: %w", err)
	}
	return records, nil
}

// Register adds a device with its session, replacing any existing session
// for the same id. The replaced channel is closed after the swap.
func (r *Registry) Register(ctx context.Context, dev Device, sess Session) error {
	if dev.ID == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidConfiguration)
	}
	if sess.Token == "" {
		return fmt.Errorf("%w: session token is required", ErrInvalidConfiguration)
	}
	sess.DeviceID = dev.ID
	if sess.EstablishedAt.IsZero() {
		sess.EstablishedAt = time.Now()
	}

	now := time.Now()
	stored := dev.Clone()
	stored.UpdatedAt = now
	if !stored.State.Valid() {
		stored.State = StateDisconnected
	}

	r.mu.Lock()
	old, replaced := r.entries[dev.ID]
	if replaced {
		stored.CreatedAt = old.device.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}

	if err := r.repo.Save(ctx, Record{Device: *stored, Token: sess.Token}); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("persisting device: %w", err)
	}
	r.entries[dev.ID] = &entry{device: stored, session: sess}
	r.mu.Unlock()

	if replaced {
		r.logger.Info("device session replaced", "device_id", dev.ID)
		r.closeChannel(ctx, dev.ID, old.session.Channel)
	} else {
		r.logger.Info("device registered", "device_id", dev.ID, "address", stored.Address())
	}
	return nil
}

// Unregister removes a device, deletes its persisted record and closes its
// channel within the close grace period. Removal is irreversible.
func (r *Registry) Unregister(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}

	r.closeChannel(ctx, id, e.session.Channel)

	if err := r.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	r.logger.Info("device unregistered", "device_id", id)
	return nil
}

func (r *Registry) closeChannel(ctx context.Context, id string, ch Channel) {
	if ch == nil {
		return
	}
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.closeGrace)
	defer cancel()
	if err := ch.Close(closeCtx); err != nil {
		r.logger.Warn("channel did not close cleanly", "device_id", id, "error", err)
	}
}

// Get returns a copy of a registered device.
func (r *Registry) Get(id string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	return e.device.Clone(), nil
}

// List returns copies of all registered devices ordered by name.
func (r *Registry) List() []Device {
	return r.filter(func(*Device) bool { return true })
}

// ListActive returns copies of the devices whose channel is active.
func (r *Registry) ListActive() []Device {
	return r.filter(func(d *Device) bool { return d.State == StateActive })
}

func (r *Registry) filter(keep func(*Device) bool) []Device {
	r.mu.RLock()
	devices := make([]Device, 0, len(r.entries))
	for _, e := range r.entries {
		if keep(e.device) {
			devices = append(devices, *e.device.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Name != devices[j].Name {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].ID < devices[j].ID
	})
	return devices
}

// Lookup resolves a device id to a copy of the device and its channel.
func (r *Registry) Lookup(id string) (Device, Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return Device{}, nil, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	return *e.device.Clone(), e.session.Channel, nil
}

// Targets returns a snapshot of every registered device and its channel.
func (r *Registry) Targets() []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	targets := make([]Target, 0, len(r.entries))
	for _, e := range r.entries {
		targets = append(targets, Target{Device: *e.device.Clone(), Channel: e.session.Channel})
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].Device.ID < targets[j].Device.ID })
	return targets
}

// SetState records a channel state transition. Entering StateActive also
// refreshes LastSeen. It reports the previous state.
func (r *Registry) SetState(id string, state State) (State, error) {
	if !state.Valid() {
		return "", fmt.Errorf("%w: unknown state %q", ErrInvalidConfiguration, state)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	prev := e.device.State
	e.device.State = state
	if state == StateActive {
		now := time.Now()
		e.device.LastSeen = &now
	}
	return prev, nil
}

// Touch refreshes LastSeen after inbound traffic from the device.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[id]; ok {
		now := time.Now()
		e.device.LastSeen = &now
	}
}

// UpdateAddress records a new network address for a paired device, as seen
// by discovery. The session and channel are left untouched.
func (r *Registry) UpdateAddress(ctx context.Context, id, host string, port int) error {
	return r.update(ctx, id, func(d *Device) bool {
		if d.Host == host && d.Port == port {
			return false
		}
		d.Host, d.Port = host, port
		return true
	})
}

// UpdateCapabilities records what the TV reported about itself.
func (r *Registry) UpdateCapabilities(ctx context.Context, id string, caps Capabilities, appVersion string) error {
	return r.update(ctx, id, func(d *Device) bool {
		if d.Capabilities == caps && (appVersion == "" || d.AppVersion == appVersion) {
			return false
		}
		d.Capabilities = caps
		if appVersion != "" {
			d.AppVersion = appVersion
		}
		return true
	})
}

// update applies mutate under the write lock and persists the result when
// mutate reports a change.
func (r *Registry) update(ctx context.Context, id string, mutate func(*Device) bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}

	next := e.device.Clone()
	if !mutate(next) {
		return nil
	}
	next.UpdatedAt = time.Now()

	if err := r.repo.Save(ctx, Record{Device: *next, Token: e.session.Token}); err != nil {
		return fmt.Errorf("persisting device: %w", err)
	}
	e.device = next
	return nil
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Close closes every channel without removing the persisted records.
// It is used on shutdown.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for id, e := range entries {
		wg.Add(1)
		go func(id string, ch Channel) {
			defer wg.Done()
			r.closeChannel(ctx, id, ch)
		}(id, e.session.Channel)
	}
	wg.Wait()
}
