package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/quickbars-hub/internal/device"
	"github.com/nerrad567/quickbars-hub/internal/events"
)

// DefaultTimeout bounds a single device write.
const DefaultTimeout = 5 * time.Second

// Logger defines the logging interface used by the Dispatcher.
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

// Registry resolves dispatch targets.
type Registry interface {
	Lookup(id string) (device.Device, device.Channel, error)
	Targets() []device.Target
}

// EntityLookup returns the saved entities a device has reported.
type EntityLookup interface {
	ListEntities(ctx context.Context, deviceID string) ([]device.SavedEntity, error)
}

// Publisher receives events about delivered commands.
type Publisher interface {
	Publish(e events.Event) int
}

// Metrics records per-device dispatch outcomes.
type Metrics interface {
	WriteDispatch(kind, deviceID string, delivered bool, elapsed time.Duration)
}

// DeviceResult is the outcome of a dispatch for one device.
type DeviceResult struct {
	DeviceID  string `json:"device_id"`
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`

	Err error `json:"-"`
}

// DispatchResult reports a dispatch per device. It is never collapsed into
// a single success or failure.
type DispatchResult struct {
	ID      string         `json:"id"`
	Command Kind           `json:"command"`
	CID     string         `json:"cid,omitempty"`
	Results []DeviceResult `json:"results"`
}

// Delivered returns how many devices received the command.
func (r *DispatchResult) Delivered() int {
	n := 0
	for _, res := range r.Results {
		if res.Delivered {
			n++
		}
	}
	return n
}

// Failed returns the results that were not delivered.
func (r *DispatchResult) Failed() []DeviceResult {
	var out []DeviceResult
	for _, res := range r.Results {
		if !res.Delivered {
			out = append(out, res)
		}
	}
	return out
}

// Dispatcher validates commands, resolves targets and writes frames to
// device channels.
type Dispatcher struct {
	registry  Registry
	encoder   *Encoder
	entities  EntityLookup
	publisher Publisher
	metrics   Metrics
	icons     IconSource
	timeout   time.Duration
	logger    Logger
}

// NewDispatcher creates a dispatcher. baseURL is the hub address the TV
// uses to fetch relative media.
func NewDispatcher(registry Registry, baseURL string) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		encoder:  NewEncoder(baseURL),
		timeout:  DefaultTimeout,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) { d.logger = logger }

// SetEntityLookup enables checking camera references against each
// device's saved entities.
func (d *Dispatcher) SetEntityLookup(l EntityLookup) { d.entities = l }

// SetPublisher sets where notification_sent events go.
func (d *Dispatcher) SetPublisher(p Publisher) { d.publisher = p }

// SetMetrics sets the telemetry sink.
func (d *Dispatcher) SetMetrics(m Metrics) { d.metrics = m }

// SetIconSource enables inlining notification icons as SVG data URIs.
// Without it only icon_url is sent.
func (d *Dispatcher) SetIconSource(s IconSource) { d.icons = s }

// SetTimeout sets the per-device write timeout.
func (d *Dispatcher) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		d.timeout = timeout
	}
}

// Dispatch sends cmd to deviceID, or to every registered device when
// deviceID is empty.
//
// Errors that apply to the whole command are returned and nothing is
// written: a nil command, an unknown target, or a camera reference the
// targeted device has not saved. Per-device failures, including devices
// whose channel is not active, are reported in the result as
// ErrDeviceUnreachable.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command, deviceID string) (*DispatchResult, error) {
	if cmd == nil {
		return nil, fmt.Errorf("%w: command is required", device.ErrInvalidConfiguration)
	}

	targets, err := d.resolveTargets(deviceID)
	if err != nil {
		return nil, err
	}

	// Camera references are checked up front so that a targeted dispatch
	// with a bad reference writes nothing.
	refErrs := make([]error, len(targets))
	for i, t := range targets {
		refErrs[i] = d.checkCameraReference(ctx, cmd, t.Device.ID)
		if refErrs[i] != nil && deviceID != "" {
			return nil, refErrs[i]
		}
	}

	if n, ok := cmd.(Notify); ok && d.icons != nil {
		cmd = d.inlineIcon(ctx, n)
	}

	id, frame, err := d.encoder.Encode(cmd)
	if err != nil {
		return nil, err
	}

	result := &DispatchResult{
		ID:      id,
		Command: cmd.Kind(),
		Results: make([]DeviceResult, len(targets)),
	}
	if n, ok := cmd.(Notify); ok {
		result.CID = n.CID()
	}

	var wg sync.WaitGroup
	for i, t := range targets {
		if refErrs[i] != nil {
			result.Results[i] = failed(t.Device.ID, refErrs[i])
			continue
		}
		wg.Add(1)
		go func(i int, t device.Target) {
			defer wg.Done()
			result.Results[i] = d.send(ctx, cmd, t, frame)
		}(i, t)
	}
	wg.Wait()

	d.logger.Info("command dispatched",
		"command", cmd.Kind(),
		"frame_id", id,
		"targets", len(targets),
		"delivered", result.Delivered(),
	)
	return result, nil
}

// inlineIcon attaches the icon's SVG data URI. A failed fetch leaves the
// notification with icon_url only.
func (d *Dispatcher) inlineIcon(ctx context.Context, n Notify) Notify {
	icon, ok := n.icon.Get()
	if !ok {
		return n
	}
	uri, err := d.icons.DataURI(ctx, icon)
	if err != nil {
		d.logger.Warn("icon not inlined, sending icon_url only", "icon", icon, "error", err)
		return n
	}
	n.iconData = Some(uri)
	return n
}

func (d *Dispatcher) resolveTargets(deviceID string) ([]device.Target, error) {
	if deviceID == "" {
		return d.registry.Targets(), nil
	}
	dev, ch, err := d.registry.Lookup(deviceID)
	if err != nil {
		return nil, err
	}
	return []device.Target{{Device: dev, Channel: ch}}, nil
}

func (d *Dispatcher) send(ctx context.Context, cmd Command, t device.Target, frame []byte) DeviceResult {
	id := t.Device.ID
	if t.Device.State != device.StateActive || t.Channel == nil {
		return failed(id, fmt.Errorf("%w: %s is %s", device.ErrDeviceUnreachable, id, t.Device.State))
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	err := t.Channel.Send(sendCtx, frame)
	elapsed := time.Since(start)

	if d.metrics != nil {
		d.metrics.WriteDispatch(string(cmd.Kind()), id, err == nil, elapsed)
	}

	if err != nil {
		if !errors.Is(err, device.ErrDeviceUnreachable) {
			err = fmt.Errorf("%w: %s: %v", device.ErrDeviceUnreachable, id, err)
		}
		d.logger.Warn("command not delivered", "device_id", id, "command", cmd.Kind(), "error", err)
		return failed(id, err)
	}

	if n, ok := cmd.(Notify); ok && d.publisher != nil {
		title, _ := n.Title().Get()
		d.publisher.Publish(events.NotificationSent(id, n.CID(), title))
	}
	d.logger.Debug("command delivered", "device_id", id, "command", cmd.Kind(), "elapsed", elapsed)
	return DeviceResult{DeviceID: id, Delivered: true}
}

// checkCameraReference verifies a camera alias or entity against the
// entities the device has reported. A device that has reported none is
// not checked.
func (d *Dispatcher) checkCameraReference(ctx context.Context, cmd Command, deviceID string) error {
	ct, ok := cmd.(CameraToggle)
	if !ok || d.entities == nil || ct.source.kind == SourceRTSP {
		return nil
	}

	saved, err := d.entities.ListEntities(ctx, deviceID)
	if err != nil {
		d.logger.Warn("saved entities unavailable, skipping camera check", "device_id", deviceID, "error", err)
		return nil
	}
	if len(saved) == 0 {
		return nil
	}

	for _, e := range saved {
		switch ct.source.kind {
		case SourceAlias:
			if e.Alias == ct.source.value {
				return nil
			}
		case SourceEntity:
			if e.EntityID == ct.source.value {
				return nil
			}
		}
	}
	field := "camera_alias"
	if ct.source.kind == SourceEntity {
		field = "camera_entity"
	}
	return fmt.Errorf("%w: %s %q is not saved on device %s",
		device.ErrInvalidConfiguration, field, ct.source.value, deviceID)
}

func failed(deviceID string, err error) DeviceResult {
	return DeviceResult{DeviceID: deviceID, Error: err.Error(), Err: err}
}

// DispatchJSON decodes a service call body for kind and dispatches it.
// Decoding and validation errors are returned before any target is resolved.
func (d *Dispatcher) DispatchJSON(ctx context.Context, kind Kind, body []byte) (*DispatchResult, error) {
	cmd, deviceID, err := Decode(kind, body)
	if err != nil {
		return nil, err
	}
	return d.Dispatch(ctx, cmd, deviceID)
}
