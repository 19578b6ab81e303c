package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/quickbars-hub/internal/device"
)

// Inbound frame types.
const (
	FrameAction   = "action"
	FrameEntities = "entities"
	FrameHello    = "hello"
)

// Logger defines the logging interface used by the Router.
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

// ActionStore records action events for audit.
type ActionStore interface {
	SaveAction(ctx context.Context, a ActionEvent) error
}

// EntityStore replaces a device's saved-entity bindings.
type EntityStore interface {
	ReplaceEntities(ctx context.Context, deviceID string, entities []device.SavedEntity) error
}

// DeviceUpdater receives what a TV reports about itself.
type DeviceUpdater interface {
	UpdateCapabilities(ctx context.Context, id string, caps device.Capabilities, appVersion string) error
	Touch(id string)
}

type inboundFrame struct {
	Type string `json:"type"`

	// action
	ID       string `json:"id,omitempty"`
	ActionID string `json:"action_id,omitempty"`
	CID      string `json:"cid,omitempty"`
	Label    string `json:"label,omitempty"`

	// entities
	Entities []device.SavedEntity `json:"entities,omitempty"`

	// hello
	Name         string               `json:"name,omitempty"`
	AppVersion   string               `json:"app_version,omitempty"`
	Capabilities *device.Capabilities `json:"capabilities,omitempty"`
}

// Router decodes frames received from devices and fans them out.
type Router struct {
	bus     *Bus
	actions ActionStore
	devices DeviceUpdater
	store   EntityStore
	logger  Logger
	now     func() time.Time
}

// NewRouter creates a router publishing to bus. The stores and updater are
// optional; a nil dependency skips that side effect.
func NewRouter(bus *Bus, devices DeviceUpdater, store EntityStore, actions ActionStore) *Router {
	return &Router{
		bus:     bus,
		actions: actions,
		devices: devices,
		store:   store,
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetLogger sets the logger for the router.
func (r *Router) SetLogger(logger Logger) {
	r.logger = logger
}

// HandleFrame processes one text frame read from deviceID's channel.
func (r *Router) HandleFrame(ctx context.Context, deviceID string, data []byte) error {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	if r.devices != nil {
		r.devices.Touch(deviceID)
	}

	switch f.Type {
	case FrameAction:
		return r.handleAction(ctx, deviceID, f)
	case FrameEntities:
		return r.handleEntities(ctx, deviceID, f)
	case FrameHello:
		return r.handleHello(ctx, deviceID, f)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFrame, f.Type)
	}
}

func (r *Router) handleAction(ctx context.Context, deviceID string, f inboundFrame) error {
	// A frame tagged for another device id is not ours to report.
	if f.ID != "" && !strings.EqualFold(f.ID, deviceID) {
		r.logger.Debug("ignoring action for other device", "device_id", deviceID, "frame_id", f.ID)
		return nil
	}
	if f.ActionID == "" {
		return fmt.Errorf("%w: action frame without action_id", ErrMalformedFrame)
	}

	action := ActionEvent{
		DeviceID:   deviceID,
		ActionID:   f.ActionID,
		CID:        f.CID,
		Label:      f.Label,
		ReceivedAt: r.now(),
	}
	delivered := r.bus.Publish(action.Event())
	r.logger.Debug("action event published", "device_id", deviceID, "action_id", f.ActionID, "subscribers", delivered)

	if r.actions != nil {
		if err := r.actions.SaveAction(ctx, action); err != nil {
			r.logger.Warn("failed to record action event", "device_id", deviceID, "error", err)
		}
	}
	return nil
}

func (r *Router) handleEntities(ctx context.Context, deviceID string, f inboundFrame) error {
	if r.store == nil {
		return nil
	}
	entities := make([]device.SavedEntity, 0, len(f.Entities))
	for _, e := range f.Entities {
		if e.EntityID == "" {
			continue
		}
		e.DeviceID = deviceID
		entities = append(entities, e)
	}
	if err := r.store.ReplaceEntities(ctx, deviceID, entities); err != nil {
		return fmt.Errorf("storing saved entities: %w", err)
	}
	r.logger.Info("saved entities synced", "device_id", deviceID, "count", len(entities))
	return nil
}

func (r *Router) handleHello(ctx context.Context, deviceID string, f inboundFrame) error {
	if r.devices == nil || f.Capabilities == nil {
		return nil
	}
	if err := r.devices.UpdateCapabilities(ctx, deviceID, *f.Capabilities, f.AppVersion); err != nil {
		return fmt.Errorf("updating capabilities: %w", err)
	}
	r.logger.Info("device hello", "device_id", deviceID, "app_version", f.AppVersion,
		"max_quickbars", f.Capabilities.MaxQuickBars, "grid_layout", f.Capabilities.GridLayout)
	return nil
}
