package automation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/quickbars-hub/internal/command"
	"github.com/nerrad567/quickbars-hub/internal/events"
	"github.com/nerrad567/quickbars-hub/internal/infrastructure/mqtt"
)

const (
	defaultDispatchTimeout = 10 * time.Second
	eventBuffer            = 256
)

// Logger defines the logging interface used by the bridge.
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

// MQTTClient is the subset of the MQTT client the bridge uses.
type MQTTClient interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	PublishJSON(topic string, v any, retained bool) error
}

// Dispatcher runs decoded service calls.
type Dispatcher interface {
	DispatchJSON(ctx context.Context, kind command.Kind, body []byte) (*command.DispatchResult, error)
}

// EventSource is where outbound events come from.
type EventSource interface {
	Subscribe(filter events.Filter, buffer int) *events.Subscription
}

// Result is published after every inbound service call.
type Result struct {
	Service string                  `json:"service"`
	OK      bool                    `json:"ok"`
	Error   string                  `json:"error,omitempty"`
	Result  *command.DispatchResult `json:"result,omitempty"`
}

type deviceStatePayload struct {
	DeviceID  string    `json:"device_id"`
	State     any       `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// Bridge relays service calls from MQTT to the dispatcher and bus events
// back to MQTT.
//
// Thread Safety: Start and Stop may be called from any goroutine; message
// handlers run on the MQTT client's goroutines.
type Bridge struct {
	client     MQTTClient
	dispatcher Dispatcher
	source     EventSource
	logger     Logger
	timeout    time.Duration

	mu      sync.Mutex
	sub     *events.Subscription
	wg      sync.WaitGroup
	started bool
}

// NewBridge creates a bridge. Call Start to begin relaying.
func NewBridge(client MQTTClient, dispatcher Dispatcher, source EventSource) *Bridge {
	return &Bridge{
		client:     client,
		dispatcher: dispatcher,
		source:     source,
		logger:     noopLogger{},
		timeout:    defaultDispatchTimeout,
	}
}

// SetLogger sets the logger.
func (b *Bridge) SetLogger(logger Logger) { b.logger = logger }

// SetTimeout bounds each inbound dispatch.
func (b *Bridge) SetTimeout(d time.Duration) {
	if d > 0 {
		b.timeout = d
	}
}

// Start subscribes to command topics and begins relaying events.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return ErrAlreadyStarted
	}

	if err := b.client.Subscribe(mqtt.Topics{}.AllCommands(), 1, func(topic string, payload []byte) error {
		return b.handleCommand(ctx, topic, payload)
	}); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}

	b.sub = b.source.Subscribe(events.Any(), eventBuffer)
	b.wg.Add(1)
	go b.relay(b.sub)

	b.started = true
	b.logger.Info("automation bridge started", "commands", mqtt.Topics{}.AllCommands())
	return nil
}

// Stop unsubscribes from commands and stops relaying events.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.started = false
	sub := b.sub
	b.sub = nil
	b.mu.Unlock()

	if err := b.client.Unsubscribe(mqtt.Topics{}.AllCommands()); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
		b.logger.Warn("failed to unsubscribe from commands", "error", err)
	}
	sub.Unsubscribe()
	b.wg.Wait()

	if dropped := sub.Dropped(); dropped > 0 {
		b.logger.Warn("automation bridge dropped events", "dropped", dropped)
	}
}

func (b *Bridge) handleCommand(ctx context.Context, topic string, payload []byte) error {
	service, ok := mqtt.Topics{}.ParseCommand(topic)
	if !ok || !slices.Contains(command.Kinds, command.Kind(service)) {
		return fmt.Errorf("%w: %s", ErrUnknownService, topic)
	}

	dctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	res, err := b.dispatcher.DispatchJSON(dctx, command.Kind(service), payload)
	out := Result{Service: service, OK: err == nil, Result: res}
	if err != nil {
		out.Error = err.Error()
		b.logger.Warn("service call rejected", "service", service, "error", err)
	} else {
		b.logger.Debug("service call dispatched", "service", service,
			"delivered", res.Delivered(), "failed", len(res.Failed()))
	}

	if perr := b.client.PublishJSON(mqtt.Topics{}.Result(service), out, false); perr != nil {
		return fmt.Errorf("publishing result: %w", perr)
	}
	return nil
}

func (b *Bridge) relay(sub *events.Subscription) {
	defer b.wg.Done()
	for e := range sub.C {
		b.publishEvent(e)
	}
}

func (b *Bridge) publishEvent(e events.Event) {
	topic := mqtt.Topics{}.Event(e.DeviceID, string(e.Type))
	if err := b.client.PublishJSON(topic, e, false); err != nil {
		b.logger.Debug("event not published", "topic", topic, "error", err)
		return
	}

	if e.Type == events.TypeDeviceState {
		state := deviceStatePayload{DeviceID: e.DeviceID, State: e.Data["state"], Timestamp: e.Timestamp}
		if err := b.client.PublishJSON(mqtt.Topics{}.DeviceState(e.DeviceID), state, true); err != nil {
			b.logger.Debug("device state not published", "device_id", e.DeviceID, "error", err)
		}
	}
}
