package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/quickbars-hub/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration. Tests that need a broker
// live in integration_test.go.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "quickbars-hub-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// mockLogger implements Logger for testing.
type mockLogger struct {
	errors []string
	warns  []string
	mu     sync.Mutex
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"Command", Topics{}.Command("notify"), "quickbars/command/notify"},
		{"Result", Topics{}.Result("camera_toggle"), "quickbars/result/camera_toggle"},
		{"Event", Topics{}.Event("tv-1", "quickbars.notification_action"), "quickbars/event/tv-1/quickbars.notification_action"},
		{"DeviceState", Topics{}.DeviceState("tv-1"), "quickbars/device/tv-1/state"},
		{"HubStatus", Topics{}.HubStatus(), "quickbars/hub/status"},
		{"AllCommands", Topics{}.AllCommands(), "quickbars/command/+"},
		{"AllEvents", Topics{}.AllEvents(), "quickbars/event/#"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestTopics_ParseCommand(t *testing.T) {
	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{"quickbars/command/notify", "notify", true},
		{"quickbars/command/quickbar_toggle", "quickbar_toggle", true},
		{"quickbars/command/", "", false},
		{"quickbars/command/notify/extra", "", false},
		{"quickbars/result/notify", "", false},
		{"other/command/notify", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, ok := Topics{}.ParseCommand(tt.topic)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseCommand(%q) = %q, %v; want %q, %v", tt.topic, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "hub"
	cfg.Auth.Password = "secret"
	cfg.Broker.TLS = true

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want ssl://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "quickbars-hub-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "hub" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig = nil with broker.tls set")
	}
	if !opts.WillEnabled || opts.WillTopic != "quickbars/hub/status" || !opts.WillRetained {
		t.Errorf("will = %v %q retained=%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}

	var status hubStatus
	if err := json.Unmarshal(opts.WillPayload, &status); err != nil {
		t.Fatalf("will payload: %v", err)
	}
	if status.Status != "offline" || status.Reason != "unexpected_disconnect" {
		t.Errorf("will payload = %+v", status)
	}
}

func TestClientWithoutConnection(t *testing.T) {
	client := &Client{cfg: testConfig(), subscriptions: make(map[string]subscription)}

	if client.IsConnected() {
		t.Error("IsConnected() = true for unconnected client")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"publish empty topic", client.Publish("", []byte("x"), 1, false), ErrInvalidTopic},
		{"publish invalid qos", client.Publish("t", []byte("x"), 3, false), ErrInvalidQoS},
		{"publish oversized", client.Publish("t", make([]byte, maxPayloadSize+1), 1, false), ErrPublishFailed},
		{"publish disconnected", client.Publish("t", []byte("x"), 1, false), ErrNotConnected},
		{"publish unencodable", client.PublishJSON("t", make(chan int), false), ErrPublishFailed},
		{"subscribe empty topic", client.Subscribe("", 1, func(string, []byte) error { return nil }), ErrInvalidTopic},
		{"subscribe nil handler", client.Subscribe("t", 1, nil), ErrSubscribeFailed},
		{"subscribe disconnected", client.Subscribe("t", 1, func(string, []byte) error { return nil }), ErrNotConnected},
		{"unsubscribe empty topic", client.Unsubscribe(""), ErrInvalidTopic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("error = %v, want %v", tt.err, tt.want)
			}
		})
	}

	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}
}

func TestClient_QoS(t *testing.T) {
	tests := []struct {
		cfg  int
		want byte
	}{
		{0, 0},
		{2, 2},
		{5, 1},
		{-1, 1},
	}
	for _, tt := range tests {
		c := &Client{cfg: config.MQTTConfig{QoS: tt.cfg}}
		if got := c.QoS(); got != tt.want {
			t.Errorf("QoS() with %d = %d, want %d", tt.cfg, got, tt.want)
		}
	}
}

func TestWrapHandler(t *testing.T) {
	logger := &mockLogger{}
	client := &Client{}
	client.SetLogger(logger)

	client.wrapHandler(func(string, []byte) error {
		return errors.New("bad payload")
	})(nil, fakeMessage{topic: "quickbars/command/notify"})

	client.wrapHandler(func(string, []byte) error {
		panic("boom")
	})(nil, fakeMessage{topic: "quickbars/command/notify"})

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.warns) != 1 {
		t.Errorf("warns = %v, want 1 handler error", logger.warns)
	}
	if len(logger.errors) != 1 {
		t.Errorf("errors = %v, want 1 recovered panic", logger.errors)
	}
}

// fakeToken is a paho token that is either complete or never completes.
type fakeToken struct {
	stalled bool
	err     error
}

func (t fakeToken) Wait() bool                     { return !t.stalled }
func (t fakeToken) WaitTimeout(time.Duration) bool { return !t.stalled }
func (t fakeToken) Error() error                   { return t.err }

func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.stalled {
		close(ch)
	}
	return ch
}

// fakePaho records calls and answers every operation with token.
type fakePaho struct {
	mu           sync.Mutex
	token        fakeToken
	published    []string
	subscribed   []string
	unsubscribed []string
	disconnected bool
}

func (f *fakePaho) IsConnected() bool      { return true }
func (f *fakePaho) IsConnectionOpen() bool { return true }
func (f *fakePaho) Connect() pahomqtt.Token {
	return f.token
}

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	f.disconnected = true
	f.mu.Unlock()
}

func (f *fakePaho) Publish(topic string, _ byte, _ bool, _ any) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, topic)
	return f.token
}

func (f *fakePaho) Subscribe(topic string, _ byte, _ pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, topic)
	return f.token
}

func (f *fakePaho) SubscribeMultiple(map[string]byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return f.token
}

func (f *fakePaho) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, topics...)
	return f.token
}

func (f *fakePaho) AddRoute(string, pahomqtt.MessageHandler) {}

func (f *fakePaho) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

func connectedClient(paho *fakePaho) *Client {
	c := &Client{client: paho, cfg: testConfig(), subscriptions: make(map[string]subscription)}
	c.connected.Store(true)
	return c
}

func TestClient_BrokerFailures(t *testing.T) {
	brokerErr := errors.New("not authorized")
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name  string
		token fakeToken
		call  func(c *Client) error
		want  []error
	}{
		{"publish timeout", fakeToken{stalled: true}, func(c *Client) error {
			return c.Publish("quickbars/result/notify", []byte("{}"), 1, false)
		}, []error{ErrPublishFailed, ErrTimeout}},
		{"publish rejected", fakeToken{err: brokerErr}, func(c *Client) error {
			return c.PublishJSON("quickbars/result/notify", map[string]int{"delivered": 1}, false)
		}, []error{ErrPublishFailed, brokerErr}},
		{"subscribe timeout", fakeToken{stalled: true}, func(c *Client) error {
			return c.Subscribe(Topics{}.AllCommands(), 1, noop)
		}, []error{ErrSubscribeFailed, ErrTimeout}},
		{"subscribe rejected", fakeToken{err: brokerErr}, func(c *Client) error {
			return c.Subscribe(Topics{}.AllCommands(), 1, noop)
		}, []error{ErrSubscribeFailed, brokerErr}},
		{"unsubscribe timeout", fakeToken{stalled: true}, func(c *Client) error {
			return c.Unsubscribe(Topics{}.AllCommands())
		}, []error{ErrUnsubscribeFailed, ErrTimeout}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := connectedClient(&fakePaho{token: tt.token})
			err := tt.call(c)
			for _, want := range tt.want {
				if !errors.Is(err, want) {
					t.Errorf("error = %v, want it to wrap %v", err, want)
				}
			}
			if c.SubscriptionCount() != 0 {
				t.Errorf("SubscriptionCount() = %d after failure, want 0", c.SubscriptionCount())
			}
		})
	}
}

func TestClient_ReconnectRestoresSubscriptions(t *testing.T) {
	paho := &fakePaho{}
	c := connectedClient(paho)

	connects := 0
	c.SetOnConnect(func() { connects++ })

	topic := Topics{}.AllCommands()
	if err := c.Subscribe(topic, 1, func(string, []byte) error { return nil }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	var lost error
	c.SetOnDisconnect(func(err error) { lost = err })
	c.handleDisconnect(errors.New("broker gone"))
	if c.IsConnected() || lost == nil {
		t.Fatalf("after disconnect: connected = %v, hook error = %v", c.IsConnected(), lost)
	}
	if err := c.Publish("t", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() while down error = %v, want ErrNotConnected", err)
	}

	c.handleConnect()

	status := Topics{}.HubStatus()
	paho.mu.Lock()
	defer paho.mu.Unlock()
	if len(paho.subscribed) != 2 || paho.subscribed[1] != topic {
		t.Errorf("subscribed = %v, want %s restored", paho.subscribed, topic)
	}
	if len(paho.published) != 1 || paho.published[0] != status {
		t.Errorf("published = %v, want online status", paho.published)
	}
	if connects != 1 || !c.IsConnected() {
		t.Errorf("connects = %d, connected = %v", connects, c.IsConnected())
	}
}

func TestClient_CloseSendsOfflineStatus(t *testing.T) {
	paho := &fakePaho{}
	c := connectedClient(paho)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	status := Topics{}.HubStatus()
	paho.mu.Lock()
	defer paho.mu.Unlock()
	if len(paho.published) != 1 || paho.published[0] != status {
		t.Errorf("published = %v, want offline status", paho.published)
	}
	if !paho.disconnected {
		t.Error("Disconnect() not called")
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}

func TestSecondsOr(t *testing.T) {
	if got := secondsOr(0, time.Minute); got != time.Minute {
		t.Errorf("secondsOr(0) = %v, want 1m", got)
	}
	if got := secondsOr(3, time.Minute); got != 3*time.Second {
		t.Errorf("secondsOr(3) = %v, want 3s", got)
	}
}
