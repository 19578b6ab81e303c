package channel

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/quickbars-hub/internal/device"
)

const testToken = "tv-token"

// fakeTV is a WebSocket endpoint that checks the bearer token and hands
// each accepted connection to handle.
type fakeTV struct {
	srv      *httptest.Server
	accepted atomic.Int32
	rejected atomic.Int32
}

func newFakeTV(t *testing.T, handle func(n int, conn *websocket.Conn)) *fakeTV {
	t.Helper()
	tv := &fakeTV{}
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			tv.rejected.Add(1)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(int(tv.accepted.Add(1)), conn)
	})
	tv.srv = httptest.NewServer(mux)
	t.Cleanup(tv.srv.Close)
	return tv
}

func (tv *fakeTV) addr() string {
	return strings.TrimPrefix(tv.srv.URL, "http://")
}

// readUntilClosed keeps reading so control frames get answered.
func readUntilClosed(conn *websocket.Conn, frames chan<- string) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if frames != nil {
			frames <- string(data)
		}
	}
}

func testConfig() Config {
	return Config{
		HeartbeatInterval: 50 * time.Millisecond,
		MissedHeartbeats:  3,
		DialTimeout:       time.Second,
		WriteTimeout:      time.Second,
		InitialBackoff:    20 * time.Millisecond,
		MaxBackoff:        50 * time.Millisecond,
		UnreachableAfter:  3,
	}
}

func startChannel(t *testing.T, addr, token string, cfg Config, hooks Hooks) *Channel {
	t.Helper()
	ch := New("tv-1", addr, token, cfg, hooks)
	ch.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = ch.Close(ctx) //nolint:errcheck // Test cleanup
	})
	return ch
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestChannel_BecomesActiveAndSends(t *testing.T) {
	frames := make(chan string, 4)
	tv := newFakeTV(t, func(_ int, conn *websocket.Conn) {
		readUntilClosed(conn, frames)
	})

	ch := startChannel(t, tv.addr(), testToken, testConfig(), Hooks{})
	waitFor(t, "active", func() bool { return ch.State() == StateActive })

	if err := ch.Send(context.Background(), []byte(`{"type":"command"}`)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	select {
	case got := <-frames:
		if got != `{"type":"command"}` {
			t.Errorf("TV received %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("TV did not receive frame")
	}

	stats := ch.Stats()
	if stats.Connects != 1 || stats.FramesOut != 1 {
		t.Errorf("Stats() = %+v, want 1 connect and 1 frame out", stats)
	}
	if stats.LastPong.IsZero() {
		t.Error("Stats().LastPong is zero after becoming active")
	}
}

func TestChannel_RejectedToken(t *testing.T) {
	tv := newFakeTV(t, func(_ int, conn *websocket.Conn) {
		readUntilClosed(conn, nil)
	})

	ch := startChannel(t, tv.addr(), "wrong", testConfig(), Hooks{})
	waitFor(t, "rejected dial", func() bool { return tv.rejected.Load() > 0 })

	if ch.State() == StateActive {
		t.Error("channel active with rejected token")
	}
	if tv.accepted.Load() != 0 {
		t.Errorf("accepted = %d, want 0", tv.accepted.Load())
	}
}

func TestChannel_DeliversInboundFrames(t *testing.T) {
	tv := newFakeTV(t, func(_ int, conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"action","action_id":"open"}`)) //nolint:errcheck // Test server
		readUntilClosed(conn, nil)
	})

	got := make(chan string, 1)
	startChannel(t, tv.addr(), testToken, testConfig(), Hooks{
		OnFrame: func(deviceID string, data []byte) {
			if deviceID == "tv-1" {
				got <- string(data)
			}
		},
	})

	select {
	case frame := <-got:
		if !strings.Contains(frame, `"open"`) {
			t.Errorf("OnFrame got %q", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnFrame not called")
	}
}

func TestChannel_ReconnectsAfterDrop(t *testing.T) {
	frames := make(chan string, 4)
	tv := newFakeTV(t, func(n int, conn *websocket.Conn) {
		if n == 1 {
			// Answer pings for a while, then drop.
			_ = conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond)) //nolint:errcheck // Test server
			readUntilClosed(conn, nil)
			return
		}
		readUntilClosed(conn, frames)
	})

	var mu sync.Mutex
	var states []State
	ch := startChannel(t, tv.addr(), testToken, testConfig(), Hooks{
		OnState: func(_ string, s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	})

	waitFor(t, "second connection active", func() bool {
		return tv.accepted.Load() >= 2 && ch.State() == StateActive
	})

	if err := ch.Send(context.Background(), []byte("after")); err != nil {
		t.Fatalf("Send() after reconnect error = %v", err)
	}
	select {
	case got := <-frames:
		if got != "after" {
			t.Errorf("TV received %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("TV did not receive frame after reconnect")
	}

	if s := ch.Stats(); s.Reconnects < 1 {
		t.Errorf("Stats().Reconnects = %d, want >= 1", s.Reconnects)
	}

	mu.Lock()
	defer mu.Unlock()
	actives := 0
	for _, s := range states {
		if s == StateActive {
			actives++
		}
	}
	if actives < 2 {
		t.Errorf("state transitions = %v, want active twice", states)
	}
}

func TestChannel_SendRequiresActive(t *testing.T) {
	ch := New("tv-1", "127.0.0.1:1", testToken, testConfig(), Hooks{})

	err := ch.Send(context.Background(), []byte("x"))
	if !errors.Is(err, device.ErrDeviceUnreachable) {
		t.Fatalf("Send() error = %v, want ErrDeviceUnreachable", err)
	}
}

func TestChannel_MissedHeartbeatsDropConnection(t *testing.T) {
	release := make(chan struct{})
	tv := newFakeTV(t, func(_ int, conn *websocket.Conn) {
		// Never reads, so pings are never answered.
		<-release
	})
	t.Cleanup(func() { close(release) })

	cfg := testConfig()
	cfg.HeartbeatInterval = 30 * time.Millisecond
	cfg.MissedHeartbeats = 2

	var active atomic.Bool
	ch := startChannel(t, tv.addr(), testToken, cfg, Hooks{
		OnState: func(_ string, s State) {
			if s == StateActive {
				active.Store(true)
			}
		},
	})

	waitFor(t, "redial after missed heartbeats", func() bool { return tv.accepted.Load() >= 2 })

	if active.Load() {
		t.Error("channel became active without any pong")
	}
	if err := ch.Send(context.Background(), []byte("x")); !errors.Is(err, device.ErrDeviceUnreachable) {
		t.Errorf("Send() error = %v, want ErrDeviceUnreachable", err)
	}
}

func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestChannel_UnreachableAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	var attempts atomic.Int32
	ch := startChannel(t, closedAddr(t), testToken, testConfig(), Hooks{
		OnUnreachable: func(_ string, n int) {
			calls.Add(1)
			attempts.Store(int32(n))
		},
	})

	waitFor(t, "unreachable hook", func() bool { return calls.Load() > 0 })
	if attempts.Load() != 3 {
		t.Errorf("OnUnreachable attempts = %d, want 3", attempts.Load())
	}

	// Dialling continues, but the hook fires once per outage.
	waitFor(t, "further dial attempts", func() bool { return ch.Stats().DialFailures >= 6 })
	if calls.Load() != 1 {
		t.Errorf("OnUnreachable calls = %d, want 1", calls.Load())
	}
}

func TestChannel_SetAddressRedialsImmediately(t *testing.T) {
	tv := newFakeTV(t, func(_ int, conn *websocket.Conn) {
		readUntilClosed(conn, nil)
	})

	cfg := testConfig()
	cfg.InitialBackoff = time.Minute
	cfg.MaxBackoff = time.Minute

	ch := startChannel(t, closedAddr(t), testToken, cfg, Hooks{})
	waitFor(t, "first dial failure", func() bool { return ch.Stats().DialFailures >= 1 })

	ch.SetAddress(tv.addr())
	waitFor(t, "active at new address", func() bool { return ch.State() == StateActive })

	if ch.Address() != tv.addr() {
		t.Errorf("Address() = %q, want %q", ch.Address(), tv.addr())
	}
}

func TestChannel_CloseIsBounded(t *testing.T) {
	tv := newFakeTV(t, func(_ int, conn *websocket.Conn) {
		readUntilClosed(conn, nil)
	})

	ch := New("tv-1", tv.addr(), testToken, testConfig(), Hooks{})
	ch.Start()
	waitFor(t, "active", func() bool { return ch.State() == StateActive })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	start := time.Now()
	if err := ch.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Close() took %v", elapsed)
	}
	if ch.State() != StateDisconnected {
		t.Errorf("State() after Close = %v, want disconnected", ch.State())
	}
	if err := ch.Send(context.Background(), []byte("x")); !errors.Is(err, device.ErrDeviceUnreachable) {
		t.Errorf("Send() after Close error = %v, want ErrDeviceUnreachable", err)
	}
}

func TestChannel_StartAfterCloseDoesNotDial(t *testing.T) {
	tv := newFakeTV(t, func(_ int, conn *websocket.Conn) {
		readUntilClosed(conn, nil)
	})

	ch := New("tv-1", tv.addr(), testToken, testConfig(), Hooks{})
	if err := ch.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	ch.Start()

	time.Sleep(100 * time.Millisecond)
	if n := tv.accepted.Load(); n != 0 {
		t.Errorf("accepted = %d, want 0", n)
	}
	if ch.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", ch.State())
	}
}

func TestChannel_ConcurrentStartAndClose(t *testing.T) {
	tv := newFakeTV(t, func(_ int, conn *websocket.Conn) {
		readUntilClosed(conn, nil)
	})

	for i := 0; i < 50; i++ {
		ch := New("tv-1", tv.addr(), testToken, testConfig(), Hooks{})
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			ch.Start()
		}()
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := ch.Close(ctx); err != nil {
				t.Errorf("Close() error = %v", err)
			}
		}()
		wg.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := ch.Close(ctx); err != nil {
			t.Errorf("second Close() error = %v", err)
		}
		cancel()
	}
}

func TestNextBackoff(t *testing.T) {
	tests := []struct {
		name string
		in   time.Duration
		max  time.Duration
		want time.Duration
	}{
		{"grows by half", 2 * time.Second, time.Minute, 3 * time.Second},
		{"grows again", 3 * time.Second, time.Minute, 4500 * time.Millisecond},
		{"capped", 100 * time.Second, 2 * time.Minute, 2 * time.Minute},
		{"at cap", 2 * time.Minute, 2 * time.Minute, 2 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextBackoff(tt.in, tt.max); got != tt.want {
				t.Errorf("nextBackoff(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.Path != "/api/ws" || cfg.HeartbeatInterval != 10*time.Second || cfg.MissedHeartbeats != 3 {
		t.Errorf("withDefaults() = %+v", cfg)
	}
	if cfg.MaxBackoff != 2*time.Minute || cfg.UnreachableAfter != 5 {
		t.Errorf("withDefaults() backoff = %v/%d", cfg.MaxBackoff, cfg.UnreachableAfter)
	}
}

func TestStateDeviceState(t *testing.T) {
	tests := []struct {
		in   State
		want device.State
	}{
		{StateDisconnected, device.StateDisconnected},
		{StateConnecting, device.StateConnecting},
		{StateConnected, device.StatePaired},
		{StateActive, device.StateActive},
	}
	for _, tt := range tests {
		if got := tt.in.DeviceState(); got != tt.want {
			t.Errorf("%v.DeviceState() = %v, want %v", tt.in, got, tt.want)
		}
	}
}
