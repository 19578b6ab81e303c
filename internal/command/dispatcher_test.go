package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/quickbars-hub/internal/device"
	"github.com/nerrad567/quickbars-hub/internal/events"
)

// fakeChannel records frames written to it.
type fakeChannel struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (f *fakeChannel) Send(_ context.Context, frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeChannel) Close(context.Context) error { return nil }

func (f *fakeChannel) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

// mockRegistry is a fixed set of targets.
type mockRegistry struct {
	targets map[string]device.Target
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{targets: make(map[string]device.Target)}
}

func (m *mockRegistry) add(id string, state device.State, ch device.Channel) {
	m.targets[id] = device.Target{Device: device.Device{ID: id, State: state}, Channel: ch}
}

func (m *mockRegistry) Lookup(id string) (device.Device, device.Channel, error) {
	t, ok := m.targets[id]
	if !ok {
		return device.Device{}, nil, fmt.Errorf("%w: %s", device.ErrUnknownDevice, id)
	}
	return t.Device, t.Channel, nil
}

func (m *mockRegistry) Targets() []device.Target {
	out := make([]device.Target, 0, len(m.targets))
	for _, t := range m.targets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Device.ID < out[j].Device.ID })
	return out
}

type mockEntities map[string][]device.SavedEntity

func (m mockEntities) ListEntities(_ context.Context, id string) ([]device.SavedEntity, error) {
	return m[id], nil
}

type mockMetrics struct {
	mu    sync.Mutex
	calls int
}

func (m *mockMetrics) WriteDispatch(string, string, bool, time.Duration) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
}

func TestDispatcher_SizeAndSizePxProducesNoWrite(t *testing.T) {
	reg := newMockRegistry()
	ch := &fakeChannel{}
	reg.add("tv-1", device.StateActive, ch)
	d := NewDispatcher(reg, "http://hub:8123")

	body := `{"device_id":"tv-1","camera_alias":"door","size":"large","size_px":{"w":640,"h":360}}`
	res, err := d.DispatchJSON(context.Background(), KindCameraToggle, []byte(body))
	if !errors.Is(err, device.ErrMutuallyExclusiveFields) {
		t.Fatalf("DispatchJSON() error = %v, want ErrMutuallyExclusiveFields", err)
	}
	if res != nil {
		t.Errorf("DispatchJSON() result = %+v, want nil", res)
	}
	if ch.writes() != 0 {
		t.Errorf("channel writes = %d, want 0", ch.writes())
	}
}

func TestDispatcher_UnknownDevice(t *testing.T) {
	reg := newMockRegistry()
	ch := &fakeChannel{}
	reg.add("tv-1", device.StateActive, ch)
	d := NewDispatcher(reg, "http://hub:8123")

	cmds := []Command{}
	qt, _ := NewQuickbarToggle("lights")
	ct, _ := NewCameraToggle(CameraToggleRequest{CameraAlias: Some("door")})
	nt, _ := NewNotify(NotifyRequest{Message: "hello"})
	cmds = append(cmds, qt, ct, nt)

	for _, cmd := range cmds {
		t.Run(string(cmd.Kind()), func(t *testing.T) {
			_, err := d.Dispatch(context.Background(), cmd, "tv-404")
			if !errors.Is(err, device.ErrUnknownDevice) {
				t.Errorf("Dispatch() error = %v, want ErrUnknownDevice", err)
			}
		})
	}
	if ch.writes() != 0 {
		t.Errorf("channel writes = %d, want 0", ch.writes())
	}
}

func TestDispatcher_BroadcastReportsPerDevice(t *testing.T) {
	reg := newMockRegistry()
	channels := map[string]*fakeChannel{}
	states := map[string]device.State{
		"tv-1": device.StateActive,
		"tv-2": device.StateConnecting,
		"tv-3": device.StateActive,
		"tv-4": device.StateUnreachable,
		"tv-5": device.StatePaired,
	}
	for id, st := range states {
		channels[id] = &fakeChannel{}
		reg.add(id, st, channels[id])
	}

	bus := events.NewBus()
	sent := bus.Subscribe(events.OfType(events.TypeNotificationSent), 8)
	metrics := &mockMetrics{}

	d := NewDispatcher(reg, "http://hub:8123")
	d.SetPublisher(bus)
	d.SetMetrics(metrics)

	cmd, _ := NewNotify(NotifyRequest{Message: "dinner", Title: Some("Kitchen")})
	res, err := d.Dispatch(context.Background(), cmd, "")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if len(res.Results) != 5 {
		t.Fatalf("results = %d, want 5", len(res.Results))
	}
	if res.Delivered() != 2 {
		t.Errorf("Delivered() = %d, want 2", res.Delivered())
	}
	for _, r := range res.Failed() {
		if !errors.Is(r.Err, device.ErrDeviceUnreachable) {
			t.Errorf("%s error = %v, want ErrDeviceUnreachable", r.DeviceID, r.Err)
		}
		if states[r.DeviceID] == device.StateActive {
			t.Errorf("active device %s reported as failed", r.DeviceID)
		}
	}
	for id, ch := range channels {
		want := 0
		if states[id] == device.StateActive {
			want = 1
		}
		if ch.writes() != want {
			t.Errorf("%s writes = %d, want %d", id, ch.writes(), want)
		}
	}

	if len(sent.C) != 2 {
		t.Errorf("notification_sent events = %d, want 2", len(sent.C))
	}
	e := <-sent.C
	if e.Data["cid"] != res.CID || e.Data["title"] != "Kitchen" {
		t.Errorf("notification_sent data = %v, want cid %s and title", e.Data, res.CID)
	}
	if metrics.calls != 2 {
		t.Errorf("metrics calls = %d, want 2", metrics.calls)
	}
}

func TestDispatcher_TargetedInactiveDevice(t *testing.T) {
	reg := newMockRegistry()
	ch := &fakeChannel{}
	reg.add("tv-1", device.StateConnecting, ch)
	d := NewDispatcher(reg, "http://hub:8123")

	cmd, _ := NewQuickbarToggle("lights")
	res, err := d.Dispatch(context.Background(), cmd, "tv-1")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(res.Results) != 1 || res.Results[0].Delivered {
		t.Fatalf("results = %+v, want one undelivered", res.Results)
	}
	if !errors.Is(res.Results[0].Err, device.ErrDeviceUnreachable) {
		t.Errorf("error = %v, want ErrDeviceUnreachable", res.Results[0].Err)
	}
	if ch.writes() != 0 {
		t.Errorf("writes = %d, want 0 (no queueing)", ch.writes())
	}
}

func TestDispatcher_SendFailureIsIsolated(t *testing.T) {
	reg := newMockRegistry()
	good := &fakeChannel{}
	bad := &fakeChannel{err: errors.New("broken pipe")}
	reg.add("tv-1", device.StateActive, good)
	reg.add("tv-2", device.StateActive, bad)
	d := NewDispatcher(reg, "http://hub:8123")

	cmd, _ := NewQuickbarToggle("lights")
	res, err := d.Dispatch(context.Background(), cmd, "")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if res.Delivered() != 1 || good.writes() != 1 {
		t.Errorf("Delivered() = %d, good writes = %d; want 1 and 1", res.Delivered(), good.writes())
	}
	failed := res.Failed()
	if len(failed) != 1 || failed[0].DeviceID != "tv-2" || !errors.Is(failed[0].Err, device.ErrDeviceUnreachable) {
		t.Errorf("Failed() = %+v, want tv-2 DeviceUnreachable", failed)
	}
}

func TestDispatcher_CameraReferenceCheck(t *testing.T) {
	reg := newMockRegistry()
	withEntities := &fakeChannel{}
	withoutEntities := &fakeChannel{}
	reg.add("tv-1", device.StateActive, withEntities)
	reg.add("tv-2", device.StateActive, withoutEntities)

	d := NewDispatcher(reg, "http://hub:8123")
	d.SetEntityLookup(mockEntities{
		"tv-1": {{DeviceID: "tv-1", EntityID: "camera.garage", Alias: "garage"}},
	})

	door, _ := NewCameraToggle(CameraToggleRequest{CameraAlias: Some("door")})

	// Targeted: rejected outright.
	if _, err := d.Dispatch(context.Background(), door, "tv-1"); !errors.Is(err, device.ErrInvalidConfiguration) {
		t.Errorf("Dispatch(door -> tv-1) error = %v, want ErrInvalidConfiguration", err)
	}
	if withEntities.writes() != 0 {
		t.Error("rejected camera reference was written")
	}

	// Broadcast: reported for tv-1, delivered to tv-2 which has no snapshot.
	res, err := d.Dispatch(context.Background(), door, "")
	if err != nil {
		t.Fatalf("Dispatch() broadcast error = %v", err)
	}
	if res.Delivered() != 1 || withoutEntities.writes() != 1 {
		t.Errorf("Delivered() = %d, want 1 to tv-2", res.Delivered())
	}

	garage, _ := NewCameraToggle(CameraToggleRequest{CameraEntity: Some("camera.garage")})
	if res, err := d.Dispatch(context.Background(), garage, "tv-1"); err != nil || res.Delivered() != 1 {
		t.Errorf("Dispatch(garage -> tv-1) = %+v, %v; want delivered", res, err)
	}
}

func TestDispatcher_NilCommand(t *testing.T) {
	d := NewDispatcher(newMockRegistry(), "http://hub:8123")
	if _, err := d.Dispatch(context.Background(), nil, ""); !errors.Is(err, device.ErrInvalidConfiguration) {
		t.Errorf("Dispatch(nil) error = %v, want ErrInvalidConfiguration", err)
	}
}
