package discovery

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

// mockBrowser reports a fixed set of entries per Browse call.
type mockBrowser struct {
	mu      sync.Mutex
	entries []Entry
	err     error
	calls   int
	block   chan struct{}
}

func (m *mockBrowser) Browse(ctx context.Context, service, domain string, found func(Entry)) error {
	m.mu.Lock()
	m.calls++
	entries := append([]Entry(nil), m.entries...)
	err := m.err
	block := m.block
	m.mu.Unlock()

	if err != nil {
		return err
	}
	for _, e := range entries {
		found(e)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
		}
	}
	return nil
}

func (m *mockBrowser) set(entries ...Entry) {
	m.mu.Lock()
	m.entries = entries
	m.mu.Unlock()
}

func (m *mockBrowser) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func livingRoomEntry() Entry {
	return Entry{
		Instance: "QuickBars Living Room",
		HostName: "android-tv.local.",
		Port:     9123,
		Text:     []string{"id=TV-ABC", "name=Living Room", "api=1", "app_version=1.4.2"},
		Addrs:    []net.IP{net.ParseIP("fe80::1"), net.ParseIP("192.168.1.50")},
	}
}

func newTestScanner(b Browser) (*Scanner, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewScanner(b, Config{ScanTimeout: 50 * time.Millisecond, CandidateTTL: time.Minute})
	s.now = func() time.Time { return now }
	return s, &now
}

func TestScanner_Scan(t *testing.T) {
	b := &mockBrowser{}
	b.set(livingRoomEntry(), Entry{Instance: "no port", HostName: "x.local.", Port: 0})
	s, _ := newTestScanner(b)

	found, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("Scan() found %d candidates, want 1", len(found))
	}

	c := found[0]
	if c.DeviceID != "tv-abc" {
		t.Errorf("DeviceID = %q, want lowercased tv-abc", c.DeviceID)
	}
	if c.Name != "Living Room" || c.APIVersion != "1" || c.AppVersion != "1.4.2" {
		t.Errorf("candidate = %+v", c)
	}
	if c.Host != "192.168.1.50" {
		t.Errorf("Host = %q, want IPv4 address preferred", c.Host)
	}
	if c.Address() != "192.168.1.50:9123" {
		t.Errorf("Address() = %q", c.Address())
	}
	if len(c.Addresses) != 2 {
		t.Errorf("Addresses = %v, want both", c.Addresses)
	}
}

func TestScanner_ScanError(t *testing.T) {
	b := &mockBrowser{err: errors.New("no multicast interface")}
	s, _ := newTestScanner(b)

	if _, err := s.Scan(context.Background()); err == nil {
		t.Fatal("Scan() error = nil, want error")
	}
}

func TestScanner_ConcurrentScanRejected(t *testing.T) {
	b := &mockBrowser{block: make(chan struct{})}
	s, _ := newTestScanner(b)
	s.cfg.ScanTimeout = 2 * time.Second

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Scan(context.Background()) //nolint:errcheck // First scan holds the lock
	}()

	deadline := time.Now().Add(time.Second)
	for b.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if _, err := s.Scan(context.Background()); !errors.Is(err, ErrScanInProgress) {
		t.Errorf("second Scan() error = %v, want ErrScanInProgress", err)
	}
	close(b.block)
	<-done
}

func TestScanner_CandidatesExpire(t *testing.T) {
	b := &mockBrowser{}
	b.set(livingRoomEntry())
	s, now := newTestScanner(b)

	if _, err := s.Scan(context.Background()); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if got := len(s.Candidates()); got != 1 {
		t.Fatalf("Candidates() = %d, want 1", got)
	}
	if _, ok := s.Lookup("TV-ABC"); !ok {
		t.Error("Lookup(TV-ABC) = false, want true")
	}

	*now = now.Add(2 * time.Minute)
	if got := len(s.Candidates()); got != 0 {
		t.Errorf("Candidates() after TTL = %d, want 0", got)
	}
	if _, ok := s.Lookup("tv-abc"); ok {
		t.Error("Lookup() after TTL = true, want false")
	}

	s.prune()
	s.mu.RLock()
	cached := len(s.candidates)
	s.mu.RUnlock()
	if cached != 0 {
		t.Errorf("cache after prune = %d, want 0", cached)
	}
}

func TestScanner_Presence(t *testing.T) {
	b := &mockBrowser{}
	anonymous := Entry{Instance: "Bedroom", Port: 9123, Addrs: []net.IP{net.ParseIP("192.168.1.51")}}
	b.set(livingRoomEntry(), anonymous)
	s, _ := newTestScanner(b)

	var seen []Candidate
	s.OnPresence(func(c Candidate) { seen = append(seen, c) })

	if _, err := s.Scan(context.Background()); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(seen) != 1 || seen[0].DeviceID != "tv-abc" {
		t.Errorf("presence = %+v, want only the candidate carrying an id", seen)
	}
	// Both are still listed as candidates.
	if got := len(s.Candidates()); got != 2 {
		t.Errorf("Candidates() = %d, want 2", got)
	}
}

func TestScanner_RunScansUntilCancelled(t *testing.T) {
	b := &mockBrowser{}
	s := NewScanner(b, Config{ScanInterval: 10 * time.Millisecond, ScanTimeout: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for b.callCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if b.callCount() < 2 {
		t.Errorf("Browse calls = %d, want at least 2", b.callCount())
	}
}

func TestCandidateFromEntry(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name     string
		entry    Entry
		wantOK   bool
		wantHost string
		wantName string
	}{
		{
			name:     "host name fallback",
			entry:    Entry{Instance: "TV", HostName: "tv.local.", Port: 9123},
			wantOK:   true,
			wantHost: "tv.local",
			wantName: "TV",
		},
		{
			name:     "IPv6 only",
			entry:    Entry{Instance: "TV", Port: 9123, Addrs: []net.IP{net.ParseIP("fe80::2")}},
			wantOK:   true,
			wantHost: "fe80::2",
			wantName: "TV",
		},
		{
			name:   "no address",
			entry:  Entry{Instance: "TV", Port: 9123},
			wantOK: false,
		},
		{
			name:     "TXT keys case-insensitive",
			entry:    Entry{Instance: "TV", HostName: "tv.local.", Port: 1, Text: []string{"Name = Den ", "junk"}},
			wantOK:   true,
			wantHost: "tv.local",
			wantName: "Den",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := candidateFromEntry(tt.entry, now)
			if ok != tt.wantOK {
				t.Fatalf("candidateFromEntry() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if c.Host != tt.wantHost || c.Name != tt.wantName {
				t.Errorf("candidate = %+v, want host %q name %q", c, tt.wantHost, tt.wantName)
			}
		})
	}
}
