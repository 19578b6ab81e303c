package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/quickbars-hub/internal/infrastructure/config"
)

// ErrScanInProgress is returned when a scan is requested while one runs.
var ErrScanInProgress = errors.New("discovery: scan already in progress")

// Candidate is a TV app seen on the network.
type Candidate struct {
	Instance   string    `json:"instance"`
	DeviceID   string    `json:"device_id,omitempty"`
	Name       string    `json:"name"`
	Host       string    `json:"host"`
	Port       int       `json:"port"`
	Addresses  []string  `json:"addresses,omitempty"`
	AppVersion string    `json:"app_version,omitempty"`
	APIVersion string    `json:"api_version,omitempty"`
	SeenAt     time.Time `json:"seen_at"`
}

// Address returns "host:port" for pairing or dialling.
func (c Candidate) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Candidate) key() string {
	if c.DeviceID != "" {
		return "id:" + c.DeviceID
	}
	return "instance:" + c.Instance
}

// Config holds scanner settings.
type Config struct {
	Service      string
	Domain       string
	ScanInterval time.Duration
	ScanTimeout  time.Duration
	CandidateTTL time.Duration
}

// FromConfig builds a scanner Config from the discovery config section.
func FromConfig(d config.DiscoveryConfig) Config {
	return Config{
		Service:      d.Service,
		Domain:       d.Domain,
		ScanInterval: d.ScanInterval,
		ScanTimeout:  d.ScanTimeout,
		CandidateTTL: d.CandidateTTL,
	}
}

func (c Config) withDefaults() Config {
	if c.Service == "" {
		c.Service = "_quickbars._tcp"
	}
	if c.Domain == "" {
		c.Domain = "local."
	}
	if c.ScanInterval <= 0 {
		c.ScanInterval = time.Minute
	}
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = 5 * time.Second
	}
	if c.CandidateTTL <= 0 {
		c.CandidateTTL = 5 * time.Minute
	}
	return c
}

// Logger defines the logging interface used by the scanner.
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

// Scanner browses for TV apps and caches what it sees.
//
// Thread Safety: all methods are safe for concurrent use. Only one scan
// runs at a time.
type Scanner struct {
	browser  Browser
	cfg      Config
	logger   Logger
	presence func(Candidate)
	now      func() time.Time

	scanning sync.Mutex

	mu         sync.RWMutex
	candidates map[string]Candidate
}

// NewScanner creates a scanner using browser.
func NewScanner(browser Browser, cfg Config) *Scanner {
	return &Scanner{
		browser:    browser,
		cfg:        cfg.withDefaults(),
		logger:     noopLogger{},
		now:        time.Now,
		candidates: make(map[string]Candidate),
	}
}

// SetLogger sets the logger.
func (s *Scanner) SetLogger(logger Logger) {
	s.logger = logger
}

// OnPresence registers a callback invoked for every sighting of a
// candidate carrying a device id. Call before Run.
func (s *Scanner) OnPresence(fn func(Candidate)) {
	s.presence = fn
}

// Scan browses for ScanTimeout and returns the candidates seen during this
// scan, sorted by name.
func (s *Scanner) Scan(ctx context.Context) ([]Candidate, error) {
	if !s.scanning.TryLock() {
		return nil, ErrScanInProgress
	}
	defer s.scanning.Unlock()

	scanCtx, cancel := context.WithTimeout(ctx, s.cfg.ScanTimeout)
	defer cancel()

	seen := make(map[string]Candidate)
	var seenMu sync.Mutex

	err := s.browser.Browse(scanCtx, s.cfg.Service, s.cfg.Domain, func(e Entry) {
		c, ok := candidateFromEntry(e, s.now())
		if !ok {
			return
		}
		seenMu.Lock()
		seen[c.key()] = c
		seenMu.Unlock()
		s.observe(c)
	})
	if err != nil {
		return nil, fmt.Errorf("scanning for %s: %w", s.cfg.Service, err)
	}

	found := make([]Candidate, 0, len(seen))
	for _, c := range seen {
		found = append(found, c)
	}
	sortCandidates(found)
	s.logger.Debug("discovery scan complete", "found", len(found))
	return found, nil
}

// Run scans immediately and then every ScanInterval until ctx is done.
func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		if _, err := s.Scan(ctx); err != nil && !errors.Is(err, ErrScanInProgress) && ctx.Err() == nil {
			s.logger.Warn("discovery scan failed", "error", err)
		}
		s.prune()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Candidates returns the cached candidates seen within CandidateTTL.
func (s *Scanner) Candidates() []Candidate {
	cutoff := s.now().Add(-s.cfg.CandidateTTL)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Candidate, 0, len(s.candidates))
	for _, c := range s.candidates {
		if c.SeenAt.After(cutoff) {
			out = append(out, c)
		}
	}
	sortCandidates(out)
	return out
}

// Lookup returns the live candidate advertising deviceID.
func (s *Scanner) Lookup(deviceID string) (Candidate, bool) {
	s.mu.RLock()
	c, ok := s.candidates["id:"+normalizeID(deviceID)]
	s.mu.RUnlock()
	if !ok || !c.SeenAt.After(s.now().Add(-s.cfg.CandidateTTL)) {
		return Candidate{}, false
	}
	return c, true
}

func (s *Scanner) observe(c Candidate) {
	s.mu.Lock()
	_, known := s.candidates[c.key()]
	s.candidates[c.key()] = c
	s.mu.Unlock()

	if !known {
		s.logger.Info("discovered device", "instance", c.Instance, "device_id", c.DeviceID, "address", c.Address())
	}
	if c.DeviceID != "" && s.presence != nil {
		s.presence(c)
	}
}

// prune drops candidates not seen within CandidateTTL.
func (s *Scanner) prune() {
	cutoff := s.now().Add(-s.cfg.CandidateTTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, c := range s.candidates {
		if !c.SeenAt.After(cutoff) {
			delete(s.candidates, k)
			s.logger.Debug("discovery candidate expired", "instance", c.Instance)
		}
	}
}

// candidateFromEntry builds a candidate, preferring an IPv4 address over
// the advertised host name.
func candidateFromEntry(e Entry, now time.Time) (Candidate, bool) {
	if e.Port <= 0 {
		return Candidate{}, false
	}
	props := parseTXT(e.Text)

	c := Candidate{
		Instance:   e.Instance,
		DeviceID:   normalizeID(props["id"]),
		Name:       props["name"],
		Port:       e.Port,
		AppVersion: props["app_version"],
		APIVersion: props["api"],
		SeenAt:     now,
	}
	if c.Name == "" {
		c.Name = e.Instance
	}

	for _, ip := range e.Addrs {
		if ip == nil {
			continue
		}
		c.Addresses = append(c.Addresses, ip.String())
		if c.Host == "" && ip.To4() != nil {
			c.Host = ip.String()
		}
	}
	if c.Host == "" && len(c.Addresses) > 0 {
		c.Host = c.Addresses[0]
	}
	if c.Host == "" {
		c.Host = strings.TrimSuffix(e.HostName, ".")
	}
	if c.Host == "" {
		return Candidate{}, false
	}
	return c, true
}

// parseTXT splits key=value TXT strings. Keys are case-insensitive.
func parseTXT(txt []string) map[string]string {
	props := make(map[string]string, len(txt))
	for _, kv := range txt {
		k, v, _ := strings.Cut(kv, "=")
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		props[k] = strings.TrimSpace(v)
	}
	return props
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func sortCandidates(cs []Candidate) {
	slices.SortFunc(cs, func(a, b Candidate) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.Instance, b.Instance)
	})
}
