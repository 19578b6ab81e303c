package pairing

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/quickbars-hub/internal/auth"
	"github.com/nerrad567/quickbars-hub/internal/device"
	"github.com/nerrad567/quickbars-hub/internal/infrastructure/logging"
)

// Defaults applied by NewHandshaker for zero Config fields.
const (
	DefaultPort           = 9123
	DefaultPingTimeout    = 5 * time.Second
	DefaultRequestTimeout = 10 * time.Second
	defaultChallengeTTL   = 120 * time.Second
)

// Logger defines the logging interface used by the Handshaker.
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

// Config describes the hub to the TV.
type Config struct {
	HubID   string
	HubName string

	// HubURL is the base URL the TV will use to reach the hub. It must not
	// be a loopback address.
	HubURL string

	DefaultPort    int
	PingTimeout    time.Duration
	RequestTimeout time.Duration
}

// Result is a completed pairing.
type Result struct {
	Device device.Device
	Token  string
}

type challenge struct {
	sid     string
	expires time.Time
}

// Handshaker runs pairing handshakes. It is safe for concurrent use.
type Handshaker struct {
	cfg    Config
	client *Client
	logger Logger
	now    func() time.Time

	mu         sync.Mutex
	challenges map[string]challenge
}

// NewHandshaker creates a handshaker for cfg.
func NewHandshaker(cfg Config) *Handshaker {
	if cfg.DefaultPort <= 0 {
		cfg.DefaultPort = DefaultPort
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = DefaultPingTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &Handshaker{
		cfg:        cfg,
		client:     NewClient(cfg.RequestTimeout),
		logger:     noopLogger{},
		now:        time.Now,
		challenges: make(map[string]challenge),
	}
}

// SetLogger sets the logger for the handshaker.
func (h *Handshaker) SetLogger(logger Logger) {
	h.logger = logger
}

// BeginPairing asks the TV at address to display a pairing code. The
// returned challenge stays valid for its TTL.
func (h *Handshaker) BeginPairing(ctx context.Context, address string) (*Challenge, error) {
	if err := CheckHubURL(h.cfg.HubURL); err != nil {
		return nil, err
	}
	addr, err := h.normalize(address)
	if err != nil {
		return nil, err
	}
	if err := h.ping(ctx, addr); err != nil {
		return nil, err
	}

	ch, err := h.client.RequestCode(ctx, addr)
	if err != nil {
		return nil, err
	}

	ttl := time.Duration(ch.TTL) * time.Second
	if ttl <= 0 {
		ttl = defaultChallengeTTL
	}
	h.mu.Lock()
	h.challenges[addr] = challenge{sid: ch.SID, expires: h.now().Add(ttl)}
	h.mu.Unlock()

	h.logger.Info("pairing code requested",
		"address", addr,
		"code", logging.Mask(ch.Code),
		"sid", logging.Mask(ch.SID),
		"ttl", ttl,
	)
	return ch, nil
}

// Pair completes pairing with the code shown on the TV at address.
//
// Order of checks: the hub URL (no network), the address, TV reachability,
// then the outstanding challenge. The challenge is consumed only once the
// TV accepted the credential; until then Pair can be retried. On success
// the TV holds a fresh credential and the returned Result carries it for
// persistence.
func (h *Handshaker) Pair(ctx context.Context, address, code string) (*Result, error) {
	if err := CheckHubURL(h.cfg.HubURL); err != nil {
		return nil, err
	}
	addr, err := h.normalize(address)
	if err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: pairing code is required", device.ErrInvalidConfiguration)
	}

	if err := h.ping(ctx, addr); err != nil {
		return nil, err
	}

	sid, err := h.challengeSID(addr)
	if err != nil {
		return nil, err
	}

	confirm, err := h.client.Confirm(ctx, addr, ConfirmRequest{
		Code:    code,
		SID:     sid,
		HubID:   h.cfg.HubID,
		HubName: h.cfg.HubName,
		HubURL:  h.cfg.HubURL,
	})
	if err != nil {
		h.logger.Warn("pairing confirmation failed", "address", addr, "code", logging.Mask(code), "error", err)
		return nil, err
	}

	token, err := auth.GenerateDeviceToken()
	if err != nil {
		return nil, err
	}
	if err := h.client.SetCredentials(ctx, addr, h.cfg.HubURL, token); err != nil {
		return nil, err
	}
	h.clearChallenge(addr, sid)

	host, port, _ := device.ParseAddress(addr, h.cfg.DefaultPort) //nolint:errcheck // normalize produced addr
	if confirm.Port > 0 {
		port = confirm.Port
	}
	dev := device.Device{
		ID:    confirm.ID,
		Name:  confirm.Name,
		Host:  host,
		Port:  port,
		State: device.StatePaired,
	}
	if dev.Name == "" {
		dev.Name = dev.ID
	}

	h.logger.Info("device paired", "device_id", dev.ID, "name", dev.Name, "address", dev.Address(),
		"token", logging.Mask(token))
	return &Result{Device: dev, Token: token}, nil
}

func (h *Handshaker) normalize(address string) (string, error) {
	host, port, err := device.ParseAddress(address, h.cfg.DefaultPort)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

func (h *Handshaker) ping(ctx context.Context, addr string) error {
	pingCtx, cancel := context.WithTimeout(ctx, h.cfg.PingTimeout)
	defer cancel()
	if err := h.client.Ping(pingCtx, addr); err != nil {
		h.logger.Warn("device not reachable", "address", addr, "error", err)
		return err
	}
	return nil
}

// challengeSID returns the sid of the outstanding challenge for addr. The
// challenge stays in place so a failed confirm can be retried with the same
// code until it expires.
func (h *Handshaker) challengeSID(addr string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.challenges[addr]
	if !ok {
		return "", fmt.Errorf("%w: no pairing code was requested for %s", device.ErrInvalidConfiguration, addr)
	}
	if h.now().After(ch.expires) {
		delete(h.challenges, addr)
		return "", fmt.Errorf("%w: pairing code for %s has expired", device.ErrInvalidConfiguration, addr)
	}
	return ch.sid, nil
}

// clearChallenge drops the challenge for addr unless a newer one replaced it.
func (h *Handshaker) clearChallenge(addr, sid string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.challenges[addr]; ok && ch.sid == sid {
		delete(h.challenges, addr)
	}
}

// CheckHubURL rejects hub URLs a TV on the network could not reach:
// unparseable, relative, loopback or unspecified hosts.
func CheckHubURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: hub URL %q is not an absolute http(s) URL", device.ErrInvalidConfiguration, raw)
	}
	host := strings.ToLower(u.Hostname())
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("%w: hub URL %q is a loopback address", device.ErrInvalidConfiguration, raw)
	}
	if ip := net.ParseIP(host); ip != nil && (ip.IsLoopback() || ip.IsUnspecified()) {
		return fmt.Errorf("%w: hub URL %q is a loopback address", device.ErrInvalidConfiguration, raw)
	}
	return nil
}
