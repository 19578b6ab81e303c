package device

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// State is the lifecycle state of a device's channel as seen by the registry.
type State string

// Device states.
const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StatePaired       State = "paired"
	StateActive       State = "active"
	StateUnreachable  State = "unreachable"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateDisconnected, StateConnecting, StatePaired, StateActive, StateUnreachable:
		return true
	}
	return false
}

// Capabilities describes what the TV application supports.
type Capabilities struct {
	MaxQuickBars int  `json:"max_quickbars"`
	GridLayout   bool `json:"grid_layout"`
}

// Device is a paired QuickBars TV.
type Device struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Host         string       `json:"host"`
	Port         int          `json:"port"`
	State        State        `json:"state"`
	Capabilities Capabilities `json:"capabilities"`
	AppVersion   string       `json:"app_version,omitempty"`
	LastSeen     *time.Time   `json:"last_seen,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Address returns the host:port the hub uses to reach the device.
func (d *Device) Address() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// Clone returns a copy that shares no mutable state with d.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	if d.LastSeen != nil {
		t := *d.LastSeen
		cpy.LastSeen = &t
	}
	return &cpy
}

// Channel is the persistent connection to one device, as the registry and
// dispatcher need it. The transport layer provides the implementation.
type Channel interface {
	// Send writes one frame. It fails with ErrDeviceUnreachable when the
	// channel is not active.
	Send(ctx context.Context, frame []byte) error

	// Close stops reconnecting and closes the connection. It returns once the
	// channel's goroutines have exited or ctx is done.
	Close(ctx context.Context) error
}

// Session is the credentialed relationship between the hub and one device.
type Session struct {
	DeviceID      string
	Token         string
	Channel       Channel
	EstablishedAt time.Time
}

// Record is the persisted form of a paired device.
type Record struct {
	Device Device
	Token  string
}

// SavedEntity maps a home-automation entity to the alias the TV knows it by.
type SavedEntity struct {
	DeviceID     string `json:"device_id"`
	EntityID     string `json:"entity_id"`
	Alias        string `json:"alias,omitempty"`
	FriendlyName string `json:"friendly_name,omitempty"`
}

// ParseAddress splits "host[:port]" and applies defaultPort when no port is given.
func ParseAddress(address string, defaultPort int) (string, int, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", 0, fmt.Errorf("%w: address is required", ErrInvalidConfiguration)
	}

	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		// No port (or a bare IPv6 literal).
		host = strings.Trim(address, "[]")
		return host, defaultPort, nil
	}
	if host == "" {
		return "", 0, fmt.Errorf("%w: address %q has no host", ErrInvalidConfiguration, address)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("%w: address %q has invalid port", ErrInvalidConfiguration, address)
	}
	return host, port, nil
}
