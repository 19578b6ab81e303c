package device

import "errors"

// Error taxonomy shared by the hub's pairing, transport and dispatch layers.
//
//	if errors.Is(err, device.ErrUnknownDevice) {
//	    // respond 404
//	}
var (
	// ErrUnreachable is returned when a TV does not answer a handshake or
	// connect attempt within the bounded timeout.
	ErrUnreachable = errors.New("device: not reachable")

	// ErrInvalidConfiguration is returned for loopback hub URLs, malformed
	// addresses and command fields that fail validation.
	ErrInvalidConfiguration = errors.New("device: invalid configuration")

	// ErrUnknownDevice is returned when a target device is not registered.
	ErrUnknownDevice = errors.New("device: unknown device")

	// ErrDeviceUnreachable is returned when a targeted device's channel is
	// not active at dispatch time.
	ErrDeviceUnreachable = errors.New("device: device unreachable")

	// ErrMutuallyExclusiveFields is returned when more than one arm of an
	// exclusive choice is set (for example size and size_px).
	ErrMutuallyExclusiveFields = errors.New("device: mutually exclusive fields")

	// ErrTransport is returned for mid-session I/O failures on a channel.
	// The channel recovers from these itself by reconnecting.
	ErrTransport = errors.New("device: transport error")
)
