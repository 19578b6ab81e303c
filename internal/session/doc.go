// Package session ties pairing, the device registry and transport channels
// together.
//
// The Manager owns the lifecycle of every device session: it completes
// pairing handshakes, opens and registers a channel per device, restores
// persisted devices at startup, mirrors channel state into the registry
// and onto the event bus, and applies discovery presence updates.
package session
