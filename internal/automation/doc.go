// Package automation bridges the home-automation layer to the hub over MQTT.
//
// Inbound, automation publishes service calls as JSON on
// quickbars/command/{service}. The Bridge decodes each one, dispatches it
// and publishes the per-device outcome on quickbars/result/{service}.
//
// Outbound, every bus event is published on
// quickbars/event/{device_id}/{event_type}. Device state changes are also
// published retained on quickbars/device/{device_id}/state so a restarted
// consumer sees the current state at once.
//
//	automation ──command──▶ Bridge ──▶ Dispatcher ──▶ TV
//	automation ◀──event──── Bridge ◀── events.Bus ◀── TV
package automation
