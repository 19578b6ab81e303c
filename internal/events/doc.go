// Package events carries inbound device traffic to the rest of the hub.
//
// The Bus is an explicit in-process publish/subscribe channel. Subscribers
// register a Filter and receive matching events on a buffered Go channel.
// Delivery is fire-and-forget and at-most-once: a subscriber whose buffer is
// full misses the event and its drop counter is incremented.
//
// The Router decodes the frames a TV sends over its channel (action button
// presses, saved-entity snapshots, hello/capabilities) and turns them into
// bus events, registry updates and persisted records.
package events
