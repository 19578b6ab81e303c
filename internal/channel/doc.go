// Package channel maintains the persistent WebSocket connection from the
// hub to one QuickBars TV.
//
// Each Channel runs its own goroutines: a connection loop that dials with
// exponential backoff, a read loop, and a keep-alive loop that pings the TV
// every heartbeat interval. The state machine is
//
//	Disconnected -> Connecting -> Connected -> Active
//
// A channel becomes Active on the first pong after connecting. Any transport
// error, or missing too many consecutive pongs, drops it back to Connecting
// and starts the reconnect loop. Disconnected is only re-entered by Close.
//
// Outbound frames are only accepted while Active. At any other time Send
// fails immediately with device.ErrDeviceUnreachable; nothing is queued.
package channel
