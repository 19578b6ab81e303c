// Package command builds, validates and dispatches the display commands the
// hub sends to QuickBars TVs.
//
// There are three commands: QuickbarToggle, CameraToggle and Notify. Each is
// constructed from a request through a constructor that validates every
// field, so a Command value that exists is always sendable. Choices between
// fields that exclude each other (camera alias, entity or RTSP URL; preset
// or pixel size; direct or media-source image and sound) are modelled as
// tagged variants rather than parallel nullable fields.
//
// Optional fields use Optional[T] from request decoding to the wire frame.
// The dispatcher never fills defaults: a field the caller left out is left
// out of the frame, and the TV applies its own stored per-entity defaults.
//
// Dispatch resolves the target (one device, or every registered device for
// a broadcast), encodes one frame and writes it to each active channel
// concurrently. Outcomes are reported per device.
package command
