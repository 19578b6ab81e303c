package mqtt

import "errors"

// Errors returned by the client. Failures from the broker are wrapped in
// one of the operation errors; check with errors.Is.
//
//	if errors.Is(err, mqtt.ErrTimeout) {
//	    // the broker did not acknowledge in time; safe to retry
//	}
var (
	// ErrNotConnected is returned while the broker connection is down.
	// The bridge keeps its subscriptions and they are restored on
	// reconnect.
	ErrNotConnected = errors.New("mqtt: not connected to broker")

	// ErrConnectionFailed is returned by Connect when the first connection
	// cannot be made.
	ErrConnectionFailed = errors.New("mqtt: broker connection failed")

	// ErrPublishFailed wraps a rejected or unacknowledged publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed wraps a rejected or unacknowledged subscribe.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed wraps a rejected or unacknowledged unsubscribe.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned for a QoS above 2.
	ErrInvalidQoS = errors.New("mqtt: QoS must be 0, 1 or 2")

	// ErrInvalidTopic is returned for an empty topic.
	ErrInvalidTopic = errors.New("mqtt: empty topic")

	// ErrTimeout is wrapped together with an operation error when the
	// broker does not acknowledge within the operation's deadline.
	ErrTimeout = errors.New("mqtt: broker did not acknowledge in time")
)
