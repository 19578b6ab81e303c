package events

import "time"

// Type names an event as seen by automation consumers.
type Type string

// Event types.
const (
	TypeNotificationAction Type = "quickbars.notification_action"
	TypeNotificationSent   Type = "quickbars.notification_sent"
	TypeDeviceState        Type = "quickbars.device_state"
)

// Event is one message on the bus.
type Event struct {
	Type      Type           `json:"event_type"`
	DeviceID  string         `json:"device_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// ActionEvent is a notification button press on a TV. ActionID is opaque.
type ActionEvent struct {
	DeviceID   string
	ActionID   string
	CID        string
	Label      string
	ReceivedAt time.Time
}

// Event converts the action into its bus form.
func (a ActionEvent) Event() Event {
	return Event{
		Type:      TypeNotificationAction,
		DeviceID:  a.DeviceID,
		Timestamp: a.ReceivedAt,
		Data: map[string]any{
			"device_id": a.DeviceID,
			"action_id": a.ActionID,
			"cid":       a.CID,
			"label":     a.Label,
		},
	}
}

// NotificationSent builds the event published after a notification was
// written to a device.
func NotificationSent(deviceID, cid, title string) Event {
	return Event{
		Type:      TypeNotificationSent,
		DeviceID:  deviceID,
		Timestamp: time.Now(),
		Data: map[string]any{
			"device_id": deviceID,
			"cid":       cid,
			"title":     title,
		},
	}
}

// DeviceState builds the event published when a device's channel state changes.
func DeviceState(deviceID, state string) Event {
	return Event{
		Type:      TypeDeviceState,
		DeviceID:  deviceID,
		Timestamp: time.Now(),
		Data: map[string]any{
			"device_id": deviceID,
			"state":     state,
		},
	}
}
