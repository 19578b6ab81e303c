package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every QuickBars hub topic.
const TopicPrefix = "quickbars"

// Topics builds QuickBars hub MQTT topics.
//
//	quickbars/command/{service}              inbound service calls
//	quickbars/result/{service}               dispatch results
//	quickbars/event/{device_id}/{event_type} outbound events
//	quickbars/device/{device_id}/state       retained device state
//	quickbars/hub/status                     retained hub online status (LWT)
type Topics struct{}

// Command returns the topic automation publishes a service call on.
//
// Example: quickbars/command/notify
func (Topics) Command(service string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, service)
}

// Result returns the topic the hub publishes a dispatch result on.
//
// Example: quickbars/result/camera_toggle
func (Topics) Result(service string) string {
	return fmt.Sprintf("%s/result/%s", TopicPrefix, service)
}

// Event returns the topic for an event raised by a device.
//
// Example: quickbars/event/tv-living/quickbars.notification_action
func (Topics) Event(deviceID, eventType string) string {
	return fmt.Sprintf("%s/event/%s/%s", TopicPrefix, deviceID, eventType)
}

// DeviceState returns the retained state topic for a device.
//
// Example: quickbars/device/tv-living/state
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/state", TopicPrefix, deviceID)
}

// HubStatus returns the hub's online status topic.
func (Topics) HubStatus() string {
	return TopicPrefix + "/hub/status"
}

// AllCommands matches every inbound service call.
//
// Pattern: quickbars/command/+
func (Topics) AllCommands() string {
	return TopicPrefix + "/command/+"
}

// AllEvents matches every outbound event.
//
// Pattern: quickbars/event/#
func (Topics) AllEvents() string {
	return TopicPrefix + "/event/#"
}

// ParseCommand extracts the service name from a command topic.
func (Topics) ParseCommand(topic string) (string, bool) {
	service, ok := strings.CutPrefix(topic, TopicPrefix+"/command/")
	if !ok || service == "" || strings.Contains(service, "/") {
		return "", false
	}
	return service, true
}
