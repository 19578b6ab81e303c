package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementDispatch     = "dispatch"
	MeasurementChannelState = "channel_state"
	MeasurementAction       = "notification_action"
)

// WriteDispatch records the outcome of one command for one device.
func (c *Client) WriteDispatch(kind, deviceID string, delivered bool, elapsed time.Duration) {
	c.writePoint(dispatchPoint(kind, deviceID, delivered, elapsed, time.Now()))
}

// WriteChannelState records a device state transition.
func (c *Client) WriteChannelState(deviceID, state string) {
	c.writePoint(channelStatePoint(deviceID, state, time.Now()))
}

// WriteAction records a notification button press.
func (c *Client) WriteAction(deviceID, actionID string, ts time.Time) {
	c.writePoint(actionPoint(deviceID, actionID, ts))
}

// WritePoint writes a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.writePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func (c *Client) writePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

func dispatchPoint(kind, deviceID string, delivered bool, elapsed time.Duration, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementDispatch,
		map[string]string{"kind": kind, "device_id": deviceID},
		map[string]any{
			"delivered":  delivered,
			"elapsed_ms": float64(elapsed.Microseconds()) / 1000,
		},
		ts,
	)
}

func channelStatePoint(deviceID, state string, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementChannelState,
		map[string]string{"device_id": deviceID},
		map[string]any{"state": state},
		ts,
	)
}

func actionPoint(deviceID, actionID string, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementAction,
		map[string]string{"device_id": deviceID, "action_id": actionID},
		map[string]any{"count": 1},
		ts,
	)
}
