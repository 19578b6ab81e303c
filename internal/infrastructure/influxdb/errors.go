package influxdb

import "errors"

// Telemetry errors. Telemetry is best effort: the hub logs these and keeps
// dispatching.
//
//	client.SetOnError(func(err error) {
//	    if errors.Is(err, influxdb.ErrWriteFailed) {
//	        log.Warn("telemetry point dropped", "error", err)
//	    }
//	})
var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed is returned by Connect when the server does not
	// answer the initial ping or reports itself unhealthy.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrWriteFailed wraps a batch the server rejected. Batches are written
	// in the background, so it only reaches the SetOnError callback.
	ErrWriteFailed = errors.New("influxdb: write failed")
)
