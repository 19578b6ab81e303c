// Package influxdb records QuickBars hub telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health monitoring.
//
// # Measurements
//
//   - dispatch: one point per command per target device, tagged with the
//     command kind and device id, with delivered and elapsed_ms fields
//   - channel_state: one point per device state transition
//   - notification_action: one point per button press on a TV
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	dispatcher.SetMetrics(client)
//	manager.SetMetrics(client)
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are batched according to
// batch_size and flush_interval and errors are delivered to the callback
// set with SetOnError.
package influxdb
