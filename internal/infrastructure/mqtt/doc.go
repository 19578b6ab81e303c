// Package mqtt provides the hub's MQTT client for the automation bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and a size limit
//   - Wildcard subscriptions that survive reconnects
//   - A Last Will on quickbars/hub/status for offline detection
//
// Automation publishes service calls on quickbars/command/{service}; the
// hub publishes dispatch results and TV events back. See Topics for the
// full hierarchy.
//
// # Security Considerations
//
//   - Enable TLS (broker.tls) when the broker is not on the same host
//   - Credentials are checked against the broker ACL
//   - Payloads are not encrypted beyond the transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        service, _ := mqtt.Topics{}.ParseCommand(topic)
//	        return handle(service, payload)
//	    })
package mqtt
