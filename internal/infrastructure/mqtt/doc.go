// Package mqtt provides MQTT client connectivity for the Zigbee mesh core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Builders for the zigbee2mqtt topic hierarchy
//
// # Architecture
//
// The zigbee2mqtt bridge process exposes the mesh over MQTT; this core
// subscribes to the full hierarchy under the configured base topic and
// publishes commands back to the bridge's config topics.
//
//	Zigbee mesh ↔ zigbee2mqtt bridge ↔ MQTT Broker ↔ this core
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{Base: cfg.Zigbee.BaseTopic}
//	err = client.Subscribe(topics.Wildcard(), byte(cfg.Zigbee.QoS),
//	    func(topic string, payload []byte) error {
//	        // route message
//	        return nil
//	    })
//
// # Security Considerations
//
//   - TLS is recommended for production deployments (cfg.Broker.TLS=true)
//   - Anonymous access is only for local development
//   - Message payloads are externally controlled and must be parsed defensively
package mqtt
