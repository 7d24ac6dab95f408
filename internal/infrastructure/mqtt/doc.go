// Package mqtt provides MQTT client connectivity for Sotehus Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Topic subscriptions, restored transparently after reconnect
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// The grid power meter publishes its readings to a single topic; the
// ingest package subscribes through this client and decodes the payloads.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(cfg.MQTT.Topic, 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("received: %s = %s", topic, payload)
//	        return nil
//	    })
package mqtt
