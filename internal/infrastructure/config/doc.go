// Package config provides configuration loading for Sotehus Core.
//
// Configuration is read from a YAML file, merged over hardcoded defaults,
// and finally overridden by SOTEHUS_* environment variables. Secrets
// (MQTT credentials, InfluxDB token, SolarEdge API key) are expected to
// arrive via the environment rather than the file.
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	feed, err := ingest.Connect(cfg.MQTT)
package config
