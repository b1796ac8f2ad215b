// Package config handles loading and validating UWB bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (UWBBRIDGE_*)
//   - Validation of required fields, collecting every problem
//   - Default value handling, including a generated client id
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Durations are YAML strings parsed with time.ParseDuration ("1s", "500ms").
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Broker.Host)
package config
