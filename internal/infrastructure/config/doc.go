// Package config handles loading and validating connector configuration.
//
// This package manages:
//   - Loading configuration from an optional YAML file
//   - Loading a .env.<environment>.local file into the process environment
//   - Overriding with environment variables (PORT, MSSQL_*, MQTT_*, QUERY_* ...)
//   - Validation of required fields
//   - Default value handling
//
// Query definitions come from the YAML queries map and from every
// environment variable whose name starts with QUERY_. The environment wins
// when both define the same key.
//
// Security Considerations:
//   - Passwords and keys should be set via environment variables
//   - Redacted() masks secrets before the configuration is logged
//
// Usage:
//
//	if err := config.LoadDotEnv(""); err != nil {
//	    return err
//	}
//	cfg, err := config.Load(os.Getenv("CONNECTOR_CONFIG"))
//	if err != nil {
//	    return err
//	}
//	registry, errs := query.ParseAll(cfg.QueryDefinitions())
package config
