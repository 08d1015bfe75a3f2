package config

import "strconv"

const redacted = "[REDACTED]"

// Redacted returns the effective configuration as log key-value pairs with
// passwords, tokens and the JWT secret masked.
func (c *Config) Redacted() []any {
	return []any{
		"db_driver", c.Database.Driver,
		"db_dsn", mask(c.Database.DSN),
		"db_host", c.Database.Host,
		"db_port", c.Database.Port,
		"db_name", c.Database.Name,
		"db_user", c.Database.User,
		"db_password", mask(c.Database.Password),
		"db_pool", strconv.Itoa(c.Database.PoolMin) + "-" + strconv.Itoa(c.Database.PoolMax),
		"db_idle_timeout_ms", c.Database.IdleTimeoutMS,
		"broker", c.Broker.Type,
		"topic_prefix", c.Broker.TopicPrefix,
		"mqtt_host", c.MQTT.Broker.Host,
		"mqtt_url", c.MQTT.Broker.URL,
		"mqtt_client_id", c.MQTT.Broker.ClientID,
		"mqtt_user", c.MQTT.Auth.Username,
		"mqtt_password", mask(c.MQTT.Auth.Password),
		"nats_url", c.NATS.URL,
		"api_port", c.API.Port,
		"log_level", c.Logging.Level,
		"log_output", c.Logging.Output,
		"sql_injection", c.Security.SQLInjection,
		"jwt_enabled", c.Security.JWT.Enabled(),
		"jwt_secret_key", mask(c.Security.JWT.SecretKey),
		"influxdb_enabled", c.InfluxDB.Enabled,
		"influxdb_token", mask(c.InfluxDB.Token),
		"queries", len(c.Queries),
	}
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return redacted
}
