package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sclab-io/sclab-sqlserver-connector/internal/query"
)

// QueryEnvPrefix marks environment variables that hold query definitions.
const QueryEnvPrefix = "QUERY_"

// Supported database drivers.
const (
	DriverSQLServer = "sqlserver"
	DriverPostgres  = "postgres"
	DriverMySQL     = "mysql"
	DriverSQLite    = "sqlite3"
)

// Supported broker types.
const (
	BrokerMQTT = "mqtt"
	BrokerNATS = "nats"
	BrokerNone = "none"
)

// Config is the root configuration structure for the connector.
// It is built once at startup and passed to constructors; treat it as read-only.
type Config struct {
	Database  DatabaseConfig    `yaml:"database"`
	Broker    BrokerConfig      `yaml:"broker"`
	MQTT      MQTTConfig        `yaml:"mqtt"`
	NATS      NATSConfig        `yaml:"nats"`
	API       APIConfig         `yaml:"api"`
	WebSocket WebSocketConfig   `yaml:"websocket"`
	InfluxDB  InfluxDBConfig    `yaml:"influxdb"`
	Logging   LoggingConfig     `yaml:"logging"`
	Security  SecurityConfig    `yaml:"security"`
	Queries   map[string]string `yaml:"queries"`
}

// DatabaseConfig contains the SQL connection pool settings.
type DatabaseConfig struct {
	// Driver is one of sqlserver, postgres, mysql or sqlite3.
	Driver string `yaml:"driver"`

	// DSN, when set, is passed to the driver as-is and the discrete
	// connection fields below are ignored.
	DSN string `yaml:"dsn"`

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`

	// Path is the database file for sqlite3.
	Path string `yaml:"path"`

	// Encrypt and TrustServerCertificate apply to SQL Server only.
	Encrypt                bool `yaml:"encrypt"`
	TrustServerCertificate bool `yaml:"trust_server_certificate"`

	PoolMax       int `yaml:"pool_max"`
	PoolMin       int `yaml:"pool_min"`
	IdleTimeoutMS int `yaml:"idle_timeout_ms"`

	// QueryTimeout bounds each query, in seconds.
	QueryTimeout int `yaml:"query_timeout"`
}

// BrokerConfig selects the publish transport for telemetry items.
type BrokerConfig struct {
	// Type is mqtt, nats or none.
	Type string `yaml:"type"`

	// TopicPrefix is prepended to every telemetry topic.
	TopicPrefix string `yaml:"topic_prefix"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Retain    bool                `yaml:"retain"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// MaxPayload caps a published message in bytes; 0 disables the cap.
	MaxPayload int `yaml:"max_payload"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	// URL, when set, overrides Host, Port and TLS (e.g. "ssl://broker:8883").
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// NATSConfig contains NATS connection settings.
type NATSConfig struct {
	URL           string `yaml:"url"`
	Name          string `yaml:"name"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	Token         string `yaml:"token"`
	MaxReconnects int    `yaml:"max_reconnects"`
	ReconnectWait int    `yaml:"reconnect_wait"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

// WebSocketConfig contains settings for the telemetry WebSocket relay.
type WebSocketConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains settings for the InfluxDB telemetry mirror.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	Measurement   string `yaml:"measurement"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path string `yaml:"path"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	// SQLInjection enables the injection screen on API request values.
	SQLInjection bool      `yaml:"sql_injection"`
	JWT          JWTConfig `yaml:"jwt"`
}

// JWTConfig contains RS256 token settings. Authentication is enabled when
// both key paths are set.
type JWTConfig struct {
	SecretKey      string `yaml:"secret_key"`
	PrivateKeyPath string `yaml:"private_key_path"`
	PublicKeyPath  string `yaml:"public_key_path"`

	// TTL is the issued token lifetime in minutes. Zero issues tokens that
	// never expire.
	TTL int `yaml:"ttl"`
}

// Enabled reports whether JWT authentication is configured.
func (j JWTConfig) Enabled() bool {
	return j.PrivateKeyPath != "" && j.PublicKeyPath != ""
}

// LoadDotEnv loads .env.<env>.local into the process environment.
// Variables that are already set are not overridden. A missing file is not
// an error. An empty env falls back to CONNECTOR_ENV, then "development".
func LoadDotEnv(env string) error {
	if env == "" {
		env = os.Getenv("CONNECTOR_ENV")
	}
	if env == "" {
		env = "development"
	}

	path := fmt.Sprintf(".env.%s.local", env)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load builds the configuration and validates it.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for none
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read or parsed, an override is malformed,
//     or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg, os.Environ()); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:                 DriverSQLServer,
			Port:                   1433,
			Encrypt:                true,
			TrustServerCertificate: true,
			PoolMax:                10,
			PoolMin:                0,
			IdleTimeoutMS:          30000,
			QueryTimeout:           30,
		},
		Broker: BrokerConfig{
			Type: BrokerMQTT,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "sclab-sqlserver-connector",
			},
			QoS: 0,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			MaxPayload: 1 << 20,
		},
		NATS: NATSConfig{
			Name:          "sclab-sqlserver-connector",
			MaxReconnects: -1,
			ReconnectWait: 2,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 3000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 60,
				Idle:  60,
			},
			CORS: CORSConfig{
				AllowedOrigins: []string{"*"},
			},
		},
		WebSocket: WebSocketConfig{
			Enabled:        true,
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Measurement:   "telemetry",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Queries: map[string]string{},
	}
}

// envSetter applies one environment variable to the configuration.
type envSetter func(cfg *Config, value string) error

// envOverrides maps environment variable names to their setters.
var envOverrides = map[string]envSetter{
	"PORT": intSetter(func(c *Config) *int { return &c.API.Port }),
	"ORIGIN": func(c *Config, v string) error {
		c.API.CORS.AllowedOrigins = splitList(v)
		return nil
	},
	"CREDENTIALS":          boolSetter(func(c *Config) *bool { return &c.API.CORS.AllowCredentials }),
	"SECRET_KEY":           stringSetter(func(c *Config) *string { return &c.Security.JWT.SecretKey }),
	"JWT_PRIVATE_KEY_PATH": stringSetter(func(c *Config) *string { return &c.Security.JWT.PrivateKeyPath }),
	"JWT_PUBLIC_KEY_PATH":  stringSetter(func(c *Config) *string { return &c.Security.JWT.PublicKeyPath }),
	"LOG_DIR": func(c *Config, v string) error {
		c.Logging.Output = "file"
		c.Logging.File.Path = filepath.Join(v, "connector.log")
		return nil
	},
	"LOG_LEVEL":             stringSetter(func(c *Config) *string { return &c.Logging.Level }),
	"DB_DRIVER":             stringSetter(func(c *Config) *string { return &c.Database.Driver }),
	"DB_DSN":                stringSetter(func(c *Config) *string { return &c.Database.DSN }),
	"MSSQL_SERVER":          stringSetter(func(c *Config) *string { return &c.Database.Host }),
	"MSSQL_PORT":            intSetter(func(c *Config) *int { return &c.Database.Port }),
	"MSSQL_DB_USER":         stringSetter(func(c *Config) *string { return &c.Database.User }),
	"MSSQL_DB_PASSWORD":     stringSetter(func(c *Config) *string { return &c.Database.Password }),
	"MSSQL_DB_NAME":         stringSetter(func(c *Config) *string { return &c.Database.Name }),
	"MSSQL_POOL_MIN":        intSetter(func(c *Config) *int { return &c.Database.PoolMin }),
	"MSSQL_POOL_MAX":        intSetter(func(c *Config) *int { return &c.Database.PoolMax }),
	"MSSQL_IDLE_TIMEOUT_MS": intSetter(func(c *Config) *int { return &c.Database.IdleTimeoutMS }),
	"BROKER_TYPE":           stringSetter(func(c *Config) *string { return &c.Broker.Type }),
	"MQTT_TOPIC":            stringSetter(func(c *Config) *string { return &c.Broker.TopicPrefix }),
	"MQTT_HOST": func(c *Config, v string) error {
		if strings.Contains(v, "://") {
			c.MQTT.Broker.URL = v
			return nil
		}
		c.MQTT.Broker.Host = v
		return nil
	},
	"MQTT_CLIENT_ID": stringSetter(func(c *Config) *string { return &c.MQTT.Broker.ClientID }),
	"MQTT_ID":        stringSetter(func(c *Config) *string { return &c.MQTT.Auth.Username }),
	"MQTT_PASSWORD":  stringSetter(func(c *Config) *string { return &c.MQTT.Auth.Password }),
	"NATS_URL":       stringSetter(func(c *Config) *string { return &c.NATS.URL }),
	"SQL_INJECTION":  boolSetter(func(c *Config) *bool { return &c.Security.SQLInjection }),

	"MQTT_MAX_PAYLOAD": intSetter(func(c *Config) *int { return &c.MQTT.MaxPayload }),

	"INFLUXDB_ENABLED": boolSetter(func(c *Config) *bool { return &c.InfluxDB.Enabled }),
	"INFLUXDB_URL":     stringSetter(func(c *Config) *string { return &c.InfluxDB.URL }),
	"INFLUXDB_TOKEN":   stringSetter(func(c *Config) *string { return &c.InfluxDB.Token }),
	"INFLUXDB_ORG":     stringSetter(func(c *Config) *string { return &c.InfluxDB.Org }),
	"INFLUXDB_BUCKET":  stringSetter(func(c *Config) *string { return &c.InfluxDB.Bucket }),
}

// applyEnvOverrides applies environ (KEY=value pairs) to the configuration.
// Empty values are ignored. Every malformed value is reported.
func applyEnvOverrides(cfg *Config, environ []string) error {
	if cfg.Queries == nil {
		cfg.Queries = map[string]string{}
	}

	var errs []error
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" {
			continue
		}

		if strings.HasPrefix(key, QueryEnvPrefix) {
			cfg.Queries[key] = value
			continue
		}

		set, known := envOverrides[key]
		if !known {
			continue
		}
		if err := set(cfg, value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}

func stringSetter(field func(*Config) *string) envSetter {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func intSetter(field func(*Config) *int) envSetter {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid integer %q", v)
		}
		*field(c) = n
		return nil
	}
}

func boolSetter(field func(*Config) *bool) envSetter {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid boolean %q", v)
		}
		*field(c) = b
		return nil
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration for errors.
// Every problem is reported in a single error.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	switch c.Database.Driver {
	case DriverSQLServer, DriverPostgres, DriverMySQL:
		if c.Database.DSN == "" && c.Database.Host == "" {
			errs = append(errs, "database.host is required (set MSSQL_SERVER or DB_DSN)")
		}
	case DriverSQLite:
		if c.Database.DSN == "" && c.Database.Path == "" {
			errs = append(errs, "database.path is required for sqlite3")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Database.DSN == "" && c.Database.Driver != DriverSQLite && (c.Database.Port < 1 || c.Database.Port > 65535) {
		errs = append(errs, "database.port must be between 1 and 65535")
	}
	if c.Database.PoolMax < 0 || c.Database.PoolMin < 0 {
		errs = append(errs, "database pool sizes must not be negative")
	}
	if c.Database.PoolMax > 0 && c.Database.PoolMin > c.Database.PoolMax {
		errs = append(errs, "database.pool_min must not exceed database.pool_max")
	}
	if c.Database.IdleTimeoutMS < 0 || c.Database.QueryTimeout < 0 {
		errs = append(errs, "database timeouts must not be negative")
	}

	// Broker validation
	switch c.Broker.Type {
	case BrokerMQTT:
		if c.MQTT.Broker.URL == "" && c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required (set MQTT_HOST)")
		}
	case BrokerNATS:
		if c.NATS.URL == "" {
			errs = append(errs, "nats.url is required (set NATS_URL)")
		}
	case BrokerNone:
	default:
		errs = append(errs, fmt.Sprintf("broker.type %q must be mqtt, nats or none", c.Broker.Type))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.MaxPayload < 0 {
		errs = append(errs, "mqtt.max_payload must not be negative")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Logging validation
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, "logging.format must be json or text")
	}
	switch strings.ToLower(c.Logging.Output) {
	case "stdout", "stderr":
	case "file":
		if c.Logging.File.Path == "" {
			errs = append(errs, "logging.file.path is required when logging.output is file")
		}
	default:
		errs = append(errs, "logging.output must be stdout, stderr or file")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
	}

	// Security validation
	jwt := c.Security.JWT
	if (jwt.PrivateKeyPath == "") != (jwt.PublicKeyPath == "") {
		errs = append(errs, "security.jwt private and public key paths must be set together")
	}
	if jwt.Enabled() && jwt.SecretKey == "" {
		errs = append(errs, "security.jwt.secret_key is required when JWT keys are configured (set SECRET_KEY)")
	}
	if jwt.TTL < 0 {
		errs = append(errs, "security.jwt.ttl must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// QueryDefinitions returns the configured query definitions sorted by key.
func (c *Config) QueryDefinitions() []query.Definition {
	keys := make([]string, 0, len(c.Queries))
	for k := range c.Queries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	defs := make([]query.Definition, 0, len(keys))
	for _, k := range keys {
		defs = append(defs, query.Definition{Source: k, Raw: c.Queries[k]})
	}
	return defs
}

// QueryTimeout returns the per-query timeout as a Duration.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Database.QueryTimeout) * time.Second
}

// IdleTimeout returns the pool idle connection timeout as a Duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Database.IdleTimeoutMS) * time.Millisecond
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
