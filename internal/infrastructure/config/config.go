package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Zigbee mesh core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Zigbee   ZigbeeConfig   `yaml:"zigbee"`
	Renderer RendererConfig `yaml:"renderer"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// ZigbeeConfig contains settings for the zigbee2mqtt bridge connection.
type ZigbeeConfig struct {
	// BaseTopic is the zigbee2mqtt base topic (default "zigbee2mqtt").
	// All bridge and device topics live under this prefix.
	BaseTopic string `yaml:"base_topic"`

	// QoS is the quality-of-service level for the wildcard subscription.
	QoS int `yaml:"qos"`

	// RefreshTimeout bounds how long GetDevices waits for the bridge to
	// answer the device/group list requests, in seconds.
	RefreshTimeout int `yaml:"refresh_timeout"`

	// NetworkMapTimeout bounds how long RefreshMap waits for the graphviz
	// description, in seconds. Walking a large mesh can take a while, so
	// this is deliberately generous.
	NetworkMapTimeout int `yaml:"networkmap_timeout"`
}

// RendererConfig contains settings for the external graph rendering service.
type RendererConfig struct {
	URL     string `yaml:"url"`
	Engine  string `yaml:"engine"`
	Format  string `yaml:"format"`
	Timeout int    `yaml:"timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for telemetry history.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ZIGBEECORE_SECTION_KEY
// For example: ZIGBEECORE_MQTT_HOST, ZIGBEECORE_INFLUXDB_TOKEN
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "zigbee-mesh-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Zigbee: ZigbeeConfig{
			BaseTopic:         "zigbee2mqtt",
			QoS:               2,
			RefreshTimeout:    10,
			NetworkMapTimeout: 120,
		},
		Renderer: RendererConfig{
			Engine:  "circo",
			Format:  "svg",
			Timeout: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ZIGBEECORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("ZIGBEECORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ZIGBEECORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ZIGBEECORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Zigbee
	if v := os.Getenv("ZIGBEECORE_ZIGBEE_BASE_TOPIC"); v != "" {
		cfg.Zigbee.BaseTopic = v
	}

	// Renderer
	if v := os.Getenv("ZIGBEECORE_RENDERER_URL"); v != "" {
		cfg.Renderer.URL = v
	}

	// InfluxDB
	if v := os.Getenv("ZIGBEECORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Zigbee validation
	if c.Zigbee.BaseTopic == "" {
		errs = append(errs, "zigbee.base_topic is required")
	}
	if strings.ContainsAny(c.Zigbee.BaseTopic, "#+") {
		errs = append(errs, "zigbee.base_topic must not contain MQTT wildcards")
	}
	if c.Zigbee.QoS < 0 || c.Zigbee.QoS > 2 {
		errs = append(errs, "zigbee.qos must be 0, 1, or 2")
	}
	if c.Zigbee.RefreshTimeout < 1 {
		errs = append(errs, "zigbee.refresh_timeout must be at least 1 second")
	}
	if c.Zigbee.NetworkMapTimeout < 1 {
		errs = append(errs, "zigbee.networkmap_timeout must be at least 1 second")
	}

	// Renderer validation (URL optional; network map rendering is disabled without it)
	if c.Renderer.Timeout < 1 {
		errs = append(errs, "renderer.timeout must be at least 1 second")
	}

	// InfluxDB validation (only when enabled)
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetRefreshTimeout returns the device/group list refresh timeout as a Duration.
func (c *Config) GetRefreshTimeout() time.Duration {
	return time.Duration(c.Zigbee.RefreshTimeout) * time.Second
}

// GetNetworkMapTimeout returns the network map await timeout as a Duration.
func (c *Config) GetNetworkMapTimeout() time.Duration {
	return time.Duration(c.Zigbee.NetworkMapTimeout) * time.Second
}

// GetRendererTimeout returns the render request timeout as a Duration.
func (c *Config) GetRendererTimeout() time.Duration {
	return time.Duration(c.Renderer.Timeout) * time.Second
}
