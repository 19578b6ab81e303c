package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the QuickBars hub.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Hub       HubConfig       `yaml:"hub"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Transport TransportConfig `yaml:"transport"`
	Pairing   PairingConfig   `yaml:"pairing"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// HubConfig identifies this hub to paired TV devices.
type HubConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// BaseURL is the address TV devices use to reach the hub and its media.
	// It must not be a loopback address.
	BaseURL string `yaml:"base_url"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains settings for the event stream served to API clients.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// TransportConfig controls the persistent channel the hub keeps open to each TV.
type TransportConfig struct {
	// Path is the WebSocket endpoint on the TV application.
	Path string `yaml:"path"`

	// HeartbeatInterval is how often a ping is sent on an open channel.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// MissedHeartbeats is the number of consecutive unanswered pings
	// after which the channel is considered lost.
	MissedHeartbeats int `yaml:"missed_heartbeats"`

	DialTimeout  time.Duration `yaml:"dial_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// InitialBackoff and MaxBackoff bound the exponential reconnect delay.
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`

	// UnreachableAfter is the number of failed reconnect attempts after which
	// the device is reported unreachable. Retrying continues regardless.
	UnreachableAfter int `yaml:"unreachable_after"`

	// CloseGrace bounds how long removing a device may wait for its channel to close.
	CloseGrace time.Duration `yaml:"close_grace"`

	MaxMessageSize int64 `yaml:"max_message_size"`
}

// PairingConfig contains settings for the HTTP pairing handshake.
type PairingConfig struct {
	DefaultPort    int           `yaml:"default_port"`
	PingTimeout    time.Duration `yaml:"ping_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DiscoveryConfig contains zeroconf discovery settings.
type DiscoveryConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Service      string        `yaml:"service"`
	Domain       string        `yaml:"domain"`
	ScanInterval time.Duration `yaml:"scan_interval"`
	ScanTimeout  time.Duration `yaml:"scan_timeout"`
	CandidateTTL time.Duration `yaml:"candidate_ttl"`
}

// DispatchConfig contains command dispatch settings.
type DispatchConfig struct {
	// Timeout bounds a single wire write to one device.
	Timeout time.Duration `yaml:"timeout"`

	// InlineIcons embeds notification icons as SVG data URIs next to icon_url.
	InlineIcons bool `yaml:"inline_icons"`

	// IconTimeout bounds one icon download.
	IconTimeout time.Duration `yaml:"icon_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
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

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: QUICKBARS_SECTION_KEY
// For example: QUICKBARS_DATABASE_PATH, QUICKBARS_HUB_BASE_URL
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Hub: HubConfig{
			ID:   "quickbars-hub",
			Name: "QuickBars Hub",
		},
		Database: DatabaseConfig{
			Path:        "./data/quickbars.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "quickbars-hub",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8088,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Transport: TransportConfig{
			Path:              "/api/ws",
			HeartbeatInterval: 10 * time.Second,
			MissedHeartbeats:  3,
			DialTimeout:       5 * time.Second,
			WriteTimeout:      5 * time.Second,
			InitialBackoff:    2 * time.Second,
			MaxBackoff:        2 * time.Minute,
			UnreachableAfter:  5,
			CloseGrace:        2 * time.Second,
			MaxMessageSize:    1 << 20,
		},
		Pairing: PairingConfig{
			DefaultPort:    9123,
			PingTimeout:    5 * time.Second,
			RequestTimeout: 10 * time.Second,
		},
		Discovery: DiscoveryConfig{
			Enabled:      true,
			Service:      "_quickbars._tcp",
			Domain:       "local.",
			ScanInterval: time.Minute,
			ScanTimeout:  5 * time.Second,
			CandidateTTL: 5 * time.Minute,
		},
		Dispatch: DispatchConfig{
			Timeout:     5 * time.Second,
			InlineIcons: true,
			IconTimeout: 8 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60 * 24 * 365,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QUICKBARS_HUB_BASE_URL"); v != "" {
		cfg.Hub.BaseURL = v
	}

	if v := os.Getenv("QUICKBARS_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("QUICKBARS_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("QUICKBARS_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("QUICKBARS_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("QUICKBARS_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("QUICKBARS_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Always override in production.
	if v := os.Getenv("QUICKBARS_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Hub.ID == "" {
		errs = append(errs, "hub.id is required")
	}
	if c.Hub.BaseURL == "" {
		errs = append(errs, "hub.base_url is required (set QUICKBARS_HUB_BASE_URL environment variable)")
	} else if u, err := url.Parse(c.Hub.BaseURL); err != nil || u.Host == "" {
		errs = append(errs, "hub.base_url must be an absolute URL")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	errs = append(errs, c.Transport.validate()...)

	if c.Pairing.DefaultPort < 1 || c.Pairing.DefaultPort > 65535 {
		errs = append(errs, "pairing.default_port must be between 1 and 65535")
	}
	if c.Pairing.PingTimeout <= 0 {
		errs = append(errs, "pairing.ping_timeout must be positive")
	}

	if c.Discovery.Enabled && c.Discovery.Service == "" {
		errs = append(errs, "discovery.service is required when discovery is enabled")
	}

	// Tokens minted with a weak secret can be forged by anyone on the LAN.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set QUICKBARS_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (t TransportConfig) validate() []string {
	var errs []string
	if t.HeartbeatInterval <= 0 {
		errs = append(errs, "transport.heartbeat_interval must be positive")
	}
	if t.MissedHeartbeats < 1 {
		errs = append(errs, "transport.missed_heartbeats must be at least 1")
	}
	if t.InitialBackoff <= 0 {
		errs = append(errs, "transport.initial_backoff must be positive")
	}
	if t.MaxBackoff < t.InitialBackoff {
		errs = append(errs, "transport.max_backoff must not be less than transport.initial_backoff")
	}
	if t.UnreachableAfter < 1 {
		errs = append(errs, "transport.unreachable_after must be at least 1")
	}
	return errs
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
