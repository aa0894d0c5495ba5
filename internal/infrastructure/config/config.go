package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the audio node.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Bluetooth BluetoothConfig `yaml:"bluetooth"`
	Audio     AudioConfig     `yaml:"audio"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// NodeConfig contains node identity and routing policy settings.
type NodeConfig struct {
	// Name identifies this node (e.g., "living-room").
	Name string `yaml:"name"`

	// AutoAssign enables automatic output assignment when a device connects.
	AutoAssign bool `yaml:"auto_assign"`

	// DefaultOutputs lists output identifiers that receive a link whenever a
	// device becomes connected and has no explicit assignment. An empty list
	// means "all outputs the backend flags default-on-connect".
	DefaultOutputs []string `yaml:"default_outputs"`

	// DefaultVolume is the initial per-link volume for auto-assigned links.
	// Range 0.0-1.0.
	DefaultVolume float64 `yaml:"default_volume"`

	// EventRetentionDays is how long journalled node events are kept.
	// 0 disables pruning.
	EventRetentionDays int `yaml:"event_retention_days"`
}

// BluetoothConfig contains Bluetooth adapter settings.
type BluetoothConfig struct {
	// Adapter is the HCI adapter identifier (e.g., "hci0").
	Adapter string `yaml:"adapter"`

	// CtlBinary is the path to the bluetoothctl executable.
	CtlBinary string `yaml:"ctl_binary"`

	// Discoverable makes the node discoverable/pairable while running.
	Discoverable bool `yaml:"discoverable"`

	// ConnectTimeout bounds a single pair/connect attempt (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`

	// RSSIPollInterval is how often signal strength is sampled (seconds).
	// 0 disables polling.
	RSSIPollInterval int `yaml:"rssi_poll_interval"`

	// LowSignalThreshold is the dBm level below which a warning is logged.
	// Signal strength never causes a disconnect; it is advisory only.
	LowSignalThreshold int `yaml:"low_signal_threshold"`
}

// AudioConfig contains audio backend (PipeWire) settings.
type AudioConfig struct {
	// PWLinkBinary is the path to the pw-link executable.
	PWLinkBinary string `yaml:"pw_link_binary"`

	// WPCtlBinary is the path to the wpctl executable.
	WPCtlBinary string `yaml:"wpctl_binary"`

	// PWDumpBinary is the path to the pw-dump executable.
	PWDumpBinary string `yaml:"pw_dump_binary"`

	// PollInterval is how often the output topology is refreshed (seconds).
	PollInterval int `yaml:"poll_interval"`

	// CommandTimeout bounds a single backend invocation (seconds).
	CommandTimeout int `yaml:"command_timeout"`
}

// ReconnectConfig contains the bounded backoff policy for automatic
// reconnection after an unexpected disconnect.
type ReconnectConfig struct {
	// MaxAttempts is the reconnect attempt budget. Exhausting it moves the
	// device to failed until an explicit connect is requested.
	MaxAttempts int `yaml:"max_attempts"`

	// InitialDelay is the delay before the first attempt (seconds).
	InitialDelay int `yaml:"initial_delay"`

	// MaxDelay caps the inter-attempt delay (seconds).
	MaxDelay int `yaml:"max_delay"`

	// Multiplier scales the delay after each failed attempt.
	Multiplier float64 `yaml:"multiplier"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
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

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB telemetry settings. The node records
// signal-strength samples and link lifecycle events; nothing else.
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

// SecurityConfig contains security settings for the control surface.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`

	// AdminUsername and AdminPassword are the credentials accepted by the
	// login endpoint. Login is disabled while the password is empty.
	AdminUsername string `yaml:"admin_username"`
	AdminPassword string `yaml:"admin_password"`
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
// Environment variables follow the pattern: AUDIONODE_SECTION_KEY
// For example: AUDIONODE_DATABASE_PATH, AUDIONODE_API_PORT
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
		Node: NodeConfig{
			Name:               "audionode",
			AutoAssign:         true,
			DefaultVolume:      0.7,
			EventRetentionDays: 7,
		},
		Bluetooth: BluetoothConfig{
			Adapter:            "hci0",
			CtlBinary:          "bluetoothctl",
			Discoverable:       true,
			ConnectTimeout:     15,
			RSSIPollInterval:   5,
			LowSignalThreshold: -80,
		},
		Audio: AudioConfig{
			PWLinkBinary:   "pw-link",
			WPCtlBinary:    "wpctl",
			PWDumpBinary:   "pw-dump",
			PollInterval:   2,
			CommandTimeout: 5,
		},
		Reconnect: ReconnectConfig{
			MaxAttempts:  3,
			InitialDelay: 2,
			MaxDelay:     30,
			Multiplier:   2.0,
		},
		Database: DatabaseConfig{
			Path:        "./data/audionode.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
			AdminUsername: "admin",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: AUDIONODE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Node
	if v := os.Getenv("AUDIONODE_NODE_NAME"); v != "" {
		cfg.Node.Name = v
	}

	// Database
	if v := os.Getenv("AUDIONODE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("AUDIONODE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("AUDIONODE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Bluetooth
	if v := os.Getenv("AUDIONODE_BLUETOOTH_ADAPTER"); v != "" {
		cfg.Bluetooth.Adapter = v
	}

	// InfluxDB
	if v := os.Getenv("AUDIONODE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - JWT secret (always override in production)
	if v := os.Getenv("AUDIONODE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("AUDIONODE_ADMIN_PASSWORD"); v != "" {
		cfg.Security.AdminPassword = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	// Node validation
	if c.Node.Name == "" {
		errs = append(errs, "node.name is required")
	}
	if c.Node.DefaultVolume < 0 || c.Node.DefaultVolume > 1 {
		errs = append(errs, "node.default_volume must be between 0.0 and 1.0")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Reconnect validation
	if c.Reconnect.MaxAttempts < 0 {
		errs = append(errs, "reconnect.max_attempts must not be negative")
	}
	if c.Reconnect.Multiplier < 1 {
		errs = append(errs, "reconnect.multiplier must be at least 1.0")
	}

	// Security validation - JWT secret is REQUIRED
	// The control surface drives physical audio hardware; an empty or weak
	// secret would let anyone on the network forge tokens.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set AUDIONODE_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetConnectTimeout returns the Bluetooth connect timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.Bluetooth.ConnectTimeout) * time.Second
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

// InitialReconnectDelay returns the initial reconnect delay as a Duration.
func (r ReconnectConfig) InitialReconnectDelay() time.Duration {
	return time.Duration(r.InitialDelay) * time.Second
}

// MaxReconnectDelay returns the reconnect delay cap as a Duration.
func (r ReconnectConfig) MaxReconnectDelay() time.Duration {
	return time.Duration(r.MaxDelay) * time.Second
}
