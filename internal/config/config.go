package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Registry  RegistryConfig  `yaml:"registry"`
	Service   ServiceConfig   `yaml:"service"`
	Policy    PolicyConfig    `yaml:"policy"`
	Client    ClientConfig    `yaml:"client"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig contains HTTP server settings. Durations are in seconds.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	MaxBodySize    int      `yaml:"max_body_size"`
	ReadTimeout    int      `yaml:"read_timeout"`
	WriteTimeout   int      `yaml:"write_timeout"`
	IdleTimeout    int      `yaml:"idle_timeout"`
	RequestTimeout int      `yaml:"request_timeout"`
	PingInterval   int      `yaml:"ping_interval"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig contains record store settings
type StorageConfig struct {
	// memory or badger
	StorageType string `yaml:"storage_type"`

	DataDir                string `yaml:"data_dir"`
	SyncWrites             bool   `yaml:"sync_writes"`
	GCIntervalMinutes      int    `yaml:"gc_interval_minutes"`
	CacheEnabled           bool   `yaml:"cache_enabled"`
	CacheSize              int    `yaml:"cache_size"`
	CacheExpirationSeconds int    `yaml:"cache_expiration_seconds"`
}

// RegistryConfig contains notification registry settings
type RegistryConfig struct {
	MaxListenersPerCaller int `yaml:"max_listeners_per_caller"`
}

// ServiceConfig contains subscription service settings
type ServiceConfig struct {
	PrivilegedCallers      []string `yaml:"privileged_callers"`
	MaxActiveSubscriptions int      `yaml:"max_active_subscriptions"`
	SimCount               int      `yaml:"sim_count"`
	PhoneCount             int      `yaml:"phone_count"`
}

// PolicyConfig contains policy service settings
type PolicyConfig struct {
	PrivilegedCallers         []string `yaml:"privileged_callers"`
	MaxOverrideTimeoutMinutes int      `yaml:"max_override_timeout_minutes"`
}

// ClientConfig contains settings of simsubctl and other remote clients
type ClientConfig struct {
	URL            string `yaml:"url"`
	Caller         string `yaml:"caller"`
	CallTimeoutMs  int    `yaml:"call_timeout_ms"`
	ReconnectMaxMs int    `yaml:"reconnect_max_ms"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level         string            `yaml:"level"`
	Format        string            `yaml:"format"`
	IncludeCaller bool              `yaml:"include_caller"`
	IncludeTrace  bool              `yaml:"include_trace"`
	GlobalFields  map[string]string `yaml:"global_fields"`
}

// TelemetryConfig contains OpenTelemetry settings
type TelemetryConfig struct {
	Enabled       bool              `yaml:"enabled"`
	ServiceName   string            `yaml:"service_name"`
	Endpoint      string            `yaml:"endpoint"`
	SamplingRatio float64           `yaml:"sampling_ratio"`
	Attributes    map[string]string `yaml:"attributes"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			MaxBodySize:    1048576, // 1MB
			ReadTimeout:    5,
			WriteTimeout:   10,
			IdleTimeout:    120,
			RequestTimeout: 30,
			PingInterval:   30,
			AllowedOrigins: []string{"*"},
		},
		Storage: StorageConfig{
			StorageType:            "badger",
			DataDir:                "./data",
			SyncWrites:             true,
			GCIntervalMinutes:      10,
			CacheEnabled:           true,
			CacheSize:              1024,
			CacheExpirationSeconds: 30,
		},
		Registry: RegistryConfig{
			MaxListenersPerCaller: 50,
		},
		Service: ServiceConfig{
			PrivilegedCallers:      []string{"system"},
			MaxActiveSubscriptions: 2,
			SimCount:               2,
			PhoneCount:             2,
		},
		Policy: PolicyConfig{
			PrivilegedCallers:         []string{"system"},
			MaxOverrideTimeoutMinutes: 24 * 60,
		},
		Client: ClientConfig{
			URL:            "http://localhost:8080",
			Caller:         "simsubctl",
			CallTimeoutMs:  10000,
			ReconnectMaxMs: 10000,
		},
		Logging: LoggingConfig{
			Level:         "info",
			Format:        "json",
			IncludeCaller: true,
			IncludeTrace:  true,
			GlobalFields:  map[string]string{},
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			ServiceName:   "simsubd",
			Endpoint:      "localhost:4317",
			SamplingRatio: 0.1,
			Attributes:    map[string]string{},
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}

// LoadConfigFromFile loads configuration from a YAML file
func LoadConfigFromFile(filePath string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("file", filePath).Msg("Configuration file not found, using defaults")
			return config, nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

// Overrides are command line values. Empty fields leave the configuration
// unchanged.
type Overrides struct {
	DataDir     string
	ServerAddr  string
	LogLevel    string
	StorageType string
}

// LoadConfig loads configuration from file, environment variables, and flags
func LoadConfig(configFile string, flags Overrides) (*Config, error) {
	var config *Config
	var err error

	if configFile != "" {
		config, err = LoadConfigFromFile(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		config = DefaultConfig()
	}

	applyEnvOverrides(config)

	// Flags have the highest priority
	if flags.DataDir != "" {
		absDataDir, err := filepath.Abs(flags.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for data directory: %w", err)
		}
		config.Storage.DataDir = absDataDir
	}
	if flags.ServerAddr != "" {
		config.Server.Addr = flags.ServerAddr
	}
	if flags.LogLevel != "" {
		config.Logging.Level = flags.LogLevel
	}
	if flags.StorageType != "" {
		config.Storage.StorageType = flags.StorageType
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate reports settings the daemon cannot run with
func (c *Config) Validate() error {
	switch c.Storage.StorageType {
	case "memory", "badger":
	default:
		return fmt.Errorf("invalid storage type %q", c.Storage.StorageType)
	}
	if c.Service.SimCount < 0 || c.Service.PhoneCount < 0 {
		return fmt.Errorf("device counts must not be negative")
	}
	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return fmt.Errorf("sampling ratio %v out of range", c.Telemetry.SamplingRatio)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(config *Config) {
	// Server
	if addr := os.Getenv("SIMSUB_SERVER_ADDR"); addr != "" {
		config.Server.Addr = addr
	}
	if origins := os.Getenv("SIMSUB_SERVER_ALLOWED_ORIGINS"); origins != "" {
		config.Server.AllowedOrigins = splitList(origins)
	}

	// Storage
	if storageType := os.Getenv("SIMSUB_STORAGE_TYPE"); storageType != "" {
		config.Storage.StorageType = storageType
	}
	if dataDir := os.Getenv("SIMSUB_STORAGE_DATA_DIR"); dataDir != "" {
		config.Storage.DataDir = dataDir
	}
	if syncStr := os.Getenv("SIMSUB_STORAGE_SYNC_WRITES"); syncStr != "" {
		if val, err := strconv.ParseBool(syncStr); err == nil {
			config.Storage.SyncWrites = val
		}
	}
	if cacheStr := os.Getenv("SIMSUB_STORAGE_CACHE_SIZE"); cacheStr != "" {
		if val, err := strconv.Atoi(cacheStr); err == nil {
			config.Storage.CacheSize = val
		}
	}

	// Service
	if callers := os.Getenv("SIMSUB_PRIVILEGED_CALLERS"); callers != "" {
		config.Service.PrivilegedCallers = splitList(callers)
		config.Policy.PrivilegedCallers = splitList(callers)
	}
	if simStr := os.Getenv("SIMSUB_SIM_COUNT"); simStr != "" {
		if val, err := strconv.Atoi(simStr); err == nil {
			config.Service.SimCount = val
		}
	}
	if phoneStr := os.Getenv("SIMSUB_PHONE_COUNT"); phoneStr != "" {
		if val, err := strconv.Atoi(phoneStr); err == nil {
			config.Service.PhoneCount = val
		}
	}

	// Client
	if url := os.Getenv("SIMSUB_URL"); url != "" {
		config.Client.URL = url
	}
	if caller := os.Getenv("SIMSUB_CALLER"); caller != "" {
		config.Client.Caller = caller
	}

	// Logging
	if level := os.Getenv("SIMSUB_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("SIMSUB_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}

	// Telemetry
	if endpoint := os.Getenv("SIMSUB_OTLP_ENDPOINT"); endpoint != "" {
		config.Telemetry.Endpoint = endpoint
		config.Telemetry.Enabled = true
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
