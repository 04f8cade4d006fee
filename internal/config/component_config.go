package config

import (
	"os"
	"time"

	"github.com/nkkko/simsub/internal/api"
	"github.com/nkkko/simsub/internal/logging"
	"github.com/nkkko/simsub/internal/policy"
	"github.com/nkkko/simsub/internal/registry"
	"github.com/nkkko/simsub/internal/service"
	"github.com/nkkko/simsub/internal/storage"
	"github.com/nkkko/simsub/internal/subscription"
	"github.com/nkkko/simsub/internal/telemetry"
)

// ToAPIConfig converts to API config
func (c *Config) ToAPIConfig() api.Config {
	return api.Config{
		Addr:           c.Server.Addr,
		ReadTimeout:    time.Duration(c.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(c.Server.WriteTimeout) * time.Second,
		IdleTimeout:    time.Duration(c.Server.IdleTimeout) * time.Second,
		RequestTimeout: time.Duration(c.Server.RequestTimeout) * time.Second,
		MaxBodyBytes:   int64(c.Server.MaxBodySize),
		AllowedOrigins: c.Server.AllowedOrigins,
		PingInterval:   time.Duration(c.Server.PingInterval) * time.Second,
		MetricsPath:    c.metricsPath(),
	}
}

func (c *Config) metricsPath() string {
	if !c.Metrics.Enabled {
		return ""
	}
	return c.Metrics.Endpoint
}

// ToStorageConfig converts to storage config
func (c *Config) ToStorageConfig() storage.Config {
	return storage.Config{
		Type:            storage.StorageType(c.Storage.StorageType),
		DataDir:         c.Storage.DataDir,
		SyncWrites:      c.Storage.SyncWrites,
		GCInterval:      time.Duration(c.Storage.GCIntervalMinutes) * time.Minute,
		CacheEnabled:    c.Storage.CacheEnabled,
		CacheSize:       c.Storage.CacheSize,
		CacheExpiration: time.Duration(c.Storage.CacheExpirationSeconds) * time.Second,
	}
}

// ToRegistryConfig converts to registry config
func (c *Config) ToRegistryConfig() registry.Config {
	return registry.Config{
		MaxListenersPerCaller: c.Registry.MaxListenersPerCaller,
	}
}

// ToServiceConfig converts to reference service config
func (c *Config) ToServiceConfig() service.Config {
	return service.Config{
		PrivilegedCallers:      c.Service.PrivilegedCallers,
		MaxActiveSubscriptions: c.Service.MaxActiveSubscriptions,
		SimCount:               c.Service.SimCount,
		PhoneCount:             c.Service.PhoneCount,
	}
}

// ToPolicyConfig converts to policy service config
func (c *Config) ToPolicyConfig() policy.Config {
	return policy.Config{
		PrivilegedCallers:  c.Policy.PrivilegedCallers,
		MaxOverrideTimeout: time.Duration(c.Policy.MaxOverrideTimeoutMinutes) * time.Minute,
	}
}

// ToSubscriptionConfig converts to subscription client config
func (c *Config) ToSubscriptionConfig() subscription.Config {
	return subscription.Config{
		Caller:      c.Client.Caller,
		CallTimeout: time.Duration(c.Client.CallTimeoutMs) * time.Millisecond,
	}
}

// ToLoggingConfig converts to logging config
func (c *Config) ToLoggingConfig() logging.Config {
	return logging.Config{
		Level:               logging.LogLevel(c.Logging.Level),
		Format:              logging.LogFormat(c.Logging.Format),
		IncludeCaller:       c.Logging.IncludeCaller,
		IncludeStacktrace:   true,
		IncludeTraceContext: c.Logging.IncludeTrace,
		Output:              os.Stderr,
		GlobalFields:        c.Logging.GlobalFields,
	}
}

// ToTelemetryConfig converts to telemetry config
func (c *Config) ToTelemetryConfig() telemetry.Config {
	return telemetry.Config{
		Enabled:       c.Telemetry.Enabled,
		ServiceName:   c.Telemetry.ServiceName,
		Endpoint:      c.Telemetry.Endpoint,
		SamplingRatio: c.Telemetry.SamplingRatio,
		Timeout:       5 * time.Second,
		Attributes:    c.Telemetry.Attributes,
	}
}
