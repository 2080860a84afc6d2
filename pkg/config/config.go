package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type PlanOverride struct {
	UserID               string `yaml:"user_id"`
	Premium              bool   `yaml:"premium"`
	MaxConcurrentStreams int    `yaml:"max_concurrent_streams"`
	MaxConcurrentViewers int    `yaml:"max_concurrent_viewers"`
}

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret      string        `yaml:"jwt_secret"`
		AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
	} `yaml:"auth"`

	RTC struct {
		AppID         string        `yaml:"app_id"`
		RTCSecret     string        `yaml:"rtc_secret"`
		RTMSecret     string        `yaml:"rtm_secret"`
		TokenTTL      time.Duration `yaml:"token_ttl"`
		ChannelPrefix string        `yaml:"channel_prefix"`
	} `yaml:"rtc"`

	Recording struct {
		BaseURL string        `yaml:"base_url"`
		APIKey  string        `yaml:"api_key"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"recording"`

	Messaging struct {
		BaseURL string        `yaml:"base_url"`
		APIKey  string        `yaml:"api_key"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"messaging"`

	Sessions struct {
		TTL               time.Duration `yaml:"ttl"`
		ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	} `yaml:"sessions"`

	Plans struct {
		DefaultPremium              bool           `yaml:"default_premium"`
		DefaultMaxConcurrentStreams int            `yaml:"default_max_concurrent_streams"`
		DefaultMaxConcurrentViewers int            `yaml:"default_max_concurrent_viewers"`
		Overrides                   []PlanOverride `yaml:"overrides"`
	} `yaml:"plans"`

	Chat struct {
		Enabled         bool  `yaml:"enabled"`
		MaxMessageBytes int64 `yaml:"max_message_bytes"`
	} `yaml:"chat"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.access_token_ttl must be > 0")
	}

	// RTC
	if c.RTC.AppID == "" {
		return fmt.Errorf("rtc.app_id must not be empty")
	}
	if c.RTC.RTCSecret == "" {
		return fmt.Errorf("rtc.rtc_secret must not be empty")
	}
	if c.RTC.RTMSecret == "" {
		return fmt.Errorf("rtc.rtm_secret must not be empty")
	}
	if c.RTC.TokenTTL <= 0 {
		return fmt.Errorf("rtc.token_ttl must be > 0")
	}

	// Sessions
	if c.Sessions.TTL <= 0 {
		return fmt.Errorf("sessions.ttl must be > 0")
	}
	if c.Sessions.ReconcileInterval <= 0 {
		return fmt.Errorf("sessions.reconcile_interval must be > 0")
	}

	// Plans
	if c.Plans.DefaultMaxConcurrentStreams <= 0 {
		return fmt.Errorf("plans.default_max_concurrent_streams must be > 0")
	}
	if c.Plans.DefaultMaxConcurrentViewers < 0 {
		return fmt.Errorf("plans.default_max_concurrent_viewers must be >= 0")
	}

	// Monitoring
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort <= 0 {
		return fmt.Errorf("monitoring.prometheus_port must be > 0 when prometheus_enabled=true")
	}

	// Tracing
	if c.Tracing.Enabled && c.Tracing.JaegerURL == "" {
		return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Chat
	if c.Chat.Enabled && c.Chat.MaxMessageBytes <= 0 {
		return fmt.Errorf("chat.max_message_bytes must be > 0 when chat.enabled=true")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.AccessTokenTTL = 15 * time.Minute

	cfg.RTC.AppID = "livecast-dev"
	cfg.RTC.RTCSecret = "change-me-in-production"
	cfg.RTC.RTMSecret = "change-me-in-production"
	cfg.RTC.TokenTTL = time.Hour
	cfg.RTC.ChannelPrefix = "live"

	cfg.Recording.Timeout = 10 * time.Second
	cfg.Messaging.Timeout = 10 * time.Second

	cfg.Sessions.TTL = time.Hour
	cfg.Sessions.ReconcileInterval = time.Minute

	cfg.Plans.DefaultPremium = false
	cfg.Plans.DefaultMaxConcurrentStreams = 2
	cfg.Plans.DefaultMaxConcurrentViewers = 0 // 0 = no plan ceiling

	cfg.Chat.Enabled = true
	cfg.Chat.MaxMessageBytes = 4 * 1024

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.PrometheusPort = 9090

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("LIVECAST_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if addr := os.Getenv("LIVECAST_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
		c.Redis.Enabled = true
	}
	if level := os.Getenv("LIVECAST_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("LIVECAST_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if secret := os.Getenv("LIVECAST_RTC_SECRET"); secret != "" {
		c.RTC.RTCSecret = secret
	}
	if secret := os.Getenv("LIVECAST_RTM_SECRET"); secret != "" {
		c.RTC.RTMSecret = secret
	}
}
