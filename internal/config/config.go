// Package config provides configuration management for the HVAC voice agent.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the voice agent.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Twilio      TwilioConfig      `mapstructure:"twilio"`
	ElevenLabs  ElevenLabsConfig  `mapstructure:"elevenlabs"`
	OpenAI      OpenAIConfig      `mapstructure:"openai"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Business    BusinessConfig    `mapstructure:"business"`
	Dialog      DialogConfig      `mapstructure:"dialog"`
	AudioCache  AudioCacheConfig  `mapstructure:"audio_cache"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Breaker     BreakerConfig     `mapstructure:"breaker"`
	WorkerPool  WorkerPoolConfig  `mapstructure:"worker_pool"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Knowledge   KnowledgeConfig   `mapstructure:"knowledge"`
	Auth        AuthConfig        `mapstructure:"auth"`
	RateLimiter RateLimiterConfig `mapstructure:"rate_limiter"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// TurnTimeout bounds the work done for a single webhook turn. Twilio
	// gives up on a webhook after 15 seconds.
	TurnTimeout    time.Duration `mapstructure:"turn_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// TwilioConfig holds telephony webhook configuration.
type TwilioConfig struct {
	AuthToken          string  `mapstructure:"auth_token"`
	ValidateSignatures bool    `mapstructure:"validate_signatures"`
	PublicBaseURL      string  `mapstructure:"public_base_url"`
	SayVoice           string  `mapstructure:"say_voice"`
	Language           string  `mapstructure:"language"`
	SpeechTimeout      string  `mapstructure:"speech_timeout"`
	SpeechModel        string  `mapstructure:"speech_model"`
	GatherTimeout      int     `mapstructure:"gather_timeout"`
	MinConfidence      float64 `mapstructure:"min_confidence"`
	OnCallNumber       string  `mapstructure:"on_call_number"`
}

// ElevenLabsConfig holds text-to-speech configuration.
type ElevenLabsConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	APIKey       string        `mapstructure:"api_key"`
	VoiceID      string        `mapstructure:"voice_id"`
	Model        string        `mapstructure:"model"`
	OutputFormat string        `mapstructure:"output_format"`
	SampleRate   int           `mapstructure:"sample_rate"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// OpenAIConfig holds LLM slot extraction configuration.
type OpenAIConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxCallsPerCall int           `mapstructure:"max_calls_per_call"`
}

// RedisConfig holds session store configuration.
type RedisConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	LockTTL    time.Duration `mapstructure:"lock_ttl"`
	LockWait   time.Duration `mapstructure:"lock_wait"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`

	// AutoMigrate applies pending migrations at startup.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode, d.MaxConns)
}

// BusinessConfig describes the HVAC company the agent answers for.
type BusinessConfig struct {
	CompanyName       string         `mapstructure:"company_name"`
	Timezone          string         `mapstructure:"timezone"`
	Hours             string         `mapstructure:"hours"`
	ServiceArea       string         `mapstructure:"service_area"`
	BookingHorizon    int            `mapstructure:"booking_horizon_days"`
	ClosedDays        []string       `mapstructure:"closed_days"`
	CapacityPerWindow int            `mapstructure:"capacity_per_window"`
	Windows           []WindowConfig `mapstructure:"windows"`
}

// WindowConfig is an arrival window offered to callers.
type WindowConfig struct {
	Name      string `mapstructure:"name"`
	StartHour int    `mapstructure:"start_hour"`
	EndHour   int    `mapstructure:"end_hour"`
}

// DialogConfig holds conversation limits.
type DialogConfig struct {
	MaxNoInput  int           `mapstructure:"max_no_input"`
	MaxRetries  int           `mapstructure:"max_retries"`
	AbandonIdle time.Duration `mapstructure:"abandon_idle"`
}

// AudioCacheConfig holds synthesized audio cache configuration.
type AudioCacheConfig struct {
	MaxEntries int           `mapstructure:"max_entries"`
	TTL        time.Duration `mapstructure:"ttl"`
	Prewarm    bool          `mapstructure:"prewarm"`
}

// RetryConfig holds exponential backoff settings for hosted API calls.
type RetryConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// BreakerConfig holds circuit breaker settings for hosted API calls.
type BreakerConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	MaxRequests         uint32        `mapstructure:"max_requests"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
}

// WorkerPoolConfig holds background worker pool settings.
type WorkerPoolConfig struct {
	MaxWorkers int `mapstructure:"max_workers"`
	QueueSize  int `mapstructure:"queue_size"`
}

// MaintenanceConfig holds periodic job schedules.
type MaintenanceConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	CacheSweep     string `mapstructure:"cache_sweep"`
	AbandonedSweep string `mapstructure:"abandoned_sweep"`
}

// KnowledgeConfig holds FAQ knowledge base settings.
type KnowledgeConfig struct {
	FAQPath string `mapstructure:"faq_path"`
	Watch   bool   `mapstructure:"watch"`
}

// AuthConfig holds admin API authentication settings.
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// RateLimiterConfig holds rate limiter configuration.
type RateLimiterConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/hvac-agent/")
	}

	v.SetEnvPrefix("HVAC_AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found, use defaults/env)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.turn_timeout", "12s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Twilio defaults
	v.SetDefault("twilio.auth_token", "")
	v.SetDefault("twilio.validate_signatures", false)
	v.SetDefault("twilio.public_base_url", "http://localhost:8080")
	v.SetDefault("twilio.say_voice", "Polly.Joanna")
	v.SetDefault("twilio.language", "en-US")
	v.SetDefault("twilio.speech_timeout", "auto")
	v.SetDefault("twilio.speech_model", "phone_call")
	v.SetDefault("twilio.gather_timeout", 6)
	v.SetDefault("twilio.min_confidence", 0.2)
	v.SetDefault("twilio.on_call_number", "")

	// ElevenLabs defaults
	v.SetDefault("elevenlabs.enabled", false)
	v.SetDefault("elevenlabs.api_key", "")
	v.SetDefault("elevenlabs.voice_id", "Rachel")
	v.SetDefault("elevenlabs.model", "eleven_turbo_v2_5")
	v.SetDefault("elevenlabs.output_format", "mp3")
	v.SetDefault("elevenlabs.sample_rate", 44100)
	v.SetDefault("elevenlabs.timeout", "6s")

	// OpenAI defaults
	v.SetDefault("openai.enabled", false)
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.timeout", "4s")
	v.SetDefault("openai.max_calls_per_call", 20)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.session_ttl", "2h")
	v.SetDefault("redis.lock_ttl", "15s")
	v.SetDefault("redis.lock_wait", "5s")

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "hvac_agent")
	v.SetDefault("database.user", "hvac_agent")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.auto_migrate", false)

	// Business defaults
	v.SetDefault("business.company_name", "Comfort Air Heating and Cooling")
	v.SetDefault("business.timezone", "America/New_York")
	v.SetDefault("business.hours", "Monday through Saturday, 7 AM to 7 PM, with emergency service around the clock")
	v.SetDefault("business.service_area", "the greater metro area and surrounding counties")
	v.SetDefault("business.booking_horizon_days", 14)
	v.SetDefault("business.closed_days", []string{"sunday"})
	v.SetDefault("business.capacity_per_window", 3)
	v.SetDefault("business.windows", []map[string]interface{}{
		{"name": "morning", "start_hour": 8, "end_hour": 12},
		{"name": "afternoon", "start_hour": 12, "end_hour": 16},
		{"name": "evening", "start_hour": 16, "end_hour": 19},
	})

	// Dialog defaults
	v.SetDefault("dialog.max_no_input", 3)
	v.SetDefault("dialog.max_retries", 3)
	v.SetDefault("dialog.abandon_idle", "30m")

	// Audio cache defaults
	v.SetDefault("audio_cache.max_entries", 512)
	v.SetDefault("audio_cache.ttl", "24h")
	v.SetDefault("audio_cache.prewarm", true)

	// Retry and breaker defaults
	v.SetDefault("retry.max_retries", 2)
	v.SetDefault("retry.initial_interval", "100ms")
	v.SetDefault("retry.max_interval", "1s")
	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.max_requests", 3)
	v.SetDefault("breaker.interval", "60s")
	v.SetDefault("breaker.timeout", "30s")
	v.SetDefault("breaker.consecutive_failures", 5)

	// Worker pool defaults
	v.SetDefault("worker_pool.max_workers", 4)
	v.SetDefault("worker_pool.queue_size", 256)

	// Maintenance defaults
	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.cache_sweep", "@every 10m")
	v.SetDefault("maintenance.abandoned_sweep", "@every 5m")

	// Knowledge defaults
	v.SetDefault("knowledge.faq_path", "")
	v.SetDefault("knowledge.watch", false)

	// Auth defaults
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")

	// Rate limiter defaults
	v.SetDefault("rate_limiter.enabled", true)
	v.SetDefault("rate_limiter.requests_per_second", 200.0)
	v.SetDefault("rate_limiter.burst_size", 50)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.TurnTimeout <= 0 {
		return fmt.Errorf("server turn timeout must be positive")
	}

	if c.Twilio.ValidateSignatures && c.Twilio.AuthToken == "" {
		return fmt.Errorf("twilio auth token is required when signature validation is enabled")
	}

	if !strings.HasPrefix(c.Twilio.PublicBaseURL, "http://") && !strings.HasPrefix(c.Twilio.PublicBaseURL, "https://") {
		return fmt.Errorf("twilio public base url must be absolute: %q", c.Twilio.PublicBaseURL)
	}

	if c.ElevenLabs.Enabled && c.ElevenLabs.APIKey == "" {
		return fmt.Errorf("elevenlabs api key is required when elevenlabs is enabled")
	}

	if c.OpenAI.Enabled && c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai api key is required when openai is enabled")
	}

	if c.Business.CapacityPerWindow <= 0 {
		return fmt.Errorf("business capacity per window must be positive")
	}

	if c.Business.BookingHorizon <= 0 {
		return fmt.Errorf("business booking horizon must be positive")
	}

	if len(c.Business.Windows) == 0 {
		return fmt.Errorf("at least one arrival window is required")
	}

	for _, w := range c.Business.Windows {
		if w.Name == "" || w.StartHour < 0 || w.EndHour > 24 || w.StartHour >= w.EndHour {
			return fmt.Errorf("invalid arrival window %q: %d-%d", w.Name, w.StartHour, w.EndHour)
		}
	}

	if c.Dialog.MaxNoInput <= 0 || c.Dialog.MaxRetries <= 0 {
		return fmt.Errorf("dialog limits must be positive")
	}

	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt secret is required when admin auth is enabled")
	}

	if c.RateLimiter.Enabled {
		if c.RateLimiter.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate limiter requests per second must be positive")
		}
		if c.RateLimiter.BurstSize <= 0 {
			return fmt.Errorf("rate limiter burst size must be positive")
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
		}
	}

	return nil
}
