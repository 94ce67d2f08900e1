package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for remindd.
// Values are loaded from environment variables; see the serve command's
// usage text for the full list.
type Config struct {
	DatabaseURL string `json:"database_url"`
	HTTPAddr    string `json:"http_addr"`

	// EngineWebhookBase is the delivery engine's webhook base address.
	// The schedule and immediate endpoints derive from it unless
	// overridden explicitly.
	EngineWebhookBase   string `json:"engine_webhook_base"`
	ScheduleWebhookURL  string `json:"schedule_webhook_url"`
	ImmediateWebhookURL string `json:"immediate_webhook_url"`

	// CallbackBaseURL is the externally reachable base address used to
	// build the trigger callback URL handed to the delivery engine.
	CallbackBaseURL string `json:"callback_base_url"`

	EngineTimeout    time.Duration `json:"-"`
	EngineTimeoutStr string        `json:"engine_timeout"`
	EngineSecret     string        `json:"-"`

	SweepInterval    time.Duration `json:"-"`
	SweepIntervalStr string        `json:"sweep_interval"`
	// SweepCron, when set, drives sweep cycles from a cron expression
	// instead of SWEEP_INTERVAL.
	SweepCron      string `json:"sweep_cron,omitempty"`
	SweepBatchSize int    `json:"sweep_batch_size"`

	DBOpTimeout    time.Duration `json:"-"`
	DBOpTimeoutStr string        `json:"db_op_timeout"`

	DBMaxOpenConns       int           `json:"db_max_open_conns"`
	DBMaxIdleConns       int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime    time.Duration `json:"-"`
	DBConnMaxLifetimeStr string        `json:"db_conn_max_lifetime"`
	DBConnMaxIdleTime    time.Duration `json:"-"`
	DBConnMaxIdleTimeStr string        `json:"db_conn_max_idle_time"`

	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`
	MetricsPort    string `json:"metrics_port"`

	RedisAddr             string        `json:"redis_addr,omitempty"`
	AnalyticsRetention    time.Duration `json:"-"`
	AnalyticsRetentionStr string        `json:"analytics_retention"`

	EventBusBufferSize int `json:"eventbus_buffer_size"`

	// CircuitBreakerThreshold: 0 disables the breaker, preserving
	// strict single-attempt delivery semantics.
	CircuitBreakerThreshold   int           `json:"circuit_breaker_threshold"`
	CircuitBreakerCooldown    time.Duration `json:"-"`
	CircuitBreakerCooldownStr string        `json:"circuit_breaker_cooldown"`

	// LeaderEnabled gates the sweeper behind Postgres advisory-lock
	// leader election so only one instance sweeps.
	LeaderEnabled bool `json:"leader_enabled"`
	// LeaderLockKey: all instances sharing the same database must use the same key.
	LeaderLockKey              int64         `json:"leader_lock_key"`
	LeaderRetryInterval        time.Duration `json:"-"`
	LeaderRetryIntervalStr     string        `json:"leader_retry_interval"`
	LeaderHeartbeatInterval    time.Duration `json:"-"`
	LeaderHeartbeatIntervalStr string        `json:"leader_heartbeat_interval"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		DatabaseURL:                os.Getenv("DATABASE_URL"),
		HTTPAddr:                   os.Getenv("HTTP_ADDR"),
		EngineWebhookBase:          os.Getenv("ENGINE_WEBHOOK_BASE"),
		ScheduleWebhookURL:         os.Getenv("SCHEDULE_WEBHOOK_URL"),
		ImmediateWebhookURL:        os.Getenv("IMMEDIATE_WEBHOOK_URL"),
		CallbackBaseURL:            os.Getenv("CALLBACK_BASE_URL"),
		EngineTimeoutStr:           os.Getenv("ENGINE_TIMEOUT"),
		EngineSecret:               os.Getenv("ENGINE_SECRET"),
		SweepIntervalStr:           os.Getenv("SWEEP_INTERVAL"),
		SweepCron:                  os.Getenv("SWEEP_CRON"),
		DBOpTimeoutStr:             os.Getenv("DB_OP_TIMEOUT"),
		DBConnMaxLifetimeStr:       os.Getenv("DB_CONN_MAX_LIFETIME"),
		DBConnMaxIdleTimeStr:       os.Getenv("DB_CONN_MAX_IDLE_TIME"),
		HTTPShutdownTimeoutStr:     os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		MetricsEnabled:             os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:                os.Getenv("METRICS_PATH"),
		MetricsPort:                os.Getenv("METRICS_PORT"),
		RedisAddr:                  os.Getenv("REDIS_ADDR"),
		AnalyticsRetentionStr:      os.Getenv("ANALYTICS_RETENTION"),
		CircuitBreakerCooldownStr:  os.Getenv("CIRCUIT_BREAKER_COOLDOWN"),
		LeaderEnabled:              os.Getenv("LEADER_ELECTION_ENABLED") == "true",
		LeaderRetryIntervalStr:     os.Getenv("LEADER_RETRY_INTERVAL"),
		LeaderHeartbeatIntervalStr: os.Getenv("LEADER_HEARTBEAT_INTERVAL"),
	}

	cfg.SweepBatchSize = envPositiveInt("SWEEP_BATCH_SIZE", 100)
	cfg.EventBusBufferSize = envPositiveInt("EVENTBUS_BUFFER_SIZE", 100)
	cfg.DBMaxOpenConns = envPositiveInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = envPositiveInt("DB_MAX_IDLE_CONNS", 5)

	if v := os.Getenv("CIRCUIT_BREAKER_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.CircuitBreakerThreshold = n
		} else {
			log.Printf("config: invalid CIRCUIT_BREAKER_THRESHOLD %q, breaker disabled", v)
		}
	}

	if v := os.Getenv("LEADER_LOCK_KEY"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.LeaderLockKey = n
		} else {
			log.Printf("config: invalid LEADER_LOCK_KEY %q (must be a positive integer), using default 520431", v)
		}
	}
	if cfg.LeaderLockKey == 0 {
		cfg.LeaderLockKey = 520431
	}

	// Support platform PORT variable as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.EngineWebhookBase == "" {
		cfg.EngineWebhookBase = "http://n8n:5678/webhook"
	}
	if cfg.ScheduleWebhookURL == "" {
		cfg.ScheduleWebhookURL = strings.TrimRight(cfg.EngineWebhookBase, "/") + "/schedule-reminder"
	}
	if cfg.ImmediateWebhookURL == "" {
		cfg.ImmediateWebhookURL = strings.TrimRight(cfg.EngineWebhookBase, "/") + "/send-notification"
	}
	if cfg.CallbackBaseURL == "" {
		cfg.CallbackBaseURL = "http://localhost:8080"
	}
	if cfg.EngineTimeoutStr == "" {
		cfg.EngineTimeoutStr = "30s"
	}
	if cfg.SweepIntervalStr == "" {
		cfg.SweepIntervalStr = "5m"
	}
	if cfg.DBOpTimeoutStr == "" {
		cfg.DBOpTimeoutStr = "5s"
	}
	if cfg.DBConnMaxLifetimeStr == "" {
		cfg.DBConnMaxLifetimeStr = "30m"
	}
	if cfg.DBConnMaxIdleTimeStr == "" {
		cfg.DBConnMaxIdleTimeStr = "5m"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.MetricsPort == "" {
		cfg.MetricsPort = "9090"
	}
	if cfg.AnalyticsRetentionStr == "" {
		cfg.AnalyticsRetentionStr = "168h"
	}
	if cfg.CircuitBreakerCooldownStr == "" {
		cfg.CircuitBreakerCooldownStr = "2m"
	}
	if cfg.LeaderRetryIntervalStr == "" {
		cfg.LeaderRetryIntervalStr = "5s"
	}
	if cfg.LeaderHeartbeatIntervalStr == "" {
		cfg.LeaderHeartbeatIntervalStr = "2s"
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.EngineTimeoutStr); err == nil {
		cfg.EngineTimeout = d
	}
	if d, err := time.ParseDuration(cfg.SweepIntervalStr); err == nil {
		cfg.SweepInterval = d
	}
	if d, err := time.ParseDuration(cfg.DBOpTimeoutStr); err == nil {
		cfg.DBOpTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxLifetimeStr); err == nil {
		cfg.DBConnMaxLifetime = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxIdleTimeStr); err == nil {
		cfg.DBConnMaxIdleTime = d
	}
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}
	if d, err := time.ParseDuration(cfg.AnalyticsRetentionStr); err == nil {
		cfg.AnalyticsRetention = d
	}
	if d, err := time.ParseDuration(cfg.CircuitBreakerCooldownStr); err == nil {
		cfg.CircuitBreakerCooldown = d
	}
	if d, err := time.ParseDuration(cfg.LeaderRetryIntervalStr); err == nil {
		cfg.LeaderRetryInterval = d
	}
	if d, err := time.ParseDuration(cfg.LeaderHeartbeatIntervalStr); err == nil {
		cfg.LeaderHeartbeatInterval = d
	}

	return cfg
}

// envPositiveInt reads a positive integer from the environment, falling
// back to def on absence or invalid input.
func envPositiveInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("config: invalid %s %q (must be a positive integer), using default %d", name, v, def)
		return def
	}
	return n
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := struct {
		DatabaseURL             string `json:"database_url"`
		HTTPAddr                string `json:"http_addr"`
		EngineWebhookBase       string `json:"engine_webhook_base"`
		ScheduleWebhookURL      string `json:"schedule_webhook_url"`
		ImmediateWebhookURL     string `json:"immediate_webhook_url"`
		CallbackBaseURL         string `json:"callback_base_url"`
		EngineTimeout           string `json:"engine_timeout"`
		EngineSecretSet         bool   `json:"engine_secret_set"`
		SweepInterval           string `json:"sweep_interval"`
		SweepCron               string `json:"sweep_cron,omitempty"`
		SweepBatchSize          int    `json:"sweep_batch_size"`
		DBOpTimeout             string `json:"db_op_timeout"`
		DBMaxOpenConns          int    `json:"db_max_open_conns"`
		DBMaxIdleConns          int    `json:"db_max_idle_conns"`
		DBConnMaxLifetime       string `json:"db_conn_max_lifetime"`
		DBConnMaxIdleTime       string `json:"db_conn_max_idle_time"`
		HTTPShutdownTimeout     string `json:"http_shutdown_timeout"`
		MetricsEnabled          bool   `json:"metrics_enabled"`
		MetricsPath             string `json:"metrics_path"`
		MetricsPort             string `json:"metrics_port"`
		RedisAddr               string `json:"redis_addr,omitempty"`
		AnalyticsRetention      string `json:"analytics_retention"`
		EventBusBufferSize      int    `json:"eventbus_buffer_size"`
		CircuitBreakerThreshold int    `json:"circuit_breaker_threshold"`
		CircuitBreakerCooldown  string `json:"circuit_breaker_cooldown"`
		LeaderEnabled           bool   `json:"leader_enabled"`
		LeaderLockKey           int64  `json:"leader_lock_key"`
		LeaderRetryInterval     string `json:"leader_retry_interval"`
		LeaderHeartbeatInterval string `json:"leader_heartbeat_interval"`
	}{
		DatabaseURL:             maskSecret(c.DatabaseURL),
		HTTPAddr:                c.HTTPAddr,
		EngineWebhookBase:       c.EngineWebhookBase,
		ScheduleWebhookURL:      c.ScheduleWebhookURL,
		ImmediateWebhookURL:     c.ImmediateWebhookURL,
		CallbackBaseURL:         c.CallbackBaseURL,
		EngineTimeout:           c.EngineTimeoutStr,
		EngineSecretSet:         c.EngineSecret != "",
		SweepInterval:           c.SweepIntervalStr,
		SweepCron:               c.SweepCron,
		SweepBatchSize:          c.SweepBatchSize,
		DBOpTimeout:             c.DBOpTimeoutStr,
		DBMaxOpenConns:          c.DBMaxOpenConns,
		DBMaxIdleConns:          c.DBMaxIdleConns,
		DBConnMaxLifetime:       c.DBConnMaxLifetimeStr,
		DBConnMaxIdleTime:       c.DBConnMaxIdleTimeStr,
		HTTPShutdownTimeout:     c.HTTPShutdownTimeoutStr,
		MetricsEnabled:          c.MetricsEnabled,
		MetricsPath:             c.MetricsPath,
		MetricsPort:             c.MetricsPort,
		RedisAddr:               c.RedisAddr,
		AnalyticsRetention:      c.AnalyticsRetentionStr,
		EventBusBufferSize:      c.EventBusBufferSize,
		CircuitBreakerThreshold: c.CircuitBreakerThreshold,
		CircuitBreakerCooldown:  c.CircuitBreakerCooldownStr,
		LeaderEnabled:           c.LeaderEnabled,
		LeaderLockKey:           c.LeaderLockKey,
		LeaderRetryInterval:     c.LeaderRetryIntervalStr,
		LeaderHeartbeatInterval: c.LeaderHeartbeatIntervalStr,
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(s, scheme) {
			return scheme + "***"
		}
	}
	return "***"
}
