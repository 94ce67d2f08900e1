package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Validate checks that the configuration is complete and coherent.
// It returns all problems found, not just the first one.
func (c Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	} else if !strings.HasPrefix(c.DatabaseURL, "postgres://") && !strings.HasPrefix(c.DatabaseURL, "postgresql://") {
		errs = append(errs, fmt.Errorf("DATABASE_URL must be a postgres:// or postgresql:// URL"))
	}

	if err := validateHTTPURL("SCHEDULE_WEBHOOK_URL", c.ScheduleWebhookURL); err != nil {
		errs = append(errs, err)
	}
	if err := validateHTTPURL("IMMEDIATE_WEBHOOK_URL", c.ImmediateWebhookURL); err != nil {
		errs = append(errs, err)
	}
	if err := validateHTTPURL("CALLBACK_BASE_URL", c.CallbackBaseURL); err != nil {
		errs = append(errs, err)
	}

	errs = append(errs, validateDurations(c)...)

	if _, err := strconv.Atoi(c.MetricsPort); err != nil {
		errs = append(errs, fmt.Errorf("METRICS_PORT must be numeric, got %q", c.MetricsPort))
	}
	if !strings.HasPrefix(c.MetricsPath, "/") {
		errs = append(errs, fmt.Errorf("METRICS_PATH must start with /, got %q", c.MetricsPath))
	}

	if c.LeaderHeartbeatInterval >= c.LeaderRetryInterval && c.LeaderEnabled {
		errs = append(errs, fmt.Errorf("LEADER_HEARTBEAT_INTERVAL (%s) must be shorter than LEADER_RETRY_INTERVAL (%s)",
			c.LeaderHeartbeatIntervalStr, c.LeaderRetryIntervalStr))
	}

	return errs
}

func validateDurations(c Config) []error {
	var errs []error
	checks := []struct {
		name string
		raw  string
		val  time.Duration
	}{
		{"ENGINE_TIMEOUT", c.EngineTimeoutStr, c.EngineTimeout},
		{"SWEEP_INTERVAL", c.SweepIntervalStr, c.SweepInterval},
		{"DB_OP_TIMEOUT", c.DBOpTimeoutStr, c.DBOpTimeout},
		{"DB_CONN_MAX_LIFETIME", c.DBConnMaxLifetimeStr, c.DBConnMaxLifetime},
		{"DB_CONN_MAX_IDLE_TIME", c.DBConnMaxIdleTimeStr, c.DBConnMaxIdleTime},
		{"HTTP_SHUTDOWN_TIMEOUT", c.HTTPShutdownTimeoutStr, c.HTTPShutdownTimeout},
		{"ANALYTICS_RETENTION", c.AnalyticsRetentionStr, c.AnalyticsRetention},
		{"CIRCUIT_BREAKER_COOLDOWN", c.CircuitBreakerCooldownStr, c.CircuitBreakerCooldown},
		{"LEADER_RETRY_INTERVAL", c.LeaderRetryIntervalStr, c.LeaderRetryInterval},
		{"LEADER_HEARTBEAT_INTERVAL", c.LeaderHeartbeatIntervalStr, c.LeaderHeartbeatInterval},
	}
	for _, ch := range checks {
		if _, err := time.ParseDuration(ch.raw); err != nil {
			errs = append(errs, fmt.Errorf("%s is not a valid duration: %q", ch.name, ch.raw))
			continue
		}
		if ch.val <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %q", ch.name, ch.raw))
		}
	}
	return errs
}

func validateHTTPURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %q", name, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", name, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host: %q", name, raw)
	}
	return nil
}
