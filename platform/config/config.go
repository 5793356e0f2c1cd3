// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// RedisConfig provides the shared Redis connection settings.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// SchedulerConfig provides settings for asynq clients and workers.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// DirectoryConfig provides settings for the token and faculty directory.
type DirectoryConfig interface {
	GetPushTokenTTL() time.Duration
	GetFacultySeedFile() string
}

// PushConfig provides settings for the push gateway transport.
type PushConfig interface {
	GetPushGatewayURL() string
	GetPushGatewayKey() string
	IsPushEnabled() bool
}

// DispatchConfig provides retry and fan-out settings for notification dispatch.
type DispatchConfig interface {
	GetPushAttemptTimeout() time.Duration
	GetPushMaxRetries() int
	GetPushRetryBaseDelay() time.Duration
	GetNotificationFanoutLimit() int
}

// AppointmentConfig provides settings for the appointment lifecycle.
type AppointmentConfig interface {
	GetApprovalMaxAttempts() int
	GetReminderLead() time.Duration
}

// SweepConfig provides settings for the completion sweep.
type SweepConfig interface {
	GetCompletionSweepInterval() time.Duration
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                     string
	HTTPAddr                string
	DatabaseURL             string
	JWTAccessSecret         string
	CORSAllowAll            bool
	CORSOrigins             []string
	CORSAllowCreds          bool
	RedisURL                string
	RedisTLSInsecure        bool
	AsynqQueueName          string
	AsynqConcurrency        int
	PushGatewayURL          string
	PushGatewayKey          string
	PushTokenTTL            time.Duration
	PushAttemptTimeout      time.Duration
	PushMaxRetries          int
	PushRetryBaseDelay      time.Duration
	NotificationFanoutLimit int
	ApprovalMaxAttempts     int
	ReminderLead            time.Duration
	CompletionSweepInterval time.Duration
	FacultySeedFile         string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// DirectoryConfig implementation
func (c *Config) GetPushTokenTTL() time.Duration { return c.PushTokenTTL }
func (c *Config) GetFacultySeedFile() string     { return c.FacultySeedFile }

// PushConfig implementation
func (c *Config) GetPushGatewayURL() string { return c.PushGatewayURL }
func (c *Config) GetPushGatewayKey() string { return c.PushGatewayKey }
func (c *Config) IsPushEnabled() bool       { return c.PushGatewayURL != "" }

// DispatchConfig implementation
func (c *Config) GetPushAttemptTimeout() time.Duration { return c.PushAttemptTimeout }
func (c *Config) GetPushMaxRetries() int               { return c.PushMaxRetries }
func (c *Config) GetPushRetryBaseDelay() time.Duration { return c.PushRetryBaseDelay }
func (c *Config) GetNotificationFanoutLimit() int      { return c.NotificationFanoutLimit }

// AppointmentConfig implementation
func (c *Config) GetApprovalMaxAttempts() int    { return c.ApprovalMaxAttempts }
func (c *Config) GetReminderLead() time.Duration { return c.ReminderLead }

// SweepConfig implementation
func (c *Config) GetCompletionSweepInterval() time.Duration { return c.CompletionSweepInterval }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                     getEnv("APP_ENV", "development"),
		HTTPAddr:                getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:             getEnv("DATABASE_URL", ""),
		JWTAccessSecret:         getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:            corsAllowAll,
		CORSOrigins:             corsOrigins,
		CORSAllowCreds:          strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RedisURL:                getEnv("REDIS_URL", ""),
		RedisTLSInsecure:        strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:          getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:        mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		PushGatewayURL:          strings.TrimRight(getEnv("PUSH_GATEWAY_URL", ""), "/"),
		PushGatewayKey:          getEnv("PUSH_GATEWAY_KEY", ""),
		PushTokenTTL:            mustDuration(getEnv("PUSH_TOKEN_TTL", "1440h")),
		PushAttemptTimeout:      mustDuration(getEnv("PUSH_ATTEMPT_TIMEOUT", "5s")),
		PushMaxRetries:          mustInt(getEnv("PUSH_MAX_RETRIES", "3")),
		PushRetryBaseDelay:      mustDuration(getEnv("PUSH_RETRY_BASE_DELAY", "1s")),
		NotificationFanoutLimit: mustInt(getEnv("NOTIFICATION_FANOUT_LIMIT", "8")),
		ApprovalMaxAttempts:     mustInt(getEnv("APPROVAL_MAX_ATTEMPTS", "5")),
		ReminderLead:            mustDuration(getEnv("REMINDER_LEAD", "1h")),
		CompletionSweepInterval: mustDuration(getEnv("COMPLETION_SWEEP_INTERVAL", "15m")),
		FacultySeedFile:         getEnv("FACULTY_SEED_FILE", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.PushMaxRetries < 0 {
		return nil, fmt.Errorf("PUSH_MAX_RETRIES cannot be negative")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
