// Package config provides server configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// Authentication modes for BEAN_AUTH_MODE.
const (
	AuthModeAllowAll = "allow-all"
	AuthModeStatic   = "static"
)

// Config holds beanserver configuration.
type Config struct {
	// Protocol server
	ListenAddr    string        `envconfig:"BEAN_LISTEN_ADDR" default:":4201"`
	AdvertiseAddr string        `envconfig:"BEAN_ADVERTISE_ADDR"`
	Workers       int           `envconfig:"BEAN_WORKERS" default:"16"`
	ReadTimeout   time.Duration `envconfig:"BEAN_READ_TIMEOUT" default:"30s"`
	WriteTimeout  time.Duration `envconfig:"BEAN_WRITE_TIMEOUT" default:"30s"`

	// Deployments
	ManifestFile string `envconfig:"BEAN_MANIFEST_FILE"`

	// Authentication: allow-all or static (BEAN_AUTH_USERS="user:bcrypt-hash,...")
	AuthMode  string `envconfig:"BEAN_AUTH_MODE" default:"allow-all"`
	AuthUsers string `envconfig:"BEAN_AUTH_USERS"`

	// COMMS: deployment change events are published when COMMS_URL is set.
	COMMSURL               string `envconfig:"COMMS_URL"`
	COMMSName              string `envconfig:"SERVICE_NAME" default:"beanserver"`
	DeploymentEventSubject string `envconfig:"DEPLOYMENT_EVENT_SUBJECT"`

	// Database (query and postgres sequence key generators)
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// Embedded sequence store for bolt-backed key generators
	KeygenBoltPath string `envconfig:"KEYGEN_BOLT_PATH" default:"data/keygen.db"`

	// HTTP admin and health endpoints
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ValidateForServe checks required config when running the bean server.
func (c *Config) ValidateForServe() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("%s - BEAN_LISTEN_ADDR is required for serve", logPrefix)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%s - BEAN_WORKERS must be positive", logPrefix)
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		return fmt.Errorf("%s - BEAN_READ_TIMEOUT and BEAN_WRITE_TIMEOUT must be positive", logPrefix)
	}
	switch c.AuthMode {
	case AuthModeAllowAll:
	case AuthModeStatic:
		if c.AuthUsers == "" {
			return fmt.Errorf("%s - BEAN_AUTH_USERS is required when BEAN_AUTH_MODE=static", logPrefix)
		}
	default:
		return fmt.Errorf("%s - BEAN_AUTH_MODE must be %q or %q, got %q", logPrefix, AuthModeAllowAll, AuthModeStatic, c.AuthMode)
	}
	if c.RunMigrations && c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required when RUN_MIGRATIONS=true", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, ensure-db).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}

// Advertise returns the protocol address handed to remote clients.
func (c *Config) Advertise() string {
	if c.AdvertiseAddr != "" {
		return c.AdvertiseAddr
	}
	return c.ListenAddr
}
