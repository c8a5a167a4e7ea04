package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

var envVars = []string{
	"BEAN_LISTEN_ADDR", "BEAN_ADVERTISE_ADDR", "BEAN_WORKERS", "BEAN_READ_TIMEOUT", "BEAN_WRITE_TIMEOUT",
	"BEAN_MANIFEST_FILE", "BEAN_AUTH_MODE", "BEAN_AUTH_USERS",
	"COMMS_URL", "SERVICE_NAME", "DEPLOYMENT_EVENT_SUBJECT",
	"DATABASE_URL", "RUN_MIGRATIONS", "MIGRATION_PATH", "KEYGEN_BOLT_PATH",
	"HTTP_PORT", "HEALTH_CHECK_TIMEOUT", "LOG_LEVEL",
}

func clearEnv() {
	for _, env := range envVars {
		os.Unsetenv(env)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.ListenAddr != ":4201" {
		t.Errorf("config:config_test - ListenAddr = %q, want %q", cfg.ListenAddr, ":4201")
	}
	if cfg.Workers != 16 {
		t.Errorf("config:config_test - Workers = %d, want 16", cfg.Workers)
	}
	if cfg.ReadTimeout != 30*time.Second || cfg.WriteTimeout != 30*time.Second {
		t.Errorf("config:config_test - timeouts = %v/%v, want 30s", cfg.ReadTimeout, cfg.WriteTimeout)
	}
	if cfg.AuthMode != AuthModeAllowAll {
		t.Errorf("config:config_test - AuthMode = %q, want %q", cfg.AuthMode, AuthModeAllowAll)
	}
	if cfg.COMMSURL != "" {
		t.Errorf("config:config_test - COMMSURL = %q, want empty", cfg.COMMSURL)
	}
	if cfg.COMMSName != "beanserver" {
		t.Errorf("config:config_test - COMMSName = %q, want %q", cfg.COMMSName, "beanserver")
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("config:config_test - DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.RunMigrations {
		t.Error("config:config_test - expected RunMigrations=false by default")
	}
	if cfg.MigrationPath != "migrations" {
		t.Errorf("config:config_test - MigrationPath = %q, want %q", cfg.MigrationPath, "migrations")
	}
	if cfg.KeygenBoltPath != "data/keygen.db" {
		t.Errorf("config:config_test - KeygenBoltPath = %q", cfg.KeygenBoltPath)
	}
	if cfg.HTTPPort != 8080 {
		t.Errorf("config:config_test - HTTPPort = %d, want 8080", cfg.HTTPPort)
	}
	if cfg.HealthCheckTimeout != 5*time.Second {
		t.Errorf("config:config_test - HealthCheckTimeout = %v, want 5s", cfg.HealthCheckTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.Advertise() != ":4201" {
		t.Errorf("config:config_test - Advertise = %q, want listen addr", cfg.Advertise())
	}
	if err := cfg.ValidateForServe(); err != nil {
		t.Errorf("config:config_test - defaults fail ValidateForServe: %v", err)
	}
	if err := cfg.ValidateForDB(); err == nil {
		t.Error("config:config_test - ValidateForDB accepted empty DATABASE_URL")
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearEnv()
	overrides := map[string]string{
		"BEAN_LISTEN_ADDR":         "127.0.0.1:5000",
		"BEAN_ADVERTISE_ADDR":      "beans.internal:5000",
		"BEAN_WORKERS":             "4",
		"BEAN_READ_TIMEOUT":        "2s",
		"BEAN_MANIFEST_FILE":       "/etc/beans/deployments.yaml",
		"BEAN_AUTH_MODE":           "static",
		"BEAN_AUTH_USERS":          "ops:$2a$04$abc",
		"COMMS_URL":                "nats://custom:4222",
		"DEPLOYMENT_EVENT_SUBJECT": "beans.changed",
		"DATABASE_URL":             "postgres://test@localhost/test",
		"RUN_MIGRATIONS":           "true",
		"KEYGEN_BOLT_PATH":         "/var/lib/beans/keys.db",
		"HTTP_PORT":                "9090",
		"LOG_LEVEL":                "debug",
	}
	for key, val := range overrides {
		os.Setenv(key, val)
	}
	defer clearEnv()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.ListenAddr != "127.0.0.1:5000" || cfg.Advertise() != "beans.internal:5000" {
		t.Errorf("config:config_test - addrs = %q/%q", cfg.ListenAddr, cfg.Advertise())
	}
	if cfg.Workers != 4 || cfg.ReadTimeout != 2*time.Second {
		t.Errorf("config:config_test - workers/read timeout = %d/%v", cfg.Workers, cfg.ReadTimeout)
	}
	if cfg.ManifestFile != "/etc/beans/deployments.yaml" {
		t.Errorf("config:config_test - ManifestFile = %q", cfg.ManifestFile)
	}
	if cfg.AuthMode != AuthModeStatic || cfg.AuthUsers != "ops:$2a$04$abc" {
		t.Errorf("config:config_test - auth = %q/%q", cfg.AuthMode, cfg.AuthUsers)
	}
	if cfg.COMMSURL != "nats://custom:4222" || cfg.DeploymentEventSubject != "beans.changed" {
		t.Errorf("config:config_test - comms = %q/%q", cfg.COMMSURL, cfg.DeploymentEventSubject)
	}
	if !cfg.RunMigrations || cfg.DatabaseURL != "postgres://test@localhost/test" {
		t.Errorf("config:config_test - db = %v/%q", cfg.RunMigrations, cfg.DatabaseURL)
	}
	if cfg.KeygenBoltPath != "/var/lib/beans/keys.db" || cfg.HTTPPort != 9090 || cfg.LogLevel != "debug" {
		t.Errorf("config:config_test - misc = %q/%d/%q", cfg.KeygenBoltPath, cfg.HTTPPort, cfg.LogLevel)
	}
	if err := cfg.ValidateForServe(); err != nil {
		t.Errorf("config:config_test - ValidateForServe: %v", err)
	}
}

func TestValidateForServe(t *testing.T) {
	base := func() Config {
		return Config{
			ListenAddr: ":4201", Workers: 1, ReadTimeout: time.Second, WriteTimeout: time.Second,
			AuthMode: AuthModeAllowAll, HealthCheckTimeout: time.Second,
		}
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no listen addr", func(c *Config) { c.ListenAddr = "" }, "BEAN_LISTEN_ADDR"},
		{"zero workers", func(c *Config) { c.Workers = 0 }, "BEAN_WORKERS"},
		{"zero write timeout", func(c *Config) { c.WriteTimeout = 0 }, "BEAN_WRITE_TIMEOUT"},
		{"static without users", func(c *Config) { c.AuthMode = AuthModeStatic }, "BEAN_AUTH_USERS"},
		{"unknown auth mode", func(c *Config) { c.AuthMode = "ldap" }, "BEAN_AUTH_MODE"},
		{"migrations without db", func(c *Config) { c.RunMigrations = true }, "DATABASE_URL"},
		{"zero health timeout", func(c *Config) { c.HealthCheckTimeout = 0 }, "HEALTH_CHECK_TIMEOUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.ValidateForServe()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("config:config_test - unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("config:config_test - err = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_LogLevels(t *testing.T) {
	clearEnv()
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, level := range validLevels {
		os.Setenv("LOG_LEVEL", level)
		cfg, err := LoadConfig()
		os.Unsetenv("LOG_LEVEL")

		if err != nil {
			t.Fatalf("config:config_test - unexpected error for level %q: %v", level, err)
		}
		if cfg.LogLevel != level {
			t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, level)
		}
	}
}
