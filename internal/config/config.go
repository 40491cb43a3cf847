// Package config provides configuration loading and management for the KPI
// task system.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Mail      MailConfig      `yaml:"mail"`
	Reminders RemindersConfig `yaml:"reminders"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	// BaseURL prefixes links in notifications and emails
	BaseURL string `yaml:"base_url"`
	// UploadDir holds attachment files removed on hard delete
	UploadDir string `yaml:"upload_dir"`
}

// DatabaseConfig selects the store
type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "pgx"
	Driver string `yaml:"driver"`
	// Path is the sqlite file (empty = ~/.kpi/kpi.db)
	Path string `yaml:"path"`
	// DSN is the PostgreSQL connection string for the pgx driver
	DSN string `yaml:"dsn"`
}

// MailConfig configures outbound SMTP
type MailConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	SSL       bool   `yaml:"ssl"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

// RemindersConfig configures the due-soon sweep
type RemindersConfig struct {
	// DueDays is how many days ahead of today a due date triggers a reminder
	DueDays int `yaml:"due_days"`
	// Interval between sweeps; one also runs at start
	Interval time.Duration `yaml:"interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	// Addr is the listen address of /metrics in serve mode (empty = disabled)
	Addr string `yaml:"addr"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
		},
		Mail: MailConfig{
			Enabled:  false,
			Host:     "smtp.office365.com",
			Port:     587,
			FromName: "KPI Team",
		},
		Reminders: RemindersConfig{
			DueDays:  2,
			Interval: time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		BaseURL: "http://localhost:3000",
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
	case "pgx", "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %s", c.Database.Driver)
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or pgx, got %q", c.Database.Driver)
	}
	if c.Mail.Enabled {
		if c.Mail.Host == "" {
			return fmt.Errorf("mail.host is required when mail is enabled")
		}
		if c.Mail.Port <= 0 || c.Mail.Port > 65535 {
			return fmt.Errorf("mail.port must be between 1 and 65535")
		}
		if c.Mail.FromEmail == "" && c.Mail.Username == "" {
			return fmt.Errorf("mail.from_email or mail.username is required when mail is enabled")
		}
	}
	if c.Reminders.DueDays < 0 {
		return fmt.Errorf("reminders.due_days must not be negative")
	}
	if c.Reminders.Interval < time.Minute {
		return fmt.Errorf("reminders.interval must be at least 1m")
	}
	return nil
}

// Sender returns the address emails are sent from.
func (m MailConfig) Sender() string {
	if m.FromEmail != "" {
		return m.FromEmail
	}
	return m.Username
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Mail credentials may be in here
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeYAML overlays a YAML document onto c. Keys present in the document
// replace the current value, including false, zero and empty values; keys it
// omits keep theirs. On a parse error c is left unchanged.
func (c *Config) MergeYAML(data []byte) error {
	next := *c
	if err := yaml.Unmarshal(data, &next); err != nil {
		return err
	}
	*c = next
	return nil
}
