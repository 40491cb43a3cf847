package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	// UserConfigDir is the directory for user-level config, relative to home
	UserConfigDir = ".kpi"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
	// EnvFile is read from the working directory when present
	EnvFile = ".env"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger logrus.FieldLogger
	// HomeDir overrides the user's home directory
	HomeDir string
	// EnvFile overrides the .env path
	EnvFile string
}

// NewLoader creates a new configuration loader
func NewLoader(logger logrus.FieldLogger) *Loader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Loader{logger: logger, EnvFile: EnvFile}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.kpi/config.yaml)
// 3. Explicit config file (--config), which must exist when given
// 4. .env file
// 5. KPI_* environment variables
func (l *Loader) Load(explicitPath string) (*Config, error) {
	// Start with defaults
	config := DefaultConfig()

	// Load user config
	if userConfigPath := l.userConfigPath(); userConfigPath != "" {
		if err := mergeFile(config, userConfigPath); err == nil {
			l.logger.WithField("path", userConfigPath).Debug("Loaded user config")
		} else if !errors.Is(err, os.ErrNotExist) {
			l.logger.WithField("path", userConfigPath).WithError(err).Warn("Failed to load user config")
		}
	}

	if explicitPath != "" {
		if err := mergeFile(config, explicitPath); err != nil {
			return nil, err
		}
		l.logger.WithField("path", explicitPath).Debug("Loaded config file")
	}

	dotenv := map[string]string{}
	if l.EnvFile != "" {
		vars, err := godotenv.Read(l.EnvFile)
		if err == nil {
			dotenv = vars
			l.logger.WithField("path", l.EnvFile).Debug("Loaded env file")
		} else if !errors.Is(err, os.ErrNotExist) {
			l.logger.WithField("path", l.EnvFile).WithError(err).Warn("Failed to load env file")
		}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := applyEnv(config, lookup); err != nil {
		return nil, err
	}

	// Validate final config
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist
func (l *Loader) EnsureUserConfig() (string, error) {
	userConfigPath := l.userConfigPath()
	if userConfigPath == "" {
		return "", fmt.Errorf("failed to locate home directory")
	}

	// Check if it already exists
	if _, err := os.Stat(userConfigPath); err == nil {
		return userConfigPath, nil
	}

	if err := DefaultConfig().SaveToFile(userConfigPath); err != nil {
		return "", err
	}

	l.logger.WithField("path", userConfigPath).Info("Created default user config")
	return userConfigPath, nil
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	home := l.HomeDir
	if home == "" {
		var err error
		home, err = os.UserHomeDir()
		if err != nil {
			return ""
		}
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// mergeFile overlays the YAML file at path onto config.
func mergeFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := config.MergeYAML(data); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(c *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = b
		return nil
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("KPI_DB_DRIVER", &c.Database.Driver)
	str("KPI_DB_PATH", &c.Database.Path)
	str("KPI_DB_DSN", &c.Database.DSN)
	str("KPI_SMTP_HOST", &c.Mail.Host)
	str("KPI_SMTP_USER", &c.Mail.Username)
	str("KPI_SMTP_PASS", &c.Mail.Password)
	str("KPI_SMTP_FROM_EMAIL", &c.Mail.FromEmail)
	str("KPI_SMTP_FROM_NAME", &c.Mail.FromName)
	str("KPI_LOG_LEVEL", &c.Log.Level)
	str("KPI_LOG_FORMAT", &c.Log.Format)
	str("KPI_METRICS_ADDR", &c.Metrics.Addr)
	str("KPI_BASE_URL", &c.BaseURL)
	str("KPI_UPLOAD_DIR", &c.UploadDir)

	if err := boolean("KPI_SMTP_ENABLED", &c.Mail.Enabled); err != nil {
		return err
	}
	if err := boolean("KPI_SMTP_SSL", &c.Mail.SSL); err != nil {
		return err
	}
	if err := integer("KPI_SMTP_PORT", &c.Mail.Port); err != nil {
		return err
	}
	if err := integer("KPI_REMINDER_DUE_DAYS", &c.Reminders.DueDays); err != nil {
		return err
	}
	if v, ok := lookup("KPI_REMINDER_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid KPI_REMINDER_INTERVAL: %w", err)
		}
		c.Reminders.Interval = d
	}
	return nil
}
