package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CHATMIRROR_DATABASE_DSN.
const EnvPrefix = "CHATMIRROR"

// Load builds the configuration from, in increasing priority:
//  1. default values
//  2. the YAML file at path, or ./config.yaml when path is empty
//  3. a .env file in the working directory
//  4. CHATMIRROR_* environment variables
//
// A missing config file or .env file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: failed to load .env file: %w", ErrConfiguration, err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: failed to read config file: %w", ErrConfiguration, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %w", ErrConfiguration, err)
	}
	applyTaskDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyTaskDefaults fills in the built-in tasks the file did not mention.
func applyTaskDefaults(cfg *Config) {
	if cfg.Scheduler.Tasks == nil {
		cfg.Scheduler.Tasks = make(map[string]TaskConfig)
	}
	if _, ok := cfg.Scheduler.Tasks[TaskHistorySync]; !ok {
		cfg.Scheduler.Tasks[TaskHistorySync] = TaskConfig{Enabled: true, Schedule: cfg.Sync.Schedule, RunOnStart: true}
	}
	if _, ok := cfg.Scheduler.Tasks[TaskDBMaintenance]; !ok {
		cfg.Scheduler.Tasks[TaskDBMaintenance] = TaskConfig{Enabled: true, Schedule: DefaultMaintenanceSchedule}
	}
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if _, err := c.Search.Location(); err != nil {
		return fmt.Errorf("%w: invalid search.timezone %q: %w", ErrConfiguration, c.Search.Timezone, err)
	}
	return nil
}
