// Package config loads chatmirror configuration from defaults, an optional
// YAML file, a .env file and CHATMIRROR_* environment variables.
package config

import (
	"errors"
	"time"
)

// ErrConfiguration wraps every loading or validation failure.
var ErrConfiguration = errors.New("configuration error")

// Config is the complete application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Search    SearchConfig    `mapstructure:"search"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Redis     RedisConfig     `mapstructure:"redis"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig selects the storage backend and tunes its pool and retry
// behaviour.
type DatabaseConfig struct {
	Driver           string        `mapstructure:"driver"             validate:"required,oneof=sqlite postgres"`
	DSN              string        `mapstructure:"dsn"                validate:"required"`
	MaxOpenConns     int           `mapstructure:"max_open_conns"     validate:"min=0"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"     validate:"min=0"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"  validate:"min=0"`
	AcquireAttempts  int           `mapstructure:"acquire_attempts"   validate:"min=1"`
	AcquireDelay     time.Duration `mapstructure:"acquire_delay"      validate:"min=0"`
	DeadlockMinDelay time.Duration `mapstructure:"deadlock_min_delay" validate:"min=0"`
	DeadlockMaxDelay time.Duration `mapstructure:"deadlock_max_delay" validate:"gtefield=DeadlockMinDelay"`
}

type SearchConfig struct {
	// FirstYear is the earliest year a search walks back to.
	FirstYear int `mapstructure:"first_year" validate:"min=1970,max=9999"`
	// Timezone names the IANA zone year boundaries are computed in. Empty
	// means the process local zone.
	Timezone string `mapstructure:"timezone"`
}

type SyncConfig struct {
	// Schedule is the cron expression of the periodic history_sync task
	// when scheduler.tasks does not override it.
	Schedule    string         `mapstructure:"schedule"`
	Concurrency int            `mapstructure:"concurrency" validate:"min=0"`
	LockTTL     time.Duration  `mapstructure:"lock_ttl"    validate:"min=0"`
	Sources     []SourceConfig `mapstructure:"sources"     validate:"unique=Name,dive"`
}

// SourceConfig describes one chat to mirror.
type SourceConfig struct {
	Name string `mapstructure:"name" validate:"required"`
	Type string `mapstructure:"type" validate:"required,oneof=export"`
	Path string `mapstructure:"path" validate:"required"`
}

// RedisConfig enables the distributed sync lock when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"     validate:"min=0"`
	Prefix   string `mapstructure:"prefix"`
}

// HTTPConfig enables the JSON search API when Addr is set.
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"  validate:"min=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=0"`
}

// TelegramConfig enables the search bot when Token is set.
type TelegramConfig struct {
	Token              string `mapstructure:"token"`
	AdminUserID        int64  `mapstructure:"admin_user_id"        validate:"required_with=Token"`
	DropPendingUpdates bool   `mapstructure:"drop_pending_updates"`
}

type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

// TaskConfig toggles and schedules one background task. RunOnStart also
// runs it once as soon as the scheduler starts.
type TaskConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Schedule   string `mapstructure:"schedule"     validate:"required_if=Enabled true"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// Location returns the zone year boundaries are computed in.
func (c SearchConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}
