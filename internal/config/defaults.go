package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultLogLevel = "info"

	DefaultDBDriver           = "sqlite"
	DefaultDBDSN              = "chatmirror.db"
	DefaultDBMaxOpenConns     = 10
	DefaultDBMaxIdleConns     = 5
	DefaultDBConnMaxLifetime  = time.Hour
	DefaultDBAcquireAttempts  = 5
	DefaultDBAcquireDelay     = time.Second
	DefaultDBDeadlockMinDelay = 100 * time.Millisecond
	DefaultDBDeadlockMaxDelay = 5 * time.Second

	DefaultSearchFirstYear = 2016

	DefaultSyncSchedule    = "0 */15 * * * *"
	DefaultSyncConcurrency = 1
	DefaultSyncLockTTL     = time.Hour

	DefaultRedisPrefix = "chatmirror:"

	DefaultHTTPReadTimeout  = 10 * time.Second
	DefaultHTTPWriteTimeout = 30 * time.Second

	DefaultMaintenanceSchedule = "0 30 4 * * *"
)

// Task names understood by the scheduler.
const (
	TaskHistorySync   = "history_sync"
	TaskDBMaintenance = "db_maintenance"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", DefaultLogLevel)
	v.SetDefault("logger.json", false)

	v.SetDefault("database.driver", DefaultDBDriver)
	v.SetDefault("database.dsn", DefaultDBDSN)
	v.SetDefault("database.max_open_conns", DefaultDBMaxOpenConns)
	v.SetDefault("database.max_idle_conns", DefaultDBMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", DefaultDBConnMaxLifetime)
	v.SetDefault("database.acquire_attempts", DefaultDBAcquireAttempts)
	v.SetDefault("database.acquire_delay", DefaultDBAcquireDelay)
	v.SetDefault("database.deadlock_min_delay", DefaultDBDeadlockMinDelay)
	v.SetDefault("database.deadlock_max_delay", DefaultDBDeadlockMaxDelay)

	v.SetDefault("search.first_year", DefaultSearchFirstYear)
	v.SetDefault("search.timezone", "")

	v.SetDefault("sync.schedule", DefaultSyncSchedule)
	v.SetDefault("sync.concurrency", DefaultSyncConcurrency)
	v.SetDefault("sync.lock_ttl", DefaultSyncLockTTL)

	// Empty defaults register the keys so AutomaticEnv can override them.
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", DefaultRedisPrefix)

	v.SetDefault("http.addr", "")
	v.SetDefault("http.read_timeout", DefaultHTTPReadTimeout)
	v.SetDefault("http.write_timeout", DefaultHTTPWriteTimeout)

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_user_id", 0)
	v.SetDefault("telegram.drop_pending_updates", true)
}
