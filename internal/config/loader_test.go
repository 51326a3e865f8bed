package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "logger:\n  level: info\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Driver != DefaultDBDriver || cfg.Database.DSN != DefaultDBDSN {
		t.Errorf("database = %+v, want defaults", cfg.Database)
	}
	if cfg.Database.AcquireAttempts != 5 || cfg.Database.DeadlockMaxDelay != 5*time.Second {
		t.Errorf("retry settings = %+v", cfg.Database)
	}
	if cfg.Search.FirstYear != 2016 {
		t.Errorf("FirstYear = %d, want 2016", cfg.Search.FirstYear)
	}
	task, ok := cfg.Scheduler.Tasks[TaskHistorySync]
	if !ok || !task.Enabled || task.Schedule != DefaultSyncSchedule {
		t.Errorf("history_sync task = %+v, %v", task, ok)
	}
	if _, ok := cfg.Scheduler.Tasks[TaskDBMaintenance]; !ok {
		t.Error("db_maintenance task missing")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: postgres
  dsn: postgres://file
search:
  timezone: Asia/Shanghai
sync:
  concurrency: 4
  sources:
    - name: main
      type: export
      path: /data/result.json
scheduler:
  tasks:
    db_maintenance:
      enabled: false
`)
	t.Setenv("CHATMIRROR_DATABASE_DSN", "postgres://env")
	t.Setenv("CHATMIRROR_TELEGRAM_TOKEN", "123:abc")
	t.Setenv("CHATMIRROR_TELEGRAM_ADMIN_USER_ID", "42")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Driver != "postgres" {
		t.Errorf("Driver = %q, want postgres", cfg.Database.Driver)
	}
	if cfg.Database.DSN != "postgres://env" {
		t.Errorf("DSN = %q, env should win over file", cfg.Database.DSN)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Telegram.AdminUserID != 42 {
		t.Errorf("telegram = %+v", cfg.Telegram)
	}
	if cfg.Sync.Concurrency != 4 || len(cfg.Sync.Sources) != 1 || cfg.Sync.Sources[0].Name != "main" {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	if cfg.Scheduler.Tasks[TaskDBMaintenance].Enabled {
		t.Error("db_maintenance should stay disabled")
	}
	loc, err := cfg.Search.Location()
	if err != nil || loc.String() != "Asia/Shanghai" {
		t.Errorf("Location() = %v, %v", loc, err)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown driver", "database:\n  driver: mysql\n"},
		{"bad level", "logger:\n  level: loud\n"},
		{"bad timezone", "search:\n  timezone: Mars/Olympus\n"},
		{"source without path", "sync:\n  sources:\n    - name: a\n      type: export\n"},
		{"duplicate source", "sync:\n  sources:\n    - {name: a, type: export, path: x}\n    - {name: a, type: export, path: y}\n"},
		{"token without admin", "telegram:\n  token: abc\n"},
		{"enabled task without schedule", "scheduler:\n  tasks:\n    custom:\n      enabled: true\n"},
		{"inverted deadlock delays", "database:\n  deadlock_min_delay: 2s\n  deadlock_max_delay: 1s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("Load() error = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Load() error = %v, want ErrConfiguration", err)
	}
}
