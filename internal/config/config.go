// Package config loads the bot configuration from .env, an optional YAML
// file and the environment, in that order of increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultTimezone is the display timezone used when none is configured
const DefaultTimezone = "Asia/Tashkent"

// Config represents the configuration for the bot
type Config struct {
	TelegramToken string `yaml:"telegramToken"`
	DBType        string `yaml:"dbType"`
	DatabaseURL   string `yaml:"databaseURL"`
	AdminUserID   int64  `yaml:"adminUserId"`
	LogMode       string `yaml:"logMode"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	LockFile      string `yaml:"lockFile"`

	BackupDir     string `yaml:"backupDir"`
	BackupTimeUTC string `yaml:"backupTimeUTC"`
	BackupKeep    int    `yaml:"backupKeep"`

	DailyMistakeBlend               float64 `yaml:"dailyMistakeBlend"`
	BroadcastClaimBatchSize         int     `yaml:"broadcastClaimBatchSize"`
	BroadcastSendConcurrency        int     `yaml:"broadcastSendConcurrency"`
	BroadcastMaxAttempts            int     `yaml:"broadcastMaxAttempts"`
	BroadcastProcessingStaleSeconds int     `yaml:"broadcastProcessingStaleSeconds"`
	PageSize                        int     `yaml:"pageSize"`
	DisplayTimezone                 string  `yaml:"displayTimezone"`
	QueueDrainIntervalSeconds       int     `yaml:"queueDrainIntervalSeconds"`

	// Location is DisplayTimezone resolved by Normalize
	Location *time.Location `yaml:"-"`
}

// Default returns the configuration used for unset keys
func Default() Config {
	return Config{
		DBType:                          "sqlite",
		DatabaseURL:                     "data/deutschbot.db",
		LogMode:                         "dev",
		LockFile:                        "data/scheduler.lock",
		BackupDir:                       "backups",
		BackupTimeUTC:                   "21:30",
		BackupKeep:                      7,
		DailyMistakeBlend:               0.5,
		BroadcastClaimBatchSize:         1000,
		BroadcastSendConcurrency:        30,
		BroadcastMaxAttempts:            5,
		BroadcastProcessingStaleSeconds: 900,
		PageSize:                        15,
		DisplayTimezone:                 DefaultTimezone,
		QueueDrainIntervalSeconds:       5,
	}
}

// Load reads .env (if present), then the YAML file at path (if present),
// then environment overrides, and normalizes the result. An empty path
// means CONFIG_FILE or config.yaml.
func Load(path string) (Config, []string, error) {
	var warnings []string
	if err := godotenv.Load(); err != nil {
		warnings = append(warnings, "no .env file loaded: "+err.Error())
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path == "" {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, warnings, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, warnings, fmt.Errorf("read config %s: %w", path, err)
	}

	warnings = append(warnings, applyEnv(&cfg, os.LookupEnv)...)
	warnings = append(warnings, cfg.Normalize()...)
	return cfg, warnings, nil
}

// applyEnv overrides fields from the environment. Unparseable numbers are
// reported and ignored.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) []string {
	var warnings []string
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("ignoring %s=%q: not an integer", key, v))
				return
			}
			*dst = n
		}
	}

	str("TELEGRAM_BOT_TOKEN", &cfg.TelegramToken)
	str("DB_TYPE", &cfg.DBType)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("LOG_MODE", &cfg.LogMode)
	str("REDIS_ADDR", &cfg.RedisAddr)
	str("REDIS_PASSWORD", &cfg.RedisPassword)
	str("LOCK_FILE", &cfg.LockFile)
	str("BACKUP_DIR", &cfg.BackupDir)
	str("BACKUP_TIME_UTC", &cfg.BackupTimeUTC)
	str("DISPLAY_TIMEZONE", &cfg.DisplayTimezone)
	num("BACKUP_KEEP", &cfg.BackupKeep)
	num("BROADCAST_CLAIM_BATCH_SIZE", &cfg.BroadcastClaimBatchSize)
	num("BROADCAST_SEND_CONCURRENCY", &cfg.BroadcastSendConcurrency)
	num("BROADCAST_MAX_ATTEMPTS", &cfg.BroadcastMaxAttempts)
	num("BROADCAST_PROCESSING_STALE_SECONDS", &cfg.BroadcastProcessingStaleSeconds)
	num("PAGE_SIZE", &cfg.PageSize)
	num("QUEUE_DRAIN_INTERVAL_SECONDS", &cfg.QueueDrainIntervalSeconds)

	if v, ok := lookup("ADMIN_USER_ID"); ok && strings.TrimSpace(v) != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("ignoring ADMIN_USER_ID=%q: not an integer", v))
		} else {
			cfg.AdminUserID = id
		}
	}
	if v, ok := lookup("DAILY_MISTAKE_BLEND"); ok && strings.TrimSpace(v) != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("ignoring DAILY_MISTAKE_BLEND=%q: not a number", v))
		} else {
			cfg.DailyMistakeBlend = f
		}
	}
	return warnings
}

// Normalize clamps out-of-range values and resolves the display timezone.
// It never fails; every adjustment is returned as a warning.
func (c *Config) Normalize() []string {
	var warnings []string
	clamp := func(name string, v *int, lo, hi int) {
		switch {
		case *v < lo:
			warnings = append(warnings, fmt.Sprintf("%s=%d raised to %d", name, *v, lo))
			*v = lo
		case *v > hi:
			warnings = append(warnings, fmt.Sprintf("%s=%d lowered to %d", name, *v, hi))
			*v = hi
		}
	}

	if c.DailyMistakeBlend < 0 || c.DailyMistakeBlend > 1 {
		warnings = append(warnings, fmt.Sprintf("daily_mistake_blend=%g clamped to [0,1]", c.DailyMistakeBlend))
		c.DailyMistakeBlend = min(max(c.DailyMistakeBlend, 0), 1)
	}
	clamp("broadcast_claim_batch_size", &c.BroadcastClaimBatchSize, 1, 5000)
	clamp("broadcast_send_concurrency", &c.BroadcastSendConcurrency, 1, 100)
	clamp("broadcast_max_attempts", &c.BroadcastMaxAttempts, 1, 20)
	clamp("broadcast_processing_stale_seconds", &c.BroadcastProcessingStaleSeconds, 30, 86400)
	clamp("page_size", &c.PageSize, 5, 50)
	clamp("queue_drain_interval_seconds", &c.QueueDrainIntervalSeconds, 1, 300)
	clamp("backup_keep", &c.BackupKeep, 1, 365)

	if _, err := time.Parse("15:04", c.BackupTimeUTC); c.BackupTimeUTC != "" && err != nil {
		warnings = append(warnings, fmt.Sprintf("backup_time_utc=%q is not HH:MM, backups disabled", c.BackupTimeUTC))
		c.BackupTimeUTC = ""
	}

	c.Location = resolveLocation(c.DisplayTimezone, &warnings)
	c.DisplayTimezone = c.Location.String()

	c.DBType = strings.ToLower(strings.TrimSpace(c.DBType))
	if c.DBType == "" {
		c.DBType = "sqlite"
	}
	return warnings
}

func resolveLocation(name string, warnings *[]string) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
		*warnings = append(*warnings, fmt.Sprintf("unknown timezone %q, using %s", name, DefaultTimezone))
	}
	if loc, err := time.LoadLocation(DefaultTimezone); err == nil {
		return loc
	}
	*warnings = append(*warnings, "timezone database unavailable, using UTC")
	return time.UTC
}

// DrainInterval is QueueDrainIntervalSeconds as a duration
func (c Config) DrainInterval() time.Duration {
	return time.Duration(c.QueueDrainIntervalSeconds) * time.Second
}

// Validate reports settings the bot cannot run without
func (c Config) Validate() error {
	if c.TelegramToken == "" {
		return errors.New("config: TELEGRAM_BOT_TOKEN is required")
	}
	if c.DBType == "postgres" && c.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL is required for postgres")
	}
	return nil
}
