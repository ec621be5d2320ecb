// Package daemon manages the Life System daemon lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // timezone names resolve on hosts without zoneinfo

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sololeveling/lifesystem/internal/app/engagement"
	"github.com/sololeveling/lifesystem/internal/domain"
	"github.com/sololeveling/lifesystem/internal/infra/scheduler"
	"github.com/sololeveling/lifesystem/internal/infra/store"
)

// Config holds all daemon configuration.
type Config struct {
	API           APIConfig           `toml:"api"`
	Database      DatabaseConfig      `toml:"database"`
	Quests        QuestsConfig        `toml:"quests"`
	Scheduler     SchedulerConfig     `toml:"scheduler"`
	Notifications NotificationsConfig `toml:"notifications"`
	Catalog       CatalogConfig       `toml:"catalog"`
	Logging       LoggingConfig       `toml:"logging"`
	Telemetry     TelemetryConfig     `toml:"telemetry"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	Driver string `toml:"driver"` // sqlite | pgx
	DSN    string `toml:"dsn"`
	Dir    string `toml:"dir"`
}

// QuestsConfig tunes quest generation.
type QuestsConfig struct {
	DailyCount          int     `toml:"daily_count"`
	WeeklyCount         int     `toml:"weekly_count"`
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	BackfillPoolSize    int     `toml:"backfill_pool_size"`
	Retention           string  `toml:"retention"`
	DailyTTL            string  `toml:"daily_ttl"`
	WeeklyTTL           string  `toml:"weekly_ttl"`
	Timezone            string  `toml:"timezone"`
}

// SchedulerConfig controls the daily and weekly sweeps.
type SchedulerConfig struct {
	Enabled     bool   `toml:"enabled"`
	DailyAt     string `toml:"daily_at"`   // "HH:MM"
	WeeklyDay   string `toml:"weekly_day"` // "monday"
	WeeklyAt    string `toml:"weekly_at"`
	UserTimeout string `toml:"user_timeout"`
	Concurrency int    `toml:"concurrency"`
	MaxRetries  int    `toml:"max_retries"`
	RetryDelay  string `toml:"retry_delay"`
}

// NotificationsConfig is the delivery policy.
type NotificationsConfig struct {
	MaxPerDay  int    `toml:"max_per_day"`
	TTL        string `toml:"ttl"`
	QuietStart string `toml:"quiet_start"`
	QuietEnd   string `toml:"quiet_end"`
}

// CatalogConfig locates the quest template seed file.
type CatalogConfig struct {
	SeedFile  string `toml:"seed_file"` // empty uses the built-in catalog
	Watch     bool   `toml:"watch"`
	CacheSize int    `toml:"cache_size"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // json | console
}

// TelemetryConfig controls metrics exposure.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	home := Home()
	q := engagement.DefaultQuestConfig()
	n := domain.DefaultNotificationPolicy()
	return Config{
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 7770,
		},
		Database: DatabaseConfig{
			Driver: store.DriverSQLite,
			Dir:    home,
		},
		Quests: QuestsConfig{
			DailyCount:          q.DailyCount,
			WeeklyCount:         q.WeeklyCount,
			SimilarityThreshold: q.SimilarityThreshold,
			BackfillPoolSize:    q.BackfillPoolSize,
			Retention:           q.Retention.String(),
			DailyTTL:            q.DailyTTL.String(),
			WeeklyTTL:           q.WeeklyTTL.String(),
			Timezone:            "UTC",
		},
		Scheduler: SchedulerConfig{
			Enabled:     true,
			DailyAt:     "00:05",
			WeeklyDay:   "monday",
			WeeklyAt:    "00:10",
			UserTimeout: q.UserTimeout.String(),
			Concurrency: q.Concurrency,
			MaxRetries:  scheduler.DefaultRetryConfig().MaxRetries,
			RetryDelay:  scheduler.DefaultRetryConfig().BaseDelay.String(),
		},
		Notifications: NotificationsConfig{
			MaxPerDay: n.MaxPerDay,
			TTL:       n.TTL.String(),
		},
		Catalog: CatalogConfig{
			CacheSize: engagement.DefaultCatalogCacheSize,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig reads config from $LIFESYSTEM_HOME/config.toml, falling back
// to defaults when the file does not exist.
func LoadConfig() (Config, error) {
	return LoadConfigFrom(ConfigPath())
}

// LoadConfigFrom reads config from path over the defaults.
func LoadConfigFrom(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // No config file yet, use defaults
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SaveConfig writes the config to $LIFESYSTEM_HOME/config.toml.
func SaveConfig(cfg Config) error {
	return SaveConfigTo(ConfigPath(), cfg)
}

// SaveConfigTo writes the config to path.
func SaveConfigTo(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs error
	if _, err := c.Engagement(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if _, _, err := c.Schedules(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if _, err := c.Retry(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("api.port %d out of range", c.API.Port))
	}
	switch c.Database.Driver {
	case "", store.DriverSQLite, store.DriverPostgres, "postgres":
	default:
		errs = multierr.Append(errs, fmt.Errorf("database.driver %q: want sqlite or pgx", c.Database.Driver))
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil && c.Logging.Level != "" {
		errs = multierr.Append(errs, fmt.Errorf("logging.level: %w", err))
	}
	return errs
}

// Engagement converts the config into engine settings.
func (c Config) Engagement() (engagement.Config, error) {
	out := engagement.DefaultConfig()
	q := &out.Quests
	var errs error

	loc, err := time.LoadLocation(c.Quests.Timezone)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("quests.timezone: %w", err))
	} else {
		q.Location = loc
	}
	if c.Quests.DailyCount > 0 {
		q.DailyCount = c.Quests.DailyCount
	}
	if c.Quests.WeeklyCount > 0 {
		q.WeeklyCount = c.Quests.WeeklyCount
	}
	if t := c.Quests.SimilarityThreshold; t != 0 {
		if t < 0 || t > 1 {
			errs = multierr.Append(errs, fmt.Errorf("quests.similarity_threshold %v not in (0, 1]", t))
		} else {
			q.SimilarityThreshold = t
		}
	}
	if c.Quests.BackfillPoolSize > 0 {
		q.BackfillPoolSize = c.Quests.BackfillPoolSize
	}
	if c.Scheduler.Concurrency > 0 {
		q.Concurrency = c.Scheduler.Concurrency
	}

	for _, d := range []struct {
		key string
		in  string
		out *time.Duration
	}{
		{"quests.retention", c.Quests.Retention, &q.Retention},
		{"quests.daily_ttl", c.Quests.DailyTTL, &q.DailyTTL},
		{"quests.weekly_ttl", c.Quests.WeeklyTTL, &q.WeeklyTTL},
		{"scheduler.user_timeout", c.Scheduler.UserTimeout, &q.UserTimeout},
		{"notifications.ttl", c.Notifications.TTL, &out.Notifications.TTL},
	} {
		if err := parseDuration(d.key, d.in, d.out); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.Notifications.MaxPerDay > 0 {
		out.Notifications.MaxPerDay = c.Notifications.MaxPerDay
	}
	for key, v := range map[string]string{
		"notifications.quiet_start": c.Notifications.QuietStart,
		"notifications.quiet_end":   c.Notifications.QuietEnd,
	} {
		if v == "" {
			continue
		}
		if _, _, err := scheduler.ParseClock(v); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	out.Notifications.QuietStart = c.Notifications.QuietStart
	out.Notifications.QuietEnd = c.Notifications.QuietEnd

	if c.Catalog.CacheSize > 0 {
		out.CatalogCacheSize = c.Catalog.CacheSize
	}
	return out, errs
}

// Schedules returns the daily and weekly sweep schedules.
func (c Config) Schedules() (daily scheduler.Daily, weekly scheduler.Weekly, err error) {
	loc, lerr := time.LoadLocation(c.Quests.Timezone)
	if lerr != nil {
		loc = time.UTC
	}

	h, m, perr := scheduler.ParseClock(c.Scheduler.DailyAt)
	if perr != nil {
		err = multierr.Append(err, fmt.Errorf("scheduler.daily_at: %w", perr))
	}
	daily = scheduler.Daily{Hour: h, Minute: m, Location: loc}

	day, derr := scheduler.ParseWeekday(c.Scheduler.WeeklyDay)
	if derr != nil {
		err = multierr.Append(err, fmt.Errorf("scheduler.weekly_day: %w", derr))
	}
	wh, wm, werr := scheduler.ParseClock(c.Scheduler.WeeklyAt)
	if werr != nil {
		err = multierr.Append(err, fmt.Errorf("scheduler.weekly_at: %w", werr))
	}
	weekly = scheduler.Weekly{Day: day, Hour: wh, Minute: wm, Location: loc}
	return daily, weekly, err
}

// Retry returns the sweep retry policy.
func (c Config) Retry() (scheduler.RetryConfig, error) {
	r := scheduler.DefaultRetryConfig()
	if c.Scheduler.MaxRetries >= 0 {
		r.MaxRetries = c.Scheduler.MaxRetries
	}
	err := parseDuration("scheduler.retry_delay", c.Scheduler.RetryDelay, &r.BaseDelay)
	return r, err
}

// Store returns the database settings.
func (c Config) Store() store.Config {
	dir := c.Database.Dir
	if dir == "" {
		dir = Home()
	}
	return store.Config{Driver: c.Database.Driver, DSN: c.Database.DSN, Dir: dir}
}

// Addr returns the API listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// NewLogger builds the process logger from the logging section.
func NewLogger(cfg LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if strings.EqualFold(cfg.Format, "console") {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		lvl, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("logging.level: %w", err)
		}
		zc.Level = lvl
	}
	return zc.Build()
}

// parseDuration parses s into out, leaving out unchanged when s is empty.
func parseDuration(key, s string, out *time.Duration) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s: must be positive", key)
	}
	*out = d
	return nil
}

// Home returns the Life System data directory.
func Home() string {
	if env := os.Getenv("LIFESYSTEM_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".lifesystem")
}

// ConfigPath returns the default config file location.
func ConfigPath() string {
	return filepath.Join(Home(), "config.toml")
}
