package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "REPLAYD_"

const (
	// DefaultAddr is the TCP address the playback control service listens on.
	DefaultAddr = ":43127"
	// DefaultCodec compresses rounds returned by FetchRound.
	DefaultCodec = "zstd"
	// DefaultReplayDir is where recorded replays and bundles are written.
	DefaultReplayDir = "replays"
	// DefaultCatalogPath is the sqlite database indexing the replay directory.
	DefaultCatalogPath = "replays/catalog.db"

	// DefaultOpsAddr serves health, metrics and the roll endpoint. Empty disables it.
	DefaultOpsAddr = ":43128"
	// DefaultRollLimit bounds manual rolls per DefaultRollWindow.
	DefaultRollLimit = 6
	// DefaultRollWindow is the refill period of the roll rate limiter.
	DefaultRollWindow = time.Minute

	// DefaultTurnsPerSecond is the autoplay speed.
	DefaultTurnsPerSecond = 10.0
	// DefaultTickRate is how many simulation steps per second the autoplay loop runs.
	DefaultTickRate = 60.0
	// DefaultEventRetention bounds unacknowledged notifications kept for slow watchers.
	DefaultEventRetention = 512

	// DefaultRetentionMaxMatches caps how many recorded replays are kept. Zero disables the cap.
	DefaultRetentionMaxMatches = 200
	// DefaultRetentionMaxAge removes recorded replays older than this. Zero disables the check.
	DefaultRetentionMaxAge = 14 * 24 * time.Hour
	// DefaultRetentionInterval is the sweep cadence of the retention cleaner.
	DefaultRetentionInterval = time.Hour

	// DefaultLogLevel controls verbosity.
	DefaultLogLevel = "info"
	// DefaultLogFormat selects the logrus formatter.
	DefaultLogFormat = "json"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Config captures all runtime tunables of the replay daemon.
type Config struct {
	Address       string          `yaml:"address" env:"ADDR"`
	ReplayPath    string          `yaml:"replay_path" env:"REPLAY_PATH"`
	LiveURL       string          `yaml:"live_url" env:"LIVE_URL"`
	ReplayDir     string          `yaml:"replay_dir" env:"REPLAY_DIR"`
	CatalogPath   string          `yaml:"catalog_path" env:"CATALOG_PATH"`
	Codec         string          `yaml:"codec" env:"CODEC"`
	// RecordBundles also writes every followed game as a bundle directory.
	RecordBundles bool            `yaml:"record_bundles" env:"RECORD_BUNDLES"`
	// ControlSecret, when set, must accompany every control RPC.
	ControlSecret string          `yaml:"control_secret" env:"CONTROL_SECRET"`
	Ops           OpsConfig       `yaml:"ops" envPrefix:"OPS_"`
	Playback      PlaybackConfig  `yaml:"playback" envPrefix:"PLAYBACK_"`
	Retention     RetentionConfig `yaml:"retention" envPrefix:"RETENTION_"`
	Logging       LoggingConfig   `yaml:"logging" envPrefix:"LOG_"`
}

// OpsConfig controls the operational HTTP listener.
type OpsConfig struct {
	Address    string        `yaml:"address" env:"ADDR"`
	AdminToken string        `yaml:"admin_token" env:"ADMIN_TOKEN"`
	RollLimit  int           `yaml:"roll_limit" env:"ROLL_LIMIT"`
	RollWindow time.Duration `yaml:"roll_window" env:"ROLL_WINDOW"`
}

// PlaybackConfig controls the autoplay loop and notification fan-out.
type PlaybackConfig struct {
	Autoplay       bool    `yaml:"autoplay" env:"AUTOPLAY"`
	TurnsPerSecond float64 `yaml:"turns_per_second" env:"TURNS_PER_SECOND"`
	TickRate       float64 `yaml:"tick_rate" env:"TICK_RATE"`
	EventRetention int     `yaml:"event_retention" env:"EVENT_RETENTION"`
}

// RetentionConfig controls how long recorded replays stay on disk.
type RetentionConfig struct {
	MaxMatches int           `yaml:"max_matches" env:"MAX_MATCHES"`
	MaxAge     time.Duration `yaml:"max_age" env:"MAX_AGE"`
	Interval   time.Duration `yaml:"interval" env:"INTERVAL"`
}

// LoggingConfig captures structured logging configuration options. An empty Path logs to
// stdout only.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"LEVEL"`
	Format     string `yaml:"format" env:"FORMAT"`
	Path       string `yaml:"path" env:"PATH"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS"`
	Compress   bool   `yaml:"compress" env:"COMPRESS"`
}

// Default returns the configuration used when neither a file nor the environment override it.
func Default() *Config {
	return &Config{
		Address:     DefaultAddr,
		ReplayDir:   DefaultReplayDir,
		CatalogPath: DefaultCatalogPath,
		Codec:       DefaultCodec,
		Ops: OpsConfig{
			Address:    DefaultOpsAddr,
			RollLimit:  DefaultRollLimit,
			RollWindow: DefaultRollWindow,
		},
		Playback: PlaybackConfig{
			TurnsPerSecond: DefaultTurnsPerSecond,
			TickRate:       DefaultTickRate,
			EventRetention: DefaultEventRetention,
		},
		Retention: RetentionConfig{
			MaxMatches: DefaultRetentionMaxMatches,
			MaxAge:     DefaultRetentionMaxAge,
			Interval:   DefaultRetentionInterval,
		},
		Logging: LoggingConfig{
			Level:      DefaultLogLevel,
			Format:     DefaultLogFormat,
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}
}

// Load layers an optional YAML file and then REPLAYD_* environment variables over the
// defaults, returning every invalid setting in one error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every setting outside its allowed range.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Address) == "" {
		problems = append(problems, "address must not be empty")
	}
	if c.ReplayPath != "" && c.LiveURL != "" {
		problems = append(problems, "replay_path and live_url are mutually exclusive")
	}
	if c.Ops.Address != "" && c.Ops.Address == c.Address {
		problems = append(problems, "ops.address must differ from address")
	}
	if c.Ops.RollLimit < 0 {
		problems = append(problems, fmt.Sprintf("ops.roll_limit must be non-negative, got %d", c.Ops.RollLimit))
	}
	if c.Ops.RollWindow < 0 {
		problems = append(problems, fmt.Sprintf("ops.roll_window must be non-negative, got %v", c.Ops.RollWindow))
	}
	switch c.Codec {
	case "gzip", "zstd", "snappy":
	default:
		problems = append(problems, fmt.Sprintf("codec must be gzip, zstd or snappy, got %q", c.Codec))
	}
	if c.Playback.TurnsPerSecond <= 0 {
		problems = append(problems, fmt.Sprintf("playback.turns_per_second must be positive, got %v", c.Playback.TurnsPerSecond))
	}
	if c.Playback.TickRate <= 0 {
		problems = append(problems, fmt.Sprintf("playback.tick_rate must be positive, got %v", c.Playback.TickRate))
	}
	if c.Playback.EventRetention <= 0 {
		problems = append(problems, fmt.Sprintf("playback.event_retention must be positive, got %d", c.Playback.EventRetention))
	}
	if c.Retention.MaxMatches < 0 {
		problems = append(problems, fmt.Sprintf("retention.max_matches must be non-negative, got %d", c.Retention.MaxMatches))
	}
	if c.Retention.MaxAge < 0 {
		problems = append(problems, fmt.Sprintf("retention.max_age must be non-negative, got %v", c.Retention.MaxAge))
	}
	if c.Retention.Interval <= 0 {
		problems = append(problems, fmt.Sprintf("retention.interval must be positive, got %v", c.Retention.Interval))
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("logging.format must be json or text, got %q", c.Logging.Format))
	}
	if c.Logging.MaxSizeMB <= 0 {
		problems = append(problems, fmt.Sprintf("logging.max_size_mb must be positive, got %d", c.Logging.MaxSizeMB))
	}
	if c.Logging.MaxBackups < 0 {
		problems = append(problems, fmt.Sprintf("logging.max_backups must be non-negative, got %d", c.Logging.MaxBackups))
	}
	if c.Logging.MaxAgeDays < 0 {
		problems = append(problems, fmt.Sprintf("logging.max_age_days must be non-negative, got %d", c.Logging.MaxAgeDays))
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
