// Package config loads pipeline settings from the environment, with an
// optional .env file for local runs. Everything is read once here and
// handed around as an explicit struct; no other package touches the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"

	"kalshidune/internal/dune"
	"kalshidune/internal/kalshi"
	"kalshidune/internal/mirror"
)

// Config carries every tunable of the pipeline.
type Config struct {
	Kalshi KalshiConfig
	Dune   DuneConfig
	Mirror mirror.Config

	DataDir   string // snapshot CSV directory
	MarkerDir string // upload marker directory
	DBPath    string // run history SQLite file
	LogDir    string // dated log files

	AppendMode     bool   // append with dedup markers instead of replace
	CollectionDate string // optional YYYY-MM-DD override, empty means today

	StepTimeout time.Duration // per collect/upload step
	Schedule    string        // cron expression for daemon mode
}

// KalshiConfig tunes the exchange API client.
type KalshiConfig struct {
	BaseURL    string
	MaxPages   int
	Sleep      time.Duration
	MaxRetries int
}

// DuneConfig tunes the warehouse client.
type DuneConfig struct {
	BaseURL    string
	APIKey     string
	Namespace  string
	MaxRetries int
}

// Load reads configuration from the environment. A .env file in the
// working directory is honored when present; real environment variables
// win over file entries.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("KALSHI_BASE_URL", kalshi.DefaultBaseURL)
	v.SetDefault("DUNE_BASE_URL", dune.DefaultBaseURL)
	v.SetDefault("DUNE_NAMESPACE", dune.DefaultNamespace)
	v.SetDefault("APPEND_MODE", true)
	v.SetDefault("DATA_DIR", "data")
	v.SetDefault("MARKER_DIR", "data/markers")
	v.SetDefault("DB_PATH", "data/kalshidune.db")
	v.SetDefault("LOG_DIR", "logs")
	v.SetDefault("MAX_PAGES", 50)
	v.SetDefault("SLEEP_INTERVAL", "1.5s")
	v.SetDefault("STEP_TIMEOUT", "600s")
	v.SetDefault("SCHEDULE", "0 6 * * *")
	v.SetDefault("HTTP_MAX_RETRIES", 2)

	if err := v.ReadInConfig(); err != nil {
		// A missing .env is fine; only real read errors are fatal.
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read .env: %w", err)
		}
	}

	cfg := &Config{
		Kalshi: KalshiConfig{
			BaseURL:    v.GetString("KALSHI_BASE_URL"),
			MaxPages:   v.GetInt("MAX_PAGES"),
			Sleep:      v.GetDuration("SLEEP_INTERVAL"),
			MaxRetries: v.GetInt("HTTP_MAX_RETRIES"),
		},
		Dune: DuneConfig{
			BaseURL:    v.GetString("DUNE_BASE_URL"),
			APIKey:     v.GetString("DUNE_API_KEY"),
			Namespace:  v.GetString("DUNE_NAMESPACE"),
			MaxRetries: v.GetInt("HTTP_MAX_RETRIES"),
		},
		Mirror: mirror.Config{
			Driver:   v.GetString("MIRROR_DRIVER"),
			Path:     v.GetString("MIRROR_PATH"),
			Host:     v.GetString("MIRROR_HOST"),
			Port:     v.GetInt("MIRROR_PORT"),
			Username: v.GetString("MIRROR_USER"),
			Password: v.GetString("MIRROR_PASSWORD"),
			Database: v.GetString("MIRROR_DATABASE"),
			SSLMode:  v.GetString("MIRROR_SSL_MODE"),
		},
		DataDir:        v.GetString("DATA_DIR"),
		MarkerDir:      v.GetString("MARKER_DIR"),
		DBPath:         v.GetString("DB_PATH"),
		LogDir:         v.GetString("LOG_DIR"),
		AppendMode:     v.GetBool("APPEND_MODE"),
		CollectionDate: v.GetString("COLLECTION_DATE"),
		StepTimeout:    v.GetDuration("STEP_TIMEOUT"),
		Schedule:       v.GetString("SCHEDULE"),
	}

	if cfg.CollectionDate != "" {
		if _, err := time.Parse("2006-01-02", cfg.CollectionDate); err != nil {
			return nil, fmt.Errorf("invalid COLLECTION_DATE %q: expected YYYY-MM-DD", cfg.CollectionDate)
		}
	}

	return cfg, nil
}

// RequireDuneKey fails when no API key is configured. Upload paths
// call this before any network activity.
func (c *Config) RequireDuneKey() error {
	if c.Dune.APIKey == "" {
		return errors.New("DUNE_API_KEY is required")
	}
	return nil
}
