// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Data      DataConfig      `mapstructure:"data"`
	SEC       SECConfig       `mapstructure:"sec"`
	IR        IRConfig        `mapstructure:"ir"`
	Collect   CollectConfig   `mapstructure:"collect"`
	Summarize SummarizeConfig `mapstructure:"summarize"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DataConfig sets filesystem locations for artifacts and the store snapshot.
type DataConfig struct {
	// RawDir is the storage root for downloaded artifacts.
	RawDir string `mapstructure:"raw_dir"`
	// StoreFile is the metadata store snapshot path.
	StoreFile string `mapstructure:"store_file"`
	// UniverseFile is the company universe CSV path.
	UniverseFile string `mapstructure:"universe_file"`
}

// SECConfig governs EDGAR API access.
type SECConfig struct {
	// UserAgent identifies this client to the SEC; required by their
	// fair-access policy.
	UserAgent      string  `mapstructure:"user_agent"`
	RequestsPerSec float64 `mapstructure:"requests_per_sec"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// IRConfig governs investor-relations discovery.
type IRConfig struct {
	UserAgent       string  `mapstructure:"user_agent"`
	NavTimeoutSec   int     `mapstructure:"nav_timeout_seconds"`
	ProbeTimeoutSec int     `mapstructure:"probe_timeout_seconds"`
	RequestsPerSec  float64 `mapstructure:"requests_per_sec"`
}

// CollectConfig governs orchestrated collection passes.
type CollectConfig struct {
	FormTypes           []string `mapstructure:"form_types"`
	FilingsPerCompany   int      `mapstructure:"filings_per_company"`
	CompanyDelaySeconds int      `mapstructure:"company_delay_seconds"`
	DownloadTimeoutSec  int      `mapstructure:"download_timeout_seconds"`
}

// SummarizeConfig configures the summarization collaborator.
type SummarizeConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// SchedulerConfig controls the periodic jobs.
type SchedulerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// DailyTime is the HH:MM wall-clock time of the daily pass.
	DailyTime string `mapstructure:"daily_time"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("data.raw_dir", "data/raw")
	v.SetDefault("data.store_file", "data/data_store.json")
	v.SetDefault("data.universe_file", "data/companies/fortune100.csv")
	// Registered empty so the HARVESTER_SEC_USER_AGENT override is
	// visible to Unmarshal; Validate rejects it when still unset.
	v.SetDefault("sec.user_agent", "")
	v.SetDefault("sec.requests_per_sec", 10.0)
	v.SetDefault("sec.timeout_seconds", 30)
	v.SetDefault("ir.nav_timeout_seconds", 60)
	v.SetDefault("ir.probe_timeout_seconds", 5)
	v.SetDefault("ir.requests_per_sec", 2.0)
	v.SetDefault("ir.user_agent", "filing-harvester/0.1")
	v.SetDefault("collect.form_types", []string{"10-K", "10-Q", "8-K"})
	v.SetDefault("collect.filings_per_company", 2)
	v.SetDefault("collect.company_delay_seconds", 1)
	v.SetDefault("collect.download_timeout_seconds", 60)
	v.SetDefault("summarize.api_key", "")
	v.SetDefault("summarize.base_url", "")
	v.SetDefault("summarize.model", "gpt-4o-mini")
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.daily_time", "02:00")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if strings.TrimSpace(c.SEC.UserAgent) == "" {
		return fmt.Errorf("sec.user_agent must be set (SEC fair-access policy)")
	}
	if c.SEC.RequestsPerSec <= 0 {
		return fmt.Errorf("sec.requests_per_sec must be > 0")
	}
	if c.Collect.FilingsPerCompany <= 0 {
		return fmt.Errorf("collect.filings_per_company must be > 0")
	}
	if _, _, err := ParseDailyTime(c.Scheduler.DailyTime); err != nil {
		return fmt.Errorf("scheduler.daily_time: %w", err)
	}
	return nil
}

// DownloadTimeout returns the per-document download bound.
func (c Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Collect.DownloadTimeoutSec) * time.Second
}

// NavTimeout returns the page navigation bound for IR rendering.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.IR.NavTimeoutSec) * time.Second
}

// ParseDailyTime splits an HH:MM string into hour and minute.
func ParseDailyTime(s string) (int, int, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("out of range: %q", s)
	}
	return hour, minute, nil
}
