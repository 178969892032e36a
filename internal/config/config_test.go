package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsRequireUserAgent(t *testing.T) {
	_, err := Load("")
	require.Error(t, err, "sec.user_agent has no default")
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
sec:
  user_agent: "FinHarvest admin@finharvest.example"
server:
  port: 9090
collect:
  form_types: ["10-K"]
  filings_per_company: 5
scheduler:
  daily_time: "03:30"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"10-K"}, cfg.Collect.FormTypes)
	assert.Equal(t, 5, cfg.Collect.FilingsPerCompany)
	assert.Equal(t, "03:30", cfg.Scheduler.DailyTime)

	// Untouched keys keep their defaults.
	assert.Equal(t, "data/raw", cfg.Data.RawDir)
	assert.Equal(t, 10.0, cfg.SEC.RequestsPerSec)
	assert.Equal(t, 60*time.Second, cfg.NavTimeout())
	assert.Equal(t, 60*time.Second, cfg.DownloadTimeout())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HARVESTER_SEC_USER_AGENT", "FinHarvest admin@finharvest.example")
	t.Setenv("HARVESTER_SERVER_PORT", "7070")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "FinHarvest admin@finharvest.example", cfg.SEC.UserAgent)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Server:    ServerConfig{Port: 8080},
			SEC:       SECConfig{UserAgent: "x", RequestsPerSec: 10},
			Collect:   CollectConfig{FilingsPerCompany: 2},
			Scheduler: SchedulerConfig{DailyTime: "02:00"},
		}
	}

	require.NoError(t, base().Validate())

	cfg := base()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.SEC.UserAgent = "  "
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Collect.FilingsPerCompany = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Scheduler.DailyTime = "25:00"
	assert.Error(t, cfg.Validate())
}

func TestParseDailyTime(t *testing.T) {
	hour, minute, err := ParseDailyTime("02:00")
	require.NoError(t, err)
	assert.Equal(t, 2, hour)
	assert.Equal(t, 0, minute)

	hour, minute, err = ParseDailyTime("23:59")
	require.NoError(t, err)
	assert.Equal(t, 23, hour)
	assert.Equal(t, 59, minute)

	_, _, err = ParseDailyTime("bogus")
	assert.Error(t, err)

	_, _, err = ParseDailyTime("12:75")
	assert.Error(t, err)
}
