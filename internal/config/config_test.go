package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "memory", cfg.RateLimit.Backend)
	assert.Equal(t, 5*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 100, cfg.RateLimit.MaxPerWindow)
	assert.Equal(t, 10, cfg.Tickets.NumberWidth)
	assert.True(t, cfg.Draw.RequireDrawDate)
	assert.Empty(t, cfg.Draw.AutoSchedule)
	assert.Empty(t, cfg.Events.Kafka.Brokers)
	assert.Empty(t, cfg.Campaigns)
}

func TestLoad_File(t *testing.T) {
	dir := writeConfig(t, `
server:
  addr: ":9090"
rate_limit:
  backend: redis
  window: 30s
  max_per_window: 3
  redis:
    addr: redis:6379
draw:
  auto_schedule: "@every 1m"
events:
  kafka:
    brokers: ["kafka-1:9092", "kafka-2:9092"]
campaigns:
  - id: spring
    lottery_eligible: true
    end_date: "2026-06-30T23:59:59Z"
  - id: archive
    lottery_eligible: true
    status: ended
    end_date: "2025-01-01T00:00:00Z"
`)
	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "redis", cfg.RateLimit.Backend)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 3, cfg.RateLimit.MaxPerWindow)
	assert.Equal(t, "redis:6379", cfg.RateLimit.Redis.Addr)
	assert.Equal(t, "lottery:", cfg.RateLimit.Redis.KeyPrefix)
	assert.Equal(t, "@every 1m", cfg.Draw.AutoSchedule)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Events.Kafka.Brokers)

	campaigns, err := cfg.CampaignList()
	require.NoError(t, err)
	require.Len(t, campaigns, 2)
	assert.Equal(t, "ACTIVE", campaigns[0].Status)
	assert.Equal(t, time.Date(2026, 6, 30, 23, 59, 59, 0, time.UTC), campaigns[0].EndDate)
	assert.Equal(t, "ENDED", campaigns[1].Status)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := writeConfig(t, "rate_limit:\n  max_per_window: 3\n")
	t.Setenv("LOTTERY_RATE_LIMIT_MAX_PER_WINDOW", "7")
	t.Setenv("LOTTERY_STORE_DRIVER", "mysql")
	t.Setenv("LOTTERY_STORE_DSN", "user:pass@tcp(db:3306)/lottery?parseTime=true")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.RateLimit.MaxPerWindow)
	assert.Equal(t, "mysql", cfg.Store.Driver)
	assert.Contains(t, cfg.Store.DSN, "tcp(db:3306)")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown store driver", "store:\n  driver: sqlite\n"},
		{"mysql without dsn", "store:\n  driver: mysql\n"},
		{"unknown limiter backend", "rate_limit:\n  backend: memcached\n"},
		{"zero window", "rate_limit:\n  window: 0s\n"},
		{"number width too large", "tickets:\n  number_width: 19\n"},
		{"campaign end date", "campaigns:\n  - id: c1\n    end_date: tomorrow\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestWatch_NoFile(t *testing.T) {
	err := Watch(t.TempDir(), func(*Config) {})
	assert.ErrorIs(t, err, ErrNoConfigFile)
}

func TestWatch_Reload(t *testing.T) {
	dir := writeConfig(t, "rate_limit:\n  max_per_window: 3\n")

	var (
		mu   sync.Mutex
		last *Config
	)
	require.NoError(t, Watch(dir, func(cfg *Config) {
		mu.Lock()
		defer mu.Unlock()
		last = cfg
	}))

	// An invalid edit is skipped, the following valid one is delivered.
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: sqlite\n"), 0o600))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`
campaigns:
  - id: summer
    lottery_eligible: true
    end_date: "2026-09-30T00:00:00Z"
`), 0o600))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last != nil && len(last.Campaigns) == 1 && last.Campaigns[0].ID == "summer"
	}, 5*time.Second, 20*time.Millisecond)
}
