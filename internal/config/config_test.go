package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 120*time.Second, cfg.Hazards.Retention)
	assert.Equal(t, 500.0, cfg.Proximity.RouteThresholdMeters)
	assert.Equal(t, 2000.0, cfg.Proximity.AlertThresholdMeters)
	assert.Equal(t, "grouped", cfg.Proximity.SegmentMode)
	assert.Equal(t, "openroute", cfg.Routing.Provider)
	assert.Equal(t, "driving-car", cfg.Routing.OpenRoute.Profile)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 5*time.Second, cfg.Store.Timeout)
	assert.Equal(t, "none", cfg.Realtime.Backplane)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Realtime.Kafka.Brokers)
	assert.Equal(t, 1, cfg.Realtime.MQTT.QoS)
	assert.Equal(t, "gpt-4o-mini", cfg.Alerts.OpenAI.Model)
	assert.Empty(t, cfg.Alerts.OpenAI.APIKey)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("HAZARDS_PROXIMITY__ROUTE_THRESHOLD_METERS", "750")
	t.Setenv("HAZARDS_HAZARDS__RETENTION", "5m")
	t.Setenv("HAZARDS_ROUTING__PROVIDER", "google")
	t.Setenv("HAZARDS_ROUTING__GOOGLE__API_KEY", "secret")

	cfg, err := Load(nil, "")
	require.NoError(t, err)

	assert.Equal(t, 750.0, cfg.Proximity.RouteThresholdMeters)
	assert.Equal(t, 2000.0, cfg.Proximity.AlertThresholdMeters, "Thresholds are independent")
	assert.Equal(t, 5*time.Minute, cfg.Hazards.Retention)
	assert.Equal(t, "google", cfg.Routing.Provider)
	assert.Equal(t, "secret", cfg.Routing.Google.APIKey)
}

func TestLoad_BaseConfig(t *testing.T) {
	base := koanf.New(".")
	require.NoError(t, base.Load(confmap.Provider(map[string]interface{}{
		"store.driver":       "redis",
		"store.redis.addr":   "cache:6379",
		"realtime.backplane": "kafka",
		"name":               "ignored by hazards config",
	}, "."), nil))

	t.Setenv("HAZARDS_STORE__REDIS__ADDR", "override:6379")

	cfg, err := Load(base, "")
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, "override:6379", cfg.Store.Redis.Addr, "Environment wins over base config")
	assert.Equal(t, "kafka", cfg.Realtime.Backplane)
	assert.Equal(t, 500.0, cfg.Proximity.RouteThresholdMeters)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("HAZARDS_ALERTS__OPENAI__API_KEY=sk-test\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("HAZARDS_ALERTS__OPENAI__API_KEY") })

	cfg, err := Load(nil, path)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.Alerts.OpenAI.APIKey)

	_, err = Load(nil, filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err, "A missing env file is not an error")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"zero route threshold", func(c *Config) { c.Proximity.RouteThresholdMeters = 0 }, "route_threshold_meters"},
		{"negative alert threshold", func(c *Config) { c.Proximity.AlertThresholdMeters = -1 }, "alert_threshold_meters"},
		{"segment mode", func(c *Config) { c.Proximity.SegmentMode = "nearest" }, "segment_mode"},
		{"retention", func(c *Config) { c.Hazards.Retention = 0 }, "retention"},
		{"provider", func(c *Config) { c.Routing.Provider = "osrm" }, "routing.provider"},
		{"store driver", func(c *Config) { c.Store.Driver = "sqlite" }, "store.driver"},
		{"store timeout", func(c *Config) { c.Store.Timeout = 0 }, "store.timeout"},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = "postgres" }, "dsn"},
		{"backplane", func(c *Config) { c.Realtime.Backplane = "nats" }, "backplane"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	assert.NoError(t, DefaultConfig().Validate())
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "routing.openroute.api_key", envKey("HAZARDS_ROUTING__OPENROUTE__API_KEY"))
	assert.Equal(t, "rate_limit.burst", envKey("HAZARDS_RATE_LIMIT__BURST"))
}
