package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/go-teamsync/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, config.BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, 70*time.Second, cfg.WarmRestart.Timer)
	assert.False(t, cfg.WarmRestart.Enabled)
	assert.False(t, cfg.Teamd.UnifiedMode)
	assert.Equal(t, "/var/run/teamd/teamd-unified.sock", cfg.Teamd.UnifiedSocket)
	assert.Equal(t, "/var/run/teamd", cfg.Teamd.RunDir)
	assert.Equal(t, time.Second, cfg.Sync.TickInterval)
	assert.Equal(t, 5*time.Second, cfg.Sync.DumpInterval)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), cfg)
}

func TestLoad_TOMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teamsync.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[store]
backend = "redis"

[warm_restart]
timer = "2m"

[teamd]
unified_mode = true
`), 0644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "127.0.0.1:6379", cfg.Store.RedisAddress, "unset fields keep defaults")
	assert.Equal(t, 2*time.Minute, cfg.WarmRestart.Timer)
	assert.True(t, cfg.Teamd.UnifiedMode)
	assert.Equal(t, time.Second, cfg.Sync.TickInterval)
}

func TestLoad_YAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teamsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  components:
    teamdctl: debug
    linksync: trace
sync:
  dump_interval: 30s
`), 0644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Sync.DumpInterval)
	assert.Equal(t, "info", cfg.Logging.Level)

	cfg.Logging.Level = ""
	assert.Equal(t, "info,linksync=trace,teamdctl=debug", cfg.Logging.ToSpec())
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()

	garbled := filepath.Join(dir, "garbled.toml")
	require.NoError(t, os.WriteFile(garbled, []byte("[store\n"), 0644))
	_, err := config.Load(garbled)
	assert.Error(t, err)

	badBackend := filepath.Join(dir, "backend.toml")
	require.NoError(t, os.WriteFile(badBackend, []byte("[store]\nbackend = \"etcd\"\n"), 0644))
	_, err = config.Load(badBackend)
	assert.ErrorContains(t, err, "unknown backend")

	badTick := filepath.Join(dir, "tick.yml")
	require.NoError(t, os.WriteFile(badTick, []byte("sync:\n  tick_interval: 0s\n"), 0644))
	_, err = config.Load(badTick)
	assert.ErrorContains(t, err, "tick_interval")
}

func TestLoggingToSpec(t *testing.T) {
	assert.Equal(t, "", (&config.LoggingConfig{}).ToSpec())
	assert.Equal(t, "warn", (&config.LoggingConfig{Level: "warn", Components: map[string]string{"x": "debug"}}).ToSpec())
}
