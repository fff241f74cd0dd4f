package warmrestart_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/go-teamsync"
	"github.com/frobware/go-teamsync/store/memory"
	"github.com/frobware/go-teamsync/warmrestart"
)

func testLogger() *slog.Logger {
	if os.Getenv("TEAMSYNC_TEST_LOG") != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func get(t *testing.T, st *memory.Store, table, key, field string) string {
	t.Helper()
	fvs, err := st.Table(table).Get(context.Background(), key)
	require.NoError(t, err)
	v, ok := fvs.Get(field)
	require.True(t, ok, "field %s missing", field)
	return v
}

func TestColdStartResetsRestoreCount(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, st.Table(teamsync.WarmRestartTable).Set(ctx, "teamsyncd",
		teamsync.FieldValues{{Field: "restore_count", Value: "4"}}))

	c := warmrestart.New(st, warmrestart.Options{Logger: testLogger()})
	c.Initialize("teamsyncd", "teamd")
	warm, err := c.CheckWarmStart(ctx, "teamsyncd", "teamd")
	require.NoError(t, err)
	assert.False(t, warm)
	assert.False(t, c.IsWarmStart())
	assert.Equal(t, "0", get(t, st, teamsync.WarmRestartTable, "teamsyncd", "restore_count"))
}

func TestWarmStartFromPeerOrSystemKey(t *testing.T) {
	for _, key := range []string{"teamd", "system"} {
		t.Run(key, func(t *testing.T) {
			ctx := context.Background()
			st := memory.New()
			require.NoError(t, st.Table(teamsync.WarmRestartEnableTable).Set(ctx, key,
				teamsync.FieldValues{{Field: "enable", Value: "true"}}))
			require.NoError(t, st.Table(teamsync.WarmRestartTable).Set(ctx, "teamsyncd",
				teamsync.FieldValues{{Field: "restore_count", Value: "2"}}))

			c := warmrestart.New(st, warmrestart.Options{Logger: testLogger()})
			warm, err := c.CheckWarmStart(ctx, "teamsyncd", "teamd")
			require.NoError(t, err)
			assert.True(t, warm)
			assert.True(t, c.IsWarmStart())
			assert.Equal(t, "3", get(t, st, teamsync.WarmRestartTable, "teamsyncd", "restore_count"))
		})
	}
}

func TestForceEnabled(t *testing.T) {
	st := memory.New()
	c := warmrestart.New(st, warmrestart.Options{ForceEnabled: true, Logger: testLogger()})
	warm, err := c.CheckWarmStart(context.Background(), "teamsyncd", "teamd")
	require.NoError(t, err)
	assert.True(t, warm)
	assert.Equal(t, "1", get(t, st, teamsync.WarmRestartTable, "teamsyncd", "restore_count"))
}

func TestWarmStartTimer(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	c := warmrestart.New(st, warmrestart.Options{Logger: testLogger()})

	_, ok := c.WarmStartTimer(ctx, "teamsyncd", "teamd")
	assert.False(t, ok, "no config row")

	cfg := st.Table(teamsync.WarmRestartCfgTable)
	require.NoError(t, cfg.Set(ctx, "teamd", teamsync.FieldValues{{Field: "teamsyncd_timer", Value: "bogus"}}))
	_, ok = c.WarmStartTimer(ctx, "teamsyncd", "teamd")
	assert.False(t, ok, "unparseable timer")

	require.NoError(t, cfg.Set(ctx, "teamd", teamsync.FieldValues{{Field: "teamsyncd_timer", Value: "120"}}))
	d, ok := c.WarmStartTimer(ctx, "teamsyncd", "teamd")
	require.True(t, ok)
	assert.Equal(t, 120*time.Second, d)
}

func TestSetState(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	c := warmrestart.New(st, warmrestart.Options{Logger: testLogger()})

	require.NoError(t, c.SetState(ctx, "teamsyncd", warmrestart.Initialized))
	assert.Equal(t, "initialized", get(t, st, teamsync.WarmRestartTable, "teamsyncd", "state"))
	require.NoError(t, c.SetState(ctx, "teamsyncd", warmrestart.Reconciled))
	assert.Equal(t, "reconciled", get(t, st, teamsync.WarmRestartTable, "teamsyncd", "state"))
}
