package teamdctl_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/go-teamsync"
	"github.com/frobware/go-teamsync/logging"
	"github.com/frobware/go-teamsync/teamdctl"
)

// recordHandler keeps every record so tests can count log levels.
type recordHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *recordHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordHandler) count(level slog.Level) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.records {
		if r.Level == level {
			n++
		}
	}
	return n
}

// fakeClients hands out fakeClients. Connect fails while connectFails
// is positive; allocation fails while allocFails is positive.
type fakeClients struct {
	allocFails   map[string]int
	connectFails map[string]int
	dumpErr      map[string]error
	dumps        map[string]string
	open         map[string]int
}

func newFakeClients() *fakeClients {
	return &fakeClients{
		allocFails:   make(map[string]int),
		connectFails: make(map[string]int),
		dumpErr:      make(map[string]error),
		dumps:        make(map[string]string),
		open:         make(map[string]int),
	}
}

func (f *fakeClients) NewClient(bundle string) (teamdctl.Client, error) {
	if f.allocFails[bundle] > 0 {
		f.allocFails[bundle]--
		return nil, errors.New("out of memory")
	}
	return &fakeClient{f: f, bundle: bundle}, nil
}

type fakeClient struct {
	f         *fakeClients
	bundle    string
	connected bool
}

func (c *fakeClient) Connect(context.Context) error {
	if c.f.connectFails[c.bundle] > 0 {
		c.f.connectFails[c.bundle]--
		return fmt.Errorf("connect %s: connection refused", c.bundle)
	}
	c.connected = true
	c.f.open[c.bundle]++
	return nil
}

func (c *fakeClient) StateDump(context.Context) (string, error) {
	if err := c.f.dumpErr[c.bundle]; err != nil {
		return "", err
	}
	return c.f.dumps[c.bundle], nil
}

func (c *fakeClient) Close() error {
	if c.connected {
		c.f.open[c.bundle]--
		c.connected = false
	}
	return nil
}

type fakeTransport struct {
	responses map[string]string
	fail      map[string]bool
	requests  []string
}

func (t *fakeTransport) Send(_ context.Context, method string, args ...string) (string, error) {
	t.requests = append(t.requests, method+" "+args[0])
	if t.fail[args[0]] {
		return "", teamsync.ErrTransport
	}
	return t.responses[args[0]], nil
}

func newDirect(t *testing.T) (*teamdctl.Manager, *fakeClients, *recordHandler) {
	t.Helper()
	clients := newFakeClients()
	h := &recordHandler{}
	m, err := teamdctl.New(teamdctl.Options{Mode: teamdctl.ModeDirect, Clients: clients, Logger: slog.New(h)})
	require.NoError(t, err)
	return m, clients, h
}

func newUnified(t *testing.T) (*teamdctl.Manager, *fakeTransport, *recordHandler) {
	t.Helper()
	tr := &fakeTransport{responses: make(map[string]string), fail: make(map[string]bool)}
	h := &recordHandler{}
	m, err := teamdctl.New(teamdctl.Options{Mode: teamdctl.ModeUnified, Transport: tr, Logger: slog.New(h)})
	require.NoError(t, err)
	return m, tr, h
}

func TestNew_RequiresModeCollaborators(t *testing.T) {
	_, err := teamdctl.New(teamdctl.Options{Mode: teamdctl.ModeDirect})
	assert.Error(t, err)
	_, err = teamdctl.New(teamdctl.Options{Mode: teamdctl.ModeUnified})
	assert.Error(t, err)
	_, err = teamdctl.New(teamdctl.Options{Mode: teamdctl.Mode(7), Transport: &fakeTransport{}})
	assert.ErrorContains(t, err, "Mode(7)")
}

func TestDirect_AddRetriesThroughQueue(t *testing.T) {
	ctx := context.Background()
	m, clients, logs := newDirect(t)
	clients.connectFails["bond1"] = 2

	assert.False(t, m.AddLag(ctx, "bond1"))
	n, queued := m.Pending("bond1")
	assert.True(t, queued)
	assert.Equal(t, 1, n)
	assert.Zero(t, logs.count(slog.LevelWarn), "first connect failure is quiet")

	m.ProcessAddQueue(ctx)
	n, _ = m.Pending("bond1")
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, logs.count(slog.LevelWarn))
	assert.False(t, m.HasKey("bond1"))

	m.ProcessAddQueue(ctx)
	assert.True(t, m.HasKey("bond1"))
	_, queued = m.Pending("bond1")
	assert.False(t, queued, "tracked and queued are exclusive")
	assert.Equal(t, 1, clients.open["bond1"])

	assert.True(t, m.AddLag(ctx, "bond1"), "already tracked")
	assert.Equal(t, 1, clients.open["bond1"])
}

func TestDirect_AllocationFailureIsCounted(t *testing.T) {
	ctx := context.Background()
	m, clients, logs := newDirect(t)
	clients.allocFails["bond2"] = 1

	assert.False(t, m.TryAddLag(ctx, "bond2"))
	n, _ := m.Pending("bond2")
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, logs.count(slog.LevelError))

	m.ProcessAddQueue(ctx)
	assert.True(t, m.HasKey("bond2"))
}

func TestDirect_QueueGivesUp(t *testing.T) {
	ctx := context.Background()
	m, clients, logs := newDirect(t)
	clients.connectFails["bond3"] = 100

	m.AddLag(ctx, "bond3")
	for range teamdctl.MaxAddAttempts - 2 {
		m.ProcessAddQueue(ctx)
	}
	n, queued := m.Pending("bond3")
	require.True(t, queued)
	assert.Equal(t, teamdctl.MaxAddAttempts-1, n)
	assert.Zero(t, logs.count(slog.LevelError))

	m.ProcessAddQueue(ctx)
	_, queued = m.Pending("bond3")
	assert.False(t, queued)
	assert.Equal(t, 1, logs.count(slog.LevelError))

	m.ProcessAddQueue(ctx)
	assert.Equal(t, 1, logs.count(slog.LevelError), "no further attempts")
	assert.Zero(t, clients.open["bond3"])
}

func TestRemoveLag(t *testing.T) {
	ctx := context.Background()
	m, clients, logs := newDirect(t)
	clients.connectFails["queued"] = 1

	require.True(t, m.AddLag(ctx, "bond0"))
	require.False(t, m.AddLag(ctx, "queued"))

	assert.True(t, m.RemoveLag(ctx, "bond0"))
	assert.False(t, m.HasKey("bond0"))
	assert.Zero(t, clients.open["bond0"], "handle released")

	assert.True(t, m.RemoveLag(ctx, "queued"))
	assert.Empty(t, m.PendingBundles())

	assert.True(t, m.RemoveLag(ctx, "unknown"))
	assert.Equal(t, 1, logs.count(slog.LevelWarn))
}

func TestRemoveLag_ClearsRetryCounter(t *testing.T) {
	ctx := context.Background()
	m, clients, _ := newDirect(t)
	require.True(t, m.AddLag(ctx, "bond0"))
	clients.dumpErr["bond0"] = errors.New("teamd busy")

	m.GetDump(ctx, "bond0", true)
	_, counted := m.RetryCount("bond0")
	require.True(t, counted)

	m.RemoveLag(ctx, "bond0")
	_, counted = m.RetryCount("bond0")
	assert.False(t, counted)

	m.RemoveLag(ctx, "bond0")
	_, counted = m.RetryCount("bond0")
	assert.False(t, counted)
}

func TestGetDump_RetryCounter(t *testing.T) {
	ctx := context.Background()

	t.Run("third failure gives up once", func(t *testing.T) {
		m, clients, logs := newDirect(t)
		require.True(t, m.AddLag(ctx, "bond0"))
		clients.dumpErr["bond0"] = errors.New("teamd busy")

		for want := 1; want < teamdctl.MaxDumpRetries; want++ {
			assert.Equal(t, teamdctl.Dump{}, m.GetDump(ctx, "bond0", true))
			n, ok := m.RetryCount("bond0")
			require.True(t, ok)
			assert.Equal(t, want, n)
			assert.Zero(t, logs.count(slog.LevelError))
		}

		m.GetDump(ctx, "bond0", true)
		_, ok := m.RetryCount("bond0")
		assert.False(t, ok)
		assert.Equal(t, 1, logs.count(slog.LevelError))
		assert.True(t, m.HasKey("bond0"), "bundle stays tracked")
	})

	t.Run("success resets", func(t *testing.T) {
		m, clients, _ := newDirect(t)
		require.True(t, m.AddLag(ctx, "bond0"))
		clients.dumpErr["bond0"] = errors.New("teamd busy")
		m.GetDump(ctx, "bond0", true)
		m.GetDump(ctx, "bond0", true)

		clients.dumpErr["bond0"] = nil
		clients.dumps["bond0"] = `{"setup":{}}`
		assert.Equal(t, teamdctl.Dump{OK: true, Payload: `{"setup":{}}`}, m.GetDump(ctx, "bond0", true))
		_, ok := m.RetryCount("bond0")
		assert.False(t, ok)
	})

	t.Run("without retry every failure is logged", func(t *testing.T) {
		m, clients, logs := newDirect(t)
		require.True(t, m.AddLag(ctx, "bond0"))
		clients.dumpErr["bond0"] = errors.New("teamd busy")
		m.GetDump(ctx, "bond0", false)
		m.GetDump(ctx, "bond0", false)
		assert.Equal(t, 2, logs.count(slog.LevelError))
		_, ok := m.RetryCount("bond0")
		assert.False(t, ok)
	})

	t.Run("untracked", func(t *testing.T) {
		m, _, logs := newDirect(t)
		assert.Equal(t, teamdctl.Dump{}, m.GetDump(ctx, "nope", true))
		assert.Equal(t, 1, logs.count(slog.LevelError))
	})
}

func TestUnified_DumpTrimsBanner(t *testing.T) {
	ctx := context.Background()
	m, tr, _ := newUnified(t)
	tr.responses["bond0"] = `banner-text{"ports":[]}`

	require.True(t, m.AddLag(ctx, "bond0"))
	assert.True(t, m.HasKey("bond0"))
	assert.Empty(t, m.PendingBundles())

	assert.Equal(t, teamdctl.Dump{OK: true, Payload: `{"ports":[]}`}, m.GetDump(ctx, "bond0", true))
	assert.Equal(t, []string{"StateDump bond0"}, tr.requests)
}

func TestUnified_FailureCounting(t *testing.T) {
	ctx := context.Background()
	m, tr, logs := newUnified(t)
	tr.fail["bond0"] = true
	require.True(t, m.AddLag(ctx, "bond0"))

	for range teamdctl.MaxDumpRetries {
		m.GetDump(ctx, "bond0", true)
	}
	_, ok := m.RetryCount("bond0")
	assert.False(t, ok)
	assert.Equal(t, 1, logs.count(slog.LevelError))
}

func TestGetDumps_PartialAndSorted(t *testing.T) {
	ctx := context.Background()
	m, tr, _ := newUnified(t)
	tr.responses["bond2"] = `{"b":2}`
	tr.responses["bond0"] = `x{"b":0}`
	tr.fail["bond1"] = true
	for _, name := range []string{"bond2", "bond1", "bond0"} {
		require.True(t, m.AddLag(ctx, name))
	}

	assert.Equal(t, []teamdctl.DumpEntry{
		{Bundle: "bond0", Payload: `{"b":0}`},
		{Bundle: "bond2", Payload: `{"b":2}`},
	}, m.GetDumps(ctx, true))
	n, ok := m.RetryCount("bond1")
	assert.True(t, ok)
	assert.Equal(t, 1, n)
}

func TestClose_ReleasesEveryHandle(t *testing.T) {
	ctx := context.Background()
	m, clients, logs := newDirect(t)
	require.True(t, m.AddLag(ctx, "bond0"))
	require.True(t, m.AddLag(ctx, "bond1"))

	require.NoError(t, m.Close())
	assert.Zero(t, clients.open["bond0"])
	assert.Zero(t, clients.open["bond1"])
	assert.Empty(t, m.Bundles())
	assert.Equal(t, 4, logs.count(logging.LevelNotice.ToSlog()), "one notice per add and per disconnect")
}
