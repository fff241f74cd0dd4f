package redis_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"

	redigo "github.com/garyburd/redigo/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/go-teamsync"
	"github.com/frobware/go-teamsync/store"
	"github.com/frobware/go-teamsync/store/redis"
)

// fakeServer is a hash-only Redis stand-in shared by all fake connections.
type fakeServer struct {
	mu   sync.Mutex
	data map[string]map[string]string
}

type fakeConn struct {
	srv    *fakeServer
	multi  bool
	queued [][]interface{}
}

func toString(v interface{}) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func (c *fakeConn) exec(cmd string, args ...interface{}) (interface{}, error) {
	s := c.srv
	switch strings.ToUpper(cmd) {
	case "", "PING":
		return "PONG", nil
	case "HMSET":
		key := toString(args[0])
		h, ok := s.data[key]
		if !ok {
			h = make(map[string]string)
			s.data[key] = h
		}
		for i := 1; i+1 < len(args); i += 2 {
			h[toString(args[i])] = toString(args[i+1])
		}
		return "OK", nil
	case "DEL":
		var n int64
		for _, a := range args {
			if _, ok := s.data[toString(a)]; ok {
				delete(s.data, toString(a))
				n++
			}
		}
		return n, nil
	case "HGETALL":
		var out []interface{}
		for f, v := range s.data[toString(args[0])] {
			out = append(out, []byte(f), []byte(v))
		}
		return out, nil
	case "KEYS":
		prefix := strings.TrimSuffix(toString(args[0]), "*")
		var names []string
		for k := range s.data {
			if strings.HasPrefix(k, prefix) {
				names = append(names, k)
			}
		}
		sort.Strings(names)
		out := make([]interface{}, 0, len(names))
		for _, n := range names {
			out = append(out, []byte(n))
		}
		return out, nil
	case "RENAME":
		from, to := toString(args[0]), toString(args[1])
		s.data[to] = s.data[from]
		delete(s.data, from)
		return "OK", nil
	}
	return nil, fmt.Errorf("unsupported command %q", cmd)
}

func (c *fakeConn) Do(cmd string, args ...interface{}) (interface{}, error) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()

	if strings.ToUpper(cmd) == "EXEC" {
		var replies []interface{}
		for _, q := range c.queued {
			r, err := c.exec(toString(q[0]), q[1:]...)
			if err != nil {
				return nil, err
			}
			replies = append(replies, r)
		}
		c.queued = nil
		c.multi = false
		return replies, nil
	}
	return c.exec(cmd, args...)
}

func (c *fakeConn) Send(cmd string, args ...interface{}) error {
	switch strings.ToUpper(cmd) {
	case "MULTI":
		c.multi = true
	case "DISCARD":
		c.multi = false
		c.queued = nil
	default:
		c.queued = append(c.queued, append([]interface{}{cmd}, args...))
	}
	return nil
}

func (c *fakeConn) Close() error                 { return nil }
func (c *fakeConn) Err() error                   { return nil }
func (c *fakeConn) Flush() error                 { return nil }
func (c *fakeConn) Receive() (interface{}, error) { return nil, nil }

func newStore(t *testing.T) (*redis.Store, *fakeServer) {
	t.Helper()
	srv := &fakeServer{data: make(map[string]map[string]string)}
	s := redis.NewWithDialer(func() (redigo.Conn, error) {
		return &fakeConn{srv: srv}, nil
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { s.Close() })
	return s, srv
}

func TestRecordKeyLayout(t *testing.T) {
	ctx := context.Background()
	s, srv := newStore(t)

	tbl := s.Table(teamsync.LagMemberTable)
	require.NoError(t, tbl.Set(ctx, teamsync.MemberKey("PortChannel1", "Ethernet0"),
		teamsync.FieldValues{{Field: teamsync.FieldStatus, Value: teamsync.MemberEnabled}}))

	assert.Contains(t, srv.data, "LAG_MEMBER_TABLE:PortChannel1:Ethernet0")

	keys, err := tbl.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"PortChannel1:Ethernet0"}, keys)

	fvs, err := tbl.Get(ctx, "PortChannel1:Ethernet0")
	require.NoError(t, err)
	assert.Equal(t, "enabled", fvs.Map()["status"])

	require.NoError(t, tbl.Del(ctx, "PortChannel1:Ethernet0"))
	_, err = tbl.Get(ctx, "PortChannel1:Ethernet0")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTempViewApply(t *testing.T) {
	ctx := context.Background()
	s, srv := newStore(t)
	tbl := s.Table(teamsync.LagTable)

	require.NoError(t, tbl.Set(ctx, "stale", teamsync.FieldValues{{Field: "mtu", Value: "1500"}}))
	require.NoError(t, tbl.Set(ctx, "bond0", teamsync.FieldValues{{Field: "mtu", Value: "1500"}}))

	require.NoError(t, tbl.CreateTempView(ctx))
	require.NoError(t, tbl.Set(ctx, "bond0", teamsync.FieldValues{{Field: "mtu", Value: "9100"}}))
	assert.Contains(t, srv.data, "TEMP_LAG_TABLE:bond0")

	fvs, err := tbl.Get(ctx, "bond0")
	require.NoError(t, err)
	assert.Equal(t, "1500", fvs.Map()["mtu"], "live view unchanged before apply")

	require.NoError(t, tbl.ApplyTempView(ctx))
	assert.False(t, tbl.InTempView())

	keys, err := tbl.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bond0"}, keys)

	fvs, err = tbl.Get(ctx, "bond0")
	require.NoError(t, err)
	assert.Equal(t, "9100", fvs.Map()["mtu"])
	assert.NotContains(t, srv.data, "TEMP_LAG_TABLE:bond0")
}
