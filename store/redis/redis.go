// Package redis provides a Redis implementation of the state store,
// laid out the way switch control-plane databases are: one hash per
// record under the key "<TABLE>:<key>".
//
// A temporary view writes to shadow hashes under "TEMP_<TABLE>:<key>".
// ApplyTempView deletes the live hashes of the table and renames the
// shadow hashes into place inside a single MULTI/EXEC block.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/garyburd/redigo/redis"

	"github.com/frobware/go-teamsync"
	"github.com/frobware/go-teamsync/store"
)

const tempPrefix = "TEMP_"

// DialFunc opens a new connection to the database.
type DialFunc func() (redis.Conn, error)

// Store implements store.Store on top of a redigo connection pool.
type Store struct {
	pool   *redis.Pool
	logger *slog.Logger

	mu     sync.Mutex
	tables map[string]*table
}

// New connects to the Redis server at address and selects db.
func New(address string, db int, logger *slog.Logger) (*Store, error) {
	s := NewWithDialer(func() (redis.Conn, error) {
		return redis.Dial("tcp", address,
			redis.DialDatabase(db),
			redis.DialConnectTimeout(5*time.Second))
	}, logger)

	conn := s.pool.Get()
	defer conn.Close()
	if _, err := conn.Do("PING"); err != nil {
		s.pool.Close()
		return nil, fmt.Errorf("connect to redis %s db %d: %w", address, db, err)
	}
	s.logger.Info("connected to redis", "address", address, "db", db)
	return s, nil
}

// NewWithDialer creates a store whose connections come from dial.
func NewWithDialer(dial DialFunc, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		pool: &redis.Pool{
			MaxIdle:     2,
			IdleTimeout: 4 * time.Minute,
			Dial:        dial,
		},
		logger: logger.With("component", "store", "backend", "redis"),
		tables: make(map[string]*table),
	}
}

// Close releases all pooled connections.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Table returns the named table handle.
func (s *Store) Table(name string) store.ViewTable {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[name]
	if !ok {
		t = &table{s: s, name: name}
		s.tables[name] = t
	}
	return t
}

func (s *Store) do(cmd string, args ...interface{}) (interface{}, error) {
	conn := s.pool.Get()
	defer conn.Close()
	return conn.Do(cmd, args...)
}

type table struct {
	s    *Store
	name string

	mu   sync.Mutex
	temp bool
}

func (t *table) Name() string { return t.name }

func (t *table) InTempView() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.temp
}

func (t *table) liveKey(key string) string { return t.name + teamsync.KeySeparator + key }

func (t *table) tempKey(key string) string { return tempPrefix + t.liveKey(key) }

func (t *table) writeKey(key string) string {
	if t.InTempView() {
		return t.tempKey(key)
	}
	return t.liveKey(key)
}

func (t *table) Set(_ context.Context, key string, fvs teamsync.FieldValues) error {
	if len(fvs) == 0 {
		return nil
	}
	args := redis.Args{}.Add(t.writeKey(key))
	for _, fv := range fvs {
		args = args.Add(fv.Field, fv.Value)
	}
	if _, err := t.s.do("HMSET", args...); err != nil {
		return fmt.Errorf("set %s %q: %w", t.name, key, err)
	}
	return nil
}

func (t *table) Del(_ context.Context, key string) error {
	if _, err := t.s.do("DEL", t.writeKey(key)); err != nil {
		return fmt.Errorf("del %s %q: %w", t.name, key, err)
	}
	return nil
}

func (t *table) Get(_ context.Context, key string) (teamsync.FieldValues, error) {
	m, err := redis.StringMap(t.s.do("HGETALL", t.liveKey(key)))
	if err != nil {
		return nil, fmt.Errorf("get %s %q: %w", t.name, key, err)
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("%s %q: %w", t.name, key, store.ErrNotFound)
	}
	return teamsync.FromMap(m), nil
}

// scan returns the full hash names under prefix.
func (t *table) scan(prefix string) ([]string, error) {
	return redis.Strings(t.s.do("KEYS", prefix+"*"))
}

func (t *table) Keys(_ context.Context) ([]string, error) {
	prefix := t.liveKey("")
	names, err := t.scan(prefix)
	if err != nil {
		return nil, fmt.Errorf("keys %s: %w", t.name, err)
	}
	keys := make([]string, 0, len(names))
	for _, n := range names {
		keys = append(keys, strings.TrimPrefix(n, prefix))
	}
	slices.Sort(keys)
	return keys, nil
}

func (t *table) CreateTempView(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	stale, err := t.scan(t.tempKey(""))
	if err != nil {
		return fmt.Errorf("create temp view %s: %w", t.name, err)
	}
	if len(stale) > 0 {
		if _, err := t.s.do("DEL", redis.Args{}.AddFlat(stale)...); err != nil {
			return fmt.Errorf("create temp view %s: %w", t.name, err)
		}
	}
	t.temp = true
	t.s.logger.Debug("created temporary view", "table", t.name, "discarded", len(stale))
	return nil
}

func (t *table) ApplyTempView(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.temp {
		return fmt.Errorf("%s: no temporary view to apply", t.name)
	}

	live, err := t.scan(t.liveKey(""))
	if err != nil {
		return fmt.Errorf("apply temp view %s: %w", t.name, err)
	}
	shadow, err := t.scan(t.tempKey(""))
	if err != nil {
		return fmt.Errorf("apply temp view %s: %w", t.name, err)
	}

	conn := t.s.pool.Get()
	defer conn.Close()

	if err := conn.Send("MULTI"); err != nil {
		return fmt.Errorf("apply temp view %s: %w", t.name, err)
	}
	for _, k := range live {
		if err := conn.Send("DEL", k); err != nil {
			return fmt.Errorf("apply temp view %s: %w", t.name, err)
		}
	}
	for _, k := range shadow {
		if err := conn.Send("RENAME", k, strings.TrimPrefix(k, tempPrefix)); err != nil {
			return fmt.Errorf("apply temp view %s: %w", t.name, err)
		}
	}
	if _, err := conn.Do("EXEC"); err != nil {
		return fmt.Errorf("apply temp view %s: %w", t.name, err)
	}

	t.temp = false
	t.s.logger.Info("applied temporary view", "table", t.name, "removed", len(live), "records", len(shadow))
	return nil
}
