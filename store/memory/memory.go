// Package memory provides an in-memory implementation of the state
// store. Every write is recorded in a journal, which makes it useful
// for testing.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/frobware/go-teamsync"
	"github.com/frobware/go-teamsync/store"
)

// OpKind identifies a journalled write.
type OpKind string

const (
	OpSet        OpKind = "set"
	OpDel        OpKind = "del"
	OpCreateView OpKind = "create_temp_view"
	OpApplyView  OpKind = "apply_temp_view"
)

// Op is one journalled write.
type Op struct {
	Table  string
	Kind   OpKind
	Key    string
	Fields teamsync.FieldValues
	// Temp is set when the write went to the temporary view.
	Temp bool
}

type records map[string]map[string]string

// Store implements store.Store in memory.
type Store struct {
	mu      sync.Mutex
	tables  map[string]*table
	journal []Op
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{tables: make(map[string]*table)}
}

// Table returns the named table, creating it on first use.
func (s *Store) Table(name string) store.ViewTable {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[name]
	if !ok {
		t = &table{s: s, name: name, live: make(records)}
		s.tables[name] = t
	}
	return t
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Ops returns a copy of the journal.
func (s *Store) Ops() []Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.journal)
}

// OpsFor returns the journalled writes against one table.
func (s *Store) OpsFor(tableName string) []Op {
	var ops []Op
	for _, op := range s.Ops() {
		if op.Table == tableName {
			ops = append(ops, op)
		}
	}
	return ops
}

// ResetOps clears the journal without touching table content.
func (s *Store) ResetOps() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal = nil
}

func (s *Store) record(op Op) {
	s.journal = append(s.journal, op)
}

type table struct {
	s    *Store
	name string
	live records
	temp records // non-nil while the temporary view is open
}

func (t *table) Name() string { return t.name }

func (t *table) target() records {
	if t.temp != nil {
		return t.temp
	}
	return t.live
}

func (t *table) Set(_ context.Context, key string, fvs teamsync.FieldValues) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	recs := t.target()
	rec, ok := recs[key]
	if !ok {
		rec = make(map[string]string, len(fvs))
		recs[key] = rec
	}
	for _, fv := range fvs {
		rec[fv.Field] = fv.Value
	}
	t.s.record(Op{Table: t.name, Kind: OpSet, Key: key, Fields: fvs.Clone(), Temp: t.temp != nil})
	return nil
}

func (t *table) Del(_ context.Context, key string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	delete(t.target(), key)
	t.s.record(Op{Table: t.name, Kind: OpDel, Key: key, Temp: t.temp != nil})
	return nil
}

func (t *table) Get(_ context.Context, key string) (teamsync.FieldValues, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	rec, ok := t.live[key]
	if !ok {
		return nil, fmt.Errorf("%s %q: %w", t.name, key, store.ErrNotFound)
	}
	return teamsync.FromMap(rec), nil
}

func (t *table) Keys(_ context.Context) ([]string, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return slices.Sorted(maps.Keys(t.live)), nil
}

func (t *table) CreateTempView(_ context.Context) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	t.temp = make(records)
	t.s.record(Op{Table: t.name, Kind: OpCreateView})
	return nil
}

func (t *table) ApplyTempView(_ context.Context) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if t.temp == nil {
		return fmt.Errorf("%s: no temporary view to apply", t.name)
	}
	t.live = t.temp
	t.temp = nil
	t.s.record(Op{Table: t.name, Kind: OpApplyView})
	return nil
}

func (t *table) InTempView() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.temp != nil
}
