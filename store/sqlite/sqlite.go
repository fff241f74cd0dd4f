// Package sqlite provides a SQLite implementation of the state store.
//
// # Layout
//
// Every logical table shares two physical tables: records (the live
// view) and temp_records (writes buffered by an open temporary view).
// A row holds one field of one record, keyed by (tbl, key, field), so
// Set merges fields into an existing record exactly like a hash write
// in a key/value database.
//
// # Temporary Views
//
// CreateTempView discards any stale buffered rows for the table and
// switches the table handle into buffered mode. ApplyTempView runs one
// transaction that deletes the live rows of the table, copies the
// buffered rows in and clears the buffer. Readers never observe a
// half-applied view.
//
// Whether a table is in buffered mode is process state, not database
// state: a view left open by a crashed process is discarded when the
// store is next opened.
//
// # Prepared Statements
//
// All SQL is prepared once at open time. Multi-statement operations run
// in a transaction using tx.StmtContext handles derived from the master
// statements.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/frobware/go-teamsync"
	"github.com/frobware/go-teamsync/logging"
	"github.com/frobware/go-teamsync/store"
)

//go:embed schema.sql
var schemaSQL string

// Store implements store.Store using SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	mu     sync.Mutex
	tables map[string]*table

	stmtSetLive    *sql.Stmt
	stmtSetTemp    *sql.Stmt
	stmtDelLive    *sql.Stmt
	stmtDelTemp    *sql.Stmt
	stmtGet        *sql.Stmt
	stmtKeys       *sql.Stmt
	stmtClearLive  *sql.Stmt
	stmtClearTemp  *sql.Stmt
	stmtCopyTemp   *sql.Stmt
	stmtClearAllTP *sql.Stmt
}

// New opens (creating if necessary) a SQLite store at dbPath.
func New(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store", "db", dbPath)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open(driverName, dsn(dbPath, [][2]string{{"journal_mode", "WAL"}, {"busy_timeout", "5000"}}))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s, err := open(ctx, db, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("opened database", "path", dbPath)
	return s, nil
}

// NewInMemory creates an in-memory SQLite store for testing.
func NewInMemory(ctx context.Context, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store", "db", ":memory:")

	db, err := sql.Open(driverName, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	// Each connection to :memory: is a distinct database.
	db.SetMaxOpenConns(1)

	s, err := open(ctx, db, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("opened in-memory database")
	return s, nil
}

func open(ctx context.Context, db *sql.DB, logger *slog.Logger) (*Store, error) {
	s := &Store{db: db, logger: logger, tables: make(map[string]*table)}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := s.prepareStatements(ctx); err != nil {
		s.closeStatements()
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	if _, err := s.stmtClearAllTP.ExecContext(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to discard stale temporary views: %w", err)
	}
	return s, nil
}

// Close closes all prepared statements and the database connection.
func (s *Store) Close() error {
	s.closeStatements()
	return s.db.Close()
}

func (s *Store) closeStatements() {
	for _, stmt := range []*sql.Stmt{
		s.stmtSetLive, s.stmtSetTemp, s.stmtDelLive, s.stmtDelTemp,
		s.stmtGet, s.stmtKeys, s.stmtClearLive, s.stmtClearTemp,
		s.stmtCopyTemp, s.stmtClearAllTP,
	} {
		if stmt != nil {
			stmt.Close()
		}
	}
}

func (s *Store) prepareStatements(ctx context.Context) error {
	var err error
	prepare := func(dst **sql.Stmt, name, query string) {
		if err != nil {
			return
		}
		if *dst, err = s.db.PrepareContext(ctx, query); err != nil {
			err = fmt.Errorf("prepare %s: %w", name, err)
		}
	}

	prepare(&s.stmtSetLive, "SetLive", `
		INSERT INTO records (tbl, key, field, value) VALUES (?, ?, ?, ?)
		ON CONFLICT(tbl, key, field) DO UPDATE SET value = excluded.value`)
	prepare(&s.stmtSetTemp, "SetTemp", `
		INSERT INTO temp_records (tbl, key, field, value) VALUES (?, ?, ?, ?)
		ON CONFLICT(tbl, key, field) DO UPDATE SET value = excluded.value`)
	prepare(&s.stmtDelLive, "DelLive", "DELETE FROM records WHERE tbl = ? AND key = ?")
	prepare(&s.stmtDelTemp, "DelTemp", "DELETE FROM temp_records WHERE tbl = ? AND key = ?")
	prepare(&s.stmtGet, "Get", "SELECT field, value FROM records WHERE tbl = ? AND key = ? ORDER BY field")
	prepare(&s.stmtKeys, "Keys", "SELECT DISTINCT key FROM records WHERE tbl = ? ORDER BY key")
	prepare(&s.stmtClearLive, "ClearLive", "DELETE FROM records WHERE tbl = ?")
	prepare(&s.stmtClearTemp, "ClearTemp", "DELETE FROM temp_records WHERE tbl = ?")
	prepare(&s.stmtCopyTemp, "CopyTemp", `
		INSERT INTO records (tbl, key, field, value)
		SELECT tbl, key, field, value FROM temp_records WHERE tbl = ?`)
	prepare(&s.stmtClearAllTP, "ClearAllTemp", "DELETE FROM temp_records")
	return err
}

// runInTransaction executes fn within a database transaction. The
// transaction commits if fn returns nil and rolls back otherwise.
func (s *Store) runInTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
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

func (t *table) Set(ctx context.Context, key string, fvs teamsync.FieldValues) error {
	stmt := t.s.stmtSetLive
	if t.InTempView() {
		stmt = t.s.stmtSetTemp
	}
	err := t.s.runInTransaction(ctx, func(tx *sql.Tx) error {
		txStmt := tx.StmtContext(ctx, stmt)
		for _, fv := range fvs {
			if _, err := txStmt.ExecContext(ctx, t.name, key, fv.Field, fv.Value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set %s %q: %w", t.name, key, err)
	}
	t.s.logger.Log(ctx, logging.LevelTrace.ToSlog(), "set", "table", t.name, "key", key, "fields", len(fvs))
	return nil
}

func (t *table) Del(ctx context.Context, key string) error {
	stmt := t.s.stmtDelLive
	if t.InTempView() {
		stmt = t.s.stmtDelTemp
	}
	if _, err := stmt.ExecContext(ctx, t.name, key); err != nil {
		return fmt.Errorf("del %s %q: %w", t.name, key, err)
	}
	return nil
}

func (t *table) Get(ctx context.Context, key string) (teamsync.FieldValues, error) {
	rows, err := t.s.stmtGet.QueryContext(ctx, t.name, key)
	if err != nil {
		return nil, fmt.Errorf("get %s %q: %w", t.name, key, err)
	}
	defer rows.Close()

	var fvs teamsync.FieldValues
	for rows.Next() {
		var fv teamsync.FieldValue
		if err := rows.Scan(&fv.Field, &fv.Value); err != nil {
			return nil, fmt.Errorf("scan %s %q: %w", t.name, key, err)
		}
		fvs = append(fvs, fv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(fvs) == 0 {
		return nil, fmt.Errorf("%s %q: %w", t.name, key, store.ErrNotFound)
	}
	return fvs, nil
}

func (t *table) Keys(ctx context.Context) ([]string, error) {
	rows, err := t.s.stmtKeys.QueryContext(ctx, t.name)
	if err != nil {
		return nil, fmt.Errorf("keys %s: %w", t.name, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (t *table) CreateTempView(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.s.stmtClearTemp.ExecContext(ctx, t.name); err != nil {
		return fmt.Errorf("create temp view %s: %w", t.name, err)
	}
	t.temp = true
	t.s.logger.Debug("created temporary view", "table", t.name)
	return nil
}

func (t *table) ApplyTempView(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.temp {
		return fmt.Errorf("%s: no temporary view to apply", t.name)
	}
	err := t.s.runInTransaction(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []*sql.Stmt{t.s.stmtClearLive, t.s.stmtCopyTemp, t.s.stmtClearTemp} {
			if _, err := tx.StmtContext(ctx, stmt).ExecContext(ctx, t.name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply temp view %s: %w", t.name, err)
	}
	t.temp = false
	t.s.logger.Info("applied temporary view", "table", t.name)
	return nil
}
