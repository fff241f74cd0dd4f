// Package store defines the state store contract used by the bundle
// synchroniser: keyed records of field/value tuples grouped in tables,
// plus a temporary view that buffers writes until it is applied.
package store

import (
	"context"
	"errors"
	"io"

	"github.com/frobware/go-teamsync"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Table is typed write/delete access to one logical table.
//
// Set merges fields into the record (fields not named are kept), Del
// removes the whole record. Deleting an absent record is not an error.
type Table interface {
	Name() string
	Set(ctx context.Context, key string, fvs teamsync.FieldValues) error
	Del(ctx context.Context, key string) error
	// Get returns the record as seen in the live view.
	// Returns ErrNotFound if the record does not exist.
	Get(ctx context.Context, key string) (teamsync.FieldValues, error)
	// Keys returns the keys of the live view in ascending order.
	Keys(ctx context.Context) ([]string, error)
}

// ViewTable is a Table with a temporary view.
//
// After CreateTempView every Set and Del is applied to an initially
// empty shadow copy of the table instead of the live view. ApplyTempView
// atomically replaces the live content with the shadow content, which
// removes live records that were not rewritten while the view was open,
// and returns the table to direct mode.
type ViewTable interface {
	Table
	CreateTempView(ctx context.Context) error
	ApplyTempView(ctx context.Context) error
	// InTempView reports whether writes are currently buffered.
	InTempView() bool
}

// Store hands out tables by name.
type Store interface {
	io.Closer
	Table(name string) ViewTable
}
