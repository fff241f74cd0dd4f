// Package warmrestart tracks warm-restart state for teamsyncd in the
// state store.
//
// Enablement is read from WARM_RESTART_ENABLE_TABLE (the peer's own key
// first, then "system"), the reconciliation timer from WARM_RESTART_CFG
// and progress is published to WARM_RESTART_TABLE so that other
// processes can tell when teamsyncd has reconciled.
package warmrestart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/frobware/go-teamsync"
	"github.com/frobware/go-teamsync/store"
)

// State is the reconciliation progress of an application.
type State string

const (
	Initialized State = "initialized"
	Reconciled  State = "reconciled"
)

// Field names in the warm restart tables.
const (
	fieldEnable       = "enable"
	fieldRestoreCount = "restore_count"
	systemKey         = "system"
)

// Coordinator reports whether the process started warm and records its
// reconciliation state.
type Coordinator struct {
	store  store.Store
	logger *slog.Logger
	force  bool

	app, peer   string
	initialized bool
	warm        bool
}

// Options configures a Coordinator.
type Options struct {
	// ForceEnabled treats every start as warm regardless of the store.
	ForceEnabled bool
	Logger       *slog.Logger
}

// New returns a Coordinator backed by st.
func New(st store.Store, opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:  st,
		logger: logger.With("component", "warmrestart"),
		force:  opts.ForceEnabled,
	}
}

// Initialize binds the coordinator to an application and the peer
// (container or service) it runs in.
func (c *Coordinator) Initialize(app, peer string) {
	c.app, c.peer = app, peer
	c.initialized = true
}

// CheckWarmStart reads the enablement flag and updates the restore
// count: incremented on a warm start, reset to zero otherwise.
func (c *Coordinator) CheckWarmStart(ctx context.Context, app, peer string) (bool, error) {
	if !c.initialized {
		c.Initialize(app, peer)
	}

	enabled := c.force
	if !enabled {
		var err error
		if enabled, err = c.enabledInStore(ctx, peer); err != nil {
			return false, err
		}
	}

	tbl := c.store.Table(teamsync.WarmRestartTable)
	count := 0
	if enabled {
		fvs, err := tbl.Get(ctx, app)
		switch {
		case err == nil:
			if v, ok := fvs.Get(fieldRestoreCount); ok {
				if n, perr := strconv.Atoi(v); perr == nil {
					count = n
				}
			}
		case !errors.Is(err, store.ErrNotFound):
			return false, fmt.Errorf("read %s %s: %w", teamsync.WarmRestartTable, app, err)
		}
		count++
	}
	if err := tbl.Set(ctx, app, teamsync.FieldValues{{Field: fieldRestoreCount, Value: strconv.Itoa(count)}}); err != nil {
		return false, fmt.Errorf("write restore count: %w", err)
	}

	c.warm = enabled
	c.logger.Info("checked warm start", "app", app, "peer", peer, "warm", enabled, "restore_count", count)
	return enabled, nil
}

func (c *Coordinator) enabledInStore(ctx context.Context, peer string) (bool, error) {
	tbl := c.store.Table(teamsync.WarmRestartEnableTable)
	for _, key := range []string{peer, systemKey} {
		fvs, err := tbl.Get(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("read %s %s: %w", teamsync.WarmRestartEnableTable, key, err)
		}
		if v, ok := fvs.Get(fieldEnable); ok && v == "true" {
			return true, nil
		}
	}
	return false, nil
}

// IsWarmStart reports the result of the last CheckWarmStart.
func (c *Coordinator) IsWarmStart() bool {
	return c.warm
}

// WarmStartTimer returns the reconciliation timer configured for app
// under peer. The second result is false when none is configured or the
// configured value is not a positive number of seconds.
func (c *Coordinator) WarmStartTimer(ctx context.Context, app, peer string) (time.Duration, bool) {
	fvs, err := c.store.Table(teamsync.WarmRestartCfgTable).Get(ctx, peer)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("failed to read warm restart timer", "peer", peer, "error", err)
		}
		return 0, false
	}
	v, ok := fvs.Get(app + "_timer")
	if !ok {
		return 0, false
	}
	secs, err := strconv.ParseUint(v, 10, 32)
	if err != nil || secs == 0 {
		c.logger.Warn("ignoring invalid warm restart timer", "peer", peer, "app", app, "value", v)
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// SetState publishes the reconciliation state of app.
func (c *Coordinator) SetState(ctx context.Context, app string, state State) error {
	err := c.store.Table(teamsync.WarmRestartTable).Set(ctx, app, teamsync.FieldValues{
		{Field: teamsync.FieldState, Value: string(state)},
	})
	if err != nil {
		return fmt.Errorf("set warm restart state %s: %w", state, err)
	}
	c.logger.Info("warm restart state", "app", app, "state", state)
	return nil
}
