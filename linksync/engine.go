// Package linksync keeps the state store in step with the bundles the
// kernel team driver reports.
//
// The Engine consumes rtnetlink link events. Each team device gets a
// BundleRecord in LAG_TABLE, a lifecycle record in STATE_LAG_TABLE and a
// Monitor that publishes member state to LAG_MEMBER_TABLE.
//
// # Warm Restart
//
// When the process starts warm, LAG_TABLE and LAG_MEMBER_TABLE are
// switched to their temporary views and lifecycle records are held in
// memory. Once the reconciliation timeout has passed, Periodic applies
// both views and flushes the held records. This happens once per
// process; afterwards every write goes straight to the live view.
//
// # Deferred Registration
//
// Monitors are never added to or removed from the event loop while it
// may be dispatching. AddBundle and RemoveBundle only stage the change;
// Periodic applies staged removals and then staged additions.
package linksync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"golang.org/x/sys/unix"

	"github.com/frobware/go-teamsync"
	"github.com/frobware/go-teamsync/compute"
	"github.com/frobware/go-teamsync/interpreter"
	"github.com/frobware/go-teamsync/kernel"
	"github.com/frobware/go-teamsync/logging"
	"github.com/frobware/go-teamsync/selector"
	"github.com/frobware/go-teamsync/store"
	"github.com/frobware/go-teamsync/warmrestart"
)

const (
	// AppName identifies teamsyncd in the warm restart tables.
	AppName = "teamsyncd"
	// PeerName is the service whose warm restart settings apply.
	PeerName = "teamd"
	// DefaultWarmRestartTimeout applies when no timer is configured.
	DefaultWarmRestartTimeout = 70 * time.Second
)

// WarmRestart reports and records warm restart state.
type WarmRestart interface {
	Initialize(app, peer string)
	CheckWarmStart(ctx context.Context, app, peer string) (bool, error)
	IsWarmStart() bool
	WarmStartTimer(ctx context.Context, app, peer string) (time.Duration, bool)
	SetState(ctx context.Context, app string, state warmrestart.State) error
}

// Registrar is the set of polled event sources.
type Registrar interface {
	Add(selector.Selectable) error
	Remove(selector.Selectable) error
}

// Observer hears about bundles appearing and disappearing.
type Observer interface {
	BundleAdded(ctx context.Context, name string)
	BundleRemoved(ctx context.Context, name string)
}

// Options configures an Engine.
type Options struct {
	Store  store.Store
	Driver kernel.TeamDriver
	// WarmRestart may be nil, in which case every start is cold.
	WarmRestart WarmRestart
	// WarmRestartTimeout applies when the coordinator has no timer.
	// Zero means DefaultWarmRestartTimeout.
	WarmRestartTimeout time.Duration
	Observer           Observer
	Monitor            MonitorOptions
	Logger             *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Engine is the link state synchroniser. It is not safe for concurrent
// use; everything runs on the event loop goroutine.
type Engine struct {
	lags      store.ViewTable
	members   store.ViewTable
	stateLags store.Table
	exec      interpreter.ActionExecutor

	driver      kernel.TeamDriver
	warm        WarmRestart
	observer    Observer
	monitorOpts MonitorOptions
	logger      *slog.Logger
	now         func() time.Time

	monitors map[string]*Monitor
	toAdd    map[string]struct{}
	retired  []*Monitor

	warmStart     bool
	warmStartedAt time.Time
	warmTimeout   time.Duration
	preserved     map[string]teamsync.FieldValues
}

// New builds an Engine and, on a warm start, opens the temporary views
// and marks the warm restart state INITIALIZED.
func New(ctx context.Context, opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.Monitor.Logger == nil {
		opts.Monitor.Logger = logger
	}

	e := &Engine{
		lags:        opts.Store.Table(teamsync.LagTable),
		members:     opts.Store.Table(teamsync.LagMemberTable),
		stateLags:   opts.Store.Table(teamsync.StateLagTable),
		driver:      opts.Driver,
		warm:        opts.WarmRestart,
		observer:    opts.Observer,
		monitorOpts: opts.Monitor,
		logger:      logger.With("component", "linksync"),
		now:         now,
		monitors:    make(map[string]*Monitor),
		toAdd:       make(map[string]struct{}),
		preserved:   make(map[string]teamsync.FieldValues),
	}
	e.exec = interpreter.NewExecutor(e.lags, e.members)

	if e.warm == nil {
		return e, nil
	}

	e.warm.Initialize(AppName, PeerName)
	if _, err := e.warm.CheckWarmStart(ctx, AppName, PeerName); err != nil {
		return nil, fmt.Errorf("check warm start: %w", err)
	}
	if !e.warm.IsWarmStart() {
		return e, nil
	}

	e.warmStart = true
	e.warmStartedAt = e.now()
	e.warmTimeout = opts.WarmRestartTimeout
	if e.warmTimeout <= 0 {
		e.warmTimeout = DefaultWarmRestartTimeout
	}
	if d, ok := e.warm.WarmStartTimer(ctx, AppName, PeerName); ok {
		e.warmTimeout = d
	}

	for _, tbl := range []store.ViewTable{e.lags, e.members} {
		if err := tbl.CreateTempView(ctx); err != nil {
			return nil, fmt.Errorf("warm start: %w", err)
		}
	}
	if err := e.warm.SetState(ctx, AppName, warmrestart.Initialized); err != nil {
		return nil, err
	}
	e.logger.Log(ctx, logging.LevelNotice.ToSlog(), "starting in warm restart mode", "timeout", e.warmTimeout)
	return e, nil
}

// InWarmRestart reports whether writes are still being held back.
func (e *Engine) InWarmRestart() bool {
	return e.warmStart
}

// OnLinkEvent handles one rtnetlink link notification. Only team
// devices are of interest. Deleting an untracked bundle is ignored.
func (e *Engine) OnLinkEvent(ctx context.Context, ev kernel.LinkEvent) error {
	if ev.Kind != kernel.LinkEventNew && ev.Kind != kernel.LinkEventDel {
		return nil
	}
	if ev.Driver != teamsync.TeamDriverKind {
		return nil
	}

	attrs := teamsync.BundleAttrs{
		Name:    ev.Name,
		IfIndex: ev.IfIndex,
		AdminUp: ev.Flags&unix.IFF_UP != 0,
		OperUp:  ev.Flags&unix.IFF_LOWER_UP != 0,
		MTU:     ev.MTU,
	}
	e.logger.Info("link event", "kind", ev.Kind, "lag", ev.Name, "admin", attrs.AdminUp,
		"oper", attrs.OperUp, "ifindex", ev.IfIndex, "mtu", ev.MTU)

	if ev.Kind == kernel.LinkEventDel {
		if _, ok := e.monitors[ev.Name]; !ok {
			return nil
		}
		return e.RemoveBundle(ctx, ev.Name)
	}
	return e.AddBundle(ctx, attrs)
}

// AddBundle publishes attrs and starts tracking the bundle if it is
// new.
//
// A tracked bundle whose admin, oper and mtu are unchanged produces no
// writes at all. A changed one has its BundleRecord, cached attributes
// and lifecycle record refreshed. An untracked bundle gets its
// BundleRecord, its lifecycle record and a Monitor staged for
// registration.
//
// If the Monitor cannot be set up, the writes made for the new bundle
// are rolled back and the *teamsync.MonitorInitError is returned.
func (e *Engine) AddBundle(ctx context.Context, attrs teamsync.BundleAttrs) error {
	name := attrs.Name
	var undo undoStack

	m, tracked := e.monitors[name]
	if tracked && m.attrs.SameState(attrs) {
		return nil
	}

	if err := e.lags.Set(ctx, name, attrs.Fields()); err != nil {
		return fmt.Errorf("lag %s: %w", name, err)
	}
	if tracked {
		m.attrs.AdminUp, m.attrs.OperUp, m.attrs.MTU = attrs.AdminUp, attrs.OperUp, attrs.MTU
	} else {
		undo.push(func() error { return e.lags.Del(ctx, name) })
	}

	if err := e.writeState(ctx, name, attrs.StateFields()); err != nil {
		return fmt.Errorf("lag %s: %w", name, err)
	}
	if tracked {
		e.logger.Debug("updated lag", "lag", name)
		return nil
	}
	undo.push(func() error { return e.dropState(ctx, name) })

	m, err := NewMonitor(ctx, attrs, e.driver, e.exec, e.monitorOpts)
	if err != nil {
		e.logger.Error("failed to track lag", "lag", name, "error", err)
		if rerr := undo.rollback(e.logger); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}

	e.monitors[name] = m
	e.toAdd[name] = struct{}{}
	e.logger.Info("tracking lag", "lag", name, "ifindex", attrs.IfIndex)
	if e.observer != nil {
		e.observer.BundleAdded(ctx, name)
	}
	return nil
}

// RemoveBundle deletes the member records of the bundle's known members
// and then its BundleRecord. For a tracked bundle it also drops the
// lifecycle record and stages the Monitor for removal.
func (e *Engine) RemoveBundle(ctx context.Context, name string) error {
	m, tracked := e.monitors[name]
	var members map[string]bool
	if tracked {
		members = m.members
	}

	var errs []error
	if err := e.exec.Execute(ctx, compute.BundleRemoval(name, members)); err != nil {
		errs = append(errs, fmt.Errorf("lag %s: %w", name, err))
	}
	if !tracked {
		return errors.Join(errs...)
	}

	if err := e.dropState(ctx, name); err != nil {
		errs = append(errs, fmt.Errorf("lag %s: %w", name, err))
	}

	delete(e.monitors, name)
	delete(e.toAdd, name)
	e.retired = append(e.retired, m)
	e.logger.Info("removed lag", "lag", name, "members", len(members))
	if e.observer != nil {
		e.observer.BundleRemoved(ctx, name)
	}
	return errors.Join(errs...)
}

func (e *Engine) writeState(ctx context.Context, name string, fvs teamsync.FieldValues) error {
	if e.warmStart {
		e.preserved[name] = fvs.Clone()
		return nil
	}
	return e.stateLags.Set(ctx, name, fvs)
}

func (e *Engine) dropState(ctx context.Context, name string) error {
	if e.warmStart {
		delete(e.preserved, name)
		return nil
	}
	return e.stateLags.Del(ctx, name)
}

// ApplyWarmRestartState applies the temporary views, flushes the held
// lifecycle records and leaves warm restart mode for good. Calls after
// the first, or on a cold start, do nothing.
func (e *Engine) ApplyWarmRestartState(ctx context.Context) error {
	if !e.warmStart {
		return nil
	}
	e.warmStart = false
	e.logger.Log(ctx, logging.LevelNotice.ToSlog(), "applying state", "lags", len(e.preserved))

	var errs []error
	for _, tbl := range []store.ViewTable{e.lags, e.members} {
		if err := tbl.ApplyTempView(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(e.preserved)) {
		if err := e.stateLags.Set(ctx, name, e.preserved[name]); err != nil {
			errs = append(errs, fmt.Errorf("lag %s: %w", name, err))
		}
	}
	e.preserved = nil
	return errors.Join(errs...)
}

// Periodic runs once per event loop iteration, outside dispatch. It
// finishes the warm restart once the timeout has passed and applies
// staged Monitor registrations to reg.
func (e *Engine) Periodic(ctx context.Context, reg Registrar) error {
	var errs []error
	if e.warmStart && e.now().Sub(e.warmStartedAt) > e.warmTimeout {
		errs = append(errs, e.ApplyWarmRestartState(ctx))
		if e.warm != nil {
			errs = append(errs, e.warm.SetState(ctx, AppName, warmrestart.Reconciled))
		}
	}
	errs = append(errs, e.applyStaged(reg))
	return errors.Join(errs...)
}

// applyStaged unregisters and closes retired Monitors, then registers
// the newly tracked ones.
func (e *Engine) applyStaged(reg Registrar) error {
	var errs []error

	for _, m := range e.retired {
		if err := reg.Remove(m); err != nil {
			errs = append(errs, fmt.Errorf("lag %s: %w", m.Name(), err))
		}
		m.Close()
	}
	e.retired = nil

	for _, name := range slices.Sorted(maps.Keys(e.toAdd)) {
		m, ok := e.monitors[name]
		if !ok {
			continue
		}
		if err := reg.Add(m); err != nil {
			e.logger.Error("failed to poll lag", "lag", name, "error", err)
			errs = append(errs, fmt.Errorf("lag %s: %w", name, err))
		}
	}
	clear(e.toAdd)

	return errors.Join(errs...)
}

// Cleanup removes every tracked bundle and releases every Monitor.
func (e *Engine) Cleanup(ctx context.Context, reg Registrar) error {
	e.logger.Log(ctx, logging.LevelNotice.ToSlog(), "cleaning up lags", "count", len(e.monitors))

	var errs []error
	for _, name := range slices.Sorted(maps.Keys(e.monitors)) {
		errs = append(errs, e.RemoveBundle(ctx, name))
	}
	clear(e.toAdd)
	errs = append(errs, e.applyStaged(reg))
	return errors.Join(errs...)
}

// BundleStatus is a snapshot of one tracked bundle.
type BundleStatus struct {
	Attrs   teamsync.BundleAttrs
	Members map[string]bool
}

// Bundles returns the tracked bundles in name order.
func (e *Engine) Bundles() []BundleStatus {
	out := make([]BundleStatus, 0, len(e.monitors))
	for _, name := range slices.Sorted(maps.Keys(e.monitors)) {
		m := e.monitors[name]
		out = append(out, BundleStatus{Attrs: m.Attrs(), Members: m.Members()})
	}
	return out
}

// Tracked reports whether name has a Monitor.
func (e *Engine) Tracked(name string) bool {
	_, ok := e.monitors[name]
	return ok
}

// TrackedNames returns the names of the tracked bundles in order.
func (e *Engine) TrackedNames() []string {
	return slices.Sorted(maps.Keys(e.monitors))
}
