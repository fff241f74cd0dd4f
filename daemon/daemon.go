// Package daemon runs teamsyncd: the link state synchroniser, the teamd
// control channels and the API server.
//
// Everything that mutates engine or channel state runs on one
// goroutine, the event loop. Each iteration waits for ready sources (the
// link feed, one per bundle monitor, and the notifier carrying API
// requests), then runs the engine's periodic step and finally, when due,
// a telemetry pass.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frobware/go-teamsync"
	"github.com/frobware/go-teamsync/kernel"
	"github.com/frobware/go-teamsync/linksync"
	"github.com/frobware/go-teamsync/selector"
	"github.com/frobware/go-teamsync/server"
	"github.com/frobware/go-teamsync/store"
	"github.com/frobware/go-teamsync/teamdctl"
)

const (
	DefaultTickInterval = time.Second
	DefaultDumpInterval = 5 * time.Second
)

// Options configures a Daemon.
type Options struct {
	Store              store.Store
	Driver             kernel.TeamDriver
	WarmRestart        linksync.WarmRestart
	WarmRestartTimeout time.Duration
	Channels           *teamdctl.Manager
	TickInterval       time.Duration
	DumpInterval       time.Duration
	Logger             *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Daemon owns the event loop.
type Daemon struct {
	engine   *linksync.Engine
	channels *teamdctl.Manager
	sel      *selector.Selector
	notifier *selector.Notifier
	tlm      *telemetry
	tick     time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

var _ server.Backend = (*Daemon)(nil)

// New builds the engine and the event loop. The caller adds the link
// feed with AddSource and then runs Loop.
func New(ctx context.Context, opts Options) (*Daemon, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "daemon")
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	tick := opts.TickInterval
	if tick <= 0 {
		tick = DefaultTickInterval
	}
	dumpInterval := opts.DumpInterval
	if dumpInterval <= 0 {
		dumpInterval = DefaultDumpInterval
	}

	dumps := opts.Store.Table(teamsync.LagDumpTable)
	engine, err := linksync.New(ctx, linksync.Options{
		Store:              opts.Store,
		Driver:             opts.Driver,
		WarmRestart:        opts.WarmRestart,
		WarmRestartTimeout: opts.WarmRestartTimeout,
		Observer:           &channelObserver{channels: opts.Channels, dumps: dumps, logger: logger},
		Logger:             opts.Logger,
		Now:                now,
	})
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	sel, err := selector.New(opts.Logger)
	if err != nil {
		return nil, err
	}
	notifier, err := selector.NewNotifier()
	if err != nil {
		sel.Close()
		return nil, err
	}
	if err := sel.Add(notifier); err != nil {
		notifier.Close()
		sel.Close()
		return nil, err
	}

	return &Daemon{
		engine:   engine,
		channels: opts.Channels,
		sel:      sel,
		notifier: notifier,
		tlm: &telemetry{
			channels: opts.Channels,
			dumps:    dumps,
			interval: dumpInterval,
			logger:   logger,
		},
		tick:   tick,
		now:    now,
		logger: logger,
	}, nil
}

// AddSource polls src on the event loop.
func (d *Daemon) AddSource(src selector.Selectable) error {
	return d.sel.Add(src)
}

// OnLinkEvent feeds one link notification to the engine. It must be
// called on the event loop goroutine.
func (d *Daemon) OnLinkEvent(ctx context.Context, ev kernel.LinkEvent) error {
	return d.engine.OnLinkEvent(ctx, ev)
}

// TrackedBundles returns the bundles the engine follows. It must be
// called on the event loop goroutine.
func (d *Daemon) TrackedBundles() []string {
	return d.engine.TrackedNames()
}

// Loop runs the event loop until ctx is done, then removes every bundle
// and releases all kernel handles and teamd channels.
func (d *Daemon) Loop(ctx context.Context) error {
	d.logger.Info("event loop started", "tick", d.tick)
	var loopErr error
	for ctx.Err() == nil {
		if err := d.step(ctx); err != nil {
			loopErr = err
			break
		}
	}
	return errors.Join(loopErr, d.shutdown())
}

// step runs one loop iteration.
func (d *Daemon) step(ctx context.Context) error {
	if _, err := d.sel.Select(ctx, d.tick); err != nil {
		return err
	}
	if err := d.engine.Periodic(ctx, d.sel); err != nil {
		d.logger.Error("periodic step failed", "error", err)
	}
	if now := d.now(); d.tlm.due(now) {
		d.tlm.run(ctx, now)
	}
	return nil
}

func (d *Daemon) shutdown() error {
	d.logger.Info("event loop stopping")
	// Queued API requests would never be answered.
	d.notifier.Close()

	ctx := context.Background()
	errs := []error{
		d.engine.Cleanup(ctx, d.sel),
		d.channels.Close(),
	}
	return errors.Join(errs...)
}

// Close releases the selector. Call it after Loop returns.
func (d *Daemon) Close() error {
	return d.sel.Close()
}

type dumpResult struct {
	dump string
	err  error
}

// GetDump implements server.Backend.
func (d *Daemon) GetDump(ctx context.Context, name string) (string, error) {
	r, err := selector.Call(ctx, d.notifier, func(ctx context.Context) dumpResult {
		if !d.channels.HasKey(name) {
			return dumpResult{err: teamsync.ErrBundleNotTracked{Name: name}}
		}
		dump := d.channels.GetDump(ctx, name, false)
		if !dump.OK {
			return dumpResult{err: fmt.Errorf("%w: no dump for %s", teamsync.ErrTransport, name)}
		}
		return dumpResult{dump: dump.Payload}
	})
	if err != nil {
		return "", err
	}
	return r.dump, r.err
}

// GetDumps implements server.Backend.
func (d *Daemon) GetDumps(ctx context.Context) ([]teamdctl.DumpEntry, error) {
	return selector.Call(ctx, d.notifier, func(ctx context.Context) []teamdctl.DumpEntry {
		return d.channels.GetDumps(ctx, false)
	})
}

// ListBundles implements server.Backend.
func (d *Daemon) ListBundles(ctx context.Context) ([]teamsync.BundleInfo, error) {
	return selector.Call(ctx, d.notifier, func(context.Context) []teamsync.BundleInfo {
		var out []teamsync.BundleInfo
		for _, b := range d.engine.Bundles() {
			out = append(out, teamsync.BundleInfo{
				BundleAttrs: b.Attrs,
				Members:     b.Members,
				Channel:     d.channels.HasKey(b.Attrs.Name),
			})
		}
		return out
	})
}

// AddChannel implements server.Backend.
func (d *Daemon) AddChannel(ctx context.Context, name string) (bool, error) {
	return selector.Call(ctx, d.notifier, func(ctx context.Context) bool {
		return d.channels.AddLag(ctx, name)
	})
}

// RemoveChannel implements server.Backend.
func (d *Daemon) RemoveChannel(ctx context.Context, name string) error {
	_, err := selector.Call(ctx, d.notifier, func(ctx context.Context) bool {
		return d.channels.RemoveLag(ctx, name)
	})
	return err
}
