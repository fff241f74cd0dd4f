// Package teamdctl keeps a control channel to teamd for every tracked
// bundle and retrieves state dumps through it.
//
// # Modes
//
// In direct mode each bundle has its own connection to the teamd
// instance serving it. Connecting may fail while teamd starts up, so a
// bundle that cannot be connected waits in the add queue and is retried
// by ProcessAddQueue until MaxAddAttempts is reached.
//
// In unified mode a single teamd process serves every bundle through
// one shared socket. Adding a bundle only records its name; every dump
// is one request on the UnifiedTransport.
//
// A bundle is never both tracked and queued.
package teamdctl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/frobware/go-teamsync/logging"
)

const (
	// MaxAddAttempts bounds connection attempts for a queued bundle.
	MaxAddAttempts = 10
	// MaxDumpRetries is the number of consecutive failed dumps after
	// which a bundle's retry counter is given up.
	MaxDumpRetries = 3
)

// Mode selects how bundles are reached.
type Mode int

const (
	ModeDirect Mode = iota
	ModeUnified
)

func (m Mode) String() string {
	switch m {
	case ModeDirect:
		return "direct"
	case ModeUnified:
		return "unified"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Dump is the outcome of a single dump request. Payload is empty
// unless OK.
type Dump struct {
	OK      bool
	Payload string
}

// DumpEntry is a successful dump paired with its bundle.
type DumpEntry struct {
	Bundle  string
	Payload string
}

// Options configures a Manager.
type Options struct {
	Mode Mode
	// Clients is required in direct mode.
	Clients ClientFactory
	// Transport is required in unified mode.
	Transport Transport
	Logger    *slog.Logger
}

// Manager is not safe for concurrent use.
type Manager struct {
	mode      Mode
	clients   ClientFactory
	transport Transport
	logger    *slog.Logger

	handlers map[string]Handle
	addQueue map[string]int
	errRetry map[string]int
}

// New returns a Manager in the mode given by opts.
func New(opts Options) (*Manager, error) {
	switch opts.Mode {
	case ModeDirect:
		if opts.Clients == nil {
			return nil, errors.New("direct mode needs a client factory")
		}
	case ModeUnified:
		if opts.Transport == nil {
			return nil, errors.New("unified mode needs a transport")
		}
	default:
		return nil, fmt.Errorf("unknown mode %s", opts.Mode)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		mode:      opts.Mode,
		clients:   opts.Clients,
		transport: opts.Transport,
		logger:    logger.With("component", "teamdctl", "mode", opts.Mode.String()),
		handlers:  make(map[string]Handle),
		addQueue:  make(map[string]int),
		errRetry:  make(map[string]int),
	}, nil
}

// Mode reports the mode fixed at construction.
func (m *Manager) Mode() Mode { return m.mode }

// HasKey reports whether name is tracked.
func (m *Manager) HasKey(name string) bool {
	_, ok := m.handlers[name]
	return ok
}

// Bundles returns the tracked bundles in name order.
func (m *Manager) Bundles() []string {
	return slices.Sorted(maps.Keys(m.handlers))
}

// Pending returns the connection attempts made so far for a queued
// bundle.
func (m *Manager) Pending(name string) (int, bool) {
	n, ok := m.addQueue[name]
	return n, ok
}

// PendingBundles returns the queued bundles in name order.
func (m *Manager) PendingBundles() []string {
	return slices.Sorted(maps.Keys(m.addQueue))
}

// RetryCount returns the consecutive failed dumps counted for name.
func (m *Manager) RetryCount(name string) (int, bool) {
	n, ok := m.errRetry[name]
	return n, ok
}

// AddLag tracks name. It is a no-op for a tracked bundle. A direct-mode
// bundle that cannot be connected yet stays queued and AddLag returns
// false.
func (m *Manager) AddLag(ctx context.Context, name string) bool {
	if m.HasKey(name) {
		m.logger.Debug("lag already added", "lag", name)
		return true
	}
	return m.TryAddLag(ctx, name)
}

// TryAddLag makes one attempt to set up the control channel for name.
func (m *Manager) TryAddLag(ctx context.Context, name string) bool {
	if m.mode == ModeUnified {
		m.handlers[name] = &unifiedHandle{bundle: name, transport: m.transport}
		m.logger.Log(ctx, logging.LevelNotice.ToSlog(), "lag will be handled via the unified socket", "lag", name)
		return true
	}

	attempt, ok := m.addQueue[name]
	if !ok {
		m.addQueue[name] = 0
	}

	client, err := m.clients.NewClient(name)
	if err != nil {
		m.logger.Error("failed to allocate teamd client", "lag", name, "attempt", attempt, "error", err)
		m.addQueue[name]++
		return false
	}
	if err := client.Connect(ctx); err != nil {
		if attempt != 0 {
			m.logger.Warn("failed to connect to teamd", "lag", name, "attempt", attempt, "error", err)
		}
		client.Close()
		m.addQueue[name]++
		return false
	}

	m.handlers[name] = &directHandle{client: client}
	delete(m.addQueue, name)
	m.logger.Log(ctx, logging.LevelNotice.ToSlog(), "lag added", "lag", name)
	return true
}

// RemoveLag stops tracking or queueing name and forgets its dump retry
// counter. Removing an unknown bundle is not an error.
func (m *Manager) RemoveLag(ctx context.Context, name string) bool {
	if h, ok := m.handlers[name]; ok {
		if err := h.Release(); err != nil {
			m.logger.Warn("failed to release teamd channel", "lag", name, "error", err)
		}
		delete(m.handlers, name)
		m.logger.Log(ctx, logging.LevelNotice.ToSlog(), "lag removed", "lag", name)
	} else if _, ok := m.addQueue[name]; ok {
		delete(m.addQueue, name)
		m.logger.Debug("lag removed from add queue", "lag", name)
	} else {
		m.logger.Warn("lag was never added, nothing to remove", "lag", name)
	}

	if _, ok := m.errRetry[name]; ok {
		m.logger.Log(ctx, logging.LevelNotice.ToSlog(), "dropping dump retry counter", "lag", name)
		delete(m.errRetry, name)
	}
	return true
}

// ProcessAddQueue retries every queued bundle once. A bundle that has
// used MaxAddAttempts is dropped with an error.
func (m *Manager) ProcessAddQueue(ctx context.Context) {
	for _, name := range m.PendingBundles() {
		if m.TryAddLag(ctx, name) {
			continue
		}
		if m.addQueue[name] >= MaxAddAttempts {
			m.logger.Error("giving up connecting to teamd", "lag", name, "attempts", MaxAddAttempts)
			delete(m.addQueue, name)
		}
	}
}

// GetDump fetches the state dump of name.
//
// With toRetry a failure is counted; the MaxDumpRetries-th consecutive
// failure logs one error and resets the count. Without toRetry every
// failure is logged. A success clears the count.
func (m *Manager) GetDump(ctx context.Context, name string, toRetry bool) Dump {
	h, ok := m.handlers[name]
	if !ok {
		m.logger.Error("cannot get dump, lag not found", "lag", name)
		return Dump{}
	}

	payload, err := h.Dump(ctx)
	if err == nil {
		if _, ok := m.errRetry[name]; ok {
			m.logger.Debug("dump recovered", "lag", name)
			delete(m.errRetry, name)
		}
		return Dump{OK: true, Payload: payload}
	}

	if !toRetry {
		m.logger.Error("cannot get dump, skipping", "lag", name, "error", err)
		return Dump{}
	}
	n := m.errRetry[name] + 1
	if n >= MaxDumpRetries {
		m.logger.Error("cannot get dump, skipping", "lag", name, "failures", n, "error", err)
		delete(m.errRetry, name)
		return Dump{}
	}
	m.errRetry[name] = n
	m.logger.Debug("dump failed", "lag", name, "failures", n, "error", err)
	return Dump{}
}

// GetDumps fetches a dump for every tracked bundle and returns the
// successful ones in bundle order.
func (m *Manager) GetDumps(ctx context.Context, toRetry bool) []DumpEntry {
	var out []DumpEntry
	for _, name := range m.Bundles() {
		if d := m.GetDump(ctx, name, toRetry); d.OK {
			out = append(out, DumpEntry{Bundle: name, Payload: d.Payload})
		}
	}
	return out
}

// Close releases every channel.
func (m *Manager) Close() error {
	var errs []error
	for _, name := range m.Bundles() {
		if err := m.handlers[name].Release(); err != nil {
			errs = append(errs, fmt.Errorf("lag %s: %w", name, err))
		}
		if m.mode == ModeDirect {
			m.logger.Log(context.Background(), logging.LevelNotice.ToSlog(), "exiting, disconnected from teamd", "lag", name)
		}
	}
	clear(m.handlers)
	clear(m.addQueue)
	clear(m.errRetry)
	return errors.Join(errs...)
}

