package linksync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/frobware/go-teamsync"
	"github.com/frobware/go-teamsync/compute"
	"github.com/frobware/go-teamsync/interpreter"
	"github.com/frobware/go-teamsync/kernel"
	"github.com/frobware/go-teamsync/selector"
)

const (
	// DefaultMonitorAttempts bounds team handle setup per bundle.
	DefaultMonitorAttempts = 3
	// DefaultMonitorBackoff is the pause between setup attempts.
	DefaultMonitorBackoff = time.Second

	changeMask = kernel.PortChange | kernel.OptionChange
)

// MonitorOptions tunes Monitor construction.
type MonitorOptions struct {
	Attempts int
	Backoff  time.Duration
	// Sleep defaults to time.Sleep.
	Sleep  func(time.Duration)
	Logger *slog.Logger
}

// Monitor tracks the member ports of one bundle through a team driver
// handle and publishes their enabled state to LAG_MEMBER_TABLE.
type Monitor struct {
	attrs   teamsync.BundleAttrs
	members map[string]bool

	exec   interpreter.ActionExecutor
	nl     kernel.TeamNetlink
	team   kernel.Team
	logger *slog.Logger
}

var _ selector.Selectable = (*Monitor)(nil)

// NewMonitor sets up the team driver handles for attrs.IfIndex and
// publishes the initial member state.
//
// Setup allocates the driver handle, the team handle, binds it to the
// ifindex and registers for port and option changes. A failed attempt
// releases whatever it allocated before the next one starts. After the
// last failed attempt NewMonitor returns a *teamsync.MonitorInitError.
func NewMonitor(ctx context.Context, attrs teamsync.BundleAttrs, driver kernel.TeamDriver, exec interpreter.ActionExecutor, opts MonitorOptions) (*Monitor, error) {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultMonitorAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultMonitorBackoff
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Monitor{
		attrs:   attrs,
		members: make(map[string]bool),
		exec:    exec,
		logger:  logger.With("component", "monitor", "lag", attrs.Name),
	}

	for attempt := 1; ; attempt++ {
		err := m.open(driver)
		if err == nil {
			break
		}
		if attempt >= opts.Attempts {
			return nil, &teamsync.MonitorInitError{
				Bundle:   attrs.Name,
				IfIndex:  attrs.IfIndex,
				Attempts: attempt,
				Err:      err,
			}
		}
		m.logger.Warn("failed to initialize team handler", "ifindex", attrs.IfIndex, "attempt", attempt, "error", err)
		opts.Sleep(opts.Backoff)
	}

	if err := m.OnChange(ctx); err != nil {
		m.logger.Warn("initial member sync failed", "error", err)
	}
	return m, nil
}

func (m *Monitor) open(driver kernel.TeamDriver) error {
	var undo undoStack
	fail := func(err error) error {
		return errors.Join(err, undo.rollback(m.logger))
	}

	nl, err := driver.AllocNetlink()
	if err != nil {
		return fmt.Errorf("allocate team netlink handle: %w", err)
	}
	undo.push(func() error { nl.Free(); return nil })

	team, err := nl.AllocTeam()
	if err != nil {
		return fail(fmt.Errorf("allocate team handle: %w", err))
	}
	undo.push(func() error { team.Free(); return nil })

	if err := team.Init(m.attrs.IfIndex); err != nil {
		return fail(fmt.Errorf("initialize team handle: %w", err))
	}
	if err := team.RegisterChangeHandler(changeMask); err != nil {
		return fail(fmt.Errorf("register %s change handler: %w", changeMask, err))
	}

	m.nl, m.team = nl, team
	return nil
}

// Name returns the bundle name.
func (m *Monitor) Name() string { return m.attrs.Name }

// Attrs returns the cached bundle attributes.
func (m *Monitor) Attrs() teamsync.BundleAttrs { return m.attrs }

// Members returns a copy of the last published member state.
func (m *Monitor) Members() map[string]bool { return maps.Clone(m.members) }

// OnChange re-reads the member ports from the driver, publishes the
// difference against the last published state and makes the new state
// the baseline, even when publishing failed.
func (m *Monitor) OnChange(ctx context.Context) error {
	if m.team == nil {
		return errors.New("monitor closed")
	}

	ports, err := m.team.Ports()
	if err != nil {
		return fmt.Errorf("enumerate ports: %w", err)
	}

	next := make(map[string]bool, len(ports))
	for _, p := range ports {
		name, ok := m.team.IfIndexToName(p.IfIndex)
		if !ok {
			m.logger.Info("interface not found", "ifindex", p.IfIndex)
			continue
		}
		if p.Removed {
			continue
		}
		enabled, err := m.team.PortEnabled(p.IfIndex)
		if err != nil {
			// Keep the last published flag rather than flap the member.
			enabled = m.members[name]
			m.logger.Warn("failed to read port enabled state", "member", name, "error", err)
		}
		next[name] = enabled
	}

	actions := compute.MemberDiff(m.attrs.Name, m.members, next)
	for _, a := range actions {
		m.logger.Debug("member change", "action", fmt.Sprintf("%T", a), "detail", a)
	}
	err = m.exec.ExecuteAll(ctx, actions)
	m.members = next
	if err != nil {
		return fmt.Errorf("publish member state: %w", err)
	}
	return nil
}

// FD returns the driver event descriptor, or -1 once closed.
func (m *Monitor) FD() int {
	if m.team == nil {
		return -1
	}
	return m.team.EventFD()
}

// ReadData drains pending driver events and resyncs the members when a
// port or option change was reported.
func (m *Monitor) ReadData(ctx context.Context) error {
	if m.team == nil {
		return nil
	}
	changed, err := m.team.HandleEvents()
	if err != nil {
		return fmt.Errorf("lag %s: handle team events: %w", m.attrs.Name, err)
	}
	if changed&changeMask == 0 {
		return nil
	}
	return m.OnChange(ctx)
}

// Close unregisters the change handler and frees the team handle and
// then the driver handle. It is safe to call more than once.
func (m *Monitor) Close() error {
	if m.team != nil {
		m.team.UnregisterChangeHandler()
		m.team.Free()
		m.team = nil
	}
	if m.nl != nil {
		m.nl.Free()
		m.nl = nil
	}
	return nil
}
