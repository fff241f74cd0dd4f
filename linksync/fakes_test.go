package linksync_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/frobware/go-teamsync/kernel"
	"github.com/frobware/go-teamsync/linksync"
	"github.com/frobware/go-teamsync/selector"
	"github.com/frobware/go-teamsync/warmrestart"
)

func testLogger() *slog.Logger {
	if os.Getenv("TEAMSYNC_TEST_LOG") != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(-8)}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// teamDevice is the kernel-side state of one fake team device.
type teamDevice struct {
	ports   []kernel.Port
	enabled map[uint32]bool
	pending kernel.ChangeMask
}

// fakeDriver records every handle operation in calls and fails the
// next failX calls of each step.
type fakeDriver struct {
	devices map[uint32]*teamDevice
	names   map[uint32]string

	failNetlink  int
	failTeam     int
	failInit     int
	failRegister int

	calls []string
	live  int // allocated handles not yet freed
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		devices: make(map[uint32]*teamDevice),
		names:   make(map[uint32]string),
	}
}

// addPort attaches a member port to the team device at teamIfIndex.
func (d *fakeDriver) addPort(teamIfIndex, ifindex uint32, name string, enabled bool) {
	dev, ok := d.devices[teamIfIndex]
	if !ok {
		dev = &teamDevice{enabled: make(map[uint32]bool)}
		d.devices[teamIfIndex] = dev
	}
	dev.ports = append(dev.ports, kernel.Port{IfIndex: ifindex})
	dev.enabled[ifindex] = enabled
	d.names[ifindex] = name
	dev.pending |= kernel.PortChange
}

func (d *fakeDriver) device(ifindex uint32) *teamDevice {
	dev, ok := d.devices[ifindex]
	if !ok {
		dev = &teamDevice{enabled: make(map[uint32]bool)}
		d.devices[ifindex] = dev
	}
	return dev
}

func (d *fakeDriver) AllocNetlink() (kernel.TeamNetlink, error) {
	d.calls = append(d.calls, "alloc-netlink")
	if d.failNetlink > 0 {
		d.failNetlink--
		return nil, errors.New("netlink unavailable")
	}
	d.live++
	return &fakeNetlink{d: d}, nil
}

type fakeNetlink struct {
	d *fakeDriver
}

func (n *fakeNetlink) AllocTeam() (kernel.Team, error) {
	n.d.calls = append(n.d.calls, "alloc-team")
	if n.d.failTeam > 0 {
		n.d.failTeam--
		return nil, errors.New("team socket unavailable")
	}
	n.d.live++
	return &fakeTeam{d: n.d}, nil
}

func (n *fakeNetlink) Free() {
	n.d.calls = append(n.d.calls, "free-netlink")
	n.d.live--
}

type fakeTeam struct {
	d          *fakeDriver
	ifindex    uint32
	registered bool
}

func (t *fakeTeam) dev() *teamDevice { return t.d.device(t.ifindex) }

func (t *fakeTeam) Init(ifindex uint32) error {
	t.d.calls = append(t.d.calls, "init")
	if t.d.failInit > 0 {
		t.d.failInit--
		return errors.New("no such team")
	}
	t.ifindex = ifindex
	return nil
}

func (t *fakeTeam) RegisterChangeHandler(kernel.ChangeMask) error {
	t.d.calls = append(t.d.calls, "register")
	if t.d.failRegister > 0 {
		t.d.failRegister--
		return errors.New("register failed")
	}
	t.registered = true
	return nil
}

func (t *fakeTeam) UnregisterChangeHandler() {
	t.d.calls = append(t.d.calls, "unregister")
	t.registered = false
}

func (t *fakeTeam) Ports() ([]kernel.Port, error) {
	return append([]kernel.Port(nil), t.dev().ports...), nil
}

func (t *fakeTeam) PortEnabled(ifindex uint32) (bool, error) {
	enabled, ok := t.dev().enabled[ifindex]
	if !ok {
		return false, fmt.Errorf("no option for port %d", ifindex)
	}
	return enabled, nil
}

func (t *fakeTeam) IfIndexToName(ifindex uint32) (string, bool) {
	name, ok := t.d.names[ifindex]
	return name, ok
}

// EventFD fakes a unique descriptor per team device.
func (t *fakeTeam) EventFD() int { return 1000 + int(t.ifindex) }

func (t *fakeTeam) HandleEvents() (kernel.ChangeMask, error) {
	dev := t.dev()
	mask := dev.pending
	dev.pending = 0
	return mask, nil
}

func (t *fakeTeam) Free() {
	t.d.calls = append(t.d.calls, "free-team")
	t.d.live--
}

// fakeRegistrar records staged registrations by bundle name.
type fakeRegistrar struct {
	polled  map[int]*linksync.Monitor
	added   []string
	removed []string
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{polled: make(map[int]*linksync.Monitor)}
}

func (r *fakeRegistrar) Add(s selector.Selectable) error {
	m := s.(*linksync.Monitor)
	r.polled[m.FD()] = m
	r.added = append(r.added, m.Name())
	return nil
}

func (r *fakeRegistrar) Remove(s selector.Selectable) error {
	m := s.(*linksync.Monitor)
	if r.polled[m.FD()] == m {
		delete(r.polled, m.FD())
	}
	r.removed = append(r.removed, m.Name())
	return nil
}

// dispatch calls ReadData on every polled monitor, like one Select.
func (r *fakeRegistrar) dispatch(ctx context.Context) error {
	var errs []error
	for _, m := range r.polled {
		errs = append(errs, m.ReadData(ctx))
	}
	return errors.Join(errs...)
}

type fakeWarmRestart struct {
	warm     bool
	timer    time.Duration
	hasTimer bool
	states   []warmrestart.State
}

func (w *fakeWarmRestart) Initialize(string, string) {}

func (w *fakeWarmRestart) CheckWarmStart(context.Context, string, string) (bool, error) {
	return w.warm, nil
}

func (w *fakeWarmRestart) IsWarmStart() bool { return w.warm }

func (w *fakeWarmRestart) WarmStartTimer(context.Context, string, string) (time.Duration, bool) {
	return w.timer, w.hasTimer
}

func (w *fakeWarmRestart) SetState(_ context.Context, _ string, state warmrestart.State) error {
	w.states = append(w.states, state)
	return nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type recordingObserver struct {
	events []string
}

func (o *recordingObserver) BundleAdded(_ context.Context, name string) {
	o.events = append(o.events, "add "+name)
}

func (o *recordingObserver) BundleRemoved(_ context.Context, name string) {
	o.events = append(o.events, "remove "+name)
}
