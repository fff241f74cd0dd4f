// Package teamgenl talks to the Linux team driver over its generic
// netlink family ("team").
//
// Queries (port list, options) go over a request socket owned by the
// driver handle. Change notifications arrive on a separate non-blocking
// socket joined to the "change_event" multicast group; its descriptor is
// what the event loop polls.
package teamgenl

import (
	"errors"
	"fmt"
	"log/slog"
	"syscall"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"

	"github.com/frobware/go-teamsync/kernel"
)

const (
	familyName       = "team"
	familyVersion    = 1
	changeEventGroup = "change_event"

	eventBufferSize = 64 * 1024
)

// Driver allocates team netlink handles.
type Driver struct {
	logger *slog.Logger
}

var _ kernel.TeamDriver = (*Driver)(nil)

// New returns a Driver.
func New(logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{logger: logger.With("component", "teamgenl")}
}

// AllocNetlink resolves the team family and opens a request socket.
func (d *Driver) AllocNetlink() (kernel.TeamNetlink, error) {
	fam, err := netlink.GenlFamilyGet(familyName)
	if err != nil {
		return nil, fmt.Errorf("resolve generic netlink family %q: %w", familyName, err)
	}

	group, ok := uint32(0), false
	for _, g := range fam.Groups {
		if g.Name == changeEventGroup {
			group, ok = g.ID, true
			break
		}
	}
	if !ok {
		return nil, fmt.Errorf("family %q has no %q multicast group", familyName, changeEventGroup)
	}

	sock, err := nl.Subscribe(unix.NETLINK_GENERIC)
	if err != nil {
		return nil, fmt.Errorf("open team request socket: %w", err)
	}

	return &Netlink{
		family: fam.ID,
		group:  group,
		sock:   &nl.SocketHandle{Socket: sock},
		logger: d.logger,
	}, nil
}

// Netlink is a driver-level handle.
type Netlink struct {
	family uint16
	group  uint32
	sock   *nl.SocketHandle
	logger *slog.Logger
}

// AllocTeam returns an uninitialised team handle.
func (h *Netlink) AllocTeam() (kernel.Team, error) {
	if h.sock == nil {
		return nil, errors.New("team netlink handle already freed")
	}
	return &Team{nl: h, fd: -1}, nil
}

// Free closes the request socket.
func (h *Netlink) Free() {
	if h.sock != nil {
		h.sock.Socket.Close()
		h.sock = nil
	}
}

func (h *Netlink) request(cmd uint8, ifindex uint32) ([][]byte, error) {
	if h.sock == nil {
		return nil, errors.New("team netlink handle freed")
	}
	req := nl.NewNetlinkRequest(int(h.family), 0)
	req.Sockets = map[int]*nl.SocketHandle{unix.NETLINK_GENERIC: h.sock}
	req.AddData(&nl.Genlmsg{Command: cmd, Version: familyVersion})
	req.AddData(nl.NewRtAttr(attrTeamIfIndex, nl.Uint32Attr(ifindex)))
	return req.Execute(unix.NETLINK_GENERIC, h.family)
}

// Team is a handle on one team device.
type Team struct {
	nl      *Netlink
	ifindex uint32
	mask    kernel.ChangeMask
	fd      int
	buf     []byte
}

// Init binds the handle to ifindex and checks that the driver answers
// for it.
func (t *Team) Init(ifindex uint32) error {
	if _, err := t.nl.request(cmdPortListGet, ifindex); err != nil {
		return fmt.Errorf("team ifindex %d: %w", ifindex, err)
	}
	t.ifindex = ifindex
	return nil
}

// RegisterChangeHandler joins the change_event group.
func (t *Team) RegisterChangeHandler(mask kernel.ChangeMask) error {
	if t.fd >= 0 {
		t.mask = mask
		return nil
	}

	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, unix.NETLINK_GENERIC)
	if err != nil {
		return fmt.Errorf("open team event socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK}); err != nil {
		unix.Close(fd)
		return fmt.Errorf("bind team event socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_NETLINK, unix.NETLINK_ADD_MEMBERSHIP, int(t.nl.group)); err != nil {
		unix.Close(fd)
		return fmt.Errorf("join %s group: %w", changeEventGroup, err)
	}

	t.fd = fd
	t.mask = mask
	t.buf = make([]byte, eventBufferSize)
	return nil
}

// UnregisterChangeHandler closes the event socket.
func (t *Team) UnregisterChangeHandler() {
	if t.fd >= 0 {
		unix.Close(t.fd)
		t.fd = -1
	}
	t.mask = 0
}

func (t *Team) Ports() ([]kernel.Port, error) {
	msgs, err := t.nl.request(cmdPortListGet, t.ifindex)
	if err != nil {
		return nil, fmt.Errorf("port list of ifindex %d: %w", t.ifindex, err)
	}
	return parsePortList(msgs)
}

func (t *Team) PortEnabled(ifindex uint32) (bool, error) {
	msgs, err := t.nl.request(cmdOptionsGet, t.ifindex)
	if err != nil {
		return false, fmt.Errorf("options of ifindex %d: %w", t.ifindex, err)
	}
	return parsePortEnabled(msgs, ifindex)
}

func (t *Team) IfIndexToName(ifindex uint32) (string, bool) {
	link, err := netlink.LinkByIndex(int(ifindex))
	if err != nil {
		return "", false
	}
	return link.Attrs().Name, true
}

// EventFD returns the event socket, or -1 before registration.
func (t *Team) EventFD() int {
	return t.fd
}

// HandleEvents drains the event socket and reports which registered
// change kinds were signalled for this team. A receive buffer overrun
// reports every registered kind since notifications were lost.
func (t *Team) HandleEvents() (kernel.ChangeMask, error) {
	if t.fd < 0 {
		return 0, errors.New("no change handler registered")
	}

	var changed kernel.ChangeMask
	for {
		n, _, err := unix.Recvfrom(t.fd, t.buf, 0)
		switch {
		case errors.Is(err, unix.EAGAIN):
			return changed & t.mask, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.ENOBUFS):
			t.nl.logger.Warn("team event socket overrun", "ifindex", t.ifindex)
			changed |= kernel.PortChange | kernel.OptionChange
			continue
		case err != nil:
			return changed & t.mask, fmt.Errorf("receive team events: %w", err)
		}

		msgs, err := syscall.ParseNetlinkMessage(t.buf[:n])
		if err != nil {
			return changed & t.mask, fmt.Errorf("parse team events: %w", err)
		}
		for _, m := range msgs {
			if m.Header.Type != t.nl.family {
				continue
			}
			if mask, ok := eventMask(m.Data, t.ifindex); ok {
				changed |= mask
			}
		}
	}
}

// Free releases the event socket.
func (t *Team) Free() {
	t.UnregisterChangeHandler()
}
