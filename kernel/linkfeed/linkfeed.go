// Package linkfeed delivers rtnetlink link notifications as
// kernel.LinkEvents. A Feed is a selector.Selectable: the event loop
// polls its socket and ReadData hands each decoded message to the
// handler.
package linkfeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"syscall"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"

	"github.com/frobware/go-teamsync"
	"github.com/frobware/go-teamsync/kernel"
	"github.com/frobware/go-teamsync/selector"
)

// Handler consumes one link event.
type Handler func(ctx context.Context, ev kernel.LinkEvent) error

// Feed is a subscription to the RTNLGRP_LINK multicast group.
type Feed struct {
	sock    *nl.NetlinkSocket
	handler Handler
	tracked func() []string
	logger  *slog.Logger

	// list enumerates the current links; netlink.LinkList by default.
	list func() ([]netlink.Link, error)
}

var _ selector.Selectable = (*Feed)(nil)

// Subscribe joins the link notification group. tracked lists the team
// devices the handler currently follows; Dump uses it to report the
// ones that disappeared while notifications were lost. It may be nil.
func Subscribe(handler Handler, tracked func() []string, logger *slog.Logger) (*Feed, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sock, err := nl.Subscribe(unix.NETLINK_ROUTE, unix.RTNLGRP_LINK)
	if err != nil {
		return nil, fmt.Errorf("subscribe to link notifications: %w", err)
	}
	return &Feed{
		sock:    sock,
		handler: handler,
		tracked: tracked,
		logger:  logger.With("component", "linkfeed"),
		list:    netlink.LinkList,
	}, nil
}

// FD returns the subscription socket.
func (f *Feed) FD() int {
	return f.sock.GetFd()
}

// ReadData receives one batch of notifications and dispatches them in
// order. Handler errors are logged; the remaining messages are still
// delivered.
func (f *Feed) ReadData(ctx context.Context) error {
	msgs, _, err := f.sock.Receive()
	if err != nil {
		if errors.Is(err, unix.ENOBUFS) {
			f.logger.Warn("link notifications overran, resyncing")
			return f.Dump(ctx)
		}
		return fmt.Errorf("receive link notifications: %w", err)
	}
	for _, m := range msgs {
		ev, ok, err := FromMessage(m)
		if err != nil {
			f.logger.Warn("undecodable link message", "type", m.Header.Type, "error", err)
			continue
		}
		if !ok {
			continue
		}
		f.dispatch(ctx, ev)
	}
	return nil
}

// Dump delivers a LinkEventNew for every existing link, so links that
// predate the subscription are seen, followed by a LinkEventDel for
// every tracked team device that no longer exists.
func (f *Feed) Dump(ctx context.Context) error {
	links, err := f.list()
	if err != nil {
		return fmt.Errorf("list links: %w", err)
	}
	f.logger.Debug("dumping existing links", "count", len(links))
	present := make(map[string]bool)
	for _, l := range links {
		ev := FromLink(kernel.LinkEventNew, l)
		if ev.Driver == teamsync.TeamDriverKind {
			present[ev.Name] = true
		}
		f.dispatch(ctx, ev)
	}

	if f.tracked == nil {
		return nil
	}
	for _, name := range f.tracked() {
		if present[name] {
			continue
		}
		f.logger.Info("tracked bundle vanished during resync", "lag", name)
		f.dispatch(ctx, kernel.LinkEvent{Kind: kernel.LinkEventDel, Name: name, Driver: teamsync.TeamDriverKind})
	}
	return nil
}

func (f *Feed) dispatch(ctx context.Context, ev kernel.LinkEvent) {
	if err := f.handler(ctx, ev); err != nil {
		f.logger.Error("link event failed", "kind", ev.Kind, "link", ev.Name, "error", err)
	}
}

// Close releases the subscription socket.
func (f *Feed) Close() error {
	f.sock.Close()
	return nil
}

// FromMessage decodes an RTM_NEWLINK or RTM_DELLINK message. ok is
// false for any other message type.
func FromMessage(m syscall.NetlinkMessage) (ev kernel.LinkEvent, ok bool, err error) {
	var kind kernel.LinkEventKind
	switch m.Header.Type {
	case unix.RTM_NEWLINK:
		kind = kernel.LinkEventNew
	case unix.RTM_DELLINK:
		kind = kernel.LinkEventDel
	default:
		return kernel.LinkEvent{}, false, nil
	}
	link, err := netlink.LinkDeserialize(&m.Header, m.Data)
	if err != nil {
		return kernel.LinkEvent{}, false, err
	}
	return FromLink(kind, link), true, nil
}

// FromLink converts a netlink.Link.
func FromLink(kind kernel.LinkEventKind, l netlink.Link) kernel.LinkEvent {
	attrs := l.Attrs()
	return kernel.LinkEvent{
		Kind:    kind,
		Name:    attrs.Name,
		Driver:  l.Type(),
		IfIndex: uint32(attrs.Index),
		Flags:   attrs.RawFlags,
		MTU:     uint32(attrs.MTU),
	}
}
