package teamgenl

import (
	"fmt"
	"strings"
	"syscall"

	"github.com/vishvananda/netlink/nl"

	"github.com/frobware/go-teamsync/kernel"
)

// Commands and attributes from linux/if_team.h.
const (
	cmdOptionsGet  = 2
	cmdPortListGet = 3

	attrTeamIfIndex = 1
	attrListOption  = 2
	attrListPort    = 3

	attrItemOption = 1
	attrItemPort   = 1

	attrOptionName        = 1
	attrOptionData        = 4
	attrOptionPortIfIndex = 6

	attrPortIfIndex = 1
	attrPortRemoved = 6

	optionEnabled = "enabled"

	// Strips NLA_F_NESTED and NLA_F_NET_BYTEORDER.
	nlaTypeMask = 0x3fff

	genlHeaderLen = 4
)

func attrType(a syscall.NetlinkRouteAttr) uint16 {
	return a.Attr.Type & nlaTypeMask
}

// genlAttrs parses the attributes following the generic netlink header.
func genlAttrs(payload []byte) (cmd uint8, attrs []syscall.NetlinkRouteAttr, err error) {
	if len(payload) < genlHeaderLen {
		return 0, nil, fmt.Errorf("short generic netlink message: %d bytes", len(payload))
	}
	attrs, err = nl.ParseRouteAttr(payload[genlHeaderLen:])
	return payload[0], attrs, err
}

// nested returns the children of every attribute of type outer whose
// own children are of type item.
func nested(attrs []syscall.NetlinkRouteAttr, outer, item uint16) ([][]syscall.NetlinkRouteAttr, error) {
	var out [][]syscall.NetlinkRouteAttr
	for _, a := range attrs {
		if attrType(a) != outer {
			continue
		}
		items, err := nl.ParseRouteAttr(a.Value)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			if attrType(it) != item {
				continue
			}
			fields, err := nl.ParseRouteAttr(it.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, fields)
		}
	}
	return out, nil
}

func parsePortList(msgs [][]byte) ([]kernel.Port, error) {
	var ports []kernel.Port
	for _, m := range msgs {
		_, attrs, err := genlAttrs(m)
		if err != nil {
			return nil, err
		}
		items, err := nested(attrs, attrListPort, attrItemPort)
		if err != nil {
			return nil, fmt.Errorf("port list: %w", err)
		}
		for _, fields := range items {
			var p kernel.Port
			for _, f := range fields {
				switch attrType(f) {
				case attrPortIfIndex:
					p.IfIndex = nl.NativeEndian().Uint32(f.Value)
				case attrPortRemoved:
					p.Removed = true
				}
			}
			if p.IfIndex != 0 {
				ports = append(ports, p)
			}
		}
	}
	return ports, nil
}

// parsePortEnabled finds the per-port "enabled" option of ifindex. It
// is a flag option, so the presence of the data attribute means true.
func parsePortEnabled(msgs [][]byte, ifindex uint32) (bool, error) {
	for _, m := range msgs {
		_, attrs, err := genlAttrs(m)
		if err != nil {
			return false, err
		}
		items, err := nested(attrs, attrListOption, attrItemOption)
		if err != nil {
			return false, fmt.Errorf("option list: %w", err)
		}
		for _, fields := range items {
			var (
				name    string
				port    uint32
				hasPort bool
				hasData bool
			)
			for _, f := range fields {
				switch attrType(f) {
				case attrOptionName:
					name = strings.TrimRight(string(f.Value), "\x00")
				case attrOptionPortIfIndex:
					port, hasPort = nl.NativeEndian().Uint32(f.Value), true
				case attrOptionData:
					hasData = true
				}
			}
			if name == optionEnabled && hasPort && port == ifindex {
				return hasData, nil
			}
		}
	}
	return false, fmt.Errorf("option %q not reported for port ifindex %d", optionEnabled, ifindex)
}

// eventMask classifies a change_event notification. ok is false when
// the notification concerns a different team.
func eventMask(payload []byte, ifindex uint32) (kernel.ChangeMask, bool) {
	cmd, attrs, err := genlAttrs(payload)
	if err != nil {
		return 0, false
	}
	for _, a := range attrs {
		if attrType(a) == attrTeamIfIndex && nl.NativeEndian().Uint32(a.Value) != ifindex {
			return 0, false
		}
	}
	switch cmd {
	case cmdPortListGet:
		return kernel.PortChange, true
	case cmdOptionsGet:
		return kernel.OptionChange, true
	}
	return 0, false
}
