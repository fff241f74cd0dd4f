// Package kernel holds the contracts between teamsyncd and the kernel:
// rtnetlink link notifications and the team driver control interface.
// Implementations live in the linkfeed and teamgenl subpackages; tests
// substitute fakes.
package kernel

import "fmt"

// LinkEventKind classifies an rtnetlink link message.
type LinkEventKind int

const (
	// LinkEventOther is any message that is neither RTM_NEWLINK nor
	// RTM_DELLINK.
	LinkEventOther LinkEventKind = iota
	// LinkEventNew is RTM_NEWLINK: a link was created or changed.
	LinkEventNew
	// LinkEventDel is RTM_DELLINK.
	LinkEventDel
)

func (k LinkEventKind) String() string {
	switch k {
	case LinkEventNew:
		return "newlink"
	case LinkEventDel:
		return "dellink"
	default:
		return fmt.Sprintf("other(%d)", int(k))
	}
}

// LinkEvent is one link notification.
type LinkEvent struct {
	Kind LinkEventKind
	Name string
	// Driver is the IFLA_INFO_KIND of the link, "team" for bundles.
	Driver  string
	IfIndex uint32
	// Flags holds the IFF_* interface flags.
	Flags uint32
	MTU   uint32
}
