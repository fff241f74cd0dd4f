package kernel

import "strings"

// ChangeMask selects team driver change notifications.
type ChangeMask uint32

const (
	PortChange ChangeMask = 1 << iota
	OptionChange
)

func (m ChangeMask) String() string {
	var parts []string
	if m&PortChange != 0 {
		parts = append(parts, "port")
	}
	if m&OptionChange != 0 {
		parts = append(parts, "option")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Port is a member port as reported by the team driver.
type Port struct {
	IfIndex uint32
	// Removed is set when the driver reports the port as leaving the
	// team.
	Removed bool
}

// TeamDriver allocates driver-level handles.
type TeamDriver interface {
	AllocNetlink() (TeamNetlink, error)
}

// TeamNetlink is a driver-level handle. Free releases it.
type TeamNetlink interface {
	AllocTeam() (Team, error)
	Free()
}

// Team is a handle on one team device.
//
// Init binds the handle to the device's ifindex. Once a change handler
// is registered, EventFD becomes readable whenever the driver has
// notifications pending and HandleEvents drains them, reporting which
// of the registered change kinds occurred.
type Team interface {
	Init(ifindex uint32) error
	RegisterChangeHandler(mask ChangeMask) error
	UnregisterChangeHandler()

	Ports() ([]Port, error)
	PortEnabled(ifindex uint32) (bool, error)
	// IfIndexToName resolves a port ifindex. ok is false when the
	// interface no longer exists.
	IfIndexToName(ifindex uint32) (name string, ok bool)

	EventFD() int
	HandleEvents() (ChangeMask, error)

	Free()
}
