package teamsync

import (
	"errors"
	"fmt"
)

// ErrTransport is returned when a teamd control request could not be
// delivered or produced no response. Callers do not distinguish a
// missing response from a malformed one.
var ErrTransport = errors.New("teamd transport failure")

// ErrBundleNotTracked is returned when an operation names a bundle
// that is not known to the component handling it.
type ErrBundleNotTracked struct {
	Name string
}

func (e ErrBundleNotTracked) Error() string {
	return fmt.Sprintf("bundle %q is not tracked", e.Name)
}

// MonitorInitError is returned when the kernel monitoring handle for a
// bundle could not be set up within the allowed number of attempts.
type MonitorInitError struct {
	Bundle   string
	IfIndex  uint32
	Attempts int
	Err      error
}

func (e *MonitorInitError) Error() string {
	return fmt.Sprintf("bundle %s (ifindex %d): monitor init failed after %d attempts: %v",
		e.Bundle, e.IfIndex, e.Attempts, e.Err)
}

func (e *MonitorInitError) Unwrap() error {
	return e.Err
}
