// Package interpreter executes reified actions against the state
// store. It is the only consumer of action values that performs I/O.
package interpreter

import (
	"context"

	"github.com/frobware/go-teamsync/action"
)

// ActionExecutor executes reified actions.
type ActionExecutor interface {
	Execute(ctx context.Context, a action.Action) error
	ExecuteAll(ctx context.Context, actions []action.Action) error
}
